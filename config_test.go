package goPasswordless

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"
)

func TestDefaultConfigNeedsKeys(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected default config without keys to be invalid")
	}

	valid := testConfig()
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected test config valid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "short hash key",
			mutate:    func(c *Config) { c.HashKey = bytes.Repeat([]byte{1}, 31) },
			wantValid: false,
		},
		{
			name:      "resend threshold equal to default validity",
			mutate:    func(c *Config) { c.Codes.ResendMinRemaining = c.Codes.DefaultValidity },
			wantValid: false,
		},
		{
			name:      "max validity below default",
			mutate:    func(c *Config) { c.Codes.MaxValidity = time.Minute },
			wantValid: false,
		},
		{
			name:      "zero sends",
			mutate:    func(c *Config) { c.Codes.MaxSends = 0 },
			wantValid: false,
		},
		{
			name:      "zero short code attempts",
			mutate:    func(c *Config) { c.Codes.MaxFailedAttempts = 0 },
			wantValid: false,
		},
		{
			name:      "password max below min",
			mutate:    func(c *Config) { c.Password.MaxLength = 4 },
			wantValid: false,
		},
		{
			name:      "argon2 memory too low",
			mutate:    func(c *Config) { c.Password.Memory = 1024 },
			wantValid: false,
		},
		{
			name:      "zero lock duration",
			mutate:    func(c *Config) { c.Password.LockDuration = 0 },
			wantValid: false,
		},
		{
			name:      "max lifetime below default",
			mutate:    func(c *Config) { c.Session.MaxLifetime = time.Hour },
			wantValid: false,
		},
		{
			name:      "hs256 short key",
			mutate:    func(c *Config) { c.Session.PrivateKey = []byte("short") },
			wantValid: false,
		},
		{
			name:      "unknown signing method",
			mutate:    func(c *Config) { c.Session.SigningMethod = "rs256" },
			wantValid: false,
		},
		{
			name:      "leeway too large",
			mutate:    func(c *Config) { c.Session.Leeway = 3 * time.Minute },
			wantValid: false,
		},
		{
			name:      "leeway valid",
			mutate:    func(c *Config) { c.Session.Leeway = 30 * time.Second },
			wantValid: true,
		},
		{
			name:      "origin not http",
			mutate:    func(c *Config) { c.Redirect.PublicOrigin = "ftp://id.example.com" },
			wantValid: false,
		},
		{
			name:      "relative allowed return url",
			mutate:    func(c *Config) { c.Redirect.AllowedReturnURLs = []string{"/return"} },
			wantValid: false,
		},
		{
			name:      "foreign default url",
			mutate:    func(c *Config) { c.Redirect.DefaultURL = "https://evil.example/" },
			wantValid: false,
		},
		{
			name:      "same origin default url",
			mutate:    func(c *Config) { c.Redirect.DefaultURL = "https://id.example.com/home" },
			wantValid: true,
		},
		{
			name:      "cookie names collide",
			mutate:    func(c *Config) { c.Cookies.DeviceName = c.Cookies.NonceName },
			wantValid: false,
		},
		{
			name:      "request limits without window",
			mutate:    func(c *Config) { c.RequestLimits.Window = 0 },
			wantValid: false,
		},
		{
			name: "request limits disabled ignore window",
			mutate: func(c *Config) {
				c.RequestLimits.Enabled = false
				c.RequestLimits.Window = 0
			},
			wantValid: true,
		},
		{
			name: "audit without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected invalid config")
			}
		})
	}
}

func TestConfigEd25519(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	cfg := testConfig()
	cfg.Session.SigningMethod = "ed25519"
	cfg.Session.PrivateKey = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected ed25519 without keys to be invalid")
	}

	cfg.Session.PrivateKey = priv
	cfg.Session.PublicKey = pub
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected ed25519 config valid: %v", err)
	}
}

func TestWithConfigCopiesSlices(t *testing.T) {
	cfg := testConfig()
	b := New().WithConfig(cfg)

	cfg.HashKey[0] = 0
	cfg.Redirect.AllowedReturnURLs[0] = "https://evil.example"

	if b.config.HashKey[0] != 0x42 {
		t.Fatal("expected hash key copied")
	}
	if b.config.Redirect.AllowedReturnURLs[0] != "https://app.example.com/return" {
		t.Fatal("expected allowed return urls copied")
	}
}
