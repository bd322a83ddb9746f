package goPasswordless

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/goPasswordless/keyedhash"
)

// Config holds every tunable of the Engine. Start from [DefaultConfig] and
// override fields; Config is copied by [Builder.WithConfig] and treated as
// immutable afterwards.
type Config struct {
	// HashKey keys the fast hash used for client nonces and device ids.
	// It must be at least 32 bytes and stable across restarts.
	HashKey []byte

	Codes         CodeConfig
	Password      PasswordConfig
	Session       SessionConfig
	Redirect      RedirectConfig
	Cookies       CookieConfig
	RequestLimits RequestLimitConfig
	Store         StoreConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
ONE-TIME CODES
====================================
*/

// CodeConfig controls issuance, resend and verification of one-time codes.
type CodeConfig struct {
	DefaultValidity time.Duration
	MaxValidity     time.Duration
	// A repeated request is a resend while the remaining validity of the
	// current code is above ResendMinRemaining and below DefaultValidity.
	ResendMinRemaining time.Duration
	MaxSends           int
	MaxFailedAttempts  int
	// ExpiredGrace keeps expired records readable so Expired can be told
	// apart from NotFound.
	ExpiredGrace time.Duration
	// LinkBaseURL is prefixed to the long code in mailed links.
	LinkBaseURL string
}

/*
====================================
PASSWORDS
====================================
*/

// PasswordConfig holds strength policy, lockout policy and Argon2id costs.
type PasswordConfig struct {
	MinLength          int
	MaxLength          int
	MaxFailedAttempts  int
	LockDuration       time.Duration
	ResetCounterOnLock bool

	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
SESSIONS
====================================
*/

// SessionConfig controls granted lifetimes and session ticket signing.
type SessionConfig struct {
	DefaultLifetime time.Duration
	MaxLifetime     time.Duration

	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	KeyID         string
	Leeway        time.Duration
}

// RedirectConfig is the allow-list applied to post sign-in redirects.
type RedirectConfig struct {
	// PublicOrigin is the scheme://host[:port] this identity provider is
	// served from. Absolute URLs with the same origin are accepted.
	PublicOrigin string
	// AllowedReturnURLs are registered client return URL prefixes.
	AllowedReturnURLs []string
	DefaultURL        string
}

// CookieConfig names the cookies exchanged through a [CookieJar].
type CookieConfig struct {
	NonceName  string
	DeviceName string
	DeviceTTL  time.Duration
}

// RequestLimitConfig throttles SendSignInCode per recipient and per client IP.
// It requires a Redis client.
type RequestLimitConfig struct {
	Enabled         bool
	Window          time.Duration
	MaxPerRecipient int
	MaxPerIP        int
}

// StoreConfig holds persistence settings for the built-in Redis stores.
type StoreConfig struct {
	RedisPrefix string
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production defaults. HashKey and the session signing
// keys are left empty and must be supplied.
func DefaultConfig() Config {
	return Config{
		Codes: CodeConfig{
			DefaultValidity:    5 * time.Minute,
			MaxValidity:        time.Hour,
			ResendMinRemaining: 2 * time.Minute,
			MaxSends:           4,
			MaxFailedAttempts:  3,
			ExpiredGrace:       time.Hour,
		},
		Password: PasswordConfig{
			MinLength:          8,
			MaxLength:          1024,
			MaxFailedAttempts:  3,
			LockDuration:       10 * time.Minute,
			ResetCounterOnLock: true,
			Memory:             64 * 1024,
			Time:               3,
			Parallelism:        2,
			SaltLength:         16,
			KeyLength:          32,
		},
		Session: SessionConfig{
			DefaultLifetime: 12 * time.Hour,
			MaxLifetime:     30 * 24 * time.Hour,
			SigningMethod:   "ed25519",
		},
		Redirect: RedirectConfig{
			DefaultURL: "/",
		},
		Cookies: CookieConfig{
			NonceName:  "pwl_nonce",
			DeviceName: "pwl_device",
			DeviceTTL:  400 * 24 * time.Hour,
		},
		RequestLimits: RequestLimitConfig{
			Enabled:         true,
			Window:          15 * time.Minute,
			MaxPerRecipient: 5,
			MaxPerIP:        30,
		},
		Store: StoreConfig{
			RedisPrefix: "pwl",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.HashKey = cloneBytes(cfg.HashKey)
	out.Session.PrivateKey = cloneBytes(cfg.Session.PrivateKey)
	out.Session.PublicKey = cloneBytes(cfg.Session.PublicKey)
	out.Redirect.AllowedReturnURLs = append([]string(nil), cfg.Redirect.AllowedReturnURLs...)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if len(c.HashKey) < keyedhash.MinKeyLength {
		return errors.New("HashKey must be at least 32 bytes")
	}

	// Codes
	if c.Codes.DefaultValidity <= 0 {
		return errors.New("Codes DefaultValidity must be > 0")
	}
	if c.Codes.MaxValidity < c.Codes.DefaultValidity {
		return errors.New("Codes MaxValidity must be >= DefaultValidity")
	}
	if c.Codes.ResendMinRemaining < 0 || c.Codes.ResendMinRemaining >= c.Codes.DefaultValidity {
		return errors.New("Codes ResendMinRemaining must be in [0, DefaultValidity)")
	}
	if c.Codes.MaxSends <= 0 {
		return errors.New("Codes MaxSends must be > 0")
	}
	if c.Codes.MaxFailedAttempts <= 0 {
		return errors.New("Codes MaxFailedAttempts must be > 0")
	}
	if c.Codes.ExpiredGrace < 0 {
		return errors.New("Codes ExpiredGrace must be >= 0")
	}

	// Password
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}
	if c.Password.MaxFailedAttempts <= 0 {
		return errors.New("Password MaxFailedAttempts must be > 0")
	}
	if c.Password.LockDuration <= 0 {
		return errors.New("Password LockDuration must be > 0")
	}
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Session
	if c.Session.DefaultLifetime <= 0 {
		return errors.New("Session DefaultLifetime must be > 0")
	}
	if c.Session.MaxLifetime < c.Session.DefaultLifetime {
		return errors.New("Session MaxLifetime must be >= DefaultLifetime")
	}
	if c.Session.Leeway < 0 || c.Session.Leeway > 2*time.Minute {
		return errors.New("Session Leeway must be in [0, 2m]")
	}
	switch c.Session.SigningMethod {
	case "ed25519":
		if len(c.Session.PrivateKey) == 0 || len(c.Session.PublicKey) == 0 {
			return errors.New("ed25519 requires PrivateKey and PublicKey")
		}
	case "hs256":
		if len(c.Session.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	default:
		return errors.New("unsupported Session SigningMethod")
	}

	// Redirect
	if c.Redirect.PublicOrigin != "" {
		if _, ok := parseOrigin(c.Redirect.PublicOrigin); !ok {
			return errors.New("Redirect PublicOrigin must be an absolute http(s) origin")
		}
	}
	for _, prefix := range c.Redirect.AllowedReturnURLs {
		if _, ok := parseOrigin(prefix); !ok {
			return errors.New("Redirect AllowedReturnURLs must be absolute http(s) URLs")
		}
	}
	if c.Redirect.DefaultURL == "" || !isLocalPath(c.Redirect.DefaultURL) && !c.sameOrigin(c.Redirect.DefaultURL) {
		return errors.New("Redirect DefaultURL must be a local path or same-origin URL")
	}

	// Cookies
	if strings.TrimSpace(c.Cookies.NonceName) == "" || strings.TrimSpace(c.Cookies.DeviceName) == "" {
		return errors.New("Cookies NonceName and DeviceName are required")
	}
	if c.Cookies.NonceName == c.Cookies.DeviceName {
		return errors.New("Cookies NonceName and DeviceName must differ")
	}
	if c.Cookies.DeviceTTL <= 0 {
		return errors.New("Cookies DeviceTTL must be > 0")
	}

	// Request limits
	if c.RequestLimits.Enabled {
		if c.RequestLimits.Window <= 0 {
			return errors.New("RequestLimits Window must be > 0")
		}
		if c.RequestLimits.MaxPerRecipient <= 0 || c.RequestLimits.MaxPerIP <= 0 {
			return errors.New("RequestLimits maxima must be > 0")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}

func (c *Config) sameOrigin(raw string) bool {
	if c.Redirect.PublicOrigin == "" {
		return false
	}
	want, ok := parseOrigin(c.Redirect.PublicOrigin)
	if !ok {
		return false
	}
	got, ok := parseOrigin(raw)
	return ok && got == want
}

// parseOrigin returns the lower-cased scheme://host of an absolute http(s)
// URL.
func parseOrigin(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || u.User != nil {
		return "", false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}
	return scheme + "://" + strings.ToLower(u.Host), true
}
