package goPasswordless

import "testing"

func TestSanitizeRedirect(t *testing.T) {
	cfg := testConfig()
	cfg.Redirect.AllowedReturnURLs = append(cfg.Redirect.AllowedReturnURLs, "https://docs.example.com/")

	tests := []struct {
		in       string
		want     string
		accepted bool
	}{
		{in: "", want: "/", accepted: false},
		{in: "/", want: "/", accepted: true},
		{in: "  /settings#devices ", want: "/settings#devices", accepted: true},
		{in: "//evil.example", want: "/", accepted: false},
		{in: "/\\evil.example", want: "/", accepted: false},
		{in: "/path\r\nSet-Cookie: x", want: "/", accepted: false},
		{in: "relative/path", want: "/", accepted: false},
		{in: "javascript:alert(1)", want: "/", accepted: false},
		{in: "https://ID.example.com/x", want: "https://ID.example.com/x", accepted: true},
		{in: "http://id.example.com/x", want: "/", accepted: false},
		{in: "https://id.example.com.evil.example/x", want: "/", accepted: false},
		{in: "https://user@id.example.com/x", want: "/", accepted: false},
		{in: "https://app.example.com/return", want: "https://app.example.com/return", accepted: true},
		{in: "https://app.example.com/return?state=1", want: "https://app.example.com/return?state=1", accepted: true},
		{in: "https://app.example.com/return/deep", want: "https://app.example.com/return/deep", accepted: true},
		{in: "https://app.example.com/returned", want: "/", accepted: false},
		{in: "https://app.example.com/other", want: "/", accepted: false},
		{in: "https://app.example.com/return/../admin", want: "/", accepted: false},
		{in: "https://app.example.com/return/%2e%2e/admin", want: "/", accepted: false},
		{in: "https://app.example.com/return/%2E%2E/admin", want: "/", accepted: false},
		{in: "https://app.example.com/return/./deep", want: "/", accepted: false},
		{in: "https://docs.example.com/anything", want: "https://docs.example.com/anything", accepted: true},
	}

	for _, tc := range tests {
		got, accepted := cfg.sanitizeRedirect(tc.in)
		if got != tc.want || accepted != tc.accepted {
			t.Fatalf("sanitizeRedirect(%q) = %q, %v; want %q, %v", tc.in, got, accepted, tc.want, tc.accepted)
		}
	}
}

func TestSanitizeRedirectWithoutPublicOrigin(t *testing.T) {
	cfg := testConfig()
	cfg.Redirect.PublicOrigin = ""

	if got, ok := cfg.sanitizeRedirect("https://id.example.com/x"); ok || got != "/" {
		t.Fatalf("expected absolute url rejected without public origin, got %q", got)
	}
	if got, ok := cfg.sanitizeRedirect("/x"); !ok || got != "/x" {
		t.Fatalf("expected local path accepted, got %q", got)
	}
}
