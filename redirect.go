package goPasswordless

import (
	"net/url"
	"strings"
)

// sanitizeRedirect returns target when it is a local path, a URL on the
// public origin, or under a registered client return URL. Anything else,
// including an empty target, becomes Redirect.DefaultURL.
func (c *Config) sanitizeRedirect(target string) (string, bool) {
	target = strings.TrimSpace(target)
	switch {
	case target == "":
		return c.Redirect.DefaultURL, false
	case isLocalPath(target):
		return target, true
	case c.sameOrigin(target):
		return target, true
	case c.registeredReturnURL(target):
		return target, true
	default:
		return c.Redirect.DefaultURL, false
	}
}

// isLocalPath accepts "/path?query#frag" but not scheme-relative ("//host")
// or backslash forms that browsers normalise into another host.
func isLocalPath(s string) bool {
	if !strings.HasPrefix(s, "/") || strings.HasPrefix(s, "//") {
		return false
	}
	if strings.ContainsAny(s, "\\") {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] == 0x7f {
			return false
		}
	}

	u, err := url.Parse(s)
	return err == nil && u.Scheme == "" && u.Host == ""
}

func (c *Config) registeredReturnURL(target string) bool {
	origin, ok := parseOrigin(target)
	if !ok {
		return false
	}
	u, err := url.Parse(target)
	if err != nil || hasDotSegment(u.Path) {
		return false
	}

	for _, allowed := range c.Redirect.AllowedReturnURLs {
		allowedOrigin, ok := parseOrigin(allowed)
		if !ok || allowedOrigin != origin {
			continue
		}
		a, err := url.Parse(allowed)
		if err != nil {
			continue
		}
		base := strings.TrimSuffix(a.Path, "/")
		if base == "" || u.Path == a.Path || u.Path == base || strings.HasPrefix(u.Path, base+"/") {
			return true
		}
	}
	return false
}

// hasDotSegment reports "." or ".." segments, including percent-encoded
// ones since p is the decoded path. Browsers resolve them before requesting,
// which would move a target out from under an allowed prefix.
func hasDotSegment(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}
