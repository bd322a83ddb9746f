package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the ticket signature algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

const (
	maxLeeway    = 2 * time.Minute
	minHMACBytes = 32
)

var (
	// ErrInvalidLifetime is returned when a ticket is requested with a
	// non-positive lifetime.
	ErrInvalidLifetime = errors.New("session lifetime must be > 0")
	// ErrMissingSubject is returned when a ticket is requested without subject.
	ErrMissingSubject = errors.New("session subject required")
	// ErrNoSigningKey is returned by a verify-only Manager asked to mint.
	ErrNoSigningKey = errors.New("no session signing key configured")

	errUnknownKID = errors.New("unknown kid")
)

// Config holds signing keys and validation rules. Now overrides the clock
// used for issuance and expiry checks; nil means time.Now.
//
// Ed25519 keys may be raw bytes or PEM. VerifyKeys maps a kid to a
// verification key and, when set, every ticket must carry a known kid.
type Config struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
	Now           func() time.Time
}

// Manager mints and parses signed session tickets. Keys are decoded once
// in NewManager.
//
// Manager is safe for concurrent use.
type Manager struct {
	method   jwt.SigningMethod
	signKey  any
	verify   any
	byKID    map[string]any
	keyID    string
	issuer   string
	audience string
	now      func() time.Time
	parser   *jwt.Parser
}

// SessionClaims is the payload of a session ticket.
type SessionClaims struct {
	// AMR lists the authentication methods that produced the session.
	AMR []string `json:"amr"`
	// TrustedDevice is set when the browser was a trusted device at sign-in.
	TrustedDevice bool `json:"dev"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, fmt.Errorf("session leeway must be within [0, %s]", maxLeeway)
	}
	m := &Manager{
		keyID:    strings.TrimSpace(cfg.KeyID),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		now:      cfg.Now,
	}
	if m.now == nil {
		m.now = time.Now
	}

	var decode func([]byte) (any, error)
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < minHMACBytes {
			return nil, fmt.Errorf("hs256 requires a key of at least %d bytes", minHMACBytes)
		}
		m.method = jwt.SigningMethodHS256
		m.signKey = cfg.PrivateKey
		m.verify = cfg.PrivateKey
		decode = func(b []byte) (any, error) { return b, nil }
	case MethodEd25519:
		m.method = jwt.SigningMethodEdDSA
		decode = func(b []byte) (any, error) { return parseEdPublicKey(b) }
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			m.signKey = priv
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			m.verify = pub
		}
		if m.verify == nil && len(cfg.VerifyKeys) == 0 {
			return nil, errors.New("ed25519 requires a public key or verify keys")
		}
	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
	}

	if len(cfg.VerifyKeys) > 0 {
		m.byKID = make(map[string]any, len(cfg.VerifyKeys))
		for kid, raw := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify keys contain an empty kid")
			}
			key, err := decode(raw)
			if err != nil {
				return nil, fmt.Errorf("verify key %q: %w", kid, err)
			}
			m.byKID[kid] = key
		}
		if _, ok := m.byKID[m.keyID]; m.keyID != "" && !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
		jwt.WithLeeway(cfg.Leeway),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}
	m.parser = jwt.NewParser(opts...)

	return m, nil
}

// CreateSession signs a ticket for subject that expires lifetime from now.
func (m *Manager) CreateSession(subject string, methods []string, trustedDevice bool, lifetime time.Duration) (string, error) {
	switch {
	case subject == "":
		return "", ErrMissingSubject
	case lifetime <= 0:
		return "", ErrInvalidLifetime
	case m.signKey == nil:
		return "", ErrNoSigningKey
	}

	now := m.now()
	claims := SessionClaims{
		AMR:           append([]string(nil), methods...),
		TrustedDevice: trustedDevice,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		},
	}
	if m.audience != "" {
		claims.Audience = jwt.ClaimStrings{m.audience}
	}

	token := jwt.NewWithClaims(m.method, claims)
	if m.keyID != "" {
		token.Header["kid"] = m.keyID
	}
	return token.SignedString(m.signKey)
}

// ParseSession verifies signature, algorithm, expiry, issuer and audience.
func (m *Manager) ParseSession(ticket string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := m.parser.ParseWithClaims(ticket, claims, m.keyFor)
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// keyFor picks the verification key from the kid header. Without a
// rotation set, a configured KeyID must match exactly.
func (m *Manager) keyFor(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if m.byKID != nil {
		if key, ok := m.byKID[kid]; ok {
			return key, nil
		}
		return nil, errUnknownKID
	}
	if m.keyID != "" && kid != m.keyID {
		return nil, errUnknownKID
	}
	return m.verify, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	priv, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return priv, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	pub, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return pub, nil
}
