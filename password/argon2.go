package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	algorithmID = "argon2id"

	// DefaultMaxPasswordBytes bounds the input fed to Argon2 when
	// Config.MaxPasswordBytes is zero.
	DefaultMaxPasswordBytes = 1024
)

// Lowest costs accepted for new hashes and for stored ones.
var floor = Config{
	Memory:      8 * 1024,
	Time:        1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   16,
}

var (
	// ErrEmptyPassword is returned when hashing or verifying an empty password.
	ErrEmptyPassword = errors.New("password must not be empty")
	// ErrPasswordTooLong is returned when the input exceeds Config.MaxPasswordBytes.
	ErrPasswordTooLong = errors.New("password exceeds maximum length")
	// ErrMalformedHash is returned for stored hashes no verifier understands.
	ErrMalformedHash = errors.New("malformed password hash")
)

// Config holds the Argon2id cost parameters used for new hashes. Memory is
// in KiB.
type Config struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
}

// DefaultConfig returns the parameters used when the engine config leaves
// the password section empty.
func DefaultConfig() Config {
	return Config{
		Memory:           64 * 1024,
		Time:             3,
		Parallelism:      2,
		SaltLength:       16,
		KeyLength:        32,
		MaxPasswordBytes: DefaultMaxPasswordBytes,
	}
}

func (c Config) validate() error {
	switch {
	case c.Memory < floor.Memory:
		return fmt.Errorf("password memory must be >= %d KiB", floor.Memory)
	case c.Time < floor.Time:
		return fmt.Errorf("password time must be >= %d", floor.Time)
	case c.Parallelism < floor.Parallelism:
		return fmt.Errorf("password parallelism must be >= %d", floor.Parallelism)
	case c.SaltLength < floor.SaltLength:
		return fmt.Errorf("password salt length must be >= %d", floor.SaltLength)
	case c.KeyLength < floor.KeyLength:
		return fmt.Errorf("password key length must be >= %d", floor.KeyLength)
	case c.MaxPasswordBytes < 0:
		return errors.New("password max bytes must be >= 0")
	}
	return nil
}

// Argon2 hashes and verifies PHC-encoded Argon2id strings.
type Argon2 struct {
	cfg Config
}

// phc is a decoded "$argon2id$v=19$m=..,t=..,p=..$salt$key" string.
type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (p *phc) String() string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version, p.memory, p.time, p.parallelism,
		base64.RawStdEncoding.EncodeToString(p.salt),
		base64.RawStdEncoding.EncodeToString(p.key),
	)
}

// NewArgon2 returns an error when a cost parameter is below the accepted floor.
func NewArgon2(cfg Config) (*Argon2, error) {
	if cfg.MaxPasswordBytes == 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Argon2{cfg: cfg}, nil
}

// Hash returns a PHC string with a fresh random salt. Input bytes are used
// as given, without Unicode normalization. Strength policy is the caller's.
func (a *Argon2) Hash(password string) (string, error) {
	if err := a.checkLength(password); err != nil {
		return "", err
	}

	salt := make([]byte, a.cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}

	out := &phc{
		memory:      a.cfg.Memory,
		time:        a.cfg.Time,
		parallelism: a.cfg.Parallelism,
		salt:        salt,
	}
	out.key = out.derive(password, a.cfg.KeyLength)
	return out.String(), nil
}

// Verify reports a wrong password as (false, nil). Errors mean rejected
// input or a stored hash that cannot be decoded.
func (a *Argon2) Verify(password, encoded string) (bool, error) {
	if err := a.checkLength(password); err != nil {
		return false, err
	}
	stored, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}
	got := stored.derive(password, uint32(len(stored.key)))
	return subtle.ConstantTimeCompare(got, stored.key) == 1, nil
}

// NeedsUpgrade reports whether encoded was produced with cheaper costs or
// a different key length than the current configuration.
func (a *Argon2) NeedsUpgrade(encoded string) (bool, error) {
	stored, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}
	stale := stored.memory < a.cfg.Memory ||
		stored.time < a.cfg.Time ||
		stored.parallelism < a.cfg.Parallelism ||
		uint32(len(stored.key)) != a.cfg.KeyLength
	return stale, nil
}

func (p *phc) derive(password string, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, keyLen)
}

func (a *Argon2) checkLength(password string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	if len(password) > a.cfg.MaxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}

func isArgon2PHC(encoded string) bool {
	return strings.HasPrefix(encoded, "$"+algorithmID+"$")
}

func malformed(reason string) error {
	return fmt.Errorf("%w: %s", ErrMalformedHash, reason)
}

func decodePHC(encoded string) (*phc, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" {
		return nil, malformed("invalid PHC format")
	}
	if fields[1] != algorithmID {
		return nil, malformed("unsupported algorithm")
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil {
		return nil, malformed("invalid argon2 version")
	}
	if version != argon2.Version {
		return nil, malformed("unsupported argon2 version")
	}

	var p phc
	var par uint32
	if n, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &par); err != nil || n != 3 {
		return nil, malformed("invalid parameters")
	}
	if fields[3] != fmt.Sprintf("m=%d,t=%d,p=%d", p.memory, p.time, par) {
		return nil, malformed("invalid parameters")
	}
	if p.memory < floor.Memory || p.time < floor.Time || par < uint32(floor.Parallelism) || par > 255 {
		return nil, malformed("parameters below floor")
	}
	p.parallelism = uint8(par)

	var err error
	if p.salt, err = decodeB64(fields[4]); err != nil || len(p.salt) < int(floor.SaltLength) {
		return nil, malformed("invalid salt")
	}
	if p.key, err = decodeB64(fields[5]); err != nil || len(p.key) == 0 {
		return nil, malformed("invalid key")
	}
	return &p, nil
}

// decodeB64 accepts the unpadded PHC alphabet and the padded form older
// hashes were written with.
func decodeB64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
