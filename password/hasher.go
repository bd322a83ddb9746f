package password

// Outcome is the result of checking a password against a stored hash.
type Outcome uint8

const (
	// Mismatch means the password does not match the stored hash.
	Mismatch Outcome = iota
	// Match means the password matches and the hash is current.
	Match
	// MatchNeedsRehash means the password matches but the stored hash uses
	// stale parameters or a legacy algorithm and should be replaced.
	MatchNeedsRehash
)

func (o Outcome) String() string {
	switch o {
	case Match:
		return "match"
	case MatchNeedsRehash:
		return "match_needs_rehash"
	default:
		return "mismatch"
	}
}

// Matched reports whether the outcome is a successful verification.
func (o Outcome) Matched() bool {
	return o == Match || o == MatchNeedsRehash
}

// Hasher is the password hash engine: new hashes are always Argon2id, and
// stored hashes may be Argon2id, bcrypt or PBKDF2-SHA256.
//
// Hasher is safe for concurrent use.
type Hasher struct {
	current *Argon2
}

// NewHasher builds a Hasher around an Argon2id configuration.
func NewHasher(cfg Config) (*Hasher, error) {
	a, err := NewArgon2(cfg)
	if err != nil {
		return nil, err
	}
	return &Hasher{current: a}, nil
}

// Hash returns a new Argon2id PHC string for password.
func (h *Hasher) Hash(password string) (string, error) {
	return h.current.Hash(password)
}

// Check compares password with encodedHash. A returned error means the
// stored hash could not be evaluated; it never means "wrong password".
func (h *Hasher) Check(password, encodedHash string) (Outcome, error) {
	if err := h.current.checkLength(password); err != nil {
		return Mismatch, err
	}

	switch {
	case isArgon2PHC(encodedHash):
		ok, err := h.current.Verify(password, encodedHash)
		if err != nil || !ok {
			return Mismatch, err
		}
		stale, err := h.current.NeedsUpgrade(encodedHash)
		if err != nil {
			return Mismatch, err
		}
		if stale {
			return MatchNeedsRehash, nil
		}
		return Match, nil
	case isBcrypt(encodedHash):
		return legacyOutcome(verifyBcrypt(password, encodedHash))
	case isPBKDF2(encodedHash):
		return legacyOutcome(verifyPBKDF2(password, encodedHash))
	default:
		return Mismatch, ErrMalformedHash
	}
}

func legacyOutcome(ok bool, err error) (Outcome, error) {
	if err != nil || !ok {
		return Mismatch, err
	}
	return MatchNeedsRehash, nil
}
