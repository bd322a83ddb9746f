// Package keyedhash provides the fast keyed hash used to persist short-lived
// secrets (client nonces, device identifiers) without storing them in clear
// text.
//
// # Format
//
// A digest is HMAC-SHA256 over a length-prefixed salt followed by the value,
// encoded as unpadded base64url. The salt scopes a digest to its owner: a
// nonce hashed for one recipient never verifies for another.
//
// # What this package must NOT do
//
//   - Be used for passwords. Passwords go through the slow hash in package password.
//   - Compare digests with anything but [crypto/subtle].
package keyedhash

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"errors"
)

// MinKeyLength is the shortest server key accepted by [New].
const MinKeyLength = 32

// ErrKeyTooShort is returned by [New] for keys below [MinKeyLength].
var ErrKeyTooShort = errors.New("keyed hash key must be at least 32 bytes")

// Hasher computes salted keyed digests. It is safe for concurrent use.
type Hasher struct {
	key []byte
}

// New returns a Hasher bound to a copy of key.
func New(key []byte) (*Hasher, error) {
	if len(key) < MinKeyLength {
		return nil, ErrKeyTooShort
	}

	k := make([]byte, len(key))
	copy(k, key)
	return &Hasher{key: k}, nil
}

// Sum returns the encoded digest of value scoped to salt.
func (h *Hasher) Sum(salt, value string) string {
	return base64.RawURLEncoding.EncodeToString(h.sum(salt, value))
}

// Verify reports whether encoded is the digest of value scoped to salt.
// Empty values never verify.
func (h *Hasher) Verify(salt, value, encoded string) bool {
	if value == "" || encoded == "" {
		return false
	}

	want, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return false
	}

	return subtle.ConstantTimeCompare(h.sum(salt, value), want) == 1
}

func (h *Hasher) sum(salt, value string) []byte {
	mac := hmac.New(sha256.New, h.key)

	// length prefix keeps ("ab","c") and ("a","bc") apart
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(salt)))
	mac.Write(prefix[:])
	mac.Write([]byte(salt))
	mac.Write([]byte(value))

	return mac.Sum(nil)
}
