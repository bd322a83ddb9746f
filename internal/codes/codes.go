package codes

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
)

const (
	// ShortCodeDigits is the length of the code a user types.
	ShortCodeDigits = 6

	longCodeBytes = 16
	nonceBytes    = 32

	// 2^128 has 39 decimal digits.
	maxLongCodeDigits = 39
)

var (
	errMalformedLongCode = errors.New("malformed long code")

	shortModulus = big.NewInt(1_000_000)
)

// NewLongCode draws 128 random bits and returns them as a decimal string.
func NewLongCode() (string, error) {
	var raw [longCodeBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return new(big.Int).SetBytes(raw[:]).String(), nil
}

// ShortCodeOf derives the six-digit code from a long code. Both strings name
// the same code instance.
func ShortCodeOf(longCode string) (string, error) {
	if !IsLongCode(longCode) {
		return "", errMalformedLongCode
	}

	n, ok := new(big.Int).SetString(longCode, 10)
	if !ok {
		return "", errMalformedLongCode
	}

	return fmt.Sprintf("%06d", new(big.Int).Mod(n, shortModulus).Int64()), nil
}

// NewNonce returns 32 random bytes, base64url encoded without padding.
func NewNonce() (string, error) {
	var raw [nonceBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// IsShortCode reports whether s is exactly six ASCII digits.
func IsShortCode(s string) bool {
	return len(s) == ShortCodeDigits && allDigits(s)
}

// IsLongCode reports whether s could have come from NewLongCode.
func IsLongCode(s string) bool {
	return len(s) > 0 && len(s) <= maxLongCodeDigits && allDigits(s)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
