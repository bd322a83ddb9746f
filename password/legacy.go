package password

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2ID      = "pbkdf2-sha256"
	minPBKDF2Iter = 1000
)

// Hashes imported from older identity stores. They verify but always
// report a rehash so the next successful check moves them to Argon2id.

func isBcrypt(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, "$2a$") ||
		strings.HasPrefix(encodedHash, "$2b$") ||
		strings.HasPrefix(encodedHash, "$2y$")
}

func verifyBcrypt(password, encodedHash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
}

func isPBKDF2(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, "$"+pbkdf2ID+"$")
}

// $pbkdf2-sha256$i=<iterations>$<salt b64>$<hash b64>
func verifyPBKDF2(password, encodedHash string) (bool, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 5 || parts[0] != "" || parts[1] != pbkdf2ID {
		return false, fmt.Errorf("%w: invalid pbkdf2 format", ErrMalformedHash)
	}
	if !strings.HasPrefix(parts[2], "i=") {
		return false, fmt.Errorf("%w: missing pbkdf2 iterations", ErrMalformedHash)
	}

	iter, err := strconv.Atoi(strings.TrimPrefix(parts[2], "i="))
	if err != nil || iter < minPBKDF2Iter {
		return false, fmt.Errorf("%w: invalid pbkdf2 iterations", ErrMalformedHash)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil || len(salt) == 0 {
		return false, fmt.Errorf("%w: invalid pbkdf2 salt", ErrMalformedHash)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(want) == 0 {
		return false, fmt.Errorf("%w: invalid pbkdf2 hash", ErrMalformedHash)
	}

	got := pbkdf2.Key([]byte(password), salt, iter, len(want), sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func encodePBKDF2(password string, salt []byte, iter, keyLen int) string {
	key := pbkdf2.Key([]byte(password), salt, iter, keyLen, sha256.New)
	return fmt.Sprintf("$%s$i=%d$%s$%s",
		pbkdf2ID,
		iter,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
}
