package stores

import (
	"errors"
	"time"
)

var (
	// ErrUnavailable wraps every failure of the backing Redis deployment.
	ErrUnavailable = errors.New("store unavailable")
	// ErrConflict is returned when optimistic retries are exhausted.
	ErrConflict = errors.New("store write conflict")
)

// OneTimeCode is the single active code for a recipient.
type OneTimeCode struct {
	SentTo             string
	ClientNonceHash    string
	ShortCode          string
	LongCode           string
	ExpiresAt          time.Time
	FailedAttemptCount int
	SentCount          int
	RedirectURL        string
}

// Clone returns a copy the caller may modify freely.
func (c *OneTimeCode) Clone() *OneTimeCode {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// PasswordRecord is the password state of one subject.
type PasswordRecord struct {
	SubjectID          string
	Hash               string
	LastChangedAt      time.Time
	FailedAttemptCount int
	TempLockUntil      time.Time
}

// Clone returns a copy the caller may modify freely.
func (p *PasswordRecord) Clone() *PasswordRecord {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// TrustedDevice is one browser a subject chose to trust. DeviceIDHash is a
// keyed hash; the raw device id never reaches storage.
type TrustedDevice struct {
	SubjectID    string
	DeviceIDHash string
	Description  string
	AddedOn      time.Time
}
