package goPasswordless

import "time"

// IssueStatus is the outcome of issuing a code. The zero value is
// IssueServiceFailure.
type IssueStatus uint8

const (
	IssueServiceFailure IssueStatus = iota
	// IssueIssued means a brand-new code was generated.
	IssueIssued
	// IssueResent means the existing code was reused for another delivery.
	IssueResent
	// IssueTooManyRequests means the resend cap was hit or the request
	// throttle denied the request. Nothing was stored or sent.
	IssueTooManyRequests
)

func (s IssueStatus) String() string {
	switch s {
	case IssueIssued:
		return "issued"
	case IssueResent:
		return "resent"
	case IssueTooManyRequests:
		return "too_many_requests"
	default:
		return "service_failure"
	}
}

// IssueRequest asks for a code for Recipient. Validity 0 means
// Codes.DefaultValidity.
type IssueRequest struct {
	Recipient   string
	Validity    time.Duration
	RedirectURL string
}

// IssueResult carries the codes to deliver. ClientNonce is non-empty only for
// IssueIssued; the caller stores it in the requesting browser.
type IssueResult struct {
	Status      IssueStatus
	ShortCode   string
	LongCode    string
	ClientNonce string
	ExpiresAt   time.Time
	// SentCount is how many times the current code has been resent.
	SentCount   int
}

// VerifyStatus is the outcome of verifying a code. The zero value is
// VerifyNotFound.
type VerifyStatus uint8

const (
	VerifyNotFound VerifyStatus = iota
	VerifyExpired
	VerifyCodeIncorrect
	VerifyShortCodeLocked
	// VerifiedWithoutNonce means the code matched but the presented client
	// nonce did not; another browser redeemed it.
	VerifiedWithoutNonce
	// VerifiedWithNonce means the code matched in the browser that
	// requested it.
	VerifiedWithNonce
	VerifyServiceFailure
)

func (s VerifyStatus) String() string {
	switch s {
	case VerifyExpired:
		return "expired"
	case VerifyCodeIncorrect:
		return "code_incorrect"
	case VerifyShortCodeLocked:
		return "short_code_locked"
	case VerifiedWithoutNonce:
		return "verified_without_nonce"
	case VerifiedWithNonce:
		return "verified_with_nonce"
	case VerifyServiceFailure:
		return "service_failure"
	default:
		return "not_found"
	}
}

// Verified reports whether the code was accepted and consumed.
func (s VerifyStatus) Verified() bool {
	return s == VerifiedWithNonce || s == VerifiedWithoutNonce
}

// VerifyRequest checks a typed short code.
type VerifyRequest struct {
	Recipient   string
	ShortCode   string
	ClientNonce string
}

// LongCodeRequest checks the long code carried by a mailed link.
type LongCodeRequest struct {
	LongCode    string
	ClientNonce string
}

// VerifyResult names the recipient and stored redirect of a consumed code.
type VerifyResult struct {
	Status      VerifyStatus
	SentTo      string
	RedirectURL string
}

// PasswordCheckStatus is the outcome of CheckPassword. The zero value is
// PasswordServiceFailure.
type PasswordCheckStatus uint8

const (
	PasswordServiceFailure PasswordCheckStatus = iota
	PasswordSuccess
	PasswordIncorrect
	PasswordTemporarilyLocked
	PasswordNotFound
)

func (s PasswordCheckStatus) String() string {
	switch s {
	case PasswordSuccess:
		return "success"
	case PasswordIncorrect:
		return "incorrect"
	case PasswordTemporarilyLocked:
		return "temporarily_locked"
	case PasswordNotFound:
		return "not_found"
	default:
		return "service_failure"
	}
}

// PasswordCheckResult reports a password check. LockedUntil is set for
// PasswordTemporarilyLocked; Rehashed when a stale hash was replaced.
type PasswordCheckResult struct {
	Status      PasswordCheckStatus
	LockedUntil time.Time
	Rehashed    bool
}

// PasswordSetStatus is the outcome of SetPassword.
type PasswordSetStatus uint8

const (
	PasswordSetServiceFailure PasswordSetStatus = iota
	PasswordSetSuccess
	PasswordDoesNotMeetStrengthRequirements
)

func (s PasswordSetStatus) String() string {
	switch s {
	case PasswordSetSuccess:
		return "success"
	case PasswordDoesNotMeetStrengthRequirements:
		return "does_not_meet_strength_requirements"
	default:
		return "service_failure"
	}
}

// PasswordSetResult reports SetPassword.
type PasswordSetResult struct {
	Status PasswordSetStatus
}

// PasswordRemoveStatus is the outcome of RemovePassword.
type PasswordRemoveStatus uint8

const (
	PasswordRemoveServiceFailure PasswordRemoveStatus = iota
	PasswordRemoved
	PasswordRemoveNotFound
)

func (s PasswordRemoveStatus) String() string {
	switch s {
	case PasswordRemoved:
		return "removed"
	case PasswordRemoveNotFound:
		return "not_found"
	default:
		return "service_failure"
	}
}

// PasswordRemoveResult reports RemovePassword.
type PasswordRemoveResult struct {
	Status PasswordRemoveStatus
}
