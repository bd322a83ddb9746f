package goPasswordless

import "errors"

// Policy outcomes (expired, incorrect, locked, too many requests) are result
// statuses. The errors below only describe infrastructure and caller faults.
var (
	// ErrInvalidInput is returned for malformed requests: empty recipient,
	// validity above the configured maximum, oversized fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStoreUnavailable wraps every persistence failure.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrDeliveryFailed wraps mailer failures. The code stays persisted.
	ErrDeliveryFailed = errors.New("message delivery failed")
	// ErrAccountLookupFailed wraps AccountProvider failures.
	ErrAccountLookupFailed = errors.New("account lookup failed")
	// ErrEngineNotReady is returned when a nil Engine is used or a required
	// collaborator was not configured.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrSessionInvalid is returned by ParseSessionTicket for tickets that fail
	// signature, expiry, issuer or audience checks.
	ErrSessionInvalid = errors.New("invalid session ticket")
	// ErrBuilderUsed is returned when Build is called twice.
	ErrBuilderUsed = errors.New("builder already used")
)
