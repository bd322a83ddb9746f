package goPasswordless

import (
	"context"
	"errors"
)

const (
	auditEventCodeIssued         = "code_issued"
	auditEventCodeResent         = "code_resent"
	auditEventCodeIssueDenied    = "code_issue_denied"
	auditEventCodeVerified       = "code_verified"
	auditEventCodeRejected       = "code_rejected"
	auditEventPasswordCheck      = "password_check"
	auditEventPasswordSet        = "password_set"
	auditEventPasswordRemoved    = "password_removed"
	auditEventDeviceTrusted      = "device_trusted"
	auditEventDeviceRevoked      = "device_revoked"
	auditEventSignInSuccess      = "sign_in_success"
	auditEventSignInRejected     = "sign_in_rejected"
	auditEventRateLimitTriggered = "rate_limit_triggered"
	auditEventDeliveryFailed     = "delivery_failed"
)

// AuditErrorCode is the stable error classification written to audit events.
type AuditErrorCode string

const (
	auditErrInvalidInput   AuditErrorCode = "invalid_input"
	auditErrUnavailable    AuditErrorCode = "backend_unavailable"
	auditErrDelivery       AuditErrorCode = "delivery_failed"
	auditErrAccountLookup  AuditErrorCode = "account_lookup_failed"
	auditErrSessionInvalid AuditErrorCode = "session_invalid"
	auditErrInternal       AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subjectID string,
	recipient string,
	outcome string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now(),
		EventType: eventType,
		SubjectID: subjectID,
		Recipient: recipient,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Outcome:   outcome,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, recipient, scope string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", recipient, "too_many_requests", nil, func() map[string]string {
		return map[string]string{"scope": scope}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return auditErrInvalidInput
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrDeliveryFailed):
		return auditErrDelivery
	case errors.Is(err, ErrAccountLookupFailed):
		return auditErrAccountLookup
	case errors.Is(err, ErrSessionInvalid):
		return auditErrSessionInvalid
	default:
		return auditErrInternal
	}
}
