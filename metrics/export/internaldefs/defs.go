package internaldefs

import (
	goPasswordless "github.com/MrEthical07/goPasswordless"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   goPasswordless.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram.
type HistogramDef struct {
	ID   goPasswordless.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter for events the audit dispatcher dropped.
const AuditDroppedName = "passwordless_audit_dropped_total"

// CounterDefs lists every exported counter in a fixed order.
var CounterDefs = []CounterDef{
	{ID: goPasswordless.MetricCodeIssued, Name: "passwordless_code_issued_total", Help: "One-time codes issued."},
	{ID: goPasswordless.MetricCodeResent, Name: "passwordless_code_resent_total", Help: "One-time codes re-sent unchanged."},
	{ID: goPasswordless.MetricCodeResendCapped, Name: "passwordless_code_resend_capped_total", Help: "Issue requests refused because the send cap was reached."},
	{ID: goPasswordless.MetricCodeVerifiedWithNonce, Name: "passwordless_code_verified_with_nonce_total", Help: "Codes verified from the browser that requested them."},
	{ID: goPasswordless.MetricCodeVerifiedWithoutNonce, Name: "passwordless_code_verified_without_nonce_total", Help: "Codes verified without a matching client nonce."},
	{ID: goPasswordless.MetricCodeExpired, Name: "passwordless_code_expired_total", Help: "Verifications of expired codes."},
	{ID: goPasswordless.MetricCodeIncorrect, Name: "passwordless_code_incorrect_total", Help: "Verifications with a wrong code."},
	{ID: goPasswordless.MetricCodeLocked, Name: "passwordless_code_locked_total", Help: "Verifications refused after too many wrong codes."},
	{ID: goPasswordless.MetricCodeNotFound, Name: "passwordless_code_not_found_total", Help: "Verifications with no active code."},
	{ID: goPasswordless.MetricCodeDecoyIssued, Name: "passwordless_code_decoy_issued_total", Help: "Code requests for unknown recipients answered with a decoy."},
	{ID: goPasswordless.MetricPasswordSuccess, Name: "passwordless_password_success_total", Help: "Successful password checks."},
	{ID: goPasswordless.MetricPasswordIncorrect, Name: "passwordless_password_incorrect_total", Help: "Failed password checks."},
	{ID: goPasswordless.MetricPasswordLocked, Name: "passwordless_password_locked_total", Help: "Password checks refused during a temporary lock."},
	{ID: goPasswordless.MetricPasswordRehashed, Name: "passwordless_password_rehashed_total", Help: "Stored hashes upgraded after a successful check."},
	{ID: goPasswordless.MetricPasswordSet, Name: "passwordless_password_set_total", Help: "Passwords set or changed."},
	{ID: goPasswordless.MetricPasswordPolicyRejected, Name: "passwordless_password_policy_rejected_total", Help: "New passwords rejected by the strength policy."},
	{ID: goPasswordless.MetricPasswordRemoved, Name: "passwordless_password_removed_total", Help: "Passwords removed."},
	{ID: goPasswordless.MetricDeviceTrusted, Name: "passwordless_device_trusted_total", Help: "Devices registered as trusted."},
	{ID: goPasswordless.MetricDeviceRevoked, Name: "passwordless_device_revoked_total", Help: "Trusted devices revoked."},
	{ID: goPasswordless.MetricSignInSuccess, Name: "passwordless_sign_in_success_total", Help: "Successful sign-ins."},
	{ID: goPasswordless.MetricSignInRejected, Name: "passwordless_sign_in_rejected_total", Help: "Rejected sign-ins."},
	{ID: goPasswordless.MetricSignInNonceRejected, Name: "passwordless_sign_in_nonce_rejected_total", Help: "Sign-ins rejected because a code was relayed to a new device."},
	{ID: goPasswordless.MetricRedirectReplaced, Name: "passwordless_redirect_replaced_total", Help: "Unsafe redirect targets replaced by the default."},
	{ID: goPasswordless.MetricRateLimitHit, Name: "passwordless_rate_limit_hit_total", Help: "Requests denied by the code request limiter."},
	{ID: goPasswordless.MetricDeliveryFailure, Name: "passwordless_delivery_failure_total", Help: "Messages the mailer failed to deliver."},
	{ID: goPasswordless.MetricStoreFailure, Name: "passwordless_store_failure_total", Help: "Store operations that failed."},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: goPasswordless.MetricPasswordCheckLatency, Name: "passwordless_password_check_latency_seconds", Help: "CheckPassword latency histogram."},
	{ID: goPasswordless.MetricSignInLatency, Name: "passwordless_sign_in_latency_seconds", Help: "SignIn latency histogram."},
}

// HistogramBounds are the upper bucket bounds in seconds, matching the
// engine's millisecond buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// NormalizeBuckets copies up to eight raw bucket counts into a fixed array.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
