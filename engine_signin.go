package goPasswordless

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// SignInMethod names the credential presented in a sign-in attempt.
type SignInMethod uint8

const (
	// MethodCode is a typed short code.
	MethodCode SignInMethod = iota + 1
	// MethodLink is the long code of a mailed link.
	MethodLink
	// MethodPassword is a password.
	MethodPassword
)

// String returns the value written to the session ticket's amr claim.
func (m SignInMethod) String() string {
	switch m {
	case MethodCode:
		return "otp"
	case MethodLink:
		return "link"
	case MethodPassword:
		return "pwd"
	default:
		return "unknown"
	}
}

// SignInOptions carry the browser state and preferences of an attempt.
type SignInOptions struct {
	// ClientNonce is the nonce handed out at issuance, read back from the
	// requesting browser.
	ClientNonce string
	// DeviceID is the raw id from the device cookie, if any.
	DeviceID          string
	DeviceDescription string
	// StaySignedIn asks for the long lifetime and trusts this device.
	StaySignedIn bool
	// RedirectURL is used when the code record carries none.
	RedirectURL string
}

// SignInAttempt is one credential presentation. Which credential fields are
// read depends on Method.
type SignInAttempt struct {
	Method    SignInMethod
	Recipient string
	ShortCode string
	LongCode  string
	Password  string
	SignInOptions
}

// SignInStatus is the final state of an attempt. The zero value is
// SignInRejected.
type SignInStatus uint8

const (
	SignInRejected SignInStatus = iota
	SignedIn
)

func (s SignInStatus) String() string {
	if s == SignedIn {
		return "signed_in"
	}
	return "rejected"
}

// RejectReason explains a rejection. Nonce mismatches on another trusted
// browser are reported as RejectCodeExpired, unknown accounts on the
// password path as RejectPasswordIncorrect and on the code paths as
// RejectCodeNotFound. RejectAccountNotFound only appears in audit events.
type RejectReason uint8

const (
	RejectNone RejectReason = iota
	RejectCodeNotFound
	RejectCodeExpired
	RejectCodeIncorrect
	RejectShortCodeLocked
	RejectPasswordIncorrect
	RejectPasswordLocked
	RejectAccountNotFound
	RejectServiceFailure
	RejectInvalidInput
)

func (r RejectReason) String() string {
	switch r {
	case RejectNone:
		return "none"
	case RejectCodeNotFound:
		return "code_not_found"
	case RejectCodeExpired:
		return "code_expired"
	case RejectCodeIncorrect:
		return "code_incorrect"
	case RejectShortCodeLocked:
		return "short_code_locked"
	case RejectPasswordIncorrect:
		return "password_incorrect"
	case RejectPasswordLocked:
		return "password_locked"
	case RejectAccountNotFound:
		return "account_not_found"
	case RejectInvalidInput:
		return "invalid_input"
	default:
		return "service_failure"
	}
}

// SignInResult is the decision for an attempt. On SignedIn the session
// fields are set; NewDeviceID is non-empty when this browser was just
// trusted and must be stored in the device cookie.
type SignInResult struct {
	Status           SignInStatus
	Reason           RejectReason
	SubjectID        string
	DeviceTrusted    bool
	NewDeviceID      string
	SessionLifetime  time.Duration
	SessionExpiresAt time.Time
	SessionTicket    string
	RedirectURL      string
	// LockedUntil is set for RejectPasswordLocked.
	LockedUntil time.Time

	// auditReason, when set, is recorded instead of Reason.
	auditReason RejectReason
}

// Session is a validated session ticket.
type Session struct {
	SubjectID     string
	Methods       []string
	TrustedDevice bool
	ExpiresAt     time.Time
	TicketID      string
}

// SignIn runs an attempt through credential check, device evaluation and
// session grant.
//
// On the code and link paths, a browser that is not trusted and did not
// present the issuing nonce is rejected when the subject already has trusted
// devices. The rejection is indistinguishable from an expired code.
func (e *Engine) SignIn(ctx context.Context, attempt SignInAttempt) (SignInResult, error) {
	if e == nil {
		return SignInResult{Reason: RejectServiceFailure}, ErrEngineNotReady
	}
	start := time.Now()
	defer e.observeSince(MetricSignInLatency, start)

	var (
		subjectID string
		nonceOK   bool
		redirect  string
		rejected  *SignInResult
		err       error
	)

	switch attempt.Method {
	case MethodCode, MethodLink:
		subjectID, nonceOK, redirect, rejected, err = e.checkCodeCredential(ctx, attempt)
	case MethodPassword:
		subjectID, rejected, err = e.checkPasswordCredential(ctx, attempt)
	default:
		err = fmt.Errorf("%w: sign-in method", ErrInvalidInput)
		rejected = &SignInResult{Reason: RejectInvalidInput}
	}
	if rejected != nil {
		return e.reject(ctx, attempt, *rejected), err
	}

	return e.grant(ctx, attempt, subjectID, nonceOK, redirect)
}

// SignInWithCode signs in with a typed short code.
func (e *Engine) SignInWithCode(ctx context.Context, recipient, shortCode string, opts SignInOptions) (SignInResult, error) {
	return e.SignIn(ctx, SignInAttempt{
		Method:        MethodCode,
		Recipient:     recipient,
		ShortCode:     shortCode,
		SignInOptions: opts,
	})
}

// SignInWithLongCode signs in with the long code of a mailed link.
func (e *Engine) SignInWithLongCode(ctx context.Context, longCode string, opts SignInOptions) (SignInResult, error) {
	return e.SignIn(ctx, SignInAttempt{
		Method:        MethodLink,
		LongCode:      longCode,
		SignInOptions: opts,
	})
}

// SignInWithPassword signs in with a password.
func (e *Engine) SignInWithPassword(ctx context.Context, recipient, pw string, opts SignInOptions) (SignInResult, error) {
	return e.SignIn(ctx, SignInAttempt{
		Method:        MethodPassword,
		Recipient:     recipient,
		Password:      pw,
		SignInOptions: opts,
	})
}

func (e *Engine) checkCodeCredential(ctx context.Context, attempt SignInAttempt) (string, bool, string, *SignInResult, error) {
	var (
		vr  VerifyResult
		err error
	)
	if attempt.Method == MethodCode {
		vr, err = e.VerifyCode(ctx, VerifyRequest{
			Recipient:   attempt.Recipient,
			ShortCode:   attempt.ShortCode,
			ClientNonce: attempt.ClientNonce,
		})
	} else {
		vr, err = e.VerifyLongCode(ctx, LongCodeRequest{
			LongCode:    attempt.LongCode,
			ClientNonce: attempt.ClientNonce,
		})
	}
	if err != nil {
		reason := RejectServiceFailure
		if vr.Status == VerifyNotFound {
			reason = RejectInvalidInput
		}
		return "", false, "", &SignInResult{Reason: reason}, err
	}
	if !vr.Status.Verified() {
		return "", false, "", &SignInResult{Reason: rejectReasonForVerify(vr.Status)}, nil
	}

	subjectID, found, err := e.accounts.SubjectByRecipient(ctx, vr.SentTo)
	if err != nil {
		e.logger.Error("account lookup failed", zap.Error(err))
		return "", false, "", &SignInResult{Reason: RejectServiceFailure}, fmt.Errorf("%w: %v", ErrAccountLookupFailed, err)
	}
	if !found {
		return "", false, "", &SignInResult{Reason: RejectCodeNotFound, auditReason: RejectAccountNotFound}, nil
	}

	return subjectID, vr.Status == VerifiedWithNonce, vr.RedirectURL, nil, nil
}

func (e *Engine) checkPasswordCredential(ctx context.Context, attempt SignInAttempt) (string, *SignInResult, error) {
	recipient, err := normalizeRecipient(attempt.Recipient)
	if err != nil {
		return "", &SignInResult{Reason: RejectInvalidInput}, err
	}

	subjectID, found, err := e.accounts.SubjectByRecipient(ctx, recipient)
	if err != nil {
		e.logger.Error("account lookup failed", zap.Error(err))
		return "", &SignInResult{Reason: RejectServiceFailure}, fmt.Errorf("%w: %v", ErrAccountLookupFailed, err)
	}
	if !found {
		e.burnPasswordCheck(attempt.Password)
		return "", &SignInResult{Reason: RejectPasswordIncorrect}, nil
	}

	pr, err := e.CheckPassword(ctx, subjectID, attempt.Password)
	if err != nil {
		return "", &SignInResult{Reason: RejectServiceFailure}, err
	}

	switch pr.Status {
	case PasswordSuccess:
		return subjectID, nil, nil
	case PasswordTemporarilyLocked:
		return "", &SignInResult{Reason: RejectPasswordLocked, LockedUntil: pr.LockedUntil}, nil
	case PasswordNotFound:
		e.burnPasswordCheck(attempt.Password)
		return "", &SignInResult{Reason: RejectPasswordIncorrect}, nil
	case PasswordIncorrect:
		return "", &SignInResult{Reason: RejectPasswordIncorrect}, nil
	default:
		return "", &SignInResult{Reason: RejectServiceFailure}, nil
	}
}

// burnPasswordCheck spends one hash evaluation so that accounts without a
// password answer in the same time as wrong passwords.
func (e *Engine) burnPasswordCheck(pw string) {
	if e.dummyHash == "" || pw == "" {
		return
	}
	_, _ = e.hasher.Check(pw, e.dummyHash)
}

func rejectReasonForVerify(status VerifyStatus) RejectReason {
	switch status {
	case VerifyExpired:
		return RejectCodeExpired
	case VerifyCodeIncorrect:
		return RejectCodeIncorrect
	case VerifyShortCodeLocked:
		return RejectShortCodeLocked
	case VerifyServiceFailure:
		return RejectServiceFailure
	default:
		return RejectCodeNotFound
	}
}

func (e *Engine) grant(ctx context.Context, attempt SignInAttempt, subjectID string, nonceOK bool, recordRedirect string) (SignInResult, error) {
	trusted, err := e.DeviceIsTrusted(ctx, subjectID, attempt.DeviceID)
	if err != nil {
		return e.reject(ctx, attempt, SignInResult{Reason: RejectServiceFailure, SubjectID: subjectID}), err
	}

	if !trusted && attempt.Method != MethodPassword && !nonceOK {
		count, err := e.devices.CountDevices(ctx, subjectID)
		if err != nil {
			err = e.storeFailure("count_devices", err)
			return e.reject(ctx, attempt, SignInResult{Reason: RejectServiceFailure, SubjectID: subjectID}), err
		}
		if count > 0 {
			e.metricInc(MetricSignInNonceRejected)
			return e.reject(ctx, attempt, SignInResult{Reason: RejectCodeExpired, SubjectID: subjectID}), nil
		}
	}

	result := SignInResult{
		Status:        SignedIn,
		SubjectID:     subjectID,
		DeviceTrusted: trusted,
	}

	if attempt.StaySignedIn && !trusted {
		deviceID, err := e.AuthorizeDevice(ctx, subjectID, attempt.DeviceID, attempt.DeviceDescription)
		if err != nil {
			return e.reject(ctx, attempt, SignInResult{Reason: RejectServiceFailure, SubjectID: subjectID}), err
		}
		result.NewDeviceID = deviceID
		result.DeviceTrusted = true
	}

	result.SessionLifetime = e.config.Session.DefaultLifetime
	if attempt.StaySignedIn || (attempt.Method == MethodLink && trusted) {
		result.SessionLifetime = e.config.Session.MaxLifetime
	}
	result.SessionExpiresAt = e.now().Add(result.SessionLifetime)

	target := recordRedirect
	if target == "" {
		target = attempt.RedirectURL
	}
	redirect, accepted := e.config.sanitizeRedirect(target)
	if !accepted && target != "" {
		e.metricInc(MetricRedirectReplaced)
		e.logger.Info("redirect replaced", zap.String("subject_id", subjectID))
	}
	result.RedirectURL = redirect

	ticket, err := e.tickets.CreateSession(subjectID, []string{attempt.Method.String()}, result.DeviceTrusted, result.SessionLifetime)
	if err != nil {
		e.logger.Error("session ticket signing failed", zap.String("subject_id", subjectID), zap.Error(err))
		return e.reject(ctx, attempt, SignInResult{Reason: RejectServiceFailure, SubjectID: subjectID}), err
	}
	result.SessionTicket = ticket

	e.metricInc(MetricSignInSuccess)
	e.emitAudit(ctx, auditEventSignInSuccess, true, subjectID, "", result.Status.String(), nil, func() map[string]string {
		m := map[string]string{
			"method":         attempt.Method.String(),
			"device_trusted": fmt.Sprint(result.DeviceTrusted),
			"lifetime":       result.SessionLifetime.String(),
		}
		if result.NewDeviceID != "" {
			m["device_registered"] = "true"
		}
		return m
	})

	return result, nil
}

func (e *Engine) reject(ctx context.Context, attempt SignInAttempt, result SignInResult) SignInResult {
	result.Status = SignInRejected
	e.metricInc(MetricSignInRejected)
	outcome := result.Reason
	if result.auditReason != RejectNone {
		outcome = result.auditReason
		result.auditReason = RejectNone
	}
	e.emitAudit(ctx, auditEventSignInRejected, false, result.SubjectID, "", outcome.String(), nil, func() map[string]string {
		return map[string]string{"method": attempt.Method.String()}
	})
	// The subject of a rejected attempt is not the caller's business.
	result.SubjectID = ""
	return result
}

// ParseSessionTicket validates a ticket minted by SignIn.
func (e *Engine) ParseSessionTicket(ctx context.Context, ticket string) (*Session, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tickets.ParseSession(ticket)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionInvalid, err)
	}

	s := &Session{
		SubjectID:     claims.Subject,
		Methods:       claims.AMR,
		TrustedDevice: claims.TrustedDevice,
		TicketID:      claims.ID,
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}
