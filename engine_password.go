package goPasswordless

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MrEthical07/goPasswordless/password"
	"go.uber.org/zap"
)

// CheckPassword verifies password for subjectID.
//
// A future lock refuses without touching the hash. A mismatch increments the
// failure counter; reaching Password.MaxFailedAttempts locks the password for
// Password.LockDuration. A match clears the counter and replaces stale
// hashes. Store failures never count as attempts.
func (e *Engine) CheckPassword(ctx context.Context, subjectID, pw string) (PasswordCheckResult, error) {
	if e == nil {
		return PasswordCheckResult{}, ErrEngineNotReady
	}
	start := time.Now()
	defer e.observeSince(MetricPasswordCheckLatency, start)

	if !validSubject(subjectID) {
		return PasswordCheckResult{}, fmt.Errorf("%w: subject", ErrInvalidInput)
	}

	record, err := e.passwords.Get(ctx, subjectID)
	if err != nil {
		return PasswordCheckResult{}, e.storeFailure("get_password", err)
	}
	if record == nil {
		return e.finishPasswordCheck(ctx, subjectID, PasswordCheckResult{Status: PasswordNotFound}), nil
	}

	now := e.now()
	if now.Before(record.TempLockUntil) {
		return e.finishPasswordCheck(ctx, subjectID, PasswordCheckResult{
			Status:      PasswordTemporarilyLocked,
			LockedUntil: record.TempLockUntil,
		}), nil
	}

	outcome, err := e.hasher.Check(pw, record.Hash)
	if err != nil {
		if !errors.Is(err, password.ErrEmptyPassword) && !errors.Is(err, password.ErrPasswordTooLong) {
			// The stored hash is unreadable; counting it against the user
			// would lock them out for our fault.
			return PasswordCheckResult{}, e.storeFailure("check_password", err)
		}
		outcome = password.Mismatch
	}

	if !outcome.Matched() {
		return e.recordPasswordFailure(ctx, subjectID, now)
	}
	return e.recordPasswordSuccess(ctx, subjectID, pw, record.Hash, outcome, now)
}

func (e *Engine) recordPasswordFailure(ctx context.Context, subjectID string, now time.Time) (PasswordCheckResult, error) {
	cfg := e.config.Password
	var result PasswordCheckResult

	err := e.passwords.Mutate(ctx, subjectID, func(current *PasswordRecord) (*PasswordRecord, error) {
		switch {
		case current == nil:
			result = PasswordCheckResult{Status: PasswordNotFound}
			return nil, errNoWrite
		case now.Before(current.TempLockUntil):
			result = PasswordCheckResult{Status: PasswordTemporarilyLocked, LockedUntil: current.TempLockUntil}
			return nil, errNoWrite
		}

		next := current.Clone()
		next.FailedAttemptCount++
		if next.FailedAttemptCount >= cfg.MaxFailedAttempts {
			next.TempLockUntil = now.Add(cfg.LockDuration)
			if cfg.ResetCounterOnLock {
				next.FailedAttemptCount = 0
			}
			result = PasswordCheckResult{Status: PasswordTemporarilyLocked, LockedUntil: next.TempLockUntil}
			return next, nil
		}
		result = PasswordCheckResult{Status: PasswordIncorrect}
		return next, nil
	})
	if err != nil && !errors.Is(err, errNoWrite) {
		return PasswordCheckResult{}, e.storeFailure("record_password_failure", err)
	}

	return e.finishPasswordCheck(ctx, subjectID, result), nil
}

func (e *Engine) recordPasswordSuccess(
	ctx context.Context,
	subjectID string,
	pw string,
	checkedHash string,
	outcome password.Outcome,
	now time.Time,
) (PasswordCheckResult, error) {
	var rehashed string
	if outcome == password.MatchNeedsRehash {
		h, err := e.hasher.Hash(pw)
		if err != nil {
			e.logger.Warn("password rehash failed", zap.String("subject_id", subjectID), zap.Error(err))
		} else {
			rehashed = h
		}
	}

	var result PasswordCheckResult
	err := e.passwords.Mutate(ctx, subjectID, func(current *PasswordRecord) (*PasswordRecord, error) {
		switch {
		case current == nil:
			result = PasswordCheckResult{Status: PasswordNotFound}
			return nil, errNoWrite
		case current.Hash != checkedHash:
			// Changed since it was checked; the old password no longer counts.
			result = PasswordCheckResult{Status: PasswordIncorrect}
			return nil, errNoWrite
		case now.Before(current.TempLockUntil):
			result = PasswordCheckResult{Status: PasswordTemporarilyLocked, LockedUntil: current.TempLockUntil}
			return nil, errNoWrite
		}

		result = PasswordCheckResult{Status: PasswordSuccess}
		if current.FailedAttemptCount == 0 && rehashed == "" {
			return nil, errNoWrite
		}
		next := current.Clone()
		next.FailedAttemptCount = 0
		if rehashed != "" {
			next.Hash = rehashed
			result.Rehashed = true
		}
		return next, nil
	})
	if err != nil && !errors.Is(err, errNoWrite) {
		return PasswordCheckResult{}, e.storeFailure("record_password_success", err)
	}
	if result.Rehashed {
		e.metricInc(MetricPasswordRehashed)
	}

	return e.finishPasswordCheck(ctx, subjectID, result), nil
}

func (e *Engine) finishPasswordCheck(ctx context.Context, subjectID string, result PasswordCheckResult) PasswordCheckResult {
	switch result.Status {
	case PasswordSuccess:
		e.metricInc(MetricPasswordSuccess)
	case PasswordIncorrect, PasswordNotFound:
		e.metricInc(MetricPasswordIncorrect)
	case PasswordTemporarilyLocked:
		e.metricInc(MetricPasswordLocked)
	}

	e.emitAudit(ctx, auditEventPasswordCheck, result.Status == PasswordSuccess, subjectID, "", result.Status.String(), nil, nil)
	return result
}

// SetPassword replaces the password of subjectID after checking the strength
// policy, and notifies the subject's recipient.
func (e *Engine) SetPassword(ctx context.Context, subjectID, newPassword string) (PasswordSetResult, error) {
	if e == nil {
		return PasswordSetResult{}, ErrEngineNotReady
	}
	if !validSubject(subjectID) {
		return PasswordSetResult{}, fmt.Errorf("%w: subject", ErrInvalidInput)
	}

	if !e.meetsStrength(newPassword) {
		e.metricInc(MetricPasswordPolicyRejected)
		e.emitAudit(ctx, auditEventPasswordSet, false, subjectID, "", PasswordDoesNotMeetStrengthRequirements.String(), nil, nil)
		return PasswordSetResult{Status: PasswordDoesNotMeetStrengthRequirements}, nil
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		e.logger.Error("password hash failed", zap.String("subject_id", subjectID), zap.Error(err))
		return PasswordSetResult{}, err
	}

	now := e.now()
	err = e.passwords.Mutate(ctx, subjectID, func(*PasswordRecord) (*PasswordRecord, error) {
		return &PasswordRecord{
			SubjectID:     subjectID,
			Hash:          hash,
			LastChangedAt: now,
		}, nil
	})
	if err != nil {
		err = e.storeFailure("set_password", err)
		e.emitAudit(ctx, auditEventPasswordSet, false, subjectID, "", PasswordSetServiceFailure.String(), err, nil)
		return PasswordSetResult{}, err
	}

	e.metricInc(MetricPasswordSet)
	e.emitAudit(ctx, auditEventPasswordSet, true, subjectID, "", PasswordSetSuccess.String(), nil, nil)
	e.notifySubject(ctx, subjectID, TemplatePasswordChanged)

	return PasswordSetResult{Status: PasswordSetSuccess}, nil
}

// RemovePassword deletes the password of subjectID, leaving code sign-in as
// the only method.
func (e *Engine) RemovePassword(ctx context.Context, subjectID string) (PasswordRemoveResult, error) {
	if e == nil {
		return PasswordRemoveResult{}, ErrEngineNotReady
	}
	if !validSubject(subjectID) {
		return PasswordRemoveResult{}, fmt.Errorf("%w: subject", ErrInvalidInput)
	}

	status := PasswordRemoveNotFound
	err := e.passwords.Mutate(ctx, subjectID, func(current *PasswordRecord) (*PasswordRecord, error) {
		if current == nil {
			status = PasswordRemoveNotFound
			return nil, errNoWrite
		}
		status = PasswordRemoved
		return nil, nil
	})
	if err != nil && !errors.Is(err, errNoWrite) {
		return PasswordRemoveResult{}, e.storeFailure("remove_password", err)
	}

	e.emitAudit(ctx, auditEventPasswordRemoved, status == PasswordRemoved, subjectID, "", status.String(), nil, nil)
	if status == PasswordRemoved {
		e.metricInc(MetricPasswordRemoved)
		e.notifySubject(ctx, subjectID, TemplatePasswordRemoved)
	}

	return PasswordRemoveResult{Status: status}, nil
}

func (e *Engine) meetsStrength(pw string) bool {
	if !utf8.ValidString(pw) || strings.TrimSpace(pw) == "" {
		return false
	}
	n := utf8.RuneCountInString(pw)
	return n >= e.config.Password.MinLength && n <= e.config.Password.MaxLength
}

// notifySubject mails a notice to the subject's recipient. Failures are
// logged; the change they report has already happened.
func (e *Engine) notifySubject(ctx context.Context, subjectID string, tmpl Template) {
	if e.mailer == nil {
		return
	}

	recipient, found, err := e.accounts.RecipientBySubject(ctx, subjectID)
	if err != nil {
		e.logger.Warn("notice recipient lookup failed", zap.String("subject_id", subjectID), zap.Error(err))
		return
	}
	if !found || recipient == "" {
		return
	}

	if err := e.mailer.Send(ctx, Message{To: recipient, Template: tmpl}); err != nil {
		e.metricInc(MetricDeliveryFailure)
		e.logger.Warn("notice delivery failed",
			zap.String("subject_id", subjectID),
			zap.String("template", string(tmpl)),
			zap.Error(err),
		)
		e.emitAudit(ctx, auditEventDeliveryFailed, false, subjectID, recipient, string(tmpl), fmt.Errorf("%w: %v", ErrDeliveryFailed, err), nil)
	}
}
