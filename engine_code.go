package goPasswordless

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrEthical07/goPasswordless/internal/codes"
)

// IssueCode creates or resends the one-time code for req.Recipient.
//
// While the recipient's current code has more than Codes.ResendMinRemaining
// and less than Codes.DefaultValidity left, the same code is resent and its
// SentCount grows; past Codes.MaxSends the result is IssueTooManyRequests and
// nothing is written. Otherwise a fresh code and client nonce replace any
// existing record. The client nonce is returned only for fresh codes.
//
// IssueCode does not deliver anything; see [Engine.SendSignInCode].
func (e *Engine) IssueCode(ctx context.Context, req IssueRequest) (IssueResult, error) {
	if e == nil {
		return IssueResult{}, ErrEngineNotReady
	}

	recipient, err := normalizeRecipient(req.Recipient)
	if err != nil {
		return IssueResult{}, err
	}
	validity := req.Validity
	if validity == 0 {
		validity = e.config.Codes.DefaultValidity
	}
	if validity < 0 || validity > e.config.Codes.MaxValidity {
		return IssueResult{}, fmt.Errorf("%w: validity", ErrInvalidInput)
	}
	if len(req.RedirectURL) > maxRedirectLength {
		return IssueResult{}, fmt.Errorf("%w: redirect url", ErrInvalidInput)
	}

	longCode, err := codes.NewLongCode()
	if err != nil {
		return IssueResult{}, err
	}
	shortCode, err := codes.ShortCodeOf(longCode)
	if err != nil {
		return IssueResult{}, err
	}
	nonce, err := codes.NewNonce()
	if err != nil {
		return IssueResult{}, err
	}

	now := e.now()
	cfg := e.config.Codes
	var result IssueResult

	err = e.codes.Mutate(ctx, recipient, func(current *OneTimeCode) (*OneTimeCode, error) {
		if current != nil && now.Before(current.ExpiresAt) {
			remaining := current.ExpiresAt.Sub(now)
			if remaining > cfg.ResendMinRemaining && remaining < cfg.DefaultValidity {
				// SentCount counts resends; the first delivery is not one.
				if current.SentCount >= cfg.MaxSends {
					result = IssueResult{Status: IssueTooManyRequests, SentCount: current.SentCount}
					return nil, errNoWrite
				}
				next := current.Clone()
				next.SentCount++
				result = IssueResult{
					Status:    IssueResent,
					ShortCode: next.ShortCode,
					LongCode:  next.LongCode,
					ExpiresAt: next.ExpiresAt,
					SentCount: next.SentCount,
				}
				return next, nil
			}
		}

		next := &OneTimeCode{
			SentTo:          recipient,
			ClientNonceHash: e.nonceHash(recipient, nonce),
			ShortCode:       shortCode,
			LongCode:        longCode,
			ExpiresAt:       now.Add(validity),
			RedirectURL:     req.RedirectURL,
		}
		result = IssueResult{
			Status:      IssueIssued,
			ShortCode:   shortCode,
			LongCode:    longCode,
			ClientNonce: nonce,
			ExpiresAt:   next.ExpiresAt,
		}
		return next, nil
	})
	if err != nil && !errors.Is(err, errNoWrite) {
		err = e.storeFailure("issue_code", err)
		e.emitAudit(ctx, auditEventCodeIssued, false, "", recipient, IssueServiceFailure.String(), err, nil)
		return IssueResult{Status: IssueServiceFailure}, err
	}

	switch result.Status {
	case IssueIssued:
		e.metricInc(MetricCodeIssued)
		e.emitAudit(ctx, auditEventCodeIssued, true, "", recipient, result.Status.String(), nil, nil)
	case IssueResent:
		e.metricInc(MetricCodeResent)
		e.emitAudit(ctx, auditEventCodeResent, true, "", recipient, result.Status.String(), nil, func() map[string]string {
			return map[string]string{"sent_count": strconv.Itoa(result.SentCount)}
		})
	case IssueTooManyRequests:
		e.metricInc(MetricCodeResendCapped)
		e.emitAudit(ctx, auditEventCodeIssueDenied, false, "", recipient, result.Status.String(), nil, func() map[string]string {
			return map[string]string{"reason": "resend_cap"}
		})
	}

	return result, nil
}

// VerifyCode checks a typed short code. A match consumes the record before
// the client nonce is compared, so a code can be redeemed once whatever the
// nonce outcome. Mismatches count toward Codes.MaxFailedAttempts, after which
// the short code is locked while the long code stays usable.
func (e *Engine) VerifyCode(ctx context.Context, req VerifyRequest) (VerifyResult, error) {
	if e == nil {
		return VerifyResult{Status: VerifyServiceFailure}, ErrEngineNotReady
	}

	recipient, err := normalizeRecipient(req.Recipient)
	if err != nil {
		return VerifyResult{Status: VerifyNotFound}, err
	}
	if !codes.IsShortCode(req.ShortCode) {
		return e.finishVerify(ctx, VerifyResult{Status: VerifyCodeIncorrect, SentTo: recipient}, nil, req.ClientNonce)
	}

	now := e.now()
	maxFailed := e.config.Codes.MaxFailedAttempts
	var (
		status   VerifyStatus
		consumed *OneTimeCode
	)

	err = e.codes.Mutate(ctx, recipient, func(current *OneTimeCode) (*OneTimeCode, error) {
		consumed = nil
		switch {
		case current == nil:
			status = VerifyNotFound
			return nil, errNoWrite
		case !now.Before(current.ExpiresAt):
			status = VerifyExpired
			return nil, errNoWrite
		case current.FailedAttemptCount >= maxFailed:
			status = VerifyShortCodeLocked
			return nil, errNoWrite
		case subtle.ConstantTimeCompare([]byte(current.ShortCode), []byte(req.ShortCode)) != 1:
			next := current.Clone()
			next.FailedAttemptCount++
			status = VerifyCodeIncorrect
			return next, nil
		default:
			consumed = current.Clone()
			return nil, nil
		}
	})
	if err != nil && !errors.Is(err, errNoWrite) {
		err = e.storeFailure("verify_code", err)
		e.emitAudit(ctx, auditEventCodeRejected, false, "", recipient, VerifyServiceFailure.String(), err, nil)
		return VerifyResult{Status: VerifyServiceFailure, SentTo: recipient}, err
	}

	return e.finishVerify(ctx, VerifyResult{Status: status, SentTo: recipient}, consumed, req.ClientNonce)
}

// VerifyLongCode checks the long code from a mailed link. It is not subject
// to attempt counting.
func (e *Engine) VerifyLongCode(ctx context.Context, req LongCodeRequest) (VerifyResult, error) {
	if e == nil {
		return VerifyResult{Status: VerifyServiceFailure}, ErrEngineNotReady
	}
	if !codes.IsLongCode(req.LongCode) {
		return e.finishVerify(ctx, VerifyResult{Status: VerifyNotFound}, nil, req.ClientNonce)
	}

	sentTo, err := e.codes.LookupLongCode(ctx, req.LongCode)
	if err != nil {
		err = e.storeFailure("lookup_long_code", err)
		return VerifyResult{Status: VerifyServiceFailure}, err
	}
	if sentTo == "" {
		return e.finishVerify(ctx, VerifyResult{Status: VerifyNotFound}, nil, req.ClientNonce)
	}

	now := e.now()
	var (
		status   VerifyStatus
		consumed *OneTimeCode
	)

	err = e.codes.Mutate(ctx, sentTo, func(current *OneTimeCode) (*OneTimeCode, error) {
		consumed = nil
		switch {
		case current == nil:
			status = VerifyNotFound
			return nil, errNoWrite
		case subtle.ConstantTimeCompare([]byte(current.LongCode), []byte(req.LongCode)) != 1:
			// Replaced by a newer code since the lookup.
			status = VerifyNotFound
			return nil, errNoWrite
		case !now.Before(current.ExpiresAt):
			status = VerifyExpired
			return nil, errNoWrite
		default:
			consumed = current.Clone()
			return nil, nil
		}
	})
	if err != nil && !errors.Is(err, errNoWrite) {
		err = e.storeFailure("verify_long_code", err)
		return VerifyResult{Status: VerifyServiceFailure, SentTo: sentTo}, err
	}

	return e.finishVerify(ctx, VerifyResult{Status: status, SentTo: sentTo}, consumed, req.ClientNonce)
}

// finishVerify evaluates the nonce of a consumed record and records the
// outcome.
func (e *Engine) finishVerify(ctx context.Context, result VerifyResult, consumed *OneTimeCode, nonce string) (VerifyResult, error) {
	if consumed != nil {
		result.RedirectURL = consumed.RedirectURL
		if e.nonceMatches(consumed, nonce) {
			result.Status = VerifiedWithNonce
		} else {
			result.Status = VerifiedWithoutNonce
		}
	}

	switch result.Status {
	case VerifiedWithNonce:
		e.metricInc(MetricCodeVerifiedWithNonce)
	case VerifiedWithoutNonce:
		e.metricInc(MetricCodeVerifiedWithoutNonce)
	case VerifyExpired:
		e.metricInc(MetricCodeExpired)
	case VerifyCodeIncorrect:
		e.metricInc(MetricCodeIncorrect)
	case VerifyShortCodeLocked:
		e.metricInc(MetricCodeLocked)
	default:
		e.metricInc(MetricCodeNotFound)
	}

	if result.Status.Verified() {
		e.emitAudit(ctx, auditEventCodeVerified, true, "", result.SentTo, result.Status.String(), nil, nil)
	} else {
		e.emitAudit(ctx, auditEventCodeRejected, false, "", result.SentTo, result.Status.String(), nil, nil)
	}

	return result, nil
}
