package goPasswordless

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goPasswordless/internal/codes"
	"github.com/MrEthical07/goPasswordless/internal/limiters"
	"go.uber.org/zap"
)

// SendCodeRequest asks for a sign-in code to be mailed to Recipient.
type SendCodeRequest struct {
	Recipient   string
	Validity    time.Duration
	RedirectURL string
}

// SendSignInCode throttles the request, issues or resends the recipient's
// code and mails it.
//
// Recipients without an account are mailed an account-not-found notice and
// the caller receives a decoy result shaped like a fresh issuance, so the
// response does not reveal whether the account exists. A delivery failure
// returns the result together with an error wrapping ErrDeliveryFailed; the
// issued code is kept.
func (e *Engine) SendSignInCode(ctx context.Context, req SendCodeRequest) (IssueResult, error) {
	if e == nil || e.mailer == nil {
		return IssueResult{}, ErrEngineNotReady
	}

	recipient, err := normalizeRecipient(req.Recipient)
	if err != nil {
		return IssueResult{}, err
	}

	if err := e.limiter.CheckRequest(ctx, recipient, clientIPFromContext(ctx)); err != nil {
		if errors.Is(err, limiters.ErrCodeRequestRateLimited) {
			e.emitRateLimit(ctx, recipient, "code_request")
			return IssueResult{Status: IssueTooManyRequests}, nil
		}
		return IssueResult{}, e.storeFailure("code_request_limiter", err)
	}

	subjectID, found, err := e.accounts.SubjectByRecipient(ctx, recipient)
	if err != nil {
		e.logger.Error("account lookup failed", zap.Error(err))
		return IssueResult{}, fmt.Errorf("%w: %v", ErrAccountLookupFailed, err)
	}

	if !found {
		result, err := e.decoyIssue(req.Validity)
		if err != nil {
			return IssueResult{}, err
		}
		e.metricInc(MetricCodeDecoyIssued)
		return result, e.deliver(ctx, "", Message{To: recipient, Template: TemplateAccountNotFound})
	}

	result, err := e.IssueCode(ctx, IssueRequest{
		Recipient:   recipient,
		Validity:    req.Validity,
		RedirectURL: req.RedirectURL,
	})
	if err != nil || result.Status == IssueTooManyRequests {
		return result, err
	}

	msg := Message{
		To:        recipient,
		Template:  TemplateSignInCode,
		ShortCode: result.ShortCode,
		Link:      e.config.Codes.LinkBaseURL + result.LongCode,
		ExpiresAt: result.ExpiresAt,
	}
	return result, e.deliver(ctx, subjectID, msg)
}

// decoyIssue returns a result with fresh random codes that are never stored.
func (e *Engine) decoyIssue(validity time.Duration) (IssueResult, error) {
	if validity == 0 {
		validity = e.config.Codes.DefaultValidity
	}
	if validity < 0 || validity > e.config.Codes.MaxValidity {
		return IssueResult{}, fmt.Errorf("%w: validity", ErrInvalidInput)
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

	return IssueResult{
		Status:      IssueIssued,
		ShortCode:   shortCode,
		LongCode:    longCode,
		ClientNonce: nonce,
		ExpiresAt:   e.now().Add(validity),
	}, nil
}

func (e *Engine) deliver(ctx context.Context, subjectID string, msg Message) error {
	if err := e.mailer.Send(ctx, msg); err != nil {
		e.metricInc(MetricDeliveryFailure)
		e.logger.Warn("message delivery failed", zap.String("template", string(msg.Template)), zap.Error(err))
		err = fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
		e.emitAudit(ctx, auditEventDeliveryFailed, false, subjectID, msg.To, string(msg.Template), err, nil)
		return err
	}
	return nil
}
