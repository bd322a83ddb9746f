package goPasswordless

import "context"

// CookieSendSignInCode runs SendSignInCode and stores the returned client
// nonce in jar. Resends leave the existing nonce cookie alone.
func (e *Engine) CookieSendSignInCode(ctx context.Context, jar CookieJar, req SendCodeRequest) (IssueResult, error) {
	if e == nil || jar == nil {
		return IssueResult{}, ErrEngineNotReady
	}

	result, err := e.SendSignInCode(ctx, req)
	if result.ClientNonce != "" {
		ttl := result.ExpiresAt.Sub(e.now())
		if ttl > 0 {
			jar.Set(e.config.Cookies.NonceName, result.ClientNonce, ttl)
		}
	}
	return result, err
}

// CookieSignIn runs SignIn with the nonce and device id read from jar when
// the attempt does not carry them, and stores a newly trusted device id.
func (e *Engine) CookieSignIn(ctx context.Context, jar CookieJar, attempt SignInAttempt) (SignInResult, error) {
	if e == nil || jar == nil {
		return SignInResult{Reason: RejectServiceFailure}, ErrEngineNotReady
	}

	if attempt.ClientNonce == "" {
		attempt.ClientNonce, _ = jar.Get(e.config.Cookies.NonceName)
	}
	if attempt.DeviceID == "" {
		attempt.DeviceID, _ = jar.Get(e.config.Cookies.DeviceName)
	}

	result, err := e.SignIn(ctx, attempt)
	if result.NewDeviceID != "" {
		jar.Set(e.config.Cookies.DeviceName, result.NewDeviceID, e.config.Cookies.DeviceTTL)
	}
	return result, err
}
