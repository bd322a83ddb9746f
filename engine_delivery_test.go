package goPasswordless

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSendSignInCodeKnownRecipient(t *testing.T) {
	e, env := newTestEngine(t)

	res, err := e.SendSignInCode(context.Background(), SendCodeRequest{Recipient: "alice@example.com", RedirectURL: "/after"})
	if err != nil {
		t.Fatalf("SendSignInCode failed: %v", err)
	}
	if res.Status != IssueIssued {
		t.Fatalf("expected issued, got %s", res.Status)
	}

	msg := env.mailer.last(t)
	if msg.Template != TemplateSignInCode || msg.To != "alice@example.com" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if msg.ShortCode != res.ShortCode {
		t.Fatal("expected short code in message")
	}
	if msg.Link != "https://id.example.com/link?c="+res.LongCode {
		t.Fatalf("unexpected link %q", msg.Link)
	}
	if !msg.ExpiresAt.Equal(res.ExpiresAt) {
		t.Fatal("expected expiry in message")
	}
}

func TestSendSignInCodeUnknownRecipientIsDecoy(t *testing.T) {
	e, env := newTestEngine(t)
	ctx := context.Background()

	res, err := e.SendSignInCode(ctx, SendCodeRequest{Recipient: "nobody@example.com"})
	if err != nil {
		t.Fatalf("SendSignInCode failed: %v", err)
	}
	if res.Status != IssueIssued || res.ClientNonce == "" || len(res.ShortCode) != 6 {
		t.Fatalf("expected decoy shaped like an issuance, got %+v", res)
	}
	if msg := env.mailer.last(t); msg.Template != TemplateAccountNotFound || msg.ShortCode != "" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if peekCode(t, e, "nobody@example.com") != nil {
		t.Fatal("decoy must not be stored")
	}

	vr, err := e.VerifyLongCode(ctx, LongCodeRequest{LongCode: res.LongCode})
	if err != nil {
		t.Fatalf("VerifyLongCode failed: %v", err)
	}
	if vr.Status != VerifyNotFound {
		t.Fatalf("expected decoy code unusable, got %s", vr.Status)
	}
}

func TestSendSignInCodeDeliveryFailureKeepsCode(t *testing.T) {
	e, env := newTestEngine(t)
	ctx := context.Background()
	env.mailer.err = errors.New("smtp down")

	res, err := e.SendSignInCode(ctx, SendCodeRequest{Recipient: "alice@example.com"})
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
	if res.Status != IssueIssued {
		t.Fatalf("expected issued result alongside error, got %s", res.Status)
	}

	vr, err := e.VerifyCode(ctx, VerifyRequest{Recipient: "alice@example.com", ShortCode: res.ShortCode, ClientNonce: res.ClientNonce})
	if err != nil {
		t.Fatalf("VerifyCode failed: %v", err)
	}
	if vr.Status != VerifiedWithNonce {
		t.Fatalf("expected code kept after delivery failure, got %s", vr.Status)
	}
}

func TestSendSignInCodeRecipientThrottle(t *testing.T) {
	e, env := newTestEngine(t, func(cfg *Config) {
		cfg.RequestLimits.MaxPerRecipient = 2
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := e.SendSignInCode(ctx, SendCodeRequest{Recipient: "alice@example.com"}); err != nil {
			t.Fatalf("SendSignInCode failed: %v", err)
		}
		env.clock.Advance(10 * time.Second)
	}

	res, err := e.SendSignInCode(ctx, SendCodeRequest{Recipient: "alice@example.com"})
	if err != nil {
		t.Fatalf("SendSignInCode failed: %v", err)
	}
	if res.Status != IssueTooManyRequests {
		t.Fatalf("expected throttled, got %s", res.Status)
	}
	if got := len(env.mailer.sent()); got != 2 {
		t.Fatalf("expected 2 messages, got %d", got)
	}
	if got := e.MetricsSnapshot().Counters[MetricRateLimitHit]; got != 1 {
		t.Fatalf("expected rate limit metric, got %d", got)
	}

	env.mr.FastForward(16 * time.Minute)
	res, err = e.SendSignInCode(ctx, SendCodeRequest{Recipient: "alice@example.com"})
	if err != nil {
		t.Fatalf("SendSignInCode failed: %v", err)
	}
	if res.Status == IssueTooManyRequests {
		t.Fatal("expected window to reset")
	}
}

func TestSendSignInCodeIPThrottle(t *testing.T) {
	e, _ := newTestEngine(t, func(cfg *Config) {
		cfg.RequestLimits.MaxPerIP = 2
	})
	ctx := WithClientIP(context.Background(), "203.0.113.9")

	for _, r := range []string{"alice@example.com", "bob@example.com"} {
		res, err := e.SendSignInCode(ctx, SendCodeRequest{Recipient: r})
		if err != nil {
			t.Fatalf("SendSignInCode failed: %v", err)
		}
		if res.Status != IssueIssued {
			t.Fatalf("expected issued, got %s", res.Status)
		}
	}

	res, err := e.SendSignInCode(ctx, SendCodeRequest{Recipient: "carol@example.com"})
	if err != nil {
		t.Fatalf("SendSignInCode failed: %v", err)
	}
	if res.Status != IssueTooManyRequests {
		t.Fatalf("expected ip throttle, got %s", res.Status)
	}
}

func TestSendSignInCodeWithoutMailer(t *testing.T) {
	_, rdb := newTestRedis(t)

	e, err := New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithAccountProvider(&mapAccounts{}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer e.Close()

	if _, err := e.SendSignInCode(context.Background(), SendCodeRequest{Recipient: "alice@example.com"}); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}

func TestCookieFlowBindsNonceAndDevice(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	jar := newMapJar()

	trustDevice(t, e, "sub-alice")

	res, err := e.CookieSendSignInCode(ctx, jar, SendCodeRequest{Recipient: "alice@example.com"})
	if err != nil {
		t.Fatalf("CookieSendSignInCode failed: %v", err)
	}
	if jar.values["pwl_nonce"] != res.ClientNonce {
		t.Fatal("expected nonce cookie set")
	}
	if jar.ttls["pwl_nonce"] != 5*time.Minute {
		t.Fatalf("expected nonce cookie to live as long as the code, got %v", jar.ttls["pwl_nonce"])
	}

	out, err := e.CookieSignIn(ctx, jar, SignInAttempt{
		Method:        MethodCode,
		Recipient:     "alice@example.com",
		ShortCode:     res.ShortCode,
		SignInOptions: SignInOptions{StaySignedIn: true},
	})
	if err != nil {
		t.Fatalf("CookieSignIn failed: %v", err)
	}
	if out.Status != SignedIn {
		t.Fatalf("expected signed in via nonce cookie, got %s", out.Reason)
	}
	if jar.values["pwl_device"] != out.NewDeviceID || out.NewDeviceID == "" {
		t.Fatal("expected device cookie set")
	}
	if jar.ttls["pwl_device"] != 400*24*time.Hour {
		t.Fatalf("unexpected device cookie ttl %v", jar.ttls["pwl_device"])
	}

	// A second browser without cookies is refused once devices are trusted.
	res, err = e.CookieSendSignInCode(ctx, newMapJar(), SendCodeRequest{Recipient: "alice@example.com"})
	if err != nil {
		t.Fatalf("CookieSendSignInCode failed: %v", err)
	}
	out, err = e.CookieSignIn(ctx, newMapJar(), SignInAttempt{Method: MethodCode, Recipient: "alice@example.com", ShortCode: res.ShortCode})
	if err != nil {
		t.Fatalf("CookieSignIn failed: %v", err)
	}
	if out.Reason != RejectCodeExpired {
		t.Fatalf("expected relayed code refused, got %s", out.Reason)
	}
}
