package goPasswordless

import (
	"context"
	"errors"
	"testing"
	"time"
)

func trustDevice(t *testing.T, e *Engine, subjectID string) string {
	t.Helper()

	id, err := e.AuthorizeDevice(context.Background(), subjectID, "", "seed")
	if err != nil {
		t.Fatalf("AuthorizeDevice failed: %v", err)
	}
	return id
}

func TestSignInWithCodeFirstDevice(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	res := issue(t, e, "alice@example.com")

	// No trusted devices yet: a relayed code still signs in.
	out, err := e.SignInWithCode(ctx, "alice@example.com", res.ShortCode, SignInOptions{})
	if err != nil {
		t.Fatalf("SignInWithCode failed: %v", err)
	}
	if out.Status != SignedIn {
		t.Fatalf("expected signed in, got %s (%s)", out.Status, out.Reason)
	}
	if out.SubjectID != "sub-alice" || out.DeviceTrusted || out.NewDeviceID != "" {
		t.Fatalf("unexpected result %+v", out)
	}
	if out.SessionLifetime != 12*time.Hour {
		t.Fatalf("expected default lifetime, got %v", out.SessionLifetime)
	}
	if out.RedirectURL != "/" {
		t.Fatalf("expected default redirect, got %q", out.RedirectURL)
	}

	session, err := e.ParseSessionTicket(ctx, out.SessionTicket)
	if err != nil {
		t.Fatalf("ParseSessionTicket failed: %v", err)
	}
	if session.SubjectID != "sub-alice" || len(session.Methods) != 1 || session.Methods[0] != "otp" {
		t.Fatalf("unexpected session %+v", session)
	}
	if !session.ExpiresAt.Equal(out.SessionExpiresAt.Truncate(time.Second)) {
		t.Fatalf("expected ticket expiry %v, got %v", out.SessionExpiresAt, session.ExpiresAt)
	}
}

func TestSignInRelayedCodeLooksExpired(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	trustDevice(t, e, "sub-alice")
	res := issue(t, e, "alice@example.com")

	out, err := e.SignInWithCode(ctx, "alice@example.com", res.ShortCode, SignInOptions{ClientNonce: "someone-else"})
	if err != nil {
		t.Fatalf("SignInWithCode failed: %v", err)
	}
	if out.Status != SignInRejected || out.Reason != RejectCodeExpired {
		t.Fatalf("expected rejection as expired, got %s (%s)", out.Status, out.Reason)
	}
	if out.SubjectID != "" || out.SessionTicket != "" {
		t.Fatal("rejected result must not carry subject or ticket")
	}

	// The code was consumed by the relayed attempt.
	out, err = e.SignInWithCode(ctx, "alice@example.com", res.ShortCode, SignInOptions{ClientNonce: res.ClientNonce})
	if err != nil {
		t.Fatalf("SignInWithCode failed: %v", err)
	}
	if out.Reason != RejectCodeNotFound {
		t.Fatalf("expected code not found, got %s", out.Reason)
	}
	if got := e.MetricsSnapshot().Counters[MetricSignInNonceRejected]; got != 1 {
		t.Fatalf("expected nonce rejection metric, got %d", got)
	}
}

func TestSignInOriginBrowserWithTrustedDevicesElsewhere(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	trustDevice(t, e, "sub-alice")
	res := issue(t, e, "alice@example.com")

	out, err := e.SignInWithCode(ctx, "alice@example.com", res.ShortCode, SignInOptions{ClientNonce: res.ClientNonce})
	if err != nil {
		t.Fatalf("SignInWithCode failed: %v", err)
	}
	if out.Status != SignedIn {
		t.Fatalf("expected signed in, got %s", out.Reason)
	}
}

func TestSignInTrustedDeviceWithoutNonce(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	device := trustDevice(t, e, "sub-alice")
	res := issue(t, e, "alice@example.com")

	out, err := e.SignInWithCode(ctx, "alice@example.com", res.ShortCode, SignInOptions{DeviceID: device})
	if err != nil {
		t.Fatalf("SignInWithCode failed: %v", err)
	}
	if out.Status != SignedIn || !out.DeviceTrusted {
		t.Fatalf("expected signed in on trusted device, got %+v", out)
	}
	if out.SessionLifetime != 12*time.Hour {
		t.Fatalf("typed code on trusted device gets default lifetime, got %v", out.SessionLifetime)
	}
}

func TestSignInStaySignedInTrustsDeviceAndLinkGetsMaxLifetime(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	res := issue(t, e, "alice@example.com")
	out, err := e.SignInWithCode(ctx, "alice@example.com", res.ShortCode, SignInOptions{
		ClientNonce:       res.ClientNonce,
		StaySignedIn:      true,
		DeviceDescription: "Firefox on Linux",
	})
	if err != nil {
		t.Fatalf("SignInWithCode failed: %v", err)
	}
	if out.Status != SignedIn || out.NewDeviceID == "" || !out.DeviceTrusted {
		t.Fatalf("expected device registered, got %+v", out)
	}
	if out.SessionLifetime != 30*24*time.Hour {
		t.Fatalf("expected max lifetime, got %v", out.SessionLifetime)
	}

	res = issue(t, e, "alice@example.com")
	out2, err := e.SignInWithLongCode(ctx, res.LongCode, SignInOptions{DeviceID: out.NewDeviceID})
	if err != nil {
		t.Fatalf("SignInWithLongCode failed: %v", err)
	}
	if out2.Status != SignedIn {
		t.Fatalf("expected signed in, got %s", out2.Reason)
	}
	if out2.NewDeviceID != "" {
		t.Fatal("already trusted device must not be registered again")
	}
	if out2.SessionLifetime != 30*24*time.Hour {
		t.Fatalf("link on trusted device gets max lifetime, got %v", out2.SessionLifetime)
	}

	session, err := e.ParseSessionTicket(ctx, out2.SessionTicket)
	if err != nil {
		t.Fatalf("ParseSessionTicket failed: %v", err)
	}
	if !session.TrustedDevice || session.Methods[0] != "link" {
		t.Fatalf("unexpected session %+v", session)
	}
}

func TestSignInCodeForUnknownAccount(t *testing.T) {
	e, _ := newTestEngine(t)

	res := issue(t, e, "ghost@example.com")
	out, err := e.SignInWithCode(context.Background(), "ghost@example.com", res.ShortCode, SignInOptions{ClientNonce: res.ClientNonce})
	if err != nil {
		t.Fatalf("SignInWithCode failed: %v", err)
	}
	if out.Reason != RejectCodeNotFound {
		t.Fatalf("unknown account must look like a missing code, got %s", out.Reason)
	}
}

func TestSignInRedirectSanitized(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	cases := []struct {
		stored  string
		attempt string
		want    string
	}{
		{stored: "/inbox?tab=2", want: "/inbox?tab=2"},
		{stored: "https://app.example.com/return/done", want: "https://app.example.com/return/done"},
		{stored: "https://id.example.com/account", want: "https://id.example.com/account"},
		{stored: "https://evil.example/phish", want: "/"},
		{stored: "//evil.example/phish", want: "/"},
		{stored: "https://app.example.com/returnx", want: "/"},
		{attempt: "/from-attempt", want: "/from-attempt"},
		{stored: "/from-record", attempt: "/from-attempt", want: "/from-record"},
	}

	for _, tc := range cases {
		res, err := e.IssueCode(ctx, IssueRequest{Recipient: "alice@example.com", RedirectURL: tc.stored})
		if err != nil {
			t.Fatalf("IssueCode failed: %v", err)
		}
		out, err := e.SignInWithLongCode(ctx, res.LongCode, SignInOptions{ClientNonce: res.ClientNonce, RedirectURL: tc.attempt})
		if err != nil {
			t.Fatalf("SignInWithLongCode failed: %v", err)
		}
		if out.RedirectURL != tc.want {
			t.Fatalf("stored %q attempt %q: expected %q, got %q", tc.stored, tc.attempt, tc.want, out.RedirectURL)
		}
	}
}

func TestSignInWithPassword(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	trustDevice(t, e, "sub-alice")
	if _, err := e.SetPassword(ctx, "sub-alice", "correct horse"); err != nil {
		t.Fatalf("SetPassword failed: %v", err)
	}

	// Passwords are not bound to a nonce, so an untrusted browser may sign in.
	out, err := e.SignInWithPassword(ctx, "Alice@Example.com", "correct horse", SignInOptions{})
	if err != nil {
		t.Fatalf("SignInWithPassword failed: %v", err)
	}
	if out.Status != SignedIn || out.SubjectID != "sub-alice" {
		t.Fatalf("expected signed in, got %+v", out)
	}

	out, err = e.SignInWithPassword(ctx, "alice@example.com", "wrong horse", SignInOptions{})
	if err != nil {
		t.Fatalf("SignInWithPassword failed: %v", err)
	}
	if out.Reason != RejectPasswordIncorrect {
		t.Fatalf("expected password incorrect, got %s", out.Reason)
	}
}

func TestSignInWithPasswordHidesMissingAccounts(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	for _, recipient := range []string{"nobody@example.com", "bob@example.com"} {
		out, err := e.SignInWithPassword(ctx, recipient, "whatever123", SignInOptions{})
		if err != nil {
			t.Fatalf("SignInWithPassword failed: %v", err)
		}
		if out.Reason != RejectPasswordIncorrect {
			t.Fatalf("%s: expected password incorrect, got %s", recipient, out.Reason)
		}
	}
}

func TestSignInWithPasswordLocked(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.SetPassword(ctx, "sub-alice", "correct horse"); err != nil {
		t.Fatalf("SetPassword failed: %v", err)
	}
	var out SignInResult
	for i := 0; i < 3; i++ {
		var err error
		out, err = e.SignInWithPassword(ctx, "alice@example.com", "wrong horse", SignInOptions{})
		if err != nil {
			t.Fatalf("SignInWithPassword failed: %v", err)
		}
	}
	if out.Reason != RejectPasswordLocked || out.LockedUntil.IsZero() {
		t.Fatalf("expected locked with deadline, got %+v", out)
	}
}

func TestSignInInvalidMethod(t *testing.T) {
	e, _ := newTestEngine(t)

	out, err := e.SignIn(context.Background(), SignInAttempt{})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if out.Reason != RejectInvalidInput {
		t.Fatalf("expected invalid input, got %s", out.Reason)
	}
}

func TestSignInAccountLookupFailure(t *testing.T) {
	e, env := newTestEngine(t)

	res := issue(t, e, "alice@example.com")
	env.accounts.err = errors.New("directory down")

	out, err := e.SignInWithCode(context.Background(), "alice@example.com", res.ShortCode, SignInOptions{ClientNonce: res.ClientNonce})
	if !errors.Is(err, ErrAccountLookupFailed) {
		t.Fatalf("expected ErrAccountLookupFailed, got %v", err)
	}
	if out.Reason != RejectServiceFailure {
		t.Fatalf("expected service failure, got %s", out.Reason)
	}
}

func TestParseSessionTicketRejectsGarbage(t *testing.T) {
	e, env := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.ParseSessionTicket(ctx, "not.a.ticket"); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid, got %v", err)
	}

	res := issue(t, e, "alice@example.com")
	out, err := e.SignInWithCode(ctx, "alice@example.com", res.ShortCode, SignInOptions{ClientNonce: res.ClientNonce})
	if err != nil {
		t.Fatalf("SignInWithCode failed: %v", err)
	}
	env.clock.Advance(13 * time.Hour)
	if _, err := e.ParseSessionTicket(ctx, out.SessionTicket); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected expired ticket rejected, got %v", err)
	}
}
