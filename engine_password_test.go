package goPasswordless

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goPasswordless/password"
	"golang.org/x/crypto/bcrypt"
)

func seedPasswordHash(t *testing.T, e *Engine, subjectID, hash string) {
	t.Helper()

	err := e.passwords.Mutate(context.Background(), subjectID, func(*PasswordRecord) (*PasswordRecord, error) {
		return &PasswordRecord{SubjectID: subjectID, Hash: hash, LastChangedAt: testStart}, nil
	})
	if err != nil {
		t.Fatalf("seed password failed: %v", err)
	}
}

func storedPassword(t *testing.T, e *Engine, subjectID string) *PasswordRecord {
	t.Helper()

	rec, err := e.passwords.Get(context.Background(), subjectID)
	if err != nil {
		t.Fatalf("Get password failed: %v", err)
	}
	return rec
}

func TestSetPasswordStrengthPolicy(t *testing.T) {
	e, env := newTestEngine(t)
	ctx := context.Background()

	for _, pw := range []string{"", "short", "        \t ", strings.Repeat("x", 1025), "abc\xffdefgh"} {
		res, err := e.SetPassword(ctx, "sub-alice", pw)
		if err != nil {
			t.Fatalf("SetPassword failed: %v", err)
		}
		if res.Status != PasswordDoesNotMeetStrengthRequirements {
			t.Fatalf("expected weak password rejected for %q, got %s", pw, res.Status)
		}
	}
	if storedPassword(t, e, "sub-alice") != nil {
		t.Fatal("weak passwords must not be stored")
	}
	if len(env.mailer.sent()) != 0 {
		t.Fatal("no notice expected for rejected passwords")
	}

	res, err := e.SetPassword(ctx, "sub-alice", "correct horse")
	if err != nil {
		t.Fatalf("SetPassword failed: %v", err)
	}
	if res.Status != PasswordSetSuccess {
		t.Fatalf("expected success, got %s", res.Status)
	}

	rec := storedPassword(t, e, "sub-alice")
	if rec == nil || !strings.HasPrefix(rec.Hash, "$argon2id$") {
		t.Fatal("expected argon2id hash stored")
	}
	if !rec.LastChangedAt.Equal(testStart) {
		t.Fatalf("unexpected LastChangedAt %v", rec.LastChangedAt)
	}

	msg := env.mailer.last(t)
	if msg.Template != TemplatePasswordChanged || msg.To != "alice@example.com" {
		t.Fatalf("unexpected notice %+v", msg)
	}
}

func TestCheckPasswordLockout(t *testing.T) {
	e, env := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.SetPassword(ctx, "sub-alice", "correct horse"); err != nil {
		t.Fatalf("SetPassword failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		res, err := e.CheckPassword(ctx, "sub-alice", "wrong horse")
		if err != nil {
			t.Fatalf("CheckPassword failed: %v", err)
		}
		if res.Status != PasswordIncorrect {
			t.Fatalf("attempt %d: expected incorrect, got %s", i+1, res.Status)
		}
	}

	res, err := e.CheckPassword(ctx, "sub-alice", "wrong horse")
	if err != nil {
		t.Fatalf("CheckPassword failed: %v", err)
	}
	if res.Status != PasswordTemporarilyLocked {
		t.Fatalf("expected lock on third failure, got %s", res.Status)
	}
	wantUntil := testStart.Add(10 * time.Minute)
	if !res.LockedUntil.Equal(wantUntil) {
		t.Fatalf("expected lock until %v, got %v", wantUntil, res.LockedUntil)
	}
	if got := storedPassword(t, e, "sub-alice").FailedAttemptCount; got != 0 {
		t.Fatalf("expected counter reset on lock, got %d", got)
	}

	res, err = e.CheckPassword(ctx, "sub-alice", "correct horse")
	if err != nil {
		t.Fatalf("CheckPassword failed: %v", err)
	}
	if res.Status != PasswordTemporarilyLocked {
		t.Fatalf("expected locked even with correct password, got %s", res.Status)
	}

	env.clock.Advance(10*time.Minute + time.Second)
	res, err = e.CheckPassword(ctx, "sub-alice", "correct horse")
	if err != nil {
		t.Fatalf("CheckPassword failed: %v", err)
	}
	if res.Status != PasswordSuccess {
		t.Fatalf("expected success after lock, got %s", res.Status)
	}
}

func TestCheckPasswordWithoutCounterReset(t *testing.T) {
	e, env := newTestEngine(t, func(cfg *Config) {
		cfg.Password.ResetCounterOnLock = false
	})
	ctx := context.Background()

	if _, err := e.SetPassword(ctx, "sub-alice", "correct horse"); err != nil {
		t.Fatalf("SetPassword failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := e.CheckPassword(ctx, "sub-alice", "wrong horse"); err != nil {
			t.Fatalf("CheckPassword failed: %v", err)
		}
	}

	env.clock.Advance(11 * time.Minute)
	res, err := e.CheckPassword(ctx, "sub-alice", "wrong horse")
	if err != nil {
		t.Fatalf("CheckPassword failed: %v", err)
	}
	if res.Status != PasswordTemporarilyLocked {
		t.Fatalf("expected immediate relock without reset, got %s", res.Status)
	}
}

func TestCheckPasswordSuccessClearsCounter(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.SetPassword(ctx, "sub-alice", "correct horse"); err != nil {
		t.Fatalf("SetPassword failed: %v", err)
	}
	if _, err := e.CheckPassword(ctx, "sub-alice", "wrong horse"); err != nil {
		t.Fatalf("CheckPassword failed: %v", err)
	}
	res, err := e.CheckPassword(ctx, "sub-alice", "correct horse")
	if err != nil {
		t.Fatalf("CheckPassword failed: %v", err)
	}
	if res.Status != PasswordSuccess || res.Rehashed {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := storedPassword(t, e, "sub-alice").FailedAttemptCount; got != 0 {
		t.Fatalf("expected counter cleared, got %d", got)
	}
}

func TestCheckPasswordNotFound(t *testing.T) {
	e, _ := newTestEngine(t)

	res, err := e.CheckPassword(context.Background(), "sub-alice", "anything at all")
	if err != nil {
		t.Fatalf("CheckPassword failed: %v", err)
	}
	if res.Status != PasswordNotFound {
		t.Fatalf("expected not found, got %s", res.Status)
	}
}

func TestCheckPasswordRehashesLegacyBcrypt(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	legacy, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt failed: %v", err)
	}
	seedPasswordHash(t, e, "sub-alice", string(legacy))

	res, err := e.CheckPassword(ctx, "sub-alice", "correct horse")
	if err != nil {
		t.Fatalf("CheckPassword failed: %v", err)
	}
	if res.Status != PasswordSuccess || !res.Rehashed {
		t.Fatalf("expected success with rehash, got %+v", res)
	}
	if !strings.HasPrefix(storedPassword(t, e, "sub-alice").Hash, "$argon2id$") {
		t.Fatal("expected stored hash upgraded to argon2id")
	}

	res, err = e.CheckPassword(ctx, "sub-alice", "correct horse")
	if err != nil {
		t.Fatalf("CheckPassword failed: %v", err)
	}
	if res.Rehashed {
		t.Fatal("current hash must not be rehashed again")
	}
}

func TestCheckPasswordRehashesWeakArgon2(t *testing.T) {
	e, _ := newTestEngine(t)

	weak, err := password.NewHasher(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}
	hash, err := weak.Hash("correct horse")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	seedPasswordHash(t, e, "sub-alice", hash)

	res, err := e.CheckPassword(context.Background(), "sub-alice", "correct horse")
	if err != nil {
		t.Fatalf("CheckPassword failed: %v", err)
	}
	if !res.Rehashed {
		t.Fatal("expected stale argon2 parameters to be upgraded")
	}
	if got := e.MetricsSnapshot().Counters[MetricPasswordRehashed]; got != 1 {
		t.Fatalf("expected rehash metric, got %d", got)
	}
}

func TestCheckPasswordMalformedHashIsServiceFailure(t *testing.T) {
	e, _ := newTestEngine(t)

	seedPasswordHash(t, e, "sub-alice", "not-a-hash")

	res, err := e.CheckPassword(context.Background(), "sub-alice", "correct horse")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if res.Status != PasswordServiceFailure {
		t.Fatalf("expected service failure, got %s", res.Status)
	}
	if got := storedPassword(t, e, "sub-alice").FailedAttemptCount; got != 0 {
		t.Fatalf("service failures must not count, got %d", got)
	}
}

func TestCheckPasswordStoreUnavailable(t *testing.T) {
	e, env := newTestEngine(t)

	env.mr.Close()
	res, err := e.CheckPassword(context.Background(), "sub-alice", "correct horse")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if res.Status != PasswordServiceFailure {
		t.Fatalf("expected service failure, got %s", res.Status)
	}
}

func TestRemovePassword(t *testing.T) {
	e, env := newTestEngine(t)
	ctx := context.Background()

	res, err := e.RemovePassword(ctx, "sub-alice")
	if err != nil {
		t.Fatalf("RemovePassword failed: %v", err)
	}
	if res.Status != PasswordRemoveNotFound {
		t.Fatalf("expected not found, got %s", res.Status)
	}

	if _, err := e.SetPassword(ctx, "sub-alice", "correct horse"); err != nil {
		t.Fatalf("SetPassword failed: %v", err)
	}
	res, err = e.RemovePassword(ctx, "sub-alice")
	if err != nil {
		t.Fatalf("RemovePassword failed: %v", err)
	}
	if res.Status != PasswordRemoved {
		t.Fatalf("expected removed, got %s", res.Status)
	}
	if storedPassword(t, e, "sub-alice") != nil {
		t.Fatal("expected record deleted")
	}
	if msg := env.mailer.last(t); msg.Template != TemplatePasswordRemoved {
		t.Fatalf("expected removal notice, got %s", msg.Template)
	}
}

func TestSetPasswordNoticeFailureIsNotAnError(t *testing.T) {
	e, env := newTestEngine(t)
	env.mailer.err = errors.New("smtp down")

	res, err := e.SetPassword(context.Background(), "sub-alice", "correct horse")
	if err != nil {
		t.Fatalf("SetPassword failed: %v", err)
	}
	if res.Status != PasswordSetSuccess {
		t.Fatalf("expected success, got %s", res.Status)
	}
	if got := e.MetricsSnapshot().Counters[MetricDeliveryFailure]; got != 1 {
		t.Fatalf("expected delivery failure metric, got %d", got)
	}
}
