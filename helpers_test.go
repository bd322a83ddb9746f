package goPasswordless

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var testStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: testStart}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type captureMailer struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (m *captureMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msg)
	return nil
}

func (m *captureMailer) sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.msgs...)
}

func (m *captureMailer) last(t *testing.T) Message {
	t.Helper()
	msgs := m.sent()
	if len(msgs) == 0 {
		t.Fatal("expected a sent message")
	}
	return msgs[len(msgs)-1]
}

type mapAccounts struct {
	bySubject map[string]string
	err       error
}

func (a *mapAccounts) SubjectByRecipient(_ context.Context, recipient string) (string, bool, error) {
	if a.err != nil {
		return "", false, a.err
	}
	for subject, r := range a.bySubject {
		if r == recipient {
			return subject, true, nil
		}
	}
	return "", false, nil
}

func (a *mapAccounts) RecipientBySubject(_ context.Context, subjectID string) (string, bool, error) {
	if a.err != nil {
		return "", false, a.err
	}
	r, ok := a.bySubject[subjectID]
	return r, ok, nil
}

type mapJar struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newMapJar() *mapJar {
	return &mapJar{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (j *mapJar) Get(name string) (string, bool) {
	v, ok := j.values[name]
	return v, ok
}

func (j *mapJar) Set(name, value string, ttl time.Duration) {
	j.values[name] = value
	j.ttls[name] = ttl
}

type testEnv struct {
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	clock    *fakeClock
	mailer   *captureMailer
	accounts *mapAccounts
}

func newTestRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.HashKey = bytes.Repeat([]byte{0x42}, 32)
	cfg.Codes.LinkBaseURL = "https://id.example.com/link?c="
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Session.SigningMethod = "hs256"
	cfg.Session.PrivateKey = bytes.Repeat([]byte{0x07}, 32)
	cfg.Session.Issuer = "https://id.example.com"
	cfg.Redirect.PublicOrigin = "https://id.example.com"
	cfg.Redirect.AllowedReturnURLs = []string{"https://app.example.com/return"}
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestEngine(t testing.TB, mutate ...func(*Config)) (*Engine, *testEnv) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	env := &testEnv{
		mr:     mr,
		rdb:    rdb,
		clock:  newFakeClock(),
		mailer: &captureMailer{},
		accounts: &mapAccounts{bySubject: map[string]string{
			"sub-alice": "alice@example.com",
			"sub-bob":   "bob@example.com",
		}},
	}

	cfg := testConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}

	e, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountProvider(env.accounts).
		WithMailer(env.mailer).
		WithClock(env.clock).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(e.Close)

	return e, env
}

var errPeek = errors.New("peek")

// peekCode reads the stored record without changing it.
func peekCode(t *testing.T, e *Engine, sentTo string) *OneTimeCode {
	t.Helper()

	var out *OneTimeCode
	err := e.codes.Mutate(context.Background(), sentTo, func(current *OneTimeCode) (*OneTimeCode, error) {
		if current != nil {
			out = current.Clone()
		}
		return nil, errPeek
	})
	if err != nil && !errors.Is(err, errPeek) {
		t.Fatalf("peek failed: %v", err)
	}
	return out
}

func wrongShortCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func issue(t *testing.T, e *Engine, recipient string) IssueResult {
	t.Helper()

	res, err := e.IssueCode(context.Background(), IssueRequest{Recipient: recipient})
	if err != nil {
		t.Fatalf("IssueCode failed: %v", err)
	}
	if res.Status != IssueIssued {
		t.Fatalf("expected issued, got %s", res.Status)
	}
	return res
}
