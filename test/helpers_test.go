//go:build integration
// +build integration

package test

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	goPasswordless "github.com/MrEthical07/goPasswordless"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// redisMode describes which Redis backend the suite is running against.
type redisMode struct {
	name  string
	setup func(t *testing.T) (redis.UniversalClient, func())
}

// redisModes returns the backends to test. miniredis is always available;
// REDIS_ADDR adds a standalone server and REDIS_SENTINEL_ADDRS a sentinel
// deployment. Cluster mode is not covered: a code record and its long-code
// index live in different slots.
func redisModes(t *testing.T) []redisMode {
	t.Helper()
	modes := []redisMode{
		{
			name: "miniredis",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				mr, err := miniredis.Run()
				if err != nil {
					t.Fatalf("miniredis: %v", err)
				}
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				return rdb, func() { _ = rdb.Close(); mr.Close() }
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone:" + addr,
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis at %s: %v", addr, err)
				}
				rdb.FlushDB(context.Background())
				return rdb, func() { rdb.FlushDB(context.Background()); _ = rdb.Close() }
			},
		})
	}

	if addrs := os.Getenv("REDIS_SENTINEL_ADDRS"); addrs != "" {
		master := os.Getenv("REDIS_SENTINEL_MASTER")
		if master == "" {
			master = "mymaster"
		}
		modes = append(modes, redisMode{
			name: "sentinel",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				rdb := redis.NewFailoverClient(&redis.FailoverOptions{
					MasterName:    master,
					SentinelAddrs: splitAddrs(addrs),
				})
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis sentinel: %v", err)
				}
				rdb.FlushDB(context.Background())
				return rdb, func() { rdb.FlushDB(context.Background()); _ = rdb.Close() }
			},
		})
	}

	return modes
}

func splitAddrs(s string) []string {
	var addrs []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}

type outbox struct {
	mu   sync.Mutex
	sent []goPasswordless.Message
}

func (o *outbox) Send(_ context.Context, msg goPasswordless.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

func (o *outbox) last(t *testing.T) goPasswordless.Message {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.sent) == 0 {
		t.Fatal("no message sent")
	}
	return o.sent[len(o.sent)-1]
}

type accounts map[string]string

func (a accounts) SubjectByRecipient(_ context.Context, recipient string) (string, bool, error) {
	s, ok := a[recipient]
	return s, ok, nil
}

func (a accounts) RecipientBySubject(_ context.Context, subjectID string) (string, bool, error) {
	for r, s := range a {
		if s == subjectID {
			return r, true, nil
		}
	}
	return "", false, nil
}

func integrationConfig() goPasswordless.Config {
	cfg := goPasswordless.DefaultConfig()
	cfg.HashKey = bytes.Repeat([]byte{0x42}, 32)
	cfg.Session.SigningMethod = "hs256"
	cfg.Session.PrivateKey = bytes.Repeat([]byte{0x07}, 32)
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true
	return cfg
}

func newEngine(t *testing.T, rdb redis.UniversalClient) (*goPasswordless.Engine, *outbox) {
	t.Helper()

	mail := &outbox{}
	engine, err := goPasswordless.New().
		WithConfig(integrationConfig()).
		WithRedis(rdb).
		WithAccountProvider(accounts{"alice@example.com": "sub-alice"}).
		WithMailer(mail).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, mail
}
