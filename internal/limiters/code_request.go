package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCodeRequestRateLimited        = errors.New("code request rate limited")
	ErrCodeRequestLimiterUnavailable = errors.New("code request limiter unavailable")
)

// CodeRequestConfig bounds how often a code may be requested per recipient
// and per client IP within one fixed window.
type CodeRequestConfig struct {
	EnableRecipientThrottle bool
	EnableIPThrottle        bool
	Window                  time.Duration
	MaxPerRecipient         int
	MaxPerIP                int
}

type CodeRequestLimiter struct {
	redis  redis.UniversalClient
	prefix string
	config CodeRequestConfig
}

func NewCodeRequestLimiter(redisClient redis.UniversalClient, prefix string, cfg CodeRequestConfig) *CodeRequestLimiter {
	if prefix == "" {
		prefix = "pwl"
	}
	return &CodeRequestLimiter{
		redis:  redisClient,
		prefix: prefix,
		config: cfg,
	}
}

// CheckRequest counts one request and returns ErrCodeRequestRateLimited once
// either budget is spent.
func (l *CodeRequestLimiter) CheckRequest(ctx context.Context, recipient, ip string) error {
	if l == nil {
		return nil
	}
	if l.config.EnableRecipientThrottle && recipient != "" {
		if err := l.enforceFixedWindow(ctx, l.recipientKey(recipient), l.config.MaxPerRecipient); err != nil {
			return err
		}
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.enforceFixedWindow(ctx, l.ipKey(ip), l.config.MaxPerIP); err != nil {
			return err
		}
	}
	return nil
}

func (l *CodeRequestLimiter) enforceFixedWindow(ctx context.Context, key string, limit int) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCodeRequestLimiterUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrCodeRequestLimiterUnavailable, err)
		}
	}

	if count > int64(limit) {
		return ErrCodeRequestRateLimited
	}

	return nil
}

func (l *CodeRequestLimiter) recipientKey(recipient string) string {
	return l.prefix + ":rq:to:" + recipient
}

func (l *CodeRequestLimiter) ipKey(ip string) string {
	return l.prefix + ":rq:ip:" + ip
}
