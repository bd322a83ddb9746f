package goPasswordless

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MrEthical07/goPasswordless/internal/audit"
	"github.com/MrEthical07/goPasswordless/internal/limiters"
	"github.com/MrEthical07/goPasswordless/jwt"
	"github.com/MrEthical07/goPasswordless/keyedhash"
	"github.com/MrEthical07/goPasswordless/password"
	"go.uber.org/zap"
)

const (
	maxRecipientLength   = 320
	maxRedirectLength    = 2048
	maxDescriptionLength = 200
)

// errNoWrite aborts a Mutate closure that decided not to change the record.
var errNoWrite = errors.New("no write")

// Engine is the passwordless sign-in core. Build it with [New] and
// [Builder.Build].
//
// Engine is safe for concurrent use. It keeps no per-request state in memory;
// every decision is made against the configured stores.
type Engine struct {
	config    Config
	codes     CodeStore
	passwords PasswordStore
	devices   DeviceStore
	accounts  AccountProvider
	mailer    Mailer
	clock     Clock
	logger    *zap.Logger

	hasher  *password.Hasher
	keyed   *keyedhash.Hasher
	tickets *jwt.Manager
	limiter *limiters.CodeRequestLimiter
	audit   *audit.Dispatcher
	metrics *Metrics

	// dummyHash is checked against when no password record exists so unknown
	// accounts cost the same as known ones.
	dummyHash string
}

// Close stops the audit dispatcher after draining buffered events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
	_ = e.logger.Sync()
}

// AuditDropped reports how many audit events were dropped because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns the current counters and histograms.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeSince(id MetricID, start time.Time) {
	if e == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}

func (e *Engine) now() time.Time {
	return e.clock.Now().UTC()
}

// storeFailure records a persistence error and returns it wrapped in
// ErrStoreUnavailable.
func (e *Engine) storeFailure(op string, err error) error {
	e.metricInc(MetricStoreFailure)
	e.logger.Error("store failure", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func (e *Engine) nonceHash(sentTo, nonce string) string {
	return e.keyed.Sum("nonce:"+sentTo, nonce)
}

func (e *Engine) nonceMatches(record *OneTimeCode, nonce string) bool {
	return e.keyed.Verify("nonce:"+record.SentTo, nonce, record.ClientNonceHash)
}

func (e *Engine) deviceHash(subjectID, deviceID string) string {
	return e.keyed.Sum("device:"+subjectID, deviceID)
}

// normalizeRecipient lower-cases and trims an address. Empty or oversized
// addresses are rejected.
func normalizeRecipient(recipient string) (string, error) {
	r := strings.ToLower(strings.TrimSpace(recipient))
	if r == "" || len(r) > maxRecipientLength {
		return "", fmt.Errorf("%w: recipient", ErrInvalidInput)
	}
	return r, nil
}

func validSubject(subjectID string) bool {
	return subjectID != "" && len(subjectID) <= maxRecipientLength && utf8.ValidString(subjectID)
}
