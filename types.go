package goPasswordless

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/goPasswordless/internal/audit"
	"github.com/MrEthical07/goPasswordless/internal/stores"
	"go.uber.org/zap"
)

// OneTimeCode is the single active code of a recipient. At most one exists
// per SentTo.
type OneTimeCode = stores.OneTimeCode

// PasswordRecord is the stored password state of a subject.
type PasswordRecord = stores.PasswordRecord

// TrustedDevice is a browser the subject chose to trust. Only the keyed hash
// of the device id is stored.
type TrustedDevice = stores.TrustedDevice

// CodeStore persists one-time codes.
//
// Mutate loads the record for sentTo (nil when absent), calls fn with a copy
// and atomically writes the returned record; a nil return deletes. If fn
// returns an error nothing is written and Mutate returns that error
// unchanged. Concurrent Mutate calls on the same recipient are serialized by
// the store; fn may be invoked more than once.
//
// LookupLongCode resolves a long code to the recipient it was issued to, or
// "" when no live record carries it.
type CodeStore interface {
	Mutate(ctx context.Context, sentTo string, fn func(current *OneTimeCode) (*OneTimeCode, error)) error
	LookupLongCode(ctx context.Context, longCode string) (string, error)
}

// PasswordStore persists password records. Get returns nil for subjects
// without a password. Mutate follows the CodeStore contract.
type PasswordStore interface {
	Get(ctx context.Context, subjectID string) (*PasswordRecord, error)
	Mutate(ctx context.Context, subjectID string, fn func(current *PasswordRecord) (*PasswordRecord, error)) error
}

// DeviceStore persists trusted devices. AddDevice never overwrites an
// existing entry for the same hash.
type DeviceStore interface {
	HasDevice(ctx context.Context, subjectID, deviceIDHash string) (bool, error)
	CountDevices(ctx context.Context, subjectID string) (int, error)
	AddDevice(ctx context.Context, device TrustedDevice) error
	RemoveDevice(ctx context.Context, subjectID, deviceIDHash string) (bool, error)
	ListDevices(ctx context.Context, subjectID string) ([]TrustedDevice, error)
}

// AccountProvider maps recipients (e-mail addresses) to subject ids and back.
type AccountProvider interface {
	SubjectByRecipient(ctx context.Context, recipient string) (subjectID string, found bool, err error)
	RecipientBySubject(ctx context.Context, subjectID string) (recipient string, found bool, err error)
}

// Template names a message the Mailer must render.
type Template string

const (
	TemplateSignInCode      Template = "sign_in_code"
	TemplateAccountNotFound Template = "account_not_found"
	TemplatePasswordChanged Template = "password_changed"
	TemplatePasswordRemoved Template = "password_removed"
)

// Message is one outbound notification. Code fields are set only for
// TemplateSignInCode.
type Message struct {
	To        string
	Template  Template
	ShortCode string
	Link      string
	ExpiresAt time.Time
}

// Mailer delivers messages. The engine calls Send at most once per operation
// and never retries.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// CookieJar is the caller's cookie carrier for the nonce and device cookies.
type CookieJar interface {
	Get(name string) (string, bool)
	Set(name, value string, ttl time.Duration)
}

// AuditEvent is the structured record emitted for security-relevant
// operations.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = internalaudit.Sink

// NoOpSink drops audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink buffers audit events in a channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// ZapSink logs audit events through zap.
type ZapSink = internalaudit.ZapSink

// NewChannelSink returns a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink that writes JSON lines to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewZapSink returns a sink that logs every event at info level.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return internalaudit.NewZapSink(logger)
}
