package goPasswordless

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/MrEthical07/goPasswordless/internal/audit"
	"github.com/MrEthical07/goPasswordless/internal/limiters"
	"github.com/MrEthical07/goPasswordless/internal/stores"
	"github.com/MrEthical07/goPasswordless/jwt"
	"github.com/MrEthical07/goPasswordless/keyedhash"
	"github.com/MrEthical07/goPasswordless/password"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an Engine. Stores left unset fall back to the Redis
// implementations, which need [Builder.WithRedis].
//
// A Builder is single use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	codes     CodeStore
	passwords PasswordStore
	devices   DeviceStore
	accounts  AccountProvider
	mailer    Mailer
	clock     Clock
	logger    *zap.Logger
	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client used by the default stores and the request
// limiter. Any go-redis client works, including cluster and ring clients.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithCodeStore(s CodeStore) *Builder {
	b.codes = s
	return b
}

func (b *Builder) WithPasswordStore(s PasswordStore) *Builder {
	b.passwords = s
	return b
}

func (b *Builder) WithDeviceStore(s DeviceStore) *Builder {
	b.devices = s
	return b
}

// WithAccountProvider sets the recipient/subject directory. Required.
func (b *Builder) WithAccountProvider(p AccountProvider) *Builder {
	b.accounts = p
	return b
}

// WithMailer sets the message transport. Without one, SendSignInCode
// returns ErrEngineNotReady and no notices are sent.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

func (b *Builder) WithClock(c Clock) *Builder {
	b.clock = c
	return b
}

func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.accounts == nil {
		return nil, errors.New("account provider required")
	}
	if b.redis == nil {
		if b.codes == nil || b.passwords == nil || b.devices == nil {
			return nil, errors.New("redis client required for default stores")
		}
		if cfg.RequestLimits.Enabled {
			return nil, errors.New("RequestLimits requires redis client")
		}
	}

	clock := b.clock
	if clock == nil {
		clock = systemClock{}
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	codeStore := b.codes
	if codeStore == nil {
		codeStore = stores.NewCodeStore(b.redis, cfg.Store.RedisPrefix, cfg.Codes.ExpiredGrace, clock.Now)
	}
	passwordStore := b.passwords
	if passwordStore == nil {
		passwordStore = stores.NewPasswordStore(b.redis, cfg.Store.RedisPrefix)
	}
	deviceStore := b.devices
	if deviceStore == nil {
		deviceStore = stores.NewDeviceStore(b.redis, cfg.Store.RedisPrefix)
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: cfg.Password.MaxLength * utf8.UTFMax,
	})
	if err != nil {
		return nil, fmt.Errorf("password hasher: %w", err)
	}

	keyed, err := keyedhash.New(cfg.HashKey)
	if err != nil {
		return nil, err
	}

	tickets, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.Session.SigningMethod),
		PrivateKey:    cfg.Session.PrivateKey,
		PublicKey:     cfg.Session.PublicKey,
		Issuer:        cfg.Session.Issuer,
		Audience:      cfg.Session.Audience,
		Leeway:        cfg.Session.Leeway,
		KeyID:         cfg.Session.KeyID,
		Now:           clock.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("session tickets: %w", err)
	}

	dummyHash, err := newDummyHash(hasher)
	if err != nil {
		return nil, err
	}

	var limiter *limiters.CodeRequestLimiter
	if cfg.RequestLimits.Enabled {
		limiter = limiters.NewCodeRequestLimiter(b.redis, cfg.Store.RedisPrefix, limiters.CodeRequestConfig{
			EnableRecipientThrottle: true,
			EnableIPThrottle:        true,
			Window:                  cfg.RequestLimits.Window,
			MaxPerRecipient:         cfg.RequestLimits.MaxPerRecipient,
			MaxPerIP:                cfg.RequestLimits.MaxPerIP,
		})
	}

	e := &Engine{
		config:    cfg,
		codes:     codeStore,
		passwords: passwordStore,
		devices:   deviceStore,
		accounts:  b.accounts,
		mailer:    b.mailer,
		clock:     clock,
		logger:    logger.Named("passwordless"),
		hasher:    hasher,
		keyed:     keyed,
		tickets:   tickets,
		limiter:   limiter,
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink, logger.Named("audit")),
		metrics:   NewMetrics(cfg.Metrics),
		dummyHash: dummyHash,
	}

	b.built = true
	return e, nil
}

func newDummyHash(h *password.Hasher) (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return h.Hash(base64.RawURLEncoding.EncodeToString(raw))
}
