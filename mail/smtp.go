package mail

import (
	"context"
	"errors"
	"fmt"
	"time"

	goPasswordless "github.com/MrEthical07/goPasswordless"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Sender is the part of *gomail.Dialer the mailer uses.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPConfig describes the relay and the From address.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Product  string
}

// SMTPMailer implements goPasswordless.Mailer over SMTP.
type SMTPMailer struct {
	sender   Sender
	from     string
	renderer *Renderer
	logger   *zap.Logger
	now      func() time.Time
}

// NewSMTPMailer dials cfg.Host for every message.
func NewSMTPMailer(cfg SMTPConfig, logger *zap.Logger) (*SMTPMailer, error) {
	if cfg.Host == "" || cfg.Port <= 0 {
		return nil, errors.New("smtp host and port required")
	}
	return NewMailer(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg.From, cfg.Product, logger)
}

// NewMailer builds a mailer around any Sender.
func NewMailer(sender Sender, from, product string, logger *zap.Logger) (*SMTPMailer, error) {
	if sender == nil {
		return nil, errors.New("sender required")
	}
	if from == "" {
		return nil, errors.New("from address required")
	}
	renderer, err := NewRenderer(product)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SMTPMailer{
		sender:   sender,
		from:     from,
		renderer: renderer,
		logger:   logger.Named("mail"),
		now:      time.Now,
	}, nil
}

// Send renders msg and hands it to the relay. It does not retry.
func (m *SMTPMailer) Send(ctx context.Context, msg goPasswordless.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rendered, err := m.renderer.Render(msg, m.now())
	if err != nil {
		return err
	}

	gm := gomail.NewMessage()
	gm.SetHeader("From", m.from)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", rendered.Subject)
	gm.SetBody("text/plain", rendered.Text)
	gm.AddAlternative("text/html", rendered.HTML)

	if err := m.sender.DialAndSend(gm); err != nil {
		return fmt.Errorf("failed to send %s email: %w", msg.Template, err)
	}

	m.logger.Debug("message sent", zap.String("template", string(msg.Template)))
	return nil
}

// LogMailer writes messages to a zap logger instead of sending them. The
// sign-in code and link are logged, so use it only in development.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger.Named("mail")}
}

func (m *LogMailer) Send(_ context.Context, msg goPasswordless.Message) error {
	m.logger.Info("message",
		zap.String("to", msg.To),
		zap.String("template", string(msg.Template)),
		zap.String("short_code", msg.ShortCode),
		zap.String("link", msg.Link),
		zap.Time("expires_at", msg.ExpiresAt),
	)
	return nil
}
