package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	goPasswordless "github.com/MrEthical07/goPasswordless"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// AppConfig holds the demo host settings. Every key can come from
// config.yaml or the environment.
type AppConfig struct {
	AppPort  string `mapstructure:"APP_PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// An empty RedisAddr starts an in-process miniredis.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	// A non-empty MongoURI moves codes, passwords and devices to MongoDB.
	MongoURI      string `mapstructure:"MONGO_URI"`
	MongoDatabase string `mapstructure:"MONGO_DATABASE"`

	// An empty SMTPHost logs messages instead of sending them.
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	MailFrom     string `mapstructure:"MAIL_FROM"`
	ProductName  string `mapstructure:"PRODUCT_NAME"`

	HashKey    string `mapstructure:"HASH_KEY"`
	SessionKey string `mapstructure:"SESSION_KEY"`

	PublicOrigin        string        `mapstructure:"PUBLIC_ORIGIN"`
	AllowedReturnURLs   []string      `mapstructure:"ALLOWED_RETURN_URLS"`
	LinkBaseURL         string        `mapstructure:"LINK_BASE_URL"`
	CodeValidity        time.Duration `mapstructure:"CODE_VALIDITY"`
	SessionLifetime     time.Duration `mapstructure:"SESSION_LIFETIME"`
	MaxSessionLifetime  time.Duration `mapstructure:"MAX_SESSION_LIFETIME"`
	AuditLog            bool          `mapstructure:"AUDIT_LOG"`
	LatencyHistograms   bool          `mapstructure:"LATENCY_HISTOGRAMS"`
	RequestLimitEnabled bool          `mapstructure:"REQUEST_LIMIT_ENABLED"`

	// DemoAccounts are "subject=email" pairs.
	DemoAccounts []string `mapstructure:"DEMO_ACCOUNTS"`
}

func (c AppConfig) IsProduction() bool {
	return c.Env == "production"
}

func loadConfig(logger *zap.Logger) (AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()

	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("MONGO_URI", "")
	v.SetDefault("MONGO_DATABASE", "passwordless")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("MAIL_FROM", "no-reply@localhost")
	v.SetDefault("PRODUCT_NAME", "Passwordless demo")
	v.SetDefault("HASH_KEY", "")
	v.SetDefault("SESSION_KEY", "")
	v.SetDefault("PUBLIC_ORIGIN", "http://localhost:8080")
	v.SetDefault("ALLOWED_RETURN_URLS", []string{})
	v.SetDefault("LINK_BASE_URL", "http://localhost:8080/signin/link?c=")
	v.SetDefault("CODE_VALIDITY", "5m")
	v.SetDefault("SESSION_LIFETIME", "12h")
	v.SetDefault("MAX_SESSION_LIFETIME", "720h")
	v.SetDefault("AUDIT_LOG", true)
	v.SetDefault("LATENCY_HISTOGRAMS", true)
	v.SetDefault("REQUEST_LIMIT_ENABLED", true)
	v.SetDefault("DEMO_ACCOUNTS", []string{"sub-alice=alice@example.com"})

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return AppConfig{}, fmt.Errorf("read config: %w", err)
		}
		logger.Info("no config file found, using environment variables only")
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// engineConfig maps the host settings onto the engine configuration. Missing
// keys are generated outside production; sessions then do not survive a
// restart.
func engineConfig(app AppConfig, logger *zap.Logger) (goPasswordless.Config, error) {
	cfg := goPasswordless.DefaultConfig()

	var err error
	if cfg.HashKey, err = secretKey("HASH_KEY", app.HashKey, app.IsProduction(), logger); err != nil {
		return cfg, err
	}
	cfg.Session.SigningMethod = "hs256"
	if cfg.Session.PrivateKey, err = secretKey("SESSION_KEY", app.SessionKey, app.IsProduction(), logger); err != nil {
		return cfg, err
	}
	cfg.Session.Issuer = app.PublicOrigin
	cfg.Session.DefaultLifetime = app.SessionLifetime
	cfg.Session.MaxLifetime = app.MaxSessionLifetime

	cfg.Codes.DefaultValidity = app.CodeValidity
	cfg.Codes.LinkBaseURL = app.LinkBaseURL

	cfg.Redirect.PublicOrigin = app.PublicOrigin
	cfg.Redirect.AllowedReturnURLs = app.AllowedReturnURLs

	cfg.RequestLimits.Enabled = app.RequestLimitEnabled
	cfg.Audit.Enabled = app.AuditLog
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = app.LatencyHistograms

	if !app.IsProduction() {
		// Cheaper hashing keeps the demo responsive on small machines.
		cfg.Password.Memory = 16 * 1024
		cfg.Password.Time = 1
	}

	return cfg, cfg.Validate()
}

func secretKey(name, hexValue string, production bool, logger *zap.Logger) ([]byte, error) {
	hexValue = strings.TrimSpace(hexValue)
	if hexValue != "" {
		key, err := hex.DecodeString(hexValue)
		if err != nil {
			return nil, fmt.Errorf("%s must be hex: %w", name, err)
		}
		return key, nil
	}
	if production {
		return nil, fmt.Errorf("%s is required in production", name)
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	logger.Warn("generated ephemeral key", zap.String("key", name))
	return key, nil
}
