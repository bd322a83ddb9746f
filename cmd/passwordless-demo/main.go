// Command passwordless-demo serves the sign-in flows of goPasswordless over
// HTTP with gin. With no configuration it runs self-contained: miniredis for
// storage and the log for mail.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goPasswordless "github.com/MrEthical07/goPasswordless"
	"github.com/MrEthical07/goPasswordless/mail"
	"github.com/MrEthical07/goPasswordless/mongostore"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

func main() {
	boot, err := newLogger(false, "info")
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	app, err := loadConfig(boot)
	if err != nil {
		boot.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := newLogger(app.IsProduction(), app.LogLevel)
	if err != nil {
		boot.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer func() { _ = logger.Sync() }()

	if app.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, cleanup, err := buildEngine(ctx, app, logger)
	if err != nil {
		logger.Fatal("failed to build engine", zap.Error(err))
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              ":" + app.AppPort,
		Handler:           newRouter(engine, logger, app.IsProduction()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
}

func buildEngine(ctx context.Context, app AppConfig, logger *zap.Logger) (*goPasswordless.Engine, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*goPasswordless.Engine, func(), error) {
		cleanup()
		return nil, func() {}, err
	}

	cfg, err := engineConfig(app, logger)
	if err != nil {
		return fail(fmt.Errorf("engine config: %w", err))
	}

	accounts, err := parseAccounts(app.DemoAccounts)
	if err != nil {
		return fail(err)
	}

	addr := app.RedisAddr
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fail(fmt.Errorf("start miniredis: %w", err))
		}
		closers = append(closers, mr.Close)
		addr = mr.Addr()
		logger.Info("using in-process miniredis", zap.String("addr", addr))
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{addr},
		Password: app.RedisPassword,
	})
	closers = append(closers, func() { _ = rdb.Close() })

	builder := goPasswordless.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountProvider(accounts).
		WithLogger(logger)

	if app.MongoURI != "" {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(app.MongoURI))
		if err != nil {
			return fail(fmt.Errorf("connect mongo: %w", err))
		}
		closers = append(closers, func() { _ = client.Disconnect(context.Background()) })

		stores, err := mongostore.New(ctx, client.Database(app.MongoDatabase), mongostore.Config{
			CodeGrace: cfg.Codes.ExpiredGrace,
		})
		if err != nil {
			return fail(err)
		}
		builder = builder.
			WithCodeStore(stores.Codes).
			WithPasswordStore(stores.Passwords).
			WithDeviceStore(stores.Devices)
		logger.Info("using mongo stores", zap.String("database", app.MongoDatabase))
	}

	if app.SMTPHost != "" {
		mailer, err := mail.NewSMTPMailer(mail.SMTPConfig{
			Host:     app.SMTPHost,
			Port:     app.SMTPPort,
			Username: app.SMTPUsername,
			Password: app.SMTPPassword,
			From:     app.MailFrom,
			Product:  app.ProductName,
		}, logger)
		if err != nil {
			return fail(err)
		}
		builder = builder.WithMailer(mailer)
	} else {
		logger.Warn("SMTP_HOST not set, sign-in codes are written to the log")
		builder = builder.WithMailer(mail.NewLogMailer(logger))
	}

	if app.AuditLog {
		builder = builder.WithAuditSink(goPasswordless.NewZapSink(logger.Named("audit")))
	}

	engine, err := builder.Build()
	if err != nil {
		return fail(err)
	}
	closers = append(closers, engine.Close)

	return engine, cleanup, nil
}
