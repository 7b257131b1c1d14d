package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/tendant/simple-idm-otp/idm"
	"github.com/tendant/simple-idm-otp/internal/config"
	"github.com/tendant/simple-idm-otp/internal/notification"
	"github.com/tendant/simple-idm-otp/internal/session"
	"github.com/tendant/simple-idm-otp/pkg/auth"
	"github.com/tendant/simple-idm-otp/pkg/repository"
	"github.com/tendant/simple-idm-otp/pkg/repository/memory"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	var store auth.Store
	var sessions scs.Store

	if cfg.NeedsDatabase() {
		db, err := repository.NewDB(cfg.Database())
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		logger.Info("connected to database")

		if cfg.StoreBackend == config.BackendPostgres {
			store = repository.NewStore(db)
		}
		if cfg.SessionBackend == config.BackendPostgres {
			sessions = session.NewPostgresStore(db, cfg.Session.CleanupInterval)
		}
	}
	if store == nil {
		store = memory.NewStore()
		logger.Warn("using in-memory account store; accounts are lost on restart")
	}

	switch cfg.SessionBackend {
	case config.BackendRedis:
		client, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		logger.Info("connected to redis")
		sessions = session.NewRedisStore(client)
	case config.BackendMemory:
		sessions = session.NewMemoryStore()
	}

	var mailer auth.Mailer
	if cfg.HasSMTP() {
		mailer = notification.NewEmailService(notification.EmailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}, cfg.OTP.TTL, logger)
		logger.Info("email service enabled")
	} else {
		mailer = notification.NewLogMailer(logger)
		logger.Warn("SMTP not configured; emails are logged instead of sent")
	}

	accounts, err := idm.New(idm.Config{
		Store:         store,
		Sessions:      sessions,
		Mailer:        mailer,
		SecretKey:     cfg.SecretKey,
		AppBaseURL:    cfg.AppBaseURL,
		OTPTTL:        cfg.OTP.TTL,
		OTPResendWait: cfg.OTP.ResendWait,
		ActivationTTL: cfg.ActivationTTL,
		SessionTTL:    cfg.Session.TTL,
		CookieName:    cfg.Session.CookieName,
		CookieDomain:  cfg.Session.CookieDomain,
		CookieSecure:  cfg.Session.CookieSecure,
		Logger:        logger,
		Settings:      cfg,
	})
	if err != nil {
		logger.Error("failed to initialize accounts", "error", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf("%s:%d", cfg.ServerAddr, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      accounts.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

func newRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
