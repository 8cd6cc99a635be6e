package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/br1n0/GlobaLeaks/internal/config"
	"github.com/br1n0/GlobaLeaks/internal/dispatch"
	"github.com/br1n0/GlobaLeaks/internal/mailer"
	"github.com/br1n0/GlobaLeaks/internal/notify"
	"github.com/br1n0/GlobaLeaks/internal/ratelimit"
	"github.com/br1n0/GlobaLeaks/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	transport, err := mailer.NewSMTP(mailer.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	})
	if err != nil {
		log.Error("create mail transport", "error", err)
		os.Exit(1)
	}

	limiter := ratelimit.New()
	dispatcher := dispatch.New(
		mailer.KeywordRenderer{},
		transport,
		store,
		dispatch.Pacing{Interval: cfg.MailPacing},
		log,
	)
	job := notify.New(store, limiter, dispatcher, cfg.NotificationLimit, cfg.ThresholdPerHour, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	clog := cronLogger{log: log}
	c := cron.New(cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)))

	if _, err := c.AddFunc("@every "+cfg.FlushInterval.String(), func() {
		if err := job.Operation(ctx); err != nil {
			log.Error("notification run", "error", err)
		}
	}); err != nil {
		log.Error("schedule notification run", "error", err)
		os.Exit(1)
	}

	// The dispatch engine never clears its own counters; the window
	// rolls over on the hour.
	if _, err := c.AddFunc("0 * * * *", limiter.Reset); err != nil {
		log.Error("schedule window reset", "error", err)
		os.Exit(1)
	}

	log.Info("starting notifier", "interval", cfg.FlushInterval, "limit", cfg.NotificationLimit)
	c.Start()

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()

	log.Info("notifier stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	log *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug(fmt.Sprintf("cron: %s", msg), keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error(fmt.Sprintf("cron: %s", msg), append(keysAndValues, "error", err)...)
}
