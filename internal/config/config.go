// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/notifier.db"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	MailFrom     string `env:"MAIL_FROM"`

	// NotificationLimit caps how many enriched events one run handles.
	NotificationLimit int `env:"NOTIFICATION_LIMIT" envDefault:"30"`
	// ThresholdPerHour caps mails per receiver per hourly window.
	ThresholdPerHour int           `env:"NOTIFICATION_THRESHOLD_PER_HOUR" envDefault:"20"`
	FlushInterval    time.Duration `env:"FLUSH_INTERVAL" envDefault:"60s"`
	MailPacing       time.Duration `env:"MAIL_PACING" envDefault:"2s"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.SMTPHost == "" {
		return nil, fmt.Errorf("SMTP_HOST is required")
	}
	if cfg.MailFrom == "" {
		return nil, fmt.Errorf("MAIL_FROM is required")
	}
	if cfg.NotificationLimit <= 0 {
		return nil, fmt.Errorf("NOTIFICATION_LIMIT must be positive")
	}
	if cfg.ThresholdPerHour <= 0 {
		return nil, fmt.Errorf("NOTIFICATION_THRESHOLD_PER_HOUR must be positive")
	}
	return &cfg, nil
}
