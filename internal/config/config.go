// Package config handles application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the service configuration.
type Config struct {
	TelegramBotToken string        `env:"TELEGRAM_BOT_TOKEN,required,notEmpty"`
	DatabasePath     string        `env:"DATABASE_PATH" envDefault:"./data/lottery.db"`
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat        string        `env:"LOG_FORMAT" envDefault:"json"`
	AdminUsers       IDList        `env:"ADMIN_USERS"`
	TelegramSendRate float64       `env:"TELEGRAM_SEND_RATE" envDefault:"20"`
	CallTimeout      time.Duration `env:"EXTERNAL_CALL_TIMEOUT" envDefault:"10s"`

	ValidationConcurrency int `env:"VALIDATION_CONCURRENCY" envDefault:"20"`
	NotifyConcurrency     int `env:"NOTIFY_CONCURRENCY" envDefault:"5"`

	Redis     Redis     `envPrefix:"REDIS_"`
	Scheduler Scheduler `envPrefix:"SCHEDULER_"`
}

// Redis configures the optional distributed lock backend.
type Redis struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

// Enabled reports whether a Redis address is configured.
func (r Redis) Enabled() bool {
	return r.Addr != ""
}

// Scheduler configures the polling loop.
type Scheduler struct {
	Interval            time.Duration `env:"INTERVAL" envDefault:"60s"`
	MisfireGrace        time.Duration `env:"MISFIRE_GRACE" envDefault:"300s"`
	ActivityConcurrency int           `env:"ACTIVITY_CONCURRENCY" envDefault:"10"`
	CheckInterval       time.Duration `env:"CHECK_INTERVAL" envDefault:"10m"`
	EndLockTTL          time.Duration `env:"END_LOCK_TTL" envDefault:"5m"`
}

// CLI holds the subset of configuration the operator CLI needs.
type CLI struct {
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/lottery.db"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat    string `env:"LOG_FORMAT" envDefault:"console"`
}

// IDList is a comma-separated list of Telegram ids. Blank entries are ignored.
type IDList []int64

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *IDList) UnmarshalText(text []byte) error {
	var ids IDList
	for _, s := range strings.Split(string(text), ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user ID %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	*l = ids
	return nil
}

// Load reads the service configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadCLI reads the operator CLI configuration from environment variables.
func LoadCLI() (*CLI, error) {
	var cfg CLI
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	positive := func(name string, v int) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	positive("SCHEDULER_ACTIVITY_CONCURRENCY", c.Scheduler.ActivityConcurrency)
	positive("VALIDATION_CONCURRENCY", c.ValidationConcurrency)
	positive("NOTIFY_CONCURRENCY", c.NotifyConcurrency)
	if c.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("SCHEDULER_INTERVAL must be positive"))
	}
	if c.CallTimeout <= 0 {
		errs = append(errs, errors.New("EXTERNAL_CALL_TIMEOUT must be positive"))
	}
	if c.TelegramSendRate <= 0 {
		errs = append(errs, errors.New("TELEGRAM_SEND_RATE must be positive"))
	}
	return errors.Join(errs...)
}

// IsAdmin checks whether a user may run admin commands.
// An empty list grants nobody admin rights.
func (c *Config) IsAdmin(userID int64) bool {
	return slices.Contains(c.AdminUsers, userID)
}
