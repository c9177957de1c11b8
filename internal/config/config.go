package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vaxsched/vaxsched/internal/domain/doseschedule"
)

type Config struct {
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir    string        `mapstructure:"MIGRATIONS_DIR"`
	CORSOrigins      []string      `mapstructure:"CORS_ORIGINS"`
	PairingMode      string        `mapstructure:"PAIRING_MODE"`
	VerifyWorkers    int           `mapstructure:"VERIFY_WORKERS"`
	ReminderEnabled  bool          `mapstructure:"REMINDER_ENABLED"`
	ReminderLeadDays int           `mapstructure:"REMINDER_LEAD_DAYS"`
	ReminderInterval time.Duration `mapstructure:"REMINDER_INTERVAL"`
	LineChannelToken string        `mapstructure:"LINE_CHANNEL_ACCESS_TOKEN"`
	LineAPIBaseURL   string        `mapstructure:"LINE_API_BASE_URL"`
	HospitalTimezone string        `mapstructure:"HOSPITAL_TIMEZONE"`
	BodyLimit        string        `mapstructure:"BODY_LIMIT"`
	RequestTimeout   time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	RateLimitRPS     float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst   int           `mapstructure:"RATE_LIMIT_BURST"`
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_DIR",
	"CORS_ORIGINS", "PAIRING_MODE", "VERIFY_WORKERS",
	"REMINDER_ENABLED", "REMINDER_LEAD_DAYS", "REMINDER_INTERVAL",
	"LINE_CHANNEL_ACCESS_TOKEN", "LINE_API_BASE_URL", "HOSPITAL_TIMEZONE",
	"BODY_LIMIT", "REQUEST_TIMEOUT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("PAIRING_MODE", string(doseschedule.PairPositional))
	v.SetDefault("VERIFY_WORKERS", 4)
	v.SetDefault("REMINDER_ENABLED", false)
	v.SetDefault("REMINDER_LEAD_DAYS", 1)
	v.SetDefault("REMINDER_INTERVAL", "1h")
	v.SetDefault("LINE_API_BASE_URL", "https://api.line.me")
	v.SetDefault("HOSPITAL_TIMEZONE", "Asia/Bangkok")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("REQUEST_TIMEOUT", "60s")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Pairing returns the configured dose-to-appointment pairing mode.
func (c *Config) Pairing() doseschedule.PairingMode {
	mode, err := doseschedule.ParsePairingMode(c.PairingMode)
	if err != nil {
		return doseschedule.PairPositional
	}
	return mode
}

// Location returns the hospital's timezone, used to decide what "today" is
// for reminders.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.HospitalTimezone)
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if _, err := doseschedule.ParsePairingMode(c.PairingMode); err != nil {
		return fmt.Errorf("PAIRING_MODE: %w", err)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.VerifyWorkers < 1 {
		return fmt.Errorf("VERIFY_WORKERS must be at least 1, got %d", c.VerifyWorkers)
	}
	if c.ReminderLeadDays < 0 {
		return fmt.Errorf("REMINDER_LEAD_DAYS must not be negative, got %d", c.ReminderLeadDays)
	}
	if c.ReminderEnabled && c.ReminderInterval <= 0 {
		return fmt.Errorf("REMINDER_INTERVAL must be positive when reminders are enabled")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("HOSPITAL_TIMEZONE: %w", err)
	}
	return nil
}
