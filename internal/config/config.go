// Package config loads application configuration from the environment.
// A .env file in the working directory, when present, is read first;
// variables already set in the environment win over it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field corresponds
// to an environment variable.
type Config struct {
	Env  string // APP_ENV: dev, test or prod
	Port string // APP_PORT

	DBUser             string        // DB_USER
	DBPass             string        // DB_PASS (empty allowed)
	DBHost             string        // DB_HOST
	DBPort             string        // DB_PORT
	DBName             string        // DB_NAME
	DBMaxConns         int           // DB_MAX_CONNS
	DBStatementTimeout time.Duration // DB_STATEMENT_TIMEOUT

	JWTSecret  string // JWT_SECRET
	BcryptCost int    // BCRYPT_COST

	SchemaProbeTTL            time.Duration  // SCHEMA_PROBE_TTL
	BookingExpiryThreshold    time.Duration  // BOOKING_EXPIRY_THRESHOLD
	BookingSweepInterval      time.Duration  // BOOKING_SWEEP_INTERVAL
	BookingSweepBatch         int            // BOOKING_SWEEP_BATCH
	SemesterReminderLookahead time.Duration  // SEMESTER_REMINDER_LOOKAHEAD
	SemesterJobAt             string         // SEMESTER_JOB_AT, HH:MM
	Location                  *time.Location // APP_TIMEZONE
	RunJobsOnStart            bool           // RUN_JOBS_ON_START
	DefaultCurrency           string         // DEFAULT_CURRENCY

	RabbitURL   string // RABBITMQ_URL or AMQP_URL; empty disables the broker
	AuditLogDir string // AUDIT_LOG_DIR

	SMTPHost     string // SMTP_HOST; empty disables e-mail
	SMTPPort     int    // SMTP_PORT
	SMTPUsername string // SMTP_USERNAME
	SMTPPassword string // SMTP_PASSWORD
	SMTPFrom     string // SMTP_FROM

	LogLevel  string // LOG_LEVEL: debug, info, warn, error
	LogFormat string // LOG_FORMAT: json or text
}

// loader collects every problem instead of stopping at the first one.
type loader struct{ errs []error }

func (l *loader) fail(format string, args ...any) {
	l.errs = append(l.errs, fmt.Errorf(format, args...))
}

// must retrieves the value of a required environment variable.
func (l *loader) must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		l.fail("missing required env var: %s", key)
	}
	return strings.TrimSpace(v)
}

func (l *loader) envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.fail("invalid int for %s: %q", key, v)
		return def
	}
	return n
}

func (l *loader) envDur(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		l.fail("invalid duration for %s: %q", key, v)
		return def
	}
	return d
}

func (l *loader) envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		switch strings.ToLower(v) {
		case "yes", "on":
			return true
		case "no", "off":
			return false
		}
		l.fail("invalid bool for %s: %q", key, v)
		return def
	}
	return b
}

func envStr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// Load reads .env (if present) and the environment and returns the
// configuration, or an error listing every missing or malformed variable.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("read .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from the process environment only.
func FromEnv() (Config, error) {
	l := &loader{}
	cfg := Config{
		Env:  envStr("APP_ENV", "dev"),
		Port: envStr("APP_PORT", "8080"),

		DBUser:             l.must("DB_USER"),
		DBPass:             os.Getenv("DB_PASS"),
		DBHost:             l.must("DB_HOST"),
		DBPort:             envStr("DB_PORT", "3306"),
		DBName:             l.must("DB_NAME"),
		DBMaxConns:         l.envInt("DB_MAX_CONNS", 25),
		DBStatementTimeout: l.envDur("DB_STATEMENT_TIMEOUT", 10*time.Second),

		JWTSecret:  l.must("JWT_SECRET"),
		BcryptCost: l.envInt("BCRYPT_COST", 12),

		SchemaProbeTTL:            l.envDur("SCHEMA_PROBE_TTL", 10*time.Minute),
		BookingExpiryThreshold:    l.envDur("BOOKING_EXPIRY_THRESHOLD", 30*time.Minute),
		BookingSweepInterval:      l.envDur("BOOKING_SWEEP_INTERVAL", 15*time.Minute),
		BookingSweepBatch:         l.envInt("BOOKING_SWEEP_BATCH", 500),
		SemesterReminderLookahead: l.envDur("SEMESTER_REMINDER_LOOKAHEAD", 7*24*time.Hour),
		SemesterJobAt:             envStr("SEMESTER_JOB_AT", "00:05"),
		RunJobsOnStart:            l.envBool("RUN_JOBS_ON_START", false),
		DefaultCurrency:           strings.ToUpper(envStr("DEFAULT_CURRENCY", "UGX")),

		RabbitURL:   envStr("RABBITMQ_URL", os.Getenv("AMQP_URL")),
		AuditLogDir: envStr("AUDIT_LOG_DIR", "logs"),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     l.envInt("SMTP_PORT", 587),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     envStr("SMTP_FROM", "no-reply@hostel.local"),

		LogLevel:  strings.ToLower(envStr("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(envStr("LOG_FORMAT", "json")),
	}

	tz := envStr("APP_TIMEZONE", "Africa/Kampala")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		l.fail("invalid APP_TIMEZONE %q: %v", tz, err)
		loc = time.UTC
	}
	cfg.Location = loc

	if cfg.BookingSweepBatch < 1 {
		l.fail("BOOKING_SWEEP_BATCH must be positive, got %d", cfg.BookingSweepBatch)
	}
	if cfg.DBMaxConns < 1 {
		l.fail("DB_MAX_CONNS must be positive, got %d", cfg.DBMaxConns)
	}
	return cfg, errors.Join(l.errs...)
}
