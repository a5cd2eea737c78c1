// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings for the
// automation engine (sweep cadence, bedroom defaults), its collaborators
// (listing source, email delivery, database) and the ops HTTP surface.
package config

import (
	"errors"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // SCHEDULER_TZ must resolve on hosts without zoneinfo

	"github.com/robfig/cron/v3"
)

// Environment names recognised by APP_ENV.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// CORSConfig defines Cross-Origin Resource Sharing settings for the ops API.
type CORSConfig struct {
	AllowedOrigins []string
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "autodaft")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// AutomationConfig controls the two recurring sweeps and how preferences are
// translated into listing queries.
type AutomationConfig struct {
	MatchInterval      time.Duration // MATCH_INTERVAL, e.g. 15m
	MatchRunOnStart    bool          // MATCH_RUN_ON_START
	MatchConcurrency   int           // MATCH_CONCURRENCY, preferences processed in parallel per tick
	ExpirySchedule     string        // EXPIRY_SCHEDULE, 5-field cron spec
	Timezone           string        // SCHEDULER_TZ, IANA name
	DefaultMinBedrooms int           // DEFAULT_MIN_BEDROOMS
	DefaultMaxBedrooms int           // DEFAULT_MAX_BEDROOMS
}

// ListingsConfig points at the listings microservice.
type ListingsConfig struct {
	BaseURL         string        // LISTINGS_URL
	Timeout         time.Duration // LISTINGS_TIMEOUT
	BreakerFailures int           // LISTINGS_BREAKER_FAILURES
	BreakerCooldown time.Duration // LISTINGS_BREAKER_COOLDOWN
}

// EmailConfig holds SES delivery settings.
type EmailConfig struct {
	FromAddress string // SES_FROM_EMAIL
	ReplyTo     string // SES_REPLY_TO
	Region      string // AWS_REGION
}

// Config holds all configuration values for the application.
type Config struct {
	Env string // development|production

	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	GinMode           string // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool
	APIBasePath string

	// Storage
	DBPath string

	Automation AutomationConfig
	Listings   ListingsConfig
	Email      EmailConfig

	// Rate limiting for manual sweep triggers
	RateRPS   float64
	RateBurst int

	CORS CORSConfig
	OTEL OTELConfig
}

// Production reports whether real email delivery is enabled.
func (c Config) Production() bool { return c.Env == EnvProduction }

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the environment, fills defaults and normalizes values. Every
// invalid setting is reported in the returned error, not just the first.
func Load() (Config, error) {
	cfg := Config{
		Env: normalizeEnv(env("APP_ENV", EnvDevelopment, parseString)),

		Port:              env("PORT", "8080", parseString),
		ReadTimeout:       env("READ_TIMEOUT", 15*time.Second, time.ParseDuration),
		ReadHeaderTimeout: env("READ_HEADER_TIMEOUT", 10*time.Second, time.ParseDuration),
		WriteTimeout:      env("WRITE_TIMEOUT", 20*time.Second, time.ParseDuration),
		IdleTimeout:       env("IDLE_TIMEOUT", 60*time.Second, time.ParseDuration),
		GinMode:           normalizeGinMode(env("GIN_MODE", "release", parseString)),

		LogLevel:    normalizeLogLevel(env("LOG_LEVEL", "info", parseString)),
		LogPretty:   env("LOG_PRETTY", false, parseBool),
		APIBasePath: normalizeBasePath(env("API_BASE_PATH", "/api/v1", parseString)),

		DBPath: env("DB_PATH", "autodaft.db", parseString),

		Automation: AutomationConfig{
			MatchInterval:      env("MATCH_INTERVAL", 15*time.Minute, time.ParseDuration),
			MatchRunOnStart:    env("MATCH_RUN_ON_START", true, parseBool),
			MatchConcurrency:   env("MATCH_CONCURRENCY", 4, strconv.Atoi),
			ExpirySchedule:     env("EXPIRY_SCHEDULE", "0 0 * * *", parseString),
			Timezone:           env("SCHEDULER_TZ", "UTC", parseString),
			DefaultMinBedrooms: env("DEFAULT_MIN_BEDROOMS", 1, strconv.Atoi),
			DefaultMaxBedrooms: env("DEFAULT_MAX_BEDROOMS", 3, strconv.Atoi),
		},

		Listings: ListingsConfig{
			BaseURL:         strings.TrimRight(env("LISTINGS_URL", "http://localhost:8000", parseString), "/"),
			Timeout:         env("LISTINGS_TIMEOUT", 30*time.Second, time.ParseDuration),
			BreakerFailures: env("LISTINGS_BREAKER_FAILURES", 5, strconv.Atoi),
			BreakerCooldown: env("LISTINGS_BREAKER_COOLDOWN", time.Minute, time.ParseDuration),
		},

		Email: EmailConfig{
			FromAddress: env("SES_FROM_EMAIL", "", parseString),
			ReplyTo:     env("SES_REPLY_TO", "", parseString),
			Region:      env("AWS_REGION", "eu-west-1", parseString),
		},

		RateRPS:   env("RATE_RPS", 1.0, parseFloat),
		RateBurst: env("RATE_BURST", 3, strconv.Atoi),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(env("CORS_ALLOWED_ORIGINS", "", parseString)),
		},

		OTEL: OTELConfig{
			Enabled:     env("OTEL_ENABLED", false, parseBool),
			Endpoint:    env("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317", parseString),
			Insecure:    env("OTEL_EXPORTER_OTLP_INSECURE", true, parseBool),
			ServiceName: env("OTEL_SERVICE_NAME", "autodaft", parseString),
			SampleRatio: env("OTEL_TRACES_SAMPLER_ARG", 1.0, parseFloat),
		},
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	switch c.Env {
	case EnvDevelopment, EnvProduction, "test":
	default:
		check(false, "APP_ENV must be one of: development, production, test")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		check(false, "LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	check(c.Port != "", "PORT must not be empty")
	check(c.ReadTimeout > 0 && c.ReadHeaderTimeout > 0 && c.WriteTimeout > 0 && c.IdleTimeout > 0,
		"timeouts must be positive durations")
	check(c.DBPath != "", "DB_PATH must not be empty")

	a := c.Automation
	check(a.MatchInterval > 0, "MATCH_INTERVAL must be a positive duration")
	check(a.MatchConcurrency >= 1, "MATCH_CONCURRENCY must be >= 1")
	_, cronErr := cron.ParseStandard(a.ExpirySchedule)
	check(cronErr == nil, "EXPIRY_SCHEDULE must be a valid 5-field cron expression")
	_, tzErr := time.LoadLocation(a.Timezone)
	check(tzErr == nil, "SCHEDULER_TZ must be a valid IANA time zone")
	check(a.DefaultMinBedrooms >= 0 && a.DefaultMaxBedrooms >= a.DefaultMinBedrooms,
		"DEFAULT_MIN_BEDROOMS must be >= 0 and <= DEFAULT_MAX_BEDROOMS")

	l := c.Listings
	check(l.BaseURL != "", "LISTINGS_URL must not be empty")
	check(l.Timeout > 0 && l.BreakerCooldown > 0,
		"LISTINGS_TIMEOUT and LISTINGS_BREAKER_COOLDOWN must be positive durations")
	check(l.BreakerFailures >= 1, "LISTINGS_BREAKER_FAILURES must be >= 1")

	check(!c.Production() || c.Email.FromAddress != "", "SES_FROM_EMAIL is required when APP_ENV=production")

	check(c.RateRPS >= 0, "RATE_RPS must be >= 0")
	check(c.RateBurst >= 1, "RATE_BURST must be >= 1")
	check(c.OTEL.SampleRatio >= 0 && c.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")

	return errors.Join(errs...)
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	return p
}
