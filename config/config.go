package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
)

// Environment represents the application environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds all application configuration.
type Config struct {
	App           AppConfig           `envPrefix:"APP_"`
	HTTP          HTTPConfig          `envPrefix:"HTTP_"`
	Database      DatabaseConfig      `envPrefix:"DB_"`
	Redis         RedisConfig         `envPrefix:"REDIS_"`
	Auth          AuthConfig          `envPrefix:"AUTH_"`
	Notification  NotificationConfig  `envPrefix:"SES_"`
	Storage       StorageConfig       `envPrefix:"STORAGE_"`
	Catalog       CatalogConfig       `envPrefix:"CATALOG_"`
	Scheduler     SchedulerConfig     `envPrefix:"SCHEDULER_"`
	Observability ObservabilityConfig `envPrefix:"LOG_"`

	// Features is loaded separately from FEATURE_* variables.
	Features *FeatureFlags `env:"-"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string      `env:"NAME" envDefault:"luz-engine"`
	Environment Environment `env:"ENV" envDefault:"development"`
	Debug       bool        `env:"DEBUG"`
	Version     string      `env:"VERSION" envDefault:"0.1.0"`

	// Timezone decides which month is "current" for missions and when the
	// monthly announcement fires.
	Timezone string         `env:"TIMEZONE" envDefault:"America/Mexico_City"`
	Location *time.Location `env:"-"`

	// PublicURL is linked from notification emails.
	PublicURL string `env:"PUBLIC_URL" envDefault:"https://club.superheroes.app"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// HTTPConfig holds API server settings.
type HTTPConfig struct {
	Host           string        `env:"HOST" envDefault:"0.0.0.0"`
	Port           int           `env:"PORT" envDefault:"8080"`
	ReadTimeout    time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout   time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout    time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	MaxBodyBytes   int64         `env:"MAX_BODY_BYTES" envDefault:"1048576"`
	MaxUploadBytes int64         `env:"MAX_UPLOAD_BYTES" envDefault:"27262976"`

	EnableCORS     bool     `env:"ENABLE_CORS"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	// RateLimitPerMinute is per client IP. 0 disables the limiter.
	RateLimitPerMinute int `env:"RATE_LIMIT_PER_MINUTE" envDefault:"120"`

	// CatalogMaxAge is the Cache-Control max-age of public catalog routes.
	CatalogMaxAge time.Duration `env:"CATALOG_MAX_AGE" envDefault:"5m"`
}

// Address returns host:port.
func (c HTTPConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// URL is a postgres:// connection string. Empty selects the in-memory
	// store, which is only allowed outside production.
	URL string `env:"URL"`

	MaxConns        int32         `env:"MAX_CONNS" envDefault:"10"`
	MinConns        int32         `env:"MIN_CONNS" envDefault:"2"`
	MaxConnLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"1h"`
	MaxConnIdleTime time.Duration `env:"CONN_MAX_IDLE_TIME" envDefault:"30m"`
	ConnectTimeout  time.Duration `env:"CONNECT_TIMEOUT" envDefault:"10s"`

	// AutoMigrate applies pending migrations on startup.
	AutoMigrate bool `env:"AUTO_MIGRATE" envDefault:"true"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	// Addr is host:port. Empty disables Redis.
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD,unset"`
	DB       int    `env:"DB" envDefault:"0"`

	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`

	// CatalogTTL bounds how long cached reward listings are served.
	CatalogTTL time.Duration `env:"CATALOG_TTL" envDefault:"5m"`

	// IdempotencyTTL is how long a redemption Idempotency-Key is remembered.
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	Disabled bool `env:"DISABLED"`
}

// Enabled reports whether a Redis connection should be opened.
func (c RedisConfig) Enabled() bool {
	return c.Addr != "" && !c.Disabled
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	JWTSecret string        `env:"JWT_SECRET,unset"`
	Issuer    string        `env:"ISSUER" envDefault:"luz-identity"`
	Audience  string        `env:"AUDIENCE" envDefault:"luz-engine"`
	Leeway    time.Duration `env:"LEEWAY" envDefault:"30s"`
}

// NotificationConfig holds the SES sender settings. When FromAddress is
// empty notifications are only logged.
type NotificationConfig struct {
	Region           string        `env:"REGION" envDefault:"us-east-1"`
	FromAddress      string        `env:"FROM_ADDRESS"`
	FromName         string        `env:"FROM_NAME" envDefault:"Club de Superhéroes"`
	AccessKeyID      string        `env:"ACCESS_KEY_ID,unset"`
	SecretAccessKey  string        `env:"SECRET_ACCESS_KEY,unset"`
	Endpoint         string        `env:"ENDPOINT"`
	ConfigurationSet string        `env:"CONFIGURATION_SET"`
	DefaultLanguage  string        `env:"DEFAULT_LANGUAGE" envDefault:"es"`
	SendTimeout      time.Duration `env:"SEND_TIMEOUT" envDefault:"10s"`

	// HandlerTimeout bounds one event handler run, lookups included.
	HandlerTimeout time.Duration `env:"HANDLER_TIMEOUT" envDefault:"15s"`

	// NotifyOnSubmission also emails when a proof is submitted.
	NotifyOnSubmission bool `env:"NOTIFY_ON_SUBMISSION" envDefault:"true"`
}

// Enabled reports whether emails are actually sent.
func (c NotificationConfig) Enabled() bool {
	return c.FromAddress != ""
}

// StorageConfig holds proof upload settings.
type StorageConfig struct {
	// Driver is "s3" or "memory".
	Driver string `env:"DRIVER" envDefault:"memory"`

	Bucket          string `env:"BUCKET"`
	Region          string `env:"REGION" envDefault:"us-east-1"`
	Prefix          string `env:"PREFIX" envDefault:"proofs/"`
	Endpoint        string `env:"ENDPOINT"`
	UsePathStyle    bool   `env:"USE_PATH_STYLE"`
	AccessKeyID     string `env:"ACCESS_KEY_ID,unset"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY,unset"`

	// MaxProofBytes caps one uploaded file.
	MaxProofBytes int `env:"MAX_PROOF_BYTES" envDefault:"26214400"`
}

// CatalogConfig holds progression and catalog settings.
type CatalogConfig struct {
	// Archangels are the guide identifiers assigned to new children.
	Archangels []string `env:"ARCHANGELS" envSeparator:"," envDefault:"miguel,gabriel,rafael,uriel,jofiel,chamuel"`

	WelcomeBonus int `env:"WELCOME_BONUS" envDefault:"100"`

	// MissionCacheSize is the number of LRU entries for published missions.
	MissionCacheSize int `env:"MISSION_CACHE_SIZE" envDefault:"128"`
}

// SchedulerConfig holds background job settings.
type SchedulerConfig struct {
	Enabled bool `env:"ENABLED" envDefault:"true"`

	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"1h"`

	// AnnounceCron is a 5-field cron expression in the app timezone.
	AnnounceCron string `env:"ANNOUNCE_CRON" envDefault:"0 9 1 * *"`

	TickInterval time.Duration `env:"TICK_INTERVAL" envDefault:"1s"`
	JobTimeout   time.Duration `env:"JOB_TIMEOUT" envDefault:"5m"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	return load(env.Options{})
}

// LoadFrom loads configuration from the given variables only.
func LoadFrom(vars map[string]string) (*Config, error) {
	return load(env.Options{Environment: vars})
}

func load(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	// DATABASE_URL is the conventional name; DB_URL also works.
	if cfg.Database.URL == "" {
		cfg.Database.URL = lookup(opts, "DATABASE_URL")
	}

	loc, err := time.LoadLocation(cfg.App.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config validation: APP_TIMEZONE %q: %w", cfg.App.Timezone, err)
	}
	cfg.App.Location = loc
	if cfg.App.Environment == EnvDevelopment {
		cfg.App.Debug = true
	}

	if opts.Environment != nil {
		cfg.Features = loadFeatureFlags(func(key string) string { return opts.Environment[key] })
	} else {
		cfg.Features = LoadFeatureFlags()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func lookup(opts env.Options, key string) string {
	if opts.Environment != nil {
		return opts.Environment[key]
	}
	return os.Getenv(key)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	if len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, "AUTH_JWT_SECRET must be at least 32 bytes")
	}
	if c.App.Environment == EnvProduction && c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required in production")
	}
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		errs = append(errs, "HTTP_PORT must be 1-65535")
	}
	if c.HTTP.MaxBodyBytes <= 0 || c.HTTP.MaxUploadBytes <= 0 {
		errs = append(errs, "HTTP_MAX_BODY_BYTES and HTTP_MAX_UPLOAD_BYTES must be positive")
	}
	if int64(c.Storage.MaxProofBytes) > c.HTTP.MaxUploadBytes {
		errs = append(errs, "STORAGE_MAX_PROOF_BYTES must not exceed HTTP_MAX_UPLOAD_BYTES")
	}
	switch c.Storage.Driver {
	case "memory":
		if c.App.Environment == EnvProduction {
			errs = append(errs, "STORAGE_DRIVER=memory is not allowed in production")
		}
	case "s3":
		if c.Storage.Bucket == "" {
			errs = append(errs, "STORAGE_BUCKET is required for the s3 driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("STORAGE_DRIVER must be s3 or memory, got %q", c.Storage.Driver))
	}
	if len(c.Catalog.Archangels) == 0 {
		errs = append(errs, "CATALOG_ARCHANGELS must list at least one archangel")
	}
	if c.Catalog.WelcomeBonus < 0 {
		errs = append(errs, "CATALOG_WELCOME_BONUS must not be negative")
	}
	if c.Scheduler.ReconcileInterval <= 0 {
		errs = append(errs, "SCHEDULER_RECONCILE_INTERVAL must be positive")
	}
	switch c.Observability.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("LOG_LEVEL must be debug, info, warn or error, got %q", c.Observability.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// WelcomeBonus is the configured bonus, or 0 when the feature is off.
func (c *Config) WelcomeBonus() int {
	if c.Features != nil && !c.Features.IsEnabled(FeatureOnboardingWelcomeBonus, nil) {
		return 0
	}
	return c.Catalog.WelcomeBonus
}
