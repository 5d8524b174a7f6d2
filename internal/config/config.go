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

// Config aggregates runtime configuration for the gateway.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Session  SessionConfig
	Cache    CacheConfig
	Upstream UpstreamConfig
	Stub     StubConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// AuthConfig controls how sessions are verified against the auth API.
type AuthConfig struct {
	APIBaseURL     string
	VerifyTimeout  time.Duration
	RefreshTimeout time.Duration
	LoginTimeout   time.Duration
	GracePeriod    time.Duration
	// DevBypass allows any session holding an access token without
	// verification or role checks. Never allowed in production.
	DevBypass bool
	// DefaultRole is stored when a login response carries no role.
	DefaultRole string
}

// SessionConfig controls the browser session cookie and token store.
type SessionConfig struct {
	StoreDriver  string
	CookieName   string
	CookieSecure bool
	TTL          time.Duration
	KeyPrefix    string
}

// CacheConfig controls the per-session query cache.
type CacheConfig struct {
	Driver string
	TTL    time.Duration
}

// UpstreamConfig points at the SAIL REST API for collaborator requests.
type UpstreamConfig struct {
	APIBaseURL string
}

// StubConfig configures the development auth backend.
type StubConfig struct {
	Host             string
	Port             string
	JWTSecret        string
	AccessTTLMinutes int
	RefreshTTLHours  int
	BcryptCost       int
	SeedAdminEmail   string
	SeedAdminPass    string
}

const (
	StoreDriverMemory   = "memory"
	StoreDriverRedis    = "redis"
	StoreDriverPostgres = "postgres"
)

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "sail-gateway"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			File:       os.Getenv("LOG_FILE"),
			MaxSizeMB:  getEnvAsInt("LOG_FILE_MAX_SIZE_MB", 100),
			MaxBackups: getEnvAsInt("LOG_FILE_MAX_BACKUPS", 3),
			MaxAgeDays: getEnvAsInt("LOG_FILE_MAX_AGE_DAYS", 28),
		},
		Auth: AuthConfig{
			APIBaseURL:     strings.TrimRight(getEnv("AUTH_API_BASE_URL", "http://localhost:8001/api"), "/"),
			VerifyTimeout:  getEnvAsDuration("AUTH_VERIFY_TIMEOUT", 8*time.Second),
			RefreshTimeout: getEnvAsDuration("AUTH_REFRESH_TIMEOUT", 8*time.Second),
			LoginTimeout:   getEnvAsDuration("AUTH_LOGIN_TIMEOUT", 15*time.Second),
			GracePeriod:    getEnvAsDuration("AUTH_GRACE_PERIOD", time.Hour),
			DevBypass:      getEnvAsBool("AUTH_DEV_BYPASS", false),
			DefaultRole:    getEnv("AUTH_DEFAULT_ROLE", "admin"),
		},
		Session: SessionConfig{
			StoreDriver:  strings.ToLower(getEnv("TOKEN_STORE_DRIVER", StoreDriverRedis)),
			CookieName:   getEnv("SESSION_COOKIE_NAME", "sail_session"),
			CookieSecure: getEnvAsBool("SESSION_COOKIE_SECURE", false),
			TTL:          getEnvAsDuration("SESSION_TTL", 7*24*time.Hour),
			KeyPrefix:    getEnv("SESSION_KEY_PREFIX", "sail"),
		},
		Cache: CacheConfig{
			Driver: strings.ToLower(getEnv("QUERY_CACHE_DRIVER", StoreDriverMemory)),
			TTL:    getEnvAsDuration("QUERY_CACHE_TTL", 5*time.Minute),
		},
		Upstream: UpstreamConfig{
			APIBaseURL: strings.TrimRight(getEnv("SAIL_API_BASE_URL", "http://localhost:8001/api"), "/"),
		},
		Stub: StubConfig{
			Host:             getEnv("STUB_HOST", "0.0.0.0"),
			Port:             getEnv("STUB_PORT", "8001"),
			JWTSecret:        getEnv("STUB_JWT_SECRET", "dev-secret"),
			AccessTTLMinutes: getEnvAsInt("STUB_ACCESS_TTL_MINUTES", 5),
			RefreshTTLHours:  getEnvAsInt("STUB_REFRESH_TTL_HOURS", 24),
			BcryptCost:       getEnvAsInt("STUB_BCRYPT_COST", 10),
			SeedAdminEmail:   getEnv("STUB_SEED_ADMIN_EMAIL", "admin@example.com"),
			SeedAdminPass:    os.Getenv("STUB_SEED_ADMIN_PASSWORD"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Session.StoreDriver {
	case StoreDriverMemory, StoreDriverRedis:
	case StoreDriverPostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required when TOKEN_STORE_DRIVER=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("TOKEN_STORE_DRIVER must be one of memory, redis, postgres, got %q", c.Session.StoreDriver))
	}
	switch c.Cache.Driver {
	case StoreDriverMemory, StoreDriverRedis:
	default:
		errs = append(errs, fmt.Errorf("QUERY_CACHE_DRIVER must be one of memory, redis, got %q", c.Cache.Driver))
	}

	if c.Auth.APIBaseURL == "" {
		errs = append(errs, errors.New("AUTH_API_BASE_URL is required"))
	}
	if c.Auth.VerifyTimeout <= 0 {
		errs = append(errs, errors.New("AUTH_VERIFY_TIMEOUT must be positive"))
	}
	if c.Auth.RefreshTimeout <= 0 {
		errs = append(errs, errors.New("AUTH_REFRESH_TIMEOUT must be positive"))
	}
	if c.Auth.GracePeriod < 0 {
		errs = append(errs, errors.New("AUTH_GRACE_PERIOD must not be negative"))
	}
	if c.Auth.DevBypass && c.IsProduction() {
		errs = append(errs, errors.New("AUTH_DEV_BYPASS cannot be enabled in production"))
	}
	if c.Session.CookieName == "" {
		errs = append(errs, errors.New("SESSION_COOKIE_NAME is required"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}

	return errors.Join(errs...)
}

// IsProduction reports whether the app runs in production.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Addr returns the stub's bind address.
func (s StubConfig) Addr() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
