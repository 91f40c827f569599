// Package config loads the process-wide configuration from environment
// variables using a plain getenv idiom (no viper, no godotenv). Load() is
// called exactly once, at startup; nothing in the service re-reads the
// environment later.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the single configuration object threaded through the
// composition root. Every sub-struct groups the env vars for one concern.
type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Storage   StorageConfig
	Scheduler SchedulerConfig
	Bootstrap BootstrapConfig
	Jobx      JobxConfig
	Notifx    NotifxConfig
	HTTP      HTTPConfig
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (r RedisConfig) Address() string {
	return r.Host + ":" + strconv.Itoa(r.Port)
}

// AuthConfig groups the Token Codec, Password Policy Engine, and Request
// Gate rate-limit settings.
type AuthConfig struct {
	JWT        JWTConfig
	Password   PasswordConfig
	RateLimit  RateLimitConfig
}

type JWTConfig struct {
	// SigningSecret must decode to at least 256 bits; Bootstrap refuses to
	// start the process if this is empty, too short, or a known default.
	SigningSecret        string
	Issuer               string
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	ServiceAccountTTL    time.Duration
}

type PasswordConfig struct {
	BcryptCost       int
	MinLength        int
	HistoryLimit     int
	ExpirationPeriod time.Duration
}

type RateLimitConfig struct {
	Enabled  bool
	Capacity int
	RefillPerMinute int
}

type StorageConfig struct {
	Mode      string // "local" | "s3"
	LocalDir  string
	S3Bucket  string
	S3Region  string
}

type SchedulerConfig struct {
	Enabled                bool
	PasswordScanCron       string // standard 5-field cron expression
	RevocationGCInterval   time.Duration
	ExpirationWarningDays  int
}

type BootstrapConfig struct {
	AdminUsername string
	AdminPassword string
	AdminEmail    string
}

type HTTPConfig struct {
	Port           string
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// Load reads every sub-config from the environment. It never aborts the
// process itself — invariant enforcement (missing secret, missing admin
// password) is the Bootstrap component's job, run once the Config is fully
// assembled.
func Load() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "activitytracking"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWT: JWTConfig{
				SigningSecret:     getEnv("JWT_SIGNING_SECRET", ""),
				Issuer:            getEnv("JWT_ISSUER", "activitytracking-core"),
				AccessTokenTTL:    getEnvDuration("JWT_ACCESS_TTL", 24*time.Hour),
				RefreshTokenTTL:   getEnvDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
				ServiceAccountTTL: getEnvDuration("JWT_SERVICE_ACCOUNT_TTL", 30*24*time.Hour),
			},
			Password: PasswordConfig{
				BcryptCost:       getEnvInt("PASSWORD_BCRYPT_COST", 12),
				MinLength:        getEnvInt("PASSWORD_MIN_LENGTH", 10),
				HistoryLimit:     getEnvInt("PASSWORD_HISTORY_LIMIT", 5),
				ExpirationPeriod: getEnvDuration("PASSWORD_EXPIRATION_PERIOD", 90*24*time.Hour),
			},
			RateLimit: RateLimitConfig{
				Enabled:         getEnvBool("RATE_LIMIT_ENABLED", true),
				Capacity:        getEnvInt("RATE_LIMIT_CAPACITY", 5),
				RefillPerMinute: getEnvInt("RATE_LIMIT_REFILL_PER_MINUTE", 5),
			},
		},
		Storage: StorageConfig{
			Mode:     getEnv("STORAGE_MODE", "local"),
			LocalDir: getEnv("UPLOAD_DIR", "./uploads"),
			S3Bucket: getEnv("AWS_BUCKET", "activitytracking-receipts"),
			S3Region: getEnv("AWS_REGION", "us-east-1"),
		},
		Scheduler: SchedulerConfig{
			Enabled:               getEnvBool("SCHEDULER_ENABLED", true),
			PasswordScanCron:      getEnv("SCHEDULER_PASSWORD_SCAN_CRON", "0 7 * * *"),
			RevocationGCInterval:  getEnvDuration("SCHEDULER_REVOCATION_GC_INTERVAL", time.Hour),
			ExpirationWarningDays: getEnvInt("SCHEDULER_EXPIRATION_WARNING_DAYS", 7),
		},
		Bootstrap: BootstrapConfig{
			AdminUsername: getEnv("BOOTSTRAP_ADMIN_USERNAME", "admin"),
			AdminPassword: getEnv("BOOTSTRAP_ADMIN_PASSWORD", ""),
			AdminEmail:    getEnv("BOOTSTRAP_ADMIN_EMAIL", ""),
		},
		Jobx:   loadJobxConfig(),
		Notifx: loadNotifxConfig(),
		HTTP: HTTPConfig{
			Port:           getEnv("PORT", "8080"),
			AllowedOrigins: getEnvStringSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			RequestTimeout: getEnvDuration("HTTP_REQUEST_TIMEOUT", 30*time.Second),
		},
	}
}

// ---------------------------------------------------------------------------
// Env helpers
// ---------------------------------------------------------------------------

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvStringSlice(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return fallback
}
