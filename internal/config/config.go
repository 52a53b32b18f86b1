package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Security SecurityConfig
	Alerts   AlertConfig
	Events   EventConfig
	GeoIP    GeoIPConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

// SecurityConfig is the tuning surface for the authentication-risk core.
// Every threshold is externally supplied; the values here are documented
// fallbacks, not business logic.
type SecurityConfig struct {
	// Lockout
	MaxFailedAttempts int
	LockoutWindow     time.Duration
	LockoutDuration   time.Duration

	// Login rate limiting
	LoginRateLimitMax    int
	LoginRateLimitWindow time.Duration

	// Risk scoring and alerting
	SuspiciousScoreThreshold int
	AlertScoreThreshold      int
	HistoryLookback          time.Duration
	HistoryLimit             int
	RuleWindow               time.Duration
	RuleEventLimit           int

	// Session risk
	SessionIdleTimeout       time.Duration
	SessionAbsoluteTimeout   time.Duration
	MaxConcurrentSessions    int
	HighRiskSessionThreshold int
	HighActivityThreshold    int
	FailedLoginFlagThreshold int
	RecentSessionLookback    time.Duration
	RapidLocationWindow      time.Duration

	// Retention
	AttemptRetention time.Duration
	CleanupInterval  time.Duration
}

type AlertConfig struct {
	SESRegion   string
	FromAddress string
	ToAddress   string
}

type EventConfig struct {
	KafkaBrokers []string
	KafkaTopic   string
}

type GeoIPConfig struct {
	DatabasePath string
	CacheTTL     time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "authguard"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:     getEnv("PORT", "8080"),
			Env:      getEnv("ENV", "development"),
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
		Security: SecurityConfig{
			MaxFailedAttempts: getEnvAsInt("MAX_FAILED_ATTEMPTS", 5),
			LockoutWindow:     getEnvAsDuration("LOCKOUT_WINDOW", 15*time.Minute),
			LockoutDuration:   getEnvAsDuration("LOCKOUT_DURATION", 30*time.Minute),

			LoginRateLimitMax:    getEnvAsInt("LOGIN_RATE_LIMIT_MAX", 20),
			LoginRateLimitWindow: getEnvAsDuration("LOGIN_RATE_LIMIT_WINDOW", 1*time.Minute),

			SuspiciousScoreThreshold: getEnvAsInt("SUSPICIOUS_SCORE_THRESHOLD", 70),
			AlertScoreThreshold:      getEnvAsInt("ALERT_SCORE_THRESHOLD", 80),
			HistoryLookback:          getEnvAsDuration("HISTORY_LOOKBACK", 1*time.Hour),
			HistoryLimit:             getEnvAsInt("HISTORY_LIMIT", 10),
			RuleWindow:               getEnvAsDuration("RULE_WINDOW", 1*time.Hour),
			RuleEventLimit:           getEnvAsInt("RULE_EVENT_LIMIT", 100),

			SessionIdleTimeout:       getEnvAsDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
			SessionAbsoluteTimeout:   getEnvAsDuration("SESSION_ABSOLUTE_TIMEOUT", 12*time.Hour),
			MaxConcurrentSessions:    getEnvAsInt("MAX_CONCURRENT_SESSIONS", 5),
			HighRiskSessionThreshold: getEnvAsInt("HIGH_RISK_SESSION_THRESHOLD", 70),
			HighActivityThreshold:    getEnvAsInt("HIGH_ACTIVITY_THRESHOLD", 1000),
			FailedLoginFlagThreshold: getEnvAsInt("FAILED_LOGIN_FLAG_THRESHOLD", 5),
			RecentSessionLookback:    getEnvAsDuration("RECENT_SESSION_LOOKBACK", 30*24*time.Hour),
			RapidLocationWindow:      getEnvAsDuration("RAPID_LOCATION_WINDOW", 30*time.Minute),

			AttemptRetention: getEnvAsDuration("ATTEMPT_RETENTION", 90*24*time.Hour),
			CleanupInterval:  getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
		},
		Alerts: AlertConfig{
			SESRegion:   getEnv("ALERT_SES_REGION", ""),
			FromAddress: getEnv("ALERT_FROM_ADDRESS", ""),
			ToAddress:   getEnv("ALERT_TO_ADDRESS", ""),
		},
		Events: EventConfig{
			KafkaBrokers: parseList(getEnv("KAFKA_BROKERS", "")),
			KafkaTopic:   getEnv("KAFKA_TOPIC", "security-events"),
		},
		GeoIP: GeoIPConfig{
			DatabasePath: getEnv("GEOIP_DB_PATH", ""),
			CacheTTL:     getEnvAsDuration("GEOIP_CACHE_TTL", 5*time.Minute),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	if cfg.Security.MaxFailedAttempts < 1 {
		return nil, fmt.Errorf("MAX_FAILED_ATTEMPTS must be at least 1")
	}
	if cfg.Security.LockoutDuration <= 0 || cfg.Security.LockoutWindow <= 0 {
		return nil, fmt.Errorf("lockout window and duration must be positive")
	}
	if cfg.Security.LoginRateLimitMax < 1 || cfg.Security.LoginRateLimitWindow <= 0 {
		return nil, fmt.Errorf("login rate limit configuration must be positive")
	}

	return cfg, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
