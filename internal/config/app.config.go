package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"callcenter-service/pkg/jwtutil"
)

type AppConfig struct {
	HTTPAddr    string
	AppEnv      string
	StoreDriver string // postgres | memory

	DB DBConfig

	RedisAddr string // empty disables redis
	RedisPass string

	JWT jwtutil.JWTConfig

	EventsDriver  string // none | redis | kafka
	EventsChannel string
	KafkaBrokers  []string
	KafkaTopic    string

	ReconcileInterval time.Duration
	LoginRateLimit    int
	LoginRateWindow   time.Duration

	SystemAdminEmail    string
	SystemAdminPassword string
	SystemAdminName     string

	CORSOrigins    []string
	TrustedProxies []string // CIDRs allowed to set X-Forwarded-For
	NodeID         int64
}

type DBConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int
	MinConns int
}

func Load() AppConfig {
	return AppConfig{
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		AppEnv:      getEnv("APP_ENV", "production"),
		StoreDriver: getEnv("STORE_DRIVER", "postgres"),
		DB: DBConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "callcenter"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvAsInt("DB_MAX_CONNS", 50),
			MinConns: getEnvAsInt("DB_MIN_CONNS", 10),
		},
		RedisAddr: getEnv("REDIS_ADDR", ""),
		RedisPass: getEnv("REDIS_PASS", ""),
		JWT: jwtutil.JWTConfig{
			Secret:   os.Getenv("JWT_SECRET"),
			Issuer:   getEnv("JWT_ISSUER", "callcenter-service"),
			Audience: getEnv("JWT_AUDIENCE", "callcenter-clients"),
			TTL:      getEnvAsDuration("JWT_TTL", 24*time.Hour),
		},
		EventsDriver:        getEnv("EVENTS_DRIVER", "none"),
		EventsChannel:       getEnv("EVENTS_CHANNEL", "callcenter.events"),
		KafkaBrokers:        parseCSVEnv("KAFKA_BROKERS", "kafka:9092"),
		KafkaTopic:          getEnv("KAFKA_TOPIC", "callcenter.events"),
		ReconcileInterval:   getEnvAsDuration("RECONCILE_INTERVAL", 0),
		LoginRateLimit:      getEnvAsInt("LOGIN_RATE_LIMIT", 10),
		LoginRateWindow:     getEnvAsDuration("LOGIN_RATE_WINDOW", time.Minute),
		SystemAdminEmail:    os.Getenv("SYSTEM_ADMIN_EMAIL"),
		SystemAdminPassword: os.Getenv("SYSTEM_ADMIN_PASSWORD"),
		SystemAdminName:     getEnv("SYSTEM_ADMIN_NAME", "System Admin"),
		CORSOrigins:         parseCSVEnv("CORS_ORIGINS", "*"),
		TrustedProxies:      parseCSVEnv("TRUSTED_PROXIES", ""),
		NodeID:              int64(getEnvAsInt("NODE_ID", 1)),
	}
}

// Validate refuses to start with an unusable configuration.
func (c AppConfig) Validate() error {
	if err := c.JWT.Validate(); err != nil {
		return err
	}
	switch c.StoreDriver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.EventsDriver {
	case "none", "kafka":
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("EVENTS_DRIVER=redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unknown EVENTS_DRIVER %q", c.EventsDriver)
	}
	if c.ReconcileInterval < 0 {
		return errors.New("RECONCILE_INTERVAL must not be negative")
	}
	if c.LoginRateLimit < 0 {
		return errors.New("LOGIN_RATE_LIMIT must not be negative")
	}
	return nil
}

func (c AppConfig) IsProduction() bool { return c.AppEnv == "production" }

func (c AppConfig) IsDevelopment() bool { return c.AppEnv == "development" }

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseCSVEnv(key, fallback string) []string {
	val := getEnv(key, fallback)
	parts := strings.Split(val, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvAsInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
