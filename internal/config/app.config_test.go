package config

import (
	"strings"
	"testing"
	"time"

	"callcenter-service/pkg/jwtutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", strings.Repeat("k", 32))
	for _, k := range []string{"HTTP_ADDR", "STORE_DRIVER", "EVENTS_DRIVER", "JWT_TTL", "RECONCILE_INTERVAL", "LOGIN_RATE_LIMIT"} {
		t.Setenv(k, "")
	}
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")

	cfg := Load()
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 24*time.Hour, cfg.JWT.TTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, time.Duration(0), cfg.ReconcileInterval)
	require.NoError(t, cfg.Validate())
}

func TestValidateFailsClosedOnWeakSecret(t *testing.T) {
	cfg := AppConfig{StoreDriver: "memory", EventsDriver: "none", JWT: jwtutil.JWTConfig{Secret: "short"}}
	assert.ErrorIs(t, cfg.Validate(), jwtutil.ErrWeakSecret)
}

func TestValidateRejectsUnknownDrivers(t *testing.T) {
	base := AppConfig{StoreDriver: "memory", EventsDriver: "none", JWT: jwtutil.JWTConfig{Secret: strings.Repeat("k", 32)}}

	bad := base
	bad.StoreDriver = "mongo"
	assert.Error(t, bad.Validate())

	bad = base
	bad.EventsDriver = "redis"
	assert.Error(t, bad.Validate())

	bad.RedisAddr = "localhost:6379"
	assert.NoError(t, bad.Validate())
}

func TestDSNPrefersURL(t *testing.T) {
	c := DBConfig{Host: "h", Port: "1", User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@h:1/n?sslmode=disable", c.DSN())
	c.URL = "postgres://override"
	assert.Equal(t, "postgres://override", c.DSN())
}
