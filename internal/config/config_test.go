package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"HOST", "PORT", "REQUEST_TIMEOUT", "METRICS_ENABLED",
		"DB_TYPE", "DATABASE_URL", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSL_MODE",
		"MONGO_URI", "MONGO_DB",
		"JWT_SECRET", "TOKEN_TTL", "ADMIN_USERNAME", "ADMIN_EMAIL", "ADMIN_PASSWORD",
		"ALLOWED_ORIGINS", "DEBUG", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, DBMemory, cfg.Database.Type)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Debug)
}

func TestLoadConfigPostgresFromParts(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_TYPE", "postgres")
	t.Setenv("DB_USER", "press")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_SSL_MODE", "disable")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "postgresql://press:secret@db:5432/postgres?sslmode=disable", cfg.Database.URI)
}

func TestLoadConfigPostgresURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_TYPE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@host/db?sslmode=verify-full&connect_timeout=5")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "verify-full", cfg.Database.SSLMode)
}

func TestLoadConfigPostgresMissingUser(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_TYPE", "postgres")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigMongo(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_TYPE", "MONGO")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, DBMongo, cfg.Database.Type)
	assert.Equal(t, "gator_press", cfg.Database.Name)
}

func TestLoadConfigRejectsUnknownBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_TYPE", "sqlite")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("REQUEST_TIMEOUT", "2s")
	t.Setenv("TOKEN_TTL", "1h")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("ADMIN_EMAIL", "root@example.com")
	t.Setenv("ADMIN_PASSWORD", "changeme")
	t.Setenv("DEBUG", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.Equal(t, "admin", cfg.Auth.AdminUsername)
	assert.True(t, cfg.Debug)
}

func TestLoadConfigInvalidPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "eighty")

	_, err := LoadConfig()
	assert.Error(t, err)
}
