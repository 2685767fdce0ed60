package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("APP_ENV", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, 7*24*time.Hour, cfg.DurableSessionTTL)
	assert.Equal(t, 12*time.Hour, cfg.ScopedSessionTTL)
	assert.False(t, cfg.FederationEnabled())
}

func TestLoadParsesOriginsAndDurations(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("CORS_ALLOWED_ORIGINS", " http://a.test , ,http://b.test")
	t.Setenv("SCOPED_SESSION_TTL", "30m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 30*time.Minute, cfg.ScopedSessionTTL)
}

func TestValidate(t *testing.T) {
	base := Config{Env: "production", StoreDriver: "sqlite", SQLitePath: "x.db", JWTSecret: "k"}
	assert.NoError(t, base.Validate())

	pg := base
	pg.StoreDriver = "postgres"
	assert.Error(t, pg.Validate())

	noSecret := base
	noSecret.JWTSecret = ""
	assert.Error(t, noSecret.Validate())

	badEnv := base
	badEnv.Env = "qa"
	assert.Error(t, badEnv.Validate())

	badDriver := base
	badDriver.StoreDriver = "mongo"
	assert.Error(t, badDriver.Validate())
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("WORKER_INTERVAL", "soon")

	_, err := Load()
	assert.Error(t, err)
}
