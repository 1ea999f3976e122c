package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/baymonitor")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 100, cfg.DefaultLimit)
	assert.Equal(t, 1000, cfg.MaxLimit)
	assert.Equal(t, 10*time.Second, cfg.StoreTimeout)
	assert.Equal(t, ":8080", cfg.ListenAddr())
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/baymonitor")
	t.Setenv("PORT", "9090")
	t.Setenv("API_DEFAULT_LIMIT", "50")
	t.Setenv("API_MAX_LIMIT", "500")
	t.Setenv("STORE_TIMEOUT_SECONDS", "3")
	t.Setenv("API_BEARER_TOKEN", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 50, cfg.DefaultLimit)
	assert.Equal(t, 500, cfg.MaxLimit)
	assert.Equal(t, 3*time.Second, cfg.StoreTimeout)
	assert.Equal(t, "secret", cfg.BearerToken)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/baymonitor")

	t.Setenv("PORT", "not-a-port")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("PORT", "8080")
	t.Setenv("STORE_TIMEOUT_SECONDS", "-2")
	_, err = Load()
	assert.Error(t, err)
}
