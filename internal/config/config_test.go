package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/internal/config"
)

func TestLoadRelay_Defaults(t *testing.T) {
	t.Setenv("PARLEY_JWT_SECRET", "s3cret")

	cfg, err := config.LoadRelay("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, config.BackendMemory, cfg.Backend)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.Equal(t, 72*time.Hour, cfg.Prekeys.MaxSignedPrekeyAge)
	assert.Equal(t, 10, cfg.Prekeys.ReplenishThreshold)
	assert.Equal(t, 5.0, cfg.Fetch.RPS)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadRelay_EnvFileAndValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.env")
	require.NoError(t, os.WriteFile(path, []byte("PARLEY_BACKEND=redis\nPARLEY_REDIS_ADDR=cache:6380\n"), 0o600))
	t.Setenv("PARLEY_JWT_SECRET", "s3cret")
	// Registered so the variables godotenv sets are restored afterwards.
	t.Setenv("PARLEY_BACKEND", "")
	t.Setenv("PARLEY_REDIS_ADDR", "")
	require.NoError(t, os.Unsetenv("PARLEY_BACKEND"))
	require.NoError(t, os.Unsetenv("PARLEY_REDIS_ADDR"))

	cfg, err := config.LoadRelay(path)
	require.NoError(t, err)
	assert.Equal(t, config.BackendRedis, cfg.Backend)
	assert.Equal(t, "cache:6380", cfg.Redis.Addr)

	t.Setenv("PARLEY_BACKEND", "etcd")
	_, err = config.LoadRelay("")
	assert.Error(t, err)

	_, err = config.LoadRelay(filepath.Join(dir, "missing.env"))
	assert.Error(t, err)
}

func TestLoadRelay_SecretRequired(t *testing.T) {
	t.Setenv("PARLEY_JWT_SECRET", "")
	require.NoError(t, os.Unsetenv("PARLEY_JWT_SECRET"))

	_, err := config.LoadRelay("")
	assert.Error(t, err)
}

func TestLoadClient_HomeDefault(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PARLEY_HOME", "")
	t.Setenv("PARLEY_ACCOUNT", "alice")

	cfg, err := config.LoadClient("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(os.Getenv("HOME"), ".parley"), cfg.Home)
	assert.Equal(t, "alice", cfg.Account)
	assert.Equal(t, 15*time.Second, cfg.Timeout)
}
