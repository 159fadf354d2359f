package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) (*viper.Viper, *pflag.FlagSet) {
	t.Helper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags, Defaults{Listen: ":8083", DatabaseURL: "sqlite://loans.db"})
	require.NoError(t, flags.Parse(args))
	v := viper.New()
	require.NoError(t, Bind(v, flags))
	return v, flags
}

func TestLoadDefaults(t *testing.T) {
	v, _ := newFlags(t)

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, ":8083", cfg.Listen)
	assert.Equal(t, "sqlite://loans.db", cfg.DatabaseURL)
	assert.Equal(t, 0.5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 5*time.Second, cfg.Breaker.Timeout)
	assert.Equal(t, 10*time.Second, cfg.Breaker.ResetTimeout)
	assert.Equal(t, 10*time.Second, cfg.Breaker.RollingWindow)
	assert.Equal(t, 10, cfg.Breaker.Buckets)
	assert.Equal(t, time.Duration(0), cfg.ReconcileInterval)
}

func TestLoadFlagsAndEnv(t *testing.T) {
	t.Setenv("LIBRARY_BOOK_SERVICE_URL", "http://books:9000/")
	v, _ := newFlags(t, "--breaker-timeout=1s", "--breaker-reset-timeout=2s", "--listen=:9999")

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Listen)
	assert.Equal(t, time.Second, cfg.Breaker.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Breaker.ResetTimeout)
	assert.Equal(t, "http://books:9000", cfg.BookServiceURL, "trailing slash is trimmed")
}

func TestLoadRejectsBadThreshold(t *testing.T) {
	v, _ := newFlags(t, "--breaker-failure-threshold=1.5")

	_, err := Load(v)
	assert.ErrorIs(t, err, ErrInvalidThreshold)
}

func TestLoadRejectsResetShorterThanTimeout(t *testing.T) {
	v, _ := newFlags(t, "--breaker-timeout=5s", "--breaker-reset-timeout=2s")

	_, err := Load(v)
	assert.ErrorIs(t, err, ErrInvalidReset)

	v, _ = newFlags(t, "--breaker-timeout=2s", "--breaker-reset-timeout=2s")
	_, err = Load(v)
	assert.NoError(t, err)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loans.yaml")
	require.NoError(t, os.WriteFile(path, []byte("breaker-buckets: 20\nbreaker-rolling-window: 20s\n"), 0o600))
	v, _ := newFlags(t, "--config="+path)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Breaker.Buckets)
	assert.Equal(t, 20*time.Second, cfg.Breaker.RollingWindow)
}

func TestLoadDotEnvIgnoresMissingFile(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}
