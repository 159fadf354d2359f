package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muhaimeen90/Smart-Library-Distributed/internal/config"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/database"
)

func TestNewCommandPassesConfigToRun(t *testing.T) {
	t.Setenv("LIBRARY_USER_SERVICE_URL", "http://users:9001")

	var got Runtime
	cmd := NewCommand("test-service", "test", config.Defaults{Listen: ":8089"}, func(_ context.Context, rt Runtime) error {
		got = rt
		return nil
	})
	cmd.Flags().Int64("book-id", 1, "extra flag")
	cmd.SetArgs([]string{"--log-level=error", "--book-id=7", "--reconcile-interval=30s"})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Equal(t, ":8089", got.Config.Listen)
	assert.Equal(t, "http://users:9001", got.Config.UserServiceURL)
	assert.Equal(t, "error", got.Config.LogLevel)
	assert.Equal(t, "30s", got.Config.ReconcileInterval.String())
	assert.Equal(t, int64(7), got.Viper.GetInt64("book-id"))
}

func TestNewCommandRejectsInvalidBreakerSettings(t *testing.T) {
	ran := false
	cmd := NewCommand("test-service", "test", config.Defaults{}, func(context.Context, Runtime) error {
		ran = true
		return nil
	})
	cmd.SetArgs([]string{"--breaker-failure-threshold=1.5"})

	err := cmd.ExecuteContext(context.Background())
	assert.True(t, errors.Is(err, config.ErrInvalidThreshold))
	assert.False(t, ran)
}

func TestOpenDBMigrates(t *testing.T) {
	schema := database.Schema{
		database.DriverSQLite: {`CREATE TABLE probes (id INTEGER PRIMARY KEY)`},
	}
	db, err := OpenDB(context.Background(), "sqlite://:memory:", schema)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`INSERT INTO probes (id) VALUES (1)`)
	assert.NoError(t, err)
}

func TestOpenDBRejectsUnknownURL(t *testing.T) {
	_, err := OpenDB(context.Background(), "mysql://localhost/library")
	assert.ErrorIs(t, err, database.ErrUnsupportedURL)
}
