// Package app holds the bootstrap shared by the service binaries: flag and
// environment binding, logging, telemetry and signal handling.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/muhaimeen90/Smart-Library-Distributed/internal/config"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/database"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/logging"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/telemetry"
)

const telemetryShutdown = 5 * time.Second

// Runtime is what a command's run function receives.
type Runtime struct {
	Config config.Config
	Logger zerolog.Logger
	// Viper exposes command-specific flags registered next to the shared set.
	Viper *viper.Viper
}

// RunFunc runs a service until ctx is cancelled.
type RunFunc func(ctx context.Context, rt Runtime) error

// NewCommand builds a root command named use. The shared flags are
// registered with the given defaults; callers may add their own before
// executing.
func NewCommand(use, short string, defaults config.Defaults, run RunFunc) *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			ctx := cmd.Context()

			if err := config.LoadDotEnv(); err != nil {
				return err
			}
			if err := config.Bind(v, cmd.Flags()); err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}

			logger := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: use})
			logger.Info().Int("pid", os.Getpid()).Msg("starting")

			tel, err := telemetry.Setup(ctx, telemetry.Options{
				Service:       use,
				OTLPEndpoint:  cfg.OTLPEndpoint,
				MetricsListen: cfg.MetricsListen,
			}, logger)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), telemetryShutdown)
				defer cancel()
				if err := tel.Shutdown(shutdownCtx); err != nil {
					logger.Warn().Err(err).Msg("telemetry shutdown")
				}
			}()

			return run(ctx, Runtime{Config: cfg, Logger: logger, Viper: v})
		},
	}
	config.RegisterFlags(cmd.Flags(), defaults)
	return cmd
}

// OpenDB connects to url and applies the schemas in order.
func OpenDB(ctx context.Context, url string, schemas ...database.Schema) (*database.DB, error) {
	db, err := database.Open(ctx, url)
	if err != nil {
		return nil, err
	}
	for _, s := range schemas {
		if err := db.Migrate(ctx, s); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return db, nil
}

// Main executes cmd with a context cancelled on SIGINT or SIGTERM and exits
// non-zero on error.
func Main(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd.Name(), err)
		os.Exit(1)
	}
}
