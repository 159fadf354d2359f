// cmd/chaos/main.go
package main

import (
	"context"
	"os"
	"time"

	"github.com/muhaimeen90/Smart-Library-Distributed/internal/app"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/chaos"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/clients"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/config"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/httpx"
)

func main() {
	cmd := app.NewCommand("chaos", "Runs the outage game day against a loan service started with --chaos", config.Defaults{}, run)
	flags := cmd.Flags()
	flags.Int64("user-id", 1, "existing user used by probe requests")
	flags.Int64("book-id", 1, "existing book used by probe requests")
	flags.Duration("duration", 30*time.Second, "fault duration of each experiment")
	flags.Duration("pause", 10*time.Second, "pause between experiments")
	flags.String("game-day", "Weekly Chaos Game Day", "name of the game day")
	flags.Bool("seed-target", false, "create a fresh user and book through the user and book services instead of using --user-id and --book-id")
	app.Main(cmd)
}

func run(ctx context.Context, rt app.Runtime) error {
	v := rt.Viper
	target := chaos.LoanServiceTarget{
		BaseURL: rt.Config.LoanServiceURL,
		UserID:  v.GetInt64("user-id"),
		BookID:  v.GetInt64("book-id"),
	}
	if v.GetBool("seed-target") {
		var err error
		target, err = seeder(rt).Seed(ctx, target, time.Now().UTC().Format("20060102T150405"))
		if err != nil {
			return err
		}
		rt.Logger.Info().Int64("user_id", target.UserID).Int64("book_id", target.BookID).Msg("seeded game day data")
	}
	duration := v.GetDuration("duration")

	engine := chaos.NewEngine(rt.Logger)
	engine.Register(chaos.BookServiceOutage(target, duration))
	engine.Register(chaos.UserServiceOutage(target, duration))

	results, err := engine.RunGameDay(ctx, chaos.GameDay{
		Name:      v.GetString("game-day"),
		Date:      time.Now(),
		Scenarios: engine.Experiments(),
		Pause:     v.GetDuration("pause"),
	})

	enc := httpx.JSON.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(results); encErr != nil {
		rt.Logger.Error().Err(encErr).Msg("write results")
	}
	return err
}

func seeder(rt app.Runtime) chaos.Seeder {
	return chaos.Seeder{
		Users: clients.NewUserClient(clients.NewService(clients.Options{
			Name:    clients.UserServiceName,
			BaseURL: rt.Config.UserServiceURL,
			Logger:  rt.Logger,
		})),
		Books: clients.NewBookClient(clients.NewService(clients.Options{
			Name:    clients.BookServiceName,
			BaseURL: rt.Config.BookServiceURL,
			Logger:  rt.Logger,
		})),
	}
}
