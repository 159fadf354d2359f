// cmd/userservice/main.go
package main

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/muhaimeen90/Smart-Library-Distributed/internal/app"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/config"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/httpx"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/users"
)

const serviceName = "user-service"

func main() {
	app.Main(app.NewCommand(serviceName, "Serves library users", config.Defaults{
		Listen:      ":8081",
		DatabaseURL: "sqlite://users.db",
	}, run))
}

func run(ctx context.Context, rt app.Runtime) error {
	cfg := rt.Config
	db, err := app.OpenDB(ctx, cfg.DatabaseURL, users.Schema)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := users.NewService(db, users.Options{
		Logger:      rt.Logger,
		CreateLimit: rate.Limit(cfg.RateLimit),
		CreateBurst: cfg.RateBurst,
	})
	if cfg.Seed {
		n, err := svc.Seed(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			rt.Logger.Info().Int("users", n).Msg("seeded users")
		}
	}

	router := httpx.NewRouter(serviceName, rt.Logger)
	users.NewHandler(svc).Routes(router)
	return httpx.Serve(ctx, cfg.Listen, serviceName, router, rt.Logger)
}
