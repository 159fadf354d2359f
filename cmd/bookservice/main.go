// cmd/bookservice/main.go
package main

import (
	"context"

	"github.com/go-chi/chi/v5"

	"github.com/muhaimeen90/Smart-Library-Distributed/internal/app"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/books"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/config"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/httpx"
)

const serviceName = "book-service"

func main() {
	app.Main(app.NewCommand(serviceName, "Serves the book catalog and copy availability", config.Defaults{
		Listen:      ":8082",
		DatabaseURL: "sqlite://books.db",
	}, run))
}

func run(ctx context.Context, rt app.Runtime) error {
	cfg := rt.Config
	db, err := app.OpenDB(ctx, cfg.DatabaseURL, books.Schema)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := books.NewService(db, books.Options{Logger: rt.Logger})
	if cfg.Seed {
		n, err := svc.Seed(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			rt.Logger.Info().Int("books", n).Msg("seeded books")
		}
	}

	router := httpx.NewRouter(serviceName, rt.Logger)
	router.Group(func(r chi.Router) {
		r.Use(httpx.RateLimit(httpx.NewLimiter(cfg.RateLimit, cfg.RateBurst)))
		books.NewHandler(svc).Routes(r)
	})
	return httpx.Serve(ctx, cfg.Listen, serviceName, router, rt.Logger)
}
