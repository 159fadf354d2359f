// cmd/loanservice/main.go
package main

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/muhaimeen90/Smart-Library-Distributed/internal/app"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/breaker"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/chaos"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/clients"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/clock"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/config"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/database"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/events"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/httpx"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/loans"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/sagalog"
)

const serviceName = "loan-service"

func main() {
	app.Main(app.NewCommand(serviceName, "Issues and returns loans against the user and book services", config.Defaults{
		Listen:      ":8083",
		DatabaseURL: "sqlite://loans.db",
	}, run))
}

func run(ctx context.Context, rt app.Runtime) error {
	cfg := rt.Config
	db, err := app.OpenDB(ctx, cfg.DatabaseURL, loans.Schema, sagalog.Schema)
	if err != nil {
		return err
	}
	defer db.Close()

	pub, err := events.New(cfg.AMQPURL, cfg.AMQPExchange, rt.Logger)
	if err != nil {
		return err
	}
	defer pub.Close()

	svc, handler := build(db, cfg, pub, rt.Logger)
	if cfg.ReconcileInterval > 0 {
		go loans.RunReconciler(ctx, svc, cfg.ReconcileInterval, rt.Logger.With().Str("worker", "reconciler").Logger())
	}
	return httpx.Serve(ctx, cfg.Listen, serviceName, handler, rt.Logger)
}

func breakerConfig(b config.Breaker) breaker.Config {
	return breaker.Config{
		Name:             serviceName,
		FailureThreshold: b.FailureThreshold,
		Timeout:          b.Timeout,
		ResetTimeout:     b.ResetTimeout,
		RollingWindow:    b.RollingWindow,
		Buckets:          b.Buckets,
		VolumeThreshold:  b.VolumeThreshold,
	}
}

// build wires the loan service and returns it with its router.
func build(db *database.DB, cfg config.Config, pub events.Publisher, logger zerolog.Logger) (loans.Service, http.Handler) {
	registry := breaker.NewRegistry(breakerConfig(cfg.Breaker), breaker.WithLogger(logger))

	var (
		transport http.RoundTripper = http.DefaultTransport
		faults    *chaos.FaultInjector
	)
	if cfg.Chaos {
		faults = chaos.NewFaultInjector(transport)
		transport = faults
		logger.Warn().Msg("fault injection enabled")
	}

	userClient := clients.NewUserClient(clients.NewService(clients.Options{
		Name:      clients.UserServiceName,
		BaseURL:   cfg.UserServiceURL,
		Transport: transport,
		Breakers:  registry,
		Logger:    logger,
	}))
	bookClient := clients.NewBookClient(clients.NewService(clients.Options{
		Name:      clients.BookServiceName,
		BaseURL:   cfg.BookServiceURL,
		Transport: transport,
		Breakers:  registry,
		Logger:    logger,
	}))

	svc := loans.NewService(db, loans.Options{
		Users:      userClient,
		Books:      bookClient,
		Journal:    sagalog.NewStore(db, clock.Real{}),
		Events:     pub,
		Logger:     logger,
		IssueLimit: rate.Limit(cfg.RateLimit),
		IssueBurst: cfg.RateBurst,
	})

	router := httpx.NewRouter(serviceName, logger)
	loans.NewHandler(svc, clock.Real{}).Routes(router)
	router.Get("/breakers", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, registry.Snapshots())
	})
	if faults != nil {
		router.Route("/admin", func(r chi.Router) {
			r.Mount("/faults", chaos.NewAdminHandler(faults, map[string]string{
				clients.UserServiceName: cfg.UserServiceURL,
				clients.BookServiceName: cfg.BookServiceURL,
			}).Routes())
		})
	}
	return svc, router
}
