// cmd/gateway/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/muhaimeen90/Smart-Library-Distributed/internal/app"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/config"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/httpx"
)

const (
	serviceName = "gateway"
	apiPrefix   = "/api"
)

func main() {
	app.Main(app.NewCommand(serviceName, "Routes /api requests to the library services", config.Defaults{
		Listen: ":8080",
	}, run))
}

func run(ctx context.Context, rt app.Runtime) error {
	handler, err := newGateway(rt.Config, rt.Logger)
	if err != nil {
		return err
	}
	return httpx.Serve(ctx, rt.Config.Listen, serviceName, handler, rt.Logger)
}

// newGateway maps /api/users, /api/books, /api/loans and /api/returns onto
// the owning service with the /api prefix removed.
func newGateway(cfg config.Config, logger zerolog.Logger) (http.Handler, error) {
	routes := []struct {
		prefix string
		target string
	}{
		{"/users", cfg.UserServiceURL},
		{"/books", cfg.BookServiceURL},
		{"/loans", cfg.LoanServiceURL},
		{"/returns", cfg.LoanServiceURL},
	}

	proxies := make(map[string]http.Handler, len(routes))
	for _, rt := range routes {
		proxy, err := newProxy(rt.target, logger)
		if err != nil {
			return nil, err
		}
		proxies[rt.prefix] = http.StripPrefix(apiPrefix, proxy)
	}

	router := httpx.NewRouter(serviceName, logger)
	router.Route(apiPrefix, func(r chi.Router) {
		r.Use(httpx.RateLimit(httpx.NewLimiter(cfg.RateLimit, cfg.RateBurst)))
		for prefix, h := range proxies {
			r.Handle(prefix, h)
			r.Handle(prefix+"/*", h)
		}
	})
	return router, nil
}

func parseTarget(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse upstream %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("parse upstream %q: scheme and host are required", raw)
	}
	return u, nil
}

func newProxy(raw string, logger zerolog.Logger) (*httputil.ReverseProxy, error) {
	target, err := parseTarget(raw)
	if err != nil {
		return nil, err
	}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Transport = otelhttp.NewTransport(http.DefaultTransport)

	direct := proxy.Director
	proxy.Director = func(req *http.Request) {
		direct(req)
		if id := httpx.RequestIDFrom(req.Context()); id != "" {
			req.Header.Set(httpx.RequestIDHeader, id)
		}
	}
	// The gateway's own middleware already set the response id.
	proxy.ModifyResponse = func(resp *http.Response) error {
		resp.Header.Del(httpx.RequestIDHeader)
		return nil
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error().Err(err).Str("upstream", target.Host).Str("path", r.URL.Path).Msg("upstream unreachable")
		httpx.WriteError(w, http.StatusBadGateway, "Upstream service unavailable", err)
	}
	return proxy, nil
}
