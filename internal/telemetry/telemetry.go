// Package telemetry installs the OpenTelemetry tracer and meter providers used
// by the service binaries and serves Prometheus metrics.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Options selects which exporters are started. Empty fields disable the
// corresponding exporter.
type Options struct {
	Service       string
	OTLPEndpoint  string
	MetricsListen string
}

// Bundle owns the providers and the metrics server.
type Bundle struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	metricsServer  *http.Server
	metricsLn      net.Listener
	logger         zerolog.Logger
}

type otelErrorHandler struct {
	logger zerolog.Logger
}

func (h otelErrorHandler) Handle(err error) {
	if err != nil {
		h.logger.Warn().Err(err).Msg("telemetry exporter error")
	}
}

// Setup installs global providers. The returned bundle is never nil.
func Setup(ctx context.Context, opts Options, logger zerolog.Logger) (*Bundle, error) {
	b := &Bundle{logger: logger}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	otel.SetErrorHandler(otelErrorHandler{logger: logger})

	if strings.TrimSpace(opts.OTLPEndpoint) == "" && strings.TrimSpace(opts.MetricsListen) == "" {
		return b, nil
	}

	res, err := resource.New(ctx,
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(semconv.ServiceName(opts.Service)),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	if endpoint := strings.TrimSpace(opts.OTLPEndpoint); endpoint != "" {
		exporter, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpointURL(endpoint),
			otlptracehttp.WithTimeout(10*time.Second),
		)
		if err != nil {
			return nil, fmt.Errorf("telemetry: start trace exporter: %w", err)
		}
		b.tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
			sdktrace.WithBatcher(exporter),
		)
		otel.SetTracerProvider(b.tracerProvider)
		logger.Info().Str("endpoint", endpoint).Msg("tracing enabled")
	}

	if listen := strings.TrimSpace(opts.MetricsListen); listen != "" {
		registry := prometheus.NewRegistry()
		exporter, err := otelprometheus.New(otelprometheus.WithRegisterer(registry))
		if err != nil {
			_ = b.Shutdown(ctx)
			return nil, fmt.Errorf("telemetry: start prometheus exporter: %w", err)
		}
		b.meterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		)
		otel.SetMeterProvider(b.meterProvider)

		b.metricsServer, b.metricsLn, err = startMetricsServer(listen, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), logger)
		if err != nil {
			_ = b.Shutdown(ctx)
			return nil, err
		}
		logger.Info().Str("listen", listen).Msg("metrics enabled")
	}

	return b, nil
}

// Shutdown flushes exporters and stops the metrics server.
func (b *Bundle) Shutdown(ctx context.Context) error {
	var errs []error
	if b.metricsServer != nil {
		if err := b.metricsServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}
	if b.meterProvider != nil {
		if err := b.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metric shutdown: %w", err))
		}
	}
	if b.tracerProvider != nil {
		if err := b.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

func startMetricsServer(addr string, handler http.Handler, logger zerolog.Logger) (*http.Server, net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: metrics listen: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn().Err(err).Msg("metrics server stopped")
		}
	}()
	return srv, ln, nil
}
