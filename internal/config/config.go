// Package config binds command-line flags, LIBRARY_* environment variables,
// an optional config file and a .env file into a single Config value.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. LIBRARY_DATABASE_URL.
const EnvPrefix = "LIBRARY"

var (
	ErrInvalidThreshold = errors.New("breaker failure threshold must be in (0, 1]")
	ErrInvalidBuckets   = errors.New("breaker buckets must be positive")
	ErrInvalidWindow    = errors.New("breaker rolling window must be divisible into buckets")
	ErrInvalidReset     = errors.New("breaker reset timeout must not be shorter than the call timeout")
)

// Breaker mirrors breaker.Config so that commands do not import flag plumbing
// into the resilience layer.
type Breaker struct {
	FailureThreshold float64
	Timeout          time.Duration
	ResetTimeout     time.Duration
	RollingWindow    time.Duration
	Buckets          int
	VolumeThreshold  int
}

// Config is the union of settings used by the service binaries. Each binary
// reads the subset it needs.
type Config struct {
	Listen      string
	DatabaseURL string
	Seed        bool

	UserServiceURL string
	BookServiceURL string
	LoanServiceURL string

	AMQPURL      string
	AMQPExchange string

	OTLPEndpoint  string
	MetricsListen string

	LogLevel  string
	LogFormat string

	Breaker           Breaker
	ReconcileInterval time.Duration
	Chaos             bool

	RateLimit float64
	RateBurst int
}

// Defaults carries the per-binary default values.
type Defaults struct {
	Listen      string
	DatabaseURL string
}

// RegisterFlags declares every flag on fs.
func RegisterFlags(flags *pflag.FlagSet, d Defaults) {
	flags.String("config", "", "path to a config file (yaml, toml or json)")
	flags.String("listen", d.Listen, "HTTP listen address")
	flags.String("database-url", d.DatabaseURL, "postgres:// DSN or sqlite://path")
	flags.Bool("seed", true, "seed the store with sample records when it is empty")

	flags.String("user-service-url", "http://localhost:8081", "base URL of the user service")
	flags.String("book-service-url", "http://localhost:8082", "base URL of the book service")
	flags.String("loan-service-url", "http://localhost:8083", "base URL of the loan service")

	flags.String("amqp-url", "", "RabbitMQ URL for domain events (empty disables publishing)")
	flags.String("amqp-exchange", "library.events", "topic exchange for domain events")

	flags.String("otlp-endpoint", "", "OTLP/HTTP trace endpoint, e.g. http://localhost:4318")
	flags.String("metrics-listen", "", "listen address for the Prometheus /metrics endpoint")

	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	flags.String("log-format", "json", "log format (json or console)")

	flags.Float64("breaker-failure-threshold", 0.5, "fraction of failed calls in the rolling window that opens a circuit")
	flags.Duration("breaker-timeout", 5*time.Second, "per-call deadline for remote calls")
	flags.Duration("breaker-reset-timeout", 10*time.Second, "time a circuit stays open before a probe call")
	flags.Duration("breaker-rolling-window", 10*time.Second, "window over which the failure rate is measured")
	flags.Int("breaker-buckets", 10, "number of buckets in the rolling window")
	flags.Int("breaker-volume-threshold", 5, "minimum calls in the window before a circuit may open")

	flags.Duration("reconcile-interval", 0, "interval of the availability reconciler (0 disables the worker)")
	flags.Bool("chaos", false, "enable the fault-injection admin endpoint")

	flags.Float64("rate-limit", 50, "sustained write requests per second")
	flags.Int("rate-burst", 100, "write request burst")
}

// Bind wires v to flags, the environment and an optional config file.
func Bind(v *viper.Viper, flags *pflag.FlagSet) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	if path := strings.TrimSpace(v.GetString("config")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return nil
}

// Load reads the bound values into a Config and validates them.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Listen:         v.GetString("listen"),
		DatabaseURL:    v.GetString("database-url"),
		Seed:           v.GetBool("seed"),
		UserServiceURL: strings.TrimRight(v.GetString("user-service-url"), "/"),
		BookServiceURL: strings.TrimRight(v.GetString("book-service-url"), "/"),
		LoanServiceURL: strings.TrimRight(v.GetString("loan-service-url"), "/"),
		AMQPURL:        v.GetString("amqp-url"),
		AMQPExchange:   v.GetString("amqp-exchange"),
		OTLPEndpoint:   v.GetString("otlp-endpoint"),
		MetricsListen:  v.GetString("metrics-listen"),
		LogLevel:       v.GetString("log-level"),
		LogFormat:      v.GetString("log-format"),
		Breaker: Breaker{
			FailureThreshold: v.GetFloat64("breaker-failure-threshold"),
			Timeout:          v.GetDuration("breaker-timeout"),
			ResetTimeout:     v.GetDuration("breaker-reset-timeout"),
			RollingWindow:    v.GetDuration("breaker-rolling-window"),
			Buckets:          v.GetInt("breaker-buckets"),
			VolumeThreshold:  v.GetInt("breaker-volume-threshold"),
		},
		ReconcileInterval: v.GetDuration("reconcile-interval"),
		Chaos:             v.GetBool("chaos"),
		RateLimit:         v.GetFloat64("rate-limit"),
		RateBurst:         v.GetInt("rate-burst"),
	}
	if err := cfg.Breaker.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the breaker settings.
func (b Breaker) Validate() error {
	if b.FailureThreshold <= 0 || b.FailureThreshold > 1 {
		return ErrInvalidThreshold
	}
	if b.Buckets <= 0 {
		return ErrInvalidBuckets
	}
	if b.RollingWindow < time.Duration(b.Buckets) {
		return ErrInvalidWindow
	}
	// A call still in flight when the circuit closes again would otherwise
	// report into the fresh window.
	if b.ResetTimeout < b.Timeout {
		return ErrInvalidReset
	}
	return nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment. Missing files are ignored; variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}
