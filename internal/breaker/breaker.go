// Package breaker guards outbound calls with a circuit breaker. A breaker
// fails fast once the failure rate over a rolling window crosses a threshold,
// lets a single probe through after the reset timeout, and bounds every call
// with a deadline.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/muhaimeen90/Smart-Library-Distributed/internal/clock"
)

var (
	// ErrOpen is returned without invoking the operation while the circuit is
	// open or while the half-open probe slot is taken.
	ErrOpen = errors.New("circuit breaker is open")
	// ErrTimeout is returned when the operation outlives Config.Timeout.
	ErrTimeout = errors.New("call timed out")
)

// State of a circuit.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateHalfOpen:
		return "HALF_OPEN"
	case StateOpen:
		return "OPEN"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Config tunes a breaker.
type Config struct {
	Name string
	// FailureThreshold is the fraction of failed samples, in (0, 1], at which
	// the circuit opens.
	FailureThreshold float64
	Timeout          time.Duration
	ResetTimeout     time.Duration
	RollingWindow    time.Duration
	Buckets          int
	// VolumeThreshold is the minimum number of samples in the window before
	// the failure rate is considered.
	VolumeThreshold int
}

// DefaultConfig returns 50% / 5s / 10s / 10s over 10 buckets / 5 samples.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 0.5,
		Timeout:          5 * time.Second,
		ResetTimeout:     10 * time.Second,
		RollingWindow:    10 * time.Second,
		Buckets:          10,
		VolumeThreshold:  5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig(c.Name)
	if c.FailureThreshold <= 0 || c.FailureThreshold > 1 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = d.ResetTimeout
	}
	if c.RollingWindow <= 0 {
		c.RollingWindow = d.RollingWindow
	}
	if c.Buckets <= 0 {
		c.Buckets = d.Buckets
	}
	if c.VolumeThreshold <= 0 {
		c.VolumeThreshold = 1
	}
	return c
}

// Option customizes a Breaker.
type Option func(*Breaker)

// WithClock drives the rolling window from c.
func WithClock(c clock.Clock) Option {
	return func(b *Breaker) { b.clock = c }
}

// WithLogger logs state transitions to logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Breaker) { b.logger = logger }
}

// WithFailurePredicate decides which errors count against the circuit.
// Errors for which isFailure returns false are passed through to the caller
// but recorded as healthy samples.
func WithFailurePredicate(isFailure func(error) bool) Option {
	return func(b *Breaker) { b.isFailure = isFailure }
}

// WithMeter records transitions and rejections on meter.
func WithMeter(meter metric.Meter) Option {
	return func(b *Breaker) { b.meter = meter }
}

// Breaker wraps one logical remote operation.
type Breaker struct {
	cfg       Config
	cb        *gobreaker.CircuitBreaker
	window    *Window
	clock     clock.Clock
	logger    zerolog.Logger
	isFailure func(error) bool
	meter     metric.Meter

	transitions metric.Int64Counter
	rejections  metric.Int64Counter
	calls       metric.Int64Counter
}

// New builds a breaker. Zero config fields fall back to DefaultConfig.
func New(cfg Config, opts ...Option) *Breaker {
	b := &Breaker{
		cfg:       cfg.withDefaults(),
		clock:     clock.Real{},
		logger:    zerolog.Nop(),
		isFailure: func(err error) bool { return err != nil },
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.meter == nil {
		b.meter = otel.Meter("github.com/muhaimeen90/Smart-Library-Distributed/internal/breaker")
	}
	b.initMetrics()
	b.window = NewWindow(b.cfg.RollingWindow, b.cfg.Buckets, b.clock)

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        b.cfg.Name,
		MaxRequests: 1,
		Timeout:     b.cfg.ResetTimeout,
		ReadyToTrip: func(gobreaker.Counts) bool {
			return b.shouldTrip(b.window.Snapshot())
		},
		OnStateChange: b.onStateChange,
		IsSuccessful: func(err error) bool {
			return !b.isFailure(err)
		},
	})
	return b
}

func (b *Breaker) initMetrics() {
	var err error
	if b.transitions, err = b.meter.Int64Counter("breaker.transitions",
		metric.WithDescription("circuit state transitions")); err != nil {
		b.logger.Debug().Err(err).Msg("breaker transitions counter")
	}
	if b.rejections, err = b.meter.Int64Counter("breaker.rejections",
		metric.WithDescription("calls rejected without reaching the remote")); err != nil {
		b.logger.Debug().Err(err).Msg("breaker rejections counter")
	}
	if b.calls, err = b.meter.Int64Counter("breaker.calls",
		metric.WithDescription("calls that reached the remote, by outcome")); err != nil {
		b.logger.Debug().Err(err).Msg("breaker calls counter")
	}
}

func (b *Breaker) shouldTrip(c Counts) bool {
	return c.Total() >= b.cfg.VolumeThreshold && c.FailureRate() >= b.cfg.FailureThreshold
}

func (b *Breaker) onStateChange(name string, from, to gobreaker.State) {
	if to == gobreaker.StateClosed {
		b.window.Reset()
	}
	ev := b.logger.Info()
	if to == gobreaker.StateOpen {
		ev = b.logger.Warn()
	}
	ev.Str("breaker", name).
		Str("from", fromGobreaker(from).String()).
		Str("to", fromGobreaker(to).String()).
		Msg("circuit state changed")
	if b.transitions != nil {
		b.transitions.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("breaker", name),
			attribute.String("to", fromGobreaker(to).String()),
		))
	}
}

// Name returns the configured name.
func (b *Breaker) Name() string {
	return b.cfg.Name
}

// Config returns the effective configuration.
func (b *Breaker) Config() Config {
	return b.cfg
}

// State returns the current circuit state.
func (b *Breaker) State() State {
	return fromGobreaker(b.cb.State())
}

// Counts returns the rolling-window snapshot.
func (b *Breaker) Counts() Counts {
	return b.window.Snapshot()
}

// Execute runs op through the circuit. op receives a context that expires
// after Config.Timeout; if op has not returned by then Execute fails with
// ErrTimeout and whatever op eventually returns is dropped.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) (any, error)) (any, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return b.call(ctx, op)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		if b.rejections != nil {
			b.rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("breaker", b.cfg.Name)))
		}
		return nil, fmt.Errorf("%s: %w", b.cfg.Name, ErrOpen)
	}
	return v, err
}

type result struct {
	v   any
	err error
}

func (b *Breaker) call(ctx context.Context, op func(ctx context.Context) (any, error)) (any, error) {
	callCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		v, err := op(callCtx)
		done <- result{v: v, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-callCtx.Done():
		res.err = callCtx.Err()
	}
	if res.err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		res = result{err: fmt.Errorf("%s after %s: %w", b.cfg.Name, b.cfg.Timeout, ErrTimeout)}
	}

	failed := b.isFailure(res.err)
	b.window.Record(!failed)
	if b.calls != nil {
		outcome := "success"
		if failed {
			outcome = "failure"
		}
		b.calls.Add(ctx, 1, metric.WithAttributes(
			attribute.String("breaker", b.cfg.Name),
			attribute.String("outcome", outcome),
		))
	}
	return res.v, res.err
}

// Do is a typed wrapper around Execute.
func Do[T any](ctx context.Context, b *Breaker, op func(ctx context.Context) (T, error)) (T, error) {
	v, err := b.Execute(ctx, func(ctx context.Context) (any, error) {
		return op(ctx)
	})
	var zero T
	if err != nil {
		if t, ok := v.(T); ok {
			return t, err
		}
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, nil
	}
	return t, nil
}
