// Package chaos injects faults into outbound service traffic and runs
// game-day experiments that check the system degrades the way it should.
package chaos

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var ErrSteadyStateInvalid = errors.New("steady state invalid, aborting experiment")

// Experiment defines one chaos test.
type Experiment struct {
	Name        string
	Hypothesis  string
	SteadyState []Metric
	// Observe is sampled while the fault is active; SteadyState is used
	// when it is empty.
	Observe    []Metric
	Method     []Action
	Rollback   []Action
	Validation []Assertion
	Duration   time.Duration
	// Interval between metric samples while the fault is active.
	Interval time.Duration
}

// Metric is a measurable property of the running system.
type Metric struct {
	Name      string
	Query     func(context.Context) (float64, error)
	Threshold Threshold
}

type Threshold struct {
	Operator string // >, <, >=, <=, ==
	Value    float64
}

// Evaluate reports whether value satisfies the threshold.
func (t Threshold) Evaluate(value float64) bool {
	switch t.Operator {
	case ">":
		return value > t.Value
	case "<":
		return value < t.Value
	case ">=":
		return value >= t.Value
	case "<=":
		return value <= t.Value
	case "==":
		return value == t.Value
	default:
		return false
	}
}

// Action injects or removes a fault.
type Action struct {
	Type    string // outage, latency, failure-rate, restore
	Target  string
	Execute func(context.Context) error
}

// Assertion checks the final observation of a metric.
type Assertion struct {
	Metric    string
	Condition func(float64) bool
	Message   string
}

// Result captures one experiment run.
type Result struct {
	ExperimentName   string                 `json:"experiment_name"`
	StartTime        time.Time              `json:"start_time"`
	EndTime          time.Time              `json:"end_time"`
	Duration         time.Duration          `json:"duration"`
	HypothesisHeld   bool                   `json:"hypothesis_held"`
	SteadyStateValid bool                   `json:"steady_state_valid"`
	Violations       []Violation            `json:"violations"`
	Observations     map[string][]DataPoint `json:"observations"`
	ErrorEvents      []ErrorEvent           `json:"error_events"`
	FailedAssertions []string               `json:"failed_assertions,omitempty"`
}

type Violation struct {
	MetricName string    `json:"metric_name"`
	Expected   float64   `json:"expected"`
	Actual     float64   `json:"actual"`
	Timestamp  time.Time `json:"timestamp"`
}

type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

type ErrorEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
	Component string    `json:"component"`
}

// Engine runs experiments and keeps their results.
type Engine struct {
	tracer      trace.Tracer
	logger      zerolog.Logger
	experiments []Experiment
	results     []Result
	mu          sync.Mutex
}

func NewEngine(logger zerolog.Logger) *Engine {
	return &Engine{
		tracer: otel.Tracer("github.com/muhaimeen90/Smart-Library-Distributed/internal/chaos"),
		logger: logger,
	}
}

// Register adds an experiment to the suite.
func (e *Engine) Register(exp Experiment) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.experiments = append(e.experiments, exp)
}

// Experiments returns the registered experiments.
func (e *Engine) Experiments() []Experiment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Experiment(nil), e.experiments...)
}

// Results returns every completed run.
func (e *Engine) Results() []Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Result(nil), e.results...)
}

// Run executes one experiment: verify steady state, inject, observe, roll
// back, then check assertions against the last observations.
func (e *Engine) Run(ctx context.Context, exp Experiment) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "chaos.run_experiment",
		trace.WithAttributes(attribute.String("experiment.name", exp.Name)),
	)
	defer span.End()

	result := &Result{
		ExperimentName: exp.Name,
		StartTime:      time.Now(),
		Observations:   make(map[string][]DataPoint),
	}

	span.AddEvent("validating_steady_state")
	if violations := e.checkSteadyState(ctx, exp.SteadyState); len(violations) > 0 {
		result.Violations = violations
		return result, fmt.Errorf("%s: %w", exp.Name, ErrSteadyStateInvalid)
	}
	result.SteadyStateValid = true

	span.AddEvent("injecting_chaos")
	for _, action := range exp.Method {
		if err := action.Execute(ctx); err != nil {
			result.ErrorEvents = append(result.ErrorEvents, ErrorEvent{Timestamp: time.Now(), Error: err.Error(), Component: action.Target})
			span.RecordError(err)
		}
	}

	span.AddEvent("observing_system")
	e.observe(ctx, exp, result)

	// Rollback runs on a fresh context so a cancelled run still restores.
	span.AddEvent("rolling_back")
	rollbackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	for _, action := range exp.Rollback {
		if err := action.Execute(rollbackCtx); err != nil {
			result.ErrorEvents = append(result.ErrorEvents, ErrorEvent{Timestamp: time.Now(), Error: err.Error(), Component: action.Target})
			span.RecordError(err)
		}
	}

	span.AddEvent("validating_assertions")
	result.FailedAssertions = e.checkAssertions(exp.Validation, result)
	result.HypothesisHeld = len(result.FailedAssertions) == 0
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	e.mu.Lock()
	e.results = append(e.results, *result)
	e.mu.Unlock()

	span.SetAttributes(
		attribute.Bool("hypothesis_held", result.HypothesisHeld),
		attribute.Int("violations", len(result.Violations)),
	)
	return result, nil
}

func (e *Engine) observe(ctx context.Context, exp Experiment, result *Result) {
	interval := exp.Interval
	if interval <= 0 {
		interval = time.Second
	}
	observeCtx, cancel := context.WithTimeout(ctx, exp.Duration)
	defer cancel()

	metrics := exp.Observe
	if len(metrics) == 0 {
		metrics = exp.SteadyState
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-observeCtx.Done():
			return
		case <-ticker.C:
			for _, m := range metrics {
				value, err := m.Query(observeCtx)
				if err != nil {
					if observeCtx.Err() != nil {
						return
					}
					result.ErrorEvents = append(result.ErrorEvents, ErrorEvent{Timestamp: time.Now(), Error: err.Error(), Component: m.Name})
					continue
				}
				result.Observations[m.Name] = append(result.Observations[m.Name], DataPoint{Timestamp: time.Now(), Value: value})
				if !m.Threshold.Evaluate(value) {
					result.Violations = append(result.Violations, Violation{
						MetricName: m.Name,
						Expected:   m.Threshold.Value,
						Actual:     value,
						Timestamp:  time.Now(),
					})
				}
			}
		}
	}
}

func (e *Engine) checkSteadyState(ctx context.Context, metrics []Metric) []Violation {
	var violations []Violation
	for _, m := range metrics {
		value, err := m.Query(ctx)
		if err != nil {
			e.logger.Warn().Err(err).Str("metric", m.Name).Msg("steady state query failed")
			value = -1
		}
		if err != nil || !m.Threshold.Evaluate(value) {
			violations = append(violations, Violation{
				MetricName: m.Name,
				Expected:   m.Threshold.Value,
				Actual:     value,
				Timestamp:  time.Now(),
			})
		}
	}
	return violations
}

func (e *Engine) checkAssertions(assertions []Assertion, result *Result) []string {
	var failed []string
	for _, a := range assertions {
		obs := result.Observations[a.Metric]
		if len(obs) == 0 || !a.Condition(obs[len(obs)-1].Value) {
			failed = append(failed, a.Message)
		}
	}
	return failed
}

// GameDay is a named series of experiments.
type GameDay struct {
	Name      string
	Date      time.Time
	Scenarios []Experiment
	// Pause between experiments so the system settles.
	Pause time.Duration
}

// RunGameDay runs every scenario in order. An aborted experiment is logged
// and the game day moves on; the error reports how many hypotheses failed.
func (e *Engine) RunGameDay(ctx context.Context, day GameDay) ([]Result, error) {
	ctx, span := e.tracer.Start(ctx, "chaos.game_day",
		trace.WithAttributes(attribute.String("gameday.name", day.Name)),
	)
	defer span.End()

	e.logger.Info().Str("game_day", day.Name).Time("date", day.Date).Int("experiments", len(day.Scenarios)).Msg("starting game day")

	var results []Result
	failed := 0
	for i, exp := range day.Scenarios {
		log := e.logger.With().Str("experiment", exp.Name).Logger()
		log.Info().Int("index", i+1).Str("hypothesis", exp.Hypothesis).Msg("running experiment")

		res, err := e.Run(ctx, exp)
		if err != nil {
			failed++
			log.Error().Err(err).Msg("experiment aborted")
		} else {
			results = append(results, *res)
			if !res.HypothesisHeld {
				failed++
			}
			ev := log.Info()
			if !res.HypothesisHeld {
				ev = log.Warn().Strs("failed_assertions", res.FailedAssertions)
			}
			ev.Bool("hypothesis_held", res.HypothesisHeld).
				Int("violations", len(res.Violations)).
				Dur("duration", res.Duration).
				Msg("experiment finished")
		}

		if i < len(day.Scenarios)-1 && day.Pause > 0 {
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			case <-time.After(day.Pause):
			}
		}
	}

	if failed > 0 {
		return results, fmt.Errorf("%d of %d experiments did not hold", failed, len(day.Scenarios))
	}
	return results, nil
}
