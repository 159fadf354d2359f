package chaos

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThresholdEvaluate(t *testing.T) {
	assert.True(t, Threshold{Operator: ">", Value: 1}.Evaluate(2))
	assert.True(t, Threshold{Operator: "<=", Value: 1}.Evaluate(1))
	assert.True(t, Threshold{Operator: "==", Value: 0}.Evaluate(0))
	assert.False(t, Threshold{Operator: "<", Value: 1}.Evaluate(1))
	assert.False(t, Threshold{Operator: "~", Value: 1}.Evaluate(1))
}

func TestRunAbortsOnInvalidSteadyState(t *testing.T) {
	injected := false
	e := NewEngine(zerolog.Nop())
	res, err := e.Run(context.Background(), Experiment{
		Name: "broken",
		SteadyState: []Metric{{
			Name:      "up",
			Query:     func(context.Context) (float64, error) { return 0, errors.New("down") },
			Threshold: Threshold{Operator: "==", Value: 1},
		}},
		Method: []Action{{Execute: func(context.Context) error { injected = true; return nil }}},
	})
	assert.ErrorIs(t, err, ErrSteadyStateInvalid)
	assert.False(t, res.SteadyStateValid)
	assert.Len(t, res.Violations, 1)
	assert.False(t, injected, "no fault is injected into an unhealthy system")
}

func TestRunInjectsObservesAndRollsBack(t *testing.T) {
	var faulty, rolledBack bool
	e := NewEngine(zerolog.Nop())

	exp := Experiment{
		Name: "degrade",
		SteadyState: []Metric{{
			Name:      "up",
			Query:     func(context.Context) (float64, error) { return 1, nil },
			Threshold: Threshold{Operator: "==", Value: 1},
		}},
		Observe: []Metric{{
			Name: "served_pct",
			Query: func(context.Context) (float64, error) {
				if faulty {
					return 100, nil
				}
				return 0, nil
			},
			Threshold: Threshold{Operator: "==", Value: 100},
		}},
		Method:   []Action{{Target: "x", Execute: func(context.Context) error { faulty = true; return nil }}},
		Rollback: []Action{{Target: "x", Execute: func(context.Context) error { rolledBack = true; return nil }}},
		Validation: []Assertion{{
			Metric:    "served_pct",
			Condition: func(v float64) bool { return v == 100 },
			Message:   "served",
		}},
		Duration: 60 * time.Millisecond,
		Interval: 10 * time.Millisecond,
	}

	res, err := e.Run(context.Background(), exp)
	require.NoError(t, err)
	assert.True(t, res.SteadyStateValid)
	assert.True(t, res.HypothesisHeld)
	assert.True(t, rolledBack)
	assert.NotEmpty(t, res.Observations["served_pct"])
	assert.Empty(t, res.Violations)
	assert.Len(t, e.Results(), 1)
}

func TestRunGameDayReportsFailedHypotheses(t *testing.T) {
	e := NewEngine(zerolog.Nop())
	up := Metric{Name: "up", Query: func(context.Context) (float64, error) { return 1, nil }, Threshold: Threshold{Operator: "==", Value: 1}}

	held := Experiment{Name: "held", SteadyState: []Metric{up}, Duration: 20 * time.Millisecond, Interval: 5 * time.Millisecond,
		Validation: []Assertion{{Metric: "up", Condition: func(v float64) bool { return v == 1 }, Message: "up"}}}
	broken := Experiment{Name: "broken", SteadyState: []Metric{up}, Duration: 20 * time.Millisecond, Interval: 5 * time.Millisecond,
		Validation: []Assertion{{Metric: "up", Condition: func(v float64) bool { return v == 2 }, Message: "never"}}}

	results, err := e.RunGameDay(context.Background(), GameDay{Name: "weekly", Scenarios: []Experiment{held, broken}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")
	require.Len(t, results, 2)
	assert.True(t, results[0].HypothesisHeld)
	assert.Equal(t, []string{"never"}, results[1].FailedAssertions)
}
