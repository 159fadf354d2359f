package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualAdvance(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewManual(start)

	assert.Equal(t, start, m.Now())
	assert.Equal(t, start.Add(time.Minute), m.Advance(time.Minute))
	assert.Equal(t, start.Add(time.Minute), m.Advance(-time.Hour), "negative advance is ignored")

	m.Set(start)
	assert.Equal(t, start, m.Now())
}

func TestRealIsUTC(t *testing.T) {
	assert.Equal(t, time.UTC, Real{}.Now().Location())
}
