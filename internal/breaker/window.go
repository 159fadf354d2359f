package breaker

import (
	"sync"
	"time"

	"github.com/muhaimeen90/Smart-Library-Distributed/internal/clock"
)

// Counts is a snapshot of the rolling window.
type Counts struct {
	Successes int
	Failures  int
}

// Total returns the number of samples in the snapshot.
func (c Counts) Total() int {
	return c.Successes + c.Failures
}

// FailureRate returns Failures/Total, or 0 for an empty window.
func (c Counts) FailureRate() float64 {
	if c.Total() == 0 {
		return 0
	}
	return float64(c.Failures) / float64(c.Total())
}

type bucket struct {
	epoch     int64
	successes int
	failures  int
}

// Window is a ring of fixed-width buckets covering a rolling time span.
// Each bucket is tagged with the epoch (time / width) it was last written in;
// a stale tag means the bucket has rotated out and is reset on reuse.
type Window struct {
	mu      sync.Mutex
	clock   clock.Clock
	width   time.Duration
	buckets []bucket
}

// NewWindow splits span into n buckets. n and span must be positive.
func NewWindow(span time.Duration, n int, c clock.Clock) *Window {
	if n <= 0 {
		n = 1
	}
	width := span / time.Duration(n)
	if width <= 0 {
		width = time.Nanosecond
	}
	if c == nil {
		c = clock.Real{}
	}
	w := &Window{clock: c, width: width, buckets: make([]bucket, n)}
	w.resetLocked()
	return w
}

func (w *Window) epoch(t time.Time) int64 {
	return t.UnixNano() / int64(w.width)
}

func (w *Window) slot(epoch int64) int {
	n := int64(len(w.buckets))
	return int(((epoch % n) + n) % n)
}

// Record adds one sample at the current time.
func (w *Window) Record(success bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	e := w.epoch(w.clock.Now())
	b := &w.buckets[w.slot(e)]
	if b.epoch != e {
		*b = bucket{epoch: e}
	}
	if success {
		b.successes++
	} else {
		b.failures++
	}
}

// Snapshot sums the buckets that are still inside the window.
func (w *Window) Snapshot() Counts {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.epoch(w.clock.Now())
	oldest := now - int64(len(w.buckets)) + 1
	var c Counts
	for _, b := range w.buckets {
		if b.epoch >= oldest && b.epoch <= now {
			c.Successes += b.successes
			c.Failures += b.failures
		}
	}
	return c
}

// Reset forgets every sample.
func (w *Window) Reset() {
	w.mu.Lock()
	w.resetLocked()
	w.mu.Unlock()
}

func (w *Window) resetLocked() {
	for i := range w.buckets {
		w.buckets[i] = bucket{epoch: -1 << 62}
	}
}
