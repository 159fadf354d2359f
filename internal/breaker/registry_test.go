package breaker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryReusesBreakers(t *testing.T) {
	r := NewRegistry(testConfig())

	var wg sync.WaitGroup
	got := make([]*Breaker, 20)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = r.Get("book-service", "get")
		}(i)
	}
	wg.Wait()
	for _, b := range got {
		assert.Same(t, got[0], b)
	}
	assert.Equal(t, "book-service:get", got[0].Name())
	assert.NotSame(t, got[0], r.Get("book-service", "patch"))
}

func TestRegistryKeepsWindowAcrossLookups(t *testing.T) {
	r := NewRegistry(testConfig())
	var calls atomic.Int32
	for i := 0; i < 5; i++ {
		_, _ = r.Get("user-service", "get").Execute(context.Background(), fail(&calls))
	}
	assert.Equal(t, StateOpen, r.Get("user-service", "get").State())
	assert.Equal(t, StateClosed, r.Get("user-service", "post").State())

	snaps := r.Snapshots()
	assert.Equal(t, []Snapshot{
		{Name: "user-service:get", State: "OPEN", Requests: 5, Failures: 5},
		{Name: "user-service:post", State: "CLOSED"},
	}, snaps)
}
