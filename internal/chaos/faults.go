package chaos

import (
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ErrInjected is returned for requests to a host switched down.
var ErrInjected = errors.New("injected fault: connection refused")

// Fault describes what happens to requests bound for one host.
type Fault struct {
	Down bool `json:"down"`
	// FailureRate is the fraction of requests answered with a synthetic 503.
	FailureRate float64 `json:"failure_rate"`
	LatencyMS   int64   `json:"latency_ms"`
}

func (f Fault) latency() time.Duration {
	return time.Duration(f.LatencyMS) * time.Millisecond
}

func (f Fault) active() bool {
	return f.Down || f.FailureRate > 0 || f.LatencyMS > 0
}

// FaultInjector is an http.RoundTripper that degrades traffic to selected
// hosts and passes everything else to the wrapped transport.
type FaultInjector struct {
	next   http.RoundTripper
	random func() float64

	mu     sync.RWMutex
	faults map[string]Fault
}

// NewFaultInjector wraps next; a nil next uses http.DefaultTransport.
func NewFaultInjector(next http.RoundTripper) *FaultInjector {
	if next == nil {
		next = http.DefaultTransport
	}
	return &FaultInjector{next: next, random: rand.Float64, faults: make(map[string]Fault)}
}

// WithRandom replaces the source used for FailureRate decisions.
func (f *FaultInjector) WithRandom(random func() float64) *FaultInjector {
	f.random = random
	return f
}

// Set installs fault for host (host or host:port). An inactive fault clears it.
func (f *FaultInjector) Set(host string, fault Fault) {
	host = normalizeHost(host)
	f.mu.Lock()
	defer f.mu.Unlock()
	if !fault.active() {
		delete(f.faults, host)
		return
	}
	f.faults[host] = fault
}

// Clear removes any fault for host.
func (f *FaultInjector) Clear(host string) {
	f.Set(host, Fault{})
}

// Reset removes every fault.
func (f *FaultInjector) Reset() {
	f.mu.Lock()
	f.faults = make(map[string]Fault)
	f.mu.Unlock()
}

// Get returns the fault installed for host.
func (f *FaultInjector) Get(host string) (Fault, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	fault, ok := f.faults[normalizeHost(host)]
	return fault, ok
}

// Faults returns a copy of the installed faults keyed by host.
func (f *FaultInjector) Faults() map[string]Fault {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]Fault, len(f.faults))
	for k, v := range f.faults {
		out[k] = v
	}
	return out
}

// RoundTrip applies the host's fault, if any, before delegating.
func (f *FaultInjector) RoundTrip(req *http.Request) (*http.Response, error) {
	fault, ok := f.Get(req.URL.Host)
	if !ok {
		return f.next.RoundTrip(req)
	}

	if d := fault.latency(); d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		}
	}
	if fault.Down {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Host, ErrInjected)
	}
	if fault.FailureRate > 0 && f.random() < fault.FailureRate {
		return syntheticUnavailable(req), nil
	}
	return f.next.RoundTrip(req)
}

func syntheticUnavailable(req *http.Request) *http.Response {
	body := `{"message":"Service unavailable (injected fault)"}`
	return &http.Response{
		Status:        "503 Service Unavailable",
		StatusCode:    http.StatusServiceUnavailable,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": []string{"application/json"}},
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

// normalizeHost accepts either a bare host:port or a URL.
func normalizeHost(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(s)
}
