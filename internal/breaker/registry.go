package breaker

import (
	"sort"
	"sync"
)

// Registry owns one Breaker per (service, operation) for the life of the
// process so that rolling windows survive across requests.
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	opts     []Option
	breakers map[string]*Breaker
}

// NewRegistry returns a registry whose breakers share cfg and opts.
func NewRegistry(cfg Config, opts ...Option) *Registry {
	return &Registry{cfg: cfg, opts: opts, breakers: make(map[string]*Breaker)}
}

// Key names the breaker for a service operation, e.g. "book-service:patch".
func Key(service, operation string) string {
	return service + ":" + operation
}

// Get returns the breaker for (service, operation), creating it on first use.
func (r *Registry) Get(service, operation string, opts ...Option) *Breaker {
	key := Key(service, operation)

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[key]; ok {
		return b
	}
	cfg := r.cfg
	cfg.Name = key
	all := make([]Option, 0, len(r.opts)+len(opts))
	all = append(all, r.opts...)
	all = append(all, opts...)
	b := New(cfg, all...)
	r.breakers[key] = b
	return b
}

// Snapshot is the observable state of one breaker.
type Snapshot struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Requests int    `json:"requests"`
	Failures int    `json:"failures"`
}

// Snapshots lists every breaker sorted by name.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	list := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		list = append(list, b)
	}
	r.mu.Unlock()

	out := make([]Snapshot, 0, len(list))
	for _, b := range list {
		c := b.Counts()
		out = append(out, Snapshot{Name: b.Name(), State: b.State().String(), Requests: c.Total(), Failures: c.Failures})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
