package chaos

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/muhaimeen90/Smart-Library-Distributed/internal/httpx"
)

// TargetFault is one entry of the admin listing.
type TargetFault struct {
	Target string `json:"target"`
	Host   string `json:"host"`
	Fault  Fault  `json:"fault"`
}

// AdminHandler exposes a FaultInjector over HTTP. Targets map logical names
// such as "book-service" to the base URLs the injector sees.
type AdminHandler struct {
	injector *FaultInjector
	targets  map[string]string
}

func NewAdminHandler(injector *FaultInjector, targets map[string]string) *AdminHandler {
	hosts := make(map[string]string, len(targets))
	for name, url := range targets {
		hosts[name] = normalizeHost(url)
	}
	return &AdminHandler{injector: injector, targets: hosts}
}

// Routes mounts GET /, PUT /{target}, DELETE /{target} and DELETE /.
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.HandleList)
	r.Put("/{target}", h.HandleSet)
	r.Delete("/{target}", h.HandleClear)
	r.Delete("/", h.HandleReset)
	return r
}

func (h *AdminHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	faults := h.injector.Faults()
	out := make([]TargetFault, 0, len(h.targets))
	for name, host := range h.targets {
		out = append(out, TargetFault{Target: name, Host: host, Fault: faults[host]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *AdminHandler) HandleSet(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "target")
	host, ok := h.targets[name]
	if !ok {
		httpx.WriteMessage(w, http.StatusNotFound, "Unknown fault target")
		return
	}

	var fault Fault
	if err := httpx.Decode(r, &fault); err != nil {
		httpx.WriteValidation(w, err.Error())
		return
	}
	if fault.FailureRate < 0 || fault.FailureRate > 1 || fault.LatencyMS < 0 {
		httpx.WriteValidation(w, "failure_rate must be within [0, 1] and latency_ms must not be negative")
		return
	}

	h.injector.Set(host, fault)
	httpx.WriteJSON(w, http.StatusOK, TargetFault{Target: name, Host: host, Fault: fault})
}

func (h *AdminHandler) HandleClear(w http.ResponseWriter, r *http.Request) {
	host, ok := h.targets[chi.URLParam(r, "target")]
	if !ok {
		httpx.WriteMessage(w, http.StatusNotFound, "Unknown fault target")
		return
	}
	h.injector.Clear(host)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	h.injector.Reset()
	w.WriteHeader(http.StatusNoContent)
}
