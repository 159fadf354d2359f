// internal/loans/handler.go
package loans

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/muhaimeen90/Smart-Library-Distributed/internal/clock"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/httpx"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/sagalog"
)

type Handler struct {
	service Service
	clock   clock.Clock
}

func NewHandler(service Service, c clock.Clock) *Handler {
	if c == nil {
		c = clock.Real{}
	}
	return &Handler{service: service, clock: c}
}

// Routes registers the loan endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/loans", h.HandleIssue)
	r.Post("/returns", h.HandleReturn)
	r.Get("/loans/user/{user_id}", h.HandleUserLoans)
	r.Get("/loans/overdue", h.HandleOverdue)
	r.Get("/loans/stats", h.HandleStats)
	r.Get("/loans/{id}", h.HandleDetail)
	r.Put("/loans/{id}/extend", h.HandleExtend)
	r.Get("/loans/{id}/journal", h.HandleJournal)
	r.Get("/sagas", h.HandleJournalFeed)
	r.Get("/sagas/{saga_id}", h.HandleSagaRun)
	r.Get("/reconciliations", h.HandleReconciliations)
	r.Post("/reconciliations/run", h.HandleReconcile)
}

// writeError maps service errors onto replies. fallback is the message of
// the 500 reply.
func writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var (
		rule        *RuleError
		unavailable *UnavailableError
	)
	switch {
	case errors.Is(err, ErrLoanNotFound):
		httpx.WriteMessage(w, http.StatusNotFound, "Loan not found")
	case errors.Is(err, ErrUserNotFound):
		httpx.WriteMessage(w, http.StatusNotFound, "User not found")
	case errors.Is(err, sagalog.ErrSagaNotFound):
		httpx.WriteMessage(w, http.StatusNotFound, "Saga not found")
	case errors.Is(err, ErrBookNotFound):
		httpx.WriteMessage(w, http.StatusNotFound, "Book not found")
	case errors.Is(err, ErrRateLimited):
		httpx.WriteMessage(w, http.StatusTooManyRequests, "Too many requests, please try again later")
	case errors.As(err, &rule):
		httpx.WriteMessage(w, http.StatusBadRequest, rule.Message)
	case errors.As(err, &unavailable):
		httpx.WriteError(w, http.StatusServiceUnavailable, unavailable.Message, unavailable.Err)
	default:
		httpx.WriteInternal(w, r, fallback, err)
	}
}

type issueRequest struct {
	UserID  *int64  `json:"user_id"`
	BookID  *int64  `json:"book_id"`
	DueDate *string `json:"due_date"`
}

// parseDate accepts an RFC 3339 timestamp or a plain date.
func parseDate(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteValidation(w, err.Error())
		return
	}

	var (
		details []string
		due     time.Time
	)
	if req.UserID == nil {
		details = append(details, `"user_id" is required`)
	} else if *req.UserID <= 0 {
		details = append(details, `"user_id" must be a positive number`)
	}
	if req.BookID == nil {
		details = append(details, `"book_id" is required`)
	} else if *req.BookID <= 0 {
		details = append(details, `"book_id" must be a positive number`)
	}
	if req.DueDate == nil {
		details = append(details, `"due_date" is required`)
	} else if t, ok := parseDate(*req.DueDate); !ok {
		details = append(details, `"due_date" must be in ISO 8601 date format`)
	} else if !t.After(h.clock.Now()) {
		details = append(details, `"due_date" must be greater than "now"`)
	} else {
		due = t
	}
	if len(details) > 0 {
		httpx.WriteValidation(w, details...)
		return
	}

	loan, err := h.service.IssueLoan(r.Context(), IssueRequest{UserID: *req.UserID, BookID: *req.BookID, DueDate: due})
	if err != nil {
		writeError(w, r, err, "Error issuing book")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, loan)
}

func (h *Handler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LoanID *int64 `json:"loan_id"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteValidation(w, err.Error())
		return
	}
	if req.LoanID == nil {
		httpx.WriteValidation(w, `"loan_id" is required`)
		return
	}
	if *req.LoanID <= 0 {
		httpx.WriteValidation(w, `"loan_id" must be a positive number`)
		return
	}

	loan, err := h.service.ReturnLoan(r.Context(), *req.LoanID)
	if err != nil {
		writeError(w, r, err, "Error returning book")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loan)
}

func (h *Handler) HandleUserLoans(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.PathID(r, "user_id")
	if !ok {
		httpx.WriteValidation(w, `"user_id" must be a positive number`)
		return
	}

	loans, err := h.service.UserLoans(r.Context(), userID)
	if err != nil {
		writeError(w, r, err, "Error getting user loans")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loans)
}

func (h *Handler) HandleDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathID(r, "id")
	if !ok {
		httpx.WriteValidation(w, `"id" must be a positive number`)
		return
	}

	loan, err := h.service.LoanDetail(r.Context(), id)
	if err != nil {
		writeError(w, r, err, "Error getting loan details")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loan)
}

func (h *Handler) HandleExtend(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathID(r, "id")
	if !ok {
		httpx.WriteValidation(w, `"id" must be a positive number`)
		return
	}

	var req struct {
		ExtensionDays int `json:"extension_days"`
	}
	if err := httpx.Decode(r, &req); err != nil && !errors.Is(err, httpx.ErrEmptyBody) {
		httpx.WriteValidation(w, err.Error())
		return
	}
	if req.ExtensionDays <= 0 {
		httpx.WriteMessage(w, http.StatusBadRequest, ErrExtensionDays.Message)
		return
	}

	ext, err := h.service.ExtendLoan(r.Context(), id, req.ExtensionDays)
	if err != nil {
		writeError(w, r, err, "Error extending loan")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, ext)
}

func (h *Handler) HandleOverdue(w http.ResponseWriter, r *http.Request) {
	loans, err := h.service.OverdueLoans(r.Context())
	if err != nil {
		writeError(w, r, err, "Error getting overdue loans")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loans)
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		writeError(w, r, err, "Error getting loan statistics")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) HandleJournal(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathID(r, "id")
	if !ok {
		httpx.WriteValidation(w, `"id" must be a positive number`)
		return
	}

	entries, err := h.service.Journal(r.Context(), id)
	if err != nil {
		writeError(w, r, err, "Error getting loan journal")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) HandleSagaRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "saga_id"))
	if err != nil {
		httpx.WriteValidation(w, `"saga_id" must be a UUID`)
		return
	}

	entries, err := h.service.SagaRun(r.Context(), id)
	if err != nil {
		writeError(w, r, err, "Error getting saga")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entries)
}

// HandleJournalFeed serves GET /sagas?after=<entry id>&limit=<n>.
func (h *Handler) HandleJournalFeed(w http.ResponseWriter, r *http.Request) {
	after := 0
	if raw := r.URL.Query().Get("after"); raw != "" {
		after = httpx.QueryInt(r, "after", -1)
		if after < 0 {
			httpx.WriteValidation(w, `"after" must be a positive number`)
			return
		}
	}

	entries, err := h.service.JournalFeed(r.Context(), int64(after), httpx.QueryInt(r, "limit", maxFeedPage))
	if err != nil {
		writeError(w, r, err, "Error reading saga journal")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) HandleReconciliations(w http.ResponseWriter, r *http.Request) {
	pending, err := h.service.PendingReconciliations(r.Context())
	if err != nil {
		writeError(w, r, err, "Error listing reconciliations")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, pending)
}

func (h *Handler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Reconcile(r.Context())
	if err != nil {
		writeError(w, r, err, "Error running reconciliation")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, report)
}
