package chaos

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/muhaimeen90/Smart-Library-Distributed/internal/httpx"
)

// BookPlaceholderTitle is the title the loan service substitutes when the
// book service cannot be reached.
const BookPlaceholderTitle = "Book information unavailable"

// LoanServiceTarget drives a running loan service started with --chaos.
type LoanServiceTarget struct {
	BaseURL string
	Client  *http.Client
	// UserID and BookID are used by probe requests.
	UserID int64
	BookID int64
}

func (t LoanServiceTarget) client() *http.Client {
	if t.Client != nil {
		return t.Client
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (t LoanServiceTarget) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := httpx.JSON.NewEncoder(&buf).Encode(body); err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, t.BaseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return t.client().Do(req)
}

// SetFault installs a fault on the loan service's outbound traffic to target.
func (t LoanServiceTarget) SetFault(ctx context.Context, target string, f Fault) error {
	resp, err := t.do(ctx, http.MethodPut, "/admin/faults/"+target, f)
	if err != nil {
		return fmt.Errorf("set fault on %s: %w", target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("set fault on %s: unexpected status code: %d", target, resp.StatusCode)
	}
	return nil
}

// ClearFault removes the fault on target.
func (t LoanServiceTarget) ClearFault(ctx context.Context, target string) error {
	resp, err := t.do(ctx, http.MethodDelete, "/admin/faults/"+target, nil)
	if err != nil {
		return fmt.Errorf("clear fault on %s: %w", target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("clear fault on %s: unexpected status code: %d", target, resp.StatusCode)
	}
	return nil
}

func (t LoanServiceTarget) healthy(ctx context.Context) (float64, error) {
	resp, err := t.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return 1, nil
	}
	return 0, nil
}

func (t LoanServiceTarget) totalLoans(ctx context.Context) (float64, error) {
	resp, err := t.do(ctx, http.MethodGet, "/loans/stats", nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("loan stats: unexpected status code: %d", resp.StatusCode)
	}
	var stats struct {
		TotalLoans int64 `json:"total_loans"`
	}
	if err := httpx.JSON.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return 0, fmt.Errorf("decode loan stats: %w", err)
	}
	return float64(stats.TotalLoans), nil
}

func upMetric(t LoanServiceTarget) Metric {
	return Metric{
		Name:      "loan_service_up",
		Query:     t.healthy,
		Threshold: Threshold{Operator: "==", Value: 1},
	}
}

// BookServiceOutage takes the book service away from the loan service and
// expects user loan listings to keep answering 200 with placeholder books.
func BookServiceOutage(t LoanServiceTarget, duration time.Duration) Experiment {
	return Experiment{
		Name:        "book-service-outage",
		Hypothesis:  "Loan listings stay available with placeholder book details while the book service is down",
		SteadyState: []Metric{upMetric(t)},
		Observe: []Metric{
			{
				Name: "listing_ok_pct",
				Query: func(ctx context.Context) (float64, error) {
					ok, _, err := t.listing(ctx)
					if err != nil {
						return 0, err
					}
					if ok {
						return 100, nil
					}
					return 0, nil
				},
				Threshold: Threshold{Operator: "==", Value: 100},
			},
			{
				Name: "placeholder_pct",
				Query: func(ctx context.Context) (float64, error) {
					_, pct, err := t.listing(ctx)
					return pct, err
				},
				Threshold: Threshold{Operator: "==", Value: 100},
			},
		},
		Method: []Action{{
			Type:    "outage",
			Target:  "book-service",
			Execute: func(ctx context.Context) error { return t.SetFault(ctx, "book-service", Fault{Down: true}) },
		}},
		Rollback: []Action{{
			Type:    "restore",
			Target:  "book-service",
			Execute: func(ctx context.Context) error { return t.ClearFault(ctx, "book-service") },
		}},
		Validation: []Assertion{
			{Metric: "listing_ok_pct", Condition: func(v float64) bool { return v == 100 }, Message: "user loan listing must answer 200"},
			{Metric: "placeholder_pct", Condition: func(v float64) bool { return v == 100 }, Message: "every listed loan must carry the placeholder book"},
		},
		Duration: duration,
		Interval: time.Second,
	}
}

// listing fetches the probe user's loans and reports the share of
// placeholder books. An empty listing counts as fully degraded.
func (t LoanServiceTarget) listing(ctx context.Context) (bool, float64, error) {
	resp, err := t.do(ctx, http.MethodGet, fmt.Sprintf("/loans/user/%d", t.UserID), nil)
	if err != nil {
		return false, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, 0, nil
	}
	var body struct {
		Loans []struct {
			Book struct {
				Title string `json:"title"`
			} `json:"book"`
		} `json:"loans"`
	}
	if err := httpx.JSON.NewDecoder(resp.Body).Decode(&body); err != nil {
		return true, 0, fmt.Errorf("decode listing: %w", err)
	}
	if len(body.Loans) == 0 {
		return true, 100, nil
	}
	placeholders := 0
	for _, l := range body.Loans {
		if l.Book.Title == BookPlaceholderTitle {
			placeholders++
		}
	}
	return true, 100 * float64(placeholders) / float64(len(body.Loans)), nil
}

// UserServiceOutage takes the user service away and expects every issuance
// to answer 503 without creating a loan.
func UserServiceOutage(t LoanServiceTarget, duration time.Duration) Experiment {
	var baseline float64
	return Experiment{
		Name:        "user-service-outage",
		Hypothesis:  "Loan issuance replies 503 and creates no loans while the user service is down",
		SteadyState: []Metric{upMetric(t)},
		Observe: []Metric{
			{
				Name: "issuance_unavailable_pct",
				Query: func(ctx context.Context) (float64, error) {
					resp, err := t.do(ctx, http.MethodPost, "/loans", map[string]any{
						"user_id":  t.UserID,
						"book_id":  t.BookID,
						"due_date": time.Now().UTC().Add(14 * 24 * time.Hour).Format(time.RFC3339),
					})
					if err != nil {
						return 0, err
					}
					defer resp.Body.Close()
					if resp.StatusCode == http.StatusServiceUnavailable {
						return 100, nil
					}
					return 0, nil
				},
				Threshold: Threshold{Operator: "==", Value: 100},
			},
			{
				Name: "loans_created",
				Query: func(ctx context.Context) (float64, error) {
					total, err := t.totalLoans(ctx)
					return total - baseline, err
				},
				Threshold: Threshold{Operator: "==", Value: 0},
			},
		},
		Method: []Action{
			{
				Type:   "snapshot",
				Target: "loan-service",
				Execute: func(ctx context.Context) error {
					total, err := t.totalLoans(ctx)
					baseline = total
					return err
				},
			},
			{
				Type:    "outage",
				Target:  "user-service",
				Execute: func(ctx context.Context) error { return t.SetFault(ctx, "user-service", Fault{Down: true}) },
			},
		},
		Rollback: []Action{{
			Type:    "restore",
			Target:  "user-service",
			Execute: func(ctx context.Context) error { return t.ClearFault(ctx, "user-service") },
		}},
		Validation: []Assertion{
			{Metric: "issuance_unavailable_pct", Condition: func(v float64) bool { return v == 100 }, Message: "issuance must answer 503"},
			{Metric: "loans_created", Condition: func(v float64) bool { return v == 0 }, Message: "no loan may be created during the outage"},
		},
		Duration: duration,
		Interval: time.Second,
	}
}
