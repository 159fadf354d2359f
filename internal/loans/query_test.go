package loans

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muhaimeen90/Smart-Library-Distributed/internal/httpx"
)

func TestFetchAllLooksUpDistinctIDsOnce(t *testing.T) {
	var (
		mu    sync.Mutex
		calls = map[int64]int{}
		bad   []int64
	)
	fetch := func(_ context.Context, id int64) (*string, error) {
		mu.Lock()
		calls[id]++
		mu.Unlock()
		if id == 3 {
			return nil, errors.New("down")
		}
		v := "v" + itoa(id)
		return &v, nil
	}

	got := fetchAll(context.Background(), []int64{1, 1, 2, 3, 3, 2}, 2, fetch, func(id int64, _ error) {
		mu.Lock()
		bad = append(bad, id)
		mu.Unlock()
	})

	assert.Equal(t, map[int64]int{1: 1, 2: 1, 3: 1}, calls)
	assert.Equal(t, []int64{3}, bad)
	require.Len(t, got, 3)
	assert.Equal(t, "v1", *got[1].Value)
	assert.False(t, got[2].Unavailable)
	assert.True(t, got[3].Unavailable)
	assert.Nil(t, got[3].Value)
	assert.EqualValues(t, 3, got[3].ID)
}

func TestUserLoansDegradeWhenBookServiceDown(t *testing.T) {
	e := newEnv(t)
	user := e.addUser("u@example.com")
	first := e.addBook("1", 2)
	second := e.addBook("2", 1)

	for _, id := range []int64{first.ID, second.ID, first.ID} {
		require.Equal(t, http.StatusCreated, e.do(http.MethodPost, "/loans", e.issueBody(user.ID, id)).Code)
		e.clock.Advance(time.Minute)
	}

	rec := e.do(http.MethodGet, "/loans/user/"+itoa(user.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	listing := decode[UserLoans](t, rec)
	assert.Equal(t, 3, listing.Total)
	require.Len(t, listing.Loans, 3)
	assert.Equal(t, "Title 1", listing.Loans[0].Book.Title, "newest first")
	assert.Equal(t, "Title 2", listing.Loans[1].Book.Title)
	assert.Equal(t, "Author 1", listing.Loans[2].Book.Author)

	e.bookServiceDown(true)
	rec = e.do(http.MethodGet, "/loans/user/"+itoa(user.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	degraded := decode[UserLoans](t, rec)
	assert.Equal(t, listing.Total, degraded.Total)
	require.Len(t, degraded.Loans, 3)
	for i, l := range degraded.Loans {
		assert.Equal(t, listing.Loans[i].ID, l.ID)
		assert.Equal(t, listing.Loans[i].Book.ID, l.Book.ID)
		assert.Equal(t, UnavailableTitle, l.Book.Title)
		assert.Equal(t, UnavailableAuthor, l.Book.Author)
	}
}

func TestUserLoansChecksUser(t *testing.T) {
	e := newEnv(t)
	user := e.addUser("u@example.com")
	book := e.addBook("1", 1)
	require.Equal(t, http.StatusCreated, e.do(http.MethodPost, "/loans", e.issueBody(user.ID, book.ID)).Code)

	rec := e.do(http.MethodGet, "/loans/user/77", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"User not found"}`, rec.Body.String())

	e.userServiceDown(true)
	rec = e.do(http.MethodGet, "/loans/user/"+itoa(user.ID), "")
	require.Equal(t, http.StatusOK, rec.Code, "an unreachable user service does not block the listing")
	assert.Equal(t, 1, decode[UserLoans](t, rec).Total)

	rec = e.do(http.MethodGet, "/loans/user/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoanDetail(t *testing.T) {
	e := newEnv(t)
	user := e.addUser("u@example.com")
	book := e.addBook("1", 1)
	loan := decode[Loan](t, e.do(http.MethodPost, "/loans", e.issueBody(user.ID, book.ID)))

	rec := e.do(http.MethodGet, "/loans/"+itoa(loan.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[LoanDetail](t, rec)
	assert.Equal(t, UserSummary{ID: user.ID, Name: "Reader", Email: "u@example.com"}, detail.User)
	assert.Equal(t, BookSummary{ID: book.ID, Title: "Title 1", Author: "Author 1"}, detail.Book)
	assert.Equal(t, StatusActive, detail.Status)
	assert.False(t, detail.Overdue)

	e.userServiceDown(true)
	e.bookServiceDown(true)
	rec = e.do(http.MethodGet, "/loans/"+itoa(loan.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":`+itoa(user.ID)+`}`, string(field(t, rec.Body.Bytes(), "user")))
	assert.JSONEq(t, `{"id":`+itoa(book.ID)+`}`, string(field(t, rec.Body.Bytes(), "book")))

	rec = e.do(http.MethodGet, "/loans/999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"Loan not found"}`, rec.Body.String())
}

func field(t *testing.T, body []byte, name string) []byte {
	t.Helper()
	var m map[string]jsoniter.RawMessage
	require.NoError(t, httpx.JSON.Unmarshal(body, &m))
	return m[name]
}

func TestOverdueAndStats(t *testing.T) {
	e := newEnv(t)
	user := e.addUser("u@example.com")
	book := e.addBook("1", 3)

	onTime := decode[Loan](t, e.do(http.MethodPost, "/loans", e.issueBody(user.ID, book.ID)))
	late := decode[Loan](t, e.do(http.MethodPost, "/loans", `{"user_id":`+itoa(user.ID)+`,"book_id":`+itoa(book.ID)+`,"due_date":"`+
		testNow.Add(48*time.Hour).Format(time.RFC3339)+`"}`))
	returned := decode[Loan](t, e.do(http.MethodPost, "/loans", e.issueBody(user.ID, book.ID)))
	require.Equal(t, http.StatusOK, e.do(http.MethodPost, "/returns", `{"loan_id":`+itoa(returned.ID)+`}`).Code)

	rec := e.do(http.MethodGet, "/loans/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"loans_today":3,"returns_today":1,"overdue_loans":0,"active_loans":2,"total_loans":3}`, rec.Body.String())

	e.clock.Advance(5 * 24 * time.Hour)

	rec = e.do(http.MethodGet, "/loans/overdue", "")
	require.Equal(t, http.StatusOK, rec.Code)
	overdue := decode[[]OverdueLoan](t, rec)
	require.Len(t, overdue, 1)
	assert.Equal(t, late.ID, overdue[0].ID)
	assert.Equal(t, 3, overdue[0].DaysOverdue)
	assert.Equal(t, "Title 1", overdue[0].Book.Title)
	assert.Equal(t, "Reader", overdue[0].User.Name)

	rec = e.do(http.MethodGet, "/loans/stats", "")
	assert.JSONEq(t, `{"loans_today":0,"returns_today":0,"overdue_loans":1,"active_loans":2,"total_loans":3}`, rec.Body.String())

	detail := decode[LoanDetail](t, e.do(http.MethodGet, "/loans/"+itoa(late.ID), ""))
	assert.True(t, detail.Overdue)
	detail = decode[LoanDetail](t, e.do(http.MethodGet, "/loans/"+itoa(onTime.ID), ""))
	assert.False(t, detail.Overdue)
}
