package clients_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muhaimeen90/Smart-Library-Distributed/internal/books"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/breaker"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/chaos"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/clients"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/httpx"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/users"
)

func testBreakers() *breaker.Registry {
	return breaker.NewRegistry(breaker.Config{
		FailureThreshold: 0.5,
		Timeout:          500 * time.Millisecond,
		ResetTimeout:     time.Minute,
		RollingWindow:    10 * time.Second,
		Buckets:          10,
		VolumeThreshold:  5,
	})
}

type fakeBookService struct {
	hits      atomic.Int32
	status    atomic.Int32
	lastReqID atomic.Value
	delay     time.Duration
}

func (f *fakeBookService) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/books/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		if id := r.Header.Get(httpx.RequestIDHeader); id != "" {
			f.lastReqID.Store(id)
		}
		if f.delay > 0 {
			select {
			case <-time.After(f.delay):
			case <-r.Context().Done():
				return
			}
		}
		switch status := int(f.status.Load()); status {
		case 0, http.StatusOK:
			httpx.WriteJSON(w, http.StatusOK, books.Book{ID: 7, Title: "Refactoring", Author: "Martin Fowler", Copies: 2, AvailableCopies: 1})
		case http.StatusNotFound:
			httpx.WriteMessage(w, status, "Book not found")
		default:
			httpx.WriteMessage(w, status, "something broke")
		}
	})
	r.Patch("/books/{id}/availability", func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		var upd books.AvailabilityUpdate
		if err := httpx.Decode(r, &upd); err != nil || r.Header.Get("Content-Type") != "application/json" {
			httpx.WriteMessage(w, http.StatusBadRequest, "bad body")
			return
		}
		if upd.Operation == books.OperationDecrement {
			httpx.WriteMessage(w, http.StatusBadRequest, "No available copies to decrement")
			return
		}
		httpx.WriteJSON(w, http.StatusOK, books.Availability{ID: 7, AvailableCopies: 1})
	})
	return r
}

func newBookClient(t *testing.T, fake *fakeBookService, transport http.RoundTripper) (*clients.BookClient, *httptest.Server, *breaker.Registry) {
	t.Helper()
	srv := httptest.NewServer(fake.routes())
	t.Cleanup(srv.Close)
	reg := testBreakers()
	svc := clients.NewService(clients.Options{Name: clients.BookServiceName, BaseURL: srv.URL, Transport: transport, Breakers: reg, Logger: zerolog.Nop()})
	return clients.NewBookClient(svc), srv, reg
}

func TestGetBookDecodesAndForwardsRequestID(t *testing.T) {
	fake := &fakeBookService{}
	client, _, _ := newBookClient(t, fake, nil)

	ctx := httpx.WithRequestID(context.Background(), "req-1")
	book, err := client.GetBook(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Refactoring", book.Title)
	assert.Equal(t, 1, book.AvailableCopies)
	assert.Equal(t, "req-1", fake.lastReqID.Load())
}

func TestRemoteNotFoundIsClassified(t *testing.T) {
	fake := &fakeBookService{}
	fake.status.Store(http.StatusNotFound)
	client, _, reg := newBookClient(t, fake, nil)

	for i := 0; i < 10; i++ {
		_, err := client.GetBook(context.Background(), 99)
		require.True(t, clients.IsNotFound(err), "got %v", err)
		assert.False(t, clients.IsUnavailable(err))
	}
	assert.Equal(t, breaker.StateClosed, reg.Get(clients.BookServiceName, "get").State(), "404s are answers, not outages")
}

func TestRemoteRejectionCarriesMessage(t *testing.T) {
	client, _, _ := newBookClient(t, &fakeBookService{}, nil)

	_, err := client.UpdateAvailability(context.Background(), 7, books.OperationDecrement)
	require.True(t, clients.IsRejected(err))
	var re *clients.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusBadRequest, re.Status)
	assert.Equal(t, "No available copies to decrement", re.Message)

	avail, err := client.UpdateAvailability(context.Background(), 7, books.OperationIncrement)
	require.NoError(t, err)
	assert.Equal(t, 1, avail.AvailableCopies)
}

func TestServerErrorsOpenTheCircuit(t *testing.T) {
	fake := &fakeBookService{}
	fake.status.Store(http.StatusInternalServerError)
	client, _, reg := newBookClient(t, fake, nil)

	for i := 0; i < 5; i++ {
		_, err := client.GetBook(context.Background(), 7)
		require.True(t, clients.IsRejected(err))
	}
	require.Equal(t, breaker.StateOpen, reg.Get(clients.BookServiceName, "get").State())

	hits := fake.hits.Load()
	_, err := client.GetBook(context.Background(), 7)
	assert.True(t, clients.IsUnavailable(err))
	assert.ErrorIs(t, err, breaker.ErrOpen)
	assert.Equal(t, hits, fake.hits.Load(), "an open circuit does not reach the transport")

	_, err = client.UpdateAvailability(context.Background(), 7, books.OperationIncrement)
	assert.NoError(t, err, "each operation has its own circuit")
}

func TestConnectionRefusedIsUnavailable(t *testing.T) {
	client, srv, _ := newBookClient(t, &fakeBookService{}, nil)
	srv.Close()

	_, err := client.GetBook(context.Background(), 7)
	assert.True(t, clients.IsUnavailable(err))
}

func TestSlowRemoteTimesOut(t *testing.T) {
	fake := &fakeBookService{delay: 2 * time.Second}
	srv := httptest.NewServer(fake.routes())
	t.Cleanup(srv.Close)

	reg := breaker.NewRegistry(breaker.Config{Timeout: 30 * time.Millisecond})
	client := clients.NewBookClient(clients.NewService(clients.Options{Name: clients.BookServiceName, BaseURL: srv.URL, Breakers: reg, Logger: zerolog.Nop()}))

	start := time.Now()
	_, err := client.GetBook(context.Background(), 7)
	assert.True(t, clients.IsUnavailable(err))
	assert.ErrorIs(t, err, breaker.ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestInjectedOutageIsUnavailable(t *testing.T) {
	inj := chaos.NewFaultInjector(nil)
	client, srv, _ := newBookClient(t, &fakeBookService{}, inj)
	inj.Set(srv.URL, chaos.Fault{Down: true})

	_, err := client.GetBook(context.Background(), 7)
	assert.True(t, clients.IsUnavailable(err))
	assert.ErrorIs(t, err, chaos.ErrInjected)

	inj.Reset()
	_, err = client.GetBook(context.Background(), 7)
	assert.NoError(t, err)
}

func TestUserClientRoundTrip(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") != "1" {
			httpx.WriteMessage(w, http.StatusNotFound, "User not found")
			return
		}
		httpx.WriteJSON(w, http.StatusOK, users.User{ID: 1, Name: "John Doe", Email: "john@example.com", Role: users.RoleStudent})
	})
	r.Post("/users", func(w http.ResponseWriter, r *http.Request) {
		var in users.NewUser
		assert.NoError(t, httpx.Decode(r, &in))
		httpx.WriteJSON(w, http.StatusCreated, users.User{ID: 4, Name: in.Name, Email: in.Email, Role: users.RoleFaculty})
	})
	r.Put("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"name":"Johnny"}`, string(body))
		httpx.WriteJSON(w, http.StatusOK, users.User{ID: 1, Name: "Johnny"})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	client := clients.NewUserClient(clients.NewService(clients.Options{Name: clients.UserServiceName, BaseURL: srv.URL, Breakers: testBreakers(), Logger: zerolog.Nop()}))

	u, err := client.GetUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "John Doe", u.Name)

	_, err = client.GetUser(context.Background(), 2)
	assert.True(t, clients.IsNotFound(err))

	created, err := client.CreateUser(context.Background(), users.NewUser{Name: "New", Email: "new@example.com", Role: users.RoleFaculty})
	require.NoError(t, err)
	assert.EqualValues(t, 4, created.ID)

	name := "Johnny"
	updated, err := client.UpdateUser(context.Background(), 1, users.UserUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Johnny", updated.Name)
}

func TestRemoteErrorStrings(t *testing.T) {
	assert.Equal(t, "book-service responded 400: nope",
		(&clients.RemoteError{Service: "book-service", Kind: clients.KindRejected, Status: 400, Message: "nope"}).Error())
	assert.Equal(t, "user-service unavailable: boom",
		(&clients.RemoteError{Service: "user-service", Kind: clients.KindUnavailable, Err: errors.New("boom")}).Error())
	assert.False(t, clients.IsNotFound(errors.New("plain")))
	assert.True(t, clients.IsFailure(context.DeadlineExceeded))
	assert.False(t, clients.IsFailure(context.Canceled))
	assert.False(t, clients.IsFailure(&clients.RemoteError{Kind: clients.KindRejected, Status: 409}))
	assert.True(t, clients.IsFailure(&clients.RemoteError{Kind: clients.KindRejected, Status: 503}))
}
