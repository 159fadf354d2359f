package loans

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/muhaimeen90/Smart-Library-Distributed/internal/books"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/breaker"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/chaos"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/clients"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/clock"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/database"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/events"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/httpx"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/sagalog"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/users"
)

var testNow = time.Date(2024, 4, 2, 8, 30, 0, 0, time.UTC)

func openDB(t *testing.T, schemas ...database.Schema) *database.DB {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, "sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	for _, s := range schemas {
		require.NoError(t, db.Migrate(ctx, s))
	}
	return db
}

// availabilitySpy sits in front of the book service, recording every
// availability operation and failing the ones it is told to.
type availabilitySpy struct {
	mu   sync.Mutex
	ops  []books.Operation
	fail map[books.Operation]bool
}

func (s *availabilitySpy) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch && strings.HasSuffix(r.URL.Path, "/availability") {
			body, _ := io.ReadAll(r.Body)
			var upd books.AvailabilityUpdate
			_ = httpx.JSON.Unmarshal(body, &upd)

			s.mu.Lock()
			s.ops = append(s.ops, upd.Operation)
			failing := s.fail[upd.Operation]
			s.mu.Unlock()

			if failing {
				httpx.WriteMessage(w, http.StatusInternalServerError, "availability store offline")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *availabilitySpy) setFail(op books.Operation, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[op] = fail
}

func (s *availabilitySpy) operations() []books.Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]books.Operation(nil), s.ops...)
}

// env is a loan service wired to real user and book services over HTTP,
// with a fault injector on the loan service's outbound transport.
type env struct {
	t       *testing.T
	clock   *clock.Manual
	users   users.Service
	books   books.Service
	loanDB  *database.DB
	service Service
	router  http.Handler
	faults  *chaos.FaultInjector
	spy     *availabilitySpy
	events  *events.Recorder
	userURL string
	bookURL string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	clk := clock.NewManual(testNow)

	userSvc := users.NewService(openDB(t, users.Schema), users.Options{Clock: clk})
	userRouter := httpx.NewRouter(clients.UserServiceName, zerolog.Nop())
	users.NewHandler(userSvc).Routes(userRouter)
	userSrv := httptest.NewServer(userRouter)
	t.Cleanup(userSrv.Close)

	bookSvc := books.NewService(openDB(t, books.Schema), books.Options{Clock: clk})
	bookRouter := httpx.NewRouter(clients.BookServiceName, zerolog.Nop())
	books.NewHandler(bookSvc).Routes(bookRouter)
	spy := &availabilitySpy{fail: make(map[books.Operation]bool)}
	bookSrv := httptest.NewServer(spy.wrap(bookRouter))
	t.Cleanup(bookSrv.Close)

	faults := chaos.NewFaultInjector(http.DefaultTransport)
	registry := breaker.NewRegistry(breaker.DefaultConfig("loan-service"))
	userClient := clients.NewUserClient(clients.NewService(clients.Options{
		Name: clients.UserServiceName, BaseURL: userSrv.URL, Transport: faults, Breakers: registry, Logger: zerolog.Nop(),
	}))
	bookClient := clients.NewBookClient(clients.NewService(clients.Options{
		Name: clients.BookServiceName, BaseURL: bookSrv.URL, Transport: faults, Breakers: registry, Logger: zerolog.Nop(),
	}))

	loanDB := openDB(t, Schema, sagalog.Schema)
	recorder := &events.Recorder{}
	svc := NewService(loanDB, Options{
		Users:   userClient,
		Books:   bookClient,
		Journal: sagalog.NewStore(loanDB, clk),
		Events:  recorder,
		Clock:   clk,
		Logger:  zerolog.Nop(),
	})
	router := httpx.NewRouter("loan-service", zerolog.Nop())
	NewHandler(svc, clk).Routes(router)

	return &env{
		t:       t,
		clock:   clk,
		users:   userSvc,
		books:   bookSvc,
		loanDB:  loanDB,
		service: svc,
		router:  router,
		faults:  faults,
		spy:     spy,
		events:  recorder,
		userURL: userSrv.URL,
		bookURL: bookSrv.URL,
	}
}

func (e *env) addUser(email string) *users.User {
	e.t.Helper()
	u, err := e.users.CreateUser(context.Background(), users.NewUser{Name: "Reader", Email: email})
	require.NoError(e.t, err)
	return u
}

func (e *env) addBook(isbn string, copies int) *books.Book {
	e.t.Helper()
	b, err := e.books.AddBook(context.Background(), books.NewBook{Title: "Title " + isbn, Author: "Author " + isbn, ISBN: isbn, Copies: copies})
	require.NoError(e.t, err)
	return b
}

func (e *env) available(bookID int64) int {
	e.t.Helper()
	b, err := e.books.GetBook(context.Background(), bookID)
	require.NoError(e.t, err)
	return b.AvailableCopies
}

func (e *env) loanCount() int64 {
	e.t.Helper()
	n, err := (&store{db: e.loanDB}).count(context.Background())
	require.NoError(e.t, err)
	return n
}

func (e *env) userServiceDown(down bool) {
	e.faults.Set(e.userURL, chaos.Fault{Down: down})
}

func (e *env) bookServiceDown(down bool) {
	e.faults.Set(e.bookURL, chaos.Fault{Down: down})
}

func (e *env) do(method, path, body string) *httptest.ResponseRecorder {
	e.t.Helper()
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func (e *env) issueBody(userID, bookID int64) string {
	due := e.clock.Now().AddDate(0, 0, 14).Format(time.RFC3339)
	return `{"user_id":` + itoa(userID) + `,"book_id":` + itoa(bookID) + `,"due_date":"` + due + `"}`
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, httpx.JSON.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
