package users

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muhaimeen90/Smart-Library-Distributed/internal/clock"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/database"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/httpx"
)

var testNow = time.Date(2024, 4, 2, 8, 30, 0, 0, time.UTC)

func setupService(t *testing.T, opts Options) Service {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, "sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(ctx, Schema))
	if opts.Clock == nil {
		opts.Clock = clock.NewManual(testNow)
	}
	return NewService(db, opts)
}

func TestCreateAndGetUser(t *testing.T) {
	svc := setupService(t, Options{})
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, NewUser{Name: " Ada ", Email: "Ada@Example.com"})
	require.NoError(t, err)
	assert.Positive(t, u.ID)
	assert.Equal(t, "Ada", u.Name)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.Equal(t, RoleStudent, u.Role, "role defaults to student")

	got, err := svc.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)
	assert.True(t, testNow.Equal(got.CreatedAt))

	_, err = svc.GetUser(ctx, 999)
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = svc.CreateUser(ctx, NewUser{Name: "Other", Email: "ada@example.com"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestUpdateUser(t *testing.T) {
	svc := setupService(t, Options{})
	ctx := context.Background()

	a, err := svc.CreateUser(ctx, NewUser{Name: "A", Email: "a@example.com"})
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, NewUser{Name: "B", Email: "b@example.com"})
	require.NoError(t, err)

	_, err = svc.UpdateUser(ctx, a.ID, UserUpdate{})
	assert.ErrorIs(t, err, ErrNoFields)

	taken := "b@example.com"
	_, err = svc.UpdateUser(ctx, a.ID, UserUpdate{Email: &taken})
	assert.ErrorIs(t, err, ErrEmailTaken)

	same := "a@example.com"
	name := "Alice"
	u, err := svc.UpdateUser(ctx, a.ID, UserUpdate{Name: &name, Email: &same})
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.Name)

	_, err = svc.UpdateUser(ctx, 42, UserUpdate{Name: &name})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestSeedAndList(t *testing.T) {
	svc := setupService(t, Options{})
	ctx := context.Background()

	n, err := svc.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = svc.Seed(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "seeding is skipped when users exist")

	page, err := svc.ListUsers(ctx, ListQuery{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Total)
	assert.Equal(t, 2, page.Page)
	require.Len(t, page.Users, 1)
	assert.Equal(t, "Admin User", page.Users[0].Name)
	assert.Equal(t, RoleAdmin, page.Users[0].Role)
}

func TestCreateIsRateLimited(t *testing.T) {
	svc := setupService(t, Options{CreateLimit: 0.001, CreateBurst: 1})
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, NewUser{Name: "A", Email: "a@example.com"})
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, NewUser{Name: "B", Email: "b@example.com"})
	assert.ErrorIs(t, err, ErrRateLimited)
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	r := httpx.NewRouter("user-service", zerolog.Nop())
	NewHandler(setupService(t, Options{})).Routes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestHandlers(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/users", `{"name":"John Doe","email":"john@example.com","role":"faculty"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var u User
	require.NoError(t, httpx.JSON.Unmarshal(rec.Body.Bytes(), &u))
	assert.Equal(t, RoleFaculty, u.Role)

	rec = do(t, h, http.MethodPost, "/users", `{"name":"Dup","email":"john@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"message":"User with this email already exists"}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/users", `{"name":"","email":"nope","role":"guest"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"message":"Validation error"`)
	assert.Contains(t, rec.Body.String(), "role")

	rec = do(t, h, http.MethodGet, "/users/1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/users/77", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"User not found"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/users/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, "/users/1", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, "/users/1", `{"name":"Johnny"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"Johnny"`)

	rec = do(t, h, http.MethodGet, "/users?page=1&limit=5", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)
}
