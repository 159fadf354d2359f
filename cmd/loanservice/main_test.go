package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muhaimeen90/Smart-Library-Distributed/internal/app"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/breaker"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/config"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/events"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/loans"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/sagalog"
)

func testConfig(withChaos bool) config.Config {
	return config.Config{
		UserServiceURL: "http://users.invalid:8081",
		BookServiceURL: "http://books.invalid:8082",
		Chaos:          withChaos,
		Breaker: config.Breaker{
			FailureThreshold: 0.5,
			Timeout:          breaker.DefaultConfig("").Timeout,
			ResetTimeout:     breaker.DefaultConfig("").ResetTimeout,
			RollingWindow:    breaker.DefaultConfig("").RollingWindow,
			Buckets:          10,
			VolumeThreshold:  5,
		},
	}
}

func newRouter(t *testing.T, withChaos bool) http.Handler {
	t.Helper()
	ctx := context.Background()
	db, err := app.OpenDB(ctx, "sqlite://:memory:", loans.Schema, sagalog.Schema)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, handler := build(db, testConfig(withChaos), events.Noop{}, zerolog.Nop())
	return handler
}

func request(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAdminFaultsRequireChaosFlag(t *testing.T) {
	h := newRouter(t, false)

	assert.Equal(t, http.StatusOK, request(t, h, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusNotFound, request(t, h, http.MethodGet, "/admin/faults/", "").Code)
}

func TestBreakersReflectInjectedOutage(t *testing.T) {
	h := newRouter(t, true)

	rec := request(t, h, http.MethodPut, "/admin/faults/user-service", `{"down":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = request(t, h, http.MethodGet, "/loans/user/1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"loans":[],"total":0}`, rec.Body.String())

	rec = request(t, h, http.MethodGet, "/breakers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snaps []breaker.Snapshot
	require.NoError(t, jsoniter.Unmarshal(rec.Body.Bytes(), &snaps))
	require.Len(t, snaps, 1)
	assert.Equal(t, "user-service:get", snaps[0].Name)
	assert.Equal(t, "CLOSED", snaps[0].State)
	assert.Equal(t, 1, snaps[0].Failures)
}

func TestBreakerConfigCarriesFlags(t *testing.T) {
	cfg := breakerConfig(config.Breaker{FailureThreshold: 0.25, Buckets: 4, VolumeThreshold: 8})

	assert.Equal(t, serviceName, cfg.Name)
	assert.Equal(t, 0.25, cfg.FailureThreshold)
	assert.Equal(t, 4, cfg.Buckets)
	assert.Equal(t, 8, cfg.VolumeThreshold)
}
