package middleware_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payflow-labs/payflow/internal/application/idempotency"
	"github.com/payflow-labs/payflow/internal/infrastructure/cache"
	"github.com/payflow-labs/payflow/internal/interfaces/rest/middleware"
	"github.com/payflow-labs/payflow/internal/security"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var envelope struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &envelope))
	require.False(t, envelope.Success)
	return envelope.Error.Code
}

func TestIdempotencyMissingKey(t *testing.T) {
	svc := idempotency.NewService(redisClient(t), time.Hour, testLogger())
	handler := middleware.Idempotency(svc, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run without an idempotency key")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/deposits", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", errorCode(t, rec.Body.Bytes()))
}

func TestIdempotencyReplaysCompletedResponse(t *testing.T) {
	svc := idempotency.NewService(redisClient(t), time.Hour, testLogger())

	invocations := 0
	handler := middleware.Idempotency(svc, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		invocations++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"success":true,"data":{"id":"txn-1","status":"PENDING"}}`))
	}))

	request := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/deposits", strings.NewReader(`{"amount":"10.00"}`))
		req.Header.Set("Idempotency-Key", "key-1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	first := request()
	require.Equal(t, http.StatusAccepted, first.Code)
	require.Equal(t, 1, invocations)

	second := request()
	assert.Equal(t, 1, invocations, "replay must not re-run the handler")
	assert.Equal(t, first.Code, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "key-1", second.Header().Get("Idempotency-Key"))
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
}

func TestIdempotencyConcurrentRequestConflicts(t *testing.T) {
	svc := idempotency.NewService(redisClient(t), time.Hour, testLogger())

	// Another request holds the lock and has not finished yet.
	acquired, err := svc.AcquireLock(context.Background(), "key-busy")
	require.NoError(t, err)
	require.True(t, acquired)

	handler := middleware.Idempotency(svc, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run while the key is locked")
	}))

	req := httptest.NewRequest(http.MethodPost, "/deposits", nil)
	req.Header.Set("Idempotency-Key", "key-busy")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
	assert.Equal(t, "CONFLICT", errorCode(t, rec.Body.Bytes()))
}

func TestIdempotencyReleasesLockOnFailure(t *testing.T) {
	svc := idempotency.NewService(redisClient(t), time.Hour, testLogger())

	invocations := 0
	handler := middleware.Idempotency(svc, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		invocations++
		w.WriteHeader(http.StatusBadGateway)
	}))

	request := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/deposits", nil)
		req.Header.Set("Idempotency-Key", "key-fail")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusBadGateway, request().Code)
	// Failure responses are not cached, so a retry runs the handler again.
	require.Equal(t, http.StatusBadGateway, request().Code)
	assert.Equal(t, 2, invocations)
}

func authedChain(t *testing.T, limit int, enabled bool) (http.Handler, string) {
	t.Helper()
	tokens := security.NewTokenIssuer("test-secret", time.Hour)
	token, err := tokens.Issue(uuid.New(), "user@example.com")
	require.NoError(t, err)

	limiter := cache.NewRateLimiter(redisClient(t))
	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler = middleware.RateLimit(limiter, "balance", limit, enabled, testLogger())(handler)
	handler = middleware.Auth(tokens, testLogger())(handler)
	return handler, token
}

func TestRateLimitEnforced(t *testing.T) {
	handler, token := authedChain(t, 3, true)

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/users/me/balance", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 3; i++ {
		rec := do()
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := do()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "RATE_LIMITED", errorCode(t, rec.Body.Bytes()))
}

func TestRateLimitDisabledPassesThrough(t *testing.T) {
	handler, token := authedChain(t, 1, false)

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/users/me/balance", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	}
}

func TestAuthRejectsMissingAndBadTokens(t *testing.T) {
	handler, _ := authedChain(t, 10, true)

	cases := map[string]string{
		"no header":    "",
		"wrong scheme": "Basic abc123",
		"garbage":      "Bearer not-a-jwt",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/users/me/balance", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec.Body.Bytes()))
		})
	}
}

func TestRequestIDGeneratedAndEchoed(t *testing.T) {
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, middleware.RequestIDFrom(r.Context()))
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	generated := rec.Header().Get("X-Request-ID")
	require.NotEmpty(t, generated)
	_, err := uuid.Parse(generated)
	assert.NoError(t, err)

	supplied := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", supplied)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, supplied, rec.Header().Get("X-Request-ID"))
}
