package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/payflow-labs/payflow/internal/application"
	"github.com/payflow-labs/payflow/internal/application/idempotency"
	"github.com/payflow-labs/payflow/internal/interfaces/rest"
)

const idempotencyHeader = "Idempotency-Key"

// responseRecorder buffers the downstream response so it can be cached
// before anything reaches the wire.
type responseRecorder struct {
	header http.Header
	body   bytes.Buffer
	status int
}

func newResponseRecorder() *responseRecorder {
	return &responseRecorder{header: make(http.Header), status: http.StatusOK}
}

func (r *responseRecorder) Header() http.Header { return r.header }

func (r *responseRecorder) WriteHeader(status int) { r.status = status }

func (r *responseRecorder) Write(p []byte) (int, error) { return r.body.Write(p) }

// Idempotency gives POST routes exactly-once response semantics per client
// key. A completed request's response is replayed byte for byte; a request
// still in flight under the same key gets a 409 with Retry-After.
func Idempotency(svc *idempotency.Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(idempotencyHeader)
			if key == "" {
				logger.Warn("missing idempotency key", "path", r.URL.Path)
				rest.WriteError(w, application.NewInvalidInputError(
					"Missing required header: Idempotency-Key", nil), logger)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				rest.WriteError(w, application.NewInvalidInputError("Unreadable request body", err), logger)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			acquired, err := svc.AcquireLock(r.Context(), key)
			if err != nil {
				rest.WriteError(w, application.NewInternalError(err), logger)
				return
			}

			if !acquired {
				record, err := svc.CheckExisting(r.Context(), key)
				if err == nil && record != nil && record.Status == idempotency.StatusCompleted {
					logger.Info("idempotency cache hit",
						"key", key,
						"resource_id", record.ResourceID,
						"cached_status_code", record.StatusCode,
					)
					replayResponse(w, key, record)
					return
				}

				logger.Warn("idempotency race, concurrent request holds the key", "key", key)
				w.Header().Set("Retry-After", "5")
				w.Header().Set(idempotencyHeader, key)
				rest.WriteError(w, application.NewConflictError(
					"This request is already being processed. Please retry in a few seconds.", nil), logger)
				return
			}

			defer func() {
				if p := recover(); p != nil {
					_ = svc.ReleaseLock(r.Context(), key)
					panic(p)
				}
			}()

			recorder := newResponseRecorder()
			next.ServeHTTP(recorder, r)

			if recorder.status < 400 {
				err := svc.SaveResponse(
					r.Context(),
					key,
					recorder.body.Bytes(),
					recorder.status,
					flattenHeaders(recorder.header),
					extractResourceID(recorder.body.Bytes()),
				)
				if err != nil {
					logger.Error("failed to cache idempotent response", "key", key, "error", err)
				}
			} else if err := svc.ReleaseLock(r.Context(), key); err != nil {
				logger.Error("failed to release idempotency lock", "key", key, "error", err)
			}

			for name, values := range recorder.header {
				w.Header()[name] = values
			}
			w.Header().Set(idempotencyHeader, key)
			w.WriteHeader(recorder.status)
			_, _ = w.Write(recorder.body.Bytes())
		})
	}
}

func replayResponse(w http.ResponseWriter, key string, record *idempotency.Record) {
	for name, value := range record.Headers {
		w.Header().Set(name, value)
	}
	w.Header().Set(idempotencyHeader, key)
	w.WriteHeader(record.StatusCode)
	_, _ = w.Write([]byte(record.ResponseBody))
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name := range h {
		out[name] = h.Get(name)
	}
	return out
}

// extractResourceID pulls data.id out of the standard response envelope.
func extractResourceID(body []byte) string {
	var envelope struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	return envelope.Data.ID
}
