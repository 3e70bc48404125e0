package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/payflow-labs/payflow/internal/application"
	"github.com/payflow-labs/payflow/internal/infrastructure/cache"
	"github.com/payflow-labs/payflow/internal/interfaces/rest"
)

const rateLimitWindow = time.Minute

// RateLimit enforces a per-user sliding window on the wrapped route. The
// limiter keys on the authenticated user, so this must sit inside Auth.
// A Redis failure lets the request through.
func RateLimit(limiter *cache.RateLimiter, scope string, limit int, enabled bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}

			userID, ok := UserIDFrom(r.Context())
			if !ok {
				rest.WriteError(w, application.NewUnauthorizedError("Missing bearer token"), logger)
				return
			}

			key := fmt.Sprintf("rate_limit:%s:%s", userID, scope)
			allowed, remaining, reset, err := limiter.Allow(r.Context(), key, limit, rateLimitWindow)
			if err != nil {
				logger.Error("rate limiter unavailable, letting request through", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))

			if !allowed {
				logger.Warn("rate limit exceeded", "user_id", userID, "scope", scope)
				rest.WriteError(w, application.NewRateLimitedError(), logger)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
