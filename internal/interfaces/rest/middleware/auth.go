package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/payflow-labs/payflow/internal/application"
	"github.com/payflow-labs/payflow/internal/interfaces/rest"
	"github.com/payflow-labs/payflow/internal/security"
)

// Auth verifies the bearer token and puts the user id on the context.
func Auth(tokens *security.TokenIssuer, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				rest.WriteError(w, application.NewUnauthorizedError("Missing bearer token"), logger)
				return
			}

			userID, err := tokens.Verify(token)
			if err != nil {
				logger.Warn("rejected token", "path", r.URL.Path, "error", err)
				rest.WriteError(w, application.NewUnauthorizedError("Invalid or expired token"), logger)
				return
			}

			next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), userID)))
		})
	}
}
