// Package handlers implements the HTTP endpoints over the application services.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator"
	"github.com/google/uuid"

	"github.com/payflow-labs/payflow/internal/application"
	"github.com/payflow-labs/payflow/internal/application/services"
	"github.com/payflow-labs/payflow/internal/infrastructure/bank"
	"github.com/payflow-labs/payflow/internal/interfaces/rest"
	"github.com/payflow-labs/payflow/internal/interfaces/rest/middleware"
)

type Handlers struct {
	auth       *services.AuthService
	txns       *services.TransactionService
	queries    *services.QueryService
	dlq        *services.DLQService
	breaker    *bank.BreakerClient
	bankSecret string
	validate   *validator.Validate
	logger     *slog.Logger
}

func NewHandlers(
	auth *services.AuthService,
	txns *services.TransactionService,
	queries *services.QueryService,
	dlq *services.DLQService,
	breaker *bank.BreakerClient,
	bankSecret string,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		auth:       auth,
		txns:       txns,
		queries:    queries,
		dlq:        dlq,
		breaker:    breaker,
		bankSecret: bankSecret,
		validate:   validator.New(),
		logger:     logger,
	}
}

// decodeAndValidate unmarshals the body into v and runs struct validation.
func (h *Handlers) decodeAndValidate(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return application.NewInvalidInputError("Invalid JSON body", err)
	}
	if err := h.validate.Struct(v); err != nil {
		return application.NewInvalidInputError(err.Error(), err)
	}
	return nil
}

// callerID returns the authenticated user id. The auth middleware guarantees
// it is present on protected routes.
func callerID(r *http.Request) (uuid.UUID, error) {
	id, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		return uuid.Nil, application.NewUnauthorizedError("Missing bearer token")
	}
	return id, nil
}

// pagination reads skip/limit query params with the service-side caps applied
// downstream.
func pagination(r *http.Request) (limit, offset int) {
	offset, _ = strconv.Atoi(r.URL.Query().Get("skip"))
	if offset < 0 {
		offset = 0
	}
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	return limit, offset
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	rest.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
