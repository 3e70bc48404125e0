// Package rest holds the HTTP surface: response envelope, DTOs and the router.
package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/payflow-labs/payflow/internal/application"
	"github.com/payflow-labs/payflow/internal/domain"
)

type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := APIResponse{
		Success: status >= 200 && status < 300,
	}
	if response.Success {
		response.Data = data
	} else if apiErr, ok := data.(*APIError); ok {
		response.Error = apiErr
	}

	_ = json.NewEncoder(w).Encode(response)
}

// WriteError maps service and domain errors to HTTP responses. Anything
// unrecognized is logged and sanitized to a 500.
func WriteError(w http.ResponseWriter, err error, logger *slog.Logger) {
	var svcErr *application.ServiceError
	if errors.As(err, &svcErr) {
		RespondJSON(w, svcErr.HTTPStatus, &APIError{
			Code:    svcErr.Code,
			Message: svcErr.Message,
		})
		return
	}

	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		RespondJSON(w, domainStatus(domainErr.Code), &APIError{
			Code:    domainErr.Code,
			Message: domainErr.Message,
		})
		return
	}

	logger.Error("unhandled error", "error", err)
	RespondJSON(w, http.StatusInternalServerError, &APIError{
		Code:    application.ErrCodeInternal,
		Message: "An unexpected error occurred",
	})
}

func domainStatus(code string) int {
	switch code {
	case domain.ErrCodeInvalidAmount, domain.ErrCodeMissingRequiredField, domain.ErrCodeInsufficientBalance:
		return http.StatusBadRequest
	case domain.ErrCodeInvalidTransition, domain.ErrCodeConcurrentUpdate:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
