package handlers

import (
	"net/http"

	"github.com/payflow-labs/payflow/internal/application/services"
	"github.com/payflow-labs/payflow/internal/interfaces/rest"
)

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req rest.RegisterRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	user, account, err := h.auth.Register(r.Context(), services.RegisterCommand{
		Email:      req.Email,
		FullName:   req.FullName,
		Password:   req.Password,
		WebhookURL: req.WebhookURL,
	})
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.RespondJSON(w, http.StatusCreated, rest.RegisterResponse{
		User:    rest.ToUserResponse(user),
		Account: rest.ToAccountResponse(account),
	})
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req rest.LoginRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	token, user, err := h.auth.Login(r.Context(), services.LoginCommand{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.RespondJSON(w, http.StatusOK, rest.AuthResponse{
		Token: token,
		User:  rest.ToUserResponse(user),
	})
}
