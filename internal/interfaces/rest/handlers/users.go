package handlers

import (
	"net/http"

	"github.com/payflow-labs/payflow/internal/application/services"
	"github.com/payflow-labs/payflow/internal/interfaces/rest"
)

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	user, err := h.auth.GetUser(r.Context(), userID)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.RespondJSON(w, http.StatusOK, rest.ToUserResponse(user))
}

func (h *Handlers) Balance(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	account, err := h.queries.GetAccount(r.Context(), userID)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.RespondJSON(w, http.StatusOK, rest.ToAccountResponse(account))
}

func (h *Handlers) MyTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	limit, offset := pagination(r)
	query := services.ListTransactionsQuery{
		UserID: userID,
		Limit:  limit,
		Offset: offset,
	}
	if kind := r.URL.Query().Get("type"); kind != "" {
		query.Type = &kind
	}

	txns, err := h.queries.ListTransactions(r.Context(), query)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.RespondJSON(w, http.StatusOK, rest.ToTransactionResponses(txns))
}

func (h *Handlers) UpdateWebhookURL(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	var req rest.UpdateWebhookRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	if err := h.auth.UpdateWebhookURL(r.Context(), userID, req.WebhookURL); err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	user, err := h.auth.GetUser(r.Context(), userID)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.RespondJSON(w, http.StatusOK, rest.ToUserResponse(user))
}
