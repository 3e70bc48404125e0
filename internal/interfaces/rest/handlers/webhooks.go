package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/payflow-labs/payflow/internal/application"
	"github.com/payflow-labs/payflow/internal/interfaces/rest"
)

func (h *Handlers) ListWebhookDeliveries(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	var transactionID *uuid.UUID
	if raw := r.URL.Query().Get("transaction_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			rest.WriteError(w, application.NewInvalidInputError("invalid transaction_id", err), h.logger)
			return
		}
		transactionID = &id
	}

	limit, offset := pagination(r)
	deliveries, err := h.queries.ListWebhookDeliveries(r.Context(), userID, transactionID, limit, offset)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	out := make([]rest.WebhookDeliveryResponse, 0, len(deliveries))
	for _, d := range deliveries {
		out = append(out, rest.ToWebhookDeliveryResponse(d))
	}
	rest.RespondJSON(w, http.StatusOK, out)
}

func (h *Handlers) GetWebhookDelivery(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	deliveryID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		rest.WriteError(w, application.NewInvalidInputError("invalid delivery id", err), h.logger)
		return
	}

	delivery, err := h.queries.GetWebhookDelivery(r.Context(), userID, deliveryID)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.RespondJSON(w, http.StatusOK, rest.ToWebhookDeliveryResponse(delivery))
}
