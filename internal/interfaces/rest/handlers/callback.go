package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/payflow-labs/payflow/internal/application"
	"github.com/payflow-labs/payflow/internal/application/services"
	"github.com/payflow-labs/payflow/internal/interfaces/rest"
	"github.com/payflow-labs/payflow/internal/security"
)

// maxCallbackSkew bounds how stale or future-dated a signed callback may be.
const maxCallbackSkew = 300 * time.Second

const bankSignatureHeader = "X-Bank-Signature"

// BankCallback receives the bank's asynchronous verdict. The signature is
// computed over the exact received body bytes, so the body is read raw
// before any decoding.
func (h *Handlers) BankCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		rest.WriteError(w, application.NewInvalidInputError("Unreadable request body", err), h.logger)
		return
	}

	var req rest.BankCallbackRequest
	if err := json.Unmarshal(body, &req); err != nil {
		rest.WriteError(w, application.NewInvalidInputError("Invalid JSON body", err), h.logger)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		rest.WriteError(w, application.NewInvalidInputError(err.Error(), err), h.logger)
		return
	}

	skew := time.Since(time.Unix(req.Timestamp, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > maxCallbackSkew {
		h.logger.Warn("callback timestamp outside window",
			"transaction_id", req.TransactionID,
			"skew", skew,
		)
		rest.WriteError(w, application.NewInvalidInputError(
			fmt.Sprintf("Callback timestamp too old or in the future (skew %s, max %s)", skew, maxCallbackSkew),
			nil), h.logger)
		return
	}

	signature := r.Header.Get(bankSignatureHeader)
	if !security.VerifySignature(body, signature, h.bankSecret) {
		h.logger.Warn("callback signature mismatch", "transaction_id", req.TransactionID)
		rest.WriteError(w, application.NewUnauthorizedError("Invalid webhook signature"), h.logger)
		return
	}

	transactionID, err := uuid.Parse(req.TransactionID)
	if err != nil {
		rest.WriteError(w, application.NewInvalidInputError("invalid transaction id", err), h.logger)
		return
	}

	err = h.txns.ProcessBankCallback(r.Context(), services.BankCallback{
		TransactionID:     transactionID,
		Status:            req.Status,
		BankTransactionID: req.BankTransactionID,
		Message:           req.Message,
		ErrorCode:         req.ErrorCode,
	})
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.RespondJSON(w, http.StatusOK, map[string]any{
		"received": true,
		"message":  "Webhook received and processed successfully",
	})
}
