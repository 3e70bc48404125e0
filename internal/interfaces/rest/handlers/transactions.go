package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/payflow-labs/payflow/internal/application"
	"github.com/payflow-labs/payflow/internal/application/services"
	"github.com/payflow-labs/payflow/internal/domain"
	"github.com/payflow-labs/payflow/internal/interfaces/rest"
)

func (h *Handlers) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	h.createTransaction(w, r, domain.TypeDeposit, h.txns.CreatePendingDeposit,
		"Deposit is being processed")
}

func (h *Handlers) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.createTransaction(w, r, domain.TypeWithdrawal, h.txns.CreatePendingWithdrawal,
		"Withdrawal is being processed")
}

func (h *Handlers) createTransaction(
	w http.ResponseWriter,
	r *http.Request,
	kind domain.TransactionType,
	create func(ctx context.Context, cmd services.CreateTransactionCommand) (*domain.Transaction, error),
	message string,
) {
	userID, err := callerID(r)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	var req rest.TransactionRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		rest.WriteError(w, application.NewInvalidInputError("amount must be a decimal number", err), h.logger)
		return
	}

	txn, err := create(r.Context(), services.CreateTransactionCommand{
		UserID:         userID,
		Amount:         amount,
		Currency:       req.Currency,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	h.logger.Info("transaction accepted",
		"transaction_id", txn.ID,
		"type", kind,
		"user_id", userID,
	)

	resp := rest.ToTransactionResponse(txn)
	resp.Message = message
	rest.RespondJSON(w, http.StatusAccepted, resp)
}

func (h *Handlers) GetDeposit(w http.ResponseWriter, r *http.Request) {
	h.getTransaction(w, r, domain.TypeDeposit)
}

func (h *Handlers) GetWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.getTransaction(w, r, domain.TypeWithdrawal)
}

func (h *Handlers) getTransaction(w http.ResponseWriter, r *http.Request, kind domain.TransactionType) {
	userID, err := callerID(r)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	transactionID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		rest.WriteError(w, application.NewInvalidInputError("invalid transaction id", err), h.logger)
		return
	}

	txn, err := h.queries.GetTransaction(r.Context(), userID, transactionID)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	// A withdrawal fetched through /deposits (or vice versa) does not exist
	// as far as that resource is concerned.
	if txn.Type != kind {
		rest.WriteError(w, application.NewNotFoundError("transaction"), h.logger)
		return
	}

	rest.RespondJSON(w, http.StatusOK, rest.ToTransactionResponse(txn))
}

func (h *Handlers) ListDeposits(w http.ResponseWriter, r *http.Request) {
	h.listTransactions(w, r, domain.TypeDeposit)
}

func (h *Handlers) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	h.listTransactions(w, r, domain.TypeWithdrawal)
}

func (h *Handlers) listTransactions(w http.ResponseWriter, r *http.Request, kind domain.TransactionType) {
	userID, err := callerID(r)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	limit, offset := pagination(r)
	typeFilter := string(kind)
	txns, err := h.queries.ListTransactions(r.Context(), services.ListTransactionsQuery{
		UserID: userID,
		Type:   &typeFilter,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.RespondJSON(w, http.StatusOK, rest.ToTransactionResponses(txns))
}
