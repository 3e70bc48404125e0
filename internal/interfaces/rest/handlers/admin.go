package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/payflow-labs/payflow/internal/application"
	"github.com/payflow-labs/payflow/internal/interfaces/rest"
)

func (h *Handlers) ListFailedTasks(w http.ResponseWriter, r *http.Request) {
	var taskName *string
	if name := r.URL.Query().Get("task_name"); name != "" {
		taskName = &name
	}

	var replayed *bool
	if raw := r.URL.Query().Get("replayed"); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			rest.WriteError(w, application.NewInvalidInputError("replayed must be a boolean", err), h.logger)
			return
		}
		replayed = &value
	}

	limit, offset := pagination(r)
	tasks, err := h.dlq.List(r.Context(), taskName, replayed, limit, offset)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	out := make([]rest.FailedTaskResponse, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, rest.ToFailedTaskResponse(task))
	}
	rest.RespondJSON(w, http.StatusOK, out)
}

func (h *Handlers) FailedTaskStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.dlq.Stats(r.Context())
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}
	rest.RespondJSON(w, http.StatusOK, stats)
}

func (h *Handlers) ReplayFailedTask(w http.ResponseWriter, r *http.Request) {
	recordID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		rest.WriteError(w, application.NewInvalidInputError("invalid failed task id", err), h.logger)
		return
	}

	task, err := h.dlq.Replay(r.Context(), recordID)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.RespondJSON(w, http.StatusOK, rest.ToFailedTaskResponse(task))
}

func (h *Handlers) CircuitBreakerState(w http.ResponseWriter, r *http.Request) {
	rest.RespondJSON(w, http.StatusOK, h.breaker.BreakerState())
}
