package runs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/de-tools/cost-digest/pkg/adapters"
	"github.com/de-tools/cost-digest/pkg/models/domain"
	"github.com/de-tools/cost-digest/pkg/models/store"
	runstore "github.com/de-tools/cost-digest/pkg/store/sqldb/runs"
)

const maxListLimit = 500

// Trigger starts a run without waiting for it. pipeline.Pipeline satisfies it.
type Trigger interface {
	Start(ctx context.Context, trigger domain.Trigger) (*domain.ReportRun, <-chan *domain.ReportRun)
}

type Handler struct {
	history runstore.Store
	trigger Trigger
}

// NewHandler accepts a nil history when run history is disabled.
func NewHandler(history runstore.Store, trigger Trigger) *Handler {
	return &Handler{
		history: history,
		trigger: trigger,
	}
}

func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)

	if h.history == nil {
		http.Error(w, "run history is disabled", http.StatusServiceUnavailable)
		return
	}

	opts := store.ListOptions{Status: r.URL.Query().Get("status")}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 || n > maxListLimit {
			http.Error(w, "invalid 'limit'. Expected an integer between 1 and 500", http.StatusBadRequest)
			return
		}
		opts.Limit = n
	}

	runs, err := h.history.List(ctx, opts)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list runs")
		http.Error(w, "failed to list runs", http.StatusInternalServerError)
		return
	}

	writeJSON(ctx, w, http.StatusOK, adapters.MapStoreRunsToAPI(runs))
}

func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)
	id := chi.URLParam(r, "id")

	if h.history == nil {
		http.Error(w, "run history is disabled", http.StatusServiceUnavailable)
		return
	}

	run, err := h.history.Get(ctx, id)
	if errors.Is(err, runstore.ErrNotFound) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Error().Err(err).Str("run_id", id).Msg("failed to get run")
		http.Error(w, "failed to get run", http.StatusInternalServerError)
		return
	}

	writeJSON(ctx, w, http.StatusOK, adapters.MapStoreRunToAPI(run))
}

// TriggerRun answers as soon as admission is decided: 202 with the running
// run, 409 when another run is in flight.
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	run, _ := h.trigger.Start(ctx, domain.TriggerManual)

	status := http.StatusAccepted
	switch run.Status {
	case domain.RunStatusSkippedConcurrent:
		status = http.StatusConflict
	case domain.RunStatusFailed:
		status = http.StatusServiceUnavailable
	}

	writeJSON(ctx, w, status, adapters.MapDomainRunToAPI(run))
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zerolog.Ctx(ctx).Error().
			Err(err).
			Msg("failed to encode response")
	}
}
