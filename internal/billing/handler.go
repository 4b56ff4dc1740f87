package billing

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/opdstack/clinic-platform/internal/consultations"
	"github.com/opdstack/clinic-platform/pkg/logging"
)

// Handler handles HTTP requests for billing rollups
type Handler struct {
	aggregator *Aggregator
	logger     *logging.Logger
}

// NewHandler creates a new billing handler
func NewHandler(aggregator *Aggregator, logger *logging.Logger) *Handler {
	return &Handler{aggregator: aggregator, logger: logger}
}

// Rollup handles GET /billing/rollup. Either window=today|7d|30d or an
// explicit from/to date pair selects the range; clinician_id and status
// narrow it.
func (h *Handler) Rollup(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := Query{
		Window:      query.Get("window"),
		From:        query.Get("from"),
		To:          query.Get("to"),
		ClinicianID: query.Get("clinician_id"),
		Status:      consultations.Status(query.Get("status")),
	}
	if q.Window == "" && q.From == "" && q.To == "" {
		q.Window = WindowToday
	}

	result, err := h.aggregator.Rollup(r.Context(), q)
	if err != nil {
		if errors.Is(err, ErrBadWindow) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to compute rollup", "error", err)
		http.Error(w, "failed to compute rollup", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
