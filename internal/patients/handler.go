package patients

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/opdstack/clinic-platform/internal/session"
	"github.com/opdstack/clinic-platform/pkg/logging"
)

// Handler handles HTTP requests for the patient registry
type Handler struct {
	registry *Registry
	logger   *logging.Logger
}

// NewHandler creates a new patients handler
func NewHandler(registry *Registry, logger *logging.Logger) *Handler {
	return &Handler{registry: registry, logger: logger}
}

// Register handles POST /patients. Registration normally happens together
// with consultation creation; this is the stand-alone correction path.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var in RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.logger.Error("failed to decode request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sess, ok := session.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing session", http.StatusUnauthorized)
		return
	}

	p, created, err := h.registry.ResolveOrCreate(r.Context(), sess, in)
	if err != nil {
		if errors.Is(err, ErrNameRequired) || errors.Is(err, ErrPhoneRequired) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to register patient", "error", err)
		http.Error(w, "failed to register patient", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(p)
}

// SearchResponse is the response for patient search
type SearchResponse struct {
	Patients []*Patient `json:"patients"`
	Count    int        `json:"count"`
}

// Search handles GET /patients?search= requests
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("search")

	results, err := h.registry.Search(r.Context(), query)
	if err != nil {
		h.logger.Error("failed to search patients", "error", err, "query", query)
		http.Error(w, "failed to search patients", http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []*Patient{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(SearchResponse{Patients: results, Count: len(results)})
}
