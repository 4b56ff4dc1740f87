package clinicians

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opdstack/clinic-platform/internal/events"
	"github.com/opdstack/clinic-platform/internal/session"
	"github.com/opdstack/clinic-platform/pkg/logging"
)

// Handler handles HTTP requests for the clinician directory
type Handler struct {
	directory Directory
	bus       events.Publisher
	logger    *logging.Logger
}

// NewHandler creates a new clinicians handler
func NewHandler(directory Directory, bus events.Publisher, logger *logging.Logger) *Handler {
	return &Handler{directory: directory, bus: bus, logger: logger}
}

// ListResponse is the response for the clinician directory
type ListResponse struct {
	Clinicians []Clinician `json:"clinicians"`
	Count      int         `json:"count"`
}

// List handles GET /clinicians. Inactive entries only appear with
// ?all=true; ?search= narrows by name or specialty for the picker.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") != "true"
	rows, err := h.directory.List(r.Context(), activeOnly)
	if err != nil {
		h.logger.Error("failed to list clinicians", "error", err)
		http.Error(w, "failed to list clinicians", http.StatusInternalServerError)
		return
	}

	if term := r.URL.Query().Get("search"); term != "" {
		filtered := rows[:0]
		for _, c := range rows {
			if c.Matches(term) {
				filtered = append(filtered, c)
			}
		}
		rows = filtered
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ListResponse{Clinicians: rows, Count: len(rows)})
}

// Get handles GET /clinicians/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.directory.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load clinician", "error", err)
		http.Error(w, "failed to load clinician", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(c)
}

// Upsert handles PUT /clinicians. Directory maintenance is an admin task.
func (h *Handler) Upsert(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing session", http.StatusUnauthorized)
		return
	}
	if sess.Role != session.RoleAdmin {
		http.Error(w, "admin role required", http.StatusForbidden)
		return
	}

	var c Clinician
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := c.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	created := c.ID == ""
	if created {
		c.ID = uuid.NewString()
	}

	if err := h.directory.Upsert(r.Context(), &c); err != nil {
		h.logger.Error("failed to save clinician", "error", err)
		http.Error(w, "failed to save clinician", http.StatusInternalServerError)
		return
	}

	if h.bus != nil {
		op := events.OpUpdated
		if created {
			op = events.OpCreated
		}
		err := h.bus.Publish(r.Context(), events.Stamp(events.ChangeEventV1{
			Collection: events.CollectionClinicians,
			Op:         op,
			RecordID:   c.ID,
			ActorRole:  string(sess.Role),
			ActorID:    sess.ActorID,
		}))
		if err != nil {
			h.logger.Warn("clinician event publish failed", "clinician_id", c.ID, "error", err)
		}
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(c)
}
