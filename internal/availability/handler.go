package availability

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/opdstack/clinic-platform/internal/events"
	"github.com/opdstack/clinic-platform/internal/session"
	"github.com/opdstack/clinic-platform/pkg/logging"
)

// Handler handles HTTP requests for clinician availability
type Handler struct {
	store  Store
	bus    events.Publisher
	logger *logging.Logger
}

// NewHandler creates a new availability handler
func NewHandler(store Store, bus events.Publisher, logger *logging.Logger) *Handler {
	return &Handler{store: store, bus: bus, logger: logger}
}

// Get handles GET /availability/{clinicianID}. 404 means the clinician
// never published a schedule; an all-closed week comes back 200.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	schedule, err := h.store.Get(r.Context(), chi.URLParam(r, "clinicianID"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load schedule", "error", err)
		http.Error(w, "failed to load schedule", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(schedule)
}

// DayResponse is the per-weekday lookup result. Available false is an
// explicit "none" signal, never an empty list left to interpretation.
type DayResponse struct {
	ClinicianID string     `json:"clinician_id"`
	Weekday     string     `json:"weekday"`
	Available   bool       `json:"available"`
	Intervals   []Interval `json:"intervals,omitempty"`
	Note        string     `json:"note,omitempty"`
}

// GetDay handles GET /availability/{clinicianID}/{weekday}. A clinician
// with no published schedule, an away flag, or no windows that day all
// come back available=false.
func (h *Handler) GetDay(w http.ResponseWriter, r *http.Request) {
	clinicianID := chi.URLParam(r, "clinicianID")
	weekday := chi.URLParam(r, "weekday")

	if _, ok := (&Schedule{}).Day(weekday); !ok {
		http.Error(w, "unknown weekday", http.StatusBadRequest)
		return
	}

	resp := DayResponse{ClinicianID: clinicianID, Weekday: strings.ToLower(weekday)}

	schedule, err := h.store.Get(r.Context(), clinicianID)
	switch {
	case errors.Is(err, ErrNotFound):
		// never published, available=false
	case err != nil:
		h.logger.Error("failed to load schedule", "error", err)
		http.Error(w, "failed to load schedule", http.StatusInternalServerError)
		return
	default:
		intervals, _ := schedule.Day(weekday)
		if !schedule.Away && len(intervals) > 0 {
			resp.Available = true
			resp.Intervals = intervals
		}
		resp.Note = schedule.Note
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Put handles PUT /availability/{clinicianID}, replacing the whole week.
// Schedules belong to the clinician; admins may edit on their behalf.
func (h *Handler) Put(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing session", http.StatusUnauthorized)
		return
	}
	if sess.Role != session.RoleClinician && sess.Role != session.RoleAdmin {
		http.Error(w, "clinician or admin role required", http.StatusForbidden)
		return
	}

	var schedule Schedule
	if err := json.NewDecoder(r.Body).Decode(&schedule); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	schedule.ClinicianID = chi.URLParam(r, "clinicianID")

	if err := h.store.Put(r.Context(), &schedule); err != nil {
		h.logger.Error("failed to save schedule", "error", err)
		http.Error(w, "failed to save schedule", http.StatusInternalServerError)
		return
	}

	if h.bus != nil {
		err := h.bus.Publish(r.Context(), events.Stamp(events.ChangeEventV1{
			Collection: events.CollectionAvailability,
			Op:         events.OpUpdated,
			RecordID:   schedule.ClinicianID,
			ActorRole:  string(sess.Role),
			ActorID:    sess.ActorID,
		}))
		if err != nil {
			h.logger.Warn("availability event publish failed", "clinician_id", schedule.ClinicianID, "error", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(schedule)
}
