package consultations

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/opdstack/clinic-platform/internal/attachments"
	"github.com/opdstack/clinic-platform/internal/patients"
	"github.com/opdstack/clinic-platform/internal/session"
	"github.com/opdstack/clinic-platform/pkg/logging"
)

// maxRegistrationBody bounds the multipart registration request. Individual
// files are still checked against the attachment limits downstream.
const maxRegistrationBody = 256 << 20

// Handler handles HTTP requests for consultations
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates a new consultations handler
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Create handles POST /consultations. The request is multipart/form-data:
// a "payload" part with the registration JSON and zero or more "files"
// parts with the report uploads. A plain JSON body works for registrations
// without files.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing session", http.StatusUnauthorized)
		return
	}

	in, err := decodeCreateInput(r)
	if err != nil {
		h.logger.Error("failed to decode registration", "error", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.Create(r.Context(), sess, *in)
	if err != nil {
		if isValidationError(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to create consultation", "error", err)
		http.Error(w, "failed to create consultation", http.StatusInternalServerError)
		return
	}

	status := http.StatusCreated
	if len(result.Failed) > 0 {
		// Registration succeeded but some reports did not attach.
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, result)
}

// Get handles GET /consultations/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err, "failed to load consultation")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// List handles GET /consultations with optional clinician_id and status
// query filters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := Filter{
		ClinicianID: r.URL.Query().Get("clinician_id"),
		Status:      Status(r.URL.Query().Get("status")),
	}
	rows, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list consultations", "error", err)
		http.Error(w, "failed to list consultations", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []*Consultation{}
	}
	writeJSON(w, http.StatusOK, ListResponse{Consultations: rows, Count: len(rows)})
}

// ListResponse is the response for consultation listing
type ListResponse struct {
	Consultations []*Consultation `json:"consultations"`
	Count         int             `json:"count"`
}

// SaveDraft handles PUT /consultations/{id}/draft
func (h *Handler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing session", http.StatusUnauthorized)
		return
	}
	var notes NotesBundle
	if err := json.NewDecoder(r.Body).Decode(&notes); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.service.SaveDraft(r.Context(), sess, chi.URLParam(r, "id"), notes); err != nil {
		h.writeServiceError(w, err, "failed to save draft")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Finalize handles PUT /consultations/{id}/finalize
func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing session", http.StatusUnauthorized)
		return
	}
	var notes NotesBundle
	if err := json.NewDecoder(r.Body).Decode(&notes); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	c, err := h.service.Finalize(r.Context(), sess, chi.URLParam(r, "id"), notes)
	if err != nil {
		h.writeServiceError(w, err, "failed to finalize consultation")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// BillingRequest is the body for PUT /consultations/{id}/billing
type BillingRequest struct {
	LineItems         []LineItem `json:"line_items"`
	PharmacyAmount    int64      `json:"pharmacy_amount"`
	DiagnosticsAmount int64      `json:"diagnostics_amount"`
}

// BillingResponse echoes the write with the recomputed total.
type BillingResponse struct {
	GrandTotal int64 `json:"grand_total"`
}

// UpdateBilling handles PUT /consultations/{id}/billing
func (h *Handler) UpdateBilling(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing session", http.StatusUnauthorized)
		return
	}
	var req BillingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	total, err := h.service.UpdateBilling(r.Context(), sess, chi.URLParam(r, "id"),
		req.LineItems, req.PharmacyAmount, req.DiagnosticsAmount)
	if err != nil {
		h.writeServiceError(w, err, "failed to update billing")
		return
	}
	writeJSON(w, http.StatusOK, BillingResponse{GrandTotal: total})
}

// VitalsRequest is the body for PUT /consultations/{id}/vitals
type VitalsRequest struct {
	Vitals Vitals `json:"vitals"`
}

// UpdateVitals handles PUT /consultations/{id}/vitals
func (h *Handler) UpdateVitals(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing session", http.StatusUnauthorized)
		return
	}
	var req VitalsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.service.UpdateVitals(r.Context(), sess, chi.URLParam(r, "id"), req.Vitals); err != nil {
		h.writeServiceError(w, err, "failed to update vitals")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LogisticsRequest is the body for PUT /consultations/{id}/logistics
type LogisticsRequest struct {
	MeetingLink string `json:"meeting_link"`
	BaseAmount  int64  `json:"base_amount"`
}

// UpdateLogistics handles PUT /consultations/{id}/logistics
func (h *Handler) UpdateLogistics(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing session", http.StatusUnauthorized)
		return
	}
	var req LogisticsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.service.UpdateLogistics(r.Context(), sess, chi.URLParam(r, "id"), req.MeetingLink, req.BaseAmount); err != nil {
		h.writeServiceError(w, err, "failed to update logistics")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HistoryResponse is the response for patient history
type HistoryResponse struct {
	Consultations []*Consultation `json:"consultations"`
	Count         int             `json:"count"`
}

// History handles GET /consultations/{id}/history: the other visits of the
// same patient, resolved by ref rather than storage key.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "failed to load consultation")
		return
	}
	rows, err := h.service.History(r.Context(), c.PatientRef(), id)
	if err != nil {
		h.logger.Error("failed to load history", "error", err, "consultation_id", id)
		http.Error(w, "failed to load history", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []*Consultation{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Consultations: rows, Count: len(rows)})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrCompleted):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error(msg, "error", err)
		http.Error(w, msg, http.StatusInternalServerError)
	}
}

func decodeCreateInput(r *http.Request) (*CreateInput, error) {
	var in CreateInput
	ct := r.Header.Get("Content-Type")
	if ct == "" || strings.HasPrefix(ct, "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			return nil, err
		}
		return &in, nil
	}

	if err := r.ParseMultipartForm(maxRegistrationBody); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(r.FormValue("payload")), &in); err != nil {
		return nil, err
	}
	for _, header := range r.MultipartForm.File["files"] {
		f, err := header.Open()
		if err != nil {
			return nil, err
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		in.Files = append(in.Files, attachments.File{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        int64(len(content)),
			Content:     content,
		})
	}
	return &in, nil
}

func isValidationError(err error) bool {
	return errors.Is(err, ErrClinicianRequired) ||
		errors.Is(err, ErrMeetingLinkRequired) ||
		errors.Is(err, patients.ErrNameRequired) ||
		errors.Is(err, patients.ErrPhoneRequired)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
