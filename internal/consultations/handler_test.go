package consultations

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opdstack/clinic-platform/internal/session"
	"github.com/opdstack/clinic-platform/pkg/logging"
)

func newTestRouter(t *testing.T) (*chi.Mux, *serviceFixture) {
	t.Helper()
	fx := newServiceFixture(t)
	h := NewHandler(fx.service, logging.New("error"))

	r := chi.NewRouter()
	r.Post("/consultations", h.Create)
	r.Get("/consultations", h.List)
	r.Get("/consultations/{id}", h.Get)
	r.Get("/consultations/{id}/history", h.History)
	r.Put("/consultations/{id}/draft", h.SaveDraft)
	r.Put("/consultations/{id}/finalize", h.Finalize)
	r.Put("/consultations/{id}/billing", h.UpdateBilling)
	r.Put("/consultations/{id}/vitals", h.UpdateVitals)
	r.Put("/consultations/{id}/logistics", h.UpdateLogistics)
	return r, fx
}

func withSession(req *http.Request, sess session.Session) *http.Request {
	return req.WithContext(session.WithSession(req.Context(), sess))
}

func createConsultation(t *testing.T, r *chi.Mux) CreateResult {
	t.Helper()
	body, err := json.Marshal(registrationInput())
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/consultations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, withSession(req, session.FrontDesk("fd-1", "Desk")))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var result CreateResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	return result
}

func TestHandlerCreateJSON(t *testing.T) {
	r, _ := newTestRouter(t)
	result := createConsultation(t, r)
	assert.NotEmpty(t, result.ConsultationID)
	assert.NotEmpty(t, result.PatientDisplayID)
	assert.Empty(t, result.Failed)
}

func TestHandlerCreateMultipart(t *testing.T) {
	r, _ := newTestRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	payload, err := json.Marshal(registrationInput())
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("payload", string(payload)))
	part, err := mw.CreateFormFile("files", "report.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 fake"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/consultations", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, withSession(req, session.FrontDesk("fd-1", "Desk")))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var result CreateResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Equal(t, 1, result.Attached)
}

func TestHandlerCreateRequiresSession(t *testing.T) {
	r, _ := newTestRouter(t)
	body, _ := json.Marshal(registrationInput())
	req := httptest.NewRequest(http.MethodPost, "/consultations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlerCreateValidation(t *testing.T) {
	r, _ := newTestRouter(t)
	in := registrationInput()
	in.ClinicianID = ""
	body, _ := json.Marshal(in)
	req := httptest.NewRequest(http.MethodPost, "/consultations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, withSession(req, session.FrontDesk("fd-1", "Desk")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "clinician")
}

func TestHandlerFinalizeFlow(t *testing.T) {
	r, _ := newTestRouter(t)
	created := createConsultation(t, r)
	clinician := session.Clinician("dr-iyer", "Dr. Iyer")

	notes, _ := json.Marshal(NotesBundle{ChiefComplaint: "headache"})
	req := httptest.NewRequest(http.MethodPut, "/consultations/"+created.ConsultationID+"/finalize", bytes.NewReader(notes))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, withSession(req, clinician))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var c Consultation
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&c))
	assert.Equal(t, StatusCompleted, c.Status)
	assert.NotNil(t, c.CompletedAt)

	// A draft against the frozen record conflicts.
	req = httptest.NewRequest(http.MethodPut, "/consultations/"+created.ConsultationID+"/draft", bytes.NewReader(notes))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, withSession(req, clinician))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerBilling(t *testing.T) {
	r, _ := newTestRouter(t)
	created := createConsultation(t, r)

	body, _ := json.Marshal(BillingRequest{
		LineItems:      []LineItem{{Description: "Consultation Fee", Amount: 500}},
		PharmacyAmount: 150,
	})
	req := httptest.NewRequest(http.MethodPut, "/consultations/"+created.ConsultationID+"/billing", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, withSession(req, session.Admin()))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp BillingResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, int64(650), resp.GrandTotal)
}

func TestHandlerGetNotFound(t *testing.T) {
	r, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/consultations/nope", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerHistory(t *testing.T) {
	r, _ := newTestRouter(t)

	first := createConsultation(t, r)
	second := createConsultation(t, r)

	req := httptest.NewRequest(http.MethodGet, "/consultations/"+second.ConsultationID+"/history", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HistoryResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, first.ConsultationID, resp.Consultations[0].ID)
}

func TestHandlerListFilters(t *testing.T) {
	r, fx := newTestRouter(t)
	created := createConsultation(t, r)

	_, err := fx.service.Finalize(context.Background(), session.Clinician("dr-iyer", "Dr. Iyer"),
		created.ConsultationID, NotesBundle{ChiefComplaint: "headache"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/consultations?status=completed&clinician_id=dr-iyer", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Count)

	req = httptest.NewRequest(http.MethodGet, "/consultations?status=pending", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var pending ListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&pending))
	assert.Equal(t, 0, pending.Count)
}
