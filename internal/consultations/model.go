package consultations

import (
	"strings"
	"time"

	"github.com/opdstack/clinic-platform/internal/attachments"
	"github.com/opdstack/clinic-platform/internal/patients"
)

// Status is the consultation lifecycle state. The only transition is
// pending to completed; there is no way back.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Field groups written atomically as a unit. Concurrent writes to
// disjoint groups never conflict; same-group writes are last-writer-wins.
const (
	GroupVitals    = "vitals"
	GroupNotes     = "notes"
	GroupBilling   = "billing"
	GroupLogistics = "logistics"
)

// Vitals are the intake measurements taken at the front desk.
type Vitals struct {
	BloodPressure string `json:"blood_pressure,omitempty"`
	Pulse         string `json:"pulse,omitempty"`
	Weight        string `json:"weight,omitempty"`
	Glucose       string `json:"glucose,omitempty"`
}

// NotesBundle is the clinician's clinical record for one encounter.
type NotesBundle struct {
	ChiefComplaint        string `json:"chief_complaint,omitempty"`
	History               string `json:"history,omitempty"`
	Examination           string `json:"examination,omitempty"`
	ProvisionalDiagnosis  string `json:"provisional_diagnosis,omitempty"`
	PriorInvestigations   string `json:"prior_investigations,omitempty"`
	AdvisedInvestigations string `json:"advised_investigations,omitempty"`
	Medications           string `json:"medications,omitempty"`
	Advice                string `json:"advice,omitempty"`
	FollowUpDate          string `json:"follow_up_date,omitempty"` // YYYY-MM-DD, optional
}

// LineItem is one itemized charge owned by a single consultation.
type LineItem struct {
	Description string `json:"description"`
	Amount      int64  `json:"amount"`
}

// Consultation is one clinical encounter, the unit of mutation in the
// system. Patient identity fields are denormalized at creation so history
// joins work even when the patient row was stored under a different key.
type Consultation struct {
	ID string `json:"id"`

	PatientKey   string `json:"patient_key"`
	DisplayID    string `json:"display_id"`
	PatientName  string `json:"patient_name"`
	Age          int    `json:"age,omitempty"`
	Sex          string `json:"sex,omitempty"`
	Phone        string `json:"phone"`
	NationalID   string `json:"national_id,omitempty"`
	PatientEmail string `json:"patient_email,omitempty"`

	ClinicianID   string `json:"clinician_id"`
	ClinicianName string `json:"clinician_name,omitempty"`
	CreatedBy     string `json:"created_by,omitempty"`

	Status Status       `json:"status"`
	Vitals Vitals       `json:"vitals"`
	Notes  *NotesBundle `json:"notes,omitempty"`

	MeetingLink       string     `json:"meeting_link,omitempty"`
	BaseAmount        int64      `json:"base_amount"`
	LineItems         []LineItem `json:"line_items"`
	PharmacyAmount    int64      `json:"pharmacy_amount"`
	DiagnosticsAmount int64      `json:"diagnostics_amount"`

	Attachments []attachments.Attachment `json:"attachments"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// PatientRef builds the resolution ref for this consultation's patient.
func (c *Consultation) PatientRef() patients.Ref {
	return patients.Ref{
		DisplayID:  c.DisplayID,
		Name:       c.PatientName,
		Phone:      c.Phone,
		NationalID: c.NationalID,
	}
}

// GrandTotal recomputes the consultation total from its inputs. It is
// never cached; reporting always goes through this.
func (c *Consultation) GrandTotal() int64 {
	var total int64
	for _, item := range c.LineItems {
		total += item.Amount
	}
	return total + c.PharmacyAmount + c.DiagnosticsAmount
}

// CreateInput is the front-desk registration form: patient identity,
// intake vitals, clinician assignment and the pre-read report files.
type CreateInput struct {
	Patient     patients.RegisterInput `json:"patient"`
	ClinicianID string                 `json:"clinician_id"`
	MeetingLink string                 `json:"meeting_link"`
	Vitals      Vitals                 `json:"vitals"`
	BaseAmount  int64                  `json:"base_amount,omitempty"`
	Files       []attachments.File     `json:"-"`
}

// Validate checks the fields required before a consultation can exist.
func (in *CreateInput) Validate() error {
	if strings.TrimSpace(in.ClinicianID) == "" {
		return ErrClinicianRequired
	}
	if strings.TrimSpace(in.MeetingLink) == "" {
		return ErrMeetingLinkRequired
	}
	return in.Patient.Validate()
}

// CreateResult is returned from a successful registration. Failed is the
// named subset of report files that did not attach; the consultation is
// still created.
type CreateResult struct {
	PatientDisplayID string                  `json:"patient_display_id"`
	ConsultationID   string                  `json:"consultation_id"`
	Attached         int                     `json:"attached"`
	Failed           []attachments.FileError `json:"failed_uploads,omitempty"`
}

// Filter selects consultations for listing and rollups. Zero values match
// everything; From/To are inclusive.
type Filter struct {
	ClinicianID string
	Status      Status
	From        *time.Time
	To          *time.Time
}

// Matches reports whether the consultation passes the filter.
func (f Filter) Matches(c *Consultation) bool {
	if f.ClinicianID != "" && c.ClinicianID != f.ClinicianID {
		return false
	}
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.From != nil && c.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && c.CreatedAt.After(*f.To) {
		return false
	}
	return true
}
