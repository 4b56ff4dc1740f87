package consultations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/opdstack/clinic-platform/internal/attachments"
	"github.com/opdstack/clinic-platform/internal/events"
	"github.com/opdstack/clinic-platform/internal/observability/metrics"
	"github.com/opdstack/clinic-platform/internal/patients"
	"github.com/opdstack/clinic-platform/internal/session"
	"github.com/opdstack/clinic-platform/pkg/logging"
)

var consultationTracer = otel.Tracer("clinic.internal.consultations")

// InviteSender delivers the meeting invitation for a new consultation.
// Delivery is best effort; a send failure never fails the registration.
type InviteSender interface {
	SendInvite(ctx context.Context, c *Consultation) error
}

// Service owns the consultation lifecycle: registration, draft saves,
// finalization, billing and logistics updates, and patient history.
type Service struct {
	repo     Repository
	registry *patients.Registry
	pipeline *attachments.Pipeline
	bus      events.Publisher
	invites  InviteSender
	metrics  *metrics.CoreMetrics
	logger   *logging.Logger

	baseFee      int64
	draftOnFinal bool
}

// ServiceConfig carries the service dependencies. Repo, Registry and
// Pipeline are required; the rest may be nil or zero.
type ServiceConfig struct {
	Repo     Repository
	Registry *patients.Registry
	Pipeline *attachments.Pipeline
	Bus      events.Publisher
	Invites  InviteSender
	Metrics  *metrics.CoreMetrics
	Logger   *logging.Logger

	// BaseConsultationFee seeds the "Consultation Fee" line item on every
	// new consultation.
	BaseConsultationFee int64

	// AllowDraftAfterFinalize permits clinical-notes writes on completed
	// consultations. Off by default: the record freezes at finalization.
	AllowDraftAfterFinalize bool
}

func NewService(cfg ServiceConfig) *Service {
	if cfg.Repo == nil {
		panic("consultations: Repo is required")
	}
	if cfg.Registry == nil {
		panic("consultations: Registry is required")
	}
	if cfg.Pipeline == nil {
		panic("consultations: Pipeline is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Service{
		repo:         cfg.Repo,
		registry:     cfg.Registry,
		pipeline:     cfg.Pipeline,
		bus:          cfg.Bus,
		invites:      cfg.Invites,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		baseFee:      cfg.BaseConsultationFee,
		draftOnFinal: cfg.AllowDraftAfterFinalize,
	}
}

// Create registers a consultation end to end: resolve the patient, upload
// the report files, persist the pending consultation with its seeded base
// fee, announce it, and queue the meeting invite. Upload failures are
// reported per file and never abort the registration.
func (s *Service) Create(ctx context.Context, sess session.Session, in CreateInput) (*CreateResult, error) {
	ctx, span := consultationTracer.Start(ctx, "consultations.create")
	defer span.End()

	if err := in.Validate(); err != nil {
		s.metrics.ObserveRegistration("rejected")
		return nil, err
	}

	patient, created, err := s.registry.ResolveOrCreate(ctx, sess, in.Patient)
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveRegistration("error")
		return nil, err
	}

	batch := s.pipeline.UploadBatch(ctx, in.Files, nil)

	baseAmount := in.BaseAmount
	if baseAmount <= 0 {
		baseAmount = s.baseFee
	}

	now := time.Now().UTC()
	c := &Consultation{
		ID:           uuid.NewString(),
		PatientKey:   patient.Key,
		DisplayID:    patient.DisplayID,
		PatientName:  patient.Name,
		Age:          patient.Age,
		Sex:          patient.Sex,
		Phone:        patient.Phone,
		NationalID:   patient.NationalID,
		PatientEmail: patient.Email,
		ClinicianID:  in.ClinicianID,
		CreatedBy:    sess.ActorID,
		Status:       StatusPending,
		Vitals:       in.Vitals,
		MeetingLink:  in.MeetingLink,
		BaseAmount:   baseAmount,
		LineItems:    []LineItem{{Description: "Consultation Fee", Amount: baseAmount}},
		Attachments:  batch.Succeeded,
		CreatedAt:    now,
	}
	if err := s.repo.Insert(ctx, c); err != nil {
		span.RecordError(err)
		s.metrics.ObserveRegistration("error")
		return nil, err
	}

	s.metrics.ObserveRegistration(outcomeFor(created))
	s.publish(ctx, sess, events.OpCreated, c.ID, "")
	s.sendInvite(ctx, c)

	s.logger.Info("consultation created",
		"consultation_id", c.ID,
		"display_id", c.DisplayID,
		"clinician_id", c.ClinicianID,
		"attached", len(batch.Succeeded),
		"failed_uploads", len(batch.Failed),
	)

	return &CreateResult{
		PatientDisplayID: patient.DisplayID,
		ConsultationID:   c.ID,
		Attached:         len(batch.Succeeded),
		Failed:           batch.Failed,
	}, nil
}

// Get returns one consultation by id.
func (s *Service) Get(ctx context.Context, id string) (*Consultation, error) {
	return s.repo.Get(ctx, id)
}

// List returns consultations matching the filter, newest first.
func (s *Service) List(ctx context.Context, filter Filter) ([]*Consultation, error) {
	return s.repo.List(ctx, filter)
}

// SaveDraft stores the in-progress notes bundle without changing the
// lifecycle state. Completed consultations reject drafts unless the
// service was configured to allow them.
func (s *Service) SaveDraft(ctx context.Context, sess session.Session, id string, notes NotesBundle) error {
	ctx, span := consultationTracer.Start(ctx, "consultations.save_draft")
	defer span.End()

	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.Status == StatusCompleted && !s.draftOnFinal {
		return ErrCompleted
	}
	if err := s.repo.UpdateNotes(ctx, id, notes, c.Status, c.CompletedAt); err != nil {
		span.RecordError(err)
		s.metrics.ObserveWrite(GroupNotes, "error")
		return err
	}
	s.metrics.ObserveWrite(GroupNotes, "ok")
	s.publish(ctx, sess, events.OpUpdated, id, GroupNotes)
	return nil
}

// Finalize moves a pending consultation to completed, storing the final
// notes and stamping the completion time exactly once. Re-finalizing a
// completed consultation is a no-op when the notes match what is stored;
// diverging notes are rejected, since the record froze at the first call.
func (s *Service) Finalize(ctx context.Context, sess session.Session, id string, notes NotesBundle) (*Consultation, error) {
	ctx, span := consultationTracer.Start(ctx, "consultations.finalize")
	defer span.End()

	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status == StatusCompleted {
		if c.Notes != nil && *c.Notes == notes {
			return c, nil
		}
		return nil, ErrCompleted
	}

	now := time.Now().UTC()
	if err := s.repo.UpdateNotes(ctx, id, notes, StatusCompleted, &now); err != nil {
		span.RecordError(err)
		s.metrics.ObserveWrite(GroupNotes, "error")
		return nil, err
	}
	s.metrics.ObserveWrite(GroupNotes, "ok")
	s.publish(ctx, sess, events.OpUpdated, id, GroupNotes)
	s.logger.Info("consultation finalized", "consultation_id", id, "clinician_id", c.ClinicianID)

	n := notes
	c.Notes = &n
	c.Status = StatusCompleted
	c.CompletedAt = &now
	return c, nil
}

// UpdateBilling replaces the itemized charges and the pharmacy and
// diagnostics amounts, and returns the recomputed grand total. Billing is
// writable in any lifecycle state.
func (s *Service) UpdateBilling(ctx context.Context, sess session.Session, id string, items []LineItem, pharmacy, diagnostics int64) (int64, error) {
	ctx, span := consultationTracer.Start(ctx, "consultations.update_billing")
	defer span.End()

	if err := s.repo.UpdateBilling(ctx, id, items, pharmacy, diagnostics); err != nil {
		span.RecordError(err)
		s.metrics.ObserveWrite(GroupBilling, "error")
		return 0, err
	}
	s.metrics.ObserveWrite(GroupBilling, "ok")
	s.publish(ctx, sess, events.OpUpdated, id, GroupBilling)

	total := pharmacy + diagnostics
	for _, item := range items {
		total += item.Amount
	}
	return total, nil
}

// UpdateVitals replaces the intake measurements.
func (s *Service) UpdateVitals(ctx context.Context, sess session.Session, id string, vitals Vitals) error {
	if err := s.repo.UpdateVitals(ctx, id, vitals); err != nil {
		s.metrics.ObserveWrite(GroupVitals, "error")
		return err
	}
	s.metrics.ObserveWrite(GroupVitals, "ok")
	s.publish(ctx, sess, events.OpUpdated, id, GroupVitals)
	return nil
}

// UpdateLogistics replaces the meeting link and the base amount.
func (s *Service) UpdateLogistics(ctx context.Context, sess session.Session, id string, meetingLink string, baseAmount int64) error {
	if err := s.repo.UpdateLogistics(ctx, id, meetingLink, baseAmount); err != nil {
		s.metrics.ObserveWrite(GroupLogistics, "error")
		return err
	}
	s.metrics.ObserveWrite(GroupLogistics, "ok")
	s.publish(ctx, sess, events.OpUpdated, id, GroupLogistics)
	return nil
}

// History lists the patient's other consultations, newest first. The
// match runs on the resolution ref, not the storage key, so visits
// registered without a national id still surface.
func (s *Service) History(ctx context.Context, ref patients.Ref, excludeID string) ([]*Consultation, error) {
	ctx, span := consultationTracer.Start(ctx, "consultations.history")
	defer span.End()

	rows, err := s.repo.ListByPatientRef(ctx, ref, excludeID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("consultations: load history: %w", err)
	}
	return rows, nil
}

func (s *Service) publish(ctx context.Context, sess session.Session, op events.Op, recordID, fieldGroup string) {
	if s.bus == nil {
		return
	}
	err := s.bus.Publish(ctx, events.Stamp(events.ChangeEventV1{
		Collection: events.CollectionConsultations,
		Op:         op,
		RecordID:   recordID,
		FieldGroup: fieldGroup,
		ActorRole:  string(sess.Role),
		ActorID:    sess.ActorID,
	}))
	if err != nil {
		s.logger.Warn("consultation event publish failed", "record_id", recordID, "error", err)
	}
}

func (s *Service) sendInvite(ctx context.Context, c *Consultation) {
	if s.invites == nil {
		return
	}
	if err := s.invites.SendInvite(ctx, c); err != nil {
		s.logger.Warn("meeting invite send failed", "consultation_id", c.ID, "error", err)
	}
}

func outcomeFor(created bool) string {
	if created {
		return "created"
	}
	return "merged"
}
