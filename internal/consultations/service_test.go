package consultations

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opdstack/clinic-platform/internal/attachments"
	"github.com/opdstack/clinic-platform/internal/events"
	"github.com/opdstack/clinic-platform/internal/patients"
	"github.com/opdstack/clinic-platform/internal/session"
	"github.com/opdstack/clinic-platform/pkg/logging"
)

type captureInvites struct {
	sent []*Consultation
}

func (c *captureInvites) SendInvite(ctx context.Context, consultation *Consultation) error {
	c.sent = append(c.sent, consultation)
	return nil
}

type serviceFixture struct {
	service *Service
	repo    *InMemoryRepository
	broker  *events.MemoryBroker
	invites *captureInvites
}

func newServiceFixture(t *testing.T, opts ...func(*ServiceConfig)) *serviceFixture {
	t.Helper()
	logger := logging.New("error")
	repo := NewInMemoryRepository()
	broker := events.NewMemoryBroker()
	invites := &captureInvites{}
	cfg := ServiceConfig{
		Repo:                repo,
		Registry:            patients.NewRegistry(patients.NewInMemoryRepository(), broker, logger),
		Pipeline:            attachments.NewPipeline(attachments.PipelineConfig{ClinicID: "clinic-1", Logger: logger}),
		Bus:                 broker,
		Invites:             invites,
		Logger:              logger,
		BaseConsultationFee: 500,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &serviceFixture{
		service: NewService(cfg),
		repo:    repo,
		broker:  broker,
		invites: invites,
	}
}

func registrationInput() CreateInput {
	return CreateInput{
		Patient: patients.RegisterInput{
			Name:       "A. Rao",
			Age:        54,
			Sex:        "F",
			Phone:      "8765",
			NationalID: "4321",
		},
		ClinicianID: "dr-iyer",
		MeetingLink: "https://meet.example.com/abc",
		Vitals:      Vitals{BloodPressure: "130/85", Pulse: "78"},
	}
}

func waitForEvent(t *testing.T, ch <-chan events.ChangeEventV1) events.ChangeEventV1 {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change event")
		return events.ChangeEventV1{}
	}
}

func TestCreateSeedsBaseFeeAndAnnounces(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()
	ch, cancel, err := fx.broker.Subscribe(ctx, events.CollectionConsultations)
	require.NoError(t, err)
	defer cancel()

	result, err := fx.service.Create(ctx, session.FrontDesk("fd-1", "Desk"), registrationInput())
	require.NoError(t, err)
	require.NotEmpty(t, result.ConsultationID)
	assert.NotEmpty(t, result.PatientDisplayID)

	c, err := fx.service.Get(ctx, result.ConsultationID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, c.Status)
	assert.Nil(t, c.CompletedAt)
	require.Len(t, c.LineItems, 1)
	assert.Equal(t, "Consultation Fee", c.LineItems[0].Description)
	assert.Equal(t, int64(500), c.LineItems[0].Amount)
	assert.Equal(t, int64(500), c.GrandTotal())
	assert.Equal(t, "dr-iyer", c.ClinicianID)
	assert.Equal(t, "fd-1", c.CreatedBy)

	ev := waitForEvent(t, ch)
	assert.Equal(t, events.OpCreated, ev.Op)
	assert.Equal(t, result.ConsultationID, ev.RecordID)
	assert.Equal(t, "frontdesk", ev.ActorRole)

	require.Len(t, fx.invites.sent, 1)
	assert.Equal(t, result.ConsultationID, fx.invites.sent[0].ID)
}

func TestCreateValidation(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()
	sess := session.FrontDesk("fd-1", "Desk")

	in := registrationInput()
	in.ClinicianID = ""
	_, err := fx.service.Create(ctx, sess, in)
	assert.ErrorIs(t, err, ErrClinicianRequired)

	in = registrationInput()
	in.MeetingLink = "  "
	_, err = fx.service.Create(ctx, sess, in)
	assert.ErrorIs(t, err, ErrMeetingLinkRequired)

	in = registrationInput()
	in.Patient.Name = ""
	_, err = fx.service.Create(ctx, sess, in)
	assert.ErrorIs(t, err, patients.ErrNameRequired)
}

func TestCreateSettlesFailedUploads(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	in := registrationInput()
	in.Files = []attachments.File{
		{Name: "small.pdf", ContentType: "application/pdf", Size: 1024, Content: bytes.Repeat([]byte("x"), 1024)},
		{Name: "huge.bin", ContentType: "application/octet-stream", Size: attachments.AbsoluteMax + 1},
	}

	result, err := fx.service.Create(ctx, session.FrontDesk("fd-1", "Desk"), in)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Attached)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "huge.bin", result.Failed[0].FileName)

	c, err := fx.service.Get(ctx, result.ConsultationID)
	require.NoError(t, err)
	require.Len(t, c.Attachments, 1)
	assert.Equal(t, attachments.TierInline, c.Attachments[0].Tier)
}

func TestFinalizeIsMonotonicAndIdempotent(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()
	frontDesk := session.FrontDesk("fd-1", "Desk")
	clinician := session.Clinician("dr-iyer", "Dr. Iyer")

	result, err := fx.service.Create(ctx, frontDesk, registrationInput())
	require.NoError(t, err)

	notes := NotesBundle{
		ChiefComplaint: "headache",
		Medications:    "paracetamol 500mg",
	}
	c, err := fx.service.Finalize(ctx, clinician, result.ConsultationID, notes)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, c.Status)
	require.NotNil(t, c.CompletedAt)
	first := *c.CompletedAt

	again, err := fx.service.Finalize(ctx, clinician, result.ConsultationID, notes)
	require.NoError(t, err)
	require.NotNil(t, again.CompletedAt)
	assert.True(t, again.CompletedAt.Equal(first), "completion stamp must not move")

	_, err = fx.service.Finalize(ctx, clinician, result.ConsultationID, NotesBundle{ChiefComplaint: "revised"})
	assert.ErrorIs(t, err, ErrCompleted)
}

func TestSaveDraftRespectsCompletion(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()
	clinician := session.Clinician("dr-iyer", "Dr. Iyer")

	result, err := fx.service.Create(ctx, session.FrontDesk("fd-1", "Desk"), registrationInput())
	require.NoError(t, err)

	draft := NotesBundle{ChiefComplaint: "headache", History: "two days"}
	require.NoError(t, fx.service.SaveDraft(ctx, clinician, result.ConsultationID, draft))

	c, err := fx.service.Get(ctx, result.ConsultationID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, c.Status, "draft saves never change lifecycle state")
	require.NotNil(t, c.Notes)
	assert.Equal(t, "two days", c.Notes.History)

	_, err = fx.service.Finalize(ctx, clinician, result.ConsultationID, draft)
	require.NoError(t, err)

	err = fx.service.SaveDraft(ctx, clinician, result.ConsultationID, NotesBundle{ChiefComplaint: "late edit"})
	assert.ErrorIs(t, err, ErrCompleted)
}

func TestSaveDraftAfterFinalizeWhenAllowed(t *testing.T) {
	fx := newServiceFixture(t, func(cfg *ServiceConfig) {
		cfg.AllowDraftAfterFinalize = true
	})
	ctx := context.Background()
	clinician := session.Clinician("dr-iyer", "Dr. Iyer")

	result, err := fx.service.Create(ctx, session.FrontDesk("fd-1", "Desk"), registrationInput())
	require.NoError(t, err)
	finalized, err := fx.service.Finalize(ctx, clinician, result.ConsultationID, NotesBundle{ChiefComplaint: "headache"})
	require.NoError(t, err)

	require.NoError(t, fx.service.SaveDraft(ctx, clinician, result.ConsultationID, NotesBundle{ChiefComplaint: "amended"}))

	c, err := fx.service.Get(ctx, result.ConsultationID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, c.Status)
	require.NotNil(t, c.CompletedAt)
	assert.True(t, c.CompletedAt.Equal(*finalized.CompletedAt))
	assert.Equal(t, "amended", c.Notes.ChiefComplaint)
}

func TestUpdateBillingGrandTotal(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()
	admin := session.Admin()

	result, err := fx.service.Create(ctx, session.FrontDesk("fd-1", "Desk"), registrationInput())
	require.NoError(t, err)
	_, err = fx.service.Finalize(ctx, session.Clinician("dr-iyer", "Dr. Iyer"), result.ConsultationID,
		NotesBundle{Medications: "paracetamol 500mg"})
	require.NoError(t, err)

	total, err := fx.service.UpdateBilling(ctx, admin, result.ConsultationID,
		[]LineItem{{Description: "Consultation Fee", Amount: 500}}, 150, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(650), total)

	c, err := fx.service.Get(ctx, result.ConsultationID)
	require.NoError(t, err)
	assert.Equal(t, int64(650), c.GrandTotal())

	// Billing stays writable after completion.
	total, err = fx.service.UpdateBilling(ctx, admin, result.ConsultationID,
		[]LineItem{{Description: "Consultation Fee", Amount: 500}, {Description: "Dressing", Amount: 200}}, 150, 300)
	require.NoError(t, err)
	assert.Equal(t, int64(1150), total)
}

func TestUpdateLogisticsAndVitals(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()
	admin := session.Admin()

	result, err := fx.service.Create(ctx, session.FrontDesk("fd-1", "Desk"), registrationInput())
	require.NoError(t, err)

	require.NoError(t, fx.service.UpdateLogistics(ctx, admin, result.ConsultationID, "https://meet.example.com/new", 700))
	require.NoError(t, fx.service.UpdateVitals(ctx, admin, result.ConsultationID, Vitals{BloodPressure: "140/90"}))

	c, err := fx.service.Get(ctx, result.ConsultationID)
	require.NoError(t, err)
	assert.Equal(t, "https://meet.example.com/new", c.MeetingLink)
	assert.Equal(t, int64(700), c.BaseAmount)
	assert.Equal(t, "140/90", c.Vitals.BloodPressure)
	assert.Empty(t, c.Vitals.Pulse, "vitals writes replace the whole group")
}

func TestHistoryJoinsAcrossStorageKeys(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()
	frontDesk := session.FrontDesk("fd-1", "Desk")

	// No national id: each registration lands under a fresh storage key.
	in := registrationInput()
	in.Patient.NationalID = ""
	first, err := fx.service.Create(ctx, frontDesk, in)
	require.NoError(t, err)
	second, err := fx.service.Create(ctx, frontDesk, in)
	require.NoError(t, err)

	current, err := fx.service.Get(ctx, second.ConsultationID)
	require.NoError(t, err)

	history, err := fx.service.History(ctx, current.PatientRef(), second.ConsultationID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, first.ConsultationID, history[0].ID)

	// An unrelated patient never shows up.
	other := registrationInput()
	other.Patient.Name = "B. Sen"
	other.Patient.Phone = "9999"
	other.Patient.NationalID = ""
	_, err = fx.service.Create(ctx, frontDesk, other)
	require.NoError(t, err)

	history, err = fx.service.History(ctx, current.PatientRef(), second.ConsultationID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestFieldGroupEventsCarryGroupName(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()
	admin := session.Admin()

	result, err := fx.service.Create(ctx, session.FrontDesk("fd-1", "Desk"), registrationInput())
	require.NoError(t, err)

	ch, cancel, err := fx.broker.Subscribe(ctx, events.CollectionConsultations)
	require.NoError(t, err)
	defer cancel()

	_, err = fx.service.UpdateBilling(ctx, admin, result.ConsultationID, nil, 0, 0)
	require.NoError(t, err)
	ev := waitForEvent(t, ch)
	assert.Equal(t, GroupBilling, ev.FieldGroup)

	require.NoError(t, fx.service.UpdateVitals(ctx, admin, result.ConsultationID, Vitals{}))
	ev = waitForEvent(t, ch)
	assert.Equal(t, GroupVitals, ev.FieldGroup)
}
