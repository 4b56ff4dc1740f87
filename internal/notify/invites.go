package notify

import (
	"context"
	"fmt"

	"github.com/opdstack/clinic-platform/internal/consultations"
	"github.com/opdstack/clinic-platform/pkg/logging"
)

// InviteService emails the meeting invitation when a consultation is
// registered. Patients without an email address are skipped silently;
// registration never depends on delivery.
type InviteService struct {
	sender     EmailSender
	clinicName string
	logger     *logging.Logger
}

func NewInviteService(sender EmailSender, clinicName string, logger *logging.Logger) *InviteService {
	if sender == nil {
		panic("notify: EmailSender is required")
	}
	if clinicName == "" {
		clinicName = "the clinic"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &InviteService{sender: sender, clinicName: clinicName, logger: logger.Component("notify")}
}

// SendInvite implements consultations.InviteSender.
func (s *InviteService) SendInvite(ctx context.Context, c *consultations.Consultation) error {
	if c.PatientEmail == "" {
		s.logger.Debug("no patient email on record, skipping invite", "consultation_id", c.ID)
		return nil
	}

	msg := EmailMessage{
		To:      c.PatientEmail,
		ToName:  c.PatientName,
		Subject: fmt.Sprintf("Your consultation at %s", s.clinicName),
		Body: fmt.Sprintf(
			"Dear %s,\n\nYour consultation has been registered. Join at the scheduled time using this link:\n\n%s\n\nYour patient ID is %s. Please keep it for future visits.\n\nRegards,\n%s",
			c.PatientName, c.MeetingLink, c.DisplayID, s.clinicName),
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: send consultation invite: %w", err)
	}
	return nil
}
