package consultations

import "errors"

var (
	// ErrNotFound is returned when no consultation exists for the id.
	ErrNotFound = errors.New("consultations: consultation not found")

	// ErrClinicianRequired is returned when registration names no clinician.
	ErrClinicianRequired = errors.New("consultations: clinician is required")

	// ErrMeetingLinkRequired is returned when registration carries no
	// meeting link for the encounter.
	ErrMeetingLinkRequired = errors.New("consultations: meeting link is required")

	// ErrCompleted is returned when a clinical-notes write targets a
	// consultation that has already been finalized.
	ErrCompleted = errors.New("consultations: consultation already completed")
)
