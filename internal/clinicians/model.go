// Package clinicians is the directory of consulting doctors.
package clinicians

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no clinician exists for the id.
	ErrNotFound = errors.New("clinicians: clinician not found")

	// ErrNameRequired is returned when a directory entry has no name.
	ErrNameRequired = errors.New("clinicians: name is required")
)

// Clinician is one directory entry. Specialties is free-form; the
// front desk filters on it when assigning consultations.
type Clinician struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Email       string   `json:"email,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	Specialties []string `json:"specialties"`
	// MeetingLink is the clinician's standing video-consultation room,
	// offered as the default when the front desk registers a consultation.
	MeetingLink string    `json:"meeting_link,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Matches reports whether the entry matches a picker search term, by
// case-insensitive substring on name or any specialty.
func (c *Clinician) Matches(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	if strings.Contains(strings.ToLower(c.Name), term) {
		return true
	}
	for _, s := range c.Specialties {
		if strings.Contains(strings.ToLower(s), term) {
			return true
		}
	}
	return false
}

// Validate checks the fields required for a directory entry.
func (c *Clinician) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrNameRequired
	}
	return nil
}
