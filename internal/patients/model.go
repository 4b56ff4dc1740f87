package patients

import (
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Patient is the canonical identity for a person across visits.
type Patient struct {
	// Key is the storage key used as the upsert target. It is derived from
	// the registration input and is NOT the identity used for history joins;
	// see MatchesRef.
	Key string `json:"key"`
	// DisplayID is the human-facing unique identifier (e.g. "PID-3f9a2c").
	DisplayID         string    `json:"display_id"`
	Name              string    `json:"name"`
	Age               int       `json:"age,omitempty"`
	Sex               string    `json:"sex,omitempty"`
	Phone             string    `json:"phone"`
	NationalID        string    `json:"national_id,omitempty"`
	Email             string    `json:"email,omitempty"`
	ChronicConditions string    `json:"chronic_conditions,omitempty"`
	LastVisit         time.Time `json:"last_visit"`
	CreatedAt         time.Time `json:"created_at"`
}

// RegisterInput is what the front desk submits for a visit.
type RegisterInput struct {
	Name              string `json:"name"`
	Age               int    `json:"age,omitempty"`
	Sex               string `json:"sex,omitempty"`
	Phone             string `json:"phone"`
	NationalID        string `json:"national_id,omitempty"`
	Email             string `json:"email,omitempty"`
	ChronicConditions string `json:"chronic_conditions,omitempty"`
}

// Validate checks the required identity fields.
func (in *RegisterInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return ErrNameRequired
	}
	if strings.TrimSpace(in.Phone) == "" {
		return ErrPhoneRequired
	}
	return nil
}

// Ref identifies a patient for history joins. DisplayID alone is enough
// when known; name+phone or national id cover rows stored under a
// different key on an earlier visit.
type Ref struct {
	DisplayID  string `json:"display_id,omitempty"`
	Name       string `json:"name,omitempty"`
	Phone      string `json:"phone,omitempty"`
	NationalID string `json:"national_id,omitempty"`
}

// MatchesRef is the resolution predicate: display id equal, or national id
// equal, or name and phone both equal. It is deliberately independent of
// the storage key, so patients fragmented across keys still join.
func MatchesRef(ref Ref, displayID, name, phone, nationalID string) bool {
	if ref.DisplayID != "" && ref.DisplayID == displayID {
		return true
	}
	if ref.NationalID != "" && ref.NationalID == nationalID {
		return true
	}
	if ref.Name != "" && ref.Phone != "" && ref.Name == name && ref.Phone == phone {
		return true
	}
	return false
}

// StorageKey derives the upsert target for a registration. With a national
// id the key is stable across visits; without one it gets a random suffix,
// so the same person registers under a new row each time. History joins
// reconcile those rows through MatchesRef instead.
func StorageKey(name, nationalID string) string {
	safe := sanitizeKeyPart(name)
	if nationalID = strings.TrimSpace(nationalID); nationalID != "" {
		return safe + "-" + sanitizeKeyPart(nationalID)
	}
	return safe + "-" + strconv4(rand.Intn(10000))
}

// NewDisplayID generates a fresh human-facing patient id.
func NewDisplayID() string {
	return "PID-" + uuid.NewString()[:6]
}

func sanitizeKeyPart(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func strconv4(n int) string {
	digits := []byte{'0', '0', '0', '0'}
	for i := 3; i >= 0 && n > 0; i-- {
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits)
}
