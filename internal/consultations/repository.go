package consultations

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/opdstack/clinic-platform/internal/patients"
)

// Repository persists consultations. Each Update method writes exactly one
// field group so writers touching different groups never clobber each other.
type Repository interface {
	Insert(ctx context.Context, c *Consultation) error
	Get(ctx context.Context, id string) (*Consultation, error)
	UpdateVitals(ctx context.Context, id string, vitals Vitals) error
	UpdateNotes(ctx context.Context, id string, notes NotesBundle, status Status, completedAt *time.Time) error
	UpdateBilling(ctx context.Context, id string, items []LineItem, pharmacy, diagnostics int64) error
	UpdateLogistics(ctx context.Context, id string, meetingLink string, baseAmount int64) error
	List(ctx context.Context, filter Filter) ([]*Consultation, error)
	ListByPatientRef(ctx context.Context, ref patients.Ref, excludeID string) ([]*Consultation, error)
}

// InMemoryRepository keeps consultations in memory for development mode
// and tests.
type InMemoryRepository struct {
	mu   sync.RWMutex
	rows map[string]*Consultation
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{rows: make(map[string]*Consultation)}
}

func (r *InMemoryRepository) Insert(ctx context.Context, c *Consultation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.rows[c.ID] = &cp
	return nil
}

func (r *InMemoryRepository) Get(ctx context.Context, id string) (*Consultation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *InMemoryRepository) UpdateVitals(ctx context.Context, id string, vitals Vitals) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok {
		return ErrNotFound
	}
	c.Vitals = vitals
	return nil
}

func (r *InMemoryRepository) UpdateNotes(ctx context.Context, id string, notes NotesBundle, status Status, completedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok {
		return ErrNotFound
	}
	n := notes
	c.Notes = &n
	c.Status = status
	c.CompletedAt = completedAt
	return nil
}

func (r *InMemoryRepository) UpdateBilling(ctx context.Context, id string, items []LineItem, pharmacy, diagnostics int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok {
		return ErrNotFound
	}
	c.LineItems = append([]LineItem(nil), items...)
	c.PharmacyAmount = pharmacy
	c.DiagnosticsAmount = diagnostics
	return nil
}

func (r *InMemoryRepository) UpdateLogistics(ctx context.Context, id string, meetingLink string, baseAmount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok {
		return ErrNotFound
	}
	c.MeetingLink = meetingLink
	c.BaseAmount = baseAmount
	return nil
}

func (r *InMemoryRepository) List(ctx context.Context, filter Filter) ([]*Consultation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Consultation
	for _, c := range r.rows {
		if filter.Matches(c) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sortByCreatedDesc(out)
	return out, nil
}

func (r *InMemoryRepository) ListByPatientRef(ctx context.Context, ref patients.Ref, excludeID string) ([]*Consultation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Consultation
	for _, c := range r.rows {
		if c.ID == excludeID {
			continue
		}
		if patients.MatchesRef(ref, c.DisplayID, c.PatientName, c.Phone, c.NationalID) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sortByCreatedDesc(out)
	return out, nil
}

func sortByCreatedDesc(rows []*Consultation) {
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})
}
