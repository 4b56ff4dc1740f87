package patients

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Repository defines the interface for patient storage
type Repository interface {
	// GetByKey loads a patient by storage key. Returns ErrNotFound when absent.
	GetByKey(ctx context.Context, key string) (*Patient, error)
	// FindByRef returns the most recently seen patient matching the
	// resolution predicate, or ErrNotFound.
	FindByRef(ctx context.Context, ref Ref) (*Patient, error)
	// Upsert writes the full patient row under its storage key.
	Upsert(ctx context.Context, p *Patient) error
	// Search matches name (subsequence), phone or national id (prefix).
	Search(ctx context.Context, query string) ([]*Patient, error)
}

// InMemoryRepository keeps patients in a map; used in dev mode and tests.
type InMemoryRepository struct {
	mu       sync.RWMutex
	patients map[string]*Patient
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{patients: make(map[string]*Patient)}
}

func (r *InMemoryRepository) GetByKey(ctx context.Context, key string) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.patients[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *InMemoryRepository) FindByRef(ctx context.Context, ref Ref) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Patient
	for _, p := range r.patients {
		if !MatchesRef(ref, p.DisplayID, p.Name, p.Phone, p.NationalID) {
			continue
		}
		if best == nil || p.LastVisit.After(best.LastVisit) {
			best = p
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (r *InMemoryRepository) Upsert(ctx context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *p
	r.patients[p.Key] = &cp
	return nil
}

func (r *InMemoryRepository) Search(ctx context.Context, query string) ([]*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Patient
	for _, p := range r.patients {
		if matchesQuery(p, query) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastVisit.After(out[j].LastVisit) })
	return out, nil
}

func matchesQuery(p *Patient, query string) bool {
	query = strings.TrimSpace(query)
	if query == "" {
		return true
	}
	if subsequenceMatch(p.Name, query) {
		return true
	}
	q := strings.ToLower(query)
	return strings.HasPrefix(p.Phone, query) ||
		(p.NationalID != "" && strings.HasPrefix(strings.ToLower(p.NationalID), q))
}

// subsequenceMatch reports whether every rune of query appears in s in
// order. Mirrors the front-desk typeahead behavior.
func subsequenceMatch(s, query string) bool {
	s = strings.ToLower(s)
	query = strings.ToLower(query)
	i := 0
	for _, r := range s {
		if i < len(query) && rune(query[i]) == r {
			i++
		}
	}
	return i == len(query)
}
