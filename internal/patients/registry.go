package patients

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opdstack/clinic-platform/internal/events"
	"github.com/opdstack/clinic-platform/internal/session"
	"github.com/opdstack/clinic-platform/pkg/logging"
)

// Registry resolves registration input to a canonical patient identity and
// keeps the denormalized last-known profile fresh.
type Registry struct {
	repo   Repository
	bus    events.Publisher
	logger *logging.Logger
}

// NewRegistry constructs a patient registry.
func NewRegistry(repo Repository, bus events.Publisher, logger *logging.Logger) *Registry {
	if repo == nil {
		panic("patients: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Registry{repo: repo, bus: bus, logger: logger.Component("patients")}
}

// ResolveOrCreate maps a registration to a patient row. A row already
// stored under the derived key is merge-upserted: non-empty input fields
// overwrite, omitted fields survive, and the last-visit stamp refreshes.
// Otherwise a new row is created; if an earlier visit left a row under a
// different key, its display id is reused so history still joins.
// The created flag reports which path was taken.
func (g *Registry) ResolveOrCreate(ctx context.Context, sess session.Session, in RegisterInput) (*Patient, bool, error) {
	if err := in.Validate(); err != nil {
		return nil, false, err
	}

	now := time.Now().UTC()
	key := StorageKey(in.Name, in.NationalID)

	existing, err := g.repo.GetByKey(ctx, key)
	switch {
	case err == nil:
		merged := mergeProfile(existing, in, now)
		if err := g.repo.Upsert(ctx, merged); err != nil {
			return nil, false, err
		}
		g.publish(ctx, sess, events.OpUpdated, merged.DisplayID)
		g.logger.Info("patient merged", "patient_key", merged.Key, "display_id", merged.DisplayID)
		return merged, false, nil
	case !errors.Is(err, ErrNotFound):
		return nil, false, fmt.Errorf("patients: resolve: %w", err)
	}

	displayID := NewDisplayID()
	if prior, err := g.repo.FindByRef(ctx, Ref{Name: in.Name, Phone: in.Phone, NationalID: in.NationalID}); err == nil {
		displayID = prior.DisplayID
	}

	p := &Patient{
		Key:               key,
		DisplayID:         displayID,
		Name:              in.Name,
		Age:               in.Age,
		Sex:               in.Sex,
		Phone:             in.Phone,
		NationalID:        in.NationalID,
		Email:             in.Email,
		ChronicConditions: in.ChronicConditions,
		LastVisit:         now,
		CreatedAt:         now,
	}
	if err := g.repo.Upsert(ctx, p); err != nil {
		return nil, false, err
	}
	g.publish(ctx, sess, events.OpCreated, p.DisplayID)
	g.logger.Info("patient created", "patient_key", p.Key, "display_id", p.DisplayID)
	return p, true, nil
}

// Lookup finds the freshest patient row for a ref.
func (g *Registry) Lookup(ctx context.Context, ref Ref) (*Patient, error) {
	return g.repo.FindByRef(ctx, ref)
}

// Search matches patients for the front-desk typeahead.
func (g *Registry) Search(ctx context.Context, query string) ([]*Patient, error) {
	return g.repo.Search(ctx, query)
}

func (g *Registry) publish(ctx context.Context, sess session.Session, op events.Op, recordID string) {
	if g.bus == nil {
		return
	}
	err := g.bus.Publish(ctx, events.ChangeEventV1{
		Collection: events.CollectionPatients,
		Op:         op,
		RecordID:   recordID,
		ActorRole:  string(sess.Role),
		ActorID:    sess.ActorID,
	})
	if err != nil {
		g.logger.Warn("change event not published", "record_id", recordID, "error", err)
	}
}

// mergeProfile overlays non-empty registration fields onto the stored row.
func mergeProfile(stored *Patient, in RegisterInput, now time.Time) *Patient {
	merged := *stored
	if in.Name != "" {
		merged.Name = in.Name
	}
	if in.Age != 0 {
		merged.Age = in.Age
	}
	if in.Sex != "" {
		merged.Sex = in.Sex
	}
	if in.Phone != "" {
		merged.Phone = in.Phone
	}
	if in.NationalID != "" {
		merged.NationalID = in.NationalID
	}
	if in.Email != "" {
		merged.Email = in.Email
	}
	if in.ChronicConditions != "" {
		merged.ChronicConditions = in.ChronicConditions
	}
	merged.LastVisit = now
	return &merged
}
