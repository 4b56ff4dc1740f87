package clinicians

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/lib/pq"
)

// Directory lists and maintains clinicians.
type Directory interface {
	List(ctx context.Context, activeOnly bool) ([]Clinician, error)
	Get(ctx context.Context, id string) (*Clinician, error)
	Upsert(ctx context.Context, c *Clinician) error
}

// Repository is the Postgres-backed directory.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) List(ctx context.Context, activeOnly bool) ([]Clinician, error) {
	query := `
		SELECT id, name, email, phone, specialties, meeting_link, active, created_at, updated_at
		FROM clinicians`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY name ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Clinician
	for rows.Next() {
		var c Clinician
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone,
			pq.Array(&c.Specialties), &c.MeetingLink, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		if c.Specialties == nil {
			c.Specialties = []string{}
		}
		out = append(out, c)
	}
	if out == nil {
		out = []Clinician{}
	}
	return out, rows.Err()
}

func (r *Repository) Get(ctx context.Context, id string) (*Clinician, error) {
	var c Clinician
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, phone, specialties, meeting_link, active, created_at, updated_at
		FROM clinicians WHERE id = $1`, id).Scan(
		&c.ID, &c.Name, &c.Email, &c.Phone,
		pq.Array(&c.Specialties), &c.MeetingLink, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if c.Specialties == nil {
		c.Specialties = []string{}
	}
	return &c, nil
}

func (r *Repository) Upsert(ctx context.Context, c *Clinician) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO clinicians (id, name, email, phone, specialties, meeting_link, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
		ON CONFLICT (id) DO UPDATE SET
		    name=EXCLUDED.name, email=EXCLUDED.email, phone=EXCLUDED.phone,
		    specialties=EXCLUDED.specialties, meeting_link=EXCLUDED.meeting_link,
		    active=EXCLUDED.active, updated_at=EXCLUDED.updated_at`,
		c.ID, c.Name, c.Email, c.Phone, pq.Array(c.Specialties), c.MeetingLink, c.Active, now)
	return err
}

// InMemoryDirectory backs development mode and tests.
type InMemoryDirectory struct {
	mu   sync.RWMutex
	rows map[string]*Clinician
}

func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{rows: make(map[string]*Clinician)}
}

func (d *InMemoryDirectory) List(ctx context.Context, activeOnly bool) ([]Clinician, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := []Clinician{}
	for _, c := range d.rows {
		if activeOnly && !c.Active {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (d *InMemoryDirectory) Get(ctx context.Context, id string) (*Clinician, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (d *InMemoryDirectory) Upsert(ctx context.Context, c *Clinician) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	cp := *c
	if existing, ok := d.rows[c.ID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	d.rows[c.ID] = &cp
	return nil
}
