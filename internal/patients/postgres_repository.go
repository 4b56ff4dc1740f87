package patients

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgDB is the subset of pgxpool.Pool used by PostgresRepository; narrowed
// so tests can inject pgxmock.
type pgDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores patients in Postgres.
type PostgresRepository struct {
	db pgDB
}

// NewPostgresRepository creates a repository backed by a pgx pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("patients: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

// NewPostgresRepositoryWithDB allows injecting a mock database for testing.
func NewPostgresRepositoryWithDB(db pgDB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const patientColumns = `patient_key, display_id, name, age, sex, phone, national_id, email, chronic_conditions, last_visit, created_at`

func (r *PostgresRepository) GetByKey(ctx context.Context, key string) (*Patient, error) {
	row := r.db.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE patient_key = $1`, key)
	p, err := scanPatient(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("patients: get by key: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) FindByRef(ctx context.Context, ref Ref) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+patientColumns+` FROM patients
		WHERE ($1 <> '' AND display_id = $1)
		   OR ($2 <> '' AND national_id = $2)
		   OR ($3 <> '' AND $4 <> '' AND name = $3 AND phone = $4)
		ORDER BY last_visit DESC
		LIMIT 1`,
		ref.DisplayID, ref.NationalID, ref.Name, ref.Phone)
	p, err := scanPatient(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("patients: find by ref: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, p *Patient) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO patients (`+patientColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (patient_key) DO UPDATE SET
		    display_id=EXCLUDED.display_id, name=EXCLUDED.name, age=EXCLUDED.age,
		    sex=EXCLUDED.sex, phone=EXCLUDED.phone, national_id=EXCLUDED.national_id,
		    email=EXCLUDED.email, chronic_conditions=EXCLUDED.chronic_conditions,
		    last_visit=EXCLUDED.last_visit`,
		p.Key, p.DisplayID, p.Name, p.Age, p.Sex, p.Phone, p.NationalID,
		p.Email, p.ChronicConditions, p.LastVisit, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("patients: upsert: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Search(ctx context.Context, query string) ([]*Patient, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+patientColumns+` FROM patients
		WHERE $1 = ''
		   OR name ILIKE '%' || $1 || '%'
		   OR phone LIKE $1 || '%'
		   OR national_id ILIKE $1 || '%'
		ORDER BY last_visit DESC`, query)
	if err != nil {
		return nil, fmt.Errorf("patients: search: %w", err)
	}
	defer rows.Close()

	var out []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("patients: search scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.Key, &p.DisplayID, &p.Name, &p.Age, &p.Sex, &p.Phone,
		&p.NationalID, &p.Email, &p.ChronicConditions, &p.LastVisit, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
