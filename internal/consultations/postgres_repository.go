package consultations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opdstack/clinic-platform/internal/attachments"
	"github.com/opdstack/clinic-platform/internal/patients"
)

// pgDB is the subset of pgxpool.Pool the repository needs, kept narrow so
// tests can substitute a mock.
type pgDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores consultations in Postgres. The clinical
// document fields live in jsonb columns; the scalar columns exist for
// filtering and the history join.
type PostgresRepository struct {
	db pgDB
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("consultations: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

// NewPostgresRepositoryWithDB allows injecting a mock database for testing.
func NewPostgresRepositoryWithDB(db pgDB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const consultationColumns = `id, patient_key, display_id, patient_name, age, sex, phone, national_id,
	patient_email, clinician_id, clinician_name, created_by, status, vitals, notes, meeting_link,
	base_amount, line_items, pharmacy_amount, diagnostics_amount, attachments,
	created_at, completed_at`

func (r *PostgresRepository) Insert(ctx context.Context, c *Consultation) error {
	vitals, err := json.Marshal(c.Vitals)
	if err != nil {
		return fmt.Errorf("consultations: marshal vitals: %w", err)
	}
	var notes []byte
	if c.Notes != nil {
		if notes, err = json.Marshal(c.Notes); err != nil {
			return fmt.Errorf("consultations: marshal notes: %w", err)
		}
	}
	items, err := json.Marshal(c.LineItems)
	if err != nil {
		return fmt.Errorf("consultations: marshal line items: %w", err)
	}
	atts, err := json.Marshal(c.Attachments)
	if err != nil {
		return fmt.Errorf("consultations: marshal attachments: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO consultations (`+consultationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23)`,
		c.ID, c.PatientKey, c.DisplayID, c.PatientName, c.Age, c.Sex, c.Phone, c.NationalID,
		c.PatientEmail, c.ClinicianID, c.ClinicianName, c.CreatedBy, string(c.Status), vitals, notes, c.MeetingLink,
		c.BaseAmount, items, c.PharmacyAmount, c.DiagnosticsAmount, atts,
		c.CreatedAt, c.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("consultations: insert consultation: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Consultation, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+consultationColumns+`
		FROM consultations
		WHERE id = $1`, id)
	c, err := scanConsultation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("consultations: get consultation: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) UpdateVitals(ctx context.Context, id string, vitals Vitals) error {
	payload, err := json.Marshal(vitals)
	if err != nil {
		return fmt.Errorf("consultations: marshal vitals: %w", err)
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE consultations SET vitals = $2 WHERE id = $1`, id, payload)
	if err != nil {
		return fmt.Errorf("consultations: update vitals: %w", err)
	}
	return checkUpdated(tag)
}

func (r *PostgresRepository) UpdateNotes(ctx context.Context, id string, notes NotesBundle, status Status, completedAt *time.Time) error {
	payload, err := json.Marshal(notes)
	if err != nil {
		return fmt.Errorf("consultations: marshal notes: %w", err)
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE consultations
		SET notes = $2, status = $3, completed_at = $4
		WHERE id = $1`, id, payload, string(status), completedAt)
	if err != nil {
		return fmt.Errorf("consultations: update notes: %w", err)
	}
	return checkUpdated(tag)
}

func (r *PostgresRepository) UpdateBilling(ctx context.Context, id string, items []LineItem, pharmacy, diagnostics int64) error {
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("consultations: marshal line items: %w", err)
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE consultations
		SET line_items = $2, pharmacy_amount = $3, diagnostics_amount = $4
		WHERE id = $1`, id, payload, pharmacy, diagnostics)
	if err != nil {
		return fmt.Errorf("consultations: update billing: %w", err)
	}
	return checkUpdated(tag)
}

func (r *PostgresRepository) UpdateLogistics(ctx context.Context, id string, meetingLink string, baseAmount int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE consultations
		SET meeting_link = $2, base_amount = $3
		WHERE id = $1`, id, meetingLink, baseAmount)
	if err != nil {
		return fmt.Errorf("consultations: update logistics: %w", err)
	}
	return checkUpdated(tag)
}

func (r *PostgresRepository) List(ctx context.Context, filter Filter) ([]*Consultation, error) {
	query := `SELECT ` + consultationColumns + ` FROM consultations`
	var clauses []string
	var args []any
	if filter.ClinicianID != "" {
		args = append(args, filter.ClinicianID)
		clauses = append(clauses, "clinician_id = $"+strconv.Itoa(len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, "status = $"+strconv.Itoa(len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		clauses = append(clauses, "created_at >= $"+strconv.Itoa(len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		clauses = append(clauses, "created_at <= $"+strconv.Itoa(len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("consultations: list consultations: %w", err)
	}
	defer rows.Close()
	return collectConsultations(rows)
}

func (r *PostgresRepository) ListByPatientRef(ctx context.Context, ref patients.Ref, excludeID string) ([]*Consultation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+consultationColumns+`
		FROM consultations
		WHERE id <> $1
		  AND (($2 <> '' AND display_id = $2)
		    OR ($3 <> '' AND national_id = $3)
		    OR ($4 <> '' AND $5 <> '' AND patient_name = $4 AND phone = $5))
		ORDER BY created_at DESC`,
		excludeID, ref.DisplayID, ref.NationalID, ref.Name, ref.Phone)
	if err != nil {
		return nil, fmt.Errorf("consultations: list patient history: %w", err)
	}
	defer rows.Close()
	return collectConsultations(rows)
}

func checkUpdated(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collectConsultations(rows pgx.Rows) ([]*Consultation, error) {
	var out []*Consultation
	for rows.Next() {
		c, err := scanConsultation(rows)
		if err != nil {
			return nil, fmt.Errorf("consultations: scan consultation: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("consultations: iterate consultations: %w", err)
	}
	return out, nil
}

func scanConsultation(row pgx.Row) (*Consultation, error) {
	var (
		c             Consultation
		status        string
		vitalsRaw     []byte
		notesRaw      []byte
		itemsRaw      []byte
		attachmentRaw []byte
	)
	err := row.Scan(
		&c.ID, &c.PatientKey, &c.DisplayID, &c.PatientName, &c.Age, &c.Sex, &c.Phone, &c.NationalID,
		&c.PatientEmail, &c.ClinicianID, &c.ClinicianName, &c.CreatedBy, &status, &vitalsRaw, &notesRaw, &c.MeetingLink,
		&c.BaseAmount, &itemsRaw, &c.PharmacyAmount, &c.DiagnosticsAmount, &attachmentRaw,
		&c.CreatedAt, &c.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status = Status(status)
	if len(vitalsRaw) > 0 {
		if err := json.Unmarshal(vitalsRaw, &c.Vitals); err != nil {
			return nil, fmt.Errorf("unmarshal vitals: %w", err)
		}
	}
	if len(notesRaw) > 0 {
		c.Notes = &NotesBundle{}
		if err := json.Unmarshal(notesRaw, c.Notes); err != nil {
			return nil, fmt.Errorf("unmarshal notes: %w", err)
		}
	}
	if len(itemsRaw) > 0 {
		if err := json.Unmarshal(itemsRaw, &c.LineItems); err != nil {
			return nil, fmt.Errorf("unmarshal line items: %w", err)
		}
	}
	if len(attachmentRaw) > 0 {
		c.Attachments = []attachments.Attachment{}
		if err := json.Unmarshal(attachmentRaw, &c.Attachments); err != nil {
			return nil, fmt.Errorf("unmarshal attachments: %w", err)
		}
	}
	return &c, nil
}
