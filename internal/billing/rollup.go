package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/opdstack/clinic-platform/internal/consultations"
	"github.com/opdstack/clinic-platform/pkg/logging"
)

var rollupTracer = otel.Tracer("clinic.internal.billing")

// ErrBadWindow is returned for an unknown window name or a custom range
// with from after to.
var ErrBadWindow = errors.New("billing: invalid rollup window")

// Named rollup windows. Custom ranges pass explicit from/to dates instead.
const (
	WindowToday  = "today"
	Window7Days  = "7d"
	Window30Days = "30d"
)

// Lister is the consultation read access the aggregator needs.
type Lister interface {
	List(ctx context.Context, filter consultations.Filter) ([]*consultations.Consultation, error)
}

// Query selects the consultations to aggregate. Window names a preset
// range; From/To (YYYY-MM-DD, both inclusive) define a custom one. Exactly
// one of the two forms must be used.
type Query struct {
	Window      string
	From        string
	To          string
	ClinicianID string
	Status      consultations.Status
}

// DayBucket is one calendar day inside a rollup. Days with no
// consultations appear with zero counts, never as gaps.
type DayBucket struct {
	Date          string `json:"date"`
	Consultations int    `json:"consultations"`
	Completed     int    `json:"completed"`
	Total         int64  `json:"total"`
}

// Rollup is the aggregate for a window. Totals are recomputed from each
// consultation's billing inputs at read time; nothing is cached.
type Rollup struct {
	From          string      `json:"from"`
	To            string      `json:"to"`
	Consultations int         `json:"consultations"`
	Completed     int         `json:"completed"`
	Pending       int         `json:"pending"`
	GrandTotal    int64       `json:"grand_total"`
	Pharmacy      int64       `json:"pharmacy"`
	Diagnostics   int64       `json:"diagnostics"`
	Days          []DayBucket `json:"days"`
}

// Aggregator computes billing rollups over the consultation store.
type Aggregator struct {
	lister Lister
	loc    *time.Location
	logger *logging.Logger
	now    func() time.Time
}

// NewAggregator creates a billing aggregator. Day boundaries follow loc;
// nil means UTC.
func NewAggregator(lister Lister, loc *time.Location, logger *logging.Logger) *Aggregator {
	if lister == nil {
		panic("billing: Lister is required")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Aggregator{lister: lister, loc: loc, logger: logger.Component("billing"), now: time.Now}
}

// Rollup aggregates the consultations inside the query window.
func (a *Aggregator) Rollup(ctx context.Context, q Query) (*Rollup, error) {
	ctx, span := rollupTracer.Start(ctx, "billing.rollup")
	defer span.End()

	from, to, err := a.resolveWindow(q)
	if err != nil {
		return nil, err
	}

	rows, err := a.lister.List(ctx, consultations.Filter{
		ClinicianID: q.ClinicianID,
		Status:      q.Status,
		From:        &from,
		To:          &to,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("billing: list consultations for rollup: %w", err)
	}

	result := &Rollup{
		From: from.Format(time.DateOnly),
		To:   to.In(a.loc).Format(time.DateOnly),
	}

	buckets := make(map[string]*DayBucket)
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		b := &DayBucket{Date: day.Format(time.DateOnly)}
		buckets[b.Date] = b
	}

	for _, c := range rows {
		date := c.CreatedAt.In(a.loc).Format(time.DateOnly)
		b, ok := buckets[date]
		if !ok {
			continue
		}
		b.Consultations++
		b.Total += c.GrandTotal()
		if c.Status == consultations.StatusCompleted {
			b.Completed++
			result.Completed++
		} else {
			result.Pending++
		}
		result.Consultations++
		result.GrandTotal += c.GrandTotal()
		result.Pharmacy += c.PharmacyAmount
		result.Diagnostics += c.DiagnosticsAmount
	}

	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		result.Days = append(result.Days, *buckets[day.Format(time.DateOnly)])
	}
	return result, nil
}

// resolveWindow maps the query to an inclusive [from, to] span. The 7d
// and 30d presets are rolling: anything created at or after now minus
// 7 (or 30) whole days counts, regardless of clock time. Today starts
// at local midnight. Custom ranges run from the start of the first day
// to the end of the last.
func (a *Aggregator) resolveWindow(q Query) (time.Time, time.Time, error) {
	now := a.now().In(a.loc)

	if q.Window != "" {
		switch q.Window {
		case WindowToday:
			today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, a.loc)
			return today, now, nil
		case Window7Days:
			return now.AddDate(0, 0, -7), now, nil
		case Window30Days:
			return now.AddDate(0, 0, -30), now, nil
		default:
			return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrBadWindow, q.Window)
		}
	}

	from, err := time.ParseInLocation(time.DateOnly, q.From, a.loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from %q", ErrBadWindow, q.From)
	}
	toDay, err := time.ParseInLocation(time.DateOnly, q.To, a.loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: to %q", ErrBadWindow, q.To)
	}
	if toDay.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from after to", ErrBadWindow)
	}
	to := toDay.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return from, to, nil
}
