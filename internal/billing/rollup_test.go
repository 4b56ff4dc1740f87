package billing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opdstack/clinic-platform/internal/consultations"
	"github.com/opdstack/clinic-platform/pkg/logging"
)

// fixedNow anchors the preset windows so buckets are deterministic.
var fixedNow = time.Date(2025, 3, 15, 14, 30, 0, 0, time.UTC)

func newTestAggregator(t *testing.T, rows ...*consultations.Consultation) *Aggregator {
	t.Helper()
	repo := consultations.NewInMemoryRepository()
	for _, c := range rows {
		require.NoError(t, repo.Insert(context.Background(), c))
	}
	agg := NewAggregator(repo, time.UTC, logging.New("error"))
	agg.now = func() time.Time { return fixedNow }
	return agg
}

func visit(id string, createdAt time.Time, status consultations.Status, items []consultations.LineItem, pharmacy, diagnostics int64) *consultations.Consultation {
	return &consultations.Consultation{
		ID:                id,
		ClinicianID:       "dr-iyer",
		Status:            status,
		LineItems:         items,
		PharmacyAmount:    pharmacy,
		DiagnosticsAmount: diagnostics,
		CreatedAt:         createdAt,
	}
}

func fee(amount int64) []consultations.LineItem {
	return []consultations.LineItem{{Description: "Consultation Fee", Amount: amount}}
}

func TestRollupGrandTotalSumsAllInputs(t *testing.T) {
	agg := newTestAggregator(t,
		visit("c-1", fixedNow.Add(-time.Hour), consultations.StatusCompleted, fee(500), 150, 0),
		visit("c-2", fixedNow.Add(-2*time.Hour), consultations.StatusPending, fee(500), 0, 300),
	)

	r, err := agg.Rollup(context.Background(), Query{Window: WindowToday})
	require.NoError(t, err)
	assert.Equal(t, 2, r.Consultations)
	assert.Equal(t, 1, r.Completed)
	assert.Equal(t, 1, r.Pending)
	assert.Equal(t, int64(650+800), r.GrandTotal)
	assert.Equal(t, int64(150), r.Pharmacy)
	assert.Equal(t, int64(300), r.Diagnostics)
	require.Len(t, r.Days, 1)
	assert.Equal(t, "2025-03-15", r.Days[0].Date)
	assert.Equal(t, int64(1450), r.Days[0].Total)
}

func TestRollupMissingDaysAreZero(t *testing.T) {
	agg := newTestAggregator(t,
		visit("c-1", fixedNow.AddDate(0, 0, -6), consultations.StatusCompleted, fee(500), 0, 0),
		visit("c-2", fixedNow, consultations.StatusCompleted, fee(500), 0, 0),
	)

	r, err := agg.Rollup(context.Background(), Query{Window: Window7Days})
	require.NoError(t, err)
	require.Len(t, r.Days, 8, "a rolling week touches eight calendar dates")
	assert.Zero(t, r.Days[0].Consultations)
	assert.Equal(t, 1, r.Days[1].Consultations)
	for _, day := range r.Days[2:7] {
		assert.Zero(t, day.Consultations, "day %s", day.Date)
		assert.Zero(t, day.Total, "day %s", day.Date)
	}
	assert.Equal(t, 1, r.Days[7].Consultations)
}

func TestRollupPresetWindowsAreRolling(t *testing.T) {
	weekAgo := fixedNow.AddDate(0, 0, -7)
	agg := newTestAggregator(t,
		visit("c-edge", weekAgo, consultations.StatusCompleted, fee(500), 0, 0),
		visit("c-stale", weekAgo.Add(-time.Hour), consultations.StatusCompleted, fee(500), 0, 0),
	)

	r, err := agg.Rollup(context.Background(), Query{Window: Window7Days})
	require.NoError(t, err)
	assert.Equal(t, 1, r.Consultations, "exactly a week old counts, an hour older does not")
	assert.Equal(t, int64(500), r.GrandTotal)
}

func TestRollupCustomRangeInclusive(t *testing.T) {
	edgeLow := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	edgeHigh := time.Date(2025, 3, 12, 23, 59, 59, 0, time.UTC)
	outside := time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC)
	agg := newTestAggregator(t,
		visit("c-1", edgeLow, consultations.StatusCompleted, fee(500), 0, 0),
		visit("c-2", edgeHigh, consultations.StatusCompleted, fee(500), 0, 0),
		visit("c-3", outside, consultations.StatusCompleted, fee(500), 0, 0),
	)

	r, err := agg.Rollup(context.Background(), Query{From: "2025-03-10", To: "2025-03-12"})
	require.NoError(t, err)
	assert.Equal(t, 2, r.Consultations, "both edge days count, the day after does not")
	assert.Len(t, r.Days, 3)
}

func TestRollupFilters(t *testing.T) {
	agg := newTestAggregator(t,
		visit("c-1", fixedNow, consultations.StatusCompleted, fee(500), 0, 0),
		visit("c-2", fixedNow, consultations.StatusPending, fee(500), 0, 0),
	)

	r, err := agg.Rollup(context.Background(), Query{Window: WindowToday, Status: consultations.StatusCompleted})
	require.NoError(t, err)
	assert.Equal(t, 1, r.Consultations)

	r, err = agg.Rollup(context.Background(), Query{Window: WindowToday, ClinicianID: "dr-nobody"})
	require.NoError(t, err)
	assert.Zero(t, r.Consultations)
	assert.Zero(t, r.GrandTotal)
}

func TestRollupBadWindow(t *testing.T) {
	agg := newTestAggregator(t)

	_, err := agg.Rollup(context.Background(), Query{Window: "90d"})
	assert.ErrorIs(t, err, ErrBadWindow)

	_, err = agg.Rollup(context.Background(), Query{From: "2025-03-12", To: "2025-03-10"})
	assert.ErrorIs(t, err, ErrBadWindow)

	_, err = agg.Rollup(context.Background(), Query{From: "12/03/2025", To: "2025-03-14"})
	assert.ErrorIs(t, err, ErrBadWindow)
}

func TestRollupHandler(t *testing.T) {
	agg := newTestAggregator(t,
		visit("c-1", fixedNow, consultations.StatusCompleted, fee(500), 150, 0),
	)
	h := NewHandler(agg, logging.New("error"))

	req := httptest.NewRequest(http.MethodGet, "/billing/rollup?window=today", nil)
	rec := httptest.NewRecorder()
	h.Rollup(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"grand_total":650`)
	assert.Contains(t, rec.Body.String(), `"pharmacy":150`)

	req = httptest.NewRequest(http.MethodGet, "/billing/rollup?window=bogus", nil)
	rec = httptest.NewRecorder()
	h.Rollup(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
