package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	return s
}

func testExperiment(status Status) *Experiment {
	return &Experiment{
		ID:                uuid.NewString(),
		Name:              "hero",
		URL:               "/",
		MatchType:         MatchExact,
		Policy:            PolicyFiftyFifty,
		VariantA:          "Ship Faster",
		VariantB:          "Build Better",
		MinimumSampleSize: 100,
		ConfidenceLevel:   95,
		Status:            status,
	}
}

func TestSQLite_CreateAndGetExperiment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	exp := testExperiment(StatusDraft)
	require.NoError(t, s.CreateExperiment(ctx, exp))

	got, err := s.GetExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, exp.Name, got.Name)
	assert.Equal(t, StatusDraft, got.Status)
	assert.Equal(t, PolicyFiftyFifty, got.Policy)
	assert.Equal(t, 95.0, got.ConfidenceLevel)
	assert.Nil(t, got.WinnerVariant)
	assert.Nil(t, got.StartDate)
}

func TestSQLite_GetExperiment_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetExperiment(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_CreateExperiment_Invalid(t *testing.T) {
	s := newTestStore(t)

	exp := testExperiment(StatusDraft)
	exp.URL = ""
	err := s.CreateExperiment(context.Background(), exp)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSQLite_ListActiveExperiments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	active := testExperiment(StatusActive)
	draft := testExperiment(StatusDraft)
	done := testExperiment(StatusCompleted)
	for _, exp := range []*Experiment{active, draft, done} {
		require.NoError(t, s.CreateExperiment(ctx, exp))
	}

	got, err := s.ListActiveExperiments(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, active.ID, got[0].ID)

	all, err := s.ListExperiments(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSQLite_UpdateExperimentStatus_Conditional(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	exp := testExperiment(StatusActive)
	require.NoError(t, s.CreateExperiment(ctx, exp))

	winner := VariantB
	endDate := time.Now()
	require.NoError(t, s.UpdateExperimentStatus(ctx, exp.ID, StatusActive, StatusCompleted, &winner, &endDate))

	// Second completion finds no active row; concurrent sweeps cannot
	// double-stop an experiment.
	err := s.UpdateExperimentStatus(ctx, exp.ID, StatusActive, StatusCompleted, &winner, &endDate)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.GetExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	require.NotNil(t, got.WinnerVariant)
	assert.Equal(t, VariantB, *got.WinnerVariant)
	require.NotNil(t, got.EndDate)
}

func TestSQLite_UpdateExperimentStatus_StampsStartDate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	exp := testExperiment(StatusDraft)
	require.NoError(t, s.CreateExperiment(ctx, exp))
	require.NoError(t, s.UpdateExperimentStatus(ctx, exp.ID, StatusDraft, StatusActive, nil, nil))

	got, err := s.GetExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)
	require.NotNil(t, got.StartDate)
}

func TestSQLite_CreateAssignment_Unique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	exp := testExperiment(StatusActive)
	require.NoError(t, s.CreateExperiment(ctx, exp))

	a, err := s.CreateAssignment(ctx, exp.ID, "visitor-1", VariantA)
	require.NoError(t, err)
	assert.Equal(t, VariantA, a.Variant)

	// Second insert for the same pair must fail loudly, not overwrite.
	_, err = s.CreateAssignment(ctx, exp.ID, "visitor-1", VariantB)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	got, err := s.GetAssignment(ctx, exp.ID, "visitor-1")
	require.NoError(t, err)
	assert.Equal(t, VariantA, got.Variant)
	assert.False(t, got.Converted)
}

func TestSQLite_GetAssignment_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetAssignment(context.Background(), "exp", "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_MarkConverted_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	exp := testExperiment(StatusActive)
	require.NoError(t, s.CreateExperiment(ctx, exp))
	_, err := s.CreateAssignment(ctx, exp.ID, "visitor-1", VariantB)
	require.NoError(t, err)

	value := 49.99
	first, err := s.MarkConverted(ctx, exp.ID, "visitor-1", &value)
	require.NoError(t, err)
	assert.True(t, first)

	first, err = s.MarkConverted(ctx, exp.ID, "visitor-1", &value)
	require.NoError(t, err)
	assert.False(t, first)

	got, err := s.GetAssignment(ctx, exp.ID, "visitor-1")
	require.NoError(t, err)
	assert.True(t, got.Converted)
	require.NotNil(t, got.ConversionValue)
	assert.Equal(t, 49.99, *got.ConversionValue)
	require.NotNil(t, got.ConversionAt)
}

func TestSQLite_Increment_Concurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	exp := testExperiment(StatusActive)
	require.NoError(t, s.CreateExperiment(ctx, exp))

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.IncrementVisit(ctx, exp.ID, VariantA))
		}()
	}
	wg.Wait()

	got, err := s.GetExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), got.VisitsA)
	assert.Zero(t, got.VisitsB)
}

func TestSQLite_Increment_UnknownExperiment(t *testing.T) {
	s := newTestStore(t)

	err := s.IncrementConversion(context.Background(), "missing", VariantA)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_UpdateSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	exp := testExperiment(StatusActive)
	require.NoError(t, s.CreateExperiment(ctx, exp))
	require.NoError(t, s.UpdateSnapshot(ctx, exp.ID, 0.04, 0.06, true))

	got, err := s.GetExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.04, got.ConversionRateA)
	assert.Equal(t, 0.06, got.ConversionRateB)
	assert.True(t, got.StatisticallySignificant)
}

func TestSQLite_AssignmentCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	exp := testExperiment(StatusActive)
	require.NoError(t, s.CreateExperiment(ctx, exp))

	for i, v := range []Variant{VariantA, VariantA, VariantA, VariantB, VariantB} {
		visitor := string(rune('a' + i))
		_, err := s.CreateAssignment(ctx, exp.ID, visitor, v)
		require.NoError(t, err)
	}
	_, err := s.MarkConverted(ctx, exp.ID, "a", nil)
	require.NoError(t, err)
	_, err = s.MarkConverted(ctx, exp.ID, "d", nil)
	require.NoError(t, err)

	counts, err := s.AssignmentCounts(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, Counts{VisitsA: 3, VisitsB: 2, ConversionsA: 1, ConversionsB: 1}, counts)
}

func TestSQLite_SetCounters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	exp := testExperiment(StatusActive)
	require.NoError(t, s.CreateExperiment(ctx, exp))

	c := Counts{VisitsA: 10, VisitsB: 12, ConversionsA: 3, ConversionsB: 4}
	require.NoError(t, s.SetCounters(ctx, exp.ID, c))

	got, err := s.GetExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.VisitsA)
	assert.Equal(t, int64(12), got.VisitsB)
	assert.Equal(t, int64(3), got.ConversionsA)
	assert.Equal(t, int64(4), got.ConversionsB)
}
