package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splitpilot/splitpilot/internal/store"
)

func setupAssignor(t *testing.T, policy store.Policy) (*Assignor, *store.MemoryStore, *store.Experiment) {
	t.Helper()
	m := store.NewMemory()
	exp := activeExperiment("exp-1", policy)
	require.NoError(t, m.CreateExperiment(context.Background(), exp))
	return NewAssignor(m, nil), m, exp
}

func TestAssign_Idempotent(t *testing.T) {
	a, m, exp := setupAssignor(t, store.PolicyFiftyFifty)
	ctx := context.Background()

	variant, isNew, err := a.Assign(ctx, exp, "visitor-1")
	require.NoError(t, err)
	assert.True(t, isNew)

	// Re-invocation returns the persisted variant and never re-counts.
	for i := 0; i < 5; i++ {
		again, isNew, err := a.Assign(ctx, exp, "visitor-1")
		require.NoError(t, err)
		assert.Equal(t, variant, again)
		assert.False(t, isNew)
	}

	got, err := m.GetExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.VisitsA+got.VisitsB)
}

func TestAssign_Alternating(t *testing.T) {
	a, m, exp := setupAssignor(t, store.PolicyAlternating)
	ctx := context.Background()

	var variants []store.Variant
	for i := 0; i < 10; i++ {
		// Reload so the parity reflects the visit counters written so far.
		fresh, err := m.GetExperiment(ctx, exp.ID)
		require.NoError(t, err)

		v, isNew, err := a.Assign(ctx, fresh, fmt.Sprintf("visitor-%d", i))
		require.NoError(t, err)
		require.True(t, isNew)
		variants = append(variants, v)
	}

	for i, v := range variants {
		want := store.VariantA
		if i%2 == 1 {
			want = store.VariantB
		}
		assert.Equal(t, want, v, "assignment %d", i)
	}

	got, err := m.GetExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.VisitsA)
	assert.Equal(t, int64(5), got.VisitsB)
}

func TestAssign_CustomSplitConformance(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping split conformance simulation in short mode")
	}

	a, m, exp := setupAssignor(t, store.PolicyCustomSplit)
	exp.SplitA = 30
	ctx := context.Background()

	const n = 100000
	for i := 0; i < n; i++ {
		_, _, err := a.Assign(ctx, exp, fmt.Sprintf("visitor-%d", i))
		require.NoError(t, err)
	}

	got, err := m.GetExperiment(ctx, exp.ID)
	require.NoError(t, err)
	fraction := float64(got.VisitsA) / float64(n)
	assert.InDelta(t, 0.30, fraction, 0.01)
}

func TestAssign_FiftyFiftyConformance(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping split conformance simulation in short mode")
	}

	a, m, exp := setupAssignor(t, store.PolicyFiftyFifty)
	ctx := context.Background()

	const n = 100000
	for i := 0; i < n; i++ {
		_, _, err := a.Assign(ctx, exp, fmt.Sprintf("visitor-%d", i))
		require.NoError(t, err)
	}

	got, err := m.GetExperiment(ctx, exp.ID)
	require.NoError(t, err)
	fraction := float64(got.VisitsA) / float64(n)
	assert.InDelta(t, 0.50, fraction, 0.01)
}

func TestAssign_CustomSplitBoundaries(t *testing.T) {
	for _, tc := range []struct {
		splitA int
		want   store.Variant
	}{
		{0, store.VariantB},
		{100, store.VariantA},
	} {
		a, _, exp := setupAssignor(t, store.PolicyCustomSplit)
		exp.SplitA = tc.splitA

		for i := 0; i < 50; i++ {
			v, _, err := a.Assign(context.Background(), exp, fmt.Sprintf("visitor-%d", i))
			require.NoError(t, err)
			assert.Equal(t, tc.want, v, "splitA=%d", tc.splitA)
		}
	}
}

func TestAssign_InsertRaceResolvedByReRead(t *testing.T) {
	m := store.NewMemory()
	exp := activeExperiment("exp-1", store.PolicyFiftyFifty)
	require.NoError(t, m.CreateExperiment(context.Background(), exp))

	// A competing writer lands between our lookup and our insert.
	lookups := 0
	stub := &stubStore{
		Store: m,
		getAssignment: func(ctx context.Context, experimentID, visitorID string) (*store.Assignment, error) {
			lookups++
			if lookups == 1 {
				return nil, store.ErrNotFound
			}
			return m.GetAssignment(ctx, experimentID, visitorID)
		},
		createAssignment: func(ctx context.Context, experimentID, visitorID string, v store.Variant) (*store.Assignment, error) {
			if _, err := m.CreateAssignment(ctx, experimentID, visitorID, store.VariantB); err != nil {
				return nil, err
			}
			return nil, store.ErrAlreadyExists
		},
	}

	a := NewAssignor(stub, nil)
	variant, isNew, err := a.Assign(context.Background(), exp, "visitor-1")
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, store.VariantB, variant)

	// The loser must not have bumped a counter.
	got, err := m.GetExperiment(context.Background(), exp.ID)
	require.NoError(t, err)
	assert.Zero(t, got.VisitsA+got.VisitsB)
}

func TestAssign_InsertFailureLeavesCountersUntouched(t *testing.T) {
	m := store.NewMemory()
	exp := activeExperiment("exp-1", store.PolicyFiftyFifty)
	require.NoError(t, m.CreateExperiment(context.Background(), exp))

	stub := &stubStore{
		Store: m,
		createAssignment: func(context.Context, string, string, store.Variant) (*store.Assignment, error) {
			return nil, eris.New("disk full")
		},
	}

	a := NewAssignor(stub, nil)
	_, _, err := a.Assign(context.Background(), exp, "visitor-1")
	require.Error(t, err)

	got, err := m.GetExperiment(context.Background(), exp.ID)
	require.NoError(t, err)
	assert.Zero(t, got.VisitsA+got.VisitsB)
}

func TestAssign_CounterFailureKeepsAssignment(t *testing.T) {
	m := store.NewMemory()
	exp := activeExperiment("exp-1", store.PolicyFiftyFifty)
	require.NoError(t, m.CreateExperiment(context.Background(), exp))

	stub := &stubStore{
		Store: m,
		incrementVisit: func(context.Context, string, store.Variant) error {
			return eris.New("transient")
		},
	}

	a := NewAssignor(stub, nil)
	variant, isNew, err := a.Assign(context.Background(), exp, "visitor-1")
	require.NoError(t, err)
	assert.True(t, isNew)

	// The visitor keeps their variant even though the counter drifted.
	got, err := m.GetAssignment(context.Background(), exp.ID, "visitor-1")
	require.NoError(t, err)
	assert.Equal(t, variant, got.Variant)
}
