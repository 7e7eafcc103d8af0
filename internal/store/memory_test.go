package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_AssignmentUniqueness(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	exp := testExperiment(StatusActive)
	require.NoError(t, m.CreateExperiment(ctx, exp))

	_, err := m.CreateAssignment(ctx, exp.ID, "v1", VariantA)
	require.NoError(t, err)
	_, err = m.CreateAssignment(ctx, exp.ID, "v1", VariantB)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestMemory_MarkConverted_Idempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	exp := testExperiment(StatusActive)
	require.NoError(t, m.CreateExperiment(ctx, exp))
	_, err := m.CreateAssignment(ctx, exp.ID, "v1", VariantA)
	require.NoError(t, err)

	first, err := m.MarkConverted(ctx, exp.ID, "v1", nil)
	require.NoError(t, err)
	assert.True(t, first)

	first, err = m.MarkConverted(ctx, exp.ID, "v1", nil)
	require.NoError(t, err)
	assert.False(t, first)
}

func TestMemory_ConcurrentIncrements(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	exp := testExperiment(StatusActive)
	require.NoError(t, m.CreateExperiment(ctx, exp))

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v := VariantA
			if i%2 == 1 {
				v = VariantB
			}
			assert.NoError(t, m.IncrementVisit(ctx, exp.ID, v))
		}(i)
	}
	wg.Wait()

	got, err := m.GetExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), got.VisitsA+got.VisitsB)
	assert.Equal(t, int64(n/2), got.VisitsA)
}

func TestMemory_ConditionalStatusUpdate(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	exp := testExperiment(StatusActive)
	require.NoError(t, m.CreateExperiment(ctx, exp))

	winner := VariantA
	require.NoError(t, m.UpdateExperimentStatus(ctx, exp.ID, StatusActive, StatusCompleted, &winner, nil))
	err := m.UpdateExperimentStatus(ctx, exp.ID, StatusActive, StatusCompleted, &winner, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_ReturnsCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	exp := testExperiment(StatusActive)
	require.NoError(t, m.CreateExperiment(ctx, exp))

	got, err := m.GetExperiment(ctx, exp.ID)
	require.NoError(t, err)
	got.VisitsA = 999

	fresh, err := m.GetExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Zero(t, fresh.VisitsA)
}

func TestMemory_AssignmentCounts(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	exp := testExperiment(StatusActive)
	require.NoError(t, m.CreateExperiment(ctx, exp))

	for _, tc := range []struct {
		visitor string
		variant Variant
		convert bool
	}{
		{"v1", VariantA, true},
		{"v2", VariantA, false},
		{"v3", VariantB, true},
	} {
		_, err := m.CreateAssignment(ctx, exp.ID, tc.visitor, tc.variant)
		require.NoError(t, err)
		if tc.convert {
			_, err := m.MarkConverted(ctx, exp.ID, tc.visitor, nil)
			require.NoError(t, err)
		}
	}

	counts, err := m.AssignmentCounts(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, Counts{VisitsA: 2, VisitsB: 1, ConversionsA: 1, ConversionsB: 1}, counts)
}
