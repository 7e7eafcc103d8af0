package engine

import (
	"context"
	"time"

	"github.com/splitpilot/splitpilot/internal/store"
)

// stubStore wraps another Store and lets individual tests inject failures
// or canned responses per method.
type stubStore struct {
	store.Store

	listActive          func(ctx context.Context) ([]*store.Experiment, error)
	getAssignment       func(ctx context.Context, experimentID, visitorID string) (*store.Assignment, error)
	createAssignment    func(ctx context.Context, experimentID, visitorID string, v store.Variant) (*store.Assignment, error)
	incrementVisit      func(ctx context.Context, experimentID string, v store.Variant) error
	incrementConversion func(ctx context.Context, experimentID string, v store.Variant) error
	markConverted       func(ctx context.Context, experimentID, visitorID string, value *float64) (bool, error)
	updateSnapshot      func(ctx context.Context, id string, rateA, rateB float64, significant bool) error
	updateStatus        func(ctx context.Context, id string, from, to store.Status, winner *store.Variant, endDate *time.Time) error
}

func (s *stubStore) ListActiveExperiments(ctx context.Context) ([]*store.Experiment, error) {
	if s.listActive != nil {
		return s.listActive(ctx)
	}
	return s.Store.ListActiveExperiments(ctx)
}

func (s *stubStore) GetAssignment(ctx context.Context, experimentID, visitorID string) (*store.Assignment, error) {
	if s.getAssignment != nil {
		return s.getAssignment(ctx, experimentID, visitorID)
	}
	return s.Store.GetAssignment(ctx, experimentID, visitorID)
}

func (s *stubStore) CreateAssignment(ctx context.Context, experimentID, visitorID string, v store.Variant) (*store.Assignment, error) {
	if s.createAssignment != nil {
		return s.createAssignment(ctx, experimentID, visitorID, v)
	}
	return s.Store.CreateAssignment(ctx, experimentID, visitorID, v)
}

func (s *stubStore) IncrementVisit(ctx context.Context, experimentID string, v store.Variant) error {
	if s.incrementVisit != nil {
		return s.incrementVisit(ctx, experimentID, v)
	}
	return s.Store.IncrementVisit(ctx, experimentID, v)
}

func (s *stubStore) IncrementConversion(ctx context.Context, experimentID string, v store.Variant) error {
	if s.incrementConversion != nil {
		return s.incrementConversion(ctx, experimentID, v)
	}
	return s.Store.IncrementConversion(ctx, experimentID, v)
}

func (s *stubStore) MarkConverted(ctx context.Context, experimentID, visitorID string, value *float64) (bool, error) {
	if s.markConverted != nil {
		return s.markConverted(ctx, experimentID, visitorID, value)
	}
	return s.Store.MarkConverted(ctx, experimentID, visitorID, value)
}

func (s *stubStore) UpdateSnapshot(ctx context.Context, id string, rateA, rateB float64, significant bool) error {
	if s.updateSnapshot != nil {
		return s.updateSnapshot(ctx, id, rateA, rateB, significant)
	}
	return s.Store.UpdateSnapshot(ctx, id, rateA, rateB, significant)
}

func (s *stubStore) UpdateExperimentStatus(ctx context.Context, id string, from, to store.Status, winner *store.Variant, endDate *time.Time) error {
	if s.updateStatus != nil {
		return s.updateStatus(ctx, id, from, to, winner, endDate)
	}
	return s.Store.UpdateExperimentStatus(ctx, id, from, to, winner, endDate)
}

func activeExperiment(id string, policy store.Policy) *store.Experiment {
	return &store.Experiment{
		ID:              id,
		Name:            "exp-" + id,
		URL:             "/",
		MatchType:       store.MatchExact,
		Policy:          policy,
		SplitA:          50,
		VariantA:        "Ship Faster",
		VariantB:        "Build Better",
		ConfidenceLevel: 95,
		Status:          store.StatusActive,
	}
}
