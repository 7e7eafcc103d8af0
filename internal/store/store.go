package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidConfig = errors.New("invalid experiment config")
)

// Store is the persistence boundary for experiments and assignments.
//
// Counter increments are atomic at the store (single read-modify-write, not
// a round trip through the caller), and status transitions are conditional
// on the current status so concurrent writers cannot double-apply them.
// Assignment uniqueness on (experiment, visitor) is enforced here, not by a
// check-then-insert in the caller.
type Store interface {
	// Experiments
	CreateExperiment(ctx context.Context, exp *Experiment) error
	GetExperiment(ctx context.Context, id string) (*Experiment, error)
	ListExperiments(ctx context.Context) ([]*Experiment, error)
	ListActiveExperiments(ctx context.Context) ([]*Experiment, error)
	// UpdateExperimentStatus transitions from -> to; returns ErrNotFound when
	// the experiment does not exist or is no longer in the `from` status.
	UpdateExperimentStatus(ctx context.Context, id string, from, to Status, winner *Variant, endDate *time.Time) error
	// UpdateSnapshot caches the latest derived rates and significance flag.
	UpdateSnapshot(ctx context.Context, id string, rateA, rateB float64, significant bool) error
	// SetCounters overwrites the rolling counters, used when reconciling from
	// raw assignment rows.
	SetCounters(ctx context.Context, id string, c Counts) error

	// Assignments
	GetAssignment(ctx context.Context, experimentID, visitorID string) (*Assignment, error)
	// CreateAssignment fails with ErrAlreadyExists when the pair exists; it
	// never overwrites.
	CreateAssignment(ctx context.Context, experimentID, visitorID string, v Variant) (*Assignment, error)
	// MarkConverted applies the false->true conversion transition at most
	// once and reports whether this call was the first conversion.
	MarkConverted(ctx context.Context, experimentID, visitorID string, value *float64) (bool, error)
	AssignmentCounts(ctx context.Context, experimentID string) (Counts, error)

	// Counters
	IncrementVisit(ctx context.Context, experimentID string, v Variant) error
	IncrementConversion(ctx context.Context, experimentID string, v Variant) error

	// Lifecycle
	Close() error
}
