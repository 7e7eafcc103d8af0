package engine

import (
	"context"
	"errors"
	"math/rand/v2"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/splitpilot/splitpilot/internal/store"
)

// Assignor resolves a visitor's variant for an experiment. Assignment is
// idempotent: once a visitor has a variant it never changes, no matter how
// the random draw would land on a later call.
type Assignor struct {
	store store.Store
	log   *zap.Logger
	// rng returns a uniform draw in [0,1). Injectable for tests; the draw
	// mechanism does not need to be reproducible because only the persisted
	// outcome matters.
	rng func() float64
}

func NewAssignor(s store.Store, log *zap.Logger) *Assignor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Assignor{store: s, log: log, rng: rand.Float64}
}

// Assign returns the visitor's variant and whether this call created it.
//
// The store's uniqueness constraint, not a check-then-insert, is what makes
// this safe under concurrency: on ErrAlreadyExists the existing row is
// re-read and returned, invisible to the caller. The visit counter is
// incremented only after a successful insert, so a failed insert never
// drifts the counters; a failed increment after a successful insert leaves
// a valid assignment and tolerable drift that a recount from raw rows
// repairs.
func (a *Assignor) Assign(ctx context.Context, exp *store.Experiment, visitorID string) (store.Variant, bool, error) {
	existing, err := a.store.GetAssignment(ctx, exp.ID, visitorID)
	if err == nil {
		return existing.Variant, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", false, eris.Wrap(err, "assignor: lookup assignment")
	}

	variant := a.pickVariant(exp)

	if _, err := a.store.CreateAssignment(ctx, exp.ID, visitorID, variant); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			// Lost the insert race; the winner's variant stands.
			existing, err := a.store.GetAssignment(ctx, exp.ID, visitorID)
			if err != nil {
				return "", false, eris.Wrap(err, "assignor: re-read after conflict")
			}
			return existing.Variant, false, nil
		}
		return "", false, eris.Wrap(err, "assignor: create assignment")
	}

	if err := a.store.IncrementVisit(ctx, exp.ID, variant); err != nil {
		a.log.Warn("visit counter increment failed; assignment kept",
			zap.String("experiment_id", exp.ID),
			zap.String("variant", string(variant)),
			zap.Error(err))
	}
	return variant, true, nil
}

func (a *Assignor) pickVariant(exp *store.Experiment) store.Variant {
	switch exp.Policy {
	case store.PolicyAlternating:
		// Parity of the running visit total. Best-effort balance only: two
		// concurrent requests can read the same parity and both land on the
		// same variant, so the drift bound of 1 holds only for serial
		// traffic.
		if (exp.VisitsA+exp.VisitsB)%2 == 0 {
			return store.VariantA
		}
		return store.VariantB
	case store.PolicyCustomSplit:
		if a.rng()*100 < float64(exp.SplitA) {
			return store.VariantA
		}
		return store.VariantB
	default: // fifty_fifty
		if a.rng() < 0.5 {
			return store.VariantA
		}
		return store.VariantB
	}
}
