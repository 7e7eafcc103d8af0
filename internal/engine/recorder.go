package engine

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/splitpilot/splitpilot/internal/store"
)

// ErrAssignmentNotFound is returned when a conversion arrives for a visitor
// that was never assigned. The recorder never fabricates an assignment.
var ErrAssignmentNotFound = errors.New("assignment not found")

// Recorder marks assignments as converted and keeps the conversion counters
// in step. Conversion is idempotent: repeat calls for the same visitor are
// no-ops, not double counts.
type Recorder struct {
	store store.Store
	log   *zap.Logger
}

func NewRecorder(s store.Store, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{store: s, log: log}
}

func (r *Recorder) RecordConversion(ctx context.Context, experimentID, visitorID string, value *float64) error {
	assignment, err := r.store.GetAssignment(ctx, experimentID, visitorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return eris.Wrapf(ErrAssignmentNotFound, "experiment %s visitor %s", experimentID, visitorID)
		}
		return eris.Wrap(err, "recorder: lookup assignment")
	}

	first, err := r.store.MarkConverted(ctx, experimentID, visitorID, value)
	if err != nil {
		return eris.Wrap(err, "recorder: mark converted")
	}
	if !first {
		return nil
	}

	if err := r.store.IncrementConversion(ctx, experimentID, assignment.Variant); err != nil {
		r.log.Warn("conversion counter increment failed; conversion kept",
			zap.String("experiment_id", experimentID),
			zap.String("variant", string(assignment.Variant)),
			zap.Error(err))
	}
	// Statistics are recomputed on read, so nothing to refresh here.
	return nil
}
