package engine

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/splitpilot/splitpilot/internal/stats"
	"github.com/splitpilot/splitpilot/internal/store"
)

// Metrics computes the live statistical readout for one experiment from its
// current counters. The experiment's own confidence level overrides the
// one in params.
func Metrics(ctx context.Context, s store.Store, experimentID string, params stats.Params) (stats.Result, error) {
	exp, err := s.GetExperiment(ctx, experimentID)
	if err != nil {
		return stats.Result{}, eris.Wrapf(err, "metrics: get experiment %s", experimentID)
	}
	return analyze(exp, params), nil
}

func analyze(exp *store.Experiment, params stats.Params) stats.Result {
	if exp.ConfidenceLevel > 0 {
		params.ConfidenceLevel = exp.ConfidenceLevel
	}
	return stats.Calculate(exp.VisitsA, exp.ConversionsA, exp.VisitsB, exp.ConversionsB, params)
}
