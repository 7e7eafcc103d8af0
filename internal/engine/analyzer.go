package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/splitpilot/splitpilot/internal/stats"
	"github.com/splitpilot/splitpilot/internal/store"
)

// Analyzer periodically sweeps active experiments, refreshes their
// statistics snapshot and stops the ones that reached significance.
type Analyzer struct {
	store    store.Store
	params   stats.Params
	interval time.Duration
	parallel int
	log      *zap.Logger
	now      func() time.Time
}

func NewAnalyzer(s store.Store, params stats.Params, interval time.Duration, log *zap.Logger) *Analyzer {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Analyzer{
		store:    s,
		params:   params,
		interval: interval,
		parallel: 4,
		log:      log,
		now:      time.Now,
	}
}

// Run sweeps on a fixed interval until the context is canceled.
func (a *Analyzer) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.Sweep(ctx); err != nil {
				a.log.Error("sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep analyzes every active experiment once. A failure analyzing one
// experiment is logged and does not abort the others; only a failure to
// list experiments at all is returned.
func (a *Analyzer) Sweep(ctx context.Context) error {
	experiments, err := a.store.ListActiveExperiments(ctx)
	if err != nil {
		return eris.Wrap(err, "analyzer: list active experiments")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.parallel)
	for _, exp := range experiments {
		exp := exp
		g.Go(func() error {
			if err := a.analyzeExperiment(ctx, exp); err != nil {
				a.log.Error("experiment analysis failed",
					zap.String("experiment_id", exp.ID),
					zap.String("name", exp.Name),
					zap.Error(err))
			}
			return nil
		})
	}
	return g.Wait()
}

func (a *Analyzer) analyzeExperiment(ctx context.Context, exp *store.Experiment) error {
	result := analyze(exp, a.params)

	if err := a.store.UpdateSnapshot(ctx, exp.ID, result.RateA, result.RateB, result.Significant); err != nil {
		return eris.Wrap(err, "update snapshot")
	}

	winner, stop := stopDecision(exp, result)
	if !stop {
		return nil
	}

	endDate := a.now()
	err := a.store.UpdateExperimentStatus(ctx, exp.ID, store.StatusActive, store.StatusCompleted, &winner, &endDate)
	if errors.Is(err, store.ErrNotFound) {
		// A concurrent sweep or a manual stop got there first.
		return nil
	}
	if err != nil {
		return eris.Wrap(err, "complete experiment")
	}

	a.log.Info("experiment auto-stopped",
		zap.String("experiment_id", exp.ID),
		zap.String("name", exp.Name),
		zap.String("winner", string(winner)),
		zap.Float64("p_value", result.PValue))
	return nil
}

// stopDecision returns the winning variant when the experiment should be
// stopped: the recommendation names a winner, the result is significant,
// and both arms cleared the experiment's own minimum sample size.
func stopDecision(exp *store.Experiment, result stats.Result) (store.Variant, bool) {
	if !result.Significant {
		return "", false
	}
	minVisits := exp.VisitsA
	if exp.VisitsB < minVisits {
		minVisits = exp.VisitsB
	}
	if minVisits < int64(exp.MinimumSampleSize) {
		return "", false
	}
	switch result.Recommendation {
	case stats.StopWinnerA:
		return store.VariantA, true
	case stats.StopWinnerB:
		return store.VariantB, true
	default:
		return "", false
	}
}
