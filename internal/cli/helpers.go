package cli

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/splitpilot/splitpilot/internal/stats"
	"github.com/splitpilot/splitpilot/internal/store"
)

// withStore opens the database, executes the function, and handles cleanup.
func withStore(fn func(*store.SQLiteStore) error) error {
	s, err := store.Open(cfg.DB.Path)
	if err != nil {
		return eris.Wrap(err, "open database")
	}
	defer s.Close()

	return fn(s)
}

// resolveExperiment finds an experiment by exact name or by ID, preferring
// the name. Commands take names for ergonomics; IDs always work.
func resolveExperiment(ctx context.Context, s store.Store, nameOrID string) (*store.Experiment, error) {
	experiments, err := s.ListExperiments(ctx)
	if err != nil {
		return nil, err
	}
	for _, exp := range experiments {
		if exp.Name == nameOrID {
			return exp, nil
		}
	}
	for _, exp := range experiments {
		if exp.ID == nameOrID {
			return exp, nil
		}
	}
	return nil, eris.Wrapf(store.ErrNotFound, "experiment %q", nameOrID)
}

func statsParams() stats.Params {
	p := stats.DefaultParams()
	if cfg.Stats.MinimumDetectableEffect > 0 {
		p.MinimumDetectableEffect = cfg.Stats.MinimumDetectableEffect
	}
	if cfg.Stats.Power > 0 {
		p.Power = cfg.Stats.Power
	}
	return p
}
