package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded in-memory Store. It backs tests and the
// high-volume simulation paths where a database round trip per assignment
// would dominate.
type MemoryStore struct {
	mu          sync.Mutex
	experiments map[string]*Experiment
	assignments map[string]*Assignment // keyed by experimentID + "\x00" + visitorID
	order       []string               // creation order of experiment IDs
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		experiments: make(map[string]*Experiment),
		assignments: make(map[string]*Assignment),
	}
}

func assignmentKey(experimentID, visitorID string) string {
	return experimentID + "\x00" + visitorID
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) CreateExperiment(_ context.Context, exp *Experiment) error {
	if err := exp.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.experiments[exp.ID]; ok {
		return ErrAlreadyExists
	}
	now := time.Now()
	cp := *exp
	cp.CreatedAt = now
	cp.UpdatedAt = now
	if cp.Status == "" {
		cp.Status = StatusDraft
	}
	m.experiments[exp.ID] = &cp
	m.order = append(m.order, exp.ID)
	return nil
}

func (m *MemoryStore) GetExperiment(_ context.Context, id string) (*Experiment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.experiments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *exp
	return &cp, nil
}

func (m *MemoryStore) ListExperiments(_ context.Context) ([]*Experiment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Experiment, 0, len(m.order))
	for _, id := range m.order {
		cp := *m.experiments[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) ListActiveExperiments(_ context.Context) ([]*Experiment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Experiment
	for _, id := range m.order {
		if exp := m.experiments[id]; exp.Status == StatusActive {
			cp := *exp
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) UpdateExperimentStatus(_ context.Context, id string, from, to Status, winner *Variant, endDate *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.experiments[id]
	if !ok || exp.Status != from {
		return ErrNotFound
	}
	exp.Status = to
	now := time.Now()
	if to == StatusActive {
		exp.StartDate = &now
	}
	if winner != nil {
		w := *winner
		exp.WinnerVariant = &w
	}
	if endDate != nil {
		t := *endDate
		exp.EndDate = &t
	}
	exp.UpdatedAt = now
	return nil
}

func (m *MemoryStore) UpdateSnapshot(_ context.Context, id string, rateA, rateB float64, significant bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.experiments[id]
	if !ok {
		return ErrNotFound
	}
	exp.ConversionRateA = rateA
	exp.ConversionRateB = rateB
	exp.StatisticallySignificant = significant
	exp.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) SetCounters(_ context.Context, id string, c Counts) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.experiments[id]
	if !ok {
		return ErrNotFound
	}
	exp.VisitsA, exp.VisitsB = c.VisitsA, c.VisitsB
	exp.ConversionsA, exp.ConversionsB = c.ConversionsA, c.ConversionsB
	exp.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) GetAssignment(_ context.Context, experimentID, visitorID string) (*Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[assignmentKey(experimentID, visitorID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) CreateAssignment(_ context.Context, experimentID, visitorID string, v Variant) (*Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := assignmentKey(experimentID, visitorID)
	if _, ok := m.assignments[key]; ok {
		return nil, ErrAlreadyExists
	}
	a := &Assignment{
		ExperimentID: experimentID,
		VisitorID:    visitorID,
		Variant:      v,
		CreatedAt:    time.Now(),
	}
	m.assignments[key] = a
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) MarkConverted(_ context.Context, experimentID, visitorID string, value *float64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[assignmentKey(experimentID, visitorID)]
	if !ok {
		return false, ErrNotFound
	}
	if a.Converted {
		return false, nil
	}
	a.Converted = true
	now := time.Now()
	a.ConversionAt = &now
	if value != nil {
		v := *value
		a.ConversionValue = &v
	}
	return true, nil
}

func (m *MemoryStore) AssignmentCounts(_ context.Context, experimentID string) (Counts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var c Counts
	for _, a := range m.assignments {
		if a.ExperimentID != experimentID {
			continue
		}
		if a.Variant == VariantA {
			c.VisitsA++
			if a.Converted {
				c.ConversionsA++
			}
		} else {
			c.VisitsB++
			if a.Converted {
				c.ConversionsB++
			}
		}
	}
	return c, nil
}

func (m *MemoryStore) IncrementVisit(_ context.Context, experimentID string, v Variant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.experiments[experimentID]
	if !ok {
		return ErrNotFound
	}
	if v == VariantA {
		exp.VisitsA++
	} else {
		exp.VisitsB++
	}
	return nil
}

func (m *MemoryStore) IncrementConversion(_ context.Context, experimentID string, v Variant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.experiments[experimentID]
	if !ok {
		return ErrNotFound
	}
	if v == VariantA {
		exp.ConversionsA++
	} else {
		exp.ConversionsB++
	}
	return nil
}
