package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS experiments (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    url TEXT NOT NULL,
    match_type TEXT NOT NULL,
    policy TEXT NOT NULL,
    split_a INTEGER NOT NULL DEFAULT 50,
    variant_a TEXT NOT NULL,
    variant_b TEXT NOT NULL,
    minimum_sample_size INTEGER NOT NULL DEFAULT 0,
    confidence_level REAL NOT NULL DEFAULT 95,
    status TEXT NOT NULL DEFAULT 'draft',
    visits_a INTEGER NOT NULL DEFAULT 0,
    visits_b INTEGER NOT NULL DEFAULT 0,
    conversions_a INTEGER NOT NULL DEFAULT 0,
    conversions_b INTEGER NOT NULL DEFAULT 0,
    conversion_rate_a REAL NOT NULL DEFAULT 0,
    conversion_rate_b REAL NOT NULL DEFAULT 0,
    statistically_significant INTEGER NOT NULL DEFAULT 0,
    winner_variant TEXT,
    start_date INTEGER,
    end_date INTEGER,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_experiments_status ON experiments(status);

CREATE TABLE IF NOT EXISTS assignments (
    experiment_id TEXT NOT NULL REFERENCES experiments(id),
    visitor_id TEXT NOT NULL,
    variant TEXT NOT NULL,
    converted INTEGER NOT NULL DEFAULT 0,
    conversion_value REAL,
    conversion_at INTEGER,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (experiment_id, visitor_id)
);

CREATE INDEX IF NOT EXISTS idx_assignments_experiment ON assignments(experiment_id);
`

// Open opens (or creates) the database at dbPath and applies the schema.
func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "sqlite: apply schema")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for health checks.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) CreateExperiment(ctx context.Context, exp *Experiment) error {
	if err := exp.Validate(); err != nil {
		return err
	}
	now := time.Now()
	exp.CreatedAt = now
	exp.UpdatedAt = now
	if exp.Status == "" {
		exp.Status = StatusDraft
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO experiments (id, name, description, url, match_type, policy, split_a,
		    variant_a, variant_b, minimum_sample_size, confidence_level, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exp.ID, exp.Name, exp.Description, exp.URL, string(exp.MatchType), string(exp.Policy), exp.SplitA,
		exp.VariantA, exp.VariantB, exp.MinimumSampleSize, exp.ConfidenceLevel, string(exp.Status),
		now.Unix(), now.Unix(),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert experiment")
	}
	return nil
}

const experimentColumns = `id, name, description, url, match_type, policy, split_a,
	variant_a, variant_b, minimum_sample_size, confidence_level, status,
	visits_a, visits_b, conversions_a, conversions_b,
	conversion_rate_a, conversion_rate_b, statistically_significant,
	winner_variant, start_date, end_date, created_at, updated_at`

func scanExperiment(row interface{ Scan(...any) error }) (*Experiment, error) {
	var exp Experiment
	var winner sql.NullString
	var startDate, endDate sql.NullInt64
	var significant int
	var createdAt, updatedAt int64

	err := row.Scan(&exp.ID, &exp.Name, &exp.Description, &exp.URL, &exp.MatchType, &exp.Policy, &exp.SplitA,
		&exp.VariantA, &exp.VariantB, &exp.MinimumSampleSize, &exp.ConfidenceLevel, &exp.Status,
		&exp.VisitsA, &exp.VisitsB, &exp.ConversionsA, &exp.ConversionsB,
		&exp.ConversionRateA, &exp.ConversionRateB, &significant,
		&winner, &startDate, &endDate, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	exp.StatisticallySignificant = significant != 0
	if winner.Valid {
		w := Variant(winner.String)
		exp.WinnerVariant = &w
	}
	if startDate.Valid {
		t := time.Unix(startDate.Int64, 0)
		exp.StartDate = &t
	}
	if endDate.Valid {
		t := time.Unix(endDate.Int64, 0)
		exp.EndDate = &t
	}
	exp.CreatedAt = time.Unix(createdAt, 0)
	exp.UpdatedAt = time.Unix(updatedAt, 0)
	return &exp, nil
}

func (s *SQLiteStore) GetExperiment(ctx context.Context, id string) (*Experiment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+experimentColumns+` FROM experiments WHERE id = ?`, id)
	exp, err := scanExperiment(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get experiment")
	}
	return exp, nil
}

func (s *SQLiteStore) ListExperiments(ctx context.Context) ([]*Experiment, error) {
	return s.listExperiments(ctx, `SELECT `+experimentColumns+` FROM experiments ORDER BY created_at DESC`)
}

func (s *SQLiteStore) ListActiveExperiments(ctx context.Context) ([]*Experiment, error) {
	return s.listExperiments(ctx,
		`SELECT `+experimentColumns+` FROM experiments WHERE status = ? ORDER BY created_at`,
		string(StatusActive))
}

func (s *SQLiteStore) listExperiments(ctx context.Context, query string, args ...any) ([]*Experiment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list experiments")
	}
	defer rows.Close()

	var experiments []*Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan experiment")
		}
		experiments = append(experiments, exp)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate experiments")
	}
	return experiments, nil
}

func (s *SQLiteStore) UpdateExperimentStatus(ctx context.Context, id string, from, to Status, winner *Variant, endDate *time.Time) error {
	now := time.Now()

	var winnerVal sql.NullString
	if winner != nil {
		winnerVal = sql.NullString{String: string(*winner), Valid: true}
	}
	var endVal sql.NullInt64
	if endDate != nil {
		endVal = sql.NullInt64{Int64: endDate.Unix(), Valid: true}
	}

	var result sql.Result
	var err error
	if to == StatusActive {
		// Going active stamps the start date.
		result, err = s.db.ExecContext(ctx,
			`UPDATE experiments SET status = ?, start_date = ?, updated_at = ? WHERE id = ? AND status = ?`,
			string(to), now.Unix(), now.Unix(), id, string(from))
	} else {
		result, err = s.db.ExecContext(ctx,
			`UPDATE experiments SET status = ?, winner_variant = COALESCE(?, winner_variant),
			    end_date = COALESCE(?, end_date), updated_at = ?
			 WHERE id = ? AND status = ?`,
			string(to), winnerVal, endVal, now.Unix(), id, string(from))
	}
	if err != nil {
		return eris.Wrap(err, "sqlite: update experiment status")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) UpdateSnapshot(ctx context.Context, id string, rateA, rateB float64, significant bool) error {
	sig := 0
	if significant {
		sig = 1
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE experiments SET conversion_rate_a = ?, conversion_rate_b = ?,
		    statistically_significant = ?, updated_at = ? WHERE id = ?`,
		rateA, rateB, sig, time.Now().Unix(), id)
	if err != nil {
		return eris.Wrap(err, "sqlite: update snapshot")
	}
	return nil
}

func (s *SQLiteStore) SetCounters(ctx context.Context, id string, c Counts) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE experiments SET visits_a = ?, visits_b = ?, conversions_a = ?, conversions_b = ?, updated_at = ?
		 WHERE id = ?`,
		c.VisitsA, c.VisitsB, c.ConversionsA, c.ConversionsB, time.Now().Unix(), id)
	if err != nil {
		return eris.Wrap(err, "sqlite: set counters")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) GetAssignment(ctx context.Context, experimentID, visitorID string) (*Assignment, error) {
	var a Assignment
	var value sql.NullFloat64
	var convertedAt sql.NullInt64
	var converted int
	var createdAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT experiment_id, visitor_id, variant, converted, conversion_value, conversion_at, created_at
		 FROM assignments WHERE experiment_id = ? AND visitor_id = ?`,
		experimentID, visitorID,
	).Scan(&a.ExperimentID, &a.VisitorID, &a.Variant, &converted, &value, &convertedAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get assignment")
	}

	a.Converted = converted != 0
	if value.Valid {
		v := value.Float64
		a.ConversionValue = &v
	}
	if convertedAt.Valid {
		t := time.Unix(convertedAt.Int64, 0)
		a.ConversionAt = &t
	}
	a.CreatedAt = time.Unix(createdAt, 0)
	return &a, nil
}

func (s *SQLiteStore) CreateAssignment(ctx context.Context, experimentID, visitorID string, v Variant) (*Assignment, error) {
	now := time.Now()
	// ON CONFLICT DO NOTHING + RowsAffected beats check-then-insert: two
	// concurrent callers cannot both win the primary key.
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO assignments (experiment_id, visitor_id, variant, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(experiment_id, visitor_id) DO NOTHING`,
		experimentID, visitorID, string(v), now.Unix())
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert assignment")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: rows affected")
	}
	if affected == 0 {
		return nil, ErrAlreadyExists
	}
	return &Assignment{
		ExperimentID: experimentID,
		VisitorID:    visitorID,
		Variant:      v,
		CreatedAt:    time.Unix(now.Unix(), 0),
	}, nil
}

func (s *SQLiteStore) MarkConverted(ctx context.Context, experimentID, visitorID string, value *float64) (bool, error) {
	var valueVal sql.NullFloat64
	if value != nil {
		valueVal = sql.NullFloat64{Float64: *value, Valid: true}
	}
	// converted = 0 in the predicate makes the transition single-shot.
	result, err := s.db.ExecContext(ctx,
		`UPDATE assignments SET converted = 1, conversion_value = ?, conversion_at = ?
		 WHERE experiment_id = ? AND visitor_id = ? AND converted = 0`,
		valueVal, time.Now().Unix(), experimentID, visitorID)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: mark converted")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return affected == 1, nil
}

func (s *SQLiteStore) AssignmentCounts(ctx context.Context, experimentID string) (Counts, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT variant, COUNT(*), COALESCE(SUM(converted), 0)
		 FROM assignments WHERE experiment_id = ? GROUP BY variant`,
		experimentID)
	if err != nil {
		return Counts{}, eris.Wrap(err, "sqlite: assignment counts")
	}
	defer rows.Close()

	var c Counts
	for rows.Next() {
		var variant string
		var visits, conversions int64
		if err := rows.Scan(&variant, &visits, &conversions); err != nil {
			return Counts{}, eris.Wrap(err, "sqlite: scan counts")
		}
		switch Variant(variant) {
		case VariantA:
			c.VisitsA, c.ConversionsA = visits, conversions
		case VariantB:
			c.VisitsB, c.ConversionsB = visits, conversions
		}
	}
	if err := rows.Err(); err != nil {
		return Counts{}, eris.Wrap(err, "sqlite: iterate counts")
	}
	return c, nil
}

func (s *SQLiteStore) IncrementVisit(ctx context.Context, experimentID string, v Variant) error {
	return s.increment(ctx, experimentID, v, "visits_a", "visits_b")
}

func (s *SQLiteStore) IncrementConversion(ctx context.Context, experimentID string, v Variant) error {
	return s.increment(ctx, experimentID, v, "conversions_a", "conversions_b")
}

func (s *SQLiteStore) increment(ctx context.Context, experimentID string, v Variant, colA, colB string) error {
	col := colA
	if v == VariantB {
		col = colB
	}
	// Single atomic read-modify-write at the database; concurrent callers
	// never observe a stale count.
	result, err := s.db.ExecContext(ctx,
		`UPDATE experiments SET `+col+` = `+col+` + 1, updated_at = ? WHERE id = ?`,
		time.Now().Unix(), experimentID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: increment %s", col)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
