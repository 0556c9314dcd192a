package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"
)

// Iteration outcomes as stored in the ledger.
const (
	OutcomeRunning   = "running"
	OutcomeCompleted = "completed"
	OutcomeConverged = "converged"
	OutcomeFailed    = "failed"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS experiments (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		config_path TEXT NOT NULL,
		encoder TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS iterations (
		id TEXT PRIMARY KEY,
		experiment_id TEXT NOT NULL,
		iteration INTEGER NOT NULL,
		phase TEXT NOT NULL,
		pairs INTEGER DEFAULT 0,
		refined INTEGER DEFAULT 0,
		update_rate REAL DEFAULT 0,
		outcome TEXT DEFAULT 'running',
		error TEXT,
		started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		finished_at TIMESTAMP,
		FOREIGN KEY (experiment_id) REFERENCES experiments(id)
	);

	-- step_runs stores one row per external or in-process step of an iteration
	CREATE TABLE IF NOT EXISTS step_runs (
		id TEXT PRIMARY KEY,
		iteration_id TEXT NOT NULL,
		step TEXT NOT NULL,
		argv TEXT,
		exit_code INTEGER DEFAULT 0,
		duration_ms INTEGER,
		error TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (iteration_id) REFERENCES iterations(id)
	);

	CREATE INDEX IF NOT EXISTS idx_iterations_experiment ON iterations(experiment_id, iteration);
	CREATE INDEX IF NOT EXISTS idx_step_runs_iteration ON step_runs(iteration_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Experiment is a row from the experiments table.
type Experiment struct {
	ID         string
	Name       string
	ConfigPath string
	Encoder    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IterationResult is what a finished iteration reports.
type IterationResult struct {
	Pairs      int
	Refined    int
	UpdateRate float64
	Outcome    string
	Err        string
}

// IterationEntry is a row from the iterations table.
type IterationEntry struct {
	ID         string
	Iteration  int
	Phase      string
	Pairs      int
	Refined    int
	UpdateRate float64
	Outcome    string
	Err        string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// StepRun is one executed step.
type StepRun struct {
	IterationID string
	Step        string
	Argv        []string
	ExitCode    int
	Duration    time.Duration
	Err         string
}

// EnsureExperiment returns the ID of the named experiment, creating it on
// first use.
func (s *Store) EnsureExperiment(ctx context.Context, name, configPath, encoder string) (string, error) {
	name = normalizeName(name)
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM experiments WHERE name = ?`, name).Scan(&id)
	if err == nil {
		_, err = s.db.ExecContext(ctx,
			`UPDATE experiments SET config_path = ?, encoder = ?, updated_at = ? WHERE id = ?`,
			configPath, encoder, time.Now(), id)
		return id, err
	}
	if err != sql.ErrNoRows {
		return "", err
	}

	id = uuid.New().String()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO experiments (id, name, config_path, encoder, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, name, configPath, encoder, time.Now(), time.Now())
	return id, err
}

// StartIteration records the start of an iteration and returns its ID.
func (s *Store) StartIteration(ctx context.Context, experimentID string, iteration int, phase string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO iterations (id, experiment_id, iteration, phase, outcome, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, experimentID, iteration, phase, OutcomeRunning, time.Now())
	return id, err
}

func (s *Store) FinishIteration(ctx context.Context, iterationID string, res IterationResult) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE iterations SET pairs = ?, refined = ?, update_rate = ?, outcome = ?, error = ?, finished_at = ? WHERE id = ?`,
		res.Pairs, res.Refined, res.UpdateRate, res.Outcome, res.Err, time.Now(), iterationID)
	return err
}

func (s *Store) RecordStep(ctx context.Context, run StepRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO step_runs (id, iteration_id, step, argv, exit_code, duration_ms, error) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), run.IterationID, run.Step, strings.Join(run.Argv, " "), run.ExitCode, run.Duration.Milliseconds(), run.Err)
	return err
}

// ListExperiments returns all experiments ordered by most recently updated.
func (s *Store) ListExperiments(ctx context.Context) ([]Experiment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, config_path, encoder, created_at, updated_at FROM experiments ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Experiment
	for rows.Next() {
		var e Experiment
		if err := rows.Scan(&e.ID, &e.Name, &e.ConfigPath, &e.Encoder, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		results = append(results, e)
	}

	return results, rows.Err()
}

// ListIterations returns the iterations of the named experiment in order.
func (s *Store) ListIterations(ctx context.Context, experiment string) ([]IterationEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.iteration, i.phase, i.pairs, i.refined, i.update_rate, i.outcome, COALESCE(i.error, ''), i.started_at, i.finished_at
		FROM iterations i JOIN experiments e ON e.id = i.experiment_id
		WHERE e.name = ?
		ORDER BY i.started_at, i.iteration`,
		normalizeName(experiment))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []IterationEntry
	for rows.Next() {
		var e IterationEntry
		var finished sql.NullTime
		if err := rows.Scan(&e.ID, &e.Iteration, &e.Phase, &e.Pairs, &e.Refined, &e.UpdateRate, &e.Outcome, &e.Err, &e.StartedAt, &finished); err != nil {
			return nil, err
		}
		if finished.Valid {
			t := finished.Time
			e.FinishedAt = &t
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// Stats summarises the ledger.
type Stats struct {
	Experiments int
	Iterations  int
	Converged   int
	Failed      int
	StepRuns    int
	StepTime    time.Duration
}

func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM experiments),
			(SELECT COUNT(*) FROM iterations),
			(SELECT COUNT(*) FROM iterations WHERE outcome = ?),
			(SELECT COUNT(*) FROM iterations WHERE outcome = ?),
			(SELECT COUNT(*) FROM step_runs)`,
		OutcomeConverged, OutcomeFailed).Scan(
		&stats.Experiments,
		&stats.Iterations,
		&stats.Converged,
		&stats.Failed,
		&stats.StepRuns,
	)
	if err != nil {
		return nil, err
	}

	var ms int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(duration_ms), 0) FROM step_runs`).Scan(&ms); err != nil {
		return nil, err
	}
	stats.StepTime = time.Duration(ms) * time.Millisecond
	return stats, nil
}

// DeleteExperiment removes an experiment with its iterations and step runs.
// It returns the number of iterations removed.
func (s *Store) DeleteExperiment(ctx context.Context, name string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx, `SELECT id FROM experiments WHERE name = ?`, normalizeName(name)).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("experiment not found: %s", name)
	}
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM step_runs WHERE iteration_id IN (SELECT id FROM iterations WHERE experiment_id = ?)`, id); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM iterations WHERE experiment_id = ?`, id)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM experiments WHERE id = ?`, id); err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// normalizeName trims whitespace and applies Unicode NFC normalization so
// experiment names compare consistently.
func normalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}
