package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gkobilansky/ga4-goat/internal/schedule"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS experiments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT UNIQUE NOT NULL,
    property_id TEXT NOT NULL,
    state TEXT NOT NULL DEFAULT 'running',
    auto_execute INTEGER NOT NULL DEFAULT 0,
    start_date INTEGER NOT NULL,
    end_date INTEGER,
    last_executed_at INTEGER,
    schedule_config TEXT,
    evaluation_config TEXT NOT NULL,
    variants TEXT NOT NULL,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    updated_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE INDEX IF NOT EXISTS idx_experiments_auto ON experiments(state, auto_execute);

CREATE TABLE IF NOT EXISTS executions (
    id TEXT PRIMARY KEY,
    experiment_id INTEGER NOT NULL,
    status TEXT NOT NULL,
    trigger_kind TEXT NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    completed_at INTEGER,
    FOREIGN KEY (experiment_id) REFERENCES experiments(id)
);

CREATE INDEX IF NOT EXISTS idx_executions_window ON executions(experiment_id, created_at, status);

CREATE TABLE IF NOT EXISTS results (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    experiment_id INTEGER NOT NULL,
    execution_id TEXT NOT NULL DEFAULT '',
    verdict TEXT NOT NULL,
    variants TEXT NOT NULL,
    ai_evaluation TEXT,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (experiment_id) REFERENCES experiments(id)
);

CREATE INDEX IF NOT EXISTS idx_results_experiment ON results(experiment_id, created_at);

CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const experimentColumns = `id, name, property_id, state, auto_execute, start_date, end_date, last_executed_at,
	schedule_config, evaluation_config, variants, created_at, updated_at`

func (s *SQLiteStore) CreateExperiment(ctx context.Context, exp *Experiment) (*Experiment, error) {
	scheduleJSON, err := marshalOptional(exp.Schedule)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schedule: %w", err)
	}
	evalJSON, err := json.Marshal(exp.Evaluation)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal evaluation config: %w", err)
	}
	variantsJSON, err := json.Marshal(exp.Variants)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal variants: %w", err)
	}

	state := exp.State
	if state == "" {
		state = StateRunning
	}

	now := time.Now().Unix()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO experiments (name, property_id, state, auto_execute, start_date, end_date,
		 schedule_config, evaluation_config, variants, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exp.Name, exp.PropertyID, string(state), exp.AutoExecute, exp.StartDate.Unix(), unixOrNull(exp.EndDate),
		scheduleJSON, string(evalJSON), string(variantsJSON), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert experiment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return s.GetExperiment(ctx, id)
}

func (s *SQLiteStore) GetExperiment(ctx context.Context, id int64) (*Experiment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+experimentColumns+` FROM experiments WHERE id = ?`, id)
	exp, err := scanExperiment(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}
	return exp, nil
}

func (s *SQLiteStore) GetExperimentByName(ctx context.Context, name string) (*Experiment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+experimentColumns+` FROM experiments WHERE name = ?`, name)
	exp, err := scanExperiment(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}
	return exp, nil
}

func (s *SQLiteStore) ListExperiments(ctx context.Context) ([]*Experiment, error) {
	return s.queryExperiments(ctx, `SELECT `+experimentColumns+` FROM experiments ORDER BY created_at DESC, id DESC`)
}

// ListAutoExecutable returns running experiments with auto-execution on.
// Schedule checks are left to the caller.
func (s *SQLiteStore) ListAutoExecutable(ctx context.Context) ([]*Experiment, error) {
	return s.queryExperiments(ctx,
		`SELECT `+experimentColumns+` FROM experiments
		 WHERE state = ? AND auto_execute = 1 AND schedule_config IS NOT NULL
		 ORDER BY id`, string(StateRunning))
}

func (s *SQLiteStore) queryExperiments(ctx context.Context, query string, args ...any) ([]*Experiment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	var exps []*Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan experiment: %w", err)
		}
		exps = append(exps, exp)
	}
	return exps, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExperiment(sc scanner) (*Experiment, error) {
	var exp Experiment
	var startDate, createdAt, updatedAt int64
	var endDate, lastExecutedAt sql.NullInt64
	var scheduleJSON sql.NullString
	var evalJSON, variantsJSON string

	err := sc.Scan(&exp.ID, &exp.Name, &exp.PropertyID, &exp.State, &exp.AutoExecute, &startDate, &endDate,
		&lastExecutedAt, &scheduleJSON, &evalJSON, &variantsJSON, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if scheduleJSON.Valid && scheduleJSON.String != "" {
		var cfg schedule.Config
		if err := json.Unmarshal([]byte(scheduleJSON.String), &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal schedule: %w", err)
		}
		exp.Schedule = &cfg
	}
	if err := json.Unmarshal([]byte(evalJSON), &exp.Evaluation); err != nil {
		return nil, fmt.Errorf("failed to unmarshal evaluation config: %w", err)
	}
	if err := json.Unmarshal([]byte(variantsJSON), &exp.Variants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variants: %w", err)
	}

	exp.StartDate = time.Unix(startDate, 0)
	exp.EndDate = timeOrNil(endDate)
	exp.LastExecutedAt = timeOrNil(lastExecutedAt)
	exp.CreatedAt = time.Unix(createdAt, 0)
	exp.UpdatedAt = time.Unix(updatedAt, 0)

	return &exp, nil
}

func (s *SQLiteStore) UpdateExperimentState(ctx context.Context, id int64, state TestState) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE experiments SET state = ?, updated_at = ? WHERE id = ?`,
		string(state), time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update experiment state: %w", err)
	}
	return expectRow(result)
}

func (s *SQLiteStore) MarkExecuted(ctx context.Context, id int64, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE experiments SET last_executed_at = ?, updated_at = ? WHERE id = ?`,
		at.Unix(), time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark experiment executed: %w", err)
	}
	return expectRow(result)
}

func (s *SQLiteStore) DeleteExperiment(ctx context.Context, id int64) error {
	// First delete related history
	if _, err := s.db.ExecContext(ctx, `DELETE FROM results WHERE experiment_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete results: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM executions WHERE experiment_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete executions: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM experiments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete experiment: %w", err)
	}
	return expectRow(result)
}

func (s *SQLiteStore) CreateExecution(ctx context.Context, experimentID int64, trigger Trigger, at time.Time) (*Execution, error) {
	exec := &Execution{
		ID:           uuid.NewString(),
		ExperimentID: experimentID,
		Status:       ExecutionRunning,
		Trigger:      trigger,
		CreatedAt:    time.Unix(at.Unix(), 0),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO executions (id, experiment_id, status, trigger_kind, created_at) VALUES (?, ?, ?, ?, ?)`,
		exec.ID, experimentID, string(exec.Status), string(trigger), at.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert execution: %w", err)
	}
	return exec, nil
}

func (s *SQLiteStore) FinishExecution(ctx context.Context, id string, status ExecutionStatus, errMsg string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE executions SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(status), errMsg, at.Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish execution: %w", err)
	}
	return expectRow(result)
}

// HasExecution reports whether an execution with one of statuses was
// created in [from, to].
func (s *SQLiteStore) HasExecution(ctx context.Context, experimentID int64, from, to time.Time, statuses ...ExecutionStatus) (bool, error) {
	query := `SELECT COUNT(*) FROM executions WHERE experiment_id = ? AND created_at >= ? AND created_at <= ?`
	args := []any{experimentID, from.Unix(), to.Unix()}
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += ` AND status IN (` + strings.Join(placeholders, ", ") + `)`
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to query executions: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListExecutions(ctx context.Context, experimentID int64) ([]*Execution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, experiment_id, status, trigger_kind, error, created_at, completed_at
		 FROM executions WHERE experiment_id = ? ORDER BY created_at DESC`,
		experimentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var execs []*Execution
	for rows.Next() {
		var e Execution
		var createdAt int64
		var completedAt sql.NullInt64
		if err := rows.Scan(&e.ID, &e.ExperimentID, &e.Status, &e.Trigger, &e.Error, &createdAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		e.CreatedAt = time.Unix(createdAt, 0)
		e.CompletedAt = timeOrNil(completedAt)
		execs = append(execs, &e)
	}
	return execs, rows.Err()
}

func (s *SQLiteStore) SaveResult(ctx context.Context, r *Result) (*Result, error) {
	verdictJSON, err := json.Marshal(r.Verdict)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal verdict: %w", err)
	}
	variantsJSON, err := json.Marshal(r.Variants)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal variants: %w", err)
	}

	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var ai sql.NullString
	if r.AIEvaluation != nil {
		ai = sql.NullString{String: *r.AIEvaluation, Valid: true}
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO results (experiment_id, execution_id, verdict, variants, ai_evaluation, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ExperimentID, r.ExecutionID, string(verdictJSON), string(variantsJSON), ai, createdAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert result: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	saved := *r
	saved.ID = id
	saved.CreatedAt = time.Unix(createdAt.Unix(), 0)
	return &saved, nil
}

func (s *SQLiteStore) LatestResult(ctx context.Context, experimentID int64) (*Result, error) {
	results, err := s.queryResults(ctx, `WHERE experiment_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`, experimentID)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, ErrNotFound
	}
	return results[0], nil
}

func (s *SQLiteStore) ListResults(ctx context.Context, experimentID int64) ([]*Result, error) {
	return s.queryResults(ctx, `WHERE experiment_id = ? ORDER BY created_at DESC, id DESC`, experimentID)
}

func (s *SQLiteStore) queryResults(ctx context.Context, where string, args ...any) ([]*Result, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, experiment_id, execution_id, verdict, variants, ai_evaluation, created_at FROM results `+where,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []*Result
	for rows.Next() {
		var r Result
		var verdictJSON, variantsJSON string
		var ai sql.NullString
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.ExperimentID, &r.ExecutionID, &verdictJSON, &variantsJSON, &ai, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if err := json.Unmarshal([]byte(verdictJSON), &r.Verdict); err != nil {
			return nil, fmt.Errorf("failed to unmarshal verdict: %w", err)
		}
		if err := json.Unmarshal([]byte(variantsJSON), &r.Variants); err != nil {
			return nil, fmt.Errorf("failed to unmarshal variants: %w", err)
		}
		if ai.Valid {
			text := ai.String
			r.AIEvaluation = &text
		}
		r.CreatedAt = time.Unix(createdAt, 0)
		results = append(results, &r)
	}
	return results, rows.Err()
}

func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting: %w", err)
	}
	return value, nil
}

func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

// DB returns the underlying database connection for health checks
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func expectRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func marshalOptional(v *schedule.Config) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unixOrNull(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func timeOrNil(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}
