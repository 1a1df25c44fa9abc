package run

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/moneta-labs/moneta/errors"
)

// List limits for ListRecent. Callers asking for more than MaxListLimit
// get MaxListLimit; callers asking for less than one get an error.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ErrInvalidTransition reports a status update whose precondition no
// longer held: the run had already moved past the expected status.
// Losing this race is normal under concurrent writers; callers log it
// and drop their write.
var ErrInvalidTransition = errors.New("invalid run transition")

// IsInvalidTransition checks if an error is or wraps ErrInvalidTransition
func IsInvalidTransition(err error) bool {
	return err != nil && errors.Is(err, ErrInvalidTransition)
}

// Store handles persistence of analysis runs
type Store struct {
	db *sql.DB
}

// NewStore creates a new run store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Ping verifies the backing database is reachable
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.WrapServiceUnavailable(err, "run store unreachable")
	}
	return nil
}

// Insert adds a new run to the database. Runs built through New are
// already validated; the ticker guard catches hand-built records.
func (s *Store) Insert(run *Run) error {
	if run.Ticker == "" {
		return errors.NewInvalidRequestError("run ticker cannot be empty")
	}

	query := `
		INSERT INTO analysis_runs (
			id, ticker, status, result_json, error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result := sql.NullString{String: string(run.Result), Valid: len(run.Result) > 0}
	errMsg := sql.NullString{String: run.Error, Valid: run.Error != ""}

	_, err := s.db.Exec(query,
		run.ID,
		run.Ticker,
		run.Status,
		result,
		errMsg,
		run.CreatedAt,
		run.UpdatedAt,
	)
	if err != nil {
		return errors.WrapServiceUnavailable(err, "failed to insert run")
	}

	return nil
}

// Get retrieves a run by ID
func (s *Store) Get(id string) (*Run, error) {
	query := `SELECT ` + StandardRunSelectColumns() + ` FROM analysis_runs WHERE id = ?`

	var run Run
	if err := ScanRunFromRow(s.db.QueryRow(query, id), &run); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFoundError("run not found: %s", id)
		}
		return nil, errors.WrapServiceUnavailable(err, "failed to get run")
	}

	return &run, nil
}

// ListRecent returns the most recently created runs, newest first.
// Limits above MaxListLimit are clamped; limits below one are rejected.
func (s *Store) ListRecent(limit int) ([]*Run, error) {
	if limit < 1 {
		return nil, errors.NewInvalidRequestError("limit must be at least 1, got %d", limit)
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	query := `SELECT ` + StandardRunSelectColumns() + `
		FROM analysis_runs
		ORDER BY created_at DESC
		LIMIT ?`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, errors.WrapServiceUnavailable(err, "failed to list runs")
	}
	defer rows.Close()

	return scanRuns(rows, "recent runs")
}

// ListByStatus returns runs in the given status, newest first
func (s *Store) ListByStatus(status Status, limit int) ([]*Run, error) {
	query := `SELECT ` + StandardRunSelectColumns() + `
		FROM analysis_runs
		WHERE status = ?
		ORDER BY created_at DESC
		LIMIT ?`

	rows, err := s.db.Query(query, status, limit)
	if err != nil {
		return nil, errors.WrapServiceUnavailable(err, "failed to list runs by status")
	}
	defer rows.Close()

	return scanRuns(rows, "runs by status")
}

// ListStaleRunning returns running runs not updated since the cutoff,
// oldest first. The reaper uses this to find executions whose owner
// stopped making progress.
func (s *Store) ListStaleRunning(olderThan time.Duration, limit int) ([]*Run, error) {
	cutoff := time.Now().Add(-olderThan)

	query := `SELECT ` + StandardRunSelectColumns() + `
		FROM analysis_runs
		WHERE status = ?
		  AND updated_at < ?
		ORDER BY updated_at ASC
		LIMIT ?`

	rows, err := s.db.Query(query, StatusRunning, cutoff, limit)
	if err != nil {
		return nil, errors.WrapServiceUnavailable(err, "failed to list stale running runs")
	}
	defer rows.Close()

	return scanRuns(rows, "stale running runs")
}

// scanRuns is a helper that scans multiple runs from query rows
func scanRuns(rows *sql.Rows, context string) ([]*Run, error) {
	var runs []*Run
	for rows.Next() {
		var run Run
		if err := ScanRunFromRows(rows, &run); err != nil {
			return nil, errors.Wrap(err, "failed to scan run")
		}
		runs = append(runs, &run)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "error iterating %s", context)
	}

	return runs, nil
}

// Transition atomically advances a run from one status to another.
// The write applies only while the stored status still equals from; a
// run that moved on in the meantime is left untouched and the caller
// gets ErrInvalidTransition. This conditional write is what keeps the
// lifecycle monotonic under concurrent writers.
func (s *Store) Transition(id string, from, to Status) error {
	if !CanTransition(from, to) {
		return errors.Wrapf(ErrInvalidTransition, "no %s -> %s edge in the run lifecycle", from, to)
	}

	query := `
		UPDATE analysis_runs
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := s.db.Exec(query, to, time.Now(), id, from)
	if err != nil {
		return errors.WrapServiceUnavailable(err, "failed to transition run")
	}

	return s.checkTransition(result, id, from)
}

// Complete records a successful result, moving the run from running to
// completed. The result document is stored verbatim.
func (s *Store) Complete(id string, resultDoc json.RawMessage) error {
	query := `
		UPDATE analysis_runs
		SET status = ?, result_json = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	resultJSON := sql.NullString{String: string(resultDoc), Valid: len(resultDoc) > 0}

	result, err := s.db.Exec(query, StatusCompleted, resultJSON, time.Now(), id, StatusRunning)
	if err != nil {
		return errors.WrapServiceUnavailable(err, "failed to complete run")
	}

	return s.checkTransition(result, id, StatusRunning)
}

// Fail records a failure reason, moving the run from running to failed
func (s *Store) Fail(id string, cause string) error {
	query := `
		UPDATE analysis_runs
		SET status = ?, error = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := s.db.Exec(query, StatusFailed, cause, time.Now(), id, StatusRunning)
	if err != nil {
		return errors.WrapServiceUnavailable(err, "failed to fail run")
	}

	return s.checkTransition(result, id, StatusRunning)
}

// checkTransition classifies a conditional update that touched no rows:
// either the run does not exist, or its status had already moved on.
func (s *Store) checkTransition(result sql.Result, id string, from Status) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows > 0 {
		return nil
	}

	current, err := s.Get(id)
	if err != nil {
		return err
	}

	return errors.Wrapf(ErrInvalidTransition, "run %s is %s, expected %s", id, current.Status, from)
}

// Stats summarizes run counts by lifecycle state
type Stats struct {
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

// CountByStatus returns the number of runs in each status
func (s *Store) CountByStatus() (map[Status]int, error) {
	query := `SELECT status, COUNT(*) FROM analysis_runs GROUP BY status`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, errors.WrapServiceUnavailable(err, "failed to count runs")
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan run count")
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating run counts")
	}

	return counts, nil
}

// GetStats returns current run statistics
func (s *Store) GetStats() (*Stats, error) {
	counts, err := s.CountByStatus()
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Queued:    counts[StatusQueued],
		Running:   counts[StatusRunning],
		Completed: counts[StatusCompleted],
		Failed:    counts[StatusFailed],
	}
	stats.Total = stats.Queued + stats.Running + stats.Completed + stats.Failed
	return stats, nil
}
