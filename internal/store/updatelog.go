package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UpdateLogRepository is the Store's view over update_log: an append-only
// audit trail with one row per phase and one run-summary row per run.
type UpdateLogRepository struct {
	db *sql.DB
}

// NewUpdateLogRepository creates an UpdateLogRepository.
func NewUpdateLogRepository(db *sql.DB) *UpdateLogRepository {
	return &UpdateLogRepository{db: db}
}

// NewRunID mints a correlation ID shared by every UpdateLogEntry belonging
// to one orchestrated run.
func NewRunID() string {
	return uuid.NewString()
}

// Append writes one audit row. If entry.ID is empty, a new id is minted.
func (r *UpdateLogRepository) Append(entry UpdateLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.RunID == "" {
		return fmt.Errorf("update log entry must carry a run id")
	}

	_, err := r.db.Exec(`
		INSERT INTO update_log (id, run_id, update_type, ticker, status, error_message,
			records_processed, execution_time_ms, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.RunID, entry.UpdateType, nullStr(entry.Ticker), string(entry.Status),
		nullStr(entry.ErrorMessage), entry.RecordsProcessed, entry.ExecutionTimeMs,
		entry.StartedAt, nullTime(entry.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to append update log entry %s: %w", entry.UpdateType, err)
	}
	return nil
}

// ForRun returns every row for runID in insertion order, the shape the
// run-report generator reads to build its per-phase summary.
func (r *UpdateLogRepository) ForRun(runID string) ([]UpdateLogEntry, error) {
	rows, err := r.db.Query(`
		SELECT id, run_id, update_type, ticker, status, error_message,
			records_processed, execution_time_ms, started_at, completed_at
		FROM update_log WHERE run_id = ? ORDER BY started_at ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to read update log for run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []UpdateLogEntry
	for rows.Next() {
		var (
			e                    UpdateLogEntry
			ticker, errorMessage sql.NullString
			status               string
			completedAt          sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.UpdateType, &ticker, &status, &errorMessage,
			&e.RecordsProcessed, &e.ExecutionTimeMs, &e.StartedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan update log entry: %w", err)
		}
		e.Ticker = ticker.String
		e.ErrorMessage = errorMessage.String
		e.Status = UpdateStatus(status)
		e.CompletedAt = timePtr(completedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ForDate returns every phase/run-summary row whose started_at falls on
// date, in insertion order. The Orchestrator uses this to find an
// in-progress or partially-completed run for today and resume at the first
// phase with no successful row, rather than restarting from Phase 1.
func (r *UpdateLogRepository) ForDate(date time.Time) ([]UpdateLogEntry, error) {
	rows, err := r.db.Query(`
		SELECT id, run_id, update_type, ticker, status, error_message,
			records_processed, execution_time_ms, started_at, completed_at
		FROM update_log WHERE date(started_at) = date(?) ORDER BY started_at ASC
	`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to read update log for date %s: %w", date.Format("2006-01-02"), err)
	}
	defer rows.Close()

	var out []UpdateLogEntry
	for rows.Next() {
		var (
			e                    UpdateLogEntry
			ticker, errorMessage sql.NullString
			status               string
			completedAt          sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.UpdateType, &ticker, &status, &errorMessage,
			&e.RecordsProcessed, &e.ExecutionTimeMs, &e.StartedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan update log entry: %w", err)
		}
		e.Ticker = ticker.String
		e.ErrorMessage = errorMessage.String
		e.Status = UpdateStatus(status)
		e.CompletedAt = timePtr(completedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// LastRunSummary returns the most recent run-level row (update_type =
// "run_summary"), or nil if no run has completed yet.
func (r *UpdateLogRepository) LastRunSummary() (*UpdateLogEntry, error) {
	row := r.db.QueryRow(`
		SELECT id, run_id, update_type, ticker, status, error_message,
			records_processed, execution_time_ms, started_at, completed_at
		FROM update_log WHERE update_type = 'run_summary'
		ORDER BY started_at DESC LIMIT 1
	`)
	var (
		e                    UpdateLogEntry
		ticker, errorMessage sql.NullString
		status               string
		completedAt          sql.NullTime
	)
	if err := row.Scan(&e.ID, &e.RunID, &e.UpdateType, &ticker, &status, &errorMessage,
		&e.RecordsProcessed, &e.ExecutionTimeMs, &e.StartedAt, &completedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read last run summary: %w", err)
	}
	e.Ticker = ticker.String
	e.ErrorMessage = errorMessage.String
	e.Status = UpdateStatus(status)
	e.CompletedAt = timePtr(completedAt)
	return &e, nil
}
