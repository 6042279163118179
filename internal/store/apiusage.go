package store

import (
	"database/sql"
	"fmt"
	"time"
)

// ApiUsageRepository is the Store's view over api_usage_tracking: the
// per-(provider, date, endpoint) call ledger the shared daily budget reads
// and decrements from.
type ApiUsageRepository struct {
	db *sql.DB
}

// NewApiUsageRepository creates an ApiUsageRepository.
func NewApiUsageRepository(db *sql.DB) *ApiUsageRepository {
	return &ApiUsageRepository{db: db}
}

// EnsureRow creates the ledger row for (provider, date, endpoint) with the
// given limit if it does not already exist; a pre-existing row's limit is
// left untouched so a mid-day config reload cannot silently raise it.
func (r *ApiUsageRepository) EnsureRow(provider string, date time.Time, endpoint string, limit int) error {
	_, err := r.db.Exec(`
		INSERT INTO api_usage_tracking (provider, date, endpoint, calls_made, calls_limit)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT(provider, date, endpoint) DO NOTHING
	`, provider, formatDate(date), endpoint, limit)
	if err != nil {
		return fmt.Errorf("failed to ensure api usage row for %s/%s: %w", provider, endpoint, err)
	}
	return nil
}

// RecordCalls atomically increments calls_made by n, returning the usage row
// after the increment. The increment happens inside the UPDATE statement so
// concurrent phase workers calling the same provider never lose a count.
func (r *ApiUsageRepository) RecordCalls(provider string, date time.Time, endpoint string, n int) (*ApiUsage, error) {
	_, err := r.db.Exec(`
		UPDATE api_usage_tracking SET calls_made = calls_made + ?
		WHERE provider = ? AND date = ? AND endpoint = ?
	`, n, provider, formatDate(date), endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to record %d calls for %s/%s: %w", n, provider, endpoint, err)
	}
	return r.Get(provider, date, endpoint)
}

// Get returns the usage row for (provider, date, endpoint), or nil if it has
// not been created yet.
func (r *ApiUsageRepository) Get(provider string, date time.Time, endpoint string) (*ApiUsage, error) {
	row := r.db.QueryRow(`
		SELECT provider, date, endpoint, calls_made, calls_limit, reset_time
		FROM api_usage_tracking WHERE provider = ? AND date = ? AND endpoint = ?
	`, provider, formatDate(date), endpoint)

	var (
		u               ApiUsage
		dateStr         string
		resetTime       sql.NullTime
	)
	if err := row.Scan(&u.Provider, &dateStr, &u.Endpoint, &u.CallsMade, &u.CallsLimit, &resetTime); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get api usage for %s/%s: %w", provider, endpoint, err)
	}
	var err error
	u.Date, err = parseDate(dateStr)
	if err != nil {
		return nil, err
	}
	u.ResetTime = timePtr(resetTime)
	return &u, nil
}

// RemainingBudget returns calls_limit - calls_made, floored at zero, for the
// given provider/date/endpoint. A missing row is treated as a full budget of
// limit, since EnsureRow has not necessarily run yet for a provider that has
// made no calls today.
func (r *ApiUsageRepository) RemainingBudget(provider string, date time.Time, endpoint string, limit int) (int, error) {
	usage, err := r.Get(provider, date, endpoint)
	if err != nil {
		return 0, err
	}
	if usage == nil {
		return limit, nil
	}
	remaining := usage.CallsLimit - usage.CallsMade
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

// TotalCallsToday sums calls_made across every endpoint for provider on
// date, used by the orchestrator's shared daily-budget check.
func (r *ApiUsageRepository) TotalCallsToday(provider string, date time.Time) (int, error) {
	var total sql.NullInt64
	err := r.db.QueryRow(`
		SELECT SUM(calls_made) FROM api_usage_tracking WHERE provider = ? AND date = ?
	`, provider, formatDate(date)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum calls for %s: %w", provider, err)
	}
	return int(total.Int64), nil
}
