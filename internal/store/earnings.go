package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// earningsColumns mirrors the earnings_calendar table column order.
const earningsColumns = `ticker, earnings_date, confirmed, eps_estimate, revenue_estimate,
	priority_level, data_updated`

// EarningsRepository is the Store's view over earnings_calendar.
type EarningsRepository struct {
	db *sql.DB
}

// NewEarningsRepository creates an EarningsRepository.
func NewEarningsRepository(db *sql.DB) *EarningsRepository {
	return &EarningsRepository{db: db}
}

// Upsert writes one earnings event, keyed on (ticker, earnings_date).
func (r *EarningsRepository) Upsert(e EarningsCalendarEntry) error {
	symbol := strings.ToUpper(strings.TrimSpace(e.Ticker))
	if symbol == "" {
		return fmt.Errorf("earnings ticker must not be empty")
	}
	if e.PriorityLevel == 0 {
		e.PriorityLevel = 1
	}

	_, err := r.db.Exec(`
		INSERT INTO earnings_calendar (`+earningsColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker, earnings_date) DO UPDATE SET
			confirmed = excluded.confirmed,
			eps_estimate = excluded.eps_estimate,
			revenue_estimate = excluded.revenue_estimate,
			priority_level = excluded.priority_level,
			data_updated = excluded.data_updated
	`, symbol, formatDate(e.EarningsDate), e.Confirmed, nullFloat(e.EPSEstimate), nullFloat(e.RevenueEstimate),
		e.PriorityLevel, e.DataUpdated)
	if err != nil {
		return fmt.Errorf("failed to upsert earnings entry %s %s: %w", symbol, formatDate(e.EarningsDate), err)
	}
	return nil
}

// MarkDataUpdated flips data_updated once the Fundamentals Processor has
// consumed an earnings event's reported figures.
func (r *EarningsRepository) MarkDataUpdated(ticker string, earningsDate time.Time) error {
	_, err := r.db.Exec(`
		UPDATE earnings_calendar SET data_updated = 1 WHERE ticker = ? AND earnings_date = ?
	`, strings.ToUpper(ticker), formatDate(earningsDate))
	if err != nil {
		return fmt.Errorf("failed to mark earnings data updated for %s: %w", ticker, err)
	}
	return nil
}

// UpcomingFor returns the next earnings event for ticker on or after asOf, or
// nil if none is scheduled.
func (r *EarningsRepository) UpcomingFor(ticker string, asOf time.Time) (*EarningsCalendarEntry, error) {
	symbol := strings.ToUpper(strings.TrimSpace(ticker))
	row := r.db.QueryRow(`
		SELECT `+earningsColumns+`
		FROM earnings_calendar
		WHERE ticker = ? AND earnings_date >= ?
		ORDER BY earnings_date ASC LIMIT 1
	`, symbol, formatDate(asOf))
	entry, err := scanEarnings(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get upcoming earnings for %s: %w", symbol, err)
	}
	return entry, nil
}

// PendingFundamentalsTriggers implements rule 3 of the fundamentals
// trigger policy: tickers with an earnings date within the lookahead window
// whose reported figures have not yet been ingested (data_updated = false),
// ordered by earnings_date ascending so the most imminent events refresh
// first. This is evaluated here rather than in TickerRepository because the
// rule keys off earnings_calendar, not stocks.
func (r *EarningsRepository) PendingFundamentalsTriggers(asOf time.Time, lookahead time.Duration) ([]string, error) {
	horizon := asOf.Add(lookahead)
	rows, err := r.db.Query(`
		SELECT DISTINCT ticker FROM earnings_calendar
		WHERE data_updated = 0 AND earnings_date >= ? AND earnings_date <= ?
		ORDER BY earnings_date ASC
	`, formatDate(asOf), formatDate(horizon))
	if err != nil {
		return nil, fmt.Errorf("failed to query pending fundamentals triggers: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan ticker: %w", err)
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

func scanEarnings(row scannable) (*EarningsCalendarEntry, error) {
	var (
		e               EarningsCalendarEntry
		dateStr         string
		epsEst, revEst  sql.NullFloat64
	)
	if err := row.Scan(&e.Ticker, &dateStr, &e.Confirmed, &epsEst, &revEst, &e.PriorityLevel, &e.DataUpdated); err != nil {
		return nil, err
	}
	var err error
	e.EarningsDate, err = parseDate(dateStr)
	if err != nil {
		return nil, err
	}
	e.EPSEstimate = floatPtr(epsEst)
	e.RevenueEstimate = floatPtr(revEst)
	return &e, nil
}
