package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// tickersColumns mirrors the stocks table column order so every query reads
// from a single source of truth instead of repeating SELECT *.
const tickersColumns = `ticker, active, sector, industry, market_cap_category,
	next_earnings_date, fundamentals_last_update, data_priority`

// TickerRepository is the Store's view over the stocks table.
type TickerRepository struct {
	db *sql.DB
}

// NewTickerRepository creates a TickerRepository.
func NewTickerRepository(db *sql.DB) *TickerRepository {
	return &TickerRepository{db: db}
}

// Upsert inserts or updates a ticker's lifecycle fields.
func (r *TickerRepository) Upsert(t Ticker) error {
	symbol := strings.ToUpper(strings.TrimSpace(t.Symbol))
	if symbol == "" {
		return fmt.Errorf("ticker symbol must not be empty")
	}

	_, err := r.db.Exec(`
		INSERT INTO stocks (ticker, active, sector, industry, market_cap_category,
			next_earnings_date, fundamentals_last_update, data_priority)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker) DO UPDATE SET
			active = excluded.active,
			sector = excluded.sector,
			industry = excluded.industry,
			market_cap_category = excluded.market_cap_category,
			next_earnings_date = excluded.next_earnings_date,
			fundamentals_last_update = excluded.fundamentals_last_update,
			data_priority = excluded.data_priority
	`, symbol, t.Active, nullStr(t.Sector), nullStr(t.Industry), nullStr(t.MarketCapCategory),
		nullTime(t.NextEarningsDate), nullTime(t.FundamentalsLastUpdate), t.DataPriority)
	if err != nil {
		return fmt.Errorf("failed to upsert ticker %s: %w", symbol, err)
	}
	return nil
}

// GetBySymbol returns a ticker, or nil if it does not exist.
func (r *TickerRepository) GetBySymbol(symbol string) (*Ticker, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	row := r.db.QueryRow("SELECT "+tickersColumns+" FROM stocks WHERE ticker = ?", symbol)
	t, err := scanTicker(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticker %s: %w", symbol, err)
	}
	return t, nil
}

// SetActive flips a ticker's active flag, used by the delisting sweep.
// Associated bars/fundamentals/ratios rows are untouched.
func (r *TickerRepository) SetActive(symbol string, active bool) error {
	_, err := r.db.Exec("UPDATE stocks SET active = ? WHERE ticker = ?", active, strings.ToUpper(symbol))
	if err != nil {
		return fmt.Errorf("failed to set active=%v for %s: %w", active, symbol, err)
	}
	return nil
}

// SetFundamentalsLastUpdate advances the monotonic fundamentals_last_update
// watermark. Callers are expected to pass now() or later; the Store does not
// itself enforce monotonicity (the Fundamentals Processor never calls this
// with a timestamp older than the existing one).
func (r *TickerRepository) SetFundamentalsLastUpdate(symbol string, at time.Time) error {
	_, err := r.db.Exec("UPDATE stocks SET fundamentals_last_update = ? WHERE ticker = ?", at, strings.ToUpper(symbol))
	if err != nil {
		return fmt.Errorf("failed to set fundamentals_last_update for %s: %w", symbol, err)
	}
	return nil
}

// ActiveTickers returns every active ticker symbol.
func (r *TickerRepository) ActiveTickers() ([]string, error) {
	rows, err := r.db.Query("SELECT ticker FROM stocks WHERE active = 1 ORDER BY ticker")
	if err != nil {
		return nil, fmt.Errorf("failed to list active tickers: %w", err)
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

// NeedingFundamentalsRefresh returns active tickers whose Fundamentals row is
// stale per §4.6's trigger policy (rule 1 and 2 only; rule 3 — an imminent
// earnings date with data_updated=false — is evaluated jointly with the
// EarningsCalendar by EarningsRepository.PendingFundamentalsTriggers, and
// rule 4 is an orchestrator-level override applied by the caller).
func (r *TickerRepository) NeedingFundamentalsRefresh(staleAfter time.Duration, now time.Time) ([]string, error) {
	cutoff := now.Add(-staleAfter)
	rows, err := r.db.Query(`
		SELECT ticker FROM stocks
		WHERE active = 1 AND (fundamentals_last_update IS NULL OR fundamentals_last_update < ?)
		ORDER BY ticker
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickers needing fundamentals refresh: %w", err)
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

type scannable interface {
	Scan(dest ...any) error
}

func scanTicker(row scannable) (*Ticker, error) {
	var (
		t                      Ticker
		sector, industry, cat  sql.NullString
		nextEarnings, lastUpd  sql.NullTime
	)
	if err := row.Scan(&t.Symbol, &t.Active, &sector, &industry, &cat,
		&nextEarnings, &lastUpd, &t.DataPriority); err != nil {
		return nil, err
	}
	t.Sector = sector.String
	t.Industry = industry.String
	t.MarketCapCategory = cat.String
	t.NextEarningsDate = timePtr(nextEarnings)
	t.FundamentalsLastUpdate = timePtr(lastUpd)
	return &t, nil
}
