package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidBar is returned by BarRepository.UpsertBar when a row violates
// the OHLC/volume invariants in §3 of the data model; it is never stored.
type ErrInvalidBar struct {
	Ticker string
	Date   time.Time
	Reason string
}

func (e *ErrInvalidBar) Error() string {
	return fmt.Sprintf("invalid bar for %s on %s: %s", e.Ticker, formatDate(e.Date), e.Reason)
}

// ValidateBar checks the §3 OHLC/volume invariants without touching the
// database. Both BarRepository.UpsertBar and the Batch Price Processor's
// pre-insert filtering call this so the rule lives in exactly one place.
func ValidateBar(b Bar) error {
	if b.Low > b.Open || b.Low > b.Close {
		return &ErrInvalidBar{Ticker: b.Ticker, Date: b.Date, Reason: "low exceeds open or close"}
	}
	if b.High < b.Open || b.High < b.Close {
		return &ErrInvalidBar{Ticker: b.Ticker, Date: b.Date, Reason: "high below open or close"}
	}
	if b.Low > b.High {
		return &ErrInvalidBar{Ticker: b.Ticker, Date: b.Date, Reason: "low exceeds high"}
	}
	if b.Volume < 0 {
		return &ErrInvalidBar{Ticker: b.Ticker, Date: b.Date, Reason: "negative volume"}
	}
	return nil
}

// BarRepository is the Store's view over daily_charts: bars plus their
// attached indicator vector.
type BarRepository struct {
	db *sql.DB
}

// NewBarRepository creates a BarRepository.
func NewBarRepository(db *sql.DB) *BarRepository {
	return &BarRepository{db: db}
}

// UpsertBar inserts a new (ticker, date) row, or, on conflict, overwrites
// only the price/volume columns — indicator columns already written by a
// prior run are preserved until Phase 2 explicitly recomputes them.
func (r *BarRepository) UpsertBar(b Bar) error {
	if err := ValidateBar(b); err != nil {
		return err
	}
	symbol := strings.ToUpper(strings.TrimSpace(b.Ticker))

	_, err := r.db.Exec(`
		INSERT INTO daily_charts (ticker, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker, date) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume
	`, symbol, formatDate(b.Date), b.Open, b.High, b.Low, b.Close, b.Volume)
	if err != nil {
		return fmt.Errorf("failed to upsert bar %s %s: %w", symbol, formatDate(b.Date), err)
	}
	return nil
}

// indicatorColumns lists every indicator column name in table order, used by
// UpdateIndicators to build a partial UPDATE statement covering only the
// fields that were actually computed.
var indicatorColumns = []string{
	"rsi_14", "ema_20", "ema_50", "ema_100", "ema_200",
	"macd_line", "macd_signal", "macd_histogram",
	"bb_upper", "bb_middle", "bb_lower",
	"stoch_k", "stoch_d", "cci_20", "atr_14",
	"adx_14", "plus_di_14", "minus_di_14",
	"vwap_20", "obv",
	"fib_236", "fib_382", "fib_500", "fib_618", "fib_786",
	"pivot", "resistance_1", "resistance_2", "resistance_3",
	"support_1", "support_2", "support_3", "swing_high", "swing_low",
}

func indicatorFields(ind IndicatorSet) map[string]*int64 {
	return map[string]*int64{
		"rsi_14": ind.RSI14,
		"ema_20": ind.EMA20, "ema_50": ind.EMA50, "ema_100": ind.EMA100, "ema_200": ind.EMA200,
		"macd_line": ind.MACDLine, "macd_signal": ind.MACDSignal, "macd_histogram": ind.MACDHistogram,
		"bb_upper": ind.BBUpper, "bb_middle": ind.BBMiddle, "bb_lower": ind.BBLower,
		"stoch_k": ind.StochK, "stoch_d": ind.StochD,
		"cci_20": ind.CCI20,
		"atr_14": ind.ATR14,
		"adx_14": ind.ADX14, "plus_di_14": ind.PlusDI14, "minus_di_14": ind.MinusDI14,
		"vwap_20": ind.VWAP20, "obv": ind.OBV,
		"fib_236": ind.Fib236, "fib_382": ind.Fib382, "fib_500": ind.Fib500, "fib_618": ind.Fib618, "fib_786": ind.Fib786,
		"pivot": ind.Pivot, "resistance_1": ind.Resistance1, "resistance_2": ind.Resistance2, "resistance_3": ind.Resistance3,
		"support_1": ind.Support1, "support_2": ind.Support2, "support_3": ind.Support3,
		"swing_high": ind.SwingHigh, "swing_low": ind.SwingLow,
	}
}

// UpdateIndicators writes only the indicator fields that are non-nil in ind,
// leaving every other column (including indicators not yet computable)
// untouched.
func (r *BarRepository) UpdateIndicators(ticker string, date time.Time, ind IndicatorSet) error {
	symbol := strings.ToUpper(strings.TrimSpace(ticker))
	fields := indicatorFields(ind)

	var setClauses []string
	var args []any
	for _, col := range indicatorColumns {
		if v, ok := fields[col]; ok && v != nil {
			setClauses = append(setClauses, col+" = ?")
			args = append(args, *v)
		}
	}
	if len(setClauses) == 0 {
		return nil
	}

	args = append(args, symbol, formatDate(date))
	query := fmt.Sprintf("UPDATE daily_charts SET %s WHERE ticker = ? AND date = ?", strings.Join(setClauses, ", "))
	if _, err := r.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to update indicators for %s %s: %w", symbol, formatDate(date), err)
	}
	return nil
}

// ReadPriceSeries returns up to `days` most recent bars for ticker, ascending
// by date, the order the Indicator Engine expects.
func (r *BarRepository) ReadPriceSeries(ticker string, days int) ([]Bar, error) {
	symbol := strings.ToUpper(strings.TrimSpace(ticker))
	rows, err := r.db.Query(`
		SELECT ticker, date, open, high, low, close, volume
		FROM (
			SELECT ticker, date, open, high, low, close, volume
			FROM daily_charts WHERE ticker = ?
			ORDER BY date DESC LIMIT ?
		) ORDER BY date ASC
	`, symbol, days)
	if err != nil {
		return nil, fmt.Errorf("failed to read price series for %s: %w", symbol, err)
	}
	defer rows.Close()

	var bars []Bar
	for rows.Next() {
		var b Bar
		var dateStr string
		if err := rows.Scan(&b.Ticker, &dateStr, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		b.Date, err = parseDate(dateStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse bar date: %w", err)
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// BarCount returns how many bars are stored for a ticker.
func (r *BarRepository) BarCount(ticker string) (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM daily_charts WHERE ticker = ?", strings.ToUpper(ticker)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count bars for %s: %w", ticker, err)
	}
	return count, nil
}

// HasBarForDate reports whether a ticker already has a stored bar for date —
// used by Phase 1 to compute tickers_needing(price_today).
func (r *BarRepository) HasBarForDate(ticker string, date time.Time) (bool, error) {
	var exists int
	err := r.db.QueryRow("SELECT 1 FROM daily_charts WHERE ticker = ? AND date = ?",
		strings.ToUpper(ticker), formatDate(date)).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check bar existence for %s: %w", ticker, err)
	}
	return true, nil
}

// TickersNeedingPriceToday returns active tickers that do not yet have a bar
// for `today`.
func (r *BarRepository) TickersNeedingPriceToday(activeTickers []string, today time.Time) ([]string, error) {
	var need []string
	for _, t := range activeTickers {
		has, err := r.HasBarForDate(t, today)
		if err != nil {
			return nil, err
		}
		if !has {
			need = append(need, t)
		}
	}
	return need, nil
}

// TickersNeedingHistory returns active tickers with fewer than minDays bars,
// ordered by current bar count ascending (the order Phase 5 requires).
func (r *BarRepository) TickersNeedingHistory(activeTickers []string, minDays int) ([]string, error) {
	type counted struct {
		symbol string
		count  int
	}
	var candidates []counted
	for _, t := range activeTickers {
		count, err := r.BarCount(t)
		if err != nil {
			return nil, err
		}
		if count < minDays {
			candidates = append(candidates, counted{t, count})
		}
	}
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			if candidates[j].count < candidates[i].count {
				candidates[i], candidates[j] = candidates[j], candidates[i]
			}
		}
	}
	symbols := make([]string, len(candidates))
	for i, c := range candidates {
		symbols[i] = c.symbol
	}
	return symbols, nil
}
