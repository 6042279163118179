package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// fundamentalsColumns mirrors the company_fundamentals table column order.
const fundamentalsColumns = `ticker, report_date, period_type, fiscal_year, fiscal_quarter,
	revenue, gross_profit, operating_income, net_income, ebitda, eps_diluted,
	book_value_per_share, total_assets, total_debt, total_equity, cash,
	operating_cash_flow, free_cash_flow, capex, shares_outstanding, shares_float,
	current_assets, current_liabilities, inventory, receivables, retained_earnings,
	ebit, interest_expense,
	data_source, data_quality, last_updated`

// FundamentalsRepository is the Store's view over company_fundamentals.
type FundamentalsRepository struct {
	db *sql.DB
}

// NewFundamentalsRepository creates a FundamentalsRepository.
func NewFundamentalsRepository(db *sql.DB) *FundamentalsRepository {
	return &FundamentalsRepository{db: db}
}

// Upsert writes one reported statement period, keyed on (ticker, report_date,
// period_type). A restated figure for an already-stored period overwrites it.
func (r *FundamentalsRepository) Upsert(f Fundamentals) error {
	symbol := strings.ToUpper(strings.TrimSpace(f.Ticker))
	if symbol == "" {
		return fmt.Errorf("fundamentals ticker must not be empty")
	}
	if f.DataQuality == "" {
		f.DataQuality = QualityNormal
	}

	_, err := r.db.Exec(`
		INSERT INTO company_fundamentals (`+fundamentalsColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker, report_date, period_type) DO UPDATE SET
			fiscal_year = excluded.fiscal_year,
			fiscal_quarter = excluded.fiscal_quarter,
			revenue = excluded.revenue,
			gross_profit = excluded.gross_profit,
			operating_income = excluded.operating_income,
			net_income = excluded.net_income,
			ebitda = excluded.ebitda,
			eps_diluted = excluded.eps_diluted,
			book_value_per_share = excluded.book_value_per_share,
			total_assets = excluded.total_assets,
			total_debt = excluded.total_debt,
			total_equity = excluded.total_equity,
			cash = excluded.cash,
			operating_cash_flow = excluded.operating_cash_flow,
			free_cash_flow = excluded.free_cash_flow,
			capex = excluded.capex,
			shares_outstanding = excluded.shares_outstanding,
			shares_float = excluded.shares_float,
			current_assets = excluded.current_assets,
			current_liabilities = excluded.current_liabilities,
			inventory = excluded.inventory,
			receivables = excluded.receivables,
			retained_earnings = excluded.retained_earnings,
			ebit = excluded.ebit,
			interest_expense = excluded.interest_expense,
			data_source = excluded.data_source,
			data_quality = excluded.data_quality,
			last_updated = excluded.last_updated
	`, symbol, formatDate(f.ReportDate), string(f.PeriodType), f.FiscalYear, nullIntFromIntPtr(f.FiscalQuarter),
		nullFloat(f.Revenue), nullFloat(f.GrossProfit), nullFloat(f.OperatingIncome), nullFloat(f.NetIncome),
		nullFloat(f.EBITDA), nullFloat(f.EPSDiluted), nullFloat(f.BookValuePerShare), nullFloat(f.TotalAssets),
		nullFloat(f.TotalDebt), nullFloat(f.TotalEquity), nullFloat(f.Cash), nullFloat(f.OperatingCashFlow),
		nullFloat(f.FreeCashFlow), nullFloat(f.CapEx), nullFloat(f.SharesOutstanding), nullFloat(f.SharesFloat),
		nullFloat(f.CurrentAssets), nullFloat(f.CurrentLiabilities), nullFloat(f.Inventory), nullFloat(f.Receivables),
		nullFloat(f.RetainedEarnings), nullFloat(f.EBIT), nullFloat(f.InterestExpense),
		nullStr(f.DataSource), string(f.DataQuality), f.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to upsert fundamentals %s %s: %w", symbol, formatDate(f.ReportDate), err)
	}
	return nil
}

// LastNQuarters returns the most recent n quarterly statements for ticker,
// newest first — the window TTM computation sums.
func (r *FundamentalsRepository) LastNQuarters(ticker string, n int) ([]Fundamentals, error) {
	return r.queryPeriod(ticker, PeriodQuarterly, n)
}

// LastAnnual returns the single most recent annual statement for ticker, or
// nil if none exists — the TTM fallback source per §4.6.
func (r *FundamentalsRepository) LastAnnual(ticker string) (*Fundamentals, error) {
	rows, err := r.queryPeriod(ticker, PeriodAnnual, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *FundamentalsRepository) queryPeriod(ticker string, period PeriodType, limit int) ([]Fundamentals, error) {
	symbol := strings.ToUpper(strings.TrimSpace(ticker))
	rows, err := r.db.Query(`
		SELECT `+fundamentalsColumns+`
		FROM company_fundamentals
		WHERE ticker = ? AND period_type = ?
		ORDER BY report_date DESC LIMIT ?
	`, symbol, string(period), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s fundamentals for %s: %w", period, symbol, err)
	}
	defer rows.Close()

	var out []Fundamentals
	for rows.Next() {
		f, err := scanFundamentals(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fundamentals: %w", err)
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func scanFundamentals(row scannable) (*Fundamentals, error) {
	var (
		f                                                                      Fundamentals
		dateStr                                                                string
		periodType, dataSource, dataQuality                                    string
		fiscalQuarter                                                          sql.NullInt64
		revenue, grossProfit, opIncome, netIncome, ebitda, eps                 sql.NullFloat64
		bvps, assets, debt, equity, cash, ocf, fcf, capex, shares, sharesFloat sql.NullFloat64
		currentAssets, currentLiabilities, inventory, receivables             sql.NullFloat64
		retainedEarnings, ebit, interestExpense                               sql.NullFloat64
	)
	if err := row.Scan(&f.Ticker, &dateStr, &periodType, &f.FiscalYear, &fiscalQuarter,
		&revenue, &grossProfit, &opIncome, &netIncome, &ebitda, &eps,
		&bvps, &assets, &debt, &equity, &cash,
		&ocf, &fcf, &capex, &shares, &sharesFloat,
		&currentAssets, &currentLiabilities, &inventory, &receivables,
		&retainedEarnings, &ebit, &interestExpense,
		&dataSource, &dataQuality, &f.LastUpdated); err != nil {
		return nil, err
	}
	var err error
	f.ReportDate, err = parseDate(dateStr)
	if err != nil {
		return nil, err
	}
	f.PeriodType = PeriodType(periodType)
	f.DataSource = dataSource
	f.DataQuality = DataQuality(dataQuality)
	f.FiscalQuarter = intPtrFromNullInt(fiscalQuarter)
	f.Revenue = floatPtr(revenue)
	f.GrossProfit = floatPtr(grossProfit)
	f.OperatingIncome = floatPtr(opIncome)
	f.NetIncome = floatPtr(netIncome)
	f.EBITDA = floatPtr(ebitda)
	f.EPSDiluted = floatPtr(eps)
	f.BookValuePerShare = floatPtr(bvps)
	f.TotalAssets = floatPtr(assets)
	f.TotalDebt = floatPtr(debt)
	f.TotalEquity = floatPtr(equity)
	f.Cash = floatPtr(cash)
	f.OperatingCashFlow = floatPtr(ocf)
	f.FreeCashFlow = floatPtr(fcf)
	f.CapEx = floatPtr(capex)
	f.SharesOutstanding = floatPtr(shares)
	f.SharesFloat = floatPtr(sharesFloat)
	f.CurrentAssets = floatPtr(currentAssets)
	f.CurrentLiabilities = floatPtr(currentLiabilities)
	f.Inventory = floatPtr(inventory)
	f.Receivables = floatPtr(receivables)
	f.RetainedEarnings = floatPtr(retainedEarnings)
	f.EBIT = floatPtr(ebit)
	f.InterestExpense = floatPtr(interestExpense)
	return &f, nil
}
