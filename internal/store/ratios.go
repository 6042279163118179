package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// ratiosColumns mirrors the financial_ratios table column order.
const ratiosColumns = `ticker, calculation_date,
	pe, pb, ps, ev_ebitda, peg,
	roe, roa, roic, gross_margin, operating_margin, net_margin,
	debt_to_equity, current_ratio, quick_ratio, interest_coverage, altman_z_score,
	asset_turnover, inventory_turnover, receivables_turnover,
	revenue_growth_yoy, earnings_growth_yoy, fcf_growth_yoy,
	fcf_to_net_income, cash_conversion_cycle,
	market_cap, enterprise_value, graham_number, explanation_blob`

// RatiosRepository is the Store's view over financial_ratios.
type RatiosRepository struct {
	db *sql.DB
}

// NewRatiosRepository creates a RatiosRepository.
func NewRatiosRepository(db *sql.DB) *RatiosRepository {
	return &RatiosRepository{db: db}
}

// Upsert writes one calculation-date snapshot of the 27-ratio vector. The
// Explanations map is msgpack-encoded into explanation_blob; a nil map
// encodes to an empty blob rather than NULL, keeping the column always
// readable without a null check.
func (r *RatiosRepository) Upsert(ratios Ratios) error {
	symbol := strings.ToUpper(strings.TrimSpace(ratios.Ticker))
	if symbol == "" {
		return fmt.Errorf("ratios ticker must not be empty")
	}

	blob, err := msgpack.Marshal(ratios.Explanations)
	if err != nil {
		return fmt.Errorf("failed to encode ratio explanations for %s: %w", symbol, err)
	}

	_, err = r.db.Exec(`
		INSERT INTO financial_ratios (`+ratiosColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker, calculation_date) DO UPDATE SET
			pe = excluded.pe, pb = excluded.pb, ps = excluded.ps,
			ev_ebitda = excluded.ev_ebitda, peg = excluded.peg,
			roe = excluded.roe, roa = excluded.roa, roic = excluded.roic,
			gross_margin = excluded.gross_margin, operating_margin = excluded.operating_margin,
			net_margin = excluded.net_margin,
			debt_to_equity = excluded.debt_to_equity, current_ratio = excluded.current_ratio,
			quick_ratio = excluded.quick_ratio, interest_coverage = excluded.interest_coverage,
			altman_z_score = excluded.altman_z_score,
			asset_turnover = excluded.asset_turnover, inventory_turnover = excluded.inventory_turnover,
			receivables_turnover = excluded.receivables_turnover,
			revenue_growth_yoy = excluded.revenue_growth_yoy, earnings_growth_yoy = excluded.earnings_growth_yoy,
			fcf_growth_yoy = excluded.fcf_growth_yoy,
			fcf_to_net_income = excluded.fcf_to_net_income, cash_conversion_cycle = excluded.cash_conversion_cycle,
			market_cap = excluded.market_cap, enterprise_value = excluded.enterprise_value,
			graham_number = excluded.graham_number, explanation_blob = excluded.explanation_blob
	`, symbol, formatDate(ratios.CalculationDate),
		nullFloat(ratios.PE), nullFloat(ratios.PB), nullFloat(ratios.PS), nullFloat(ratios.EVEBITDA), nullFloat(ratios.PEG),
		nullFloat(ratios.ROE), nullFloat(ratios.ROA), nullFloat(ratios.ROIC),
		nullFloat(ratios.GrossMargin), nullFloat(ratios.OperatingMargin), nullFloat(ratios.NetMargin),
		nullFloat(ratios.DebtToEquity), nullFloat(ratios.CurrentRatio), nullFloat(ratios.QuickRatio),
		nullFloat(ratios.InterestCoverage), nullFloat(ratios.AltmanZScore),
		nullFloat(ratios.AssetTurnover), nullFloat(ratios.InventoryTurnover), nullFloat(ratios.ReceivablesTurnover),
		nullFloat(ratios.RevenueGrowthYoY), nullFloat(ratios.EarningsGrowthYoY), nullFloat(ratios.FCFGrowthYoY),
		nullFloat(ratios.FCFToNetIncome), nullFloat(ratios.CashConversionCycle),
		nullFloat(ratios.MarketCap), nullFloat(ratios.EnterpriseValue), nullFloat(ratios.GrahamNumber), blob)
	if err != nil {
		return fmt.Errorf("failed to upsert ratios %s %s: %w", symbol, formatDate(ratios.CalculationDate), err)
	}
	return nil
}

// Latest returns the most recent ratio snapshot for ticker, or nil.
func (r *RatiosRepository) Latest(ticker string) (*Ratios, error) {
	symbol := strings.ToUpper(strings.TrimSpace(ticker))
	row := r.db.QueryRow(`
		SELECT `+ratiosColumns+`
		FROM financial_ratios WHERE ticker = ? ORDER BY calculation_date DESC LIMIT 1
	`, symbol)
	ratios, err := scanRatios(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest ratios for %s: %w", symbol, err)
	}
	return ratios, nil
}

func scanRatios(row scannable) (*Ratios, error) {
	var (
		ratios  Ratios
		dateStr string
		pe, pb, ps, evEbitda, peg                                   sql.NullFloat64
		roe, roa, roic, grossMargin, opMargin, netMargin            sql.NullFloat64
		debtEq, curRatio, quickRatio, interestCov, altman           sql.NullFloat64
		assetTurn, invTurn, recvTurn                                sql.NullFloat64
		revGrowth, earnGrowth, fcfGrowth                            sql.NullFloat64
		fcfToNI, ccc, marketCap, ev, graham                         sql.NullFloat64
		blob                                                        []byte
	)
	if err := row.Scan(&ratios.Ticker, &dateStr,
		&pe, &pb, &ps, &evEbitda, &peg,
		&roe, &roa, &roic, &grossMargin, &opMargin, &netMargin,
		&debtEq, &curRatio, &quickRatio, &interestCov, &altman,
		&assetTurn, &invTurn, &recvTurn,
		&revGrowth, &earnGrowth, &fcfGrowth,
		&fcfToNI, &ccc, &marketCap, &ev, &graham, &blob); err != nil {
		return nil, err
	}
	var err error
	ratios.CalculationDate, err = parseDate(dateStr)
	if err != nil {
		return nil, err
	}
	if len(blob) > 0 {
		if err := msgpack.Unmarshal(blob, &ratios.Explanations); err != nil {
			return nil, fmt.Errorf("failed to decode ratio explanations: %w", err)
		}
	}
	ratios.PE, ratios.PB, ratios.PS, ratios.EVEBITDA, ratios.PEG = floatPtr(pe), floatPtr(pb), floatPtr(ps), floatPtr(evEbitda), floatPtr(peg)
	ratios.ROE, ratios.ROA, ratios.ROIC = floatPtr(roe), floatPtr(roa), floatPtr(roic)
	ratios.GrossMargin, ratios.OperatingMargin, ratios.NetMargin = floatPtr(grossMargin), floatPtr(opMargin), floatPtr(netMargin)
	ratios.DebtToEquity, ratios.CurrentRatio, ratios.QuickRatio = floatPtr(debtEq), floatPtr(curRatio), floatPtr(quickRatio)
	ratios.InterestCoverage, ratios.AltmanZScore = floatPtr(interestCov), floatPtr(altman)
	ratios.AssetTurnover, ratios.InventoryTurnover, ratios.ReceivablesTurnover = floatPtr(assetTurn), floatPtr(invTurn), floatPtr(recvTurn)
	ratios.RevenueGrowthYoY, ratios.EarningsGrowthYoY, ratios.FCFGrowthYoY = floatPtr(revGrowth), floatPtr(earnGrowth), floatPtr(fcfGrowth)
	ratios.FCFToNetIncome, ratios.CashConversionCycle = floatPtr(fcfToNI), floatPtr(ccc)
	ratios.MarketCap, ratios.EnterpriseValue, ratios.GrahamNumber = floatPtr(marketCap), floatPtr(ev), floatPtr(graham)
	return &ratios, nil
}
