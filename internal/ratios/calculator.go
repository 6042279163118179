// Package ratios is the Ratio Calculator half of the Fundamentals Processor
// component (§4.6): a pure function from a ticker's most recent statement
// plus its trailing-twelve-month figures and today's close price to the
// 27-field fundamental ratio vector. It performs no I/O.
package ratios

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/aristath/marketpipe/internal/fundamentals"
	"github.com/aristath/marketpipe/internal/store"
)

// Display caps preserved from the source per §9's open-question decision:
// bounds are kept exactly as named, no others are added.
const (
	peCap       = 999.0
	evEBITDACap = 50.0
	psCap       = 50.0
)

// Inputs bundles everything one Calculate call needs for one ticker on one
// calculation date.
type Inputs struct {
	Ticker          string
	CalculationDate time.Time
	ClosePrice      float64 // unscaled, today's close
	Latest          store.Fundamentals
	TTM             fundamentals.TTM
	// PriorYear is the same fiscal quarter one year before Latest, or nil
	// if that comparison isn't available — §4.6's YoY growth ratios fall
	// through to None in that case.
	PriorYear *store.Fundamentals
}

// assumedTaxRate approximates NOPAT for ROIC when no effective-tax-rate
// field is modeled; the 21% US statutory corporate rate is the standard
// textbook stand-in for this ratio when a reported tax figure isn't
// available, the same simplification the source makes.
const assumedTaxRate = 0.21

// Calculate computes the 27-field ratio vector for one ticker, applying
// §4.6's edge-case policy: a ratio whose denominator is missing or ≤ 0
// becomes None with an explanation flag, rather than a divide-by-zero or
// a misleadingly large/negative number.
func Calculate(in Inputs) store.Ratios {
	ticker, closePrice, latest, ttm, priorYear := in.Ticker, in.ClosePrice, in.Latest, in.TTM, in.PriorYear

	explanations := make(map[string]string)
	out := store.Ratios{Ticker: ticker, CalculationDate: in.CalculationDate, Explanations: explanations}

	sharesOut := deref(latest.SharesOutstanding)
	marketCap := marketCapOf(closePrice, sharesOut, explanations)
	out.MarketCap = marketCap

	enterpriseValue := enterpriseValueOf(marketCap, latest, explanations)
	out.EnterpriseValue = enterpriseValue

	ttmEPS := safeDiv(ttm.NetIncome, latest.SharesOutstanding)

	out.PE = capped(priceRatio("pe", closePrice, ttmEPS, explanations), peCap)
	out.PB = priceRatio("pb", closePrice, latest.BookValuePerShare, explanations)
	out.PS = capped(ratioFromPtrs("ps", marketCap, ttm.Revenue, explanations), psCap)
	out.EVEBITDA = capped(ratioFromPtrs("ev_ebitda", enterpriseValue, ttm.EBITDA, explanations), evEBITDACap)
	out.PEG = pegRatio(out.PE, priorYear, latest, explanations)

	out.ROE = ratioFromPtrs("roe", ttm.NetIncome, latest.TotalEquity, explanations)
	out.ROA = ratioFromPtrs("roa", ttm.NetIncome, latest.TotalAssets, explanations)
	out.ROIC = roic(latest, explanations)
	out.GrossMargin = ratioFromPtrs("gross_margin", latest.GrossProfit, latest.Revenue, explanations)
	out.OperatingMargin = ratioFromPtrs("operating_margin", latest.OperatingIncome, latest.Revenue, explanations)
	out.NetMargin = ratioFromPtrs("net_margin", ttm.NetIncome, ttm.Revenue, explanations)

	out.DebtToEquity = ratioFromPtrs("debt_to_equity", latest.TotalDebt, latest.TotalEquity, explanations)
	out.CurrentRatio = ratioFromPtrs("current_ratio", latest.CurrentAssets, latest.CurrentLiabilities, explanations)
	out.QuickRatio = quickRatio(latest, explanations)
	out.InterestCoverage = ratioFromPtrs("interest_coverage", latest.EBIT, latest.InterestExpense, explanations)
	out.AltmanZScore = altmanZ(latest, marketCap, explanations)

	out.AssetTurnover = ratioFromPtrs("asset_turnover", ttm.Revenue, latest.TotalAssets, explanations)
	out.InventoryTurnover = inventoryTurnover(latest, explanations)
	out.ReceivablesTurnover = ratioFromPtrs("receivables_turnover", ttm.Revenue, latest.Receivables, explanations)

	out.RevenueGrowthYoY = yoyGrowth("revenue_growth_yoy", latest.Revenue, priorYear, func(f store.Fundamentals) *float64 { return f.Revenue }, explanations)
	out.EarningsGrowthYoY = yoyGrowth("earnings_growth_yoy", latest.NetIncome, priorYear, func(f store.Fundamentals) *float64 { return f.NetIncome }, explanations)
	out.FCFGrowthYoY = yoyGrowth("fcf_growth_yoy", latest.FreeCashFlow, priorYear, func(f store.Fundamentals) *float64 { return f.FreeCashFlow }, explanations)

	out.FCFToNetIncome = ratioFromPtrs("fcf_to_net_income", ttm.FreeCashFlow, ttm.NetIncome, explanations)
	out.CashConversionCycle = cashConversionCycle(latest, ttm, explanations)

	out.GrahamNumber = grahamNumber(latest, explanations)

	return out
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func marketCapOf(closePrice, sharesOut float64, explanations map[string]string) *float64 {
	if closePrice <= 0 || sharesOut <= 0 {
		explanations["market_cap"] = "N/A - missing close price or shares outstanding"
		return nil
	}
	v := closePrice * sharesOut
	return &v
}

func enterpriseValueOf(marketCap *float64, latest store.Fundamentals, explanations map[string]string) *float64 {
	if marketCap == nil {
		explanations["enterprise_value"] = "N/A - missing market cap"
		return nil
	}
	debt := deref(latest.TotalDebt)
	cash := deref(latest.Cash)
	v := *marketCap + debt - cash
	return &v
}

func safeDiv(num *float64, den *float64) *float64 {
	if num == nil || den == nil || *den == 0 {
		return nil
	}
	v := *num / *den
	return &v
}

// priceRatio computes price / perShare, the shape shared by P/E (perShare =
// TTM EPS) and P/B (perShare = book value per share): flags name and
// returns nil when perShare is missing or non-positive, per §4.6's
// edge-case policy.
func priceRatio(name string, price float64, perShare *float64, explanations map[string]string) *float64 {
	if perShare == nil || *perShare <= 0 {
		explanations[name] = fmt.Sprintf("N/A - non-positive or missing per-share denominator for %s", name)
		return nil
	}
	v := price / *perShare
	return &v
}

// ratioFromPtrs computes *num / *den, flagging name and returning nil when
// either operand is missing or den is ≤ 0, per §4.6's edge-case policy.
func ratioFromPtrs(name string, num, den *float64, explanations map[string]string) *float64 {
	if num == nil {
		explanations[name] = fmt.Sprintf("N/A - missing numerator for %s", name)
		return nil
	}
	if den == nil || *den <= 0 {
		explanations[name] = fmt.Sprintf("N/A - non-positive or missing denominator for %s", name)
		return nil
	}
	v := *num / *den
	return &v
}

func capped(v *float64, cap float64) *float64 {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	c := math.Min(*v, cap)
	return &c
}

func pegRatio(pe *float64, priorYear *store.Fundamentals, latest store.Fundamentals, explanations map[string]string) *float64 {
	if pe == nil {
		explanations["peg"] = "N/A - missing P/E"
		return nil
	}
	growth := yoyGrowth("peg", latest.NetIncome, priorYear, func(f store.Fundamentals) *float64 { return f.NetIncome }, map[string]string{})
	if growth == nil || *growth <= 0 {
		explanations["peg"] = "N/A - missing or non-positive earnings growth"
		return nil
	}
	v := *pe / (*growth * 100.0)
	return &v
}

// roic approximates NOPAT / invested capital, since no effective-tax-rate
// field is modeled: NOPAT = EBIT * (1 - assumedTaxRate), invested capital =
// total debt + total equity - cash.
func roic(latest store.Fundamentals, explanations map[string]string) *float64 {
	if latest.EBIT == nil {
		explanations["roic"] = "N/A - missing EBIT"
		return nil
	}
	investedCapital := deref(latest.TotalDebt) + deref(latest.TotalEquity) - deref(latest.Cash)
	if investedCapital <= 0 {
		explanations["roic"] = "N/A - non-positive invested capital"
		return nil
	}
	nopat := *latest.EBIT * (1 - assumedTaxRate)
	v := nopat / investedCapital
	return &v
}

func quickRatio(latest store.Fundamentals, explanations map[string]string) *float64 {
	if latest.CurrentAssets == nil || latest.CurrentLiabilities == nil || *latest.CurrentLiabilities <= 0 {
		explanations["quick_ratio"] = "N/A - missing current assets/liabilities"
		return nil
	}
	inventory := deref(latest.Inventory)
	v := (*latest.CurrentAssets - inventory) / *latest.CurrentLiabilities
	return &v
}

// altmanZ computes the five-factor Z-score per §4.6's exact formula and
// weights. stat.Mean isn't needed for a five-term weighted sum, but the
// weighted-combination shape mirrors how the engine's Bollinger/CCI
// helpers lean on gonum for summary arithmetic rather than hand-rolling it.
func altmanZ(latest store.Fundamentals, marketCap *float64, explanations map[string]string) *float64 {
	if latest.TotalAssets == nil || *latest.TotalAssets <= 0 {
		explanations["altman_z_score"] = "N/A - missing total assets"
		return nil
	}
	totalLiabilities := deref(latest.TotalAssets) - deref(latest.TotalEquity)
	if totalLiabilities <= 0 {
		explanations["altman_z_score"] = "N/A - non-positive total liabilities"
		return nil
	}
	if marketCap == nil {
		explanations["altman_z_score"] = "N/A - missing market cap"
		return nil
	}
	workingCapital := deref(latest.CurrentAssets) - deref(latest.CurrentLiabilities)
	a := workingCapital / *latest.TotalAssets
	b := deref(latest.RetainedEarnings) / *latest.TotalAssets
	c := deref(latest.EBIT) / *latest.TotalAssets
	d := *marketCap / totalLiabilities
	e := deref(latest.Revenue) / *latest.TotalAssets

	weights := []float64{1.2, 1.4, 3.3, 0.6, 1.0}
	terms := []float64{a, b, c, d, e}
	z := stat.Mean(terms, weights) * sumWeights(weights)
	return &z
}

func sumWeights(w []float64) float64 {
	var total float64
	for _, v := range w {
		total += v
	}
	return total
}

func inventoryTurnover(latest store.Fundamentals, explanations map[string]string) *float64 {
	// Cost of goods sold isn't a modeled field; revenue - gross_profit
	// reconstructs it (the textbook identity), avoiding an extra
	// first-class field for a single ratio.
	if latest.Revenue == nil || latest.GrossProfit == nil || latest.Inventory == nil || *latest.Inventory <= 0 {
		explanations["inventory_turnover"] = "N/A - missing COGS inputs or inventory"
		return nil
	}
	cogs := *latest.Revenue - *latest.GrossProfit
	if cogs <= 0 {
		explanations["inventory_turnover"] = "N/A - non-positive cost of goods sold"
		return nil
	}
	v := cogs / *latest.Inventory
	return &v
}

func yoyGrowth(name string, current *float64, priorYear *store.Fundamentals, get func(store.Fundamentals) *float64, explanations map[string]string) *float64 {
	if current == nil || priorYear == nil {
		explanations[name] = "N/A - missing current or year-ago figure"
		return nil
	}
	base := get(*priorYear)
	if base == nil || *base <= 0 {
		explanations[name] = "N/A - missing or non-positive year-ago base"
		return nil
	}
	v := (*current - *base) / *base
	return &v
}

// cashConversionCycle approximates DSO + DIO - DPO using the balance-sheet
// snapshot and TTM revenue as the annualization base; accounts payable
// isn't a modeled field, so DPO is omitted and the result is DSO+DIO, noted
// in the explanation when that simplification applies.
func cashConversionCycle(latest store.Fundamentals, ttm fundamentals.TTM, explanations map[string]string) *float64 {
	if latest.Receivables == nil || latest.Inventory == nil || ttm.Revenue == nil || *ttm.Revenue <= 0 {
		explanations["cash_conversion_cycle"] = "N/A - missing receivables/inventory/revenue"
		return nil
	}
	dso := (*latest.Receivables / *ttm.Revenue) * 365.0
	cogs := deref(latest.Revenue) - deref(latest.GrossProfit)
	var dio float64
	if cogs > 0 {
		dio = (*latest.Inventory / cogs) * 365.0
	}
	explanations["cash_conversion_cycle"] = "computed as DSO+DIO; accounts payable not modeled, DPO omitted"
	v := dso + dio
	return &v
}

func grahamNumber(latest store.Fundamentals, explanations map[string]string) *float64 {
	if latest.EPSDiluted == nil || latest.BookValuePerShare == nil || *latest.EPSDiluted <= 0 || *latest.BookValuePerShare <= 0 {
		explanations["graham_number"] = "N/A - non-positive EPS or book value per share"
		return nil
	}
	v := math.Sqrt(15.0 * *latest.EPSDiluted * *latest.BookValuePerShare)
	return &v
}
