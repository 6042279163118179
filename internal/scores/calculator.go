// Package scores is the Investor Scores Calculator: it maps a ticker's
// ratio vector into three weighted composite profiles (Conservative, GARP,
// Deep Value) built from six renormalizable 0-100 components, then applies
// a risk-warning multiplier derived from the same ratios. It performs no
// I/O.
package scores

import (
	"github.com/aristath/marketpipe/internal/store"
)

// profile names the three scoring profiles' fixed component weights.
type profile struct {
	valuation, quality, financialHealth, profitability, growth, management float64
}

var (
	conservativeWeights = profile{valuation: 0.25, quality: 0.20, financialHealth: 0.30, profitability: 0.15, growth: 0.05, management: 0.05}
	garpWeights         = profile{valuation: 0.25, quality: 0.20, financialHealth: 0.10, profitability: 0.15, growth: 0.25, management: 0.05}
	deepValueWeights    = profile{valuation: 0.40, quality: 0.15, financialHealth: 0.25, profitability: 0.10, growth: 0.05, management: 0.05}
)

// bound is one piecewise-linear anchor pair for scoring a single ratio onto
// 0-100. lowerBetter reverses the ramp direction (e.g. P/E, debt/equity).
type bound struct {
	worst, best float64
	lowerBetter bool
}

func (b bound) score(v float64) float64 {
	var t float64
	if b.lowerBetter {
		t = (b.worst - v) / (b.worst - b.best)
	} else {
		t = (v - b.worst) / (b.best - b.worst)
	}
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return t * 100
}

// defaultThresholds is the only threshold table: every ticker is scored
// against these global defaults, and no per-industry or per-sector table
// is consulted.
var defaultThresholds = map[string]bound{
	"pe":                  {worst: 40, best: 10, lowerBetter: true},
	"pb":                  {worst: 6, best: 1, lowerBetter: true},
	"ps":                  {worst: 10, best: 1, lowerBetter: true},
	"ev_ebitda":           {worst: 20, best: 6, lowerBetter: true},
	"peg":                 {worst: 3, best: 0.5, lowerBetter: true},
	"roe":                 {worst: 0, best: 0.25},
	"roa":                 {worst: 0, best: 0.12},
	"roic":                {worst: 0, best: 0.15},
	"gross_margin":        {worst: 0.10, best: 0.60},
	"operating_margin":    {worst: 0, best: 0.30},
	"net_margin":          {worst: 0, best: 0.20},
	"debt_to_equity":      {worst: 2.5, best: 0.2, lowerBetter: true},
	"current_ratio":       {worst: 0.8, best: 2.5},
	"quick_ratio":         {worst: 0.5, best: 1.5},
	"interest_coverage":   {worst: 1.5, best: 10},
	"altman_z_score":      {worst: 1.0, best: 4.0},
	"asset_turnover":      {worst: 0.2, best: 1.5},
	"inventory_turnover":  {worst: 2, best: 10},
	"receivables_turnover": {worst: 3, best: 15},
	"revenue_growth_yoy":  {worst: -0.05, best: 0.25},
	"earnings_growth_yoy": {worst: -0.10, best: 0.30},
	"fcf_growth_yoy":      {worst: -0.10, best: 0.30},
	"fcf_to_net_income":   {worst: 0.4, best: 1.2},
	"cash_conversion_cycle": {worst: 120, best: 10, lowerBetter: true},
}

func lookupThreshold(name string) (bound, bool) {
	b, ok := defaultThresholds[name]
	return b, ok
}

// namedRatio pairs a ratio's name (for threshold lookup) with its value.
type namedRatio struct {
	name  string
	value *float64
}

func componentScore(ratios []namedRatio) *float64 {
	var total float64
	var count int
	for _, r := range ratios {
		if r.value == nil {
			continue
		}
		b, ok := lookupThreshold(r.name)
		if !ok {
			continue
		}
		total += b.score(*r.value)
		count++
	}
	if count == 0 {
		return nil
	}
	avg := total / float64(count)
	return &avg
}

// Calculate computes the Scores entity for one ticker from its latest
// ratio vector.
func Calculate(ticker string, r store.Ratios) store.Scores {
	valuation := componentScore([]namedRatio{
		{"pe", r.PE}, {"pb", r.PB}, {"ps", r.PS}, {"ev_ebitda", r.EVEBITDA}, {"peg", r.PEG},
	})
	profitability := componentScore([]namedRatio{
		{"roe", r.ROE}, {"roa", r.ROA}, {"roic", r.ROIC},
		{"gross_margin", r.GrossMargin}, {"operating_margin", r.OperatingMargin}, {"net_margin", r.NetMargin},
	})
	financialHealth := componentScore([]namedRatio{
		{"debt_to_equity", r.DebtToEquity}, {"current_ratio", r.CurrentRatio}, {"quick_ratio", r.QuickRatio},
		{"interest_coverage", r.InterestCoverage}, {"altman_z_score", r.AltmanZScore},
	})
	growth := componentScore([]namedRatio{
		{"revenue_growth_yoy", r.RevenueGrowthYoY}, {"earnings_growth_yoy", r.EarningsGrowthYoY}, {"fcf_growth_yoy", r.FCFGrowthYoY},
	})
	quality := componentScore([]namedRatio{
		{"fcf_to_net_income", r.FCFToNetIncome}, {"cash_conversion_cycle", r.CashConversionCycle},
	})
	// Management has no dedicated ratio group in §4.6's table; the
	// Efficiency group (asset/inventory/receivables turnover) is the
	// standard proxy for capital-allocation discipline and is repurposed
	// here as the Management component's input.
	management := componentScore([]namedRatio{
		{"asset_turnover", r.AssetTurnover}, {"inventory_turnover", r.InventoryTurnover}, {"receivables_turnover", r.ReceivablesTurnover},
	})

	components := store.ComponentScores{
		Valuation:       valuation,
		Quality:         quality,
		FinancialHealth: financialHealth,
		Profitability:   profitability,
		Growth:          growth,
		Management:      management,
	}

	riskLevel, riskFactors := assessRisk(r)
	multiplier := riskMultiplier(riskLevel)

	conservative := weightedScore(components, conservativeWeights, multiplier)
	garp := weightedScore(components, garpWeights, multiplier)
	deepValue := weightedScore(components, deepValueWeights, multiplier)

	return store.Scores{
		Ticker:            ticker,
		CalculationDate:   r.CalculationDate,
		ConservativeScore: conservative,
		GARPScore:         garp,
		DeepValueScore:    deepValue,
		Components:        components,
		RiskLevel:         riskLevel,
		RiskFactors:       riskFactors,
		Explanation:       r.Explanations,
	}
}

// weightedScore applies profile w to components, renormalizing weights
// across whichever components are present, then applies the risk
// multiplier last, per §4.7 rule 6 and the risk-warning policy.
func weightedScore(c store.ComponentScores, w profile, multiplier float64) *float64 {
	type pair struct {
		score  *float64
		weight float64
	}
	pairs := []pair{
		{c.Valuation, w.valuation},
		{c.Quality, w.quality},
		{c.FinancialHealth, w.financialHealth},
		{c.Profitability, w.profitability},
		{c.Growth, w.growth},
		{c.Management, w.management},
	}

	var weightSum float64
	var scoreSum float64
	for _, p := range pairs {
		if p.score == nil {
			continue
		}
		weightSum += p.weight
		scoreSum += *p.score * p.weight
	}
	if weightSum == 0 {
		return nil
	}
	result := (scoreSum / weightSum) * multiplier
	return &result
}

// assessRisk derives the RiskLevel and contributing factor names from the
// ratio vector. Altman Z < 1.8 is the spec's named example; an Altman Z
// gray zone (< 2.99), current ratio < 1 (can't cover near-term
// obligations), negative net margin and debt/equity > 2 round out the set,
// each a standard solvency/profitability red flag.
func assessRisk(r store.Ratios) (store.RiskLevel, []string) {
	var factors []string
	level := store.RiskNone

	worsen := func(l store.RiskLevel) {
		if riskRank(l) > riskRank(level) {
			level = l
		}
	}

	if r.AltmanZScore != nil {
		switch {
		case *r.AltmanZScore < 1.8:
			factors = append(factors, "altman_z_below_1.8")
			worsen(store.RiskHigh)
		case *r.AltmanZScore < 2.99:
			factors = append(factors, "altman_z_gray_zone")
			worsen(store.RiskWarning)
		}
	}
	if r.CurrentRatio != nil && *r.CurrentRatio < 1.0 {
		factors = append(factors, "current_ratio_below_1")
		worsen(store.RiskWarning)
	}
	if r.NetMargin != nil && *r.NetMargin < 0 {
		factors = append(factors, "negative_net_margin")
		worsen(store.RiskCaution)
	}
	if r.DebtToEquity != nil && *r.DebtToEquity > 2.0 {
		factors = append(factors, "debt_to_equity_above_2")
		worsen(store.RiskCaution)
	}

	return level, factors
}

func riskRank(l store.RiskLevel) int {
	switch l {
	case store.RiskHigh:
		return 3
	case store.RiskWarning:
		return 2
	case store.RiskCaution:
		return 1
	default:
		return 0
	}
}

// riskMultiplier applies §4.7's risk-warning multipliers, last in the
// weighting chain.
func riskMultiplier(l store.RiskLevel) float64 {
	switch l {
	case store.RiskHigh:
		return 0.70
	case store.RiskWarning:
		return 0.85
	case store.RiskCaution:
		return 0.95
	default:
		return 1.0
	}
}
