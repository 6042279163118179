// Package fundamentals is the pipeline's Fundamentals Processor: per ticker,
// it decides whether a refresh is warranted, fetches the raw statement pack
// through the Provider Router, maps it into the Store's Fundamentals schema,
// and computes the TTM figures the Ratio Calculator consumes.
package fundamentals

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/marketpipe/internal/providers"
	"github.com/aristath/marketpipe/internal/store"
)

// staleAfter and earningsLookback implement §4.6's trigger policy rules 2
// and 3.
const (
	staleAfter       = 90 * 24 * time.Hour
	stale30After     = 30 * 24 * time.Hour
	earningsLookback = 7 * 24 * time.Hour
	ttmQuarters      = 4
)

// Priority mirrors §4.7's Phase 3 priority formula. Higher runs first.
type Priority int

const (
	PriorityDefault          Priority = 1
	PriorityStale90Days      Priority = 2
	PriorityStale30Days      Priority = 3
	PriorityNoFundamentals   Priority = 4
	PriorityEarningsImminent Priority = 5
)

// Trigger names which rule of §4.6 fired for a ticker, for the run report.
type Trigger string

const (
	TriggerNoRow            Trigger = "no_fundamentals_row"
	TriggerStale90          Trigger = "stale_over_90_days"
	TriggerStale30          Trigger = "stale_over_30_days"
	TriggerEarningsImminent Trigger = "earnings_within_7_days"
	TriggerExplicit         Trigger = "orchestrator_prioritized"
)

// Candidate is one ticker the Orchestrator has decided to evaluate for
// refresh, along with why and at what priority.
type Candidate struct {
	Ticker   string
	Priority Priority
	Trigger  Trigger
}

// Processor is the Fundamentals Processor.
type Processor struct {
	log          zerolog.Logger
	router       *providers.Router
	fundamentals *store.FundamentalsRepository
	tickers      *store.TickerRepository
	earnings     *store.EarningsRepository
}

// NewProcessor builds a Processor.
func NewProcessor(log zerolog.Logger, router *providers.Router, fundamentals *store.FundamentalsRepository, tickers *store.TickerRepository, earnings *store.EarningsRepository) *Processor {
	return &Processor{
		log:          log.With().Str("component", "fundamentals_processor").Logger(),
		router:       router,
		fundamentals: fundamentals,
		tickers:      tickers,
		earnings:     earnings,
	}
}

// Candidates assembles the Phase 3 worklist: every active ticker matching
// any of §4.6's trigger rules 1-3, deduplicated and ordered by descending
// priority (highest first), ties broken by symbol for determinism. Rule 4
// (explicit orchestrator prioritization) is merged in by the caller via
// WithExplicit, since only the Orchestrator knows which tickers it wants to
// force.
func (p *Processor) Candidates(now time.Time, activeTickers []string) ([]Candidate, error) {
	byTicker := make(map[string]Candidate, len(activeTickers))

	// Query the looser >30-day cutoff, not the >90-day one: staleAfter only
	// decides which bucket a stale ticker lands in below, and querying at
	// that threshold would silently drop every ticker in the 30-90 day
	// range before PriorityStale30Days ever saw them.
	stale, err := p.tickers.NeedingFundamentalsRefresh(stale30After, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale tickers: %w", err)
	}
	staleSet := make(map[string]bool, len(stale))
	for _, t := range stale {
		staleSet[t] = true
	}

	pending, err := p.earnings.PendingFundamentalsTriggers(now, earningsLookback)
	if err != nil {
		return nil, fmt.Errorf("failed to list earnings-pending tickers: %w", err)
	}
	pendingSet := make(map[string]bool, len(pending))
	for _, t := range pending {
		pendingSet[t] = true
	}

	for _, t := range activeTickers {
		switch {
		case pendingSet[t]:
			byTicker[t] = Candidate{Ticker: t, Priority: PriorityEarningsImminent, Trigger: TriggerEarningsImminent}
		case staleSet[t]:
			row, err := p.tickers.GetBySymbol(t)
			if err != nil {
				return nil, err
			}
			if row == nil || row.FundamentalsLastUpdate == nil {
				byTicker[t] = Candidate{Ticker: t, Priority: PriorityNoFundamentals, Trigger: TriggerNoRow}
				continue
			}
			age := now.Sub(*row.FundamentalsLastUpdate)
			if age > staleAfter {
				byTicker[t] = Candidate{Ticker: t, Priority: PriorityStale90Days, Trigger: TriggerStale90}
			} else {
				byTicker[t] = Candidate{Ticker: t, Priority: PriorityStale30Days, Trigger: TriggerStale30}
			}
		}
	}

	candidates := make([]Candidate, 0, len(byTicker))
	for _, c := range byTicker {
		candidates = append(candidates, c)
	}
	sortByPriorityDesc(candidates)
	return candidates, nil
}

// WithExplicit merges the Orchestrator's explicitly-prioritized tickers
// (§4.6 rule 4) into candidates, at PriorityEarningsImminent-equal urgency
// but marked with TriggerExplicit, skipping any ticker already present.
func WithExplicit(candidates []Candidate, explicit []string) []Candidate {
	present := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		present[c.Ticker] = true
	}
	for _, t := range explicit {
		if !present[t] {
			candidates = append(candidates, Candidate{Ticker: t, Priority: PriorityEarningsImminent, Trigger: TriggerExplicit})
		}
	}
	sortByPriorityDesc(candidates)
	return candidates
}

func sortByPriorityDesc(c []Candidate) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && (c[j].Priority > c[j-1].Priority ||
			(c[j].Priority == c[j-1].Priority && c[j].Ticker < c[j-1].Ticker)); j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}

// Refresh fetches ticker's statement pack via the Router, upserts the
// resulting Fundamentals row(s), advances fundamentals_last_update, and
// sets the EarningsCalendar.data_updated flag for any earnings event this
// report satisfies. It reports how many Fundamentals rows were written and
// which provider served the call, so the Orchestrator can charge its
// shared daily budget ledger.
func (p *Processor) Refresh(ctx context.Context, ticker string, now time.Time) (int, string, error) {
	resp, providerName, err := p.router.Fetch(ctx, providers.Request{
		Capability: providers.CapabilityFundamentals,
		Ticker:     ticker,
	})
	if err != nil {
		return 0, "", fmt.Errorf("failed to fetch fundamentals for %s: %w", ticker, err)
	}
	if len(resp.Fundamentals) == 0 {
		return 0, providerName, fmt.Errorf("fundamentals provider %s returned no statement periods for %s", providerName, ticker)
	}

	written := 0
	for _, report := range resp.Fundamentals {
		row := mapReport(ticker, report, now)
		if err := p.fundamentals.Upsert(row); err != nil {
			p.router.MarkFailed(providerName, providers.KindDataInvalid)
			return written, providerName, fmt.Errorf("failed to upsert fundamentals for %s: %w", ticker, err)
		}
		written++
	}

	if err := p.tickers.SetFundamentalsLastUpdate(ticker, now); err != nil {
		return written, providerName, fmt.Errorf("failed to advance fundamentals_last_update for %s: %w", ticker, err)
	}

	if entry, err := p.earnings.UpcomingFor(ticker, now.Add(-earningsLookback)); err == nil && entry != nil && !entry.DataUpdated {
		_ = p.earnings.MarkDataUpdated(ticker, entry.EarningsDate)
	}

	return written, providerName, nil
}

func mapReport(ticker string, r providers.FundamentalsReport, now time.Time) store.Fundamentals {
	period := store.PeriodQuarterly
	if r.PeriodType == string(store.PeriodAnnual) {
		period = store.PeriodAnnual
	}
	return store.Fundamentals{
		Ticker:            ticker,
		ReportDate:        r.ReportDate,
		PeriodType:        period,
		FiscalYear:        r.FiscalYear,
		FiscalQuarter:     r.FiscalQuarter,
		Revenue:           r.Revenue,
		GrossProfit:       r.GrossProfit,
		OperatingIncome:   r.OperatingIncome,
		NetIncome:         r.NetIncome,
		EBITDA:            r.EBITDA,
		EPSDiluted:        r.EPSDiluted,
		BookValuePerShare: r.BookValuePerShare,
		TotalAssets:       r.TotalAssets,
		TotalDebt:         r.TotalDebt,
		TotalEquity:       r.TotalEquity,
		Cash:              r.Cash,
		OperatingCashFlow: r.OperatingCashFlow,
		FreeCashFlow:      r.FreeCashFlow,
		CapEx:             r.CapEx,
		SharesOutstanding: r.SharesOutstanding,
		SharesFloat:       r.SharesFloat,
		CurrentAssets:      r.CurrentAssets,
		CurrentLiabilities: r.CurrentLiabilities,
		Inventory:          r.Inventory,
		Receivables:        r.Receivables,
		RetainedEarnings:   r.RetainedEarnings,
		EBIT:               r.EBIT,
		InterestExpense:    r.InterestExpense,
		DataSource:        "provider",
		DataQuality:       store.QualityNormal,
		LastUpdated:       now,
	}
}

// LatestReport returns the single most recent statement period on file for
// ticker, whichever of its latest quarterly or annual row has the newer
// report date — the balance-sheet snapshot the Ratio Calculator's Inputs.
// Latest field needs. Returns nil if no statement has ever been stored.
func (p *Processor) LatestReport(ticker string) (*store.Fundamentals, error) {
	quarters, err := p.fundamentals.LastNQuarters(ticker, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest quarterly fundamentals for %s: %w", ticker, err)
	}
	annual, err := p.fundamentals.LastAnnual(ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest annual fundamentals for %s: %w", ticker, err)
	}

	switch {
	case len(quarters) == 0:
		return annual, nil
	case annual == nil:
		return &quarters[0], nil
	case annual.ReportDate.After(quarters[0].ReportDate):
		return annual, nil
	default:
		return &quarters[0], nil
	}
}

// TTM is the trailing-twelve-month figure set the Ratio Calculator needs:
// the sum of the four most recent quarterly statements, or — when fewer
// than four quarters are on file — the most recent annual statement,
// flagged low-quality per §4.6.
type TTM struct {
	Revenue         *float64
	GrossProfit     *float64
	OperatingIncome *float64
	NetIncome       *float64
	EBITDA          *float64
	FreeCashFlow    *float64
	Quality         store.DataQuality
	Source          store.Fundamentals // the most recent period, for balance-sheet snapshot fields
}

// ComputeTTM loads the most recent statements for ticker and derives the
// trailing-twelve-month income-statement figures.
func (p *Processor) ComputeTTM(ticker string) (*TTM, error) {
	quarters, err := p.fundamentals.LastNQuarters(ticker, ttmQuarters)
	if err != nil {
		return nil, fmt.Errorf("failed to load quarterly fundamentals for %s: %w", ticker, err)
	}

	if len(quarters) == ttmQuarters {
		return sumQuarters(quarters, store.QualityNormal), nil
	}

	annual, err := p.fundamentals.LastAnnual(ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to load annual fundamentals for %s: %w", ticker, err)
	}
	if annual == nil {
		if len(quarters) == 0 {
			return nil, nil
		}
		// Partial quarterly history with no annual fallback: sum what we
		// have, flagged low quality since it understates a true TTM.
		return sumQuarters(quarters, store.QualityLow), nil
	}
	return &TTM{
		Revenue:         annual.Revenue,
		GrossProfit:     annual.GrossProfit,
		OperatingIncome: annual.OperatingIncome,
		NetIncome:       annual.NetIncome,
		EBITDA:          annual.EBITDA,
		FreeCashFlow:    annual.FreeCashFlow,
		Quality:         store.QualityLow,
		Source:          *annual,
	}, nil
}

func sumQuarters(quarters []store.Fundamentals, quality store.DataQuality) *TTM {
	return &TTM{
		Revenue:         sumPtr(quarters, func(f store.Fundamentals) *float64 { return f.Revenue }),
		GrossProfit:     sumPtr(quarters, func(f store.Fundamentals) *float64 { return f.GrossProfit }),
		OperatingIncome: sumPtr(quarters, func(f store.Fundamentals) *float64 { return f.OperatingIncome }),
		NetIncome:       sumPtr(quarters, func(f store.Fundamentals) *float64 { return f.NetIncome }),
		EBITDA:          sumPtr(quarters, func(f store.Fundamentals) *float64 { return f.EBITDA }),
		FreeCashFlow:    sumPtr(quarters, func(f store.Fundamentals) *float64 { return f.FreeCashFlow }),
		Quality:         quality,
		Source:          quarters[0],
	}
}

// PriorYearQuarter returns the statement for the same fiscal quarter one
// year before latest, the comparison §4.6's YoY growth ratios need, or nil
// if that period isn't on file.
func (p *Processor) PriorYearQuarter(ticker string, latest store.Fundamentals) (*store.Fundamentals, error) {
	if latest.FiscalQuarter == nil {
		return nil, nil
	}
	history, err := p.fundamentals.LastNQuarters(ticker, ttmQuarters*2)
	if err != nil {
		return nil, fmt.Errorf("failed to load quarterly history for %s: %w", ticker, err)
	}
	for _, f := range history {
		if f.FiscalQuarter != nil && *f.FiscalQuarter == *latest.FiscalQuarter && f.FiscalYear == latest.FiscalYear-1 {
			return &f, nil
		}
	}
	return nil, nil
}

func sumPtr(rows []store.Fundamentals, get func(store.Fundamentals) *float64) *float64 {
	var total float64
	any := false
	for _, r := range rows {
		v := get(r)
		if v == nil {
			continue
		}
		total += *v
		any = true
	}
	if !any {
		return nil
	}
	return &total
}
