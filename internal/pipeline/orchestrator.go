package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/marketpipe/internal/calendar"
	"github.com/aristath/marketpipe/internal/fundamentals"
	"github.com/aristath/marketpipe/internal/indicators"
	"github.com/aristath/marketpipe/internal/prices"
	"github.com/aristath/marketpipe/internal/providers"
	"github.com/aristath/marketpipe/internal/ratios"
	"github.com/aristath/marketpipe/internal/scores"
	"github.com/aristath/marketpipe/internal/store"
)

// indicatorHistoryDays and insufficientHistoryBars implement Phase 2's read
// window and its defer-to-backfill threshold.
const (
	indicatorHistoryDays    = 250
	insufficientHistoryBars = 50
)

// Config bundles the run-level tunables the Orchestrator needs, mirroring
// the relevant fields of config.Config without importing that package
// (config already depends on nothing here, but Orchestrator is built from
// already-loaded values by cmd/pipeline, not from a raw env read).
type Config struct {
	WorkerCount        int
	MinimumHistoryDays int
	RunDeadline        time.Duration

	// RateLimitWaitThreshold is §5's per-phase backpressure bound: the
	// Orchestrator doesn't apply it directly, but passes it to the Router
	// it's constructed with (see cmd/pipeline) so every phase's provider
	// calls share the same defer-on-stall policy.
	RateLimitWaitThreshold time.Duration
}

// Orchestrator runs the six-phase daily pipeline: price refresh, indicator
// computation, fundamentals refresh, ratio/score calculation, history
// backfill, and the delisting sweep. It is the single caller that decides
// phase ordering, budget enforcement, and resumability; every phase's own
// logic lives in its own package (prices, indicators, fundamentals, ratios,
// scores) as a pure or narrowly-scoped component.
type Orchestrator struct {
	log zerolog.Logger
	cfg Config
	cal calendar.NYSE

	tickers  *store.TickerRepository
	bars     *store.BarRepository
	earnings *store.EarningsRepository
	ratiosDB *store.RatiosRepository
	scoresDB *store.ScoresRepository
	updates  *store.UpdateLogRepository

	router *providers.Router
	budget *BudgetTracker

	priceProc *prices.Processor
	fundProc  *fundamentals.Processor
}

// New builds an Orchestrator from its already-constructed collaborators.
// cmd/pipeline is responsible for wiring the concrete Store repositories,
// Provider Router, and BudgetTracker before calling this.
func New(
	log zerolog.Logger,
	cfg Config,
	tickers *store.TickerRepository,
	bars *store.BarRepository,
	earnings *store.EarningsRepository,
	ratiosDB *store.RatiosRepository,
	scoresDB *store.ScoresRepository,
	updates *store.UpdateLogRepository,
	router *providers.Router,
	budget *BudgetTracker,
	priceProc *prices.Processor,
	fundProc *fundamentals.Processor,
) *Orchestrator {
	if cfg.RateLimitWaitThreshold > 0 {
		router.SetRateLimitWaitThreshold(cfg.RateLimitWaitThreshold)
	}
	return &Orchestrator{
		log:       log.With().Str("component", "orchestrator").Logger(),
		cfg:       cfg,
		cal:       calendar.New(),
		tickers:   tickers,
		bars:      bars,
		earnings:  earnings,
		ratiosDB:  ratiosDB,
		scoresDB:  scoresDB,
		updates:   updates,
		router:    router,
		budget:    budget,
		priceProc: priceProc,
		fundProc:  fundProc,
	}
}

// phase names resumability keys off of: ForDate groups UpdateLog rows by
// update_type, and Run looks for a successful row of each name before
// re-running that phase.
const (
	phasePrice        = "phase1_price_refresh"
	phaseIndicators   = "phase2_indicators"
	phaseFundamentals = "phase3_fundamentals"
	phaseRatiosScores = "phase4_ratios_scores"
	phaseBackfill     = "phase5_history_backfill"
	phaseDelisting    = "phase6_delisting_sweep"
	phaseRunSummary   = "run_summary"
)

// Run executes one orchestrated pass for `today` (interpreted as a
// calendar date). It resumes a partially-completed run for the same date
// rather than restarting from Phase 1, per the state machine's durability
// guarantee: any phase with a successful UpdateLog row for today is
// skipped. Earlier rows are found by the UTC date of their started_at
// timestamp, which is wall-clock time, not `today`.
func (o *Orchestrator) Run(ctx context.Context, today time.Time) (RunReport, error) {
	runID, resuming, err := o.resolveRunID(today)
	if err != nil {
		return RunReport{}, fmt.Errorf("failed to resolve run id for %s: %w", today.Format("2006-01-02"), err)
	}
	log := o.log.With().Str("run_id", runID).Logger()
	if resuming {
		log.Info().Msg("resuming partially-completed run")
	} else {
		log.Info().Msg("starting new run")
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.RunDeadline)
	defer cancel()

	report := RunReport{RunID: runID, StartedAt: time.Now().UTC()}

	done, err := o.completedPhases(today)
	if err != nil {
		return report, fmt.Errorf("failed to read update log for %s: %w", today.Format("2006-01-02"), err)
	}

	tradingDay := o.cal.IsTradingDay(today)
	report.TradingDay = tradingDay

	activeTickers, err := o.tickers.ActiveTickers()
	if err != nil {
		report.Status = store.StatusAborted
		return report, fmt.Errorf("failed to list active tickers: %w", err)
	}

	var missingFromPrice []string

	if tradingDay {
		if !done[phasePrice] {
			summary, missing := o.runPhase1(ctx, runID, activeTickers)
			report.Phases = append(report.Phases, summary)
			missingFromPrice = missing
		}
		if !done[phaseIndicators] {
			summary := o.runPhase2(ctx, runID, activeTickers)
			report.Phases = append(report.Phases, summary)
		}
		if !done[phaseFundamentals] {
			summary := o.runPhase3(ctx, runID, today, activeTickers)
			report.Phases = append(report.Phases, summary)
		}
		if !done[phaseRatiosScores] {
			summary := o.runPhase4(ctx, runID, today)
			report.Phases = append(report.Phases, summary)
		}
	} else {
		log.Info().Msg("non-trading day: skipping price, indicator, fundamentals, and ratio phases")
	}

	if !done[phaseBackfill] {
		summary := o.runPhase5(ctx, runID, activeTickers)
		report.Phases = append(report.Phases, summary)
	}
	if !done[phaseDelisting] {
		summary := o.runPhase6(ctx, runID, missingFromPrice)
		report.Phases = append(report.Phases, summary)
	}

	report.CompletedAt = time.Now().UTC()
	report.Resources = captureResourceSnapshot(o.log)
	report.Status = overallStatus(report.Phases)

	if err := o.appendRunSummary(runID, report); err != nil {
		log.Error().Err(err).Msg("failed to append run summary")
	}

	return report, ctx.Err()
}

// resolveRunID finds today's in-progress run (reusing its correlation id so
// resumed phases share the original run's UpdateLog rows) or mints a new
// one.
func (o *Orchestrator) resolveRunID(today time.Time) (string, bool, error) {
	entries, err := o.updates.ForDate(today)
	if err != nil {
		return "", false, err
	}
	if len(entries) == 0 {
		return store.NewRunID(), false, nil
	}
	return entries[0].RunID, true, nil
}

func (o *Orchestrator) completedPhases(today time.Time) (map[string]bool, error) {
	entries, err := o.updates.ForDate(today)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Status == store.StatusSuccess {
			done[e.UpdateType] = true
		}
	}
	return done, nil
}

// runPhase1 refreshes today's quote for every active ticker lacking one,
// charging the shared budget per provider that actually served a batch.
func (o *Orchestrator) runPhase1(ctx context.Context, runID string, activeTickers []string) (PhaseSummary, []string) {
	started := time.Now().UTC()
	summary := PhaseSummary{Name: phasePrice, StartedAt: started}

	needing, err := o.bars.TickersNeedingPriceToday(activeTickers, started)
	if err != nil {
		summary.Status = store.StatusFailed
		summary.ErrorMessage = err.Error()
		summary.CompletedAt = time.Now().UTC()
		o.logPhase(runID, summary)
		return summary, nil
	}

	outcome, err := o.priceProc.RunDailyBatch(ctx, needing)
	if err != nil && len(outcome.Stored) == 0 {
		summary.Status = store.StatusFailed
		summary.ErrorMessage = err.Error()
	} else if err != nil || len(outcome.Missing) > 0 || len(outcome.Rejected) > 0 {
		summary.Status = store.StatusPartial
	} else {
		summary.Status = store.StatusSuccess
	}

	for provider, calls := range outcome.CallsByProvider {
		if recErr := o.budget.Record(provider, started, calls); recErr != nil {
			o.log.Error().Err(recErr).Str("provider", provider).Msg("failed to record price-phase budget usage")
		}
	}

	summary.RecordsProcessed = len(outcome.Stored)
	summary.TickersAffected = outcome.Stored
	summary.Deferred = outcome.Missing
	summary.CompletedAt = time.Now().UTC()
	o.logPhase(runID, summary)
	return summary, outcome.Missing
}

// runPhase2 recomputes the indicator vector on the latest stored bar of
// every active ticker, whether or not Phase 1 priced it this run. It is
// pure CPU work: no provider calls, no budget consumed. Tickers
// with fewer than insufficientHistoryBars bars are deferred to Phase 5
// rather than computed on a too-short window.
func (o *Orchestrator) runPhase2(ctx context.Context, runID string, activeTickers []string) PhaseSummary {
	started := time.Now().UTC()
	summary := PhaseSummary{Name: phaseIndicators, StartedAt: started}

	type result struct {
		ticker      string
		err         error
		insufficient bool
	}

	results, deferred := RunPoolCtx(ctx, o.cfg.WorkerCount, activeTickers, func(ctx context.Context, ticker string) result {
		series, err := o.bars.ReadPriceSeries(ticker, indicatorHistoryDays)
		if err != nil {
			return result{ticker: ticker, err: err}
		}
		if len(series) < insufficientHistoryBars {
			return result{ticker: ticker, insufficient: true}
		}
		ind, err := indicators.Compute(series)
		if err != nil {
			return result{ticker: ticker, err: err}
		}
		last := series[len(series)-1]
		if err := o.bars.UpdateIndicators(ticker, last.Date, ind); err != nil {
			return result{ticker: ticker, err: err}
		}
		return result{ticker: ticker}
	}, nil) // pure CPU work: no provider call, nothing to defer on backpressure

	var affected, insufficient []string
	var failed bool
	for _, r := range results {
		if r.ticker == "" {
			continue
		}
		switch {
		case r.err != nil:
			failed = true
			o.log.Error().Err(r.err).Str("ticker", r.ticker).Msg("indicator computation failed")
		case r.insufficient:
			insufficient = append(insufficient, r.ticker)
		default:
			affected = append(affected, r.ticker)
		}
	}

	summary.RecordsProcessed = len(affected)
	summary.TickersAffected = affected
	summary.Deferred = append(insufficient, deferred...)
	summary.CompletedAt = time.Now().UTC()
	switch {
	case failed:
		summary.Status = store.StatusPartial
	case ctx.Err() != nil:
		summary.Status = store.StatusPartial
	default:
		summary.Status = store.StatusSuccess
	}
	o.logPhase(runID, summary)
	return summary
}

// earningsCalendarWindow bounds the lookahead/lookback range refreshed by
// refreshEarningsCalendar each run: far enough back to catch an event whose
// data_updated flag hasn't been set yet, far enough ahead to give
// Phase 3's earnings-imminent trigger advance notice.
const earningsCalendarWindow = 45 * 24 * time.Hour

// refreshEarningsCalendar fetches the earnings_calendar capability for
// every active ticker and upserts the results, the one consumer of that
// capability in the pipeline; the Fundamentals Processor only ever reads
// what this step wrote. A failure here degrades Phase 3's earnings-imminent
// trigger to whatever EarningsCalendar rows already exist, so it is logged
// but never treated as fatal to the phase.
func (o *Orchestrator) refreshEarningsCalendar(ctx context.Context, today time.Time, activeTickers []string) {
	if len(activeTickers) == 0 {
		return
	}
	resp, provider, err := o.router.Fetch(ctx, providers.Request{
		Capability: providers.CapabilityEarningsCalendar,
		Tickers:    activeTickers,
		From:       today.Add(-earningsCalendarWindow / 3),
		To:         today.Add(earningsCalendarWindow),
	})
	if provider != "" {
		if recErr := o.budget.Record(provider, today, 1); recErr != nil {
			o.log.Error().Err(recErr).Str("provider", provider).Msg("failed to record earnings-calendar budget usage")
		}
	}
	if err != nil {
		o.log.Warn().Err(err).Msg("earnings calendar refresh failed, falling back to existing rows")
		return
	}
	for _, e := range resp.Earnings {
		// Carry forward an existing row's data_updated flag: Upsert always
		// overwrites it, and a provider re-fetch must never undo the
		// Fundamentals Processor's record that this event's figures were
		// already ingested.
		dataUpdated := false
		if existing, err := o.earnings.UpcomingFor(e.Ticker, e.EarningsDate); err == nil && existing != nil && existing.EarningsDate.Equal(e.EarningsDate) {
			dataUpdated = existing.DataUpdated
		}
		entry := store.EarningsCalendarEntry{
			Ticker:          e.Ticker,
			EarningsDate:    e.EarningsDate,
			Confirmed:       e.Confirmed,
			EPSEstimate:     e.EPSEstimate,
			RevenueEstimate: e.RevenueEstimate,
			PriorityLevel:   1,
			DataUpdated:     dataUpdated,
		}
		if err := o.earnings.Upsert(entry); err != nil {
			o.log.Error().Err(err).Str("ticker", e.Ticker).Msg("failed to upsert earnings calendar entry")
		}
	}
}

// runPhase3 evaluates every active ticker against the fundamentals trigger
// policy and refreshes the highest-priority candidates until either the
// worklist is exhausted or the reserve floor is reached.
func (o *Orchestrator) runPhase3(ctx context.Context, runID string, today time.Time, activeTickers []string) PhaseSummary {
	started := time.Now().UTC()
	summary := PhaseSummary{Name: phaseFundamentals, StartedAt: started}

	o.refreshEarningsCalendar(ctx, today, activeTickers)

	candidates, err := o.fundProc.Candidates(today, activeTickers)
	if err != nil {
		summary.Status = store.StatusFailed
		summary.ErrorMessage = err.Error()
		summary.CompletedAt = time.Now().UTC()
		o.logPhase(runID, summary)
		return summary
	}

	var affected []string
	var deferred []string
	for i, c := range candidates {
		if ctx.Err() != nil {
			deferred = append(deferred, c.Ticker)
			continue
		}
		available, err := o.budget.RemainingExcludingReserve(today)
		if err != nil {
			o.log.Error().Err(err).Msg("failed to read remaining budget")
			deferred = append(deferred, c.Ticker)
			continue
		}
		if available <= 0 {
			deferred = append(deferred, c.Ticker)
			continue
		}

		written, provider, err := o.fundProc.Refresh(ctx, c.Ticker, today)
		if provider != "" {
			if recErr := o.budget.Record(provider, today, 1); recErr != nil {
				o.log.Error().Err(recErr).Str("provider", provider).Msg("failed to record fundamentals-phase budget usage")
			}
		}
		var pe *providers.ProviderError
		if errors.As(err, &pe) && pe.Kind == providers.KindRateLimitTimeout {
			// §5's backpressure rule: stop working this phase's queue and
			// defer everything still pending, including this ticker,
			// rather than keep stalling candidate by candidate.
			o.log.Warn().Str("ticker", c.Ticker).Msg("rate limiter exceeded phase threshold, ending fundamentals phase early")
			for _, remaining := range candidates[i:] {
				deferred = append(deferred, remaining.Ticker)
			}
			break
		}
		if err != nil {
			o.log.Error().Err(err).Str("ticker", c.Ticker).Msg("fundamentals refresh failed")
			continue
		}
		if written > 0 {
			affected = append(affected, c.Ticker)
		}
	}

	summary.RecordsProcessed = len(affected)
	summary.TickersAffected = affected
	summary.Deferred = deferred
	summary.CompletedAt = time.Now().UTC()
	switch {
	case len(affected) == 0 && len(candidates) > 0 && len(deferred) == len(candidates):
		summary.Status = store.StatusSkipped
	case len(deferred) > 0:
		summary.Status = store.StatusPartial
	default:
		summary.Status = store.StatusSuccess
	}
	o.logPhase(runID, summary)
	return summary
}

// runPhase4 recomputes ratios and investor scores for every ticker whose
// fundamentals were touched in Phase 3. It is pure computation over the
// Store: no provider calls, no budget consumed.
func (o *Orchestrator) runPhase4(ctx context.Context, runID string, today time.Time) PhaseSummary {
	started := time.Now().UTC()
	summary := PhaseSummary{Name: phaseRatiosScores, StartedAt: started}

	// Phase 3's touched-ticker list isn't threaded through explicitly here
	// (each phase reports only its own affected set); Phase 4 recomputes
	// for every ticker with a fundamentals row on file, which is always a
	// superset and keeps ratios/scores self-consistent even after a
	// resumed run skipped Phase 3 for today.
	tickers, err := o.tickers.ActiveTickers()
	if err != nil {
		summary.Status = store.StatusFailed
		summary.ErrorMessage = err.Error()
		summary.CompletedAt = time.Now().UTC()
		o.logPhase(runID, summary)
		return summary
	}

	type result struct {
		ticker string
		ok     bool
		err    error
	}

	results, _ := RunPoolCtx(ctx, o.cfg.WorkerCount, tickers, func(ctx context.Context, ticker string) result {
		latest, err := o.fundProc.LatestReport(ticker)
		if err != nil {
			return result{ticker: ticker, err: err}
		}
		if latest == nil {
			return result{ticker: ticker}
		}

		ttm, err := o.fundProc.ComputeTTM(ticker)
		if err != nil {
			return result{ticker: ticker, err: err}
		}
		if ttm == nil {
			return result{ticker: ticker}
		}

		priorYear, err := o.fundProc.PriorYearQuarter(ticker, *latest)
		if err != nil {
			return result{ticker: ticker, err: err}
		}

		series, err := o.bars.ReadPriceSeries(ticker, 1)
		if err != nil {
			return result{ticker: ticker, err: err}
		}
		var closePrice float64
		if len(series) > 0 {
			closePrice = series[len(series)-1].CloseF()
		}

		r := ratios.Calculate(ratios.Inputs{
			Ticker:          ticker,
			CalculationDate: today,
			ClosePrice:      closePrice,
			Latest:          *latest,
			TTM:             *ttm,
			PriorYear:       priorYear,
		})
		if err := o.ratiosDB.Upsert(r); err != nil {
			return result{ticker: ticker, err: err}
		}

		s := scores.Calculate(ticker, r)
		if err := o.scoresDB.Upsert(s); err != nil {
			return result{ticker: ticker, err: err}
		}

		return result{ticker: ticker, ok: true}
	}, nil) // pure computation over the Store: no provider call, nothing to defer on backpressure

	var affected []string
	var failed bool
	for _, r := range results {
		if r.err != nil {
			failed = true
			o.log.Error().Err(r.err).Str("ticker", r.ticker).Msg("ratio/score computation failed")
			continue
		}
		if r.ok {
			affected = append(affected, r.ticker)
		}
	}

	summary.RecordsProcessed = len(affected)
	summary.TickersAffected = affected
	summary.CompletedAt = time.Now().UTC()
	if failed {
		summary.Status = store.StatusPartial
	} else {
		summary.Status = store.StatusSuccess
	}
	o.logPhase(runID, summary)
	return summary
}

// runPhase5 backfills history toward the configured minimum for every
// active ticker that still falls short, spending down into the reserve
// budget floor that Phase 3 is forbidden from touching.
func (o *Orchestrator) runPhase5(ctx context.Context, runID string, activeTickers []string) PhaseSummary {
	started := time.Now().UTC()
	summary := PhaseSummary{Name: phaseBackfill, StartedAt: started}

	needing, err := o.bars.TickersNeedingHistory(activeTickers, o.cfg.MinimumHistoryDays)
	if err != nil {
		summary.Status = store.StatusFailed
		summary.ErrorMessage = err.Error()
		summary.CompletedAt = time.Now().UTC()
		o.logPhase(runID, summary)
		return summary
	}

	var affected []string
	var deferred []string
	for i, ticker := range needing {
		if ctx.Err() != nil {
			deferred = append(deferred, ticker)
			continue
		}
		reserve, err := o.budget.Reserve(started)
		if err != nil {
			o.log.Error().Err(err).Msg("failed to read reserve budget")
			deferred = append(deferred, ticker)
			continue
		}
		if reserve <= 0 {
			deferred = append(deferred, ticker)
			continue
		}

		stored, provider, err := o.priceProc.FillToMinimum(ctx, ticker, o.cfg.MinimumHistoryDays)
		if provider != "" {
			if recErr := o.budget.Record(provider, started, 1); recErr != nil {
				o.log.Error().Err(recErr).Str("provider", provider).Msg("failed to record backfill budget usage")
			}
		}
		var pe *providers.ProviderError
		if errors.As(err, &pe) && pe.Kind == providers.KindRateLimitTimeout {
			// §5's backpressure rule: end the backfill phase early and
			// defer the rest of the worklist, including this ticker.
			o.log.Warn().Str("ticker", ticker).Msg("rate limiter exceeded phase threshold, ending backfill phase early")
			deferred = append(deferred, needing[i:]...)
			break
		}
		if err != nil {
			o.log.Error().Err(err).Str("ticker", ticker).Msg("history backfill failed")
			continue
		}
		if stored > 0 {
			affected = append(affected, ticker)
		}
	}

	summary.RecordsProcessed = len(affected)
	summary.TickersAffected = affected
	summary.Deferred = deferred
	summary.CompletedAt = time.Now().UTC()
	switch {
	case len(deferred) > 0:
		summary.Status = store.StatusPartial
	default:
		summary.Status = store.StatusSuccess
	}
	o.logPhase(runID, summary)
	return summary
}

// runPhase6 re-probes every ticker Phase 1 could not price at all, via
// whatever provider the Router falls back to. A ticker still unknown after
// that probe is marked inactive; its historical rows are preserved.
func (o *Orchestrator) runPhase6(ctx context.Context, runID string, missing []string) PhaseSummary {
	started := time.Now().UTC()
	summary := PhaseSummary{Name: phaseDelisting, StartedAt: started}

	var delisted []string
	for _, ticker := range missing {
		if ctx.Err() != nil {
			break
		}
		resp, _, err := o.router.Fetch(ctx, providers.Request{
			Capability: providers.CapabilityQuoteBatch,
			Tickers:    []string{ticker},
		})
		if err == nil && len(resp.Quotes) > 0 {
			continue
		}
		if pe, ok := err.(*providers.ProviderError); err != nil && (!ok || pe.Kind != providers.KindTickerUnknown) {
			// A non-ticker-specific failure (rate limit, transient, no
			// provider available, cancellation) doesn't prove the ticker
			// is gone; leave it active and let the next run's Phase 1 try
			// again.
			o.log.Warn().Err(err).Str("ticker", ticker).Msg("delisting probe inconclusive")
			continue
		}
		if err := o.tickers.SetActive(ticker, false); err != nil {
			o.log.Error().Err(err).Str("ticker", ticker).Msg("failed to mark ticker inactive")
			continue
		}
		delisted = append(delisted, ticker)
	}

	summary.RecordsProcessed = len(delisted)
	summary.TickersAffected = delisted
	summary.CompletedAt = time.Now().UTC()
	summary.Status = store.StatusSuccess
	o.logPhase(runID, summary)
	return summary
}

func (o *Orchestrator) logPhase(runID string, s PhaseSummary) {
	entry := store.UpdateLogEntry{
		RunID:            runID,
		UpdateType:       s.Name,
		Status:           s.Status,
		ErrorMessage:     s.ErrorMessage,
		RecordsProcessed: s.RecordsProcessed,
		ExecutionTimeMs:  s.durationMs(),
		StartedAt:        s.StartedAt,
		CompletedAt:      &s.CompletedAt,
	}
	if err := o.updates.Append(entry); err != nil {
		o.log.Error().Err(err).Str("phase", s.Name).Msg("failed to append phase update log entry")
	}
}

func (o *Orchestrator) appendRunSummary(runID string, report RunReport) error {
	total := 0
	for _, p := range report.Phases {
		total += p.RecordsProcessed
	}
	completed := report.CompletedAt
	return o.updates.Append(store.UpdateLogEntry{
		RunID:            runID,
		UpdateType:       phaseRunSummary,
		Status:           report.Status,
		RecordsProcessed: total,
		ExecutionTimeMs:  report.CompletedAt.Sub(report.StartedAt).Milliseconds(),
		StartedAt:        report.StartedAt,
		CompletedAt:      &completed,
	})
}

func overallStatus(phases []PhaseSummary) store.UpdateStatus {
	if len(phases) == 0 {
		return store.StatusSkipped
	}
	sawFailure := false
	sawPartial := false
	for _, p := range phases {
		switch p.Status {
		case store.StatusFailed, store.StatusAborted:
			sawFailure = true
		case store.StatusPartial:
			sawPartial = true
		}
	}
	switch {
	case sawFailure:
		return store.StatusPartial
	case sawPartial:
		return store.StatusPartial
	default:
		return store.StatusSuccess
	}
}
