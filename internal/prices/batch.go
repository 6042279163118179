package prices

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/marketpipe/internal/providers"
	"github.com/aristath/marketpipe/internal/store"
)

// Outcome summarizes one batch run's per-ticker disposition, the shape the
// Pipeline Orchestrator's run report needs for Phase 1/Phase 5.
type Outcome struct {
	Stored   []string
	Rejected []RejectedQuote
	Missing  []string // requested but absent from every provider response

	// CallsByProvider counts one entry per batch actually served by a
	// provider (a router.Fetch call that returned a response), keyed by
	// provider name. The Orchestrator charges these against its shared
	// daily budget ledger; a batch that failed on every provider charges
	// nothing, since no call succeeded.
	CallsByProvider map[string]int
}

func (o *Outcome) chargeCall(provider string) {
	if o.CallsByProvider == nil {
		o.CallsByProvider = make(map[string]int)
	}
	o.CallsByProvider[provider]++
}

// Processor is the Batch Price Processor: it partitions a ticker list into
// provider-sized batches, fetches through the Router, validates each quote,
// and upserts the survivors.
type Processor struct {
	log             zerolog.Logger
	router          *providers.Router
	bars            *store.BarRepository
	batchSize       int
	interBatchDelay time.Duration
}

// NewProcessor builds a Processor. batchSize and interBatchDelay come from
// Config.PriceBatchSize / Config.InterBatchDelay.
func NewProcessor(log zerolog.Logger, router *providers.Router, bars *store.BarRepository, batchSize int, interBatchDelay time.Duration) *Processor {
	return &Processor{
		log:             log.With().Str("component", "price_processor").Logger(),
		router:          router,
		bars:            bars,
		batchSize:       batchSize,
		interBatchDelay: interBatchDelay,
	}
}

// RunDailyBatch fetches today's quote for every ticker in tickers, in
// batches of p.batchSize, validating and storing each survivor.
func (p *Processor) RunDailyBatch(ctx context.Context, tickers []string) (Outcome, error) {
	var outcome Outcome
	today := time.Now().UTC()

	for i := 0; i < len(tickers); i += p.batchSize {
		if ctx.Err() != nil {
			return outcome, ctx.Err()
		}
		end := i + p.batchSize
		if end > len(tickers) {
			end = len(tickers)
		}
		batch := tickers[i:end]

		resp, providerName, err := p.router.Fetch(ctx, providers.Request{
			Capability: providers.CapabilityQuoteBatch,
			Tickers:    batch,
		})
		if err != nil {
			if pe, ok := err.(*providers.ProviderError); ok && pe.Kind == providers.KindRateLimitTimeout {
				// §5's backpressure rule: every provider serving this
				// capability stalled past the phase threshold. End the
				// phase early rather than burn the rest of the run
				// waiting batch by batch; the remaining tickers (this
				// batch and everything after it) are deferred to the
				// next run.
				p.log.Warn().Strs("batch", batch).Msg("rate limiter exceeded phase threshold, deferring remainder of batch")
				outcome.Missing = append(outcome.Missing, tickers[i:]...)
				break
			}
			p.log.Error().Err(err).Strs("batch", batch).Msg("quote batch fetch failed")
			outcome.Missing = append(outcome.Missing, batch...)
			continue
		}
		outcome.chargeCall(providerName)

		byTicker := make(map[string]providers.Quote, len(resp.Quotes))
		for _, q := range resp.Quotes {
			byTicker[q.Ticker] = q
		}

		for _, ticker := range batch {
			q, ok := byTicker[ticker]
			if !ok {
				outcome.Missing = append(outcome.Missing, ticker)
				continue
			}
			if err := p.storeIfValid(ticker, q, &outcome, &today); err != nil {
				p.log.Error().Err(err).Str("ticker", ticker).Msg("failed to store validated quote")
				p.router.MarkFailed(providerName, providers.KindDataInvalid)
			}
		}

		if end < len(tickers) && p.interBatchDelay > 0 {
			timer := time.NewTimer(p.interBatchDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return outcome, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return outcome, nil
}

// FillToMinimum backfills ticker's history up to minDays bars via a
// historical_range call, returning how many bars were stored and which
// provider served the call (empty if no call was needed or issued).
func (p *Processor) FillToMinimum(ctx context.Context, ticker string, minDays int) (int, string, error) {
	count, err := p.bars.BarCount(ticker)
	if err != nil {
		return 0, "", err
	}
	if count >= minDays {
		return 0, "", nil
	}

	to := time.Now().UTC()
	// Request extra calendar days to account for weekends/holidays between
	// trading sessions.
	from := to.AddDate(0, 0, -(minDays-count)*2-10)

	resp, providerName, err := p.router.Fetch(ctx, providers.Request{
		Capability: providers.CapabilityHistoricalRange,
		Ticker:     ticker,
		From:       from,
		To:         to,
	})
	if err != nil {
		return 0, "", err
	}

	var outcome Outcome
	for _, q := range resp.Quotes {
		if err := p.storeIfValid(ticker, q, &outcome, nil); err != nil {
			p.router.MarkFailed(providerName, providers.KindDataInvalid)
		}
	}
	return len(outcome.Stored), providerName, nil
}

// storeIfValid validates q and upserts it if it passes. requireDate, when
// non-nil, enforces §4.3 step 4's same-day check (q.Date's calendar day, in
// UTC, must equal requireDate's): the live daily-batch path requires this,
// since a provider returning a stale or future-dated quote (e.g. a cached
// response) must never be stored as if it were today's bar. The historical
// backfill path passes nil, since it legitimately stores many past dates.
func (p *Processor) storeIfValid(ticker string, q providers.Quote, outcome *Outcome, requireDate *time.Time) error {
	if requireDate != nil && !sameUTCDay(q.Date, *requireDate) {
		outcome.Rejected = append(outcome.Rejected, RejectedQuote{Ticker: ticker, Reason: ReasonDateNotToday})
		p.log.Warn().Str("ticker", ticker).Time("quote_date", q.Date).Time("expected_date", *requireDate).Msg("rejected quote: reported date is not today")
		return nil
	}

	recent, err := p.bars.ReadPriceSeries(ticker, contextWindowDays)
	if err != nil {
		return fmt.Errorf("failed to read context for %s: %w", ticker, err)
	}
	context := make([]float64, len(recent))
	for i, b := range recent {
		context[len(recent)-1-i] = b.CloseF() // most-recent-first
	}

	valid, reason := ValidateQuote(q, context)
	if !valid {
		outcome.Rejected = append(outcome.Rejected, RejectedQuote{Ticker: ticker, Reason: reason})
		p.log.Warn().Str("ticker", ticker).Str("reason", string(reason)).Msg("rejected abnormal quote")
		return nil
	}

	bar := store.Bar{
		Ticker: ticker,
		Date:   q.Date,
		Open:   store.ScaleToInt(q.Open),
		High:   store.ScaleToInt(q.High),
		Low:    store.ScaleToInt(q.Low),
		Close:  store.ScaleToInt(q.Close),
		Volume: q.Volume,
	}
	if err := p.bars.UpsertBar(bar); err != nil {
		return err
	}
	outcome.Stored = append(outcome.Stored, ticker)
	return nil
}

// sameUTCDay reports whether a and b fall on the same calendar day once
// both are normalized to UTC, ignoring time-of-day and any provider-local
// timezone offset.
func sameUTCDay(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
