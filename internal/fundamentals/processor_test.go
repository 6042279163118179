package fundamentals_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/marketpipe/internal/fundamentals"
	"github.com/aristath/marketpipe/internal/providers"
	"github.com/aristath/marketpipe/internal/store"
	pipelinetesting "github.com/aristath/marketpipe/internal/testing"
)

func TestProcessor_Candidates_ReachesBothStaleTiers(t *testing.T) {
	db, cleanup := pipelinetesting.NewTestStore(t, "fundamentals_candidates_stale")
	defer cleanup()

	tickers := store.NewTickerRepository(db.Conn())
	earnings := store.NewEarningsRepository(db.Conn())
	fundamentalsRepo := store.NewFundamentalsRepository(db.Conn())

	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	stale30 := now.Add(-40 * 24 * time.Hour)  // in (30d, 90d]: PriorityStale30Days
	stale90 := now.Add(-120 * 24 * time.Hour) // beyond 90d: PriorityStale90Days
	fresh := now.Add(-5 * 24 * time.Hour)     // under 30d: not a candidate at all

	require.NoError(t, tickers.Upsert(store.Ticker{Symbol: "AAA", Active: true, FundamentalsLastUpdate: &stale30}))
	require.NoError(t, tickers.Upsert(store.Ticker{Symbol: "BBB", Active: true, FundamentalsLastUpdate: &stale90}))
	require.NoError(t, tickers.Upsert(store.Ticker{Symbol: "CCC", Active: true, FundamentalsLastUpdate: &fresh}))

	router := providers.NewRouter(zerolog.Nop(), nil)
	proc := fundamentals.NewProcessor(zerolog.Nop(), router, fundamentalsRepo, tickers, earnings)

	candidates, err := proc.Candidates(now, []string{"AAA", "BBB", "CCC"})
	require.NoError(t, err)

	byTicker := make(map[string]fundamentals.Candidate, len(candidates))
	for _, c := range candidates {
		byTicker[c.Ticker] = c
	}

	require.Contains(t, byTicker, "AAA")
	assert.Equal(t, fundamentals.PriorityStale30Days, byTicker["AAA"].Priority)
	assert.Equal(t, fundamentals.TriggerStale30, byTicker["AAA"].Trigger)

	require.Contains(t, byTicker, "BBB")
	assert.Equal(t, fundamentals.PriorityStale90Days, byTicker["BBB"].Priority)
	assert.Equal(t, fundamentals.TriggerStale90, byTicker["BBB"].Trigger)

	assert.NotContains(t, byTicker, "CCC")

	// §4.7's priority formula literally ranks P=3 (>30 days) above P=2
	// (>90 days), so the 30-day tier sorts first despite being less stale.
	require.Len(t, candidates, 2)
	assert.Equal(t, "AAA", candidates[0].Ticker)
	assert.Equal(t, "BBB", candidates[1].Ticker)
}
