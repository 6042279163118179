package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/marketpipe/internal/fundamentals"
	"github.com/aristath/marketpipe/internal/pipeline"
	"github.com/aristath/marketpipe/internal/prices"
	"github.com/aristath/marketpipe/internal/providers"
	"github.com/aristath/marketpipe/internal/store"
	pipelinetesting "github.com/aristath/marketpipe/internal/testing"
)

func newTestOrchestrator(t *testing.T) (*pipeline.Orchestrator, *store.DB, func()) {
	t.Helper()
	db, cleanup := pipelinetesting.NewTestStore(t, "orchestrator")

	tickers := store.NewTickerRepository(db.Conn())
	bars := store.NewBarRepository(db.Conn())
	earnings := store.NewEarningsRepository(db.Conn())
	ratiosRepo := store.NewRatiosRepository(db.Conn())
	scoresRepo := store.NewScoresRepository(db.Conn())
	apiUsage := store.NewApiUsageRepository(db.Conn())
	updateLog := store.NewUpdateLogRepository(db.Conn())
	fundamentalsRepo := store.NewFundamentalsRepository(db.Conn())

	log := zerolog.Nop()
	router := providers.NewRouter(log, nil)
	budget := pipeline.NewBudgetTracker(apiUsage, nil, 1000, 0.2)
	priceProc := prices.NewProcessor(log, router, bars, 50, 0)
	fundProc := fundamentals.NewProcessor(log, router, fundamentalsRepo, tickers, earnings)

	orch := pipeline.New(
		log,
		pipeline.Config{WorkerCount: 2, MinimumHistoryDays: 100, RunDeadline: 5 * time.Second},
		tickers, bars, earnings, ratiosRepo, scoresRepo, updateLog,
		router, budget, priceProc, fundProc,
	)
	return orch, db, cleanup
}

func TestOrchestratorRunNonTradingDayWithNoTickers(t *testing.T) {
	orch, _, cleanup := newTestOrchestrator(t)
	defer cleanup()

	// A Sunday: the trading-day gated phases (price/indicators/
	// fundamentals/ratios) must not run, but backfill and the delisting
	// sweep still do since they're unconditional.
	sunday := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)

	report, err := orch.Run(context.Background(), sunday)
	require.NoError(t, err)
	require.False(t, report.TradingDay)
	require.NotEmpty(t, report.RunID)

	var names []string
	for _, p := range report.Phases {
		names = append(names, p.Name)
	}
	require.Contains(t, names, "phase5_history_backfill")
	require.Contains(t, names, "phase6_delisting_sweep")
	require.NotContains(t, names, "phase1_price_refresh")
	require.NotContains(t, names, "phase2_indicators")
}

func TestOrchestratorRunTradingDayWithNoActiveTickers(t *testing.T) {
	orch, _, cleanup := newTestOrchestrator(t)
	defer cleanup()

	// A Monday with zero active tickers: every phase still runs and
	// reports cleanly, just with no work to do.
	monday := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)

	report, err := orch.Run(context.Background(), monday)
	require.NoError(t, err)
	require.True(t, report.TradingDay)
	require.Equal(t, store.StatusSuccess, report.Status)
	require.Len(t, report.Phases, 6)
}

func TestOrchestratorRunResumesPartiallyCompletedDay(t *testing.T) {
	orch, db, cleanup := newTestOrchestrator(t)
	defer cleanup()

	// UpdateLog rows are stamped with wall-clock time and matched by that
	// UTC date, so the run being resumed is for the current date.
	today := time.Now().UTC()

	first, err := orch.Run(context.Background(), today)
	require.NoError(t, err)
	runID := first.RunID

	updateLog := store.NewUpdateLogRepository(db.Conn())
	entries, err := updateLog.ForDate(today)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	second, err := orch.Run(context.Background(), today)
	require.NoError(t, err)
	require.Equal(t, runID, second.RunID, "resumed run must reuse the original run id")
}
