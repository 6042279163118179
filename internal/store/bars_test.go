package store_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pipelinetesting "github.com/aristath/marketpipe/internal/testing"
	"github.com/aristath/marketpipe/internal/store"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestBarRepository_UpsertAndReadSeries(t *testing.T) {
	db, cleanup := pipelinetesting.NewTestStore(t, "bars")
	defer cleanup()

	repo := store.NewBarRepository(db.Conn())
	bars := []store.Bar{
		{Ticker: "AAPL", Date: day(2026, 7, 28), Open: 19000, High: 19200, Low: 18900, Close: 19100, Volume: 1000},
		{Ticker: "AAPL", Date: day(2026, 7, 29), Open: 19100, High: 19300, Low: 19000, Close: 19250, Volume: 1100},
		{Ticker: "AAPL", Date: day(2026, 7, 30), Open: 19250, High: 19400, Low: 19150, Close: 19300, Volume: 1200},
	}
	for _, b := range bars {
		require.NoError(t, repo.UpsertBar(b))
	}

	series, err := repo.ReadPriceSeries("AAPL", 2)
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.True(t, series[0].Date.Before(series[1].Date))
	assert.Equal(t, int64(19250), series[1].Open)
	assert.InDelta(t, 193.0, series[1].CloseF(), 0.001)
}

func TestBarRepository_UpsertBar_RejectsInvertedRange(t *testing.T) {
	db, cleanup := pipelinetesting.NewTestStore(t, "bars_invalid")
	defer cleanup()

	repo := store.NewBarRepository(db.Conn())
	bad := store.Bar{Ticker: "BAD", Date: day(2026, 7, 30), Open: 100, High: 90, Low: 95, Close: 100, Volume: 10}
	err := repo.UpsertBar(bad)
	require.Error(t, err)

	count, err := repo.BarCount("BAD")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestBarRepository_UpsertBar_RejectsNegativeVolume(t *testing.T) {
	db, cleanup := pipelinetesting.NewTestStore(t, "bars_negvol")
	defer cleanup()

	repo := store.NewBarRepository(db.Conn())
	bad := store.Bar{Ticker: "BAD", Date: day(2026, 7, 30), Open: 100, High: 110, Low: 90, Close: 105, Volume: -5}
	require.Error(t, repo.UpsertBar(bad))
}

func TestBarRepository_UpsertBar_PreservesIndicatorsOnConflict(t *testing.T) {
	db, cleanup := pipelinetesting.NewTestStore(t, "bars_preserve")
	defer cleanup()

	repo := store.NewBarRepository(db.Conn())
	date := day(2026, 7, 30)
	require.NoError(t, repo.UpsertBar(store.Bar{Ticker: "AAPL", Date: date, Open: 100, High: 110, Low: 90, Close: 105, Volume: 10}))

	rsi := int64(6500)
	require.NoError(t, repo.UpdateIndicators("AAPL", date, store.IndicatorSet{RSI14: &rsi}))

	// Re-upsert the same bar with a revised close; indicator should survive.
	require.NoError(t, repo.UpsertBar(store.Bar{Ticker: "AAPL", Date: date, Open: 100, High: 112, Low: 90, Close: 108, Volume: 12}))

	series, err := repo.ReadPriceSeries("AAPL", 1)
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, int64(108), series[0].Close)

	var storedRSI int64
	require.NoError(t, db.Conn().QueryRow(
		"SELECT rsi_14 FROM daily_charts WHERE ticker = ? AND date = ?", "AAPL", "2026-07-30",
	).Scan(&storedRSI))
	assert.Equal(t, rsi, storedRSI)
}

func TestBarRepository_TickersNeedingHistory(t *testing.T) {
	db, cleanup := pipelinetesting.NewTestStore(t, "bars_history")
	defer cleanup()

	repo := store.NewBarRepository(db.Conn())
	require.NoError(t, repo.UpsertBar(store.Bar{Ticker: "THIN", Date: day(2026, 7, 30), Open: 100, High: 110, Low: 90, Close: 105, Volume: 10}))

	need, err := repo.TickersNeedingHistory([]string{"THIN", "MISSING"}, 100)
	require.NoError(t, err)
	assert.Contains(t, need, "THIN")
	assert.Contains(t, need, "MISSING")
}

func TestBarRepository_TickersNeedingPriceToday(t *testing.T) {
	db, cleanup := pipelinetesting.NewTestStore(t, "bars_today")
	defer cleanup()

	repo := store.NewBarRepository(db.Conn())
	today := day(2026, 7, 31)
	require.NoError(t, repo.UpsertBar(store.Bar{Ticker: "DONE", Date: today, Open: 100, High: 110, Low: 90, Close: 105, Volume: 10}))

	need, err := repo.TickersNeedingPriceToday([]string{"DONE", "PENDING"}, today)
	require.NoError(t, err)
	assert.Equal(t, []string{"PENDING"}, need)
}
