package store_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pipelinetesting "github.com/aristath/marketpipe/internal/testing"
	"github.com/aristath/marketpipe/internal/store"
)

func TestTickerRepository_UpsertAndGet(t *testing.T) {
	db, cleanup := pipelinetesting.NewTestStore(t, "tickers")
	defer cleanup()

	repo := store.NewTickerRepository(db.Conn())
	earnings := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Upsert(store.Ticker{
		Symbol:            "aapl",
		Active:            true,
		Sector:            "Technology",
		Industry:          "Consumer Electronics",
		MarketCapCategory: "mega",
		NextEarningsDate:  &earnings,
		DataPriority:      2,
	}))

	got, err := repo.GetBySymbol("AAPL")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "AAPL", got.Symbol)
	assert.True(t, got.Active)
	assert.Equal(t, "Technology", got.Sector)
	assert.Equal(t, 2, got.DataPriority)
	require.NotNil(t, got.NextEarningsDate)
	assert.Equal(t, earnings.Format("2006-01-02"), got.NextEarningsDate.Format("2006-01-02"))
}

func TestTickerRepository_GetBySymbol_Missing(t *testing.T) {
	db, cleanup := pipelinetesting.NewTestStore(t, "tickers_missing")
	defer cleanup()

	repo := store.NewTickerRepository(db.Conn())
	got, err := repo.GetBySymbol("NOPE")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTickerRepository_SetActive(t *testing.T) {
	db, cleanup := pipelinetesting.NewTestStore(t, "tickers_active")
	defer cleanup()

	repo := store.NewTickerRepository(db.Conn())
	require.NoError(t, repo.Upsert(store.Ticker{Symbol: "XYZ", Active: true, DataPriority: 1}))
	require.NoError(t, repo.SetActive("XYZ", false))

	got, err := repo.GetBySymbol("XYZ")
	require.NoError(t, err)
	assert.False(t, got.Active)
}

func TestTickerRepository_ActiveTickers(t *testing.T) {
	db, cleanup := pipelinetesting.NewTestStore(t, "tickers_active_list")
	defer cleanup()

	repo := store.NewTickerRepository(db.Conn())
	require.NoError(t, repo.Upsert(store.Ticker{Symbol: "A", Active: true, DataPriority: 1}))
	require.NoError(t, repo.Upsert(store.Ticker{Symbol: "B", Active: false, DataPriority: 1}))
	require.NoError(t, repo.Upsert(store.Ticker{Symbol: "C", Active: true, DataPriority: 1}))

	symbols, err := repo.ActiveTickers()
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, symbols)
}

func TestTickerRepository_NeedingFundamentalsRefresh(t *testing.T) {
	db, cleanup := pipelinetesting.NewTestStore(t, "tickers_stale")
	defer cleanup()

	repo := store.NewTickerRepository(db.Conn())
	now := time.Now().UTC()
	stale := now.Add(-100 * 24 * time.Hour)
	fresh := now.Add(-1 * time.Hour)

	require.NoError(t, repo.Upsert(store.Ticker{Symbol: "STALE", Active: true, FundamentalsLastUpdate: &stale, DataPriority: 1}))
	require.NoError(t, repo.Upsert(store.Ticker{Symbol: "FRESH", Active: true, FundamentalsLastUpdate: &fresh, DataPriority: 1}))
	require.NoError(t, repo.Upsert(store.Ticker{Symbol: "NEVER", Active: true, DataPriority: 1}))

	symbols, err := repo.NeedingFundamentalsRefresh(90*24*time.Hour, now)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"STALE", "NEVER"}, symbols)
}
