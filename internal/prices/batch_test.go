package prices_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pipelinetesting "github.com/aristath/marketpipe/internal/testing"
	"github.com/aristath/marketpipe/internal/prices"
	"github.com/aristath/marketpipe/internal/providers"
	"github.com/aristath/marketpipe/internal/store"
)

type fakeQuoteProvider struct {
	quotes map[string]providers.Quote
}

func (f *fakeQuoteProvider) Name() string { return "fake" }
func (f *fakeQuoteProvider) Capabilities() []providers.Capability {
	return []providers.Capability{providers.CapabilityQuoteBatch}
}
func (f *fakeQuoteProvider) Fetch(_ context.Context, req providers.Request) (providers.Response, error) {
	var out providers.Response
	for _, t := range req.Tickers {
		if q, ok := f.quotes[t]; ok {
			out.Quotes = append(out.Quotes, q)
		}
	}
	return out, nil
}

func TestProcessor_RunDailyBatch_StoresValidAndRejectsAbnormal(t *testing.T) {
	db, cleanup := pipelinetesting.NewTestStore(t, "prices_batch")
	defer cleanup()

	bars := store.NewBarRepository(db.Conn())
	today := time.Now().UTC().Truncate(24 * time.Hour)

	fake := &fakeQuoteProvider{quotes: map[string]providers.Quote{
		"AAPL": {Ticker: "AAPL", Date: today, Open: 100, High: 105, Low: 98, Close: 102, Volume: 1000},
		"MSFT": {Ticker: "MSFT", Date: today, Open: 100, High: 50, Low: 98, Close: 102, Volume: 1000}, // high below open: invalid
	}}

	router := providers.NewRouter(zerolog.Nop(), []providers.ProviderConfig{
		{Provider: fake, Priority: 1},
	})

	proc := prices.NewProcessor(zerolog.Nop(), router, bars, 100, 0)
	outcome, err := proc.RunDailyBatch(context.Background(), []string{"AAPL", "MSFT", "GOOG"})
	require.NoError(t, err)

	assert.Contains(t, outcome.Stored, "AAPL")
	require.Len(t, outcome.Rejected, 1)
	assert.Equal(t, "MSFT", outcome.Rejected[0].Ticker)
	assert.Contains(t, outcome.Missing, "GOOG")

	count, err := bars.BarCount("AAPL")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestProcessor_RunDailyBatch_RejectsQuoteDatedOtherThanToday(t *testing.T) {
	db, cleanup := pipelinetesting.NewTestStore(t, "prices_batch_stale_date")
	defer cleanup()

	bars := store.NewBarRepository(db.Conn())
	yesterday := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -1)

	fake := &fakeQuoteProvider{quotes: map[string]providers.Quote{
		"AAPL": {Ticker: "AAPL", Date: yesterday, Open: 100, High: 105, Low: 98, Close: 102, Volume: 1000},
	}}

	router := providers.NewRouter(zerolog.Nop(), []providers.ProviderConfig{
		{Provider: fake, Priority: 1},
	})

	proc := prices.NewProcessor(zerolog.Nop(), router, bars, 100, 0)
	outcome, err := proc.RunDailyBatch(context.Background(), []string{"AAPL"})
	require.NoError(t, err)

	assert.Empty(t, outcome.Stored)
	require.Len(t, outcome.Rejected, 1)
	assert.Equal(t, "AAPL", outcome.Rejected[0].Ticker)
	assert.Equal(t, prices.ReasonDateNotToday, outcome.Rejected[0].Reason)

	count, err := bars.BarCount("AAPL")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
