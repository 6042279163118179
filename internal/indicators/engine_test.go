package indicators_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/marketpipe/internal/indicators"
	"github.com/aristath/marketpipe/internal/store"
)

func syntheticBars(n int, base float64) []store.Bar {
	bars := make([]store.Bar, n)
	start := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	price := base
	for i := 0; i < n; i++ {
		price += float64(i%5) - 2 // gentle oscillation, never triggers OHLC violations
		open := price
		closePx := price + 0.5
		high := closePx + 1
		low := open - 1
		bars[i] = store.Bar{
			Ticker: "TEST",
			Date:   start.AddDate(0, 0, i),
			Open:   store.ScaleToInt(open),
			High:   store.ScaleToInt(high),
			Low:    store.ScaleToInt(low),
			Close:  store.ScaleToInt(closePx),
			Volume: int64(1000 + i*10),
		}
	}
	return bars
}

func TestCompute_InsufficientWindowReturnsNilNotZero(t *testing.T) {
	bars := syntheticBars(5, 100)
	ind, err := indicators.Compute(bars)
	require.NoError(t, err)

	assert.Nil(t, ind.RSI14)
	assert.Nil(t, ind.MACDLine)
	assert.Nil(t, ind.BBUpper)
	assert.Nil(t, ind.ADX14)
}

func TestCompute_FullWindowProducesValues(t *testing.T) {
	bars := syntheticBars(60, 100)
	ind, err := indicators.Compute(bars)
	require.NoError(t, err)

	require.NotNil(t, ind.RSI14)
	require.NotNil(t, ind.EMA20)
	require.NotNil(t, ind.BBUpper)
	require.NotNil(t, ind.BBMiddle)
	require.NotNil(t, ind.BBLower)
	require.NotNil(t, ind.StochK)
	require.NotNil(t, ind.CCI20)
	require.NotNil(t, ind.ATR14)
	require.NotNil(t, ind.VWAP20)
	require.NotNil(t, ind.OBV)
	require.NotNil(t, ind.Fib500)
	require.NotNil(t, ind.Pivot)
}

func TestCompute_ADXNeedsLongerWindowThanBollinger(t *testing.T) {
	bars := syntheticBars(22, 100) // past Bollinger's 20, short of ADX's 28
	ind, err := indicators.Compute(bars)
	require.NoError(t, err)

	assert.NotNil(t, ind.BBUpper)
	assert.Nil(t, ind.ADX14)
}

func TestCompute_DuplicateDateIsInvariantViolation(t *testing.T) {
	bars := syntheticBars(5, 100)
	bars[4].Date = bars[3].Date

	_, err := indicators.Compute(bars)
	require.Error(t, err)
	var violation *indicators.InvariantViolation
	assert.ErrorAs(t, err, &violation)
}

func TestCompute_NegativeVolumeIsValidationError(t *testing.T) {
	bars := syntheticBars(5, 100)
	bars[2].Volume = -1

	_, err := indicators.Compute(bars)
	require.Error(t, err)
	var verr *indicators.ValidationError
	assert.ErrorAs(t, err, &verr)
}
