package prices_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/marketpipe/internal/prices"
	"github.com/aristath/marketpipe/internal/providers"
)

func quote(open, high, low, close float64) providers.Quote {
	return providers.Quote{
		Ticker: "AAPL",
		Date:   time.Now(),
		Open:   open, High: high, Low: low, Close: close,
		Volume: 1000,
	}
}

func TestValidateQuote_RejectsHighBelowLow(t *testing.T) {
	valid, reason := prices.ValidateQuote(quote(100, 90, 95, 98), nil)
	assert.False(t, valid)
	assert.Equal(t, prices.ReasonHighBelowLow, reason)
}

func TestValidateQuote_AcceptsNormalDay(t *testing.T) {
	valid, _ := prices.ValidateQuote(quote(100, 105, 98, 102), []float64{101, 100, 99})
	assert.True(t, valid)
}

func TestValidateQuote_RejectsSpike(t *testing.T) {
	valid, reason := prices.ValidateQuote(quote(1100, 1200, 1050, 1150), []float64{100, 99, 101})
	assert.False(t, valid)
	assert.Equal(t, prices.ReasonSpikeDetected, reason)
}

func TestValidateQuote_RejectsCrash(t *testing.T) {
	valid, reason := prices.ValidateQuote(quote(100, 105, 5, 8), []float64{100, 99, 101})
	assert.False(t, valid)
	assert.Equal(t, prices.ReasonCrashDetected, reason)
}

func TestValidateQuote_RejectsPriceTooHighRelativeToAverage(t *testing.T) {
	context := make([]float64, 30)
	for i := range context {
		context[i] = 100
	}
	valid, reason := prices.ValidateQuote(quote(100, 1200, 95, 1100), context)
	assert.False(t, valid)
	assert.Equal(t, prices.ReasonPriceTooHigh, reason)
}

func TestValidateQuote_NoContextUsesAbsoluteBounds(t *testing.T) {
	valid, reason := prices.ValidateQuote(quote(0.001, 0.002, 0.0005, 0.001), nil)
	assert.False(t, valid)
	assert.Equal(t, prices.ReasonAbsoluteBoundBelowMin, reason)
}
