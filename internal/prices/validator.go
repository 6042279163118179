// Package prices is the pipeline's Batch Price Processor: it pulls quote
// and historical-range data through the Provider Router, validates every
// bar before it reaches the Store, and tracks per-ticker outcomes for the
// run report.
package prices

import (
	"fmt"

	"github.com/aristath/marketpipe/internal/providers"
)

// Validation thresholds, carried over unchanged from this codebase's
// existing PriceValidator (internal/modules/universe/price_validator.go):
// the abnormal-price detection rules are identical, only the disposition
// differs — this processor rejects an abnormal quote outright instead of
// interpolating a replacement for it.
const (
	maxPriceMultiplier    = 10.0
	minPriceMultiplier    = 0.1
	maxPriceChangePercent = 1000.0
	minPriceChangePercent = -90.0
	absolutePriceMax      = 10000.0
	absolutePriceMin      = 0.01
	contextWindowDays     = 30
)

// RejectReason names why ValidateQuote refused a quote.
type RejectReason string

const (
	ReasonHighBelowLow          RejectReason = "high_below_low"
	ReasonHighBelowOpen         RejectReason = "high_below_open"
	ReasonHighBelowClose        RejectReason = "high_below_close"
	ReasonLowAboveOpen          RejectReason = "low_above_open"
	ReasonLowAboveClose         RejectReason = "low_above_close"
	ReasonSpikeDetected         RejectReason = "spike_detected"
	ReasonCrashDetected         RejectReason = "crash_detected"
	ReasonPriceTooHigh          RejectReason = "price_too_high"
	ReasonPriceTooLow           RejectReason = "price_too_low"
	ReasonAbsoluteBoundExceeded RejectReason = "absolute_bound_exceeded"
	ReasonAbsoluteBoundBelowMin RejectReason = "absolute_bound_below_minimum"
	ReasonDateNotToday          RejectReason = "date_not_today"
)

// ValidateQuote checks q against the OHLC-consistency and spike/crash
// detection rules. context is the ticker's recent closes, most recent
// first; an empty context means no history exists yet, so only the
// absolute-bounds fallback applies. Unlike the codebase's other price
// validator, there is no interpolation path here: a rejected quote is
// simply never written to the Store, and the reason is recorded for the
// run report.
func ValidateQuote(q providers.Quote, context []float64) (bool, RejectReason) {
	if q.High < q.Low {
		return false, ReasonHighBelowLow
	}
	if q.High < q.Open {
		return false, ReasonHighBelowOpen
	}
	if q.High < q.Close {
		return false, ReasonHighBelowClose
	}
	if q.Low > q.Open {
		return false, ReasonLowAboveOpen
	}
	if q.Low > q.Close {
		return false, ReasonLowAboveClose
	}

	if len(context) > 0 {
		prevClose := context[0]
		if prevClose > 0 {
			changePercent := ((q.Close - prevClose) / prevClose) * 100.0
			if changePercent > maxPriceChangePercent {
				return false, ReasonSpikeDetected
			}
			if changePercent < minPriceChangePercent {
				return false, ReasonCrashDetected
			}
		}

		windowSize := len(context)
		if windowSize > contextWindowDays {
			windowSize = contextWindowDays
		}
		window := context[:windowSize]

		var sum float64
		for _, c := range window {
			sum += c
		}
		avg := sum / float64(len(window))

		if q.Close > avg*maxPriceMultiplier {
			return false, ReasonPriceTooHigh
		}
		if q.Close < avg*minPriceMultiplier {
			return false, ReasonPriceTooLow
		}
	} else {
		if q.Close > absolutePriceMax {
			return false, ReasonAbsoluteBoundExceeded
		}
		if q.Close < absolutePriceMin {
			return false, ReasonAbsoluteBoundBelowMin
		}
	}

	return true, ""
}

// RejectedQuote records one quote that ValidateQuote refused, for the
// outcome report.
type RejectedQuote struct {
	Ticker string
	Reason RejectReason
}

func (r RejectedQuote) String() string {
	return fmt.Sprintf("%s: %s", r.Ticker, r.Reason)
}
