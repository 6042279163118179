// Package indicators is the pipeline's Indicator Engine: a pure function
// from an ascending price series to the 34-field technical indicator
// vector attached to the series' most recent bar. It performs no I/O and
// has no dependency on the Store beyond the Bar/IndicatorSet types it
// operates on.
//
// Every computed value follows one uniform convention: a family without
// enough bars for its minimum window reports nil, never zero, for every
// field that family owns. A zero is a real computed value (e.g. OBV can
// legitimately be zero); nil means "not yet computable".
package indicators

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/marketpipe/internal/store"
)

// Minimum bar-window requirements per indicator family, taken from this
// engine's contract: a family with fewer than its minimum bars of input
// reports nil across the board rather than a value computed on a
// too-short window.
const (
	minRSI        = 15
	minMACD       = 26
	minBollinger  = 20
	minStochastic = 17
	minCCI        = 20
	minATR        = 15
	minADX        = 28
	minVWAP       = 20
	minOBV        = 2
	minFibonacci  = 20
	minPivot      = 20
)

// InvariantViolation is raised when the input series itself is malformed in
// a way the engine refuses to silently tolerate: duplicate dates indicate a
// bug upstream in the Batch Price Processor, not a data-quality case to
// degrade gracefully on.
type InvariantViolation struct {
	Reason string
}

func (e *InvariantViolation) Error() string { return fmt.Sprintf("indicator engine invariant violated: %s", e.Reason) }

// ValidationError is raised when a bar's own values are invalid input
// (NaN or negative volume) rather than a structural problem with the
// series.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return fmt.Sprintf("indicator input invalid: %s", e.Reason) }

// Compute returns the indicator vector for the most recent bar in an
// ascending (oldest first) bars series. bars must contain at least one
// element.
func Compute(bars []store.Bar) (store.IndicatorSet, error) {
	if len(bars) == 0 {
		return store.IndicatorSet{}, &ValidationError{Reason: "empty series"}
	}
	if err := validate(bars); err != nil {
		return store.IndicatorSet{}, err
	}

	closes := make([]float64, len(bars))
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.CloseF()
		highs[i] = b.HighF()
		lows[i] = b.LowF()
		volumes[i] = float64(b.Volume)
	}

	var ind store.IndicatorSet
	ind.RSI14 = rsi(closes)
	ind.EMA20 = ema(closes, 20)
	ind.EMA50 = ema(closes, 50)
	ind.EMA100 = ema(closes, 100)
	ind.EMA200 = ema(closes, 200)

	ind.MACDLine, ind.MACDSignal, ind.MACDHistogram = macd(closes)

	ind.BBUpper, ind.BBMiddle, ind.BBLower = bollinger(closes)

	ind.StochK, ind.StochD = stochastic(highs, lows, closes)

	ind.CCI20 = cci(highs, lows, closes)

	ind.ATR14 = atr(highs, lows, closes)

	ind.ADX14, ind.PlusDI14, ind.MinusDI14 = adx(highs, lows, closes)

	ind.VWAP20 = vwapSurrogate(highs, lows, closes, volumes)
	ind.OBV = obv(closes, volumes)

	ind.Fib236, ind.Fib382, ind.Fib500, ind.Fib618, ind.Fib786 = fibonacci(highs, lows)

	ind.Pivot, ind.Resistance1, ind.Resistance2, ind.Resistance3,
		ind.Support1, ind.Support2, ind.Support3,
		ind.SwingHigh, ind.SwingLow = pivots(highs, lows, closes)

	return ind, nil
}

func validate(bars []store.Bar) error {
	seen := make(map[string]bool, len(bars))
	for _, b := range bars {
		key := b.Date.Format("2006-01-02")
		if seen[key] {
			return &InvariantViolation{Reason: fmt.Sprintf("duplicate date %s in series", key)}
		}
		seen[key] = true

		if math.IsNaN(b.CloseF()) || math.IsNaN(b.OpenF()) || math.IsNaN(b.HighF()) || math.IsNaN(b.LowF()) {
			return &ValidationError{Reason: fmt.Sprintf("NaN price on %s", key)}
		}
		if b.Volume < 0 {
			return &ValidationError{Reason: fmt.Sprintf("negative volume on %s", key)}
		}
	}
	return nil
}

// scaled converts a real-valued indicator result to the Store's fixed-point
// representation, or nil if v is NaN.
func scaled(v float64) *int64 {
	if math.IsNaN(v) {
		return nil
	}
	i := store.ScaleToInt(v)
	return &i
}

func rsi(closes []float64) *int64 {
	if len(closes) < minRSI {
		return nil
	}
	out := talib.Rsi(closes, 14)
	if len(out) == 0 {
		return nil
	}
	return scaled(out[len(out)-1])
}

func ema(closes []float64, length int) *int64 {
	if len(closes) < length {
		return nil
	}
	out := talib.Ema(closes, length)
	if len(out) == 0 {
		return nil
	}
	return scaled(out[len(out)-1])
}

func macd(closes []float64) (*int64, *int64, *int64) {
	if len(closes) < minMACD {
		return nil, nil, nil
	}
	line, signal, hist := talib.Macd(closes, 12, 26, 9)
	if len(line) == 0 {
		return nil, nil, nil
	}
	last := len(line) - 1
	return scaled(line[last]), scaled(signal[last]), scaled(hist[last])
}

func bollinger(closes []float64) (*int64, *int64, *int64) {
	if len(closes) < minBollinger {
		return nil, nil, nil
	}
	upper, middle, lower := talib.BBands(closes, 20, 2.0, 2.0, 0)
	if len(upper) == 0 {
		return nil, nil, nil
	}
	last := len(upper) - 1
	// A collapsed band (zero population stddev over the window, e.g. a
	// halted ticker printing the same close every day) makes talib's
	// bands degenerate to the middle line; treat that as unavailable
	// rather than store an upper==lower==middle triple.
	window := closes[len(closes)-20:]
	if stat.StdDev(window, nil) == 0 {
		return nil, nil, nil
	}
	return scaled(upper[last]), scaled(middle[last]), scaled(lower[last])
}

func stochastic(highs, lows, closes []float64) (*int64, *int64) {
	if len(closes) < minStochastic {
		return nil, nil
	}
	// MAType 0 = SMA, matching this codebase's existing Bollinger wiring.
	k, d := talib.Stoch(highs, lows, closes, 14, 3, 0, 3, 0)
	if len(k) == 0 {
		return nil, nil
	}
	last := len(k) - 1
	return scaled(k[last]), scaled(d[last])
}

func atr(highs, lows, closes []float64) *int64 {
	if len(closes) < minATR {
		return nil
	}
	out := talib.Atr(highs, lows, closes, 14)
	if len(out) == 0 {
		return nil
	}
	return scaled(out[len(out)-1])
}

func adx(highs, lows, closes []float64) (*int64, *int64, *int64) {
	if len(closes) < minADX {
		return nil, nil, nil
	}
	adxOut := talib.Adx(highs, lows, closes, 14)
	plusDI := talib.PlusDI(highs, lows, closes, 14)
	minusDI := talib.MinusDI(highs, lows, closes, 14)
	if len(adxOut) == 0 {
		return nil, nil, nil
	}
	last := len(adxOut) - 1
	return scaled(adxOut[last]), scaled(plusDI[last]), scaled(minusDI[last])
}
