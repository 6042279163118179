package indicators

import "gonum.org/v1/gonum/stat"

// cci computes the Commodity Channel Index over a 20-period window of
// typical prices. There is no talib binding for CCI in this codebase's
// go-talib version, so it's computed directly from its textbook
// definition, using gonum's Mean for the SMA term the same way the engine
// uses gonum's StdDev to detect a collapsed Bollinger band; gonum has no
// mean-absolute-deviation helper, so that term is a direct sum per its
// textbook definition.
func cci(highs, lows, closes []float64) *int64 {
	if len(closes) < minCCI {
		return nil
	}
	n := 20
	typical := typicalPrices(highs, lows, closes)
	window := typical[len(typical)-n:]

	sma := stat.Mean(window, nil)
	var devSum float64
	for _, v := range window {
		devSum += abs(v - sma)
	}
	meanDev := devSum / float64(len(window))
	if meanDev == 0 {
		return nil
	}
	cciValue := (typical[len(typical)-1] - sma) / (0.015 * meanDev)
	return scaled(cciValue)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func typicalPrices(highs, lows, closes []float64) []float64 {
	out := make([]float64, len(closes))
	for i := range closes {
		out[i] = (highs[i] + lows[i] + closes[i]) / 3.0
	}
	return out
}

// vwapSurrogate approximates a volume-weighted average price over the
// trailing 20 bars using typical price in place of intraday tick data
// (daily bars carry no intraday volume distribution to weight against).
func vwapSurrogate(highs, lows, closes, volumes []float64) *int64 {
	if len(closes) < minVWAP {
		return nil
	}
	n := 20
	typical := typicalPrices(highs, lows, closes)
	tWindow := typical[len(typical)-n:]
	vWindow := volumes[len(volumes)-n:]

	var num, den float64
	for i := range tWindow {
		num += tWindow[i] * vWindow[i]
		den += vWindow[i]
	}
	if den == 0 {
		return nil
	}
	return scaled(num/den)
}

// obv computes On-Balance Volume over the full series: a running total of
// volume, signed by the direction of each day's close-to-close move.
func obv(closes, volumes []float64) *int64 {
	if len(closes) < minOBV {
		return nil
	}
	var running float64
	for i := 1; i < len(closes); i++ {
		switch {
		case closes[i] > closes[i-1]:
			running += volumes[i]
		case closes[i] < closes[i-1]:
			running -= volumes[i]
		}
	}
	return scaled(running)
}

// fibonacci computes the five standard retracement levels from the
// highest high and lowest low over the trailing 20-bar swing window.
func fibonacci(highs, lows []float64) (*int64, *int64, *int64, *int64, *int64) {
	if len(highs) < minFibonacci {
		return nil, nil, nil, nil, nil
	}
	n := 20
	hWindow := highs[len(highs)-n:]
	lWindow := lows[len(lows)-n:]
	swingHigh := max(hWindow)
	swingLow := min(lWindow)
	diff := swingHigh - swingLow

	level := func(ratio float64) *int64 {
		return scaled(swingHigh-diff*ratio)
	}
	return level(0.236), level(0.382), level(0.500), level(0.618), level(0.786)
}

// pivots computes the classic floor-trader pivot point and its three
// resistance/support bands from the prior bar's H/L/C, plus the swing
// high/low over the trailing 20-bar window.
func pivots(highs, lows, closes []float64) (pivot, r1, r2, r3, s1, s2, s3, swingHigh, swingLow *int64) {
	if len(closes) < minPivot {
		return
	}
	n := len(closes)
	h, l, c := highs[n-2], lows[n-2], closes[n-2]

	p := (h + l + c) / 3.0
	pivot = scaled(p)
	r1 = scaled(2*p-l)
	r2 = scaled(p+(h-l))
	r3 = scaled(h+2*(p-l))
	s1 = scaled(2*p-h)
	s2 = scaled(p-(h-l))
	s3 = scaled(l-2*(h-p))

	window := 20
	swingHigh = scaled(max(highs[n-window:]))
	swingLow = scaled(min(lows[n-window:]))
	return
}

func max(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func min(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
