package ratios_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/marketpipe/internal/fundamentals"
	"github.com/aristath/marketpipe/internal/ratios"
	"github.com/aristath/marketpipe/internal/store"
)

func f(v float64) *float64 { return &v }

func healthyFundamentals() store.Fundamentals {
	return store.Fundamentals{
		Ticker:             "TEST",
		Revenue:            f(1_000_000),
		GrossProfit:        f(400_000),
		OperatingIncome:    f(200_000),
		NetIncome:          f(150_000),
		EBITDA:             f(250_000),
		EPSDiluted:         f(3.0),
		BookValuePerShare:  f(20.0),
		TotalAssets:        f(2_000_000),
		TotalDebt:          f(500_000),
		TotalEquity:        f(1_200_000),
		Cash:               f(300_000),
		FreeCashFlow:       f(120_000),
		SharesOutstanding:  f(50_000),
		CurrentAssets:      f(600_000),
		CurrentLiabilities: f(300_000),
		Inventory:          f(100_000),
		Receivables:        f(150_000),
		RetainedEarnings:   f(400_000),
		EBIT:               f(220_000),
		InterestExpense:    f(20_000),
	}
}

func healthyTTM() fundamentals.TTM {
	return fundamentals.TTM{
		Revenue:         f(4_000_000),
		GrossProfit:     f(1_600_000),
		OperatingIncome: f(800_000),
		NetIncome:       f(600_000),
		EBITDA:          f(1_000_000),
		FreeCashFlow:    f(480_000),
		Quality:         store.QualityNormal,
	}
}

func TestCalculate_HealthyInputsProduceAllCoreRatios(t *testing.T) {
	latest := healthyFundamentals()
	ttm := healthyTTM()
	out := ratios.Calculate(ratios.Inputs{
		Ticker:          "TEST",
		CalculationDate: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		ClosePrice:      50.0,
		Latest:          latest,
		TTM:             ttm,
	})

	require.NotNil(t, out.MarketCap)
	assert.InDelta(t, 2_500_000, *out.MarketCap, 0.001)

	require.NotNil(t, out.PE)
	require.NotNil(t, out.PB)
	require.NotNil(t, out.ROE)
	require.NotNil(t, out.ROA)
	require.NotNil(t, out.GrossMargin)
	assert.InDelta(t, 0.4, *out.GrossMargin, 0.001)

	require.NotNil(t, out.CurrentRatio)
	assert.InDelta(t, 2.0, *out.CurrentRatio, 0.001)

	require.NotNil(t, out.GrahamNumber)
	assert.InDelta(t, 30.0, *out.GrahamNumber, 0.01)
}

func TestCalculate_MissingDenominatorYieldsNilWithExplanation(t *testing.T) {
	latest := healthyFundamentals()
	latest.TotalEquity = nil
	ttm := healthyTTM()

	out := ratios.Calculate(ratios.Inputs{
		Ticker:     "TEST",
		ClosePrice: 50.0,
		Latest:     latest,
		TTM:        ttm,
	})

	assert.Nil(t, out.ROE)
	assert.Contains(t, out.Explanations, "roe")
}

func TestCalculate_PECapAppliedAtExtremePE(t *testing.T) {
	latest := healthyFundamentals()
	ttm := healthyTTM()
	ttm.NetIncome = f(1) // near-zero earnings drives PE far past the cap

	out := ratios.Calculate(ratios.Inputs{
		Ticker:     "TEST",
		ClosePrice: 500.0,
		Latest:     latest,
		TTM:        ttm,
	})

	require.NotNil(t, out.PE)
	assert.LessOrEqual(t, *out.PE, 999.0)
}

func TestCalculate_YoYGrowthUsesPriorYearQuarter(t *testing.T) {
	latest := healthyFundamentals()
	ttm := healthyTTM()
	prior := healthyFundamentals()
	prior.Revenue = f(800_000)

	out := ratios.Calculate(ratios.Inputs{
		Ticker:     "TEST",
		ClosePrice: 50.0,
		Latest:     latest,
		TTM:        ttm,
		PriorYear:  &prior,
	})

	require.NotNil(t, out.RevenueGrowthYoY)
	assert.InDelta(t, 0.25, *out.RevenueGrowthYoY, 0.001)
}

func TestCalculate_NoPriorYearYieldsNilGrowth(t *testing.T) {
	latest := healthyFundamentals()
	ttm := healthyTTM()

	out := ratios.Calculate(ratios.Inputs{
		Ticker:     "TEST",
		ClosePrice: 50.0,
		Latest:     latest,
		TTM:        ttm,
	})

	assert.Nil(t, out.RevenueGrowthYoY)
	assert.Contains(t, out.Explanations, "revenue_growth_yoy")
}

func TestCalculate_AltmanZScoreComputesWithFullBalanceSheet(t *testing.T) {
	latest := healthyFundamentals()
	ttm := healthyTTM()

	out := ratios.Calculate(ratios.Inputs{
		Ticker:     "TEST",
		ClosePrice: 50.0,
		Latest:     latest,
		TTM:        ttm,
	})

	require.NotNil(t, out.AltmanZScore)
	assert.Greater(t, *out.AltmanZScore, 0.0)
}
