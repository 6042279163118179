package scores_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/marketpipe/internal/scores"
	"github.com/aristath/marketpipe/internal/store"
)

func f(v float64) *float64 { return &v }

func healthyRatios() store.Ratios {
	return store.Ratios{
		Ticker:          "TEST",
		CalculationDate: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		PE:              f(15),
		PB:              f(2.0),
		PS:              f(3.0),
		EVEBITDA:        f(10),
		PEG:             f(1.2),
		ROE:             f(0.18),
		ROA:             f(0.08),
		ROIC:            f(0.12),
		GrossMargin:     f(0.45),
		OperatingMargin: f(0.20),
		NetMargin:       f(0.12),
		DebtToEquity:    f(0.6),
		CurrentRatio:    f(1.8),
		QuickRatio:      f(1.1),
		InterestCoverage: f(8),
		AltmanZScore:    f(3.5),
		AssetTurnover:   f(0.9),
		InventoryTurnover: f(6),
		ReceivablesTurnover: f(9),
		RevenueGrowthYoY:  f(0.10),
		EarningsGrowthYoY: f(0.12),
		FCFGrowthYoY:      f(0.08),
		FCFToNetIncome:    f(0.9),
		CashConversionCycle: f(45),
		Explanations:      map[string]string{},
	}
}

func TestCalculate_HealthyTickerProducesThreeProfileScores(t *testing.T) {
	r := healthyRatios()
	out := scores.Calculate("TEST", r)

	require.NotNil(t, out.ConservativeScore)
	require.NotNil(t, out.GARPScore)
	require.NotNil(t, out.DeepValueScore)

	assert.Equal(t, store.RiskNone, out.RiskLevel)
	assert.Empty(t, out.RiskFactors)

	assert.GreaterOrEqual(t, *out.ConservativeScore, 0.0)
	assert.LessOrEqual(t, *out.ConservativeScore, 100.0)
}

func TestCalculate_LowAltmanZTriggersHighRiskMultiplier(t *testing.T) {
	healthy := healthyRatios()
	distressed := healthyRatios()
	distressed.AltmanZScore = f(1.0)

	healthyOut := scores.Calculate("TEST", healthy)
	distressedOut := scores.Calculate("TEST", distressed)

	assert.Equal(t, store.RiskHigh, distressedOut.RiskLevel)
	assert.Contains(t, distressedOut.RiskFactors, "altman_z_below_1.8")
	require.NotNil(t, healthyOut.ConservativeScore)
	require.NotNil(t, distressedOut.ConservativeScore)
	assert.Less(t, *distressedOut.ConservativeScore, *healthyOut.ConservativeScore)
}

func TestCalculate_MissingComponentRenormalizesWeights(t *testing.T) {
	r := healthyRatios()
	r.PE, r.PB, r.PS, r.EVEBITDA, r.PEG = nil, nil, nil, nil, nil // valuation component entirely missing

	out := scores.Calculate("TEST", r)
	assert.Nil(t, out.Components.Valuation)
	require.NotNil(t, out.ConservativeScore) // still produced from the remaining 5 components
}

func TestCalculate_AllComponentsMissingYieldsNilProfiles(t *testing.T) {
	r := store.Ratios{Ticker: "TEST", CalculationDate: time.Now().UTC()}
	out := scores.Calculate("TEST", r)

	assert.Nil(t, out.ConservativeScore)
	assert.Nil(t, out.GARPScore)
	assert.Nil(t, out.DeepValueScore)
}
