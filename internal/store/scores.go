package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// scoresColumns mirrors the investor_scores table column order.
const scoresColumns = `ticker, calculation_date,
	conservative_score, garp_score, deep_value_score,
	valuation_score, quality_score, financial_health_score, profitability_score, growth_score, management_score,
	risk_level, risk_factors, explanation_blob`

// ScoresRepository is the Store's view over investor_scores.
type ScoresRepository struct {
	db *sql.DB
}

// NewScoresRepository creates a ScoresRepository.
func NewScoresRepository(db *sql.DB) *ScoresRepository {
	return &ScoresRepository{db: db}
}

// Upsert writes one calculation-date snapshot of the three score profiles.
// RiskFactors is msgpack-encoded; an empty slice encodes to an empty blob.
func (r *ScoresRepository) Upsert(s Scores) error {
	symbol := strings.ToUpper(strings.TrimSpace(s.Ticker))
	if symbol == "" {
		return fmt.Errorf("scores ticker must not be empty")
	}

	riskBlob, err := msgpack.Marshal(s.RiskFactors)
	if err != nil {
		return fmt.Errorf("failed to encode risk factors for %s: %w", symbol, err)
	}
	explanationBlob, err := msgpack.Marshal(s.Explanation)
	if err != nil {
		return fmt.Errorf("failed to encode score explanation for %s: %w", symbol, err)
	}

	_, err = r.db.Exec(`
		INSERT INTO investor_scores (`+scoresColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker, calculation_date) DO UPDATE SET
			conservative_score = excluded.conservative_score,
			garp_score = excluded.garp_score,
			deep_value_score = excluded.deep_value_score,
			valuation_score = excluded.valuation_score,
			quality_score = excluded.quality_score,
			financial_health_score = excluded.financial_health_score,
			profitability_score = excluded.profitability_score,
			growth_score = excluded.growth_score,
			management_score = excluded.management_score,
			risk_level = excluded.risk_level,
			risk_factors = excluded.risk_factors,
			explanation_blob = excluded.explanation_blob
	`, symbol, formatDate(s.CalculationDate),
		nullFloat(s.ConservativeScore), nullFloat(s.GARPScore), nullFloat(s.DeepValueScore),
		nullFloat(s.Components.Valuation), nullFloat(s.Components.Quality), nullFloat(s.Components.FinancialHealth),
		nullFloat(s.Components.Profitability), nullFloat(s.Components.Growth), nullFloat(s.Components.Management),
		nullStr(string(s.RiskLevel)), riskBlob, explanationBlob)
	if err != nil {
		return fmt.Errorf("failed to upsert scores %s %s: %w", symbol, formatDate(s.CalculationDate), err)
	}
	return nil
}

// Latest returns the most recent score snapshot for ticker, or nil.
func (r *ScoresRepository) Latest(ticker string) (*Scores, error) {
	symbol := strings.ToUpper(strings.TrimSpace(ticker))
	row := r.db.QueryRow(`
		SELECT `+scoresColumns+`
		FROM investor_scores WHERE ticker = ? ORDER BY calculation_date DESC LIMIT 1
	`, symbol)
	scores, err := scanScores(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest scores for %s: %w", symbol, err)
	}
	return scores, nil
}

func scanScores(row scannable) (*Scores, error) {
	var (
		s                                                       Scores
		dateStr                                                 string
		conservative, garp, deepValue                           sql.NullFloat64
		valuation, quality, finHealth, profitability, growth, mgmt sql.NullFloat64
		riskLevel                                               sql.NullString
		riskBlob, explanationBlob                                []byte
	)
	if err := row.Scan(&s.Ticker, &dateStr,
		&conservative, &garp, &deepValue,
		&valuation, &quality, &finHealth, &profitability, &growth, &mgmt,
		&riskLevel, &riskBlob, &explanationBlob); err != nil {
		return nil, err
	}
	var err error
	s.CalculationDate, err = parseDate(dateStr)
	if err != nil {
		return nil, err
	}
	s.ConservativeScore, s.GARPScore, s.DeepValueScore = floatPtr(conservative), floatPtr(garp), floatPtr(deepValue)
	s.Components = ComponentScores{
		Valuation:       floatPtr(valuation),
		Quality:         floatPtr(quality),
		FinancialHealth: floatPtr(finHealth),
		Profitability:   floatPtr(profitability),
		Growth:          floatPtr(growth),
		Management:      floatPtr(mgmt),
	}
	s.RiskLevel = RiskLevel(riskLevel.String)
	if len(riskBlob) > 0 {
		if err := msgpack.Unmarshal(riskBlob, &s.RiskFactors); err != nil {
			return nil, fmt.Errorf("failed to decode risk factors: %w", err)
		}
	}
	if len(explanationBlob) > 0 {
		if err := msgpack.Unmarshal(explanationBlob, &s.Explanation); err != nil {
			return nil, fmt.Errorf("failed to decode score explanation: %w", err)
		}
	}
	return &s, nil
}
