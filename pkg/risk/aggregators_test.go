package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fraudshield/pkg/fraud"
)

func stageOf(scores map[string]float64) fraud.StageResult {
	st := fraud.StageResult{}
	for id, s := range scores {
		st[id] = &fraud.ScoreOutput{NodeID: id, Score: s}
	}
	return st
}

func emptyTx() *fraud.Transaction {
	return &fraud.Transaction{ID: "t", Variables: map[string]any{}}
}

func TestStageScoresSkipsDegraded(t *testing.T) {
	bundle := fraud.ResultBundle{{
		"a": &fraud.ScoreOutput{NodeID: "a", Score: 0.9},
		"b": &fraud.ScoreOutput{NodeID: "b", Score: 0.5, Degraded: true},
	}}
	scores := stageScores(bundle, 0)
	require.Len(t, scores, 1)
	assert.Equal(t, 0.9, scores["a"])
	assert.InDelta(t, 0.5, reportingBreadth(bundle, 0), 1e-12)
}

func TestCascadeIsNonLinear(t *testing.T) {
	cfg := Config{
		CascadeGroups:    map[string][]string{"exposure": {"a", "b"}},
		CascadeThreshold: 0.65,
	}
	features := CascadeFeatures(cfg)
	heuristic := CascadeHeuristic(cfg)

	// One member barely below the threshold: the group must not fire, no
	// matter how high the other member is.
	fv := features(emptyTx(), fraud.ResultBundle{stageOf(map[string]float64{"a": 0.99, "b": 0.60})})
	assert.Equal(t, 0.0, fv["cascade_exposure"])
	score, _, reasons := heuristic(fv)
	assert.Equal(t, 0.1, score)
	assert.Empty(t, reasons)

	// Both members above: it fires at 0.8.
	fv = features(emptyTx(), fraud.ResultBundle{stageOf(map[string]float64{"a": 0.66, "b": 0.70})})
	assert.Equal(t, 1.0, fv["cascade_exposure"])
	score, _, reasons = heuristic(fv)
	assert.Equal(t, 0.8, score)
	assert.NotEmpty(t, reasons)
}

func TestMultipleCascadesStepUp(t *testing.T) {
	cfg := Config{
		CascadeGroups: map[string][]string{
			"g1": {"a", "b"},
			"g2": {"c"},
			"g3": {"d"},
		},
		CascadeThreshold: 0.65,
	}
	fv := CascadeFeatures(cfg)(emptyTx(), fraud.ResultBundle{stageOf(map[string]float64{
		"a": 0.9, "b": 0.9, "c": 0.9, "d": 0.1,
	})})
	score, _, reasons := CascadeHeuristic(cfg)(fv)
	assert.InDelta(t, 0.9, score, 1e-12) // 0.8 + 0.1 for the second group
	assert.Len(t, reasons, 2)
}

func TestMitigationFactorCapped(t *testing.T) {
	tx := &fraud.Transaction{ID: "t", Variables: map[string]any{
		"client_age_days":              730.0,
		"historical_transaction_count": 200.0,
		"is_domestic":                  true,
		"hour_of_day":                  11.0,
	}}
	// All three factors apply (0.15 + 0.10 + 0.05) but the cap wins.
	mit, notes := mitigationFactor(tx, 0.30)
	assert.InDelta(t, 0.30, mit, 1e-12)
	assert.Len(t, notes, 3)

	mit, _ = mitigationFactor(tx, 0.20)
	assert.InDelta(t, 0.20, mit, 1e-12)

	mit, notes = mitigationFactor(emptyTx(), 0.30)
	assert.Zero(t, mit)
	assert.Empty(t, notes)
}

func TestCategoryBlendAndMitigation(t *testing.T) {
	cfg := Config{
		CategoryWeights: map[string]map[string]float64{
			"cat": {"a": 0.5, "b": 0.5},
		},
		MitigationCap: 0.30,
	}
	bundle := fraud.ResultBundle{stageOf(map[string]float64{"a": 0.8, "b": 0.6})}

	fv := CategoryFeatures(cfg)(emptyTx(), bundle)
	assert.InDelta(t, 0.7, fv["cat_cat"], 1e-12)
	score, conf, _ := CategoryHeuristic(cfg)(fv)
	assert.InDelta(t, 0.7, score, 1e-12)
	assert.Greater(t, conf, 0.0)

	mitigated := &fraud.Transaction{ID: "t", Variables: map[string]any{"is_domestic": true}}
	fv = CategoryFeatures(cfg)(mitigated, bundle)
	score, _, reasons := CategoryHeuristic(cfg)(fv)
	assert.InDelta(t, 0.7*0.9, score, 1e-12)
	assert.NotEmpty(t, reasons)
}

func TestAggregateConfidence(t *testing.T) {
	// Full reporting, perfectly consistent scores.
	assert.InDelta(t, 1.0, aggregateConfidence(1, consistency(map[string]float64{"a": 0.5, "b": 0.5})), 1e-12)

	// Wild disagreement drags consistency toward zero.
	spread := consistency(map[string]float64{"a": 0.0, "b": 1.0})
	assert.Equal(t, 0.0, spread)
	assert.InDelta(t, 0.5, aggregateConfidence(1, spread), 1e-12)
}

func TestAnomalyHeuristicShape(t *testing.T) {
	bundle := fraud.ResultBundle{stageOf(map[string]float64{"a": 0.9, "b": 0.9, "c": 0.9})}
	fv := AnomalyFeatures()(emptyTx(), bundle)
	assert.InDelta(t, 0.9, fv["score_mean"], 1e-12)
	assert.InDelta(t, 0.9, fv["score_max"], 1e-12)
	assert.InDelta(t, 0.0, fv["score_spread"], 1e-12)

	score, _, _ := AnomalyHeuristic()(fv)
	assert.InDelta(t, 0.45*0.9+0.35*0.9, score, 1e-12)

	// A lone spike produces spread and a higher relative score.
	spiky := AnomalyFeatures()(emptyTx(), fraud.ResultBundle{stageOf(map[string]float64{"a": 0.95, "b": 0.05, "c": 0.05})})
	assert.Greater(t, spiky["score_spread"], 0.5)
}
