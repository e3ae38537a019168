package fraud

import (
	"encoding/json"
	"math"
	"testing"
)

func TestRiskLevelBands(t *testing.T) {
	cases := []struct {
		score float64
		want  RiskLevel
	}{
		{0.0, RiskMinimal},
		{0.29, RiskMinimal},
		{0.30, RiskLow},
		{0.49, RiskLow},
		{0.50, RiskMedium},
		{0.69, RiskMedium},
		{0.70, RiskHigh},
		{0.89, RiskHigh},
		{0.90, RiskCritical},
		{1.0, RiskCritical},
	}
	for _, tc := range cases {
		if got := RiskLevelFor(tc.score); got != tc.want {
			t.Errorf("RiskLevelFor(%v) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestTransactionGetters(t *testing.T) {
	tx := &Transaction{ID: "t1", Variables: map[string]any{
		"amount":   float64(120.5),
		"count":    int(3),
		"decoded":  json.Number("42.5"),
		"country":  "FR",
		"domestic": true,
	}}

	if v, ok := tx.Float("amount"); !ok || v != 120.5 {
		t.Errorf("Float(amount) = %v, %v", v, ok)
	}
	if v, ok := tx.Float("count"); !ok || v != 3 {
		t.Errorf("Float(count) = %v, %v", v, ok)
	}
	if v, ok := tx.Float("decoded"); !ok || v != 42.5 {
		t.Errorf("Float(decoded) = %v, %v", v, ok)
	}
	if _, ok := tx.Float("missing"); ok {
		t.Error("Float(missing) should report absence")
	}
	if _, ok := tx.Float("country"); ok {
		t.Error("Float over a string should report absence")
	}
	if v, ok := tx.String("country"); !ok || v != "FR" {
		t.Errorf("String(country) = %q, %v", v, ok)
	}
	if v, ok := tx.Bool("domestic"); !ok || !v {
		t.Errorf("Bool(domestic) = %v, %v", v, ok)
	}
}

func TestClamp01(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{-0.5, 0},
		{0, 0},
		{0.42, 0.42},
		{1, 1},
		{1.7, 1},
		{math.NaN(), 0},
	}
	for _, tc := range cases {
		if got := Clamp01(tc.in); got != tc.want {
			t.Errorf("Clamp01(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestResultBundleAccessors(t *testing.T) {
	bundle := ResultBundle{
		{
			"a": {NodeID: "a", Score: 0.2},
			"b": {NodeID: "b", Score: 0.4},
		},
		{
			"c": {NodeID: "c", Score: 0.9},
		},
	}

	if out, ok := bundle.Get(0, "a"); !ok || out.Score != 0.2 {
		t.Errorf("Get(0, a) = %v, %v", out, ok)
	}
	if _, ok := bundle.Get(5, "a"); ok {
		t.Error("Get past the end should miss")
	}
	if out, ok := bundle.Find("c"); !ok || out.Score != 0.9 {
		t.Errorf("Find(c) = %v, %v", out, ok)
	}
	if mean, ok := bundle.StageMean(0); !ok || math.Abs(mean-0.3) > 1e-12 {
		t.Errorf("StageMean(0) = %v, %v", mean, ok)
	}
	if _, ok := bundle.StageMean(2); ok {
		t.Error("StageMean past the end should miss")
	}
	if got := len(bundle.AllScores()); got != 3 {
		t.Errorf("AllScores returned %d scores, want 3", got)
	}
}
