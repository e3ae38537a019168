package ml

import (
	"math"
	"reflect"
	"testing"
)

func trainingSet() ([][]float64, []float64) {
	X := [][]float64{
		{0.1, 0.0}, {0.2, 0.1}, {0.15, 0.05}, {0.05, 0.2},
		{0.9, 0.8}, {0.85, 0.95}, {0.7, 0.9}, {0.95, 0.75},
	}
	y := []float64{0, 0, 0, 0, 1, 1, 1, 1}
	return X, y
}

func TestRegressorFitDeterministic(t *testing.T) {
	X, y := trainingSet()

	a := NewRegressor()
	b := NewRegressor()
	itersA, resA, err := a.Fit(X, y)
	if err != nil {
		t.Fatalf("first fit: %v", err)
	}
	itersB, resB, err := b.Fit(X, y)
	if err != nil {
		t.Fatalf("second fit: %v", err)
	}
	if itersA != itersB || resA != resB {
		t.Fatalf("fits diverged: (%d, %v) vs (%d, %v)", itersA, resA, itersB, resB)
	}
	if !reflect.DeepEqual(a.Weights, b.Weights) || a.Bias != b.Bias {
		t.Fatal("same samples produced different weights")
	}
}

func TestRegressorSeparates(t *testing.T) {
	X, y := trainingSet()
	r := NewRegressor()
	if _, _, err := r.Fit(X, y); err != nil {
		t.Fatalf("fit: %v", err)
	}
	low, err := r.Predict([]float64{0.1, 0.1})
	if err != nil {
		t.Fatalf("predict low: %v", err)
	}
	high, err := r.Predict([]float64{0.9, 0.9})
	if err != nil {
		t.Fatalf("predict high: %v", err)
	}
	if high <= low {
		t.Fatalf("expected ordering violated: high=%v low=%v", high, low)
	}
	if low < 0 || low > 1 || high < 0 || high > 1 {
		t.Fatalf("predictions outside [0,1]: %v %v", low, high)
	}
}

func TestRegressorExportImportIdentity(t *testing.T) {
	X, y := trainingSet()
	r := NewRegressor()
	if _, _, err := r.Fit(X, y); err != nil {
		t.Fatalf("fit: %v", err)
	}
	blob, err := r.Export()
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	clone := NewRegressor()
	if err := clone.Import(blob); err != nil {
		t.Fatalf("import: %v", err)
	}
	probe := []float64{0.42, 0.58}
	want, _ := r.Predict(probe)
	got, err := clone.Predict(probe)
	if err != nil {
		t.Fatalf("predict after import: %v", err)
	}
	if got != want {
		t.Fatalf("imported model drifted: %v != %v", got, want)
	}
}

func TestRegressorErrors(t *testing.T) {
	r := NewRegressor()
	if _, err := r.Predict([]float64{0.5}); err == nil {
		t.Fatal("predict before fit should fail")
	}
	if _, _, err := r.Fit(nil, nil); err == nil {
		t.Fatal("empty fit should fail")
	}
	if _, _, err := r.Fit([][]float64{{1, 2}, {1}}, []float64{0, 1}); err == nil {
		t.Fatal("ragged rows should fail")
	}

	X, y := trainingSet()
	if _, _, err := r.Fit(X, y); err != nil {
		t.Fatalf("fit: %v", err)
	}
	if _, err := r.Predict([]float64{0.5}); err == nil {
		t.Fatal("width mismatch should fail")
	}
}

func TestSigmoidBounds(t *testing.T) {
	for _, z := range []float64{-50, -1, 0, 1, 50} {
		s := sigmoid(z)
		if s < 0 || s > 1 || math.IsNaN(s) {
			t.Fatalf("sigmoid(%v) = %v", z, s)
		}
	}
}
