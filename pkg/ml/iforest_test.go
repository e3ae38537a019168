package ml

import (
	"math/rand"
	"testing"
)

func clusteredRows(n int) [][]float64 {
	rng := rand.New(rand.NewSource(7))
	X := make([][]float64, n)
	for i := range X {
		X[i] = []float64{0.2 + 0.05*rng.Float64(), 0.2 + 0.05*rng.Float64(), 0.2 + 0.05*rng.Float64()}
	}
	return X
}

func TestForestOutlierScoresHigher(t *testing.T) {
	f := NewIsolationForest(50, 64)
	X := clusteredRows(256)
	if _, _, err := f.Fit(X, nil); err != nil {
		t.Fatalf("fit: %v", err)
	}

	inlier, err := f.Predict([]float64{0.22, 0.23, 0.21})
	if err != nil {
		t.Fatalf("predict inlier: %v", err)
	}
	outlier, err := f.Predict([]float64{0.95, 0.97, 0.99})
	if err != nil {
		t.Fatalf("predict outlier: %v", err)
	}
	if outlier <= inlier {
		t.Fatalf("outlier %v not scored above inlier %v", outlier, inlier)
	}
	for _, s := range []float64{inlier, outlier} {
		if s < 0 || s > 1 {
			t.Fatalf("score outside [0,1]: %v", s)
		}
	}
}

func TestForestSeededDeterminism(t *testing.T) {
	X := clusteredRows(128)
	a := NewIsolationForest(32, 64)
	b := NewIsolationForest(32, 64)
	if _, resA, err := a.Fit(X, nil); err != nil {
		t.Fatalf("fit a: %v", err)
	} else if _, resB, err := b.Fit(X, nil); err != nil {
		t.Fatalf("fit b: %v", err)
	} else if resA != resB {
		t.Fatalf("residuals diverged: %v != %v", resA, resB)
	}

	probe := []float64{0.5, 0.1, 0.9}
	sa, _ := a.Predict(probe)
	sb, _ := b.Predict(probe)
	if sa != sb {
		t.Fatalf("same seed, different scores: %v != %v", sa, sb)
	}
}

func TestForestExportImportIdentity(t *testing.T) {
	X := clusteredRows(128)
	f := NewIsolationForest(16, 32)
	if _, _, err := f.Fit(X, nil); err != nil {
		t.Fatalf("fit: %v", err)
	}
	blob, err := f.Export()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	clone := NewIsolationForest(0, 0)
	if err := clone.Import(blob); err != nil {
		t.Fatalf("import: %v", err)
	}
	probe := []float64{0.8, 0.1, 0.4}
	want, _ := f.Predict(probe)
	got, err := clone.Predict(probe)
	if err != nil {
		t.Fatalf("predict after import: %v", err)
	}
	if got != want {
		t.Fatalf("imported forest drifted: %v != %v", got, want)
	}
}

func TestForestErrors(t *testing.T) {
	f := NewIsolationForest(8, 16)
	if _, err := f.Predict([]float64{0.5}); err == nil {
		t.Fatal("predict before fit should fail")
	}
	if _, _, err := f.Fit(nil, nil); err == nil {
		t.Fatal("empty fit should fail")
	}
}
