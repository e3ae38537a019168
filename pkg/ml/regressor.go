// Package ml provides the small trainable models scoring nodes carry: a
// logistic regressor for supervised node scoring and an isolation forest
// for the anomaly aggregator. Both serialize to JSON snapshots so model
// state can round-trip through export/import without behavior drift.
package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Training hyperparameters. Fixed so that fitting the same samples always
// produces the same weights (the export/import round-trip law depends on it).
const (
	regressorMaxEpochs    = 500
	regressorLearningRate = 0.3
	regressorTolerance    = 1e-6
)

var errNotFitted = errors.New("ml: model not fitted")

// Regressor is a logistic regression model trained by full-batch gradient
// descent. Deterministic: zero-initialized weights, fixed schedule.
type Regressor struct {
	Bias    float64   `json:"bias"`
	Weights []float64 `json:"weights"`
	Fitted  bool      `json:"fitted"`
}

func NewRegressor() *Regressor { return &Regressor{} }

func (r *Regressor) Algorithm() string { return "logistic_regression" }

// Fit trains on feature rows X with labels y in [0,1]. Returns the number of
// epochs run and the final root-mean-square residual.
func (r *Regressor) Fit(X [][]float64, y []float64) (int, float64, error) {
	if len(X) == 0 || len(X) != len(y) {
		return 0, 0, fmt.Errorf("ml: fit requires matching non-empty X/y, got %d/%d", len(X), len(y))
	}
	dim := len(X[0])
	for i, row := range X {
		if len(row) != dim {
			return 0, 0, fmt.Errorf("ml: inconsistent feature width at row %d: %d != %d", i, len(row), dim)
		}
	}

	r.Bias = 0
	r.Weights = make([]float64, dim)

	n := float64(len(X))
	prevLoss := math.Inf(1)
	epochs := 0
	for epoch := 0; epoch < regressorMaxEpochs; epoch++ {
		gradB := 0.0
		gradW := make([]float64, dim)
		loss := 0.0
		for i, row := range X {
			p := r.forward(row)
			diff := p - y[i]
			loss += diff * diff
			gradB += diff
			for j, v := range row {
				gradW[j] += diff * v
			}
		}
		loss /= n
		r.Bias -= regressorLearningRate * gradB / n
		for j := range r.Weights {
			r.Weights[j] -= regressorLearningRate * gradW[j] / n
		}
		epochs = epoch + 1
		if math.Abs(prevLoss-loss) < regressorTolerance {
			break
		}
		prevLoss = loss
	}

	// Final residual on the training set.
	sse := 0.0
	for i, row := range X {
		diff := r.forward(row) - y[i]
		sse += diff * diff
	}
	r.Fitted = true
	return epochs, math.Sqrt(sse / n), nil
}

// Predict returns the model score in [0,1] for one feature row.
func (r *Regressor) Predict(x []float64) (float64, error) {
	if !r.Fitted {
		return 0, errNotFitted
	}
	if len(x) != len(r.Weights) {
		return 0, fmt.Errorf("ml: feature width %d does not match model width %d", len(x), len(r.Weights))
	}
	return r.forward(x), nil
}

func (r *Regressor) forward(x []float64) float64 {
	z := r.Bias
	for j, w := range r.Weights {
		z += w * x[j]
	}
	return sigmoid(z)
}

func sigmoid(z float64) float64 { return 1.0 / (1.0 + math.Exp(-z)) }

func (r *Regressor) Export() ([]byte, error) { return json.Marshal(r) }

func (r *Regressor) Import(b []byte) error {
	var snap Regressor
	if err := json.Unmarshal(b, &snap); err != nil {
		return fmt.Errorf("ml: import regressor: %w", err)
	}
	*r = snap
	return nil
}
