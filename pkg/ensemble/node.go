// Package ensemble implements the staged scoring pipeline: generic scoring
// nodes, stages executed concurrently with a barrier between them, the
// terminal decision node, and the model lifecycle manager.
package ensemble

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fraudshield/pkg/fraud"
)

// Model is the trainable scoring backend a node carries. pkg/ml provides
// the implementations (logistic regressor, isolation forest).
type Model interface {
	Fit(X [][]float64, y []float64) (iterations int, residual float64, err error)
	Predict(x []float64) (float64, error)
	Export() ([]byte, error)
	Import(b []byte) error
	Algorithm() string
}

// FeatureFunc extracts a node's feature vector from the transaction and the
// outputs of all earlier stages. It must be total and must not inspect
// sibling outputs from the node's own stage (the orchestrator only ever
// passes earlier stages).
type FeatureFunc func(tx *fraud.Transaction, prior fraud.ResultBundle) fraud.FeatureVector

// HeuristicFunc is the deterministic rule-based scoring path used when no
// trained model is available or inference fails.
type HeuristicFunc func(features fraud.FeatureVector) (score, confidence float64, reasons []string)

// Node is the single generic scoring unit. Variants differ only in their
// feature extractor and heuristic; training, export/import, and the
// model/heuristic duality are shared. A node is Untrained until Train or
// ImportState succeeds, after which it is Trained; there is no intermediate
// state visible to callers.
type Node struct {
	id        string
	extract   FeatureFunc
	heuristic HeuristicFunc
	newModel  func() Model

	mu           sync.RWMutex
	model        Model
	trained      bool
	trainedAt    time.Time
	revision     int
	residual     float64
	featureOrder []string
}

// NewNode constructs a node. newModel may be nil, in which case the node is
// heuristic-only (Train reports a TrainingError).
func NewNode(id string, extract FeatureFunc, heuristic HeuristicFunc, newModel func() Model) *Node {
	return &Node{id: id, extract: extract, heuristic: heuristic, newModel: newModel}
}

func (n *Node) ID() string { return n.id }

// Version identifies the current model revision ("v0" while untrained).
func (n *Node) Version() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return fmt.Sprintf("v%d", n.revision)
}

// Trained reports whether the node currently holds a trained model.
func (n *Node) Trained() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.trained
}

// NeutralOutput is the placeholder filled into a stage slot when a node
// fails beyond recovery. The stage always completes with it in place.
func NeutralOutput(nodeID string, elapsed time.Duration) *fraud.ScoreOutput {
	return &fraud.ScoreOutput{
		NodeID:     nodeID,
		Score:      0.5,
		Confidence: 0.1,
		Reasons:    []string{"error in analysis"},
		Duration:   elapsed,
		Degraded:   true,
	}
}

// Evaluate produces the node's score for one transaction. It never fails:
// inference errors fall back to the heuristic, and if the heuristic itself
// panics the neutral placeholder is returned. Callers cannot tell which
// path ran except through the Degraded marker on the placeholder.
func (n *Node) Evaluate(ctx context.Context, tx *fraud.Transaction, prior fraud.ResultBundle) *fraud.ScoreOutput {
	out, _ := n.evaluate(ctx, tx, prior)
	return out
}

// evaluate additionally reports the path that produced the score (model or
// heuristic; empty for the neutral placeholder). The decision node uses it
// to label verdicts truthfully when inference fails mid-request.
func (n *Node) evaluate(_ context.Context, tx *fraud.Transaction, prior fraud.ResultBundle) (*fraud.ScoreOutput, string) {
	start := time.Now()

	features, ok := n.safeExtract(tx, prior)
	if !ok {
		// Extraction is defined to be total; a panic here is treated as an
		// inference error and the heuristic runs over an empty vector.
		features = fraud.FeatureVector{}
	}

	path := fraud.DecisionModel
	score, conf, reasons, ok := n.tryModel(features)
	if !ok {
		path = fraud.DecisionHeuristic
		score, conf, reasons, ok = n.tryHeuristic(features)
	}
	if !ok {
		return NeutralOutput(n.id, time.Since(start)), ""
	}

	return &fraud.ScoreOutput{
		NodeID:     n.id,
		Score:      fraud.Clamp01(score),
		Confidence: fraud.Clamp01(conf),
		Reasons:    reasons,
		Features:   features,
		Duration:   time.Since(start),
	}, path
}

func (n *Node) safeExtract(tx *fraud.Transaction, prior fraud.ResultBundle) (fv fraud.FeatureVector, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			fv, ok = nil, false
		}
	}()
	return n.extract(tx, prior), true
}

// tryModel runs inference when a trained model is present. Reasons still
// come from the heuristic so verdicts stay explainable on both paths.
func (n *Node) tryModel(features fraud.FeatureVector) (float64, float64, []string, bool) {
	n.mu.RLock()
	model, trained, order, residual := n.model, n.trained, n.featureOrder, n.residual
	n.mu.RUnlock()
	if !trained || model == nil {
		return 0, 0, nil, false
	}

	x := make([]float64, len(order))
	for i, key := range order {
		x[i] = features[key]
	}
	score, err := model.Predict(x)
	if err != nil {
		return 0, 0, nil, false
	}

	conf := fraud.Clamp01(0.95 - residual)
	if conf < 0.5 {
		conf = 0.5
	}
	_, _, reasons, _ := n.tryHeuristic(features)
	return score, conf, reasons, true
}

func (n *Node) tryHeuristic(features fraud.FeatureVector) (score, conf float64, reasons []string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	score, conf, reasons = n.heuristic(features)
	return score, conf, reasons, true
}

// Example is one labeled training row for a node: the node's own extracted
// features and the target score.
type Example struct {
	Features fraud.FeatureVector
	Label    float64
}

// Train fits the node's model on the given examples. An empty or malformed
// sample set yields a TrainingError, which is deliberately not caught here;
// it surfaces to the lifecycle manager. Training takes the node's write
// lock, so it must not run concurrently with scoring against the same node.
func (n *Node) Train(examples []Example) (fraud.TrainingReport, error) {
	start := time.Now()
	report := fraud.TrainingReport{NodeID: n.id}

	fail := func(reason string) (fraud.TrainingReport, error) {
		err := &fraud.TrainingError{NodeID: n.id, Reason: reason}
		report.Error = err.Error()
		report.Duration = time.Since(start)
		return report, err
	}

	if len(examples) == 0 {
		return fail("empty sample set")
	}
	if n.newModel == nil {
		return fail("node has no trainable model")
	}

	// Stable feature order: sorted union of keys across all examples.
	keys := map[string]struct{}{}
	for i, ex := range examples {
		if ex.Features == nil {
			return fail(fmt.Sprintf("sample %d has no features", i))
		}
		if ex.Label < 0 || ex.Label > 1 {
			return fail(fmt.Sprintf("sample %d label %v outside [0,1]", i, ex.Label))
		}
		for k := range ex.Features {
			keys[k] = struct{}{}
		}
	}
	order := make([]string, 0, len(keys))
	for k := range keys {
		order = append(order, k)
	}
	sort.Strings(order)
	if len(order) == 0 {
		return fail("samples contain no features")
	}

	X := make([][]float64, len(examples))
	y := make([]float64, len(examples))
	for i, ex := range examples {
		row := make([]float64, len(order))
		for j, k := range order {
			row[j] = ex.Features[k]
		}
		X[i] = row
		y[i] = ex.Label
	}

	model := n.newModel()
	iters, residual, err := model.Fit(X, y)
	if err != nil {
		return fail(err.Error())
	}

	n.mu.Lock()
	n.model = model
	n.trained = true
	n.trainedAt = time.Now().UTC()
	n.revision++
	n.residual = residual
	n.featureOrder = order
	n.mu.Unlock()

	report.Success = true
	report.Iterations = iters
	report.ResidualError = residual
	report.Duration = time.Since(start)
	return report, nil
}

// ExportState snapshots the node's full model state. The snapshot is
// self-contained: importing it into a fresh node with the same id and model
// family reproduces identical scoring.
func (n *Node) ExportState() (fraud.ModelState, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	state := fraud.ModelState{
		NodeID:  n.id,
		Version: fmt.Sprintf("v%d", n.revision),
	}
	if n.newModel != nil {
		state.Algorithm = n.newModel().Algorithm()
	}
	if !n.trained {
		return state, nil
	}

	blob, err := n.model.Export()
	if err != nil {
		return fraud.ModelState{}, fmt.Errorf("ensemble: export %s: %w", n.id, err)
	}
	at := n.trainedAt
	state.IsTrained = true
	state.TrainedAt = &at
	state.Residual = n.residual
	state.FeatureOrder = append([]string(nil), n.featureOrder...)
	state.Weights = blob
	return state, nil
}

// ImportState applies a snapshot produced by ExportState. The node id must
// match; the model family must match the node's configured one.
func (n *Node) ImportState(state fraud.ModelState) error {
	if state.NodeID != n.id {
		return fmt.Errorf("ensemble: state for node %q cannot be imported into %q", state.NodeID, n.id)
	}
	if !state.IsTrained {
		return fmt.Errorf("ensemble: refusing to import untrained state for %s", n.id)
	}
	if n.newModel == nil {
		return fmt.Errorf("ensemble: node %s has no trainable model", n.id)
	}
	model := n.newModel()
	if state.Algorithm != "" && state.Algorithm != model.Algorithm() {
		return fmt.Errorf("ensemble: algorithm mismatch for %s: %s != %s", n.id, state.Algorithm, model.Algorithm())
	}
	if err := model.Import(state.Weights); err != nil {
		return fmt.Errorf("ensemble: import %s: %w", n.id, err)
	}

	n.mu.Lock()
	n.model = model
	n.trained = true
	if state.TrainedAt != nil {
		n.trainedAt = *state.TrainedAt
	}
	n.revision++
	n.residual = state.Residual
	n.featureOrder = append([]string(nil), state.FeatureOrder...)
	n.mu.Unlock()
	return nil
}
