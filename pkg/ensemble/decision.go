package ensemble

import (
	"context"
	"fmt"

	"fraudshield/pkg/fraud"
)

const (
	// DefaultFraudThreshold is the score at or above which a transaction is
	// flagged as fraud.
	DefaultFraudThreshold = 0.7

	// reasonScoreFloor: nodes scoring above this contribute their reasons to
	// the verdict's primary reasons.
	reasonScoreFloor = 0.6

	maxPrimaryReasons = 10
)

// DefaultStageWeights blend per-stage mean scores in the fallback policy.
// Later stages weigh more because they already aggregate the earlier ones.
var DefaultStageWeights = []float64{0.3, 0.3, 0.4}

// DecisionNode is the terminal aggregator: one scoring node whose input is
// the whole result bundle, plus the policy turning its score into a Verdict.
// Its Decide method never fails; a broken decision model degrades to the
// documented fallback average.
type DecisionNode struct {
	node         *Node
	threshold    float64
	stageWeights []float64
	stages       []Stage // set by New; used for deterministic reason order
}

// NewDecisionNode wraps a scoring node with verdict policy. A negative
// threshold or nil weight slice takes the defaults; an explicit 0 threshold
// is honored (every transaction flags as fraud) as is a threshold above 1
// (none do).
func NewDecisionNode(node *Node, threshold float64, stageWeights []float64) *DecisionNode {
	if threshold < 0 {
		threshold = DefaultFraudThreshold
	}
	if stageWeights == nil {
		stageWeights = DefaultStageWeights
	}
	return &DecisionNode{node: node, threshold: threshold, stageWeights: stageWeights}
}

// Node exposes the wrapped scoring node (for training and state transfer).
func (d *DecisionNode) Node() *Node { return d.node }

// Threshold returns the configured fraud threshold.
func (d *DecisionNode) Threshold() float64 { return d.threshold }

// Decide turns the complete bundle into a Verdict. Decision inference
// failure triggers the fallback policy; the fallback itself cannot throw.
func (d *DecisionNode) Decide(ctx context.Context, tx *fraud.Transaction, bundle fraud.ResultBundle) fraud.Verdict {
	out, method := d.node.evaluate(ctx, tx, bundle)

	var verdict fraud.Verdict
	if out.Degraded {
		verdict = d.fallbackVerdict(bundle)
	} else {
		// method reflects the path that actually produced the score: a
		// trained node whose inference errored mid-request reports
		// "heuristic", not "model".
		verdict = fraud.Verdict{
			FraudScore:     out.Score,
			Confidence:     out.Confidence,
			DecisionMethod: method,
		}
	}

	verdict.FraudDetected = verdict.FraudScore >= d.threshold
	verdict.RiskLevel = fraud.RiskLevelFor(verdict.FraudScore)
	verdict.PrimaryReasons = d.primaryReasons(bundle)
	return verdict
}

// fallbackVerdict computes the documented degradation: a fixed weighted
// average of per-stage mean scores (0.3/0.3/0.4 for the standard three
// stages, renormalized when stages are missing), confidence pinned at 0.5.
// If no stage mean is available it degrades further to the arithmetic mean
// of all scores, and to the neutral 0.5 on an empty bundle.
func (d *DecisionNode) fallbackVerdict(bundle fraud.ResultBundle) fraud.Verdict {
	score := 0.5
	weightSum := 0.0
	weighted := 0.0
	for i := range bundle {
		mean, ok := bundle.StageMean(i)
		if !ok {
			continue
		}
		w := 1.0
		if i < len(d.stageWeights) {
			w = d.stageWeights[i]
		}
		weighted += w * mean
		weightSum += w
	}
	switch {
	case weightSum > 0:
		score = weighted / weightSum
	default:
		if all := bundle.AllScores(); len(all) > 0 {
			sum := 0.0
			for _, s := range all {
				sum += s
			}
			score = sum / float64(len(all))
		}
	}

	return fraud.Verdict{
		FraudScore:     fraud.Clamp01(score),
		Confidence:     0.5,
		DecisionMethod: fraud.DecisionFallback,
		Warnings:       []string{"decision inference failed; verdict computed by fallback_average"},
	}
}

// primaryReasons collects the reason lists of every node whose score
// exceeded the floor, tagged with the originating stage, in stage order then
// node declaration order, truncated to the cap. Deterministic by
// construction: map iteration order never leaks into the output.
func (d *DecisionNode) primaryReasons(bundle fraud.ResultBundle) []string {
	var reasons []string
	for i, st := range d.stages {
		if i >= len(bundle) {
			break
		}
		for _, nodeID := range nodeOrder(st) {
			out, ok := bundle[i][nodeID]
			if !ok || out.Degraded || out.Score <= reasonScoreFloor {
				continue
			}
			for _, r := range out.Reasons {
				reasons = append(reasons, fmt.Sprintf("[%s/%s] %s", st.Name, nodeID, r))
				if len(reasons) == maxPrimaryReasons {
					return reasons
				}
			}
		}
	}
	return reasons
}
