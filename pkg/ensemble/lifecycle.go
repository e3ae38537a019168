package ensemble

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"fraudshield/pkg/fraud"
)

var (
	mgrTrainingRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fraudshield",
			Subsystem: "lifecycle",
			Name:      "training_runs_total",
			Help:      "Total number of TrainAll invocations.",
		},
	)

	mgrNodeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudshield",
			Subsystem: "lifecycle",
			Name:      "node_training_failures_total",
			Help:      "Per-node training failures across all runs.",
		},
		[]string{"node"},
	)

	mgrTrainedNodes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fraudshield",
			Subsystem: "lifecycle",
			Name:      "nodes_trained",
			Help:      "Number of nodes that succeeded in the last TrainAll run.",
		},
	)
)

func init() {
	// Safe register; ignore duplicate registration in case of multiple imports
	_ = prometheus.Register(mgrTrainingRuns)
	_ = prometheus.Register(mgrNodeFailures)
	_ = prometheus.Register(mgrTrainedNodes)
}

// Manager batch-trains every node of a pipeline independently. Per-node
// failures are recorded and never abort the run; partial training is a
// valid, reportable end state.
//
// Training mutates shared per-node model state, so a Manager run must not
// overlap a live scoring pipeline against the same nodes in ways that
// matter: each node guards its own state with a write lock, scoring takes
// read locks only.
type Manager struct {
	orch *Orchestrator
}

func NewManager(orch *Orchestrator) *Manager { return &Manager{orch: orch} }

// TrainAll fits every stage node, every aggregator, and the decision node
// on the labeled samples. Aggregators and the decision node cannot learn
// from raw variables alone, so each sample is first pushed through a
// heuristic-only pipeline pass to synthesize the prior-stage outputs their
// extractors feed on, keeping their training rows consistent with what they
// will see at scoring time.
func (m *Manager) TrainAll(ctx context.Context, samples []fraud.TrainingSample) fraud.TrainingSummary {
	start := time.Now()
	mgrTrainingRuns.Inc()

	type nodeSlot struct {
		node     *Node
		examples []Example
	}
	var slots []nodeSlot
	for _, st := range m.orch.stages {
		for _, n := range st.Nodes {
			slots = append(slots, nodeSlot{node: n})
		}
	}
	slots = append(slots, nodeSlot{node: m.orch.decision.node})
	byID := make(map[string]*nodeSlot, len(slots))
	for i := range slots {
		byID[slots[i].node.ID()] = &slots[i]
	}

	for i, sample := range samples {
		if sample.Variables == nil {
			continue
		}
		tx := &fraud.Transaction{ID: fmt.Sprintf("training-%d", i), Variables: sample.Variables}

		bundle := make(fraud.ResultBundle, 0, len(m.orch.stages))
		for _, st := range m.orch.stages {
			results := make(fraud.StageResult, len(st.Nodes))
			prior := bundle
			for _, n := range st.Nodes {
				// Collect this node's training row against the prior stages
				// before appending its own synthetic output.
				if features, ok := n.safeExtract(tx, prior); ok {
					slot := byID[n.ID()]
					slot.examples = append(slot.examples, Example{Features: features, Label: sample.LabelScore})
				}
				results[n.ID()] = n.heuristicOutput(tx, prior)
			}
			bundle = append(bundle, results)
		}

		if features, ok := m.orch.decision.node.safeExtract(tx, bundle); ok {
			slot := byID[m.orch.decision.node.ID()]
			slot.examples = append(slot.examples, Example{Features: features, Label: sample.LabelScore})
		}
	}

	summary := fraud.TrainingSummary{Total: len(slots)}
	for _, slot := range slots {
		if err := ctx.Err(); err != nil {
			report := fraud.TrainingReport{NodeID: slot.node.ID(), Error: fmt.Sprintf("skipped: %v", err)}
			summary.Reports = append(summary.Reports, report)
			summary.Failed++
			mgrNodeFailures.WithLabelValues(slot.node.ID()).Inc()
			continue
		}
		report, err := slot.node.Train(slot.examples)
		summary.Reports = append(summary.Reports, report)
		if err != nil {
			summary.Failed++
			mgrNodeFailures.WithLabelValues(slot.node.ID()).Inc()
			continue
		}
		summary.Succeeded++
	}

	mgrTrainedNodes.Set(float64(summary.Succeeded))
	summary.Duration = time.Since(start)
	return summary
}

// heuristicOutput scores a node through the heuristic path only, regardless
// of trained state. Used to synthesize prior-stage outputs during training
// so aggregator inputs do not depend on which nodes happen to be trained.
func (n *Node) heuristicOutput(tx *fraud.Transaction, prior fraud.ResultBundle) *fraud.ScoreOutput {
	features, ok := n.safeExtract(tx, prior)
	if !ok {
		features = fraud.FeatureVector{}
	}
	score, conf, reasons, ok := n.tryHeuristic(features)
	if !ok {
		return NeutralOutput(n.id, 0)
	}
	return &fraud.ScoreOutput{
		NodeID:     n.id,
		Score:      fraud.Clamp01(score),
		Confidence: fraud.Clamp01(conf),
		Reasons:    reasons,
		Features:   features,
	}
}
