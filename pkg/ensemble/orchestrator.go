package ensemble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"fraudshield/pkg/fraud"
)

// Stage is a named, ordered group of nodes executed concurrently at the same
// pipeline depth. Nodes in a stage see the complete outputs of all earlier
// stages and nothing from their siblings.
type Stage struct {
	Name  string
	Nodes []*Node
}

const defaultNodeTimeout = 2 * time.Second

// Orchestrator drives the ordered list of stages against one transaction,
// enforcing the completion barrier between stages and isolating per-node
// failure. It holds no per-request state; Analyze is safe to call
// concurrently from many goroutines.
type Orchestrator struct {
	stages      []Stage
	decision    *DecisionNode
	nodeTimeout time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithNodeTimeout bounds each node invocation. A timed-out node is treated
// like a failed one: its slot gets the neutral placeholder and the stage
// proceeds.
func WithNodeTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.nodeTimeout = d
		}
	}
}

// New constructs an orchestrator over an explicit stage registry. Node ids
// must be unique across the whole pipeline, decision node included.
func New(stages []Stage, decision *DecisionNode, opts ...Option) (*Orchestrator, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("ensemble: at least one stage required")
	}
	if decision == nil {
		return nil, fmt.Errorf("ensemble: decision node required")
	}
	seen := map[string]string{}
	for _, st := range stages {
		if len(st.Nodes) == 0 {
			return nil, fmt.Errorf("ensemble: stage %q has no nodes", st.Name)
		}
		for _, n := range st.Nodes {
			if prev, dup := seen[n.ID()]; dup {
				return nil, fmt.Errorf("ensemble: duplicate node id %q in stages %q and %q", n.ID(), prev, st.Name)
			}
			seen[n.ID()] = st.Name
		}
	}
	if _, dup := seen[decision.node.ID()]; dup {
		return nil, fmt.Errorf("ensemble: decision node id %q collides with a stage node", decision.node.ID())
	}

	o := &Orchestrator{stages: stages, decision: decision, nodeTimeout: defaultNodeTimeout}
	for _, opt := range opts {
		opt(o)
	}
	decision.stages = stages
	return o, nil
}

// Stages exposes the pipeline layout (read-only use).
func (o *Orchestrator) Stages() []Stage { return o.stages }

// Decision exposes the terminal node.
func (o *Orchestrator) Decision() *DecisionNode { return o.decision }

// Analyze scores one transaction through every stage and the decision node.
// The only error it can return is a structural one (ErrInvalidTransaction);
// every per-node and per-aggregation failure degrades into the result
// instead, surfaced through warnings and confidence.
func (o *Orchestrator) Analyze(ctx context.Context, tx *fraud.Transaction) (*fraud.AnalysisResult, error) {
	if tx == nil || tx.ID == "" {
		return nil, fraud.ErrInvalidTransaction
	}

	started := time.Now()
	bundle := make(fraud.ResultBundle, 0, len(o.stages))
	timings := make(map[string]time.Duration, len(o.stages)+1)
	var warnings []string

	for _, st := range o.stages {
		stageStart := time.Now()
		results := make(fraud.StageResult, len(st.Nodes))
		prior := bundle // frozen: all writes for this stage go to results

		var mu sync.Mutex
		var wg sync.WaitGroup
		for _, n := range st.Nodes {
			wg.Add(1)
			go func(n *Node) {
				defer wg.Done()
				out := o.runNode(ctx, n, tx, prior)
				mu.Lock()
				results[n.ID()] = out
				mu.Unlock()
			}(n)
		}
		// Barrier: stage i+1 is defined over the complete output set of
		// stages 1..i, never a partial one.
		wg.Wait()

		for _, n := range st.Nodes {
			if out := results[n.ID()]; out != nil && out.Degraded {
				warnings = append(warnings, fmt.Sprintf("node %s degraded to neutral score", n.ID()))
			}
		}
		bundle = append(bundle, results)
		timings[st.Name] = time.Since(stageStart)
	}

	verdict := o.decision.Decide(ctx, tx, bundle)
	verdict.Warnings = append(warnings, verdict.Warnings...)
	timings["total"] = time.Since(started)

	return &fraud.AnalysisResult{
		TransactionID: tx.ID,
		AnalysisID:    uuid.NewString(),
		Verdict:       verdict,
		PerStage:      bundle,
		Timings:       timings,
		NodeVersions:  o.nodeVersions(),
		CompletedAt:   time.Now().UTC(),
	}, nil
}

// runNode invokes one node under the per-node timeout. Evaluate already
// recovers its own panics; the select here catches a node that simply does
// not come back in time.
func (o *Orchestrator) runNode(ctx context.Context, n *Node, tx *fraud.Transaction, prior fraud.ResultBundle) *fraud.ScoreOutput {
	nctx, cancel := context.WithTimeout(ctx, o.nodeTimeout)
	defer cancel()

	start := time.Now()
	ch := make(chan *fraud.ScoreOutput, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- NeutralOutput(n.ID(), time.Since(start))
			}
		}()
		ch <- n.Evaluate(nctx, tx, prior)
	}()

	select {
	case out := <-ch:
		return out
	case <-nctx.Done():
		return NeutralOutput(n.ID(), time.Since(start))
	}
}

func (o *Orchestrator) nodeVersions() map[string]string {
	versions := map[string]string{}
	for _, st := range o.stages {
		for _, n := range st.Nodes {
			versions[n.ID()] = n.Version()
		}
	}
	versions[o.decision.node.ID()] = o.decision.node.Version()
	return versions
}

// nodeByID resolves any node in the pipeline, decision node included.
func (o *Orchestrator) nodeByID(id string) (*Node, bool) {
	for _, st := range o.stages {
		for _, n := range st.Nodes {
			if n.ID() == id {
				return n, true
			}
		}
	}
	if o.decision.node.ID() == id {
		return o.decision.node, true
	}
	return nil, false
}

// NodeIDs lists every node id in pipeline order, decision node last.
func (o *Orchestrator) NodeIDs() []string {
	var ids []string
	for _, st := range o.stages {
		for _, n := range st.Nodes {
			ids = append(ids, n.ID())
		}
	}
	return append(ids, o.decision.node.ID())
}

// ExportModel snapshots the state of one node by id.
func (o *Orchestrator) ExportModel(nodeID string) (fraud.ModelState, error) {
	n, ok := o.nodeByID(nodeID)
	if !ok {
		return fraud.ModelState{}, fmt.Errorf("ensemble: unknown node %q", nodeID)
	}
	return n.ExportState()
}

// ImportModel applies a snapshot to the node named inside it.
func (o *Orchestrator) ImportModel(state fraud.ModelState) error {
	n, ok := o.nodeByID(state.NodeID)
	if !ok {
		return fmt.Errorf("ensemble: unknown node %q", state.NodeID)
	}
	return n.ImportState(state)
}

// nodeOrder returns a stage's node ids in declaration order; the decision
// node relies on it for deterministic reason selection.
func nodeOrder(st Stage) []string {
	ids := make([]string, len(st.Nodes))
	for i, n := range st.Nodes {
		ids[i] = n.ID()
	}
	return ids
}
