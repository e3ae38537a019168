package ensemble

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fraudshield/pkg/fraud"
)

func newTestPipeline(t *testing.T, stages []Stage, opts ...Option) *Orchestrator {
	t.Helper()
	decision := NewDecisionNode(
		NewNode("decision", constExtract(fraud.FeatureVector{}), constHeuristic(0.4, 0.7), nil),
		-1, nil,
	)
	orch, err := New(stages, decision, opts...)
	if err != nil {
		t.Fatalf("pipeline construction: %v", err)
	}
	return orch
}

func TestAnalyzeRejectsInvalidTransaction(t *testing.T) {
	orch := newTestPipeline(t, []Stage{{Name: "s1", Nodes: []*Node{
		NewNode("a", constExtract(fraud.FeatureVector{}), constHeuristic(0.2, 0.5), nil),
	}}})

	if _, err := orch.Analyze(context.Background(), nil); !errors.Is(err, fraud.ErrInvalidTransaction) {
		t.Fatalf("nil tx: got %v", err)
	}
	if _, err := orch.Analyze(context.Background(), &fraud.Transaction{}); !errors.Is(err, fraud.ErrInvalidTransaction) {
		t.Fatalf("empty id: got %v", err)
	}
}

func TestStageBarrierCompletesBeforeNextStage(t *testing.T) {
	var mu sync.Mutex
	var seen []int // stage-1 output count observed by each stage-2 node

	stage1 := []*Node{
		NewNode("a", constExtract(fraud.FeatureVector{}), constHeuristic(0.1, 0.5), nil),
		NewNode("b", constExtract(fraud.FeatureVector{}), constHeuristic(0.2, 0.5), nil),
		NewNode("c", constExtract(fraud.FeatureVector{}), constHeuristic(0.3, 0.5), nil),
	}
	observe := func(_ *fraud.Transaction, prior fraud.ResultBundle) fraud.FeatureVector {
		mu.Lock()
		seen = append(seen, len(prior[0]))
		mu.Unlock()
		return fraud.FeatureVector{}
	}
	stage2 := []*Node{
		NewNode("agg1", observe, constHeuristic(0.5, 0.5), nil),
		NewNode("agg2", observe, constHeuristic(0.5, 0.5), nil),
	}

	orch := newTestPipeline(t, []Stage{{Name: "s1", Nodes: stage1}, {Name: "s2", Nodes: stage2}})
	res, err := orch.Analyze(context.Background(), testTx())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(res.PerStage) != 2 {
		t.Fatalf("want 2 stages, got %d", len(res.PerStage))
	}
	for _, count := range seen {
		if count != 3 {
			t.Fatalf("stage 2 observed an incomplete stage 1: %d outputs", count)
		}
	}
}

func TestNodeFailureIsolation(t *testing.T) {
	panicking := func(fraud.FeatureVector) (float64, float64, []string) { panic("boom") }
	stage := []*Node{
		NewNode("dead1", constExtract(fraud.FeatureVector{}), panicking, nil),
		NewNode("dead2", constExtract(fraud.FeatureVector{}), panicking, nil),
		NewNode("alive", constExtract(fraud.FeatureVector{}), constHeuristic(0.33, 0.8), nil),
	}
	orch := newTestPipeline(t, []Stage{{Name: "s1", Nodes: stage}})
	res, err := orch.Analyze(context.Background(), testTx())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if len(res.PerStage[0]) != 3 {
		t.Fatalf("stage slot missing: %d", len(res.PerStage[0]))
	}
	for _, id := range []string{"dead1", "dead2"} {
		out := res.PerStage[0][id]
		if out == nil || !out.Degraded || out.Score != 0.5 {
			t.Fatalf("node %s not degraded to neutral: %+v", id, out)
		}
	}
	if out := res.PerStage[0]["alive"]; out.Degraded || out.Score != 0.33 {
		t.Fatalf("healthy node affected by siblings: %+v", out)
	}
	if len(res.Verdict.Warnings) < 2 {
		t.Fatalf("degraded nodes not surfaced in warnings: %v", res.Verdict.Warnings)
	}
}

func TestNodeTimeoutDegradesToNeutral(t *testing.T) {
	slow := func(fraud.FeatureVector) (float64, float64, []string) {
		time.Sleep(300 * time.Millisecond)
		return 0.9, 0.9, nil
	}
	stage := []*Node{
		NewNode("slow", constExtract(fraud.FeatureVector{}), slow, nil),
		NewNode("fast", constExtract(fraud.FeatureVector{}), constHeuristic(0.2, 0.5), nil),
	}
	orch := newTestPipeline(t, []Stage{{Name: "s1", Nodes: stage}}, WithNodeTimeout(30*time.Millisecond))
	res, err := orch.Analyze(context.Background(), testTx())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if out := res.PerStage[0]["slow"]; !out.Degraded {
		t.Fatalf("slow node should have timed out: %+v", out)
	}
	if out := res.PerStage[0]["fast"]; out.Degraded {
		t.Fatalf("fast node dragged down by sibling timeout: %+v", out)
	}
}

func TestDuplicateNodeIDsRejected(t *testing.T) {
	mk := func() *Node {
		return NewNode("dup", constExtract(fraud.FeatureVector{}), constHeuristic(0.5, 0.5), nil)
	}
	decision := NewDecisionNode(NewNode("decision", constExtract(fraud.FeatureVector{}), constHeuristic(0.4, 0.7), nil), -1, nil)

	if _, err := New([]Stage{{Name: "s1", Nodes: []*Node{mk(), mk()}}}, decision); err == nil {
		t.Fatal("duplicate within a stage must be rejected")
	}
	if _, err := New([]Stage{
		{Name: "s1", Nodes: []*Node{mk()}},
		{Name: "s2", Nodes: []*Node{mk()}},
	}, decision); err == nil {
		t.Fatal("duplicate across stages must be rejected")
	}

	clash := NewDecisionNode(NewNode("dup", constExtract(fraud.FeatureVector{}), constHeuristic(0.4, 0.7), nil), -1, nil)
	if _, err := New([]Stage{{Name: "s1", Nodes: []*Node{mk()}}}, clash); err == nil {
		t.Fatal("decision id colliding with a stage node must be rejected")
	}
}

func TestAnalysisMetadata(t *testing.T) {
	orch := newTestPipeline(t, []Stage{{Name: "s1", Nodes: []*Node{
		NewNode("a", constExtract(fraud.FeatureVector{}), constHeuristic(0.2, 0.5), nil),
	}}})

	first, err := orch.Analyze(context.Background(), testTx())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	second, err := orch.Analyze(context.Background(), testTx())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if first.AnalysisID == "" || first.AnalysisID == second.AnalysisID {
		t.Fatalf("analysis ids not unique: %q %q", first.AnalysisID, second.AnalysisID)
	}
	if _, ok := first.Timings["s1"]; !ok {
		t.Error("missing stage timing")
	}
	if _, ok := first.Timings["total"]; !ok {
		t.Error("missing total timing")
	}
	if v := first.NodeVersions["a"]; v != "v0" {
		t.Errorf("node version = %q", v)
	}
	if v := first.NodeVersions["decision"]; v != "v0" {
		t.Errorf("decision version = %q", v)
	}
}
