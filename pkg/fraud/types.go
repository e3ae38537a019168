// Package fraud defines the data model shared by the scoring pipeline:
// transactions, per-node score outputs, stage results, and the final verdict.
package fraud

import (
	"encoding/json"
	"time"
)

// Transaction is an immutable bag of named attributes describing one payment.
// Historical aggregates (transaction counts, average amounts) are expected to
// arrive pre-computed inside Variables; the pipeline never mutates them.
type Transaction struct {
	ID        string         `json:"id"`
	Variables map[string]any `json:"variables"`
}

// Float returns a numeric variable, tolerating the JSON number types that
// show up after decoding. Missing or non-numeric variables yield (0, false).
func (t *Transaction) Float(key string) (float64, bool) {
	v, ok := t.Variables[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// String returns a string variable.
func (t *Transaction) String(key string) (string, bool) {
	if s, ok := t.Variables[key].(string); ok {
		return s, true
	}
	return "", false
}

// Bool returns a boolean variable.
func (t *Transaction) Bool(key string) (bool, bool) {
	if b, ok := t.Variables[key].(bool); ok {
		return b, true
	}
	return false, false
}

// FeatureVector holds named features in [0,1] by convention. It is consumed
// only by the node that produced it.
type FeatureVector map[string]float64

// ScoreOutput is the immutable result of one node for one analysis.
type ScoreOutput struct {
	NodeID     string        `json:"node_id"`
	Score      float64       `json:"score"`
	Confidence float64       `json:"confidence"`
	Reasons    []string      `json:"reasons,omitempty"`
	Features   FeatureVector `json:"features,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
	Degraded   bool          `json:"degraded,omitempty"`
}

// StageResult maps node id to its output. It is frozen once the stage
// barrier passes; later stages read it, never write it.
type StageResult map[string]*ScoreOutput

// ResultBundle is the ordered collection of all StageResults produced so far
// in one analysis. Append-only within an analysis.
type ResultBundle []StageResult

// Get returns the output of a node by stage index and node id.
func (b ResultBundle) Get(stage int, nodeID string) (*ScoreOutput, bool) {
	if stage < 0 || stage >= len(b) {
		return nil, false
	}
	out, ok := b[stage][nodeID]
	return out, ok
}

// Find returns the first output with the given node id across all stages.
func (b ResultBundle) Find(nodeID string) (*ScoreOutput, bool) {
	for _, stage := range b {
		if out, ok := stage[nodeID]; ok {
			return out, true
		}
	}
	return nil, false
}

// StageMean returns the arithmetic mean score of one stage, and whether the
// stage had any outputs at all.
func (b ResultBundle) StageMean(stage int) (float64, bool) {
	if stage < 0 || stage >= len(b) || len(b[stage]) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, out := range b[stage] {
		sum += out.Score
	}
	return sum / float64(len(b[stage])), true
}

// AllScores returns every score in the bundle, in no particular order.
func (b ResultBundle) AllScores() []float64 {
	var scores []float64
	for _, stage := range b {
		for _, out := range stage {
			scores = append(scores, out.Score)
		}
	}
	return scores
}

// RiskLevel buckets a fraud score into operator-facing severity bands.
type RiskLevel string

const (
	RiskMinimal  RiskLevel = "minimal"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskLevelFor maps a fraud score onto its band. Lower bounds are inclusive:
// [0,0.3) minimal, [0.3,0.5) low, [0.5,0.7) medium, [0.7,0.9) high, else critical.
func RiskLevelFor(score float64) RiskLevel {
	switch {
	case score < 0.3:
		return RiskMinimal
	case score < 0.5:
		return RiskLow
	case score < 0.7:
		return RiskMedium
	case score < 0.9:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// Decision methods recorded on a Verdict.
const (
	DecisionModel     = "model"
	DecisionHeuristic = "heuristic"
	DecisionFallback  = "fallback_average"
)

// Verdict is the terminal artifact of one analysis.
type Verdict struct {
	FraudDetected  bool      `json:"fraud_detected"`
	FraudScore     float64   `json:"fraud_score"`
	RiskLevel      RiskLevel `json:"risk_level"`
	Confidence     float64   `json:"confidence"`
	PrimaryReasons []string  `json:"primary_reasons,omitempty"`
	Warnings       []string  `json:"warnings,omitempty"`
	DecisionMethod string    `json:"decision_method"`
}

// AnalysisResult is what callers of Analyze receive: the verdict plus the
// full per-stage audit trail and timing metadata. Timings are informational
// only and never affect the verdict.
type AnalysisResult struct {
	TransactionID string                   `json:"transaction_id"`
	AnalysisID    string                   `json:"analysis_id"`
	Verdict       Verdict                  `json:"verdict"`
	PerStage      []StageResult            `json:"per_stage"`
	Timings       map[string]time.Duration `json:"timings"`
	NodeVersions  map[string]string        `json:"node_versions"`
	CompletedAt   time.Time                `json:"completed_at"`
}

// ModelState is a total snapshot of one node's trained model. Exported and
// imported as a whole, never partially; Weights stay opaque to everything
// except the model implementation that produced them.
type ModelState struct {
	NodeID       string          `json:"node_id"`
	Version      string          `json:"version"`
	Algorithm    string          `json:"algorithm"`
	IsTrained    bool            `json:"is_trained"`
	TrainedAt    *time.Time      `json:"trained_at,omitempty"`
	Residual     float64         `json:"residual,omitempty"`
	FeatureOrder []string        `json:"feature_order,omitempty"`
	Weights      json.RawMessage `json:"weights,omitempty"`
}

// TrainingSample pairs raw transaction variables with a labeled fraud score.
type TrainingSample struct {
	Variables  map[string]any `json:"variables"`
	LabelScore float64        `json:"label_fraud_score"`
}

// TrainingReport describes the outcome of training one node.
type TrainingReport struct {
	NodeID        string        `json:"node_id"`
	Success       bool          `json:"success"`
	Iterations    int           `json:"iterations"`
	ResidualError float64       `json:"residual_error"`
	Duration      time.Duration `json:"duration_ns"`
	Error         string        `json:"error,omitempty"`
}

// TrainingSummary aggregates per-node reports for one TrainAll run. Partial
// success is a valid, reportable end state, not an error.
type TrainingSummary struct {
	Total     int              `json:"total"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Duration  time.Duration    `json:"duration_ns"`
	Reports   []TrainingReport `json:"reports"`
}
