package analyzers

import (
	"time"

	"fraudshield/pkg/ensemble"
	"fraudshield/pkg/ml"
	"fraudshield/pkg/risk"
)

// PipelineConfig bundles everything needed to assemble a scoring pipeline.
type PipelineConfig struct {
	Analyzers Config
	Risk      risk.Config

	// FraudThreshold marks verdicts at or above it as fraud. Negative means
	// the ensemble default (0.7); an explicit 0 or >1 is honored as given.
	FraudThreshold float64

	// StageWeights feed the decision fallback; nil means the default
	// 0.3/0.3/0.4.
	StageWeights []float64

	// NodeTimeout bounds each node invocation; zero means the ensemble
	// default.
	NodeTimeout time.Duration
}

// DefaultPipelineConfig returns the shipped three-stage policy.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Analyzers:      DefaultConfig(),
		Risk:           risk.DefaultConfig(),
		FraudThreshold: -1,
	}
}

func regressor() ensemble.Model { return ml.NewRegressor() }
func forest() ensemble.Model    { return ml.NewIsolationForest(64, 128) }

// NewPipeline builds the default fraud pipeline as a declarative node
// table: the signal stage, the correlation stage over stage-1 outputs, the
// assessment stage over everything before it, and the decision node. No
// hidden globals; independent pipelines can coexist in one process.
func NewPipeline(cfg PipelineConfig) (*ensemble.Orchestrator, error) {
	a, r := cfg.Analyzers, cfg.Risk

	stages := []ensemble.Stage{
		{
			Name: "signals",
			Nodes: []*ensemble.Node{
				ensemble.NewNode("amount", AmountFeatures(a), AmountHeuristic(a), regressor),
				ensemble.NewNode("geography", GeographyFeatures(a), GeographyHeuristic(), regressor),
				ensemble.NewNode("temporal", TemporalFeatures(a), TemporalHeuristic(), regressor),
				ensemble.NewNode("channel", ChannelFeatures(a), ChannelHeuristic(), regressor),
				ensemble.NewNode("history", HistoryFeatures(a), HistoryHeuristic(), regressor),
				ensemble.NewNode("velocity", VelocityFeatures(a), VelocityHeuristic(), regressor),
			},
		},
		{
			Name: "correlation",
			Nodes: []*ensemble.Node{
				ensemble.NewNode("category", risk.CategoryFeatures(r), risk.CategoryHeuristic(r), regressor),
				ensemble.NewNode("cascade", risk.CascadeFeatures(r), risk.CascadeHeuristic(r), regressor),
				ensemble.NewNode("anomaly", risk.AnomalyFeatures(), risk.AnomalyHeuristic(), forest),
			},
		},
		{
			Name: "assessment",
			Nodes: []*ensemble.Node{
				ensemble.NewNode("escalation", risk.EscalationFeatures(r), risk.EscalationHeuristic(), regressor),
				ensemble.NewNode("composite", risk.CompositeFeatures(r), risk.CompositeHeuristic(), regressor),
			},
		},
	}

	decision := ensemble.NewDecisionNode(
		ensemble.NewNode("decision", risk.DecisionFeatures(), risk.DecisionHeuristic(), regressor),
		cfg.FraudThreshold,
		cfg.StageWeights,
	)

	var opts []ensemble.Option
	if cfg.NodeTimeout > 0 {
		opts = append(opts, ensemble.WithNodeTimeout(cfg.NodeTimeout))
	}
	return ensemble.New(stages, decision, opts...)
}
