// Package risk implements the aggregation layers of the pipeline: category
// blends, cascade/correlation detection, escalation scoring, anomaly
// detection over prior scores, and the decision node's feature extraction.
// All aggregators are plain ensemble nodes; this package only supplies
// their feature extractors and heuristic scorers.
package risk

// Config holds the aggregation policy. Weights and groups are configuration
// data, not code constants, so pipelines sharing a policy cannot drift.
type Config struct {
	// CategoryWeights maps category name -> stage-1 node id -> weight.
	// Weights within a category sum to 1.
	CategoryWeights map[string]map[string]float64

	// CascadeGroups are conceptually related node groups; a cascade fires
	// when every member exceeds CascadeThreshold simultaneously.
	CascadeGroups map[string][]string

	// CascadeThreshold is the per-member floor for a cascade.
	CascadeThreshold float64

	// HighScore is the level above which a prior score counts toward
	// escalation.
	HighScore float64

	// CorrelatedPairs are score pairs whose joint elevation signals urgency.
	CorrelatedPairs [][2]string

	// MitigationCap bounds how much mitigation factors may reduce an
	// aggregate blend (multiplicative, never past zero).
	MitigationCap float64
}

// DefaultConfig returns the shipped aggregation policy over the default
// stage-1 node table.
func DefaultConfig() Config {
	return Config{
		CategoryWeights: map[string]map[string]float64{
			"transaction": {
				"amount":    0.40,
				"geography": 0.35,
				"channel":   0.25,
			},
			"behavior": {
				"temporal": 0.30,
				"history":  0.40,
				"velocity": 0.30,
			},
		},
		CascadeGroups: map[string][]string{
			"exposure":     {"amount", "geography"},
			"new_behavior": {"history", "velocity"},
			"timing":       {"temporal", "velocity", "history"},
		},
		CascadeThreshold: 0.65,
		HighScore:        0.70,
		CorrelatedPairs: [][2]string{
			{"amount", "geography"},
			{"history", "velocity"},
			{"temporal", "history"},
		},
		MitigationCap: 0.30,
	}
}
