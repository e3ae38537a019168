// Package analyzers provides the stage-1 scoring variants (amount,
// geography, temporal, channel, history, velocity) and assembles the
// default pipeline. Each variant is only a feature extractor plus a
// heuristic handed to the generic ensemble node; the ~20 near-identical
// analyzer classes of older systems collapse into this table.
package analyzers

// Config carries every heuristic threshold the signal nodes use. These are
// policy data with defaults, not code constants; several (the reporting
// windows, the new-behavior cutoffs) have no firmer provenance than
// operational practice, so they stay configurable rather than hardcoded.
type Config struct {
	// Amount policy.
	LargeAmount     float64 // flagged as large at or above
	VeryLargeAmount float64 // flagged as very large at or above
	RoundAmountStep float64 // multiples of this count as suspiciously round
	// ReportingThresholds are regulatory amounts; transactions just below
	// one (within ReportingMargin) look like threshold avoidance.
	ReportingThresholds []float64
	ReportingMargin     float64

	// Geography policy.
	HighRiskCountries []string

	// Channel policy: per-channel base risk, with a default for channels
	// not in the table.
	ChannelRisk        map[string]float64
	DefaultChannelRisk float64

	// Client history policy.
	NewClientDays        float64 // younger profiles count as new
	AmountDeviationRatio float64 // multiples of the historical average that count as new behavior

	// Temporal policy (hours in the transaction's local time).
	NightStartHour float64
	NightEndHour   float64

	// Velocity policy.
	VelocityHourlyLimit float64
	VelocityDailyLimit  float64
}

// DefaultConfig returns the shipped heuristic policy.
func DefaultConfig() Config {
	return Config{
		LargeAmount:         10000,
		VeryLargeAmount:     25000,
		RoundAmountStep:     1000,
		ReportingThresholds: []float64{10000, 5000},
		ReportingMargin:     0.10,
		HighRiskCountries:   []string{"KP", "IR", "MM", "SY", "CU"},
		ChannelRisk: map[string]float64{
			"card_not_present": 0.60,
			"wire":             0.50,
			"online":           0.45,
			"atm":              0.30,
			"pos":              0.15,
			"branch":           0.10,
		},
		DefaultChannelRisk:   0.15,
		NewClientDays:        30,
		AmountDeviationRatio: 3.0,
		NightStartHour:       22,
		NightEndHour:         6,
		VelocityHourlyLimit:  5,
		VelocityDailyLimit:   20,
	}
}
