package analyzers

import (
	"fmt"
	"math"

	"fraudshield/pkg/fraud"
)

// Stage-1 extractors fold everything their heuristic needs, including
// data-availability flags, into the feature vector; the heuristics stay
// pure functions of their own features and never touch the transaction.

// AmountFeatures covers magnitude, suspiciously round amounts, and
// just-below-reporting-threshold avoidance.
func AmountFeatures(cfg Config) func(tx *fraud.Transaction, prior fraud.ResultBundle) fraud.FeatureVector {
	return func(tx *fraud.Transaction, _ fraud.ResultBundle) fraud.FeatureVector {
		fv := fraud.FeatureVector{}
		amount, ok := tx.Float("amount")
		if !ok || amount < 0 {
			return fv
		}
		fv["present"] = 1
		fv["magnitude"] = fraud.Clamp01(amount / cfg.VeryLargeAmount)
		if amount >= cfg.LargeAmount {
			fv["large"] = 1
		}
		if cfg.RoundAmountStep > 0 && amount >= cfg.RoundAmountStep && math.Mod(amount, cfg.RoundAmountStep) == 0 {
			fv["round"] = 1
		}
		for _, threshold := range cfg.ReportingThresholds {
			if amount < threshold && amount >= threshold*(1-cfg.ReportingMargin) {
				fv["near_reporting"] = 1
				break
			}
		}
		return fv
	}
}

func AmountHeuristic(cfg Config) func(fv fraud.FeatureVector) (float64, float64, []string) {
	return func(fv fraud.FeatureVector) (float64, float64, []string) {
		if fv["present"] == 0 {
			return 0.2, 0.3, []string{"amount unavailable"}
		}
		var reasons []string
		score := 0.05 + 0.25*fv["magnitude"]
		if fv["magnitude"] >= 1 {
			score = 0.85
			reasons = append(reasons, fmt.Sprintf("amount at or above %.0f", cfg.VeryLargeAmount))
		} else if fv["large"] == 1 {
			score = 0.70
			reasons = append(reasons, fmt.Sprintf("large amount (>= %.0f)", cfg.LargeAmount))
		}
		if fv["round"] == 1 && score < 0.55 {
			score = 0.55
			reasons = append(reasons, "suspiciously round amount")
		}
		if fv["near_reporting"] == 1 && score < 0.65 {
			score = 0.65
			reasons = append(reasons, "amount just below a reporting threshold")
		}
		return fraud.Clamp01(score), 0.75, reasons
	}
}

// GeographyFeatures covers country risk and domestic/foreign routing.
func GeographyFeatures(cfg Config) func(tx *fraud.Transaction, prior fraud.ResultBundle) fraud.FeatureVector {
	highRisk := map[string]struct{}{}
	for _, c := range cfg.HighRiskCountries {
		highRisk[c] = struct{}{}
	}
	return func(tx *fraud.Transaction, _ fraud.ResultBundle) fraud.FeatureVector {
		fv := fraud.FeatureVector{}
		if country, ok := tx.String("country"); ok {
			fv["country_present"] = 1
			if _, risky := highRisk[country]; risky {
				fv["high_risk_country"] = 1
			}
		}
		if domestic, ok := tx.Bool("is_domestic"); ok {
			fv["domestic_present"] = 1
			if !domestic {
				fv["foreign"] = 1
			}
		}
		return fv
	}
}

func GeographyHeuristic() func(fv fraud.FeatureVector) (float64, float64, []string) {
	return func(fv fraud.FeatureVector) (float64, float64, []string) {
		var reasons []string
		score := 0.08
		if fv["foreign"] == 1 {
			score = 0.35
			reasons = append(reasons, "cross-border transaction")
		}
		if fv["high_risk_country"] == 1 {
			score = 0.75
			if fv["foreign"] == 1 {
				score = 0.85
			}
			reasons = append(reasons, "counterparty in high-risk country")
		}
		conf := 0.75
		if fv["country_present"] == 0 && fv["domestic_present"] == 0 {
			conf = 0.35
		}
		return score, conf, reasons
	}
}

// TemporalFeatures covers out-of-hours and weekend activity.
func TemporalFeatures(cfg Config) func(tx *fraud.Transaction, prior fraud.ResultBundle) fraud.FeatureVector {
	return func(tx *fraud.Transaction, _ fraud.ResultBundle) fraud.FeatureVector {
		fv := fraud.FeatureVector{}
		if hour, ok := tx.Float("hour_of_day"); ok {
			fv["hour_present"] = 1
			if hour >= cfg.NightStartHour || hour < cfg.NightEndHour {
				fv["night"] = 1
			}
		}
		if day, ok := tx.Float("day_of_week"); ok {
			// 0=Sunday, 6=Saturday
			if day == 0 || day == 6 {
				fv["weekend"] = 1
			}
		}
		return fv
	}
}

func TemporalHeuristic() func(fv fraud.FeatureVector) (float64, float64, []string) {
	return func(fv fraud.FeatureVector) (float64, float64, []string) {
		if fv["hour_present"] == 0 {
			return 0.15, 0.35, nil
		}
		var reasons []string
		score := 0.10
		if fv["night"] == 1 {
			score = 0.60
			reasons = append(reasons, "transaction outside business hours")
		}
		if fv["weekend"] == 1 {
			score += 0.10
			reasons = append(reasons, "weekend activity")
		}
		return fraud.Clamp01(score), 0.7, reasons
	}
}

// ChannelFeatures maps the payment channel onto its configured base risk.
func ChannelFeatures(cfg Config) func(tx *fraud.Transaction, prior fraud.ResultBundle) fraud.FeatureVector {
	return func(tx *fraud.Transaction, _ fraud.ResultBundle) fraud.FeatureVector {
		fv := fraud.FeatureVector{}
		channel, ok := tx.String("channel")
		if !ok {
			fv["channel_risk"] = cfg.DefaultChannelRisk
			return fv
		}
		fv["channel_present"] = 1
		risk, known := cfg.ChannelRisk[channel]
		if !known {
			risk = cfg.DefaultChannelRisk
		}
		fv["channel_risk"] = risk
		return fv
	}
}

func ChannelHeuristic() func(fv fraud.FeatureVector) (float64, float64, []string) {
	return func(fv fraud.FeatureVector) (float64, float64, []string) {
		score := fv["channel_risk"]
		var reasons []string
		if score > 0.4 {
			reasons = append(reasons, "high-risk payment channel")
		}
		conf := 0.7
		if fv["channel_present"] == 0 {
			conf = 0.4
		}
		return fraud.Clamp01(score), conf, reasons
	}
}

// HistoryFeatures covers client tenure and deviation from the historical
// spending profile (amount ratios arrive pre-computed in the variables).
func HistoryFeatures(cfg Config) func(tx *fraud.Transaction, prior fraud.ResultBundle) fraud.FeatureVector {
	return func(tx *fraud.Transaction, _ fraud.ResultBundle) fraud.FeatureVector {
		fv := fraud.FeatureVector{}
		if age, ok := tx.Float("client_age_days"); ok {
			fv["age_present"] = 1
			if cfg.NewClientDays > 0 {
				fv["new_client"] = fraud.Clamp01(1 - age/cfg.NewClientDays)
			}
		}
		if count, ok := tx.Float("historical_transaction_count"); ok {
			fv["count_present"] = 1
			if count == 0 {
				fv["no_history"] = 1
			}
		}
		avg, okAvg := tx.Float("historical_avg_amount")
		amount, okAmt := tx.Float("amount")
		if okAvg && okAmt && avg > 0 && cfg.AmountDeviationRatio > 0 {
			fv["amount_deviation"] = fraud.Clamp01((amount / avg) / cfg.AmountDeviationRatio)
		}
		return fv
	}
}

func HistoryHeuristic() func(fv fraud.FeatureVector) (float64, float64, []string) {
	return func(fv fraud.FeatureVector) (float64, float64, []string) {
		if fv["age_present"] == 0 && fv["count_present"] == 0 {
			return 0.2, 0.3, []string{"no client history available"}
		}
		var reasons []string
		score := 0.05
		if fv["new_client"] >= 0.9 {
			score = 0.60
			reasons = append(reasons, "very new client profile")
		} else if fv["new_client"] > 0 {
			score = 0.05 + 0.35*fv["new_client"]
		}
		if fv["no_history"] == 1 {
			score += 0.20
			reasons = append(reasons, "no prior transactions on record")
		}
		if fv["amount_deviation"] >= 1 && score < 0.65 {
			score = 0.65
			reasons = append(reasons, "amount far above historical average")
		}
		return fraud.Clamp01(score), 0.75, reasons
	}
}

// VelocityFeatures covers short-horizon transaction counts, which arrive
// pre-computed like the other historical aggregates.
func VelocityFeatures(cfg Config) func(tx *fraud.Transaction, prior fraud.ResultBundle) fraud.FeatureVector {
	return func(tx *fraud.Transaction, _ fraud.ResultBundle) fraud.FeatureVector {
		fv := fraud.FeatureVector{}
		if hourly, ok := tx.Float("txn_count_last_hour"); ok && cfg.VelocityHourlyLimit > 0 {
			fv["hourly_present"] = 1
			fv["hourly"] = fraud.Clamp01(hourly / cfg.VelocityHourlyLimit)
		}
		if daily, ok := tx.Float("txn_count_last_day"); ok && cfg.VelocityDailyLimit > 0 {
			fv["daily_present"] = 1
			fv["daily"] = fraud.Clamp01(daily / cfg.VelocityDailyLimit)
		}
		return fv
	}
}

func VelocityHeuristic() func(fv fraud.FeatureVector) (float64, float64, []string) {
	return func(fv fraud.FeatureVector) (float64, float64, []string) {
		if fv["hourly_present"] == 0 && fv["daily_present"] == 0 {
			return 0.1, 0.35, nil
		}
		score := fraud.Clamp01(0.7*fv["hourly"] + 0.3*fv["daily"])
		var reasons []string
		if fv["hourly"] >= 1 {
			reasons = append(reasons, "hourly transaction velocity at limit")
		} else if score > 0.5 {
			reasons = append(reasons, "elevated transaction velocity")
		}
		return score, 0.75, reasons
	}
}
