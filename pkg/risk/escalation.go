package risk

import (
	"fmt"

	"fraudshield/pkg/fraud"
)

// Stage-3 assessment nodes. These read everything stages 1 and 2 produced.

// EscalationFeatures models the intuition that several simultaneous
// independent alerts are more significant than one large alert: count of
// prior scores above the high threshold, the maximum prior score, and the
// count of correlated pairs that are both elevated.
func EscalationFeatures(cfg Config) func(tx *fraud.Transaction, prior fraud.ResultBundle) fraud.FeatureVector {
	return func(_ *fraud.Transaction, prior fraud.ResultBundle) fraud.FeatureVector {
		scores := allPriorScores(prior)
		fv := fraud.FeatureVector{}

		high := 0.0
		for _, s := range scores {
			if s > cfg.HighScore {
				high++
			}
		}
		fv["high_count"] = fraud.Clamp01(high / 4) // saturates at four alerts

		_, max, _ := meanMaxStdev(scores)
		fv["max_prior"] = max

		pairs := 0.0
		for _, pair := range cfg.CorrelatedPairs {
			if scores[pair[0]] > cfg.HighScore && scores[pair[1]] > cfg.HighScore {
				pairs++
			}
		}
		if len(cfg.CorrelatedPairs) > 0 {
			fv["pair_ratio"] = pairs / float64(len(cfg.CorrelatedPairs))
		}

		// Escalation reads every prior stage, so breadth averages over all
		// of them rather than the signal stage alone.
		breadth := 0.0
		for i := range prior {
			breadth += reportingBreadth(prior, i)
		}
		if len(prior) > 0 {
			breadth /= float64(len(prior))
		}
		fv["breadth"] = breadth
		fv["consistency"] = consistency(scores)
		return fv
	}
}

// EscalationHeuristic weighs simultaneity over magnitude.
func EscalationHeuristic() func(fv fraud.FeatureVector) (float64, float64, []string) {
	return func(fv fraud.FeatureVector) (float64, float64, []string) {
		score := fraud.Clamp01(0.45*fv["high_count"] + 0.35*fv["max_prior"] + 0.20*fv["pair_ratio"])
		var reasons []string
		if fv["high_count"] >= 0.5 {
			reasons = append(reasons, "escalation pattern: multiple simultaneous high-risk signals")
		}
		if fv["pair_ratio"] > 0 {
			reasons = append(reasons, fmt.Sprintf("correlated signal pairs elevated (%.0f%%)", fv["pair_ratio"]*100))
		}
		conf := aggregateConfidence(fv["breadth"], fv["consistency"])
		return score, conf, reasons
	}
}

// CompositeFeatures blends the stage-2 aggregates with mitigation into one
// exposure figure for the decision layer.
func CompositeFeatures(cfg Config) func(tx *fraud.Transaction, prior fraud.ResultBundle) fraud.FeatureVector {
	return func(tx *fraud.Transaction, prior fraud.ResultBundle) fraud.FeatureVector {
		stage2 := stageScores(prior, 1)
		fv := fraud.FeatureVector{
			"category": stage2["category"],
			"cascade":  stage2["cascade"],
			"anomaly":  stage2["anomaly"],
		}
		mit, _ := mitigationFactor(tx, cfg.MitigationCap)
		fv["mitigation"] = mit
		fv["breadth"] = reportingBreadth(prior, 1)
		fv["consistency"] = consistency(stage2)
		return fv
	}
}

// CompositeHeuristic: category leads, cascade and anomaly confirm;
// mitigation stays multiplicative and bounded.
func CompositeHeuristic() func(fv fraud.FeatureVector) (float64, float64, []string) {
	return func(fv fraud.FeatureVector) (float64, float64, []string) {
		score := 0.4*fv["category"] + 0.3*fv["cascade"] + 0.3*fv["anomaly"]
		score *= 1 - fv["mitigation"]
		var reasons []string
		if score > 0.6 {
			reasons = append(reasons, fmt.Sprintf("composite risk exposure %.2f", score))
		}
		conf := aggregateConfidence(fv["breadth"], fv["consistency"])
		return fraud.Clamp01(score), conf, reasons
	}
}

// DecisionFeatures condenses the entire bundle for the terminal node.
func DecisionFeatures() func(tx *fraud.Transaction, prior fraud.ResultBundle) fraud.FeatureVector {
	return func(_ *fraud.Transaction, prior fraud.ResultBundle) fraud.FeatureVector {
		fv := fraud.FeatureVector{}
		for i := range prior {
			if mean, ok := prior.StageMean(i); ok {
				fv[fmt.Sprintf("stage%d_mean", i+1)] = mean
			}
		}
		scores := allPriorScores(prior)
		_, max, stdev := meanMaxStdev(scores)
		fv["max_score"] = max
		fv["spread"] = fraud.Clamp01(2 * stdev)
		fv["escalation"] = scores["escalation"]
		fv["composite"] = scores["composite"]
		fv["cascade"] = scores["cascade"]
		fv["anomaly"] = scores["anomaly"]

		breadth := 0.0
		for i := range prior {
			breadth += reportingBreadth(prior, i)
		}
		if len(prior) > 0 {
			breadth /= float64(len(prior))
		}
		fv["breadth"] = breadth
		fv["consistency"] = consistency(scores)
		return fv
	}
}

// DecisionHeuristic produces the final calibrated score: a weighted blend of
// stage means with small boosts when escalation or cascade patterns fired.
func DecisionHeuristic() func(fv fraud.FeatureVector) (float64, float64, []string) {
	return func(fv fraud.FeatureVector) (float64, float64, []string) {
		score := 0.25*fv["stage1_mean"] + 0.35*fv["stage2_mean"] + 0.40*fv["stage3_mean"]
		if fv["escalation"] > 0.7 {
			score += 0.08
		}
		if fv["cascade"] > 0.7 {
			score += 0.05
		}
		score = fraud.Clamp01(score)

		var reasons []string
		if score >= 0.7 {
			reasons = append(reasons, fmt.Sprintf("aggregate fraud score %.2f from staged assessment", score))
		}
		conf := aggregateConfidence(fv["breadth"], fv["consistency"])
		return score, conf, reasons
	}
}
