package risk

import (
	"fmt"
	"math"
	"sort"

	"fraudshield/pkg/fraud"
)

// Stage-2 aggregators. Their extractors read prior ScoreOutputs (plus the
// transaction for mitigation flags) and fold everything the heuristic needs
// into the feature vector, so the heuristic stays a pure function of its
// own features.

// stageScores returns a stage's scores keyed by node id, skipping degraded
// placeholders so a broken sibling does not masquerade as signal.
func stageScores(bundle fraud.ResultBundle, stage int) map[string]float64 {
	scores := map[string]float64{}
	if stage < 0 || stage >= len(bundle) {
		return scores
	}
	for id, out := range bundle[stage] {
		if out == nil || out.Degraded {
			continue
		}
		scores[id] = out.Score
	}
	return scores
}

func allPriorScores(bundle fraud.ResultBundle) map[string]float64 {
	scores := map[string]float64{}
	for i := range bundle {
		for id, s := range stageScores(bundle, i) {
			scores[id] = s
		}
	}
	return scores
}

func meanMaxStdev(scores map[string]float64) (mean, max, stdev float64) {
	if len(scores) == 0 {
		return 0, 0, 0
	}
	for _, s := range scores {
		mean += s
		if s > max {
			max = s
		}
	}
	mean /= float64(len(scores))
	for _, s := range scores {
		d := s - mean
		stdev += d * d
	}
	return mean, max, math.Sqrt(stdev / float64(len(scores)))
}

// reportingBreadth is the fraction of registered slots that produced a
// usable (non-degraded) score.
func reportingBreadth(bundle fraud.ResultBundle, stage int) float64 {
	if stage < 0 || stage >= len(bundle) || len(bundle[stage]) == 0 {
		return 0
	}
	return float64(len(stageScores(bundle, stage))) / float64(len(bundle[stage]))
}

// consistency is the inverse of score variance, scaled so that widely
// disagreeing nodes push it toward zero.
func consistency(scores map[string]float64) float64 {
	_, _, stdev := meanMaxStdev(scores)
	return fraud.Clamp01(1 - 2*stdev)
}

// aggregateConfidence combines breadth of reporting with consistency; it is
// a first-class quantity, not copied from any upstream node.
func aggregateConfidence(breadth, consist float64) float64 {
	return fraud.Clamp01(0.5*breadth + 0.5*consist)
}

// mitigationFactor inspects counter-weighting transaction signals. The
// returned value is the fraction to shave off an aggregate blend, already
// capped; mitigation is multiplicative on the aggregate, never additive
// past zero.
func mitigationFactor(tx *fraud.Transaction, cap float64) (float64, []string) {
	total := 0.0
	var notes []string
	age, _ := tx.Float("client_age_days")
	count, _ := tx.Float("historical_transaction_count")
	if age >= 365 && count >= 50 {
		total += 0.15
		notes = append(notes, "established client profile")
	}
	if domestic, ok := tx.Bool("is_domestic"); ok && domestic {
		total += 0.10
		notes = append(notes, "domestic channel")
	}
	if hour, ok := tx.Float("hour_of_day"); ok && hour >= 9 && hour <= 17 {
		total += 0.05
		notes = append(notes, "normal business hours")
	}
	if total > cap {
		total = cap
	}
	return total, notes
}

// CategoryFeatures blends topically related stage-1 scores into per-category
// risk features, plus mitigation and confidence inputs.
func CategoryFeatures(cfg Config) func(tx *fraud.Transaction, prior fraud.ResultBundle) fraud.FeatureVector {
	names := sortedCategoryNames(cfg)
	return func(tx *fraud.Transaction, prior fraud.ResultBundle) fraud.FeatureVector {
		scores := stageScores(prior, 0)
		fv := fraud.FeatureVector{}
		for _, cat := range names {
			blend := 0.0
			for nodeID, w := range cfg.CategoryWeights[cat] {
				blend += w * scores[nodeID]
			}
			fv["cat_"+cat] = fraud.Clamp01(blend)
		}
		mit, _ := mitigationFactor(tx, cfg.MitigationCap)
		fv["mitigation"] = mit
		fv["breadth"] = reportingBreadth(prior, 0)
		fv["consistency"] = consistency(scores)
		return fv
	}
}

// CategoryHeuristic averages the category blends and applies mitigation.
func CategoryHeuristic(cfg Config) func(fv fraud.FeatureVector) (float64, float64, []string) {
	names := sortedCategoryNames(cfg)
	return func(fv fraud.FeatureVector) (float64, float64, []string) {
		var reasons []string
		sum, n := 0.0, 0
		for _, cat := range names {
			v := fv["cat_"+cat]
			sum += v
			n++
			if v > 0.6 {
				reasons = append(reasons, fmt.Sprintf("elevated %s risk category (%.2f)", cat, v))
			}
		}
		score := 0.0
		if n > 0 {
			score = sum / float64(n)
		}
		if mit := fv["mitigation"]; mit > 0 {
			score *= 1 - mit
			reasons = append(reasons, fmt.Sprintf("risk reduced %.0f%% by mitigation factors", mit*100))
		}
		conf := aggregateConfidence(fv["breadth"], fv["consistency"])
		return score, conf, reasons
	}
}

// CascadeFeatures flags groups of conceptually related nodes that all
// exceed the threshold simultaneously. Deliberately non-linear: a group
// either fires or it does not, it is never approximated by averaging.
func CascadeFeatures(cfg Config) func(tx *fraud.Transaction, prior fraud.ResultBundle) fraud.FeatureVector {
	names := sortedGroupNames(cfg)
	return func(_ *fraud.Transaction, prior fraud.ResultBundle) fraud.FeatureVector {
		scores := stageScores(prior, 0)
		fv := fraud.FeatureVector{}
		fired := 0.0
		for _, name := range names {
			all := len(cfg.CascadeGroups[name]) > 0
			for _, nodeID := range cfg.CascadeGroups[name] {
				if scores[nodeID] <= cfg.CascadeThreshold {
					all = false
					break
				}
			}
			if all {
				fv["cascade_"+name] = 1
				fired++
			} else {
				fv["cascade_"+name] = 0
			}
		}
		if len(names) > 0 {
			fv["cascade_ratio"] = fired / float64(len(names))
		}
		fv["breadth"] = reportingBreadth(prior, 0)
		fv["consistency"] = consistency(scores)
		return fv
	}
}

// CascadeHeuristic scores 0.8 for a single fired cascade, stepping up for
// each additional one; quiet groups keep the score near the floor.
func CascadeHeuristic(cfg Config) func(fv fraud.FeatureVector) (float64, float64, []string) {
	names := sortedGroupNames(cfg)
	return func(fv fraud.FeatureVector) (float64, float64, []string) {
		var reasons []string
		fired := 0
		for _, name := range names {
			if fv["cascade_"+name] >= 1 {
				fired++
				reasons = append(reasons, fmt.Sprintf("cascade pattern: simultaneous high scores across %s group", name))
			}
		}
		if fired == 0 {
			return 0.1, aggregateConfidence(fv["breadth"], fv["consistency"]), nil
		}
		score := fraud.Clamp01(0.8 + 0.1*float64(fired-1))
		return score, aggregateConfidence(fv["breadth"], 1), reasons
	}
}

// AnomalyFeatures exposes the stage-1 score vector and its summary shape to
// the anomaly model (an isolation forest when trained).
func AnomalyFeatures() func(tx *fraud.Transaction, prior fraud.ResultBundle) fraud.FeatureVector {
	return func(_ *fraud.Transaction, prior fraud.ResultBundle) fraud.FeatureVector {
		scores := stageScores(prior, 0)
		fv := fraud.FeatureVector{}
		for id, s := range scores {
			fv["score_"+id] = s
		}
		mean, max, stdev := meanMaxStdev(scores)
		fv["score_mean"] = mean
		fv["score_max"] = max
		fv["score_spread"] = fraud.Clamp01(2 * stdev)
		fv["breadth"] = reportingBreadth(prior, 0)
		return fv
	}
}

// AnomalyHeuristic approximates the forest with dispersion rules over the
// same summary features.
func AnomalyHeuristic() func(fv fraud.FeatureVector) (float64, float64, []string) {
	return func(fv fraud.FeatureVector) (float64, float64, []string) {
		score := fraud.Clamp01(0.45*fv["score_max"] + 0.35*fv["score_mean"] + 0.20*fv["score_spread"])
		var reasons []string
		if score > 0.6 {
			reasons = append(reasons, fmt.Sprintf("anomalous signal profile (max %.2f, spread %.2f)", fv["score_max"], fv["score_spread"]))
		}
		conf := aggregateConfidence(fv["breadth"], 1-fv["score_spread"])
		return score, conf, reasons
	}
}

func sortedCategoryNames(cfg Config) []string {
	names := make([]string, 0, len(cfg.CategoryWeights))
	for name := range cfg.CategoryWeights {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedGroupNames(cfg Config) []string {
	names := make([]string, 0, len(cfg.CascadeGroups))
	for name := range cfg.CascadeGroups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
