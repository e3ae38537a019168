package fraud

import (
	"errors"
	"fmt"
)

// ErrInvalidTransaction is the only top-level failure an analysis can
// surface: the transaction is structurally unusable (nil, or no id).
// A transaction merely missing optional variables never triggers it.
var ErrInvalidTransaction = errors.New("fraud: invalid transaction")

// TrainingError reports an unusable training set for one node. Nodes do not
// catch it; the lifecycle manager records it and moves on.
type TrainingError struct {
	NodeID string
	Reason string
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("fraud: training %s: %s", e.NodeID, e.Reason)
}

// IsTrainingError reports whether err is (or wraps) a TrainingError.
func IsTrainingError(err error) bool {
	var te *TrainingError
	return errors.As(err, &te)
}

// Clamp01 bounds a score or confidence value to [0,1]. NaN collapses to 0.
func Clamp01(v float64) float64 {
	if v != v { // NaN
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
