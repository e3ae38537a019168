package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
)

// IsolationForest is a lightweight anomaly model suitable for the small
// score vectors the aggregation stage feeds it. Trees are built from a
// seeded source so the same training set always yields the same forest.
type IsolationForest struct {
	Trees      []*iTree `json:"trees"`
	NumTrees   int      `json:"num_trees"`
	SampleSize int      `json:"sample_size"`
	HeightLim  int      `json:"height_limit"`
	Seed       int64    `json:"seed"`
}

type iTree struct {
	Root *iNode `json:"root"`
}

type iNode struct {
	Leaf     bool    `json:"leaf"`
	Size     int     `json:"size"`
	Dim      int     `json:"dim"`
	SplitVal float64 `json:"split_val"`
	Left     *iNode  `json:"left,omitempty"`
	Right    *iNode  `json:"right,omitempty"`
}

func NewIsolationForest(numTrees, sampleSize int) *IsolationForest {
	if numTrees <= 0 {
		numTrees = 64
	}
	if sampleSize <= 0 {
		sampleSize = 128
	}
	return &IsolationForest{
		NumTrees:   numTrees,
		SampleSize: sampleSize,
		HeightLim:  int(math.Ceil(math.Log2(float64(sampleSize)))),
		Seed:       1,
	}
}

func (f *IsolationForest) Algorithm() string { return "isolation_forest" }

// Fit builds the forest. Labels are accepted for interface compatibility but
// ignored; isolation forests are unsupervised. The residual reported is the
// mean anomaly score over the training set.
func (f *IsolationForest) Fit(X [][]float64, _ []float64) (int, float64, error) {
	if len(X) == 0 {
		return 0, 0, fmt.Errorf("ml: fit requires a non-empty sample set")
	}
	rng := rand.New(rand.NewSource(f.Seed))
	f.Trees = make([]*iTree, f.NumTrees)
	n := len(X)
	for i := 0; i < f.NumTrees; i++ {
		idxs := rng.Perm(n)
		m := f.SampleSize
		if m > n {
			m = n
		}
		sample := make([][]float64, m)
		for j := 0; j < m; j++ {
			sample[j] = X[idxs[j]]
		}
		f.Trees[i] = &iTree{Root: buildTree(rng, sample, 0, f.HeightLim)}
	}

	sum := 0.0
	for _, row := range X {
		s, _ := f.Predict(row)
		sum += s
	}
	return f.NumTrees, sum / float64(n), nil
}

func buildTree(rng *rand.Rand, X [][]float64, h, hlim int) *iNode {
	if len(X) <= 1 || h >= hlim {
		return &iNode{Leaf: true, Size: len(X)}
	}
	d := len(X[0])
	dim := rng.Intn(d)
	minv, maxv := X[0][dim], X[0][dim]
	for i := 1; i < len(X); i++ {
		v := X[i][dim]
		if v < minv {
			minv = v
		}
		if v > maxv {
			maxv = v
		}
	}
	if minv == maxv {
		return &iNode{Leaf: true, Size: len(X)}
	}
	split := minv + rng.Float64()*(maxv-minv)
	left := make([][]float64, 0, len(X))
	right := make([][]float64, 0, len(X))
	for _, row := range X {
		if row[dim] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &iNode{Leaf: true, Size: len(X)}
	}
	return &iNode{Dim: dim, SplitVal: split, Left: buildTree(rng, left, h+1, hlim), Right: buildTree(rng, right, h+1, hlim)}
}

// cFactor is c(n), the average unsuccessful-search path length in a BST,
// used to normalize path lengths.
func cFactor(n int) float64 {
	if n <= 1 {
		return 0
	}
	return 2.0*(math.Log(float64(n-1))+0.5772156649) - 2.0*float64(n-1)/float64(n)
}

func pathLength(node *iNode, x []float64, h int) float64 {
	if node.Leaf {
		if node.Size <= 1 {
			return float64(h)
		}
		return float64(h) + cFactor(node.Size)
	}
	if node.Dim < len(x) && x[node.Dim] < node.SplitVal {
		return pathLength(node.Left, x, h+1)
	}
	return pathLength(node.Right, x, h+1)
}

// Predict returns the anomaly score in [0,1]; higher means more anomalous.
func (f *IsolationForest) Predict(x []float64) (float64, error) {
	if len(f.Trees) == 0 {
		return 0, errNotFitted
	}
	sum := 0.0
	for _, t := range f.Trees {
		sum += pathLength(t.Root, x, 0)
	}
	avg := sum / float64(len(f.Trees))
	c := cFactor(f.SampleSize)
	if c <= 0 {
		c = 1
	}
	return math.Pow(2, -avg/c), nil
}

func (f *IsolationForest) Export() ([]byte, error) { return json.Marshal(f) }

func (f *IsolationForest) Import(b []byte) error {
	var snap IsolationForest
	if err := json.Unmarshal(b, &snap); err != nil {
		return fmt.Errorf("ml: import isolation forest: %w", err)
	}
	*f = snap
	return nil
}
