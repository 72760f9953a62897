package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const leaf = -1

type node struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Value     []float64 `json:"value"`
}

type tree struct {
	Nodes []node `json:"nodes"`
}

type forestFile struct {
	Version   string `json:"version"`
	NFeatures int    `json:"n_features"`
	NClasses  int    `json:"n_classes"`
	Trees     []tree `json:"trees"`
}

// Forest is a random forest exported from the training pipeline.
// Each tree routes left when x[feature] <= threshold; leaves hold per-class
// sample counts that are normalized and averaged across trees.
type Forest struct {
	version   string
	nFeatures int
	trees     []tree
	labels    []string
}

var _ Classifier = (*Forest)(nil)

// LoadForest decodes a forest and its label list and checks that they fit together.
func LoadForest(model, labels io.Reader) (*Forest, error) {
	var ff forestFile
	if err := json.NewDecoder(model).Decode(&ff); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	var names []string
	if err := json.NewDecoder(labels).Decode(&names); err != nil {
		return nil, fmt.Errorf("decode labels: %w", err)
	}

	if ff.NFeatures <= 0 {
		return nil, errors.New("model: n_features must be positive")
	}
	if ff.NClasses <= 0 {
		return nil, errors.New("model: n_classes must be positive")
	}
	if len(names) != ff.NClasses {
		return nil, fmt.Errorf("labels: got %d names for %d classes", len(names), ff.NClasses)
	}
	if len(ff.Trees) == 0 {
		return nil, errors.New("model: no trees")
	}
	for i, t := range ff.Trees {
		if err := t.validate(ff.NFeatures, ff.NClasses); err != nil {
			return nil, fmt.Errorf("model: tree %d: %w", i, err)
		}
	}

	return &Forest{
		version:   ff.Version,
		nFeatures: ff.NFeatures,
		trees:     ff.Trees,
		labels:    names,
	}, nil
}

// children must point forward so evaluation always terminates
func (t tree) validate(nFeatures, nClasses int) error {
	if len(t.Nodes) == 0 {
		return errors.New("empty tree")
	}
	for i, n := range t.Nodes {
		if n.Left == leaf || n.Right == leaf {
			if n.Left != n.Right {
				return fmt.Errorf("node %d: half leaf", i)
			}
			if len(n.Value) != nClasses {
				return fmt.Errorf("node %d: leaf has %d values, want %d", i, len(n.Value), nClasses)
			}
			var sum float64
			for _, v := range n.Value {
				if v < 0 {
					return fmt.Errorf("node %d: negative leaf value", i)
				}
				sum += v
			}
			if sum <= 0 {
				return fmt.Errorf("node %d: empty leaf", i)
			}
			continue
		}
		if n.Feature < 0 || n.Feature >= nFeatures {
			return fmt.Errorf("node %d: feature %d out of range", i, n.Feature)
		}
		if n.Left <= i || n.Left >= len(t.Nodes) || n.Right <= i || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d: child index out of range", i)
		}
	}
	return nil
}

func (t tree) leafFor(x []float64) []float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Left == leaf {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Version identifies the loaded artifact.
func (f *Forest) Version() string {
	return f.version
}

// Probabilities returns the mean class distribution over all trees.
func (f *Forest) Probabilities(x []float64) ([]float64, error) {
	if len(x) != f.nFeatures {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrFeatureCount, len(x), f.nFeatures)
	}
	proba := make([]float64, len(f.labels))
	for _, t := range f.trees {
		value := t.leafFor(x)
		var sum float64
		for _, v := range value {
			sum += v
		}
		for c, v := range value {
			proba[c] += v / sum
		}
	}
	for c := range proba {
		proba[c] /= float64(len(f.trees))
	}
	return proba, nil
}

// Classify returns the most probable label. Ties go to the lowest class index.
func (f *Forest) Classify(ctx context.Context, x []float64) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}
	proba, err := f.Probabilities(x)
	if err != nil {
		return Prediction{}, err
	}
	best := 0
	for c := range proba {
		if proba[c] > proba[best] {
			best = c
		}
	}
	return Prediction{
		Label:      f.labels[best],
		Confidence: proba[best],
		Version:    f.version,
	}, nil
}
