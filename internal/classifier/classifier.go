// Package classifier evaluates the pre-trained risk model.
package classifier

import (
	"context"
	"errors"
)

// ErrFeatureCount is returned when the input vector does not match the model's width.
var ErrFeatureCount = errors.New("feature vector has wrong length")

// Prediction is one classification result.
type Prediction struct {
	Label      string
	Confidence float64
	Version    string
}

// Classifier maps a feature vector to a label and the probability of that label.
// Implementations are read-only after construction and safe for concurrent use.
type Classifier interface {
	Classify(ctx context.Context, features []float64) (Prediction, error)
}
