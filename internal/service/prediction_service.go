package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sadar/internal/classifier"
	"sadar/internal/model"
	"sadar/internal/repository"
)

// HistoryEntry is one past classification as returned to its owner.
type HistoryEntry struct {
	ID             uuid.UUID       `json:"id"`
	CreatedAt      time.Time       `json:"created_at"`
	PredictedClass string          `json:"predicted_class"`
	Confidence     float64         `json:"confidence"`
	Input          json.RawMessage `json:"input"`
}

// PredictionService runs the classifier and keeps the per-user ledger.
type PredictionService interface {
	Predict(ctx context.Context, user *model.User, features model.Features) (classifier.Prediction, error)
	History(ctx context.Context, user *model.User, limit int) ([]HistoryEntry, error)
}

type predictionService struct {
	classifier classifier.Classifier
	history    repository.HistoryRepository
}

// NewPredictionService creates a new prediction service.
func NewPredictionService(c classifier.Classifier, history repository.HistoryRepository) PredictionService {
	return &predictionService{classifier: c, history: history}
}

// Predict classifies features and appends the result to the user's history.
// The result is only returned once the history row is stored.
func (s *predictionService) Predict(ctx context.Context, user *model.User, features model.Features) (classifier.Prediction, error) {
	pred, err := s.classifier.Classify(ctx, features.Vector())
	if err != nil {
		return classifier.Prediction{}, fmt.Errorf("classify: %w", err)
	}

	snapshot, err := json.Marshal(features)
	if err != nil {
		return classifier.Prediction{}, fmt.Errorf("snapshot input: %w", err)
	}

	entry := &model.History{
		UserID:         user.ID,
		InputJSON:      string(snapshot),
		PredictedClass: pred.Label,
		Confidence:     pred.Confidence,
		ModelVersion:   pred.Version,
	}
	if err := s.history.Create(ctx, entry); err != nil {
		return classifier.Prediction{}, fmt.Errorf("record history: %w", err)
	}
	return pred, nil
}

// History lists the user's entries, newest first.
func (s *predictionService) History(ctx context.Context, user *model.User, limit int) ([]HistoryEntry, error) {
	rows, err := s.history.ListByUser(ctx, user.ID, limit)
	if err != nil {
		return nil, err
	}
	entries := make([]HistoryEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, HistoryEntry{
			ID:             r.ID,
			CreatedAt:      r.CreatedAt,
			PredictedClass: r.PredictedClass,
			Confidence:     r.Confidence,
			Input:          json.RawMessage(r.InputJSON),
		})
	}
	return entries, nil
}
