package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"sadar/internal/classifier"
	"sadar/internal/model"
	"sadar/internal/repository"
	"sadar/internal/testutil"
)

// MockClassifier is a mock implementation of classifier.Classifier.
type MockClassifier struct {
	mock.Mock
}

func (m *MockClassifier) Classify(ctx context.Context, features []float64) (classifier.Prediction, error) {
	args := m.Called(ctx, features)
	return args.Get(0).(classifier.Prediction), args.Error(1)
}

// MockHistoryRepository is a mock implementation of HistoryRepository.
type MockHistoryRepository struct {
	mock.Mock
}

func (m *MockHistoryRepository) Create(ctx context.Context, entry *model.History) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockHistoryRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]model.History, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.History), args.Error(1)
}

func intPtr(v int) *int { return &v }

func sampleFeatures() model.Features {
	score := 82.5
	return model.Features{
		Gender: intPtr(1), Age: intPtr(16), Grade: intPtr(11), Score: &score,
		Q1: intPtr(0), Q2: intPtr(1), Q3: intPtr(2), Q4: intPtr(3), Q5: intPtr(0),
		Q6: intPtr(1), Q7: intPtr(2), Q8: intPtr(3), Q9: intPtr(0),
	}
}

func TestPredictionService_Predict(t *testing.T) {
	clf := new(MockClassifier)
	hist := new(MockHistoryRepository)
	user := &model.User{ID: uuid.New(), Username: "alice"}
	features := sampleFeatures()

	clf.On("Classify", mock.Anything, features.Vector()).
		Return(classifier.Prediction{Label: "sedang", Confidence: 0.62, Version: "rf-1"}, nil)
	hist.On("Create", mock.Anything, mock.MatchedBy(func(h *model.History) bool {
		var snapshot map[string]any
		if err := json.Unmarshal([]byte(h.InputJSON), &snapshot); err != nil {
			return false
		}
		return h.UserID == user.ID &&
			h.PredictedClass == "sedang" &&
			h.Confidence == 0.62 &&
			h.ModelVersion == "rf-1" &&
			snapshot["nilai"] == 82.5 &&
			snapshot["jenis_kelamin"] == 1.0
	})).Return(nil)

	pred, err := NewPredictionService(clf, hist).Predict(context.Background(), user, features)
	require.NoError(t, err)
	assert.Equal(t, "sedang", pred.Label)
	assert.Equal(t, 0.62, pred.Confidence)

	clf.AssertExpectations(t)
	hist.AssertExpectations(t)
}

func TestPredictionService_Predict_ClassifierError(t *testing.T) {
	clf := new(MockClassifier)
	hist := new(MockHistoryRepository)
	clf.On("Classify", mock.Anything, mock.Anything).Return(classifier.Prediction{}, classifier.ErrFeatureCount)

	_, err := NewPredictionService(clf, hist).Predict(context.Background(), &model.User{ID: uuid.New()}, sampleFeatures())
	assert.ErrorIs(t, err, classifier.ErrFeatureCount)
	hist.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestPredictionService_Predict_HistoryFailureFailsRequest(t *testing.T) {
	clf := new(MockClassifier)
	hist := new(MockHistoryRepository)
	dbErr := errors.New("disk full")
	clf.On("Classify", mock.Anything, mock.Anything).Return(classifier.Prediction{Label: "berat", Confidence: 0.9}, nil)
	hist.On("Create", mock.Anything, mock.Anything).Return(dbErr)

	pred, err := NewPredictionService(clf, hist).Predict(context.Background(), &model.User{ID: uuid.New()}, sampleFeatures())
	assert.ErrorIs(t, err, dbErr)
	assert.Empty(t, pred.Label)
}

func TestPredictionService_History_ScopedAndOrdered(t *testing.T) {
	db := testutil.OpenSQLite(t)
	users := repository.NewUserRepository(db)
	ctx := context.Background()

	alice := &model.User{Username: "alice", PasswordHash: "x"}
	bob := &model.User{Username: "bob", PasswordHash: "x"}
	require.NoError(t, users.Create(ctx, alice))
	require.NoError(t, users.Create(ctx, bob))

	labels := []string{"ringan", "sedang", "berat"}
	clf := new(MockClassifier)
	for _, l := range labels {
		clf.On("Classify", mock.Anything, mock.Anything).Return(classifier.Prediction{Label: l, Confidence: 0.5}, nil).Once()
	}
	clf.On("Classify", mock.Anything, mock.Anything).Return(classifier.Prediction{Label: "bob", Confidence: 0.5}, nil)

	svc := NewPredictionService(clf, repository.NewHistoryRepository(db))
	for range labels {
		_, err := svc.Predict(ctx, alice, sampleFeatures())
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}
	_, err := svc.Predict(ctx, bob, sampleFeatures())
	require.NoError(t, err)

	entries, err := svc.History(ctx, alice, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "berat", entries[0].PredictedClass)
	assert.Equal(t, "ringan", entries[2].PredictedClass)
	for _, e := range entries {
		assert.NotEqual(t, "bob", e.PredictedClass)
		var input map[string]any
		require.NoError(t, json.Unmarshal(e.Input, &input))
		assert.EqualValues(t, 16, input["umur"])
	}

	limited, err := svc.History(ctx, alice, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	bobs, err := svc.History(ctx, bob, 0)
	require.NoError(t, err)
	require.Len(t, bobs, 1)
	assert.Equal(t, "bob", bobs[0].PredictedClass)
}
