package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "sadar/internal/errors"
	"sadar/internal/model"
	"sadar/internal/repository"
	"sadar/internal/service"
)

// PredictionHandler serves classification requests and their history.
type PredictionHandler struct {
	predictionService service.PredictionService
}

// NewPredictionHandler creates a new prediction handler.
func NewPredictionHandler(predictionService service.PredictionService) *PredictionHandler {
	return &PredictionHandler{predictionService: predictionService}
}

// PredictResponse is the classification result.
type PredictResponse struct {
	PredictedClass string  `json:"predicted_class"`
	Confidence     float64 `json:"confidence"`
}

// Predict godoc
// @Summary Classify a questionnaire
// @Tags prediction
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.Features true "Questionnaire answers"
// @Success 200 {object} PredictResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /predict [post]
func (h *PredictionHandler) Predict(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	var features model.Features
	if err := bindAndValidate(c, &features); err != nil {
		return respondError(c, err)
	}

	pred, err := h.predictionService.Predict(c.Request().Context(), user, features)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, PredictResponse{
		PredictedClass: pred.Label,
		Confidence:     pred.Confidence,
	})
}

// History godoc
// @Summary List own classification history
// @Tags prediction
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum entries (1-100)"
// @Success 200 {array} service.HistoryEntry
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /history [get]
func (h *PredictionHandler) History(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return respondError(c, err)
	}

	limit := repository.MaxHistoryPage
	if err := echo.QueryParamsBinder(c).Int("limit", &limit).BindError(); err != nil {
		return respondError(c, apperrors.NewValidationError("limit", "must be an integer"))
	}
	if limit < 1 {
		return respondError(c, apperrors.NewValidationError("limit", "must be at least 1"))
	}

	entries, err := h.predictionService.History(c.Request().Context(), user, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, entries)
}
