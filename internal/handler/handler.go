package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "sadar/internal/errors"
	"sadar/internal/logutil"
	"sadar/internal/model"
)

// UserContextKey is where the auth middleware stores the authenticated *model.User.
const UserContextKey = "user"

// MessageResponse is returned by endpoints that only acknowledge success.
type MessageResponse struct {
	Message string `json:"message"`
}

// currentUser returns the user resolved by the auth middleware.
func currentUser(c echo.Context) (*model.User, error) {
	user, ok := c.Get(UserContextKey).(*model.User)
	if !ok || user == nil {
		return nil, apperrors.ErrUnauthorized
	}
	return user, nil
}

// bindAndValidate decodes the request body into req and runs struct validation.
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return apperrors.NewValidationError("", "invalid request body")
	}
	if err := c.Validate(req); err != nil {
		return apperrors.FromValidator(err)
	}
	return nil
}

// respondError maps err to the public error body. Internal errors are logged, never returned.
func respondError(c echo.Context, err error) error {
	herr := apperrors.MapErrorToHTTP(err)
	logger := logutil.GetOrDefault(c.Request().Context())
	if herr.StatusCode >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	} else {
		logger.Debug().Err(err).Str("code", herr.Code).Msg("request rejected")
	}
	return echo.NewHTTPError(herr.StatusCode, herr.ToErrorResponse())
}

// UnauthorizedError is the single response for every authentication failure.
func UnauthorizedError() *echo.HTTPError {
	return echo.NewHTTPError(http.StatusUnauthorized, apperrors.MapErrorToHTTP(apperrors.ErrUnauthorized).ToErrorResponse())
}

// InternalError is the opaque response for failures the client cannot act on.
func InternalError() *echo.HTTPError {
	return echo.NewHTTPError(http.StatusInternalServerError, apperrors.ErrorResponse{
		Detail: "internal server error",
		Code:   "INTERNAL_ERROR",
	})
}
