package router

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	"sadar/internal/auth"
	"sadar/internal/config"
	"sadar/internal/handler"
	"sadar/internal/logutil"
)

// Register wires routes and middleware.
func Register(
	e *echo.Echo,
	cfg *config.Config,
	logger zerolog.Logger,
	gate *auth.Gate,
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	predictionHandler *handler.PredictionHandler,
) {
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.CORS.AllowOrigins,
		AllowCredentials: false,
	}))

	e.Validator = NewValidator()

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// Public routes
	e.POST("/register", authHandler.Register)
	e.POST("/login", authHandler.Login)

	// Secured routes; identity comes only from the gate
	secured := e.Group("", AuthMiddleware(gate))

	secured.GET("/me", userHandler.Me)
	secured.PUT("/me", userHandler.UpdateMe)
	secured.POST("/change-password", userHandler.ChangePassword)

	secured.POST("/predict", predictionHandler.Predict)
	secured.GET("/history", predictionHandler.History)
}

// AuthMiddleware resolves the Authorization header through gate and stores the user
// under handler.UserContextKey. Every auth failure gets the same 401 body; the precise
// reason is only logged.
func AuthMiddleware(gate *auth.Gate) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		// no prefix: the gate checks the "Bearer " scheme itself
		TokenLookup: "header:" + echo.HeaderAuthorization,
		ContextKey:  handler.UserContextKey,
		ParseTokenFunc: func(c echo.Context, header string) (interface{}, error) {
			user, err := gate.Authenticate(c.Request().Context(), header)
			if err != nil {
				return nil, err
			}
			return user, nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			logger := logutil.GetOrDefault(c.Request().Context())
			if errors.Is(err, auth.ErrSubjectLookup) {
				logger.Error().Err(err).Msg("auth gate lookup failed")
				return handler.InternalError()
			}
			logger.Warn().Err(err).Msg("request unauthorized")
			return handler.UnauthorizedError()
		},
	})
}

// requestLogger logs one line per request and puts a request-scoped logger in the context.
func requestLogger(base zerolog.Logger) echo.MiddlewareFunc {
	logValues := middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger := logutil.GetOrDefault(c.Request().Context())
			ev := logger.Info()
			if v.Status >= http.StatusInternalServerError {
				ev = logger.Error()
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	})
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		logged := logValues(next)
		return func(c echo.Context) error {
			rid := c.Response().Header().Get(echo.HeaderXRequestID)
			l := base.With().Str("request_id", rid).Logger()
			req := c.Request()
			c.SetRequest(req.WithContext(logutil.WithLogger(req.Context(), l)))
			return logged(c)
		}
	}
}

// CustomValidator wraps validator for Echo.
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator reports failing fields by their JSON names.
func NewValidator() *CustomValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &CustomValidator{validator: v}
}

// Validate implements echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}
