package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"sadar/docs" // swagger docs
	"sadar/internal/artifact"
	"sadar/internal/auth"
	"sadar/internal/cache"
	"sadar/internal/classifier"
	"sadar/internal/config"
	"sadar/internal/db"
	"sadar/internal/handler"
	"sadar/internal/logutil"
	"sadar/internal/repository"
	"sadar/internal/router"
	"sadar/internal/service"
)

const shutdownTimeout = 10 * time.Second

// @title SADAR API
// @version 1.0
// @description Authenticated questionnaire risk screening with per-user history.
// @host localhost:8080
// @BasePath /
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the access token.
func main() {
	app := &cli.App{
		Name:   "sadar",
		Usage:  "Risk screening API",
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Migrate the schema and start the HTTP API",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "Create or update the database schema and exit",
				Action: migrate,
			},
		},
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Error().Err(err).Msg("Application failed")
		os.Exit(1)
	}
}

func setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, log.Logger, err
	}
	logger := logutil.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	log.Logger = logger
	return cfg, logger, nil
}

func openDB(cfg *config.Config, logger zerolog.Logger) (*gorm.DB, error) {
	gormDB, err := db.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.ResetDB {
		logger.Warn().Msg("RESET_DB=true detected, dropping all tables")
		if err := db.Reset(gormDB); err != nil {
			return nil, err
		}
	}
	if err := db.Migrate(gormDB); err != nil {
		return nil, err
	}
	return gormDB, nil
}

func migrate(c *cli.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	if _, err := openDB(cfg, logger); err != nil {
		return err
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("schema up to date")
	return nil
}

func loadClassifier(ctx context.Context, cfg *config.Config) (*classifier.Forest, error) {
	opener, err := artifact.NewOpener(cfg.S3)
	if err != nil {
		return nil, err
	}
	model, err := opener.Open(ctx, cfg.Model.Path)
	if err != nil {
		return nil, err
	}
	defer model.Close()
	labels, err := opener.Open(ctx, cfg.Model.LabelsPath)
	if err != nil {
		return nil, err
	}
	defer labels.Close()
	return classifier.LoadForest(model, labels)
}

func newCache(cfg *config.Config, logger zerolog.Logger) (cache.Store, func() error, error) {
	if cfg.Redis.Addr != "" {
		c := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("using redis profile cache")
		return c, c.Close, nil
	}
	c, err := cache.NewMemory(5 * time.Minute)
	if err != nil {
		return nil, nil, fmt.Errorf("create memory cache: %w", err)
	}
	logger.Info().Msg("using in-process profile cache")
	return c, c.Close, nil
}

func serve(c *cli.Context) error {
	ctx := c.Context
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	gormDB, err := openDB(cfg, logger)
	if err != nil {
		return err
	}

	forest, err := loadClassifier(ctx, cfg)
	if err != nil {
		return fmt.Errorf("load classifier: %w", err)
	}
	logger.Info().Str("version", forest.Version()).Msg("classifier loaded")

	store, closeCache, err := newCache(cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	// Initialize repositories
	userRepo := repository.NewUserRepository(gormDB)
	historyRepo := repository.NewHistoryRepository(gormDB)

	// Initialize auth components
	hasher := auth.NewPasswordHasher(cfg.Auth.BcryptCost)
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	// Initialize services
	authService := service.NewAuthService(userRepo, hasher, tokens, cfg.Auth.MinPasswordLength)
	userService := service.NewUserService(userRepo, store)
	predictionService := service.NewPredictionService(forest, historyRepo)
	gate := auth.NewGate(tokens, userService, nil)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService, authService)
	predictionHandler := handler.NewPredictionHandler(predictionService)

	if cfg.SwaggerHost != "" {
		docs.SwaggerInfo.Host = cfg.SwaggerHost
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	router.Register(e, cfg, logger, gate, authHandler, userHandler, predictionHandler)

	addr := ":" + cfg.ServerPort
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("listening")
		errCh <- e.Start(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server start: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
