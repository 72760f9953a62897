package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"sadar/internal/auth"
	"sadar/internal/config"
	"sadar/internal/db"
	apperrors "sadar/internal/errors"
	"sadar/internal/logutil"
	"sadar/internal/repository"
	"sadar/internal/service"
)

// SeedUser is one entry of the seed file.
type SeedUser struct {
	Username string  `json:"username"`
	Password string  `json:"password"`
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Address  *string `json:"address"`
}

func main() {
	source := "seed_users.json"
	app := &cli.App{
		Name:  "sadar-seed",
		Usage: "Register users from a JSON file or URL",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "from",
				Aliases:     []string{"f"},
				Usage:       "Path or http(s) URL of a JSON array of users",
				Value:       source,
				Destination: &source,
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := logutil.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)

			gormDB, err := db.Open(cfg.Database.Driver, cfg.Database.DSN)
			if err != nil {
				return err
			}
			if err := db.Migrate(gormDB); err != nil {
				return err
			}
			logger.Info().Msg("database migrations completed")

			users, err := loadUsers(c.Context, source)
			if err != nil {
				return err
			}
			logger.Info().Int("count", len(users)).Str("from", source).Msg("loaded seed users")

			authService := service.NewAuthService(
				repository.NewUserRepository(gormDB),
				auth.NewPasswordHasher(cfg.Auth.BcryptCost),
				auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
				cfg.Auth.MinPasswordLength,
			)
			created, skipped, err := seedUsers(c.Context, logger, authService, users)
			if err != nil {
				return err
			}
			logger.Info().Int("created", created).Int("skipped", skipped).Msg("seed completed")
			return nil
		},
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Error().Err(err).Msg("Seed failed")
		os.Exit(1)
	}
}

// loadUsers reads the seed list from a local file or an http(s) URL.
func loadUsers(ctx context.Context, source string) ([]SeedUser, error) {
	var r io.ReadCloser
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch seed users: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("fetch seed users: status code %d", resp.StatusCode)
		}
		r = resp.Body
	} else {
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("open seed users: %w", err)
		}
		r = f
	}
	defer r.Close()

	var users []SeedUser
	if err := json.NewDecoder(r).Decode(&users); err != nil {
		return nil, fmt.Errorf("parse seed users: %w", err)
	}
	return users, nil
}

// seedUsers registers each user; existing usernames and policy violations are skipped.
func seedUsers(ctx context.Context, logger zerolog.Logger, svc service.AuthService, users []SeedUser) (created, skipped int, err error) {
	for _, u := range users {
		_, err := svc.Register(ctx, service.RegisterInput{
			Username: u.Username,
			Password: u.Password,
			Name:     u.Name,
			Email:    u.Email,
			Address:  u.Address,
		})
		switch {
		case err == nil:
			created++
		case errors.Is(err, apperrors.ErrUsernameTaken):
			logger.Debug().Str("username", u.Username).Msg("already registered")
			skipped++
		case apperrors.KindOf(err) == apperrors.KindValidation:
			logger.Warn().Err(err).Str("username", u.Username).Msg("skipping invalid seed user")
			skipped++
		default:
			return created, skipped, fmt.Errorf("register %s: %w", u.Username, err)
		}
	}
	return created, skipped, nil
}
