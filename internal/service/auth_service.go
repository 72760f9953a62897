package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"sadar/internal/auth"
	apperrors "sadar/internal/errors"
	"sadar/internal/model"
	"sadar/internal/repository"
)

// maxPasswordBytes is bcrypt's input limit.
const maxPasswordBytes = 72

// RegisterInput carries a new account's credentials and optional profile.
type RegisterInput struct {
	Username string
	Password string
	Name     *string
	Email    *string
	Address  *string
}

// AuthService handles registration, login and password changes.
type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*model.User, error)
	Login(ctx context.Context, username, password string) (accessToken string, err error)
	ChangePassword(ctx context.Context, user *model.User, currentPassword, newPassword string) error
}

type authService struct {
	users             repository.UserRepository
	hasher            *auth.PasswordHasher
	tokens            *auth.TokenManager
	minPasswordLength int
	now               func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates a new authentication service.
func NewAuthService(users repository.UserRepository, hasher *auth.PasswordHasher, tokens *auth.TokenManager, minPasswordLength int) AuthService {
	if minPasswordLength < 1 {
		minPasswordLength = 1
	}
	return &authService{
		users:             users,
		hasher:            hasher,
		tokens:            tokens,
		minPasswordLength: minPasswordLength,
		now:               time.Now,
	}
}

// Register creates a user with a hashed password.
func (s *authService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	if in.Username == "" {
		return nil, apperrors.NewValidationError("username", "field is required")
	}
	if err := s.checkPolicy(in.Password); err != nil {
		return nil, err
	}

	// Hash before opening the transaction so the row lock window stays short.
	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Username:     in.Username,
		PasswordHash: hash,
		Name:         in.Name,
		Email:        in.Email,
		Address:      in.Address,
	}
	err = s.users.WithTransaction(ctx, func(ctx context.Context, repo repository.UserRepository) error {
		_, err := repo.FindByUsername(ctx, in.Username)
		switch {
		case err == nil:
			return apperrors.ErrUsernameTaken
		case !errors.Is(err, apperrors.ErrUserNotFound):
			return fmt.Errorf("check username: %w", err)
		}
		// the unique index still decides if another registration commits first
		return repo.Create(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Login verifies credentials and issues an access token.
// Unknown usernames and wrong passwords are indistinguishable to the caller.
func (s *authService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if errors.Is(err, apperrors.ErrUserNotFound) {
		// burn comparable time so response latency does not reveal which usernames exist
		_, _ = s.hasher.Verify(password, s.dummy())
		return "", apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("find user: %w", err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperrors.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.Username, s.now())
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

// ChangePassword replaces the user's password after checking the current one.
// The row is re-read under lock; the cached user never carries the hash.
func (s *authService) ChangePassword(ctx context.Context, user *model.User, currentPassword, newPassword string) error {
	return s.users.WithTransaction(ctx, func(ctx context.Context, repo repository.UserRepository) error {
		fresh, err := repo.FindByUsernameForUpdate(ctx, user.Username)
		if err != nil {
			return err
		}

		ok, err := s.hasher.Verify(currentPassword, fresh.PasswordHash)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.ErrCurrentPasswordWrong
		}

		if err := s.checkPolicy(newPassword); err != nil {
			return err
		}
		hash, err := s.hash(newPassword)
		if err != nil {
			return err
		}
		return repo.UpdatePasswordHash(ctx, fresh.ID, hash)
	})
}

// checkPolicy counts characters for the minimum and bytes for bcrypt's input limit.
func (s *authService) checkPolicy(password string) error {
	if utf8.RuneCountInString(password) < s.minPasswordLength {
		return fmt.Errorf("%w: minimum %d characters", apperrors.ErrWeakPassword, s.minPasswordLength)
	}
	if len(password) > maxPasswordBytes {
		return fmt.Errorf("%w: maximum %d bytes", apperrors.ErrWeakPassword, maxPasswordBytes)
	}
	return nil
}

func (s *authService) hash(password string) (string, error) {
	hash, err := s.hasher.Hash(password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return "", fmt.Errorf("%w: maximum %d bytes", apperrors.ErrWeakPassword, maxPasswordBytes)
	}
	if err != nil {
		return "", err
	}
	return hash, nil
}

func (s *authService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("sadar-dummy-password")
	})
	return s.dummyHash
}
