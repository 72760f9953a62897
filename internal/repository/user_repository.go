package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "sadar/internal/errors"
	"sadar/internal/model"
)

// UserRepository is the credential store.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	FindByUsernameForUpdate(ctx context.Context, username string) (*model.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, name, email, address *string) error
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
	// WithTransaction runs fn with a repository bound to one transaction.
	WithTransaction(ctx context.Context, fn func(ctx context.Context, repo UserRepository) error) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository builds a GORM-backed repository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create inserts a user. A unique index violation is reported as ErrUsernameTaken.
func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.ErrUsernameTaken
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// FindByUsername finds a user by exact username.
func (r *userRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.findByUsername(r.db.WithContext(ctx), username)
}

// FindByUsernameForUpdate finds a user and locks the row until the transaction ends.
func (r *userRepository) FindByUsernameForUpdate(ctx context.Context, username string) (*model.User, error) {
	return r.findByUsername(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), username)
}

func (r *userRepository) findByUsername(db *gorm.DB, username string) (*model.User, error) {
	var user model.User
	if err := db.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

// UpdateProfile replaces the optional profile fields; nil clears a field.
func (r *userRepository) UpdateProfile(ctx context.Context, id uuid.UUID, name, email, address *string) error {
	res := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"name":    name,
			"email":   email,
			"address": address,
		})
	if res.Error != nil {
		return fmt.Errorf("update profile: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

// UpdatePasswordHash replaces the stored hash.
func (r *userRepository) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	res := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", id).
		Update("password_hash", hash)
	if res.Error != nil {
		return fmt.Errorf("update password: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

// WithTransaction executes a function within a database transaction.
func (r *userRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context, repo UserRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := &userRepository{db: tx}
		return fn(ctx, txRepo)
	})
}
