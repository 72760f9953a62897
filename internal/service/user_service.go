package service

import (
	"context"
	"encoding/json"
	"time"

	"sadar/internal/cache"
	"sadar/internal/model"
	"sadar/internal/repository"
)

const userCacheTTL = 5 * time.Minute

// ProfileInput replaces every optional profile field; nil clears a field.
type ProfileInput struct {
	Name    *string
	Email   *string
	Address *string
}

// UserService exposes profile operations and the cached user lookup used by the auth gate.
type UserService interface {
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	GetProfile(ctx context.Context, user *model.User) (model.Profile, error)
	UpdateProfile(ctx context.Context, user *model.User, in ProfileInput) (model.Profile, error)
}

type userService struct {
	repo  repository.UserRepository
	cache cache.Store
}

// NewUserService builds a UserService with repository and cache.
func NewUserService(repo repository.UserRepository, cache cache.Store) UserService {
	return &userService{repo: repo, cache: cache}
}

func (s *userService) cacheKey(username string) string {
	return "user:" + username
}

// FindByUsername reads through the cache. The cached copy never carries the password hash.
func (s *userService) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	if data, _ := s.cache.Get(ctx, s.cacheKey(username)); data != nil {
		var cached model.User
		if err := json.Unmarshal(data, &cached); err == nil && cached.Username == username {
			return &cached, nil
		}
	}

	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(user); err == nil {
		_ = s.cache.Set(ctx, s.cacheKey(username), payload, userCacheTTL)
	}
	return user, nil
}

func (s *userService) GetProfile(_ context.Context, user *model.User) (model.Profile, error) {
	return user.Profile(), nil
}

func (s *userService) UpdateProfile(ctx context.Context, user *model.User, in ProfileInput) (model.Profile, error) {
	key := s.cacheKey(user.Username)
	_ = s.cache.Delete(ctx, key)
	if err := s.repo.UpdateProfile(ctx, user.ID, in.Name, in.Email, in.Address); err != nil {
		return model.Profile{}, err
	}

	updated := *user
	updated.Name, updated.Email, updated.Address = in.Name, in.Email, in.Address
	// overwrite any entry a concurrent reader filled from the old row
	if payload, err := json.Marshal(&updated); err == nil {
		_ = s.cache.Set(ctx, key, payload, userCacheTTL)
	} else {
		_ = s.cache.Delete(ctx, key)
	}
	return updated.Profile(), nil
}
