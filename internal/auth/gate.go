package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	apperrors "sadar/internal/errors"
	"sadar/internal/model"
)

var (
	// ErrMissingCredential is returned when the Authorization header is absent or not "Bearer <token>".
	ErrMissingCredential = fmt.Errorf("%w: missing or malformed credential", apperrors.ErrUnauthorized)
	// ErrInvalidToken wraps any token verification failure.
	ErrInvalidToken = fmt.Errorf("%w: invalid token", apperrors.ErrUnauthorized)
	// ErrUnknownSubject is returned when a valid token names a user that does not exist.
	ErrUnknownSubject = fmt.Errorf("%w: unknown subject", apperrors.ErrUnauthorized)
	// ErrSubjectLookup wraps storage failures while resolving the subject. It is not an auth failure.
	ErrSubjectLookup = errors.New("resolve token subject")
)

var bearerTokenRE = regexp.MustCompile(`^Bearer (\S+)$`)

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(token string, now time.Time) (Claims, error)
}

// UserResolver looks users up by username; a missing user is apperrors.ErrUserNotFound.
type UserResolver interface {
	FindByUsername(ctx context.Context, username string) (*model.User, error)
}

// Gate turns an Authorization header into the user it belongs to.
type Gate struct {
	tokens TokenVerifier
	users  UserResolver
	now    func() time.Time
}

// NewGate creates a gate. A nil clock selects time.Now.
func NewGate(tokens TokenVerifier, users UserResolver, now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	return &Gate{tokens: tokens, users: users, now: now}
}

// Authenticate resolves header to a user. An absent header is passed as "".
func (g *Gate) Authenticate(ctx context.Context, header string) (*model.User, error) {
	groups := bearerTokenRE.FindStringSubmatch(header)
	if len(groups) != 2 {
		return nil, ErrMissingCredential
	}

	claims, err := g.tokens.Verify(groups[1], g.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	user, err := g.users.FindByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return nil, ErrUnknownSubject
		}
		return nil, fmt.Errorf("%w: %w", ErrSubjectLookup, err)
	}
	return user, nil
}
