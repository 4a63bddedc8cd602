package repository

import (
	"context"

	"token_keeper/internal/domain/models"

	"github.com/google/uuid"
)

type UserRepository interface {
	SaveUser(ctx context.Context, user models.User) (uuid.UUID, error)
	UserByEmail(ctx context.Context, email string) (models.User, error)
	UserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
}

// TokenRepository persists refresh-token records. ByID performs no policy
// filtering: revoked and expired records come back as stored, the caller
// decides. Revoke is a compare-and-swap on the revoked flag, so exactly one
// caller can ever flip a given record; an already-revoked record reports
// storage.ErrTokenRevoked, an absent one storage.ErrTokenNotFound.
type TokenRepository interface {
	CreateRefreshToken(ctx context.Context, token models.RefreshToken) error
	RefreshTokenByID(ctx context.Context, id uuid.UUID) (models.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id uuid.UUID) error

	// Rotate atomically revokes old (same CAS semantics as
	// RevokeRefreshToken) and persists next. Either both happen or
	// neither does.
	Rotate(ctx context.Context, old uuid.UUID, next models.RefreshToken) error
}
