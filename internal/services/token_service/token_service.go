// Package services implements the refresh token lifecycle: issuing
// access/refresh pairs, single-use rotation with reuse detection, and
// explicit revocation.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"token_keeper/internal/domain/models"
	jwtlib "token_keeper/internal/lib/jwt"
	"token_keeper/internal/lib/logger/sl"
	"token_keeper/internal/metrics"
	"token_keeper/internal/repository"
	"token_keeper/internal/storage"

	"github.com/google/uuid"
)

var (
	ErrRefreshNotFound = errors.New("refresh token not found")
	ErrRefreshRevoked  = errors.New("refresh token revoked")
	ErrRefreshExpired  = errors.New("refresh token expired")
)

// TokenService orchestrates the refresh token state machine. A record is
// active until it is revoked (rotation, logout, or a lost rotation race) or
// its expiry passes; both end states are terminal.
type TokenService struct {
	log        *slog.Logger
	repo       repository.TokenRepository
	codec      *jwtlib.Codec
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenService(log *slog.Logger, repo repository.TokenRepository, codec *jwtlib.Codec, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		log:        log,
		repo:       repo,
		codec:      codec,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// NewTokenServiceWithClock is used by tests to control time.
func NewTokenServiceWithClock(log *slog.Logger, repo repository.TokenRepository, codec *jwtlib.Codec, accessTTL, refreshTTL time.Duration, now func() time.Time) *TokenService {
	s := NewTokenService(log, repo, codec, accessTTL, refreshTTL)
	s.now = now
	return s
}

// IssuePair mints an access token and persists a fresh refresh token for the
// user. Previously issued refresh tokens stay valid: a user may hold one per
// device.
func (s *TokenService) IssuePair(ctx context.Context, userID uuid.UUID) (*models.TokenPair, error) {
	const op = "token_service.IssuePair"

	access, err := s.codec.Mint(userID, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	refresh := s.newRefreshToken(userID)
	if err := s.repo.CreateRefreshToken(ctx, refresh); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	metrics.TokenPairsIssued.Inc()

	return &models.TokenPair{
		TokenType:    models.TokenType,
		AccessToken:  access,
		RefreshToken: refresh.ID.String(),
	}, nil
}

// Rotate exchanges a presented refresh token for a new pair and revokes the
// presented one. The revoke-old/create-new step is a single atomic store
// operation, so of two concurrent rotations of the same token exactly one
// wins and the other observes ErrRefreshRevoked (or ErrRefreshNotFound).
func (s *TokenService) Rotate(ctx context.Context, presented string) (*models.TokenPair, error) {
	const op = "token_service.Rotate"

	log := s.log.With(slog.String("op", op))

	id, err := uuid.Parse(presented)
	if err != nil {
		metrics.TokenRotations.WithLabelValues("not_found").Inc()
		return nil, fmt.Errorf("%s: %w", op, ErrRefreshNotFound)
	}

	token, err := s.repo.RefreshTokenByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			metrics.TokenRotations.WithLabelValues("not_found").Inc()
			return nil, fmt.Errorf("%s: %w", op, ErrRefreshNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if token.Revoked {
		// Reuse detection: a revoked token presented again means a stale
		// client or a replayed credential. Other sessions of the user are
		// deliberately left untouched.
		log.Warn("revoked refresh token presented again",
			slog.String("token_id", id.String()),
			slog.String("user_id", token.UserID.String()),
		)
		metrics.TokenReuseDetected.Inc()
		metrics.TokenRotations.WithLabelValues("revoked").Inc()
		return nil, fmt.Errorf("%s: %w", op, ErrRefreshRevoked)
	}

	if token.Expired(s.now()) {
		metrics.TokenRotations.WithLabelValues("expired").Inc()
		return nil, fmt.Errorf("%s: %w", op, ErrRefreshExpired)
	}

	access, err := s.codec.Mint(token.UserID, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	next := s.newRefreshToken(token.UserID)
	if err := s.repo.Rotate(ctx, id, next); err != nil {
		switch {
		case errors.Is(err, storage.ErrTokenRevoked):
			// Lost the race against a concurrent rotation of the same token.
			metrics.TokenRotations.WithLabelValues("revoked").Inc()
			return nil, fmt.Errorf("%s: %w", op, ErrRefreshRevoked)
		case errors.Is(err, storage.ErrTokenNotFound):
			metrics.TokenRotations.WithLabelValues("not_found").Inc()
			return nil, fmt.Errorf("%s: %w", op, ErrRefreshNotFound)
		default:
			log.Error("rotation failed", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	metrics.TokenRotations.WithLabelValues("success").Inc()
	metrics.TokenPairsIssued.Inc()

	return &models.TokenPair{
		TokenType:    models.TokenType,
		AccessToken:  access,
		RefreshToken: next.ID.String(),
	}, nil
}

// RevokeOne terminates a single session. Revoking a token that is already
// revoked is a no-op, not an error.
func (s *TokenService) RevokeOne(ctx context.Context, presented string) error {
	const op = "token_service.RevokeOne"

	id, err := uuid.Parse(presented)
	if err != nil {
		return fmt.Errorf("%s: %w", op, ErrRefreshNotFound)
	}

	if err := s.repo.RevokeRefreshToken(ctx, id); err != nil {
		switch {
		case errors.Is(err, storage.ErrTokenRevoked):
			return nil
		case errors.Is(err, storage.ErrTokenNotFound):
			return fmt.Errorf("%s: %w", op, ErrRefreshNotFound)
		default:
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	return nil
}

func (s *TokenService) newRefreshToken(userID uuid.UUID) models.RefreshToken {
	now := s.now().UTC()

	return models.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.refreshTTL),
		Revoked:   false,
	}
}
