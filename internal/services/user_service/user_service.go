package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"token_keeper/internal/domain/models"
	"token_keeper/internal/lib/hasher"
	"token_keeper/internal/lib/logger/sl"
	"token_keeper/internal/repository"
	"token_keeper/internal/storage"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExist          = errors.New("user already exist")
	ErrUserNotFound       = errors.New("user not found")
)

const (
	userCacheTTL     = 5 * time.Minute
	userCacheCleanup = 10 * time.Minute
)

// TokenIssuer is the slice of the token service the login path needs.
type TokenIssuer interface {
	IssuePair(ctx context.Context, userID uuid.UUID) (*models.TokenPair, error)
}

type UserService struct {
	log    *slog.Logger
	repo   repository.UserRepository
	hasher hasher.PasswordHasher
	tokens TokenIssuer
	cache  *gocache.Cache
}

func NewUserService(log *slog.Logger, repo repository.UserRepository, h hasher.PasswordHasher, tokens TokenIssuer) *UserService {
	return &UserService{
		log:    log,
		repo:   repo,
		hasher: h,
		tokens: tokens,
		cache:  gocache.New(userCacheTTL, userCacheCleanup),
	}
}

// RegisterNewUser creates an account and issues the first token pair.
func (s *UserService) RegisterNewUser(ctx context.Context, email, password, firstname, lastname string) (models.User, *models.TokenPair, error) {
	const op = "user_service.RegisterNewUser"

	log := s.log.With(
		slog.String("op", op),
		slog.String("email", email),
	)

	passHash, err := s.hasher.Hash(password)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return models.User{}, nil, fmt.Errorf("%s: %w", op, err)
	}

	user := models.User{
		Email:     email,
		Password:  passHash,
		FirstName: firstname,
		LastName:  lastname,
	}

	id, err := s.repo.SaveUser(ctx, user)
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			log.Warn("user already exists")
			return models.User{}, nil, fmt.Errorf("%s: %w", op, ErrUserExist)
		}

		log.Error("failed to save user", sl.Err(err))
		return models.User{}, nil, fmt.Errorf("%s: %w", op, err)
	}

	saved, err := s.repo.UserByID(ctx, id)
	if err != nil {
		return models.User{}, nil, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := s.tokens.IssuePair(ctx, saved.ID)
	if err != nil {
		return models.User{}, nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.String("user_id", saved.ID.String()))

	return saved, pair, nil
}

// Login verifies credentials and issues a fresh token pair. An unknown email
// and a wrong password are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, email, password string) (models.User, *models.TokenPair, error) {
	const op = "user_service.Login"

	log := s.log.With(
		slog.String("op", op),
		slog.String("email", email),
	)

	user, err := s.repo.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found")
			return models.User{}, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		log.Error("failed to get user", sl.Err(err))
		return models.User{}, nil, fmt.Errorf("%s: %w", op, err)
	}

	if !s.ValidateCredentials(user, password) {
		log.Info("invalid credentials")
		return models.User{}, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	pair, err := s.tokens.IssuePair(ctx, user.ID)
	if err != nil {
		log.Error("failed to issue token pair", sl.Err(err))
		return models.User{}, nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in")

	return user, pair, nil
}

// ValidateCredentials compares a presented password against the stored hash.
func (s *UserService) ValidateCredentials(user models.User, password string) bool {
	return s.hasher.Compare(user.Password, password)
}

// UserByID serves authenticated profile reads, with a short-lived cache in
// front of the repository.
func (s *UserService) UserByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	const op = "user_service.UserByID"

	if cached, ok := s.cache.Get(userID.String()); ok {
		return cached.(models.User), nil
	}

	user, err := s.repo.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return models.User{}, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	s.cache.Set(userID.String(), user, gocache.DefaultExpiration)

	return user, nil
}
