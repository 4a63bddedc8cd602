package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"token_keeper/internal/domain/models"
	jwtlib "token_keeper/internal/lib/jwt"
	"token_keeper/internal/lib/logger/sl"
	tokenservice "token_keeper/internal/services/token_service"
	userservice "token_keeper/internal/services/user_service"
	"token_keeper/internal/transport/http/dto"
	"token_keeper/internal/transport/http/dto/request"
	"token_keeper/internal/transport/http/dto/response"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type UserService interface {
	RegisterNewUser(ctx context.Context, email, password, firstname, lastname string) (models.User, *models.TokenPair, error)
	Login(ctx context.Context, email, password string) (models.User, *models.TokenPair, error)
	UserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
}

type TokenService interface {
	Rotate(ctx context.Context, presented string) (*models.TokenPair, error)
	RevokeOne(ctx context.Context, presented string) error
}

type Routers struct {
	log          *slog.Logger
	UserService  UserService
	TokenService TokenService
}

func NewRouter(log *slog.Logger, userService UserService, tokenService TokenService) *Routers {
	return &Routers{
		log:          log,
		UserService:  userService,
		TokenService: tokenService,
	}
}

// Register creates an account and returns the sanitized user plus the first
// token pair.
func (r *Routers) Register(c echo.Context) error {
	const op = "http.routers.Register"

	log := r.log.With(slog.String("op", op))

	var req request.RegisterRequest

	if err := c.Bind(&req); err != nil {
		log.Error("failed to bind request", sl.Err(err))
		return c.JSON(http.StatusBadRequest, response.ErrInvalidRequestFormat)
	}

	if err := c.Validate(req); err != nil {
		log.Warn("validation failed", sl.Err(err))
		return c.JSON(http.StatusBadRequest, response.ErrorResponseWithDetails("invalid_request", err.Error()))
	}

	user, pair, err := r.UserService.RegisterNewUser(c.Request().Context(), req.Email, req.Password, req.Firstname, req.Lastname)
	if err != nil {
		if errors.Is(err, userservice.ErrUserExist) {
			log.Warn("user already exists", slog.String("email", req.Email))
			return c.JSON(http.StatusConflict, response.ErrUserAlreadyExists)
		}

		log.Error("registration failed", sl.Err(err))
		return c.JSON(http.StatusInternalServerError, response.ErrorResponseWithDetails("internal_error", "Internal server error"))
	}

	return c.JSON(http.StatusCreated, response.SuccessResponse(dto.NewAuthPayload(user, pair)))
}

// Login authenticates by email and password. Unknown users and wrong
// passwords produce the same generic 401.
func (r *Routers) Login(c echo.Context) error {
	const op = "http.routers.Login"

	log := r.log.With(slog.String("op", op))

	var req request.LoginRequest

	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidRequestFormat)
	}

	if err := c.Validate(req); err != nil {
		log.Warn("invalid format request", sl.Err(err))
		return c.JSON(http.StatusBadRequest, response.ErrInvalidRequestFormat)
	}

	user, pair, err := r.UserService.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, userservice.ErrInvalidCredentials) {
			return c.JSON(http.StatusUnauthorized, response.ErrAuthenticationFailed)
		}

		log.Error("login failed", sl.Err(err))
		return c.JSON(http.StatusServiceUnavailable, response.ErrServiceUnavailable)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(dto.NewAuthPayload(user, pair)))
}

// Refresh rotates a refresh token for a new pair. All policy failures
// (unknown, revoked, expired) collapse into one generic client error;
// storage faults surface as 503 so clients can tell "bad token" from
// "we failed you".
func (r *Routers) Refresh(c echo.Context) error {
	const op = "http.routers.Refresh"

	log := r.log.With(slog.String("op", op))

	var req request.RefreshRequest

	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidRequestFormat)
	}

	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidRequestFormat)
	}

	pair, err := r.TokenService.Rotate(c.Request().Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, tokenservice.ErrRefreshNotFound),
			errors.Is(err, tokenservice.ErrRefreshRevoked),
			errors.Is(err, tokenservice.ErrRefreshExpired):
			log.Warn("refresh rejected", sl.Err(err))
			return c.JSON(http.StatusUnauthorized, response.ErrInvalidRefreshToken)
		default:
			log.Error("refresh failed", sl.Err(err))
			return c.JSON(http.StatusServiceUnavailable, response.ErrServiceUnavailable)
		}
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(dto.TokenResponse{
		Type:         pair.TokenType,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}))
}

// Logout revokes one refresh token. Logging out twice with the same token
// succeeds both times.
func (r *Routers) Logout(c echo.Context) error {
	const op = "http.routers.Logout"

	log := r.log.With(slog.String("op", op))

	var req request.LogoutRequest

	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidRequestFormat)
	}

	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidRequestFormat)
	}

	if err := r.TokenService.RevokeOne(c.Request().Context(), req.RefreshToken); err != nil {
		if errors.Is(err, tokenservice.ErrRefreshNotFound) {
			return c.JSON(http.StatusBadRequest, response.ErrInvalidRefreshToken)
		}

		log.Error("logout failed", sl.Err(err))
		return c.JSON(http.StatusServiceUnavailable, response.ErrServiceUnavailable)
	}

	return c.NoContent(http.StatusNoContent)
}

// Me returns the profile of the access token's subject.
func (r *Routers) Me(c echo.Context) error {
	const op = "http.routers.Me"

	log := r.log.With(slog.String("op", op))

	claims, ok := c.Get("user").(jwtlib.Claims)
	if !ok {
		return c.JSON(http.StatusUnauthorized, response.ErrAuthenticationFailed)
	}

	user, err := r.UserService.UserByID(c.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, userservice.ErrUserNotFound) {
			return c.JSON(http.StatusUnauthorized, response.ErrAuthenticationFailed)
		}

		log.Error("failed to load user", sl.Err(err))
		return c.JSON(http.StatusServiceUnavailable, response.ErrServiceUnavailable)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(dto.NewUserResponse(user)))
}
