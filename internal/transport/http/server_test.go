package http_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"token_keeper/internal/domain/models"
	"token_keeper/internal/lib/hasher"
	jwtlib "token_keeper/internal/lib/jwt"
	tokenservice "token_keeper/internal/services/token_service"
	userservice "token_keeper/internal/services/user_service"
	"token_keeper/internal/storage"
	httprouters "token_keeper/internal/transport/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memUserRepo struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]models.User
	byEmail map[string]uuid.UUID
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{
		byID:    make(map[uuid.UUID]models.User),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (r *memUserRepo) SaveUser(_ context.Context, user models.User) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[user.Email]; ok {
		return uuid.Nil, storage.ErrUserExists
	}
	user.ID = uuid.New()
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	r.byID[user.ID] = user
	r.byEmail[user.Email] = user.ID
	return user.ID, nil
}

func (r *memUserRepo) UserByEmail(_ context.Context, email string) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byEmail[email]
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}
	return r.byID[id], nil
}

func (r *memUserRepo) UserByID(_ context.Context, userID uuid.UUID) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.byID[userID]
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}
	return user, nil
}

type memTokenRepo struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]models.RefreshToken
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{tokens: make(map[uuid.UUID]models.RefreshToken)}
}

func (r *memTokenRepo) CreateRefreshToken(_ context.Context, token models.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token.ID] = token
	return nil
}

func (r *memTokenRepo) RefreshTokenByID(_ context.Context, id uuid.UUID) (models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[id]
	if !ok {
		return models.RefreshToken{}, storage.ErrTokenNotFound
	}
	return token, nil
}

func (r *memTokenRepo) RevokeRefreshToken(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revokeLocked(id)
}

func (r *memTokenRepo) Rotate(_ context.Context, old uuid.UUID, next models.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.revokeLocked(old); err != nil {
		return err
	}
	r.tokens[next.ID] = next
	return nil
}

func (r *memTokenRepo) revokeLocked(id uuid.UUID) error {
	token, ok := r.tokens[id]
	if !ok {
		return storage.ErrTokenNotFound
	}
	if token.Revoked {
		return storage.ErrTokenRevoked
	}
	token.Revoked = true
	r.tokens[id] = token
	return nil
}

type testValidator struct {
	validate *validator.Validate
}

func (v *testValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

func setupServer(t *testing.T) *echo.Echo {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	codec := jwtlib.NewCodec([]byte("test-secret"))

	tokens := tokenservice.NewTokenService(log, newMemTokenRepo(), codec, 5*time.Minute, 30*24*time.Hour)
	users := userservice.NewUserService(log, newMemUserRepo(), hasher.NewBcrypt(), tokens)

	routers := httprouters.NewRouter(log, users, tokens)

	e := echo.New()
	e.Validator = &testValidator{validate: validator.New()}

	auth := e.Group("/api/auth")
	auth.POST("/register", routers.Register)
	auth.POST("/login", routers.Login)
	auth.POST("/refresh", routers.Refresh)
	auth.POST("/logout", routers.Logout)

	me := auth.Group("/me")
	me.Use(echojwt.WithConfig(echojwt.Config{
		ParseTokenFunc: func(c echo.Context, token string) (interface{}, error) {
			return codec.Verify(token)
		},
	}))
	me.GET("", routers.Me)

	return e
}

func doJSON(e *echo.Echo, method, path, body, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

type authResponse struct {
	Status string `json:"status"`
	Data   struct {
		User struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"user"`
		Token struct {
			Type         string `json:"type"`
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		} `json:"token"`
	} `json:"data"`
}

type refreshResponse struct {
	Status string `json:"status"`
	Data   struct {
		Type         string `json:"type"`
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	} `json:"data"`
}

func register(t *testing.T, e *echo.Echo, email string) authResponse {
	t.Helper()

	rec := doJSON(e, http.MethodPost, "/api/auth/register",
		`{"email":"`+email+`","password":"secret12","firstname":"Ada","lastname":"Lovelace"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp authResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestRegister_ReturnsUserAndTokens(t *testing.T) {
	e := setupServer(t)

	resp := register(t, e, "a@b.com")

	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "a@b.com", resp.Data.User.Email)
	assert.Equal(t, models.TokenType, resp.Data.Token.Type)
	assert.NotEmpty(t, resp.Data.Token.AccessToken)
	assert.NotEmpty(t, resp.Data.Token.RefreshToken)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	e := setupServer(t)

	register(t, e, "a@b.com")

	rec := doJSON(e, http.MethodPost, "/api/auth/register",
		`{"email":"a@b.com","password":"secret12","firstname":"Ada","lastname":"Lovelace"}`, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegister_InvalidBody(t *testing.T) {
	e := setupServer(t)

	rec := doJSON(e, http.MethodPost, "/api/auth/register",
		`{"email":"not-an-email","password":"short"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin_WrongPassword(t *testing.T) {
	e := setupServer(t)

	register(t, e, "a@b.com")

	rec := doJSON(e, http.MethodPost, "/api/auth/login",
		`{"email":"a@b.com","password":"wrongpass"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin_Success(t *testing.T) {
	e := setupServer(t)

	register(t, e, "a@b.com")

	rec := doJSON(e, http.MethodPost, "/api/auth/login",
		`{"email":"a@b.com","password":"secret12"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp authResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Data.Token.AccessToken)
	assert.NotEmpty(t, resp.Data.Token.RefreshToken)
}

func TestRefresh_RotatesAndInvalidatesOld(t *testing.T) {
	e := setupServer(t)

	resp := register(t, e, "a@b.com")
	oldRefresh := resp.Data.Token.RefreshToken

	rec := doJSON(e, http.MethodPost, "/api/auth/refresh",
		`{"refresh_token":"`+oldRefresh+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var rotated refreshResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rotated))
	assert.NotEmpty(t, rotated.Data.AccessToken)
	assert.NotEqual(t, oldRefresh, rotated.Data.RefreshToken)

	// presenting the consumed token again is rejected
	rec = doJSON(e, http.MethodPost, "/api/auth/refresh",
		`{"refresh_token":"`+oldRefresh+`"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// while the replacement still works
	rec = doJSON(e, http.MethodPost, "/api/auth/refresh",
		`{"refresh_token":"`+rotated.Data.RefreshToken+`"}`, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRefresh_UnknownToken(t *testing.T) {
	e := setupServer(t)

	rec := doJSON(e, http.MethodPost, "/api/auth/refresh",
		`{"refresh_token":"`+uuid.New().String()+`"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout_IsIdempotent(t *testing.T) {
	e := setupServer(t)

	resp := register(t, e, "a@b.com")
	refresh := resp.Data.Token.RefreshToken

	rec := doJSON(e, http.MethodPost, "/api/auth/logout",
		`{"refresh_token":"`+refresh+`"}`, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(e, http.MethodPost, "/api/auth/logout",
		`{"refresh_token":"`+refresh+`"}`, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// the revoked token can no longer refresh
	rec = doJSON(e, http.MethodPost, "/api/auth/refresh",
		`{"refresh_token":"`+refresh+`"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout_UnknownToken(t *testing.T) {
	e := setupServer(t)

	rec := doJSON(e, http.MethodPost, "/api/auth/logout",
		`{"refresh_token":"`+uuid.New().String()+`"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMe_WithAccessToken(t *testing.T) {
	e := setupServer(t)

	resp := register(t, e, "a@b.com")

	rec := doJSON(e, http.MethodGet, "/api/auth/me", "", resp.Data.Token.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var me struct {
		Data struct {
			Email string `json:"email"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "a@b.com", me.Data.Email)
}

func TestMe_RejectsBadTokens(t *testing.T) {
	e := setupServer(t)

	register(t, e, "a@b.com")

	rec := doJSON(e, http.MethodGet, "/api/auth/me", "", "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/auth/me", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
