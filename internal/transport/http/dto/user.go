package dto

import (
	"time"

	"token_keeper/internal/domain/models"

	"github.com/google/uuid"
)

// UserResponse is the sanitized user shape returned by the auth endpoints,
// never including the password hash.
type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Firstname string    `json:"firstname"`
	Lastname  string    `json:"lastname"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TokenResponse struct {
	Type         string `json:"type"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// AuthPayload bundles the sanitized user with the issued tokens, mirroring
// what login and registration return.
type AuthPayload struct {
	User  UserResponse  `json:"user"`
	Token TokenResponse `json:"token"`
}

func NewUserResponse(user models.User) UserResponse {
	return UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		Firstname: user.FirstName,
		Lastname:  user.LastName,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

func NewAuthPayload(user models.User, pair *models.TokenPair) AuthPayload {
	return AuthPayload{
		User: NewUserResponse(user),
		Token: TokenResponse{
			Type:         pair.TokenType,
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
		},
	}
}
