package models

import (
	"time"

	"github.com/google/uuid"
)

// TokenType is advertised to clients alongside every issued pair.
const TokenType = "bearer"

type TokenPair struct {
	TokenType    string `json:"token_type"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// RefreshToken is the persisted record behind the opaque refresh credential.
// The ID doubles as the bearer secret handed to the client. Once Revoked is
// set it never goes back to false, and ExpiresAt is never extended.
type RefreshToken struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	IssuedAt  time.Time `db:"issued_at" json:"issued_at"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	Revoked   bool      `db:"revoked" json:"revoked"`
}

// Expired reports whether the record is past its lifetime at the given moment.
func (t RefreshToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
