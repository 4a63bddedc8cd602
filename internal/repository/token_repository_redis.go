package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"token_keeper/internal/domain/models"
	"token_keeper/internal/storage"
	redisapp "token_keeper/internal/storage/redis"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// tokenRetention keeps revoked and expired records around after their
// lifetime ends, so a replayed token is still answered with a typed
// revoked/expired error instead of not-found.
const tokenRetention = 24 * time.Hour

// revokeScript flips the revoked field only if it is currently unset.
// Returns -1 when the key is absent, 0 when already revoked, 1 on success.
var revokeScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
if redis.call("HGET", KEYS[1], "revoked") == "1" then
  return 0
end
redis.call("HSET", KEYS[1], "revoked", "1")
return 1
`)

// rotateScript is revokeScript plus creation of the successor record, in one
// atomic server-side step.
var rotateScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
if redis.call("HGET", KEYS[1], "revoked") == "1" then
  return 0
end
redis.call("HSET", KEYS[1], "revoked", "1")
redis.call("HSET", KEYS[2], "user_id", ARGV[1], "issued_at", ARGV[2], "expires_at", ARGV[3], "revoked", "0")
redis.call("PEXPIRE", KEYS[2], ARGV[4])
return 1
`)

type RedisTokenRepo struct {
	client *redisapp.Client
}

func NewRedisTokenRepo(client *redisapp.Client) *RedisTokenRepo {
	return &RedisTokenRepo{client: client}
}

func (r *RedisTokenRepo) CreateRefreshToken(ctx context.Context, token models.RefreshToken) error {
	const op = "repository.token_repository_redis.CreateRefreshToken"

	key := refreshTokenKey(token.ID)

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key,
		"user_id", token.UserID.String(),
		"issued_at", strconv.FormatInt(token.IssuedAt.Unix(), 10),
		"expires_at", strconv.FormatInt(token.ExpiresAt.Unix(), 10),
		"revoked", boolField(token.Revoked),
	)
	pipe.PExpire(ctx, key, retentionTTL(token.ExpiresAt))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *RedisTokenRepo) RefreshTokenByID(ctx context.Context, id uuid.UUID) (models.RefreshToken, error) {
	const op = "repository.token_repository_redis.RefreshTokenByID"

	fields, err := r.client.HGetAll(ctx, refreshTokenKey(id)).Result()
	if err != nil {
		return models.RefreshToken{}, fmt.Errorf("%s: %w", op, err)
	}
	if len(fields) == 0 {
		return models.RefreshToken{}, fmt.Errorf("%s: %w", op, storage.ErrTokenNotFound)
	}

	userID, err := uuid.Parse(fields["user_id"])
	if err != nil {
		return models.RefreshToken{}, fmt.Errorf("%s: bad user_id field: %w", op, err)
	}
	issuedAt, err := strconv.ParseInt(fields["issued_at"], 10, 64)
	if err != nil {
		return models.RefreshToken{}, fmt.Errorf("%s: bad issued_at field: %w", op, err)
	}
	expiresAt, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return models.RefreshToken{}, fmt.Errorf("%s: bad expires_at field: %w", op, err)
	}

	return models.RefreshToken{
		ID:        id,
		UserID:    userID,
		IssuedAt:  time.Unix(issuedAt, 0).UTC(),
		ExpiresAt: time.Unix(expiresAt, 0).UTC(),
		Revoked:   fields["revoked"] == "1",
	}, nil
}

func (r *RedisTokenRepo) RevokeRefreshToken(ctx context.Context, id uuid.UUID) error {
	const op = "repository.token_repository_redis.RevokeRefreshToken"

	res, err := revokeScript.Run(ctx, r.client, []string{refreshTokenKey(id)}).Int()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	switch res {
	case -1:
		return fmt.Errorf("%s: %w", op, storage.ErrTokenNotFound)
	case 0:
		return fmt.Errorf("%s: %w", op, storage.ErrTokenRevoked)
	}

	return nil
}

func (r *RedisTokenRepo) Rotate(ctx context.Context, old uuid.UUID, next models.RefreshToken) error {
	const op = "repository.token_repository_redis.Rotate"

	res, err := rotateScript.Run(ctx, r.client,
		[]string{refreshTokenKey(old), refreshTokenKey(next.ID)},
		next.UserID.String(),
		strconv.FormatInt(next.IssuedAt.Unix(), 10),
		strconv.FormatInt(next.ExpiresAt.Unix(), 10),
		retentionTTL(next.ExpiresAt).Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	switch res {
	case -1:
		return fmt.Errorf("%s: %w", op, storage.ErrTokenNotFound)
	case 0:
		return fmt.Errorf("%s: %w", op, storage.ErrTokenRevoked)
	}

	return nil
}

func refreshTokenKey(id uuid.UUID) string {
	return "refresh:" + id.String()
}

func retentionTTL(expiresAt time.Time) time.Duration {
	return time.Until(expiresAt) + tokenRetention
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
