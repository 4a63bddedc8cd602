package repository

import (
	"context"
	"errors"
	"fmt"

	"token_keeper/internal/domain/models"
	"token_keeper/internal/storage"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// PostgresTokenRepo stores refresh tokens in the refresh_tokens table.
// The revoked flag is only ever flipped by the guarded UPDATE in revokeTx,
// so two rotations racing on one id cannot both win.
type PostgresTokenRepo struct {
	db *pgxpool.Pool
	sb sq.StatementBuilderType
}

func NewPostgresTokenRepo(db *pgxpool.Pool) *PostgresTokenRepo {
	return &PostgresTokenRepo{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *PostgresTokenRepo) CreateRefreshToken(ctx context.Context, token models.RefreshToken) error {
	const op = "repository.token_repository.CreateRefreshToken"

	query, args, err := r.insertSQL(token)
	if err != nil {
		return fmt.Errorf("%s: can't build sql: %w", op, err)
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *PostgresTokenRepo) RefreshTokenByID(ctx context.Context, id uuid.UUID) (models.RefreshToken, error) {
	const op = "repository.token_repository.RefreshTokenByID"

	query, args, err := r.sb.
		Select("id", "user_id", "issued_at", "expires_at", "revoked").
		From("refresh_tokens").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return models.RefreshToken{}, fmt.Errorf("%s: can't build sql: %w", op, err)
	}

	var token models.RefreshToken
	err = r.db.QueryRow(ctx, query, args...).Scan(
		&token.ID,
		&token.UserID,
		&token.IssuedAt,
		&token.ExpiresAt,
		&token.Revoked,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.RefreshToken{}, fmt.Errorf("%s: %w", op, storage.ErrTokenNotFound)
		}
		return models.RefreshToken{}, fmt.Errorf("%s: %w", op, err)
	}

	return token, nil
}

func (r *PostgresTokenRepo) RevokeRefreshToken(ctx context.Context, id uuid.UUID) error {
	const op = "repository.token_repository.RevokeRefreshToken"

	if err := r.revokeTx(ctx, r.db, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Rotate revokes old and inserts next in one transaction: a rotation either
// fully happens or leaves the store untouched.
func (r *PostgresTokenRepo) Rotate(ctx context.Context, old uuid.UUID, next models.RefreshToken) error {
	const op = "repository.token_repository.Rotate"

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback(ctx)

	if err := r.revokeTx(ctx, tx, old); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	query, args, err := r.insertSQL(next)
	if err != nil {
		return fmt.Errorf("%s: can't build sql: %w", op, err)
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// querier is the subset of pgxpool.Pool and pgx.Tx the revoke path needs, so
// it can run standalone or inside a rotation transaction.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// revokeTx flips revoked only if it is currently false. Zero affected rows
// means someone else already revoked the record, or it never existed; the
// follow-up read tells the two apart.
func (r *PostgresTokenRepo) revokeTx(ctx context.Context, db querier, id uuid.UUID) error {
	query, args, err := r.sb.
		Update("refresh_tokens").
		Set("revoked", true).
		Where(sq.Eq{"id": id, "revoked": false}).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build sql: %w", err)
	}

	tag, err := db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	check, args, err := r.sb.
		Select("revoked").
		From("refresh_tokens").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build sql: %w", err)
	}

	var revoked bool
	if err := db.QueryRow(ctx, check, args...).Scan(&revoked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.ErrTokenNotFound
		}
		return err
	}

	return storage.ErrTokenRevoked
}

func (r *PostgresTokenRepo) insertSQL(token models.RefreshToken) (string, []interface{}, error) {
	return r.sb.Insert("refresh_tokens").
		Columns("id", "user_id", "issued_at", "expires_at", "revoked").
		Values(token.ID, token.UserID, token.IssuedAt, token.ExpiresAt, token.Revoked).
		ToSql()
}
