package repository

import (
	"context"
	"time"

	"github.com/farmlink/market/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TokenRepository interface {
	Create(ctx context.Context, userID int64, token string, expiresAt time.Time) error
	FindByValue(ctx context.Context, token string) (*domain.ResetToken, error)
	RedeemAndSetPassword(ctx context.Context, tokenID, userID int64, passwordHash string) (bool, error)
}

type tokenRepository struct {
	pool *pgxpool.Pool
}

func NewTokenRepository(pool *pgxpool.Pool) TokenRepository {
	return &tokenRepository{pool: pool}
}

// Create inserts a fresh reset token, first purging the user's tokens that
// are already used or expired. The purge is housekeeping only.
func (r *tokenRepository) Create(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const purge = `
		DELETE FROM reset_tokens
		WHERE user_id = $1 AND (used = true OR expires_at < now())`
	if _, err := tx.Exec(ctx, purge, userID); err != nil {
		return err
	}

	const ins = `
		INSERT INTO reset_tokens (user_id, token, expires_at, used)
		VALUES ($1, $2, $3, false)`
	if _, err := tx.Exec(ctx, ins, userID, token, expiresAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *tokenRepository) FindByValue(ctx context.Context, token string) (*domain.ResetToken, error) {
	const q = `
		SELECT id, user_id, token, expires_at, used, created_at
		FROM reset_tokens
		WHERE token = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var t domain.ResetToken
	err := r.pool.QueryRow(ctx, q, token).Scan(
		&t.ID, &t.UserID, &t.Token, &t.ExpiresAt, &t.Used, &t.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return &t, err
}

// RedeemAndSetPassword marks the token used and overwrites the user's
// password hash in one transaction. The guard on used = false decides the
// race between concurrent redemptions: the loser sees no affected row and
// the transaction is rolled back, leaving the password untouched. A failed
// password write likewise rolls back the token transition.
func (r *tokenRepository) RedeemAndSetPassword(ctx context.Context, tokenID, userID int64, passwordHash string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	const consume = `UPDATE reset_tokens SET used = true WHERE id = $1 AND used = false`
	result, err := tx.Exec(ctx, consume, tokenID)
	if err != nil {
		return false, err
	}
	if result.RowsAffected() == 0 {
		return false, nil
	}

	const setPass = `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`
	result, err = tx.Exec(ctx, setPass, userID, passwordHash)
	if err != nil {
		return false, err
	}
	if result.RowsAffected() == 0 {
		return false, pgx.ErrNoRows
	}

	return true, tx.Commit(ctx)
}
