package repository

import (
	"context"
	"time"

	"github.com/farmlink/market/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OTPRepository persists recovery codes. Only the newest code per user is
// ever valid: IssueCode deletes every prior row for the user before
// inserting, regardless of consumed or expiry state.
type OTPRepository interface {
	IssueCode(ctx context.Context, userID int64, code string, expiresAt time.Time) error
	FindLatest(ctx context.Context, userID int64) (*domain.OTPCredential, error)
	Consume(ctx context.Context, credentialID int64) (bool, error)
}

type otpRepository struct {
	pool *pgxpool.Pool
}

func NewOTPRepository(pool *pgxpool.Pool) OTPRepository {
	return &otpRepository{pool: pool}
}

func (r *otpRepository) IssueCode(ctx context.Context, userID int64, code string, expiresAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM otp_credentials WHERE user_id = $1`, userID); err != nil {
		return err
	}

	const ins = `
		INSERT INTO otp_credentials (user_id, code, expires_at, consumed)
		VALUES ($1, $2, $3, false)`
	if _, err := tx.Exec(ctx, ins, userID, code, expiresAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *otpRepository) FindLatest(ctx context.Context, userID int64) (*domain.OTPCredential, error) {
	const q = `
		SELECT id, user_id, code, expires_at, consumed, created_at
		FROM otp_credentials
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var c domain.OTPCredential
	err := r.pool.QueryRow(ctx, q, userID).Scan(
		&c.ID, &c.UserID, &c.Code, &c.ExpiresAt, &c.Consumed, &c.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return &c, err
}

// Consume flips the credential to consumed exactly once. The guard on
// consumed = false makes the check-then-mark race-free: of two concurrent
// calls only one sees an affected row.
func (r *otpRepository) Consume(ctx context.Context, credentialID int64) (bool, error) {
	const q = `UPDATE otp_credentials SET consumed = true WHERE id = $1 AND consumed = false`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, credentialID)
	if err != nil {
		return false, err
	}

	return result.RowsAffected() == 1, nil
}
