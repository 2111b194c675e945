package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"trustcore/internal/domain"
)

var _ domain.ResetTokenRepository = (*DB)(nil)

// IssueResetToken locks the user row, supersedes every unused token and
// inserts the new one in a single transaction. Concurrent requests for the
// same user queue on the row lock.
func (d *DB) IssueResetToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) (*domain.ResetToken, error) {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("issue reset token: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var lockedID int64
	if err := tx.QueryRowContext(ctx, "SELECT id FROM users WHERE id = $1 FOR UPDATE", userID).Scan(&lockedID); err != nil {
		return nil, fmt.Errorf("issue reset token: lock user: %w", err)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		"UPDATE password_reset_tokens SET used = TRUE, used_at = $2 WHERE user_id = $1 AND used = FALSE",
		userID, now,
	); err != nil {
		return nil, fmt.Errorf("issue reset token: invalidate: %w", err)
	}

	t := domain.ResetToken{UserID: userID, TokenHash: tokenHash, ExpiresAt: expiresAt.UTC(), CreatedAt: now}
	if err := tx.QueryRowContext(ctx,
		"INSERT INTO password_reset_tokens (user_id, token_hash, expires_at, used, created_at) VALUES ($1, $2, $3, FALSE, $4) RETURNING id",
		userID, tokenHash, t.ExpiresAt, now,
	).Scan(&t.ID); err != nil {
		return nil, fmt.Errorf("issue reset token: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("issue reset token: commit: %w", err)
	}
	return &t, nil
}

// GetResetTokenByHash retrieves a token by the hash of its secret.
func (d *DB) GetResetTokenByHash(ctx context.Context, tokenHash string) (*domain.ResetToken, error) {
	var t domain.ResetToken
	err := d.sql.QueryRowContext(ctx,
		"SELECT id, user_id, token_hash, expires_at, used, created_at FROM password_reset_tokens WHERE token_hash = $1",
		tokenHash,
	).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.Used, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// RedeemResetToken writes the new credential and then consumes the token
// inside one transaction. The token row is locked first so two concurrent
// redemptions cannot both succeed.
func (d *DB) RedeemResetToken(ctx context.Context, tokenID, userID int64, passwordHash string) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("redeem reset token: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var used bool
	err = tx.QueryRowContext(ctx,
		"SELECT used FROM password_reset_tokens WHERE id = $1 AND user_id = $2 FOR UPDATE",
		tokenID, userID,
	).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && used) {
		return domain.ErrResetTokenConsumed
	}
	if err != nil {
		return fmt.Errorf("redeem reset token: lock token: %w", err)
	}

	res, err := tx.ExecContext(ctx, "UPDATE users SET password_hash = $1 WHERE id = $2", passwordHash, userID)
	if err != nil {
		return fmt.Errorf("redeem reset token: update credential: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("redeem reset token: user %d not found", userID)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE password_reset_tokens SET used = TRUE, used_at = $2 WHERE id = $1",
		tokenID, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("redeem reset token: mark used: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("redeem reset token: commit: %w", err)
	}
	return nil
}
