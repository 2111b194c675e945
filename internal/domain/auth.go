// Package domain contains the core business entities and interfaces.
package domain

import (
	"context"
	"errors"
	"time"
)

// ErrResetTokenConsumed is returned by a ResetTokenRepository when a token was
// already marked used by the time a redemption tried to claim it.
var ErrResetTokenConsumed = errors.New("reset token already consumed")

// User represents an account that can recover its credential.
type User struct {
	ID           int64
	Email        string
	DisplayName  string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
}

// ResetToken is one password-reset attempt. Only the hash of the secret is
// ever stored.
type ResetToken struct {
	ID        int64
	UserID    int64
	TokenHash string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// UserRepository defines the port for user persistence operations.
type UserRepository interface {
	// GetActiveByEmail returns nil, nil when no active user owns the email.
	GetActiveByEmail(ctx context.Context, email string) (*User, error)
}

// ResetTokenRepository defines the port for reset-token persistence.
type ResetTokenRepository interface {
	// IssueResetToken marks every unused token of the user as used and
	// inserts the new one as a single atomic step.
	IssueResetToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) (*ResetToken, error)
	// GetResetTokenByHash returns nil, nil when no row matches.
	GetResetTokenByHash(ctx context.Context, tokenHash string) (*ResetToken, error)
	// RedeemResetToken stores the new credential hash and then marks the
	// token used, atomically. It returns ErrResetTokenConsumed when the token
	// is no longer unused.
	RedeemResetToken(ctx context.Context, tokenID, userID int64, passwordHash string) error
}

// PasswordHasher produces slow, salted credential hashes.
type PasswordHasher interface {
	Hash(password string) (string, error)
}
