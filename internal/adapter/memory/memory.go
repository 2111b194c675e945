// Package memory implements in-memory adapters for development and testing.
package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"trustcore/internal/domain"
)

// ErrEmailTaken is returned when CreateUser is called with a known email.
var ErrEmailTaken = errors.New("email already registered")

// DB implements an in-memory user and reset-token store.
type DB struct {
	mu     sync.Mutex
	users  []*domain.User
	tokens []*domain.ResetToken

	userIDCounter  int64
	tokenIDCounter int64
}

// New creates a new in-memory database.
func New() *DB {
	return &DB{}
}

// Ensure interfaces are met.
var _ domain.UserRepository = (*DB)(nil)
var _ domain.ResetTokenRepository = (*DB)(nil)

// --- UserRepository ---

// CreateUser adds an active user. Email is stored lowercased and trimmed.
func (db *DB) CreateUser(ctx context.Context, email, displayName, passwordHash string) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range db.users {
		if u.Email == email {
			return nil, ErrEmailTaken
		}
	}

	db.userIDCounter++
	u := &domain.User{
		ID:           db.userIDCounter,
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
	db.users = append(db.users, u)
	ret := *u
	return &ret, nil
}

// Deactivate marks a user inactive so recovery lookups skip it.
func (db *DB) Deactivate(ctx context.Context, id int64) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, u := range db.users {
		if u.ID == id {
			u.Active = false
		}
	}
}

// GetActiveByEmail retrieves an active user by normalized email.
func (db *DB) GetActiveByEmail(ctx context.Context, email string) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.Active && u.Email == email {
			ret := *u
			return &ret, nil
		}
	}
	return nil, nil
}

// GetByID retrieves a user by ID, active or not. It is not part of any port;
// tests use it to inspect stored credentials.
func (db *DB) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.ID == id {
			ret := *u
			return &ret, nil
		}
	}
	return nil, nil
}

// --- ResetTokenRepository ---

// IssueResetToken supersedes the user's unused tokens and stores a new one.
func (db *DB) IssueResetToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) (*domain.ResetToken, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, t := range db.tokens {
		if t.UserID == userID && !t.Used {
			t.Used = true
		}
	}

	db.tokenIDCounter++
	t := &domain.ResetToken{
		ID:        db.tokenIDCounter,
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: time.Now().UTC(),
	}
	db.tokens = append(db.tokens, t)
	ret := *t
	return &ret, nil
}

// GetResetTokenByHash retrieves a token by the hash of its secret.
func (db *DB) GetResetTokenByHash(ctx context.Context, tokenHash string) (*domain.ResetToken, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, t := range db.tokens {
		if t.TokenHash == tokenHash {
			ret := *t
			return &ret, nil
		}
	}
	return nil, nil
}

// RedeemResetToken updates the credential and then consumes the token.
func (db *DB) RedeemResetToken(ctx context.Context, tokenID, userID int64, passwordHash string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	var token *domain.ResetToken
	for _, t := range db.tokens {
		if t.ID == tokenID && t.UserID == userID {
			token = t
			break
		}
	}
	if token == nil || token.Used {
		return domain.ErrResetTokenConsumed
	}

	var user *domain.User
	for _, u := range db.users {
		if u.ID == userID {
			user = u
			break
		}
	}
	if user == nil {
		return errors.New("user not found")
	}

	user.PasswordHash = passwordHash
	token.Used = true
	return nil
}

// UnusedTokenCount returns how many unused tokens the user holds.
func (db *DB) UnusedTokenCount(userID int64) int {
	db.mu.Lock()
	defer db.mu.Unlock()

	n := 0
	for _, t := range db.tokens {
		if t.UserID == userID && !t.Used {
			n++
		}
	}
	return n
}
