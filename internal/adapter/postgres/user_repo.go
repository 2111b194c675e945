package postgres

import (
	"context"
	"database/sql"
	"errors"

	"trustcore/internal/domain"
)

var _ domain.UserRepository = (*DB)(nil)

const userColumns = "id, email, display_name, password_hash, active, created_at"

// GetActiveByEmail retrieves an active user by normalized email.
func (d *DB) GetActiveByEmail(ctx context.Context, email string) (*domain.User, error) {
	return d.scanUser(d.sql.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = $1 AND active = TRUE",
		email,
	))
}

func (d *DB) scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.Active, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
