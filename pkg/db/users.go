package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"theblob/pkg/domain"
)

// EnsureUser creates the user record on first contact, updating nothing on
// repeat calls
func (db *DB) EnsureUser(ctx context.Context, user domain.User) error {
	return withRetry(ctx, func() error {
		query := `
			INSERT INTO users (user_id, username, first_name, last_name)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(user_id) DO NOTHING
		`
		_, err := db.conn.ExecContext(ctx, query, user.ID, user.Username, user.FirstName, user.LastName)
		if err != nil {
			return fmt.Errorf("ensure user: %w", err)
		}
		return nil
	})
}

// GetUser retrieves a user by ID
func (db *DB) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	var user User
	err := db.conn.GetContext(ctx, &user, `SELECT * FROM users WHERE user_id = ?`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user not found")
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &domain.User{
		ID:        user.ID,
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		CreatedAt: user.CreatedAt,
	}, nil
}
