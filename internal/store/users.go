package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/codefionn/huddle/internal/identity"
)

// User is a registered account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
}

// Principal returns the authenticated principal of u.
func (u *User) Principal() identity.Principal {
	return identity.Principal{ID: u.ID, Username: u.Username}
}

// CreateUser inserts a user with an already hashed password.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" || strings.ContainsAny(username, " \t\n") {
		return nil, fmt.Errorf("invalid username %q", username)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash) VALUES (?, ?)`, username, passwordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("user %q: %w", username, ErrConflict)
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &User{ID: id, Username: username, PasswordHash: passwordHash}, nil
}

// GetUserByName loads a user by username.
func (s *Store) GetUserByName(ctx context.Context, username string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash FROM users WHERE username = ?`, username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &u, nil
}

// LookupCredentials implements identity.Credentials.
func (s *Store) LookupCredentials(ctx context.Context, username string) (identity.Principal, string, error) {
	u, err := s.GetUserByName(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return identity.Anonymous, "", identity.ErrUnknownUser
	}
	if err != nil {
		return identity.Anonymous, "", err
	}
	return u.Principal(), u.PasswordHash, nil
}
