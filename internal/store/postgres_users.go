package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

const selectUserByIDSQL = `
SELECT id, email, name, role, created_at
  FROM users
 WHERE id = $1`

const selectUserByEmailSQL = `
SELECT id, email, name, role, created_at
  FROM users
 WHERE lower(email) = $1`

func (s *PostgresStore) GetUser(ctx context.Context, userID string) (*User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, selectUserByIDSQL, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, selectUserByEmailSQL, strings.ToLower(email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
