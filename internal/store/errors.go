package store

import "errors"

var (
	// ErrUserNotFound means no account matches the id or email.
	ErrUserNotFound = errors.New("user not found")

	// ErrDuplicateScore means a score row already exists for the
	// session id.
	ErrDuplicateScore = errors.New("score already submitted for this session")
)
