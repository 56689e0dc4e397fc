package registry

import "errors"

var (
	// ErrTooManyRooms means the configured room cap is reached.
	ErrTooManyRooms = errors.New("room limit reached")

	// ErrCodeCollision means a free code could not be drawn. With a
	// 32-glyph alphabet this only happens when the code space is
	// nearly exhausted.
	ErrCodeCollision = errors.New("could not allocate a unique code")
)
