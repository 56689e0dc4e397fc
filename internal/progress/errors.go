package progress

import "errors"

var (
	ErrSessionNotFound = errors.New("game session not found")
	ErrSessionMismatch = errors.New("game session does not match this submission")
	ErrSessionExpired  = errors.New("game session has expired")
	ErrSessionUsed     = errors.New("game session was already used")

	ErrUnknownAchievement = errors.New("unknown achievement")
)
