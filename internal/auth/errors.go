package auth

import "errors"

var (
	// ErrTokenInvalid covers malformed, unsigned, or expired tokens.
	ErrTokenInvalid = errors.New("token is invalid")

	// ErrTokenMismatch means a valid token's claims name a different
	// room or participant than the caller presented.
	ErrTokenMismatch = errors.New("token does not match this participant")

	// ErrGuestsCannotScore rejects token issuance for anonymous players.
	ErrGuestsCannotScore = errors.New("sign in to record scores")
)
