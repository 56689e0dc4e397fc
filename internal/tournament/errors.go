package tournament

import "errors"

var (
	// ErrTournamentNotFound means no tournament matches the id or code.
	ErrTournamentNotFound = errors.New("tournament not found")

	// ErrTournamentFull means the player cap or bracket capacity is
	// exhausted.
	ErrTournamentFull = errors.New("tournament is full")

	// ErrTournamentStarted rejects joins and restarts after start.
	ErrTournamentStarted = errors.New("tournament already started")

	// ErrTournamentEnded rejects operations on a finished tournament.
	ErrTournamentEnded = errors.New("tournament has ended")

	// ErrNotAdmin rejects start requests from non-admin principals.
	ErrNotAdmin = errors.New("admin role required")

	// ErrNoPlayers rejects starting a tournament nobody joined.
	ErrNoPlayers = errors.New("tournament has no players")
)
