package game

import (
	"strings"
	"time"
	"unicode/utf8"
)

// ParticipantRole distinguishes scored players from watchers.
type ParticipantRole string

const (
	RolePlayer    ParticipantRole = "player"
	RoleSpectator ParticipantRole = "spectator"
)

// Participant is one member of a room. Created on join, removed only when
// the room ends, so a dropped connection can reclaim its seat.
type Participant struct {
	ID          string
	DisplayName string
	Role        ParticipantRole
	IsHost      bool

	// Identity behind the seat. UserID is empty for guests; GuestTag is
	// the anonymous cookie identity and empty for signed-in users.
	UserID   string
	GuestTag string

	Score          int
	Lives          int
	Streak         int
	BestStreak     int
	Eliminated     bool
	Connected      bool
	JoinedAt       time.Time
	ScoreReachedAt time.Time
	// BestStreakAt is when BestStreak last advanced; streak-challenge
	// ties break on it instead of ScoreReachedAt.
	BestStreakAt time.Time

	// syncRound is the highest sync round this participant has acked.
	syncRound int

	// question is this player's private prompt in per-player-pace modes.
	question      *Question
	questionIndex int
}

// NewParticipant creates a connected participant with a cleaned name.
func NewParticipant(id, displayName string, role ParticipantRole) *Participant {
	return &Participant{
		ID:          id,
		DisplayName: strings.TrimSpace(displayName),
		Role:        role,
		Connected:   true,
		JoinedAt:    time.Now(),
	}
}

// ValidDisplayName reports whether the trimmed name fits 1..40 runes.
func ValidDisplayName(name string) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	return n >= 1 && n <= 40
}

// IsGuest reports whether the seat belongs to an anonymous visitor.
func (p *Participant) IsGuest() bool {
	return p.UserID == ""
}

// scorable reports whether the participant still competes: a player seat
// that has not been eliminated.
func (p *Participant) scorable() bool {
	return p.Role == RolePlayer && !p.Eliminated
}
