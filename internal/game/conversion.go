package game

import "strings"

// Conversion identifies what the player is converting between, e.g.
// "binary-standalone" or "ipv6-hextet". Binary and hex come in several
// page variants that all share one answer format, so validation works on
// the family prefix rather than the exact kind.
type Conversion string

const (
	ConvBinaryStandalone Conversion = "binary-standalone"
	ConvHexStandalone    Conversion = "hex-standalone"
	ConvIPv4Full         Conversion = "ipv4-full"
	ConvIPv6Hextet       Conversion = "ipv6-hextet"
)

// Family buckets a conversion kind by its answer format.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyBinary
	FamilyHex
	FamilyIPv4
	FamilyIPv6
)

// Family returns the answer-format family for the conversion kind.
func (c Conversion) Family() Family {
	switch {
	case strings.HasPrefix(string(c), "binary-"):
		return FamilyBinary
	case strings.HasPrefix(string(c), "hex-"):
		return FamilyHex
	case c == ConvIPv4Full:
		return FamilyIPv4
	case c == ConvIPv6Hextet:
		return FamilyIPv6
	}
	return FamilyUnknown
}

// Valid reports whether the conversion kind is one the engine can generate.
func (c Conversion) Valid() bool {
	return c.Family() != FamilyUnknown
}

// Mode is the game mode a room plays.
type Mode string

const (
	ModeClassic      Mode = "classic"
	ModeSpeedRound   Mode = "speed-round"
	ModeNibbleSprint Mode = "nibble-sprint"
	ModeSurvival     Mode = "survival"
	ModeStreak       Mode = "streak-challenge"
)

// Valid reports whether m is a known game mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeClassic, ModeSpeedRound, ModeNibbleSprint, ModeSurvival, ModeStreak:
		return true
	}
	return false
}

// SharedPace reports whether the whole room answers one common question
// (speed-round, nibble-sprint) instead of each player pacing themselves.
func (m Mode) SharedPace() bool {
	return m == ModeSpeedRound || m == ModeNibbleSprint
}

// TimerSeconds returns the fixed round length for modes that carry one,
// or 0 when the mode has no built-in timer.
func (m Mode) TimerSeconds() int {
	switch m {
	case ModeSpeedRound:
		return 60
	case ModeNibbleSprint:
		return 30
	}
	return 0
}

// GoalType describes how a room decides it is finished.
type GoalType string

const (
	GoalFirstTo    GoalType = "first_to"
	GoalMostInTime GoalType = "most_in_time"
	GoalTimed      GoalType = "timed"
	GoalSurvival   GoalType = "survival"
	GoalStreak     GoalType = "streak"
)

// Valid reports whether g is a known goal type.
func (g GoalType) Valid() bool {
	switch g {
	case GoalFirstTo, GoalMostInTime, GoalTimed, GoalSurvival, GoalStreak:
		return true
	}
	return false
}

// GoalValue carries the goal's parameter; which field is meaningful
// depends on the goal type.
type GoalValue struct {
	FirstTo int `json:"firstTo,omitempty"`
	Seconds int `json:"seconds,omitempty"`
	Lives   int `json:"lives,omitempty"`
}

// Visibility controls how a room can be discovered and joined.
type Visibility string

const (
	VisibilityPrivate        Visibility = "private"
	VisibilityPublic         Visibility = "public"
	VisibilityPublicPassword Visibility = "public_password"
)

// Valid reports whether v is a known visibility.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPrivate, VisibilityPublic, VisibilityPublicPassword:
		return true
	}
	return false
}
