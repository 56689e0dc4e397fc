// Package store persists users, anti-abuse game session tokens,
// scores, per-user progress, and achievements. A memory implementation
// backs development and tests; postgres backs production. Both sit
// behind the Store interface and share the same update arithmetic.
package store

import (
	"context"
	"time"
)

// ConsumeStatus is the outcome of the atomic token consume-and-mark.
type ConsumeStatus string

const (
	ConsumeOK          ConsumeStatus = "ok"
	ConsumeNotFound    ConsumeStatus = "not_found"
	ConsumeMismatch    ConsumeStatus = "mismatch"
	ConsumeExpired     ConsumeStatus = "expired"
	ConsumeAlreadyUsed ConsumeStatus = "already_used"
)

// User is a read-only account row. Accounts are managed by the main
// application; this service only resolves them.
type User struct {
	ID        string    `db:"id"`
	Email     string    `db:"email"`
	Name      string    `db:"name"`
	Role      string    `db:"role"`
	CreatedAt time.Time `db:"created_at"`
}

// RoleAdmin marks users allowed to run tournaments.
const RoleAdmin = "admin"

// GameSession is one single-use score submission token.
type GameSession struct {
	SessionID string     `db:"session_id"`
	UserID    string     `db:"user_id"`
	RoomID    string     `db:"room_id"`
	Mode      string     `db:"mode"`
	Conv      string     `db:"conv"`
	IssuedAt  time.Time  `db:"issued_at"`
	ExpiresAt time.Time  `db:"expires_at"`
	UsedAt    *time.Time `db:"used_at"`
}

// Score is one persisted game result. SessionID is unique: one score
// per consumed token.
type Score struct {
	ID        string         `db:"id"`
	UserID    string         `db:"user_id"`
	Mode      string         `db:"mode"`
	Conv      string         `db:"conv"`
	Score     int            `db:"score"`
	Metadata  map[string]any `db:"-"`
	SessionID string         `db:"session_id"`
	CreatedAt time.Time      `db:"created_at"`
}

// Progress is the per-user aggregate. LastPlayedDate is a UTC calendar
// day in 2006-01-02 form, empty until the first recorded game.
type Progress struct {
	UserID            string    `db:"user_id"`
	TotalXP           int       `db:"total_xp"`
	Level             int       `db:"level"`
	BestStreak        int       `db:"best_streak"`
	BestClassicStreak int       `db:"best_classic_streak"`
	DailyStreak       int       `db:"daily_streak"`
	LastPlayedDate    string    `db:"last_played_date"`
	BestSpeedRound    int       `db:"best_speed_round"`
	BestSurvival      int       `db:"best_survival"`
	BestNibbleSprint  int       `db:"best_nibble_sprint"`
	GamesPlayed       int       `db:"games_played"`
	UpdatedAt         time.Time `db:"updated_at"`
}

// ProgressDelta carries one update's contributions. Zero fields leave
// the row alone; best-fields apply as monotonic max.
type ProgressDelta struct {
	XPEarned          int
	BestStreak        int
	BestClassicStreak int
	BestSpeedRound    int
	BestSurvival      int
	BestNibbleSprint  int
	RecordPlayed      bool
	// Today overrides the UTC day used for the daily streak; tests use
	// it, production leaves it empty.
	Today string
}

// Achievement is one unlocked badge.
type Achievement struct {
	UserID        string    `db:"user_id"`
	AchievementID string    `db:"achievement_id"`
	UnlockedAt    time.Time `db:"unlocked_at"`
}

// LeaderboardRow is one line of the score or daily-streak boards.
type LeaderboardRow struct {
	UserName  string    `db:"user_name"`
	Score     int       `db:"score"`
	CreatedAt time.Time `db:"created_at"`
}

// XPRow is one line of the XP board.
type XPRow struct {
	UserName string `db:"user_name"`
	TotalXP  int    `db:"total_xp"`
	Level    int    `db:"level"`
}

// Users resolves accounts for the auth adapter.
type Users interface {
	GetUser(ctx context.Context, userID string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
}

// GameSessions issues and consumes score tokens. Consume must be
// atomic: two submissions racing on one token see exactly one OK.
type GameSessions interface {
	InsertGameSession(ctx context.Context, s GameSession) error
	ConsumeGameSession(ctx context.Context, sessionID, userID, mode, conv string) (ConsumeStatus, error)
}

// Scores appends finished games.
type Scores interface {
	InsertScore(ctx context.Context, s Score) error
}

// ProgressStore reads and folds per-user aggregates.
type ProgressStore interface {
	GetProgress(ctx context.Context, userID string) (*Progress, error)
	UpsertProgress(ctx context.Context, userID string, d ProgressDelta) (*Progress, error)
}

// Achievements records unlocked badges.
type Achievements interface {
	// InsertAchievementIfAbsent reports true when this call created
	// the row.
	InsertAchievementIfAbsent(ctx context.Context, userID, achievementID string) (bool, error)
	ListAchievements(ctx context.Context, userID string) ([]Achievement, error)
}

// Leaderboards serves the top-N read paths.
type Leaderboards interface {
	TopScores(ctx context.Context, mode, conv string, limit int) ([]LeaderboardRow, error)
	TopDailyStreaks(ctx context.Context, limit int) ([]LeaderboardRow, error)
	TopXP(ctx context.Context, limit int) ([]XPRow, error)
}

// Store is everything the service persists.
type Store interface {
	Users
	GameSessions
	Scores
	ProgressStore
	Achievements
	Leaderboards

	// Ping reports backend health for the readiness probe.
	Ping(ctx context.Context) error
	Close() error
}

const dayLayout = "2006-01-02"

// applyDelta folds one update into a progress row. Both backends use
// it so they agree on XP clamping, level, monotonic-max bests, and the
// daily-streak day arithmetic.
func applyDelta(p *Progress, d ProgressDelta, now time.Time) {
	p.TotalXP += d.XPEarned
	if p.TotalXP < 0 {
		p.TotalXP = 0
	}
	p.Level = p.TotalXP / 100
	if d.BestStreak > p.BestStreak {
		p.BestStreak = d.BestStreak
	}
	if d.BestClassicStreak > p.BestClassicStreak {
		p.BestClassicStreak = d.BestClassicStreak
	}
	if d.BestSpeedRound > p.BestSpeedRound {
		p.BestSpeedRound = d.BestSpeedRound
	}
	if d.BestSurvival > p.BestSurvival {
		p.BestSurvival = d.BestSurvival
	}
	if d.BestNibbleSprint > p.BestNibbleSprint {
		p.BestNibbleSprint = d.BestNibbleSprint
	}
	if d.RecordPlayed {
		p.GamesPlayed++
		today := d.Today
		if today == "" {
			today = now.UTC().Format(dayLayout)
		}
		switch p.LastPlayedDate {
		case today:
			// Second game of the day; streak holds.
		case prevDay(today):
			p.DailyStreak++
			p.LastPlayedDate = today
		default:
			p.DailyStreak = 1
			p.LastPlayedDate = today
		}
	}
	p.UpdatedAt = now
}

func prevDay(day string) string {
	t, err := time.Parse(dayLayout, day)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, -1).Format(dayLayout)
}
