package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps everything in process memory. It backs development
// runs without a database and most tests.
type MemoryStore struct {
	mu           sync.RWMutex
	users        map[string]*User
	usersByEmail map[string]string
	sessions     map[string]*GameSession
	scores       map[string]*Score
	progress     map[string]*Progress
	achievements map[string]map[string]time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[string]*User),
		usersByEmail: make(map[string]string),
		sessions:     make(map[string]*GameSession),
		scores:       make(map[string]*Score),
		progress:     make(map[string]*Progress),
		achievements: make(map[string]map[string]time.Time),
	}
}

// PutUser seeds an account. Dev servers and tests use it; production
// accounts come from the shared database.
func (s *MemoryStore) PutUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	if u.Role == "" {
		u.Role = "user"
	}
	s.users[u.ID] = &u
	if u.Email != "" {
		s.usersByEmail[strings.ToLower(u.Email)] = u.ID
	}
}

func (s *MemoryStore) GetUser(ctx context.Context, userID string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *MemoryStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usersByEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *s.users[id]
	return &copied, nil
}

func (s *MemoryStore) InsertGameSession(ctx context.Context, sess GameSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := sess
	s.sessions[sess.SessionID] = &copied
	return nil
}

func (s *MemoryStore) ConsumeGameSession(ctx context.Context, sessionID, userID, mode, conv string) (ConsumeStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return ConsumeNotFound, nil
	}
	if sess.UserID != userID || sess.Mode != mode || sess.Conv != conv {
		return ConsumeMismatch, nil
	}
	if sess.UsedAt != nil {
		return ConsumeAlreadyUsed, nil
	}
	now := time.Now()
	if now.After(sess.ExpiresAt) {
		return ConsumeExpired, nil
	}
	sess.UsedAt = &now
	return ConsumeOK, nil
}

func (s *MemoryStore) InsertScore(ctx context.Context, sc Score) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.scores[sc.SessionID]; exists {
		return ErrDuplicateScore
	}
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = time.Now()
	}
	copied := sc
	s.scores[sc.SessionID] = &copied
	return nil
}

func (s *MemoryStore) GetProgress(ctx context.Context, userID string) (*Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.progress[userID]
	if !ok {
		return &Progress{UserID: userID}, nil
	}
	copied := *p
	return &copied, nil
}

func (s *MemoryStore) UpsertProgress(ctx context.Context, userID string, d ProgressDelta) (*Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.progress[userID]
	if !ok {
		p = &Progress{UserID: userID}
		s.progress[userID] = p
	}
	applyDelta(p, d, time.Now())
	copied := *p
	return &copied, nil
}

func (s *MemoryStore) InsertAchievementIfAbsent(ctx context.Context, userID, achievementID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byUser, ok := s.achievements[userID]
	if !ok {
		byUser = make(map[string]time.Time)
		s.achievements[userID] = byUser
	}
	if _, exists := byUser[achievementID]; exists {
		return false, nil
	}
	byUser[achievementID] = time.Now()
	return true, nil
}

func (s *MemoryStore) ListAchievements(ctx context.Context, userID string) ([]Achievement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byUser := s.achievements[userID]
	out := make([]Achievement, 0, len(byUser))
	for id, at := range byUser {
		out = append(out, Achievement{UserID: userID, AchievementID: id, UnlockedAt: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnlockedAt.Before(out[j].UnlockedAt) })
	return out, nil
}

func (s *MemoryStore) TopScores(ctx context.Context, mode, conv string, limit int) ([]LeaderboardRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rows []LeaderboardRow
	for _, sc := range s.scores {
		if sc.Mode != mode {
			continue
		}
		if conv != "" && sc.Conv != conv {
			continue
		}
		rows = append(rows, LeaderboardRow{
			UserName:  s.userNameLocked(sc.UserID),
			Score:     sc.Score,
			CreatedAt: sc.CreatedAt,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
	return clampRows(rows, clampLimit(limit)), nil
}

func (s *MemoryStore) TopDailyStreaks(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rows []LeaderboardRow
	for _, p := range s.progress {
		if p.DailyStreak <= 0 {
			continue
		}
		rows = append(rows, LeaderboardRow{
			UserName:  s.userNameLocked(p.UserID),
			Score:     p.DailyStreak,
			CreatedAt: p.UpdatedAt,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
	return clampRows(rows, clampLimit(limit)), nil
}

func (s *MemoryStore) TopXP(ctx context.Context, limit int) ([]XPRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type xpWithTime struct {
		row XPRow
		at  time.Time
	}
	var rows []xpWithTime
	for _, p := range s.progress {
		if p.TotalXP <= 0 {
			continue
		}
		rows = append(rows, xpWithTime{
			row: XPRow{UserName: s.userNameLocked(p.UserID), TotalXP: p.TotalXP, Level: p.Level},
			at:  p.UpdatedAt,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].row.TotalXP != rows[j].row.TotalXP {
			return rows[i].row.TotalXP > rows[j].row.TotalXP
		}
		return rows[i].at.Before(rows[j].at)
	})
	out := make([]XPRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.row)
	}
	if n := clampLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) userNameLocked(userID string) string {
	if u, ok := s.users[userID]; ok {
		return u.Name
	}
	return ""
}

func clampRows(rows []LeaderboardRow, limit int) []LeaderboardRow {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}
