// Package progress is the leaderboard and progress service: it turns
// finished games and score submissions into persisted rows, folds XP,
// streaks and achievements, and serves the leaderboard reads.
package progress

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"convtrainer/internal/game"
	"convtrainer/internal/metrics"
	"convtrainer/internal/store"
)

const (
	// leaderboardTTL is how stale a cached board may be.
	leaderboardTTL = 30 * time.Second

	// persistWindow bounds the retry budget for persisting one finished
	// game; after that the failure is logged and the result is lost to
	// the database (never to the players, who already saw the final
	// leaderboard).
	persistWindow = 30 * time.Second

	// xpPerPoint and xpPerStreak set the XP formula for a finished
	// game: difficulty routes into XP, not score.
	xpPerPoint  = 10
	xpPerStreak = 2
)

// Service implements game.ResultHandler for room results and backs the
// conversion REST endpoints.
type Service struct {
	store store.Store
	cache *gocache.Cache
	log   *logrus.Entry
	wg    sync.WaitGroup
}

// New builds the service over a store.
func New(st store.Store) *Service {
	return &Service{
		store: st,
		cache: gocache.New(leaderboardTTL, 2*leaderboardTTL),
		log:   logrus.WithField("component", "progress"),
	}
}

// Close waits for in-flight background persistence to finish.
func (s *Service) Close() {
	s.wg.Wait()
}

// HandleGameResult persists a finished room's outcome off the room
// writer goroutine. Guests are skipped; their standings lived and died
// with the room.
func (s *Service) HandleGameResult(res game.GameResult) {
	metrics.GamesEnded.WithLabelValues(string(res.Mode), string(res.Reason)).Inc()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.persistResult(res)
	}()
}

func (s *Service) persistResult(res game.GameResult) {
	for _, e := range res.Entries {
		if e.UserID == "" {
			continue
		}
		if err := s.retryPersist(res, e); err != nil {
			metrics.ScoresPersisted.WithLabelValues("failed").Inc()
			s.log.WithError(err).WithFields(logrus.Fields{
				"room": res.RoomID,
				"user": e.UserID,
			}).Error("giving up persisting game result")
		} else {
			metrics.ScoresPersisted.WithLabelValues("ok").Inc()
		}
	}
}

// retryPersist runs persistEntry with exponential backoff inside the
// persistWindow.
func (s *Service) retryPersist(res game.GameResult, e game.ResultEntry) error {
	deadline := time.Now().Add(persistWindow)
	backoff := time.Second
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := s.persistEntry(ctx, res, e)
		cancel()
		if err == nil {
			return nil
		}
		if time.Now().Add(backoff).After(deadline) {
			return err
		}
		metrics.StoreRetries.Inc()
		s.log.WithError(err).WithField("backoff", backoff).Warn("store write failed, retrying")
		time.Sleep(backoff)
		backoff *= 2
	}
}

// persistEntry writes one player's score row, folds their progress, and
// checks unlocks. The score row is keyed by a server-minted, already
// consumed session id so the one-score-per-session invariant holds for
// room results too.
func (s *Service) persistEntry(ctx context.Context, res game.GameResult, e game.ResultEntry) error {
	now := time.Now().UTC()
	sessionID := newID()
	used := now
	err := s.store.InsertGameSession(ctx, store.GameSession{
		SessionID: sessionID,
		UserID:    e.UserID,
		RoomID:    res.RoomID,
		Mode:      string(res.Mode),
		Conv:      string(res.Conv),
		IssuedAt:  now,
		ExpiresAt: now,
		UsedAt:    &used,
	})
	if err != nil {
		return fmt.Errorf("mint result session: %w", err)
	}

	err = s.store.InsertScore(ctx, store.Score{
		ID:        newID(),
		UserID:    e.UserID,
		Mode:      string(res.Mode),
		Conv:      string(res.Conv),
		Score:     e.Score,
		SessionID: sessionID,
		Metadata: map[string]any{
			"roomId": res.RoomID,
			"rank":   e.Rank,
			"reason": string(res.Reason),
		},
		CreatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("insert score: %w", err)
	}

	p, err := s.store.UpsertProgress(ctx, e.UserID, resultDelta(res.Mode, e))
	if err != nil {
		return fmt.Errorf("fold progress: %w", err)
	}

	ids := append(earnedFromProgress(p), earnedFromResult(res.Mode, e)...)
	for _, id := range ids {
		if _, err := s.store.InsertAchievementIfAbsent(ctx, e.UserID, id); err != nil {
			return fmt.Errorf("unlock %s: %w", id, err)
		}
	}
	return nil
}

// resultDelta maps a finished game onto the progress row: XP from score
// and streak, the played-today mark, and the mode's best-score slot.
func resultDelta(mode game.Mode, e game.ResultEntry) store.ProgressDelta {
	d := store.ProgressDelta{
		XPEarned:     xpPerPoint*e.Score + xpPerStreak*e.BestStreak,
		BestStreak:   e.BestStreak,
		RecordPlayed: true,
	}
	switch mode {
	case game.ModeClassic, game.ModeStreak:
		d.BestClassicStreak = e.BestStreak
	case game.ModeSpeedRound:
		d.BestSpeedRound = e.Score
	case game.ModeSurvival:
		d.BestSurvival = e.Score
	case game.ModeNibbleSprint:
		d.BestNibbleSprint = e.Score
	}
	return d
}

// SubmitScoreInput is a client-driven score submission backed by a
// session token.
type SubmitScoreInput struct {
	SessionID string
	UserID    string
	Mode      string
	Conv      string
	Score     int
	Metadata  map[string]any
}

// SubmitScore consumes the session token and writes the score. The
// token is single-use; a replay surfaces ErrSessionUsed.
func (s *Service) SubmitScore(ctx context.Context, in SubmitScoreInput) error {
	status, err := s.store.ConsumeGameSession(ctx, in.SessionID, in.UserID, in.Mode, in.Conv)
	if err != nil {
		return fmt.Errorf("consume session: %w", err)
	}
	switch status {
	case store.ConsumeOK:
	case store.ConsumeNotFound:
		return ErrSessionNotFound
	case store.ConsumeMismatch:
		return ErrSessionMismatch
	case store.ConsumeExpired:
		return ErrSessionExpired
	default:
		return ErrSessionUsed
	}

	err = s.store.InsertScore(ctx, store.Score{
		ID:        newID(),
		UserID:    in.UserID,
		Mode:      in.Mode,
		Conv:      in.Conv,
		Score:     in.Score,
		Metadata:  in.Metadata,
		SessionID: in.SessionID,
		CreatedAt: time.Now().UTC(),
	})
	if errors.Is(err, store.ErrDuplicateScore) {
		return ErrSessionUsed
	}
	if err != nil {
		return fmt.Errorf("insert score: %w", err)
	}
	metrics.ScoresPersisted.WithLabelValues("ok").Inc()

	// Best-in-mode fields fold with monotonic max; XP stays with the
	// explicit progress endpoint so a score cannot double-award it.
	d := store.ProgressDelta{}
	switch game.Mode(in.Mode) {
	case game.ModeSpeedRound:
		d.BestSpeedRound = in.Score
	case game.ModeSurvival:
		d.BestSurvival = in.Score
	case game.ModeNibbleSprint:
		d.BestNibbleSprint = in.Score
	}
	if d != (store.ProgressDelta{}) {
		if _, err := s.store.UpsertProgress(ctx, in.UserID, d); err != nil {
			return fmt.Errorf("fold progress: %w", err)
		}
	}
	return nil
}

// UpdateInput carries a client progress update.
type UpdateInput struct {
	XPEarned          int
	BestStreak        int
	BestClassicStreak int
	RecordPlayed      bool
}

// UpdateProgress folds a delta and returns the new row, checking
// aggregate achievements on the way out.
func (s *Service) UpdateProgress(ctx context.Context, userID string, in UpdateInput) (*store.Progress, error) {
	p, err := s.store.UpsertProgress(ctx, userID, store.ProgressDelta{
		XPEarned:          in.XPEarned,
		BestStreak:        in.BestStreak,
		BestClassicStreak: in.BestClassicStreak,
		RecordPlayed:      in.RecordPlayed,
	})
	if err != nil {
		return nil, err
	}
	for _, id := range earnedFromProgress(p) {
		if _, err := s.store.InsertAchievementIfAbsent(ctx, userID, id); err != nil {
			s.log.WithError(err).WithField("achievement", id).Warn("failed to record unlock")
		}
	}
	return p, nil
}

// GetProgress reads one user's aggregate row.
func (s *Service) GetProgress(ctx context.Context, userID string) (*store.Progress, error) {
	return s.store.GetProgress(ctx, userID)
}

// Unlock records an achievement for the user; reports whether this call
// created it.
func (s *Service) Unlock(ctx context.Context, userID, achievementID string) (bool, error) {
	if !KnownAchievement(achievementID) {
		return false, ErrUnknownAchievement
	}
	return s.store.InsertAchievementIfAbsent(ctx, userID, achievementID)
}

// Achievements lists a user's unlocks, oldest first.
func (s *Service) Achievements(ctx context.Context, userID string) ([]store.Achievement, error) {
	return s.store.ListAchievements(ctx, userID)
}

// Leaderboard serves the top scores for a mode (optionally one
// conversion kind), cached briefly since every lobby polls it.
func (s *Service) Leaderboard(ctx context.Context, mode, conv string, limit int) ([]store.LeaderboardRow, error) {
	key := fmt.Sprintf("scores/%s/%s/%d", mode, conv, limit)
	if rows, ok := s.cache.Get(key); ok {
		return rows.([]store.LeaderboardRow), nil
	}
	rows, err := s.store.TopScores(ctx, mode, conv, limit)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, rows)
	return rows, nil
}

// DailyStreakLeaderboard ranks users by their current daily streak.
func (s *Service) DailyStreakLeaderboard(ctx context.Context, limit int) ([]store.LeaderboardRow, error) {
	key := fmt.Sprintf("daily/%d", limit)
	if rows, ok := s.cache.Get(key); ok {
		return rows.([]store.LeaderboardRow), nil
	}
	rows, err := s.store.TopDailyStreaks(ctx, limit)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, rows)
	return rows, nil
}

// XPLeaderboard ranks users by lifetime XP.
func (s *Service) XPLeaderboard(ctx context.Context, limit int) ([]store.XPRow, error) {
	key := fmt.Sprintf("xp/%d", limit)
	if rows, ok := s.cache.Get(key); ok {
		return rows.([]store.XPRow), nil
	}
	rows, err := s.store.TopXP(ctx, limit)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, rows)
	return rows, nil
}

func newID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
