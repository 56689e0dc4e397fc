package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const selectProgressSQL = `
SELECT user_id, total_xp, level, best_streak, best_classic_streak,
       daily_streak, last_played_date, best_speed_round, best_survival,
       best_nibble_sprint, games_played, updated_at
  FROM conversion_progress
 WHERE user_id = $1`

const selectProgressForUpdateSQL = selectProgressSQL + ` FOR UPDATE`

const upsertProgressSQL = `
INSERT INTO conversion_progress
    (user_id, total_xp, level, best_streak, best_classic_streak,
     daily_streak, last_played_date, best_speed_round, best_survival,
     best_nibble_sprint, games_played, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (user_id) DO UPDATE SET
    total_xp = EXCLUDED.total_xp,
    level = EXCLUDED.level,
    best_streak = EXCLUDED.best_streak,
    best_classic_streak = EXCLUDED.best_classic_streak,
    daily_streak = EXCLUDED.daily_streak,
    last_played_date = EXCLUDED.last_played_date,
    best_speed_round = EXCLUDED.best_speed_round,
    best_survival = EXCLUDED.best_survival,
    best_nibble_sprint = EXCLUDED.best_nibble_sprint,
    games_played = EXCLUDED.games_played,
    updated_at = EXCLUDED.updated_at`

func (s *PostgresStore) GetProgress(ctx context.Context, userID string) (*Progress, error) {
	var p Progress
	err := s.db.GetContext(ctx, &p, selectProgressSQL, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return &Progress{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertProgress folds the delta under a row lock so two finished
// games never lose each other's XP.
func (s *PostgresStore) UpsertProgress(ctx context.Context, userID string, d ProgressDelta) (*Progress, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin progress tx: %w", err)
	}
	defer tx.Rollback()

	p := Progress{UserID: userID}
	err = tx.GetContext(ctx, &p, selectProgressForUpdateSQL, userID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	applyDelta(&p, d, time.Now())

	_, err = tx.ExecContext(ctx, upsertProgressSQL,
		p.UserID, p.TotalXP, p.Level, p.BestStreak, p.BestClassicStreak,
		p.DailyStreak, p.LastPlayedDate, p.BestSpeedRound, p.BestSurvival,
		p.BestNibbleSprint, p.GamesPlayed, p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &p, nil
}
