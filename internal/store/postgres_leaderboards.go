package store

import "context"

// maxLeaderboardLimit caps limit before it reaches SQL.
const maxLeaderboardLimit = 100

const topScoresSQL = `
SELECT COALESCE(u.name, '') AS user_name, s.score, s.created_at
  FROM conversion_scores s
  LEFT JOIN users u ON u.id = s.user_id
 WHERE s.mode = $1 AND ($2 = '' OR s.conv = $2)
 ORDER BY s.score DESC, s.created_at ASC
 LIMIT $3`

const topDailyStreaksSQL = `
SELECT COALESCE(u.name, '') AS user_name, p.daily_streak AS score,
       p.updated_at AS created_at
  FROM conversion_progress p
  LEFT JOIN users u ON u.id = p.user_id
 WHERE p.daily_streak > 0
 ORDER BY p.daily_streak DESC, p.updated_at ASC
 LIMIT $1`

const topXPSQL = `
SELECT COALESCE(u.name, '') AS user_name, p.total_xp, p.level
  FROM conversion_progress p
  LEFT JOIN users u ON u.id = p.user_id
 WHERE p.total_xp > 0
 ORDER BY p.total_xp DESC, p.updated_at ASC
 LIMIT $1`

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxLeaderboardLimit {
		return maxLeaderboardLimit
	}
	return limit
}

func (s *PostgresStore) TopScores(ctx context.Context, mode, conv string, limit int) ([]LeaderboardRow, error) {
	var out []LeaderboardRow
	if err := s.db.SelectContext(ctx, &out, topScoresSQL, mode, conv, clampLimit(limit)); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) TopDailyStreaks(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	var out []LeaderboardRow
	if err := s.db.SelectContext(ctx, &out, topDailyStreaksSQL, clampLimit(limit)); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) TopXP(ctx context.Context, limit int) ([]XPRow, error) {
	var out []XPRow
	if err := s.db.SelectContext(ctx, &out, topXPSQL, clampLimit(limit)); err != nil {
		return nil, err
	}
	return out, nil
}
