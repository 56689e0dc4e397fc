package store

import "context"

const insertAchievementSQL = `
INSERT INTO conversion_achievements (user_id, achievement_id)
VALUES ($1, $2)
ON CONFLICT (user_id, achievement_id) DO NOTHING`

const listAchievementsSQL = `
SELECT user_id, achievement_id, unlocked_at
  FROM conversion_achievements
 WHERE user_id = $1
 ORDER BY unlocked_at ASC`

func (s *PostgresStore) InsertAchievementIfAbsent(ctx context.Context, userID, achievementID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, insertAchievementSQL, userID, achievementID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *PostgresStore) ListAchievements(ctx context.Context, userID string) ([]Achievement, error) {
	var out []Achievement
	if err := s.db.SelectContext(ctx, &out, listAchievementsSQL, userID); err != nil {
		return nil, err
	}
	return out, nil
}
