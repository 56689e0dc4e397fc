package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const insertGameSessionSQL = `
INSERT INTO conversion_game_sessions
    (session_id, user_id, room_id, mode, conv, issued_at, expires_at, used_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// consumeGameSessionSQL is the atomic gate: at most one submission can
// flip used_at, whatever races.
const consumeGameSessionSQL = `
UPDATE conversion_game_sessions
   SET used_at = NOW()
 WHERE session_id = $1 AND user_id = $2 AND mode = $3 AND conv = $4
   AND used_at IS NULL AND expires_at > NOW()`

const diagnoseGameSessionSQL = `
SELECT session_id, user_id, room_id, mode, conv, issued_at, expires_at, used_at
  FROM conversion_game_sessions
 WHERE session_id = $1`

func (s *PostgresStore) InsertGameSession(ctx context.Context, sess GameSession) error {
	_, err := s.db.ExecContext(ctx, insertGameSessionSQL,
		sess.SessionID, sess.UserID, sess.RoomID, sess.Mode, sess.Conv,
		sess.IssuedAt, sess.ExpiresAt, sess.UsedAt)
	return err
}

func (s *PostgresStore) ConsumeGameSession(ctx context.Context, sessionID, userID, mode, conv string) (ConsumeStatus, error) {
	res, err := s.db.ExecContext(ctx, consumeGameSessionSQL, sessionID, userID, mode, conv)
	if err != nil {
		return "", err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if n == 1 {
		return ConsumeOK, nil
	}

	// The update matched nothing; read the row to say why.
	var sess GameSession
	err = s.db.GetContext(ctx, &sess, diagnoseGameSessionSQL, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return ConsumeNotFound, nil
	}
	if err != nil {
		return "", err
	}
	switch {
	case sess.UserID != userID || sess.Mode != mode || sess.Conv != conv:
		return ConsumeMismatch, nil
	case sess.UsedAt != nil:
		return ConsumeAlreadyUsed, nil
	case time.Now().After(sess.ExpiresAt):
		return ConsumeExpired, nil
	default:
		// Consumed by a racer between our update and this read.
		return ConsumeAlreadyUsed, nil
	}
}
