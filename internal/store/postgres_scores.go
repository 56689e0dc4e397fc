package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const insertScoreSQL = `
INSERT INTO conversion_scores
    (id, user_id, mode, conv, score, metadata, session_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// uniqueViolation is the postgres error code for a unique constraint.
const uniqueViolation = "23505"

func (s *PostgresStore) InsertScore(ctx context.Context, sc Score) error {
	meta := sc.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode score metadata: %w", err)
	}
	createdAt := sc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx, insertScoreSQL,
		sc.ID, sc.UserID, sc.Mode, sc.Conv, sc.Score, raw, sc.SessionID, createdAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrDuplicateScore
	}
	return err
}
