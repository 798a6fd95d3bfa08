package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Sessions implements sessioncounter.Counter using PostgreSQL. The
// conditional upsert makes the last-slot race resolve to one winner.
type Sessions struct {
	store *Store
}

// NewSessions creates a session counter backed by the store's pool.
func NewSessions(store *Store) *Sessions {
	return &Sessions{store: store}
}

func (s *Sessions) Count(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.store.pool.QueryRow(ctx,
		`SELECT count FROM session_counters WHERE session_id = $1`, sessionID).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("read session counter %s: %w", sessionID, err)
	}
	return count, nil
}

func (s *Sessions) IncrementIfBelow(ctx context.Context, sessionID string, limit int) (int, bool, error) {
	var count int
	err := s.store.pool.QueryRow(ctx,
		`INSERT INTO session_counters (session_id, count, updated_at)
		 VALUES ($1, 1, now())
		 ON CONFLICT (session_id) DO UPDATE
		    SET count = session_counters.count + 1, updated_at = now()
		  WHERE session_counters.count < $2
		 RETURNING count`,
		sessionID, limit).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// The guarded upsert matched nothing: the budget is spent.
			cur, cerr := s.Count(ctx, sessionID)
			if cerr != nil {
				return 0, false, cerr
			}
			return cur, false, nil
		}
		return 0, false, fmt.Errorf("increment session counter %s: %w", sessionID, err)
	}
	if limit < 1 {
		// A limit below one admits nothing; undo the freshly inserted row.
		_, _ = s.store.pool.Exec(ctx,
			`UPDATE session_counters SET count = count - 1 WHERE session_id = $1 AND count > 0`, sessionID)
		return 0, false, nil
	}
	return count, true, nil
}

func (s *Sessions) Reset(ctx context.Context, sessionID string) error {
	_, err := s.store.pool.Exec(ctx,
		`DELETE FROM session_counters WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("reset session counter %s: %w", sessionID, err)
	}
	return nil
}
