package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexocrm/agentgate/internal/domain"
	"github.com/nexocrm/agentgate/internal/domain/action"
)

// Store implements actionstore.Store using PostgreSQL. Status transitions
// and rollback claims are single UPDATE statements guarded by the current
// value, so concurrent callers resolve to one winner without explicit
// locking.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const pendingColumns = `id, tool_name, action_type, entity_type, input, preview, status, created_by, session_id, created_at, expires_at`

func (s *Store) CreatePending(ctx context.Context, p *action.Pending) error {
	inputJSON, err := json.Marshal(p.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	var previewJSON []byte
	if p.Preview != nil {
		previewJSON, err = json.Marshal(p.Preview)
		if err != nil {
			return fmt.Errorf("marshal preview: %w", err)
		}
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO pending_actions (id, tool_name, action_type, entity_type, input, preview, status, created_by, session_id, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.ToolName, p.ActionType, p.EntityType, inputJSON, previewJSON,
		p.Status, p.CreatedBy, p.SessionID, p.CreatedAt, p.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create pending action %s: %w", p.ID, err)
	}
	return nil
}

func (s *Store) GetPending(ctx context.Context, id string) (*action.Pending, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pendingColumns+` FROM pending_actions WHERE id = $1`, id)

	p, err := scanPending(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get pending action %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get pending action %s: %w", id, err)
	}
	return &p, nil
}

func (s *Store) ListByStatus(ctx context.Context, status action.Status) ([]action.Pending, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pendingColumns+` FROM pending_actions WHERE status = $1 ORDER BY created_at DESC`,
		status)
	if err != nil {
		return nil, fmt.Errorf("list actions by status %s: %w", status, err)
	}
	defer rows.Close()

	var out []action.Pending
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) TransitionPending(ctx context.Context, id string, from, to action.Status) (*action.Pending, error) {
	row := s.pool.QueryRow(
		ctx,
		`UPDATE pending_actions SET status = $3
		 WHERE id = $1 AND status = $2
		 RETURNING `+pendingColumns,
		id, from, to)

	p, err := scanPending(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either missing or already past `from`.
			var exists bool
			if qerr := s.pool.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM pending_actions WHERE id = $1)`, id).Scan(&exists); qerr != nil {
				return nil, fmt.Errorf("transition action %s: %w", id, qerr)
			}
			if !exists {
				return nil, fmt.Errorf("transition action %s: %w", id, domain.ErrNotFound)
			}
			return nil, fmt.Errorf("transition action %s from %s: %w", id, from, domain.ErrConflict)
		}
		return nil, fmt.Errorf("transition action %s: %w", id, err)
	}
	return &p, nil
}

func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pending_actions SET status = $1
		 WHERE status = $2 AND expires_at < $3`,
		action.StatusExpired, action.StatusPending, now)
	if err != nil {
		return 0, fmt.Errorf("sweep expired actions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) CreateExecuted(ctx context.Context, e *action.Executed) error {
	decisionJSON, err := json.Marshal(e.Decision)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}
	resultJSON, err := marshalNullable(e.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO executed_actions (action_id, decision, executed_at, result, execution_error, rollback_available, rollback_token)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, decisionJSON, e.ExecutedAt, resultJSON, e.ExecutionError,
		e.RollbackAvailable, nullIfEmpty(e.RollbackToken))
	if err != nil {
		return fmt.Errorf("create execution record %s: %w", e.ID, err)
	}
	return nil
}

const executedQuery = `
	SELECT p.id, p.tool_name, p.action_type, p.entity_type, p.input, p.preview, p.status, p.created_by, p.session_id, p.created_at, p.expires_at,
	       e.decision, e.executed_at, e.result, e.execution_error, e.rollback_available, e.rollback_token
	  FROM executed_actions e
	  JOIN pending_actions p ON p.id = e.action_id`

func (s *Store) GetExecuted(ctx context.Context, actionID string) (*action.Executed, error) {
	row := s.pool.QueryRow(ctx, executedQuery+` WHERE e.action_id = $1`, actionID)
	e, err := scanExecuted(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get execution record %s: %w", actionID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get execution record %s: %w", actionID, err)
	}
	return &e, nil
}

func (s *Store) GetExecutedByToken(ctx context.Context, token string) (*action.Executed, error) {
	row := s.pool.QueryRow(ctx, executedQuery+` WHERE e.rollback_token = $1`, token)
	e, err := scanExecuted(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("resolve rollback token: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("resolve rollback token: %w", err)
	}
	return &e, nil
}

func (s *Store) DisableRollback(ctx context.Context, actionID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE executed_actions SET rollback_available = FALSE
		 WHERE action_id = $1 AND rollback_available = TRUE`,
		actionID)
	if err != nil {
		return fmt.Errorf("disable rollback for %s: %w", actionID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if qerr := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM executed_actions WHERE action_id = $1)`, actionID).Scan(&exists); qerr != nil {
			return fmt.Errorf("disable rollback for %s: %w", actionID, qerr)
		}
		if !exists {
			return fmt.Errorf("disable rollback for %s: %w", actionID, domain.ErrNotFound)
		}
		return fmt.Errorf("disable rollback for %s: %w", actionID, domain.ErrConflict)
	}
	return nil
}

func (s *Store) Stats(ctx context.Context, userID string) (*action.Stats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM pending_actions
		 WHERE ($1 = '' OR created_by = $1)
		 GROUP BY status`, userID)
	if err != nil {
		return nil, fmt.Errorf("action stats: %w", err)
	}
	defer rows.Close()

	var st action.Stats
	for rows.Next() {
		var status action.Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("action stats: %w", err)
		}
		switch status {
		case action.StatusPending:
			st.Pending = n
		case action.StatusApproved:
			st.Approved = n
		case action.StatusRejected:
			st.Rejected = n
		case action.StatusExpired:
			st.Expired = n
		}
	}
	return &st, rows.Err()
}

func scanPending(row scannable) (action.Pending, error) {
	var p action.Pending
	var inputJSON, previewJSON []byte

	err := row.Scan(&p.ID, &p.ToolName, &p.ActionType, &p.EntityType, &inputJSON, &previewJSON,
		&p.Status, &p.CreatedBy, &p.SessionID, &p.CreatedAt, &p.ExpiresAt)
	if err != nil {
		return action.Pending{}, err
	}

	if len(inputJSON) > 0 {
		if err := json.Unmarshal(inputJSON, &p.Input); err != nil {
			return action.Pending{}, fmt.Errorf("unmarshal input: %w", err)
		}
	}
	if len(previewJSON) > 0 {
		if err := json.Unmarshal(previewJSON, &p.Preview); err != nil {
			return action.Pending{}, fmt.Errorf("unmarshal preview: %w", err)
		}
	}
	return p, nil
}

func scanExecuted(row scannable) (action.Executed, error) {
	var e action.Executed
	var inputJSON, previewJSON, decisionJSON, resultJSON []byte
	var token *string

	err := row.Scan(&e.ID, &e.ToolName, &e.ActionType, &e.EntityType, &inputJSON, &previewJSON,
		&e.Status, &e.CreatedBy, &e.SessionID, &e.CreatedAt, &e.ExpiresAt,
		&decisionJSON, &e.ExecutedAt, &resultJSON, &e.ExecutionError, &e.RollbackAvailable, &token)
	if err != nil {
		return action.Executed{}, err
	}

	if len(inputJSON) > 0 {
		if err := json.Unmarshal(inputJSON, &e.Input); err != nil {
			return action.Executed{}, fmt.Errorf("unmarshal input: %w", err)
		}
	}
	if len(previewJSON) > 0 {
		if err := json.Unmarshal(previewJSON, &e.Preview); err != nil {
			return action.Executed{}, fmt.Errorf("unmarshal preview: %w", err)
		}
	}
	if err := json.Unmarshal(decisionJSON, &e.Decision); err != nil {
		return action.Executed{}, fmt.Errorf("unmarshal decision: %w", err)
	}
	if len(resultJSON) > 0 {
		if err := json.Unmarshal(resultJSON, &e.Result); err != nil {
			return action.Executed{}, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	if token != nil {
		e.RollbackToken = *token
	}
	return e, nil
}

// scannable abstracts pgx.Row and pgx.Rows for shared scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

// nullIfEmpty returns nil for empty strings (for nullable columns).
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// marshalNullable marshals v, mapping nil to SQL NULL.
func marshalNullable(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
