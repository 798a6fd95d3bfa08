// Package sessioncounter defines the port for per-session action budgets.
package sessioncounter

import "context"

// Counter tracks authorized-action counts per session identifier.
// Budgets are per session, not per user: two sessions of one user have
// independent counts.
type Counter interface {
	// Count returns the current count for a session (0 if unseen).
	Count(ctx context.Context, sessionID string) (int, error)

	// IncrementIfBelow atomically increments the session's count when it
	// is below limit, returning the post-increment count and ok=true; when
	// the count is already at or above limit it is left unchanged and
	// ok=false. Two concurrent callers contending for the last slot must
	// never both succeed.
	IncrementIfBelow(ctx context.Context, sessionID string, limit int) (count int, ok bool, err error)

	// Reset clears a session's count.
	Reset(ctx context.Context, sessionID string) error
}
