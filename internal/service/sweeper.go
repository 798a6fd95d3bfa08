package service

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically flips lapsed pending actions to EXPIRED. Expiry is
// already enforced lazily on every read and decision; the sweeper only
// keeps the stored statuses from drifting on actions nobody looks at.
type Sweeper struct {
	approvals *ApprovalService
	interval  time.Duration
	logger    *slog.Logger
}

// NewSweeper creates a sweeper. A non-positive interval defaults to one
// minute.
func NewSweeper(approvals *ApprovalService, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{approvals: approvals, interval: interval, logger: logger}
}

// Run sweeps on a ticker until ctx is cancelled. Blocking; callers run it
// in a goroutine. Cancellation is the normal way to stop the sweeper and
// is not reported as an error.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.approvals.Sweep(ctx); err != nil {
				s.logger.Warn("sweep failed", "error", err)
			}
		}
	}
}
