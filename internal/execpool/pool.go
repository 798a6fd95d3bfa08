// Package execpool bounds concurrent tool work with a weighted semaphore.
package execpool

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool limits concurrent tool Execute/Rollback invocations. All tool work
// dispatched by the workflow engine goes through a shared Pool so a burst
// of approvals cannot exhaust downstream CRM connections.
type Pool struct {
	sem *semaphore.Weighted
}

// New creates a Pool that allows at most limit concurrent invocations.
func New(limit int) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(limit))}
}

// Run acquires a slot, runs fn, and releases the slot. Blocks if all
// slots are busy; returns ctx.Err() if the context is cancelled while
// waiting. A nil pool runs fn directly without concurrency control.
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	if p == nil || p.sem == nil {
		return fn()
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}
