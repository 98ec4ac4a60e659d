package jobs

import (
	"context"
	"time"
)

// IdleEvicter drops sessions idle longer than the given duration.
type IdleEvicter interface {
	EvictIdle(maxIdle time.Duration) int
}

// SessionReaper sweeps idle sessions out of the conversation store.
type SessionReaper struct {
	store   IdleEvicter
	maxIdle time.Duration
}

// NewSessionReaper creates a new SessionReaper instance.
func NewSessionReaper(store IdleEvicter, maxIdle time.Duration) *SessionReaper {
	return &SessionReaper{store: store, maxIdle: maxIdle}
}

// Run implements the Task interface.
func (r *SessionReaper) Run(ctx context.Context) error {
	r.store.EvictIdle(r.maxIdle)
	return nil
}
