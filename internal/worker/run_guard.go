package worker

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
)

// RunGuard admits one run at a time. A second Acquire while a run is active
// fails immediately with domain.ErrRunInProgress instead of queueing.
type RunGuard struct {
	name string

	mu     sync.Mutex
	held   bool
	since  time.Time
	cancel context.CancelFunc
}

// NewRunGuard names the guard for logs and status output.
func NewRunGuard(name string) *RunGuard {
	return &RunGuard{name: name}
}

// Name returns the guard name.
func (g *RunGuard) Name() string { return g.name }

// Acquire takes the guard. The returned context is cancelled by Cancel or by
// release; release must be called exactly once.
func (g *RunGuard) Acquire(parent context.Context, now time.Time) (context.Context, func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held {
		return nil, nil, domain.ErrRunInProgress
	}

	ctx, cancel := context.WithCancel(parent)
	g.held = true
	g.since = now
	g.cancel = cancel

	var once sync.Once
	release := func() {
		once.Do(func() {
			g.mu.Lock()
			g.held = false
			g.since = time.Time{}
			g.cancel = nil
			g.mu.Unlock()
			cancel()
		})
	}
	return ctx, release, nil
}

// Held reports whether a run is active and since when.
func (g *RunGuard) Held() (bool, time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held, g.since
}

// Cancel asks the active run, if any, to stop. The guard stays held until the
// run releases it.
func (g *RunGuard) Cancel() {
	g.mu.Lock()
	cancel := g.cancel
	g.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
