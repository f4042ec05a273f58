// Package gate provides the single-permit admission gate that serializes
// access to the generation engine.
package gate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrReleased is returned when a permit is released a second time.
var ErrReleased = errors.New("gate: permit already released")

// Gate admits at most one holder at a time. Waiters suspend on the
// underlying semaphore instead of polling. The order in which waiters are
// admitted is not part of the contract.
type Gate struct {
	sem     *semaphore.Weighted
	held    atomic.Bool
	waiting atomic.Int64
}

// New creates a free Gate.
func New() *Gate {
	return &Gate{sem: semaphore.NewWeighted(1)}
}

// TryAcquire takes the permit without blocking. It reports false if the
// gate is already held.
func (g *Gate) TryAcquire() (*Permit, bool) {
	if !g.sem.TryAcquire(1) {
		return nil, false
	}
	return g.grant(), true
}

// Acquire blocks until the permit is granted or ctx is done. On ctx
// cancellation the gate is never held by the caller and ctx.Err() is
// returned.
func (g *Gate) Acquire(ctx context.Context) (*Permit, error) {
	g.waiting.Add(1)
	defer g.waiting.Add(-1)

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return g.grant(), nil
}

// Held reports whether a permit is currently outstanding.
func (g *Gate) Held() bool {
	return g.held.Load()
}

// Waiting reports how many callers are blocked in Acquire.
func (g *Gate) Waiting() int64 {
	return g.waiting.Load()
}

func (g *Gate) grant() *Permit {
	g.held.Store(true)
	return &Permit{gate: g}
}

// Permit is proof of holding the gate. It must be released exactly once;
// later releases are no-ops that return ErrReleased.
type Permit struct {
	gate *Gate
	once sync.Once
}

// Release frees the gate.
func (p *Permit) Release() error {
	released := false
	p.once.Do(func() {
		p.gate.held.Store(false)
		p.gate.sem.Release(1)
		released = true
	})
	if !released {
		return ErrReleased
	}
	return nil
}
