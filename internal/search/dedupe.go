package search

import (
	"context"
	"errors"
	"sync"
	"time"
)

type flight struct {
	done  chan struct{}
	parts []Part
	err   error
}

// group collapses concurrent same-key fetches onto a single flight. Flight
// state is derived entirely from registry membership: a key is in flight
// iff it is present in the map. Each flight runs under a wall-clock budget;
// on timeout the slot is freed before the error is returned, so a retry is
// never deduped against a dead call.
type group struct {
	mu      sync.Mutex
	flights map[string]*flight
	timeout time.Duration
}

func newGroup(timeout time.Duration) *group {
	return &group{flights: make(map[string]*flight), timeout: timeout}
}

// do runs fn for key, or joins the flight already running it. shared reports
// whether this caller joined rather than led. All callers of one flight see
// the same result or the same failure.
func (g *group) do(ctx context.Context, key string, fn func(context.Context) ([]Part, error)) (parts []Part, shared bool, err error) {
	g.mu.Lock()
	if f, ok := g.flights[key]; ok {
		g.mu.Unlock()
		select {
		case <-f.done:
			return f.parts, true, f.err
		case <-ctx.Done():
			return nil, true, ctx.Err()
		}
	}
	f := &flight{done: make(chan struct{})}
	g.flights[key] = f
	g.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type outcome struct {
		parts []Part
		err   error
	}
	ch := make(chan outcome, 1)
	go func() {
		p, e := fn(cctx)
		ch <- outcome{parts: p, err: e}
	}()

	var out outcome
	select {
	case out = <-ch:
	case <-cctx.Done():
		if errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			out = outcome{err: &TimeoutError{Key: key, Budget: g.timeout}}
		} else {
			out = outcome{err: ctx.Err()}
		}
	}

	g.mu.Lock()
	delete(g.flights, key)
	g.mu.Unlock()

	f.parts, f.err = out.parts, out.err
	close(f.done)
	return out.parts, false, out.err
}

// pending reports how many keys are currently in flight.
func (g *group) pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.flights)
}
