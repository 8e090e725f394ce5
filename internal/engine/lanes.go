package engine

import (
	"context"
	"sync"
)

// lanes serializes work per session. Waiters are admitted in arrival order.
type lanes struct {
	mu     sync.Mutex
	bySess map[string]*lane
}

type lane struct {
	waiters []chan struct{}
	busy    bool
	refs    int
}

func newLanes() *lanes {
	return &lanes{bySess: make(map[string]*lane)}
}

// acquire blocks until session's lane is free or ctx is done. The returned
// release function must be called exactly once on success.
func (l *lanes) acquire(ctx context.Context, session string) (func(), error) {
	l.mu.Lock()
	ln := l.bySess[session]
	if ln == nil {
		ln = &lane{}
		l.bySess[session] = ln
	}
	ln.refs++
	if !ln.busy {
		ln.busy = true
		l.mu.Unlock()
		return l.releaser(session, ln), nil
	}
	wait := make(chan struct{})
	ln.waiters = append(ln.waiters, wait)
	l.mu.Unlock()

	select {
	case <-wait:
		return l.releaser(session, ln), nil
	case <-ctx.Done():
		l.mu.Lock()
		defer l.mu.Unlock()
		select {
		case <-wait:
			// Handed the lane concurrently with cancellation; pass it on.
			l.handOff(session, ln)
		default:
			for i, w := range ln.waiters {
				if w == wait {
					ln.waiters = append(ln.waiters[:i], ln.waiters[i+1:]...)
					break
				}
			}
			l.drop(session, ln)
		}
		return nil, ctx.Err()
	}
}

func (l *lanes) releaser(session string, ln *lane) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.handOff(session, ln)
		})
	}
}

// handOff gives the lane to the next waiter or frees it. Caller holds l.mu.
func (l *lanes) handOff(session string, ln *lane) {
	if len(ln.waiters) > 0 {
		next := ln.waiters[0]
		ln.waiters = ln.waiters[1:]
		close(next)
	} else {
		ln.busy = false
	}
	l.drop(session, ln)
}

// drop releases one reference. Caller holds l.mu.
func (l *lanes) drop(session string, ln *lane) {
	ln.refs--
	if ln.refs == 0 {
		delete(l.bySess, session)
	}
}

// active returns the number of sessions with queued or running work.
func (l *lanes) active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.bySess)
}
