package store

import (
	"context"
	"sync"
)

type readiness struct {
	once sync.Once
	ch   chan struct{}
}

func newReadiness() *readiness {
	return &readiness{ch: make(chan struct{})}
}

func (r *readiness) markReady() {
	r.once.Do(func() { close(r.ch) })
}

func (r *readiness) isReady() bool {
	select {
	case <-r.ch:
		return true
	default:
		return false
	}
}

func (r *readiness) wait(ctx context.Context) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-r.ch:
		return true
	case <-ctx.Done():
		// Readiness wins when both are done.
		return r.isReady()
	}
}
