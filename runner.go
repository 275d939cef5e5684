package warden

import (
	"context"
	"sync"
)

// Runner represents a lifecycle-managed component such as the HTTP server.
// Start must not block.
type Runner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// BackgroundRunner runs fn in a goroutine between Start and Stop. fn must
// return once its context is cancelled.
type BackgroundRunner struct {
	name string
	fn   func(context.Context) error
	log  Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewBackgroundRunner(name string, fn func(context.Context) error, log Logger) *BackgroundRunner {
	if log == nil {
		log = NewNoopLogger()
	}
	return &BackgroundRunner{name: name, fn: fn, log: log}
}

func (r *BackgroundRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil || r.fn == nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		if err := r.fn(runCtx); err != nil {
			r.log.Error("background runner failed", "runner", r.name, "error", err)
		}
	}(r.done)
	return nil
}

func (r *BackgroundRunner) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
