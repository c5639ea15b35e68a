package outbox

import (
	"context"
	"sync"
)

// Runner owns the dispatcher goroutine for the lifetime of the process.
type Runner struct {
	dispatcher *Dispatcher
	mu         sync.Mutex
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewRunner(dispatcher *Dispatcher) *Runner {
	return &Runner{dispatcher: dispatcher}
}

func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		_ = r.dispatcher.Run(ctx)
	}(r.done)
}

// Stop cancels the dispatcher and waits for the in-flight batch, or until ctx
// expires.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if done == nil {
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
