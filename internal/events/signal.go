package events

import "context"

// Signal wakes the outbox dispatcher ahead of its next tick. It is a hint:
// the dispatcher polls regardless, so a lost notification only costs latency.
type Signal interface {
	Notify(ctx context.Context)
	C() <-chan struct{}
}

// LocalSignal coalesces notifications within one process.
type LocalSignal struct {
	ch chan struct{}
}

func NewLocalSignal() *LocalSignal {
	return &LocalSignal{ch: make(chan struct{}, 1)}
}

func (s *LocalSignal) Notify(context.Context) {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

func (s *LocalSignal) C() <-chan struct{} {
	return s.ch
}
