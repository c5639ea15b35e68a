package redis

import (
	"context"
	"time"

	"go.uber.org/zap"

	"billing-lifecycle/internal/events"
)

// OutboxSignal fans an outbox wake-up out to every process sharing the Redis
// instance. Local notifications are delivered even when Redis is down.
type OutboxSignal struct {
	local      *events.LocalSignal
	publisher  *Publisher
	subscriber *Subscriber
	log        *zap.Logger
}

func NewOutboxSignal(publisher *Publisher, subscriber *Subscriber, log *zap.Logger) *OutboxSignal {
	if log == nil {
		log = zap.NewNop()
	}
	return &OutboxSignal{
		local:      events.NewLocalSignal(),
		publisher:  publisher,
		subscriber: subscriber,
		log:        log,
	}
}

func (s *OutboxSignal) Notify(ctx context.Context) {
	s.local.Notify(ctx)
	if err := s.publisher.Publish(ctx, events.ChannelSystemOutbox, []byte("1")); err != nil {
		s.log.Debug("Outbox signal publish failed", zap.Error(err))
	}
}

func (s *OutboxSignal) C() <-chan struct{} {
	return s.local.C()
}

// Listen forwards remote wake-ups into the local channel until ctx ends,
// resubscribing after connection errors.
func (s *OutboxSignal) Listen(ctx context.Context, ready chan<- struct{}) {
	for {
		err := s.subscriber.Subscribe(ctx, []string{events.ChannelSystemOutbox}, ready, func(string, []byte) {
			s.local.Notify(ctx)
		})
		ready = nil
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.log.Warn("Outbox signal subscription dropped", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}
