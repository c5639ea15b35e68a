package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

type Subscriber struct {
	client *redis.Client
}

func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe blocks delivering messages matching patterns until ctx ends.
// ready, when non-nil, is closed once the subscription is confirmed.
func (s *Subscriber) Subscribe(ctx context.Context, patterns []string, ready chan<- struct{}, handler func(channel string, payload []byte)) error {
	sub := s.client.PSubscribe(ctx, patterns...)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}

	// The pub/sub connection only uses ctx as a read deadline, so
	// cancellation is watched next to the message channel.
	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return redis.ErrClosed
			}
			handler(msg.Channel, []byte(msg.Payload))
		}
	}
}
