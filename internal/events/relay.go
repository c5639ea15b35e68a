package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"billing-lifecycle/internal/domain/event"
)

// Publisher is satisfied by redis.Publisher.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// ChannelResolver determines which channels an event is relayed to.
type ChannelResolver interface {
	ResolveChannels(e event.DomainEvent) []string
}

// AggregateChannelResolver routes an event to its aggregate channel and, when
// the payload names a customer, to the customer channel too.
type AggregateChannelResolver struct{}

func (AggregateChannelResolver) ResolveChannels(e event.DomainEvent) []string {
	channels := []string{fmt.Sprintf("channel:%s:%d", e.AggregateType, e.AggregateID)}
	var owner struct {
		CustomerID int64 `json:"customer_id"`
	}
	if json.Unmarshal(e.Payload, &owner) == nil && owner.CustomerID > 0 {
		channels = append(channels, fmt.Sprintf("%s%d", ChannelPrefixCustomer, owner.CustomerID))
	}
	return channels
}

// Relay republishes outbox events for external subscribers. Subscribers get at
// least once delivery and must dedupe on EventID.
type Relay struct {
	publisher Publisher
	resolver  ChannelResolver
}

func NewRelay(publisher Publisher, resolver ChannelResolver) *Relay {
	if resolver == nil {
		resolver = AggregateChannelResolver{}
	}
	return &Relay{publisher: publisher, resolver: resolver}
}

func (r *Relay) Handle(ctx context.Context, e event.DomainEvent) error {
	data, err := json.Marshal(NewEnvelope(e))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	var errs []error
	for _, channel := range r.resolver.ResolveChannels(e) {
		if err := r.publisher.Publish(ctx, channel, data); err != nil {
			errs = append(errs, fmt.Errorf("publish to %s: %w", channel, err))
		}
	}
	return errors.Join(errs...)
}
