package services

import (
	"context"
	"time"

	"billing-lifecycle/internal/domain/event"
	"billing-lifecycle/internal/events"
	"billing-lifecycle/internal/repository"
	"billing-lifecycle/pkg/logger"
)

// EventPublisher writes domain events to the outbox inside the caller's
// transaction and wakes the dispatcher once that transaction committed.
type EventPublisher struct {
	signal events.Signal
	now    func() time.Time
}

func NewEventPublisher(signal events.Signal, now func() time.Time) *EventPublisher {
	return &EventPublisher{signal: signal, now: now}
}

// Emit builds one event, stamped with the correlation id carried by ctx, and
// appends it through repos.
func (p *EventPublisher) Emit(ctx context.Context, repos repository.Repositories, eventType, aggregateType string, aggregateID int64, payload any) error {
	correlationID, _ := logger.CorrelationID(ctx)
	e, err := event.New(eventType, aggregateType, aggregateID, correlationID, p.now(), payload)
	if err != nil {
		return err
	}
	return repos.Outbox.Append(ctx, e)
}

// Committed nudges the dispatcher. Call it after the transaction commits.
func (p *EventPublisher) Committed(ctx context.Context) {
	if p.signal != nil {
		p.signal.Notify(ctx)
	}
}
