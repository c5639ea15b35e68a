package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DomainEvent is the immutable envelope for everything the core announces.
// Events are append-only: once written to the outbox they are never changed.
type DomainEvent struct {
	ID            uuid.UUID       `json:"id"`
	Type          string          `json:"type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   int64           `json:"aggregate_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id"`
	Payload       json.RawMessage `json:"payload"`
}

var ErrInvalidEvent = errors.New("invalid event")

// New builds an event with a fresh id. A blank correlationID gets a new one so
// every event can be traced back to a business transaction.
func New(eventType, aggregateType string, aggregateID int64, correlationID string, occurredAt time.Time, payload any) (DomainEvent, error) {
	if eventType == "" || aggregateType == "" {
		return DomainEvent{}, fmt.Errorf("%w: type and aggregate type are required", ErrInvalidEvent)
	}
	data := []byte("{}")
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return DomainEvent{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
		}
		data = raw
	}
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return DomainEvent{
		ID:            uuid.New(),
		Type:          eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OccurredAt:    occurredAt.UTC(),
		CorrelationID: correlationID,
		Payload:       data,
	}, nil
}

// Decode unmarshals the payload into v.
func (e DomainEvent) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: %s has an empty payload", ErrInvalidEvent, e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// StreamKey identifies the aggregate stream whose order must be preserved.
func (e DomainEvent) StreamKey() string {
	return fmt.Sprintf("%s:%d", e.AggregateType, e.AggregateID)
}
