package events

import (
	"encoding/json"
	"time"

	"billing-lifecycle/internal/domain/event"
)

// Envelope is the wire shape relayed to Redis subscribers.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   int64           `json:"aggregate_id"`
	CorrelationID string          `json:"correlation_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

func NewEnvelope(e event.DomainEvent) Envelope {
	return Envelope{
		EventID:       e.ID.String(),
		EventType:     e.Type,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		CorrelationID: e.CorrelationID,
		OccurredAt:    e.OccurredAt,
		Payload:       e.Payload,
	}
}
