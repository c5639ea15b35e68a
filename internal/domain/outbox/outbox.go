package outbox

import (
	"time"

	"billing-lifecycle/internal/domain/event"
)

// Record is a persisted event plus its dispatch bookkeeping.
// ProcessedAt == nil means the record is still pending.
type Record struct {
	Seq           int64
	Event         event.DomainEvent
	CreatedAt     time.Time
	ProcessedAt   *time.Time
	RetryCount    int
	NextAttemptAt time.Time
	LastError     string
}

func (r Record) Pending() bool {
	return r.ProcessedAt == nil
}
