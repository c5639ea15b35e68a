// Package services holds the workflow orchestrators. Every entry point loads
// aggregate state, asks the state machine whether the change is legal, writes
// the mutation and its events in one transaction and reports a
// commands.Result.
package services

import (
	"time"

	"go.uber.org/zap"

	"billing-lifecycle/internal/events"
	"billing-lifecycle/internal/metrics"
	"billing-lifecycle/internal/repository"
	billing_errors "billing-lifecycle/pkg/errors"
)

// Deps are the collaborators every orchestrator shares.
type Deps struct {
	Store   *repository.Store
	Events  *EventPublisher
	Locks   *AggregateLocks
	Log     *zap.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// NewDeps fills in defaults for the optional collaborators.
func NewDeps(store *repository.Store, signal events.Signal, log *zap.Logger, m *metrics.Metrics, now func() time.Time) Deps {
	if log == nil {
		log = zap.NewNop()
	}
	if now == nil {
		now = billing_errors.NowUTC
	}
	return Deps{
		Store:   store,
		Events:  NewEventPublisher(signal, now),
		Locks:   NewAggregateLocks(),
		Log:     log,
		Metrics: m,
		Now:     now,
	}
}

func (d Deps) now() time.Time {
	return d.Now().UTC().Truncate(time.Microsecond)
}
