// Package outbox drains the outbox table and hands each record to the
// handlers registered for its event type.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"billing-lifecycle/internal/domain/event"
	"billing-lifecycle/internal/domain/outbox"
	"billing-lifecycle/internal/events"
	"billing-lifecycle/internal/metrics"
	"billing-lifecycle/pkg/logger"
)

// Store is the slice of the outbox repository the dispatcher needs.
type Store interface {
	FetchPending(ctx context.Context, limit int, now time.Time) ([]outbox.Record, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time, reason string) error
	CountPending(ctx context.Context) (int64, error)
	ClaimStream(ctx context.Context, aggregateType string, aggregateID int64, owner string, until, now time.Time) (bool, error)
	ReleaseStream(ctx context.Context, aggregateType string, aggregateID int64, owner string) error
	FetchStream(ctx context.Context, aggregateType string, aggregateID int64, limit int, now time.Time) ([]outbox.Record, error)
}

type HandlerSource interface {
	Handlers(eventType string) []events.Registration
}

type Config struct {
	BatchSize      int
	Interval       time.Duration
	MaxRetries     int
	Concurrency    int
	HandlerTimeout time.Duration
	RetryBackoff   time.Duration
	MaxBackoff     time.Duration
	// Lease bounds how long a dispatcher owns an aggregate stream without
	// touching it. It is extended before every record.
	Lease time.Duration
}

func DefaultConfig() Config {
	return Config{
		BatchSize:      100,
		Interval:       2 * time.Second,
		MaxRetries:     10,
		Concurrency:    8,
		HandlerTimeout: 30 * time.Second,
		RetryBackoff:   5 * time.Second,
		MaxBackoff:     15 * time.Minute,
		Lease:          2 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = def.HandlerTimeout
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = def.RetryBackoff
	}
	if c.MaxBackoff < c.RetryBackoff {
		c.MaxBackoff = c.RetryBackoff
	}
	if c.Lease <= 0 {
		c.Lease = def.Lease
	}
	if c.Lease < 2*c.HandlerTimeout {
		c.Lease = 2 * c.HandlerTimeout
	}
	return c
}

// Backoff returns the delay before attempt number retry+1.
func (c Config) Backoff(retry int) time.Duration {
	d := c.RetryBackoff
	for i := 1; i < retry; i++ {
		d *= 2
		if d >= c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	return d
}

// Stats summarises one batch.
type Stats struct {
	Fetched   int
	Processed int
	Failed    int
	// Deferred counts records left for a later batch: behind a failure, held
	// by another dispatcher or skipped on shutdown.
	Deferred int
}

type Dispatcher struct {
	store    Store
	handlers HandlerSource
	cfg      Config
	signal   events.Signal
	log      *zap.Logger
	metrics  *metrics.Metrics
	clock    func() time.Time
	owner    string
}

type Option func(*Dispatcher)

func WithLogger(l *zap.Logger) Option { return func(d *Dispatcher) { d.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(d *Dispatcher) { d.metrics = m } }

// WithSignal lets commits wake the dispatcher before the next tick.
func WithSignal(s events.Signal) Option { return func(d *Dispatcher) { d.signal = s } }

func WithClock(clock func() time.Time) Option { return func(d *Dispatcher) { d.clock = clock } }

// WithOwner names the dispatcher in stream leases. Defaults to a random id.
func WithOwner(owner string) Option { return func(d *Dispatcher) { d.owner = owner } }

func NewDispatcher(store Store, handlers HandlerSource, cfg Config, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		handlers: handlers,
		cfg:      cfg.withDefaults(),
		log:      zap.NewNop(),
		clock:    time.Now,
		owner:    uuid.NewString(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = zap.NewNop()
	}
	return d
}

// Run dispatches on every tick and wake signal until ctx is cancelled. The
// batch in flight when ctx ends is finished before Run returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	var wake <-chan struct{}
	if d.signal != nil {
		wake = d.signal.C()
	}

	d.runBatch(ctx)
	for {
		select {
		case <-ctx.Done():
			d.log.Info("outbox dispatcher stopped")
			return nil
		case <-ticker.C:
			d.runBatch(ctx)
		case <-wake:
			d.runBatch(ctx)
		}
	}
}

func (d *Dispatcher) runBatch(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	stats, err := d.DispatchOnce(ctx)
	if err != nil {
		d.log.Error("outbox batch failed", zap.Error(err))
		return
	}
	if stats.Fetched > 0 {
		d.log.Debug("outbox batch dispatched",
			zap.Int("fetched", stats.Fetched),
			zap.Int("processed", stats.Processed),
			zap.Int("failed", stats.Failed),
			zap.Int("deferred", stats.Deferred),
		)
	}
}

// DispatchOnce fetches one batch and delivers it. Records of different
// aggregates run concurrently; records of one aggregate run in order and the
// stream stops at its first failure. A stream leased by another dispatcher is
// skipped, so every aggregate is worked by one dispatcher at a time.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (Stats, error) {
	start := time.Now()
	records, err := d.store.FetchPending(ctx, d.cfg.BatchSize, d.clock())
	if err != nil {
		return Stats{}, fmt.Errorf("fetch pending outbox records: %w", err)
	}

	var processed, failed, deferred atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(d.cfg.Concurrency)
	for _, fetched := range groupByAggregate(records) {
		g.Go(func() error {
			if ctx.Err() != nil {
				deferred.Add(int64(len(fetched)))
				return nil
			}
			head := fetched[0].Event
			stream, release, ok := d.claim(ctx, head.AggregateType, head.AggregateID)
			if !ok {
				deferred.Add(int64(len(fetched)))
				return nil
			}
			defer release()
			for i, rec := range stream {
				if i > 0 && !d.extend(ctx, head.AggregateType, head.AggregateID) {
					deferred.Add(int64(len(stream) - i))
					return nil
				}
				if !d.deliver(ctx, rec) {
					failed.Add(1)
					deferred.Add(int64(len(stream) - i - 1))
					return nil
				}
				processed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	d.metrics.ObserveBatch(time.Since(start))
	if n, err := d.store.CountPending(context.WithoutCancel(ctx)); err == nil {
		d.metrics.SetPending(n)
	}
	return Stats{
		Fetched:   len(records),
		Processed: int(processed.Load()),
		Failed:    int(failed.Load()),
		Deferred:  int(deferred.Load()),
	}, nil
}

// claim leases the aggregate stream and re-reads it, since another dispatcher
// may have advanced it after the batch was fetched.
func (d *Dispatcher) claim(ctx context.Context, aggregateType string, aggregateID int64) ([]outbox.Record, func(), bool) {
	bg := context.WithoutCancel(ctx)
	log := d.log.With(zap.String("aggregate_type", aggregateType), zap.Int64("aggregate_id", aggregateID))
	now := d.clock()
	ok, err := d.store.ClaimStream(bg, aggregateType, aggregateID, d.owner, now.Add(d.cfg.Lease), now)
	if err != nil {
		log.Error("failed to lease outbox stream", zap.Error(err))
		return nil, nil, false
	}
	if !ok {
		log.Debug("outbox stream leased by another dispatcher")
		return nil, nil, false
	}
	release := func() {
		if err := d.store.ReleaseStream(bg, aggregateType, aggregateID, d.owner); err != nil {
			log.Warn("failed to release outbox stream", zap.Error(err))
		}
	}
	stream, err := d.store.FetchStream(bg, aggregateType, aggregateID, d.cfg.BatchSize, d.clock())
	if err != nil {
		release()
		log.Error("failed to read leased outbox stream", zap.Error(err))
		return nil, nil, false
	}
	return stream, release, true
}

// extend renews the lease before the next record. It reports false when the
// lease was lost and the stream must be left to its new owner.
func (d *Dispatcher) extend(ctx context.Context, aggregateType string, aggregateID int64) bool {
	now := d.clock()
	ok, err := d.store.ClaimStream(context.WithoutCancel(ctx), aggregateType, aggregateID, d.owner, now.Add(d.cfg.Lease), now)
	if err != nil || !ok {
		d.log.Warn("outbox stream lease lost",
			zap.String("aggregate_type", aggregateType), zap.Int64("aggregate_id", aggregateID), zap.Error(err))
		return false
	}
	return true
}

// deliver runs every handler for rec and records the outcome. It reports
// whether rec is now processed.
func (d *Dispatcher) deliver(ctx context.Context, rec outbox.Record) bool {
	e := rec.Event
	log := d.log.With(
		zap.String("event_id", e.ID.String()),
		zap.String("event_type", e.Type),
		zap.String("aggregate", e.StreamKey()),
		zap.String("correlation_id", e.CorrelationID),
		zap.Int("retry_count", rec.RetryCount),
	)

	// Handlers and bookkeeping outlive shutdown so an in-flight record is
	// either acknowledged or retried, never abandoned half way.
	base := logger.WithCorrelationID(context.WithoutCancel(ctx), e.CorrelationID)

	for _, reg := range d.handlers.Handlers(e.Type) {
		if err := d.invoke(base, reg, e); err != nil {
			d.metrics.ObserveDispatch(e.Type, false)
			d.fail(base, log, rec, reg.Name, err)
			return false
		}
	}

	if err := d.store.MarkProcessed(base, e.ID, d.clock()); err != nil {
		// Handlers already ran; the record will be redelivered.
		log.Error("failed to mark outbox record processed", zap.Error(err))
		return false
	}
	d.metrics.ObserveDispatch(e.Type, true)
	return true
}

func (d *Dispatcher) invoke(ctx context.Context, reg events.Registration, e event.DomainEvent) (err error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.HandlerTimeout)
	defer cancel()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %s panicked: %v\n%s", reg.Name, r, debug.Stack())
		}
		d.metrics.ObserveHandler(reg.Name, time.Since(start))
	}()
	if err := reg.Handle(ctx, e); err != nil {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("handler %s exceeded %s", reg.Name, d.cfg.HandlerTimeout)
	}
	return nil
}

func (d *Dispatcher) fail(ctx context.Context, log *zap.Logger, rec outbox.Record, handler string, cause error) {
	attempt := rec.RetryCount + 1
	next := d.clock().Add(d.cfg.Backoff(attempt))
	reason := fmt.Sprintf("%s: %v", handler, cause)

	if err := d.store.MarkFailed(ctx, rec.Event.ID, next, reason); err != nil {
		log.Error("failed to record outbox failure", zap.Error(err))
	}
	if attempt >= d.cfg.MaxRetries {
		d.metrics.IncRetryCeiling(rec.Event.Type)
		log.Error("outbox record reached retry ceiling",
			zap.Bool("alert", true),
			zap.String("handler", handler),
			zap.Int("attempts", attempt),
			zap.Error(cause),
		)
		return
	}
	log.Warn("event handler failed, will retry",
		zap.String("handler", handler),
		zap.Int("attempt", attempt),
		zap.Time("next_attempt_at", next),
		zap.Error(cause),
	)
}

// groupByAggregate splits records into per-aggregate streams, keeping the
// fetch order inside each stream and between first appearances.
func groupByAggregate(records []outbox.Record) [][]outbox.Record {
	index := make(map[string]int)
	var streams [][]outbox.Record
	for _, rec := range records {
		key := rec.Event.StreamKey()
		i, ok := index[key]
		if !ok {
			i = len(streams)
			index[key] = i
			streams = append(streams, nil)
		}
		streams[i] = append(streams[i], rec)
	}
	return streams
}
