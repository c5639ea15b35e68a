package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"billing-lifecycle/internal/domain/catalog"
	"billing-lifecycle/internal/domain/event"
	"billing-lifecycle/internal/domain/order"
	"billing-lifecycle/internal/repository"
	"billing-lifecycle/internal/testutil"
	billing_errors "billing-lifecycle/pkg/errors"
)

type OutboxRepositorySuite struct {
	suite.Suite
	ctx   context.Context
	store *repository.Store
}

func TestOutboxRepositorySuite(t *testing.T) {
	suite.Run(t, new(OutboxRepositorySuite))
}

func (s *OutboxRepositorySuite) SetupTest() {
	s.ctx = context.Background()
	s.store = testutil.NewStore(s.T())
}

func (s *OutboxRepositorySuite) newEvent(eventType, aggregateType string, aggregateID int64) event.DomainEvent {
	e, err := event.New(eventType, aggregateType, aggregateID, "corr-1", time.Now(), map[string]any{"id": aggregateID})
	s.Require().NoError(err)
	return e
}

func (s *OutboxRepositorySuite) TestRollbackLeavesNoRecordsAndNoState() {
	cust := testutil.SeedCustomer(s.T(), s.store, "USD")
	boom := errors.New("boom")

	err := s.store.WithTx(s.ctx, func(repos repository.Repositories) error {
		svc, err := repos.Services.FindOrCreate(s.ctx, cust.ID, catalog.ServiceTypeHosting, "basic-plan")
		s.Require().NoError(err)
		o := order.Order{
			OrderNumber: "ORD-20260101-ROLLBACK",
			CustomerID:  cust.ID,
			ServiceID:   svc.ID,
			ServiceType: string(svc.Type),
			Status:      order.StatusPending,
			Currency:    "USD",
		}
		s.Require().NoError(repos.Orders.Create(s.ctx, &o))
		s.Require().NoError(repos.Outbox.Append(s.ctx,
			s.newEvent("OrderCreated", "order", o.ID),
			s.newEvent("InvoiceGenerated", "invoice", 1),
			s.newEvent("OrderActivated", "order", o.ID),
		))
		return boom
	})
	s.Require().ErrorIs(err, boom)

	n, err := s.store.Repos().Outbox.CountPending(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(0), n)

	_, err = s.store.Repos().Orders.GetByID(s.ctx, 1)
	s.ErrorIs(err, billing_errors.ErrNotFound)
}

func (s *OutboxRepositorySuite) TestFetchPendingReturnsOldestFirst() {
	repo := s.store.Repos().Outbox
	first := s.newEvent("A", "order", 1)
	second := s.newEvent("B", "order", 2)
	third := s.newEvent("C", "order", 1)
	s.Require().NoError(repo.Append(s.ctx, first, second))
	s.Require().NoError(repo.Append(s.ctx, third))

	records, err := repo.FetchPending(s.ctx, 10, time.Now())
	s.Require().NoError(err)
	s.Require().Len(records, 3)
	s.Equal([]uuid.UUID{first.ID, second.ID, third.ID}, []uuid.UUID{records[0].Event.ID, records[1].Event.ID, records[2].Event.ID})
	s.JSONEq(`{"id":1}`, string(records[0].Event.Payload))
	s.Equal("corr-1", records[0].Event.CorrelationID)
	s.True(records[0].Pending())

	limited, err := repo.FetchPending(s.ctx, 2, time.Now())
	s.Require().NoError(err)
	s.Len(limited, 2)
}

func (s *OutboxRepositorySuite) TestMarkProcessedIsIdempotent() {
	repo := s.store.Repos().Outbox
	e := s.newEvent("A", "order", 1)
	s.Require().NoError(repo.Append(s.ctx, e))

	at := time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(repo.MarkProcessed(s.ctx, e.ID, at))
	s.Require().NoError(repo.MarkProcessed(s.ctx, e.ID, at.Add(time.Hour)))

	rec, err := repo.Get(s.ctx, e.ID)
	s.Require().NoError(err)
	s.Require().NotNil(rec.ProcessedAt)
	s.True(at.Equal(*rec.ProcessedAt), "second mark must not move processed_at")

	pending, err := repo.FetchPending(s.ctx, 10, time.Now())
	s.Require().NoError(err)
	s.Empty(pending)

	s.ErrorIs(repo.MarkProcessed(s.ctx, uuid.New(), at), billing_errors.ErrNotFound)
}

func (s *OutboxRepositorySuite) TestMarkFailedHoldsBackTheAggregateStream() {
	repo := s.store.Repos().Outbox
	first := s.newEvent("A", "order", 1)
	second := s.newEvent("B", "order", 1)
	other := s.newEvent("C", "order", 2)
	s.Require().NoError(repo.Append(s.ctx, first, second, other))

	retryAt := time.Now().Add(time.Minute)
	s.Require().NoError(repo.MarkFailed(s.ctx, first.ID, retryAt, "smtp down"))

	records, err := repo.FetchPending(s.ctx, 10, time.Now())
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal(other.ID, records[0].Event.ID)

	later, err := repo.FetchPending(s.ctx, 10, retryAt.Add(time.Second))
	s.Require().NoError(err)
	s.Require().Len(later, 3)
	s.Equal(first.ID, later[0].Event.ID)
	s.Equal(1, later[0].RetryCount)
	s.Equal("smtp down", later[0].LastError)

	s.ErrorIs(repo.MarkFailed(s.ctx, uuid.New(), retryAt, "x"), billing_errors.ErrNotFound)
}

func (s *OutboxRepositorySuite) TestStreamLeaseHasOneOwner() {
	repo := s.store.Repos().Outbox
	now := time.Now()

	ok, err := repo.ClaimStream(s.ctx, "order", 1, "node-a", now.Add(time.Minute), now)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = repo.ClaimStream(s.ctx, "order", 1, "node-b", now.Add(time.Minute), now)
	s.Require().NoError(err)
	s.False(ok, "held lease must not be taken")

	ok, err = repo.ClaimStream(s.ctx, "order", 2, "node-b", now.Add(time.Minute), now)
	s.Require().NoError(err)
	s.True(ok, "other streams stay free")

	ok, err = repo.ClaimStream(s.ctx, "order", 1, "node-a", now.Add(2*time.Minute), now)
	s.Require().NoError(err)
	s.True(ok, "owner extends its lease")

	// Releasing someone else's lease is a no-op.
	s.Require().NoError(repo.ReleaseStream(s.ctx, "order", 1, "node-b"))
	ok, err = repo.ClaimStream(s.ctx, "order", 1, "node-b", now.Add(time.Minute), now)
	s.Require().NoError(err)
	s.False(ok)

	s.Require().NoError(repo.ReleaseStream(s.ctx, "order", 1, "node-a"))
	ok, err = repo.ClaimStream(s.ctx, "order", 1, "node-b", now.Add(time.Minute), now)
	s.Require().NoError(err)
	s.True(ok)

	later := now.Add(5 * time.Minute)
	ok, err = repo.ClaimStream(s.ctx, "order", 1, "node-a", later.Add(time.Minute), later)
	s.Require().NoError(err)
	s.True(ok, "expired lease is taken over")
}

func (s *OutboxRepositorySuite) TestFetchStreamStopsAtFirstRecordNotDue() {
	repo := s.store.Repos().Outbox
	first := s.newEvent("A", "order", 1)
	second := s.newEvent("B", "order", 1)
	third := s.newEvent("C", "order", 1)
	s.Require().NoError(repo.Append(s.ctx, first, second, third))
	now := time.Now().Add(time.Second)

	records, err := repo.FetchStream(s.ctx, "order", 1, 10, now)
	s.Require().NoError(err)
	s.Require().Len(records, 3)
	s.Equal(first.ID, records[0].Event.ID)

	s.Require().NoError(repo.MarkProcessed(s.ctx, first.ID, now))
	s.Require().NoError(repo.MarkFailed(s.ctx, second.ID, now.Add(time.Minute), "later"))
	records, err = repo.FetchStream(s.ctx, "order", 1, 10, now)
	s.Require().NoError(err)
	s.Empty(records)

	records, err = repo.FetchStream(s.ctx, "order", 1, 10, now.Add(2*time.Minute))
	s.Require().NoError(err)
	s.Require().Len(records, 2)
	s.Equal(second.ID, records[0].Event.ID)
	s.Equal(third.ID, records[1].Event.ID)
}

func (s *OutboxRepositorySuite) TestAppendRejectsDuplicatesAndBlankEvents() {
	repo := s.store.Repos().Outbox
	e := s.newEvent("A", "order", 1)
	s.Require().NoError(repo.Append(s.ctx, e))
	s.ErrorIs(repo.Append(s.ctx, e), billing_errors.ErrAlreadyExists)
	s.ErrorIs(repo.Append(s.ctx, event.DomainEvent{}), event.ErrInvalidEvent)

	list, err := repo.ListByAggregate(s.ctx, "order", 1)
	s.Require().NoError(err)
	s.Len(list, 1)
}

func TestOutboxAppendInsideFailedTxKeepsOlderRecords(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	kept, err := event.New("Kept", "order", 7, "", time.Now(), nil)
	require.NoError(t, err)
	require.NoError(t, store.Repos().Outbox.Append(ctx, kept))

	_ = store.WithTx(ctx, func(repos repository.Repositories) error {
		dropped, err := event.New("Dropped", "order", 7, "", time.Now(), nil)
		require.NoError(t, err)
		require.NoError(t, repos.Outbox.Append(ctx, dropped))
		return errors.New("abort")
	})

	list, err := store.Repos().Outbox.ListByAggregate(ctx, "order", 7)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "Kept", list[0].Event.Type)
	require.NotEmpty(t, list[0].Event.CorrelationID)
}
