package services

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billing-lifecycle/internal/domain/catalog"
	"billing-lifecycle/internal/domain/domainname"
	"billing-lifecycle/internal/domain/invoice"
	"billing-lifecycle/internal/domain/order"
	"billing-lifecycle/internal/events"
	"billing-lifecycle/internal/outbox"
)

type memoryArchive struct {
	mu   sync.Mutex
	puts map[string]int
	err  error
}

func (a *memoryArchive) Put(_ context.Context, inv invoice.Invoice, _ time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	if a.puts == nil {
		a.puts = map[string]int{}
	}
	a.puts[inv.Number]++
	return nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	channels []string
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	return nil
}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.channels...)
}

type wiring struct {
	registry  *events.Registry
	archive   *memoryArchive
	publisher *recordingPublisher
	dispatch  *outbox.Dispatcher
}

func (h *harness) wire(t *testing.T) *wiring {
	t.Helper()
	w := &wiring{
		registry:  events.NewRegistry(),
		archive:   &memoryArchive{},
		publisher: &recordingPublisher{},
	}
	require.NoError(t, RegisterHandlers(w.registry, HandlerSet{
		Store:         h.store,
		Notifications: h.notifications,
		Registration:  h.registration,
		Provisioning:  h.provisioning,
		Archive:       w.archive,
		Relay:         events.NewRelay(w.publisher, nil),
		Log:           h.deps.Log,
		Now:           h.clock.Now,
	}))
	w.dispatch = outbox.NewDispatcher(h.store.Repos().Outbox, w.registry, outbox.Config{RetryBackoff: time.Millisecond})
	return w
}

// drain dispatches until no record is due.
func (w *wiring) drain(t *testing.T, ctx context.Context) {
	t.Helper()
	for i := 0; i < 20; i++ {
		stats, err := w.dispatch.DispatchOnce(ctx)
		require.NoError(t, err)
		if stats.Fetched == 0 {
			return
		}
	}
	t.Fatal("outbox did not drain")
}

func TestRegistrationChainThroughOutbox(t *testing.T) {
	h := newHarness(t)
	w := h.wire(t)

	placed := h.placeRegistration(t, "example.com", 1)
	w.drain(t, h.ctx)

	inv, err := h.store.Repos().Invoices.GetByID(h.ctx, placed.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, 1, w.archive.puts[inv.Number])
	require.Len(t, h.mail.Emails(), 1)

	h.pay(t, placed.InvoiceID)
	w.drain(t, h.ctx)

	o, err := h.store.Repos().Orders.GetByID(h.ctx, placed.AggregateID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusActive, o.Status)

	d, err := h.store.Repos().Domains.GetByOrderID(h.ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domainname.StatusActive, d.Status)

	assert.ElementsMatch(t, []string{
		"Order " + o.OrderNumber + " received",
		"example.com is registered",
		"Order " + o.OrderNumber + " is active",
	}, h.subjects())
	assert.Contains(t, w.publisher.published(), "channel:domain:"+strconv.FormatInt(d.ID, 10))

	pending, err := h.store.Repos().Outbox.CountPending(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestProvisioningChainFailureNotifiesOps(t *testing.T) {
	h := newHarness(t)
	w := h.wire(t)
	h.provisioner.Err = errors.New("no capacity")

	placed := h.placeOrder(t, catalog.ServiceTypeHosting, "web-01")
	h.pay(t, placed.InvoiceID)
	w.drain(t, h.ctx)

	o, err := h.store.Repos().Orders.GetByID(h.ctx, placed.AggregateID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusSuspended, o.Status)
	assert.Contains(t, h.subjects(), "Order "+o.OrderNumber+" needs attention")

	alerts := h.logs.FilterMessage("Order suspended").All()
	require.Len(t, alerts, 1)
	assert.Equal(t, true, alerts[0].ContextMap()["alert"])
}

func TestRenewalInvoicePaidIsNotRouted(t *testing.T) {
	h := newHarness(t)
	w := h.wire(t)
	d := h.seedDomain(t, "soon.com", 10, true)

	res, err := h.renewal.Execute(h.ctx, d.ID)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	w.drain(t, h.ctx)

	assert.Equal(t, 0, h.registrar.Calls("register"))
	assert.Contains(t, h.subjects(), "soon.com renewed")
}

func TestNotificationHandlersDedupeRedelivery(t *testing.T) {
	h := newHarness(t)
	w := h.wire(t)
	placed := h.placeRegistration(t, "example.com", 1)

	recs, err := h.store.Repos().Outbox.ListByAggregate(h.ctx, events.AggregateTypeOrder, placed.AggregateID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	regs := w.registry.Handlers(events.EventTypeOrderCreated)
	require.NotEmpty(t, regs)

	for i := 0; i < 3; i++ {
		require.NoError(t, regs[0].Handle(h.ctx, recs[0].Event))
	}
	assert.Len(t, h.mail.Emails(), 1)
}

func TestArchiveFailureIsRetried(t *testing.T) {
	h := newHarness(t)
	w := h.wire(t)
	w.archive.err = errors.New("bucket unavailable")

	h.placeOrder(t, catalog.ServiceTypeHosting, "web-01")
	stats, err := w.dispatch.DispatchOnce(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)

	pending, err := h.store.Repos().Outbox.CountPending(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)
}
