package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billing-lifecycle/internal/commands"
	"billing-lifecycle/internal/domain/catalog"
	"billing-lifecycle/internal/domain/domainname"
	"billing-lifecycle/internal/domain/order"
	"billing-lifecycle/internal/events"
)

func TestTransitionOrderSuspendAndResume(t *testing.T) {
	h := newHarness(t)
	placed := h.placeOrder(t, catalog.ServiceTypeHosting, "web-01")
	_, err := h.provisioning.ProvisionAsync(h.ctx, placed.AggregateID)
	require.NoError(t, err)
	active, err := h.store.Repos().Orders.GetByID(h.ctx, placed.AggregateID)
	require.NoError(t, err)

	res, err := h.lifecycle.TransitionOrder(h.ctx, placed.AggregateID, order.Suspend, "abuse report")
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, string(order.StatusSuspended), res.Outcome)

	o, err := h.store.Repos().Orders.GetByID(h.ctx, placed.AggregateID)
	require.NoError(t, err)
	assert.Equal(t, "abuse report", o.SuspendReason)

	h.clock.Advance(48 * time.Hour)
	res, err = h.lifecycle.TransitionOrder(h.ctx, placed.AggregateID, order.Resume, "")
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	o, err = h.store.Repos().Orders.GetByID(h.ctx, placed.AggregateID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusActive, o.Status)
	assert.Empty(t, o.SuspendReason)
	// Resuming keeps the original billing schedule.
	require.NotNil(t, o.NextBillingDate)
	assert.True(t, active.NextBillingDate.Equal(*o.NextBillingDate))

	assert.Equal(t, []string{
		events.EventTypeOrderCreated,
		events.EventTypeOrderActivated,
		events.EventTypeOrderSuspended,
		events.EventTypeOrderResumed,
	}, h.eventTypes(t, events.AggregateTypeOrder, o.ID))
}

func TestTransitionOrderRejects(t *testing.T) {
	h := newHarness(t)
	placed := h.placeOrder(t, catalog.ServiceTypeHosting, "web-01")

	res, err := h.lifecycle.TransitionOrder(h.ctx, placed.AggregateID, order.Activate, "")
	require.NoError(t, err)
	assert.Equal(t, commands.KindValidation, res.Kind)
	assert.Contains(t, res.Message, "provisioning workflow")

	res, err = h.lifecycle.TransitionOrder(h.ctx, placed.AggregateID, order.Resume, "")
	require.NoError(t, err)
	assert.Equal(t, commands.KindValidation, res.Kind)
	assert.Equal(t, placed.AggregateID, res.AggregateID)

	res, err = h.lifecycle.TransitionOrder(h.ctx, placed.AggregateID, order.Transition("Teleport"), "")
	require.NoError(t, err)
	assert.Equal(t, commands.KindValidation, res.Kind)

	res, err = h.lifecycle.TransitionOrder(h.ctx, 404, order.Cancel, "")
	require.NoError(t, err)
	assert.Equal(t, commands.KindNotFound, res.Kind)

	o, err := h.store.Repos().Orders.GetByID(h.ctx, placed.AggregateID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Len(t, h.eventTypes(t, events.AggregateTypeOrder, o.ID), 1)
}

func TestTransitionDomain(t *testing.T) {
	h := newHarness(t)
	d := h.seedDomain(t, "example.com", 100, false)

	res, err := h.lifecycle.TransitionDomain(h.ctx, d.ID, domainname.Suspend, "chargeback")
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	res, err = h.lifecycle.TransitionDomain(h.ctx, d.ID, domainname.Reactivate, "")
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, string(domainname.StatusActive), res.Outcome)

	res, err = h.lifecycle.TransitionDomain(h.ctx, d.ID, domainname.Renew, "")
	require.NoError(t, err)
	assert.Equal(t, commands.KindValidation, res.Kind)

	res, err = h.lifecycle.TransitionDomain(h.ctx, d.ID, domainname.TransferIn, "")
	require.NoError(t, err)
	assert.Equal(t, commands.KindValidation, res.Kind)

	assert.Equal(t, []string{events.EventTypeDomainSuspended, events.EventTypeDomainReactivated}, h.eventTypes(t, events.AggregateTypeDomain, d.ID))
}

func TestExpireDueDomains(t *testing.T) {
	h := newHarness(t)
	lapsed := h.seedDomain(t, "lapsed.com", -1, true)
	suspended := h.seedDomain(t, "suspended.com", -2, false)
	_, err := h.lifecycle.TransitionDomain(h.ctx, suspended.ID, domainname.Suspend, "")
	require.NoError(t, err)
	current := h.seedDomain(t, "current.com", 30, true)

	n, err := h.lifecycle.ExpireDueDomains(h.ctx, h.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for id, want := range map[int64]domainname.Status{
		lapsed.ID:    domainname.StatusExpired,
		suspended.ID: domainname.StatusExpired,
		current.ID:   domainname.StatusActive,
	} {
		d, err := h.store.Repos().Domains.GetByID(h.ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, d.Status, d.Name)
	}
	assert.Equal(t, []string{events.EventTypeDomainExpired}, h.eventTypes(t, events.AggregateTypeDomain, lapsed.ID))

	n, err = h.lifecycle.ExpireDueDomains(h.ctx, h.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConcurrentTransitionsSerialize(t *testing.T) {
	h := newHarness(t)
	d := h.seedDomain(t, "race.com", 100, false)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.lifecycle.TransitionDomain(h.ctx, d.ID, domainname.Suspend, "")
			if err == nil && res.Success {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, won)
	assert.Len(t, h.eventTypes(t, events.AggregateTypeDomain, d.ID), 1)
	assert.Zero(t, h.deps.Locks.held())
}
