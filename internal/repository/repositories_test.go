package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billing-lifecycle/internal/domain/catalog"
	"billing-lifecycle/internal/domain/currency"
	"billing-lifecycle/internal/domain/domainname"
	"billing-lifecycle/internal/domain/invoice"
	"billing-lifecycle/internal/domain/order"
	"billing-lifecycle/internal/repository"
	"billing-lifecycle/internal/testutil"
	billing_errors "billing-lifecycle/pkg/errors"
)

func seedOrder(t *testing.T, store *repository.Store, customerID int64) order.Order {
	t.Helper()
	ctx := context.Background()
	svc, err := store.Repos().Services.FindOrCreate(ctx, customerID, catalog.ServiceTypeDomain, "example.com")
	require.NoError(t, err)
	o := order.Order{
		OrderNumber:     order.NewOrderNumber(time.Now()),
		CustomerID:      customerID,
		ServiceID:       svc.ID,
		ServiceType:     string(svc.Type),
		Status:          order.StatusPending,
		RecurringAmount: testutil.Money(t, "12.99"),
		Currency:        "USD",
	}
	require.NoError(t, store.Repos().Orders.Create(ctx, &o))
	return o
}

func TestOrderUpdateUsesOptimisticVersion(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	cust := testutil.SeedCustomer(t, store, "USD")
	o := seedOrder(t, store, cust.ID)
	require.Equal(t, 1, o.Version)

	stale := o
	o.Status = order.StatusActive
	o = o.Activated(time.Now())
	require.NoError(t, store.Repos().Orders.Update(ctx, &o))
	assert.Equal(t, 2, o.Version)

	stale.Status = order.StatusSuspended
	err := store.Repos().Orders.Update(ctx, &stale)
	assert.ErrorIs(t, err, billing_errors.ErrConflict)

	got, err := store.Repos().Orders.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusActive, got.Status)
	assert.Equal(t, 2, got.Version)
	require.NotNil(t, got.NextBillingDate)
	assert.True(t, got.RecurringAmount.Equal(testutil.Money(t, "12.99")))

	missing := order.Order{ID: 999, Version: 1}
	assert.ErrorIs(t, store.Repos().Orders.Update(ctx, &missing), billing_errors.ErrNotFound)
}

func TestServiceFindOrCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	cust := testutil.SeedCustomer(t, store, "USD")

	a, err := store.Repos().Services.FindOrCreate(ctx, cust.ID, catalog.ServiceTypeDomain, "Example.com")
	require.NoError(t, err)
	b, err := store.Repos().Services.FindOrCreate(ctx, cust.ID, catalog.ServiceTypeDomain, "example.com ")
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)

	c, err := store.Repos().Services.FindOrCreate(ctx, cust.ID, catalog.ServiceTypeEmail, "example.com")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, c.ID)
}

func TestDomainRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	cust := testutil.SeedCustomer(t, store, "USD")
	reg := testutil.SeedRegistrar(t, store, "sandbox", true)
	o := seedOrder(t, store, cust.ID)

	exp := time.Date(2027, 1, 15, 0, 0, 0, 0, time.UTC)
	d := domainname.Domain{
		Name:           "Example.COM",
		CustomerID:     cust.ID,
		RegistrarID:    reg.ID,
		OrderID:        &o.ID,
		Status:         domainname.StatusActive,
		ExpirationDate: exp,
		AutoRenew:      true,
		RenewalPrice:   testutil.Money(t, "15.00"),
		Currency:       "USD",
	}
	require.NoError(t, store.Repos().Domains.Create(ctx, &d))

	byName, err := store.Repos().Domains.GetByName(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, d.ID, byName.ID)
	assert.Equal(t, exp, byName.ExpirationDate)
	assert.True(t, byName.AutoRenew)
	assert.Equal(t, 1, byName.RenewalYears)

	byOrder, err := store.Repos().Domains.GetByOrderID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, byOrder.ID)

	_, err = store.Repos().Domains.GetByOrderID(ctx, 12345)
	assert.ErrorIs(t, err, billing_errors.ErrNotFound)

	dup := d
	dup.ID = 0
	assert.ErrorIs(t, store.Repos().Domains.Create(ctx, &dup), billing_errors.ErrAlreadyExists)

	due, err := store.Repos().Domains.ListExpiringBefore(ctx, exp.Add(time.Hour), []domainname.Status{domainname.StatusActive}, 10)
	require.NoError(t, err)
	assert.Len(t, due, 1)
	none, err := store.Repos().Domains.ListExpiringBefore(ctx, exp, []domainname.Status{domainname.StatusActive}, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestInvoiceFindRenewal(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	cust := testutil.SeedCustomer(t, store, "USD")
	reg := testutil.SeedRegistrar(t, store, "sandbox", true)
	d := domainname.Domain{Name: "renew.io", CustomerID: cust.ID, RegistrarID: reg.ID, Status: domainname.StatusActive,
		ExpirationDate: time.Now().Add(48 * time.Hour), RenewalPrice: testutil.Money(t, "9"), Currency: "USD"}
	require.NoError(t, store.Repos().Domains.Create(ctx, &d))

	period := d.ExpirationDate.UTC().Truncate(time.Microsecond)
	_, err := store.Repos().Invoices.FindRenewal(ctx, d.ID, period)
	assert.ErrorIs(t, err, billing_errors.ErrNotFound)

	inv := invoice.Invoice{
		Number:      invoice.NewNumber(time.Now()),
		CustomerID:  cust.ID,
		DomainID:    &d.ID,
		Kind:        invoice.KindRenewal,
		Status:      invoice.StatusUnpaid,
		Currency:    "USD",
		TotalAmount: testutil.Money(t, "9.00"),
		DueDate:     period,
		PeriodStart: &period,
	}
	require.NoError(t, store.Repos().Invoices.Create(ctx, &inv))

	found, err := store.Repos().Invoices.FindRenewal(ctx, d.ID, period)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, found.ID)
	assert.Equal(t, invoice.KindRenewal, found.Kind)

	found.PaymentReference = "txn-1"
	require.NoError(t, store.Repos().Invoices.Update(ctx, &found))
	again, err := store.Repos().Invoices.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "txn-1", again.PaymentReference)

	found.Status = invoice.StatusCancelled
	require.NoError(t, store.Repos().Invoices.Update(ctx, &found))
	_, err = store.Repos().Invoices.FindRenewal(ctx, d.ID, period)
	assert.ErrorIs(t, err, billing_errors.ErrNotFound)
}

func TestInvoiceRecordCaptureOnlyOnOpenUncapturedInvoices(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	cust := testutil.SeedCustomer(t, store, "USD")

	newInvoice := func(status invoice.Status) invoice.Invoice {
		inv := invoice.Invoice{
			Number:      invoice.NewNumber(time.Now()),
			CustomerID:  cust.ID,
			Kind:        invoice.KindRenewal,
			Status:      status,
			Currency:    "USD",
			TotalAmount: testutil.Money(t, "9.00"),
			DueDate:     time.Now(),
		}
		require.NoError(t, store.Repos().Invoices.Create(ctx, &inv))
		return inv
	}

	open := newInvoice(invoice.StatusUnpaid)
	require.NoError(t, store.Repos().Invoices.RecordCapture(ctx, open.ID, "txn-auto"))
	got, err := store.Repos().Invoices.GetByID(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, "txn-auto", got.PaymentReference)

	err = store.Repos().Invoices.RecordCapture(ctx, open.ID, "txn-again")
	assert.ErrorIs(t, err, billing_errors.ErrConflict)

	paid := newInvoice(invoice.StatusPaid)
	err = store.Repos().Invoices.RecordCapture(ctx, paid.ID, "txn-auto")
	assert.ErrorIs(t, err, billing_errors.ErrConflict)
	got, err = store.Repos().Invoices.GetByID(ctx, paid.ID)
	require.NoError(t, err)
	assert.Empty(t, got.PaymentReference)
}

func TestRateResolutionPicksLatestEffectiveThenNewestRow(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	repo := store.Repos().Rates
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)

	mk := func(rate string, effective time.Time, expiry *time.Time, active bool) currency.ExchangeRate {
		r := currency.ExchangeRate{
			BaseCurrency:     "USD",
			TargetCurrency:   "EUR",
			Rate:             testutil.Money(t, rate),
			MarkupPercentage: testutil.Money(t, "0"),
			EffectiveDate:    effective,
			ExpiryDate:       expiry,
			Source:           "test",
			IsActive:         active,
		}
		require.NoError(t, repo.Create(ctx, &r))
		return r
	}

	mk("0.80", now.Add(-72*time.Hour), nil, true)
	mk("0.85", now.Add(-24*time.Hour), nil, true)
	tie := mk("0.86", now.Add(-24*time.Hour), nil, true)
	mk("0.99", now.Add(-time.Minute), &past, true)
	mk("0.70", now.Add(-time.Minute), nil, false)
	mk("0.60", now.Add(time.Hour), nil, true)

	got, err := repo.FindApplicable(ctx, "USD", "EUR", now)
	require.NoError(t, err)
	assert.Equal(t, tie.ID, got.ID)
	assert.Equal(t, "0.86", got.Rate.String())

	future, err := repo.FindApplicable(ctx, "USD", "EUR", now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "0.6", future.Rate.String())

	_, err = repo.FindApplicable(ctx, "EUR", "USD", now)
	assert.ErrorIs(t, err, billing_errors.ErrNotFound)
}

func TestDeactivateExpiredIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	repo := store.Repos().Rates
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	expired := now.Add(-time.Minute)
	r := currency.ExchangeRate{BaseCurrency: "USD", TargetCurrency: "GBP", Rate: testutil.Money(t, "0.7"),
		MarkupPercentage: testutil.Money(t, "1"), EffectiveDate: now.Add(-time.Hour), ExpiryDate: &expired, IsActive: true}
	require.NoError(t, repo.Create(ctx, &r))

	pairs, err := repo.DeactivateExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, []currency.Pair{{Base: "USD", Target: "GBP"}}, pairs)

	pairs, err = repo.DeactivateExpired(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, pairs)

	got, err := repo.GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}
