package services

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"billing-lifecycle/internal/domain/catalog"
	"billing-lifecycle/internal/domain/currency"
	"billing-lifecycle/internal/domain/customer"
	"billing-lifecycle/internal/domain/domainname"
	"billing-lifecycle/internal/domain/outbox"
	"billing-lifecycle/internal/events"
	"billing-lifecycle/internal/metrics"
	"billing-lifecycle/internal/providers"
	"billing-lifecycle/internal/repository"
	"billing-lifecycle/internal/testutil"
)

const sandboxKey = "sandbox"

type harness struct {
	ctx   context.Context
	store *repository.Store
	clock *testutil.Clock
	deps  Deps
	logs  *observer.ObservedLogs

	registrar   *providers.SandboxRegistrar
	factory     *providers.RegistrarFactory
	payments    *providers.SandboxPayments
	mail        *providers.RecordingNotifier
	provisioner *providers.SandboxProvisioner

	rates         *RateService
	invoices      *InvoiceService
	notifications *Notifications
	registration  *DomainRegistration
	renewal       *DomainRenewal
	provisioning  *OrderProvisioning
	payment       *PaymentService
	lifecycle     *LifecycleService

	customer customer.Customer
	reg      catalog.Registrar
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, "USD", nil)
}

func newHarnessWith(t *testing.T, billingCurrency string, cache RateCache) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	h := &harness{
		ctx:         context.Background(),
		store:       testutil.NewStore(t),
		clock:       testutil.NewClock(time.Now()),
		logs:        logs,
		payments:    providers.NewSandboxPayments(),
		mail:        providers.NewRecordingNotifier(),
		provisioner: &providers.SandboxProvisioner{},
	}
	h.deps = NewDeps(h.store, events.NewLocalSignal(), zap.New(core), metrics.New(prometheus.NewRegistry()), h.clock.Now)

	h.registrar = providers.NewSandboxRegistrar(testutil.Money(t, "12.00"), "USD")
	h.registrar.Now = h.clock.Now
	h.factory = providers.NewRegistrarFactory()
	h.factory.Register(sandboxKey, h.registrar)

	h.rates = NewRateService(h.deps, cache)
	h.invoices = NewInvoiceService(h.deps, h.rates, 7)
	h.notifications = NewNotifications(h.mail, h.store.Repos().Customers, h.deps.Log)
	h.registration = NewDomainRegistration(h.deps, h.factory, h.invoices, time.Second)
	h.renewal = NewDomainRenewal(h.deps, h.factory, h.payments, h.invoices, h.notifications, DefaultRenewalWindowDays, time.Second)
	h.provisioning = NewOrderProvisioning(h.deps, map[catalog.ServiceType]providers.Provisioner{
		catalog.ServiceTypeHosting: h.provisioner,
	}, h.invoices, time.Second, false)
	h.payment = NewPaymentService(h.deps)
	h.lifecycle = NewLifecycleService(h.deps)

	h.customer = testutil.SeedCustomer(t, h.store, billingCurrency)
	h.reg = testutil.SeedRegistrar(t, h.store, sandboxKey, true)
	return h
}

// seedDomain stores an Active domain expiring the given number of days from
// the harness clock.
func (h *harness) seedDomain(t *testing.T, name string, days int, autoRenew bool) domainname.Domain {
	t.Helper()
	d := domainname.Domain{
		Name:           name,
		CustomerID:     h.customer.ID,
		RegistrarID:    h.reg.ID,
		Status:         domainname.StatusActive,
		ExpirationDate: h.clock.Now().AddDate(0, 0, days),
		AutoRenew:      autoRenew,
		RenewalPrice:   testutil.Money(t, "12.00"),
		Currency:       "USD",
		RenewalYears:   1,
	}
	require.NoError(t, h.store.Repos().Domains.Create(h.ctx, &d))
	return d
}

func (h *harness) seedRate(t *testing.T, base, target, rate, markup string) currency.ExchangeRate {
	t.Helper()
	r := currency.ExchangeRate{
		BaseCurrency:     base,
		TargetCurrency:   target,
		Rate:             testutil.Money(t, rate),
		MarkupPercentage: testutil.Money(t, markup),
		EffectiveDate:    h.clock.Now().Add(-time.Hour),
		Source:           "test",
		IsActive:         true,
	}
	require.NoError(t, h.store.Repos().Rates.Create(h.ctx, &r))
	return r
}

func (h *harness) eventTypes(t *testing.T, aggregateType string, id int64) []string {
	t.Helper()
	recs, err := h.store.Repos().Outbox.ListByAggregate(h.ctx, aggregateType, id)
	require.NoError(t, err)
	return recordTypes(recs)
}

func recordTypes(recs []outbox.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Event.Type)
	}
	return out
}

func (h *harness) subjects() []string {
	var out []string
	for _, e := range h.mail.Emails() {
		out = append(out, e.Subject)
	}
	return out
}

func providersWithout() *providers.RegistrarFactory {
	return providers.NewRegistrarFactory()
}
