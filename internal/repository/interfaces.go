package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"billing-lifecycle/internal/domain/catalog"
	"billing-lifecycle/internal/domain/currency"
	"billing-lifecycle/internal/domain/customer"
	"billing-lifecycle/internal/domain/domainname"
	"billing-lifecycle/internal/domain/event"
	"billing-lifecycle/internal/domain/invoice"
	"billing-lifecycle/internal/domain/order"
	"billing-lifecycle/internal/domain/outbox"
)

// OutboxRepository persists events next to the state they describe. Append
// must run on the caller's transaction.
type OutboxRepository interface {
	Append(ctx context.Context, events ...event.DomainEvent) error
	FetchPending(ctx context.Context, limit int, now time.Time) ([]outbox.Record, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time, reason string) error
	CountPending(ctx context.Context) (int64, error)
	ClaimStream(ctx context.Context, aggregateType string, aggregateID int64, owner string, until, now time.Time) (bool, error)
	ReleaseStream(ctx context.Context, aggregateType string, aggregateID int64, owner string) error
	FetchStream(ctx context.Context, aggregateType string, aggregateID int64, limit int, now time.Time) ([]outbox.Record, error)
	Get(ctx context.Context, id uuid.UUID) (outbox.Record, error)
	ListByAggregate(ctx context.Context, aggregateType string, aggregateID int64) ([]outbox.Record, error)
}

type OrderRepository interface {
	Create(ctx context.Context, o *order.Order) error
	GetByID(ctx context.Context, id int64) (order.Order, error)
	GetForUpdate(ctx context.Context, id int64) (order.Order, error)
	CountOpenRegistrations(ctx context.Context, name string, excludeID int64) (int64, error)
	// Update writes o when its Version still matches the stored row and bumps it.
	Update(ctx context.Context, o *order.Order) error
}

type DomainRepository interface {
	Create(ctx context.Context, d *domainname.Domain) error
	GetByID(ctx context.Context, id int64) (domainname.Domain, error)
	GetForUpdate(ctx context.Context, id int64) (domainname.Domain, error)
	GetByName(ctx context.Context, name string) (domainname.Domain, error)
	GetByOrderID(ctx context.Context, orderID int64) (domainname.Domain, error)
	Update(ctx context.Context, d *domainname.Domain) error
	ListExpiringBefore(ctx context.Context, before time.Time, statuses []domainname.Status, limit int) ([]domainname.Domain, error)
}

type InvoiceRepository interface {
	Create(ctx context.Context, inv *invoice.Invoice) error
	GetByID(ctx context.Context, id int64) (invoice.Invoice, error)
	GetForUpdate(ctx context.Context, id int64) (invoice.Invoice, error)
	FindRenewal(ctx context.Context, domainID int64, periodStart time.Time) (invoice.Invoice, error)
	Update(ctx context.Context, inv *invoice.Invoice) error
	RecordCapture(ctx context.Context, id int64, ref string) error
}

type RateRepository interface {
	Create(ctx context.Context, r *currency.ExchangeRate) error
	Update(ctx context.Context, r *currency.ExchangeRate) error
	GetByID(ctx context.Context, id int64) (currency.ExchangeRate, error)
	// FindApplicable resolves the rate in force at a point in time.
	FindApplicable(ctx context.Context, base, target string, at time.Time) (currency.ExchangeRate, error)
	DeactivateExpired(ctx context.Context, now time.Time) ([]currency.Pair, error)
}

type ServiceRepository interface {
	FindOrCreate(ctx context.Context, customerID int64, serviceType catalog.ServiceType, reference string) (catalog.Service, error)
	GetByID(ctx context.Context, id int64) (catalog.Service, error)
}

type RegistrarRepository interface {
	Create(ctx context.Context, r *catalog.Registrar) error
	GetByID(ctx context.Context, id int64) (catalog.Registrar, error)
}

type CustomerRepository interface {
	Create(ctx context.Context, c *customer.Customer) error
	GetByID(ctx context.Context, id int64) (customer.Customer, error)
}
