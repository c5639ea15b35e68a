package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"billing-lifecycle/internal/commands"
	"billing-lifecycle/internal/domain/catalog"
	"billing-lifecycle/internal/domain/domainname"
	"billing-lifecycle/internal/domain/invoice"
	"billing-lifecycle/internal/domain/order"
	"billing-lifecycle/internal/events"
	"billing-lifecycle/internal/providers"
	"billing-lifecycle/internal/repository"
	billing_errors "billing-lifecycle/pkg/errors"
	"billing-lifecycle/pkg/logger"
)

const workflowRegistration = "registration"

type RegistrationInput struct {
	CustomerID  int64
	RegistrarID int64
	DomainName  string
	Years       int
	AutoRenew   bool
}

type DomainRegistration struct {
	Deps
	registrars      *providers.RegistrarFactory
	invoices        InvoiceGenerator
	providerTimeout time.Duration
	orders          *order.Machine
	domains         *domainname.Machine
}

func NewDomainRegistration(deps Deps, registrars *providers.RegistrarFactory, invoices InvoiceGenerator, providerTimeout time.Duration) *DomainRegistration {
	return &DomainRegistration{
		Deps:            deps,
		registrars:      registrars,
		invoices:        invoices,
		providerTimeout: providerTimeout,
		orders:          order.NewMachine(),
		domains:         domainname.NewMachine(),
	}
}

// registrarFor resolves the registrar row and its adapter, guarded by the
// provider timeout.
func (w *DomainRegistration) registrarFor(ctx context.Context, registrarID int64) (catalog.Registrar, providers.Registrar, error) {
	reg, err := w.Store.Repos().Registrars.GetByID(ctx, registrarID)
	if err != nil {
		return catalog.Registrar{}, nil, err
	}
	if !reg.Active {
		return reg, nil, fmt.Errorf("registrar %s is inactive: %w", reg.Name, billing_errors.ErrInvalidInput)
	}
	adapter, err := w.registrars.Get(reg.AdapterKey)
	if err != nil {
		return reg, nil, err
	}
	return reg, providers.RegistrarWithTimeout(adapter, w.providerTimeout), nil
}

// Execute places a Pending order for the domain together with its Draft
// invoice. Nothing is registered until the invoice is paid.
func (w *DomainRegistration) Execute(ctx context.Context, in RegistrationInput) (commands.Result, error) {
	ctx, corr := logger.EnsureCorrelationID(ctx)
	name := domainname.NormalizeName(in.DomainName)
	log := logger.WithContext(ctx, w.Log).With(zap.String("domain", name))

	cmd := commands.RegisterDomain{
		CustomerID:  in.CustomerID,
		RegistrarID: in.RegistrarID,
		DomainName:  name,
		Years:       in.Years,
		AutoRenew:   in.AutoRenew,
	}
	if err := cmd.Validate(); err != nil {
		return w.fail(corr, commands.KindValidation, err.Error()), nil
	}
	years := in.Years
	if years == 0 {
		years = 1
	}

	if _, err := w.Store.Repos().Customers.GetByID(ctx, in.CustomerID); err != nil {
		return w.failErr(corr, err)
	}
	reg, adapter, err := w.registrarFor(ctx, in.RegistrarID)
	if err != nil {
		return w.failErr(corr, err)
	}
	defer w.Locks.Lock("domain-name:" + name)()
	if _, err := w.Store.Repos().Domains.GetByName(ctx, name); err == nil {
		return w.fail(corr, commands.KindConflict, fmt.Sprintf("domain %s is already managed", name)), nil
	} else if !errors.Is(err, billing_errors.ErrNotFound) {
		return w.failErr(corr, err)
	}
	if n, err := w.Store.Repos().Orders.CountOpenRegistrations(ctx, name, 0); err != nil {
		return w.failErr(corr, err)
	} else if n > 0 {
		return w.fail(corr, commands.KindConflict, fmt.Sprintf("domain %s already has an open registration order", name)), nil
	}

	avail, err := adapter.CheckAvailability(ctx, name)
	if err != nil {
		log.Warn("Availability check failed", zap.Error(err))
		return w.fail(corr, commands.KindDependency, "availability check failed: "+err.Error()), nil
	}
	if !avail.Available {
		return w.fail(corr, commands.KindValidation, fmt.Sprintf("domain %s is not available", name)), nil
	}
	priceCurrency := avail.Currency
	if priceCurrency == "" {
		priceCurrency = reg.Currency
	}
	price := avail.Price.Mul(decimal.NewFromInt(int64(years)))

	var (
		o   order.Order
		inv invoice.Invoice
	)
	err = w.Store.WithTx(ctx, func(repos repository.Repositories) error {
		svc, err := repos.Services.FindOrCreate(ctx, in.CustomerID, catalog.ServiceTypeDomain, name)
		if err != nil {
			return err
		}
		registrarID := reg.ID
		o = order.Order{
			OrderNumber:        order.NewOrderNumber(w.now()),
			CustomerID:         in.CustomerID,
			ServiceID:          svc.ID,
			ServiceType:        string(catalog.ServiceTypeDomain),
			RegistrarID:        &registrarID,
			AutoRenew:          in.AutoRenew,
			Status:             order.StatusPending,
			BillingCycleMonths: 12 * years,
			RecurringAmount:    price,
			Currency:           priceCurrency,
		}
		if err := repos.Orders.Create(ctx, &o); err != nil {
			return err
		}
		orderID := o.ID
		inv, err = w.invoices.GenerateInvoice(ctx, repos, InvoiceRequest{
			CustomerID: in.CustomerID,
			OrderID:    &orderID,
			Kind:       invoice.KindRegistration,
			Status:     invoice.StatusDraft,
			Amount:     price,
			Currency:   priceCurrency,
		})
		if err != nil {
			return err
		}
		return w.Events.Emit(ctx, repos, events.EventTypeOrderCreated, events.AggregateTypeOrder, o.ID, events.OrderCreatedPayload{
			OrderID:       o.ID,
			OrderNumber:   o.OrderNumber,
			CustomerID:    o.CustomerID,
			ServiceType:   o.ServiceType,
			InvoiceID:     inv.ID,
			InvoiceNumber: inv.Number,
			Amount:        inv.TotalAmount,
			Currency:      inv.Currency,
			DomainName:    name,
		})
	})
	if err != nil {
		log.Error("Failed to place registration order", zap.Error(err))
		return w.failErr(corr, err)
	}
	w.Events.Committed(ctx)
	w.Metrics.IncWorkflow(workflowRegistration, "ordered")
	log.Info("Registration order placed", zap.String("order_number", o.OrderNumber), zap.String("invoice_number", inv.Number))
	return commands.Succeeded(corr, "ordered", o.ID).WithInvoice(inv.ID), nil
}

// OnPaymentReceived registers the domain for a paid registration order. A
// registrar failure suspends the order instead of leaving it Pending.
func (w *DomainRegistration) OnPaymentReceived(ctx context.Context, orderID, invoiceID int64) (commands.Result, error) {
	ctx, corr := logger.EnsureCorrelationID(ctx)
	log := logger.WithContext(ctx, w.Log).With(zap.Int64("order_id", orderID))

	defer w.Locks.Order(orderID)()

	o, err := w.Store.Repos().Orders.GetByID(ctx, orderID)
	if err != nil {
		return w.failErr(corr, err)
	}
	switch o.Status {
	case order.StatusActive:
		w.Metrics.IncWorkflow(workflowRegistration, "already_registered")
		return commands.Succeeded(corr, "already_registered", o.ID), nil
	case order.StatusSuspended:
		w.Metrics.IncWorkflow(workflowRegistration, "already_compensated")
		return commands.Succeeded(corr, "already_compensated", o.ID), nil
	}
	if o.Status != order.StatusPending {
		return w.fail(corr, commands.KindValidation, fmt.Sprintf("order %s is %s, expected %s", o.OrderNumber, o.Status, order.StatusPending)), nil
	}
	if o.ServiceType != string(catalog.ServiceTypeDomain) || o.RegistrarID == nil {
		return w.fail(corr, commands.KindValidation, fmt.Sprintf("order %s is not a domain registration", o.OrderNumber)), nil
	}
	if invoiceID > 0 {
		inv, err := w.Store.Repos().Invoices.GetByID(ctx, invoiceID)
		if err != nil {
			return w.failErr(corr, err)
		}
		if inv.OrderID == nil || *inv.OrderID != o.ID || inv.Status != invoice.StatusPaid {
			return w.fail(corr, commands.KindValidation, fmt.Sprintf("invoice %s is not a paid invoice of order %s", inv.Number, o.OrderNumber)), nil
		}
	}

	svc, err := w.Store.Repos().Services.GetByID(ctx, o.ServiceID)
	if err != nil {
		return w.failErr(corr, err)
	}
	years := o.BillingCycleMonths / 12
	if years < 1 {
		years = 1
	}

	if _, err := w.Store.Repos().Domains.GetByName(ctx, svc.Reference); err == nil {
		log.Warn("Domain already managed, suspending order", zap.String("domain", svc.Reference))
		return w.compensate(ctx, corr, o.ID, fmt.Sprintf("domain %s is already managed", svc.Reference))
	} else if !errors.Is(err, billing_errors.ErrNotFound) {
		return w.failErr(corr, err)
	}

	_, adapter, err := w.registrarFor(ctx, *o.RegistrarID)
	if err != nil {
		if commands.KindOf(err) == commands.KindInfrastructure {
			return w.failErr(corr, err)
		}
		log.Warn("Registrar unusable, suspending order", zap.Error(err))
		return w.compensate(ctx, corr, o.ID, "registrar unavailable: "+err.Error())
	}
	result, regErr := register(ctx, adapter, providers.RegisterRequest{
		IdempotencyKey: fmt.Sprintf("order-%d", o.ID),
		DomainName:     svc.Reference,
		CustomerID:     o.CustomerID,
		Years:          years,
	})
	if regErr != nil {
		log.Warn("Registrar registration failed, suspending order", zap.Error(regErr))
		return w.compensate(ctx, corr, o.ID, "registration failed: "+regErr.Error())
	}

	var d domainname.Domain
	err = w.Store.WithTx(ctx, func(repos repository.Repositories) error {
		cur, err := repos.Orders.GetForUpdate(ctx, o.ID)
		if err != nil {
			return err
		}
		nextOrder, err := w.orders.Transition(cur.Status, order.Activate)
		if err != nil {
			return err
		}
		status, err := w.domains.Transition(domainname.StatusPendingRegistration, domainname.Register)
		if err != nil {
			return err
		}
		now := w.now()
		expires := result.ExpirationDate.UTC().Truncate(time.Microsecond)
		if expires.IsZero() {
			expires = now.AddDate(years, 0, 0)
		}
		orderRef := cur.ID
		d = domainname.Domain{
			Name:             svc.Reference,
			CustomerID:       cur.CustomerID,
			RegistrarID:      *cur.RegistrarID,
			OrderID:          &orderRef,
			Status:           status,
			RegistrationDate: &now,
			ExpirationDate:   expires,
			AutoRenew:        cur.AutoRenew,
			RenewalPrice:     cur.RecurringAmount,
			Currency:         cur.Currency,
			RenewalYears:     years,
		}
		if err := repos.Domains.Create(ctx, &d); err != nil {
			return err
		}

		from := cur.Status
		cur = cur.Activated(now)
		cur.Status = nextOrder
		if err := repos.Orders.Update(ctx, &cur); err != nil {
			return err
		}
		if err := w.Events.Emit(ctx, repos, events.EventTypeDomainRegistered, events.AggregateTypeDomain, d.ID, events.DomainRegisteredPayload{
			DomainID:       d.ID,
			Name:           d.Name,
			CustomerID:     d.CustomerID,
			OrderID:        cur.ID,
			RegistrarID:    d.RegistrarID,
			ExpirationDate: d.ExpirationDate,
		}); err != nil {
			return err
		}
		return w.Events.Emit(ctx, repos, events.EventTypeOrderActivated, events.AggregateTypeOrder, cur.ID,
			orderStatusPayload(cur, from, "", now))
	})
	if errors.Is(err, billing_errors.ErrAlreadyExists) {
		log.Error("Registered at registrar but the domain is already managed",
			zap.String("registrar_ref", result.RegistrarRef), zap.Bool("alert", true), zap.Error(err))
		return w.compensate(ctx, corr, o.ID, fmt.Sprintf("domain %s is already managed", svc.Reference))
	}
	if err != nil {
		log.Error("Registered at registrar but failed to record it", zap.String("registrar_ref", result.RegistrarRef), zap.Error(err))
		return w.failErr(corr, err)
	}
	w.Events.Committed(ctx)
	w.Metrics.IncWorkflow(workflowRegistration, "registered")
	log.Info("Domain registered", zap.String("domain", d.Name), zap.Time("expires", d.ExpirationDate))
	res := commands.Succeeded(corr, "registered", d.ID)
	res.InvoiceID = invoiceID
	return res, nil
}

func register(ctx context.Context, adapter providers.Registrar, req providers.RegisterRequest) (providers.RegisterResult, error) {
	res, err := adapter.Register(ctx, req)
	if err != nil {
		return res, err
	}
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "registrar declined"
		}
		return res, fmt.Errorf("%s: %w", msg, billing_errors.ErrProviderFailure)
	}
	return res, nil
}

// compensate suspends a Pending order after a dependency failure.
func (w *DomainRegistration) compensate(ctx context.Context, corr string, orderID int64, reason string) (commands.Result, error) {
	err := w.Store.WithTx(ctx, func(repos repository.Repositories) error {
		return suspendOrder(ctx, w.Deps, w.orders, repos, orderID, reason)
	})
	if err != nil {
		logger.WithContext(ctx, w.Log).Error("Compensation failed", zap.Int64("order_id", orderID), zap.Error(err))
		return w.failErr(corr, err)
	}
	w.Events.Committed(ctx)
	w.Metrics.IncWorkflow(workflowRegistration, "compensated")
	res := commands.Failed(corr, commands.KindDependency, reason)
	res.AggregateID = orderID
	return res, nil
}

func (w *DomainRegistration) fail(corr string, kind commands.ErrorKind, msg string) commands.Result {
	w.Metrics.IncWorkflow(workflowRegistration, string(kind))
	return commands.Failed(corr, kind, msg)
}

func (w *DomainRegistration) failErr(corr string, err error) (commands.Result, error) {
	res, ferr := commands.FromError(corr, err)
	w.Metrics.IncWorkflow(workflowRegistration, string(res.Kind))
	return res, ferr
}
