package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"billing-lifecycle/internal/commands"
	"billing-lifecycle/internal/domain/domainname"
	"billing-lifecycle/internal/domain/invoice"
	"billing-lifecycle/internal/events"
	"billing-lifecycle/internal/providers"
	"billing-lifecycle/internal/repository"
	billing_errors "billing-lifecycle/pkg/errors"
	"billing-lifecycle/pkg/logger"
)

const (
	workflowRenewal = "renewal"

	// DefaultRenewalWindowDays is how close to expiration a domain must be
	// before a renewal is attempted.
	DefaultRenewalWindowDays = 30
)

type DomainRenewal struct {
	Deps
	registrars      *providers.RegistrarFactory
	payments        providers.PaymentProcessor
	invoices        InvoiceGenerator
	notifications   *Notifications
	windowDays      int
	providerTimeout time.Duration
	domains         *domainname.Machine
}

func NewDomainRenewal(deps Deps, registrars *providers.RegistrarFactory, payments providers.PaymentProcessor, invoices InvoiceGenerator, notifications *Notifications, windowDays int, providerTimeout time.Duration) *DomainRenewal {
	if windowDays <= 0 {
		windowDays = DefaultRenewalWindowDays
	}
	return &DomainRenewal{
		Deps:            deps,
		registrars:      registrars,
		payments:        providers.PaymentsWithTimeout(payments, providerTimeout),
		invoices:        invoices,
		notifications:   notifications,
		windowDays:      windowDays,
		providerTimeout: providerTimeout,
		domains:         domainname.NewMachine(),
	}
}

// Execute renews domainID when it is inside the renewal window. Outside the
// window it succeeds with outcome not_due and changes nothing.
func (w *DomainRenewal) Execute(ctx context.Context, domainID int64) (commands.Result, error) {
	ctx, corr := logger.EnsureCorrelationID(ctx)
	log := logger.WithContext(ctx, w.Log).With(zap.Int64("domain_id", domainID))

	defer w.Locks.Domain(domainID)()

	d, err := w.Store.Repos().Domains.GetByID(ctx, domainID)
	if err != nil {
		return w.failErr(corr, err)
	}
	if !d.WithinRenewalWindow(w.now(), w.windowDays) {
		w.Metrics.IncWorkflow(workflowRenewal, "not_due")
		return commands.Succeeded(corr, "not_due", d.ID), nil
	}
	if _, err := w.domains.Transition(d.Status, domainname.Renew); err != nil {
		return w.failErr(corr, err)
	}

	inv, err := w.renewalInvoice(ctx, d)
	if err != nil {
		log.Error("Failed to prepare renewal invoice", zap.Error(err))
		return w.failErr(corr, err)
	}

	if !d.AutoRenew && inv.Status != invoice.StatusPaid {
		w.remind(ctx, d, inv, "")
		w.Metrics.IncWorkflow(workflowRenewal, "invoiced")
		return commands.Succeeded(corr, "invoiced", d.ID).WithInvoice(inv.ID), nil
	}
	return w.ProcessAutoRenewal(ctx, d, inv)
}

// renewalInvoice returns the invoice for the period that starts at the
// current expiration date, creating it on first use.
func (w *DomainRenewal) renewalInvoice(ctx context.Context, d domainname.Domain) (invoice.Invoice, error) {
	periodStart := d.ExpirationDate
	var inv invoice.Invoice
	created := false
	err := w.Store.WithTx(ctx, func(repos repository.Repositories) error {
		existing, err := repos.Invoices.FindRenewal(ctx, d.ID, periodStart)
		if err == nil {
			inv = existing
			return nil
		}
		if !errors.Is(err, billing_errors.ErrNotFound) {
			return err
		}
		domainID := d.ID
		inv, err = w.invoices.GenerateInvoice(ctx, repos, InvoiceRequest{
			CustomerID:  d.CustomerID,
			OrderID:     d.OrderID,
			DomainID:    &domainID,
			Kind:        invoice.KindRenewal,
			Status:      invoice.StatusUnpaid,
			Amount:      d.RenewalPrice,
			Currency:    d.Currency,
			PeriodStart: &periodStart,
		})
		created = err == nil
		return err
	})
	if err != nil {
		return invoice.Invoice{}, err
	}
	if created {
		w.Events.Committed(ctx)
	}
	return inv, nil
}

// ProcessAutoRenewal charges the renewal invoice and renews at the registrar.
// The expiration date only moves after the registrar confirmed. Callers hold
// the domain lock.
func (w *DomainRenewal) ProcessAutoRenewal(ctx context.Context, d domainname.Domain, inv invoice.Invoice) (commands.Result, error) {
	ctx, corr := logger.EnsureCorrelationID(ctx)
	log := logger.WithContext(ctx, w.Log).With(zap.Int64("domain_id", d.ID), zap.String("invoice_number", inv.Number))

	inv, stop, err := w.capture(ctx, corr, d, inv)
	if err != nil {
		return w.failErr(corr, err)
	}
	if stop != nil {
		return *stop, nil
	}

	renewed, err := w.renewAtRegistrar(ctx, d, inv)
	if err != nil {
		if commands.KindOf(err) == commands.KindInfrastructure {
			return w.failErr(corr, err)
		}
		return w.dependencyFailure(ctx, corr, d, inv, "registrar renewal failed: "+err.Error())
	}
	log.Debug("Registrar confirmed renewal", zap.Time("registrar_expiration", renewed.ExpirationDate))

	var updated domainname.Domain
	err = w.Store.WithTx(ctx, func(repos repository.Repositories) error {
		cur, err := repos.Domains.GetForUpdate(ctx, d.ID)
		if err != nil {
			return err
		}
		if !cur.ExpirationDate.Equal(d.ExpirationDate) || cur.Version != d.Version {
			return fmt.Errorf("domain %s changed during renewal: %w", cur.Name, billing_errors.ErrConflict)
		}
		next, err := w.domains.Transition(cur.Status, domainname.Renew)
		if err != nil {
			return err
		}
		previous := cur.ExpirationDate
		cur.ExpirationDate = cur.Extended()
		cur.Status = next
		if err := repos.Domains.Update(ctx, &cur); err != nil {
			return err
		}

		paid, err := repos.Invoices.GetForUpdate(ctx, inv.ID)
		if err != nil {
			return err
		}
		if paid.Status != invoice.StatusPaid {
			now := w.now()
			paid.Status = invoice.StatusPaid
			paid.PaidAt = &now
			paid.PaymentReference = inv.PaymentReference
			if err := repos.Invoices.Update(ctx, &paid); err != nil {
				return err
			}
			if err := w.Events.Emit(ctx, repos, events.EventTypeInvoicePaid, events.AggregateTypeInvoice, paid.ID, paidPayload(paid)); err != nil {
				return err
			}
		}
		updated = cur
		return w.Events.Emit(ctx, repos, events.EventTypeDomainRenewed, events.AggregateTypeDomain, cur.ID, events.DomainRenewedPayload{
			DomainID:           cur.ID,
			Name:               cur.Name,
			CustomerID:         cur.CustomerID,
			InvoiceID:          paid.ID,
			PreviousExpiration: previous,
			ExpirationDate:     cur.ExpirationDate,
			Amount:             paid.TotalAmount,
			Currency:           paid.Currency,
		})
	})
	if err != nil {
		log.Error("Renewed at registrar but failed to record it", zap.Bool("alert", true), zap.Error(err))
		return w.failErr(corr, err)
	}
	w.Events.Committed(ctx)
	w.Metrics.IncWorkflow(workflowRenewal, "renewed")
	log.Info("Domain renewed", zap.Time("expires", updated.ExpirationDate))
	return commands.Succeeded(corr, "renewed", d.ID).WithInvoice(inv.ID), nil
}

// capture charges the renewal invoice unless it was paid or captured already.
// The invoice lock is held across the charge, so a gateway payment recorded at
// the same time either lands first and is reused, or waits and sees Paid. A
// non-nil stop result ends the renewal.
func (w *DomainRenewal) capture(ctx context.Context, corr string, d domainname.Domain, stale invoice.Invoice) (invoice.Invoice, *commands.Result, error) {
	defer w.Locks.Invoice(stale.ID)()

	inv, err := w.Store.Repos().Invoices.GetByID(ctx, stale.ID)
	if err != nil {
		return stale, nil, err
	}
	if inv.Status == invoice.StatusPaid || inv.PaymentReference != "" {
		return inv, nil, nil
	}
	if !inv.Payable() {
		return inv, nil, fmt.Errorf("invoice %s is %s: %w", inv.Number, inv.Status, errNotPayable)
	}

	stop := func(reason string) (invoice.Invoice, *commands.Result, error) {
		res, _ := w.dependencyFailure(ctx, corr, d, inv, reason)
		return inv, &res, nil
	}
	ok, err := w.payments.HasActivePaymentMethod(ctx, d.CustomerID)
	if err != nil {
		return stop("payment method lookup failed: " + err.Error())
	}
	if !ok {
		return stop("no active payment method")
	}
	charge, err := w.payments.Charge(ctx, providers.ChargeRequest{
		CustomerID: d.CustomerID,
		Amount:     inv.TotalAmount,
		Currency:   inv.Currency,
		Reference:  inv.Number,
	})
	if err != nil {
		return stop("payment failed: " + err.Error())
	}
	if !charge.Success {
		return stop("payment declined: " + charge.Error)
	}
	// The capture is recorded before the registrar call so a retry never
	// charges twice.
	if err := w.Store.Repos().Invoices.RecordCapture(ctx, inv.ID, charge.TransactionID); err != nil {
		logger.WithContext(ctx, w.Log).Error("Payment captured but reference not stored",
			zap.Int64("domain_id", d.ID), zap.String("invoice_number", inv.Number),
			zap.String("transaction_id", charge.TransactionID), zap.Bool("alert", true), zap.Error(err))
		return inv, nil, err
	}
	inv.PaymentReference = charge.TransactionID
	return inv, nil, nil
}

func (w *DomainRenewal) renewAtRegistrar(ctx context.Context, d domainname.Domain, inv invoice.Invoice) (providers.RenewResult, error) {
	reg, err := w.Store.Repos().Registrars.GetByID(ctx, d.RegistrarID)
	if err != nil {
		return providers.RenewResult{}, err
	}
	adapter, err := w.registrars.Get(reg.AdapterKey)
	if err != nil {
		return providers.RenewResult{}, err
	}
	res, err := providers.RegistrarWithTimeout(adapter, w.providerTimeout).Renew(ctx, providers.RenewRequest{
		IdempotencyKey:    "renew-" + inv.Number,
		DomainName:        d.Name,
		Years:             d.Period(),
		CurrentExpiration: d.ExpirationDate,
	})
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

// dependencyFailure sends the renewal reminder and reports the failure. The
// domain is left untouched.
func (w *DomainRenewal) dependencyFailure(ctx context.Context, corr string, d domainname.Domain, inv invoice.Invoice, reason string) (commands.Result, error) {
	logger.WithContext(ctx, w.Log).Warn("Automatic renewal failed",
		zap.Int64("domain_id", d.ID), zap.String("reason", reason))
	w.remind(ctx, d, inv, reason)
	w.Metrics.IncWorkflow(workflowRenewal, "reminded")
	res := commands.Failed(corr, commands.KindDependency, reason).WithInvoice(inv.ID)
	res.AggregateID = d.ID
	return res, nil
}

func (w *DomainRenewal) remind(ctx context.Context, d domainname.Domain, inv invoice.Invoice, reason string) {
	if w.notifications == nil {
		return
	}
	err := w.notifications.Send(ctx, mailRenewalReminder, d.CustomerID, fmt.Sprintf("renewal-reminder:%s:%s", inv.Number, reason), mailData{
		Subject:       d.Name,
		InvoiceNumber: inv.Number,
		Amount:        inv.TotalAmount,
		Currency:      inv.Currency,
		Reason:        reason,
		Date:          mailDate(d.ExpirationDate),
	})
	if err != nil {
		logger.WithContext(ctx, w.Log).Warn("Renewal reminder not queued", zap.Int64("domain_id", d.ID), zap.Error(err))
	}
}

// ScanRenewals runs Execute for every renewable domain expiring within the
// window. Auto-renew domains are charged and renewed; the others get their
// renewal invoice and a reminder, deduplicated per invoice. It returns how
// many were renewed.
func (w *DomainRenewal) ScanRenewals(ctx context.Context) (int, error) {
	ctx, _ = logger.EnsureCorrelationID(ctx)
	cutoff := w.now().AddDate(0, 0, w.windowDays).Add(time.Second)
	due, err := w.Store.Repos().Domains.ListExpiringBefore(ctx, cutoff, []domainname.Status{
		domainname.StatusActive,
		domainname.StatusPendingRenewal,
	}, 500)
	if err != nil {
		return 0, fmt.Errorf("list renewable domains: %w", err)
	}
	renewed := 0
	for _, d := range due {
		res, err := w.Execute(ctx, d.ID)
		if err != nil {
			logger.WithContext(ctx, w.Log).Error("Renewal failed", zap.Int64("domain_id", d.ID), zap.Error(err))
			continue
		}
		if res.Success && res.Outcome == "renewed" {
			renewed++
		}
	}
	return renewed, nil
}

func (w *DomainRenewal) failErr(corr string, err error) (commands.Result, error) {
	res, ferr := commands.FromError(corr, err)
	w.Metrics.IncWorkflow(workflowRenewal, string(res.Kind))
	return res, ferr
}
