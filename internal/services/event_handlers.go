package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"billing-lifecycle/internal/commands"
	"billing-lifecycle/internal/domain/catalog"
	"billing-lifecycle/internal/domain/event"
	"billing-lifecycle/internal/domain/invoice"
	"billing-lifecycle/internal/events"
	"billing-lifecycle/internal/repository"
	"billing-lifecycle/pkg/logger"
)

// InvoiceArchiver is satisfied by storage.InvoiceArchive.
type InvoiceArchiver interface {
	Put(ctx context.Context, inv invoice.Invoice, at time.Time) error
}

// HandlerSet is everything RegisterHandlers wires. Archive and Relay are
// optional.
type HandlerSet struct {
	Store         *repository.Store
	Notifications *Notifications
	Registration  *DomainRegistration
	Provisioning  *OrderProvisioning
	Archive       InvoiceArchiver
	Relay         *events.Relay
	Log           *zap.Logger
	Now           func() time.Time
}

type binding struct {
	eventType string
	name      string
	fn        events.Handler
}

// RegisterHandlers binds the lifecycle handlers to reg.
func RegisterHandlers(reg *events.Registry, h HandlerSet) error {
	if h.Log == nil {
		h.Log = zap.NewNop()
	}
	if h.Now == nil {
		h.Now = time.Now
	}
	regs := []binding{
		{events.EventTypeOrderCreated, "notify-order-created", events.Typed(h.notifyOrderCreated)},
		{events.EventTypeInvoicePaid, "route-paid-invoice", events.Typed(h.routePaidInvoice)},
		{events.EventTypeDomainRegistered, "notify-domain-registered", events.Typed(h.notifyDomainRegistered)},
		{events.EventTypeOrderActivated, "notify-order-activated", events.Typed(h.notifyOrderActivated)},
		{events.EventTypeOrderSuspended, "notify-order-suspended", events.Typed(h.notifyOrderSuspended)},
		{events.EventTypeDomainRenewed, "notify-domain-renewed", events.Typed(h.notifyDomainRenewed)},
		{events.EventTypeDomainExpired, "notify-domain-expired", events.Typed(h.notifyDomainExpired)},
	}
	if h.Archive != nil {
		regs = append(regs, binding{events.EventTypeInvoiceGenerated, "archive-invoice", events.Typed(h.archiveInvoice)})
	}
	if h.Relay != nil {
		regs = append(regs, binding{events.AllEvents, "redis-relay", h.Relay.Handle})
	}
	for _, r := range regs {
		if err := reg.Register(r.eventType, r.name, r.fn); err != nil {
			return err
		}
	}
	return nil
}

func dedupeKey(e event.DomainEvent, handler string) string {
	return e.ID.String() + ":" + handler
}

func (h HandlerSet) notifyOrderCreated(ctx context.Context, e event.DomainEvent, p events.OrderCreatedPayload) error {
	return h.Notifications.Send(ctx, mailOrderCreated, p.CustomerID, dedupeKey(e, "notify-order-created"), mailData{
		OrderNumber:   p.OrderNumber,
		InvoiceNumber: p.InvoiceNumber,
		Subject:       p.DomainName,
		Amount:        p.Amount,
		Currency:      p.Currency,
	})
}

func (h HandlerSet) notifyOrderActivated(ctx context.Context, e event.DomainEvent, p events.OrderStatusPayload) error {
	return h.Notifications.Send(ctx, mailOrderActivated, p.CustomerID, dedupeKey(e, "notify-order-activated"), mailData{
		OrderNumber: p.OrderNumber,
		Subject:     p.ServiceType,
	})
}

func (h HandlerSet) notifyOrderSuspended(ctx context.Context, e event.DomainEvent, p events.OrderStatusPayload) error {
	logger.WithContext(ctx, h.Log).Error("Order suspended",
		zap.Bool("alert", true),
		zap.Int64("order_id", p.OrderID),
		zap.String("order_number", p.OrderNumber),
		zap.String("reason", p.Reason),
	)
	return h.Notifications.Send(ctx, mailOrderSuspended, p.CustomerID, dedupeKey(e, "notify-order-suspended"), mailData{
		OrderNumber: p.OrderNumber,
		Reason:      p.Reason,
	})
}

func (h HandlerSet) notifyDomainRegistered(ctx context.Context, e event.DomainEvent, p events.DomainRegisteredPayload) error {
	return h.Notifications.Send(ctx, mailDomainRegistered, p.CustomerID, dedupeKey(e, "notify-domain-registered"), mailData{
		Subject: p.Name,
		Date:    mailDate(p.ExpirationDate),
	})
}

func (h HandlerSet) notifyDomainRenewed(ctx context.Context, e event.DomainEvent, p events.DomainRenewedPayload) error {
	return h.Notifications.Send(ctx, mailDomainRenewed, p.CustomerID, dedupeKey(e, "notify-domain-renewed"), mailData{
		Subject:  p.Name,
		Date:     mailDate(p.ExpirationDate),
		Amount:   p.Amount,
		Currency: p.Currency,
	})
}

func (h HandlerSet) notifyDomainExpired(ctx context.Context, e event.DomainEvent, p events.DomainStatusPayload) error {
	return h.Notifications.Send(ctx, mailDomainExpired, p.CustomerID, dedupeKey(e, "notify-domain-expired"), mailData{
		Subject: p.Name,
		Date:    mailDate(p.At),
	})
}

// archiveInvoice snapshots the current invoice row; repeated runs overwrite
// the same object.
func (h HandlerSet) archiveInvoice(ctx context.Context, _ event.DomainEvent, p events.InvoiceGeneratedPayload) error {
	inv, err := h.Store.Repos().Invoices.GetByID(ctx, p.InvoiceID)
	if err != nil {
		return err
	}
	return h.Archive.Put(ctx, inv, h.Now())
}

// routePaidInvoice continues the workflow that owns a paid invoice. Only
// infrastructure failures are returned for retry; dependency failures were
// already compensated.
func (h HandlerSet) routePaidInvoice(ctx context.Context, _ event.DomainEvent, p events.InvoicePaidPayload) error {
	if p.Kind == string(invoice.KindRenewal) || p.OrderID == nil {
		return nil
	}
	o, err := h.Store.Repos().Orders.GetByID(ctx, *p.OrderID)
	if err != nil {
		return err
	}

	var res commands.Result
	if o.ServiceType == string(catalog.ServiceTypeDomain) && p.Kind == string(invoice.KindRegistration) {
		res, err = h.Registration.OnPaymentReceived(ctx, o.ID, p.InvoiceID)
	} else {
		res, err = h.Provisioning.ProvisionAsync(ctx, o.ID)
	}
	if err != nil {
		return fmt.Errorf("paid invoice %s: %w", p.InvoiceNumber, err)
	}
	if !res.Success {
		logger.WithContext(ctx, h.Log).Warn("Paid invoice workflow did not succeed",
			zap.String("invoice_number", p.InvoiceNumber),
			zap.String("kind", string(res.Kind)),
			zap.String("message", res.Message),
		)
	}
	return nil
}
