package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"billing-lifecycle/internal/commands"
	"billing-lifecycle/internal/domain/catalog"
	"billing-lifecycle/internal/domain/invoice"
	"billing-lifecycle/internal/domain/order"
	"billing-lifecycle/internal/events"
	"billing-lifecycle/internal/providers"
	"billing-lifecycle/internal/repository"
	"billing-lifecycle/pkg/logger"
)

const workflowProvisioning = "provisioning"

type PlaceOrderInput struct {
	CustomerID         int64
	ServiceType        catalog.ServiceType
	Reference          string
	Amount             decimal.Decimal
	Currency           string
	BillingCycleMonths int
}

type OrderProvisioning struct {
	Deps
	provisioners map[catalog.ServiceType]providers.Provisioner
	invoices     InvoiceGenerator
	strict       bool
	orders       *order.Machine
}

// NewOrderProvisioning wires one provisioner per service type. With strict
// set, orders for a type without a provisioner are rejected instead of being
// activated with a warning.
func NewOrderProvisioning(deps Deps, provisioners map[catalog.ServiceType]providers.Provisioner, invoices InvoiceGenerator, providerTimeout time.Duration, strict bool) *OrderProvisioning {
	wrapped := make(map[catalog.ServiceType]providers.Provisioner, len(provisioners))
	for t, p := range provisioners {
		wrapped[t] = providers.ProvisionerWithTimeout(p, providerTimeout)
	}
	return &OrderProvisioning{
		Deps:         deps,
		provisioners: wrapped,
		invoices:     invoices,
		strict:       strict,
		orders:       order.NewMachine(),
	}
}

// PlaceOrder creates a Pending service order and its Draft invoice.
// Provisioning starts once the invoice is paid.
func (w *OrderProvisioning) PlaceOrder(ctx context.Context, in PlaceOrderInput) (commands.Result, error) {
	ctx, corr := logger.EnsureCorrelationID(ctx)
	reference := strings.TrimSpace(in.Reference)
	switch {
	case in.CustomerID <= 0:
		return commands.Failed(corr, commands.KindValidation, "customer_id is required"), nil
	case in.ServiceType == "" || in.ServiceType == catalog.ServiceTypeDomain:
		return commands.Failed(corr, commands.KindValidation, "service type is required; domains are ordered through registration"), nil
	case reference == "":
		return commands.Failed(corr, commands.KindValidation, "reference is required"), nil
	case !in.Amount.IsPositive():
		return commands.Failed(corr, commands.KindValidation, "amount must be positive"), nil
	}

	var (
		o   order.Order
		inv invoice.Invoice
	)
	err := w.Store.WithTx(ctx, func(repos repository.Repositories) error {
		svc, err := repos.Services.FindOrCreate(ctx, in.CustomerID, in.ServiceType, reference)
		if err != nil {
			return err
		}
		o = order.Order{
			OrderNumber:        order.NewOrderNumber(w.now()),
			CustomerID:         in.CustomerID,
			ServiceID:          svc.ID,
			ServiceType:        string(in.ServiceType),
			Status:             order.StatusPending,
			BillingCycleMonths: in.BillingCycleMonths,
			RecurringAmount:    in.Amount,
			Currency:           strings.ToUpper(in.Currency),
		}
		if err := repos.Orders.Create(ctx, &o); err != nil {
			return err
		}
		orderID := o.ID
		inv, err = w.invoices.GenerateInvoice(ctx, repos, InvoiceRequest{
			CustomerID: in.CustomerID,
			OrderID:    &orderID,
			Kind:       invoice.KindService,
			Status:     invoice.StatusDraft,
			Amount:     in.Amount,
			Currency:   o.Currency,
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
		})
	})
	if err != nil {
		return commands.FromError(corr, err)
	}
	w.Events.Committed(ctx)
	w.Metrics.IncWorkflow(workflowProvisioning, "ordered")
	return commands.Succeeded(corr, "ordered", o.ID).WithInvoice(inv.ID), nil
}

// ProvisionAsync sets up the resource behind a paid order and activates it.
// Provider failures suspend the order.
func (w *OrderProvisioning) ProvisionAsync(ctx context.Context, orderID int64) (commands.Result, error) {
	ctx, corr := logger.EnsureCorrelationID(ctx)
	log := logger.WithContext(ctx, w.Log).With(zap.Int64("order_id", orderID))

	defer w.Locks.Order(orderID)()

	o, err := w.Store.Repos().Orders.GetByID(ctx, orderID)
	if err != nil {
		return w.failErr(corr, err)
	}
	if o.Status == order.StatusActive {
		w.Metrics.IncWorkflow(workflowProvisioning, "already_active")
		return commands.Succeeded(corr, "already_active", o.ID), nil
	}
	if !w.orders.CanTransition(o.Status, order.Activate) {
		_, err := w.orders.Transition(o.Status, order.Activate)
		return w.failErr(corr, err)
	}

	svc, err := w.Store.Repos().Services.GetByID(ctx, o.ServiceID)
	if err != nil {
		return w.failErr(corr, err)
	}

	serviceType := catalog.ServiceType(o.ServiceType)
	if serviceType != catalog.ServiceTypeDomain {
		p, ok := w.provisioners[serviceType]
		switch {
		case ok:
			err := p.Provision(ctx, providers.ProvisionRequest{
				OrderID:     o.ID,
				OrderNumber: o.OrderNumber,
				CustomerID:  o.CustomerID,
				ServiceID:   svc.ID,
				ServiceType: o.ServiceType,
				Reference:   svc.Reference,
			})
			if err != nil {
				log.Warn("Provisioning failed, suspending order", zap.String("service_type", o.ServiceType), zap.Error(err))
				return w.compensate(ctx, corr, o.ID, fmt.Sprintf("%s provisioning failed: %s", o.ServiceType, err))
			}
		case w.strict:
			return w.fail(corr, commands.KindValidation, fmt.Sprintf("no provisioner for service type %q", o.ServiceType)), nil
		default:
			log.Warn("No provisioner for service type, activating anyway", zap.String("service_type", o.ServiceType))
		}
	}

	err = w.Store.WithTx(ctx, func(repos repository.Repositories) error {
		_, err := applyOrderTransition(ctx, w.Deps, w.orders, repos, o.ID, order.Activate, "")
		return err
	})
	if err != nil {
		log.Error("Failed to activate provisioned order", zap.Error(err))
		return w.failErr(corr, err)
	}
	w.Events.Committed(ctx)
	w.Metrics.IncWorkflow(workflowProvisioning, "activated")
	log.Info("Order provisioned", zap.String("service_type", o.ServiceType))
	return commands.Succeeded(corr, "activated", o.ID), nil
}

func (w *OrderProvisioning) compensate(ctx context.Context, corr string, orderID int64, reason string) (commands.Result, error) {
	err := w.Store.WithTx(ctx, func(repos repository.Repositories) error {
		return suspendOrder(ctx, w.Deps, w.orders, repos, orderID, reason)
	})
	if err != nil {
		return w.failErr(corr, err)
	}
	w.Events.Committed(ctx)
	w.Metrics.IncWorkflow(workflowProvisioning, "compensated")
	res := commands.Failed(corr, commands.KindDependency, reason)
	res.AggregateID = orderID
	return res, nil
}

func (w *OrderProvisioning) fail(corr string, kind commands.ErrorKind, msg string) commands.Result {
	w.Metrics.IncWorkflow(workflowProvisioning, string(kind))
	return commands.Failed(corr, kind, msg)
}

func (w *OrderProvisioning) failErr(corr string, err error) (commands.Result, error) {
	res, ferr := commands.FromError(corr, err)
	w.Metrics.IncWorkflow(workflowProvisioning, string(res.Kind))
	return res, ferr
}
