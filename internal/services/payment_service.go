package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"billing-lifecycle/internal/commands"
	"billing-lifecycle/internal/domain/invoice"
	"billing-lifecycle/internal/events"
	"billing-lifecycle/internal/repository"
	"billing-lifecycle/pkg/logger"
)

// PaymentService records captures reported by the payment gateway.
type PaymentService struct {
	Deps
}

func NewPaymentService(deps Deps) *PaymentService {
	return &PaymentService{Deps: deps}
}

// RecordPayment marks the invoice paid and emits InvoicePaid. A second call
// for an already paid invoice succeeds without emitting anything.
func (s *PaymentService) RecordPayment(ctx context.Context, invoiceID int64, transactionID string) (commands.Result, error) {
	ctx, corr := logger.EnsureCorrelationID(ctx)
	log := logger.WithContext(ctx, s.Log).With(zap.Int64("invoice_id", invoiceID))
	if transactionID == "" {
		return commands.Failed(corr, commands.KindValidation, "transaction id is required"), nil
	}

	defer s.Locks.Invoice(invoiceID)()

	outcome := "paid"
	err := s.Store.WithTx(ctx, func(repos repository.Repositories) error {
		inv, err := repos.Invoices.GetForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status == invoice.StatusPaid {
			outcome = "already_paid"
			return nil
		}
		if !inv.Payable() {
			return fmt.Errorf("invoice %s is %s: %w", inv.Number, inv.Status, errNotPayable)
		}
		now := s.now()
		inv.Status = invoice.StatusPaid
		inv.PaidAt = &now
		if inv.PaymentReference == "" {
			inv.PaymentReference = transactionID
		}
		if err := repos.Invoices.Update(ctx, &inv); err != nil {
			return err
		}
		return s.Events.Emit(ctx, repos, events.EventTypeInvoicePaid, events.AggregateTypeInvoice, inv.ID, paidPayload(inv))
	})
	if err != nil {
		res, ferr := commands.FromError(corr, err)
		if ferr != nil {
			log.Error("Failed to record payment", zap.Error(err))
		}
		s.Metrics.IncWorkflow("payment", string(res.Kind))
		return res, ferr
	}
	if outcome == "paid" {
		s.Events.Committed(ctx)
		log.Info("Payment recorded", zap.String("transaction_id", transactionID))
	}
	s.Metrics.IncWorkflow("payment", outcome)
	res := commands.Succeeded(corr, outcome, invoiceID)
	res.InvoiceID = invoiceID
	return res, nil
}

func paidPayload(inv invoice.Invoice) events.InvoicePaidPayload {
	p := events.InvoicePaidPayload{
		InvoiceID:        inv.ID,
		InvoiceNumber:    inv.Number,
		CustomerID:       inv.CustomerID,
		OrderID:          inv.OrderID,
		DomainID:         inv.DomainID,
		Kind:             string(inv.Kind),
		Amount:           inv.TotalAmount,
		Currency:         inv.Currency,
		PaymentReference: inv.PaymentReference,
	}
	if inv.PaidAt != nil {
		p.PaidAt = *inv.PaidAt
	}
	return p
}
