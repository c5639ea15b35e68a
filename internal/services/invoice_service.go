package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"billing-lifecycle/internal/domain/currency"
	"billing-lifecycle/internal/domain/invoice"
	"billing-lifecycle/internal/events"
	"billing-lifecycle/internal/repository"
	billing_errors "billing-lifecycle/pkg/errors"
)

type InvoiceRequest struct {
	CustomerID int64
	OrderID    *int64
	DomainID   *int64
	Kind       invoice.Kind
	Status     invoice.Status
	// Amount is expressed in Currency and converted to the customer's
	// billing currency.
	Amount      decimal.Decimal
	Currency    string
	PeriodStart *time.Time
}

// InvoiceGenerator creates an invoice and its InvoiceGenerated event on the
// supplied repositories, so both land in the caller's transaction.
type InvoiceGenerator interface {
	GenerateInvoice(ctx context.Context, repos repository.Repositories, req InvoiceRequest) (invoice.Invoice, error)
}

type InvoiceService struct {
	Deps
	rates   *RateService
	dueDays int
}

func NewInvoiceService(deps Deps, rates *RateService, dueDays int) *InvoiceService {
	if dueDays <= 0 {
		dueDays = 7
	}
	return &InvoiceService{Deps: deps, rates: rates, dueDays: dueDays}
}

func (s *InvoiceService) GenerateInvoice(ctx context.Context, repos repository.Repositories, req InvoiceRequest) (invoice.Invoice, error) {
	if req.Amount.IsNegative() {
		return invoice.Invoice{}, fmt.Errorf("invoice amount %s: %w", req.Amount, billing_errors.ErrInvalidInput)
	}
	cust, err := repos.Customers.GetByID(ctx, req.CustomerID)
	if err != nil {
		return invoice.Invoice{}, err
	}
	billingCurrency := cust.BillingCurrency
	if billingCurrency == "" {
		billingCurrency = req.Currency
	}
	billingCurrency, err = currency.NormalizeCode(billingCurrency)
	if err != nil {
		return invoice.Invoice{}, err
	}
	total, err := s.rates.convertWith(ctx, repos.Rates, req.Amount, req.Currency, billingCurrency)
	if err != nil {
		return invoice.Invoice{}, fmt.Errorf("price invoice for customer %d: %w", cust.ID, err)
	}

	status := req.Status
	if status == "" {
		status = invoice.StatusDraft
	}
	now := s.now()
	inv := invoice.Invoice{
		Number:      invoice.NewNumber(now),
		CustomerID:  cust.ID,
		OrderID:     req.OrderID,
		DomainID:    req.DomainID,
		Kind:        req.Kind,
		Status:      status,
		Currency:    billingCurrency,
		TotalAmount: total,
		DueDate:     now.AddDate(0, 0, s.dueDays),
		PeriodStart: req.PeriodStart,
		CreatedAt:   now,
	}
	if err := repos.Invoices.Create(ctx, &inv); err != nil {
		return invoice.Invoice{}, err
	}
	if err := s.Events.Emit(ctx, repos, events.EventTypeInvoiceGenerated, events.AggregateTypeInvoice, inv.ID, events.InvoiceGeneratedPayload{
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.Number,
		CustomerID:    inv.CustomerID,
		OrderID:       inv.OrderID,
		DomainID:      inv.DomainID,
		Kind:          string(inv.Kind),
		Status:        string(inv.Status),
		Amount:        inv.TotalAmount,
		Currency:      inv.Currency,
		DueDate:       inv.DueDate,
	}); err != nil {
		return invoice.Invoice{}, err
	}
	return inv, nil
}
