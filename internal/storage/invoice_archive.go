package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"billing-lifecycle/internal/domain/invoice"
)

// InvoiceSnapshot is the archived document for one invoice.
type InvoiceSnapshot struct {
	Number      string          `json:"number"`
	InvoiceID   int64           `json:"invoice_id"`
	CustomerID  int64           `json:"customer_id"`
	OrderID     *int64          `json:"order_id,omitempty"`
	DomainID    *int64          `json:"domain_id,omitempty"`
	Kind        invoice.Kind    `json:"kind"`
	Status      invoice.Status  `json:"status"`
	Currency    string          `json:"currency"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	DueDate     time.Time       `json:"due_date"`
	ArchivedAt  time.Time       `json:"archived_at"`
}

type InvoiceArchive struct {
	client *Client
}

func NewInvoiceArchive(client *Client) *InvoiceArchive {
	return &InvoiceArchive{client: client}
}

func InvoiceKey(number string) string {
	return "invoices/" + number + ".json"
}

// Put stores the snapshot. The key depends only on the invoice number, so a
// repeated put overwrites the same object.
func (a *InvoiceArchive) Put(ctx context.Context, inv invoice.Invoice, at time.Time) error {
	if inv.Number == "" {
		return fmt.Errorf("archive invoice %d: number is empty", inv.ID)
	}
	body, err := json.Marshal(InvoiceSnapshot{
		Number:      inv.Number,
		InvoiceID:   inv.ID,
		CustomerID:  inv.CustomerID,
		OrderID:     inv.OrderID,
		DomainID:    inv.DomainID,
		Kind:        inv.Kind,
		Status:      inv.Status,
		Currency:    inv.Currency,
		TotalAmount: inv.TotalAmount,
		DueDate:     inv.DueDate.UTC(),
		ArchivedAt:  at.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal invoice snapshot: %w", err)
	}
	return a.client.PutJSON(ctx, InvoiceKey(inv.Number), body)
}

func (a *InvoiceArchive) DownloadURL(ctx context.Context, number string) (string, error) {
	return a.client.PresignGet(ctx, InvoiceKey(number))
}
