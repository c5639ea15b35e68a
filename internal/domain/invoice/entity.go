package invoice

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusDraft     Status = "Draft"
	StatusUnpaid    Status = "Unpaid"
	StatusPaid      Status = "Paid"
	StatusCancelled Status = "Cancelled"
)

type Kind string

const (
	KindRegistration Kind = "registration"
	KindRenewal      Kind = "renewal"
	KindService      Kind = "service"
)

type Invoice struct {
	ID               int64
	Number           string
	CustomerID       int64
	OrderID          *int64
	DomainID         *int64
	Kind             Kind
	Status           Status
	Currency         string
	TotalAmount      decimal.Decimal
	DueDate          time.Time
	PeriodStart      *time.Time
	PaymentReference string
	PaidAt           *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Payable reports whether a payment can still be recorded against the invoice.
func (i Invoice) Payable() bool {
	return i.Status == StatusDraft || i.Status == StatusUnpaid
}

func NewNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("INV-%s-%s", now.UTC().Format("20060102"), suffix)
}
