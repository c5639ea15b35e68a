package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is a billable line item. Its Status is owned by the order state machine.
type Order struct {
	ID                 int64
	OrderNumber        string
	CustomerID         int64
	ServiceID          int64
	ServiceType        string
	RegistrarID        *int64
	AutoRenew          bool
	Status             Status
	StartDate          *time.Time
	NextBillingDate    *time.Time
	BillingCycleMonths int
	RecurringAmount    decimal.Decimal
	Currency           string
	SuspendReason      string
	Version            int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewOrderNumber returns a human readable, collision resistant order number.
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), suffix)
}

// Activated returns the billing dates an order gets when it goes live.
func (o Order) Activated(now time.Time) Order {
	start := now.UTC()
	o.StartDate = &start
	months := o.BillingCycleMonths
	if months <= 0 {
		months = 12
	}
	next := start.AddDate(0, months, 0)
	o.NextBillingDate = &next
	o.SuspendReason = ""
	return o
}
