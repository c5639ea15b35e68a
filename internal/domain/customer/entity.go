package customer

import "time"

// Customer is owned by the CRM side of the system. The lifecycle core only reads it.
type Customer struct {
	ID              int64
	Name            string
	Email           string
	BillingCurrency string
	CreatedAt       time.Time
}
