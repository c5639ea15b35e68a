package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order events
const (
	EventTypeOrderCreated   = "OrderCreated"
	EventTypeOrderActivated = "OrderActivated"
	EventTypeOrderSuspended = "OrderSuspended"
	EventTypeOrderResumed   = "OrderResumed"
	EventTypeOrderCancelled = "OrderCancelled"
	EventTypeOrderExpired   = "OrderExpired"
	EventTypeOrderRenewed   = "OrderRenewed"
)

// Invoice events
const (
	EventTypeInvoiceGenerated = "InvoiceGenerated"
	EventTypeInvoicePaid      = "InvoicePaid"
)

// Domain events
const (
	EventTypeDomainRegistered     = "DomainRegistered"
	EventTypeDomainRenewed        = "DomainRenewed"
	EventTypeDomainSuspended      = "DomainSuspended"
	EventTypeDomainReactivated    = "DomainReactivated"
	EventTypeDomainExpired        = "DomainExpired"
	EventTypeDomainCancelled      = "DomainCancelled"
	EventTypeDomainTransferredIn  = "DomainTransferredIn"
	EventTypeDomainTransferredOut = "DomainTransferredOut"
)

// Rate events
const (
	EventTypeExchangeRateUpdated = "ExchangeRateUpdated"
)

// Aggregate type constants
const (
	AggregateTypeOrder        = "order"
	AggregateTypeInvoice      = "invoice"
	AggregateTypeDomain       = "domain"
	AggregateTypeExchangeRate = "exchange_rate"
)

// Redis channel prefixes
const (
	ChannelPrefixOrder    = "channel:order:"
	ChannelPrefixInvoice  = "channel:invoice:"
	ChannelPrefixDomain   = "channel:domain:"
	ChannelPrefixCustomer = "channel:customer:"
	ChannelSystemOutbox   = "channel:system:outbox"
)

type OrderCreatedPayload struct {
	OrderID       int64           `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	CustomerID    int64           `json:"customer_id"`
	ServiceType   string          `json:"service_type"`
	InvoiceID     int64           `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	DomainName    string          `json:"domain_name,omitempty"`
}

type OrderStatusPayload struct {
	OrderID     int64     `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	CustomerID  int64     `json:"customer_id"`
	ServiceType string    `json:"service_type"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Reason      string    `json:"reason,omitempty"`
	At          time.Time `json:"at"`
}

type InvoiceGeneratedPayload struct {
	InvoiceID     int64           `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	CustomerID    int64           `json:"customer_id"`
	OrderID       *int64          `json:"order_id,omitempty"`
	DomainID      *int64          `json:"domain_id,omitempty"`
	Kind          string          `json:"kind"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	DueDate       time.Time       `json:"due_date"`
}

type InvoicePaidPayload struct {
	InvoiceID        int64           `json:"invoice_id"`
	InvoiceNumber    string          `json:"invoice_number"`
	CustomerID       int64           `json:"customer_id"`
	OrderID          *int64          `json:"order_id,omitempty"`
	DomainID         *int64          `json:"domain_id,omitempty"`
	Kind             string          `json:"kind"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	PaymentReference string          `json:"payment_reference"`
	PaidAt           time.Time       `json:"paid_at"`
}

type DomainRegisteredPayload struct {
	DomainID       int64     `json:"domain_id"`
	Name           string    `json:"name"`
	CustomerID     int64     `json:"customer_id"`
	OrderID        int64     `json:"order_id"`
	RegistrarID    int64     `json:"registrar_id"`
	ExpirationDate time.Time `json:"expiration_date"`
}

type DomainRenewedPayload struct {
	DomainID           int64           `json:"domain_id"`
	Name               string          `json:"name"`
	CustomerID         int64           `json:"customer_id"`
	InvoiceID          int64           `json:"invoice_id"`
	PreviousExpiration time.Time       `json:"previous_expiration"`
	ExpirationDate     time.Time       `json:"expiration_date"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
}

type DomainStatusPayload struct {
	DomainID   int64     `json:"domain_id"`
	Name       string    `json:"name"`
	CustomerID int64     `json:"customer_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}

type ExchangeRateUpdatedPayload struct {
	RateID int64  `json:"rate_id"`
	Base   string `json:"base"`
	Target string `json:"target"`
}
