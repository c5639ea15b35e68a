// Package providers declares the external collaborators the lifecycle core
// drives: registrars, the payment gateway, the mailer and service
// provisioners. Real adapters live outside this module; sandbox adapters are
// provided for development and tests.
package providers

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Availability struct {
	Name      string
	Available bool
	Premium   bool
	Price     decimal.Decimal
	Currency  string
}

type RegisterRequest struct {
	// IdempotencyKey lets the registrar recognise a retried registration.
	IdempotencyKey string
	DomainName     string
	CustomerID     int64
	Years          int
}

type RegisterResult struct {
	Success        bool
	RegistrarRef   string
	ExpirationDate time.Time
	Error          string
}

type RenewRequest struct {
	IdempotencyKey    string
	DomainName        string
	Years             int
	CurrentExpiration time.Time
}

type RenewResult struct {
	Success        bool
	ExpirationDate time.Time
	Error          string
}

type Registrar interface {
	CheckAvailability(ctx context.Context, name string) (Availability, error)
	Register(ctx context.Context, req RegisterRequest) (RegisterResult, error)
	Renew(ctx context.Context, req RenewRequest) (RenewResult, error)
}

type ChargeRequest struct {
	CustomerID int64
	Amount     decimal.Decimal
	Currency   string
	// Reference is the invoice number; gateways use it to dedupe captures.
	Reference string
}

type ChargeResult struct {
	Success       bool
	TransactionID string
	Error         string
}

type PaymentProcessor interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	HasActivePaymentMethod(ctx context.Context, customerID int64) (bool, error)
}

type Email struct {
	To       string
	Subject  string
	BodyHTML string
	BodyText string
	// DedupeKey lets the mail subsystem drop duplicates from redelivered events.
	DedupeKey string
}

// Notifier queues mail. Delivery guarantees belong to the mail subsystem.
type Notifier interface {
	QueueEmail(ctx context.Context, email Email) error
}

type ProvisionRequest struct {
	OrderID     int64
	OrderNumber string
	CustomerID  int64
	ServiceID   int64
	ServiceType string
	Reference   string
}

// Provisioner sets up the resource behind an order (hosting account, mailbox).
type Provisioner interface {
	Provision(ctx context.Context, req ProvisionRequest) error
}
