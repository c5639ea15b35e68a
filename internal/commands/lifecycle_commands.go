package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"billing-lifecycle/internal/domain/catalog"
	"billing-lifecycle/internal/domain/domainname"
	"billing-lifecycle/internal/domain/order"
)

const (
	TypeRegisterDomain   = "RegisterDomain"
	TypeRenewDomain      = "RenewDomain"
	TypeTransitionDomain = "TransitionDomain"
	TypePlaceOrder       = "PlaceOrder"
	TypeProvisionOrder   = "ProvisionOrder"
	TypeTransitionOrder  = "TransitionOrder"
	TypeRecordPayment    = "RecordPayment"
)

type RegisterDomain struct {
	CustomerID  int64  `json:"customer_id"`
	RegistrarID int64  `json:"registrar_id"`
	DomainName  string `json:"domain_name"`
	Years       int    `json:"years"`
	AutoRenew   bool   `json:"auto_renew"`
}

func (c RegisterDomain) CommandType() string { return TypeRegisterDomain }

func (c RegisterDomain) Validate() error {
	if c.CustomerID <= 0 {
		return errors.New("customer_id is required")
	}
	if c.RegistrarID <= 0 {
		return errors.New("registrar_id is required")
	}
	if !domainname.ValidName(c.DomainName) {
		return fmt.Errorf("domain name %q is not valid", c.DomainName)
	}
	if c.Years < 0 || c.Years > 10 {
		return errors.New("years must be between 1 and 10")
	}
	return nil
}

func (c RegisterDomain) IdempotencyKey() string {
	return fmt.Sprintf("register:%d:%s", c.CustomerID, domainname.NormalizeName(c.DomainName))
}

type RenewDomain struct {
	DomainID int64 `json:"domain_id"`
}

func (c RenewDomain) CommandType() string { return TypeRenewDomain }

func (c RenewDomain) Validate() error {
	if c.DomainID <= 0 {
		return errors.New("domain_id is required")
	}
	return nil
}

func (c RenewDomain) IdempotencyKey() string { return fmt.Sprintf("renew:%d", c.DomainID) }

type TransitionDomain struct {
	DomainID   int64                 `json:"domain_id"`
	Transition domainname.Transition `json:"transition"`
	Reason     string                `json:"reason,omitempty"`
}

func (c TransitionDomain) CommandType() string { return TypeTransitionDomain }

func (c TransitionDomain) Validate() error {
	if c.DomainID <= 0 {
		return errors.New("domain_id is required")
	}
	if strings.TrimSpace(string(c.Transition)) == "" {
		return errors.New("transition is required")
	}
	return nil
}

func (c TransitionDomain) IdempotencyKey() string {
	return fmt.Sprintf("domain:%d:%s", c.DomainID, c.Transition)
}

type PlaceOrder struct {
	CustomerID         int64               `json:"customer_id"`
	ServiceType        catalog.ServiceType `json:"service_type"`
	Reference          string              `json:"reference"`
	Amount             decimal.Decimal     `json:"amount"`
	Currency           string              `json:"currency"`
	BillingCycleMonths int                 `json:"billing_cycle_months"`
}

func (c PlaceOrder) CommandType() string { return TypePlaceOrder }

func (c PlaceOrder) Validate() error {
	if c.CustomerID <= 0 {
		return errors.New("customer_id is required")
	}
	if c.ServiceType == "" {
		return errors.New("service_type is required")
	}
	if strings.TrimSpace(c.Reference) == "" {
		return errors.New("reference is required")
	}
	if !c.Amount.IsPositive() {
		return errors.New("amount must be positive")
	}
	return nil
}

func (c PlaceOrder) IdempotencyKey() string {
	return fmt.Sprintf("order:%d:%s:%s", c.CustomerID, c.ServiceType, c.Reference)
}

type ProvisionOrder struct {
	OrderID int64 `json:"order_id"`
}

func (c ProvisionOrder) CommandType() string { return TypeProvisionOrder }

func (c ProvisionOrder) Validate() error {
	if c.OrderID <= 0 {
		return errors.New("order_id is required")
	}
	return nil
}

func (c ProvisionOrder) IdempotencyKey() string { return fmt.Sprintf("provision:%d", c.OrderID) }

type TransitionOrder struct {
	OrderID    int64            `json:"order_id"`
	Transition order.Transition `json:"transition"`
	Reason     string           `json:"reason,omitempty"`
}

func (c TransitionOrder) CommandType() string { return TypeTransitionOrder }

func (c TransitionOrder) Validate() error {
	if c.OrderID <= 0 {
		return errors.New("order_id is required")
	}
	if strings.TrimSpace(string(c.Transition)) == "" {
		return errors.New("transition is required")
	}
	return nil
}

func (c TransitionOrder) IdempotencyKey() string {
	return fmt.Sprintf("order:%d:%s", c.OrderID, c.Transition)
}

type RecordPayment struct {
	InvoiceID     int64  `json:"invoice_id"`
	TransactionID string `json:"transaction_id"`
}

func (c RecordPayment) CommandType() string { return TypeRecordPayment }

func (c RecordPayment) Validate() error {
	if c.InvoiceID <= 0 {
		return errors.New("invoice_id is required")
	}
	if strings.TrimSpace(c.TransactionID) == "" {
		return errors.New("transaction_id is required")
	}
	return nil
}

func (c RecordPayment) IdempotencyKey() string { return fmt.Sprintf("payment:%d", c.InvoiceID) }
