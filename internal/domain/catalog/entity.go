package catalog

import "time"

type ServiceType string

const (
	ServiceTypeDomain  ServiceType = "domain"
	ServiceTypeHosting ServiceType = "hosting"
	ServiceTypeEmail   ServiceType = "email"
)

// Service is the customer-facing product instance an order bills for.
type Service struct {
	ID         int64
	CustomerID int64
	Type       ServiceType
	Reference  string
	CreatedAt  time.Time
}

// Registrar is a configured registry reseller account. AdapterKey selects the
// providers.Registrar implementation.
type Registrar struct {
	ID         int64
	Name       string
	AdapterKey string
	Currency   string
	Active     bool
	CreatedAt  time.Time
}
