package httpdto

import (
	"time"

	"github.com/shopspring/decimal"

	"billing-lifecycle/internal/domain/currency"
)

type RegisterDomainRequest struct {
	CustomerID  int64  `json:"customer_id" binding:"required"`
	RegistrarID int64  `json:"registrar_id" binding:"required"`
	DomainName  string `json:"domain_name" binding:"required"`
	Years       int    `json:"years"`
	AutoRenew   bool   `json:"auto_renew"`
}

type PlaceOrderRequest struct {
	CustomerID         int64           `json:"customer_id" binding:"required"`
	ServiceType        string          `json:"service_type" binding:"required"`
	Reference          string          `json:"reference" binding:"required"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency" binding:"required"`
	BillingCycleMonths int             `json:"billing_cycle_months"`
}

// TransitionRequest names a lifecycle transition such as "Suspend".
type TransitionRequest struct {
	Transition string `json:"transition" binding:"required"`
	Reason     string `json:"reason"`
}

type RecordPaymentRequest struct {
	TransactionID string `json:"transaction_id" binding:"required"`
}

type UpsertRateRequest struct {
	BaseCurrency     string          `json:"base_currency" binding:"required"`
	TargetCurrency   string          `json:"target_currency" binding:"required"`
	Rate             decimal.Decimal `json:"rate"`
	MarkupPercentage decimal.Decimal `json:"markup_percentage"`
	EffectiveDate    *time.Time      `json:"effective_date"`
	ExpiryDate       *time.Time      `json:"expiry_date"`
	Source           string          `json:"source"`
}

type RateResponse struct {
	Base      string          `json:"base"`
	Target    string          `json:"target"`
	Rate      decimal.Decimal `json:"rate"`
	RateID    int64           `json:"rate_id,omitempty"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

func FromQuote(q currency.Quote) RateResponse {
	return RateResponse{
		Base:      q.Base,
		Target:    q.Target,
		Rate:      q.Rate,
		RateID:    q.RateID,
		ExpiresAt: q.ExpiresAt,
	}
}

type ConvertResponse struct {
	Amount    decimal.Decimal `json:"amount"`
	Converted decimal.Decimal `json:"converted"`
	Quote     RateResponse    `json:"quote"`
}

type ExchangeRateDTO struct {
	ID               int64           `json:"id"`
	BaseCurrency     string          `json:"base_currency"`
	TargetCurrency   string          `json:"target_currency"`
	Rate             decimal.Decimal `json:"rate"`
	MarkupPercentage decimal.Decimal `json:"markup_percentage"`
	EffectiveRate    decimal.Decimal `json:"effective_rate"`
	EffectiveDate    time.Time       `json:"effective_date"`
	ExpiryDate       *time.Time      `json:"expiry_date,omitempty"`
	Source           string          `json:"source,omitempty"`
	IsActive         bool            `json:"is_active"`
}

func FromExchangeRate(r currency.ExchangeRate) ExchangeRateDTO {
	return ExchangeRateDTO{
		ID:               r.ID,
		BaseCurrency:     r.BaseCurrency,
		TargetCurrency:   r.TargetCurrency,
		Rate:             r.Rate,
		MarkupPercentage: r.MarkupPercentage,
		EffectiveRate:    r.EffectiveRate(),
		EffectiveDate:    r.EffectiveDate,
		ExpiryDate:       r.ExpiryDate,
		Source:           r.Source,
		IsActive:         r.IsActive,
	}
}

type ArchiveLinkResponse struct {
	Number string `json:"number"`
	URL    string `json:"url"`
}
