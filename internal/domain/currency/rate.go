package currency

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type ExchangeRate struct {
	ID               int64
	BaseCurrency     string
	TargetCurrency   string
	Rate             decimal.Decimal
	MarkupPercentage decimal.Decimal
	EffectiveDate    time.Time
	ExpiryDate       *time.Time
	Source           string
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// EffectiveRate applies the markup: rate * (1 + markup/100), rounded to six places.
func (r ExchangeRate) EffectiveRate() decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(r.MarkupPercentage.Div(hundred))
	return r.Rate.Mul(factor).Round(RatePrecision)
}

// ApplicableAt reports whether the rate may be used for a conversion at t.
func (r ExchangeRate) ApplicableAt(t time.Time) bool {
	if !r.IsActive || r.EffectiveDate.After(t) {
		return false
	}
	return r.ExpiryDate == nil || r.ExpiryDate.After(t)
}

// Quote is a resolved conversion rate for a currency pair.
type Quote struct {
	Base      string
	Target    string
	Rate      decimal.Decimal
	RateID    int64
	Identity  bool
	ExpiresAt *time.Time
}

// Identity returns the quote for converting a currency into itself.
func Identity(code string) Quote {
	return Quote{Base: code, Target: code, Rate: decimal.NewFromInt(1), Identity: true}
}

// Convert multiplies and rounds to the target currency's minor units.
func (q Quote) Convert(amount decimal.Decimal) decimal.Decimal {
	if q.Identity {
		return RoundAmount(amount, q.Target)
	}
	return RoundAmount(amount.Mul(q.Rate), q.Target)
}

// Pair is an ordered currency pair.
type Pair struct {
	Base   string
	Target string
}

func (p Pair) String() string {
	return p.Base + "/" + p.Target
}
