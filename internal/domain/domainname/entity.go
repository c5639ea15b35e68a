package domainname

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Domain is a registered (or to be registered) domain name. Rows are never
// physically deleted; terminal states are Cancelled and TransferredOut.
type Domain struct {
	ID               int64
	Name             string
	CustomerID       int64
	RegistrarID      int64
	OrderID          *int64
	Status           Status
	RegistrationDate *time.Time
	ExpirationDate   time.Time
	AutoRenew        bool
	RenewalPrice     decimal.Decimal
	Currency         string
	RenewalYears     int
	Version          int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NormalizeName lowercases and trims a fully qualified domain name.
func NormalizeName(name string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".")
}

// ValidName performs a shallow syntactic check. Registrars do the real validation.
func ValidName(name string) bool {
	name = NormalizeName(name)
	if len(name) < 3 || len(name) > 253 || !strings.Contains(name, ".") {
		return false
	}
	for _, label := range strings.Split(name, ".") {
		if label == "" || len(label) > 63 || strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return false
		}
		for _, r := range label {
			if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
				return false
			}
		}
	}
	return true
}

// Period returns the renewal period in years, at least one.
func (d Domain) Period() int {
	if d.RenewalYears <= 0 {
		return 1
	}
	return d.RenewalYears
}

// WithinRenewalWindow reports whether the domain expires no more than days
// whole days after now. Lapsed domains are always inside the window.
func (d Domain) WithinRenewalWindow(now time.Time, days int) bool {
	return d.ExpirationDate.Sub(now.UTC()) <= time.Duration(days)*24*time.Hour
}

// Extended returns the expiration date pushed out by one renewal period.
func (d Domain) Extended() time.Time {
	return d.ExpirationDate.AddDate(d.Period(), 0, 0)
}
