// Package testutil builds throwaway stores for package tests.
package testutil

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"billing-lifecycle/internal/domain/catalog"
	"billing-lifecycle/internal/domain/customer"
	"billing-lifecycle/internal/repository"
	"billing-lifecycle/pkg/database"
)

// NewStore opens a file backed SQLite database in t.TempDir with the full schema.
func NewStore(t testing.TB) *repository.Store {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "billing.db"), database.DefaultSQLiteConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, repository.InitSchema(context.Background(), db, repository.DialectSQLite))
	return repository.NewStore(db, repository.DialectSQLite)
}

func SeedCustomer(t testing.TB, store *repository.Store, billingCurrency string) customer.Customer {
	t.Helper()
	c := customer.Customer{Name: "Ada Lovelace", Email: "ada@example.com", BillingCurrency: billingCurrency}
	require.NoError(t, store.Repos().Customers.Create(context.Background(), &c))
	return c
}

func SeedRegistrar(t testing.TB, store *repository.Store, adapterKey string, active bool) catalog.Registrar {
	t.Helper()
	r := catalog.Registrar{Name: "Sandbox Registry", AdapterKey: adapterKey, Currency: "USD", Active: active}
	require.NoError(t, store.Repos().Registrars.Create(context.Background(), &r))
	return r
}

// Money parses a decimal literal and fails the test on bad input.
func Money(t testing.TB, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

// Clock is a settable time source, safe for concurrent use.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock(t time.Time) *Clock {
	return &Clock{t: t.UTC().Truncate(time.Microsecond)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t.UTC().Truncate(time.Microsecond)
	c.mu.Unlock()
}
