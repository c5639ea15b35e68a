package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	billing_errors "billing-lifecycle/pkg/errors"
)

type stuckRegistrar struct{ SandboxRegistrar }

func (s *stuckRegistrar) Register(ctx context.Context, _ RegisterRequest) (RegisterResult, error) {
	// ignores ctx on purpose
	time.Sleep(200 * time.Millisecond)
	return RegisterResult{Success: true}, nil
}

func TestRegistrarTimeoutReportsProviderTimeout(t *testing.T) {
	r := RegistrarWithTimeout(&stuckRegistrar{}, 20*time.Millisecond)

	start := time.Now()
	_, err := r.Register(context.Background(), RegisterRequest{DomainName: "slow.com"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, billing_errors.ErrProviderTimeout))
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestTimeoutPassesThroughFastCalls(t *testing.T) {
	sbx := NewSandboxRegistrar(decimal.RequireFromString("12.00"), "USD")
	r := RegistrarWithTimeout(sbx, time.Second)

	av, err := r.CheckAvailability(context.Background(), "Example.COM")
	require.NoError(t, err)
	assert.True(t, av.Available)
	assert.Equal(t, "example.com", av.Name)
	assert.True(t, av.Price.Equal(decimal.RequireFromString("12")))
}

func TestCallerCancellationIsNotATimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := ProvisionerWithTimeout(&SandboxProvisioner{Delay: time.Second}, time.Second)

	err := p.Provision(ctx, ProvisionRequest{ServiceType: "hosting"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, billing_errors.ErrProviderTimeout))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSandboxRegistrarIsIdempotentPerKey(t *testing.T) {
	sbx := NewSandboxRegistrar(decimal.NewFromInt(10), "USD")
	ctx := context.Background()

	first, err := sbx.Register(ctx, RegisterRequest{IdempotencyKey: "order-1", DomainName: "a.com", Years: 2})
	require.NoError(t, err)
	require.True(t, first.Success)
	second, err := sbx.Register(ctx, RegisterRequest{IdempotencyKey: "order-1", DomainName: "a.com", Years: 2})
	require.NoError(t, err)
	assert.Equal(t, first.RegistrarRef, second.RegistrarRef)

	av, err := sbx.CheckAvailability(ctx, "a.com")
	require.NoError(t, err)
	assert.False(t, av.Available)
	assert.Equal(t, 2, sbx.Calls("register"))
}

func TestSandboxRegistrarFailureKnobs(t *testing.T) {
	sbx := NewSandboxRegistrar(decimal.NewFromInt(10), "USD")
	sbx.FailRegister = "registry unavailable"
	res, err := sbx.Register(context.Background(), RegisterRequest{IdempotencyKey: "k", DomainName: "b.com"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "registry unavailable", res.Error)

	exp := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	renew, err := sbx.Renew(context.Background(), RenewRequest{DomainName: "b.com", Years: 1, CurrentExpiration: exp})
	require.NoError(t, err)
	assert.True(t, renew.Success)
	assert.Equal(t, exp.AddDate(1, 0, 0), renew.ExpirationDate)
}

func TestSandboxPaymentsDedupesByReference(t *testing.T) {
	p := NewSandboxPayments()
	ctx := context.Background()
	req := ChargeRequest{CustomerID: 1, Amount: decimal.NewFromInt(5), Currency: "USD", Reference: "INV-1"}

	a, err := p.Charge(ctx, req)
	require.NoError(t, err)
	b, err := p.Charge(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, a.TransactionID, b.TransactionID)

	p.WithoutMethod[7] = true
	ok, err := p.HasActivePaymentMethod(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordingNotifierDropsDuplicates(t *testing.T) {
	n := NewRecordingNotifier()
	ctx := context.Background()
	require.NoError(t, n.QueueEmail(ctx, Email{To: "a@example.com", DedupeKey: "x"}))
	require.NoError(t, n.QueueEmail(ctx, Email{To: "a@example.com", DedupeKey: "x"}))
	require.NoError(t, n.QueueEmail(ctx, Email{To: "a@example.com"}))
	assert.Len(t, n.Emails(), 2)
}

func TestRegistrarFactory(t *testing.T) {
	f := NewRegistrarFactory()
	sbx := NewSandboxRegistrar(decimal.NewFromInt(1), "USD")
	f.Register("sandbox", sbx)

	got, err := f.Get("sandbox")
	require.NoError(t, err)
	assert.Same(t, sbx, got)

	_, err = f.Get("epp")
	assert.ErrorIs(t, err, billing_errors.ErrMissingConfig)
}
