package providers

import (
	"context"
	"fmt"
	"time"

	billing_errors "billing-lifecycle/pkg/errors"
)

// callWithTimeout bounds fn by d even when fn ignores its context. A timeout
// reports ErrProviderTimeout; the abandoned call finishes in the background.
func callWithTimeout[T any](ctx context.Context, d time.Duration, op string, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		v, err := fn(ctx)
		ch <- outcome{val: v, err: err}
	}()

	select {
	case out := <-ch:
		return out.val, out.err
	case <-ctx.Done():
		var zero T
		if ctx.Err() == context.DeadlineExceeded {
			return zero, fmt.Errorf("%s after %s: %w", op, d, billing_errors.ErrProviderTimeout)
		}
		return zero, fmt.Errorf("%s: %w", op, ctx.Err())
	}
}

type timeoutRegistrar struct {
	next    Registrar
	timeout time.Duration
}

// RegistrarWithTimeout guards every registrar call with timeout.
func RegistrarWithTimeout(next Registrar, timeout time.Duration) Registrar {
	return &timeoutRegistrar{next: next, timeout: timeout}
}

func (r *timeoutRegistrar) CheckAvailability(ctx context.Context, name string) (Availability, error) {
	return callWithTimeout(ctx, r.timeout, "registrar availability", func(ctx context.Context) (Availability, error) {
		return r.next.CheckAvailability(ctx, name)
	})
}

func (r *timeoutRegistrar) Register(ctx context.Context, req RegisterRequest) (RegisterResult, error) {
	return callWithTimeout(ctx, r.timeout, "registrar register", func(ctx context.Context) (RegisterResult, error) {
		return r.next.Register(ctx, req)
	})
}

func (r *timeoutRegistrar) Renew(ctx context.Context, req RenewRequest) (RenewResult, error) {
	return callWithTimeout(ctx, r.timeout, "registrar renew", func(ctx context.Context) (RenewResult, error) {
		return r.next.Renew(ctx, req)
	})
}

type timeoutPayments struct {
	next    PaymentProcessor
	timeout time.Duration
}

func PaymentsWithTimeout(next PaymentProcessor, timeout time.Duration) PaymentProcessor {
	return &timeoutPayments{next: next, timeout: timeout}
}

func (p *timeoutPayments) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	return callWithTimeout(ctx, p.timeout, "payment charge", func(ctx context.Context) (ChargeResult, error) {
		return p.next.Charge(ctx, req)
	})
}

func (p *timeoutPayments) HasActivePaymentMethod(ctx context.Context, customerID int64) (bool, error) {
	return callWithTimeout(ctx, p.timeout, "payment method lookup", func(ctx context.Context) (bool, error) {
		return p.next.HasActivePaymentMethod(ctx, customerID)
	})
}

type timeoutNotifier struct {
	next    Notifier
	timeout time.Duration
}

func NotifierWithTimeout(next Notifier, timeout time.Duration) Notifier {
	return &timeoutNotifier{next: next, timeout: timeout}
}

func (n *timeoutNotifier) QueueEmail(ctx context.Context, email Email) error {
	_, err := callWithTimeout(ctx, n.timeout, "queue email", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, n.next.QueueEmail(ctx, email)
	})
	return err
}

type timeoutProvisioner struct {
	next    Provisioner
	timeout time.Duration
}

func ProvisionerWithTimeout(next Provisioner, timeout time.Duration) Provisioner {
	return &timeoutProvisioner{next: next, timeout: timeout}
}

func (p *timeoutProvisioner) Provision(ctx context.Context, req ProvisionRequest) error {
	_, err := callWithTimeout(ctx, p.timeout, "provision "+req.ServiceType, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.next.Provision(ctx, req)
	})
	return err
}
