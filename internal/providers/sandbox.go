package providers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	billing_errors "billing-lifecycle/pkg/errors"
)

// SandboxRegistrar is an in-memory registrar. Registrations are idempotent per
// IdempotencyKey, and the exported knobs let callers script failures.
type SandboxRegistrar struct {
	mu sync.Mutex

	Price    decimal.Decimal
	Currency string
	// Taken names report as unavailable.
	Taken map[string]bool
	// FailRegister and FailRenew make the call report an unsuccessful result.
	FailRegister string
	FailRenew    string
	// Delay is applied to every call before answering.
	Delay time.Duration
	Now   func() time.Time

	registered map[string]RegisterResult
	renewed    map[string]RenewResult
	calls      map[string]int
}

func NewSandboxRegistrar(price decimal.Decimal, currency string) *SandboxRegistrar {
	return &SandboxRegistrar{
		Price:      price,
		Currency:   currency,
		Taken:      map[string]bool{},
		Now:        billing_errors.NowUTC,
		registered: map[string]RegisterResult{},
		renewed:    map[string]RenewResult{},
		calls:      map[string]int{},
	}
}

func (r *SandboxRegistrar) wait(ctx context.Context) error {
	if r.Delay <= 0 {
		return nil
	}
	t := time.NewTimer(r.Delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Calls reports how many times op ("check", "register", "renew") ran.
func (r *SandboxRegistrar) Calls(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

func (r *SandboxRegistrar) CheckAvailability(ctx context.Context, name string) (Availability, error) {
	if err := r.wait(ctx); err != nil {
		return Availability{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["check"]++
	name = strings.ToLower(name)
	_, owned := r.registered[name]
	return Availability{
		Name:      name,
		Available: !r.Taken[name] && !owned,
		Price:     r.Price,
		Currency:  r.Currency,
	}, nil
}

func (r *SandboxRegistrar) Register(ctx context.Context, req RegisterRequest) (RegisterResult, error) {
	if err := r.wait(ctx); err != nil {
		return RegisterResult{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["register"]++
	if r.FailRegister != "" {
		return RegisterResult{Success: false, Error: r.FailRegister}, nil
	}
	if prev, ok := r.registered[req.IdempotencyKey]; ok {
		return prev, nil
	}
	years := req.Years
	if years < 1 {
		years = 1
	}
	res := RegisterResult{
		Success:        true,
		RegistrarRef:   "SBX-" + strings.ToUpper(uuid.NewString()[:8]),
		ExpirationDate: r.Now().AddDate(years, 0, 0),
	}
	r.registered[req.IdempotencyKey] = res
	r.registered[strings.ToLower(req.DomainName)] = res
	return res, nil
}

func (r *SandboxRegistrar) Renew(ctx context.Context, req RenewRequest) (RenewResult, error) {
	if err := r.wait(ctx); err != nil {
		return RenewResult{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["renew"]++
	if r.FailRenew != "" {
		return RenewResult{Success: false, Error: r.FailRenew}, nil
	}
	if prev, ok := r.renewed[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return prev, nil
	}
	years := req.Years
	if years < 1 {
		years = 1
	}
	res := RenewResult{Success: true, ExpirationDate: req.CurrentExpiration.AddDate(years, 0, 0)}
	if req.IdempotencyKey != "" {
		r.renewed[req.IdempotencyKey] = res
	}
	return res, nil
}

// SandboxPayments approves every charge for customers with a payment method.
type SandboxPayments struct {
	mu sync.Mutex

	// WithoutMethod lists customers that have no active payment method.
	WithoutMethod map[int64]bool
	Decline       string
	Err           error

	charges map[string]ChargeResult
	count   int
}

func NewSandboxPayments() *SandboxPayments {
	return &SandboxPayments{WithoutMethod: map[int64]bool{}, charges: map[string]ChargeResult{}}
}

func (p *SandboxPayments) HasActivePaymentMethod(_ context.Context, customerID int64) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.WithoutMethod[customerID], nil
}

func (p *SandboxPayments) Charge(_ context.Context, req ChargeRequest) (ChargeResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count++
	if p.Err != nil {
		return ChargeResult{}, p.Err
	}
	if p.Decline != "" {
		return ChargeResult{Success: false, Error: p.Decline}, nil
	}
	if !req.Amount.IsPositive() {
		return ChargeResult{}, fmt.Errorf("%w: charge amount must be positive", billing_errors.ErrInvalidInput)
	}
	if prev, ok := p.charges[req.Reference]; ok {
		return prev, nil
	}
	res := ChargeResult{Success: true, TransactionID: "txn_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]}
	p.charges[req.Reference] = res
	return res, nil
}

// Charges reports how many Charge calls were made.
func (p *SandboxPayments) Charges() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// LogNotifier writes queued mail to the log instead of sending it.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) QueueEmail(_ context.Context, email Email) error {
	n.log.Info("Email queued",
		zap.String("to", email.To),
		zap.String("subject", email.Subject),
		zap.String("dedupe_key", email.DedupeKey),
	)
	return nil
}

// RecordingNotifier keeps queued mail in memory, dropping repeated dedupe keys.
type RecordingNotifier struct {
	mu     sync.Mutex
	Err    error
	emails []Email
	seen   map[string]bool
}

func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{seen: map[string]bool{}}
}

func (n *RecordingNotifier) QueueEmail(_ context.Context, email Email) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	if email.DedupeKey != "" {
		if n.seen[email.DedupeKey] {
			return nil
		}
		n.seen[email.DedupeKey] = true
	}
	n.emails = append(n.emails, email)
	return nil
}

func (n *RecordingNotifier) Emails() []Email {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Email(nil), n.emails...)
}

// SandboxProvisioner accepts every request unless Err is set.
type SandboxProvisioner struct {
	mu    sync.Mutex
	Err   error
	Delay time.Duration
	done  []ProvisionRequest
}

func (p *SandboxProvisioner) Provision(ctx context.Context, req ProvisionRequest) error {
	if p.Delay > 0 {
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.done = append(p.done, req)
	return nil
}

func (p *SandboxProvisioner) Provisioned() []ProvisionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ProvisionRequest(nil), p.done...)
}
