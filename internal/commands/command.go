// Package commands holds the explicit result type every workflow entry point
// returns and a small bus for routing trigger commands to their orchestrators.
package commands

import (
	"context"
	"errors"

	billing_errors "billing-lifecycle/pkg/errors"
)

type Command interface {
	CommandType() string
	Validate() error
	IdempotencyKey() string
}

// ErrorKind classifies a failed Result.
type ErrorKind string

const (
	KindNone           ErrorKind = ""
	KindValidation     ErrorKind = "validation"
	KindNotFound       ErrorKind = "not_found"
	KindConflict       ErrorKind = "conflict"
	KindDependency     ErrorKind = "dependency"
	KindInfrastructure ErrorKind = "infrastructure"
)

// Result is the success or failure variant of a workflow call. Dependency and
// validation failures are reported here; an accompanying error is only
// returned for KindInfrastructure.
type Result struct {
	Success       bool      `json:"success"`
	Outcome       string    `json:"outcome,omitempty"`
	Kind          ErrorKind `json:"error_kind,omitempty"`
	Message       string    `json:"message,omitempty"`
	CorrelationID string    `json:"correlation_id"`
	AggregateID   int64     `json:"aggregate_id,omitempty"`
	InvoiceID     int64     `json:"invoice_id,omitempty"`
}

func Succeeded(correlationID, outcome string, aggregateID int64) Result {
	return Result{Success: true, Outcome: outcome, CorrelationID: correlationID, AggregateID: aggregateID}
}

func Failed(correlationID string, kind ErrorKind, message string) Result {
	return Result{Success: false, Kind: kind, Message: message, CorrelationID: correlationID}
}

// WithInvoice returns r carrying invoiceID.
func (r Result) WithInvoice(invoiceID int64) Result {
	r.InvoiceID = invoiceID
	return r
}

// KindOf maps an error onto the taxonomy using the shared sentinels.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, billing_errors.ErrNotFound):
		return KindNotFound
	case errors.Is(err, billing_errors.ErrConflict), errors.Is(err, billing_errors.ErrAlreadyExists):
		return KindConflict
	case errors.Is(err, billing_errors.ErrInvalidTransition),
		errors.Is(err, billing_errors.ErrInvalidInput),
		errors.Is(err, billing_errors.ErrMissingConfig):
		return KindValidation
	case errors.Is(err, billing_errors.ErrProviderTimeout),
		errors.Is(err, billing_errors.ErrProviderFailure),
		errors.Is(err, billing_errors.ErrServiceUnavailable):
		return KindDependency
	default:
		return KindInfrastructure
	}
}

// FromError builds the failure Result for err. The error is handed back only
// when it is an infrastructure failure.
func FromError(correlationID string, err error) (Result, error) {
	kind := KindOf(err)
	res := Failed(correlationID, kind, err.Error())
	if kind == KindInfrastructure {
		return res, err
	}
	return res, nil
}

type Handler interface {
	Handle(ctx context.Context, cmd Command) (Result, error)
}

type HandlerFunc func(ctx context.Context, cmd Command) (Result, error)

func (f HandlerFunc) Handle(ctx context.Context, cmd Command) (Result, error) {
	return f(ctx, cmd)
}
