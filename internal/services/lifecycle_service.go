package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"billing-lifecycle/internal/commands"
	"billing-lifecycle/internal/domain/domainname"
	"billing-lifecycle/internal/domain/order"
	"billing-lifecycle/internal/events"
	"billing-lifecycle/internal/repository"
	billing_errors "billing-lifecycle/pkg/errors"
	"billing-lifecycle/pkg/logger"
)

var orderEvents = map[order.Transition]string{
	order.Activate: events.EventTypeOrderActivated,
	order.Suspend:  events.EventTypeOrderSuspended,
	order.Resume:   events.EventTypeOrderResumed,
	order.Cancel:   events.EventTypeOrderCancelled,
	order.Expire:   events.EventTypeOrderExpired,
	order.Renew:    events.EventTypeOrderRenewed,
}

var domainEvents = map[domainname.Transition]string{
	domainname.Register:    events.EventTypeDomainRegistered,
	domainname.Suspend:     events.EventTypeDomainSuspended,
	domainname.Reactivate:  events.EventTypeDomainReactivated,
	domainname.Renew:       events.EventTypeDomainRenewed,
	domainname.Expire:      events.EventTypeDomainExpired,
	domainname.Cancel:      events.EventTypeDomainCancelled,
	domainname.TransferIn:  events.EventTypeDomainTransferredIn,
	domainname.TransferOut: events.EventTypeDomainTransferredOut,
}

// Transitions that carry commercial side effects belong to their workflows.
var (
	workflowOrderTransitions = map[order.Transition]string{
		order.Activate: "provisioning",
		order.Renew:    "renewal",
	}
	workflowDomainTransitions = map[domainname.Transition]string{
		domainname.Register: "registration",
		domainname.Renew:    "renewal",
	}
)

// LifecycleService applies operator driven state changes.
type LifecycleService struct {
	Deps
	orders  *order.Machine
	domains *domainname.Machine
}

func NewLifecycleService(deps Deps) *LifecycleService {
	return &LifecycleService{Deps: deps, orders: order.NewMachine(), domains: domainname.NewMachine()}
}

func (s *LifecycleService) TransitionOrder(ctx context.Context, orderID int64, t order.Transition, reason string) (commands.Result, error) {
	ctx, corr := logger.EnsureCorrelationID(ctx)
	if wf, ok := workflowOrderTransitions[t]; ok {
		return commands.Failed(corr, commands.KindValidation, fmt.Sprintf("%s is applied by the %s workflow", t, wf)), nil
	}
	if _, ok := orderEvents[t]; !ok {
		return commands.Failed(corr, commands.KindValidation, fmt.Sprintf("unknown order transition %q", t)), nil
	}

	defer s.Locks.Order(orderID)()

	var next order.Status
	err := s.Store.WithTx(ctx, func(repos repository.Repositories) error {
		var err error
		next, err = applyOrderTransition(ctx, s.Deps, s.orders, repos, orderID, t, reason)
		return err
	})
	if err != nil {
		res, ferr := commands.FromError(corr, err)
		res.AggregateID = orderID
		return res, ferr
	}
	s.Events.Committed(ctx)
	s.Metrics.IncWorkflow("order_transition", string(t))
	logger.WithContext(ctx, s.Log).Info("Order transitioned",
		zap.Int64("order_id", orderID), zap.String("transition", string(t)), zap.String("status", string(next)))
	return commands.Succeeded(corr, string(next), orderID), nil
}

func (s *LifecycleService) TransitionDomain(ctx context.Context, domainID int64, t domainname.Transition, reason string) (commands.Result, error) {
	ctx, corr := logger.EnsureCorrelationID(ctx)
	if wf, ok := workflowDomainTransitions[t]; ok {
		return commands.Failed(corr, commands.KindValidation, fmt.Sprintf("%s is applied by the %s workflow", t, wf)), nil
	}
	if _, ok := domainEvents[t]; !ok {
		return commands.Failed(corr, commands.KindValidation, fmt.Sprintf("unknown domain transition %q", t)), nil
	}

	defer s.Locks.Domain(domainID)()

	var next domainname.Status
	err := s.Store.WithTx(ctx, func(repos repository.Repositories) error {
		var err error
		next, err = s.applyDomainTransition(ctx, repos, domainID, t, reason)
		return err
	})
	if err != nil {
		res, ferr := commands.FromError(corr, err)
		res.AggregateID = domainID
		return res, ferr
	}
	s.Events.Committed(ctx)
	s.Metrics.IncWorkflow("domain_transition", string(t))
	logger.WithContext(ctx, s.Log).Info("Domain transitioned",
		zap.Int64("domain_id", domainID), zap.String("transition", string(t)), zap.String("status", string(next)))
	return commands.Succeeded(corr, string(next), domainID), nil
}

func (s *LifecycleService) applyDomainTransition(ctx context.Context, repos repository.Repositories, domainID int64, t domainname.Transition, reason string) (domainname.Status, error) {
	d, err := repos.Domains.GetForUpdate(ctx, domainID)
	if err != nil {
		return "", err
	}
	next, err := s.domains.Transition(d.Status, t)
	if err != nil {
		return "", err
	}
	from := d.Status
	d.Status = next
	if err := repos.Domains.Update(ctx, &d); err != nil {
		return "", err
	}
	return next, s.Events.Emit(ctx, repos, domainEvents[t], events.AggregateTypeDomain, d.ID, events.DomainStatusPayload{
		DomainID:   d.ID,
		Name:       d.Name,
		CustomerID: d.CustomerID,
		From:       string(from),
		To:         string(next),
		Reason:     reason,
		At:         s.now(),
	})
}

// ExpireDueDomains moves every lapsed domain to Expired. It returns the
// number of domains expired; failures on single domains are logged and
// skipped.
func (s *LifecycleService) ExpireDueDomains(ctx context.Context, now time.Time) (int, error) {
	ctx, _ = logger.EnsureCorrelationID(ctx)
	log := logger.WithContext(ctx, s.Log)
	due, err := s.Store.Repos().Domains.ListExpiringBefore(ctx, now, []domainname.Status{
		domainname.StatusActive,
		domainname.StatusSuspended,
		domainname.StatusPendingRenewal,
	}, 500)
	if err != nil {
		return 0, fmt.Errorf("list lapsed domains: %w", err)
	}
	expired := 0
	for _, d := range due {
		res, err := s.expire(ctx, d.ID)
		if err != nil {
			log.Error("Failed to expire domain", zap.Int64("domain_id", d.ID), zap.Error(err))
			continue
		}
		if !res.Success {
			log.Warn("Domain not expired", zap.Int64("domain_id", d.ID), zap.String("reason", res.Message))
			continue
		}
		expired++
	}
	return expired, nil
}

func (s *LifecycleService) expire(ctx context.Context, domainID int64) (commands.Result, error) {
	corr, _ := logger.CorrelationID(ctx)
	defer s.Locks.Domain(domainID)()
	err := s.Store.WithTx(ctx, func(repos repository.Repositories) error {
		_, err := s.applyDomainTransition(ctx, repos, domainID, domainname.Expire, "expiration date passed")
		return err
	})
	if err != nil {
		return commands.FromError(corr, err)
	}
	s.Events.Committed(ctx)
	s.Metrics.IncWorkflow("domain_transition", string(domainname.Expire))
	return commands.Succeeded(corr, string(domainname.StatusExpired), domainID), nil
}

// applyOrderTransition loads the order under lock, applies t and emits the
// matching event on repos.
func applyOrderTransition(ctx context.Context, deps Deps, machine *order.Machine, repos repository.Repositories, orderID int64, t order.Transition, reason string) (order.Status, error) {
	o, err := repos.Orders.GetForUpdate(ctx, orderID)
	if err != nil {
		return "", err
	}
	next, err := machine.Transition(o.Status, t)
	if err != nil {
		return "", err
	}
	eventType, ok := orderEvents[t]
	if !ok {
		return "", fmt.Errorf("no event for order transition %s: %w", t, billing_errors.ErrInvalidInput)
	}
	now := deps.now()
	from := o.Status
	switch t {
	case order.Activate:
		o = o.Activated(now)
	case order.Resume:
		o.SuspendReason = ""
	case order.Suspend:
		o.SuspendReason = reason
	}
	o.Status = next
	if err := repos.Orders.Update(ctx, &o); err != nil {
		return "", err
	}
	return next, deps.Events.Emit(ctx, repos, eventType, events.AggregateTypeOrder, o.ID, orderStatusPayload(o, from, reason, now))
}

func suspendOrder(ctx context.Context, deps Deps, machine *order.Machine, repos repository.Repositories, orderID int64, reason string) error {
	_, err := applyOrderTransition(ctx, deps, machine, repos, orderID, order.Suspend, reason)
	return err
}

func orderStatusPayload(o order.Order, from order.Status, reason string, at time.Time) events.OrderStatusPayload {
	return events.OrderStatusPayload{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		CustomerID:  o.CustomerID,
		ServiceType: o.ServiceType,
		From:        string(from),
		To:          string(o.Status),
		Reason:      reason,
		At:          at,
	}
}
