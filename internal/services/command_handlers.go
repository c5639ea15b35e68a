package services

import (
	"context"

	"billing-lifecycle/internal/commands"
)

// Workflows groups the orchestrators reachable through the command bus.
type Workflows struct {
	Registration *DomainRegistration
	Renewal      *DomainRenewal
	Provisioning *OrderProvisioning
	Payments     *PaymentService
	Lifecycle    *LifecycleService
}

// RegisterCommands routes each trigger command to its orchestrator.
func RegisterCommands(bus *commands.Bus, w Workflows) {
	bus.Register(commands.TypeRegisterDomain, commands.HandlerFunc(func(ctx context.Context, cmd commands.Command) (commands.Result, error) {
		c := cmd.(commands.RegisterDomain)
		return w.Registration.Execute(ctx, RegistrationInput{
			CustomerID:  c.CustomerID,
			RegistrarID: c.RegistrarID,
			DomainName:  c.DomainName,
			Years:       c.Years,
			AutoRenew:   c.AutoRenew,
		})
	}))
	bus.Register(commands.TypeRenewDomain, commands.HandlerFunc(func(ctx context.Context, cmd commands.Command) (commands.Result, error) {
		return w.Renewal.Execute(ctx, cmd.(commands.RenewDomain).DomainID)
	}))
	bus.Register(commands.TypeTransitionDomain, commands.HandlerFunc(func(ctx context.Context, cmd commands.Command) (commands.Result, error) {
		c := cmd.(commands.TransitionDomain)
		return w.Lifecycle.TransitionDomain(ctx, c.DomainID, c.Transition, c.Reason)
	}))
	bus.Register(commands.TypePlaceOrder, commands.HandlerFunc(func(ctx context.Context, cmd commands.Command) (commands.Result, error) {
		c := cmd.(commands.PlaceOrder)
		return w.Provisioning.PlaceOrder(ctx, PlaceOrderInput{
			CustomerID:         c.CustomerID,
			ServiceType:        c.ServiceType,
			Reference:          c.Reference,
			Amount:             c.Amount,
			Currency:           c.Currency,
			BillingCycleMonths: c.BillingCycleMonths,
		})
	}))
	bus.Register(commands.TypeProvisionOrder, commands.HandlerFunc(func(ctx context.Context, cmd commands.Command) (commands.Result, error) {
		return w.Provisioning.ProvisionAsync(ctx, cmd.(commands.ProvisionOrder).OrderID)
	}))
	bus.Register(commands.TypeTransitionOrder, commands.HandlerFunc(func(ctx context.Context, cmd commands.Command) (commands.Result, error) {
		c := cmd.(commands.TransitionOrder)
		return w.Lifecycle.TransitionOrder(ctx, c.OrderID, c.Transition, c.Reason)
	}))
	bus.Register(commands.TypeRecordPayment, commands.HandlerFunc(func(ctx context.Context, cmd commands.Command) (commands.Result, error) {
		c := cmd.(commands.RecordPayment)
		return w.Payments.RecordPayment(ctx, c.InvoiceID, c.TransactionID)
	}))
}
