package commands

import (
	"context"
	"fmt"
	"sync/atomic"

	billing_errors "billing-lifecycle/pkg/errors"
)

// Proxy vets a command before it reaches its handler.
type Proxy interface {
	Authorize(ctx context.Context, cmd Command) error
}

type ProxyChain struct {
	proxies []Proxy
}

func NewProxyChain(proxies ...Proxy) *ProxyChain {
	items := make([]Proxy, 0, len(proxies))
	for _, proxy := range proxies {
		if proxy != nil {
			items = append(items, proxy)
		}
	}
	return &ProxyChain{proxies: items}
}

func (p *ProxyChain) Authorize(ctx context.Context, cmd Command) error {
	for _, proxy := range p.proxies {
		if err := proxy.Authorize(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

// MaintenanceProxy rejects every command while maintenance mode is on.
type MaintenanceProxy struct {
	enabled atomic.Bool
}

func NewMaintenanceProxy(enabled bool) *MaintenanceProxy {
	p := &MaintenanceProxy{}
	p.enabled.Store(enabled)
	return p
}

func (p *MaintenanceProxy) Set(enabled bool) {
	p.enabled.Store(enabled)
}

func (p *MaintenanceProxy) Authorize(_ context.Context, cmd Command) error {
	if p.enabled.Load() {
		return fmt.Errorf("%s rejected during maintenance: %w", cmd.CommandType(), billing_errors.ErrServiceUnavailable)
	}
	return nil
}
