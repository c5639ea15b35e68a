package commands

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"billing-lifecycle/pkg/logger"
)

var ErrHandlerNotFound = errors.New("command handler not found")

type Bus struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	proxies  *ProxyChain
}

func NewBus(proxies ...Proxy) *Bus {
	return &Bus{handlers: make(map[string]Handler), proxies: NewProxyChain(proxies...)}
}

func (b *Bus) Register(commandType string, handler Handler) {
	b.mu.Lock()
	b.handlers[commandType] = handler
	b.mu.Unlock()
}

// Execute validates cmd, runs the proxy chain and hands it to its handler.
// Rejections surface as failed Results, not errors.
func (b *Bus) Execute(ctx context.Context, cmd Command) (Result, error) {
	ctx, correlationID := logger.EnsureCorrelationID(ctx)

	b.mu.RLock()
	h, ok := b.handlers[cmd.CommandType()]
	b.mu.RUnlock()
	if !ok {
		return Failed(correlationID, KindInfrastructure, cmd.CommandType()),
			fmt.Errorf("%s: %w", cmd.CommandType(), ErrHandlerNotFound)
	}
	if err := cmd.Validate(); err != nil {
		return Failed(correlationID, KindValidation, err.Error()), nil
	}
	if err := b.proxies.Authorize(ctx, cmd); err != nil {
		return FromError(correlationID, err)
	}
	return h.Handle(ctx, cmd)
}
