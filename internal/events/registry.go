package events

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"billing-lifecycle/internal/domain/event"
)

// AllEvents registers a handler for every event type. Such handlers run after
// the type specific ones.
const AllEvents = "*"

// Handler applies one event. Handlers must be idempotent: delivery is at
// least once.
type Handler func(ctx context.Context, e event.DomainEvent) error

type Registration struct {
	EventType string
	Name      string
	Handle    Handler
}

var ErrDuplicateHandler = errors.New("handler already registered")

type Registry struct {
	mu       sync.RWMutex
	handlers map[string][]Registration
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string][]Registration)}
}

func (r *Registry) Register(eventType, name string, h Handler) error {
	if eventType == "" || name == "" || h == nil {
		return fmt.Errorf("register handler %q for %q: type, name and func are required", name, eventType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.handlers[eventType] {
		if existing.Name == name {
			return fmt.Errorf("%w: %s for %s", ErrDuplicateHandler, name, eventType)
		}
	}
	r.handlers[eventType] = append(r.handlers[eventType], Registration{EventType: eventType, Name: name, Handle: h})
	return nil
}

// MustRegister is Register for wiring code; it panics on error.
func (r *Registry) MustRegister(eventType, name string, h Handler) {
	if err := r.Register(eventType, name, h); err != nil {
		panic(err)
	}
}

// Handlers returns the handlers for eventType in registration order.
func (r *Registry) Handlers(eventType string) []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specific := r.handlers[eventType]
	all := r.handlers[AllEvents]
	out := make([]Registration, 0, len(specific)+len(all))
	out = append(out, specific...)
	if eventType != AllEvents {
		out = append(out, all...)
	}
	return out
}

func (r *Registry) EventTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Typed decodes the payload into P before calling fn.
func Typed[P any](fn func(ctx context.Context, e event.DomainEvent, payload P) error) Handler {
	return func(ctx context.Context, e event.DomainEvent) error {
		var payload P
		if err := e.Decode(&payload); err != nil {
			return err
		}
		return fn(ctx, e, payload)
	}
}
