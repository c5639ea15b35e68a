package providers

import (
	"fmt"
	"sync"

	billing_errors "billing-lifecycle/pkg/errors"
)

// RegistrarFactory resolves a registrar record's adapter key to an implementation.
type RegistrarFactory struct {
	mu       sync.RWMutex
	adapters map[string]Registrar
}

func NewRegistrarFactory() *RegistrarFactory {
	return &RegistrarFactory{adapters: make(map[string]Registrar)}
}

func (f *RegistrarFactory) Register(key string, r Registrar) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adapters[key] = r
}

func (f *RegistrarFactory) Get(key string) (Registrar, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	r, ok := f.adapters[key]
	if !ok {
		return nil, fmt.Errorf("registrar adapter %q: %w", key, billing_errors.ErrMissingConfig)
	}
	return r, nil
}
