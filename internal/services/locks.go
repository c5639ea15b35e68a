package services

import (
	"fmt"
	"sync"
)

// AggregateLocks serializes work on one aggregate inside this process. The
// optimistic version check covers concurrent writers in other processes.
type AggregateLocks struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func NewAggregateLocks() *AggregateLocks {
	return &AggregateLocks{locks: make(map[string]*keyedLock)}
}

// Lock blocks until key is free and returns the matching unlock func.
func (l *AggregateLocks) Lock(key string) func() {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyedLock{}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	kl.mu.Lock()
	return func() {
		kl.mu.Unlock()
		l.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

func (l *AggregateLocks) Order(id int64) func() {
	return l.Lock(fmt.Sprintf("order:%d", id))
}

func (l *AggregateLocks) Domain(id int64) func() {
	return l.Lock(fmt.Sprintf("domain:%d", id))
}

func (l *AggregateLocks) Invoice(id int64) func() {
	return l.Lock(fmt.Sprintf("invoice:%d", id))
}

// held reports the number of keys currently locked or awaited.
func (l *AggregateLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
