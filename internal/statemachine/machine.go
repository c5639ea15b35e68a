// Package statemachine evaluates static transition tables. A lifecycle domain
// is a table handed to New; the engine itself knows nothing about orders or
// domains.
package statemachine

import (
	"errors"
	"fmt"
	"sort"

	billing_errors "billing-lifecycle/pkg/errors"
)

// Transition is one legal edge: applying Name in From yields To.
type Transition[S ~string, T ~string] struct {
	From S
	Name T
	To   S
}

type edge[S ~string, T ~string] struct {
	from S
	name T
}

// Machine is immutable after construction and safe for concurrent use.
type Machine[S ~string, T ~string] struct {
	name   string
	states []S
	known  map[S]struct{}
	table  map[edge[S, T]]S
}

// TransitionError reports an attempted transition that is not in the table.
type TransitionError[S ~string, T ~string] struct {
	Machine    string
	State      S
	Transition T
}

func (e *TransitionError[S, T]) Error() string {
	return fmt.Sprintf("%s: transition %q is not allowed from state %q", e.Machine, string(e.Transition), string(e.State))
}

func (e *TransitionError[S, T]) Unwrap() error {
	return billing_errors.ErrInvalidTransition
}

// ErrInvalidTable is returned by New for tables that are not well formed.
var ErrInvalidTable = errors.New("invalid transition table")

// New validates and freezes a transition table. Every state referenced by a
// transition must be one of states, and no (state, transition) pair may map to
// two different destinations.
func New[S ~string, T ~string](name string, states []S, transitions []Transition[S, T]) (*Machine[S, T], error) {
	if len(states) == 0 {
		return nil, fmt.Errorf("%w: %s has no states", ErrInvalidTable, name)
	}
	m := &Machine[S, T]{
		name:   name,
		states: append([]S(nil), states...),
		known:  make(map[S]struct{}, len(states)),
		table:  make(map[edge[S, T]]S, len(transitions)),
	}
	for _, s := range states {
		m.known[s] = struct{}{}
	}
	for _, t := range transitions {
		if _, ok := m.known[t.From]; !ok {
			return nil, fmt.Errorf("%w: %s: unknown source state %q", ErrInvalidTable, name, string(t.From))
		}
		if _, ok := m.known[t.To]; !ok {
			return nil, fmt.Errorf("%w: %s: unknown target state %q", ErrInvalidTable, name, string(t.To))
		}
		key := edge[S, T]{from: t.From, name: t.Name}
		if existing, dup := m.table[key]; dup && existing != t.To {
			return nil, fmt.Errorf("%w: %s: %q from %q maps to both %q and %q",
				ErrInvalidTable, name, string(t.Name), string(t.From), string(existing), string(t.To))
		}
		m.table[key] = t.To
	}
	return m, nil
}

// MustNew is New for package-level tables; it panics on a malformed table.
func MustNew[S ~string, T ~string](name string, states []S, transitions []Transition[S, T]) *Machine[S, T] {
	m, err := New(name, states, transitions)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Machine[S, T]) Name() string {
	return m.name
}

// States returns the state enumeration in declaration order.
func (m *Machine[S, T]) States() []S {
	return append([]S(nil), m.states...)
}

func (m *Machine[S, T]) CanTransition(state S, transition T) bool {
	_, ok := m.table[edge[S, T]{from: state, name: transition}]
	return ok
}

// Transition returns the next state or a *TransitionError. It has no side effects.
func (m *Machine[S, T]) Transition(state S, transition T) (S, error) {
	next, ok := m.table[edge[S, T]{from: state, name: transition}]
	if !ok {
		var zero S
		return zero, &TransitionError[S, T]{Machine: m.name, State: state, Transition: transition}
	}
	return next, nil
}

// ValidTransitions lists the transitions allowed from state, sorted by name.
func (m *Machine[S, T]) ValidTransitions(state S) []T {
	var out []T
	for k := range m.table {
		if k.from == state {
			out = append(out, k.name)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
