package workflow

import (
	"errors"
	"fmt"
	"sort"
)

// ErrIllegalTransition is matched by every *TransitionError.
var ErrIllegalTransition = errors.New("illegal transition")

// TransitionError describes a rejected state change.
type TransitionError struct {
	Entity string
	From   string
	Event  string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s cannot %s from %s", e.Entity, e.Event, e.From)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

// Machine is a transition table for one entity. It is built once at package
// init and only read afterwards, so it is safe for concurrent use.
type Machine[S ~string, E ~string] struct {
	entity string
	table  map[S]map[E]S
}

// NewMachine returns an empty machine for the named entity.
func NewMachine[S ~string, E ~string](entity string) *Machine[S, E] {
	return &Machine[S, E]{entity: entity, table: make(map[S]map[E]S)}
}

// Allow registers ev as moving each of from to to.
func (m *Machine[S, E]) Allow(ev E, to S, from ...S) *Machine[S, E] {
	for _, f := range from {
		if m.table[f] == nil {
			m.table[f] = make(map[E]S)
		}
		m.table[f][ev] = to
	}
	return m
}

// Next returns the state reached by applying ev in from.
func (m *Machine[S, E]) Next(from S, ev E) (S, error) {
	if to, ok := m.table[from][ev]; ok {
		return to, nil
	}
	return from, &TransitionError{Entity: m.entity, From: string(from), Event: string(ev)}
}

// Can reports whether ev is legal in from.
func (m *Machine[S, E]) Can(from S, ev E) bool {
	_, ok := m.table[from][ev]
	return ok
}

// Sources lists the states in which ev is legal, sorted. Used to build
// conditional updates of the form "WHERE status IN (...)".
func (m *Machine[S, E]) Sources(ev E) []S {
	var out []S
	for from, evs := range m.table {
		if _, ok := evs[ev]; ok {
			out = append(out, from)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Terminal reports whether no event leaves s.
func (m *Machine[S, E]) Terminal(s S) bool {
	return len(m.table[s]) == 0
}
