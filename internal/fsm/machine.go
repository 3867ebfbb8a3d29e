// Package fsm is a small table driven finite state machine with entry
// actions and guarded transitions.
//
// Dispatch is synchronous and re-entrant: an entry action may call Send and
// the nested transition completes before the outer Send returns. A Machine
// is not safe for concurrent use; it is owned by a single actor.
package fsm

// Transition is the target of an event in a given state. A nil Guard always
// passes.
type Transition[S comparable] struct {
	To    S
	Guard func() bool
}

// State configures one state of the machine.
type State[S, E comparable] struct {
	Entry func()
	On    map[E]Transition[S]
}

// Definition is the full transition table.
type Definition[S, E comparable] struct {
	Initial S
	States  map[S]State[S, E]
}

// Listener observes every transition taken, before the entry action of the
// target state runs.
type Listener[S, E comparable] func(from, to S, event E)

// Machine runs a Definition.
type Machine[S, E comparable] struct {
	def       Definition[S, E]
	current   S
	started   bool
	listeners []Listener[S, E]
}

// New builds a stopped machine positioned at the initial state.
func New[S, E comparable](def Definition[S, E]) *Machine[S, E] {
	return &Machine[S, E]{def: def, current: def.Initial}
}

// OnTransition registers a listener.
func (m *Machine[S, E]) OnTransition(fn Listener[S, E]) {
	m.listeners = append(m.listeners, fn)
}

// Start runs the entry action of the initial state. Calling it twice has no
// effect.
func (m *Machine[S, E]) Start() {
	if m.started {
		return
	}
	m.started = true
	if entry := m.def.States[m.current].Entry; entry != nil {
		entry()
	}
}

// State returns the current state.
func (m *Machine[S, E]) State() S {
	return m.current
}

// Can reports whether event has a transition from the current state,
// ignoring guards.
func (m *Machine[S, E]) Can(event E) bool {
	_, ok := m.def.States[m.current].On[event]
	return ok
}

// Send dispatches event. It returns false when the machine is not started,
// the current state has no transition for event, or the guard rejects it.
// A transition to the same state is external: the entry action runs again.
func (m *Machine[S, E]) Send(event E) bool {
	if !m.started {
		return false
	}
	tr, ok := m.def.States[m.current].On[event]
	if !ok {
		return false
	}
	if tr.Guard != nil && !tr.Guard() {
		return false
	}

	from := m.current
	m.current = tr.To
	for _, fn := range m.listeners {
		fn(from, tr.To, event)
	}
	if entry := m.def.States[tr.To].Entry; entry != nil {
		entry()
	}
	return true
}
