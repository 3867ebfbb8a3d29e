package fsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type light string

const (
	red    light = "red"
	green  light = "green"
	yellow light = "yellow"
)

type signal string

const (
	tick  signal = "tick"
	reset signal = "reset"
	blink signal = "blink"
)

func TestMachineGuardedTransition(t *testing.T) {
	open := false
	m := New(Definition[light, signal]{
		Initial: red,
		States: map[light]State[light, signal]{
			red: {On: map[signal]Transition[light]{
				tick: {To: green, Guard: func() bool { return open }},
			}},
			green: {},
		},
	})
	m.Start()

	assert.False(t, m.Send(tick))
	assert.Equal(t, red, m.State())

	open = true
	assert.True(t, m.Send(tick))
	assert.Equal(t, green, m.State())
}

func TestMachineIgnoresUnknownEvent(t *testing.T) {
	m := New(Definition[light, signal]{
		Initial: red,
		States:  map[light]State[light, signal]{red: {}},
	})
	m.Start()

	assert.False(t, m.Send(tick))
	assert.False(t, m.Can(tick))
	assert.Equal(t, red, m.State())
}

func TestMachineNotStarted(t *testing.T) {
	entered := 0
	m := New(Definition[light, signal]{
		Initial: red,
		States: map[light]State[light, signal]{
			red:   {Entry: func() { entered++ }, On: map[signal]Transition[light]{tick: {To: green}}},
			green: {},
		},
	})

	assert.False(t, m.Send(tick))
	m.Start()
	m.Start()
	assert.Equal(t, 1, entered)
}

func TestMachineReentrantEntry(t *testing.T) {
	var m *Machine[light, signal]
	var trail []light
	m = New(Definition[light, signal]{
		Initial: red,
		States: map[light]State[light, signal]{
			red: {On: map[signal]Transition[light]{tick: {To: yellow}}},
			yellow: {
				Entry: func() { m.Send(tick) },
				On:    map[signal]Transition[light]{tick: {To: green}},
			},
			green: {},
		},
	})
	m.OnTransition(func(_, to light, _ signal) { trail = append(trail, to) })
	m.Start()

	assert.True(t, m.Send(tick))
	assert.Equal(t, green, m.State())
	assert.Equal(t, []light{yellow, green}, trail)
}

func TestMachineSelfTransitionRunsEntry(t *testing.T) {
	entered := 0
	m := New(Definition[light, signal]{
		Initial: red,
		States: map[light]State[light, signal]{
			red: {},
			green: {
				Entry: func() { entered++ },
				On:    map[signal]Transition[light]{blink: {To: green}},
			},
		},
	})
	m.def.States[red] = State[light, signal]{On: map[signal]Transition[light]{reset: {To: green}}}
	m.Start()

	m.Send(reset)
	m.Send(blink)
	m.Send(blink)
	assert.Equal(t, 3, entered)
}
