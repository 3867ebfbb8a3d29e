package arbitrage

import "github.com/jthomazinho/vimana-arbitrage/internal/fsm"

// State is a state of the arbitrage algo.
type State string

const (
	StateInitializing         State = "initializing"
	StateMonitoring           State = "monitoring"
	StateWaitingOrders        State = "waitingOrders"
	StateWaitingOrderResponse State = "waitingOrderResponse"
	StatePausing              State = "pausing"
	StatePaused               State = "paused"
	StateError                State = "error"
	StateFinalizing           State = "finalizing"
	StateFinalized            State = "finalized"
)

// Event drives the state machine. Events are raised by the algo itself,
// never taken directly from the outside.
type Event string

const (
	EventInitializingOk    Event = "initializeOk"
	EventWaitOrdersPlease  Event = "waitOrdersPlease"
	EventWaitOrderResponse Event = "waitOrderResponse"
	EventWaitOrdersOk      Event = "waitOrdersOk"
	EventPausePlease       Event = "pausePlease"
	EventPauseOk           Event = "pauseOk"
	EventResumePlease      Event = "resumePlease"
	EventErrorDetected     Event = "errorDetected"
	EventFinalizePlease    Event = "finalizePlease"
	EventFinalizeOk        Event = "finalizeOk"
)

type (
	transitions = map[Event]fsm.Transition[State]
	stateConfig = fsm.State[State, Event]
)

func (a *Algo) definition() fsm.Definition[State, Event] {
	return fsm.Definition[State, Event]{
		Initial: StateInitializing,
		States: map[State]stateConfig{
			StateInitializing: {
				Entry: a.onEnterInitializing,
				On: transitions{
					EventInitializingOk: {To: StateMonitoring},
					EventPausePlease:    {To: StatePausing},
					EventFinalizePlease: {To: StateFinalizing},
					EventErrorDetected:  {To: StateError},
				},
			},
			StateMonitoring: {
				Entry: a.onEnterMonitoring,
				On: transitions{
					EventWaitOrdersPlease:  {To: StateWaitingOrders},
					EventWaitOrderResponse: {To: StateWaitingOrderResponse},
					EventPausePlease:       {To: StatePausing},
					EventFinalizePlease:    {To: StateFinalizing},
					EventErrorDetected:     {To: StateError},
				},
			},
			StateWaitingOrders: {
				Entry: a.onEnterWaitingOrders,
				On: transitions{
					EventWaitOrdersOk:      {To: StateMonitoring, Guard: a.ordersDone},
					EventWaitOrderResponse: {To: StateWaitingOrderResponse},
					EventPausePlease:       {To: StatePausing},
					EventFinalizePlease:    {To: StateFinalizing},
					EventErrorDetected:     {To: StateError},
				},
			},
			StateWaitingOrderResponse: {
				Entry: a.onEnterWaitingOrderResponse,
				On: transitions{
					EventErrorDetected:  {To: StateError},
					EventFinalizePlease: {To: StateFinalizing},
				},
			},
			StatePausing: {
				Entry: a.onEnterPausing,
				On: transitions{
					EventPauseOk: {To: StatePaused},
				},
			},
			StatePaused: {
				Entry: a.onEnterPaused,
				On: transitions{
					EventResumePlease:   {To: StateMonitoring},
					EventFinalizePlease: {To: StateFinalizing},
					EventErrorDetected:  {To: StateError},
				},
			},
			StateError: {
				Entry: a.onEnterError,
				On: transitions{
					EventFinalizePlease: {To: StateFinalizing},
				},
			},
			StateFinalizing: {
				Entry: a.onEnterFinalizing,
				On: transitions{
					EventFinalizeOk: {To: StateFinalized},
				},
			},
			StateFinalized: {
				Entry: a.onEnterFinalized,
			},
		},
	}
}
