package domain

import (
	"strconv"
	"time"
)

// AlgoKind names a strategy implementation.
type AlgoKind string

const (
	AlgoKindArbitrage AlgoKind = "btc-usd-arbitrage-taker"
	AlgoKindOTC       AlgoKind = "foxbit-otc"
)

// Valid reports whether k is a known kind.
func (k AlgoKind) Valid() bool {
	return k == AlgoKindArbitrage || k == AlgoKindOTC
}

// AlgoInstance is a running (or ended) strategy instance. Active is nil once
// the instance ended so that the (kind, active) unique index only constrains
// live instances.
type AlgoInstance struct {
	ID        int64      `json:"id"`
	AlgoKind  AlgoKind   `json:"algoKind"`
	Active    *bool      `json:"active"`
	EndedAt   *time.Time `json:"endedAt"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Name is the runtime identifier of the instance, e.g. "foxbit-otc-3".
func (i AlgoInstance) Name() string {
	return InstanceName(i.AlgoKind, i.ID)
}

// InstanceName builds the runtime identifier for an instance.
func InstanceName(kind AlgoKind, id int64) string {
	prefix := string(kind)
	if kind == AlgoKindArbitrage {
		prefix = "btc-usd-arbitrage"
	}
	return prefix + "-" + strconv.FormatInt(id, 10)
}

// AlgoData is the public view of an instance.
type AlgoData struct {
	State  string            `json:"state"`
	Output map[string]string `json:"output"`
	Input  map[string]string `json:"input"`
}

// StateNotRunning is reported for instances without a live runner.
const StateNotRunning = "NOT_RUNNING"

// NotRunning is the view returned for an instance that has no runner.
func NotRunning() AlgoData {
	return AlgoData{
		State:  StateNotRunning,
		Output: map[string]string{"message": "Instance not running"},
		Input:  map[string]string{},
	}
}

// StateChange is published on every transition of an instance.
type StateChange struct {
	InstanceID int64     `json:"instanceId"`
	AlgoKind   AlgoKind  `json:"algoKind"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	ErrorMsg   string    `json:"errorMsg,omitempty"`
	At         time.Time `json:"at"`
}
