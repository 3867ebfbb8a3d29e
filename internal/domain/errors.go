package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrLockHeld           = errors.New("lock already held")
	ErrMissingFee         = errors.New("missing fee")
	ErrInstanceNotRunning = errors.New("instance not running")
	ErrWSDisconnect       = errors.New("websocket disconnected")
)

// InputValidationError rejects an operator parameter update. The previous
// parameters stay in effect.
type InputValidationError struct {
	Message string
}

func (e *InputValidationError) Error() string {
	return e.Message
}

// NewInputValidationError builds an InputValidationError.
func NewInputValidationError(format string, args ...any) *InputValidationError {
	return &InputValidationError{Message: fmt.Sprintf(format, args...)}
}

// GatewayTimeoutCode marks an order send whose outcome is unknown.
const GatewayTimeoutCode = 504

// SendOrderError is returned by order senders. ExecutionID is set once the
// execution was persisted, so the outcome can be looked up later.
type SendOrderError struct {
	Code        int
	Message     string
	ExecutionID int64
	Err         error
}

func (e *SendOrderError) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *SendOrderError) Unwrap() error {
	return e.Err
}

// IsGatewayTimeout reports whether the send may have reached the exchange.
func (e *SendOrderError) IsGatewayTimeout() bool {
	return e.Code == GatewayTimeoutCode
}
