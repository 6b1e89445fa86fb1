package status

import (
	"errors"
	"fmt"
)

var (
	ErrNotAuthenticated   = errors.New("session: must authenticate")
	ErrSessionNotResolved = errors.New("session: authentication state not resolved")

	ErrTierNotSelected    = errors.New("purchase: select a price tier")
	ErrQuantityOutOfRange = errors.New("purchase: quantity out of range")
	ErrNoSeatsSelected    = errors.New("purchase: no seats selected")
	ErrSubmitInProgress   = errors.New("purchase: submission already in progress")
	ErrFormClosed         = errors.New("purchase: dialog is not open")

	ErrActionInFlight = errors.New("ticket action: already in progress")
	ErrActionDeclined = errors.New("ticket action: not confirmed")

	ErrCircuitOpen = errors.New("api: circuit breaker is open")
)

// ValidationError wraps one of the purchase validation sentinels.
type ValidationError struct {
	Reason error
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return e.Reason.Error()
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func (e *ValidationError) Unwrap() error { return e.Reason }

func Invalid(reason error, format string, args ...any) error {
	return &ValidationError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// NetworkError means the request could not complete.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerRejectedError is a non-2xx response. Message comes from the
// response's detail field when present.
type ServerRejectedError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *ServerRejectedError) Error() string {
	return fmt.Sprintf("%s: rejected (HTTP %d): %s", e.Op, e.StatusCode, e.Message)
}

// Temporary reports whether the remote side failed rather than refused.
func (e *ServerRejectedError) Temporary() bool {
	return e.StatusCode >= 500
}

// UserMessage renders err as the inline message shown next to the control
// that triggered it. fallback is used when the error carries no message.
func UserMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}

	var rejected *ServerRejectedError
	if errors.As(err, &rejected) {
		if rejected.Message != "" {
			return rejected.Message
		}
		return fallback
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		if errors.Is(err, ErrCircuitOpen) {
			return "service temporarily unavailable, try again shortly"
		}
		return fallback
	}

	switch {
	case errors.Is(err, ErrNotAuthenticated):
		return "you need to sign in"
	case errors.Is(err, ErrTierNotSelected):
		return "select a price tier"
	case errors.Is(err, ErrQuantityOutOfRange):
		return "quantity exceeds available tickets"
	case errors.Is(err, ErrNoSeatsSelected):
		return "select at least one seat"
	}
	return err.Error()
}
