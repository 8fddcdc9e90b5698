package gateway

import (
	"errors"
	"fmt"
)

// Kind classifies a failed operation.
type Kind int

const (
	// KindUnknown is reported for errors that did not come from this package.
	KindUnknown Kind = iota
	// KindNetwork means the request never got a response.
	KindNetwork
	// KindServerRejected means the backend answered with a non-success status.
	KindServerRejected
	// KindValidation means the input was refused before any request was sent.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindServerRejected:
		return "server_rejected"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// User-facing fallbacks.
const (
	MsgUnreachable   = "Could not reach the server"
	MsgGeneric       = "Something went wrong"
	MsgFillAllFields = "Fill in all fields"
)

// Error is returned by every Client operation.
type Error struct {
	Kind    Kind
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindServerRejected:
		if e.Message != "" {
			return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Message)
		}
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	case KindValidation:
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Op, e.Err)
		}
		return e.Op + ": " + e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// ValidationError builds a KindValidation error.
func ValidationError(op, message string) error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

// KindOf returns the Kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Kind
	}
	return KindUnknown
}

// UserMessage renders err for a notification.
func UserMessage(err error) string {
	var gerr *Error
	if !errors.As(err, &gerr) {
		return MsgGeneric
	}
	switch gerr.Kind {
	case KindNetwork:
		return MsgUnreachable
	case KindServerRejected, KindValidation:
		if gerr.Message != "" {
			return gerr.Message
		}
	}
	return MsgGeneric
}
