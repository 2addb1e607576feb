package connect

import (
	"errors"
	"fmt"
)

var (
	ErrAdapterRequired   = errors.New("connect: adapter required")
	ErrNotConnected      = errors.New("connect: not connected")
	ErrSendFailed        = errors.New("connect: send failed")
	ErrConnectionDropped = errors.New("connect: connection dropped")
	ErrClosed            = errors.New("connect: client closed")
	ErrDuplicateID       = errors.New("connect: correlation id in use")
)

// CommandError reports why one command could not be delivered. Kind is one of
// the package sentinels; Cause carries the adapter error for ErrSendFailed.
type CommandError struct {
	Kind          error
	PayloadType   uint32
	CorrelationID string
	Cause         error
}

func (e *CommandError) Error() string {
	reason := "unknown failure"
	switch {
	case errors.Is(e.Kind, ErrNotConnected):
		reason = "connection is closed"
	case errors.Is(e.Kind, ErrConnectionDropped):
		reason = "connection was closed before a response arrived"
	case errors.Is(e.Kind, ErrSendFailed):
		reason = "adapter could not send command"
	case errors.Is(e.Kind, ErrClosed):
		reason = "client closed"
	case errors.Is(e.Kind, ErrDuplicateID):
		reason = "correlation id already in use"
	}
	msg := fmt.Sprintf("connect: message with payload_type=%d was not sent: %s", e.PayloadType, reason)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *CommandError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func newCommandError(kind error, e *entry, cause error) *CommandError {
	return &CommandError{
		Kind:          kind,
		PayloadType:   e.cmd.PayloadType,
		CorrelationID: e.id,
		Cause:         cause,
	}
}

// ResponseError is returned by Await when IsError classifies a response as a
// failure.
type ResponseError struct {
	Response Message
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("connect: error response payload_type=%d", e.Response.PayloadType)
}
