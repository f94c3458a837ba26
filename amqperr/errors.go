// Package amqperr defines the error kinds surfaced by the connection/channel
// state machine (see spec section 7, Error Handling Design).
package amqperr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind enumerates every distinguishable failure mode the core can raise.
type Kind int

const (
	// InvalidChannel is returned when an operation targets a channel-id the
	// Connection does not know about.
	InvalidChannel Kind = iota
	// InvalidState is returned when an operation requires the channel to be
	// Connected and it is not.
	InvalidState
	// UnexpectedAnswer is returned when an inbound reply does not match the
	// head of the channel's awaiting queue.
	UnexpectedAnswer
	// ProtocolDecode is returned when the codec fails to decode a frame.
	ProtocolDecode
	// ProtocolUnexpectedFrame is returned when a frame arrives that is
	// illegal in the channel's current transient state.
	ProtocolUnexpectedFrame
	// ConnectionClosed is returned once the connection has moved to Closed.
	ConnectionClosed
	// ChannelClosed is returned when the broker closes a channel.
	ChannelClosed
	// ChannelsLimitReached is returned when the identifier allocator is
	// exhausted.
	ChannelsLimitReached
	// IoError wraps a transport-level failure.
	IoError
	// PreconditionFailed wraps a broker-reported precondition-failed reply.
	PreconditionFailed
)

func (k Kind) String() string {
	switch k {
	case InvalidChannel:
		return "invalid_channel"
	case InvalidState:
		return "invalid_state"
	case UnexpectedAnswer:
		return "unexpected_answer"
	case ProtocolDecode:
		return "protocol_decode"
	case ProtocolUnexpectedFrame:
		return "protocol_unexpected_frame"
	case ConnectionClosed:
		return "connection_closed"
	case ChannelClosed:
		return "channel_closed"
	case ChannelsLimitReached:
		return "channels_limit_reached"
	case IoError:
		return "io_error"
	case PreconditionFailed:
		return "precondition_failed"
	default:
		return "unknown"
	}
}

// CloseOrigin distinguishes who initiated a ConnectionClosed error.
type CloseOrigin int

const (
	// ByUs means the client closed the connection.
	ByUs CloseOrigin = iota
	// ByPeer means the broker closed the connection.
	ByPeer
	// ByIO means the transport failed and the connection was torn down.
	ByIO
)

// Error is the concrete error type returned by this module. It carries a
// Kind plus whatever broker-supplied context is available, and wraps an
// optional cause so the original failure survives a goroutine hand-off.
type Error struct {
	Kind       Kind
	ReplyCode  uint16
	ReplyText  string
	Origin     CloseOrigin
	cause      error
}

// New builds a bare Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, cause: errors.New(msg)}
}

// Wrap builds an Error of the given kind around an existing cause.
func Wrap(kind Kind, cause error, msg string) *Error {
	return &Error{Kind: kind, cause: errors.Wrap(cause, msg)}
}

// Closed builds a ChannelClosed/ConnectionClosed-flavored error carrying the
// broker's reply code/text, per spec section 7's ChannelClosed{reply_code,
// reply_text} kind.
func Closed(kind Kind, replyCode uint16, replyText string) *Error {
	return &Error{
		Kind:      kind,
		ReplyCode: replyCode,
		ReplyText: replyText,
		cause:     errors.Errorf("%s: %d %s", kind, replyCode, replyText),
	}
}

// ClosedBy builds a ConnectionClosed error tagging who initiated the close.
func ClosedBy(origin CloseOrigin, cause error) *Error {
	return &Error{Kind: ConnectionClosed, Origin: origin, cause: cause}
}

func (e *Error) Error() string {
	if e.ReplyCode != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.ReplyCode, e.ReplyText)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.cause.Error())
	}
	return e.Kind.String()
}

// Unwrap allows errors.Is/errors.As (stdlib) to see through to the cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Cause mirrors github.com/pkg/errors' Causer interface.
func (e *Error) Cause() error {
	return e.cause
}

// Is reports whether target is an *Error with the same Kind, so callers can
// write `errors.Is(err, amqperr.InvalidState)`-style checks via a sentinel
// built from KindError.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind
}

// KindError builds a sentinel usable with errors.Is to test only the Kind.
func KindError(kind Kind) *Error {
	return &Error{Kind: kind}
}
