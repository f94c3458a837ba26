package channel

// State is the channel lifecycle state (spec section 3, ChannelState).
// SendingContent/WillReceiveContent/ReceivingContent are transient: they
// must converge back to Connected once the content-body frames implied by
// the in-flight transfer have all been seen.
type State int

const (
	// Initial is the state before channel.open-ok arrives; the only state
	// in which channel.open itself is legal.
	Initial State = iota
	// Connected is the steady state: every other synchronous method is
	// legal here.
	Connected
	// Closed is terminal: only channel.close-ok is legal (the channel is
	// accepting the tail of an already-agreed close).
	Closed
	// Error is terminal and channel-fatal: reached on InvalidState or
	// UnexpectedAnswer.
	Error
	// SendingContent(remaining) tracks an outbound basic.publish whose
	// body frames are still being handed to the frame queue.
	SendingContent
	// WillReceiveContent(queue, tag) is entered right after a
	// basic.deliver/basic.get-ok/basic.return method frame, before its
	// content header has arrived.
	WillReceiveContent
	// ReceivingContent(queue, tag, remaining) is entered once the content
	// header's body_size is known; it converges to Connected once
	// remaining body bytes have all arrived.
	ReceivingContent
)

func (s State) String() string {
	switch s {
	case Initial:
		return "initial"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	case Error:
		return "error"
	case SendingContent:
		return "sending_content"
	case WillReceiveContent:
		return "will_receive_content"
	case ReceivingContent:
		return "receiving_content"
	default:
		return "unknown"
	}
}
