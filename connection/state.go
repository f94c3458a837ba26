package connection

// State is the connection-level handshake/lifecycle state (spec section
// 4.4).
type State int

const (
	PreInit State = iota
	SentProtocolHeader
	ReceivedStart
	SentStartOk
	ReceivedTune
	SentTuneOk
	SentOpen
	Connected
	Closing
	Closed
	Error
)

func (s State) String() string {
	switch s {
	case PreInit:
		return "pre_init"
	case SentProtocolHeader:
		return "sent_protocol_header"
	case ReceivedStart:
		return "received_start"
	case SentStartOk:
		return "sent_start_ok"
	case ReceivedTune:
		return "received_tune"
	case SentTuneOk:
		return "sent_tune_ok"
	case SentOpen:
		return "sent_open"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}
