package network

// EventType enumerates the typed events the event bus carries (design §6).
// Components subscribe to the subset they care about; everything else is
// filtered out at the stream boundary, the way the teacher's istanbul
// backend posts MessageEvent onto its event.TypeMux and lets uninterested
// listeners ignore it.
type EventType int

const (
	EventP2PMessageReceived EventType = iota
	EventTxSignerMessageGenerated
	EventRequestDeciderNewRequestsHandled
	EventTxCoordinatorTenureCompleted
	EventBlockObserverBitcoinBlockObserved
	EventCommandShutdown
)

func (t EventType) String() string {
	switch t {
	case EventP2PMessageReceived:
		return "p2p.message_received"
	case EventTxSignerMessageGenerated:
		return "tx_signer.message_generated"
	case EventRequestDeciderNewRequestsHandled:
		return "request_decider.new_requests_handled"
	case EventTxCoordinatorTenureCompleted:
		return "tx_coordinator.tenure_completed"
	case EventBlockObserverBitcoinBlockObserved:
		return "block_observer.bitcoin_block_observed"
	case EventCommandShutdown:
		return "command.shutdown"
	default:
		return "unknown"
	}
}

// Event is one item on the bus.
type Event struct {
	Type    EventType
	Payload interface{}
}

// BitcoinBlockObserved is the payload of EventBlockObserverBitcoinBlockObserved.
type BitcoinBlockObserved struct {
	TipHash [32]byte
}

// NewRequestsHandled is the payload of EventRequestDeciderNewRequestsHandled.
type NewRequestsHandled struct {
	TipHash [32]byte
}

// TenureCompleted is the payload of EventTxCoordinatorTenureCompleted.
type TenureCompleted struct {
	TipHash [32]byte
}
