package network

import "context"

// Port is the Network port (design §6): broadcast outbound signed messages
// and expose the filterable event bus inbound messages (and every other
// component signal) arrive on.
type Port interface {
	Broadcast(ctx context.Context, msg SignedMessage) error
	Events() *Bus
}

// LoopbackPort is a trivial in-process Port: broadcasting a message
// re-publishes it on the same bus as an EventP2PMessageReceived event, the
// shape used by this repo's tests to drive a driver loop without real
// networking.
type LoopbackPort struct {
	bus *Bus
}

func NewLoopbackPort(bus *Bus) *LoopbackPort {
	return &LoopbackPort{bus: bus}
}

func (p *LoopbackPort) Broadcast(ctx context.Context, msg SignedMessage) error {
	p.bus.Publish(Event{Type: EventP2PMessageReceived, Payload: msg})
	return nil
}

func (p *LoopbackPort) Events() *Bus { return p.bus }
