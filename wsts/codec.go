package wsts

import "encoding/json"

// wire is the on-the-wire shape of a Packet inside a network.WstsMessage's
// Inner bytes. The exact encoding is out of scope (design §1: "the wire
// encoding of inter-signer messages"); JSON keeps this driver's tests
// legible without pretending to define the production format.
type wire struct {
	Kind     PacketKind `json:"kind"`
	SignerID *uint32    `json:"signer_id,omitempty"`
	Body     []byte     `json:"body"`
}

func encodePacket(pkt Packet) ([]byte, error) {
	return json.Marshal(wire{Kind: pkt.Kind, SignerID: pkt.SignerID, Body: pkt.Body})
}

func decodePacket(roundTag [32]byte, raw []byte) (Packet, error) {
	var w wire
	if err := json.Unmarshal(raw, &w); err != nil {
		return Packet{}, err
	}
	return Packet{RoundTag: roundTag, Kind: w.Kind, SignerID: w.SignerID, Body: w.Body}, nil
}
