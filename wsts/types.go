// Package wsts is the thin adapter described in design §4.3: it moves a
// generic threshold-signature coordinator state machine forward given
// authenticated inbound packets and emits outbound packets to the Network
// port. The state machine's internal algorithm is out of scope (design
// §1) — this package only specifies and enforces the driver protocol
// around it.
package wsts

import "github.com/sbtc-core/signer/model"

// Role classifies which participant is allowed to originate a given
// packet kind (design §4.3 step 3.c).
type Role int

const (
	RoleCoordinator Role = iota
	RoleSigner
)

// PacketKind enumerates the WSTS wire message variants this driver is
// required to authenticate and route. The concrete protocol's own message
// variants are out of scope; this is the subset the driver's role table
// must dispatch on.
type PacketKind int

const (
	PacketDkgBegin PacketKind = iota
	PacketDkgPrivateBegin
	PacketDkgEndBegin
	PacketNonceRequest
	PacketSignatureShareRequest
	PacketDkgPrivateShares
	PacketDkgEnd
	PacketNonceResponse
	PacketSignatureShareResponse
)

// roleTable is the authentication table (message_role -> expected_sender),
// a constant map as suggested by design §9: coordinator-role packets may
// only come from the elected coordinator; the rest are signer-role and
// carry a signer_id whose registered public key must match the sender.
var roleTable = map[PacketKind]Role{
	PacketDkgBegin:              RoleCoordinator,
	PacketDkgPrivateBegin:       RoleCoordinator,
	PacketDkgEndBegin:           RoleCoordinator,
	PacketNonceRequest:          RoleCoordinator,
	PacketSignatureShareRequest: RoleCoordinator,
	PacketDkgPrivateShares:      RoleSigner,
	PacketDkgEnd:                RoleSigner,
	PacketNonceResponse:         RoleSigner,
	PacketSignatureShareResponse: RoleSigner,
}

func roleOf(kind PacketKind) Role {
	return roleTable[kind]
}

// Packet is one WSTS wire message, tagged with the round it belongs to.
type Packet struct {
	RoundTag [32]byte
	Kind     PacketKind
	SignerID *uint32 // set only for RoleSigner packets
	Body     []byte
}

// ResultKind distinguishes the three terminal outcomes the coordinator
// state machine can produce (design §4.3).
type ResultKind int

const (
	ResultDkg ResultKind = iota
	ResultSignSchnorr
	ResultSignTaproot
)

// OperationResult is the state machine's terminal output.
type OperationResult struct {
	Kind         ResultKind
	AggregateKey *model.PublicKey // set when Kind == ResultDkg
	Signature    []byte           // set when Kind == ResultSignSchnorr or ResultSignTaproot
}

// StateMachine is the only observable contract the generic threshold
// coordinator exposes (design §4.3): feed it inbound packets, collect
// outbound packets, and eventually one OperationResult.
type StateMachine interface {
	// Start emits the round's initial packet (a DKG start or a signing
	// start), tagged with roundTag.
	Start(roundTag [32]byte) (Packet, error)

	// Handle advances the state machine with one authenticated inbound
	// packet. It returns zero or more outbound packets to broadcast and,
	// on the round's last packet, a non-nil OperationResult.
	Handle(pkt Packet) ([]Packet, *OperationResult, error)
}
