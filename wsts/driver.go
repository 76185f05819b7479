package wsts

import (
	"context"
	"crypto/sha256"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	lru "github.com/hashicorp/golang-lru"

	"github.com/sbtc-core/signer/errs"
	"github.com/sbtc-core/signer/log"
	"github.com/sbtc-core/signer/model"
	"github.com/sbtc-core/signer/network"
)

var logger = log.NewModuleLogger(log.WSTS)

// SignerDirectory resolves a signer_id to the public key registered for
// it, the lookup design §4.3 step 3.c requires for signer-role packets.
type SignerDirectory map[uint32]*model.PublicKey

// Driver runs the protocol described in design §4.3 against one
// network.Port, one round at a time.
type Driver struct {
	net  network.Port
	priv *btcec.PrivateKey
	seen *lru.Cache // round-tag+kind+sender dedup, per design's ambient LRU usage
}

const dedupCacheSize = 4096

func NewDriver(net network.Port, priv *btcec.PrivateKey) *Driver {
	cache, _ := lru.New(dedupCacheSize)
	return &Driver{net: net, priv: priv, seen: cache}
}

// RunRound drives sm through one DKG or signing round tagged roundTag
// against tip, authenticating inbound packets against coordinatorKey and
// directory, until a terminal OperationResult arrives or timeout elapses
// (design §4.3 steps 1-5).
func (d *Driver) RunRound(
	ctx context.Context,
	sm StateMachine,
	tip [32]byte,
	roundTag [32]byte,
	coordinatorKey *model.PublicKey,
	directory SignerDirectory,
	timeout time.Duration,
) (*OperationResult, error) {
	sub := d.net.Events().Subscribe(
		network.EventP2PMessageReceived,
		network.EventTxSignerMessageGenerated,
	)
	defer sub.Unsubscribe()

	initial, err := sm.Start(roundTag)
	if err != nil {
		return nil, errs.New(errs.Protocol, "wsts.start", err)
	}
	if err := d.broadcast(ctx, tip, initial); err != nil {
		return nil, err
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, errs.New(errs.Shutdown, "wsts.run_round", ctx.Err())
		case <-deadline.C:
			return nil, errs.ErrCoordinatorTimeout
		case ev, ok := <-sub.C:
			if !ok {
				return nil, errs.New(errs.Shutdown, "wsts.run_round", nil)
			}
			msg, ok := ev.Payload.(network.SignedMessage)
			if !ok {
				continue
			}
			wmsg, ok := msg.Payload.(network.WstsMessage)
			if !ok {
				continue
			}

			// Step 3.a: drop messages tagged for a different round.
			if wmsg.Txid != roundTag {
				continue
			}

			// Step 3.b: drop on wrong tip tag or failed signature
			// verification.
			if err := network.Verify(ctx, msg, tip, sha256.Sum256(wmsg.Inner)); err != nil {
				logger.Warn("dropping unverifiable wsts message", "err", err)
				continue
			}

			pkt, err := decodePacket(roundTag, wmsg.Inner)
			if err != nil {
				logger.Warn("dropping malformed wsts packet", "err", err)
				continue
			}

			if !d.authenticate(pkt, msg.SignerPubKey, coordinatorKey, directory) {
				logger.Warn("dropping unauthenticated wsts packet", "kind", pkt.Kind)
				continue
			}

			if d.duplicate(roundTag, pkt, msg.SignerPubKey) {
				continue
			}

			outbound, result, err := sm.Handle(pkt)
			if err != nil {
				return nil, errs.New(errs.Protocol, "wsts.handle", err)
			}
			for _, out := range outbound {
				if err := d.broadcast(ctx, tip, out); err != nil {
					return nil, err
				}
			}
			if result != nil {
				switch result.Kind {
				case ResultDkg, ResultSignSchnorr, ResultSignTaproot:
					return result, nil
				default:
					return nil, errs.ErrUnexpectedResult
				}
			}
		}
	}
}

// authenticate implements design §4.3 step 3.c: coordinator-role packets
// must come from coordinatorKey; signer-role packets must come from the
// key directory has registered for the packet's SignerID.
func (d *Driver) authenticate(pkt Packet, sender *model.PublicKey, coordinatorKey *model.PublicKey, directory SignerDirectory) bool {
	switch roleOf(pkt.Kind) {
	case RoleCoordinator:
		return keysEqual(sender, coordinatorKey)
	case RoleSigner:
		if pkt.SignerID == nil {
			return false
		}
		expected, ok := directory[*pkt.SignerID]
		if !ok {
			return false
		}
		return keysEqual(sender, expected)
	default:
		return false
	}
}

func (d *Driver) duplicate(roundTag [32]byte, pkt Packet, sender *model.PublicKey) bool {
	key := dedupKey(roundTag, pkt.Kind, sender)
	if d.seen.Contains(key) {
		return true
	}
	d.seen.Add(key, struct{}{})
	return false
}

type dedupKeyT struct {
	round  [32]byte
	kind   PacketKind
	sender [33]byte
}

func dedupKey(round [32]byte, kind PacketKind, sender *model.PublicKey) dedupKeyT {
	var k dedupKeyT
	k.round = round
	k.kind = kind
	if sender != nil {
		copy(k.sender[:], sender.SerializeCompressed())
	}
	return k
}

func keysEqual(a, b *model.PublicKey) bool {
	if a == nil || b == nil {
		return false
	}
	return a.IsEqual(b)
}

func (d *Driver) broadcast(ctx context.Context, tip [32]byte, pkt Packet) error {
	raw, err := encodePacket(pkt)
	if err != nil {
		return errs.New(errs.Protocol, "wsts.encode", err)
	}
	msg := network.WstsMessage{Txid: pkt.RoundTag, Inner: raw}
	signed := network.Sign(d.priv, msg, tip, sha256.Sum256(raw))
	return d.net.Broadcast(ctx, signed)
}
