package network

import (
	"context"
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/sbtc-core/signer/errs"
	"github.com/sbtc-core/signer/model"
)

// Payload is any inter-signer message body (design §6): BitcoinPreSignRequest,
// WstsMessage, StacksTransactionSignRequest, StacksTransactionSignature, or
// SweepTransactionInfo.
type Payload interface {
	payloadTag() string
}

type BitcoinPreSignRequest struct {
	RequestsPerTx int
	FeeRate       float64
	LastFees      *model.Fees
}

func (BitcoinPreSignRequest) payloadTag() string { return "bitcoin_pre_sign_request" }

// WstsMessage wraps an inner WSTS protocol packet with the round tag it
// belongs to (design §4.3 step 2).
type WstsMessage struct {
	Txid  [32]byte
	Inner []byte
}

func (WstsMessage) payloadTag() string { return "wsts_message" }

type StacksTransactionSignRequest struct {
	AggregateKey *model.PublicKey
	ContractTx   []byte
	Nonce        uint64
	TxFee        uint64
	Digest       [32]byte
	Txid         [32]byte
}

func (StacksTransactionSignRequest) payloadTag() string { return "stacks_transaction_sign_request" }

type StacksTransactionSignature struct {
	Txid      [32]byte
	Signature []byte
}

func (StacksTransactionSignature) payloadTag() string { return "stacks_transaction_signature" }

type SweepTransactionInfo struct {
	Txid [32]byte
}

func (SweepTransactionInfo) payloadTag() string { return "sweep_transaction_info" }

// SignedMessage is the inter-signer message envelope (design §6): a
// payload bound to the Bitcoin tip it was produced against, the sender's
// public key, and a signature over the rest of the envelope.
type SignedMessage struct {
	Payload        Payload
	BitcoinTip     [32]byte
	SignerPubKey   *model.PublicKey
	Signature      []byte
}

// signingDigest is the hash the envelope's signature commits to: the
// payload tag, the tip tag, and a content hash of the payload bytes the
// caller supplies (payload encoding itself is out of scope, design §1).
func signingDigest(tag string, tip [32]byte, payloadHash [32]byte) [32]byte {
	h := sha256.New()
	h.Write([]byte(tag))
	h.Write(tip[:])
	h.Write(payloadHash[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Sign produces a SignedMessage over payload, tagged with tip and signed
// by key.
func Sign(key *btcec.PrivateKey, payload Payload, tip [32]byte, payloadHash [32]byte) SignedMessage {
	digest := signingDigest(payload.payloadTag(), tip, payloadHash)
	sig := ecdsa.Sign(key, digest[:])
	return SignedMessage{
		Payload:      payload,
		BitcoinTip:   tip,
		SignerPubKey: key.PubKey(),
		Signature:    sig.Serialize(),
	}
}

// Verify checks a SignedMessage's signature against its claimed sender and
// the expected current tip, returning errs.ErrWrongTipTag or
// errs.ErrBadSignature on mismatch (design §4.3 step 3.a/3.b).
func Verify(ctx context.Context, msg SignedMessage, currentTip [32]byte, payloadHash [32]byte) error {
	if msg.BitcoinTip != currentTip {
		return errs.ErrWrongTipTag
	}
	sig, err := ecdsa.ParseDERSignature(msg.Signature)
	if err != nil {
		return errs.New(errs.Validation, "network.verify", err)
	}
	digest := signingDigest(msg.Payload.payloadTag(), msg.BitcoinTip, payloadHash)
	if !sig.Verify(digest[:], msg.SignerPubKey) {
		return errs.ErrBadSignature
	}
	return nil
}
