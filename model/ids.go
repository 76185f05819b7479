// Package model holds the persisted and transient entities of the signer
// core's data model (design §3). Types here are pure data: validation and
// persistence live in the component packages that own them.
package model

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// StacksBlockID is the opaque 32-byte identifier of a Stacks block.
type StacksBlockID [32]byte

func (id StacksBlockID) IsZero() bool {
	return id == StacksBlockID{}
}

// PublicKey is a signer's compressed secp256k1 public key, used both as a
// signer-set member identity and as a DKG aggregate key.
type PublicKey = btcec.PublicKey

// SignerScriptPubKey is the opaque Bitcoin script derived from an aggregate
// public key; the storage layer retains the set of all script-pubkeys ever
// produced by DKG so that historical sBTC transactions remain recognizable.
type SignerScriptPubKey []byte

func (s SignerScriptPubKey) Equal(o SignerScriptPubKey) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// BitcoinHash aliases chainhash.Hash, the canonical 32-byte Bitcoin
// identifier type used for block hashes and txids throughout this repo.
type BitcoinHash = chainhash.Hash
