package bitcoin

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// KeyPathWitness builds the witness for the signer-UTXO key-path input: a
// single 64-byte Schnorr signature over the taproot key-path sighash
// (design §4.3 "sighashes.signers.to_raw_hash()").
func KeyPathWitness(sig *schnorr.Signature) wire.TxWitness {
	return wire.TxWitness{sig.Serialize()}
}

// DepositWitness builds the witness for a deposit input swept via its
// deposit tapscript leaf (design §4.3
// "deposit.construct_witness_data(sig)"): the signature, the leaf script,
// and the control block proving the leaf's membership in the output key's
// script tree.
func DepositWitness(aggregateKey *btcec.PublicKey, depositScript, reclaimScript []byte, sig *schnorr.Signature) (wire.TxWitness, error) {
	depositLeaf := txscript.NewBaseTapLeaf(depositScript)
	reclaimLeaf := txscript.NewBaseTapLeaf(reclaimScript)
	tree := txscript.AssembleTaprootScriptTree(depositLeaf, reclaimLeaf)

	proof := tree.LeafMerkleProofs[0]
	controlBlock := proof.ToControlBlock(aggregateKey)
	controlBlockBytes, err := controlBlock.ToBytes()
	if err != nil {
		return nil, err
	}

	return wire.TxWitness{
		sig.Serialize(),
		depositScript,
		controlBlockBytes,
	}, nil
}
