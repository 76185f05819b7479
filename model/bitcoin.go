package model

// BitcoinBlock is a persisted Bitcoin block header (design §3). Forks are
// permitted: two blocks may share a height, but (Hash) is unique and the
// parent of the block at height h must equal the canonical block at h-1.
type BitcoinBlock struct {
	Hash       BitcoinHash
	Height     uint64
	ParentHash BitcoinHash
}

// SignerUtxo is the single Bitcoin output owned by the signer federation,
// tracked forward through each sweep.
type SignerUtxo struct {
	Outpoint     Outpoint
	Amount       int64
	ScriptPubKey SignerScriptPubKey
}

// Outpoint identifies a transaction output by txid and index.
type Outpoint struct {
	Txid BitcoinHash
	Vout uint32
}

// Fees summarizes the fee+vsize of a mempool package, used both for
// per-transaction fee assessment and for the RBF package computed in design
// §4.6.
type Fees struct {
	Total uint64
	VSize uint64
}

// Rate returns the fee rate in satoshis per vbyte. Returns 0 if VSize is 0.
func (f Fees) Rate() float64 {
	if f.VSize == 0 {
		return 0
	}
	return float64(f.Total) / float64(f.VSize)
}

// SBTCTransaction is a Bitcoin transaction recognized as paying to a signer
// script-pubkey, bound to the block it was observed in.
type SBTCTransaction struct {
	Txid      BitcoinHash
	BlockHash BitcoinHash
	VSize     uint64
}
