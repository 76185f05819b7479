package model

// EncryptedDkgShares is one row per successful DKG round. The latest row by
// insertion order is the "current local view" of the aggregate key (design
// §3, §4.2 step 4.ii).
type EncryptedDkgShares struct {
	AggregateKey          *PublicKey
	TweakedAggregateKey   *PublicKey
	SignerScriptPubKey    SignerScriptPubKey
	EncryptedPrivateShare []byte
	PublicShares          []byte
	SignerSet             []*PublicKey
}

// KeyRotation is the authoritative current key when present, confirmed by a
// rotate-keys contract call on the canonical Stacks chain (design §3,
// §4.2 step 4.i).
type KeyRotation struct {
	AggregateKey *PublicKey
	SignerSet    []*PublicKey
	Threshold    uint32
}

// SignerWallet carries the multisig parameters a Stacks transaction is
// built against (design §4.5 step 1): the signer set and threshold from
// the latest key rotation, plus the wallet's locally tracked nonce.
type SignerWallet struct {
	AggregateKey *PublicKey
	SignerSet    []*PublicKey
	Threshold    uint32
	Nonce        uint64
}
