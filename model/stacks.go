package model

// StacksBlock is a persisted Stacks block header. Blocks sharing
// TenureBitcoinHash are totally ordered by ChainLength (design §3).
type StacksBlock struct {
	ID                StacksBlockID
	ParentID          StacksBlockID
	ChainLength       uint64
	TenureBitcoinHash BitcoinHash
}

// TenureInfo mirrors the Stacks port's get_tenure_info response (design
// §6): the reported chain tip's block id and height.
type TenureInfo struct {
	TipBlockID StacksBlockID
	TipHeight  uint64
}

// Account is the subset of a Stacks account the coordinator needs to
// assemble transactions.
type Account struct {
	Nonce uint64
}

// PoxInfo reports the burnchain height and optional Nakamoto activation
// height, used to evaluate whether the signer is in the target epoch.
type PoxInfo struct {
	CurrentBurnchainBlockHeight uint64
	NakamotoStartHeight         *uint64
}
