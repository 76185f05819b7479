// Package storage defines the Storage port (design §3, §6): the read/write
// contract over persisted chain state, deposit/withdrawal requests, DKG
// shares, key-rotation records, and the signer UTXO. It intentionally says
// nothing about the backing engine — storage/memstore and storage/leveldb
// each satisfy it — mirroring the way the teacher's storage/database.DBManager
// interface separates the contract from the leveldb/badger/memory
// implementations that satisfy it.
package storage

import (
	"context"

	"github.com/sbtc-core/signer/model"
)

// Batch groups the writes for a single Bitcoin block so they commit
// atomically, satisfying design §4.1's "all persisted writes for a single
// block SHOULD be atomic" requirement.
type Batch interface {
	PutBitcoinBlock(b model.BitcoinBlock)
	PutStacksBlock(b model.StacksBlock)
	PutDepositRequest(d model.DepositRequest)
	PutSBTCTransaction(tx model.SBTCTransaction)
	Commit(ctx context.Context) error
}

// Storage is the signer's persistence port.
type Storage interface {
	NewBatch() Batch

	// Chain state.
	CanonicalBitcoinTip(ctx context.Context) (model.BitcoinBlock, bool, error)
	GetBitcoinBlock(ctx context.Context, hash model.BitcoinHash) (model.BitcoinBlock, bool, error)
	GetStacksBlock(ctx context.Context, id model.StacksBlockID) (model.StacksBlock, bool, error)
	HasBitcoinBlock(ctx context.Context, hash model.BitcoinHash) (bool, error)
	HasStacksBlock(ctx context.Context, id model.StacksBlockID) (bool, error)

	// Signer script-pubkeys: the set of all script-pubkeys ever produced
	// by DKG, consulted by the observer's sBTC-transaction scan (design
	// §4.1 step 3d).
	SignerScriptPubKeys(ctx context.Context) ([]model.SignerScriptPubKey, error)

	// Deposit/withdrawal requests.
	PutDepositRequest(ctx context.Context, d model.DepositRequest) error
	GetDepositRequest(ctx context.Context, out model.Outpoint) (model.DepositRequest, bool, error)
	PendingAcceptedDepositRequests(ctx context.Context, tip model.BitcoinHash, window uint64, threshold int) ([]model.AcceptedDeposit, error)
	PendingAcceptedWithdrawalRequests(ctx context.Context, tip model.BitcoinHash, window uint64, threshold int) ([]model.AcceptedWithdrawal, error)
	DepositsAwaitingStacksAck(ctx context.Context) ([]model.DepositRequest, error)
	MarkDepositAcknowledged(ctx context.Context, out model.Outpoint, stacksTxid model.BitcoinHash) error

	// DKG / key rotation.
	LatestEncryptedDkgShares(ctx context.Context) (model.EncryptedDkgShares, bool, error)
	PutEncryptedDkgShares(ctx context.Context, shares model.EncryptedDkgShares) error
	LatestKeyRotation(ctx context.Context) (model.KeyRotation, bool, error)
	PutKeyRotation(ctx context.Context, rot model.KeyRotation) error

	// Signer UTXO.
	GetSignerUtxo(ctx context.Context) (model.SignerUtxo, bool, error)
	PutSignerUtxo(ctx context.Context, u model.SignerUtxo) error
}
