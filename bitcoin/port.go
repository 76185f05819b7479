// Package bitcoin defines the Bitcoin port (design §6): block/transaction
// retrieval, mempool inspection, fee estimation, and broadcast. It also
// owns the BIP-144 transaction codec and the deposit/reclaim script
// derivation used by the block observer's validation step (design §4.1).
package bitcoin

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/sbtc-core/signer/model"
)

// TxResult is the get_tx response (design §6): the transaction plus its
// confirmation context, if any. A mempool-only transaction has Tx set and
// BlockHash/Confirmations/BlockTime nil.
type TxResult struct {
	Tx            *wire.MsgTx
	BlockHash     *chainhash.Hash
	Confirmations *uint32
	BlockTime     *time.Time
}

// TxInfo carries per-input fee assessment for a confirmed transaction.
type TxInfo struct {
	Tx      *wire.MsgTx
	Fee     uint64
	VSize   uint64
	InputFees []uint64
}

// FeeHint selects how get_transaction_fee should source its estimate when
// the transaction is not (yet) confirmed.
type FeeHint int

const (
	FeeHintMempool FeeHint = iota
	FeeHintConfirmed
)

// Port is the Bitcoin port (design §6).
type Port interface {
	GetBlock(ctx context.Context, hash chainhash.Hash) (*wire.MsgBlock, bool, error)
	GetTx(ctx context.Context, txid chainhash.Hash) (*TxResult, bool, error)
	GetTxInfo(ctx context.Context, txid chainhash.Hash, blockHash chainhash.Hash) (*TxInfo, bool, error)
	GetSignerUtxo(ctx context.Context, aggregateKey *model.PublicKey) (*model.SignerUtxo, bool, error)
	GetLastFee(ctx context.Context, out model.Outpoint) (*model.Fees, bool, error)
	EstimateFeeRate(ctx context.Context) (float64, error)
	BroadcastTransaction(ctx context.Context, tx *wire.MsgTx) error
	FindMempoolTransactionsSpendingOutput(ctx context.Context, out model.Outpoint) ([]chainhash.Hash, error)
	FindMempoolDescendants(ctx context.Context, txid chainhash.Hash) ([]chainhash.Hash, error)
	GetTransactionFee(ctx context.Context, txid chainhash.Hash, hint FeeHint) (model.Fees, error)
}
