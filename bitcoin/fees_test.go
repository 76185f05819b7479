package bitcoin

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/sbtc-core/signer/model"
)

// fakePort is a minimal bitcoin.Port stub exercising only the methods
// AssessLastFees calls; every other method panics if reached.
type fakePort struct {
	spenders    []chainhash.Hash
	descendants map[chainhash.Hash][]chainhash.Hash
	fees        map[chainhash.Hash]model.Fees
}

func (f *fakePort) GetBlock(ctx context.Context, hash chainhash.Hash) (*wire.MsgBlock, bool, error) {
	panic("not used")
}
func (f *fakePort) GetTx(ctx context.Context, txid chainhash.Hash) (*TxResult, bool, error) {
	panic("not used")
}
func (f *fakePort) GetTxInfo(ctx context.Context, txid chainhash.Hash, blockHash chainhash.Hash) (*TxInfo, bool, error) {
	panic("not used")
}
func (f *fakePort) GetSignerUtxo(ctx context.Context, aggregateKey *model.PublicKey) (*model.SignerUtxo, bool, error) {
	panic("not used")
}
func (f *fakePort) GetLastFee(ctx context.Context, out model.Outpoint) (*model.Fees, bool, error) {
	panic("not used")
}
func (f *fakePort) EstimateFeeRate(ctx context.Context) (float64, error) { panic("not used") }
func (f *fakePort) BroadcastTransaction(ctx context.Context, tx *wire.MsgTx) error {
	panic("not used")
}
func (f *fakePort) FindMempoolTransactionsSpendingOutput(ctx context.Context, out model.Outpoint) ([]chainhash.Hash, error) {
	return f.spenders, nil
}
func (f *fakePort) FindMempoolDescendants(ctx context.Context, txid chainhash.Hash) ([]chainhash.Hash, error) {
	return f.descendants[txid], nil
}
func (f *fakePort) GetTransactionFee(ctx context.Context, txid chainhash.Hash, hint FeeHint) (model.Fees, error) {
	return f.fees[txid], nil
}

var _ Port = (*fakePort)(nil)

func TestAssessLastFeesNoSpenders(t *testing.T) {
	port := &fakePort{}
	fees, err := AssessLastFees(context.Background(), port, model.Outpoint{})
	require.NoError(t, err)
	require.Nil(t, fees)
}

func TestAssessLastFeesSumsRootAndDescendants(t *testing.T) {
	root := chainhash.Hash{1}
	child := chainhash.Hash{2}

	port := &fakePort{
		spenders:    []chainhash.Hash{root},
		descendants: map[chainhash.Hash][]chainhash.Hash{root: {child}},
		fees: map[chainhash.Hash]model.Fees{
			root:  {Total: 1000, VSize: 200},
			child: {Total: 500, VSize: 100},
		},
	}

	fees, err := AssessLastFees(context.Background(), port, model.Outpoint{})
	require.NoError(t, err)
	require.NotNil(t, fees)
	require.Equal(t, uint64(1500), fees.Total)
	require.Equal(t, uint64(300), fees.VSize)
}

func TestAssessLastFeesPicksHighestFeeRoot(t *testing.T) {
	low := chainhash.Hash{1}
	high := chainhash.Hash{2}

	port := &fakePort{
		spenders: []chainhash.Hash{low, high},
		fees: map[chainhash.Hash]model.Fees{
			low:  {Total: 100, VSize: 100},
			high: {Total: 900, VSize: 100},
		},
	}

	fees, err := AssessLastFees(context.Background(), port, model.Outpoint{})
	require.NoError(t, err)
	require.Equal(t, uint64(900), fees.Total)
}

func TestAssessLastFeesTieBreaksByTxidOrder(t *testing.T) {
	a := chainhash.Hash{0x01}
	b := chainhash.Hash{0x02}

	child := chainhash.Hash{0xaa}
	port := &fakePort{
		spenders:    []chainhash.Hash{b, a}, // discovered in reverse lexicographic order
		descendants: map[chainhash.Hash][]chainhash.Hash{a: {child}},
		fees: map[chainhash.Hash]model.Fees{
			a:     {Total: 500, VSize: 100},
			b:     {Total: 500, VSize: 100},
			child: {Total: 50, VSize: 10},
		},
	}

	fees, err := AssessLastFees(context.Background(), port, model.Outpoint{})
	require.NoError(t, err)
	require.Equal(t, uint64(550), fees.Total, "root a (lexicographically smaller) must win the tie, pulling in its descendant's fee")
}
