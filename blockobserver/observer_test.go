package blockobserver

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/sbtc-core/signer/bitcoin"
	"github.com/sbtc-core/signer/model"
	"github.com/sbtc-core/signer/network"
	"github.com/sbtc-core/signer/stacksport"
	"github.com/sbtc-core/signer/storage"
	"github.com/sbtc-core/signer/storage/memstore"
)

// fakeBitcoinPort serves blocks and transactions from in-memory maps; the
// methods the observer never calls panic so a test exercising a new code
// path is forced to stock them deliberately.
type fakeBitcoinPort struct {
	blocks map[chainhash.Hash]*wire.MsgBlock
	txs    map[chainhash.Hash]*wire.MsgTx
}

func newFakeBitcoinPort() *fakeBitcoinPort {
	return &fakeBitcoinPort{
		blocks: make(map[chainhash.Hash]*wire.MsgBlock),
		txs:    make(map[chainhash.Hash]*wire.MsgTx),
	}
}

func (f *fakeBitcoinPort) GetBlock(ctx context.Context, hash chainhash.Hash) (*wire.MsgBlock, bool, error) {
	b, ok := f.blocks[hash]
	return b, ok, nil
}

func (f *fakeBitcoinPort) GetTx(ctx context.Context, txid chainhash.Hash) (*bitcoin.TxResult, bool, error) {
	tx, ok := f.txs[txid]
	if !ok {
		return nil, false, nil
	}
	return &bitcoin.TxResult{Tx: tx}, true, nil
}

func (f *fakeBitcoinPort) GetTxInfo(ctx context.Context, txid chainhash.Hash, blockHash chainhash.Hash) (*bitcoin.TxInfo, bool, error) {
	panic("not used by observer tests")
}
func (f *fakeBitcoinPort) GetSignerUtxo(ctx context.Context, key *model.PublicKey) (*model.SignerUtxo, bool, error) {
	panic("not used by observer tests")
}
func (f *fakeBitcoinPort) GetLastFee(ctx context.Context, out model.Outpoint) (*model.Fees, bool, error) {
	panic("not used by observer tests")
}
func (f *fakeBitcoinPort) EstimateFeeRate(ctx context.Context) (float64, error) {
	panic("not used by observer tests")
}
func (f *fakeBitcoinPort) BroadcastTransaction(ctx context.Context, tx *wire.MsgTx) error {
	panic("not used by observer tests")
}
func (f *fakeBitcoinPort) FindMempoolTransactionsSpendingOutput(ctx context.Context, out model.Outpoint) ([]chainhash.Hash, error) {
	panic("not used by observer tests")
}
func (f *fakeBitcoinPort) FindMempoolDescendants(ctx context.Context, txid chainhash.Hash) ([]chainhash.Hash, error) {
	panic("not used by observer tests")
}
func (f *fakeBitcoinPort) GetTransactionFee(ctx context.Context, txid chainhash.Hash, hint bitcoin.FeeHint) (model.Fees, error) {
	panic("not used by observer tests")
}

var _ bitcoin.Port = (*fakeBitcoinPort)(nil)

// fakeStacksPort reports an empty tenure: every test here only exercises
// the Bitcoin-side of ingestBlock, so backfillStacksTenure should be a no-op.
type fakeStacksPort struct{}

func (fakeStacksPort) GetTenureInfo(ctx context.Context) (model.TenureInfo, error) {
	return model.TenureInfo{}, nil
}
func (fakeStacksPort) GetBlock(ctx context.Context, id model.StacksBlockID) (model.StacksBlock, bool, error) {
	return model.StacksBlock{}, false, nil
}
func (fakeStacksPort) GetTenure(ctx context.Context, id model.StacksBlockID) ([]model.StacksBlock, error) {
	return nil, nil
}
func (fakeStacksPort) GetAccount(ctx context.Context, address []byte) (model.Account, error) {
	return model.Account{}, nil
}
func (fakeStacksPort) GetPoxInfo(ctx context.Context) (model.PoxInfo, error) {
	return model.PoxInfo{}, nil
}
func (fakeStacksPort) EstimateFees(ctx context.Context, wallet model.SignerWallet, payload stacksport.ContractCallPayload, priority stacksport.Priority) (uint64, error) {
	panic("not used by observer tests")
}
func (fakeStacksPort) SubmitTx(ctx context.Context, raw []byte) (stacksport.SubmitResult, error) {
	panic("not used by observer tests")
}
func (fakeStacksPort) GetCurrentSignersAggregateKey(ctx context.Context, deployer []byte) (*model.PublicKey, bool, error) {
	panic("not used by observer tests")
}
func (fakeStacksPort) IsContractDeployed(ctx context.Context, deployer []byte, contractName string) (bool, error) {
	panic("not used by observer tests")
}

var _ stacksport.Port = fakeStacksPort{}

// fakeRegistryPort returns a fixed list of candidate deposits.
type fakeRegistryPort struct {
	candidates []model.CandidateDeposit
}

func (f *fakeRegistryPort) GetDeposits(ctx context.Context) ([]model.CandidateDeposit, error) {
	return f.candidates, nil
}
func (f *fakeRegistryPort) AcceptDeposits(ctx context.Context, tx *wire.MsgTx, stacksTip model.StacksBlockID) error {
	panic("not used by observer tests")
}

// recordingStore wraps a memstore and keeps the sBTC transactions each
// committed batch carried, since memstore itself does not retain them.
type recordingStore struct {
	*memstore.Store
	sbtcTxs []model.SBTCTransaction
}

func (r *recordingStore) NewBatch() storage.Batch {
	return &recordingBatch{Batch: r.Store.NewBatch(), r: r}
}

type recordingBatch struct {
	storage.Batch
	r       *recordingStore
	sbtcTxs []model.SBTCTransaction
}

func (b *recordingBatch) PutSBTCTransaction(tx model.SBTCTransaction) {
	b.Batch.PutSBTCTransaction(tx)
	b.sbtcTxs = append(b.sbtcTxs, tx)
}

func (b *recordingBatch) Commit(ctx context.Context) error {
	if err := b.Batch.Commit(ctx); err != nil {
		return err
	}
	b.r.sbtcTxs = append(b.r.sbtcTxs, b.sbtcTxs...)
	return nil
}

func block(prev chainhash.Hash, txs ...*wire.MsgTx) *wire.MsgBlock {
	b := wire.NewMsgBlock(&wire.BlockHeader{PrevBlock: prev, Timestamp: time.Unix(0, 0)})
	for _, tx := range txs {
		b.AddTransaction(tx)
	}
	return b
}

func txPayingScript(script []byte, value int64) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(value, script))
	return tx
}

// TestWalkBack_ForkTolerantBackfill is §8 boundary scenario 4: against an
// empty store with horizon=1, walkBack selects only the tip for ingestion;
// raising horizon to 2 selects both, parent-first.
func TestWalkBack_ForkTolerantBackfill(t *testing.T) {
	ctx := context.Background()
	btcPort := newFakeBitcoinPort()

	h0Block := block(chainhash.Hash{})
	h0 := h0Block.BlockHash()
	h1Block := block(h0)
	h1 := h1Block.BlockHash()
	btcPort.blocks[h0] = h0Block
	btcPort.blocks[h1] = h1Block

	store := memstore.New()
	obs := New(btcPort, fakeStacksPort{}, &fakeRegistryPort{}, store, network.NewBus(), 1)

	got, err := obs.walkBack(ctx, h1)
	require.NoError(t, err)
	require.Equal(t, []chainhash.Hash{h1}, got)

	obs2 := New(btcPort, fakeStacksPort{}, &fakeRegistryPort{}, store, network.NewBus(), 2)
	got2, err := obs2.walkBack(ctx, h1)
	require.NoError(t, err)
	require.Equal(t, []chainhash.Hash{h0, h1}, got2)
}

// TestSBTCScan is §8 boundary scenario 3: given one stored signer
// script-pubkey, a block with two transactions (one paying it, one not)
// produces exactly one persisted sBTC transaction bound to that block hash.
func TestSBTCScan(t *testing.T) {
	ctx := context.Background()
	store := &recordingStore{Store: memstore.New()}
	signerScript := model.SignerScriptPubKey{0x01, 0x02, 0x03, 0x04}
	store.AddSignerScriptPubKey(signerScript)

	paying := txPayingScript(signerScript, 1000)
	notPaying := txPayingScript([]byte{0xaa, 0xbb}, 2000)
	blk := block(chainhash.Hash{}, paying, notPaying)
	hash := blk.BlockHash()

	btcPort := newFakeBitcoinPort()
	btcPort.blocks[hash] = blk

	obs := New(btcPort, fakeStacksPort{}, &fakeRegistryPort{}, store, network.NewBus(), 10)
	require.NoError(t, obs.ingestBlock(ctx, hash))

	persisted, ok, err := store.GetBitcoinBlock(ctx, hash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, hash, persisted.Hash)

	require.Len(t, store.sbtcTxs, 1)
	require.Equal(t, paying.TxHash(), store.sbtcTxs[0].Txid)
	require.Equal(t, hash, store.sbtcTxs[0].BlockHash)
}

// TestIdempotentReplay is §8's idempotence invariant: ingesting the same
// block twice leaves identical persisted state.
func TestIdempotentReplay(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	blk := block(chainhash.Hash{})
	hash := blk.BlockHash()
	btcPort := newFakeBitcoinPort()
	btcPort.blocks[hash] = blk

	obs := New(btcPort, fakeStacksPort{}, &fakeRegistryPort{}, store, network.NewBus(), 10)
	require.NoError(t, obs.ingestBlock(ctx, hash))
	first, _, _ := store.GetBitcoinBlock(ctx, hash)
	require.NoError(t, obs.ingestBlock(ctx, hash))
	second, _, _ := store.GetBitcoinBlock(ctx, hash)
	require.Equal(t, first, second)
}

// TestValidatedDepositsFilter is §8 boundary scenario 1: the registry
// returns two candidates, one whose deposit-script matches its on-chain
// transaction and one with an empty deposit-script. After pollRegistry the
// pending map has exactly one entry, keyed by the valid candidate's txid.
func TestValidatedDepositsFilter(t *testing.T) {
	ctx := context.Background()

	signerPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	signerKey := signerPriv.PubKey()

	depositScript, err := bitcoin.BuildDepositScript(bitcoin.DepositFields{
		Recipient: []byte("SP000RECIPIENT"),
		MaxFee:    500,
		SignerKey: signerKey,
	})
	require.NoError(t, err)
	reclaimScript, err := bitcoin.BuildReclaimScript(bitcoin.ReclaimFields{
		LockTime:  144,
		SignerKey: signerKey,
	})
	require.NoError(t, err)
	pkScript, err := bitcoin.DeriveSignerScriptPubKey(signerKey, depositScript, reclaimScript)
	require.NoError(t, err)

	validTx := txPayingScript(pkScript, 100_000)
	invalidTx := txPayingScript([]byte{0xde, 0xad}, 50_000)

	btcPort := newFakeBitcoinPort()
	btcPort.txs[validTx.TxHash()] = validTx
	btcPort.txs[invalidTx.TxHash()] = invalidTx

	valid := model.CandidateDeposit{
		Outpoint:      model.Outpoint{Txid: validTx.TxHash(), Vout: 0},
		DepositScript: depositScript,
		ReclaimScript: reclaimScript,
	}
	invalid := model.CandidateDeposit{
		Outpoint:      model.Outpoint{Txid: invalidTx.TxHash(), Vout: 0},
		DepositScript: nil,
		ReclaimScript: nil,
	}

	store := memstore.New()
	require.NoError(t, store.PutEncryptedDkgShares(ctx, model.EncryptedDkgShares{AggregateKey: signerKey}))

	registry := &fakeRegistryPort{candidates: []model.CandidateDeposit{valid, invalid}}
	obs := New(btcPort, fakeStacksPort{}, registry, store, network.NewBus(), 10)

	require.NoError(t, obs.pollRegistry(ctx))
	require.Len(t, obs.pending, 1)
	got, ok := obs.pending[valid.Outpoint.Txid]
	require.True(t, ok)
	require.Equal(t, valid.Outpoint, got.Outpoint)

	// §8 boundary scenario 2 (persist-then-drain) continues from here:
	// feeding the valid transaction's containing block to ingestBlock
	// writes exactly one DepositRequest row and drains the pending map.
	blk := block(chainhash.Hash{}, validTx)
	hash := blk.BlockHash()
	btcPort.blocks[hash] = blk

	require.NoError(t, obs.ingestBlock(ctx, hash))
	require.Empty(t, obs.pending)

	persisted, ok, err := store.GetDepositRequest(ctx, valid.Outpoint)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(100_000), persisted.Amount)
}
