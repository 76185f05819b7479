// Package blockobserver implements the Block Observer (design §4.1): an
// idempotent chain-indexing pipeline that ingests Bitcoin blocks, discovers
// ancestor Stacks blocks per tenure, validates externally-supplied deposit
// requests against on-chain transactions, and persists the results.
package blockobserver

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	lru "github.com/hashicorp/golang-lru"

	"github.com/sbtc-core/signer/bitcoin"
	"github.com/sbtc-core/signer/errs"
	"github.com/sbtc-core/signer/log"
	"github.com/sbtc-core/signer/model"
	"github.com/sbtc-core/signer/network"
	"github.com/sbtc-core/signer/registryport"
	"github.com/sbtc-core/signer/stacksport"
	"github.com/sbtc-core/signer/storage"
)

var logger = log.NewModuleLogger(log.BlockObserver)

const rejectedCandidateCacheSize = 4096

// Observer is the Block Observer component. It owns one mutable piece of
// per-tick state, the pending deposit-request map (design §5: "the
// in-memory deposit_requests map in the observer is mutable only by the
// observer task"), guarded by a coarse lock that is never held across a
// suspension point.
type Observer struct {
	bitcoin  bitcoin.Port
	stacks   stacksport.Port
	registry registryport.Port
	store    storage.Storage
	bus      *network.Bus
	horizon  uint64

	mu      sync.Mutex
	pending map[chainhash.Hash]model.DepositRequest

	// rejected memoizes candidate outpoints that already failed validation
	// so a noisy registry feed isn't re-fetched and re-logged every tick.
	rejected *lru.Cache
}

func New(bc bitcoin.Port, sp stacksport.Port, rp registryport.Port, store storage.Storage, bus *network.Bus, horizon uint64) *Observer {
	rejected, _ := lru.New(rejectedCandidateCacheSize)
	return &Observer{
		bitcoin:  bc,
		stacks:   sp,
		registry: rp,
		store:    store,
		bus:      bus,
		horizon:  horizon,
		pending:  make(map[chainhash.Hash]model.DepositRequest),
		rejected: rejected,
	}
}

// Run consumes hashes until the channel closes or ctx is cancelled, driving
// one tick per hash. Per design §4.1's public contract this never returns
// under normal operation.
func (o *Observer) Run(ctx context.Context, hashes <-chan chainhash.Hash) error {
	for {
		select {
		case <-ctx.Done():
			return errs.New(errs.Shutdown, "observer.run", ctx.Err())
		case tip, ok := <-hashes:
			if !ok {
				return errs.New(errs.Shutdown, "observer.run", nil)
			}
			if err := o.tick(ctx, tip); err != nil {
				if errs.Propagates(err) {
					return err
				}
				logger.Error("tick failed", "err", err, "tip", tip.String())
			}
		}
	}
}

func (o *Observer) tick(ctx context.Context, tip chainhash.Hash) error {
	if err := o.pollRegistry(ctx); err != nil {
		return err
	}

	blocks, err := o.walkBack(ctx, tip)
	if err != nil {
		return err
	}

	for _, hash := range blocks {
		if err := o.ingestBlock(ctx, hash); err != nil {
			return err
		}
	}

	o.bus.Publish(network.Event{
		Type:    network.EventBlockObserverBitcoinBlockObserved,
		Payload: network.BitcoinBlockObserved{TipHash: tip},
	})
	return nil
}

// pollRegistry implements design §4.1 step 1: fetch candidate deposits,
// re-derive their scripts against the on-chain transaction, and index valid
// ones by txid.
func (o *Observer) pollRegistry(ctx context.Context) error {
	candidates, err := o.registry.GetDeposits(ctx)
	if err != nil {
		return errs.New(errs.Registry, "observer.poll_registry", err)
	}

	aggregateKey, err := o.currentAggregateKey(ctx)
	if err != nil {
		return err
	}
	if aggregateKey == nil {
		// No DKG has run yet; nothing can be validated against an
		// aggregate key that doesn't exist.
		return nil
	}

	for _, c := range candidates {
		if o.rejected.Contains(c.Outpoint) {
			continue
		}
		o.mu.Lock()
		_, known := o.pending[c.Outpoint.Txid]
		o.mu.Unlock()
		if known {
			continue
		}

		txResult, found, err := o.bitcoin.GetTx(ctx, c.Outpoint.Txid)
		if err != nil {
			return errs.New(errs.BitcoinRPC, "observer.get_tx", err)
		}
		if !found || int(c.Outpoint.Vout) >= len(txResult.Tx.TxOut) {
			o.rejected.Add(c.Outpoint, struct{}{})
			continue
		}
		out := txResult.Tx.TxOut[c.Outpoint.Vout]

		deposit, err := bitcoin.ValidateDeposit(c, out.PkScript, out.Value, aggregateKey)
		if err != nil {
			logger.Info("discarding invalid deposit candidate", "txid", c.Outpoint.Txid.String(), "err", err)
			o.rejected.Add(c.Outpoint, struct{}{})
			continue
		}
		o.mu.Lock()
		o.pending[c.Outpoint.Txid] = deposit
		o.mu.Unlock()
	}
	return nil
}

// currentAggregateKey resolves the aggregate key by the same fallback
// chain as the coordinator's step 4.i/4.ii (key rotation, else DKG shares);
// unlike the coordinator it has no bootstrap signer set to fall back to,
// since an unvalidatable deposit is simply left pending.
func (o *Observer) currentAggregateKey(ctx context.Context) (*model.PublicKey, error) {
	rot, ok, err := o.store.LatestKeyRotation(ctx)
	if err != nil {
		return nil, errs.New(errs.Storage, "observer.latest_key_rotation", err)
	}
	if ok {
		return rot.AggregateKey, nil
	}
	shares, ok, err := o.store.LatestEncryptedDkgShares(ctx)
	if err != nil {
		return nil, errs.New(errs.Storage, "observer.latest_dkg_shares", err)
	}
	if ok {
		return shares.AggregateKey, nil
	}
	return nil, nil
}

// walkBack implements design §4.1 step 2: fetch ancestor blocks one by one
// from tip until a block already in storage is reached or horizon blocks
// have been collected, then reverse to chronological (parent-first) order.
func (o *Observer) walkBack(ctx context.Context, tip chainhash.Hash) ([]chainhash.Hash, error) {
	var collected []chainhash.Hash
	cursor := tip
	for uint64(len(collected)) < o.horizon {
		have, err := o.store.HasBitcoinBlock(ctx, cursor)
		if err != nil {
			return nil, errs.New(errs.Storage, "observer.has_bitcoin_block", err)
		}
		if have {
			break
		}

		block, found, err := o.bitcoin.GetBlock(ctx, cursor)
		if err != nil {
			return nil, errs.New(errs.BitcoinRPC, "observer.get_block", err)
		}
		if !found {
			return nil, errs.ErrMissingParentBlock
		}

		collected = append(collected, cursor)
		cursor = block.Header.PrevBlock
		if cursor == (chainhash.Hash{}) {
			break
		}
	}

	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}
	return collected, nil
}

// ingestBlock implements design §4.1 step 3: backfill the tenure, then
// persist the block, any drained deposit requests, and the scanned sBTC
// transactions inside one batch so those writes commit atomically. The
// tenure backfill commits its own, separate batch before that.
func (o *Observer) ingestBlock(ctx context.Context, hash chainhash.Hash) error {
	block, found, err := o.bitcoin.GetBlock(ctx, hash)
	if err != nil {
		return errs.New(errs.BitcoinRPC, "observer.ingest_block.get_block", err)
	}
	if !found {
		return errs.ErrMissingParentBlock
	}

	// 3.a: backfill ancestor Stacks blocks for this tenure before
	// persisting the Bitcoin block they are anchored to.
	if err := o.backfillStacksTenure(ctx); err != nil {
		return err
	}

	height, err := o.resolveHeight(ctx, block.Header.PrevBlock)
	if err != nil {
		return err
	}

	batch := o.store.NewBatch()

	// 3.b: persist the Bitcoin block.
	batch.PutBitcoinBlock(model.BitcoinBlock{
		Hash:       hash,
		Height:     height,
		ParentHash: block.Header.PrevBlock,
	})

	// 3.c: drain any pending deposit requests whose containing
	// transaction just confirmed in this block.
	o.mu.Lock()
	for _, tx := range block.Transactions {
		txid := tx.TxHash()
		if d, ok := o.pending[txid]; ok {
			batch.PutDepositRequest(d)
			delete(o.pending, txid)
		}
	}
	o.mu.Unlock()

	// 3.d: scan for transactions paying to a known signer script-pubkey.
	// This must follow 3.b so the sBTC transaction's block reference is
	// already satisfiable.
	scriptPubKeys, err := o.store.SignerScriptPubKeys(ctx)
	if err != nil {
		return errs.New(errs.Storage, "observer.signer_script_pubkeys", err)
	}
	for _, tx := range block.Transactions {
		if !paysSignerScript(tx.TxOut, scriptPubKeys) {
			continue
		}
		weight := blockchain.GetTransactionWeight(btcutil.NewTx(tx))
		batch.PutSBTCTransaction(model.SBTCTransaction{
			Txid:      tx.TxHash(),
			BlockHash: hash,
			VSize:     uint64((weight + 3) / 4),
		})
	}

	if err := batch.Commit(ctx); err != nil {
		return errs.New(errs.Storage, "observer.commit_block", err)
	}
	return nil
}

func (o *Observer) resolveHeight(ctx context.Context, parent chainhash.Hash) (uint64, error) {
	if parent == (chainhash.Hash{}) {
		return 0, nil
	}
	parentBlock, ok, err := o.store.GetBitcoinBlock(ctx, parent)
	if err != nil {
		return 0, errs.New(errs.Storage, "observer.resolve_height", err)
	}
	if !ok {
		// The walk-back stopped at the horizon before reaching a known
		// ancestor; a later tick will backfill the true height once the
		// parent itself is persisted.
		return 0, nil
	}
	return parentBlock.Height + 1, nil
}

// backfillStacksTenure fetches the current tenure tip and persists any
// ancestor Stacks blocks not yet known to storage.
func (o *Observer) backfillStacksTenure(ctx context.Context) error {
	tenure, err := o.stacks.GetTenureInfo(ctx)
	if err != nil {
		return errs.New(errs.StacksRPC, "observer.get_tenure_info", err)
	}

	batch := o.store.NewBatch()
	cursor := tenure.TipBlockID
	persisted := false
	for !cursor.IsZero() {
		have, err := o.store.HasStacksBlock(ctx, cursor)
		if err != nil {
			return errs.New(errs.Storage, "observer.has_stacks_block", err)
		}
		if have {
			break
		}
		blk, found, err := o.stacks.GetBlock(ctx, cursor)
		if err != nil {
			return errs.New(errs.StacksRPC, "observer.get_stacks_block", err)
		}
		if !found {
			break
		}
		batch.PutStacksBlock(blk)
		persisted = true
		cursor = blk.ParentID
	}
	if !persisted {
		return nil
	}
	if err := batch.Commit(ctx); err != nil {
		return errs.New(errs.Storage, "observer.commit_stacks_backfill", err)
	}
	return nil
}

func paysSignerScript(outs []*wire.TxOut, keys []model.SignerScriptPubKey) bool {
	for _, out := range outs {
		for _, k := range keys {
			if model.SignerScriptPubKey(out.PkScript).Equal(k) {
				return true
			}
		}
	}
	return false
}
