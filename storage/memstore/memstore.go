// Package memstore is the in-memory Storage port implementation used by
// tests and the §8 property checks. Per design §5, the whole store is
// guarded by a single coarse lock acquired, mutated, and released within
// one synchronous section — no suspension point is ever reached while
// holding it.
package memstore

import (
	"context"
	"sync"

	"github.com/sbtc-core/signer/model"
	"github.com/sbtc-core/signer/storage"
)

type voteRecord struct {
	votes  model.VoteBitmap
	height uint64
}

// Store is a coarse-locked, process-local Storage implementation.
type Store struct {
	mu sync.Mutex

	bitcoinBlocks map[model.BitcoinHash]model.BitcoinBlock
	bitcoinTip    model.BitcoinHash
	haveTip       bool

	stacksBlocks map[model.StacksBlockID]model.StacksBlock

	scriptPubKeys []model.SignerScriptPubKey

	deposits     map[model.Outpoint]model.DepositRequest
	depositVotes map[model.Outpoint]voteRecord
	acked        map[model.Outpoint]bool

	withdrawals     map[uint64]model.WithdrawalRequest
	withdrawalVotes map[uint64]voteRecord

	dkgShares    []model.EncryptedDkgShares
	keyRotations []model.KeyRotation

	signerUtxo    model.SignerUtxo
	haveSignerUtxo bool
}

func New() *Store {
	return &Store{
		bitcoinBlocks:   make(map[model.BitcoinHash]model.BitcoinBlock),
		stacksBlocks:    make(map[model.StacksBlockID]model.StacksBlock),
		deposits:        make(map[model.Outpoint]model.DepositRequest),
		depositVotes:    make(map[model.Outpoint]voteRecord),
		acked:           make(map[model.Outpoint]bool),
		withdrawals:     make(map[uint64]model.WithdrawalRequest),
		withdrawalVotes: make(map[uint64]voteRecord),
	}
}

// SetDepositVotes is test/wiring infrastructure: it records the vote
// bitmap and observed height for a deposit so PendingAcceptedDepositRequests
// can apply the threshold/window filter described in design §4.4 step 2.
// Sourcing the votes themselves (from peer sign-round tallies) is outside
// the Storage port's contract.
func (s *Store) SetDepositVotes(out model.Outpoint, votes model.VoteBitmap, height uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.depositVotes[out] = voteRecord{votes: votes, height: height}
}

func (s *Store) SetWithdrawalVotes(id uint64, votes model.VoteBitmap, height uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.withdrawalVotes[id] = voteRecord{votes: votes, height: height}
}

func (s *Store) PutWithdrawalRequest(w model.WithdrawalRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.withdrawals[w.RequestID] = w
}

func (s *Store) AddSignerScriptPubKey(spk model.SignerScriptPubKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.scriptPubKeys {
		if existing.Equal(spk) {
			return
		}
	}
	s.scriptPubKeys = append(s.scriptPubKeys, spk)
}

func (s *Store) NewBatch() storage.Batch {
	return &batch{s: s}
}

type batch struct {
	s             *Store
	bitcoinBlocks []model.BitcoinBlock
	stacksBlocks  []model.StacksBlock
	deposits      []model.DepositRequest
	sbtcTxs       []model.SBTCTransaction
}

func (b *batch) PutBitcoinBlock(blk model.BitcoinBlock)      { b.bitcoinBlocks = append(b.bitcoinBlocks, blk) }
func (b *batch) PutStacksBlock(blk model.StacksBlock)        { b.stacksBlocks = append(b.stacksBlocks, blk) }
func (b *batch) PutDepositRequest(d model.DepositRequest)    { b.deposits = append(b.deposits, d) }
func (b *batch) PutSBTCTransaction(tx model.SBTCTransaction) { b.sbtcTxs = append(b.sbtcTxs, tx) }

func (b *batch) Commit(ctx context.Context) error {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()

	for _, blk := range b.bitcoinBlocks {
		b.s.bitcoinBlocks[blk.Hash] = blk
		if !b.s.haveTip || blk.Height > b.s.bitcoinBlocks[b.s.bitcoinTip].Height {
			b.s.bitcoinTip = blk.Hash
			b.s.haveTip = true
		}
	}
	for _, blk := range b.stacksBlocks {
		b.s.stacksBlocks[blk.ID] = blk
	}
	for _, d := range b.deposits {
		b.s.deposits[d.Outpoint] = d
	}
	// sbtcTxs are not retained: no query in the Storage contract reads
	// them back, so this store drops them at commit.
	_ = b.sbtcTxs
	return nil
}

func (s *Store) CanonicalBitcoinTip(ctx context.Context) (model.BitcoinBlock, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.haveTip {
		return model.BitcoinBlock{}, false, nil
	}
	return s.bitcoinBlocks[s.bitcoinTip], true, nil
}

func (s *Store) GetBitcoinBlock(ctx context.Context, hash model.BitcoinHash) (model.BitcoinBlock, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bitcoinBlocks[hash]
	return b, ok, nil
}

func (s *Store) GetStacksBlock(ctx context.Context, id model.StacksBlockID) (model.StacksBlock, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.stacksBlocks[id]
	return b, ok, nil
}

func (s *Store) HasBitcoinBlock(ctx context.Context, hash model.BitcoinHash) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.bitcoinBlocks[hash]
	return ok, nil
}

func (s *Store) HasStacksBlock(ctx context.Context, id model.StacksBlockID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.stacksBlocks[id]
	return ok, nil
}

func (s *Store) SignerScriptPubKeys(ctx context.Context) ([]model.SignerScriptPubKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.SignerScriptPubKey, len(s.scriptPubKeys))
	copy(out, s.scriptPubKeys)
	return out, nil
}

func (s *Store) PutDepositRequest(ctx context.Context, d model.DepositRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deposits[d.Outpoint] = d
	return nil
}

func (s *Store) GetDepositRequest(ctx context.Context, out model.Outpoint) (model.DepositRequest, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deposits[out]
	return d, ok, nil
}

func (s *Store) PendingAcceptedDepositRequests(ctx context.Context, tip model.BitcoinHash, window uint64, threshold int) ([]model.AcceptedDeposit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tipBlock, ok := s.bitcoinBlocks[tip]
	if !ok {
		return nil, nil
	}

	var out []model.AcceptedDeposit
	for op, d := range s.deposits {
		if s.acked[op] {
			continue
		}
		rec, ok := s.depositVotes[op]
		if !ok || rec.votes.ApprovedCount() < threshold {
			continue
		}
		if tipBlock.Height >= rec.height && tipBlock.Height-rec.height > window {
			continue
		}
		out = append(out, model.AcceptedDeposit{Request: d, Votes: rec.votes})
	}
	return out, nil
}

func (s *Store) PendingAcceptedWithdrawalRequests(ctx context.Context, tip model.BitcoinHash, window uint64, threshold int) ([]model.AcceptedWithdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tipBlock, ok := s.bitcoinBlocks[tip]
	if !ok {
		return nil, nil
	}

	var out []model.AcceptedWithdrawal
	for id, w := range s.withdrawals {
		rec, ok := s.withdrawalVotes[id]
		if !ok || rec.votes.ApprovedCount() < threshold {
			continue
		}
		if tipBlock.Height >= rec.height && tipBlock.Height-rec.height > window {
			continue
		}
		out = append(out, model.AcceptedWithdrawal{Request: w, Votes: rec.votes})
	}
	return out, nil
}

func (s *Store) DepositsAwaitingStacksAck(ctx context.Context) ([]model.DepositRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.DepositRequest
	for op, d := range s.deposits {
		if !s.acked[op] {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Store) MarkDepositAcknowledged(ctx context.Context, out model.Outpoint, stacksTxid model.BitcoinHash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acked[out] = true
	return nil
}

func (s *Store) LatestEncryptedDkgShares(ctx context.Context) (model.EncryptedDkgShares, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.dkgShares) == 0 {
		return model.EncryptedDkgShares{}, false, nil
	}
	return s.dkgShares[len(s.dkgShares)-1], true, nil
}

func (s *Store) PutEncryptedDkgShares(ctx context.Context, shares model.EncryptedDkgShares) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dkgShares = append(s.dkgShares, shares)
	if len(shares.SignerScriptPubKey) > 0 {
		known := false
		for _, existing := range s.scriptPubKeys {
			if existing.Equal(shares.SignerScriptPubKey) {
				known = true
				break
			}
		}
		if !known {
			s.scriptPubKeys = append(s.scriptPubKeys, shares.SignerScriptPubKey)
		}
	}
	return nil
}

func (s *Store) LatestKeyRotation(ctx context.Context) (model.KeyRotation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.keyRotations) == 0 {
		return model.KeyRotation{}, false, nil
	}
	return s.keyRotations[len(s.keyRotations)-1], true, nil
}

func (s *Store) PutKeyRotation(ctx context.Context, rot model.KeyRotation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keyRotations = append(s.keyRotations, rot)
	return nil
}

func (s *Store) GetSignerUtxo(ctx context.Context) (model.SignerUtxo, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signerUtxo, s.haveSignerUtxo, nil
}

func (s *Store) PutSignerUtxo(ctx context.Context, u model.SignerUtxo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signerUtxo = u
	s.haveSignerUtxo = true
	return nil
}

var _ storage.Storage = (*Store)(nil)
