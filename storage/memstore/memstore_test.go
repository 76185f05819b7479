package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sbtc-core/signer/model"
)

func TestCanonicalTipTracksHighestBlock(t *testing.T) {
	ctx := context.Background()
	s := New()

	genesis := model.BitcoinBlock{Hash: model.BitcoinHash{0x01}, Height: 0}
	child := model.BitcoinBlock{Hash: model.BitcoinHash{0x02}, Height: 1, ParentHash: genesis.Hash}

	batch := s.NewBatch()
	batch.PutBitcoinBlock(genesis)
	batch.PutBitcoinBlock(child)
	require.NoError(t, batch.Commit(ctx))

	tip, ok, err := s.CanonicalBitcoinTip(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, child.Hash, tip.Hash)

	have, err := s.HasBitcoinBlock(ctx, genesis.Hash)
	require.NoError(t, err)
	require.True(t, have)
}

func TestPutDepositRequestIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New()
	out := model.Outpoint{Txid: model.BitcoinHash{0x01}, Vout: 0}
	d := model.DepositRequest{Outpoint: out, Amount: 1000}

	require.NoError(t, s.PutDepositRequest(ctx, d))
	require.NoError(t, s.PutDepositRequest(ctx, d))

	got, ok, err := s.GetDepositRequest(ctx, out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, d, got)
}

// TestPendingAcceptedDepositRequests_ThresholdAndWindow exercises design
// §4.4 step 2's filter: only deposits with vote count >= threshold and
// observed within the last `window` Bitcoin blocks of tip are returned.
func TestPendingAcceptedDepositRequests_ThresholdAndWindow(t *testing.T) {
	ctx := context.Background()
	s := New()

	tipBlock := model.BitcoinBlock{Hash: model.BitcoinHash{0x03}, Height: 10}
	batch := s.NewBatch()
	batch.PutBitcoinBlock(tipBlock)
	require.NoError(t, batch.Commit(ctx))

	belowThreshold := model.Outpoint{Txid: model.BitcoinHash{0x10}, Vout: 0}
	require.NoError(t, s.PutDepositRequest(ctx, model.DepositRequest{Outpoint: belowThreshold}))
	s.SetDepositVotes(belowThreshold, model.VoteBitmap{true, false, false}, 10)

	tooOld := model.Outpoint{Txid: model.BitcoinHash{0x11}, Vout: 0}
	require.NoError(t, s.PutDepositRequest(ctx, model.DepositRequest{Outpoint: tooOld}))
	s.SetDepositVotes(tooOld, model.VoteBitmap{true, true, true}, 0)

	eligible := model.Outpoint{Txid: model.BitcoinHash{0x12}, Vout: 0}
	require.NoError(t, s.PutDepositRequest(ctx, model.DepositRequest{Outpoint: eligible}))
	s.SetDepositVotes(eligible, model.VoteBitmap{true, true, true}, 9)

	got, err := s.PendingAcceptedDepositRequests(ctx, tipBlock.Hash, 5, 2)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, eligible, got[0].Request.Outpoint)
}

func TestMarkDepositAcknowledgedExcludesFromPending(t *testing.T) {
	ctx := context.Background()
	s := New()

	tipBlock := model.BitcoinBlock{Hash: model.BitcoinHash{0x04}, Height: 5}
	batch := s.NewBatch()
	batch.PutBitcoinBlock(tipBlock)
	require.NoError(t, batch.Commit(ctx))

	out := model.Outpoint{Txid: model.BitcoinHash{0x20}, Vout: 0}
	require.NoError(t, s.PutDepositRequest(ctx, model.DepositRequest{Outpoint: out}))
	s.SetDepositVotes(out, model.VoteBitmap{true, true}, 5)

	pending, err := s.DepositsAwaitingStacksAck(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, s.MarkDepositAcknowledged(ctx, out, model.BitcoinHash{0xff}))

	afterAck, err := s.DepositsAwaitingStacksAck(ctx)
	require.NoError(t, err)
	require.Empty(t, afterAck)

	accepted, err := s.PendingAcceptedDepositRequests(ctx, tipBlock.Hash, 5, 1)
	require.NoError(t, err)
	require.Empty(t, accepted)
}

func TestLatestKeyRotationAndDkgSharesReturnMostRecent(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, ok, err := s.LatestKeyRotation(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	olderRotation := model.KeyRotation{Threshold: 1}
	newerRotation := model.KeyRotation{Threshold: 2}
	require.NoError(t, s.PutKeyRotation(ctx, olderRotation))
	require.NoError(t, s.PutKeyRotation(ctx, newerRotation))

	gotRotation, ok, err := s.LatestKeyRotation(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, newerRotation, gotRotation)

	first := model.EncryptedDkgShares{SignerScriptPubKey: model.SignerScriptPubKey{0x01}}
	second := model.EncryptedDkgShares{SignerScriptPubKey: model.SignerScriptPubKey{0x02}}
	require.NoError(t, s.PutEncryptedDkgShares(ctx, first))
	require.NoError(t, s.PutEncryptedDkgShares(ctx, second))

	got, ok, err := s.LatestEncryptedDkgShares(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, second, got)
}
