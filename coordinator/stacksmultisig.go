package coordinator

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"sort"
	"time"

	"github.com/sbtc-core/signer/errs"
	"github.com/sbtc-core/signer/model"
	"github.com/sbtc-core/signer/network"
	"github.com/sbtc-core/signer/stacksport"
)

// submitStacksMultisig implements design §4.5's shared construction path
// for deposit completion, key rotation, and contract-deploy transactions:
// estimate the fee, assemble the sign request, drive the gather-signatures
// round, finalize, and submit. The nonce slot is consumed optimistically
// before signing and rolled back (saturating) on any failure so a failed
// submission doesn't leak a gap in the wallet's view (design §4.2 failure
// semantics, §8 boundary scenario 6).
func (c *Coordinator) submitStacksMultisig(ctx context.Context, wallet *model.SignerWallet, payload stacksport.ContractCallPayload) (model.BitcoinHash, error) {
	fee, err := c.stacks.EstimateFees(ctx, *wallet, payload, stacksport.PriorityHigh)
	if err != nil {
		return model.BitcoinHash{}, errs.New(errs.StacksRPC, "coordinator.estimate_fees", err)
	}

	nonce := wallet.Nonce
	wallet.Nonce++

	digest := sha256.Sum256(buildDigestInput(payload, nonce, fee))
	var txid [32]byte
	copy(txid[:], digest[:])

	sig, err := c.runStacksSigningRound(ctx, wallet, payload, nonce, fee, digest, txid)
	if err != nil {
		wallet.Nonce = saturatingDec(wallet.Nonce)
		return model.BitcoinHash{}, err
	}

	raw := append(append([]byte{}, payload...), sig...)
	result, err := c.stacks.SubmitTx(ctx, raw)
	if err != nil {
		wallet.Nonce = saturatingDec(wallet.Nonce)
		return model.BitcoinHash{}, errs.New(errs.StacksRPC, "coordinator.submit_tx", err)
	}
	if !result.Accepted {
		wallet.Nonce = saturatingDec(wallet.Nonce)
		return model.BitcoinHash{}, errs.New(errs.StacksRPC, "coordinator.submit_tx.rejected", errors.New(result.Reason))
	}

	return result.Txid, nil
}

func saturatingDec(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	return n - 1
}

func buildDigestInput(payload stacksport.ContractCallPayload, nonce, fee uint64) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], nonce)
	binary.BigEndian.PutUint64(buf[8:16], fee)
	return append(append([]byte{}, payload...), buf...)
}

// runStacksSigningRound implements design §4.5 steps 3-4: broadcast the
// sign request, then collect StacksTransactionSignature messages until
// signatures_required is met, discarding any whose tip tag or txid don't
// match this request.
func (c *Coordinator) runStacksSigningRound(
	ctx context.Context,
	wallet *model.SignerWallet,
	payload stacksport.ContractCallPayload,
	nonce, fee uint64,
	digest [32]byte,
	txid [32]byte,
) ([]byte, error) {
	tip, ok, err := c.store.CanonicalBitcoinTip(ctx)
	if err != nil {
		return nil, errs.New(errs.Storage, "coordinator.stacks_round.tip", err)
	}
	if !ok {
		return nil, errs.ErrNoChainTip
	}
	tipTag := [32]byte(tip.Hash)

	req := network.StacksTransactionSignRequest{
		AggregateKey: wallet.AggregateKey,
		ContractTx:   payload,
		Nonce:        nonce,
		TxFee:        fee,
		Digest:       digest,
		Txid:         txid,
	}
	if err := c.broadcastSigned(ctx, req, tipTag, sha256.Sum256(payload)); err != nil {
		return nil, err
	}

	sub := c.net.Events().Subscribe(network.EventP2PMessageReceived)
	defer sub.Unsubscribe()

	deadline := time.NewTimer(c.cfg.SigningRoundMaxDuration)
	defer deadline.Stop()

	signatures := make(map[[33]byte][]byte)
	required := int(wallet.Threshold)
	for len(signatures) < required {
		select {
		case <-ctx.Done():
			return nil, errs.New(errs.Shutdown, "coordinator.stacks_round", ctx.Err())
		case <-deadline.C:
			return nil, errs.ErrCoordinatorTimeout
		case ev, ok := <-sub.C:
			if !ok {
				return nil, errs.New(errs.Shutdown, "coordinator.stacks_round", nil)
			}
			msg, ok := ev.Payload.(network.SignedMessage)
			if !ok || msg.BitcoinTip != tipTag {
				continue
			}
			sigMsg, ok := msg.Payload.(network.StacksTransactionSignature)
			if !ok || sigMsg.Txid != txid {
				continue
			}
			var key [33]byte
			copy(key[:], msg.SignerPubKey.SerializeCompressed())
			signatures[key] = sigMsg.Signature
		}
	}

	return assembleMultisig(signatures), nil
}

// assembleMultisig concatenates collected signatures in a deterministic
// (sorted-by-signer-key) order so that any signer rebuilding the same
// signature set arrives at the same bytes.
func assembleMultisig(sigs map[[33]byte][]byte) []byte {
	keys := make([][33]byte, 0, len(sigs))
	for k := range sigs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })
	var out []byte
	for _, k := range keys {
		out = append(out, sigs[k]...)
	}
	return out
}
