package coordinator

import (
	"bytes"
	"context"
	"crypto/sha256"
	"time"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/wire"

	"github.com/sbtc-core/signer/bitcoin"
	"github.com/sbtc-core/signer/errs"
	"github.com/sbtc-core/signer/model"
	"github.com/sbtc-core/signer/network"
	"github.com/sbtc-core/signer/wsts"
)

// PackageBuilder is the external, deterministic sweep-transaction builder
// (design §4.4 step 6): given the pending requests and signer state it
// returns an ordered list of unsigned Bitcoin transactions, each consuming
// its predecessor's change output (position 0 consumes the current signer
// UTXO). Its construction algorithm is out of scope (design §1); this repo
// only specifies the driver around it.
type PackageBuilder interface {
	BuildSweepPackage(set model.SweepRequestSet) ([]*wire.MsgTx, error)
}

// runSweep implements design §4.4: build the sweep package, announce it,
// drive a taproot signing round per transaction, broadcast, and report
// acceptance to the registry.
func (c *Coordinator) runSweep(ctx context.Context, tip model.BitcoinBlock, aggregateKey *model.PublicKey, wallet model.SignerWallet) error {
	set, err := c.loadSweepRequestSet(ctx, tip, aggregateKey)
	if err != nil {
		return err
	}
	if set.IsEmpty() {
		return nil
	}

	txs, err := c.packageBuilder.BuildSweepPackage(set)
	if err != nil {
		return errs.New(errs.Protocol, "coordinator.build_sweep_package", err)
	}
	if len(txs) == 0 {
		return nil
	}

	preSign := network.BitcoinPreSignRequest{
		RequestsPerTx: c.cfg.RequestsPerTx,
		FeeRate:       set.SignerState.FeeRate,
		LastFees:      set.SignerState.LastFees,
	}
	tipTag := [32]byte(tip.Hash)
	if err := c.broadcastSigned(ctx, preSign, tipTag, sha256.Sum256([]byte("bitcoin_pre_sign_request"))); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return errs.New(errs.Shutdown, "coordinator.sweep", ctx.Err())
	case <-time.After(time.Second):
	}

	stacksTip, err := c.stacks.GetTenureInfo(ctx)
	if err != nil {
		return errs.New(errs.StacksRPC, "coordinator.sweep.tenure_info", err)
	}

	for _, tx := range txs {
		if err := c.signAndBroadcastSweepTx(ctx, tip, tx, set.Deposits, aggregateKey); err != nil {
			return err
		}
		if err := c.registry.AcceptDeposits(ctx, tx, stacksTip.TipBlockID); err != nil {
			return errs.New(errs.Registry, "coordinator.accept_deposits", err)
		}
	}
	return nil
}

// loadSweepRequestSet implements design §4.4 steps 1-4.
func (c *Coordinator) loadSweepRequestSet(ctx context.Context, tip model.BitcoinBlock, aggregateKey *model.PublicKey) (model.SweepRequestSet, error) {
	deposits, err := c.store.PendingAcceptedDepositRequests(ctx, tip.Hash, c.cfg.ContextWindow, c.cfg.Threshold)
	if err != nil {
		return model.SweepRequestSet{}, errs.New(errs.Storage, "coordinator.pending_deposits", err)
	}
	withdrawals, err := c.store.PendingAcceptedWithdrawalRequests(ctx, tip.Hash, c.cfg.ContextWindow, c.cfg.Threshold)
	if err != nil {
		return model.SweepRequestSet{}, errs.New(errs.Storage, "coordinator.pending_withdrawals", err)
	}

	state, err := c.buildSignerBtcState(ctx, aggregateKey)
	if err != nil {
		return model.SweepRequestSet{}, err
	}

	return model.SweepRequestSet{Deposits: deposits, Withdrawals: withdrawals, SignerState: state}, nil
}

func (c *Coordinator) buildSignerBtcState(ctx context.Context, aggregateKey *model.PublicKey) (model.SignerBtcState, error) {
	feeRate, err := c.btc.EstimateFeeRate(ctx)
	if err != nil {
		return model.SignerBtcState{}, errs.New(errs.BitcoinRPC, "coordinator.estimate_fee_rate", err)
	}

	utxo, ok, err := c.btc.GetSignerUtxo(ctx, aggregateKey)
	if err != nil {
		return model.SignerBtcState{}, errs.New(errs.BitcoinRPC, "coordinator.get_signer_utxo", err)
	}
	if !ok {
		return model.SignerBtcState{}, errs.ErrNoSignerUTXO
	}

	lastFees, err := bitcoin.AssessLastFees(ctx, c.btc, utxo.Outpoint)
	if err != nil {
		return model.SignerBtcState{}, errs.New(errs.BitcoinRPC, "coordinator.assess_last_fees", err)
	}

	var xonly [32]byte
	copy(xonly[:], schnorr.SerializePubKey(aggregateKey))

	return model.SignerBtcState{
		FeeRate:           feeRate,
		CurrentUTXO:       *utxo,
		XOnlyAggregateKey: xonly,
		LastFees:          lastFees,
		MagicBytes:        c.cfg.MagicBytes,
	}, nil
}

// signAndBroadcastSweepTx implements design §4.3's taproot sweep signing:
// one round produces the key-path signature for the signer-UTXO input plus
// one Schnorr signature per deposit input, packed back-to-back in
// OperationResult.Signature in input order.
func (c *Coordinator) signAndBroadcastSweepTx(ctx context.Context, tip model.BitcoinBlock, tx *wire.MsgTx, deposits []model.AcceptedDeposit, aggregateKey *model.PublicKey) error {
	digest := sweepSigningDigest(tx)
	sm := c.signFactory(tip.Hash, digest)

	var buf bytes.Buffer
	txHash := tx.TxHash()
	buf.WriteString("sweep:")
	buf.Write(txHash.CloneBytes())
	roundTag := sha256.Sum256(buf.Bytes())

	result, err := c.driver.RunRound(ctx, sm, [32]byte(tip.Hash), roundTag, c.self.PubKey(), c.directory, c.cfg.SigningRoundMaxDuration)
	if err != nil {
		return err
	}
	if result.Kind != wsts.ResultSignTaproot {
		return errs.ErrUnexpectedResult
	}

	if err := assembleSweepWitnesses(tx, deposits, aggregateKey, result.Signature); err != nil {
		return err
	}

	if err := c.btc.BroadcastTransaction(ctx, tx); err != nil {
		return errs.New(errs.BitcoinRPC, "coordinator.broadcast_transaction", err)
	}
	return nil
}

func sweepSigningDigest(tx *wire.MsgTx) [32]byte {
	var buf bytes.Buffer
	_ = tx.SerializeNoWitness(&buf)
	return sha256.Sum256(buf.Bytes())
}

const schnorrSigLen = 64

func assembleSweepWitnesses(tx *wire.MsgTx, deposits []model.AcceptedDeposit, aggregateKey *model.PublicKey, sigBlob []byte) error {
	want := schnorrSigLen * (1 + len(deposits))
	if len(sigBlob) < want {
		return errs.New(errs.Protocol, "coordinator.assemble_witnesses", errShortSignatureBlob)
	}

	keyPathSig, err := schnorr.ParseSignature(sigBlob[0:schnorrSigLen])
	if err != nil {
		return errs.New(errs.Protocol, "coordinator.parse_keypath_sig", err)
	}
	tx.TxIn[0].Witness = bitcoin.KeyPathWitness(keyPathSig)

	for i, d := range deposits {
		offset := schnorrSigLen * (i + 1)
		sig, err := schnorr.ParseSignature(sigBlob[offset : offset+schnorrSigLen])
		if err != nil {
			return errs.New(errs.Protocol, "coordinator.parse_deposit_sig", err)
		}
		witness, err := bitcoin.DepositWitness(aggregateKey, d.Request.DepositScript, d.Request.ReclaimScript, sig)
		if err != nil {
			return err
		}
		tx.TxIn[i+1].Witness = witness
	}
	return nil
}

type localError string

func (e localError) Error() string { return string(e) }

var errShortSignatureBlob = localError("coordinator: signature blob shorter than input count requires")
