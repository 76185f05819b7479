// Package coordinator implements the Coordinator Event Loop (design §4.2):
// for every newly observed Bitcoin tip it elects a coordinator, drives DKG
// when required, assembles the sweep package, drives a threshold signing
// round per sweep transaction, and issues the follow-up Stacks contract
// calls that finalize each fulfilled request.
package coordinator

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/sbtc-core/signer/bitcoin"
	"github.com/sbtc-core/signer/errs"
	"github.com/sbtc-core/signer/log"
	"github.com/sbtc-core/signer/model"
	"github.com/sbtc-core/signer/network"
	"github.com/sbtc-core/signer/registryport"
	"github.com/sbtc-core/signer/stacksport"
	"github.com/sbtc-core/signer/storage"
	"github.com/sbtc-core/signer/wsts"
)

var logger = log.NewModuleLogger(log.Coordinator)

// ContractNames are the sBTC smart contracts the coordinator must ensure
// are deployed before driving a tenure (design §4.2 step 7).
var ContractNames = []string{
	"sbtc-registry",
	"sbtc-token",
	"sbtc-deposit",
	"sbtc-withdrawal",
	"sbtc-bootstrap-signers",
}

// Config bundles the tuning knobs design §4.2/§4.4/§4.5 leave to
// configuration, whose loading is explicitly out of scope (design §1).
type Config struct {
	BootstrapSignerSet      []*model.PublicKey
	Threshold               int
	ContextWindow           uint64
	ConfiguredDelay         time.Duration
	DKGMaxDuration          time.Duration
	SigningRoundMaxDuration time.Duration
	Deployer                []byte
	MagicBytes              [2]byte
	RequestsPerTx           int
}

// DKGFactory and SigningFactory construct the generic threshold-signature
// state machine for one round. Its internal algorithm is out of scope
// (design §1: "the inner algorithm of the threshold-signature library");
// only the wsts.StateMachine contract is specified here, so the concrete
// machine is supplied by the caller wiring this package together.
type DKGFactory func(tip model.BitcoinHash) wsts.StateMachine
type SigningFactory func(tip model.BitcoinHash, digest [32]byte) wsts.StateMachine

// Coordinator is the Coordinator Event Loop (design §4.2). Per design §5
// its state is touched only from the task that calls Run: the epoch-3
// cache lives on this struct, and the wallet (with its nonce) is loaded
// fresh from the Stacks port on each tick and kept local to that tick.
type Coordinator struct {
	self            *btcec.PrivateKey
	store           storage.Storage
	btc             bitcoin.Port
	stacks          stacksport.Port
	registry        registryport.Port
	net             network.Port
	bus             *network.Bus
	driver          *wsts.Driver
	directory       wsts.SignerDirectory
	dkgFactory      DKGFactory
	signFactory     SigningFactory
	packageBuilder  PackageBuilder
	cfg             Config

	epoch3Cache bool
}

func New(
	self *btcec.PrivateKey,
	store storage.Storage,
	btc bitcoin.Port,
	stacks stacksport.Port,
	registry registryport.Port,
	net network.Port,
	bus *network.Bus,
	driver *wsts.Driver,
	directory wsts.SignerDirectory,
	dkgFactory DKGFactory,
	signFactory SigningFactory,
	packageBuilder PackageBuilder,
	cfg Config,
) *Coordinator {
	return &Coordinator{
		self:           self,
		store:          store,
		btc:            btc,
		stacks:         stacks,
		registry:       registry,
		net:            net,
		bus:            bus,
		driver:         driver,
		directory:      directory,
		dkgFactory:     dkgFactory,
		signFactory:    signFactory,
		packageBuilder: packageBuilder,
		cfg:            cfg,
	}
}

// Run subscribes to NewRequestsHandled and drives one tick per signal,
// strictly in order and never overlapping two ticks in this task (design
// §5).
func (c *Coordinator) Run(ctx context.Context) error {
	sub := c.bus.Subscribe(network.EventRequestDeciderNewRequestsHandled, network.EventCommandShutdown)
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return errs.New(errs.Shutdown, "coordinator.run", ctx.Err())
		case ev, ok := <-sub.C:
			if !ok {
				return errs.New(errs.Shutdown, "coordinator.run", nil)
			}
			if ev.Type == network.EventCommandShutdown {
				return errs.New(errs.Shutdown, "coordinator.run", nil)
			}
			if err := c.tick(ctx); err != nil {
				if errs.Propagates(err) {
					return err
				}
				logger.Error("tick failed", "err", err)
			}
		}
	}
}

// tick runs design §4.2's per-signal algorithm once.
func (c *Coordinator) tick(ctx context.Context) error {
	if !c.epoch3Cache {
		inEpoch3, err := c.inTargetEpoch(ctx)
		if err != nil {
			return err
		}
		if !inEpoch3 {
			return nil
		}
		c.epoch3Cache = true
	}

	if c.cfg.ConfiguredDelay > 0 {
		select {
		case <-ctx.Done():
			return errs.New(errs.Shutdown, "coordinator.tick", ctx.Err())
		case <-time.After(c.cfg.ConfiguredDelay):
		}
	}

	tip, ok, err := c.store.CanonicalBitcoinTip(ctx)
	if err != nil {
		return errs.New(errs.Storage, "coordinator.tick.tip", err)
	}
	if !ok {
		return errs.ErrNoChainTip
	}

	aggregateKey, signerSet, err := c.resolveKeyAndSet(ctx)
	if err != nil {
		return err
	}

	if !IsCoordinator(tip.Hash, signerSet, c.self.PubKey()) {
		return nil
	}

	if aggregateKey == nil {
		aggregateKey, err = c.runDKG(ctx, tip.Hash, signerSet)
		if err != nil {
			return err
		}
		// Re-read storage to absorb a race with concurrent persistence
		// (design §4.2 step 6).
		aggregateKey, signerSet, err = c.resolveKeyAndSet(ctx)
		if err != nil {
			return err
		}
	}

	wallet, err := c.loadWallet(ctx, aggregateKey, signerSet)
	if err != nil {
		return err
	}

	if err := c.deployMissingContracts(ctx, &wallet); err != nil {
		return err
	}

	if err := c.maybeRotateKeys(ctx, &wallet, aggregateKey); err != nil {
		return err
	}

	if err := c.runSweep(ctx, tip, aggregateKey, wallet); err != nil {
		return err
	}

	if err := c.completeAckedDeposits(ctx, &wallet); err != nil {
		return err
	}

	c.bus.Publish(network.Event{
		Type:    network.EventTxCoordinatorTenureCompleted,
		Payload: network.TenureCompleted{TipHash: tip.Hash},
	})
	return nil
}

func (c *Coordinator) inTargetEpoch(ctx context.Context) (bool, error) {
	pox, err := c.stacks.GetPoxInfo(ctx)
	if err != nil {
		return false, errs.New(errs.StacksRPC, "coordinator.pox_info", err)
	}
	if pox.NakamotoStartHeight == nil {
		return false, nil
	}
	return pox.CurrentBurnchainBlockHeight >= *pox.NakamotoStartHeight, nil
}

// resolveKeyAndSet implements design §4.2 step 4's fallback chain: latest
// confirmed key rotation, else latest DKG shares, else the bootstrap
// signer set from configuration.
func (c *Coordinator) resolveKeyAndSet(ctx context.Context) (*model.PublicKey, []*model.PublicKey, error) {
	rot, ok, err := c.store.LatestKeyRotation(ctx)
	if err != nil {
		return nil, nil, errs.New(errs.Storage, "coordinator.latest_key_rotation", err)
	}
	if ok {
		return rot.AggregateKey, rot.SignerSet, nil
	}
	shares, ok, err := c.store.LatestEncryptedDkgShares(ctx)
	if err != nil {
		return nil, nil, errs.New(errs.Storage, "coordinator.latest_dkg_shares", err)
	}
	if ok {
		return shares.AggregateKey, shares.SignerSet, nil
	}
	return nil, c.cfg.BootstrapSignerSet, nil
}

func (c *Coordinator) runDKG(ctx context.Context, tip model.BitcoinHash, signerSet []*model.PublicKey) (*model.PublicKey, error) {
	sm := c.dkgFactory(tip)
	roundTag := dkgRoundTag(c.self.PubKey(), tip)

	result, err := c.driver.RunRound(ctx, sm, [32]byte(tip), roundTag, c.self.PubKey(), c.directory, c.cfg.DKGMaxDuration)
	if err != nil {
		return nil, err
	}
	if result.Kind != wsts.ResultDkg {
		return nil, errs.ErrUnexpectedResult
	}

	if err := c.store.PutEncryptedDkgShares(ctx, model.EncryptedDkgShares{
		AggregateKey: result.AggregateKey,
		SignerSet:    signerSet,
	}); err != nil {
		return nil, errs.New(errs.Storage, "coordinator.put_dkg_shares", err)
	}
	return result.AggregateKey, nil
}

func (c *Coordinator) loadWallet(ctx context.Context, aggregateKey *model.PublicKey, signerSet []*model.PublicKey) (model.SignerWallet, error) {
	threshold := uint32(c.cfg.Threshold)
	rot, ok, err := c.store.LatestKeyRotation(ctx)
	if err != nil {
		return model.SignerWallet{}, errs.New(errs.Storage, "coordinator.load_wallet", err)
	}
	if ok {
		threshold = rot.Threshold
	}

	account, err := c.stacks.GetAccount(ctx, aggregateKey.SerializeCompressed())
	if err != nil {
		return model.SignerWallet{}, errs.New(errs.StacksRPC, "coordinator.get_account", err)
	}

	return model.SignerWallet{
		AggregateKey: aggregateKey,
		SignerSet:    signerSet,
		Threshold:    threshold,
		Nonce:        account.Nonce,
	}, nil
}

func (c *Coordinator) deployMissingContracts(ctx context.Context, wallet *model.SignerWallet) error {
	for _, name := range ContractNames {
		deployed, err := c.stacks.IsContractDeployed(ctx, c.cfg.Deployer, name)
		if err != nil {
			return errs.New(errs.StacksRPC, "coordinator.is_contract_deployed", err)
		}
		if deployed {
			continue
		}
		payload := stacksport.ContractCallPayload("deploy:" + name)
		if _, err := c.submitStacksMultisig(ctx, wallet, payload); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) maybeRotateKeys(ctx context.Context, wallet *model.SignerWallet, localAggregateKey *model.PublicKey) error {
	onChainKey, found, err := c.stacks.GetCurrentSignersAggregateKey(ctx, c.cfg.Deployer)
	if err != nil {
		return errs.New(errs.StacksRPC, "coordinator.get_current_signers_aggregate_key", err)
	}
	if found && onChainKey.IsEqual(localAggregateKey) {
		return nil
	}
	payload := stacksport.ContractCallPayload(append([]byte("rotate-keys:"), localAggregateKey.SerializeCompressed()...))
	_, err = c.submitStacksMultisig(ctx, wallet, payload)
	return err
}

func (c *Coordinator) completeAckedDeposits(ctx context.Context, wallet *model.SignerWallet) error {
	pending, err := c.store.DepositsAwaitingStacksAck(ctx)
	if err != nil {
		return errs.New(errs.Storage, "coordinator.deposits_awaiting_ack", err)
	}
	for _, d := range pending {
		payload := stacksport.ContractCallPayload(append([]byte("complete-deposit:"), d.Outpoint.Txid[:]...))
		txid, err := c.submitStacksMultisig(ctx, wallet, payload)
		if err != nil {
			return err
		}
		if err := c.store.MarkDepositAcknowledged(ctx, d.Outpoint, txid); err != nil {
			return errs.New(errs.Storage, "coordinator.mark_deposit_acknowledged", err)
		}
	}
	return nil
}

func (c *Coordinator) broadcastSigned(ctx context.Context, payload network.Payload, tip [32]byte, payloadHash [32]byte) error {
	signed := network.Sign(c.self, payload, tip, payloadHash)
	if err := c.net.Broadcast(ctx, signed); err != nil {
		return errs.New(errs.Network, "coordinator.broadcast", err)
	}
	return nil
}
