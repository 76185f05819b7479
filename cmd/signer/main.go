// Command signer runs one sBTC federated signer's coordinator event loop
// and the WSTS driver that backs it, wired against the gRPC Stacks client,
// the HTTP registry client, a loopback network port, and leveldb storage.
// No Bitcoin port, block observer, package builder, or threshold-signature
// factories are wired here; those are left nil. Flag handling follows the
// teacher's cmd/kcn convention of a single urfave/cli app with a flat flag
// list instead of subcommands.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"gopkg.in/urfave/cli.v1"

	"github.com/sbtc-core/signer/blockobserver"
	"github.com/sbtc-core/signer/coordinator"
	"github.com/sbtc-core/signer/log"
	"github.com/sbtc-core/signer/model"
	"github.com/sbtc-core/signer/network"
	"github.com/sbtc-core/signer/registryport"
	"github.com/sbtc-core/signer/stacksport"
	"github.com/sbtc-core/signer/storage"
	"github.com/sbtc-core/signer/storage/leveldb"
	"github.com/sbtc-core/signer/wsts"
)

var logger = log.NewModuleLogger(log.Coordinator)

var (
	privKeyFlag = cli.StringFlag{
		Name:  "signer.privkey",
		Usage: "hex-encoded secp256k1 private key identifying this signer",
	}
	dataDirFlag = cli.StringFlag{
		Name:  "datadir",
		Usage: "directory holding this signer's leveldb store",
		Value: "./sbtc-signer-data",
	}
	stacksNodeFlag = cli.StringFlag{
		Name:  "stacks.node",
		Usage: "host:port of the Stacks node's gRPC endpoint",
	}
	emilyURLFlag = cli.StringFlag{
		Name:  "registry.url",
		Usage: "base URL of the Emily deposit registry",
	}
	deployerFlag = cli.StringFlag{
		Name:  "stacks.deployer",
		Usage: "hex-encoded Stacks address that deploys the sBTC contracts",
	}
	bootstrapSignersFlag = cli.StringFlag{
		Name:  "signers.bootstrap",
		Usage: "comma-separated hex compressed pubkeys of the bootstrap signer set",
	}
	thresholdFlag = cli.IntFlag{
		Name:  "signers.threshold",
		Usage: "number of signatures required for a valid round",
		Value: 3,
	}
	contextWindowFlag = cli.Uint64Flag{
		Name:  "requests.context-window",
		Usage: "number of confirmations a request must be within to be eligible for sweeping",
		Value: 6,
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "sbtc-signer"
	app.Usage = "sBTC federated signer coordination node"
	app.Flags = []cli.Flag{
		privKeyFlag, dataDirFlag, stacksNodeFlag, emilyURLFlag,
		deployerFlag, bootstrapSignersFlag, thresholdFlag, contextWindowFlag,
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		logger.Error("signer exited", "err", err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	priv, err := parsePrivateKey(ctx.String(privKeyFlag.Name))
	if err != nil {
		return err
	}

	store, err := leveldb.Open(ctx.String(dataDirFlag.Name))
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}

	stacksClient, err := stacksport.Dial(ctx.String(stacksNodeFlag.Name))
	if err != nil {
		return fmt.Errorf("dialing stacks node: %w", err)
	}
	defer stacksClient.Close()

	registryClient := registryport.NewHTTPClient(ctx.String(emilyURLFlag.Name))

	bootstrapSet, err := parseSignerSet(ctx.String(bootstrapSignersFlag.Name))
	if err != nil {
		return err
	}
	deployer, err := parseHex(ctx.String(deployerFlag.Name))
	if err != nil {
		return fmt.Errorf("parsing stacks.deployer: %w", err)
	}

	bus := network.NewBus()
	netPort := network.NewLoopbackPort(bus)
	driver := wsts.NewDriver(netPort, priv)
	directory := directoryFromSet(bootstrapSet)

	cfg := coordinator.Config{
		BootstrapSignerSet:      bootstrapSet,
		Threshold:               ctx.Int(thresholdFlag.Name),
		ContextWindow:           ctx.Uint64(contextWindowFlag.Name),
		ConfiguredDelay:         0,
		DKGMaxDuration:          2 * time.Minute,
		SigningRoundMaxDuration: 2 * time.Minute,
		Deployer:                deployer,
		MagicBytes:              [2]byte{'X', '2'},
		RequestsPerTx:           25,
	}

	// The generic threshold-signature state machine itself is out of
	// scope for this repo (design §1); these factories must be supplied
	// by whatever WSTS implementation the deployment links in.
	var dkgFactory coordinator.DKGFactory
	var signFactory coordinator.SigningFactory

	coord := coordinator.New(priv, store, nil, stacksClient, registryClient, netPort, bus, driver, directory, dkgFactory, signFactory, nil, cfg)

	bitcoinHashes := make(chan struct{}) // placeholder: real Bitcoin block feed is wired by the deployment's bitcoin.Port

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	errCh := make(chan error, 2)
	go func() { errCh <- coord.Run(runCtx) }()
	go func() {
		<-bitcoinHashes
		errCh <- nil
	}()

	observer := newObserverOrNil(store, netPort, bus)
	_ = observer

	select {
	case <-runCtx.Done():
		_ = log.Sync()
		return nil
	case err := <-errCh:
		_ = log.Sync()
		return err
	}
}

// newObserverOrNil wires the block observer once a concrete bitcoin.Port
// is available; left as a hook so main stays link-compatible without one.
func newObserverOrNil(store storage.Storage, net network.Port, bus *network.Bus) *blockobserver.Observer {
	return nil
}

func parsePrivateKey(hexKey string) (*btcec.PrivateKey, error) {
	raw, err := parseHex(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parsing signer.privkey: %w", err)
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	return priv, nil
}

func parseSignerSet(csv string) ([]*model.PublicKey, error) {
	if csv == "" {
		return nil, nil
	}
	parts := strings.Split(csv, ",")
	set := make([]*model.PublicKey, 0, len(parts))
	for _, p := range parts {
		raw, err := parseHex(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("parsing signers.bootstrap: %w", err)
		}
		key, err := btcec.ParsePubKey(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing signers.bootstrap: %w", err)
		}
		set = append(set, key)
	}
	return set, nil
}

func directoryFromSet(set []*model.PublicKey) wsts.SignerDirectory {
	dir := make(wsts.SignerDirectory, len(set))
	for i, k := range set {
		dir[uint32(i)] = k
	}
	return dir
}

func parseHex(s string) ([]byte, error) {
	if strings.HasPrefix(s, "0x") {
		s = s[2:]
	}
	return hex.DecodeString(s)
}
