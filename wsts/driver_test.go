package wsts

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/sbtc-core/signer/errs"
	"github.com/sbtc-core/signer/model"
	"github.com/sbtc-core/signer/network"
)

// fakeDkgMachine completes a DKG round as soon as it sees its own initial
// DkgBegin packet echoed back, so a single-driver loopback test can exercise
// the full authenticate -> handle -> terminal-result path without modeling a
// second participant.
type fakeDkgMachine struct {
	aggregateKey *model.PublicKey
}

func (f *fakeDkgMachine) Start(roundTag [32]byte) (Packet, error) {
	return Packet{RoundTag: roundTag, Kind: PacketDkgBegin}, nil
}

func (f *fakeDkgMachine) Handle(pkt Packet) ([]Packet, *OperationResult, error) {
	return nil, &OperationResult{Kind: ResultDkg, AggregateKey: f.aggregateKey}, nil
}

func TestRunRound_HappyPathDKG(t *testing.T) {
	bus := network.NewBus()
	port := network.NewLoopbackPort(bus)

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	driver := NewDriver(port, priv)

	tip := [32]byte{0xAA}
	roundTag := [32]byte{0xBB}
	sm := &fakeDkgMachine{aggregateKey: priv.PubKey()}

	result, err := driver.RunRound(context.Background(), sm, tip, roundTag, priv.PubKey(), SignerDirectory{}, time.Second)
	require.NoError(t, err)
	require.Equal(t, ResultDkg, result.Kind)
	require.True(t, result.AggregateKey.IsEqual(priv.PubKey()))
}

func TestRunRound_TimesOutWithoutResponse(t *testing.T) {
	bus := network.NewBus()
	port := network.NewLoopbackPort(bus)

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	driver := NewDriver(port, priv)

	sm := &blockingMachine{}
	_, err = driver.RunRound(context.Background(), sm, [32]byte{}, [32]byte{}, priv.PubKey(), SignerDirectory{}, 10*time.Millisecond)
	require.ErrorIs(t, err, errs.ErrCoordinatorTimeout)
}

type blockingMachine struct{}

func (blockingMachine) Start(roundTag [32]byte) (Packet, error) {
	return Packet{RoundTag: roundTag, Kind: PacketDkgBegin}, nil
}
func (blockingMachine) Handle(pkt Packet) ([]Packet, *OperationResult, error) {
	return nil, nil, nil
}

func TestAuthenticate(t *testing.T) {
	coordPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	signerPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	otherPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	d := &Driver{}
	signerID := uint32(1)
	directory := SignerDirectory{signerID: signerPriv.PubKey()}

	require.True(t, d.authenticate(Packet{Kind: PacketDkgBegin}, coordPriv.PubKey(), coordPriv.PubKey(), directory))
	require.False(t, d.authenticate(Packet{Kind: PacketDkgBegin}, otherPriv.PubKey(), coordPriv.PubKey(), directory))

	require.True(t, d.authenticate(Packet{Kind: PacketDkgEnd, SignerID: &signerID}, signerPriv.PubKey(), coordPriv.PubKey(), directory))
	require.False(t, d.authenticate(Packet{Kind: PacketDkgEnd, SignerID: &signerID}, otherPriv.PubKey(), coordPriv.PubKey(), directory))
	require.False(t, d.authenticate(Packet{Kind: PacketDkgEnd}, signerPriv.PubKey(), coordPriv.PubKey(), directory))
}
