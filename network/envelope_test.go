package network

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/sbtc-core/signer/errs"
)

// TestSignedMessageVerifiesIffUnchanged is §8's round-trip property: a
// signed inter-signer message's signature verifies iff the payload bytes
// (and tip/envelope fields it commits to) are unchanged.
func TestSignedMessageVerifiesIffUnchanged(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	tip := [32]byte{0x01, 0x02}
	payloadHash := sha256.Sum256([]byte("payload bytes"))
	payload := WstsMessage{Txid: tip, Inner: []byte{0x01}}

	msg := Sign(priv, payload, tip, payloadHash)
	require.NoError(t, Verify(context.Background(), msg, tip, payloadHash))

	t.Run("wrong tip tag", func(t *testing.T) {
		otherTip := [32]byte{0x02, 0x01}
		err := Verify(context.Background(), msg, otherTip, payloadHash)
		require.True(t, errs.Is(err, errs.Validation))
	})

	t.Run("tampered payload hash", func(t *testing.T) {
		tamperedHash := sha256.Sum256([]byte("different bytes"))
		require.Error(t, Verify(context.Background(), msg, tip, tamperedHash))
	})

	t.Run("wrong signer key", func(t *testing.T) {
		otherPriv, err := btcec.NewPrivateKey()
		require.NoError(t, err)
		tampered := msg
		tampered.SignerPubKey = otherPriv.PubKey()
		require.Error(t, Verify(context.Background(), tampered, tip, payloadHash))
	})
}
