package coordinator

import (
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/sbtc-core/signer/model"
)

func genKeys(t *testing.T, n int) []*model.PublicKey {
	t.Helper()
	keys := make([]*model.PublicKey, n)
	for i := range keys {
		priv, err := btcec.NewPrivateKey()
		require.NoError(t, err)
		keys[i] = priv.PubKey()
	}
	return keys
}

func TestElectIsDeterministic(t *testing.T) {
	keys := genKeys(t, 5)
	tip := model.BitcoinHash(sha256.Sum256([]byte("some-tip")))

	first := Elect(tip, keys)
	require.NotNil(t, first)

	for i := 0; i < 10; i++ {
		got := Elect(tip, keys)
		require.True(t, got.IsEqual(first), "Elect must be a pure function of (tip, signerSet)")
	}
}

func TestElectIgnoresInputOrder(t *testing.T) {
	keys := genKeys(t, 7)
	tip := model.BitcoinHash(sha256.Sum256([]byte("another-tip")))

	baseline := Elect(tip, keys)

	shuffled := make([]*model.PublicKey, len(keys))
	for i, k := range keys {
		shuffled[len(keys)-1-i] = k
	}
	got := Elect(tip, shuffled)

	require.True(t, got.IsEqual(baseline), "election must not depend on signer set ordering")
}

func TestElectEmptySetReturnsNil(t *testing.T) {
	tip := model.BitcoinHash(sha256.Sum256([]byte("tip")))
	require.Nil(t, Elect(tip, nil))
}

func TestIsCoordinatorAgreesAcrossSigners(t *testing.T) {
	keys := genKeys(t, 4)
	tip := model.BitcoinHash(sha256.Sum256([]byte("tip-3")))

	elected := Elect(tip, keys)
	var winners int
	for _, k := range keys {
		if IsCoordinator(tip, keys, k) {
			winners++
			require.True(t, k.IsEqual(elected))
		}
	}
	require.Equal(t, 1, winners, "exactly one signer in the set must be elected")
}

func TestIsCoordinatorNilSelf(t *testing.T) {
	keys := genKeys(t, 3)
	tip := model.BitcoinHash(sha256.Sum256([]byte("tip-4")))
	require.False(t, IsCoordinator(tip, keys, nil))
}
