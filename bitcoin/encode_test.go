package bitcoin

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

// TestEncodeTxRoundTrips is §8's round-trip property: a Bitcoin transaction
// survives consensus_encode/decode byte for byte.
func TestEncodeTxRoundTrips(t *testing.T) {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: chainhash.Hash{0x01}, Index: 0},
		Witness:          wire.TxWitness{{0xde, 0xad, 0xbe, 0xef}},
		Sequence:         wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(wire.NewTxOut(54_321, []byte{0x51, 0x20}))

	ok, err := RoundTrips(tx)
	require.NoError(t, err)
	require.True(t, ok)

	raw, err := EncodeTx(tx)
	require.NoError(t, err)
	decoded, err := DecodeTx(raw)
	require.NoError(t, err)
	require.Equal(t, tx.TxHash(), decoded.TxHash())

	raw2, err := EncodeTx(decoded)
	require.NoError(t, err)
	require.Equal(t, raw, raw2)
}

func TestDecodeTxRejectsGarbage(t *testing.T) {
	_, err := DecodeTx([]byte{0x00, 0x01, 0x02})
	require.Error(t, err)
}
