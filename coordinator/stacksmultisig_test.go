package coordinator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaturatingDec(t *testing.T) {
	require.Equal(t, uint64(0), saturatingDec(0))
	require.Equal(t, uint64(0), saturatingDec(1))
	require.Equal(t, uint64(41), saturatingDec(42))
}

// TestNonceRollbackBoundaryScenario mirrors §8 boundary scenario 6: one
// successful submission followed by one failing submission, starting from
// nonce N, must leave the wallet's nonce at N+1 (the successful submission's
// consumed slot), not N+2 and not N.
func TestNonceRollbackBoundaryScenario(t *testing.T) {
	nonce := uint64(10)

	// Successful submission: pre-increment sticks.
	nonce++
	require.Equal(t, uint64(11), nonce)

	// Failing submission: pre-increment then rollback.
	attempted := nonce
	attempted++
	attempted = saturatingDec(attempted)
	require.Equal(t, nonce, attempted)
}

func TestAssembleMultisigIsOrderIndependent(t *testing.T) {
	sigs := map[[33]byte][]byte{}
	var keyA, keyB, keyC [33]byte
	keyA[0], keyB[0], keyC[0] = 0x01, 0x02, 0x03
	sigs[keyA] = []byte("sig-a")
	sigs[keyB] = []byte("sig-b")
	sigs[keyC] = []byte("sig-c")

	want := append(append([]byte{}, "sig-a"...), append([]byte("sig-b"), "sig-c"...)...)
	got := assembleMultisig(sigs)
	require.Equal(t, want, got)

	// Rebuilding the identical set of signatures (as a different signer
	// observing the same round would) must produce the same bytes.
	again := assembleMultisig(map[[33]byte][]byte{keyC: []byte("sig-c"), keyA: []byte("sig-a"), keyB: []byte("sig-b")})
	require.Equal(t, got, again)
}

func TestBuildDigestInputVariesWithNonceAndFee(t *testing.T) {
	payload := []byte("payload")
	a := buildDigestInput(payload, 1, 100)
	b := buildDigestInput(payload, 2, 100)
	c := buildDigestInput(payload, 1, 200)

	require.NotEqual(t, a, b)
	require.NotEqual(t, a, c)
}
