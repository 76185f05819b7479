package coordinator

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"github.com/sbtc-core/signer/model"
)

// Elect implements design §4.2 step 5 / §8 boundary scenario 5: compute
// sha256(tip_hash), interpret its first 8 bytes as a big-endian unsigned
// integer, and select the signer at that index modulo the signer set's
// size within the lexicographically sorted set. Grounded on the teacher's
// istanbul ValidatorSet, which sorts its members by String() order and
// selects a proposer by index the same way (consensus/istanbul/validator.go's
// Validators.Less, consensus/istanbul/validator/default.go's calcProposer).
func Elect(tip model.BitcoinHash, signerSet []*model.PublicKey) *model.PublicKey {
	if len(signerSet) == 0 {
		return nil
	}
	sorted := make([]*model.PublicKey, len(signerSet))
	copy(sorted, signerSet)
	sort.Slice(sorted, func(i, j int) bool {
		return lessKey(sorted[i], sorted[j])
	})

	digest := sha256.Sum256(tip[:])
	k := binary.BigEndian.Uint64(digest[:8])
	idx := int(k % uint64(len(sorted)))
	return sorted[idx]
}

// IsCoordinator reports whether self is the signer Elect would choose for
// tip. Two signers given the same (tip, signerSet) always agree, since
// Elect is a pure function of its inputs (design §8 invariant).
func IsCoordinator(tip model.BitcoinHash, signerSet []*model.PublicKey, self *model.PublicKey) bool {
	elected := Elect(tip, signerSet)
	return elected != nil && self != nil && elected.IsEqual(self)
}

func lessKey(a, b *model.PublicKey) bool {
	ab := a.SerializeCompressed()
	bb := b.SerializeCompressed()
	for i := range ab {
		if ab[i] != bb[i] {
			return ab[i] < bb[i]
		}
	}
	return false
}
