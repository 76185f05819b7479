package leveldb

import (
	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/sbtc-core/signer/model"
)

// dkgSharesDTO and keyRotationDTO hold the on-disk encoding of their model
// counterparts: *btcec.PublicKey does not round-trip through encoding/json
// on its own, so these DTOs carry compressed-key bytes instead.
type dkgSharesDTO struct {
	AggregateKey          []byte
	TweakedAggregateKey   []byte
	SignerScriptPubKey    []byte
	EncryptedPrivateShare []byte
	PublicShares          []byte
	SignerSet             [][]byte
}

func dkgSharesFromModel(s model.EncryptedDkgShares) dkgSharesDTO {
	return dkgSharesDTO{
		AggregateKey:          keyBytes(s.AggregateKey),
		TweakedAggregateKey:   keyBytes(s.TweakedAggregateKey),
		SignerScriptPubKey:    s.SignerScriptPubKey,
		EncryptedPrivateShare: s.EncryptedPrivateShare,
		PublicShares:          s.PublicShares,
		SignerSet:             keySetBytes(s.SignerSet),
	}
}

func (d dkgSharesDTO) toModel() model.EncryptedDkgShares {
	return model.EncryptedDkgShares{
		AggregateKey:          parseKey(d.AggregateKey),
		TweakedAggregateKey:   parseKey(d.TweakedAggregateKey),
		SignerScriptPubKey:    d.SignerScriptPubKey,
		EncryptedPrivateShare: d.EncryptedPrivateShare,
		PublicShares:          d.PublicShares,
		SignerSet:             parseKeySet(d.SignerSet),
	}
}

type keyRotationDTO struct {
	AggregateKey []byte
	SignerSet    [][]byte
	Threshold    uint32
}

func keyRotationFromModel(r model.KeyRotation) keyRotationDTO {
	return keyRotationDTO{
		AggregateKey: keyBytes(r.AggregateKey),
		SignerSet:    keySetBytes(r.SignerSet),
		Threshold:    r.Threshold,
	}
}

func (d keyRotationDTO) toModel() model.KeyRotation {
	return model.KeyRotation{
		AggregateKey: parseKey(d.AggregateKey),
		SignerSet:    parseKeySet(d.SignerSet),
		Threshold:    d.Threshold,
	}
}

func keyBytes(k *model.PublicKey) []byte {
	if k == nil {
		return nil
	}
	return k.SerializeCompressed()
}

func parseKey(b []byte) *model.PublicKey {
	if len(b) == 0 {
		return nil
	}
	key, err := btcec.ParsePubKey(b)
	if err != nil {
		return nil
	}
	return key
}

func keySetBytes(keys []*model.PublicKey) [][]byte {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = keyBytes(k)
	}
	return out
}

func parseKeySet(raw [][]byte) []*model.PublicKey {
	out := make([]*model.PublicKey, len(raw))
	for i, b := range raw {
		out[i] = parseKey(b)
	}
	return out
}
