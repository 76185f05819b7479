package bitcoin

import (
	"bytes"

	"github.com/btcsuite/btcd/wire"

	"github.com/sbtc-core/signer/errs"
)

// EncodeTx serializes tx using the BIP-144 witness encoding, the only
// bit-exact boundary the persisted state must honor (design §6, §8
// "round-trip" property).
func EncodeTx(tx *wire.MsgTx) ([]byte, error) {
	var buf bytes.Buffer
	if err := tx.BtcEncode(&buf, wire.ProtocolVersion, wire.WitnessEncoding); err != nil {
		return nil, errs.New(errs.Validation, "bitcoin.encode_tx", err)
	}
	return buf.Bytes(), nil
}

// DecodeTx is the inverse of EncodeTx.
func DecodeTx(raw []byte) (*wire.MsgTx, error) {
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.BtcDecode(bytes.NewReader(raw), wire.ProtocolVersion, wire.WitnessEncoding); err != nil {
		return nil, errs.New(errs.Validation, "bitcoin.decode_tx", err)
	}
	return tx, nil
}

// RoundTrips reports whether tx survives an encode/decode cycle byte for
// byte, the invariant storage relies on before persisting a transaction.
func RoundTrips(tx *wire.MsgTx) (bool, error) {
	raw, err := EncodeTx(tx)
	if err != nil {
		return false, err
	}
	decoded, err := DecodeTx(raw)
	if err != nil {
		return false, err
	}
	raw2, err := EncodeTx(decoded)
	if err != nil {
		return false, err
	}
	return bytes.Equal(raw, raw2), nil
}
