package bitcoin

import (
	"encoding/binary"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"

	"github.com/sbtc-core/signer/errs"
	"github.com/sbtc-core/signer/model"
)

// DepositFields is the set of values committed to inside a deposit
// request's deposit-script (design §3, §4.1 step 1).
type DepositFields struct {
	Recipient []byte
	MaxFee    uint64
	SignerKey *btcec.PublicKey
}

// ReclaimFields is the set of values committed to inside a deposit
// request's reclaim-script.
type ReclaimFields struct {
	LockTime  uint32
	SignerKey *btcec.PublicKey
}

// BuildDepositScript constructs the tapscript leaf a depositor locks funds
// to: push the recipient principal and max fee (both later read back by
// the observer), then require the signers' aggregate key to sign.
func BuildDepositScript(f DepositFields) ([]byte, error) {
	feeBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(feeBytes, f.MaxFee)

	b := txscript.NewScriptBuilder()
	b.AddData(f.Recipient)
	b.AddOp(txscript.OP_DROP)
	b.AddData(feeBytes)
	b.AddOp(txscript.OP_DROP)
	b.AddData(schnorrSerialize(f.SignerKey))
	b.AddOp(txscript.OP_CHECKSIG)
	return b.Script()
}

// BuildReclaimScript constructs the depositor's own timeout-reclaim
// tapscript leaf.
func BuildReclaimScript(f ReclaimFields) ([]byte, error) {
	ltBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(ltBytes, f.LockTime)

	b := txscript.NewScriptBuilder()
	b.AddData(ltBytes)
	b.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
	b.AddOp(txscript.OP_DROP)
	b.AddData(schnorrSerialize(f.SignerKey))
	b.AddOp(txscript.OP_CHECKSIG)
	return b.Script()
}

func schnorrSerialize(k *btcec.PublicKey) []byte {
	if k == nil {
		return make([]byte, 32)
	}
	return schnorr.SerializePubKey(k)
}

// ParseDepositScript extracts the fields a deposit-script commits to, the
// inverse of BuildDepositScript, used to re-derive and compare against a
// candidate request's claimed fields (design §4.1 step 1).
func ParseDepositScript(script []byte) (DepositFields, error) {
	pushes, err := extractDataPushes(script, 3)
	if err != nil {
		return DepositFields{}, err
	}
	if len(pushes[1]) != 8 {
		return DepositFields{}, errs.New(errs.Validation, "bitcoin.parse_deposit_script", errBadPush)
	}
	key, err := parseXOnly(pushes[2])
	if err != nil {
		return DepositFields{}, err
	}
	return DepositFields{
		Recipient: pushes[0],
		MaxFee:    binary.BigEndian.Uint64(pushes[1]),
		SignerKey: key,
	}, nil
}

// ParseReclaimScript is the inverse of BuildReclaimScript.
func ParseReclaimScript(script []byte) (ReclaimFields, error) {
	pushes, err := extractDataPushes(script, 2)
	if err != nil {
		return ReclaimFields{}, err
	}
	if len(pushes[0]) != 4 {
		return ReclaimFields{}, errs.New(errs.Validation, "bitcoin.parse_reclaim_script", errBadPush)
	}
	key, err := parseXOnly(pushes[1])
	if err != nil {
		return ReclaimFields{}, err
	}
	return ReclaimFields{
		LockTime:  binary.BigEndian.Uint32(pushes[0]),
		SignerKey: key,
	}, nil
}

func parseXOnly(b []byte) (*btcec.PublicKey, error) {
	key, err := schnorr.ParsePubKey(b)
	if err != nil {
		return nil, errs.New(errs.Validation, "bitcoin.parse_xonly_key", err)
	}
	return key, nil
}

var errBadPush = newLocalError("bitcoin: malformed script push")

type localError string

func (e localError) Error() string { return string(e) }

func newLocalError(s string) error { return localError(s) }

// extractDataPushes walks script and returns exactly want OP_DATA pushes in
// order, skipping the OP_DROP/OP_CHECKSIG/OP_CHECKSEQUENCEVERIFY opcodes
// BuildDepositScript/BuildReclaimScript interleave between them.
func extractDataPushes(script []byte, want int) ([][]byte, error) {
	var pushes [][]byte
	tokenizer := txscript.MakeScriptTokenizer(0, script)
	for tokenizer.Next() {
		if d := tokenizer.Data(); d != nil {
			pushes = append(pushes, d)
		}
	}
	if err := tokenizer.Err(); err != nil {
		return nil, errs.New(errs.Validation, "bitcoin.tokenize_script", err)
	}
	if len(pushes) != want {
		return nil, errs.New(errs.Validation, "bitcoin.tokenize_script", errBadPush)
	}
	return pushes, nil
}

// DeriveSignerScriptPubKey computes the P2TR script-pubkey a deposit with
// the given deposit/reclaim script pair would pay to, key-path spendable by
// the signers' aggregate key and script-path spendable by either leaf.
func DeriveSignerScriptPubKey(aggregateKey *btcec.PublicKey, depositScript, reclaimScript []byte) ([]byte, error) {
	depositLeaf := txscript.NewBaseTapLeaf(depositScript)
	reclaimLeaf := txscript.NewBaseTapLeaf(reclaimScript)
	tree := txscript.AssembleTaprootScriptTree(depositLeaf, reclaimLeaf)
	root := tree.RootNode.TapHash()

	outputKey := txscript.ComputeTaprootOutputKey(aggregateKey, root[:])

	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_1)
	b.AddData(schnorr.SerializePubKey(outputKey))
	return b.Script()
}

// ValidateDeposit re-derives the deposit/reclaim scripts' target
// script-pubkey and checks it against the transaction's actual output at
// vout, then parses the committed fields (recipient, max fee, lock time)
// out of the scripts into the returned request (design §4.1 step 1, §8
// boundary scenario 1). The signer keys the scripts commit to are parsed
// but not compared against aggregateKey.
func ValidateDeposit(candidate model.CandidateDeposit, txOutPkScript []byte, txOutValue int64, aggregateKey *btcec.PublicKey) (model.DepositRequest, error) {
	if len(candidate.DepositScript) == 0 || len(candidate.ReclaimScript) == 0 {
		return model.DepositRequest{}, errs.New(errs.Validation, "bitcoin.validate_deposit", newLocalError("empty deposit or reclaim script"))
	}

	expectedPkScript, err := DeriveSignerScriptPubKey(aggregateKey, candidate.DepositScript, candidate.ReclaimScript)
	if err != nil {
		return model.DepositRequest{}, err
	}
	if !bytesEqual(expectedPkScript, txOutPkScript) {
		return model.DepositRequest{}, errs.New(errs.Validation, "bitcoin.validate_deposit", newLocalError("derived script-pubkey does not match transaction output"))
	}

	deposit, err := ParseDepositScript(candidate.DepositScript)
	if err != nil {
		return model.DepositRequest{}, err
	}
	reclaim, err := ParseReclaimScript(candidate.ReclaimScript)
	if err != nil {
		return model.DepositRequest{}, err
	}

	return model.DepositRequest{
		Outpoint:      candidate.Outpoint,
		Amount:        uint64(txOutValue),
		DepositScript: candidate.DepositScript,
		ReclaimScript: candidate.ReclaimScript,
		Recipient:     deposit.Recipient,
		MaxFee:        deposit.MaxFee,
		LockTime:      reclaim.LockTime,
	}, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
