package bitcoin

import (
	"bytes"
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/sbtc-core/signer/model"
)

// AssessLastFees implements design §4.6: compute the fee+vsize summary of
// the best RBF-replaceable mempool package currently spending the signer
// UTXO's outpoint.
func AssessLastFees(ctx context.Context, port Port, out model.Outpoint) (*model.Fees, error) {
	spenders, err := port.FindMempoolTransactionsSpendingOutput(ctx, out)
	if err != nil {
		return nil, err
	}
	if len(spenders) == 0 {
		return nil, nil
	}

	root, err := bestRoot(ctx, port, spenders)
	if err != nil {
		return nil, err
	}

	total := model.Fees{}
	if err := addTxFee(ctx, port, root, &total); err != nil {
		return nil, err
	}

	descendants, err := port.FindMempoolDescendants(ctx, root)
	if err != nil {
		return nil, err
	}
	for _, txid := range descendants {
		if err := addTxFee(ctx, port, txid, &total); err != nil {
			return nil, err
		}
	}
	return &total, nil
}

// bestRoot selects the root with the highest fee, tie-breaking by txid
// lexicographic order (design §4.6 step 3).
func bestRoot(ctx context.Context, port Port, candidates []chainhash.Hash) (chainhash.Hash, error) {
	var best chainhash.Hash
	var bestFee model.Fees
	have := false
	for _, txid := range candidates {
		fee, err := port.GetTransactionFee(ctx, txid, FeeHintMempool)
		if err != nil {
			return chainhash.Hash{}, err
		}
		switch {
		case !have:
			best, bestFee, have = txid, fee, true
		case fee.Total > bestFee.Total:
			best, bestFee = txid, fee
		case fee.Total == bestFee.Total && bytes.Compare(txid[:], best[:]) < 0:
			best, bestFee = txid, fee
		}
	}
	return best, nil
}

func addTxFee(ctx context.Context, port Port, txid chainhash.Hash, total *model.Fees) error {
	fee, err := port.GetTransactionFee(ctx, txid, FeeHintMempool)
	if err != nil {
		return err
	}
	total.Total += fee.Total
	total.VSize += fee.VSize
	return nil
}
