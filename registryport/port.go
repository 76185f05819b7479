// Package registryport defines the Registry port (design §6): the external
// deposit-registry service ("Emily"). Its HTTP surface is explicitly out of
// scope (design §1) — Port is the narrow read/write contract the
// coordinator and observer actually call.
package registryport

import (
	"context"

	"github.com/btcsuite/btcd/wire"

	"github.com/sbtc-core/signer/model"
)

// Port is the Registry port.
type Port interface {
	// GetDeposits returns candidate deposit requests pending validation
	// (design §4.1 step 1).
	GetDeposits(ctx context.Context) ([]model.CandidateDeposit, error)

	// AcceptDeposits reports a broadcast sweep transaction and the Stacks
	// chain tip it was bound to, so Emily can mark the swept deposits as
	// accepted (design §4.4 step 8).
	AcceptDeposits(ctx context.Context, tx *wire.MsgTx, stacksTip model.StacksBlockID) error
}
