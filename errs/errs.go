// Package errs defines the error taxonomy of the signer core (see design
// §7). Components wrap underlying failures with the appropriate Kind so
// callers up the stack can dispatch on error shape with errors.As instead of
// string matching, the way the teacher's consensus/istanbul package defines
// its own sentinel errors per failure mode.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a failure the way spec.md §7 enumerates them.
type Kind int

const (
	Storage Kind = iota
	BitcoinRPC
	StacksRPC
	Registry
	Network
	ChainInconsistency
	Validation
	Protocol
	Shutdown
)

func (k Kind) String() string {
	switch k {
	case Storage:
		return "storage"
	case BitcoinRPC:
		return "bitcoin_rpc"
	case StacksRPC:
		return "stacks_rpc"
	case Registry:
		return "registry"
	case Network:
		return "network"
	case ChainInconsistency:
		return "chain_inconsistency"
	case Validation:
		return "validation"
	case Protocol:
		return "protocol"
	case Shutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Error is a taxonomy-tagged, wrapped error.
type Error struct {
	Kind Kind
	Op   string
	err  error
}

func (e *Error) Error() string {
	if e.err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.err)
}

func (e *Error) Unwrap() error { return e.err }

// New constructs a tagged error, wrapping cause with a stack trace via
// pkg/errors the way the teacher codebase does for diagnostic context.
func New(kind Kind, op string, cause error) *Error {
	if cause != nil {
		cause = errors.WithStack(cause)
	}
	return &Error{Kind: kind, Op: op, err: cause}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Propagates reports whether an error of this Kind must abort the outer
// loop rather than merely aborting the current tick (§7 propagation
// policy): Shutdown and ChainInconsistency propagate, everything else is
// contained to the tick that produced it.
func Propagates(err error) bool {
	return Is(err, Shutdown) || Is(err, ChainInconsistency)
}

var (
	ErrNoChainTip         = New(ChainInconsistency, "storage.bitcoin_tip", errors.New("no canonical bitcoin tip"))
	ErrNoSignerUTXO       = New(ChainInconsistency, "bitcoin.signer_utxo", errors.New("signer utxo not found"))
	ErrMissingParentBlock = New(ChainInconsistency, "observer.walk_back", errors.New("parent block unreachable"))
	ErrCoordinatorTimeout = New(Protocol, "wsts.round", errors.New("coordinator round timed out"))
	ErrUnexpectedResult   = New(Protocol, "wsts.result", errors.New("unexpected wsts operation result"))
	ErrWrongTipTag        = New(Validation, "network.message", errors.New("message tip tag does not match current tip"))
	ErrBadSignature       = New(Validation, "network.message", errors.New("signature verification failed"))
	ErrUnauthorizedRole   = New(Validation, "network.message", errors.New("sender not authorized for message role"))
)
