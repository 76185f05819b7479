// Package stacksport defines the Stacks port (design §6): tenure/block
// lookups, account/nonce queries, fee estimation, transaction submission,
// and the current on-chain aggregate key. The concrete client is a thin
// gRPC wrapper, the shape the teacher's own node-to-node RPC surfaces take
// (grpc is a direct teacher dependency); the wire contract with the Stacks
// node itself is out of scope (design §1).
package stacksport

import (
	"context"

	"github.com/sbtc-core/signer/model"
)

// Priority selects a fee-estimation tier for EstimateFees.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

// SubmitResult is the outcome of submitting a Stacks transaction.
type SubmitResult struct {
	Accepted bool
	Txid     model.BitcoinHash
	Reason   string
}

// ContractCallPayload is the opaque, already-serialized body of a Stacks
// contract-call transaction (rotate-keys, complete-deposit, a contract
// deploy, ...). Its construction is owned by the coordinator; the port
// only estimates fees and submits it.
type ContractCallPayload []byte

// Port is the Stacks port (design §6).
type Port interface {
	GetTenureInfo(ctx context.Context) (model.TenureInfo, error)
	GetBlock(ctx context.Context, id model.StacksBlockID) (model.StacksBlock, bool, error)
	GetTenure(ctx context.Context, id model.StacksBlockID) ([]model.StacksBlock, error)
	GetAccount(ctx context.Context, address []byte) (model.Account, error)
	GetPoxInfo(ctx context.Context) (model.PoxInfo, error)
	EstimateFees(ctx context.Context, wallet model.SignerWallet, payload ContractCallPayload, priority Priority) (uint64, error)
	SubmitTx(ctx context.Context, raw []byte) (SubmitResult, error)
	GetCurrentSignersAggregateKey(ctx context.Context, deployer []byte) (*model.PublicKey, bool, error)
	IsContractDeployed(ctx context.Context, deployer []byte, contractName string) (bool, error)
}
