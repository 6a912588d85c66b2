package rpc

import (
	"context"

	"github.com/ethereum/go-ethereum"
)

// ContractCaller is the subset of JSON-RPC used for ground-truth reads.
// This abstraction allows for easier testing and alternative implementations.
type ContractCaller interface {
	// Close closes the RPC client connection.
	Close()

	// CallContract executes an eth_call against the state at blockNumber.
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber uint64) ([]byte, error)

	// LatestBlockNumber returns the current head of the chain.
	LatestBlockNumber(ctx context.Context) (uint64, error)
}
