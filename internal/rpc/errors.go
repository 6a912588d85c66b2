package rpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
)

// ErrBalanceRead is matched by every BalanceReadError.
var ErrBalanceRead = errors.New("balance read failed")

// ErrNoClient is returned for reads on a chain without an RPC endpoint.
var ErrNoClient = errors.New("no rpc client configured for chain")

// BalanceReadError is returned when a contract read failed after all retries.
type BalanceReadError struct {
	ChainID  uint64
	Contract common.Address
	Function string
	Block    uint64
	Err      error
}

// NewBalanceReadError creates a new BalanceReadError.
func NewBalanceReadError(chainID uint64, contract common.Address, function string, block uint64,
	err error) *BalanceReadError {
	return &BalanceReadError{
		ChainID:  chainID,
		Contract: contract,
		Function: function,
		Block:    block,
		Err:      err,
	}
}

func (e *BalanceReadError) Error() string {
	return fmt.Sprintf("%s on %s at block %d (chain %d): %v",
		e.Function, e.Contract.Hex(), e.Block, e.ChainID, e.Err)
}

func (e *BalanceReadError) Unwrap() error {
	return e.Err
}

func (e *BalanceReadError) Is(target error) bool {
	return target == ErrBalanceRead
}

// errorType labels an RPC error for metrics.
func errorType(err error) string {
	var rpcErr rpc.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.As(err, &rpcErr):
		return fmt.Sprintf("rpc_%d", rpcErr.ErrorCode())
	case retryableError(err):
		return "transient"
	default:
		return "other"
	}
}
