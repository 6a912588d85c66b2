package rpc

import (
	"context"
	"math/big"
	"time"

	pkgrpc "github.com/MorpheusAIs/ponder-builders-index/pkg/rpc"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Compile-time check to ensure Client implements pkgrpc.ContractCaller interface.
var _ pkgrpc.ContractCaller = (*Client)(nil)

// Client wraps the Ethereum RPC client for contract reads.
type Client struct {
	eth *ethclient.Client
	rpc *rpc.Client
}

// NewClient creates a new RPC client connected to the given endpoint.
func NewClient(ctx context.Context, endpoint string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	return &Client{
		eth: ethclient.NewClient(rpcClient),
		rpc: rpcClient,
	}, nil
}

// Close closes the RPC client connection.
func (c *Client) Close() {
	c.eth.Close()
}

// CallContract executes an eth_call against the state at blockNumber.
func (c *Client) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber uint64) ([]byte, error) {
	const method = "eth_call"
	start := time.Now()
	RPCMethodInc(method)

	out, err := c.eth.CallContract(ctx, call, new(big.Int).SetUint64(blockNumber))
	RPCMethodDuration(method, time.Since(start))
	if err != nil {
		RPCMethodError(method, errorType(err))
		return nil, err
	}
	return out, nil
}

// LatestBlockNumber returns the current head of the chain.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	const method = "eth_blockNumber"
	start := time.Now()
	RPCMethodInc(method)

	n, err := c.eth.BlockNumber(ctx)
	RPCMethodDuration(method, time.Since(start))
	if err != nil {
		RPCMethodError(method, errorType(err))
		return 0, err
	}
	return n, nil
}
