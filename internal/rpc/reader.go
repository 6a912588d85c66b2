package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/MorpheusAIs/ponder-builders-index/internal/logger"
	"github.com/MorpheusAIs/ponder-builders-index/pkg/config"
	pkgrpc "github.com/MorpheusAIs/ponder-builders-index/pkg/rpc"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/ratelimit"
)

// UserBalance is the on-chain position of a user in a pool.
type UserBalance struct {
	Deposited        *big.Int
	VirtualDeposited *big.Int
	ClaimLockStart   uint64
	// ClaimLockEnd is zero on builders contracts, where the lock end belongs to the subnet.
	ClaimLockEnd uint64
	LastStake    uint64
	// Rate is the reward rate snapshot of the position; nil on builders contracts.
	Rate *big.Int
}

// SubnetInfo is the configuration of a builders subnet as stored on chain.
type SubnetInfo struct {
	Name               string
	Admin              common.Address
	ClaimAdmin         common.Address
	WithdrawLockPeriod uint64
	MinimalDeposit     *big.Int
}

// SubnetMetadata is the descriptive metadata of a builders subnet.
type SubnetMetadata struct {
	Slug        string
	Description string
	Website     string
	Image       string
}

type callKey struct {
	chainID  uint64
	contract common.Address
	data     string
	block    uint64
}

type chainCaller struct {
	caller  pkgrpc.ContractCaller
	limiter ratelimit.Limiter
}

// ContractReader performs the ground-truth contract reads used by the projector.
// Reads are pinned to the block of the event being projected, throttled per chain,
// retried with backoff and memoized.
type ContractReader struct {
	mu     sync.RWMutex
	chains map[uint64]*chainCaller
	cache  *ReadCache[callKey, []byte]
	cfg    config.BalanceReaderConfig
	log    *logger.Logger
}

// NewContractReader creates a reader without any chain attached.
func NewContractReader(cfg config.BalanceReaderConfig, clock Clock, log *logger.Logger) *ContractReader {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &ContractReader{
		chains: make(map[uint64]*chainCaller),
		cache:  NewReadCache[callKey, []byte](cfg.CacheSize, cfg.CacheTTL.Duration, clock),
		cfg:    cfg,
		log:    log,
	}
}

// AddChain attaches the caller used for reads on chainID.
func (r *ContractReader) AddChain(chainID uint64, caller pkgrpc.ContractCaller) {
	limiter := ratelimit.NewUnlimited()
	if r.cfg.RequestsPerSecond > 0 {
		limiter = ratelimit.New(r.cfg.RequestsPerSecond)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.chains[chainID] = &chainCaller{caller: caller, limiter: limiter}
}

// HasChain reports whether reads are possible on chainID.
func (r *ContractReader) HasChain(chainID uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.chains[chainID]
	return ok
}

// LatestBlockNumber returns the head of chainID.
func (r *ContractReader) LatestBlockNumber(ctx context.Context, chainID uint64) (uint64, error) {
	c, err := r.chain(chainID)
	if err != nil {
		return 0, err
	}
	return c.caller.LatestBlockNumber(ctx)
}

// Close closes every attached caller.
func (r *ContractReader) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.chains {
		c.caller.Close()
		delete(r.chains, id)
	}
	r.cache.Purge()
}

// UserBalance reads usersData of user in the pool identified by poolID on a
// contract of the given kind (deposit_pool or builders).
func (r *ContractReader) UserBalance(ctx context.Context, chainID uint64, kind string, contract common.Address,
	poolID common.Hash, user common.Address, block uint64) (*UserBalance, error) {
	switch kind {
	case config.ContractKindDepositPool:
		out, err := r.call(ctx, chainID, contract, block, depositPoolContract, fnUsersData,
			user, new(big.Int).SetBytes(poolID.Bytes()))
		if err != nil {
			return nil, err
		}
		// lastStake, deposited, rate, pendingRewards, claimLockStart, claimLockEnd,
		// virtualDeposited, lastClaim, referrer
		u := &UserBalance{}
		var lastStake, claimLockStart, claimLockEnd *big.Int
		if err := unpackInto(out, &lastStake, &u.Deposited, &u.Rate, nil, &claimLockStart, &claimLockEnd,
			&u.VirtualDeposited); err != nil {
			return nil, NewBalanceReadError(chainID, contract, fnUsersData, block, err)
		}
		u.LastStake = lastStake.Uint64()
		u.ClaimLockStart = claimLockStart.Uint64()
		u.ClaimLockEnd = claimLockEnd.Uint64()
		return u, nil

	case config.ContractKindBuilders:
		out, err := r.call(ctx, chainID, contract, block, buildersContract, fnUsersData, user, poolID)
		if err != nil {
			return nil, err
		}
		// lastDeposit, claimLockStart, deposited, virtualDeposited
		u := &UserBalance{}
		var lastDeposit, claimLockStart *big.Int
		if err := unpackInto(out, &lastDeposit, &claimLockStart, &u.Deposited, &u.VirtualDeposited); err != nil {
			return nil, NewBalanceReadError(chainID, contract, fnUsersData, block, err)
		}
		u.LastStake = lastDeposit.Uint64()
		u.ClaimLockStart = claimLockStart.Uint64()
		return u, nil

	default:
		return nil, NewBalanceReadError(chainID, contract, fnUsersData, block,
			fmt.Errorf("contract kind %q has no balance read", kind))
	}
}

// SubnetInfo reads subnets(subnetID) from a builders contract.
func (r *ContractReader) SubnetInfo(ctx context.Context, chainID uint64, contract common.Address,
	subnetID common.Hash, block uint64) (*SubnetInfo, error) {
	out, err := r.call(ctx, chainID, contract, block, buildersContract, fnSubnets, subnetID)
	if err != nil {
		return nil, err
	}

	info := &SubnetInfo{}
	var withdrawLock *big.Int
	if err := unpackInto(out, &info.Name, &info.Admin, nil, &withdrawLock, nil,
		&info.MinimalDeposit, &info.ClaimAdmin); err != nil {
		return nil, NewBalanceReadError(chainID, contract, fnSubnets, block, err)
	}
	info.WithdrawLockPeriod = withdrawLock.Uint64()
	return info, nil
}

// SubnetMetadata reads subnetsMetadata(subnetID) from a builders contract.
func (r *ContractReader) SubnetMetadata(ctx context.Context, chainID uint64, contract common.Address,
	subnetID common.Hash, block uint64) (*SubnetMetadata, error) {
	out, err := r.call(ctx, chainID, contract, block, buildersContract, fnSubnetsMetadata, subnetID)
	if err != nil {
		return nil, err
	}

	meta := &SubnetMetadata{}
	if err := unpackInto(out, &meta.Slug, &meta.Description, &meta.Website, &meta.Image); err != nil {
		return nil, NewBalanceReadError(chainID, contract, fnSubnetsMetadata, block, err)
	}
	return meta, nil
}

func (r *ContractReader) chain(chainID uint64) (*chainCaller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.chains[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoClient, chainID)
	}
	return c, nil
}

// call packs, executes and unpacks one view function call at block.
func (r *ContractReader) call(ctx context.Context, chainID uint64, contract common.Address, block uint64,
	contractABI abi.ABI, method string, args ...any) ([]any, error) {
	c, err := r.chain(chainID)
	if err != nil {
		balanceReadInc(method, "no_client")
		return nil, NewBalanceReadError(chainID, contract, method, block, err)
	}

	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, NewBalanceReadError(chainID, contract, method, block, err)
	}

	key := callKey{chainID: chainID, contract: contract, data: string(data), block: block}
	raw, ok := r.cache.Get(key)
	if !ok {
		err = retryWithBackoff(ctx, r.cfg.Retry, method, func() error {
			c.limiter.Take()

			callCtx, cancel := r.withTimeout(ctx)
			defer cancel()

			var callErr error
			raw, callErr = c.caller.CallContract(callCtx, ethereum.CallMsg{To: &contract, Data: data}, block)
			return callErr
		})
		if err != nil {
			balanceReadInc(method, "error")
			r.log.Warnw("contract read failed",
				"chain_id", chainID, "contract", contract.Hex(), "function", method, "block", block, "error", err)
			return nil, NewBalanceReadError(chainID, contract, method, block, err)
		}
	}

	out, err := contractABI.Unpack(method, raw)
	if err != nil {
		balanceReadInc(method, "decode_error")
		return nil, NewBalanceReadError(chainID, contract, method, block, err)
	}
	if !ok {
		r.cache.Add(key, raw)
	}
	balanceReadInc(method, "ok")
	return out, nil
}

func (r *ContractReader) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.CallTimeout.Duration <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.cfg.CallTimeout.Duration)
}

var errUnexpectedOutput = errors.New("unexpected call output")

// unpackInto copies the unpacked outputs into dst by position; nil entries are skipped.
func unpackInto(out []any, dst ...any) error {
	if len(out) < len(dst) {
		return fmt.Errorf("%w: %d values, want at least %d", errUnexpectedOutput, len(out), len(dst))
	}
	for i, d := range dst {
		if d == nil {
			continue
		}
		ok := false
		switch p := d.(type) {
		case **big.Int:
			*p, ok = out[i].(*big.Int)
		case *common.Address:
			*p, ok = out[i].(common.Address)
		case *string:
			*p, ok = out[i].(string)
		}
		if !ok {
			return fmt.Errorf("%w: output %d is %T", errUnexpectedOutput, i, out[i])
		}
	}
	return nil
}
