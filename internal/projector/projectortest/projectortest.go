// Package projectortest provides fixtures for tests that drive the projector.
package projectortest

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/MorpheusAIs/ponder-builders-index/internal/rpc"
	"github.com/MorpheusAIs/ponder-builders-index/pkg/config"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const ChainID uint64 = 42161

// Contract names of the fixture configuration.
const (
	DepositPool = "DepositPoolStETH"
	Builders    = "Builders"
	Token       = "MOR"
	Treasury    = "Treasury"
	Factory     = "SubnetFactory"
)

var (
	DepositPoolAddress = common.HexToAddress("0x47176B2Af9885dC6C4575d4eFd63895f7Aaa4790")
	BuildersAddress    = common.HexToAddress("0xC0eD68f163d44B6e9985F0041fDf6f67c6BCFF3f")
	TokenAddress       = common.HexToAddress("0x092bAaDB7DEf4C3981454dD9c0A0D7FF07bCFc86")
	TreasuryAddress    = common.HexToAddress("0x0e2f9b2Fbf8c0F5E4D3B6e09F0Dd32dF1e1D8B1a")
	FactoryAddress     = common.HexToAddress("0x1a2B3c4D5e6F708192A3b4C5d6E7F8091a2B3c4D")
)

// Config returns a single-chain configuration with one contract of every kind.
func Config(policy string) *config.Config {
	cfg := &config.Config{
		Database: config.DatabaseConfig{Path: ":memory:"},
		Chains: []config.ChainConfig{{
			ChainID: ChainID,
			Name:    "arbitrum",
			Contracts: []config.ContractConfig{
				{Name: DepositPool, Kind: config.ContractKindDepositPool, Address: DepositPoolAddress.Hex()},
				{Name: Builders, Kind: config.ContractKindBuilders, Address: BuildersAddress.Hex()},
				{Name: Token, Kind: config.ContractKindToken, Address: TokenAddress.Hex()},
				{Name: Treasury, Kind: config.ContractKindTreasury, Address: TreasuryAddress.Hex()},
				{Name: Factory, Kind: config.ContractKindFactory, Address: FactoryAddress.Hex()},
			},
		}},
		Projector: config.ProjectorConfig{MissingEntityPolicy: policy},
	}
	cfg.ApplyDefaults()
	return cfg
}

// Address derives a deterministic test account from a label.
func Address(label string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(label))[12:])
}

// TxHash derives a deterministic transaction hash from a label.
func TxHash(label string) common.Hash {
	return crypto.Keccak256Hash([]byte(label))
}

// ErrNotSet is returned for reads the fake has no state for.
var ErrNotSet = errors.New("state not set")

type balanceKey struct {
	contract common.Address
	poolID   common.Hash
	user     common.Address
}

type versioned[V any] struct {
	block uint64
	value V
}

// Reader is an in-memory chain state. A read at block N returns the latest
// value set at or below N, the way a contract read at a block observes the
// state after that block.
type Reader struct {
	mu            sync.Mutex
	balances      map[balanceKey][]versioned[rpc.UserBalance]
	subnets       map[common.Hash]rpc.SubnetInfo
	metadata      map[common.Hash]rpc.SubnetMetadata
	failing       error
	calls         int
	beforeBalance func()
}

func NewReader() *Reader {
	return &Reader{
		balances: make(map[balanceKey][]versioned[rpc.UserBalance]),
		subnets:  make(map[common.Hash]rpc.SubnetInfo),
		metadata: make(map[common.Hash]rpc.SubnetMetadata),
	}
}

// SetStaked records the deposited amount of user from block on. The virtual
// balance mirrors the deposit. Reads from the builders contract carry no lock
// end and no rate, like the real usersData.
func (r *Reader) SetStaked(contract common.Address, poolID common.Hash, user common.Address, block uint64,
	deposited int64) {
	bal := rpc.UserBalance{
		Deposited:        big.NewInt(deposited),
		VirtualDeposited: big.NewInt(deposited),
		ClaimLockStart:   block,
		LastStake:        block,
	}
	if contract != BuildersAddress {
		bal.ClaimLockEnd = block * 10
		bal.Rate = big.NewInt(deposited / 2)
	}
	r.SetBalance(contract, poolID, user, block, bal)
}

func (r *Reader) SetBalance(contract common.Address, poolID common.Hash, user common.Address, block uint64,
	bal rpc.UserBalance) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := balanceKey{contract: contract, poolID: poolID, user: user}
	r.balances[k] = append(r.balances[k], versioned[rpc.UserBalance]{block: block, value: bal})
}

func (r *Reader) SetSubnet(subnetID common.Hash, info rpc.SubnetInfo, meta rpc.SubnetMetadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subnets[subnetID] = info
	r.metadata[subnetID] = meta
}

// Fail makes every read fail with err until called with nil.
func (r *Reader) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failing = err
}

// BeforeNextBalance runs fn once, ahead of the next UserBalance read.
func (r *Reader) BeforeNextBalance(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beforeBalance = fn
}

// Calls returns the number of reads served or failed.
func (r *Reader) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *Reader) UserBalance(_ context.Context, chainID uint64, _ string, contract common.Address,
	poolID common.Hash, user common.Address, block uint64) (*rpc.UserBalance, error) {
	r.mu.Lock()
	hook := r.beforeBalance
	r.beforeBalance = nil
	r.mu.Unlock()
	if hook != nil {
		hook()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++

	if r.failing != nil {
		return nil, rpc.NewBalanceReadError(chainID, contract, "usersData", block, r.failing)
	}

	var (
		found bool
		best  versioned[rpc.UserBalance]
	)
	for _, v := range r.balances[balanceKey{contract: contract, poolID: poolID, user: user}] {
		if v.block <= block && (!found || v.block >= best.block) {
			best, found = v, true
		}
	}
	if !found {
		return nil, rpc.NewBalanceReadError(chainID, contract, "usersData", block, ErrNotSet)
	}
	bal := best.value
	return &bal, nil
}

func (r *Reader) SubnetInfo(_ context.Context, chainID uint64, contract common.Address, subnetID common.Hash,
	block uint64) (*rpc.SubnetInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++

	info, ok := r.subnets[subnetID]
	if r.failing != nil || !ok {
		return nil, rpc.NewBalanceReadError(chainID, contract, "subnets", block, ErrNotSet)
	}
	return &info, nil
}

func (r *Reader) SubnetMetadata(_ context.Context, chainID uint64, contract common.Address, subnetID common.Hash,
	block uint64) (*rpc.SubnetMetadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++

	meta, ok := r.metadata[subnetID]
	if r.failing != nil || !ok {
		return nil, rpc.NewBalanceReadError(chainID, contract, "subnetsMetadata", block, ErrNotSet)
	}
	return &meta, nil
}
