package rpc

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/MorpheusAIs/ponder-builders-index/internal/common"
	"github.com/MorpheusAIs/ponder-builders-index/pkg/config"
	pkgrpc "github.com/MorpheusAIs/ponder-builders-index/pkg/rpc"
	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCaller struct {
	mock.Mock
}

var _ pkgrpc.ContractCaller = (*mockCaller)(nil)

func (m *mockCaller) Close() {
	m.Called()
}

func (m *mockCaller) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber uint64) ([]byte, error) {
	args := m.Called(ctx, call, blockNumber)
	out, _ := args.Get(0).([]byte)
	return out, args.Error(1)
}

func (m *mockCaller) LatestBlockNumber(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

var (
	builders    = ethcommon.HexToAddress("0x42BB446eAE6dca7723a9eBdb81EA88aFe77eF4B9")
	depositPool = ethcommon.HexToAddress("0x47176B2Af9885dC6C4575d4eFd63895f7Aaa4790")
	alice       = ethcommon.HexToAddress("0x00000000000000000000000000000000000a11ce")
	subnetID    = ethcommon.HexToHash("0x5ab1e7")
)

func testReaderConfig() config.BalanceReaderConfig {
	return config.BalanceReaderConfig{
		Retry:       fastRetry(3),
		CacheSize:   16,
		CacheTTL:    common.NewDuration(time.Minute),
		CallTimeout: common.NewDuration(time.Second),
	}
}

func packOutputs(t *testing.T, method string, fromBuilders bool, values ...any) []byte {
	t.Helper()
	contract := depositPoolContract
	if fromBuilders {
		contract = buildersContract
	}
	out, err := contract.Methods[method].Outputs.Pack(values...)
	require.NoError(t, err)
	return out
}

func callTo(addr ethcommon.Address) any {
	return mock.MatchedBy(func(call ethereum.CallMsg) bool {
		return call.To != nil && *call.To == addr && len(call.Data) >= 4
	})
}

func TestContractReader_BuildersUserBalance(t *testing.T) {
	caller := &mockCaller{}
	out := packOutputs(t, fnUsersData, true,
		big.NewInt(1_700_000_100), big.NewInt(1_700_000_050), big.NewInt(250), big.NewInt(300))
	caller.On("CallContract", mock.Anything, callTo(builders), uint64(100)).Return(out, nil).Once()

	clock := &fakeClock{now: time.Unix(0, 0)}
	r := NewContractReader(testReaderConfig(), clock, nil)
	r.AddChain(8453, caller)

	bal, err := r.UserBalance(context.Background(), 8453, config.ContractKindBuilders, builders, subnetID, alice, 100)
	require.NoError(t, err)
	require.Equal(t, "250", bal.Deposited.String())
	require.Equal(t, "300", bal.VirtualDeposited.String())
	require.Equal(t, uint64(1_700_000_050), bal.ClaimLockStart)
	require.Zero(t, bal.ClaimLockEnd, "builders usersData carries no lock end")
	require.Nil(t, bal.Rate)
	require.Equal(t, uint64(1_700_000_100), bal.LastStake)

	// second read at the same block is served from the cache
	again, err := r.UserBalance(context.Background(), 8453, config.ContractKindBuilders, builders, subnetID, alice, 100)
	require.NoError(t, err)
	require.Equal(t, bal.Deposited.String(), again.Deposited.String())

	// after the ttl the call is repeated
	clock.Advance(2 * time.Minute)
	caller.On("CallContract", mock.Anything, callTo(builders), uint64(100)).Return(out, nil).Once()
	_, err = r.UserBalance(context.Background(), 8453, config.ContractKindBuilders, builders, subnetID, alice, 100)
	require.NoError(t, err)

	caller.AssertNumberOfCalls(t, "CallContract", 2)
}

func TestContractReader_DepositPoolUserBalance(t *testing.T) {
	caller := &mockCaller{}
	out := packOutputs(t, fnUsersData, false,
		big.NewInt(1_700_000_000), // lastStake
		big.NewInt(1000),          // deposited
		big.NewInt(7),             // rate
		big.NewInt(0),             // pendingRewards
		big.NewInt(1_700_000_000), // claimLockStart
		big.NewInt(1_800_000_000), // claimLockEnd
		big.NewInt(1200),          // virtualDeposited
		big.NewInt(0),             // lastClaim
		ethcommon.Address{},       // referrer
	)
	caller.On("CallContract", mock.Anything, callTo(depositPool), uint64(55)).Return(out, nil).Once()

	r := NewContractReader(testReaderConfig(), nil, nil)
	r.AddChain(1, caller)

	poolIndex := ethcommon.BigToHash(big.NewInt(0))
	bal, err := r.UserBalance(context.Background(), 1, config.ContractKindDepositPool, depositPool, poolIndex, alice, 55)
	require.NoError(t, err)
	require.Equal(t, "1000", bal.Deposited.String())
	require.Equal(t, "1200", bal.VirtualDeposited.String())
	require.Equal(t, uint64(1_700_000_000), bal.ClaimLockStart)
	require.Equal(t, uint64(1_800_000_000), bal.ClaimLockEnd)
	require.Equal(t, "7", bal.Rate.String())
	caller.AssertExpectations(t)
}

func TestContractReader_Subnet(t *testing.T) {
	caller := &mockCaller{}
	admin := ethcommon.HexToAddress("0x0000000000000000000000000000000000000ad1")
	info := packOutputs(t, fnSubnets, true,
		"Morpheus Builders", admin, big.NewInt(0), big.NewInt(604800), big.NewInt(0), big.NewInt(1e18), admin)
	meta := packOutputs(t, fnSubnetsMetadata, true, "morpheus", "desc", "https://mor.org", "")

	data, err := buildersContract.Pack(fnSubnets, subnetID)
	require.NoError(t, err)
	caller.On("CallContract", mock.Anything, mock.MatchedBy(func(call ethereum.CallMsg) bool {
		return string(call.Data) == string(data)
	}), uint64(9)).Return(info, nil).Once()
	caller.On("CallContract", mock.Anything, callTo(builders), uint64(9)).Return(meta, nil).Once()

	r := NewContractReader(testReaderConfig(), nil, nil)
	r.AddChain(8453, caller)

	got, err := r.SubnetInfo(context.Background(), 8453, builders, subnetID, 9)
	require.NoError(t, err)
	require.Equal(t, "Morpheus Builders", got.Name)
	require.Equal(t, admin, got.Admin)
	require.Equal(t, admin, got.ClaimAdmin)
	require.Equal(t, uint64(604800), got.WithdrawLockPeriod)
	require.Equal(t, "1000000000000000000", got.MinimalDeposit.String())

	m, err := r.SubnetMetadata(context.Background(), 8453, builders, subnetID, 9)
	require.NoError(t, err)
	require.Equal(t, "morpheus", m.Slug)
	require.Equal(t, "https://mor.org", m.Website)
	require.Empty(t, m.Image)
	caller.AssertExpectations(t)
}

func TestContractReader_Failures(t *testing.T) {
	t.Run("no client for chain", func(t *testing.T) {
		r := NewContractReader(testReaderConfig(), nil, nil)
		_, err := r.SubnetInfo(context.Background(), 10, builders, subnetID, 1)
		require.ErrorIs(t, err, ErrBalanceRead)
		require.ErrorIs(t, err, ErrNoClient)
		require.False(t, r.HasChain(10))
	})

	t.Run("retries transient errors then fails", func(t *testing.T) {
		caller := &mockCaller{}
		caller.On("CallContract", mock.Anything, mock.Anything, uint64(5)).
			Return(nil, errors.New("503 service unavailable")).Times(3)

		r := NewContractReader(testReaderConfig(), nil, nil)
		r.AddChain(8453, caller)

		_, err := r.UserBalance(context.Background(), 8453, config.ContractKindBuilders, builders, subnetID, alice, 5)
		var readErr *BalanceReadError
		require.ErrorAs(t, err, &readErr)
		require.Equal(t, fnUsersData, readErr.Function)
		require.Equal(t, uint64(5), readErr.Block)
		caller.AssertExpectations(t)
	})

	t.Run("revert is not retried", func(t *testing.T) {
		caller := &mockCaller{}
		caller.On("CallContract", mock.Anything, mock.Anything, uint64(5)).
			Return(nil, errors.New("execution reverted")).Once()

		r := NewContractReader(testReaderConfig(), nil, nil)
		r.AddChain(8453, caller)

		_, err := r.SubnetMetadata(context.Background(), 8453, builders, subnetID, 5)
		require.ErrorIs(t, err, ErrBalanceRead)
		caller.AssertExpectations(t)
	})

	t.Run("empty output is a decode failure and not cached", func(t *testing.T) {
		caller := &mockCaller{}
		caller.On("CallContract", mock.Anything, mock.Anything, uint64(5)).Return([]byte{}, nil).Twice()

		r := NewContractReader(testReaderConfig(), nil, nil)
		r.AddChain(8453, caller)

		for range 2 {
			_, err := r.SubnetInfo(context.Background(), 8453, builders, subnetID, 5)
			require.ErrorIs(t, err, ErrBalanceRead)
		}
		caller.AssertExpectations(t)
	})

	t.Run("unsupported kind", func(t *testing.T) {
		r := NewContractReader(testReaderConfig(), nil, nil)
		_, err := r.UserBalance(context.Background(), 1, config.ContractKindToken, depositPool, subnetID, alice, 1)
		require.ErrorIs(t, err, ErrBalanceRead)
	})
}

func TestContractReader_LatestBlockAndClose(t *testing.T) {
	caller := &mockCaller{}
	caller.On("LatestBlockNumber", mock.Anything).Return(uint64(1234), nil).Once()
	caller.On("Close").Return().Once()

	r := NewContractReader(testReaderConfig(), nil, nil)
	r.AddChain(1, caller)
	require.True(t, r.HasChain(1))

	head, err := r.LatestBlockNumber(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, uint64(1234), head)

	r.Close()
	require.False(t, r.HasChain(1))
	caller.AssertExpectations(t)
}
