package rpc

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Contract functions read for ground truth.
const (
	fnUsersData       = "usersData"
	fnSubnets         = "subnets"
	fnSubnetsMetadata = "subnetsMetadata"
)

const depositPoolABI = `[
	{"type":"function","name":"usersData","stateMutability":"view",
	 "inputs":[{"name":"user","type":"address"},{"name":"rewardPoolIndex","type":"uint256"}],
	 "outputs":[
		{"name":"lastStake","type":"uint128"},
		{"name":"deposited","type":"uint256"},
		{"name":"rate","type":"uint256"},
		{"name":"pendingRewards","type":"uint256"},
		{"name":"claimLockStart","type":"uint128"},
		{"name":"claimLockEnd","type":"uint128"},
		{"name":"virtualDeposited","type":"uint256"},
		{"name":"lastClaim","type":"uint128"},
		{"name":"referrer","type":"address"}]}
]`

const buildersABI = `[
	{"type":"function","name":"usersData","stateMutability":"view",
	 "inputs":[{"name":"user","type":"address"},{"name":"subnetId","type":"bytes32"}],
	 "outputs":[
		{"name":"lastDeposit","type":"uint128"},
		{"name":"claimLockStart","type":"uint128"},
		{"name":"deposited","type":"uint256"},
		{"name":"virtualDeposited","type":"uint256"}]},
	{"type":"function","name":"subnets","stateMutability":"view",
	 "inputs":[{"name":"subnetId","type":"bytes32"}],
	 "outputs":[
		{"name":"name","type":"string"},
		{"name":"admin","type":"address"},
		{"name":"unusedStorage1_V4Update","type":"uint128"},
		{"name":"withdrawLockPeriodAfterDeposit","type":"uint128"},
		{"name":"unusedStorage2_V4Update","type":"uint128"},
		{"name":"minimalDeposit","type":"uint256"},
		{"name":"claimAdmin","type":"address"}]},
	{"type":"function","name":"subnetsMetadata","stateMutability":"view",
	 "inputs":[{"name":"subnetId","type":"bytes32"}],
	 "outputs":[
		{"name":"slug","type":"string"},
		{"name":"description","type":"string"},
		{"name":"website","type":"string"},
		{"name":"image","type":"string"}]}
]`

var (
	depositPoolContract = mustParseABI(depositPoolABI)
	buildersContract    = mustParseABI(buildersABI)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}
