package projector

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/MorpheusAIs/ponder-builders-index/pkg/config"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	testUser   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testOther  = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	testSubnet = common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111")
)

func TestDecode_StakingAliases(t *testing.T) {
	tests := []struct {
		name string
		kind string
		ev   string
		args map[string]any
		want Event
	}{
		{
			name: "deposit pool stake",
			kind: config.ContractKindDepositPool,
			ev:   "UserStaked",
			args: map[string]any{"rewardPoolIndex": "0", "user": testUser.Hex(), "amount": "1000"},
			want: Deposit{PoolID: common.Hash{}, User: testUser, Amount: big.NewInt(1000)},
		},
		{
			name: "builders deposit with trailing underscores",
			kind: config.ContractKindBuilders,
			ev:   "UserDeposited",
			args: map[string]any{"subnetId_": testSubnet.Hex(), "user_": testUser.Hex(), "amount_": "0x10"},
			want: Deposit{PoolID: testSubnet, User: testUser, Amount: big.NewInt(16)},
		},
		{
			name: "withdraw with json number",
			kind: config.ContractKindDepositPool,
			ev:   "UserWithdrawn",
			args: map[string]any{"poolId": json.Number("3"), "user": testUser.Hex(), "amount": json.Number("25")},
			want: Withdraw{PoolID: common.BigToHash(big.NewInt(3)), User: testUser, Amount: big.NewInt(25)},
		},
		{
			name: "claim",
			kind: config.ContractKindBuilders,
			ev:   "UserClaimed",
			args: map[string]any{"builderPoolId": testSubnet.Hex(), "user": testUser.Hex(), "receiver": testOther.Hex(), "amount": float64(7)},
			want: Claim{PoolID: testSubnet, User: testUser, Receiver: testOther, Amount: big.NewInt(7)},
		},
		{
			name: "referral",
			kind: config.ContractKindDepositPool,
			ev:   "UserReferred",
			args: map[string]any{"rewardPoolIndex": uint64(1), "user": testUser.Hex(), "referrer": testOther.Hex(), "amount": big.NewInt(9)},
			want: UserReferred{PoolID: common.BigToHash(big.NewInt(1)), User: testUser, Referrer: testOther, Amount: big.NewInt(9)},
		},
		{
			name: "token transfer",
			kind: config.ContractKindToken,
			ev:   "Transfer",
			args: map[string]any{"from": testUser.Hex(), "to": testOther.Hex(), "value": "5"},
			want: Transfer{From: testUser, To: testOther, Value: big.NewInt(5)},
		},
		{
			name: "treasury payout",
			kind: config.ContractKindTreasury,
			ev:   "RewardSent",
			args: map[string]any{"to": testUser.Hex(), "amount": "12"},
			want: RewardSent{Receiver: testUser, Amount: big.NewInt(12)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.kind, tt.ev, tt.args)
			require.NoError(t, err)
			require.IsType(t, tt.want, got)
			require.Equal(t, formatEvent(tt.want), formatEvent(got))
		})
	}
}

// formatEvent renders big.Int fields as strings so events compare by value.
func formatEvent(ev Event) string {
	out, err := json.Marshal(ev)
	if err != nil {
		panic(err)
	}
	return string(out)
}

func TestDecode_SubnetCreated(t *testing.T) {
	t.Run("nested struct", func(t *testing.T) {
		ev, err := Decode(config.ContractKindBuilders, "SubnetCreated", map[string]any{
			"subnetId": testSubnet.Hex(),
			"subnet": map[string]any{
				"name":                           "Alpha",
				"admin":                          testUser.Hex(),
				"claimAdmin":                     common.Address{}.Hex(),
				"minimalDeposit":                 "100",
				"withdrawLockPeriodAfterDeposit": "86400",
			},
		})
		require.NoError(t, err)

		created := ev.(SubnetCreated)
		require.Equal(t, testSubnet, created.SubnetID)
		require.Equal(t, "Alpha", *created.SubnetName)
		require.Equal(t, testUser, *created.Admin)
		require.Nil(t, created.ClaimAdmin, "zero address means absent")
		require.Equal(t, "100", created.MinimalDeposit.String())
		require.Equal(t, uint64(86400), *created.WithdrawLockPeriod)
		require.Nil(t, created.StartsAt)
		require.Nil(t, created.ClaimLockEnd)
	})

	t.Run("flat arguments", func(t *testing.T) {
		ev, err := Decode(config.ContractKindBuilders, "BuilderPoolCreated", map[string]any{
			"builderPoolId": testSubnet.Hex(),
			"name":          "Beta",
			"poolStart":     "1700000000",
		})
		require.NoError(t, err)

		created := ev.(SubnetCreated)
		require.Equal(t, "Beta", *created.SubnetName)
		require.Equal(t, uint64(1_700_000_000), *created.StartsAt)
		require.Nil(t, created.Admin)
	})

	t.Run("metadata edit keeps empty fields absent", func(t *testing.T) {
		ev, err := Decode(config.ContractKindBuilders, "SubnetMetadataEdited", map[string]any{
			"subnetId":  testSubnet.Hex(),
			"metadata_": map[string]any{"slug": "alpha", "description": "", "website": "https://a.example"},
		})
		require.NoError(t, err)

		edited := ev.(SubnetMetadataEdited)
		require.Equal(t, "alpha", *edited.Slug)
		require.Nil(t, edited.Description)
		require.Equal(t, "https://a.example", *edited.Website)
		require.Nil(t, edited.Image)
	})

	t.Run("deposit pool has no subnets", func(t *testing.T) {
		_, err := Decode(config.ContractKindDepositPool, "SubnetCreated", map[string]any{"subnetId": testSubnet.Hex()})
		require.ErrorIs(t, err, ErrUnknownEvent)
	})
}

func TestDecode_AdminEvents(t *testing.T) {
	ev, err := Decode(config.ContractKindDepositPool, "Upgraded", map[string]any{"implementation": testOther.Hex()})
	require.NoError(t, err)
	require.Equal(t, "Upgraded", ev.Name())
	require.Equal(t, testOther.Hex(), ev.(AdminAction).Args["implementation"])

	// every factory event is stored verbatim
	ev, err = Decode(config.ContractKindFactory, "SubnetCreated", map[string]any{"id": json.Number("4")})
	require.NoError(t, err)
	require.Equal(t, AdminAction{Event: "SubnetCreated", Args: map[string]string{"id": "4"}}, ev)

	_, err = Decode(config.ContractKindToken, "Approval", map[string]any{})
	require.ErrorIs(t, err, ErrUnknownEvent)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]any
		wantArg string
		wantErr error
	}{
		{
			name:    "missing amount",
			args:    map[string]any{"poolId": "1", "user": testUser.Hex()},
			wantArg: "amount|amount_",
			wantErr: errMissingArg,
		},
		{
			name:    "negative amount",
			args:    map[string]any{"poolId": "1", "user": testUser.Hex(), "amount": "-5"},
			wantArg: "amount",
			wantErr: errOutOfRange,
		},
		{
			name:    "malformed user",
			args:    map[string]any{"poolId": "1", "user": "0x1234", "amount": "5"},
			wantArg: "user",
		},
		{
			name:    "non-hex pool id",
			args:    map[string]any{"poolId": "0x" + strings.Repeat("zz", 32), "user": testUser.Hex(), "amount": "5"},
			wantArg: "poolId",
		},
		{
			name:    "fractional amount",
			args:    map[string]any{"poolId": "1", "user": testUser.Hex(), "amount": 1.5},
			wantArg: "amount",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode(config.ContractKindDepositPool, "UserStaked", tt.args)
			require.Nil(t, ev)

			var decodeErr *DecodeError
			require.ErrorAs(t, err, &decodeErr)
			require.Equal(t, "UserStaked", decodeErr.Event)
			require.Equal(t, tt.wantArg, decodeErr.Arg)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestParseHash(t *testing.T) {
	h, err := parseHash(testSubnet.Hex())
	require.NoError(t, err)
	require.Equal(t, testSubnet, h)

	h, err = parseHash("42")
	require.NoError(t, err)
	require.Equal(t, common.BigToHash(big.NewInt(42)), h)

	_, err = parseHash("not-a-hash")
	require.Error(t, err)

	_, err = parseHash("0x" + strings.Repeat("g1", 32))
	require.ErrorContains(t, err, "invalid bytes32")
}

func TestEventsOf(t *testing.T) {
	require.Contains(t, EventsOf(config.ContractKindBuilders), "SubnetCreated")
	require.NotContains(t, EventsOf(config.ContractKindDepositPool), "SubnetCreated")
	require.Contains(t, EventsOf(config.ContractKindDepositPool), "Upgraded")
	require.Equal(t, []string{"*"}, EventsOf(config.ContractKindFactory))
	require.Equal(t, []string{"Transfer", "AdminChanged", "BeaconUpgraded", "Initialized", "Upgraded",
		"OwnershipTransferred"}, EventsOf(config.ContractKindToken))
}
