package identity

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	depositPool = common.HexToAddress("0x47176B2Af9885dC6C4575d4eFd63895f7Aaa4790")
	alice       = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob         = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	subnet      = common.HexToHash("0x5ab1e7")
	txHash      = common.HexToHash("0xfeedbeef")
)

func TestDeriveKey_Deterministic(t *testing.T) {
	pool := RewardPoolKey(1, common.BigToHash(big.NewInt(1)), depositPool)

	require.Equal(t, pool, RewardPoolKey(1, common.BigToHash(big.NewInt(1)), depositPool))
	require.Equal(t, UserKey(pool, alice), UserKey(pool, alice))
	require.Equal(t, EventKey(1, txHash, 7), EventKey(1, txHash, 7))
	require.Equal(t, ReferralKey(pool, alice, bob), ReferralKey(pool, alice, bob))
}

func TestDeriveKey_Injective(t *testing.T) {
	poolA := RewardPoolKey(1, common.BigToHash(big.NewInt(0)), depositPool)
	poolB := RewardPoolKey(1, common.BigToHash(big.NewInt(1)), depositPool)
	subnetPool := SubnetPoolKey(1, subnet)

	keys := []Key{
		poolA,
		poolB,
		RewardPoolKey(42161, common.BigToHash(big.NewInt(0)), depositPool),
		RewardPoolKey(1, common.BigToHash(big.NewInt(0)), alice),
		subnetPool,
		SubnetPoolKey(42161, subnet),
		UserKey(poolA, alice),
		UserKey(poolA, bob),
		UserKey(poolB, alice),
		UserKey(subnetPool, alice),
		EventKey(1, txHash, 0),
		EventKey(1, txHash, 1),
		EventKey(42161, txHash, 0),
		ReferralKey(poolA, alice, bob),
		ReferralKey(poolA, bob, alice),
		ReferrerKey(poolA, bob),
		ReferrerKey(poolB, bob),
	}

	seen := make(map[Key]int, len(keys))
	for i, k := range keys {
		if j, ok := seen[k]; ok {
			t.Fatalf("key %d collides with key %d: %s", i, j, k)
		}
		seen[k] = i
	}
}

func TestDeriveKey_FieldBoundaries(t *testing.T) {
	// Same total bytes split differently across fields must not collide.
	a := DeriveKey(KindPool, 1, Uint32(0x01020304), Uint32(0x05060708))
	b := DeriveKey(KindPool, 1, Hash(common.HexToHash("0x0102030405060708")))
	require.NotEqual(t, a, b)

	nestedA := DeriveKey(KindUser, 1, Nested(Key("ab")), Nested(Key("c")))
	nestedB := DeriveKey(KindUser, 1, Nested(Key("a")), Nested(Key("bc")))
	require.NotEqual(t, nestedA, nestedB)
}

func TestKey_Accessors(t *testing.T) {
	pool := SubnetPoolKey(8453, subnet)
	user := UserKey(pool, alice)

	require.Equal(t, KindPool, pool.Kind())
	require.Equal(t, KindUser, user.Kind())
	require.Equal(t, uint64(8453), pool.ChainID())
	require.Equal(t, uint64(8453), user.ChainID())
	require.Equal(t, "user", user.Kind().String())
	require.False(t, user.IsZero())
	require.True(t, Key("").IsZero())
	require.Equal(t, uint64(0), Key("").ChainID())
}

func TestParseKey(t *testing.T) {
	key := EventKey(1, txHash, 3)

	parsed, err := ParseKey(key.Hex())
	require.NoError(t, err)
	require.Equal(t, key, parsed)

	_, err = ParseKey("0xzz")
	require.ErrorIs(t, err, ErrInvalidKey)

	_, err = ParseKey("0x0102")
	require.ErrorIs(t, err, ErrInvalidKey)
}
