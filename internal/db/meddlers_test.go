package db

import (
	"math/big"
	"testing"

	"github.com/MorpheusAIs/ponder-builders-index/internal/identity"
	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"
	"github.com/stretchr/testify/require"
)

type meddledRow struct {
	ID       int64           `meddler:"id,pk"`
	Owner    common.Address  `meddler:"owner,address"`
	Spender  *common.Address `meddler:"spender,address"`
	TxHash   common.Hash     `meddler:"tx_hash,hash"`
	PoolKey  identity.Key    `meddler:"pool_key,key"`
	Parent   identity.Key    `meddler:"parent_key,key"`
	Amount   *big.Int        `meddler:"amount,bigint"`
	Negative *big.Int        `meddler:"negative,bigint"`
}

func TestMeddlers(t *testing.T) {
	db, _ := setupTestDB(t, "WAL")

	_, err := db.Exec(`CREATE TABLE meddled (
		id INTEGER PRIMARY KEY,
		owner TEXT, spender TEXT, tx_hash TEXT,
		pool_key TEXT, parent_key TEXT,
		amount TEXT, negative TEXT
	);`)
	require.NoError(t, err)

	huge, ok := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
	require.True(t, ok)

	in := &meddledRow{
		Owner:    common.HexToAddress("0x47176B2Af9885dC6C4575d4eFd63895f7Aaa4790"),
		TxHash:   common.HexToHash("0xabc"),
		PoolKey:  identity.SubnetPoolKey(42161, common.HexToHash("0x01")),
		Amount:   huge,
		Negative: big.NewInt(-40),
	}
	require.NoError(t, meddler.Insert(db, "meddled", in))

	var out meddledRow
	require.NoError(t, meddler.Load(db, "meddled", &out, in.ID))

	require.Equal(t, in.Owner, out.Owner)
	require.Nil(t, out.Spender)
	require.Equal(t, in.TxHash, out.TxHash)
	require.Equal(t, in.PoolKey, out.PoolKey)
	require.True(t, out.Parent.IsZero())
	require.Equal(t, 0, huge.Cmp(out.Amount))
	require.Equal(t, int64(-40), out.Negative.Int64())

	var rawKey string
	require.NoError(t, db.QueryRow(`SELECT pool_key FROM meddled`).Scan(&rawKey))
	require.Equal(t, in.PoolKey.Hex(), rawKey)
}

func TestBigIntMeddler_NullReadsZero(t *testing.T) {
	var value *big.Int
	target, err := BigIntMeddler{}.PreRead(&value)
	require.NoError(t, err)
	require.NoError(t, BigIntMeddler{}.PostRead(&value, target))
	require.NotNil(t, value)
	require.Zero(t, value.Sign())

	saved, err := BigIntMeddler{}.PreWrite((*big.Int)(nil))
	require.NoError(t, err)
	require.Equal(t, "0", saved)
}
