package store_test

import (
	"context"
	"database/sql"
	"errors"
	"math/big"
	"testing"

	"github.com/MorpheusAIs/ponder-builders-index/internal/identity"
	"github.com/MorpheusAIs/ponder-builders-index/internal/store"
	"github.com/MorpheusAIs/ponder-builders-index/internal/store/storetest"
	"github.com/MorpheusAIs/ponder-builders-index/pkg/indexer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

const chainID = 42161

var (
	builders = common.HexToAddress("0xC0eD68f163d44B6e9985F0041fDf6f67c6BCFF3f")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	subnet   = common.HexToHash("0x01")
)

func newPool(block uint64) *store.Pool {
	key := identity.SubnetPoolKey(chainID, subnet)
	return store.NewPool(key, store.FamilyBuilders, "Builders", builders, subnet, block, 1_700_000_000)
}

func TestFindByID_NotFound(t *testing.T) {
	s := storetest.New(t)
	key := identity.SubnetPoolKey(chainID, subnet)

	_, err := store.FindByID[store.Pool](s.DB(), key)
	require.ErrorIs(t, err, store.ErrEntityNotFound)

	nf, ok := store.AsNotFound(err)
	require.True(t, ok)
	require.Equal(t, identity.KindPool, nf.Kind)
	require.Equal(t, key, nf.Key)
}

func TestUpsert_CreatesOnceAndKeepsFields(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	initial := newPool(10)
	name := "first"
	store.PoolPatch{Name: &name}.ApplyTo(initial)

	require.NoError(t, s.WithTx(ctx, func(tx *sql.Tx) error {
		row, created, err := store.Upsert(tx, initial)
		require.NoError(t, err)
		require.True(t, created)
		require.Equal(t, "first", row.Name)
		return nil
	}))

	second := newPool(20)
	other := "second"
	store.PoolPatch{Name: &other}.ApplyTo(second)

	require.NoError(t, s.WithTx(ctx, func(tx *sql.Tx) error {
		row, created, err := store.Upsert(tx, second)
		require.NoError(t, err)
		require.False(t, created)
		require.Equal(t, "first", row.Name)
		require.Equal(t, uint64(10), row.CreatedAtBlock)
		return nil
	}))
}

func TestPool_RoundTrip(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	pool := newPool(5)
	admin := common.HexToAddress("0xad")
	lock := uint64(86400)
	store.PoolPatch{
		Admin:              &admin,
		MinimalDeposit:     big.NewInt(1_000),
		WithdrawLockPeriod: &lock,
	}.ApplyTo(pool)
	pool.Placeholder = false
	pool.TotalStaked, _ = new(big.Int).SetString("123456789012345678901234567890", 10)

	require.NoError(t, s.WithTx(ctx, func(tx *sql.Tx) error {
		return store.Insert(tx, pool)
	}))

	got, err := s.Pool(ctx, pool.Key)
	require.NoError(t, err)
	require.Equal(t, pool.Key, got.Key)
	require.Equal(t, uint64(chainID), got.ChainID)
	require.Equal(t, builders, got.ContractAddress)
	require.Equal(t, subnet, got.PoolID)
	require.False(t, got.Placeholder)
	require.Equal(t, &admin, got.Admin)
	require.Equal(t, "1000", got.MinimalDeposit.String())
	require.Equal(t, lock, got.WithdrawLockPeriod)
	require.Equal(t, pool.TotalStaked.String(), got.TotalStaked.String())
	require.Zero(t, got.TotalClaimed.Sign())
	require.Nil(t, got.ClaimAdmin)
	require.Empty(t, got.Slug)
}

func TestApplyDelta(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	pool := newPool(1)
	userKey := identity.UserKey(pool.Key, alice)

	t.Run("absent entity", func(t *testing.T) {
		err := s.WithTx(ctx, func(tx *sql.Tx) error {
			_, err := store.ApplyDelta[store.User](tx, userKey, store.UserDelta{Staked: big.NewInt(1)})
			return err
		})
		require.ErrorIs(t, err, store.ErrEntityNotFound)
	})

	require.NoError(t, s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := store.Insert(tx, pool); err != nil {
			return err
		}
		return store.Insert(tx, store.NewUser(pool.Key, alice, 1))
	}))

	t.Run("applies and persists", func(t *testing.T) {
		ts := uint64(99)
		require.NoError(t, s.WithTx(ctx, func(tx *sql.Tx) error {
			_, err := store.ApplyDelta[store.User](tx, userKey, store.UserDelta{
				Staked:             big.NewInt(100),
				LastStakeTimestamp: &ts,
				Claimed:            big.NewInt(7),
			})
			return err
		}))

		got, err := s.User(ctx, userKey)
		require.NoError(t, err)
		require.Equal(t, "100", got.Staked.String())
		require.Equal(t, "7", got.Claimed.String())
		require.Equal(t, ts, got.LastStakeTimestamp)
	})

	t.Run("negative result is rejected", func(t *testing.T) {
		err := s.WithTx(ctx, func(tx *sql.Tx) error {
			_, err := store.ApplyDelta[store.Pool](tx, pool.Key, store.PoolDelta{Staked: big.NewInt(-1)})
			return err
		})
		require.ErrorIs(t, err, store.ErrNegativeBalance)

		got, err := s.Pool(ctx, pool.Key)
		require.NoError(t, err)
		require.Zero(t, got.TotalStaked.Sign())
	})
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		require.NoError(t, store.Insert(tx, newPool(1)))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Pool(ctx, identity.SubnetPoolKey(chainID, subnet))
	require.True(t, store.IsNotFound(err))
}

func TestInsertRecord_Duplicate(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	tx := common.HexToHash("0xabc")

	processed := &store.ProcessedEvent{
		Key:         identity.EventKey(chainID, tx, 3),
		ChainID:     chainID,
		BlockNumber: 7,
		Contract:    "Builders",
		Event:       "UserDeposited",
	}
	require.NoError(t, s.WithTx(ctx, func(q *sql.Tx) error { return store.MarkProcessed(q, processed) }))

	err := s.WithTx(ctx, func(q *sql.Tx) error { return store.MarkProcessed(q, processed) })
	require.ErrorIs(t, err, store.ErrDuplicateInteraction)

	require.NoError(t, s.WithTx(ctx, func(q *sql.Tx) error {
		done, err := store.IsProcessed(q, processed)
		require.True(t, done)
		return err
	}))
}

func TestCheckpoints(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	cp, err := store.GetCheckpoint(s.DB(), chainID)
	require.NoError(t, err)
	require.Nil(t, cp)

	steps := []struct {
		block    uint64
		logIndex uint32
		want     uint64
		wantLog  uint32
	}{
		{block: 10, logIndex: 2, want: 10, wantLog: 2},
		{block: 10, logIndex: 5, want: 10, wantLog: 5},
		{block: 9, logIndex: 9, want: 10, wantLog: 5},
		{block: 12, logIndex: 0, want: 12, wantLog: 0},
	}
	for _, step := range steps {
		require.NoError(t, s.WithTx(ctx, func(tx *sql.Tx) error {
			return store.AdvanceCheckpoint(tx, chainID, step.block, step.logIndex)
		}))
		cp, err := store.GetCheckpoint(s.DB(), chainID)
		require.NoError(t, err)
		require.Equal(t, step.want, cp.LastBlock)
		require.Equal(t, step.wantLog, cp.LastLogIndex)
	}

	require.NoError(t, s.WithTx(ctx, func(tx *sql.Tx) error { return store.RewindCheckpoint(tx, chainID, 11) }))
	require.NoError(t, s.WithTx(ctx, func(tx *sql.Tx) error { return store.RewindCheckpoint(tx, chainID, 20) }))

	cps, err := s.Checkpoints(ctx)
	require.NoError(t, err)
	require.Len(t, cps, 1)
	require.Equal(t, uint64(11), cps[0].LastBlock)
}

func interaction(pool *store.Pool, user common.Address, typ store.InteractionType, amount int64,
	block uint64, logIndex uint32) *store.Interaction {
	tx := common.BigToHash(new(big.Int).SetUint64(block))
	return &store.Interaction{
		Key:                   identity.EventKey(chainID, tx, logIndex),
		ChainID:               chainID,
		PoolKey:               pool.Key,
		UserKey:               identity.UserKey(pool.Key, user),
		UserAddress:           user,
		Type:                  typ,
		Amount:                big.NewInt(amount),
		BalanceAfter:          big.NewInt(amount),
		StakedDelta:           big.NewInt(amount),
		VirtualDepositedAfter: big.NewInt(amount),
		BalanceSource:         store.BalanceFromChain,
		PoolTotalStaked:       big.NewInt(amount),
		BlockNumber:           block,
		BlockTimestamp:        block * 12,
		TxHash:                tx,
		LogIndex:              logIndex,
	}
}

func TestTouchedAndDeleteAbove(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	pool := newPool(1)
	late := store.NewPool(identity.SubnetPoolKey(chainID, common.HexToHash("0x02")),
		store.FamilyBuilders, "Builders", builders, common.HexToHash("0x02"), 8, 96)

	require.NoError(t, s.WithTx(ctx, func(tx *sql.Tx) error {
		require.NoError(t, store.Insert(tx, pool))
		require.NoError(t, store.Insert(tx, late))
		require.NoError(t, store.InsertPoolChange(tx, &store.PoolChange{
			EventKey: identity.EventKey(chainID, common.HexToHash("0xc1"), 0), ChainID: chainID,
			PoolKey: pool.Key, Source: store.ChangeCreated, CreatesPool: true, BlockNumber: 1,
		}))
		require.NoError(t, store.InsertPoolChange(tx, &store.PoolChange{
			EventKey: identity.EventKey(chainID, common.HexToHash("0xc2"), 0), ChainID: chainID,
			PoolKey: late.Key, Source: store.ChangeCreated, CreatesPool: true, BlockNumber: 8,
		}))
		require.NoError(t, store.InsertInteraction(tx, interaction(pool, alice, store.InteractionDeposit, 10, 2, 0)))
		require.NoError(t, store.InsertInteraction(tx, interaction(pool, bob, store.InteractionDeposit, 20, 6, 1)))
		referrer := alice
		return store.InsertReferralEvent(tx, &store.ReferralEvent{
			Key: identity.EventKey(chainID, common.HexToHash("0xd1"), 4), ChainID: chainID,
			PoolKey: pool.Key, Type: store.ReferralReferred, UserAddress: &bob,
			ReferrerAddress: referrer, Amount: big.NewInt(5), BlockNumber: 6,
		})
	}))

	touched, err := store.TouchedAbove(s.DB(), chainID, 5)
	require.NoError(t, err)
	require.ElementsMatch(t, []identity.Key{pool.Key, late.Key}, touched.Pools)
	require.Equal(t, []identity.Key{identity.UserKey(pool.Key, bob)}, touched.Users)
	require.Equal(t, []identity.Key{identity.ReferralKey(pool.Key, bob, alice)}, touched.Referrals)
	require.Equal(t, []identity.Key{identity.ReferrerKey(pool.Key, alice)}, touched.Referrers)

	var deleted map[string]int64
	require.NoError(t, s.WithTx(ctx, func(tx *sql.Tx) error {
		deleted, err = store.DeleteAbove(tx, chainID, 5)
		return err
	}))
	require.Equal(t, int64(1), deleted["pools"])
	require.Equal(t, int64(1), deleted["interactions"])
	require.Equal(t, int64(1), deleted["pool_changes"])
	require.Equal(t, int64(1), deleted["referral_events"])

	_, err = s.Pool(ctx, late.Key)
	require.True(t, store.IsNotFound(err))

	recs, err := store.InteractionsByPool(s.DB(), pool.Key)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, alice, recs[0].UserAddress)

	touched, err = store.TouchedAbove(s.DB(), chainID, 5)
	require.NoError(t, err)
	require.True(t, touched.IsEmpty())
}

func TestListUsers_SortsAmountsNumerically(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	pool := newPool(1)

	amounts := []int64{9, 100, 25}
	require.NoError(t, s.WithTx(ctx, func(tx *sql.Tx) error {
		require.NoError(t, store.Insert(tx, pool))
		for i, amount := range amounts {
			u := store.NewUser(pool.Key, common.BigToAddress(big.NewInt(int64(i+1))), 1)
			u.Staked = big.NewInt(amount)
			require.NoError(t, store.Insert(tx, u))
		}
		return nil
	}))

	qp := indexer.NewDefaultQueryParams()
	qp.Pool = pool.Key.Hex()
	qp.SortBy = "staked"

	users, total, err := s.ListUsers(ctx, *qp)
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Equal(t, "100", users[0].Staked.String())
	require.Equal(t, "25", users[1].Staked.String())
	require.Equal(t, "9", users[2].Staked.String())

	qp.Limit, qp.Offset, qp.SortOrder = 1, 1, "asc"
	users, total, err = s.ListUsers(ctx, *qp)
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, users, 1)
	require.Equal(t, "25", users[0].Staked.String())

	qp = indexer.NewDefaultQueryParams()
	qp.Address = "not-an-address"
	_, _, err = s.ListUsers(ctx, *qp)
	require.Error(t, err)
}

func TestCounters_PutAndGet(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	c, err := s.Counters(ctx)
	require.NoError(t, err)
	require.Equal(t, store.CountersID, c.ID)
	require.Zero(t, c.TotalStaked.Sign())

	c.TotalPools = 2
	c.TotalStaked = big.NewInt(500)
	require.NoError(t, s.WithTx(ctx, func(tx *sql.Tx) error { return store.PutCounters(tx, c) }))

	got, err := s.Counters(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), got.TotalPools)
	require.Equal(t, "500", got.TotalStaked.String())
	require.Zero(t, got.TotalClaimed.Sign())
}
