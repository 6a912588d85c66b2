package counters

import (
	"context"
	"database/sql"
	"math/big"
	"testing"

	"github.com/MorpheusAIs/ponder-builders-index/internal/identity"
	"github.com/MorpheusAIs/ponder-builders-index/internal/logger"
	"github.com/MorpheusAIs/ponder-builders-index/internal/store"
	"github.com/MorpheusAIs/ponder-builders-index/internal/store/storetest"
	"github.com/MorpheusAIs/ponder-builders-index/pkg/config"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

const chainID = 1

var depositPool = common.HexToAddress("0x47176B2Af9885dC6C4575d4eFd63895f7Aaa4790")

// seed stores one pool with the given user balances and matching totals.
func seed(t *testing.T, s *store.Store, index int64, balances ...int64) *store.Pool {
	t.Helper()

	poolID := common.BigToHash(big.NewInt(index))
	pool := store.NewPool(identity.RewardPoolKey(chainID, poolID, depositPool),
		store.FamilyDepositPool, "DepositPool", depositPool, poolID, 1, 100)

	require.NoError(t, s.WithTx(context.Background(), func(tx *sql.Tx) error {
		for i, b := range balances {
			u := store.NewUser(pool.Key, common.BigToAddress(big.NewInt(int64(i+1))), 1)
			u.Staked = big.NewInt(b)
			require.NoError(t, store.Insert(tx, u))
			pool.TotalStaked.Add(pool.TotalStaked, u.Staked)
			pool.TotalUsers++
		}
		return store.Insert(tx, pool)
	}))
	return pool
}

func TestApplyCounterDelta(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	require.NoError(t, s.WithTx(ctx, func(tx *sql.Tx) error {
		c, err := ApplyCounterDelta(tx, Delta{NewPool: true, Timestamp: 50})
		require.NoError(t, err)
		require.Equal(t, uint64(1), c.TotalPools)
		require.Equal(t, uint64(50), c.LastUpdated)

		c, err = ApplyCounterDelta(tx, Delta{
			NewUser:    true,
			NewAddress: true,
			Staked:     big.NewInt(100),
			Timestamp:  40,
		})
		require.NoError(t, err)
		require.Equal(t, uint64(1), c.TotalUsers)
		require.Equal(t, uint64(1), c.TotalUsersAcrossPools)
		require.Equal(t, "100", c.TotalStaked.String())
		require.Equal(t, uint64(50), c.LastUpdated, "last_updated never moves backwards")
		return nil
	}))

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := ApplyCounterDelta(tx, Delta{Staked: big.NewInt(-101)})
		return err
	})
	require.ErrorIs(t, err, store.ErrNegativeBalance)

	c, err := s.Counters(ctx)
	require.NoError(t, err)
	require.Equal(t, "100", c.TotalStaked.String())
}

func TestDelta_IsZero(t *testing.T) {
	require.True(t, Delta{}.IsZero())
	require.True(t, Delta{Staked: big.NewInt(0), Timestamp: 9}.IsZero())
	require.False(t, Delta{Claimed: big.NewInt(1)}.IsZero())
	require.False(t, Delta{NewPool: true}.IsZero())
}

func TestRecompute(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	seed(t, s, 0, 10, 20)
	seed(t, s, 1, 5)

	require.NoError(t, s.WithTx(ctx, func(tx *sql.Tx) error {
		stored, err := store.GetCounters(tx)
		require.NoError(t, err)

		expected, err := Compute(tx)
		require.NoError(t, err)
		require.ElementsMatch(t,
			[]string{"total_pools", "total_users", "total_users_across_pools", "total_staked"},
			Drift(stored, expected))

		c, err := Recompute(tx)
		require.NoError(t, err)
		require.Equal(t, uint64(2), c.TotalPools)
		// users 1 and 2 exist in both pools
		require.Equal(t, uint64(2), c.TotalUsers)
		require.Equal(t, uint64(3), c.TotalUsersAcrossPools)
		require.Equal(t, "35", c.TotalStaked.String())

		stored, err = store.GetCounters(tx)
		require.NoError(t, err)
		require.Empty(t, Drift(stored, c))
		return nil
	}))
}

func TestAuditor_Run(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	cfg := config.AuditConfig{Enabled: true}
	cfg.ApplyDefaults()
	a := NewAuditor(s, cfg, logger.NewNopLogger())
	t.Cleanup(a.Stop)

	require.Nil(t, a.Last())

	seed(t, s, 0, 10, 20)
	broken := seed(t, s, 1, 5)
	require.NoError(t, s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := Recompute(tx); err != nil {
			return err
		}
		_, err := store.ApplyDelta[store.Pool](tx, broken.Key, store.PoolDelta{Staked: big.NewInt(1)})
		return err
	}))

	report, err := a.Run(ctx)
	require.NoError(t, err)
	require.False(t, report.OK())
	require.Equal(t, 2, report.PoolsSeen)
	require.Equal(t, []string{"total_staked"}, report.Drift)
	require.Len(t, report.Violations, 1)
	require.Equal(t, broken.Key, report.Violations[0].Pool)
	require.Equal(t, "6", report.Violations[0].TotalStaked.String())
	require.Equal(t, "5", report.Violations[0].UsersStaked.String())
	require.Same(t, report, a.Last())
}

func TestAuditor_RunReadsOneSnapshot(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	cfg := config.AuditConfig{Enabled: true}
	cfg.ApplyDefaults()
	a := NewAuditor(s, cfg, logger.NewNopLogger())
	t.Cleanup(a.Stop)

	pool := seed(t, s, 0, 10, 20)
	require.NoError(t, s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := Recompute(tx)
		return err
	}))

	// a deposit committed while the audit is running
	a.snapshotTaken = func() {
		require.NoError(t, s.WithTx(ctx, func(tx *sql.Tx) error {
			u := store.NewUser(pool.Key, common.BigToAddress(big.NewInt(99)), 2)
			u.Staked = big.NewInt(5)
			if err := store.Insert(tx, u); err != nil {
				return err
			}
			_, err := store.ApplyDelta[store.Pool](tx, pool.Key, store.PoolDelta{Staked: big.NewInt(5), NewUser: true})
			return err
		}))
	}

	report, err := a.Run(ctx)
	require.NoError(t, err)
	require.True(t, report.OK(), "violations: %+v", report.Violations)
	require.Equal(t, 1, report.PoolsSeen)

	users, err := store.UsersByPool(s.DB(), pool.Key)
	require.NoError(t, err)
	require.Len(t, users, 3)
}

func TestAuditor_StartRejectsBadSchedule(t *testing.T) {
	s := storetest.New(t)
	a := NewAuditor(s, config.AuditConfig{Schedule: "not a cron", Workers: 1}, logger.NewNopLogger())
	t.Cleanup(a.Stop)

	require.Error(t, a.Start(context.Background()))
}
