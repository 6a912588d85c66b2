package reorg_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"
	"math/rand"
	"testing"

	"github.com/MorpheusAIs/ponder-builders-index/internal/logger"
	"github.com/MorpheusAIs/ponder-builders-index/internal/projector"
	"github.com/MorpheusAIs/ponder-builders-index/internal/projector/projectortest"
	"github.com/MorpheusAIs/ponder-builders-index/internal/reorg"
	"github.com/MorpheusAIs/ponder-builders-index/internal/rpc"
	"github.com/MorpheusAIs/ponder-builders-index/internal/store"
	"github.com/MorpheusAIs/ponder-builders-index/internal/store/storetest"
	"github.com/MorpheusAIs/ponder-builders-index/pkg/config"
	"github.com/MorpheusAIs/ponder-builders-index/pkg/indexer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"
	"github.com/stretchr/testify/require"
)

const (
	chainID = projectortest.ChainID
	head    = uint64(60)
)

type step struct {
	env projector.Envelope
	ev  projector.Event
}

func env(contract string, block uint64, logIndex uint32) projector.Envelope {
	return projector.Envelope{
		ChainID:        chainID,
		Contract:       contract,
		BlockNumber:    block,
		BlockTimestamp: 1_700_000_000 + block*12,
		TxHash:         projectortest.TxHash(fmt.Sprintf("%s-%d-%d", contract, block, logIndex)),
		LogIndex:       logIndex,
	}
}

type stakingPool struct {
	contract string
	address  common.Address
	id       common.Hash
}

// history generates a deterministic event sequence up to head together with
// the chain state the contract reads observe. Subnet alpha is created before
// it is used, subnet beta is used before its creation event arrives and
// subnet gamma only exists above block 40.
func history(reader *projectortest.Reader) []step {
	rng := rand.New(rand.NewSource(42)) //nolint:gosec

	alpha := projectortest.TxHash("alpha")
	beta := projectortest.TxHash("beta")
	gamma := projectortest.TxHash("gamma")
	reader.SetSubnet(beta, rpc.SubnetInfo{Name: "Beta", WithdrawLockPeriod: 600, MinimalDeposit: big.NewInt(1)},
		rpc.SubnetMetadata{Slug: "beta"})

	pools := []stakingPool{
		{projectortest.DepositPool, projectortest.DepositPoolAddress, common.BigToHash(big.NewInt(0))},
		{projectortest.DepositPool, projectortest.DepositPoolAddress, common.BigToHash(big.NewInt(1))},
		{projectortest.Builders, projectortest.BuildersAddress, alpha},
		{projectortest.Builders, projectortest.BuildersAddress, beta},
	}
	users := []common.Address{
		projectortest.Address("alice"),
		projectortest.Address("bob"),
		projectortest.Address("carol"),
		projectortest.Address("dave"),
	}
	staked := make(map[string]int64)

	name := func(s string) *string { return &s }
	lock := uint64(3600)
	steps := []step{{
		env: env(projectortest.Builders, 1, 0),
		ev:  projector.SubnetCreated{SubnetID: alpha, SubnetName: name("Alpha"), WithdrawLockPeriod: &lock},
	}}

	for block := uint64(2); block <= head; block++ {
		for logIndex := uint32(0); logIndex < 3; logIndex++ {
			p := pools[rng.Intn(len(pools))]
			u := users[rng.Intn(len(users))]
			k := p.id.Hex() + u.Hex()
			amt := rng.Int63n(1000) + 1
			e := env(p.contract, block, logIndex)

			var ev projector.Event
			switch op := rng.Intn(12); {
			case op < 5:
				staked[k] += amt
				ev = projector.Deposit{PoolID: p.id, User: u, Amount: big.NewInt(amt)}
			case op < 7 && staked[k] > 0:
				amt = min(amt, staked[k])
				staked[k] -= amt
				ev = projector.Withdraw{PoolID: p.id, User: u, Amount: big.NewInt(amt)}
			case op < 9 && staked[k] > 0:
				ev = projector.Claim{PoolID: p.id, User: u, Receiver: u, Amount: big.NewInt(amt)}
			case op < 10:
				ref := users[(rng.Intn(len(users)-1)+1+indexOf(users, u))%len(users)]
				ev = projector.UserReferred{PoolID: p.id, User: u, Referrer: ref, Amount: big.NewInt(amt)}
			case op < 11:
				ev = projector.ReferrerClaimed{PoolID: p.id, Referrer: u, Receiver: u, Amount: big.NewInt(amt)}
			default:
				e = env(projectortest.Token, block, logIndex)
				ev = projector.Transfer{From: u, To: p.address, Value: big.NewInt(amt)}
			}
			switch ev.(type) {
			case projector.Deposit, projector.Withdraw:
				reader.SetStaked(p.address, p.id, u, block, staked[k])
			}
			steps = append(steps, step{env: e, ev: ev})
		}

		switch block {
		case 25:
			steps = append(steps, step{
				env: env(projectortest.Builders, block, 10),
				ev:  projector.SubnetMetadataEdited{SubnetID: alpha, Website: name("https://alpha.example")},
			})
		case 38:
			steps = append(steps, step{
				env: env(projectortest.Builders, block, 10),
				ev:  projector.SubnetCreated{SubnetID: beta, SubnetName: name("Beta v2"), Admin: &users[0]},
			})
		case 41:
			steps = append(steps, step{
				env: env(projectortest.Builders, block, 10),
				ev:  projector.SubnetCreated{SubnetID: gamma, SubnetName: name("Gamma")},
			}, step{
				env: env(projectortest.Builders, block, 11),
				ev:  projector.Deposit{PoolID: gamma, User: users[2], Amount: big.NewInt(5)},
			})
			reader.SetStaked(projectortest.BuildersAddress, gamma, users[2], block, 5)
		case 45:
			steps = append(steps, step{
				env: env(projectortest.Treasury, block, 10),
				ev:  projector.RewardSent{Receiver: users[1], Amount: big.NewInt(77)},
			}, step{
				env: env(projectortest.Factory, block, 11),
				ev:  projector.AdminAction{Event: "SubnetCreated", Args: map[string]string{"id": "gamma"}},
			})
		}
	}
	return steps
}

func indexOf(users []common.Address, u common.Address) int {
	for i, v := range users {
		if v == u {
			return i
		}
	}
	return 0
}

type fixture struct {
	store   *store.Store
	proj    *projector.Projector
	handler *reorg.Handler
}

func newFixture(t *testing.T, reader projector.Reader) *fixture {
	t.Helper()

	s := storetest.New(t)
	p, err := projector.New(projectortest.Config(config.MissingEntityStrict), s, reader, logger.NewNopLogger())
	require.NoError(t, err)
	return &fixture{store: s, proj: p, handler: reorg.NewHandler(s, logger.NewNopLogger())}
}

func (f *fixture) apply(t *testing.T, steps []step, from, to uint64) {
	t.Helper()
	for _, s := range steps {
		if s.env.BlockNumber < from || s.env.BlockNumber > to {
			continue
		}
		_, err := f.proj.Project(context.Background(), s.env, s.ev)
		require.NoError(t, err, "%s at block %d", s.ev.Name(), s.env.BlockNumber)
	}
}

// dump renders every aggregate and log table in key order.
func dump(t *testing.T, db *sql.DB) string {
	t.Helper()

	out := make(map[string]any)
	load := func(name string, dst any, query string) {
		require.NoError(t, meddler.QueryAll(db, dst, query))
		out[name] = dst
	}
	load("pools", &[]*store.Pool{}, "SELECT * FROM pools ORDER BY id")
	load("users", &[]*store.User{}, "SELECT * FROM users ORDER BY id")
	load("referrals", &[]*store.Referral{}, "SELECT * FROM referrals ORDER BY id")
	load("referrers", &[]*store.Referrer{}, "SELECT * FROM referrers ORDER BY id")
	load("interactions", &[]*store.Interaction{}, "SELECT * FROM interactions ORDER BY id")
	load("pool_changes", &[]*store.PoolChange{}, "SELECT * FROM pool_changes ORDER BY event_key")
	load("referral_events", &[]*store.ReferralEvent{}, "SELECT * FROM referral_events ORDER BY id")
	load("transfers", &[]*store.Transfer{}, "SELECT * FROM transfers ORDER BY id")
	load("admin_events", &[]*store.AdminEvent{}, "SELECT * FROM admin_events ORDER BY id")
	load("reward_distributions", &[]*store.RewardDistribution{}, "SELECT * FROM reward_distributions ORDER BY id")
	load("processed_events", &[]*store.ProcessedEvent{}, "SELECT * FROM processed_events ORDER BY id")

	counters, err := store.GetCounters(db)
	require.NoError(t, err)
	out["global_counters"] = counters

	raw, err := json.MarshalIndent(out, "", "  ")
	require.NoError(t, err)
	return string(raw)
}

func TestRollback_MatchesReplayOfRetainedEvents(t *testing.T) {
	for _, ancestor := range []uint64{0, 1, 12, 30, 38, 40, 41, 59, head} {
		t.Run(fmt.Sprintf("ancestor %d", ancestor), func(t *testing.T) {
			reader := projectortest.NewReader()
			steps := history(reader)

			rolled := newFixture(t, reader)
			rolled.apply(t, steps, 0, head)

			res, err := rolled.handler.Rollback(context.Background(), chainID, ancestor)
			require.NoError(t, err)
			require.Equal(t, head-ancestor, res.Depth)
			require.Equal(t, indexer.StateFollowing, rolled.handler.State(chainID))

			fresh := newFixture(t, reader)
			fresh.apply(t, steps, 0, ancestor)

			require.Equal(t, dump(t, fresh.store.DB()), dump(t, rolled.store.DB()))

			cp, err := store.GetCheckpoint(rolled.store.DB(), chainID)
			require.NoError(t, err)
			require.LessOrEqual(t, cp.LastBlock, ancestor)
		})
	}
}

func TestRollback_RedeliveryRestoresFullState(t *testing.T) {
	reader := projectortest.NewReader()
	steps := history(reader)

	rolled := newFixture(t, reader)
	rolled.apply(t, steps, 0, head)
	_, err := rolled.handler.Rollback(context.Background(), chainID, 33)
	require.NoError(t, err)
	rolled.apply(t, steps, 34, head)

	full := newFixture(t, reader)
	full.apply(t, steps, 0, head)

	require.Equal(t, dump(t, full.store.DB()), dump(t, rolled.store.DB()))
}

func TestRollback_ReplacementBranch(t *testing.T) {
	reader := projectortest.NewReader()
	steps := history(reader)

	// the replacement branch only touches an account the canonical history never uses
	erin := projectortest.Address("erin")
	poolID := common.BigToHash(big.NewInt(0))
	branch := []step{
		{env: env(projectortest.DepositPool, 51, 0), ev: projector.Deposit{PoolID: poolID, User: erin, Amount: big.NewInt(9)}},
		{env: env(projectortest.DepositPool, 52, 0), ev: projector.Claim{PoolID: poolID, User: erin, Receiver: erin, Amount: big.NewInt(2)}},
	}
	reader.SetStaked(projectortest.DepositPoolAddress, poolID, erin, 51, 9)

	rolled := newFixture(t, reader)
	rolled.apply(t, steps, 0, head)
	_, err := rolled.handler.Rollback(context.Background(), chainID, 50)
	require.NoError(t, err)
	rolled.apply(t, branch, 0, head)

	expected := newFixture(t, reader)
	expected.apply(t, steps, 0, 50)
	expected.apply(t, branch, 0, head)

	require.Equal(t, dump(t, expected.store.DB()), dump(t, rolled.store.DB()))
}

func TestRollback_RepeatedRollbacksConverge(t *testing.T) {
	reader := projectortest.NewReader()
	steps := history(reader)

	rolled := newFixture(t, reader)
	rolled.apply(t, steps, 0, head)

	for _, ancestor := range []uint64{45, 45, 20} {
		_, err := rolled.handler.Rollback(context.Background(), chainID, ancestor)
		require.NoError(t, err)
	}
	res, err := rolled.handler.Rollback(context.Background(), chainID, 30)
	require.NoError(t, err)
	require.Zero(t, res.Depth, "rolling back above the checkpoint deletes nothing")

	fresh := newFixture(t, reader)
	fresh.apply(t, steps, 0, 20)
	require.Equal(t, dump(t, fresh.store.DB()), dump(t, rolled.store.DB()))
}

func TestRollback_InconsistencyAbortsTransaction(t *testing.T) {
	reader := projectortest.NewReader()
	poolID := common.BigToHash(big.NewInt(0))
	alice := projectortest.Address("alice")
	reader.SetStaked(projectortest.DepositPoolAddress, poolID, alice, 5, 10)
	reader.SetStaked(projectortest.DepositPoolAddress, poolID, alice, 15, 30)

	f := newFixture(t, reader)
	f.apply(t, []step{
		{env: env(projectortest.DepositPool, 5, 0), ev: projector.Deposit{PoolID: poolID, User: alice, Amount: big.NewInt(10)}},
		{env: env(projectortest.DepositPool, 15, 0), ev: projector.Deposit{PoolID: poolID, User: alice, Amount: big.NewInt(20)}},
	}, 0, head)

	// a pool vanishing while its interactions remain
	_, err := f.store.DB().Exec("DELETE FROM pools")
	require.NoError(t, err)
	before := dump(t, f.store.DB())

	_, err = f.handler.Rollback(context.Background(), chainID, 10)
	require.ErrorIs(t, err, reorg.ErrRollbackInconsistency)

	var inconsistency *reorg.RollbackInconsistencyError
	require.ErrorAs(t, err, &inconsistency)
	require.Equal(t, uint64(10), inconsistency.Ancestor)
	require.Equal(t, before, dump(t, f.store.DB()), "the rollback must not be partially applied")
	require.Equal(t, indexer.StateRollingBack, f.handler.State(chainID))

	require.False(t, f.handler.SetCaughtUp(chainID, true), "a halted chain stays ROLLING_BACK")
	require.Equal(t, indexer.StateRollingBack, f.handler.State(chainID))
}

func TestRollback_MissingPoolWithRetainedInteractions(t *testing.T) {
	reader := projectortest.NewReader()
	poolID := common.BigToHash(big.NewInt(0))
	alice := projectortest.Address("alice")
	bob := projectortest.Address("bob")
	reader.SetStaked(projectortest.DepositPoolAddress, poolID, alice, 5, 10)
	reader.SetStaked(projectortest.DepositPoolAddress, poolID, bob, 15, 20)

	f := newFixture(t, reader)
	f.apply(t, []step{
		{env: env(projectortest.DepositPool, 5, 0), ev: projector.Deposit{PoolID: poolID, User: alice, Amount: big.NewInt(10)}},
		{env: env(projectortest.DepositPool, 15, 0), ev: projector.Deposit{PoolID: poolID, User: bob, Amount: big.NewInt(20)}},
	}, 0, head)

	// only bob's position is rolled back, so the missing pool is the sole trace
	_, err := f.store.DB().Exec("DELETE FROM pools")
	require.NoError(t, err)
	before := dump(t, f.store.DB())

	_, err = f.handler.Rollback(context.Background(), chainID, 10)
	require.ErrorIs(t, err, reorg.ErrRollbackInconsistency)

	var inconsistency *reorg.RollbackInconsistencyError
	require.ErrorAs(t, err, &inconsistency)
	require.Equal(t, uint64(10), inconsistency.Ancestor)
	require.Equal(t, before, dump(t, f.store.DB()))
}

func TestHandler_States(t *testing.T) {
	f := newFixture(t, projectortest.NewReader())
	h := f.handler

	require.Equal(t, indexer.StateFollowing, h.State(chainID))
	require.True(t, h.SetCaughtUp(chainID, true))
	require.False(t, h.SetCaughtUp(chainID, true))
	require.Equal(t, indexer.StateCaughtUp, h.State(chainID))

	_, err := h.Rollback(context.Background(), chainID, 0)
	require.NoError(t, err)
	require.Equal(t, indexer.StateFollowing, h.State(chainID))
	require.Equal(t, map[uint64]indexer.SyncState{chainID: indexer.StateFollowing}, h.States())
}
