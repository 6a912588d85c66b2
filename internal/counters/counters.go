// Package counters maintains the singleton global_counters row.
package counters

import (
	"fmt"
	"math/big"

	"github.com/MorpheusAIs/ponder-builders-index/internal/store"
	"github.com/russross/meddler"
)

// Delta is the counter adjustment produced by one projected event.
type Delta struct {
	NewPool bool
	// NewUser is set when a user row was created.
	NewUser bool
	// NewAddress is set when the created user row is the first one of its address.
	NewAddress bool

	Staked  *big.Int
	Claimed *big.Int

	// Timestamp of the block the event was emitted in.
	Timestamp uint64
}

// IsZero reports whether applying the delta would only touch last_updated.
func (d Delta) IsZero() bool {
	return !d.NewPool && !d.NewUser && !d.NewAddress &&
		(d.Staked == nil || d.Staked.Sign() == 0) &&
		(d.Claimed == nil || d.Claimed.Sign() == 0)
}

// ApplyCounterDelta adds the delta to the global counters. It must run in
// the transaction of the event that produced it.
func ApplyCounterDelta(q meddler.DB, d Delta) (*store.GlobalCounters, error) {
	c, err := store.GetCounters(q)
	if err != nil {
		return nil, err
	}

	if d.NewPool {
		c.TotalPools++
	}
	if d.NewUser {
		c.TotalUsersAcrossPools++
	}
	if d.NewAddress {
		c.TotalUsers++
	}

	staked := store.SumBig(c.TotalStaked, d.Staked)
	claimed := store.SumBig(c.TotalClaimed, d.Claimed)
	if staked.Sign() < 0 || claimed.Sign() < 0 {
		return nil, fmt.Errorf("global counters: %w", store.ErrNegativeBalance)
	}
	c.TotalStaked, c.TotalClaimed = staked, claimed
	c.LastUpdated = max(c.LastUpdated, d.Timestamp)

	if err := store.PutCounters(q, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Compute aggregates the counters from the pool, user and log tables
// without writing them.
func Compute(q meddler.DB) (*store.GlobalCounters, error) {
	c := &store.GlobalCounters{ID: store.CountersID}

	row := q.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM pools),
			(SELECT COUNT(DISTINCT address) FROM users),
			(SELECT COUNT(*) FROM users),
			MAX(
				(SELECT COALESCE(MAX(block_timestamp), 0) FROM interactions),
				(SELECT COALESCE(MAX(block_timestamp), 0) FROM pool_changes WHERE creates_pool = 1)
			)`)
	if err := row.Scan(&c.TotalPools, &c.TotalUsers, &c.TotalUsersAcrossPools, &c.LastUpdated); err != nil {
		return nil, fmt.Errorf("failed to count pools and users: %w", err)
	}

	pools, err := store.AllPools(q)
	if err != nil {
		return nil, err
	}
	c.TotalStaked, c.TotalClaimed = new(big.Int), new(big.Int)
	for _, p := range pools {
		c.TotalStaked.Add(c.TotalStaked, p.TotalStaked)
		c.TotalClaimed.Add(c.TotalClaimed, p.TotalClaimed)
	}
	return c, nil
}

// Recompute rebuilds the global counters from the pool and user tables.
func Recompute(q meddler.DB) (*store.GlobalCounters, error) {
	c, err := Compute(q)
	if err != nil {
		return nil, err
	}
	if err := store.PutCounters(q, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Drift lists the fields of stored that differ from expected.
func Drift(stored, expected *store.GlobalCounters) []string {
	var fields []string
	if stored.TotalPools != expected.TotalPools {
		fields = append(fields, "total_pools")
	}
	if stored.TotalUsers != expected.TotalUsers {
		fields = append(fields, "total_users")
	}
	if stored.TotalUsersAcrossPools != expected.TotalUsersAcrossPools {
		fields = append(fields, "total_users_across_pools")
	}
	if stored.TotalStaked.Cmp(expected.TotalStaked) != 0 {
		fields = append(fields, "total_staked")
	}
	if stored.TotalClaimed.Cmp(expected.TotalClaimed) != 0 {
		fields = append(fields, "total_claimed")
	}
	if stored.LastUpdated != expected.LastUpdated {
		fields = append(fields, "last_updated")
	}
	return fields
}
