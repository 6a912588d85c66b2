package store

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/MorpheusAIs/ponder-builders-index/internal/identity"
	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"
)

// logTables are the append-only tables rolled back by block number.
var logTables = []string{
	"interactions",
	"pool_changes",
	"referral_events",
	"admin_events",
	"transfers",
	"reward_distributions",
	"processed_events",
}

// Touched lists the aggregates affected by log rows above a block.
type Touched struct {
	Pools     []identity.Key
	Users     []identity.Key
	Referrals []identity.Key
	Referrers []identity.Key
}

// IsEmpty reports whether nothing was touched.
func (t Touched) IsEmpty() bool {
	return len(t.Pools) == 0 && len(t.Users) == 0 && len(t.Referrals) == 0 && len(t.Referrers) == 0
}

// TouchedAbove collects the aggregates referenced by log rows of the chain
// with block_number > block.
func TouchedAbove(q meddler.DB, chainID, block uint64) (Touched, error) {
	pools := make(map[identity.Key]struct{})
	users := make(map[identity.Key]struct{})
	referrals := make(map[identity.Key]struct{})
	referrers := make(map[identity.Key]struct{})

	var interactions []*Interaction
	if err := meddler.QueryAll(q, &interactions,
		"SELECT * FROM interactions WHERE chain_id = ? AND block_number > ?", chainID, block); err != nil {
		return Touched{}, fmt.Errorf("failed to load interactions above %d: %w", block, err)
	}
	for _, rec := range interactions {
		pools[rec.PoolKey] = struct{}{}
		users[rec.UserKey] = struct{}{}
	}

	var changes []*PoolChange
	if err := meddler.QueryAll(q, &changes,
		"SELECT * FROM pool_changes WHERE chain_id = ? AND block_number > ?", chainID, block); err != nil {
		return Touched{}, fmt.Errorf("failed to load pool changes above %d: %w", block, err)
	}
	for _, c := range changes {
		pools[c.PoolKey] = struct{}{}
	}

	var refEvents []*ReferralEvent
	if err := meddler.QueryAll(q, &refEvents,
		"SELECT * FROM referral_events WHERE chain_id = ? AND block_number > ?", chainID, block); err != nil {
		return Touched{}, fmt.Errorf("failed to load referral events above %d: %w", block, err)
	}
	for _, ev := range refEvents {
		referrers[identity.ReferrerKey(ev.PoolKey, ev.ReferrerAddress)] = struct{}{}
		if ev.Type == ReferralReferred && ev.UserAddress != nil {
			referrals[identity.ReferralKey(ev.PoolKey, *ev.UserAddress, ev.ReferrerAddress)] = struct{}{}
		}
	}

	return Touched{
		Pools:     sortedKeys(pools),
		Users:     sortedKeys(users),
		Referrals: sortedKeys(referrals),
		Referrers: sortedKeys(referrers),
	}, nil
}

// DeleteAbove removes the log rows of the chain with block_number > block,
// together with the pools those rows created. It returns the number of rows
// deleted per table.
func DeleteAbove(q meddler.DB, chainID, block uint64) (map[string]int64, error) {
	deleted := make(map[string]int64, len(logTables)+1)

	res, err := q.Exec(`
		DELETE FROM pools WHERE id IN (
			SELECT pool_key FROM pool_changes
			WHERE chain_id = ? AND creates_pool = 1 AND block_number > ?
		)`, chainID, block)
	if err != nil {
		return nil, fmt.Errorf("failed to delete pools created above %d: %w", block, err)
	}
	deleted["pools"], _ = res.RowsAffected()

	for _, table := range logTables {
		//nolint:gosec // table names are constants
		res, err := q.Exec("DELETE FROM "+table+" WHERE chain_id = ? AND block_number > ?", chainID, block)
		if err != nil {
			return nil, fmt.Errorf("failed to delete from %s: %w", table, err)
		}
		deleted[table], _ = res.RowsAffected()
	}
	return deleted, nil
}

// InteractionsByUser returns the interactions of a user in delivery order.
func InteractionsByUser(q meddler.DB, user identity.Key) ([]*Interaction, error) {
	var recs []*Interaction
	err := meddler.QueryAll(q, &recs,
		"SELECT * FROM interactions WHERE user_key = ? ORDER BY block_number, log_index", user.Hex())
	if err != nil {
		return nil, fmt.Errorf("failed to load interactions of user %s: %w", user.Hex(), err)
	}
	return recs, nil
}

// InteractionsByPool returns the interactions of a pool in delivery order.
func InteractionsByPool(q meddler.DB, pool identity.Key) ([]*Interaction, error) {
	var recs []*Interaction
	err := meddler.QueryAll(q, &recs,
		"SELECT * FROM interactions WHERE pool_key = ? ORDER BY block_number, log_index", pool.Hex())
	if err != nil {
		return nil, fmt.Errorf("failed to load interactions of pool %s: %w", pool.Hex(), err)
	}
	return recs, nil
}

// PoolChangesByPool returns the patches applied to a pool in delivery order.
func PoolChangesByPool(q meddler.DB, pool identity.Key) ([]*PoolChange, error) {
	var changes []*PoolChange
	err := meddler.QueryAll(q, &changes,
		"SELECT * FROM pool_changes WHERE pool_key = ? ORDER BY block_number, log_index", pool.Hex())
	if err != nil {
		return nil, fmt.Errorf("failed to load changes of pool %s: %w", pool.Hex(), err)
	}
	return changes, nil
}

// ReferralEventsByReferrer returns the referral log of a referrer in a pool in
// delivery order.
func ReferralEventsByReferrer(q meddler.DB, pool identity.Key, referrer common.Address) ([]*ReferralEvent, error) {
	var events []*ReferralEvent
	err := meddler.QueryAll(q, &events, `
		SELECT * FROM referral_events
		WHERE pool_key = ? AND referrer_address = ?
		ORDER BY block_number, log_index`, pool.Hex(), referrer.Hex())
	if err != nil {
		return nil, fmt.Errorf("failed to load referral events of %s: %w", referrer.Hex(), err)
	}
	return events, nil
}

// UsersByPool returns the users of a pool ordered by key.
func UsersByPool(q meddler.DB, pool identity.Key) ([]*User, error) {
	var users []*User
	if err := meddler.QueryAll(q, &users, "SELECT * FROM users WHERE pool_key = ? ORDER BY id", pool.Hex()); err != nil {
		return nil, fmt.Errorf("failed to load users of pool %s: %w", pool.Hex(), err)
	}
	return users, nil
}

// AllPools returns every pool ordered by key.
func AllPools(q meddler.DB) ([]*Pool, error) {
	var pools []*Pool
	if err := meddler.QueryAll(q, &pools, "SELECT * FROM pools ORDER BY id"); err != nil {
		return nil, fmt.Errorf("failed to load pools: %w", err)
	}
	return pools, nil
}

// AllUsers returns every user ordered by key.
func AllUsers(q meddler.DB) ([]*User, error) {
	var users []*User
	if err := meddler.QueryAll(q, &users, "SELECT * FROM users ORDER BY id"); err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	return users, nil
}

// AllReferrals returns every referral ordered by key.
func AllReferrals(q meddler.DB) ([]*Referral, error) {
	var rows []*Referral
	if err := meddler.QueryAll(q, &rows, "SELECT * FROM referrals ORDER BY id"); err != nil {
		return nil, fmt.Errorf("failed to load referrals: %w", err)
	}
	return rows, nil
}

// AllReferrers returns every referrer ordered by key.
func AllReferrers(q meddler.DB) ([]*Referrer, error) {
	var rows []*Referrer
	if err := meddler.QueryAll(q, &rows, "SELECT * FROM referrers ORDER BY id"); err != nil {
		return nil, fmt.Errorf("failed to load referrers: %w", err)
	}
	return rows, nil
}

// CountUsersWithAddress counts the user rows of an address across all pools.
func CountUsersWithAddress(q meddler.DB, address common.Address) (uint64, error) {
	var n uint64
	if err := q.QueryRow("SELECT COUNT(*) FROM users WHERE address = ?", address.Hex()).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users of %s: %w", address.Hex(), err)
	}
	return n, nil
}

// SumBig adds up amounts, treating nil as zero.
func SumBig(values ...*big.Int) *big.Int {
	sum := new(big.Int)
	for _, v := range values {
		if v != nil {
			sum.Add(sum, v)
		}
	}
	return sum
}

func sortedKeys(set map[identity.Key]struct{}) []identity.Key {
	keys := make([]identity.Key, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
