package reorg

import (
	"math/big"

	"github.com/MorpheusAIs/ponder-builders-index/internal/identity"
	"github.com/MorpheusAIs/ponder-builders-index/internal/store"
	"github.com/russross/meddler"
)

// replayer rebuilds aggregates from the log rows left after a deletion.
type replayer struct {
	tx       meddler.DB
	chainID  uint64
	ancestor uint64
}

func (r *replayer) inconsistent(kind identity.Kind, key, record identity.Key) error {
	return NewRollbackInconsistencyError(r.chainID, r.ancestor, kind, key, record)
}

// pool resets a surviving pool to its identity and re-applies its changes and
// the totals of its interactions. Pools created above the ancestor are
// already deleted.
func (r *replayer) pool(key identity.Key) error {
	current, err := store.FindByID[store.Pool](r.tx, key)
	if store.IsNotFound(err) {
		return r.orphaned(key)
	}
	if err != nil {
		return err
	}

	changes, err := store.PoolChangesByPool(r.tx, key)
	if err != nil {
		return err
	}
	if len(changes) == 0 || !changes[0].CreatesPool {
		return r.inconsistent(identity.KindPool, key, key)
	}

	p := store.NewPool(key, current.Family, current.Contract, current.ContractAddress, current.PoolID,
		current.CreatedAtBlock, current.CreatedAtTimestamp)
	created := false
	for _, c := range changes {
		c.Patch.ApplyTo(p)
		created = created || c.Source == store.ChangeCreated
	}
	p.Placeholder = !created

	recs, err := store.InteractionsByPool(r.tx, key)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		p.TotalStaked.Add(p.TotalStaked, rec.StakedDelta)
		if rec.Type == store.InteractionClaim {
			p.TotalClaimed.Add(p.TotalClaimed, rec.Amount)
		}
		if rec.NewUser {
			p.TotalUsers++
		}
	}
	return store.Put[store.Pool](r.tx, p)
}

// orphaned checks that nothing retained still points at a missing pool.
func (r *replayer) orphaned(key identity.Key) error {
	recs, err := store.InteractionsByPool(r.tx, key)
	if err != nil {
		return err
	}
	if len(recs) > 0 {
		return r.inconsistent(identity.KindPool, key, recs[0].Key)
	}
	changes, err := store.PoolChangesByPool(r.tx, key)
	if err != nil {
		return err
	}
	if len(changes) > 0 {
		return r.inconsistent(identity.KindPool, key, changes[0].EventKey)
	}
	return nil
}

// user rebuilds a position from its interactions, or deletes it when none remain.
func (r *replayer) user(key identity.Key) error {
	recs, err := store.InteractionsByUser(r.tx, key)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return store.Delete[store.User](r.tx, key)
	}

	first := recs[0]
	exists, err := store.Exists[store.Pool](r.tx, first.PoolKey)
	if err != nil {
		return err
	}
	if !exists {
		return r.inconsistent(identity.KindPool, first.PoolKey, first.Key)
	}
	if exists, err = store.Exists[store.User](r.tx, key); err != nil {
		return err
	}
	if !exists {
		return r.inconsistent(identity.KindUser, key, first.Key)
	}

	u := store.NewUser(first.PoolKey, first.UserAddress, first.BlockNumber)
	for _, rec := range recs {
		switch rec.Type {
		case store.InteractionDeposit:
			u.LastStakeTimestamp = rec.BlockTimestamp
			u.LastDepositAmount = new(big.Int).Set(rec.Amount)
			fallthrough
		case store.InteractionWithdraw:
			u.Staked = new(big.Int).Set(rec.BalanceAfter)
			u.VirtualDeposited = new(big.Int).Set(rec.VirtualDepositedAfter)
			u.ClaimLockStart = rec.ClaimLockStartAfter
			u.ClaimLockEnd = rec.ClaimLockEndAfter
			u.Rate = new(big.Int).Set(rec.Rate)
		case store.InteractionClaim:
			u.Claimed.Add(u.Claimed, rec.Amount)
		}
	}
	return store.Put[store.User](r.tx, u)
}

// referral rebuilds the cumulative amount of a user-referrer pair.
func (r *replayer) referral(key identity.Key) error {
	current, err := store.FindByID[store.Referral](r.tx, key)
	if store.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	events, err := store.ReferralEventsByReferrer(r.tx, current.PoolKey, current.ReferrerAddress)
	if err != nil {
		return err
	}

	var rebuilt *store.Referral
	for _, ev := range events {
		if ev.Type != store.ReferralReferred || ev.UserAddress == nil || *ev.UserAddress != current.UserAddress {
			continue
		}
		if rebuilt == nil {
			rebuilt = store.NewReferral(current.PoolKey, current.UserAddress, current.ReferrerAddress, ev.BlockNumber)
		}
		rebuilt.Amount.Add(rebuilt.Amount, ev.Amount)
		rebuilt.UpdatedAtBlock = ev.BlockNumber
	}
	if rebuilt == nil {
		return store.Delete[store.Referral](r.tx, key)
	}
	return store.Put[store.Referral](r.tx, rebuilt)
}

// referrer rebuilds the referred and claimed totals of a referrer.
func (r *replayer) referrer(key identity.Key) error {
	current, err := store.FindByID[store.Referrer](r.tx, key)
	if store.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	events, err := store.ReferralEventsByReferrer(r.tx, current.PoolKey, current.ReferrerAddress)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return store.Delete[store.Referrer](r.tx, key)
	}

	rebuilt := store.NewReferrer(current.PoolKey, current.ReferrerAddress, events[0].BlockNumber)
	for _, ev := range events {
		switch ev.Type {
		case store.ReferralReferred:
			rebuilt.ReferredAmount.Add(rebuilt.ReferredAmount, ev.Amount)
		case store.ReferralReferrerClaimed:
			rebuilt.Claimed.Add(rebuilt.Claimed, ev.Amount)
		}
		rebuilt.UpdatedAtBlock = ev.BlockNumber
	}
	return store.Put[store.Referrer](r.tx, rebuilt)
}
