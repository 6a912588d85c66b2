package projector

import (
	"github.com/MorpheusAIs/ponder-builders-index/internal/identity"
	"github.com/MorpheusAIs/ponder-builders-index/internal/store"
	"github.com/ethereum/go-ethereum/common"
)

// ensurePool returns the pool, creating it lazily with the prefetched
// configuration when its creation event has not been seen.
func (t *txn) ensurePool(key identity.Key, poolID common.Hash) (*store.Pool, error) {
	pool, err := store.FindByID[store.Pool](t.tx, key)
	if err == nil {
		return pool, nil
	}
	if !store.IsNotFound(err) {
		return nil, err
	}

	t.log.Infow("creating pool lazily",
		"chain_id", t.env.ChainID, "contract", t.contract.Name, "pool_id", poolID.Hex(), "block", t.env.BlockNumber)
	return t.createPool(key, poolID, store.ChangeLazy, t.pre.poolConfig)
}

// createPool inserts a pool together with the change that created it.
func (t *txn) createPool(key identity.Key, poolID common.Hash, source store.PoolChangeSource,
	patch store.PoolPatch) (*store.Pool, error) {
	pool := store.NewPool(key, t.contract.Kind, t.contract.Name, t.contract.Address, poolID,
		t.env.BlockNumber, t.env.BlockTimestamp)
	patch.ApplyTo(pool)
	if source == store.ChangeCreated {
		pool.Placeholder = false
	}

	if err := store.Insert[store.Pool](t.tx, pool); err != nil {
		return nil, err
	}
	if err := t.recordChange(key, source, true, patch); err != nil {
		return nil, err
	}

	t.delta.NewPool = true
	t.countersTouched = true
	return pool, nil
}

// patchPool merges a patch into an existing pool.
func (t *txn) patchPool(pool *store.Pool, source store.PoolChangeSource, patch store.PoolPatch) error {
	patch.ApplyTo(pool)
	if source == store.ChangeCreated {
		pool.Placeholder = false
	}
	if err := store.Put[store.Pool](t.tx, pool); err != nil {
		return err
	}
	return t.recordChange(pool.Key, source, false, patch)
}

func (t *txn) recordChange(key identity.Key, source store.PoolChangeSource, creates bool, patch store.PoolPatch) error {
	return store.InsertPoolChange(t.tx, &store.PoolChange{
		EventKey:       t.env.Key(),
		ChainID:        t.env.ChainID,
		PoolKey:        key,
		Source:         source,
		CreatesPool:    creates,
		Patch:          patch,
		BlockNumber:    t.env.BlockNumber,
		BlockTimestamp: t.env.BlockTimestamp,
		LogIndex:       t.env.LogIndex,
	})
}

// subnetCreated back-fills a lazily created pool or creates it. Fields absent
// from the event keep their current value.
func (t *txn) subnetCreated(ev SubnetCreated) error {
	ts := t.env.BlockTimestamp
	startsAt := ts
	if ev.StartsAt != nil {
		startsAt = *ev.StartsAt
	}
	var lockPeriod uint64
	if ev.WithdrawLockPeriod != nil {
		lockPeriod = *ev.WithdrawLockPeriod
	}
	claimLockEnd := ts + lockPeriod
	if ev.ClaimLockEnd != nil {
		claimLockEnd = *ev.ClaimLockEnd
	}

	patch := store.PoolPatch{
		Name:               ev.SubnetName,
		Admin:              ev.Admin,
		ClaimAdmin:         ev.ClaimAdmin,
		MinimalDeposit:     ev.MinimalDeposit,
		WithdrawLockPeriod: ev.WithdrawLockPeriod,
		StartsAt:           &startsAt,
		ClaimLockEnd:       &claimLockEnd,
	}.Merge(t.pre.metadata)

	key := t.contract.PoolKey(ev.SubnetID)
	pool, err := store.FindByID[store.Pool](t.tx, key)
	if store.IsNotFound(err) {
		_, err = t.createPool(key, ev.SubnetID, store.ChangeCreated, patch)
		return err
	}
	if err != nil {
		return err
	}

	t.log.Infow("back-filling pool configuration",
		"chain_id", t.env.ChainID, "subnet", ev.SubnetID.Hex(), "created_at_block", pool.CreatedAtBlock)
	return t.patchPool(pool, store.ChangeCreated, patch)
}

// subnetMetadataEdited merges the non-empty metadata fields. A missing pool is
// created lazily from its on-chain configuration.
func (t *txn) subnetMetadataEdited(ev SubnetMetadataEdited) error {
	patch := store.PoolPatch{
		Slug:        ev.Slug,
		Description: ev.Description,
		Website:     ev.Website,
		Image:       ev.Image,
	}

	key := t.contract.PoolKey(ev.SubnetID)
	pool, err := store.FindByID[store.Pool](t.tx, key)
	if store.IsNotFound(err) {
		_, err = t.createPool(key, ev.SubnetID, store.ChangeLazy, t.pre.poolConfig.Merge(patch))
		return err
	}
	if err != nil {
		return err
	}
	return t.patchPool(pool, store.ChangeMetadata, patch)
}
