// Package reorg undoes the effects of invalidated blocks. A rollback deletes
// the log rows above the common ancestor and rebuilds every aggregate they
// touched by replaying the rows that remain.
package reorg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/MorpheusAIs/ponder-builders-index/internal/counters"
	"github.com/MorpheusAIs/ponder-builders-index/internal/logger"
	"github.com/MorpheusAIs/ponder-builders-index/internal/store"
	"github.com/MorpheusAIs/ponder-builders-index/pkg/indexer"
	"github.com/puzpuzpuz/xsync/v4"
)

// Result summarizes a completed rollback.
type Result struct {
	ChainID   uint64
	Ancestor  uint64
	Depth     uint64
	Deleted   map[string]int64
	Pools     int
	Users     int
	Referrals int
	Referrers int
	Counters  *store.GlobalCounters
}

// Handler tracks the sync state of every chain and performs rollbacks.
type Handler struct {
	store  *store.Store
	states *xsync.Map[uint64, indexer.SyncState]
	active *xsync.Map[uint64, struct{}]
	log    *logger.Logger
}

// NewHandler creates a new Handler.
func NewHandler(s *store.Store, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Handler{
		store:  s,
		states: xsync.NewMap[uint64, indexer.SyncState](),
		active: xsync.NewMap[uint64, struct{}](),
		log:    log,
	}
}

// State returns the sync state of a chain. Unknown chains are FOLLOWING.
func (h *Handler) State(chainID uint64) indexer.SyncState {
	if s, ok := h.states.Load(chainID); ok {
		return s
	}
	return indexer.StateFollowing
}

// States returns a snapshot of the known chain states.
func (h *Handler) States() map[uint64]indexer.SyncState {
	out := make(map[uint64]indexer.SyncState, h.states.Size())
	h.states.Range(func(chainID uint64, s indexer.SyncState) bool {
		out[chainID] = s
		return true
	})
	return out
}

// SetCaughtUp switches a chain between FOLLOWING and CAUGHT_UP. It is a no-op
// while the chain is rolling back and reports whether the state was changed.
func (h *Handler) SetCaughtUp(chainID uint64, caughtUp bool) bool {
	next := indexer.StateFollowing
	if caughtUp {
		next = indexer.StateCaughtUp
	}

	changed := false
	h.states.Compute(chainID, func(old indexer.SyncState, loaded bool) (indexer.SyncState, xsync.ComputeOp) {
		if old == indexer.StateRollingBack {
			return old, xsync.CancelOp
		}
		changed = !loaded || old != next
		return next, xsync.UpdateOp
	})
	if changed {
		stateSet(chainID, next)
	}
	return changed
}

// Rollback discards everything derived from blocks above commonAncestor on a
// chain and rebuilds the affected aggregates from the retained logs, all in
// one transaction. The chain is ROLLING_BACK for the duration and returns to
// FOLLOWING on success. On failure it stays ROLLING_BACK until the next
// successful rollback.
func (h *Handler) Rollback(ctx context.Context, chainID, commonAncestor uint64) (*Result, error) {
	if err := h.begin(chainID); err != nil {
		return nil, err
	}

	start := time.Now()
	res := &Result{ChainID: chainID, Ancestor: commonAncestor}

	err := h.store.WithTx(ctx, func(tx *sql.Tx) error {
		return h.rollbackTx(tx, res)
	})
	rollbackLog(chainID, res.Depth, res.Deleted, time.Since(start), err)
	if err != nil {
		h.log.Errorw("rollback failed, chain halted in ROLLING_BACK",
			"chain_id", chainID, "common_ancestor", commonAncestor, "error", err)
		h.end(chainID, indexer.StateRollingBack)
		return nil, fmt.Errorf("rollback chain %d to block %d: %w", chainID, commonAncestor, err)
	}

	h.end(chainID, indexer.StateFollowing)
	h.log.Infow("rollback completed",
		"chain_id", chainID,
		"common_ancestor", commonAncestor,
		"depth", res.Depth,
		"pools", res.Pools,
		"users", res.Users,
		"referrals", res.Referrals,
		"referrers", res.Referrers,
		"duration", time.Since(start),
	)
	return res, nil
}

func (h *Handler) rollbackTx(tx *sql.Tx, res *Result) error {
	cp, err := store.GetCheckpoint(tx, res.ChainID)
	if err != nil {
		return err
	}
	if cp != nil && cp.LastBlock > res.Ancestor {
		res.Depth = cp.LastBlock - res.Ancestor
	}

	touched, err := store.TouchedAbove(tx, res.ChainID, res.Ancestor)
	if err != nil {
		return err
	}
	if res.Deleted, err = store.DeleteAbove(tx, res.ChainID, res.Ancestor); err != nil {
		return err
	}
	h.log.Debugw("deleted rows above common ancestor",
		"chain_id", res.ChainID, "common_ancestor", res.Ancestor, "deleted", res.Deleted)

	r := &replayer{tx: tx, chainID: res.ChainID, ancestor: res.Ancestor}
	for _, key := range touched.Pools {
		if err := r.pool(key); err != nil {
			return err
		}
	}
	for _, key := range touched.Users {
		if err := r.user(key); err != nil {
			return err
		}
	}
	for _, key := range touched.Referrals {
		if err := r.referral(key); err != nil {
			return err
		}
	}
	for _, key := range touched.Referrers {
		if err := r.referrer(key); err != nil {
			return err
		}
	}
	res.Pools, res.Users = len(touched.Pools), len(touched.Users)
	res.Referrals, res.Referrers = len(touched.Referrals), len(touched.Referrers)

	if res.Counters, err = counters.Recompute(tx); err != nil {
		return err
	}
	return store.RewindCheckpoint(tx, res.ChainID, res.Ancestor)
}

func (h *Handler) begin(chainID uint64) error {
	if _, running := h.active.LoadOrStore(chainID, struct{}{}); running {
		return fmt.Errorf("chain %d: %w", chainID, ErrRollbackInProgress)
	}
	h.states.Store(chainID, indexer.StateRollingBack)
	stateSet(chainID, indexer.StateRollingBack)
	return nil
}

func (h *Handler) end(chainID uint64, state indexer.SyncState) {
	h.states.Store(chainID, state)
	h.active.Delete(chainID)
	stateSet(chainID, state)
}
