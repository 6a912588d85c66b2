// Package pipeline routes delivered events and rollback notifications to one
// sequential worker per chain. Chains progress independently; within a chain
// every event commits before the next one starts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	internalcommon "github.com/MorpheusAIs/ponder-builders-index/internal/common"
	"github.com/MorpheusAIs/ponder-builders-index/internal/logger"
	"github.com/MorpheusAIs/ponder-builders-index/internal/metrics"
	"github.com/MorpheusAIs/ponder-builders-index/internal/projector"
	"github.com/MorpheusAIs/ponder-builders-index/internal/reorg"
	"github.com/MorpheusAIs/ponder-builders-index/internal/store"
	"github.com/MorpheusAIs/ponder-builders-index/pkg/config"
	"github.com/MorpheusAIs/ponder-builders-index/pkg/indexer"
	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/sync/errgroup"
)

var (
	_ indexer.EventSink      = (*Coordinator)(nil)
	_ indexer.StatusProvider = (*Coordinator)(nil)
)

var (
	// ErrUnknownChain is returned for events of a chain that is not configured.
	ErrUnknownChain = errors.New("unknown chain")

	// ErrChainHalted is returned for events of a chain whose worker stopped on a failure.
	ErrChainHalted = errors.New("chain halted")

	// ErrStopped is returned when the coordinator is not running.
	ErrStopped = errors.New("coordinator stopped")
)

// Projector applies one delivered event.
type Projector interface {
	Handle(ctx context.Context, raw indexer.RawEvent) (projector.Result, error)
}

// RollbackHandler owns the sync state of every chain.
type RollbackHandler interface {
	Rollback(ctx context.Context, chainID, commonAncestor uint64) (*reorg.Result, error)
	State(chainID uint64) indexer.SyncState
	SetCaughtUp(chainID uint64, caughtUp bool) bool
}

// HeadReader reads the latest block of a chain.
type HeadReader interface {
	HasChain(chainID uint64) bool
	LatestBlockNumber(ctx context.Context, chainID uint64) (uint64, error)
}

// CheckpointReader loads the last processed position of every chain.
type CheckpointReader interface {
	Checkpoints(ctx context.Context) ([]*store.Checkpoint, error)
}

// Coordinator implements indexer.EventSink on top of per-chain workers.
type Coordinator struct {
	chains      []config.ChainConfig
	projector   Projector
	rollbacks   RollbackHandler
	heads       HeadReader
	checkpoints CheckpointReader
	workers     *xsync.Map[uint64, *worker]
	log         *logger.Logger
}

// NewCoordinator creates a coordinator with one worker per configured chain.
// heads may be nil, in which case readiness only depends on the sync state.
func NewCoordinator(
	chains []config.ChainConfig,
	proj Projector,
	rollbacks RollbackHandler,
	heads HeadReader,
	checkpoints CheckpointReader,
	log *logger.Logger,
) *Coordinator {
	if log == nil {
		log = logger.NewNopLogger()
	}

	c := &Coordinator{
		chains:      chains,
		projector:   proj,
		rollbacks:   rollbacks,
		heads:       heads,
		checkpoints: checkpoints,
		workers:     xsync.NewMap[uint64, *worker](),
		log:         log,
	}
	for _, chain := range chains {
		c.workers.Store(chain.ChainID, newWorker(chain))
	}
	return c
}

// Run starts the chain workers and head pollers and blocks until ctx is
// cancelled. Halted chains do not stop the others.
func (c *Coordinator) Run(ctx context.Context) error {
	if c.checkpoints != nil {
		cps, err := c.checkpoints.Checkpoints(ctx)
		if err != nil {
			return fmt.Errorf("failed to load checkpoints: %w", err)
		}
		for _, cp := range cps {
			if w, ok := c.workers.Load(cp.ChainID); ok {
				w.lastBlock.Store(cp.LastBlock)
				metrics.LastProcessedBlockSet(cp.ChainID, cp.LastBlock)
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	c.workers.Range(func(chainID uint64, w *worker) bool {
		g.Go(func() error {
			c.runWorker(gctx, w)
			return nil
		})
		if c.heads != nil && c.heads.HasChain(chainID) {
			g.Go(func() error {
				c.pollHead(gctx, w)
				return nil
			})
		}
		return true
	})

	metrics.ComponentHealthSet(internalcommon.ComponentCoordinator, true)
	c.log.Infow("coordinator started", "chains", len(c.chains))

	err := g.Wait()
	metrics.ComponentHealthSet(internalcommon.ComponentCoordinator, false)
	c.log.Info("coordinator stopped")
	return err
}

// OnEvent queues an event on its chain worker and waits until it is committed.
func (c *Coordinator) OnEvent(ctx context.Context, event indexer.RawEvent) error {
	ev := event
	return c.submit(ctx, event.ChainID, job{event: &ev})
}

// OnRollback queues a rollback behind the events already delivered for the
// chain and waits for it to complete.
func (c *Coordinator) OnRollback(ctx context.Context, chainID uint64, commonAncestor uint64) error {
	return c.submit(ctx, chainID, job{rollback: true, ancestor: commonAncestor})
}

func (c *Coordinator) submit(ctx context.Context, chainID uint64, j job) error {
	w, ok := c.workers.Load(chainID)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownChain, chainID)
	}

	j.done = make(chan error, 1)
	select {
	case w.queue <- j:
		metrics.QueueDepthSet(chainID, len(w.queue))
	case <-w.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-j.done:
		return err
	case <-w.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) runWorker(ctx context.Context, w *worker) {
	defer close(w.stopped)

	for {
		select {
		case <-ctx.Done():
			return
		case j := <-w.queue:
			metrics.QueueDepthSet(w.chain.ChainID, len(w.queue))
			if j.rollback {
				j.done <- c.rollback(ctx, w, j.ancestor)
				continue
			}
			j.done <- c.process(ctx, w, *j.event)
		}
	}
}

func (c *Coordinator) process(ctx context.Context, w *worker, ev indexer.RawEvent) error {
	if err := w.haltErr(); err != nil {
		return fmt.Errorf("chain %d: %w: %w", w.chain.ChainID, ErrChainHalted, err)
	}
	if c.rollbacks.State(w.chain.ChainID) == indexer.StateRollingBack {
		return fmt.Errorf("chain %d: %w: rollback did not complete", w.chain.ChainID, ErrChainHalted)
	}

	start := time.Now()
	res, err := c.projector.Handle(ctx, ev)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		metrics.EventDeliveredLog(w.chain.ChainID, "error", time.Since(start))
		c.halt(w, err)
		return err
	}

	outcome := "applied"
	if res.Duplicate {
		outcome = "duplicate"
	}
	metrics.EventDeliveredLog(w.chain.ChainID, outcome, time.Since(start))
	c.log.Debugw("event processed", "chain_id", w.chain.ChainID, "event", ev.String(), "outcome", outcome)

	if ev.Block.Number > w.lastBlock.Load() {
		w.lastBlock.Store(ev.Block.Number)
		metrics.LastProcessedBlockSet(w.chain.ChainID, ev.Block.Number)
	}
	c.refreshCaughtUp(w)
	return nil
}

func (c *Coordinator) rollback(ctx context.Context, w *worker, ancestor uint64) error {
	res, err := c.rollbacks.Rollback(ctx, w.chain.ChainID, ancestor)
	if err != nil {
		c.halt(w, err)
		return err
	}

	// a rollback past the failed event discards it, so the chain may resume
	if w.haltErr() != nil {
		c.log.Infow("resuming halted chain after rollback", "chain_id", w.chain.ChainID, "common_ancestor", ancestor)
	}
	w.setHalt(nil)
	metrics.ChainHaltedSet(w.chain.ChainID, false)

	if ancestor < w.lastBlock.Load() {
		w.lastBlock.Store(ancestor)
		metrics.LastProcessedBlockSet(w.chain.ChainID, ancestor)
	}
	c.log.Infow("chain rolled back",
		"chain_id", w.chain.ChainID, "common_ancestor", ancestor, "depth", res.Depth)
	c.refreshCaughtUp(w)
	return nil
}

func (c *Coordinator) halt(w *worker, err error) {
	w.setHalt(err)
	metrics.ChainHaltedSet(w.chain.ChainID, true)
	metrics.ErrorsInc(internalcommon.ComponentCoordinator, "fatal")
	c.log.Errorw("chain halted, waiting for operator or rollback",
		"chain_id", w.chain.ChainID, "last_processed_block", w.lastBlock.Load(), "error", err)
}

// refreshCaughtUp moves the chain between FOLLOWING and CAUGHT_UP. Without a
// known head a chain stays FOLLOWING.
func (c *Coordinator) refreshCaughtUp(w *worker) {
	head := w.head.Load()
	if head == 0 {
		return
	}
	caughtUp := w.lastBlock.Load()+w.chain.ReadinessLag >= head
	if c.rollbacks.SetCaughtUp(w.chain.ChainID, caughtUp) {
		c.log.Infow("chain sync state changed",
			"chain_id", w.chain.ChainID, "state", c.rollbacks.State(w.chain.ChainID), "head", head)
	}
}

func (c *Coordinator) pollHead(ctx context.Context, w *worker) {
	interval := w.chain.HeadPollInterval.Duration
	if interval <= 0 {
		interval = 12 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		head, err := c.heads.LatestBlockNumber(ctx, w.chain.ChainID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warnw("failed to read chain head", "chain_id", w.chain.ChainID, "error", err)
		} else {
			w.head.Store(head)
			metrics.HeadBlockSet(w.chain.ChainID, head)
			c.refreshCaughtUp(w)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ChainStatuses reports every configured chain in configuration order.
func (c *Coordinator) ChainStatuses(_ context.Context) []indexer.ChainStatus {
	out := make([]indexer.ChainStatus, 0, len(c.chains))
	for _, chain := range c.chains {
		w, ok := c.workers.Load(chain.ChainID)
		if !ok {
			continue
		}
		out = append(out, c.status(w))
	}
	return out
}

func (c *Coordinator) status(w *worker) indexer.ChainStatus {
	st := indexer.ChainStatus{
		ChainID:            w.chain.ChainID,
		Name:               w.chain.Name,
		State:              c.rollbacks.State(w.chain.ChainID),
		LastProcessedBlock: w.lastBlock.Load(),
		HeadBlock:          w.head.Load(),
		PendingEvents:      len(w.queue),
	}
	if err := w.haltErr(); err != nil {
		st.Error = err.Error()
	}

	st.Ready = st.State != indexer.StateRollingBack && st.Error == ""
	if st.Ready && c.heads != nil && c.heads.HasChain(w.chain.ChainID) {
		st.Ready = st.HeadBlock > 0 && st.LastProcessedBlock+w.chain.ReadinessLag >= st.HeadBlock
	}
	return st
}
