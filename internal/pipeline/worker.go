package pipeline

import (
	"sync"
	"sync/atomic"

	"github.com/MorpheusAIs/ponder-builders-index/pkg/config"
	"github.com/MorpheusAIs/ponder-builders-index/pkg/indexer"
)

type job struct {
	event    *indexer.RawEvent
	rollback bool
	ancestor uint64
	done     chan error
}

// worker is the sequential executor of one chain.
type worker struct {
	chain   config.ChainConfig
	queue   chan job
	stopped chan struct{}

	lastBlock atomic.Uint64
	head      atomic.Uint64

	mu     sync.Mutex
	halted error
}

func newWorker(chain config.ChainConfig) *worker {
	size := chain.QueueSize
	if size <= 0 {
		size = 1
	}
	return &worker{
		chain:   chain,
		queue:   make(chan job, size),
		stopped: make(chan struct{}),
	}
}

func (w *worker) haltErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.halted
}

func (w *worker) setHalt(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.halted = err
}
