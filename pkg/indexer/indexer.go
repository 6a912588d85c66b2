package indexer

import (
	"context"
)

// EventSink consumes the ordered stream produced by a chain follower.
//
// Events for one chain must be delivered in ascending (block, log index) order.
// Delivery is at least once: redelivering an event that was already applied is a no-op.
type EventSink interface {
	// OnEvent applies one decoded event. It returns once the event's
	// transaction has committed.
	OnEvent(ctx context.Context, event RawEvent) error

	// OnRollback invalidates every event above commonAncestor on the chain.
	// Events for the invalidated range are expected to be redelivered.
	OnRollback(ctx context.Context, chainID uint64, commonAncestor uint64) error
}

// StatusProvider exposes per-chain progress for readiness checks.
type StatusProvider interface {
	ChainStatuses(ctx context.Context) []ChainStatus
}
