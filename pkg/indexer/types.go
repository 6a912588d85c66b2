package indexer

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

const (
	DefaultPageLimit = 100
	MaxPageLimit     = 1000
)

// SyncState is the rollback state of a chain.
type SyncState string

const (
	StateFollowing   SyncState = "FOLLOWING"
	StateRollingBack SyncState = "ROLLING_BACK"
	StateCaughtUp    SyncState = "CAUGHT_UP"
)

// Block identifies the block an event was emitted in.
type Block struct {
	Number    uint64 `json:"number"`
	Timestamp uint64 `json:"timestamp"`
}

// RawEvent is a decoded log as delivered by the chain follower. Args holds the
// named event arguments; values may be native Go types (common.Address,
// *big.Int, ...) or their JSON forms (hex and decimal strings, numbers).
type RawEvent struct {
	ChainID    uint64         `json:"chain_id"`
	Contract   string         `json:"contract"`
	Event      string         `json:"event"`
	Args       map[string]any `json:"args"`
	Block      Block          `json:"block"`
	TxHash     common.Hash    `json:"tx_hash"`
	LogAddress common.Address `json:"log_address"`
	LogIndex   uint32         `json:"log_index"`
}

func (e RawEvent) String() string {
	return fmt.Sprintf("%s.%s@%d/%d (chain %d, tx %s)",
		e.Contract, e.Event, e.Block.Number, e.LogIndex, e.ChainID, e.TxHash.Hex())
}

// ChainStatus reports the progress of one chain.
type ChainStatus struct {
	ChainID            uint64    `json:"chain_id" example:"42161"`
	Name               string    `json:"name" example:"arbitrum"`
	State              SyncState `json:"state" example:"FOLLOWING"`
	LastProcessedBlock uint64    `json:"last_processed_block" example:"250000000"`
	HeadBlock          uint64    `json:"head_block,omitempty" example:"250000010"`
	PendingEvents      int       `json:"pending_events"`
	Ready              bool      `json:"ready"`
	// Error is set when the chain worker halted on a failed event.
	Error string `json:"error,omitempty"`
}

// QueryParams represents common filter, sort and pagination parameters.
type QueryParams struct {
	ChainID *uint64

	// Pool is the hex key of a pool
	Pool string
	// Address filters by user, participant or contract address depending on the resource
	Address string
	// Type filters interaction or event types (e.g. "DEPOSIT")
	Type string

	FromBlock *uint64
	ToBlock   *uint64

	Limit  int
	Offset int

	SortBy    string
	SortOrder string // "asc" or "desc"
}

func NewDefaultQueryParams() *QueryParams {
	return &QueryParams{
		Limit:     DefaultPageLimit,
		SortOrder: "desc",
	}
}
