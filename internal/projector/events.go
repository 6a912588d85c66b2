package projector

import (
	"math/big"

	"github.com/MorpheusAIs/ponder-builders-index/internal/identity"
	"github.com/MorpheusAIs/ponder-builders-index/pkg/indexer"
	"github.com/ethereum/go-ethereum/common"
)

// Envelope locates a delivered log on its chain.
type Envelope struct {
	ChainID        uint64
	Contract       string
	Address        common.Address
	BlockNumber    uint64
	BlockTimestamp uint64
	TxHash         common.Hash
	LogIndex       uint32
}

// EnvelopeOf extracts the envelope of a delivered event.
func EnvelopeOf(raw indexer.RawEvent) Envelope {
	return Envelope{
		ChainID:        raw.ChainID,
		Contract:       raw.Contract,
		Address:        raw.LogAddress,
		BlockNumber:    raw.Block.Number,
		BlockTimestamp: raw.Block.Timestamp,
		TxHash:         raw.TxHash,
		LogIndex:       raw.LogIndex,
	}
}

// Key is the identity of the log, shared by every record it produces.
func (e Envelope) Key() identity.Key {
	return identity.EventKey(e.ChainID, e.TxHash, e.LogIndex)
}

// Event is the closed set of events the projector understands.
type Event interface {
	// Name is the canonical event name.
	Name() string
	sealed()
}

// Deposit is UserStaked on deposit pools and UserDeposited on builders.
type Deposit struct {
	PoolID common.Hash
	User   common.Address
	Amount *big.Int
}

// Withdraw is UserWithdrawn.
type Withdraw struct {
	PoolID common.Hash
	User   common.Address
	Amount *big.Int
}

// Claim is UserClaimed.
type Claim struct {
	PoolID   common.Hash
	User     common.Address
	Receiver common.Address
	Amount   *big.Int
}

// UserReferred credits a referrer with a referred deposit.
type UserReferred struct {
	PoolID   common.Hash
	User     common.Address
	Referrer common.Address
	Amount   *big.Int
}

// ReferrerClaimed is a referrer reward claim.
type ReferrerClaimed struct {
	PoolID   common.Hash
	Referrer common.Address
	Receiver common.Address
	Amount   *big.Int
}

// SubnetCreated carries the configuration of a new builders subnet.
// Nil fields were not present in the event.
type SubnetCreated struct {
	SubnetID           common.Hash
	SubnetName         *string
	Admin              *common.Address
	ClaimAdmin         *common.Address
	MinimalDeposit     *big.Int
	WithdrawLockPeriod *uint64
	StartsAt           *uint64
	ClaimLockEnd       *uint64
}

// SubnetMetadataEdited replaces the descriptive metadata of a subnet.
// Empty strings are delivered as nil.
type SubnetMetadataEdited struct {
	SubnetID    common.Hash
	Slug        *string
	Description *string
	Website     *string
	Image       *string
}

// Transfer is an ERC-20 transfer of a staked token.
type Transfer struct {
	From  common.Address
	To    common.Address
	Value *big.Int
}

// RewardSent is a treasury payout.
type RewardSent struct {
	Receiver common.Address
	Amount   *big.Int
}

// AdminAction is a proxy, ownership or factory event kept verbatim.
type AdminAction struct {
	Event string
	Args  map[string]string
}

func (Deposit) Name() string              { return "Deposit" }
func (Withdraw) Name() string             { return "Withdraw" }
func (Claim) Name() string                { return "Claim" }
func (UserReferred) Name() string         { return "UserReferred" }
func (ReferrerClaimed) Name() string      { return "ReferrerClaimed" }
func (SubnetCreated) Name() string        { return "SubnetCreated" }
func (SubnetMetadataEdited) Name() string { return "SubnetMetadataEdited" }
func (Transfer) Name() string             { return "Transfer" }
func (RewardSent) Name() string           { return "RewardSent" }
func (a AdminAction) Name() string        { return a.Event }

func (Deposit) sealed()              {}
func (Withdraw) sealed()             {}
func (Claim) sealed()                {}
func (UserReferred) sealed()         {}
func (ReferrerClaimed) sealed()      {}
func (SubnetCreated) sealed()        {}
func (SubnetMetadataEdited) sealed() {}
func (Transfer) sealed()             {}
func (RewardSent) sealed()           {}
func (AdminAction) sealed()          {}
