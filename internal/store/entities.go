package store

import (
	"math/big"

	"github.com/MorpheusAIs/ponder-builders-index/internal/identity"
	"github.com/ethereum/go-ethereum/common"
)

// Pool families.
const (
	FamilyDepositPool = "deposit_pool"
	FamilyBuilders    = "builders"
)

// InteractionType is the kind of a staking interaction.
type InteractionType string

const (
	InteractionDeposit  InteractionType = "DEPOSIT"
	InteractionWithdraw InteractionType = "WITHDRAW"
	InteractionClaim    InteractionType = "CLAIM"
)

// BalanceSource records where the post-event balance of an interaction came from.
type BalanceSource string

const (
	// BalanceFromChain is an authoritative contract read at the event block.
	BalanceFromChain BalanceSource = "chain"
	// BalanceFromEvent is the previous balance adjusted by the event amount,
	// used when the contract read failed.
	BalanceFromEvent BalanceSource = "event"
	// BalanceNotRead is used by claims, which never re-read balances.
	BalanceNotRead BalanceSource = "none"
)

// PoolChangeSource tells how a pool change was produced.
type PoolChangeSource string

const (
	ChangeCreated     PoolChangeSource = "created"
	ChangeLazy        PoolChangeSource = "lazy"
	ChangeMetadata    PoolChangeSource = "metadata"
	ChangeSynthesized PoolChangeSource = "synthesized"
)

// ReferralEventType is the kind of a referral log entry.
type ReferralEventType string

const (
	ReferralReferred        ReferralEventType = "REFERRED"
	ReferralReferrerClaimed ReferralEventType = "REFERRER_CLAIMED"
)

// Pool is one staking pool (a reward pool of a deposit pool contract, or a builders subnet).
type Pool struct {
	Key                identity.Key    `meddler:"id,key"`
	ChainID            uint64          `meddler:"chain_id"`
	Family             string          `meddler:"family"`
	Contract           string          `meddler:"contract"`
	ContractAddress    common.Address  `meddler:"contract_address,address"`
	PoolID             common.Hash     `meddler:"pool_id,hash"`
	Placeholder        bool            `meddler:"placeholder"`
	Name               string          `meddler:"name,zeroisnull"`
	Admin              *common.Address `meddler:"admin,address"`
	ClaimAdmin         *common.Address `meddler:"claim_admin,address"`
	MinimalDeposit     *big.Int        `meddler:"minimal_deposit,bigint"`
	WithdrawLockPeriod uint64          `meddler:"withdraw_lock_period"`
	ClaimLockEnd       uint64          `meddler:"claim_lock_end"`
	StartsAt           uint64          `meddler:"starts_at"`
	Slug               string          `meddler:"slug,zeroisnull"`
	Description        string          `meddler:"description,zeroisnull"`
	Website            string          `meddler:"website,zeroisnull"`
	Image              string          `meddler:"image,zeroisnull"`
	TotalStaked        *big.Int        `meddler:"total_staked,bigint"`
	TotalUsers         uint64          `meddler:"total_users"`
	TotalClaimed       *big.Int        `meddler:"total_claimed,bigint"`
	CreatedAtBlock     uint64          `meddler:"created_at_block"`
	CreatedAtTimestamp uint64          `meddler:"created_at_timestamp"`
}

// NewPool returns an empty placeholder pool. Configuration arrives through PoolPatch.
func NewPool(key identity.Key, family, contract string, address common.Address, poolID common.Hash,
	block, timestamp uint64) *Pool {
	return &Pool{
		Key:                key,
		ChainID:            key.ChainID(),
		Family:             family,
		Contract:           contract,
		ContractAddress:    address,
		PoolID:             poolID,
		Placeholder:        true,
		MinimalDeposit:     new(big.Int),
		TotalStaked:        new(big.Int),
		TotalClaimed:       new(big.Int),
		CreatedAtBlock:     block,
		CreatedAtTimestamp: timestamp,
	}
}

// User is the position of one address in one pool.
type User struct {
	Key                identity.Key   `meddler:"id,key"`
	PoolKey            identity.Key   `meddler:"pool_key,key"`
	ChainID            uint64         `meddler:"chain_id"`
	Address            common.Address `meddler:"address,address"`
	Staked             *big.Int       `meddler:"staked,bigint"`
	Claimed            *big.Int       `meddler:"claimed,bigint"`
	VirtualDeposited   *big.Int       `meddler:"virtual_deposited,bigint"`
	LastStakeTimestamp uint64         `meddler:"last_stake_timestamp"`
	LastDepositAmount  *big.Int       `meddler:"last_deposit_amount,bigint"`
	ClaimLockStart     uint64         `meddler:"claim_lock_start"`
	ClaimLockEnd       uint64         `meddler:"claim_lock_end"`
	Rate               *big.Int       `meddler:"rate,bigint"`
	CreatedAtBlock     uint64         `meddler:"created_at_block"`
}

// NewUser returns a zero-state user.
func NewUser(pool identity.Key, address common.Address, block uint64) *User {
	return &User{
		Key:               identity.UserKey(pool, address),
		PoolKey:           pool,
		ChainID:           pool.ChainID(),
		Address:           address,
		Staked:            new(big.Int),
		Claimed:           new(big.Int),
		VirtualDeposited:  new(big.Int),
		LastDepositAmount: new(big.Int),
		Rate:              new(big.Int),
		CreatedAtBlock:    block,
	}
}

// Referral is the cumulative amount one user was referred for by one referrer in a pool.
type Referral struct {
	Key             identity.Key   `meddler:"id,key"`
	ChainID         uint64         `meddler:"chain_id"`
	PoolKey         identity.Key   `meddler:"pool_key,key"`
	UserAddress     common.Address `meddler:"user_address,address"`
	ReferrerAddress common.Address `meddler:"referrer_address,address"`
	Amount          *big.Int       `meddler:"amount,bigint"`
	CreatedAtBlock  uint64         `meddler:"created_at_block"`
	UpdatedAtBlock  uint64         `meddler:"updated_at_block"`
}

// NewReferral returns a referral with a zero amount.
func NewReferral(pool identity.Key, user, referrer common.Address, block uint64) *Referral {
	return &Referral{
		Key:             identity.ReferralKey(pool, user, referrer),
		ChainID:         pool.ChainID(),
		PoolKey:         pool,
		UserAddress:     user,
		ReferrerAddress: referrer,
		Amount:          new(big.Int),
		CreatedAtBlock:  block,
		UpdatedAtBlock:  block,
	}
}

// Referrer accumulates referred amounts and referrer claims in a pool.
type Referrer struct {
	Key             identity.Key   `meddler:"id,key"`
	ChainID         uint64         `meddler:"chain_id"`
	PoolKey         identity.Key   `meddler:"pool_key,key"`
	ReferrerAddress common.Address `meddler:"referrer_address,address"`
	ReferredAmount  *big.Int       `meddler:"referred_amount,bigint"`
	Claimed         *big.Int       `meddler:"claimed,bigint"`
	CreatedAtBlock  uint64         `meddler:"created_at_block"`
	UpdatedAtBlock  uint64         `meddler:"updated_at_block"`
}

// NewReferrer returns a referrer with zero totals.
func NewReferrer(pool identity.Key, referrer common.Address, block uint64) *Referrer {
	return &Referrer{
		Key:             identity.ReferrerKey(pool, referrer),
		ChainID:         pool.ChainID(),
		PoolKey:         pool,
		ReferrerAddress: referrer,
		ReferredAmount:  new(big.Int),
		Claimed:         new(big.Int),
		CreatedAtBlock:  block,
		UpdatedAtBlock:  block,
	}
}

// GlobalCounters is the singleton row of denormalized totals.
type GlobalCounters struct {
	ID                    string   `meddler:"id"`
	TotalPools            uint64   `meddler:"total_pools"`
	TotalUsers            uint64   `meddler:"total_users"`
	TotalUsersAcrossPools uint64   `meddler:"total_users_across_pools"`
	TotalStaked           *big.Int `meddler:"total_staked,bigint"`
	TotalClaimed          *big.Int `meddler:"total_claimed,bigint"`
	LastUpdated           uint64   `meddler:"last_updated"`
}

// CountersID is the id of the only GlobalCounters row.
const CountersID = "global"

// Interaction is an immutable deposit, withdraw or claim record.
type Interaction struct {
	Key                   identity.Key    `meddler:"id,key"`
	ChainID               uint64          `meddler:"chain_id"`
	PoolKey               identity.Key    `meddler:"pool_key,key"`
	UserKey               identity.Key    `meddler:"user_key,key"`
	UserAddress           common.Address  `meddler:"user_address,address"`
	Type                  InteractionType `meddler:"type"`
	Amount                *big.Int        `meddler:"amount,bigint"`
	Receiver              *common.Address `meddler:"receiver,address"`
	BalanceAfter          *big.Int        `meddler:"balance_after,bigint"`
	StakedDelta           *big.Int        `meddler:"staked_delta,bigint"`
	VirtualDepositedAfter *big.Int        `meddler:"virtual_deposited_after,bigint"`
	ClaimLockStartAfter   uint64          `meddler:"claim_lock_start_after"`
	ClaimLockEndAfter     uint64          `meddler:"claim_lock_end_after"`
	Rate                  *big.Int        `meddler:"rate,bigint"`
	BalanceSource         BalanceSource   `meddler:"balance_source"`
	NewUser               bool            `meddler:"new_user"`
	PoolTotalStaked       *big.Int        `meddler:"pool_total_staked,bigint"`
	BlockNumber           uint64          `meddler:"block_number"`
	BlockTimestamp        uint64          `meddler:"block_timestamp"`
	TxHash                common.Hash     `meddler:"tx_hash,hash"`
	LogIndex              uint32          `meddler:"log_index"`
}

// PoolPatch is a merge patch for pool configuration. Nil fields leave the
// current value untouched.
type PoolPatch struct {
	Name               *string         `json:"name,omitempty"`
	Admin              *common.Address `json:"admin,omitempty"`
	ClaimAdmin         *common.Address `json:"claim_admin,omitempty"`
	MinimalDeposit     *big.Int        `json:"minimal_deposit,omitempty"`
	WithdrawLockPeriod *uint64         `json:"withdraw_lock_period,omitempty"`
	ClaimLockEnd       *uint64         `json:"claim_lock_end,omitempty"`
	StartsAt           *uint64         `json:"starts_at,omitempty"`
	Slug               *string         `json:"slug,omitempty"`
	Description        *string         `json:"description,omitempty"`
	Website            *string         `json:"website,omitempty"`
	Image              *string         `json:"image,omitempty"`
}

// ApplyTo overwrites the pool fields that are set in the patch.
func (p PoolPatch) ApplyTo(pool *Pool) {
	setIf(&pool.Name, p.Name)
	setIf(&pool.WithdrawLockPeriod, p.WithdrawLockPeriod)
	setIf(&pool.ClaimLockEnd, p.ClaimLockEnd)
	setIf(&pool.StartsAt, p.StartsAt)
	setIf(&pool.Slug, p.Slug)
	setIf(&pool.Description, p.Description)
	setIf(&pool.Website, p.Website)
	setIf(&pool.Image, p.Image)

	if p.Admin != nil {
		admin := *p.Admin
		pool.Admin = &admin
	}
	if p.ClaimAdmin != nil {
		claimAdmin := *p.ClaimAdmin
		pool.ClaimAdmin = &claimAdmin
	}
	if p.MinimalDeposit != nil {
		pool.MinimalDeposit = new(big.Int).Set(p.MinimalDeposit)
	}
}

// Merge returns p with every field set in o overwritten by o.
func (p PoolPatch) Merge(o PoolPatch) PoolPatch {
	override(&p.Name, o.Name)
	override(&p.Admin, o.Admin)
	override(&p.ClaimAdmin, o.ClaimAdmin)
	override(&p.MinimalDeposit, o.MinimalDeposit)
	override(&p.WithdrawLockPeriod, o.WithdrawLockPeriod)
	override(&p.ClaimLockEnd, o.ClaimLockEnd)
	override(&p.StartsAt, o.StartsAt)
	override(&p.Slug, o.Slug)
	override(&p.Description, o.Description)
	override(&p.Website, o.Website)
	override(&p.Image, o.Image)
	return p
}

// IsEmpty reports whether the patch sets no field.
func (p PoolPatch) IsEmpty() bool {
	return p == PoolPatch{}
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func override[T any](dst **T, src *T) {
	if src != nil {
		*dst = src
	}
}

// PoolChange is an immutable record of a patch applied to a pool.
type PoolChange struct {
	EventKey       identity.Key     `meddler:"event_key,key"`
	ChainID        uint64           `meddler:"chain_id"`
	PoolKey        identity.Key     `meddler:"pool_key,key"`
	Source         PoolChangeSource `meddler:"source"`
	CreatesPool    bool             `meddler:"creates_pool"`
	Patch          PoolPatch        `meddler:"patch,json"`
	BlockNumber    uint64           `meddler:"block_number"`
	BlockTimestamp uint64           `meddler:"block_timestamp"`
	LogIndex       uint32           `meddler:"log_index"`
}

// ReferralEvent is an immutable UserReferred or ReferrerClaimed record.
type ReferralEvent struct {
	Key             identity.Key      `meddler:"id,key"`
	ChainID         uint64            `meddler:"chain_id"`
	PoolKey         identity.Key      `meddler:"pool_key,key"`
	Type            ReferralEventType `meddler:"type"`
	UserAddress     *common.Address   `meddler:"user_address,address"`
	ReferrerAddress common.Address    `meddler:"referrer_address,address"`
	Receiver        *common.Address   `meddler:"receiver,address"`
	Amount          *big.Int          `meddler:"amount,bigint"`
	BlockNumber     uint64            `meddler:"block_number"`
	BlockTimestamp  uint64            `meddler:"block_timestamp"`
	TxHash          common.Hash       `meddler:"tx_hash,hash"`
	LogIndex        uint32            `meddler:"log_index"`
}

// AdminEvent is a proxy, ownership or factory event stored verbatim.
type AdminEvent struct {
	Key             identity.Key      `meddler:"id,key"`
	ChainID         uint64            `meddler:"chain_id"`
	Contract        string            `meddler:"contract"`
	ContractAddress common.Address    `meddler:"contract_address,address"`
	Event           string            `meddler:"event"`
	Args            map[string]string `meddler:"args,json"`
	BlockNumber     uint64            `meddler:"block_number"`
	BlockTimestamp  uint64            `meddler:"block_timestamp"`
	TxHash          common.Hash       `meddler:"tx_hash,hash"`
	LogIndex        uint32            `meddler:"log_index"`
}

// Transfer is a token transfer classified against the pool contract addresses.
type Transfer struct {
	Key               identity.Key   `meddler:"id,key"`
	ChainID           uint64         `meddler:"chain_id"`
	Contract          string         `meddler:"contract"`
	TokenAddress      common.Address `meddler:"token_address,address"`
	From              common.Address `meddler:"from_address,address"`
	To                common.Address `meddler:"to_address,address"`
	Value             *big.Int       `meddler:"value,bigint"`
	IsStakingDeposit  bool           `meddler:"is_staking_deposit"`
	IsStakingWithdraw bool           `meddler:"is_staking_withdraw"`
	BlockNumber       uint64         `meddler:"block_number"`
	BlockTimestamp    uint64         `meddler:"block_timestamp"`
	TxHash            common.Hash    `meddler:"tx_hash,hash"`
	LogIndex          uint32         `meddler:"log_index"`
}

// RewardDistribution is a treasury payout.
type RewardDistribution struct {
	Key             identity.Key   `meddler:"id,key"`
	ChainID         uint64         `meddler:"chain_id"`
	Contract        string         `meddler:"contract"`
	TreasuryAddress common.Address `meddler:"treasury_address,address"`
	Receiver        common.Address `meddler:"receiver,address"`
	Amount          *big.Int       `meddler:"amount,bigint"`
	BlockNumber     uint64         `meddler:"block_number"`
	BlockTimestamp  uint64         `meddler:"block_timestamp"`
	TxHash          common.Hash    `meddler:"tx_hash,hash"`
	LogIndex        uint32         `meddler:"log_index"`
}

// ProcessedEvent marks a delivered event as applied.
type ProcessedEvent struct {
	Key         identity.Key `meddler:"id,key"`
	ChainID     uint64       `meddler:"chain_id"`
	BlockNumber uint64       `meddler:"block_number"`
	Contract    string       `meddler:"contract"`
	Event       string       `meddler:"event"`
}

// Checkpoint is the last event applied on a chain.
type Checkpoint struct {
	ChainID      uint64 `meddler:"chain_id"`
	LastBlock    uint64 `meddler:"last_block"`
	LastLogIndex uint32 `meddler:"last_log_index"`
}
