package api

import (
	"math/big"
	"time"

	"github.com/MorpheusAIs/ponder-builders-index/internal/store"
	"github.com/MorpheusAIs/ponder-builders-index/pkg/indexer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ListResponse is a page of rows.
type ListResponse struct {
	Data       any              `json:"data"`
	Pagination PaginationResult `json:"pagination"`
}

// PaginationResult contains pagination metadata.
type PaginationResult struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status    string                `json:"status"`
	Timestamp time.Time             `json:"timestamp"`
	Chains    []indexer.ChainStatus `json:"chains"`
}

// ReadyResponse is returned by the readiness probe.
type ReadyResponse struct {
	Ready  bool                  `json:"ready"`
	Chains []indexer.ChainStatus `json:"chains"`
}

// Amount is a uint256 token amount in base units plus its token-unit form.
type Amount struct {
	Raw       string `json:"raw" example:"1500000000000000000"`
	Formatted string `json:"formatted" example:"1.5"`
}

func newAmount(v *big.Int, decimals int32) Amount {
	if v == nil {
		v = new(big.Int)
	}
	return Amount{
		Raw:       v.String(),
		Formatted: decimal.NewFromBigInt(v, -decimals).String(),
	}
}

// StatsResponse holds the global counters.
type StatsResponse struct {
	TotalPools            uint64           `json:"total_pools"`
	TotalUsers            uint64           `json:"total_users"`
	TotalUsersAcrossPools uint64           `json:"total_users_across_pools"`
	TotalStaked           string           `json:"total_staked"`
	TotalClaimed          string           `json:"total_claimed"`
	LastUpdated           uint64           `json:"last_updated"`
	Rows                  map[string]int64 `json:"rows,omitempty"`
}

// PoolResponse is a staking pool or builders subnet.
type PoolResponse struct {
	ID                 string          `json:"id"`
	ChainID            uint64          `json:"chain_id"`
	Family             string          `json:"family"`
	Contract           string          `json:"contract"`
	ContractAddress    common.Address  `json:"contract_address"`
	PoolID             common.Hash     `json:"pool_id"`
	Placeholder        bool            `json:"placeholder"`
	Name               string          `json:"name,omitempty"`
	Admin              *common.Address `json:"admin,omitempty"`
	ClaimAdmin         *common.Address `json:"claim_admin,omitempty"`
	MinimalDeposit     Amount          `json:"minimal_deposit"`
	WithdrawLockPeriod uint64          `json:"withdraw_lock_period"`
	ClaimLockEnd       uint64          `json:"claim_lock_end"`
	StartsAt           uint64          `json:"starts_at"`
	Slug               string          `json:"slug,omitempty"`
	Description        string          `json:"description,omitempty"`
	Website            string          `json:"website,omitempty"`
	Image              string          `json:"image,omitempty"`
	TotalStaked        Amount          `json:"total_staked"`
	TotalUsers         uint64          `json:"total_users"`
	TotalClaimed       Amount          `json:"total_claimed"`
	CreatedAtBlock     uint64          `json:"created_at_block"`
	CreatedAtTimestamp uint64          `json:"created_at_timestamp"`
}

func newPoolResponse(p *store.Pool, decimals int32) PoolResponse {
	return PoolResponse{
		ID:                 p.Key.Hex(),
		ChainID:            p.ChainID,
		Family:             p.Family,
		Contract:           p.Contract,
		ContractAddress:    p.ContractAddress,
		PoolID:             p.PoolID,
		Placeholder:        p.Placeholder,
		Name:               p.Name,
		Admin:              p.Admin,
		ClaimAdmin:         p.ClaimAdmin,
		MinimalDeposit:     newAmount(p.MinimalDeposit, decimals),
		WithdrawLockPeriod: p.WithdrawLockPeriod,
		ClaimLockEnd:       p.ClaimLockEnd,
		StartsAt:           p.StartsAt,
		Slug:               p.Slug,
		Description:        p.Description,
		Website:            p.Website,
		Image:              p.Image,
		TotalStaked:        newAmount(p.TotalStaked, decimals),
		TotalUsers:         p.TotalUsers,
		TotalClaimed:       newAmount(p.TotalClaimed, decimals),
		CreatedAtBlock:     p.CreatedAtBlock,
		CreatedAtTimestamp: p.CreatedAtTimestamp,
	}
}

// UserResponse is the position of an address in a pool.
type UserResponse struct {
	ID                 string         `json:"id"`
	Pool               string         `json:"pool"`
	ChainID            uint64         `json:"chain_id"`
	Address            common.Address `json:"address"`
	Staked             Amount         `json:"staked"`
	Claimed            Amount         `json:"claimed"`
	VirtualDeposited   Amount         `json:"virtual_deposited"`
	LastStakeTimestamp uint64         `json:"last_stake_timestamp"`
	LastDepositAmount  Amount         `json:"last_deposit_amount"`
	ClaimLockStart     uint64         `json:"claim_lock_start"`
	ClaimLockEnd       uint64         `json:"claim_lock_end"`
	Rate               string         `json:"rate" example:"0"`
	CreatedAtBlock     uint64         `json:"created_at_block"`
}

func newUserResponse(u *store.User, decimals int32) UserResponse {
	return UserResponse{
		ID:                 u.Key.Hex(),
		Pool:               u.PoolKey.Hex(),
		ChainID:            u.ChainID,
		Address:            u.Address,
		Staked:             newAmount(u.Staked, decimals),
		Claimed:            newAmount(u.Claimed, decimals),
		VirtualDeposited:   newAmount(u.VirtualDeposited, decimals),
		LastStakeTimestamp: u.LastStakeTimestamp,
		LastDepositAmount:  newAmount(u.LastDepositAmount, decimals),
		ClaimLockStart:     u.ClaimLockStart,
		ClaimLockEnd:       u.ClaimLockEnd,
		Rate:               u.Rate.String(),
		CreatedAtBlock:     u.CreatedAtBlock,
	}
}

// InteractionResponse is a deposit, withdraw or claim.
type InteractionResponse struct {
	ID             string          `json:"id"`
	Pool           string          `json:"pool"`
	User           string          `json:"user"`
	ChainID        uint64          `json:"chain_id"`
	UserAddress    common.Address  `json:"user_address"`
	Type           string          `json:"type" example:"DEPOSIT"`
	Amount         Amount          `json:"amount"`
	Receiver       *common.Address `json:"receiver,omitempty"`
	BalanceAfter   Amount          `json:"balance_after"`
	BalanceSource  string          `json:"balance_source" example:"CHAIN_READ"`
	Rate           string          `json:"rate" example:"0"`
	BlockNumber    uint64          `json:"block_number"`
	BlockTimestamp uint64          `json:"block_timestamp"`
	TxHash         common.Hash     `json:"tx_hash"`
	LogIndex       uint32          `json:"log_index"`
}

func newInteractionResponse(i *store.Interaction, decimals int32) InteractionResponse {
	return InteractionResponse{
		ID:             i.Key.Hex(),
		Pool:           i.PoolKey.Hex(),
		User:           i.UserKey.Hex(),
		ChainID:        i.ChainID,
		UserAddress:    i.UserAddress,
		Type:           string(i.Type),
		Amount:         newAmount(i.Amount, decimals),
		Receiver:       i.Receiver,
		BalanceAfter:   newAmount(i.BalanceAfter, decimals),
		BalanceSource:  string(i.BalanceSource),
		Rate:           i.Rate.String(),
		BlockNumber:    i.BlockNumber,
		BlockTimestamp: i.BlockTimestamp,
		TxHash:         i.TxHash,
		LogIndex:       i.LogIndex,
	}
}

// ReferralResponse is the cumulative referral of a user by a referrer.
type ReferralResponse struct {
	ID              string         `json:"id"`
	Pool            string         `json:"pool"`
	ChainID         uint64         `json:"chain_id"`
	UserAddress     common.Address `json:"user_address"`
	ReferrerAddress common.Address `json:"referrer_address"`
	Amount          Amount         `json:"amount"`
	CreatedAtBlock  uint64         `json:"created_at_block"`
	UpdatedAtBlock  uint64         `json:"updated_at_block"`
}

func newReferralResponse(r *store.Referral, decimals int32) ReferralResponse {
	return ReferralResponse{
		ID:              r.Key.Hex(),
		Pool:            r.PoolKey.Hex(),
		ChainID:         r.ChainID,
		UserAddress:     r.UserAddress,
		ReferrerAddress: r.ReferrerAddress,
		Amount:          newAmount(r.Amount, decimals),
		CreatedAtBlock:  r.CreatedAtBlock,
		UpdatedAtBlock:  r.UpdatedAtBlock,
	}
}

// ReferrerResponse holds the totals of a referrer in a pool.
type ReferrerResponse struct {
	ID              string         `json:"id"`
	Pool            string         `json:"pool"`
	ChainID         uint64         `json:"chain_id"`
	ReferrerAddress common.Address `json:"referrer_address"`
	ReferredAmount  Amount         `json:"referred_amount"`
	Claimed         Amount         `json:"claimed"`
	CreatedAtBlock  uint64         `json:"created_at_block"`
	UpdatedAtBlock  uint64         `json:"updated_at_block"`
}

func newReferrerResponse(r *store.Referrer, decimals int32) ReferrerResponse {
	return ReferrerResponse{
		ID:              r.Key.Hex(),
		Pool:            r.PoolKey.Hex(),
		ChainID:         r.ChainID,
		ReferrerAddress: r.ReferrerAddress,
		ReferredAmount:  newAmount(r.ReferredAmount, decimals),
		Claimed:         newAmount(r.Claimed, decimals),
		CreatedAtBlock:  r.CreatedAtBlock,
		UpdatedAtBlock:  r.UpdatedAtBlock,
	}
}

// TransferResponse is a classified token transfer.
type TransferResponse struct {
	ID                string         `json:"id"`
	ChainID           uint64         `json:"chain_id"`
	Contract          string         `json:"contract"`
	TokenAddress      common.Address `json:"token_address"`
	From              common.Address `json:"from"`
	To                common.Address `json:"to"`
	Value             Amount         `json:"value"`
	IsStakingDeposit  bool           `json:"is_staking_deposit"`
	IsStakingWithdraw bool           `json:"is_staking_withdraw"`
	BlockNumber       uint64         `json:"block_number"`
	BlockTimestamp    uint64         `json:"block_timestamp"`
	TxHash            common.Hash    `json:"tx_hash"`
	LogIndex          uint32         `json:"log_index"`
}

func newTransferResponse(t *store.Transfer, decimals int32) TransferResponse {
	return TransferResponse{
		ID:                t.Key.Hex(),
		ChainID:           t.ChainID,
		Contract:          t.Contract,
		TokenAddress:      t.TokenAddress,
		From:              t.From,
		To:                t.To,
		Value:             newAmount(t.Value, decimals),
		IsStakingDeposit:  t.IsStakingDeposit,
		IsStakingWithdraw: t.IsStakingWithdraw,
		BlockNumber:       t.BlockNumber,
		BlockTimestamp:    t.BlockTimestamp,
		TxHash:            t.TxHash,
		LogIndex:          t.LogIndex,
	}
}

// AdminEventResponse is a proxy, ownership or factory event.
type AdminEventResponse struct {
	ID              string            `json:"id"`
	ChainID         uint64            `json:"chain_id"`
	Contract        string            `json:"contract"`
	ContractAddress common.Address    `json:"contract_address"`
	Event           string            `json:"event"`
	Args            map[string]string `json:"args"`
	BlockNumber     uint64            `json:"block_number"`
	BlockTimestamp  uint64            `json:"block_timestamp"`
	TxHash          common.Hash       `json:"tx_hash"`
	LogIndex        uint32            `json:"log_index"`
}

func newAdminEventResponse(e *store.AdminEvent) AdminEventResponse {
	return AdminEventResponse{
		ID:              e.Key.Hex(),
		ChainID:         e.ChainID,
		Contract:        e.Contract,
		ContractAddress: e.ContractAddress,
		Event:           e.Event,
		Args:            e.Args,
		BlockNumber:     e.BlockNumber,
		BlockTimestamp:  e.BlockTimestamp,
		TxHash:          e.TxHash,
		LogIndex:        e.LogIndex,
	}
}

// RewardResponse is a treasury payout.
type RewardResponse struct {
	ID              string         `json:"id"`
	ChainID         uint64         `json:"chain_id"`
	Contract        string         `json:"contract"`
	TreasuryAddress common.Address `json:"treasury_address"`
	Receiver        common.Address `json:"receiver"`
	Amount          Amount         `json:"amount"`
	BlockNumber     uint64         `json:"block_number"`
	BlockTimestamp  uint64         `json:"block_timestamp"`
	TxHash          common.Hash    `json:"tx_hash"`
	LogIndex        uint32         `json:"log_index"`
}

func newRewardResponse(r *store.RewardDistribution, decimals int32) RewardResponse {
	return RewardResponse{
		ID:              r.Key.Hex(),
		ChainID:         r.ChainID,
		Contract:        r.Contract,
		TreasuryAddress: r.TreasuryAddress,
		Receiver:        r.Receiver,
		Amount:          newAmount(r.Amount, decimals),
		BlockNumber:     r.BlockNumber,
		BlockTimestamp:  r.BlockTimestamp,
		TxHash:          r.TxHash,
		LogIndex:        r.LogIndex,
	}
}

// RollbackRequest asks to discard everything above CommonAncestor.
type RollbackRequest struct {
	CommonAncestor uint64 `json:"common_ancestor" example:"250000000"`
}

// AcceptedResponse acknowledges an ingestion request.
type AcceptedResponse struct {
	Status string `json:"status" example:"ok"`
}
