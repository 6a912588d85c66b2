package projector

import (
	"github.com/MorpheusAIs/ponder-builders-index/internal/identity"
	"github.com/MorpheusAIs/ponder-builders-index/internal/store"
	"github.com/ethereum/go-ethereum/common"
)

func (t *txn) userReferred(ev UserReferred) error {
	poolKey := t.contract.PoolKey(ev.PoolID)
	block := t.env.BlockNumber

	referral := store.NewReferral(poolKey, ev.User, ev.Referrer, block)
	if _, _, err := store.Upsert[store.Referral](t.tx, referral); err != nil {
		return err
	}
	if _, err := store.ApplyDelta[store.Referral](t.tx, referral.Key,
		store.ReferralDelta{Amount: ev.Amount, Block: block}); err != nil {
		return err
	}

	if err := t.creditReferrer(poolKey, ev.Referrer, store.ReferrerDelta{Referred: ev.Amount, Block: block}); err != nil {
		return err
	}

	user := ev.User
	return store.InsertReferralEvent(t.tx, &store.ReferralEvent{
		Key:             t.env.Key(),
		ChainID:         t.env.ChainID,
		PoolKey:         poolKey,
		Type:            store.ReferralReferred,
		UserAddress:     &user,
		ReferrerAddress: ev.Referrer,
		Amount:          ev.Amount,
		BlockNumber:     block,
		BlockTimestamp:  t.env.BlockTimestamp,
		TxHash:          t.env.TxHash,
		LogIndex:        t.env.LogIndex,
	})
}

func (t *txn) referrerClaimed(ev ReferrerClaimed) error {
	poolKey := t.contract.PoolKey(ev.PoolID)
	block := t.env.BlockNumber

	if err := t.creditReferrer(poolKey, ev.Referrer, store.ReferrerDelta{Claimed: ev.Amount, Block: block}); err != nil {
		return err
	}

	receiver := ev.Receiver
	return store.InsertReferralEvent(t.tx, &store.ReferralEvent{
		Key:             t.env.Key(),
		ChainID:         t.env.ChainID,
		PoolKey:         poolKey,
		Type:            store.ReferralReferrerClaimed,
		ReferrerAddress: ev.Referrer,
		Receiver:        &receiver,
		Amount:          ev.Amount,
		BlockNumber:     block,
		BlockTimestamp:  t.env.BlockTimestamp,
		TxHash:          t.env.TxHash,
		LogIndex:        t.env.LogIndex,
	})
}

func (t *txn) creditReferrer(poolKey identity.Key, referrer common.Address, delta store.ReferrerDelta) error {
	row := store.NewReferrer(poolKey, referrer, delta.Block)
	if _, _, err := store.Upsert[store.Referrer](t.tx, row); err != nil {
		return err
	}
	_, err := store.ApplyDelta[store.Referrer](t.tx, row.Key, delta)
	return err
}

// transfer stores a token transfer flagged against the chain's pool contracts.
func (t *txn) transfer(ev Transfer) error {
	staking := t.chains[t.env.ChainID].staking
	_, toPool := staking[ev.To]
	_, fromPool := staking[ev.From]

	return store.InsertTransfer(t.tx, &store.Transfer{
		Key:               t.env.Key(),
		ChainID:           t.env.ChainID,
		Contract:          t.contract.Name,
		TokenAddress:      t.contract.Address,
		From:              ev.From,
		To:                ev.To,
		Value:             ev.Value,
		IsStakingDeposit:  toPool,
		IsStakingWithdraw: fromPool,
		BlockNumber:       t.env.BlockNumber,
		BlockTimestamp:    t.env.BlockTimestamp,
		TxHash:            t.env.TxHash,
		LogIndex:          t.env.LogIndex,
	})
}

func (t *txn) rewardSent(ev RewardSent) error {
	return store.InsertRewardDistribution(t.tx, &store.RewardDistribution{
		Key:             t.env.Key(),
		ChainID:         t.env.ChainID,
		Contract:        t.contract.Name,
		TreasuryAddress: t.contract.Address,
		Receiver:        ev.Receiver,
		Amount:          ev.Amount,
		BlockNumber:     t.env.BlockNumber,
		BlockTimestamp:  t.env.BlockTimestamp,
		TxHash:          t.env.TxHash,
		LogIndex:        t.env.LogIndex,
	})
}

func (t *txn) adminAction(ev AdminAction) error {
	return store.InsertAdminEvent(t.tx, &store.AdminEvent{
		Key:             t.env.Key(),
		ChainID:         t.env.ChainID,
		Contract:        t.contract.Name,
		ContractAddress: t.contract.Address,
		Event:           ev.Event,
		Args:            ev.Args,
		BlockNumber:     t.env.BlockNumber,
		BlockTimestamp:  t.env.BlockTimestamp,
		TxHash:          t.env.TxHash,
		LogIndex:        t.env.LogIndex,
	})
}
