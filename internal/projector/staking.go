package projector

import (
	"fmt"
	"math/big"

	"github.com/MorpheusAIs/ponder-builders-index/internal/identity"
	"github.com/MorpheusAIs/ponder-builders-index/internal/store"
	"github.com/MorpheusAIs/ponder-builders-index/pkg/config"
	"github.com/ethereum/go-ethereum/common"
)

// position is the state of a user right after an interaction.
type position struct {
	staked         *big.Int
	virtual        *big.Int
	claimLockStart uint64
	claimLockEnd   uint64
	rate           *big.Int
	source         store.BalanceSource
}

func (t *txn) deposit(ev Deposit) error {
	poolKey := t.contract.PoolKey(ev.PoolID)
	if _, err := t.ensurePool(poolKey, ev.PoolID); err != nil {
		return err
	}

	user, created, err := store.Upsert[store.User](t.tx, store.NewUser(poolKey, ev.User, t.env.BlockNumber))
	if err != nil {
		return err
	}
	return t.stake(poolKey, user, created, store.InteractionDeposit, ev.Amount, t.positionAfter(user, ev.Amount, 1))
}

func (t *txn) withdraw(ev Withdraw) error {
	poolKey := t.contract.PoolKey(ev.PoolID)
	if err := t.requirePool(poolKey, ev.PoolID); err != nil {
		return err
	}
	user, created, err := t.requireUser(poolKey, ev.User)
	if err != nil {
		return err
	}
	return t.stake(poolKey, user, created, store.InteractionWithdraw, ev.Amount, t.positionAfter(user, ev.Amount, -1))
}

// positionAfter is the authoritative post-event position when the contract
// read succeeded, and the previous staked amount moved by the event amount otherwise.
func (t *txn) positionAfter(user *store.User, amount *big.Int, sign int) position {
	if b := t.pre.balance; b != nil {
		after := position{
			staked:         b.Deposited,
			virtual:        b.VirtualDeposited,
			claimLockStart: b.ClaimLockStart,
			claimLockEnd:   b.ClaimLockEnd,
			rate:           b.Rate,
			source:         store.BalanceFromChain,
		}
		if after.rate == nil {
			after.rate = user.Rate
		}
		if t.contract.Kind == config.ContractKindBuilders {
			// usersData has no lock end on builders
			after.claimLockEnd = user.ClaimLockEnd
		}
		return after
	}

	staked := new(big.Int).Set(user.Staked)
	if sign > 0 {
		staked.Add(staked, amount)
	} else {
		staked.Sub(staked, amount)
		if staked.Sign() < 0 {
			t.log.Warnw("withdraw exceeds tracked balance, clamping to zero",
				"user", user.Address.Hex(), "staked", user.Staked, "amount", amount)
			staked.SetInt64(0)
		}
	}

	t.res.Fallback = true
	fallbackInc(t.contract.Kind)
	return position{
		staked:         staked,
		virtual:        user.VirtualDeposited,
		claimLockStart: user.ClaimLockStart,
		claimLockEnd:   user.ClaimLockEnd,
		rate:           user.Rate,
		source:         store.BalanceFromEvent,
	}
}

// stake sets the user position, moves the pool total by the staked delta and
// logs the interaction.
func (t *txn) stake(poolKey identity.Key, user *store.User, created bool, typ store.InteractionType,
	amount *big.Int, after position) error {
	stakedDelta := new(big.Int).Sub(after.staked, user.Staked)

	ud := store.UserDelta{
		Staked:           after.staked,
		VirtualDeposited: after.virtual,
		ClaimLockStart:   &after.claimLockStart,
		ClaimLockEnd:     &after.claimLockEnd,
		Rate:             after.rate,
	}
	if typ == store.InteractionDeposit {
		ts := t.env.BlockTimestamp
		ud.LastStakeTimestamp = &ts
		ud.LastDepositAmount = amount
	}
	user, err := store.ApplyDelta[store.User](t.tx, user.Key, ud)
	if err != nil {
		return err
	}

	pool, err := store.ApplyDelta[store.Pool](t.tx, poolKey, store.PoolDelta{Staked: stakedDelta, NewUser: created})
	if err != nil {
		return err
	}

	rec := t.interaction(pool, user, typ, amount, created)
	rec.StakedDelta = stakedDelta
	rec.BalanceSource = after.source
	if err := store.InsertInteraction(t.tx, rec); err != nil {
		return err
	}

	t.delta.Staked = stakedDelta
	return t.countUser(user, created)
}

func (t *txn) claim(ev Claim) error {
	poolKey := t.contract.PoolKey(ev.PoolID)
	if err := t.requirePool(poolKey, ev.PoolID); err != nil {
		return err
	}
	user, created, err := t.requireUser(poolKey, ev.User)
	if err != nil {
		return err
	}

	user, err = store.ApplyDelta[store.User](t.tx, user.Key, store.UserDelta{Claimed: ev.Amount})
	if err != nil {
		return err
	}
	pool, err := store.ApplyDelta[store.Pool](t.tx, poolKey, store.PoolDelta{Claimed: ev.Amount, NewUser: created})
	if err != nil {
		return err
	}

	rec := t.interaction(pool, user, store.InteractionClaim, ev.Amount, created)
	receiver := ev.Receiver
	rec.Receiver = &receiver
	rec.StakedDelta = new(big.Int)
	rec.BalanceSource = store.BalanceNotRead
	if err := store.InsertInteraction(t.tx, rec); err != nil {
		return err
	}

	t.delta.Claimed = ev.Amount
	return t.countUser(user, created)
}

func (t *txn) interaction(pool *store.Pool, user *store.User, typ store.InteractionType, amount *big.Int,
	created bool) *store.Interaction {
	return &store.Interaction{
		Key:                   t.env.Key(),
		ChainID:               t.env.ChainID,
		PoolKey:               pool.Key,
		UserKey:               user.Key,
		UserAddress:           user.Address,
		Type:                  typ,
		Amount:                amount,
		BalanceAfter:          user.Staked,
		VirtualDepositedAfter: user.VirtualDeposited,
		ClaimLockStartAfter:   user.ClaimLockStart,
		ClaimLockEndAfter:     user.ClaimLockEnd,
		Rate:                  user.Rate,
		NewUser:               created,
		PoolTotalStaked:       pool.TotalStaked,
		BlockNumber:           t.env.BlockNumber,
		BlockTimestamp:        t.env.BlockTimestamp,
		TxHash:                t.env.TxHash,
		LogIndex:              t.env.LogIndex,
	}
}

// countUser records the counter side of an interaction.
func (t *txn) countUser(user *store.User, created bool) error {
	t.countersTouched = true
	if !created {
		return nil
	}
	t.delta.NewUser = true

	n, err := store.CountUsersWithAddress(t.tx, user.Address)
	if err != nil {
		return err
	}
	t.delta.NewAddress = n == 1
	return nil
}

// requirePool fails with EntityNotFound in strict mode and synthesizes an
// empty pool otherwise.
func (t *txn) requirePool(key identity.Key, poolID common.Hash) error {
	exists, err := store.Exists[store.Pool](t.tx, key)
	if err != nil || exists {
		return err
	}
	if t.strict {
		return store.NewEntityNotFoundError(identity.KindPool, key)
	}

	t.log.Warnw("pool missing, synthesizing zero-state pool",
		"chain_id", t.env.ChainID, "contract", t.contract.Name, "pool_id", poolID.Hex(), "block", t.env.BlockNumber)
	t.res.Synthesized = true
	synthesizedInc("pool")
	_, err = t.createPool(key, poolID, store.ChangeSynthesized, store.PoolPatch{})
	return err
}

// requireUser loads the user position, failing with EntityNotFound in strict
// mode and synthesizing a zero-state position otherwise.
func (t *txn) requireUser(pool identity.Key, address common.Address) (*store.User, bool, error) {
	user, err := store.FindByID[store.User](t.tx, identity.UserKey(pool, address))
	if err == nil {
		return user, false, nil
	}
	if !store.IsNotFound(err) || t.strict {
		return nil, false, err
	}

	t.log.Warnw("user missing, synthesizing zero-state position",
		"chain_id", t.env.ChainID, "contract", t.contract.Name, "user", address.Hex(), "block", t.env.BlockNumber)
	t.res.Synthesized = true
	synthesizedInc("user")

	user = store.NewUser(pool, address, t.env.BlockNumber)
	if err := store.Insert[store.User](t.tx, user); err != nil {
		return nil, false, fmt.Errorf("synthesize user: %w", err)
	}
	return user, true, nil
}
