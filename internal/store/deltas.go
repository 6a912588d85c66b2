package store

import (
	"math/big"
)

// PoolDelta adjusts pool totals.
type PoolDelta struct {
	Staked  *big.Int
	Claimed *big.Int
	NewUser bool
}

func (d PoolDelta) Apply(p *Pool) error {
	staked, err := addNonNegative(p.TotalStaked, d.Staked)
	if err != nil {
		return err
	}
	claimed, err := addNonNegative(p.TotalClaimed, d.Claimed)
	if err != nil {
		return err
	}
	p.TotalStaked, p.TotalClaimed = staked, claimed
	if d.NewUser {
		p.TotalUsers++
	}
	return nil
}

// UserDelta sets the authoritative balances of a user and accumulates claims.
// Nil fields are left unchanged.
type UserDelta struct {
	Staked             *big.Int
	VirtualDeposited   *big.Int
	ClaimLockStart     *uint64
	ClaimLockEnd       *uint64
	Rate               *big.Int
	LastStakeTimestamp *uint64
	LastDepositAmount  *big.Int
	Claimed            *big.Int
}

func (d UserDelta) Apply(u *User) error {
	if d.Staked != nil {
		if d.Staked.Sign() < 0 {
			return ErrNegativeBalance
		}
		u.Staked = new(big.Int).Set(d.Staked)
	}
	if d.VirtualDeposited != nil {
		if d.VirtualDeposited.Sign() < 0 {
			return ErrNegativeBalance
		}
		u.VirtualDeposited = new(big.Int).Set(d.VirtualDeposited)
	}
	if d.LastDepositAmount != nil {
		u.LastDepositAmount = new(big.Int).Set(d.LastDepositAmount)
	}
	if d.Rate != nil {
		u.Rate = new(big.Int).Set(d.Rate)
	}
	setIf(&u.ClaimLockStart, d.ClaimLockStart)
	setIf(&u.ClaimLockEnd, d.ClaimLockEnd)
	setIf(&u.LastStakeTimestamp, d.LastStakeTimestamp)

	claimed, err := addNonNegative(u.Claimed, d.Claimed)
	if err != nil {
		return err
	}
	u.Claimed = claimed
	return nil
}

// ReferralDelta adds a referred amount.
type ReferralDelta struct {
	Amount *big.Int
	Block  uint64
}

func (d ReferralDelta) Apply(r *Referral) error {
	amount, err := addNonNegative(r.Amount, d.Amount)
	if err != nil {
		return err
	}
	r.Amount = amount
	r.UpdatedAtBlock = d.Block
	return nil
}

// ReferrerDelta adds referred and claimed amounts.
type ReferrerDelta struct {
	Referred *big.Int
	Claimed  *big.Int
	Block    uint64
}

func (d ReferrerDelta) Apply(r *Referrer) error {
	referred, err := addNonNegative(r.ReferredAmount, d.Referred)
	if err != nil {
		return err
	}
	claimed, err := addNonNegative(r.Claimed, d.Claimed)
	if err != nil {
		return err
	}
	r.ReferredAmount, r.Claimed = referred, claimed
	r.UpdatedAtBlock = d.Block
	return nil
}

// addNonNegative returns a+d, treating nil as zero. It never mutates a.
func addNonNegative(a, d *big.Int) (*big.Int, error) {
	sum := new(big.Int)
	if a != nil {
		sum.Set(a)
	}
	if d != nil {
		sum.Add(sum, d)
	}
	if sum.Sign() < 0 {
		return nil, ErrNegativeBalance
	}
	return sum, nil
}
