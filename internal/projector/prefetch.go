package projector

import (
	"context"

	"github.com/MorpheusAIs/ponder-builders-index/internal/rpc"
	"github.com/MorpheusAIs/ponder-builders-index/internal/store"
	"github.com/MorpheusAIs/ponder-builders-index/pkg/config"
	"github.com/ethereum/go-ethereum/common"
)

// prefetched holds the contract reads made for an event before its
// transaction is opened. Pools of a chain are only written by that chain's
// worker, so a pool found missing here is still missing inside the transaction.
type prefetched struct {
	// balance is nil when the read failed and the event amount must be used.
	balance *rpc.UserBalance
	// poolConfig is the on-chain configuration of a pool about to be created lazily.
	poolConfig store.PoolPatch
	// metadata is the subnetsMetadata read made on subnet creation.
	metadata store.PoolPatch
}

func (p *Projector) prefetch(ctx context.Context, c *Contract, env Envelope, ev Event) (prefetched, error) {
	var (
		pre prefetched
		err error
	)

	switch e := ev.(type) {
	case Deposit:
		if pre.balance, err = p.readBalance(ctx, c, env, e.PoolID, e.User); err != nil {
			return pre, err
		}
		if c.Kind == config.ContractKindBuilders {
			missing, err := p.poolMissing(c, e.PoolID)
			if err != nil {
				return pre, err
			}
			if missing {
				pre.poolConfig = p.readSubnet(ctx, c, env, e.PoolID).Merge(p.readSubnetMetadata(ctx, c, env, e.PoolID))
			}
		}

	case Withdraw:
		if pre.balance, err = p.readBalance(ctx, c, env, e.PoolID, e.User); err != nil {
			return pre, err
		}

	case SubnetCreated:
		pre.metadata = p.readSubnetMetadata(ctx, c, env, e.SubnetID)

	case SubnetMetadataEdited:
		missing, err := p.poolMissing(c, e.SubnetID)
		if err != nil {
			return pre, err
		}
		if missing {
			pre.poolConfig = p.readSubnet(ctx, c, env, e.SubnetID)
		}
	}

	return pre, ctx.Err()
}

func (p *Projector) poolMissing(c *Contract, poolID common.Hash) (bool, error) {
	exists, err := store.Exists[store.Pool](p.store.DB(), c.PoolKey(poolID))
	return !exists, err
}

// readBalance returns nil when the read failed for any reason other than ctx
// being done; the caller then falls back to the event amount.
func (p *Projector) readBalance(ctx context.Context, c *Contract, env Envelope, poolID common.Hash,
	user common.Address) (*rpc.UserBalance, error) {
	bal, err := p.reader.UserBalance(ctx, env.ChainID, c.Kind, c.Address, poolID, user, env.BlockNumber)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.log.Warnw("balance read failed, using event amount",
			"chain_id", env.ChainID, "contract", c.Name, "user", user.Hex(), "block", env.BlockNumber, "error", err)
		return nil, nil
	}
	return bal, nil
}

func (p *Projector) readSubnet(ctx context.Context, c *Contract, env Envelope, subnetID common.Hash) store.PoolPatch {
	info, err := p.reader.SubnetInfo(ctx, env.ChainID, c.Address, subnetID, env.BlockNumber)
	if err != nil {
		p.log.Warnw("subnet read failed, pool created without configuration",
			"chain_id", env.ChainID, "subnet", subnetID.Hex(), "block", env.BlockNumber, "error", err)
		return store.PoolPatch{}
	}

	return store.PoolPatch{
		Name:               nonEmpty(info.Name),
		Admin:              nonZero(info.Admin),
		ClaimAdmin:         nonZero(info.ClaimAdmin),
		MinimalDeposit:     info.MinimalDeposit,
		WithdrawLockPeriod: &info.WithdrawLockPeriod,
	}
}

func (p *Projector) readSubnetMetadata(ctx context.Context, c *Contract, env Envelope,
	subnetID common.Hash) store.PoolPatch {
	meta, err := p.reader.SubnetMetadata(ctx, env.ChainID, c.Address, subnetID, env.BlockNumber)
	if err != nil {
		p.log.Warnw("subnet metadata read failed",
			"chain_id", env.ChainID, "subnet", subnetID.Hex(), "block", env.BlockNumber, "error", err)
		return store.PoolPatch{}
	}
	return store.PoolPatch{
		Slug:        nonEmpty(meta.Slug),
		Description: nonEmpty(meta.Description),
		Website:     nonEmpty(meta.Website),
		Image:       nonEmpty(meta.Image),
	}
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nonZero(a common.Address) *common.Address {
	if a == (common.Address{}) {
		return nil
	}
	return &a
}
