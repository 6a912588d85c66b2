// Package projector turns decoded contract events into aggregate state.
//
// Every event is applied in one store transaction together with its
// immutable log row, the processed-event marker, the global counter delta
// and the chain checkpoint. Contract reads needed by the event are made
// before the transaction is opened.
package projector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/MorpheusAIs/ponder-builders-index/internal/counters"
	"github.com/MorpheusAIs/ponder-builders-index/internal/identity"
	"github.com/MorpheusAIs/ponder-builders-index/internal/logger"
	"github.com/MorpheusAIs/ponder-builders-index/internal/rpc"
	"github.com/MorpheusAIs/ponder-builders-index/internal/store"
	"github.com/MorpheusAIs/ponder-builders-index/pkg/config"
	"github.com/MorpheusAIs/ponder-builders-index/pkg/indexer"
	"github.com/ethereum/go-ethereum/common"
)

// Reader performs the ground-truth contract reads. *rpc.ContractReader implements it.
type Reader interface {
	UserBalance(ctx context.Context, chainID uint64, kind string, contract common.Address,
		poolID common.Hash, user common.Address, block uint64) (*rpc.UserBalance, error)
	SubnetInfo(ctx context.Context, chainID uint64, contract common.Address,
		subnetID common.Hash, block uint64) (*rpc.SubnetInfo, error)
	SubnetMetadata(ctx context.Context, chainID uint64, contract common.Address,
		subnetID common.Hash, block uint64) (*rpc.SubnetMetadata, error)
}

var _ Reader = (*rpc.ContractReader)(nil)

// Contract is one configured contract instance.
type Contract struct {
	ChainID  uint64
	Name     string
	Kind     string
	Address  common.Address
	Decimals int32
}

// PoolKey derives the key of the pool poolID of this contract.
func (c *Contract) PoolKey(poolID common.Hash) identity.Key {
	if c.Kind == config.ContractKindDepositPool {
		return identity.RewardPoolKey(c.ChainID, poolID, c.Address)
	}
	return identity.SubnetPoolKey(c.ChainID, poolID)
}

// IsStaking reports whether the contract holds pools.
func (c *Contract) IsStaking() bool {
	return c.Kind == config.ContractKindDepositPool || c.Kind == config.ContractKindBuilders
}

type chainContracts struct {
	byName    map[string]*Contract
	byAddress map[common.Address]*Contract
	// staking holds the addresses transfers are classified against.
	staking map[common.Address]struct{}
}

// Result describes how an event was applied.
type Result struct {
	// Duplicate is set when the event had already been applied; nothing was written.
	Duplicate bool
	// Fallback is set when the balance was derived from the event amount.
	Fallback bool
	// Synthesized is set when a missing pool or user was created in degraded mode.
	Synthesized bool
}

// Projector applies events to the store.
type Projector struct {
	store  *store.Store
	reader Reader
	chains map[uint64]*chainContracts
	strict bool
	log    *logger.Logger
}

// New builds a projector for the configured chains. It fails with a
// ConfigurationMissingError when a contract address is unset or zero, or when
// a chain indexes a token without any pool contract to classify transfers against.
func New(cfg *config.Config, s *store.Store, reader Reader, log *logger.Logger) (*Projector, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if reader == nil {
		reader = noReader{}
	}

	p := &Projector{
		store:  s,
		reader: reader,
		chains: make(map[uint64]*chainContracts, len(cfg.Chains)),
		strict: cfg.Projector.MissingEntityPolicy != config.MissingEntityDegraded,
		log:    log,
	}

	for _, chain := range cfg.Chains {
		cc := &chainContracts{
			byName:    make(map[string]*Contract, len(chain.Contracts)),
			byAddress: make(map[common.Address]*Contract, len(chain.Contracts)),
			staking:   make(map[common.Address]struct{}),
		}
		hasToken := ""
		for _, cfgContract := range chain.Contracts {
			if !common.IsHexAddress(cfgContract.Address) || common.HexToAddress(cfgContract.Address) == (common.Address{}) {
				return nil, NewConfigurationMissingError(chain.ChainID, cfgContract.Name, "address")
			}
			c := &Contract{
				ChainID:  chain.ChainID,
				Name:     cfgContract.Name,
				Kind:     cfgContract.Kind,
				Address:  common.HexToAddress(cfgContract.Address),
				Decimals: cfgContract.Decimals,
			}
			cc.byName[c.Name] = c
			cc.byAddress[c.Address] = c
			if c.IsStaking() {
				cc.staking[c.Address] = struct{}{}
			}
			if c.Kind == config.ContractKindToken && hasToken == "" {
				hasToken = c.Name
			}
		}
		if hasToken != "" && len(cc.staking) == 0 {
			return nil, NewConfigurationMissingError(chain.ChainID, hasToken, "pool contract addresses")
		}
		p.chains[chain.ChainID] = cc
	}

	return p, nil
}

// Contracts returns the contracts configured on a chain, sorted by name.
func (p *Projector) Contracts(chainID uint64) []*Contract {
	cc, ok := p.chains[chainID]
	if !ok {
		return nil
	}
	out := make([]*Contract, 0, len(cc.byName))
	for _, c := range cc.byName {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b *Contract) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return out
}

// Resolve finds the contract an envelope belongs to, by name or else by log address.
func (p *Projector) Resolve(env Envelope) (*Contract, error) {
	cc, ok := p.chains[env.ChainID]
	if !ok {
		return nil, fmt.Errorf("%w: chain %d is not configured", ErrUnknownContract, env.ChainID)
	}
	if env.Contract != "" {
		if c, ok := cc.byName[env.Contract]; ok {
			return c, nil
		}
		return nil, fmt.Errorf("%w: %s on chain %d", ErrUnknownContract, env.Contract, env.ChainID)
	}
	if c, ok := cc.byAddress[env.Address]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %s on chain %d", ErrUnknownContract, env.Address.Hex(), env.ChainID)
}

// Handle decodes a delivered event and projects it.
func (p *Projector) Handle(ctx context.Context, raw indexer.RawEvent) (Result, error) {
	env := EnvelopeOf(raw)
	c, err := p.Resolve(env)
	if err != nil {
		return Result{}, err
	}
	ev, err := Decode(c.Kind, raw.Event, raw.Args)
	if err != nil {
		projectedLog(c.Kind, raw.Event, "decode_error", 0)
		return Result{}, fmt.Errorf("%s: %w", raw, err)
	}
	return p.Project(ctx, env, ev)
}

// Project applies one typed event. Redelivery of an applied event is a
// successful no-op reported through Result.Duplicate.
func (p *Projector) Project(ctx context.Context, env Envelope, ev Event) (Result, error) {
	start := time.Now()

	c, err := p.Resolve(env)
	if err != nil {
		return Result{}, err
	}
	if !accepts(c.Kind, ev) {
		return Result{}, fmt.Errorf("%w: %s on %s contract %s", ErrUnknownEvent, ev.Name(), c.Kind, c.Name)
	}

	res, err := p.project(ctx, c, env, ev)

	outcome := "applied"
	switch {
	case err != nil:
		outcome = "error"
	case res.Duplicate:
		outcome = "duplicate"
	case res.Fallback || res.Synthesized:
		outcome = "degraded"
	}
	projectedLog(c.Kind, ev.Name(), outcome, time.Since(start))

	if err != nil {
		return Result{}, fmt.Errorf("%s/%s at block %d log %d: %w", c.Name, ev.Name(), env.BlockNumber, env.LogIndex, err)
	}
	return res, nil
}

func (p *Projector) project(ctx context.Context, c *Contract, env Envelope, ev Event) (Result, error) {
	marker := &store.ProcessedEvent{
		Key:         env.Key(),
		ChainID:     env.ChainID,
		BlockNumber: env.BlockNumber,
		Contract:    c.Name,
		Event:       ev.Name(),
	}

	done, err := store.IsProcessed(p.store.DB(), marker)
	if err != nil {
		return Result{}, err
	}
	if done {
		p.log.Debugw("event already applied", "chain_id", env.ChainID, "tx", env.TxHash.Hex(), "log_index", env.LogIndex)
		return Result{Duplicate: true}, nil
	}

	pre, err := p.prefetch(ctx, c, env, ev)
	if err != nil {
		return Result{}, err
	}

	var res Result
	err = p.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := store.MarkProcessed(tx, marker); err != nil {
			return err
		}

		t := &txn{
			Projector: p,
			tx:        tx,
			contract:  c,
			env:       env,
			pre:       pre,
			res:       &res,
		}
		if err := t.apply(ev); err != nil {
			return err
		}
		if t.countersTouched {
			t.delta.Timestamp = env.BlockTimestamp
			if _, err := counters.ApplyCounterDelta(tx, t.delta); err != nil {
				return err
			}
		}
		return store.AdvanceCheckpoint(tx, env.ChainID, env.BlockNumber, env.LogIndex)
	})
	if errors.Is(err, store.ErrDuplicateInteraction) {
		p.log.Debugw("duplicate record ignored", "chain_id", env.ChainID, "tx", env.TxHash.Hex(),
			"log_index", env.LogIndex, "error", err)
		return Result{Duplicate: true}, nil
	}
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// txn is the state of one event being applied.
type txn struct {
	*Projector

	tx       *sql.Tx
	contract *Contract
	env      Envelope
	pre      prefetched
	res      *Result

	delta           counters.Delta
	countersTouched bool
}

func (t *txn) apply(ev Event) error {
	switch e := ev.(type) {
	case Deposit:
		return t.deposit(e)
	case Withdraw:
		return t.withdraw(e)
	case Claim:
		return t.claim(e)
	case UserReferred:
		return t.userReferred(e)
	case ReferrerClaimed:
		return t.referrerClaimed(e)
	case SubnetCreated:
		return t.subnetCreated(e)
	case SubnetMetadataEdited:
		return t.subnetMetadataEdited(e)
	case Transfer:
		return t.transfer(e)
	case RewardSent:
		return t.rewardSent(e)
	case AdminAction:
		return t.adminAction(e)
	}
	return fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
}

// accepts reports whether a contract of the given kind emits ev.
func accepts(kind string, ev Event) bool {
	switch ev.(type) {
	case Deposit, Withdraw, Claim, UserReferred, ReferrerClaimed:
		return kind == config.ContractKindDepositPool || kind == config.ContractKindBuilders
	case SubnetCreated, SubnetMetadataEdited:
		return kind == config.ContractKindBuilders
	case Transfer:
		return kind == config.ContractKindToken
	case RewardSent:
		return kind == config.ContractKindTreasury
	case AdminAction:
		return true
	}
	return false
}

// EventsOf lists the event names accepted for a contract kind.
func EventsOf(kind string) []string {
	var names []string
	switch kind {
	case config.ContractKindDepositPool, config.ContractKindBuilders:
		names = slices.Concat(depositEvents, withdrawEvents, claimEvents, []string{"UserReferred", "ReferrerClaimed"})
		if kind == config.ContractKindBuilders {
			names = slices.Concat(names, createdEvents, []string{"SubnetMetadataEdited"})
		}
	case config.ContractKindToken:
		names = []string{"Transfer"}
	case config.ContractKindTreasury:
		names = []string{"RewardSent"}
	case config.ContractKindFactory:
		return []string{"*"}
	}
	return slices.Concat(names, adminEvents)
}

type noReader struct{}

func (noReader) UserBalance(context.Context, uint64, string, common.Address, common.Hash, common.Address,
	uint64) (*rpc.UserBalance, error) {
	return nil, rpc.ErrNoClient
}

func (noReader) SubnetInfo(context.Context, uint64, common.Address, common.Hash, uint64) (*rpc.SubnetInfo, error) {
	return nil, rpc.ErrNoClient
}

func (noReader) SubnetMetadata(context.Context, uint64, common.Address, common.Hash,
	uint64) (*rpc.SubnetMetadata, error) {
	return nil, rpc.ErrNoClient
}
