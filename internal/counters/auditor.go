package counters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/MorpheusAIs/ponder-builders-index/internal/identity"
	"github.com/MorpheusAIs/ponder-builders-index/internal/logger"
	"github.com/MorpheusAIs/ponder-builders-index/internal/store"
	"github.com/MorpheusAIs/ponder-builders-index/pkg/config"
	"github.com/alitto/pond/v2"
	"github.com/robfig/cron/v3"
)

const auditTimeout = 2 * time.Minute

// Violation is a pool whose totals differ from the sum of its users.
type Violation struct {
	Pool         identity.Key
	TotalStaked  *big.Int
	UsersStaked  *big.Int
	TotalClaimed *big.Int
	UsersClaimed *big.Int
}

// Report is the result of one audit.
type Report struct {
	Stored     *store.GlobalCounters
	Expected   *store.GlobalCounters
	Drift      []string
	Violations []Violation
	PoolsSeen  int
}

// OK reports whether the audit found nothing.
func (r *Report) OK() bool {
	return len(r.Drift) == 0 && len(r.Violations) == 0
}

// Auditor periodically checks that the global counters and the pool totals
// agree with the rows they summarize. It never writes.
type Auditor struct {
	store   *store.Store
	cfg     config.AuditConfig
	log     *logger.Logger
	cron    *cron.Cron
	workers pond.Pool

	mu   sync.Mutex
	last *Report

	// snapshotTaken runs after the read transaction of an audit commits.
	snapshotTaken func()
}

// NewAuditor creates an auditor. Call Start to schedule it.
func NewAuditor(s *store.Store, cfg config.AuditConfig, log *logger.Logger) *Auditor {
	return &Auditor{
		store:   s,
		cfg:     cfg,
		log:     log,
		workers: pond.NewPool(cfg.Workers),
	}
}

// Start schedules the audit on the configured cron spec.
func (a *Auditor) Start(ctx context.Context) error {
	cronLog := &cronLogger{log: a.log}
	a.cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cronLog)))

	_, err := a.cron.AddFunc(a.cfg.Schedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, auditTimeout)
		defer cancel()
		if _, err := a.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Errorf("counter audit failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid audit schedule %q: %w", a.cfg.Schedule, err)
	}

	a.cron.Start()
	a.log.Infof("counter audit scheduled (%s)", a.cfg.Schedule)
	return nil
}

// Stop waits for a running audit and releases the worker pool.
func (a *Auditor) Stop() {
	if a.cron != nil {
		<-a.cron.Stop().Done()
	}
	a.workers.StopAndWait()
}

// Last returns the most recent report, or nil if no audit ran yet.
func (a *Auditor) Last() *Report {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// Run performs one audit.
func (a *Auditor) Run(ctx context.Context) (report *Report, err error) {
	defer func() {
		violations := 0
		if report != nil {
			violations = len(report.Violations)
		}
		auditFinished(err, violations)
	}()

	var (
		pools []*store.Pool
		users map[identity.Key][]*store.User
	)
	report = &Report{}
	err = a.store.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		if report.Stored, err = store.GetCounters(tx); err != nil {
			return err
		}
		if report.Expected, err = Compute(tx); err != nil {
			return err
		}
		if pools, err = store.AllPools(tx); err != nil {
			return err
		}
		all, err := store.AllUsers(tx)
		if err != nil {
			return err
		}
		users = make(map[identity.Key][]*store.User, len(pools))
		for _, u := range all {
			users[u.PoolKey] = append(users[u.PoolKey], u)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if a.snapshotTaken != nil {
		a.snapshotTaken()
	}

	report.Drift = Drift(report.Stored, report.Expected)
	report.PoolsSeen = len(pools)
	driftLog(report.Drift)

	if report.Violations, err = a.checkPools(ctx, pools, users); err != nil {
		return nil, err
	}

	if report.OK() {
		a.log.Debugf("counter audit passed (%d pools)", len(pools))
	} else {
		a.log.Warnw("counter audit found inconsistencies",
			"drift", report.Drift,
			"violations", len(report.Violations),
		)
		for _, v := range report.Violations {
			a.log.Warnw("pool totals differ from its users",
				"pool", v.Pool.Hex(),
				"total_staked", v.TotalStaked.String(),
				"users_staked", v.UsersStaked.String(),
				"total_claimed", v.TotalClaimed.String(),
				"users_claimed", v.UsersClaimed.String(),
			)
		}
	}

	a.mu.Lock()
	a.last = report
	a.mu.Unlock()
	return report, nil
}

// checkPools compares every pool with the sum of its users concurrently. Both
// come from the same read transaction.
func (a *Auditor) checkPools(ctx context.Context, pools []*store.Pool,
	users map[identity.Key][]*store.User) ([]Violation, error) {
	group := a.workers.NewGroupContext(ctx)
	groupCtx := group.Context()

	var (
		mu         sync.Mutex
		violations []Violation
	)
	for _, p := range pools {
		group.SubmitErr(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			staked, claimed := new(big.Int), new(big.Int)
			for _, u := range users[p.Key] {
				staked.Add(staked, u.Staked)
				claimed.Add(claimed, u.Claimed)
			}
			if staked.Cmp(p.TotalStaked) == 0 && claimed.Cmp(p.TotalClaimed) == 0 {
				return nil
			}

			mu.Lock()
			violations = append(violations, Violation{
				Pool:         p.Key,
				TotalStaked:  p.TotalStaked,
				UsersStaked:  staked,
				TotalClaimed: p.TotalClaimed,
				UsersClaimed: claimed,
			})
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, pond.ErrGroupStopped) {
		return nil, err
	}
	return violations, nil
}

// cronLogger routes cron's own messages to the component logger.
type cronLogger struct {
	log *logger.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
