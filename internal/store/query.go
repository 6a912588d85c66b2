package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/MorpheusAIs/ponder-builders-index/internal/identity"
	"github.com/MorpheusAIs/ponder-builders-index/pkg/indexer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"
)

// listTable describes how a table is filtered and sorted by the query API.
type listTable struct {
	table          string
	poolColumn     string
	typeColumn     string
	blockColumn    string
	addressColumns []string

	// sortColumns maps accepted sort_by values to columns. Amount columns
	// hold decimal text and sort by length first.
	sortColumns   map[string]string
	amountColumns map[string]bool
	defaultSort   string
}

var (
	poolsTable = listTable{
		table:          "pools",
		typeColumn:     "family",
		blockColumn:    "created_at_block",
		addressColumns: []string{"contract_address", "admin"},
		sortColumns: map[string]string{
			"total_staked":     "total_staked",
			"total_users":      "total_users",
			"total_claimed":    "total_claimed",
			"created_at_block": "created_at_block",
			"name":             "name",
		},
		amountColumns: map[string]bool{"total_staked": true, "total_claimed": true},
		defaultSort:   "total_staked",
	}
	usersTable = listTable{
		table:          "users",
		poolColumn:     "pool_key",
		blockColumn:    "created_at_block",
		addressColumns: []string{"address"},
		sortColumns: map[string]string{
			"staked":               "staked",
			"claimed":              "claimed",
			"last_stake_timestamp": "last_stake_timestamp",
			"created_at_block":     "created_at_block",
		},
		amountColumns: map[string]bool{"staked": true, "claimed": true},
		defaultSort:   "staked",
	}
	interactionsTable = listTable{
		table:          "interactions",
		poolColumn:     "pool_key",
		typeColumn:     "type",
		blockColumn:    "block_number",
		addressColumns: []string{"user_address"},
		sortColumns: map[string]string{
			"block_number": "block_number",
			"amount":       "amount",
		},
		amountColumns: map[string]bool{"amount": true},
		defaultSort:   "block_number",
	}
	referralsTable = listTable{
		table:          "referrals",
		poolColumn:     "pool_key",
		blockColumn:    "updated_at_block",
		addressColumns: []string{"user_address", "referrer_address"},
		sortColumns: map[string]string{
			"amount":           "amount",
			"updated_at_block": "updated_at_block",
		},
		amountColumns: map[string]bool{"amount": true},
		defaultSort:   "amount",
	}
	referrersTable = listTable{
		table:          "referrers",
		poolColumn:     "pool_key",
		blockColumn:    "updated_at_block",
		addressColumns: []string{"referrer_address"},
		sortColumns: map[string]string{
			"referred_amount":  "referred_amount",
			"claimed":          "claimed",
			"updated_at_block": "updated_at_block",
		},
		amountColumns: map[string]bool{"referred_amount": true, "claimed": true},
		defaultSort:   "referred_amount",
	}
	transfersTable = listTable{
		table:          "transfers",
		blockColumn:    "block_number",
		addressColumns: []string{"from_address", "to_address"},
		sortColumns: map[string]string{
			"block_number": "block_number",
			"value":        "value",
		},
		amountColumns: map[string]bool{"value": true},
		defaultSort:   "block_number",
	}
	adminEventsTable = listTable{
		table:          "admin_events",
		typeColumn:     "event",
		blockColumn:    "block_number",
		addressColumns: []string{"contract_address"},
		sortColumns:    map[string]string{"block_number": "block_number"},
		defaultSort:    "block_number",
	}
	rewardsTable = listTable{
		table:          "reward_distributions",
		blockColumn:    "block_number",
		addressColumns: []string{"receiver", "treasury_address"},
		sortColumns: map[string]string{
			"block_number": "block_number",
			"amount":       "amount",
		},
		amountColumns: map[string]bool{"amount": true},
		defaultSort:   "block_number",
	}
)

// list runs a filtered, sorted and paginated query over tbl.table and
// returns the page together with the total number of matching rows.
func list[T any](ctx context.Context, q meddler.DB, tbl listTable, qp indexer.QueryParams) ([]*T, int, error) {
	//nolint:gosec // table name comes from a fixed listTable, not user input
	query := "SELECT * FROM " + tbl.table
	args := []any{}
	var conditions []string

	if qp.ChainID != nil {
		conditions = append(conditions, "chain_id = ?")
		args = append(args, *qp.ChainID)
	}
	if qp.Pool != "" && tbl.poolColumn != "" {
		key, err := identity.ParseKey(qp.Pool)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: pool: %w", ErrInvalidFilter, err)
		}
		conditions = append(conditions, tbl.poolColumn+" = ?")
		args = append(args, key.Hex())
	}
	if qp.Type != "" && tbl.typeColumn != "" {
		conditions = append(conditions, tbl.typeColumn+" = ?")
		args = append(args, qp.Type)
	}
	if qp.FromBlock != nil {
		conditions = append(conditions, tbl.blockColumn+" >= ?")
		args = append(args, *qp.FromBlock)
	}
	if qp.ToBlock != nil {
		conditions = append(conditions, tbl.blockColumn+" <= ?")
		args = append(args, *qp.ToBlock)
	}
	if qp.Address != "" && len(tbl.addressColumns) > 0 {
		if !common.IsHexAddress(qp.Address) {
			return nil, 0, fmt.Errorf("%w: address %s", ErrInvalidFilter, qp.Address)
		}
		address := common.HexToAddress(qp.Address).Hex()
		addrConditions := make([]string, len(tbl.addressColumns))
		for i, col := range tbl.addressColumns {
			addrConditions[i] = col + " = ?"
			args = append(args, address)
		}
		conditions = append(conditions, "("+strings.Join(addrConditions, " OR ")+")")
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := strings.Replace(query, "SELECT *", "SELECT COUNT(*)", 1)
	var total int
	if err := q.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to get total count: %w", err)
	}

	sortBy := tbl.defaultSort
	if col, ok := tbl.sortColumns[qp.SortBy]; ok {
		sortBy = col
	}
	sortOrder := "DESC"
	if strings.ToLower(qp.SortOrder) == "asc" {
		sortOrder = "ASC"
	}

	orderBy := fmt.Sprintf("%s %s", sortBy, sortOrder)
	if tbl.amountColumns[sortBy] {
		orderBy = fmt.Sprintf("LENGTH(%s) %s, %s %s", sortBy, sortOrder, sortBy, sortOrder)
	}
	query += fmt.Sprintf(" ORDER BY %s, id LIMIT ? OFFSET ?", orderBy)
	args = append(args, qp.Limit, qp.Offset)

	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	var rows []*T
	if err := meddler.QueryAll(q, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to query %s: %w", tbl.table, err)
	}
	return rows, total, nil
}

func (s *Store) ListPools(ctx context.Context, qp indexer.QueryParams) ([]*Pool, int, error) {
	return list[Pool](ctx, s.db, poolsTable, qp)
}

func (s *Store) ListUsers(ctx context.Context, qp indexer.QueryParams) ([]*User, int, error) {
	return list[User](ctx, s.db, usersTable, qp)
}

func (s *Store) ListInteractions(ctx context.Context, qp indexer.QueryParams) ([]*Interaction, int, error) {
	return list[Interaction](ctx, s.db, interactionsTable, qp)
}

func (s *Store) ListReferrals(ctx context.Context, qp indexer.QueryParams) ([]*Referral, int, error) {
	return list[Referral](ctx, s.db, referralsTable, qp)
}

func (s *Store) ListReferrers(ctx context.Context, qp indexer.QueryParams) ([]*Referrer, int, error) {
	return list[Referrer](ctx, s.db, referrersTable, qp)
}

func (s *Store) ListTransfers(ctx context.Context, qp indexer.QueryParams) ([]*Transfer, int, error) {
	return list[Transfer](ctx, s.db, transfersTable, qp)
}

func (s *Store) ListAdminEvents(ctx context.Context, qp indexer.QueryParams) ([]*AdminEvent, int, error) {
	return list[AdminEvent](ctx, s.db, adminEventsTable, qp)
}

func (s *Store) ListRewardDistributions(
	ctx context.Context, qp indexer.QueryParams,
) ([]*RewardDistribution, int, error) {
	return list[RewardDistribution](ctx, s.db, rewardsTable, qp)
}

// Pool returns one pool by key.
func (s *Store) Pool(ctx context.Context, key identity.Key) (*Pool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return FindByID[Pool](s.db, key)
}

// User returns one user by key.
func (s *Store) User(ctx context.Context, key identity.Key) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return FindByID[User](s.db, key)
}

// Counters returns the global counters.
func (s *Store) Counters(ctx context.Context) (*GlobalCounters, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return GetCounters(s.db)
}

// Checkpoints returns the last processed position of every chain.
func (s *Store) Checkpoints(ctx context.Context) ([]*Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Checkpoints(s.db)
}

// TableCounts returns the number of rows of every entity and log table.
func (s *Store) TableCounts(ctx context.Context) (map[string]int64, error) {
	tables := append([]string{"pools", "users", "referrals", "referrers"}, logTables...)
	counts := make(map[string]int64, len(tables))
	for _, table := range tables {
		var n int64
		//nolint:gosec // table names are constants
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}
