package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MorpheusAIs/ponder-builders-index/internal/common"
	"github.com/MorpheusAIs/ponder-builders-index/internal/identity"
	"github.com/MorpheusAIs/ponder-builders-index/internal/logger"
	"github.com/MorpheusAIs/ponder-builders-index/internal/pipeline"
	"github.com/MorpheusAIs/ponder-builders-index/internal/projector"
	"github.com/MorpheusAIs/ponder-builders-index/internal/reorg"
	"github.com/MorpheusAIs/ponder-builders-index/internal/store"
	"github.com/MorpheusAIs/ponder-builders-index/pkg/config"
	"github.com/MorpheusAIs/ponder-builders-index/pkg/indexer"
)

const (
	defaultDecimals int32 = 18
	maxEventBody          = 1 << 20
)

// Store is the read side of the aggregate store.
type Store interface {
	ListPools(ctx context.Context, qp indexer.QueryParams) ([]*store.Pool, int, error)
	ListUsers(ctx context.Context, qp indexer.QueryParams) ([]*store.User, int, error)
	ListInteractions(ctx context.Context, qp indexer.QueryParams) ([]*store.Interaction, int, error)
	ListReferrals(ctx context.Context, qp indexer.QueryParams) ([]*store.Referral, int, error)
	ListReferrers(ctx context.Context, qp indexer.QueryParams) ([]*store.Referrer, int, error)
	ListTransfers(ctx context.Context, qp indexer.QueryParams) ([]*store.Transfer, int, error)
	ListAdminEvents(ctx context.Context, qp indexer.QueryParams) ([]*store.AdminEvent, int, error)
	ListRewardDistributions(ctx context.Context, qp indexer.QueryParams) ([]*store.RewardDistribution, int, error)
	Pool(ctx context.Context, key identity.Key) (*store.Pool, error)
	User(ctx context.Context, key identity.Key) (*store.User, error)
	Counters(ctx context.Context) (*store.GlobalCounters, error)
	TableCounts(ctx context.Context) (map[string]int64, error)
}

type contractRef struct {
	chainID uint64
	name    string
}

// Handler handles HTTP requests for the API.
type Handler struct {
	store    Store
	status   indexer.StatusProvider
	sink     indexer.EventSink
	decimals map[contractRef]int32
	log      *logger.Logger
}

// NewHandler creates a new API handler. sink may be nil when ingestion is disabled.
func NewHandler(chains []config.ChainConfig, s Store, status indexer.StatusProvider, sink indexer.EventSink,
	log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNopLogger()
	}

	decimals := make(map[contractRef]int32)
	for _, chain := range chains {
		for _, c := range chain.Contracts {
			if c.Decimals > 0 {
				decimals[contractRef{chainID: chain.ChainID, name: c.Name}] = c.Decimals
			}
		}
	}

	return &Handler{
		store:    s,
		status:   status,
		sink:     sink,
		decimals: decimals,
		log:      log,
	}
}

func (h *Handler) contractDecimals(chainID uint64, contract string) int32 {
	if d, ok := h.decimals[contractRef{chainID: chainID, name: contract}]; ok {
		return d
	}
	return defaultDecimals
}

// poolDecimals resolves the token decimals of pools referenced by a page of rows.
type poolDecimals struct {
	h     *Handler
	ctx   context.Context
	cache map[identity.Key]int32
}

func (h *Handler) poolDecimals(ctx context.Context) *poolDecimals {
	return &poolDecimals{h: h, ctx: ctx, cache: make(map[identity.Key]int32)}
}

func (p *poolDecimals) of(key identity.Key) int32 {
	if d, ok := p.cache[key]; ok {
		return d
	}
	d := defaultDecimals
	if pool, err := p.h.store.Pool(p.ctx, key); err == nil {
		d = p.h.contractDecimals(pool.ChainID, pool.Contract)
	}
	p.cache[key] = d
	return d
}

// Health returns the status of every chain.
// @Summary Health check
// @Description Liveness probe with the progress of every configured chain
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Chains:    h.chainStatuses(r.Context()),
	})
}

// Ready reports whether every chain is serving consistent state.
// @Summary Readiness check
// @Description 200 when no chain is rolling back or halted and every chain with an RPC endpoint is within its readiness lag
// @Tags Health
// @Produce json
// @Success 200 {object} ReadyResponse
// @Failure 503 {object} ReadyResponse
// @Router /ready [get]
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	chains := h.chainStatuses(r.Context())
	ready := true
	for _, c := range chains {
		ready = ready && c.Ready
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, ReadyResponse{Ready: ready, Chains: chains})
}

func (h *Handler) chainStatuses(ctx context.Context) []indexer.ChainStatus {
	if h.status == nil {
		return []indexer.ChainStatus{}
	}
	return h.status.ChainStatuses(ctx)
}

// ListChains returns the progress of every chain.
// @Summary List chains
// @Tags Chains
// @Produce json
// @Success 200 {array} indexer.ChainStatus
// @Router /chains [get]
func (h *Handler) ListChains(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.chainStatuses(r.Context()))
}

// GetStats returns the global counters.
// @Summary Global statistics
// @Tags Stats
// @Produce json
// @Success 200 {object} StatsResponse
// @Failure 500 {object} ErrorResponse
// @Router /stats [get]
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	c, err := h.store.Counters(r.Context())
	if err != nil {
		h.internalError(w, "failed to get counters", err)
		return
	}
	rows, err := h.store.TableCounts(r.Context())
	if err != nil {
		h.internalError(w, "failed to count rows", err)
		return
	}

	respondJSON(w, http.StatusOK, StatsResponse{
		TotalPools:            c.TotalPools,
		TotalUsers:            c.TotalUsers,
		TotalUsersAcrossPools: c.TotalUsersAcrossPools,
		TotalStaked:           c.TotalStaked.String(),
		TotalClaimed:          c.TotalClaimed.String(),
		LastUpdated:           c.LastUpdated,
		Rows:                  rows,
	})
}

// ListPools returns staking pools and builders subnets.
// @Summary List pools
// @Tags Pools
// @Produce json
// @Param chain_id query integer false "Chain id"
// @Param type query string false "Pool family" Enums(capital, builders)
// @Param address query string false "Contract or admin address"
// @Param from_block query integer false "Created at or after this block"
// @Param to_block query integer false "Created at or before this block"
// @Param sort_by query string false "Sort field" Enums(total_staked, total_users, total_claimed, created_at_block, name)
// @Param sort_order query string false "Sort order" Enums(asc, desc)
// @Param limit query int false "Page size" default(100)
// @Param offset query int false "Rows to skip" default(0)
// @Success 200 {object} ListResponse{data=[]PoolResponse}
// @Failure 400 {object} ErrorResponse
// @Router /pools [get]
func (h *Handler) ListPools(w http.ResponseWriter, r *http.Request) {
	params, ok := h.params(w, r)
	if !ok {
		return
	}
	rows, total, err := h.store.ListPools(r.Context(), *params)
	if err != nil {
		h.queryError(w, "pools", err)
		return
	}

	out := make([]PoolResponse, len(rows))
	for i, p := range rows {
		out[i] = newPoolResponse(p, h.contractDecimals(p.ChainID, p.Contract))
	}
	respondPage(w, out, params, total)
}

// GetPool returns one pool.
// @Summary Get pool
// @Tags Pools
// @Produce json
// @Param id path string true "Pool id"
// @Success 200 {object} PoolResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /pools/{id} [get]
func (h *Handler) GetPool(w http.ResponseWriter, r *http.Request) {
	key, ok := pathKey(w, r, identity.KindPool)
	if !ok {
		return
	}
	p, err := h.store.Pool(r.Context(), key)
	if err != nil {
		h.lookupError(w, "pool", err)
		return
	}
	respondJSON(w, http.StatusOK, newPoolResponse(p, h.contractDecimals(p.ChainID, p.Contract)))
}

// ListPoolUsers returns the users of one pool.
// @Summary List pool users
// @Tags Pools
// @Produce json
// @Param id path string true "Pool id"
// @Param sort_by query string false "Sort field" Enums(staked, claimed, last_stake_timestamp, created_at_block)
// @Param sort_order query string false "Sort order" Enums(asc, desc)
// @Param limit query int false "Page size" default(100)
// @Param offset query int false "Rows to skip" default(0)
// @Success 200 {object} ListResponse{data=[]UserResponse}
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /pools/{id}/users [get]
func (h *Handler) ListPoolUsers(w http.ResponseWriter, r *http.Request) {
	key, ok := pathKey(w, r, identity.KindPool)
	if !ok {
		return
	}
	pool, err := h.store.Pool(r.Context(), key)
	if err != nil {
		h.lookupError(w, "pool", err)
		return
	}
	params, ok := h.params(w, r)
	if !ok {
		return
	}
	params.Pool = key.Hex()

	rows, total, err := h.store.ListUsers(r.Context(), *params)
	if err != nil {
		h.queryError(w, "users", err)
		return
	}
	decimals := h.contractDecimals(pool.ChainID, pool.Contract)
	out := make([]UserResponse, len(rows))
	for i, u := range rows {
		out[i] = newUserResponse(u, decimals)
	}
	respondPage(w, out, params, total)
}

// ListUsers returns user positions.
// @Summary List users
// @Tags Users
// @Produce json
// @Param chain_id query integer false "Chain id"
// @Param pool query string false "Pool id"
// @Param address query string false "User address"
// @Param sort_by query string false "Sort field" Enums(staked, claimed, last_stake_timestamp, created_at_block)
// @Param sort_order query string false "Sort order" Enums(asc, desc)
// @Param limit query int false "Page size" default(100)
// @Param offset query int false "Rows to skip" default(0)
// @Success 200 {object} ListResponse{data=[]UserResponse}
// @Failure 400 {object} ErrorResponse
// @Router /users [get]
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	params, ok := h.params(w, r)
	if !ok {
		return
	}
	rows, total, err := h.store.ListUsers(r.Context(), *params)
	if err != nil {
		h.queryError(w, "users", err)
		return
	}

	decimals := h.poolDecimals(r.Context())
	out := make([]UserResponse, len(rows))
	for i, u := range rows {
		out[i] = newUserResponse(u, decimals.of(u.PoolKey))
	}
	respondPage(w, out, params, total)
}

// ListUserInteractions returns the deposits, withdrawals and claims of one user.
// @Summary List user interactions
// @Tags Users
// @Produce json
// @Param id path string true "User id"
// @Param type query string false "Interaction type" Enums(DEPOSIT, WITHDRAW, CLAIM)
// @Param limit query int false "Page size" default(100)
// @Param offset query int false "Rows to skip" default(0)
// @Success 200 {object} ListResponse{data=[]InteractionResponse}
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /users/{id}/interactions [get]
func (h *Handler) ListUserInteractions(w http.ResponseWriter, r *http.Request) {
	key, ok := pathKey(w, r, identity.KindUser)
	if !ok {
		return
	}
	user, err := h.store.User(r.Context(), key)
	if err != nil {
		h.lookupError(w, "user", err)
		return
	}
	params, ok := h.params(w, r)
	if !ok {
		return
	}
	params.Pool = user.PoolKey.Hex()
	params.Address = user.Address.Hex()

	h.listInteractions(w, r, params)
}

// ListInteractions returns deposits, withdrawals and claims.
// @Summary List interactions
// @Tags Interactions
// @Produce json
// @Param chain_id query integer false "Chain id"
// @Param pool query string false "Pool id"
// @Param address query string false "User address"
// @Param type query string false "Interaction type" Enums(DEPOSIT, WITHDRAW, CLAIM)
// @Param from_block query integer false "From block"
// @Param to_block query integer false "To block"
// @Param sort_by query string false "Sort field" Enums(block_number, amount)
// @Param sort_order query string false "Sort order" Enums(asc, desc)
// @Param limit query int false "Page size" default(100)
// @Param offset query int false "Rows to skip" default(0)
// @Success 200 {object} ListResponse{data=[]InteractionResponse}
// @Failure 400 {object} ErrorResponse
// @Router /interactions [get]
func (h *Handler) ListInteractions(w http.ResponseWriter, r *http.Request) {
	params, ok := h.params(w, r)
	if !ok {
		return
	}
	h.listInteractions(w, r, params)
}

func (h *Handler) listInteractions(w http.ResponseWriter, r *http.Request, params *indexer.QueryParams) {
	rows, total, err := h.store.ListInteractions(r.Context(), *params)
	if err != nil {
		h.queryError(w, "interactions", err)
		return
	}

	decimals := h.poolDecimals(r.Context())
	out := make([]InteractionResponse, len(rows))
	for i, in := range rows {
		out[i] = newInteractionResponse(in, decimals.of(in.PoolKey))
	}
	respondPage(w, out, params, total)
}

// ListReferrals returns referral totals per user and referrer.
// @Summary List referrals
// @Tags Referrals
// @Produce json
// @Param chain_id query integer false "Chain id"
// @Param pool query string false "Pool id"
// @Param address query string false "User or referrer address"
// @Param limit query int false "Page size" default(100)
// @Param offset query int false "Rows to skip" default(0)
// @Success 200 {object} ListResponse{data=[]ReferralResponse}
// @Failure 400 {object} ErrorResponse
// @Router /referrals [get]
func (h *Handler) ListReferrals(w http.ResponseWriter, r *http.Request) {
	params, ok := h.params(w, r)
	if !ok {
		return
	}
	rows, total, err := h.store.ListReferrals(r.Context(), *params)
	if err != nil {
		h.queryError(w, "referrals", err)
		return
	}

	decimals := h.poolDecimals(r.Context())
	out := make([]ReferralResponse, len(rows))
	for i, ref := range rows {
		out[i] = newReferralResponse(ref, decimals.of(ref.PoolKey))
	}
	respondPage(w, out, params, total)
}

// ListReferrers returns referrer totals.
// @Summary List referrers
// @Tags Referrals
// @Produce json
// @Param chain_id query integer false "Chain id"
// @Param pool query string false "Pool id"
// @Param address query string false "Referrer address"
// @Param limit query int false "Page size" default(100)
// @Param offset query int false "Rows to skip" default(0)
// @Success 200 {object} ListResponse{data=[]ReferrerResponse}
// @Failure 400 {object} ErrorResponse
// @Router /referrers [get]
func (h *Handler) ListReferrers(w http.ResponseWriter, r *http.Request) {
	params, ok := h.params(w, r)
	if !ok {
		return
	}
	rows, total, err := h.store.ListReferrers(r.Context(), *params)
	if err != nil {
		h.queryError(w, "referrers", err)
		return
	}

	decimals := h.poolDecimals(r.Context())
	out := make([]ReferrerResponse, len(rows))
	for i, ref := range rows {
		out[i] = newReferrerResponse(ref, decimals.of(ref.PoolKey))
	}
	respondPage(w, out, params, total)
}

// ListTransfers returns classified token transfers.
// @Summary List transfers
// @Tags Transfers
// @Produce json
// @Param chain_id query integer false "Chain id"
// @Param address query string false "Sender or recipient"
// @Param from_block query integer false "From block"
// @Param to_block query integer false "To block"
// @Param limit query int false "Page size" default(100)
// @Param offset query int false "Rows to skip" default(0)
// @Success 200 {object} ListResponse{data=[]TransferResponse}
// @Failure 400 {object} ErrorResponse
// @Router /transfers [get]
func (h *Handler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	params, ok := h.params(w, r)
	if !ok {
		return
	}
	rows, total, err := h.store.ListTransfers(r.Context(), *params)
	if err != nil {
		h.queryError(w, "transfers", err)
		return
	}

	out := make([]TransferResponse, len(rows))
	for i, t := range rows {
		out[i] = newTransferResponse(t, h.contractDecimals(t.ChainID, t.Contract))
	}
	respondPage(w, out, params, total)
}

// ListAdminEvents returns proxy, ownership and factory events.
// @Summary List administrative events
// @Tags Admin
// @Produce json
// @Param chain_id query integer false "Chain id"
// @Param type query string false "Event name"
// @Param address query string false "Contract address"
// @Param limit query int false "Page size" default(100)
// @Param offset query int false "Rows to skip" default(0)
// @Success 200 {object} ListResponse{data=[]AdminEventResponse}
// @Failure 400 {object} ErrorResponse
// @Router /admin-events [get]
func (h *Handler) ListAdminEvents(w http.ResponseWriter, r *http.Request) {
	params, ok := h.params(w, r)
	if !ok {
		return
	}
	rows, total, err := h.store.ListAdminEvents(r.Context(), *params)
	if err != nil {
		h.queryError(w, "admin events", err)
		return
	}

	out := make([]AdminEventResponse, len(rows))
	for i, e := range rows {
		out[i] = newAdminEventResponse(e)
	}
	respondPage(w, out, params, total)
}

// ListRewards returns treasury reward distributions.
// @Summary List reward distributions
// @Tags Rewards
// @Produce json
// @Param chain_id query integer false "Chain id"
// @Param address query string false "Receiver or treasury address"
// @Param limit query int false "Page size" default(100)
// @Param offset query int false "Rows to skip" default(0)
// @Success 200 {object} ListResponse{data=[]RewardResponse}
// @Failure 400 {object} ErrorResponse
// @Router /rewards [get]
func (h *Handler) ListRewards(w http.ResponseWriter, r *http.Request) {
	params, ok := h.params(w, r)
	if !ok {
		return
	}
	rows, total, err := h.store.ListRewardDistributions(r.Context(), *params)
	if err != nil {
		h.queryError(w, "rewards", err)
		return
	}

	out := make([]RewardResponse, len(rows))
	for i, rd := range rows {
		out[i] = newRewardResponse(rd, h.contractDecimals(rd.ChainID, rd.Contract))
	}
	respondPage(w, out, params, total)
}

// PostEvent applies one decoded event delivered by an external chain follower.
// @Summary Ingest event
// @Tags Ingestion
// @Accept json
// @Produce json
// @Param event body indexer.RawEvent true "Decoded event"
// @Success 200 {object} AcceptedResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /events [post]
func (h *Handler) PostEvent(w http.ResponseWriter, r *http.Request) {
	var ev indexer.RawEvent
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBody))
	if err := dec.Decode(&ev); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid event: %v", err))
		return
	}
	if ev.ChainID == 0 {
		respondError(w, http.StatusBadRequest, "chain_id is required")
		return
	}

	if err := h.sink.OnEvent(r.Context(), ev); err != nil {
		h.ingestError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, AcceptedResponse{Status: "ok"})
}

// PostRollback discards every event of a chain above the common ancestor.
// @Summary Roll back a chain
// @Tags Ingestion
// @Accept json
// @Produce json
// @Param chainId path integer true "Chain id"
// @Param request body RollbackRequest true "Common ancestor"
// @Success 200 {object} AcceptedResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /chains/{chainId}/rollback [post]
func (h *Handler) PostRollback(w http.ResponseWriter, r *http.Request) {
	chainID, err := common.ParseQuantity(r.PathValue("chainId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid chain id")
		return
	}

	var req RollbackRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBody)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	if err := h.sink.OnRollback(r.Context(), chainID, req.CommonAncestor); err != nil {
		h.ingestError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, AcceptedResponse{Status: "ok"})
}

func (h *Handler) ingestError(w http.ResponseWriter, err error) {
	var decodeErr *projector.DecodeError
	switch {
	case errors.Is(err, pipeline.ErrUnknownChain):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &decodeErr),
		errors.Is(err, projector.ErrUnknownEvent),
		errors.Is(err, projector.ErrUnknownContract):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, pipeline.ErrChainHalted),
		errors.Is(err, reorg.ErrRollbackInProgress),
		errors.Is(err, reorg.ErrRollbackInconsistency):
		respondError(w, http.StatusConflict, err.Error())
	case store.IsNotFound(err):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, pipeline.ErrStopped):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.internalError(w, "failed to ingest", err)
	}
}

func (h *Handler) params(w http.ResponseWriter, r *http.Request) (*indexer.QueryParams, bool) {
	params, err := parseQueryParams(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid query parameters: %v", err))
		return nil, false
	}
	return params, true
}

func (h *Handler) queryError(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, store.ErrInvalidFilter) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.internalError(w, "failed to query "+what, err)
}

func (h *Handler) lookupError(w http.ResponseWriter, what string, err error) {
	if store.IsNotFound(err) {
		respondError(w, http.StatusNotFound, what+" not found")
		return
	}
	h.internalError(w, "failed to get "+what, err)
}

func (h *Handler) internalError(w http.ResponseWriter, message string, err error) {
	h.log.Errorw(message, "error", err)
	respondError(w, http.StatusInternalServerError, message)
}

func pathKey(w http.ResponseWriter, r *http.Request, kind identity.Kind) (identity.Key, bool) {
	key, err := identity.ParseKey(r.PathValue("id"))
	if err != nil || key.Kind() != kind {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s id", kind))
		return "", false
	}
	return key, true
}

// parseQueryParams parses HTTP query parameters into QueryParams.
func parseQueryParams(r *http.Request) (*indexer.QueryParams, error) {
	params := indexer.NewDefaultQueryParams()
	q := r.URL.Query()

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > indexer.MaxPageLimit {
			return params, fmt.Errorf("invalid limit: must be between 1 and %d", indexer.MaxPageLimit)
		}
		params.Limit = limit
	}

	if offsetStr := q.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			return params, fmt.Errorf("invalid offset: must be non-negative")
		}
		params.Offset = offset
	}

	if chainStr := q.Get("chain_id"); chainStr != "" {
		chainID, err := common.ParseQuantity(chainStr)
		if err != nil {
			return params, fmt.Errorf("invalid chain_id")
		}
		params.ChainID = &chainID
	}

	if fromBlockStr := q.Get("from_block"); fromBlockStr != "" {
		fromBlock, err := common.ParseQuantity(fromBlockStr)
		if err != nil {
			return params, fmt.Errorf("invalid from_block")
		}
		params.FromBlock = &fromBlock
	}

	if toBlockStr := q.Get("to_block"); toBlockStr != "" {
		toBlock, err := common.ParseQuantity(toBlockStr)
		if err != nil {
			return params, fmt.Errorf("invalid to_block")
		}
		params.ToBlock = &toBlock
	}

	if params.FromBlock != nil && params.ToBlock != nil && *params.FromBlock > *params.ToBlock {
		return params, fmt.Errorf("from_block cannot be greater than to_block")
	}

	params.Pool = q.Get("pool")
	params.Address = q.Get("address")
	params.Type = q.Get("type")

	if sortBy := q.Get("sort_by"); sortBy != "" {
		params.SortBy = strings.ToLower(sortBy)
	}

	if sortOrder := q.Get("sort_order"); sortOrder != "" {
		sortOrder = strings.ToLower(sortOrder)
		if sortOrder != "asc" && sortOrder != "desc" {
			return params, fmt.Errorf("invalid sort_order: must be 'asc' or 'desc'")
		}
		params.SortOrder = sortOrder
	}

	return params, nil
}

func respondPage[T any](w http.ResponseWriter, rows []T, params *indexer.QueryParams, total int) {
	respondJSON(w, http.StatusOK, ListResponse{
		Data: rows,
		Pagination: PaginationResult{
			Total:   total,
			Limit:   params.Limit,
			Offset:  params.Offset,
			HasMore: params.Offset+len(rows) < total,
		},
	})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")

	// encode first so a failure can still change the status
	encoded, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	_, _ = w.Write(encoded)
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}
