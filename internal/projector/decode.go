package projector

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"slices"
	"strconv"
	"strings"

	"github.com/MorpheusAIs/ponder-builders-index/pkg/config"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Argument names used by the different contract versions for the same value.
var (
	argPoolID   = []string{"rewardPoolIndex", "poolId", "subnetId", "subnetId_", "builderPoolId"}
	argUser     = []string{"user", "user_"}
	argAmount   = []string{"amount", "amount_"}
	argReceiver = []string{"receiver", "receiver_"}
	argReferrer = []string{"referrer", "referrer_"}
)

var (
	depositEvents  = []string{"UserStaked", "UserDeposited", "Deposited"}
	withdrawEvents = []string{"UserWithdrawn", "Withdrawn"}
	claimEvents    = []string{"UserClaimed", "Claimed"}
	createdEvents  = []string{"SubnetCreated", "BuilderPoolCreated"}

	// adminEvents are kept verbatim on every contract kind.
	adminEvents = []string{
		"AdminChanged",
		"BeaconUpgraded",
		"Initialized",
		"Upgraded",
		"OwnershipTransferred",
	}
)

// Decode turns a delivered event of a contract of the given kind into its typed form.
func Decode(kind, event string, args map[string]any) (Event, error) {
	a := &argSet{event: event, values: args}

	switch kind {
	case config.ContractKindDepositPool, config.ContractKindBuilders:
		if ev, ok := decodeStaking(a); ok {
			return a.result(ev)
		}
		if kind == config.ContractKindBuilders {
			if ev, ok := decodeSubnet(a); ok {
				return a.result(ev)
			}
		}

	case config.ContractKindToken:
		if event == "Transfer" {
			return a.result(Transfer{
				From:  a.address("from", "src"),
				To:    a.address("to", "dst"),
				Value: a.amount("value", "wad", "amount"),
			})
		}

	case config.ContractKindTreasury:
		if event == "RewardSent" {
			return a.result(RewardSent{
				Receiver: a.address("receiver", "receiver_", "to"),
				Amount:   a.amount(argAmount...),
			})
		}

	case config.ContractKindFactory:
		return adminAction(event, args), nil
	}

	if slices.Contains(adminEvents, event) {
		return adminAction(event, args), nil
	}
	return nil, fmt.Errorf("%w: %s on %s contract", ErrUnknownEvent, event, kind)
}

func decodeStaking(a *argSet) (Event, bool) {
	switch {
	case slices.Contains(depositEvents, a.event):
		return Deposit{PoolID: a.hash(argPoolID...), User: a.address(argUser...), Amount: a.amount(argAmount...)}, true
	case slices.Contains(withdrawEvents, a.event):
		return Withdraw{PoolID: a.hash(argPoolID...), User: a.address(argUser...), Amount: a.amount(argAmount...)}, true
	case slices.Contains(claimEvents, a.event):
		return Claim{
			PoolID:   a.hash(argPoolID...),
			User:     a.address(argUser...),
			Receiver: a.address(argReceiver...),
			Amount:   a.amount(argAmount...),
		}, true
	case a.event == "UserReferred":
		return UserReferred{
			PoolID:   a.hash(argPoolID...),
			User:     a.address(argUser...),
			Referrer: a.address(argReferrer...),
			Amount:   a.amount(argAmount...),
		}, true
	case a.event == "ReferrerClaimed":
		return ReferrerClaimed{
			PoolID:   a.hash(argPoolID...),
			Referrer: a.address(argReferrer...),
			Receiver: a.address(argReceiver...),
			Amount:   a.amount(argAmount...),
		}, true
	}
	return nil, false
}

func decodeSubnet(a *argSet) (Event, bool) {
	switch {
	case slices.Contains(createdEvents, a.event):
		id := a.hash(argPoolID...)
		s := a.nested("subnet", "subnet_", "builderPool", "pool")
		ev := SubnetCreated{
			SubnetID:           id,
			SubnetName:         s.optString("name"),
			Admin:              s.optAddress("admin"),
			ClaimAdmin:         s.optAddress("claimAdmin"),
			MinimalDeposit:     s.optAmount("minimalDeposit"),
			WithdrawLockPeriod: s.optUint("withdrawLockPeriodAfterDeposit", "withdrawLockPeriod"),
			StartsAt:           s.optUint("poolStart", "startsAt"),
			ClaimLockEnd:       s.optUint("claimLockEnd"),
		}
		return ev, true

	case a.event == "SubnetMetadataEdited":
		id := a.hash(argPoolID...)
		m := a.nested("metadata_", "metadata")
		return SubnetMetadataEdited{
			SubnetID:    id,
			Slug:        m.optString("slug"),
			Description: m.optString("description"),
			Website:     m.optString("website"),
			Image:       m.optString("image"),
		}, true
	}
	return nil, false
}

func adminAction(event string, args map[string]any) AdminAction {
	out := make(map[string]string, len(args))
	for k, v := range args {
		out[k] = formatArg(v)
	}
	return AdminAction{Event: event, Args: out}
}

// argSet reads typed values out of decoded event arguments. The first failure
// is kept in err and later reads return zero values.
type argSet struct {
	event  string
	values map[string]any
	err    error
	parent *argSet
}

func (a *argSet) fail(name string, err error) {
	root := a
	for root.parent != nil {
		root = root.parent
	}
	if root.err == nil {
		root.err = &DecodeError{Event: a.event, Arg: name, Err: err}
	}
}

func (a *argSet) result(ev Event) (Event, error) {
	if a.err != nil {
		return nil, a.err
	}
	return ev, nil
}

func (a *argSet) lookup(names ...string) (string, any, bool) {
	for _, n := range names {
		if v, ok := a.values[n]; ok && v != nil {
			return n, v, true
		}
	}
	return strings.Join(names, "|"), nil, false
}

func (a *argSet) require(names ...string) (string, any, bool) {
	name, v, ok := a.lookup(names...)
	if !ok {
		a.fail(name, errMissingArg)
	}
	return name, v, ok
}

// nested returns the struct argument with one of the given names, or the
// argument set itself when the event carries the fields flat.
func (a *argSet) nested(names ...string) *argSet {
	if _, v, ok := a.lookup(names...); ok {
		if m, ok := v.(map[string]any); ok {
			return &argSet{event: a.event, values: m, parent: a}
		}
	}
	return a
}

func (a *argSet) address(names ...string) common.Address {
	name, v, ok := a.require(names...)
	if !ok {
		return common.Address{}
	}
	addr, err := parseAddress(v)
	if err != nil {
		a.fail(name, err)
	}
	return addr
}

func (a *argSet) optAddress(names ...string) *common.Address {
	name, v, ok := a.lookup(names...)
	if !ok {
		return nil
	}
	addr, err := parseAddress(v)
	if err != nil {
		a.fail(name, err)
		return nil
	}
	if addr == (common.Address{}) {
		return nil
	}
	return &addr
}

func (a *argSet) amount(names ...string) *big.Int {
	name, v, ok := a.require(names...)
	if !ok {
		return new(big.Int)
	}
	n, err := parseBig(v)
	if err != nil {
		a.fail(name, err)
		return new(big.Int)
	}
	return n
}

func (a *argSet) optAmount(names ...string) *big.Int {
	name, v, ok := a.lookup(names...)
	if !ok {
		return nil
	}
	n, err := parseBig(v)
	if err != nil {
		a.fail(name, err)
		return nil
	}
	return n
}

func (a *argSet) optUint(names ...string) *uint64 {
	n := a.optAmount(names...)
	if n == nil {
		return nil
	}
	if !n.IsUint64() {
		name, _, _ := a.lookup(names...)
		a.fail(name, errOutOfRange)
		return nil
	}
	u := n.Uint64()
	return &u
}

func (a *argSet) optString(names ...string) *string {
	_, v, ok := a.lookup(names...)
	if !ok {
		return nil
	}
	s := formatArg(v)
	if s == "" {
		return nil
	}
	return &s
}

func (a *argSet) hash(names ...string) common.Hash {
	name, v, ok := a.require(names...)
	if !ok {
		return common.Hash{}
	}
	h, err := parseHash(v)
	if err != nil {
		a.fail(name, err)
	}
	return h
}

func parseAddress(v any) (common.Address, error) {
	switch t := v.(type) {
	case common.Address:
		return t, nil
	case *common.Address:
		return *t, nil
	case string:
		if !common.IsHexAddress(t) {
			return common.Address{}, fmt.Errorf("%q is not an address", t)
		}
		return common.HexToAddress(t), nil
	}
	return common.Address{}, fmt.Errorf("unsupported address type %T", v)
}

// parseBig accepts decimal or 0x-prefixed strings, JSON numbers and integer types.
// Negative values are rejected: every amount is a uint.
func parseBig(v any) (*big.Int, error) {
	var n *big.Int
	switch t := v.(type) {
	case *big.Int:
		n = new(big.Int).Set(t)
	case string:
		var ok bool
		s := strings.TrimSpace(t)
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			n, ok = new(big.Int).SetString(s[2:], 16)
		} else {
			n, ok = new(big.Int).SetString(s, 10)
		}
		if !ok {
			return nil, fmt.Errorf("%q is not an integer", t)
		}
	case json.Number:
		return parseBig(t.String())
	case float64:
		if t != math.Trunc(t) || math.Abs(t) > 1<<53 {
			return nil, fmt.Errorf("%v cannot be represented exactly", t)
		}
		n = big.NewInt(int64(t))
	case int:
		n = big.NewInt(int64(t))
	case int64:
		n = big.NewInt(t)
	case uint64:
		n = new(big.Int).SetUint64(t)
	default:
		return nil, fmt.Errorf("unsupported integer type %T", v)
	}
	if n.Sign() < 0 {
		return nil, errOutOfRange
	}
	return n, nil
}

// parseHash accepts a 32-byte hex string or an integer, which is widened to
// 32 bytes the way uint256 pool indexes are ABI encoded.
func parseHash(v any) (common.Hash, error) {
	switch t := v.(type) {
	case common.Hash:
		return t, nil
	case [32]byte:
		return common.Hash(t), nil
	case string:
		if strings.HasPrefix(t, "0x") && len(t) == 2+2*common.HashLength {
			b, err := hexutil.Decode(t)
			if err != nil {
				return common.Hash{}, fmt.Errorf("invalid bytes32 %q: %w", t, err)
			}
			return common.BytesToHash(b), nil
		}
	}
	n, err := parseBig(v)
	if err != nil {
		return common.Hash{}, err
	}
	if n.BitLen() > 8*common.HashLength {
		return common.Hash{}, errOutOfRange
	}
	return common.BigToHash(n), nil
}

// formatArg renders an argument for verbatim storage.
func formatArg(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case fmt.Stringer:
		return t.String()
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}
