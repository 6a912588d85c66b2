// Package identity derives the composite keys of every stored entity.
//
// A key is the concatenation of a kind byte, the 8-byte big-endian chain id and
// a sequence of fields. Every field is written as a one-byte type tag followed by
// a fixed-width value (nested keys carry a one-byte length instead), so the
// encoding is a prefix code: two different field sequences can never produce
// the same bytes.
package identity

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Kind identifies the entity type a key belongs to.
type Kind byte

const (
	KindPool     Kind = 0x01
	KindUser     Kind = 0x02
	KindEvent    Kind = 0x03
	KindReferral Kind = 0x04
	KindReferrer Kind = 0x05
)

func (k Kind) String() string {
	switch k {
	case KindPool:
		return "pool"
	case KindUser:
		return "user"
	case KindEvent:
		return "event"
	case KindReferral:
		return "referral"
	case KindReferrer:
		return "referrer"
	default:
		return fmt.Sprintf("kind(%d)", byte(k))
	}
}

const (
	tagAddress byte = 0xa0
	tagHash    byte = 0xb0
	tagUint32  byte = 0xc0
	tagKey     byte = 0xd0

	headerLen = 1 + 8
	maxKeyLen = 255
)

// ErrInvalidKey is returned when a key cannot be parsed.
var ErrInvalidKey = errors.New("invalid key")

// Key is an immutable binary entity key. The zero value is the empty key.
type Key string

// Field is one fixed-width component of a key.
type Field struct {
	tag   byte
	value []byte
}

// Address encodes a 20-byte account or contract address.
func Address(a common.Address) Field {
	return Field{tag: tagAddress, value: a.Bytes()}
}

// Hash encodes a 32-byte value: transaction hashes, subnet ids and uint256 pool indexes.
func Hash(h common.Hash) Field {
	return Field{tag: tagHash, value: h.Bytes()}
}

// Uint32 encodes a 4-byte big-endian integer such as a log index.
func Uint32(v uint32) Field {
	return Field{tag: tagUint32, value: binary.BigEndian.AppendUint32(nil, v)}
}

// Nested embeds another key, e.g. the pool key inside a user key.
func Nested(k Key) Field {
	return Field{tag: tagKey, value: []byte(k)}
}

// DeriveKey builds the key of an entity of the given kind on the given chain.
// Equal inputs always give equal keys and distinct inputs give distinct keys.
func DeriveKey(kind Kind, chainID uint64, fields ...Field) Key {
	size := headerLen
	for _, f := range fields {
		size += 2 + len(f.value)
	}

	buf := make([]byte, 0, size)
	buf = append(buf, byte(kind))
	buf = binary.BigEndian.AppendUint64(buf, chainID)
	for _, f := range fields {
		buf = append(buf, f.tag)
		if f.tag == tagKey {
			if len(f.value) > maxKeyLen {
				panic(fmt.Sprintf("identity: nested key too long (%d bytes)", len(f.value)))
			}
			buf = append(buf, byte(len(f.value)))
		}
		buf = append(buf, f.value...)
	}

	return Key(buf)
}

// RewardPoolKey is the key of a deposit-pool family pool: one reward pool index
// served by one deposit pool contract.
func RewardPoolKey(chainID uint64, rewardPoolIndex common.Hash, depositPool common.Address) Key {
	return DeriveKey(KindPool, chainID, Hash(rewardPoolIndex), Address(depositPool))
}

// SubnetPoolKey is the key of a builders family pool identified by its subnet id.
func SubnetPoolKey(chainID uint64, subnetID common.Hash) Key {
	return DeriveKey(KindPool, chainID, Hash(subnetID))
}

// UserKey is the key of a user position inside a pool.
func UserKey(pool Key, user common.Address) Key {
	return DeriveKey(KindUser, pool.ChainID(), Nested(pool), Address(user))
}

// EventKey is the key of a delivered log.
func EventKey(chainID uint64, txHash common.Hash, logIndex uint32) Key {
	return DeriveKey(KindEvent, chainID, Hash(txHash), Uint32(logIndex))
}

// ReferralKey is the key of a (user, referrer) relationship inside a pool.
func ReferralKey(pool Key, user, referrer common.Address) Key {
	return DeriveKey(KindReferral, pool.ChainID(), Nested(pool), Address(user), Address(referrer))
}

// ReferrerKey is the key of a referrer inside a pool.
func ReferrerKey(pool Key, referrer common.Address) Key {
	return DeriveKey(KindReferrer, pool.ChainID(), Nested(pool), Address(referrer))
}

// Kind returns the entity kind encoded in the key.
func (k Key) Kind() Kind {
	if len(k) == 0 {
		return 0
	}
	return Kind(k[0])
}

// ChainID returns the chain id encoded in the key, or 0 for a malformed key.
func (k Key) ChainID() uint64 {
	if len(k) < headerLen {
		return 0
	}
	return binary.BigEndian.Uint64([]byte(k[1:headerLen]))
}

// IsZero reports whether the key is empty.
func (k Key) IsZero() bool {
	return len(k) == 0
}

// Bytes returns a copy of the raw key bytes.
func (k Key) Bytes() []byte {
	return []byte(k)
}

// Hex returns the 0x-prefixed hex form used for storage and the API.
func (k Key) Hex() string {
	return "0x" + hex.EncodeToString([]byte(k))
}

func (k Key) String() string {
	return k.Hex()
}

// ParseKey parses the hex form produced by Hex.
func ParseKey(s string) (Key, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	if len(raw) < headerLen {
		return "", fmt.Errorf("%w: %d bytes is shorter than the key header", ErrInvalidKey, len(raw))
	}
	return Key(raw), nil
}
