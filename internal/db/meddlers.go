package db

import (
	"database/sql"
	"fmt"
	"math/big"

	"github.com/MorpheusAIs/ponder-builders-index/internal/identity"
	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"
)

func init() {
	meddler.Register("address", AddressMeddler{})
	meddler.Register("hash", HashMeddler{})
	meddler.Register("key", KeyMeddler{})
	meddler.Register("bigint", BigIntMeddler{})
}

// textColumn is the scan target shared by every text-backed meddler.
func textColumn() (any, error) {
	return new(sql.NullString), nil
}

func scannedText(scanTarget any) (sql.NullString, error) {
	ns, ok := scanTarget.(*sql.NullString)
	if !ok {
		return sql.NullString{}, fmt.Errorf("expected *sql.NullString, got %T", scanTarget)
	}
	return *ns, nil
}

// AddressMeddler stores common.Address as checksummed hex.
type AddressMeddler struct{}

func (AddressMeddler) PreRead(fieldAddr any) (any, error) { return textColumn() }

func (AddressMeddler) PostRead(fieldAddr, scanTarget any) error {
	ns, err := scannedText(scanTarget)
	if err != nil {
		return err
	}

	switch ptr := fieldAddr.(type) {
	case *common.Address:
		*ptr = common.Address{}
		if ns.Valid {
			*ptr = common.HexToAddress(ns.String)
		}
	case **common.Address:
		*ptr = nil
		if ns.Valid {
			a := common.HexToAddress(ns.String)
			*ptr = &a
		}
	default:
		return fmt.Errorf("address meddler: unsupported field type %T", fieldAddr)
	}
	return nil
}

func (AddressMeddler) PreWrite(field any) (any, error) {
	switch v := field.(type) {
	case common.Address:
		return v.Hex(), nil
	case *common.Address:
		if v == nil {
			return nil, nil
		}
		return v.Hex(), nil
	default:
		return nil, fmt.Errorf("address meddler: unsupported field type %T", field)
	}
}

// HashMeddler stores common.Hash as 0x-prefixed hex.
type HashMeddler struct{}

func (HashMeddler) PreRead(fieldAddr any) (any, error) { return textColumn() }

func (HashMeddler) PostRead(fieldAddr, scanTarget any) error {
	ns, err := scannedText(scanTarget)
	if err != nil {
		return err
	}

	switch ptr := fieldAddr.(type) {
	case *common.Hash:
		*ptr = common.Hash{}
		if ns.Valid {
			*ptr = common.HexToHash(ns.String)
		}
	case **common.Hash:
		*ptr = nil
		if ns.Valid {
			h := common.HexToHash(ns.String)
			*ptr = &h
		}
	default:
		return fmt.Errorf("hash meddler: unsupported field type %T", fieldAddr)
	}
	return nil
}

func (HashMeddler) PreWrite(field any) (any, error) {
	switch v := field.(type) {
	case common.Hash:
		return v.Hex(), nil
	case *common.Hash:
		if v == nil {
			return nil, nil
		}
		return v.Hex(), nil
	default:
		return nil, fmt.Errorf("hash meddler: unsupported field type %T", field)
	}
}

// KeyMeddler stores identity.Key as hex. An empty key is stored as NULL.
type KeyMeddler struct{}

func (KeyMeddler) PreRead(fieldAddr any) (any, error) { return textColumn() }

func (KeyMeddler) PostRead(fieldAddr, scanTarget any) error {
	ns, err := scannedText(scanTarget)
	if err != nil {
		return err
	}

	ptr, ok := fieldAddr.(*identity.Key)
	if !ok {
		return fmt.Errorf("key meddler: unsupported field type %T", fieldAddr)
	}
	if !ns.Valid {
		*ptr = ""
		return nil
	}

	key, err := identity.ParseKey(ns.String)
	if err != nil {
		return err
	}
	*ptr = key
	return nil
}

func (KeyMeddler) PreWrite(field any) (any, error) {
	key, ok := field.(identity.Key)
	if !ok {
		return nil, fmt.Errorf("key meddler: unsupported field type %T", field)
	}
	if key.IsZero() {
		return nil, nil
	}
	return key.Hex(), nil
}

// BigIntMeddler stores *big.Int as a base-10 string. uint256 amounts overflow
// every SQLite numeric type; NULL reads back as zero.
type BigIntMeddler struct{}

func (BigIntMeddler) PreRead(fieldAddr any) (any, error) { return textColumn() }

func (BigIntMeddler) PostRead(fieldAddr, scanTarget any) error {
	ns, err := scannedText(scanTarget)
	if err != nil {
		return err
	}

	ptr, ok := fieldAddr.(**big.Int)
	if !ok {
		return fmt.Errorf("bigint meddler: unsupported field type %T", fieldAddr)
	}

	value := new(big.Int)
	if ns.Valid && ns.String != "" {
		if _, ok := value.SetString(ns.String, 10); !ok {
			return fmt.Errorf("bigint meddler: invalid integer %q", ns.String)
		}
	}
	*ptr = value
	return nil
}

func (BigIntMeddler) PreWrite(field any) (any, error) {
	value, ok := field.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("bigint meddler: unsupported field type %T", field)
	}
	if value == nil {
		return "0", nil
	}
	return value.String(), nil
}
