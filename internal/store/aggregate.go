package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/MorpheusAIs/ponder-builders-index/internal/identity"
	"github.com/russross/meddler"
)

// Aggregate is the closed set of mutable entities kept by the store.
type Aggregate interface {
	Pool | User | Referral | Referrer
}

type aggregatePtr[T Aggregate] interface {
	*T
	table() string
	kind() identity.Kind
	entityKey() identity.Key
}

func (*Pool) table() string            { return "pools" }
func (*Pool) kind() identity.Kind      { return identity.KindPool }
func (p *Pool) entityKey() identity.Key { return p.Key }

func (*User) table() string            { return "users" }
func (*User) kind() identity.Kind      { return identity.KindUser }
func (u *User) entityKey() identity.Key { return u.Key }

func (*Referral) table() string            { return "referrals" }
func (*Referral) kind() identity.Kind      { return identity.KindReferral }
func (r *Referral) entityKey() identity.Key { return r.Key }

func (*Referrer) table() string            { return "referrers" }
func (*Referrer) kind() identity.Kind      { return identity.KindReferrer }
func (r *Referrer) entityKey() identity.Key { return r.Key }

// Delta mutates an aggregate in place. Implementations must reject
// mutations that break the aggregate's invariants.
type Delta[T Aggregate] interface {
	Apply(*T) error
}

// DeltaFunc adapts a function to Delta.
type DeltaFunc[T Aggregate] func(*T) error

func (f DeltaFunc[T]) Apply(row *T) error { return f(row) }

// FindByID loads an aggregate by key. It returns an EntityNotFoundError when absent.
func FindByID[T Aggregate, PT aggregatePtr[T]](q meddler.DB, key identity.Key) (*T, error) {
	row := new(T)
	query := fmt.Sprintf("SELECT * FROM %s WHERE id = ?", PT(row).table())
	if err := meddler.QueryRow(q, row, query, key.Hex()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewEntityNotFoundError(PT(row).kind(), key)
		}
		return nil, fmt.Errorf("failed to load %s %s: %w", PT(row).kind(), key.Hex(), err)
	}
	return row, nil
}

// Exists reports whether an aggregate with the key is stored.
func Exists[T Aggregate, PT aggregatePtr[T]](q meddler.DB, key identity.Key) (bool, error) {
	var n int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE id = ?", PT(new(T)).table())
	if err := q.QueryRow(query, key.Hex()).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Upsert returns the stored aggregate with the key of initial, inserting
// initial first when none exists. created is true when the row was inserted.
func Upsert[T Aggregate, PT aggregatePtr[T]](q meddler.DB, initial *T) (row *T, created bool, err error) {
	key := PT(initial).entityKey()
	row, err = FindByID[T, PT](q, key)
	if err == nil {
		return row, false, nil
	}
	if !IsNotFound(err) {
		return nil, false, err
	}

	if err := meddler.Insert(q, PT(initial).table(), initial); err != nil {
		return nil, false, fmt.Errorf("failed to insert %s %s: %w", PT(initial).kind(), key.Hex(), err)
	}
	return initial, true, nil
}

// ApplyDelta loads the aggregate, applies the delta and writes it back.
// A missing aggregate yields an EntityNotFoundError and nothing is written.
func ApplyDelta[T Aggregate, PT aggregatePtr[T]](q meddler.DB, key identity.Key, delta Delta[T]) (*T, error) {
	row, err := FindByID[T, PT](q, key)
	if err != nil {
		return nil, err
	}
	if err := delta.Apply(row); err != nil {
		return nil, fmt.Errorf("%s %s: %w", PT(row).kind(), key.Hex(), err)
	}
	if err := Put[T, PT](q, row); err != nil {
		return nil, err
	}
	return row, nil
}

// Put overwrites every column of an existing aggregate.
func Put[T Aggregate, PT aggregatePtr[T]](q meddler.DB, row *T) error {
	p := PT(row)
	return updateRow(q, p.table(), p.kind(), p.entityKey(), row)
}

// Insert stores a new aggregate. An existing key is a unique violation.
func Insert[T Aggregate, PT aggregatePtr[T]](q meddler.DB, row *T) error {
	p := PT(row)
	if err := meddler.Insert(q, p.table(), row); err != nil {
		return fmt.Errorf("failed to insert %s %s: %w", p.kind(), p.entityKey().Hex(), err)
	}
	return nil
}

// Delete removes an aggregate. Deleting a missing key is not an error.
func Delete[T Aggregate, PT aggregatePtr[T]](q meddler.DB, key identity.Key) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", PT(new(T)).table())
	if _, err := q.Exec(query, key.Hex()); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key.Hex(), err)
	}
	return nil
}

// updateRow writes all meddler columns of row except id.
func updateRow(q meddler.DB, table string, kind identity.Kind, key identity.Key, row any) error {
	columns, err := meddler.Columns(row, true)
	if err != nil {
		return err
	}
	values, err := meddler.Values(row, true)
	if err != nil {
		return err
	}

	sets := make([]string, 0, len(columns))
	args := make([]any, 0, len(values))
	for i, col := range columns {
		if col == "id" {
			continue
		}
		sets = append(sets, col+" = ?")
		args = append(args, values[i])
	}
	args = append(args, key.Hex())

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", table, strings.Join(sets, ", "))
	res, err := q.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s %s: %w", kind, key.Hex(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return NewEntityNotFoundError(kind, key)
	}
	return nil
}
