package reorg

import (
	"errors"
	"fmt"

	"github.com/MorpheusAIs/ponder-builders-index/internal/identity"
)

var (
	// ErrRollbackInconsistency is matched by every RollbackInconsistencyError.
	ErrRollbackInconsistency = errors.New("rollback inconsistency")

	// ErrRollbackInProgress is returned when a rollback of the same chain is already running.
	ErrRollbackInProgress = errors.New("rollback already in progress")
)

// RollbackInconsistencyError is returned when a retained log row references
// an aggregate that no longer exists. The rollback transaction is aborted.
type RollbackInconsistencyError struct {
	ChainID  uint64
	Ancestor uint64
	Kind     identity.Kind
	Key      identity.Key
	Record   identity.Key
}

// NewRollbackInconsistencyError creates a new RollbackInconsistencyError.
func NewRollbackInconsistencyError(chainID, ancestor uint64, kind identity.Kind, key, record identity.Key) error {
	return &RollbackInconsistencyError{
		ChainID:  chainID,
		Ancestor: ancestor,
		Kind:     kind,
		Key:      key,
		Record:   record,
	}
}

func (e *RollbackInconsistencyError) Error() string {
	return fmt.Sprintf("rollback of chain %d to block %d: record %s references missing %s %s",
		e.ChainID, e.Ancestor, e.Record.Hex(), e.Kind, e.Key.Hex())
}

func (e *RollbackInconsistencyError) Is(target error) bool {
	return target == ErrRollbackInconsistency
}
