package store

import (
	"database/sql"
	"errors"
	"fmt"
	"math/big"

	"github.com/russross/meddler"
)

// AdvanceCheckpoint moves the chain checkpoint forward. Positions at or
// behind the stored one are ignored.
func AdvanceCheckpoint(q meddler.DB, chainID, block uint64, logIndex uint32) error {
	const query = `
		INSERT INTO chain_checkpoints (chain_id, last_block, last_log_index)
		VALUES (?, ?, ?)
		ON CONFLICT(chain_id) DO UPDATE SET
			last_block = excluded.last_block,
			last_log_index = excluded.last_log_index
		WHERE excluded.last_block > chain_checkpoints.last_block
			OR (excluded.last_block = chain_checkpoints.last_block
				AND excluded.last_log_index > chain_checkpoints.last_log_index)
	`
	if _, err := q.Exec(query, chainID, block, logIndex); err != nil {
		return fmt.Errorf("failed to advance checkpoint of chain %d: %w", chainID, err)
	}
	return nil
}

// RewindCheckpoint moves the chain checkpoint back to block if it is beyond it.
func RewindCheckpoint(q meddler.DB, chainID, block uint64) error {
	const query = `
		UPDATE chain_checkpoints
		SET last_block = ?, last_log_index = 0
		WHERE chain_id = ? AND last_block > ?
	`
	if _, err := q.Exec(query, block, chainID, block); err != nil {
		return fmt.Errorf("failed to rewind checkpoint of chain %d: %w", chainID, err)
	}
	return nil
}

// GetCheckpoint returns the checkpoint of a chain, or nil if nothing was processed.
func GetCheckpoint(q meddler.DB, chainID uint64) (*Checkpoint, error) {
	var cp Checkpoint
	err := meddler.QueryRow(q, &cp, "SELECT * FROM chain_checkpoints WHERE chain_id = ?", chainID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint of chain %d: %w", chainID, err)
	}
	return &cp, nil
}

// Checkpoints returns the checkpoints of all chains ordered by chain id.
func Checkpoints(q meddler.DB) ([]*Checkpoint, error) {
	var cps []*Checkpoint
	if err := meddler.QueryAll(q, &cps, "SELECT * FROM chain_checkpoints ORDER BY chain_id"); err != nil {
		return nil, fmt.Errorf("failed to load checkpoints: %w", err)
	}
	return cps, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
