package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetScannedBlock returns the last block scanned for chainName, or 0 if the
// chain has no cursor row yet (a fresh scanner starts from the chain's
// current tip in that case, not from genesis).
func (db *DB) GetScannedBlock(ctx context.Context, chainName string) (int64, error) {
	var block int64
	err := db.QueryRow(ctx, `
		SELECT last_scanned_block FROM chain_cursors WHERE chain_name = $1
	`, chainName).Scan(&block)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get scanned block for %s: %w", chainName, err)
	}
	return block, nil
}

// SetScannedBlock upserts the scan cursor for chainName.
func (db *DB) SetScannedBlock(ctx context.Context, chainName string, block int64) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO chain_cursors (chain_name, last_scanned_block, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (chain_name) DO UPDATE
		SET last_scanned_block = EXCLUDED.last_scanned_block, updated_at = EXCLUDED.updated_at
	`, chainName, block)
	if err != nil {
		return fmt.Errorf("failed to set scanned block for %s: %w", chainName, err)
	}
	return nil
}
