package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is Postgres's SQLSTATE for a unique-constraint failure.
const uniqueViolation = "23505"

// ErrDepositNotFound is returned when a deposit lookup matches no row.
var ErrDepositNotFound = errors.New("deposit not found")

// ErrDepositAlreadySeen is returned by CreateDeposit when tx_hash already has
// a deposit row (the unique constraint fired) — the caller's dedupe check
// via the KV tx-seen index should normally prevent this, but the DB
// constraint is the authoritative backstop.
var ErrDepositAlreadySeen = errors.New("deposit already recorded for this transaction")

// Deposit is one classified, persisted on-chain transfer. ChainName and
// TokenAddress identify which configured chain/token it was scanned from,
// so an operator retrying a failed sweep knows which RPC and contract to
// use without having to guess from the tx hash alone.
type Deposit struct {
	ID                  uuid.UUID  `json:"id"`
	CustomerRef         uuid.UUID  `json:"customer_ref"`
	AmountMinor         int64      `json:"amount_minor"`
	TxHash              string     `json:"tx_hash"`
	ChainName           string     `json:"chain_name"`
	TokenAddress        string     `json:"token_address"`
	CreatedAt           time.Time  `json:"created_at"`
	SettledAmountMinor  *int64     `json:"settled_amount_minor,omitempty"`
	SettledTxHash       *string    `json:"settled_tx_hash,omitempty"`
	SettledAt           *time.Time `json:"settled_at,omitempty"`
}

// CreateDeposit persists a classified deposit. tx_hash is unique, so a
// duplicate scan of the same on-chain transfer fails with
// ErrDepositAlreadySeen rather than double-recording it.
func (db *DB) CreateDeposit(ctx context.Context, customerRef uuid.UUID, amountMinor int64, txHash, chainName, tokenAddress string) (*Deposit, error) {
	d := &Deposit{
		ID:           uuid.New(),
		CustomerRef:  customerRef,
		AmountMinor:  amountMinor,
		TxHash:       txHash,
		ChainName:    chainName,
		TokenAddress: tokenAddress,
		CreatedAt:    time.Now().UTC(),
	}

	_, err := db.pool.Exec(ctx, `
		INSERT INTO deposits (id, customer_ref, amount_minor, tx_hash, chain_name, token_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, d.ID, d.CustomerRef, d.AmountMinor, d.TxHash, d.ChainName, d.TokenAddress, d.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrDepositAlreadySeen
		}
		return nil, fmt.Errorf("failed to create deposit: %w", err)
	}

	return d, nil
}

// GetDeposit retrieves a deposit by ID.
func (db *DB) GetDeposit(ctx context.Context, id uuid.UUID) (*Deposit, error) {
	d := &Deposit{}
	err := db.QueryRow(ctx, `
		SELECT id, customer_ref, amount_minor, tx_hash, chain_name, token_address, created_at,
		       settled_amount_minor, settled_tx_hash, settled_at
		FROM deposits
		WHERE id = $1
	`, id).Scan(&d.ID, &d.CustomerRef, &d.AmountMinor, &d.TxHash, &d.ChainName, &d.TokenAddress, &d.CreatedAt,
		&d.SettledAmountMinor, &d.SettledTxHash, &d.SettledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDepositNotFound
		}
		return nil, fmt.Errorf("failed to get deposit: %w", err)
	}
	return d, nil
}

// SettleDeposit records the result of a successful sweep. Deposits that fail
// to sweep are left with these fields null — the engine does not retry
// automatically; an operator retries out of band.
func (db *DB) SettleDeposit(ctx context.Context, id uuid.UUID, settledAmountMinor int64, settledTxHash string) error {
	now := time.Now().UTC()
	_, err := db.pool.Exec(ctx, `
		UPDATE deposits
		SET settled_amount_minor = $1, settled_tx_hash = $2, settled_at = $3
		WHERE id = $4
	`, settledAmountMinor, settledTxHash, now, id)
	if err != nil {
		return fmt.Errorf("failed to settle deposit: %w", err)
	}
	return nil
}

// GetUnsettledDeposits returns deposits with no settlement recorded yet, for
// operator-driven sweep retries.
func (db *DB) GetUnsettledDeposits(ctx context.Context, limit int) ([]*Deposit, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.pool.Query(ctx, `
		SELECT id, customer_ref, amount_minor, tx_hash, chain_name, token_address, created_at,
		       settled_amount_minor, settled_tx_hash, settled_at
		FROM deposits
		WHERE settled_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get unsettled deposits: %w", err)
	}
	defer rows.Close()

	var deposits []*Deposit
	for rows.Next() {
		d := &Deposit{}
		if err := rows.Scan(&d.ID, &d.CustomerRef, &d.AmountMinor, &d.TxHash, &d.ChainName, &d.TokenAddress, &d.CreatedAt,
			&d.SettledAmountMinor, &d.SettledTxHash, &d.SettledAt); err != nil {
			return nil, fmt.Errorf("failed to scan deposit: %w", err)
		}
		deposits = append(deposits, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deposits: %w", err)
	}

	return deposits, nil
}
