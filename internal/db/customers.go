package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrCustomerNotFound is returned when a customer lookup matches no row.
var ErrCustomerNotFound = errors.New("customer not found")

// Customer is one merchant's end customer, identified by the merchant's own
// reference for that customer plus an external account label. CustomerSeq is
// the uint32 fed to keyderiv.Derive as the customer ID component.
type Customer struct {
	ID              uuid.UUID `json:"id"`
	MerchantRef     string    `json:"merchant_ref"`
	ExternalAccount string    `json:"external_account"`
	EthAddress      string    `json:"eth_address"`
	CustomerSeq     uint32    `json:"customer_seq"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NextCustomerSeq reserves the next value of the customers.customer_seq
// sequence without inserting a row, so a caller can derive the deposit
// address (which the row's eth_address column requires) before the insert.
func (db *DB) NextCustomerSeq(ctx context.Context) (uint32, error) {
	var seq int64
	err := db.QueryRow(ctx, `SELECT nextval('customers_customer_seq_seq')`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to reserve customer sequence: %w", err)
	}
	return uint32(seq), nil
}

// CreateCustomer inserts a new customer bound to a derived deposit address
// at the given reserved sequence number (see NextCustomerSeq).
// (merchant_ref, external_account) is unique; eth_address is unique globally
// since addresses are derived deterministically per (merchant, customer).
func (db *DB) CreateCustomer(ctx context.Context, merchantRef, externalAccount, ethAddress string, customerSeq uint32) (*Customer, error) {
	c := &Customer{
		ID:              uuid.New(),
		MerchantRef:     merchantRef,
		ExternalAccount: externalAccount,
		EthAddress:      ethAddress,
		CustomerSeq:     customerSeq,
		UpdatedAt:       time.Now().UTC(),
	}

	_, err := db.pool.Exec(ctx, `
		INSERT INTO customers (id, merchant_ref, external_account, eth_address, customer_seq, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.ID, c.MerchantRef, c.ExternalAccount, c.EthAddress, c.CustomerSeq, c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}

	return c, nil
}

// GetCustomerByID looks up a customer by its primary key.
func (db *DB) GetCustomerByID(ctx context.Context, id uuid.UUID) (*Customer, error) {
	c := &Customer{}
	err := db.QueryRow(ctx, `
		SELECT id, merchant_ref, external_account, eth_address, customer_seq, updated_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.MerchantRef, &c.ExternalAccount, &c.EthAddress, &c.CustomerSeq, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return c, nil
}

// GetCustomerByMerchantRef looks up a customer by (merchant_ref, external_account).
func (db *DB) GetCustomerByMerchantRef(ctx context.Context, merchantRef, externalAccount string) (*Customer, error) {
	c := &Customer{}
	err := db.QueryRow(ctx, `
		SELECT id, merchant_ref, external_account, eth_address, customer_seq, updated_at
		FROM customers
		WHERE merchant_ref = $1 AND external_account = $2
	`, merchantRef, externalAccount).Scan(&c.ID, &c.MerchantRef, &c.ExternalAccount, &c.EthAddress, &c.CustomerSeq, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return c, nil
}

// GetCustomerByAddress looks up a customer by derived deposit address.
func (db *DB) GetCustomerByAddress(ctx context.Context, ethAddress string) (*Customer, error) {
	c := &Customer{}
	err := db.QueryRow(ctx, `
		SELECT id, merchant_ref, external_account, eth_address, customer_seq, updated_at
		FROM customers
		WHERE eth_address = $1
	`, ethAddress).Scan(&c.ID, &c.MerchantRef, &c.ExternalAccount, &c.EthAddress, &c.CustomerSeq, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return c, nil
}
