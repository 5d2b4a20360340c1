package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrMerchantNotFound is returned when an API key matches no merchant.
var ErrMerchantNotFound = errors.New("merchant not found")

// Merchant is the thin identity record the HTTP surface needs to resolve an
// API key to a webhook target and sweep destination. Merchant onboarding/CRUD
// itself is out of scope; this table exists only to give A5 and the
// settlement engine somewhere to look up a webhook URL and payout address.
// MerchantSeq is the small, dense integer fed to keyderiv.Derive as the
// merchant ID component — the merchant's UUID is not itself usable there
// since derivation needs a uint32, not 128 bits of randomness.
type Merchant struct {
	ID            uuid.UUID `json:"id"`
	APIKey        string    `json:"-"`
	WebhookURL    string    `json:"webhook_url"`
	PayoutAddress string    `json:"payout_address"`
	MerchantSeq   uint32    `json:"merchant_seq"`
}

// CreateMerchant inserts a merchant record bound to an API key, webhook
// target, and payout address. Onboarding flow (key rotation, validation of
// the payout address) is operator tooling out of scope here; this exists
// to seed the merchants table for tests and the CLI.
func (db *DB) CreateMerchant(ctx context.Context, apiKey, webhookURL, payoutAddress string) (*Merchant, error) {
	m := &Merchant{ID: uuid.New(), APIKey: apiKey, WebhookURL: webhookURL, PayoutAddress: payoutAddress}
	err := db.QueryRow(ctx, `
		INSERT INTO merchants (id, api_key, webhook_url, payout_address)
		VALUES ($1, $2, $3, $4)
		RETURNING merchant_seq
	`, m.ID, m.APIKey, m.WebhookURL, m.PayoutAddress).Scan(&m.MerchantSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to create merchant: %w", err)
	}
	return m, nil
}

// GetMerchantByID resolves a merchant by its primary key, for operator
// tooling that starts from a customer's merchant_ref rather than an API key.
func (db *DB) GetMerchantByID(ctx context.Context, id uuid.UUID) (*Merchant, error) {
	m := &Merchant{}
	err := db.QueryRow(ctx, `
		SELECT id, api_key, webhook_url, payout_address, merchant_seq FROM merchants WHERE id = $1
	`, id).Scan(&m.ID, &m.APIKey, &m.WebhookURL, &m.PayoutAddress, &m.MerchantSeq)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMerchantNotFound
		}
		return nil, fmt.Errorf("failed to get merchant: %w", err)
	}
	return m, nil
}

// GetMerchantByAPIKey resolves an API key to its merchant record.
func (db *DB) GetMerchantByAPIKey(ctx context.Context, apiKey string) (*Merchant, error) {
	m := &Merchant{}
	err := db.QueryRow(ctx, `
		SELECT id, api_key, webhook_url, payout_address, merchant_seq FROM merchants WHERE api_key = $1
	`, apiKey).Scan(&m.ID, &m.APIKey, &m.WebhookURL, &m.PayoutAddress, &m.MerchantSeq)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMerchantNotFound
		}
		return nil, fmt.Errorf("failed to get merchant: %w", err)
	}
	return m, nil
}
