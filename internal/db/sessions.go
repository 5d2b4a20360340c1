package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrSessionNotFound is returned when a session lookup matches no row.
var ErrSessionNotFound = errors.New("session not found")

// SessionTTL is how long a payment session stays open before it expires.
const SessionTTL = 24 * time.Hour

// Session is an open or matched payment request awaiting a deposit.
type Session struct {
	ID          uuid.UUID  `json:"id"`
	CustomerRef uuid.UUID  `json:"customer_ref"`
	DepositRef  *uuid.UUID `json:"deposit_ref,omitempty"`
	AmountMinor int64      `json:"amount_minor"`
	Sent        bool       `json:"sent"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
}

// CreateSession opens a new session for a customer at the given amount.
func (db *DB) CreateSession(ctx context.Context, customerRef uuid.UUID, amountMinor int64) (*Session, error) {
	now := time.Now().UTC()
	s := &Session{
		ID:          uuid.New(),
		CustomerRef: customerRef,
		AmountMinor: amountMinor,
		CreatedAt:   now,
		ExpiresAt:   now.Add(SessionTTL),
	}

	_, err := db.pool.Exec(ctx, `
		INSERT INTO sessions (id, customer_ref, amount_minor, sent, created_at, expires_at)
		VALUES ($1, $2, $3, false, $4, $5)
	`, s.ID, s.CustomerRef, s.AmountMinor, s.CreatedAt, s.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return s, nil
}

// GetSession retrieves a session by ID.
func (db *DB) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	s := &Session{}
	err := db.QueryRow(ctx, `
		SELECT id, customer_ref, deposit_ref, amount_minor, sent, created_at, expires_at
		FROM sessions
		WHERE id = $1
	`, id).Scan(&s.ID, &s.CustomerRef, &s.DepositRef, &s.AmountMinor, &s.Sent, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// MatchOpenSession picks the earliest-created open session (deposit_ref null)
// for customerRef whose amount_minor equals amountMinor, and marks it matched
// to depositRef. Returns ErrSessionNotFound if no open session matches —
// callers treat that as "deposit remains unallocated", not an error.
//
// Uses FOR UPDATE SKIP LOCKED so concurrent deposits for the same customer
// never double-match the same session.
func (db *DB) MatchOpenSession(ctx context.Context, customerRef, depositRef uuid.UUID, amountMinor int64) (*Session, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	s := &Session{}
	err = tx.QueryRow(ctx, `
		SELECT id, customer_ref, deposit_ref, amount_minor, sent, created_at, expires_at
		FROM sessions
		WHERE customer_ref = $1 AND deposit_ref IS NULL AND amount_minor = $2
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, customerRef, amountMinor).Scan(&s.ID, &s.CustomerRef, &s.DepositRef, &s.AmountMinor, &s.Sent, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to match session: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE sessions SET deposit_ref = $1 WHERE id = $2`, depositRef, s.ID); err != nil {
		return nil, fmt.Errorf("failed to attach deposit to session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit session match: %w", err)
	}

	s.DepositRef = &depositRef
	return s, nil
}

// MarkSessionSent records that the session.paid webhook was delivered (2xx).
func (db *DB) MarkSessionSent(ctx context.Context, id uuid.UUID) error {
	_, err := db.pool.Exec(ctx, `UPDATE sessions SET sent = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark session sent: %w", err)
	}
	return nil
}
