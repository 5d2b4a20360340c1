// Package kvindex is the fast-path lookup layer in front of Postgres: a
// checksummed-address-to-customer index and a transaction-hash dedup set,
// both with TTLs, so the settlement engine doesn't hit the database on
// every scanned log.
package kvindex

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotFound is returned when a key has no value (or has expired).
var ErrNotFound = errors.New("kvindex: not found")

// addressTTL and txTTL match the retention windows a derived deposit
// address, and a seen transaction hash, need to stay resolvable for.
const (
	addressTTL = 30 * 24 * time.Hour
	txTTL      = 24 * time.Hour
)

// Store is the minimal TTL-keyed index the settlement engine depends on.
type Store interface {
	// SetAddress indexes a derived deposit address to its owning
	// (merchantID, customerID, merchantAddress) triple.
	SetAddress(ctx context.Context, address string, merchantID, customerID int32, merchantAddress string) error
	// LookupAddress resolves a previously indexed address. Returns
	// ErrNotFound if the address is unknown or its entry has expired.
	LookupAddress(ctx context.Context, address string) (merchantID, customerID int32, merchantAddress string, err error)
	// MarkSeen records a transaction hash as processed; SeenBefore reports
	// whether it already was.
	MarkSeen(ctx context.Context, txHash string) error
	SeenBefore(ctx context.Context, txHash string) (bool, error)
}

type addressEntry struct {
	merchantID      int32
	customerID      int32
	merchantAddress string
	expiresAt       time.Time
}

// Memory is an in-process Store, used in tests; the daemon always uses the
// Redis store.
type Memory struct {
	mu        sync.Mutex
	addresses map[string]addressEntry
	seen      map[string]time.Time
	now       func() time.Time
}

// NewMemory constructs an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{
		addresses: make(map[string]addressEntry),
		seen:      make(map[string]time.Time),
		now:       time.Now,
	}
}

func (m *Memory) SetAddress(ctx context.Context, address string, merchantID, customerID int32, merchantAddress string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addresses[address] = addressEntry{
		merchantID:      merchantID,
		customerID:      customerID,
		merchantAddress: merchantAddress,
		expiresAt:       m.now().Add(addressTTL),
	}
	return nil
}

func (m *Memory) LookupAddress(ctx context.Context, address string) (int32, int32, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.addresses[address]
	if !ok || m.now().After(entry.expiresAt) {
		return 0, 0, "", ErrNotFound
	}
	return entry.merchantID, entry.customerID, entry.merchantAddress, nil
}

func (m *Memory) MarkSeen(ctx context.Context, txHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[txHash] = m.now().Add(txTTL)
	return nil
}

func (m *Memory) SeenBefore(ctx context.Context, txHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	expiresAt, ok := m.seen[txHash]
	if !ok || m.now().After(expiresAt) {
		return false, nil
	}
	return true, nil
}

// addressKey and txKey namespace Redis keys the way the address/tx index
// is described: "addr:{checksummed}" and "tx:{hash}".
func addressKey(address string) string { return fmt.Sprintf("addr:%s", address) }
func txKey(txHash string) string       { return fmt.Sprintf("tx:%s", txHash) }
