package kvindex

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Redis is a Store backed by a redis-go client. Address entries are stored
// as "merchantID|customerID|merchantAddress" strings; seen transactions as
// a plain marker key.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an already-configured redis client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) SetAddress(ctx context.Context, address string, merchantID, customerID int32, merchantAddress string) error {
	value := fmt.Sprintf("%d|%d|%s", merchantID, customerID, merchantAddress)
	if err := r.client.Set(ctx, addressKey(address), value, addressTTL).Err(); err != nil {
		return fmt.Errorf("kvindex: set address: %w", err)
	}
	return nil
}

func (r *Redis) LookupAddress(ctx context.Context, address string) (int32, int32, string, error) {
	value, err := r.client.Get(ctx, addressKey(address)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, 0, "", ErrNotFound
	}
	if err != nil {
		return 0, 0, "", fmt.Errorf("kvindex: get address: %w", err)
	}

	parts := strings.SplitN(value, "|", 3)
	if len(parts) != 3 {
		return 0, 0, "", fmt.Errorf("kvindex: malformed address entry %q", value)
	}
	merchantID, err := strconv.ParseInt(parts[0], 10, 32)
	if err != nil {
		return 0, 0, "", fmt.Errorf("kvindex: malformed merchant id in %q: %w", value, err)
	}
	customerID, err := strconv.ParseInt(parts[1], 10, 32)
	if err != nil {
		return 0, 0, "", fmt.Errorf("kvindex: malformed customer id in %q: %w", value, err)
	}
	return int32(merchantID), int32(customerID), parts[2], nil
}

func (r *Redis) MarkSeen(ctx context.Context, txHash string) error {
	if err := r.client.Set(ctx, txKey(txHash), "1", txTTL).Err(); err != nil {
		return fmt.Errorf("kvindex: mark seen: %w", err)
	}
	return nil
}

func (r *Redis) SeenBefore(ctx context.Context, txHash string) (bool, error) {
	n, err := r.client.Exists(ctx, txKey(txHash)).Result()
	if err != nil {
		return false, fmt.Errorf("kvindex: exists: %w", err)
	}
	return n > 0, nil
}
