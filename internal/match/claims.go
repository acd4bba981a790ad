package match

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DriverClaims is the atomic driver reservation. Claim returns false when
// the driver is already held by a competing match.
type DriverClaims interface {
	Claim(ctx context.Context, driverID, requestID string) (bool, error)
	Release(ctx context.Context, driverID string) error
}

// MemoryClaims is the single-process implementation.
type MemoryClaims struct {
	mu     sync.Mutex
	claims map[string]string // driverID -> requestID
}

func NewMemoryClaims() *MemoryClaims {
	return &MemoryClaims{claims: make(map[string]string)}
}

func (c *MemoryClaims) Claim(_ context.Context, driverID, requestID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, held := c.claims[driverID]; held {
		return false, nil
	}
	c.claims[driverID] = requestID
	return true, nil
}

func (c *MemoryClaims) Release(_ context.Context, driverID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.claims, driverID)
	return nil
}

// RedisClaims reserves drivers with SETNX so racing matchers across
// processes resolve with exactly one winner. The TTL is a safety net
// against a crashed winner never releasing.
type RedisClaims struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisClaims(client *redis.Client, ttl time.Duration) *RedisClaims {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisClaims{client: client, ttl: ttl}
}

func (c *RedisClaims) Claim(ctx context.Context, driverID, requestID string) (bool, error) {
	return c.client.SetNX(ctx, claimKey(driverID), requestID, c.ttl).Result()
}

func (c *RedisClaims) Release(ctx context.Context, driverID string) error {
	return c.client.Del(ctx, claimKey(driverID)).Err()
}

func claimKey(driverID string) string { return "driver:claim:" + driverID }
