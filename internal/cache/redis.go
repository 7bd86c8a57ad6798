package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rentora/rentora/config"
	"github.com/rentora/rentora/internal/domain"
)

type RedisCache struct {
	client     *redis.Client
	listingTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, listingTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:     redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		listingTTL: listingTTL,
	}
}

// GetListing returns the cached snapshot or (nil, nil) on a miss. Stale reads
// are fine outside the critical section; the coordinator always re-reads the
// listing from the store inside its transaction.
func (c *RedisCache) GetListing(ctx context.Context, id string) (*domain.Listing, error) {
	data, err := c.client.Get(ctx, listingKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var l domain.Listing
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (c *RedisCache) SetListing(ctx context.Context, listing *domain.Listing) error {
	payload, err := json.Marshal(listing)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, listingKey(listing.ID), payload, c.listingTTL).Err()
}

func (c *RedisCache) InvalidateListing(ctx context.Context, id string) error {
	return c.client.Del(ctx, listingKey(id)).Err()
}

// releaseLockScript deletes the lock only when the caller still owns it, so a
// holder that outlived its TTL cannot release the next holder's lock.
var releaseLockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// AcquireListingLock bounds the reservation and confirm critical sections for
// one listing. Correctness does not depend on it: the store re-checks under a
// row lock. It exists to fail concurrent confirms fast. Returns an ownership
// token, empty when the lock is held by someone else.
func (c *RedisCache) AcquireListingLock(ctx context.Context, listingID string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, listingLockKey(listingID), token, ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

func (c *RedisCache) ReleaseListingLock(ctx context.Context, listingID, token string) error {
	return releaseLockScript.Run(ctx, c.client, []string{listingLockKey(listingID)}, token).Err()
}

func listingKey(id string) string {
	return fmt.Sprintf("cache:listing:%s", id)
}

func listingLockKey(id string) string {
	return fmt.Sprintf("lock:listing:%s", id)
}
