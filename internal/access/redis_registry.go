package access

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevokedKeyPrefix namespaces revocation keys in Redis
const RevokedKeyPrefix = "medchainx:revoked:"

// RedisClient is the subset of redis.UniversalClient the registry needs.
// Both *redis.Client and *redis.ClusterClient satisfy it.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisRegistry shares revocations across service replicas.
// Keys expire with the token they revoke, so no cleanup is needed.
type RedisRegistry struct {
	client RedisClient
	clock  func() time.Time
}

// NewRedisRegistry creates a registry on top of client
func NewRedisRegistry(client RedisClient) *RedisRegistry {
	return &RedisRegistry{
		client: client,
		clock:  time.Now,
	}
}

// NewRedisUniversalClient connects to a single node or, with several addresses, a cluster
func NewRedisUniversalClient(ctx context.Context, addrs []string, password string, db, poolSize int) (redis.UniversalClient, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    addrs,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Revoke stores tokenID with a TTL ending at until. SET NX makes the first
// revocation win across replicas.
func (r *RedisRegistry) Revoke(ctx context.Context, tokenID string, until time.Time) (bool, error) {
	ttl := until.Sub(r.clock())
	if ttl <= 0 {
		// already expired; validation rejects it regardless
		return false, nil
	}
	created, err := r.client.SetNX(ctx, RevokedKeyPrefix+tokenID, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record revocation: %w", err)
	}
	return created, nil
}

// IsRevoked reports whether a revocation key for tokenID exists
func (r *RedisRegistry) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, RevokedKeyPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	return n > 0, nil
}
