package access

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SooryaCodes/medchainx-sub000/pkg/types"
)

func TestMemoryRegistry(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	revoked, err := reg.IsRevoked(ctx, "a")
	require.NoError(t, err)
	assert.False(t, revoked)

	created, err := reg.Revoke(ctx, "a", time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, created)
	revoked, err = reg.IsRevoked(ctx, "a")
	require.NoError(t, err)
	assert.True(t, revoked)

	created, err = reg.Revoke(ctx, "a", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, created)
}

func TestMemoryRegistry_Cleanup(t *testing.T) {
	reg := NewMemoryRegistry()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	reg.clock = func() time.Time { return now }
	ctx := context.Background()

	_, err := reg.Revoke(ctx, "expired", now.Add(-time.Second))
	require.NoError(t, err)
	_, err = reg.Revoke(ctx, "live", now.Add(time.Minute))
	require.NoError(t, err)

	reg.cleanup()

	assert.Equal(t, 1, reg.Len())
	revoked, _ := reg.IsRevoked(ctx, "live")
	assert.True(t, revoked)
}

func TestMemoryRegistry_StartStop(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()
	_, err := reg.Revoke(ctx, "old", time.Now().Add(-time.Minute))
	require.NoError(t, err)

	reg.StartCleanup(5 * time.Millisecond)
	defer reg.Stop()

	assert.Eventually(t, func() bool { return reg.Len() == 0 }, time.Second, 5*time.Millisecond)

	reg.Stop()
}

func TestMemoryRegistry_Concurrent(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()
	until := time.Now().Add(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		id := string(rune('a' + i%26))
		go func() {
			defer wg.Done()
			_, _ = reg.Revoke(ctx, id, until)
		}()
		go func() {
			defer wg.Done()
			_, _ = reg.IsRevoked(ctx, id)
		}()
	}
	wg.Wait()

	assert.Equal(t, 26, reg.Len())
}

func TestMemoryRegistry_ConcurrentRevokeSingleWinner(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()
	until := time.Now().Add(time.Minute)

	var wins int64
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := reg.Revoke(ctx, "tok", until)
			if err == nil && created {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins)
}

// fakeRedis records SET NX calls and answers EXISTS from them
type fakeRedis struct {
	mu   sync.Mutex
	keys map[string]time.Duration
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{keys: make(map[string]time.Duration)}
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if _, ok := f.keys[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.keys[k]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestRedisRegistry(t *testing.T) {
	client := newFakeRedis()
	reg := NewRedisRegistry(client)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	reg.clock = func() time.Time { return now }
	ctx := context.Background()

	created, err := reg.Revoke(ctx, "tok-1", now.Add(30*time.Minute))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 30*time.Minute, client.keys[RevokedKeyPrefix+"tok-1"])

	created, err = reg.Revoke(ctx, "tok-1", now.Add(30*time.Minute))
	require.NoError(t, err)
	assert.False(t, created)

	revoked, err := reg.IsRevoked(ctx, "tok-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = reg.IsRevoked(ctx, "tok-2")
	require.NoError(t, err)
	assert.False(t, revoked)

	// nothing to store for a token that is already dead
	created, err = reg.Revoke(ctx, "tok-3", now.Add(-time.Second))
	require.NoError(t, err)
	assert.False(t, created)
	assert.NotContains(t, client.keys, RevokedKeyPrefix+"tok-3")
}

func TestRedisRegistry_Errors(t *testing.T) {
	client := newFakeRedis()
	client.err = errors.New("connection refused")
	reg := NewRedisRegistry(client)
	ctx := context.Background()

	_, err := reg.Revoke(ctx, "tok", time.Now().Add(time.Minute))
	assert.Error(t, err)
	_, err = reg.IsRevoked(ctx, "tok")
	assert.Error(t, err)
}

func TestPolicy_WithRedisRegistry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
	reg := NewRedisRegistry(newFakeRedis())
	reg.clock = clock.Now
	policy, err := NewPolicy(PolicyConfig{SigningKey: testSigningKey}, reg, WithClock(clock.Now))
	require.NoError(t, err)
	ctx := context.Background()

	token, err := policy.Issue(ctx, "P1", 0)
	require.NoError(t, err)
	require.NoError(t, policy.Revoke(ctx, token.Value))

	_, err = policy.Validate(ctx, token.Value)
	assert.Error(t, err)
}

func TestPolicy_ConcurrentRevokeSucceedsOnce(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
	registries := map[string]RevocationRegistry{
		"memory": NewMemoryRegistry(),
		"redis":  &RedisRegistry{client: newFakeRedis(), clock: clock.Now},
	}

	for name, reg := range registries {
		t.Run(name, func(t *testing.T) {
			policy, err := NewPolicy(PolicyConfig{SigningKey: testSigningKey}, reg, WithClock(clock.Now))
			require.NoError(t, err)
			ctx := context.Background()

			token, err := policy.Issue(ctx, "P1", 0)
			require.NoError(t, err)

			errs := make([]error, 16)
			var wg sync.WaitGroup
			for i := range errs {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					errs[i] = policy.Revoke(ctx, token.Value)
				}(i)
			}
			wg.Wait()

			succeeded := 0
			for _, err := range errs {
				if err == nil {
					succeeded++
					continue
				}
				assert.True(t, errors.Is(err, types.ErrTokenNotFound), "unexpected error: %v", err)
			}
			assert.Equal(t, 1, succeeded)
		})
	}
}
