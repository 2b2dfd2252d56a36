package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mercadito/tienda/internal/pkg/env"
	"github.com/redis/go-redis/v9"
)

var (
	client *redis.Client
	ctx    = context.Background()
)

// SetupCache initializes the connection to the Redis cache server
func SetupCache() {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")

	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: "", // no password set
		DB:       0,  // use default DB
	})

	// Test the connection
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Printf("Warning: Could not connect to Redis cache: %v", err)
	} else {
		log.Printf("Successfully connected to Redis cache: %s", pong)
	}
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// Set stores a value in the cache with the given key and expiration time
func Set(key string, value interface{}, expiration time.Duration) error {
	return GetClient().Set(ctx, key, value, expiration).Err()
}

// Get retrieves a value from the cache by key
func Get(key string) (string, error) {
	return GetClient().Get(ctx, key).Result()
}

// Delete removes a value from the cache by key
func Delete(key string) error {
	return GetClient().Del(ctx, key).Err()
}

// releaseLockScript deletes the lock only when it still holds the caller's
// token, so a holder that outlived the TTL cannot drop a lock that was
// re-acquired by someone else in the meantime.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// AcquireLock attempts to take a named lock with the given TTL, storing the
// caller's ownership token as the lock value. It returns true when the lock
// was acquired by this caller.
func AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return GetClient().SetNX(ctx, key, token, ttl).Result()
}

// ReleaseLock drops a named lock taken via AcquireLock, but only if the
// token still matches the stored lock value.
func ReleaseLock(ctx context.Context, key, token string) error {
	return releaseLockScript.Run(ctx, GetClient(), []string{key}, token).Err()
}
