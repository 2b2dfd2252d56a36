package webhook

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mercadito/tienda/internal/pkg/cache"
)

// Locker serializes processing per payment ID. Acquire returns an ownership
// token when the caller now owns the lock; Release must be called with that
// token on every exit path and is a no-op when the lock has since expired
// and been re-acquired by another holder.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

type redisLocker struct{}

// NewRedisLocker returns a Locker backed by Redis SETNX with a TTL so a
// crashed holder cannot wedge a payment forever.
func NewRedisLocker() Locker {
	return redisLocker{}
}

func (redisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := cache.AcquireLock(ctx, key, token, ttl)
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

func (redisLocker) Release(ctx context.Context, key, token string) error {
	return cache.ReleaseLock(ctx, key, token)
}

type memoryLock struct {
	token  string
	expiry time.Time
}

// MemoryLocker is a process-local Locker for tests and single-instance
// deployments without Redis.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]memoryLock
	clock func() time.Time
}

// NewMemoryLocker creates an in-process Locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		held:  make(map[string]memoryLock),
		clock: time.Now,
	}
}

func (m *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.held[key]; ok && m.clock().Before(l.expiry) {
		return "", false, nil
	}
	token := uuid.NewString()
	m.held[key] = memoryLock{token: token, expiry: m.clock().Add(ttl)}
	return token, true, nil
}

func (m *MemoryLocker) Release(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.held[key]; ok && l.token == token {
		delete(m.held, key)
	}
	return nil
}
