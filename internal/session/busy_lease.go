package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultLeaseTTL bounds how long a crashed replica can hold a section busy.
const DefaultLeaseTTL = 2 * time.Minute

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// BusyLease marks in-flight generations in Redis so every replica sees the
// same busy set. A key is acquired with SET NX PX and released only by the
// holder that set it.
type BusyLease struct {
	client *redis.Client
	prefix string
	ttl    time.Duration

	mu     sync.Mutex
	tokens map[string]string
}

// NewBusyLease returns a lease registry on client. ttl <= 0 uses DefaultLeaseTTL.
func NewBusyLease(client *redis.Client, ttl time.Duration) *BusyLease {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &BusyLease{
		client: client,
		prefix: "busy:",
		ttl:    ttl,
		tokens: make(map[string]string),
	}
}

func (l *BusyLease) TryAcquire(ctx context.Context, key string) (bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.prefix+key, token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	if !ok {
		return false, nil
	}
	l.mu.Lock()
	l.tokens[key] = token
	l.mu.Unlock()
	return true, nil
}

func (l *BusyLease) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	token, ok := l.tokens[key]
	delete(l.tokens, key)
	l.mu.Unlock()
	if !ok {
		return nil
	}
	if err := releaseScript.Run(ctx, l.client, []string{l.prefix + key}, token).Err(); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}
