package editor

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"sync"
)

// BusyRegistry tracks which sections have a generation in flight. Keys are
// opaque; a registry shared between processes lets replicas agree.
type BusyRegistry interface {
	// TryAcquire marks key busy and reports whether it was free.
	TryAcquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// LocalBusy is an in-process BusyRegistry.
type LocalBusy struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewLocalBusy returns an empty registry.
func NewLocalBusy() *LocalBusy {
	return &LocalBusy{keys: make(map[string]struct{})}
}

func (b *LocalBusy) TryAcquire(_ context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.keys[key]; ok {
		return false, nil
	}
	b.keys[key] = struct{}{}
	return true, nil
}

func (b *LocalBusy) Release(_ context.Context, key string) error {
	b.mu.Lock()
	delete(b.keys, key)
	b.mu.Unlock()
	return nil
}

// Len returns the number of held keys.
func (b *LocalBusy) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.keys)
}

// busyKey derives a registry key from a scope and the section text a
// request is made against.
func busyKey(scope, text string) string {
	sum := sha1.Sum([]byte(strings.ToLower(strings.TrimSpace(text))))
	return scope + ":" + hex.EncodeToString(sum[:])
}
