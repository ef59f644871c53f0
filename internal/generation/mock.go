package generation

import (
	"context"
	"sync"
)

// Mock is a scripted Generator for tests. Set Fn for dynamic behaviour,
// otherwise Response and Err are returned.
type Mock struct {
	Response string
	Err      error
	Fn       func(ctx context.Context, req Request) (string, error)

	mu    sync.Mutex
	calls []Request
}

// Generate implements Generator.
func (m *Mock) Generate(ctx context.Context, req Request) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	fn := m.Fn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return m.Response, m.Err
}

// Calls returns a copy of every request received so far.
func (m *Mock) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}
