package generation

import (
	"context"
	"errors"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestBreaker(next Generator, c *clock) *Breaker {
	b := NewBreaker(next, BreakerConfig{Name: "test", MaxFailures: 2, ResetTimeout: time.Minute})
	b.now = c.now
	return b
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	c := &clock{t: time.Unix(0, 0)}
	m := &Mock{Err: errors.New("upstream down")}
	b := newTestBreaker(m, c)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := b.Generate(ctx, Request{}); err == nil {
			t.Fatal("expected upstream error")
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
	if _, err := b.Generate(ctx, Request{}); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if got := len(m.Calls()); got != 2 {
		t.Fatalf("backend calls = %d, want 2", got)
	}
}

func TestBreakerHalfOpenProbeCloses(t *testing.T) {
	c := &clock{t: time.Unix(0, 0)}
	m := &Mock{Err: errors.New("down")}
	b := newTestBreaker(m, c)
	ctx := context.Background()

	_, _ = b.Generate(ctx, Request{})
	_, _ = b.Generate(ctx, Request{})

	c.t = c.t.Add(2 * time.Minute)
	m.Err = nil
	m.Response = "ok"

	got, err := b.Generate(ctx, Request{})
	if err != nil || got != "ok" {
		t.Fatalf("probe = %q, %v", got, err)
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	c := &clock{t: time.Unix(0, 0)}
	m := &Mock{Err: errors.New("down")}
	b := newTestBreaker(m, c)
	ctx := context.Background()

	_, _ = b.Generate(ctx, Request{})
	_, _ = b.Generate(ctx, Request{})
	c.t = c.t.Add(2 * time.Minute)
	_, _ = b.Generate(ctx, Request{})

	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	c := &clock{t: time.Unix(0, 0)}
	b := newTestBreaker(&Mock{Err: context.Canceled}, c)

	for i := 0; i < 5; i++ {
		_, _ = b.Generate(context.Background(), Request{})
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}
}
