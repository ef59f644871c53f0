package editor

import (
	"log/slog"
	"time"

	"inkwell/api/internal/generation"
	"inkwell/api/internal/observe"
)

// DefaultDebounce is the quiet period after the last edit before re-parsing.
const DefaultDebounce = 150 * time.Millisecond

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

// WithDebounce sets the quiet period. Non-positive values keep the default.
func WithDebounce(d time.Duration) Option {
	return func(ctl *Controller) {
		if d > 0 {
			ctl.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(ctl *Controller) { ctl.logger = l }
}

// WithMetrics records parse timings and rejected requests.
func WithMetrics(m *observe.Metrics) Option {
	return func(ctl *Controller) { ctl.metrics = m }
}

// WithBusyRegistry shares in-flight bookkeeping with other controllers.
func WithBusyRegistry(b BusyRegistry) Option {
	return func(ctl *Controller) { ctl.busy = b }
}

// WithBusyScope namespaces busy keys, typically by owner and document so
// every session editing the same document agrees.
func WithBusyScope(scope string) Option {
	return func(ctl *Controller) { ctl.scope = scope }
}

// WithContextChars sets the per-side neighbour budget for requests.
func WithContextChars(n int) Option {
	return func(ctl *Controller) { ctl.contextChars = n }
}

// WithMetadata sets the writing preferences attached to every request.
func WithMetadata(m generation.Metadata) Option {
	return func(ctl *Controller) { ctl.meta = m }
}

// WithTitle sets the document title attached to every request.
func WithTitle(title string) Option {
	return func(ctl *Controller) { ctl.title = title }
}
