// Package editor runs the live edit pipeline for one document: debounced
// re-parsing, suggestion reconciliation, cursor tracking and asynchronous
// generation requests.
package editor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"inkwell/api/internal/generation"
	"inkwell/api/internal/observe"
	"inkwell/api/internal/section"
)

var (
	// ErrNoSection means the cursor is not inside any section.
	ErrNoSection = errors.New("editor: cursor is not in a section")
	// ErrBusy means a generation for the section is already outstanding.
	ErrBusy = errors.New("editor: section has a generation in flight")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("editor: controller closed")
)

// State is the debounce pipeline state.
type State int

const (
	StateIdle State = iota
	StatePending
	StateParsing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateParsing:
		return "parsing"
	default:
		return "unknown"
	}
}

// Cause says why the cursor moved.
type Cause string

const (
	CausePointer    Cause = "pointer"
	CauseNavigation Cause = "navigation"
	// CauseInsert is a move caused by typing; it is resolved after the
	// next parse rather than immediately.
	CauseInsert Cause = "insert"
)

// ParseCause maps a client string, treating unknown values as navigation.
func ParseCause(s string) Cause {
	switch c := Cause(s); c {
	case CausePointer, CauseInsert:
		return c
	default:
		return CauseNavigation
	}
}

type inflight struct {
	id   uint64
	hint int
	text string
}

// Controller owns the mutable state of one editing session. All methods are
// safe for concurrent use.
type Controller struct {
	id           string
	scope        string
	gen          generation.Generator
	busy         BusyRegistry
	clock        Clock
	debounce     time.Duration
	contextChars int
	meta         generation.Metadata
	title        string
	logger       *slog.Logger
	metrics      *observe.Metrics

	snap atomic.Pointer[Snapshot]

	mu        sync.Mutex
	text      string
	cursor    int // caret byte offset, 0 until the client reports one
	tracker   *section.Tracker
	timer     Timer
	seq       uint64
	state     State
	closed    bool
	requests  []inflight
	nextReq   uint64
	notifiers map[int]Notifier
	nextSub   int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns an idle controller with an empty document.
func New(id string, gen generation.Generator, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		id:           id,
		scope:        id,
		gen:          gen,
		clock:        realClock{},
		debounce:     DefaultDebounce,
		contextChars: section.DefaultContextChars,
		meta:         generation.DefaultMetadata(),
		logger:       slog.Default(),
		tracker:      section.NewTracker(),
		notifiers:    make(map[int]Notifier),
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, o := range opts {
		o(c)
	}
	if c.busy == nil {
		c.busy = NewLocalBusy()
	}
	c.logger = c.logger.With("session_id", id)
	c.snap.Store(&Snapshot{Sections: []section.Section{}})
	return c
}

// ID returns the session identifier.
func (c *Controller) ID() string { return c.id }

// Snapshot returns the latest published view.
func (c *Controller) Snapshot() *Snapshot { return c.snap.Load() }

// State returns the pipeline state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Current returns the section the cursor is in.
func (c *Controller) Current() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracker.Current()
}

// Busy reports whether the section at idx has a generation outstanding.
func (c *Controller) Busy(idx int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	secs := c.snap.Load().Sections
	if idx < 0 || idx >= len(secs) {
		return false
	}
	_, busy := c.claimsLocked(secs)[idx]
	return busy
}

// Subscribe registers n and returns a function that removes it.
func (c *Controller) Subscribe(n Notifier) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.notifiers[id] = n
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.notifiers, id)
		c.mu.Unlock()
	}
}

// TextChanged records new document text and restarts the debounce timer.
func (c *Controller) TextChanged(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.text = text
	c.stopTimerLocked()
	c.seq++
	seq := c.seq
	c.timer = c.clock.AfterFunc(c.debounce, func() { c.fire(seq) })
	c.state = StatePending
}

// CursorMoved records the caret position. Pointer and navigation moves are
// resolved immediately; insert moves wait for the next parse.
func (c *Controller) CursorMoved(offset int, cause Cause) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.cursor = offset
	var events []event
	if cause != CauseInsert {
		events = c.trackLocked()
	}
	c.mu.Unlock()
	c.emit(events)
}

// Flush runs a pending parse immediately and returns the resulting snapshot.
func (c *Controller) Flush() *Snapshot {
	c.mu.Lock()
	if c.closed || c.state != StatePending {
		c.mu.Unlock()
		return c.snap.Load()
	}
	c.stopTimerLocked()
	c.seq++
	events := c.parseLocked()
	c.mu.Unlock()
	c.emit(events)
	return c.snap.Load()
}

// Restore loads text and a previously saved section list, carrying saved
// suggestions onto the freshly parsed sections.
func (c *Controller) Restore(text string, saved []section.Section) *Snapshot {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return c.snap.Load()
	}
	c.stopTimerLocked()
	c.seq++
	c.text = text
	c.state = StateParsing
	start := c.clock.Now()
	merged := section.Reconcile(section.Parse(text), saved)
	events := c.publishLocked(text, merged, start)
	c.mu.Unlock()
	c.emit(events)
	return c.snap.Load()
}

func (c *Controller) fire(seq uint64) {
	c.mu.Lock()
	if c.closed || seq != c.seq {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	events := c.parseLocked()
	c.mu.Unlock()
	c.emit(events)
}

func (c *Controller) parseLocked() []event {
	c.timer = nil
	c.state = StateParsing
	start := c.clock.Now()
	prev := c.snap.Load().Sections
	merged := section.Reconcile(section.Parse(c.text), prev)
	return c.publishLocked(c.text, merged, start)
}

func (c *Controller) publishLocked(text string, sections []section.Section, start time.Time) []event {
	cur := c.snap.Load()
	next := &Snapshot{Version: cur.Version + 1, Text: text, Sections: sections}
	c.snap.Store(next)
	c.state = StateIdle
	if c.metrics != nil {
		c.metrics.RecordParse(c.ctx, c.clock.Now().Sub(start))
	}
	events := []event{sectionsEvent(next)}
	return append(events, c.trackLocked()...)
}

func (c *Controller) trackLocked() []event {
	idx, ok, changed := c.tracker.Update(c.snap.Load().Sections, c.cursor)
	if !changed {
		return nil
	}
	return []event{currentEvent(idx, ok)}
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) emit(events []event) {
	if len(events) == 0 {
		return
	}
	c.mu.Lock()
	subs := make([]Notifier, 0, len(c.notifiers))
	for _, n := range c.notifiers {
		subs = append(subs, n)
	}
	c.mu.Unlock()
	for _, ev := range events {
		for _, n := range subs {
			ev(n)
		}
	}
}

// Close stops timers, cancels outstanding generations and waits for them.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopTimerLocked()
	c.state = StateIdle
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}

// Wait blocks until every outstanding generation has resolved.
func (c *Controller) Wait() {
	c.wg.Wait()
}
