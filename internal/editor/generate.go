package editor

import (
	"context"
	"fmt"

	"inkwell/api/internal/generation"
	"inkwell/api/internal/section"
)

// Generate requests a suggestion for the section under the cursor. It
// returns once the request is dispatched; the result is applied to the
// latest snapshot when it arrives.
func (c *Controller) Generate(ctx context.Context, mode generation.Mode, mainPoint string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	snap := c.snap.Load()
	idx, ok := c.tracker.Current()
	if !ok || idx >= len(snap.Sections) {
		c.mu.Unlock()
		c.reject(ctx, "no_section")
		return ErrNoSection
	}
	target := snap.Sections[idx]
	if _, busy := c.claimsLocked(snap.Sections)[idx]; busy {
		c.mu.Unlock()
		c.reject(ctx, "busy")
		return ErrBusy
	}

	prev, next := section.BuildContext(snap.Sections, idx, c.contextChars)
	prev, next = generation.TruncateContext(prev, next, c.contextChars)
	req := generation.Request{
		Text:      target.Text,
		MainPoint: mainPoint,
		Title:     c.title,
		Prev:      prev,
		Next:      next,
		Mode:      mode,
		Metadata:  c.meta,
	}
	c.nextReq++
	reqID := c.nextReq
	c.requests = append(c.requests, inflight{id: reqID, hint: idx, text: target.Text})
	c.wg.Add(1)
	c.mu.Unlock()

	key := busyKey(c.scope, target.Basis())
	acquired, err := c.busy.TryAcquire(ctx, key)
	if err != nil || !acquired {
		c.finishRequest(reqID)
		c.wg.Done()
		if err != nil {
			return fmt.Errorf("acquire busy lease: %w", err)
		}
		c.reject(ctx, "busy")
		return ErrBusy
	}

	go c.run(reqID, idx, key, req)
	return nil
}

func (c *Controller) run(reqID uint64, idx int, key string, req generation.Request) {
	defer c.wg.Done()
	released := false
	release := func() {
		if released {
			return
		}
		released = true
		c.finishRequest(reqID)
		if err := c.busy.Release(context.Background(), key); err != nil {
			c.logger.Warn("release busy lease", "err", err)
		}
	}
	defer release()

	out, err := c.gen.Generate(c.ctx, req)
	release()
	if err != nil {
		c.logger.Warn("generation failed", "section", idx, "err", err)
		c.emit([]event{failedEvent(idx, err)})
		return
	}
	c.apply(idx, req.Text, out)
}

// apply attaches out to the section the request was made against, found by
// similarity in the latest snapshot. Sections claimed by other outstanding
// requests are skipped. Results for vanished sections are dropped.
func (c *Controller) apply(hint int, requested, out string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	cur := c.snap.Load()
	target := locateTarget(cur.Sections, hint, requested, c.claimsLocked(cur.Sections))
	if target == section.NoSection {
		c.mu.Unlock()
		c.logger.Debug("dropping generation result, section no longer present", "section", hint)
		return
	}

	sections := section.Clone(cur.Sections)
	sections[target].Generated = out
	sections[target].Original = requested
	next := &Snapshot{Version: cur.Version + 1, Text: cur.Text, Sections: sections}
	c.snap.Store(next)
	c.mu.Unlock()
	c.emit([]event{sectionsEvent(next)})
}

// claimsLocked resolves every outstanding request to the section it targets
// in sections, oldest request first. Each section is claimed at most once.
func (c *Controller) claimsLocked(sections []section.Section) map[int]uint64 {
	claimed := make(map[int]uint64, len(c.requests))
	for _, r := range c.requests {
		if i := locateTarget(sections, r.hint, r.text, claimed); i != section.NoSection {
			claimed[i] = r.id
		}
	}
	return claimed
}

// locateTarget prefers the unclaimed section at hint, then the first
// unclaimed section whose basis is similar to requested.
func locateTarget(sections []section.Section, hint int, requested string, claimed map[int]uint64) int {
	free := func(i int) bool {
		_, taken := claimed[i]
		return !taken
	}
	if hint >= 0 && hint < len(sections) && free(hint) && sameSection(sections[hint], requested) {
		return hint
	}
	for i, s := range sections {
		if free(i) && sameSection(s, requested) {
			return i
		}
	}
	return section.NoSection
}

// sameSection matches on the reconciliation basis, falling back to the live
// text when a carried suggestion was made against an older version.
func sameSection(s section.Section, requested string) bool {
	if section.Matches(s.Basis(), requested) {
		return true
	}
	return s.Original != "" && section.Matches(s.Text, requested)
}

func (c *Controller) finishRequest(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, r := range c.requests {
		if r.id == id {
			c.requests = append(c.requests[:i], c.requests[i+1:]...)
			return
		}
	}
}

func (c *Controller) reject(ctx context.Context, reason string) {
	if c.metrics != nil {
		c.metrics.RecordRejected(ctx, reason)
	}
}
