package editor

import "inkwell/api/internal/section"

// Snapshot is an immutable published view of the document.
type Snapshot struct {
	Version  uint64            `json:"version"`
	Text     string            `json:"-"`
	Sections []section.Section `json:"sections"`
}

// Notifier receives controller events. Calls happen outside the controller
// lock, on whichever goroutine produced the change.
type Notifier interface {
	SectionsChanged(snap *Snapshot)
	CurrentSectionChanged(idx int, ok bool)
	GenerationFailed(idx int, err error)
}

// NotifierFuncs adapts optional callbacks to Notifier.
type NotifierFuncs struct {
	OnSections func(snap *Snapshot)
	OnCurrent  func(idx int, ok bool)
	OnFailed   func(idx int, err error)
}

func (n NotifierFuncs) SectionsChanged(snap *Snapshot) {
	if n.OnSections != nil {
		n.OnSections(snap)
	}
}

func (n NotifierFuncs) CurrentSectionChanged(idx int, ok bool) {
	if n.OnCurrent != nil {
		n.OnCurrent(idx, ok)
	}
}

func (n NotifierFuncs) GenerationFailed(idx int, err error) {
	if n.OnFailed != nil {
		n.OnFailed(idx, err)
	}
}

type event func(Notifier)

func sectionsEvent(snap *Snapshot) event {
	return func(n Notifier) { n.SectionsChanged(snap) }
}

func currentEvent(idx int, ok bool) event {
	return func(n Notifier) { n.CurrentSectionChanged(idx, ok) }
}

func failedEvent(idx int, err error) event {
	return func(n Notifier) { n.GenerationFailed(idx, err) }
}
