package event

import (
	"sync"
)

// History is an in-memory event log with a bounded size. It is the
// daemon's run record; anything needing durability is in git notes on
// the published commits.
type History struct {
	mu     sync.Mutex
	size   int
	nextID EventID
	events []Event // newest first
}

// NewHistory makes a history keeping at most size events.
func NewHistory(size int) *History {
	return &History{size: size, nextID: 1}
}

// LogEvent records an event, assigning it an ID.
func (h *History) LogEvent(e Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	e.ID = h.nextID
	h.nextID++
	h.events = append([]Event{e}, h.events...)
	if h.size > 0 && len(h.events) > h.size {
		h.events = h.events[:h.size]
	}
	return nil
}

// Events returns recorded events, newest first, optionally filtered
// by pipeline and truncated to limit.
func (h *History) Events(pipeline string, limit int) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Event
	for _, e := range h.events {
		if pipeline != "" && e.Pipeline != pipeline {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
