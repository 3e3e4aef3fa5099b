package http

import (
	"sync"
	"time"
)

// ActivityType classifies feed entries
type ActivityType string

const (
	ActivitySignal     ActivityType = "signal"
	ActivityValidation ActivityType = "validation"
	ActivityRule       ActivityType = "rule"
	ActivityAlert      ActivityType = "alert"
	ActivitySource     ActivityType = "source"
	ActivityError      ActivityType = "error"
	ActivitySystem     ActivityType = "system"
)

// ActivityEntry is one row in the recent-activity feed
type ActivityEntry struct {
	Type      ActivityType   `json:"type"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ActivityFeed is a bounded ring of recent system events. Writers never
// block; the oldest entry is overwritten when the ring is full.
type ActivityFeed struct {
	mu      sync.Mutex
	entries []ActivityEntry
	next    int
	full    bool
	now     func() time.Time
}

const defaultActivitySize = 256

// NewActivityFeed builds a feed holding the most recent size entries
func NewActivityFeed(size int) *ActivityFeed {
	if size <= 0 {
		size = defaultActivitySize
	}
	return &ActivityFeed{entries: make([]ActivityEntry, size), now: time.Now}
}

// Record appends one entry
func (f *ActivityFeed) Record(typ ActivityType, message string, metadata map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.entries[f.next] = ActivityEntry{
		Type:      typ,
		Message:   message,
		Metadata:  metadata,
		Timestamp: f.now().UTC(),
	}
	f.next++
	if f.next == len(f.entries) {
		f.next = 0
		f.full = true
	}
}

// Recent returns up to limit entries, newest first
func (f *ActivityFeed) Recent(limit int) []ActivityEntry {
	f.mu.Lock()
	defer f.mu.Unlock()

	size := f.next
	if f.full {
		size = len(f.entries)
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]ActivityEntry, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (f.next - i + len(f.entries)) % len(f.entries)
		out = append(out, f.entries[idx])
	}
	return out
}
