package pipeline

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/omen-systems/omen/internal/domain"
)

// DLQEntry is one parked event with the failure that parked it
type DLQEntry struct {
	EventID    string          `json:"event_id"`
	Source     domain.Source   `json:"source"`
	Kind       domain.Kind     `json:"error_kind"`
	RuleName   string          `json:"rule_name,omitempty"`
	Reason     string          `json:"reason"`
	Event      domain.RawEvent `json:"event"`
	RetryCount int             `json:"retry_count"`
	FirstSeen  time.Time       `json:"first_seen"`
}

// DLQ is a bounded in-memory FIFO of failed events. When full, the oldest
// entry is dropped to make room.
type DLQ struct {
	mu      sync.Mutex
	entries []DLQEntry
	max     int
}

const defaultDLQSize = 1000

func NewDLQ(maxSize int) *DLQ {
	if maxSize <= 0 {
		maxSize = defaultDLQSize
	}
	return &DLQ{max: maxSize}
}

// Push enqueues an entry, evicting the oldest when at capacity
func (q *DLQ) Push(entry DLQEntry) {
	if entry.FirstSeen.IsZero() {
		entry.FirstSeen = time.Now().UTC()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) >= q.max {
		dropped := q.entries[0]
		q.entries = q.entries[1:]
		log.Warn().
			Str("event_id", dropped.EventID).
			Str("kind", string(dropped.Kind)).
			Msg("Dead letter queue full, dropping oldest entry")
	}
	q.entries = append(q.entries, entry)
}

// Pop dequeues the oldest entry
func (q *DLQ) Pop() (DLQEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return DLQEntry{}, false
	}
	entry := q.entries[0]
	q.entries = q.entries[1:]
	return entry, true
}

// Len reports the current queue depth
func (q *DLQ) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// popNewestIf removes the most recently pushed entry when it matches the
// given event id. Used by reprocessing to reclaim an entry Process just
// re-parked so its retry bookkeeping can be carried forward.
func (q *DLQ) popNewestIf(eventID string) (DLQEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.entries)
	if n == 0 || q.entries[n-1].EventID != eventID {
		return DLQEntry{}, false
	}
	entry := q.entries[n-1]
	q.entries = q.entries[:n-1]
	return entry, true
}

// Entries returns a snapshot of the queue, oldest first
func (q *DLQ) Entries() []DLQEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]DLQEntry, len(q.entries))
	copy(out, q.entries)
	return out
}
