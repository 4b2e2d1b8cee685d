package metrics

import (
	"sort"
	"sync"
	"time"
)

// DefaultSlowThreshold is the latency above which an operation is recorded
const DefaultSlowThreshold = 100 * time.Millisecond

// SlowOp is one recorded slow operation
type SlowOp struct {
	Timestamp  time.Time     `json:"timestamp"`
	Duration   time.Duration `json:"duration_ns"`
	Operation  string        `json:"operation"`
	Collection string        `json:"collection"`
	Filter     string        `json:"filter,omitempty"`
	Index      string        `json:"index,omitempty"`
	Scan       bool          `json:"scan,omitempty"`
	Examined   int           `json:"docs_examined"`
	Returned   int           `json:"docs_returned"`
	Error      string        `json:"error,omitempty"`
}

// SlowOpLog keeps the most recent operations slower than a threshold. A zero
// or negative threshold disables it.
type SlowOpLog struct {
	mu         sync.RWMutex
	threshold  time.Duration
	maxEntries int
	entries    []SlowOp
}

// NewSlowOpLog creates a log holding up to maxEntries entries
func NewSlowOpLog(threshold time.Duration, maxEntries int) *SlowOpLog {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &SlowOpLog{
		threshold:  threshold,
		maxEntries: maxEntries,
		entries:    make([]SlowOp, 0, min(maxEntries, 64)),
	}
}

// Record stores op if it exceeds the threshold and reports whether it did.
// The oldest entry is dropped when the log is full.
func (l *SlowOpLog) Record(op SlowOp) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.threshold <= 0 || op.Duration < l.threshold {
		return false
	}
	if op.Timestamp.IsZero() {
		op.Timestamp = time.Now()
	}
	if len(l.entries) >= l.maxEntries {
		l.entries = l.entries[1:]
	}
	l.entries = append(l.entries, op)
	return true
}

// Entries returns a copy of the log, oldest first
func (l *SlowOpLog) Entries() []SlowOp {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := make([]SlowOp, len(l.entries))
	copy(entries, l.entries)
	return entries
}

// ByCollection returns the entries of one collection
func (l *SlowOpLog) ByCollection(collection string) []SlowOp {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var filtered []SlowOp
	for _, entry := range l.entries {
		if entry.Collection == collection {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

// Slowest returns the n slowest entries, slowest first
func (l *SlowOpLog) Slowest(n int) []SlowOp {
	entries := l.Entries()
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Duration > entries[j].Duration
	})
	return entries[:min(n, len(entries))]
}

// SetThreshold changes the threshold
func (l *SlowOpLog) SetThreshold(threshold time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.threshold = threshold
}

// Threshold returns the current threshold
func (l *SlowOpLog) Threshold() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.threshold
}

// Clear removes all entries
func (l *SlowOpLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = l.entries[:0]
}
