// Aggregates recent upstream fetch failures for the admin surface
package reports

import (
	"sync"
	"time"
)

// DefaultMaxReports caps the log when no size was configured.
const DefaultMaxReports = 50

// Report records one failed upstream fetch.
type Report struct {
	Time   time.Time `json:"time"`
	Method string    `json:"method"`
	URL    string    `json:"url"`
	Status int       `json:"status,omitempty"`
	Error  string    `json:"error"`
}

// Log is a capped in-memory list of reports. When full, the oldest
// report is dropped first.
type Log struct {
	mu      sync.Mutex
	max     int
	entries []Report
}

// NewLog creates a report log holding at most max entries.
func NewLog(max int) *Log {
	if max <= 0 {
		max = DefaultMaxReports
	}
	return &Log{max: max}
}

// Add appends a report, dropping the oldest one if the log is full.
func (l *Log) Add(r Report) {
	if r.Time.IsZero() {
		r.Time = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) >= l.max {
		l.entries = l.entries[1:]
	}
	l.entries = append(l.entries, r)
}

// Recent returns up to limit reports, newest first. limit <= 0 returns
// everything.
func (l *Log) Recent(limit int) []Report {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.entries)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]Report, n)
	for i := 0; i < n; i++ {
		out[i] = l.entries[len(l.entries)-1-i]
	}
	return out
}

// Len returns the number of stored reports.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Clear drops all reports.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}
