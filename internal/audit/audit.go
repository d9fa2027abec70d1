// Package audit records one entry per gateway operation outcome.
package audit

import (
	"maps"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Outcome is the terminal state of an audited operation.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
	OutcomeBlocked Outcome = "blocked"
)

// Record is one audit entry. Params is a summary; it never carries file content.
type Record struct {
	Timestamp time.Time         `json:"ts"`
	RequestID string            `json:"request_id,omitempty"`
	Kind      string            `json:"kind"`
	Params    map[string]string `json:"params,omitempty"`
	Outcome   Outcome           `json:"outcome"`
	Actor     string            `json:"actor,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Sink persists records. Write is called with the Log's mutex held.
type Sink interface {
	Write(rec Record) error
	Close() error
}

const recentCapacity = 256

// Log serialises records into a sink and keeps the most recent ones in memory.
type Log struct {
	mu     sync.Mutex
	sink   Sink
	logger zerolog.Logger
	now    func() time.Time

	recent   []Record
	writeIdx int
	count    int
}

// New creates a Log writing to sink. Sink failures go to logger only.
func New(sink Sink, logger zerolog.Logger) *Log {
	if sink == nil {
		panic("sink is required")
	}
	return &Log{
		sink:   sink,
		logger: logger,
		now:    time.Now,
		recent: make([]Record, recentCapacity),
	}
}

// Record appends rec. It never fails; a sink error degrades the durable
// trail but the in-memory buffer still sees the record.
func (l *Log) Record(rec Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.now().UTC()
	}
	rec.Params = maps.Clone(rec.Params)

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.sink.Write(rec); err != nil {
		l.logger.Error().Err(err).
			Str("kind", rec.Kind).
			Str("request_id", rec.RequestID).
			Str("outcome", string(rec.Outcome)).
			Msg("audit sink write failed")
	}

	l.recent[l.writeIdx] = rec
	l.writeIdx = (l.writeIdx + 1) % len(l.recent)
	if l.count < len(l.recent) {
		l.count++
	}
}

// Recent returns up to n records, newest first. n <= 0 returns all buffered records.
func (l *Log) Recent(n int) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > l.count {
		n = l.count
	}
	out := make([]Record, n)
	idx := (l.writeIdx - 1 + len(l.recent)) % len(l.recent)
	for i := range n {
		r := l.recent[idx]
		r.Params = maps.Clone(r.Params)
		out[i] = r
		idx = (idx - 1 + len(l.recent)) % len(l.recent)
	}
	return out
}

// Close flushes and closes the sink.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sink.Close()
}
