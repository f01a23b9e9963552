package journal

import (
	"sync"
	"time"
)

// Outcome is how a control session ended.
type Outcome uint8

const (
	OutcomeOK    Outcome = 0
	OutcomeError Outcome = 1
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText renders the outcome name in JSON output.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Entry describes one finished control session.
// CBOR encoding uses integer keys for compactness.
type Entry struct {
	Timestamp time.Time     `cbor:"1,keyasint" json:"timestamp"`
	SessionID string        `cbor:"2,keyasint" json:"session_id"`
	Mode      string        `cbor:"3,keyasint" json:"mode"`
	Outcome   Outcome       `cbor:"4,keyasint" json:"outcome"`
	Op        string        `cbor:"5,keyasint,omitempty" json:"op,omitempty"`
	Error     string        `cbor:"6,keyasint,omitempty" json:"error,omitempty"`
	Duration  time.Duration `cbor:"7,keyasint" json:"duration_ns"`
}

// Journal receives session entries. Implementations must be safe for
// concurrent use; sessions finish on their own goroutines.
type Journal interface {
	Record(e Entry)
}

// Noop discards all entries.
type Noop struct{}

// Record discards the entry.
func (Noop) Record(Entry) {}

// Multi fans entries out to several journals.
type Multi struct {
	journals []Journal
}

// NewMulti returns a journal writing to every non-nil j.
func NewMulti(journals ...Journal) *Multi {
	m := &Multi{}
	for _, j := range journals {
		if j != nil {
			m.journals = append(m.journals, j)
		}
	}
	return m
}

// Record forwards e to all journals.
func (m *Multi) Record(e Entry) {
	for _, j := range m.journals {
		j.Record(e)
	}
}

// Ring keeps the most recent entries in memory.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

// NewRing returns a ring holding up to size entries (minimum 1).
func NewRing(size int) *Ring {
	if size < 1 {
		size = 1
	}
	return &Ring{entries: make([]Entry, size)}
}

// Record stores e, overwriting the oldest entry when full.
func (r *Ring) Record(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
}

// Entries returns the stored entries, oldest first.
func (r *Ring) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]Entry, r.next)
		copy(out, r.entries[:r.next])
		return out
	}
	out := make([]Entry, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	out = append(out, r.entries[:r.next]...)
	return out
}

// Compile-time interface satisfaction checks.
var (
	_ Journal = Noop{}
	_ Journal = (*Multi)(nil)
	_ Journal = (*Ring)(nil)
)
