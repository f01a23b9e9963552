package journal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/cjeanneret/OpalFocus/internal/debug"
)

// FileJournal appends entries to a file in CBOR format.
// It is safe for concurrent use from multiple goroutines.
type FileJournal struct {
	file    *os.File
	encoder *cbor.Encoder
	mu      sync.Mutex
	closed  bool
}

// NewFileJournal opens path for appending, creating it with mode 0644.
func NewFileJournal(path string) (*FileJournal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &FileJournal{
		file:    f,
		encoder: cbor.NewEncoder(f),
	}, nil
}

// Record writes e to the file. Write errors are logged, never returned:
// a broken journal must not fail a control session.
func (j *FileJournal) Record(e Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return
	}
	if err := j.encoder.Encode(e); err != nil {
		debug.Error(fmt.Errorf("journal: record session %s: %w", e.SessionID, err))
	}
}

// Close closes the file. It is safe to call Close multiple times.
// After Close is called, subsequent Record calls are silently ignored.
func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true
	return j.file.Close()
}

// ReadFile decodes every entry stored in path.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read decodes entries from r until EOF.
func Read(r io.Reader) ([]Entry, error) {
	dec := cbor.NewDecoder(r)
	var entries []Entry
	for {
		var e Entry
		err := dec.Decode(&e)
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return entries, fmt.Errorf("decode entry %d: %w", len(entries), err)
		}
		entries = append(entries, e)
	}
}

var _ Journal = (*FileJournal)(nil)
