package web

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/OpalFocus/internal/logic/focus"
)

// Event levels.
const (
	LevelInfo  = "info"
	LevelError = "error"
	LevelState = "state"
)

// StatusEvent is one SSE message: either a log line or a controller state.
type StatusEvent struct {
	Time  string       `json:"t"`
	Level string       `json:"l,omitempty"`
	Msg   string       `json:"msg,omitempty"`
	State *focus.State `json:"state,omitempty"`
}

// StatusBroadcaster distributes status events to SSE clients.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
}

// NewStatusBroadcaster creates a new broadcaster.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel of JSON-encoded events and a cleanup function,
// to be called when the client disconnects. Cleanup may be called twice.
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Clients returns the number of subscribed clients.
func (b *StatusBroadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Broadcast sends a log line to all clients as {"t":"...","l":"info","msg":"..."}.
// Slow clients miss messages.
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.send(StatusEvent{Level: level, Msg: msg})
}

// BroadcastMsg is a convenience for level "info".
func (b *StatusBroadcaster) BroadcastMsg(msg string) {
	b.Broadcast(LevelInfo, msg)
}

// BroadcastState sends a controller state snapshot.
func (b *StatusBroadcaster) BroadcastState(st focus.State) {
	b.send(StatusEvent{Level: LevelState, State: &st})
}

func (b *StatusBroadcaster) send(evt StatusEvent) {
	evt.Time = time.Now().Format(time.RFC3339)
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
		}
	}
}

// BroadcastWriter returns an io.Writer broadcasting each write as a log
// line, for debug.SetOutput.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg == "" {
		return len(p), nil
	}
	level := LevelInfo
	if strings.Contains(msg, "[ERROR]") {
		level = LevelError
	}
	w.b.Broadcast(level, msg)
	return len(p), nil
}
