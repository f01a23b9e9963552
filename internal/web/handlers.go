package web

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/cjeanneret/OpalFocus/internal/debug"
	"github.com/cjeanneret/OpalFocus/internal/hw/camera"
	"github.com/cjeanneret/OpalFocus/internal/journal"
	"github.com/cjeanneret/OpalFocus/internal/logic/focus"
)

const maxBodyBytes = 1 << 10

// Controller is the part of focus.Controller the web UI drives.
type Controller interface {
	State() focus.State
	SetAuto() *focus.Dispatch
	SetManual(position int) (*focus.Dispatch, error)
	DragPreview(position int)
	Commit(position int) (*focus.Dispatch, error)
	Apply() *focus.Dispatch
	Subscribe() (<-chan focus.State, func())
}

// HistoryFunc returns recent control sessions, oldest first.
type HistoryFunc func() []journal.Entry

// UIConfig holds values the page needs at load time.
type UIConfig struct {
	DefaultPosition int  `json:"default_position"`
	MinPosition     int  `json:"min_position"`
	MaxPosition     int  `json:"max_position"`
	SettleMs        int  `json:"settle_ms"`
	Preview         bool `json:"preview"`
}

// PositionRequest is the body of manual, drag and commit requests.
type PositionRequest struct {
	Position *int `json:"position"`
}

// DispatchResponse acknowledges a dispatched control session.
type DispatchResponse struct {
	Status string           `json:"status"`
	Seq    uint64           `json:"seq"`
	Mode   camera.FocusMode `json:"mode"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Controller  Controller
	UI          UIConfig
	Preview     http.Handler // nil when no preview is configured
	History     HistoryFunc  // nil when sessions are not recorded
	staticFS    fs.FS
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(broadcaster *StatusBroadcaster, ctrl Controller, ui UIConfig, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Controller:  ctrl,
		UI:          ui,
		staticFS:    staticFS,
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleConfig returns the page configuration as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	ui := h.UI
	ui.Preview = h.Preview != nil
	writeJSON(w, http.StatusOK, ui)
}

// HandleState returns the controller state as JSON.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Controller.State())
}

// HandleAuto handles POST /focus/auto.
func (h *Handlers) HandleAuto(w http.ResponseWriter, r *http.Request) {
	h.accepted(w, h.Controller.SetAuto())
}

// HandleApply handles POST /focus/apply: re-send the current mode.
func (h *Handlers) HandleApply(w http.ResponseWriter, r *http.Request) {
	h.accepted(w, h.Controller.Apply())
}

// HandleManual handles POST /focus/manual with {"position": N}.
func (h *Handlers) HandleManual(w http.ResponseWriter, r *http.Request) {
	h.position(w, r, h.Controller.SetManual)
}

// HandleCommit handles POST /focus/commit, sent once when a slider drag ends.
func (h *Handlers) HandleCommit(w http.ResponseWriter, r *http.Request) {
	h.position(w, r, h.Controller.Commit)
}

// HandleDrag handles POST /focus/drag. It only moves the displayed
// position; the device is not contacted.
func (h *Handlers) HandleDrag(w http.ResponseWriter, r *http.Request) {
	p, ok := decodePosition(w, r)
	if !ok {
		return
	}
	if err := camera.ValidatePosition(p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.Controller.DragPreview(p)
	writeJSON(w, http.StatusOK, h.Controller.State())
}

func (h *Handlers) position(w http.ResponseWriter, r *http.Request, set func(int) (*focus.Dispatch, error)) {
	p, ok := decodePosition(w, r)
	if !ok {
		return
	}
	d, err := set(p)
	var ve *camera.ValidationError
	if errors.As(err, &ve) {
		http.Error(w, ve.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.accepted(w, d)
}

func decodePosition(w http.ResponseWriter, r *http.Request) (int, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req PositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return 0, false
	}
	if req.Position == nil {
		http.Error(w, "position is required", http.StatusBadRequest)
		return 0, false
	}
	return *req.Position, true
}

// accepted answers 202 and reports the session outcome to SSE clients
// once it finishes.
func (h *Handlers) accepted(w http.ResponseWriter, d *focus.Dispatch) {
	go func() {
		if err := d.Wait(); err != nil {
			var ce *camera.ControlError
			if errors.As(err, &ce) && ce.Hint() != "" {
				h.Broadcaster.Broadcast(LevelError, ce.Hint())
			}
			debug.Live("Dispatch #%d from web failed: %v", d.Seq, err)
		}
	}()
	writeJSON(w, http.StatusAccepted, DispatchResponse{Status: "dispatched", Seq: d.Seq, Mode: d.Mode})
}

// HandleHistory returns recorded control sessions.
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	entries := []journal.Entry{}
	if h.History != nil {
		if e := h.History(); e != nil {
			entries = e
		}
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandlePreview streams the annotated preview, or 503 when none is configured.
func (h *Handlers) HandlePreview(w http.ResponseWriter, r *http.Request) {
	if h.Preview == nil {
		http.Error(w, "preview not configured", http.StatusServiceUnavailable)
		return
	}
	h.Preview.ServeHTTP(w, r)
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	debug.Live("Status client connected (%d connected)", h.Broadcaster.Clients())
	defer func() {
		unsub()
		debug.Live("Status client left (%d connected)", h.Broadcaster.Clients())
	}()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// ForwardState broadcasts every controller state change until ctx is done.
func ForwardState(ctx context.Context, ctrl Controller, b *StatusBroadcaster) {
	ch, unsub := ctrl.Subscribe()
	defer unsub()
	for {
		select {
		case st, ok := <-ch:
			if !ok {
				return
			}
			b.BroadcastState(st)
		case <-ctx.Done():
			return
		}
	}
}
