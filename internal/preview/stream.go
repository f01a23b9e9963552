package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"net/http"
	"sync"

	"github.com/cjeanneret/OpalFocus/internal/debug"
)

const boundary = "opalfocusframe"

// Streamer reads frames from a Source, annotates them and fans the JPEG
// encodings out to HTTP clients as an MJPEG stream.
type Streamer struct {
	src     Source
	quality int

	mu      sync.RWMutex
	clients map[chan []byte]struct{}
	frames  int
	latest  []byte
}

// NewStreamer returns a streamer over src. Call Run to start reading.
func NewStreamer(src Source) *Streamer {
	return &Streamer{
		src:     src,
		quality: 80,
		clients: make(map[chan []byte]struct{}),
	}
}

// Run reads frames until ctx is cancelled or the source fails, then
// closes the source.
func (s *Streamer) Run(ctx context.Context) error {
	defer func() {
		if err := s.src.Close(); err != nil {
			debug.Error(fmt.Errorf("preview: %w", err))
		}
		debug.Info("Preview stopped after %d frames", s.Frames())
	}()
	for {
		img, err := s.src.Frame(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrNoFrame) {
			continue
		}
		if err != nil {
			return fmt.Errorf("preview: %w", err)
		}

		s.mu.Lock()
		n := s.frames
		s.frames++
		s.mu.Unlock()

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, Annotate(img, n), &jpeg.Options{Quality: s.quality}); err != nil {
			debug.Verbose("Preview frame %d: encode: %v", n, err)
			continue
		}
		s.publish(buf.Bytes())
	}
}

// Frames returns the number of frames read so far.
func (s *Streamer) Frames() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frames
}

// Latest returns the most recent encoded frame, or nil before the first one.
func (s *Streamer) Latest() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Subscribe returns a channel of encoded frames and a cleanup function.
// Slow clients drop frames.
func (s *Streamer) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 2)
	s.mu.Lock()
	s.clients[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.clients, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Streamer) publish(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = frame
	for ch := range s.clients {
		select {
		case ch <- frame:
		default:
		}
	}
}

// ServeHTTP streams frames as multipart/x-mixed-replace until the client
// goes away.
func (s *Streamer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ch, unsub := s.Subscribe()
	defer unsub()

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	if latest := s.Latest(); latest != nil {
		if writePart(w, latest) != nil {
			return
		}
		flusher.Flush()
	}

	for {
		select {
		case frame, ok := <-ch:
			if !ok {
				return
			}
			if err := writePart(w, frame); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writePart(w http.ResponseWriter, frame []byte) error {
	header := fmt.Sprintf("--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", boundary, len(frame))
	if _, err := w.Write([]byte(header)); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}
