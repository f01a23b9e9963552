package web

import (
	"context"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"time"

	"github.com/cjeanneret/OpalFocus/internal/debug"
)

// Server wraps the HTTP server and handlers.
type Server struct {
	addr     string
	handlers *Handlers
}

// Options carries the optional parts of the UI.
type Options struct {
	Preview http.Handler
	History HistoryFunc
}

// NewServer creates a server for addr driving ctrl.
func NewServer(addr string, broadcaster *StatusBroadcaster, ctrl Controller, ui UIConfig, opts Options) (*Server, error) {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, fmt.Errorf("web: static files: %w", err)
	}

	handlers := NewHandlers(broadcaster, ctrl, ui, subFS)
	handlers.Preview = opts.Preview
	handlers.History = opts.History

	return &Server{
		addr:     addr,
		handlers: handlers,
	}, nil
}

// Mux returns an http.Handler with all routes registered.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /state", s.handlers.HandleState)
	mux.HandleFunc("GET /config", s.handlers.HandleConfig)
	mux.HandleFunc("GET /history", s.handlers.HandleHistory)
	mux.HandleFunc("POST /focus/auto", s.handlers.HandleAuto)
	mux.HandleFunc("POST /focus/manual", s.handlers.HandleManual)
	mux.HandleFunc("POST /focus/drag", s.handlers.HandleDrag)
	mux.HandleFunc("POST /focus/commit", s.handlers.HandleCommit)
	mux.HandleFunc("POST /focus/apply", s.handlers.HandleApply)
	mux.HandleFunc("GET /status/stream", s.handlers.HandleStatusStream)
	mux.HandleFunc("GET /preview", s.handlers.HandlePreview)
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(s.handlers.staticFS))))
	mux.HandleFunc("GET /{$}", s.handlers.ServeIndex) // exact match for root only

	return mux
}

// Run starts the server and blocks until ctx is cancelled, then shuts down
// gracefully. Controller state changes are forwarded to SSE clients while
// the server runs.
func (s *Server) Run(ctx context.Context) error {
	// Streaming handlers end when ctx is cancelled.
	srv := &http.Server{
		Addr:        s.addr,
		Handler:     s.Mux(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	fwdCtx, stop := context.WithCancel(ctx)
	defer stop()
	go ForwardState(fwdCtx, s.handlers.Controller, s.handlers.Broadcaster)

	errCh := make(chan error, 1)
	go func() {
		debug.Info("Web server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
