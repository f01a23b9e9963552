package camera

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/OpalFocus/internal/debug"
	"github.com/cjeanneret/OpalFocus/internal/hw/gpio"
	"github.com/cjeanneret/OpalFocus/internal/journal"
)

// Defaults for a control session.
const (
	DefaultStream = "control"
	DefaultSettle = 500 * time.Millisecond
	MaxSettle     = time.Second
)

// SessionConfig parameterizes every session started by a Session.
type SessionConfig struct {
	Socket    BoardSocket
	Stream    string          // XLinkIn stream name, DefaultStream if empty
	Settle    time.Duration   // hold time after sending, clamped to [0, MaxSettle]
	Journal   journal.Journal // optional
	Indicator *gpio.Indicator // optional
}

// Session runs one-shot control sessions against devices from an Opener.
// Each Send opens the device, sends one command and releases it; a Session
// holds no device between calls and may be used from several goroutines.
type Session struct {
	opener Opener
	cfg    SessionConfig
}

// NewSession returns a Session using opener.
func NewSession(opener Opener, cfg SessionConfig) *Session {
	if cfg.Stream == "" {
		cfg.Stream = DefaultStream
	}
	if cfg.Settle < 0 {
		cfg.Settle = 0
	}
	if cfg.Settle > MaxSettle {
		cfg.Settle = MaxSettle
	}
	if cfg.Journal == nil {
		cfg.Journal = journal.Noop{}
	}
	return &Session{opener: opener, cfg: cfg}
}

// Settle returns the configured hold time.
func (s *Session) Settle() time.Duration {
	return s.cfg.Settle
}

// Send applies mode in a fresh control session. Success means the command
// was submitted and the device released cleanly; nothing is read back.
// Every failure, including teardown failures and panics, is returned as a
// *ControlError. Cancelling ctx shortens the settle wait only.
func (s *Session) Send(ctx context.Context, mode FocusMode) (err error) {
	id := uuid.NewString()
	start := time.Now()
	var dev Device
	held := false

	fail := func(op string, e error) error {
		return &ControlError{SessionID: id, Op: op, Err: e}
	}

	defer func() {
		if r := recover(); r != nil {
			err = fail("session", fmt.Errorf("panic: %v", r))
		}
		if dev != nil {
			if cerr := safeClose(dev); cerr != nil && err == nil {
				err = fail("close", cerr)
			}
			debug.Session(id, "device released")
		}
		if held {
			if lerr := s.cfg.Indicator.Release(); lerr != nil {
				debug.Trace("Indicator release: %v", lerr)
			}
		}
		s.finish(id, mode, start, err)
	}()

	debug.Session(id, "start "+mode.String())

	p := NewControlPipeline(s.cfg.Socket, s.cfg.Stream)
	if perr := p.Validate(); perr != nil {
		return fail("pipeline", perr)
	}
	debug.PrintStruct("Pipeline", *p)

	dev, err = s.opener.Open(ctx, p)
	if err != nil {
		dev = nil
		return fail("open", err)
	}
	debug.Session(id, "device opened")

	if lerr := s.cfg.Indicator.Acquire(); lerr != nil {
		debug.Trace("Indicator acquire: %v", lerr)
	}
	held = true

	q, err := dev.InputQueue(s.cfg.Stream)
	if err != nil {
		return fail("queue", err)
	}

	c := NewControl(mode)
	debug.Command(id, mode.String())
	debug.Verbose("Control %s", c)
	if err := q.Send(ctx, c); err != nil {
		return fail("send", err)
	}

	if s.cfg.Settle > 0 {
		timer := time.NewTimer(s.cfg.Settle)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			debug.Session(id, "settle interrupted")
		}
	}
	return nil
}

// safeClose releases dev, converting a panic in the driver into an error.
func safeClose(dev Device) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during close: %v", r)
		}
	}()
	return dev.Close()
}

func (s *Session) finish(id string, mode FocusMode, start time.Time, err error) {
	e := journal.Entry{
		Timestamp: start,
		SessionID: id,
		Mode:      mode.String(),
		Outcome:   journal.OutcomeOK,
		Duration:  time.Since(start),
	}
	if err != nil {
		e.Outcome = journal.OutcomeError
		e.Error = err.Error()
		if ce, ok := err.(*ControlError); ok {
			e.Op = ce.Op
			e.Error = ce.Err.Error()
		}
		debug.Error(err)
	} else {
		debug.Info("Session %s: %s applied in %v", id, mode, e.Duration.Round(time.Millisecond))
	}
	s.cfg.Journal.Record(e)
}
