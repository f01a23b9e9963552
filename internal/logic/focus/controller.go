// Package focus holds the user's focus intent and turns every change into
// one asynchronous control session.
package focus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cjeanneret/OpalFocus/internal/debug"
	"github.com/cjeanneret/OpalFocus/internal/hw/camera"
)

// Sender performs one control session. *camera.Session implements it.
type Sender interface {
	Send(ctx context.Context, mode camera.FocusMode) error
}

// Status lines shown to the user.
const (
	StatusReady = "Ready"
)

func statusApplying(m camera.FocusMode) string {
	if p, ok := m.Position(); ok {
		return fmt.Sprintf("Applying manual focus %d...", p)
	}
	return "Applying auto focus..."
}

func statusApplied(m camera.FocusMode) string {
	if p, ok := m.Position(); ok {
		return fmt.Sprintf("Manual focus set to %d", p)
	}
	return "Auto focus enabled"
}

func statusError(err error) string {
	return "Error: " + err.Error()
}

func statusInvalid(err error) string {
	return "Invalid focus position: " + err.Error()
}

// State is the controller's view of the camera focus. It is not persisted.
type State struct {
	Mode      camera.FocusMode `json:"mode"`     // last requested mode, updated before the session runs
	Applied   camera.FocusMode `json:"applied"`  // last mode whose session succeeded
	Position  int              `json:"position"` // slider label, follows drags
	Status    string           `json:"status"`
	LastError string           `json:"last_error,omitempty"`
	InFlight  int              `json:"in_flight"`
	Seq       uint64           `json:"seq"` // number of dispatched sessions
}

// Dispatch is the handle of one dispatched control session.
type Dispatch struct {
	Seq  uint64
	Mode camera.FocusMode

	done chan struct{}
	err  error
}

// Done is closed when the session has finished.
func (d *Dispatch) Done() <-chan struct{} {
	return d.done
}

// Wait blocks until the session finishes and returns its error.
func (d *Dispatch) Wait() error {
	<-d.done
	return d.err
}

// Err returns the session error, or nil while it is still running.
func (d *Dispatch) Err() error {
	select {
	case <-d.done:
		return d.err
	default:
		return nil
	}
}

// Controller owns the focus State. Calls never block on the device: every
// mode change starts its own control session in a goroutine. Sessions are
// neither ordered nor cancelled; the device layer rejects overlapping ones.
type Controller struct {
	sender Sender

	mu      sync.Mutex
	state   State
	subs    map[int]chan State
	nextSub int

	wg sync.WaitGroup
}

// NewController returns a controller in Auto mode with the slider at position.
// position is clamped to the valid range.
func NewController(sender Sender, position int) *Controller {
	if position < camera.MinPosition {
		position = camera.MinPosition
	}
	if position > camera.MaxPosition {
		position = camera.MaxPosition
	}
	return &Controller{
		sender: sender,
		state: State{
			Mode:     camera.Auto(),
			Applied:  camera.Auto(),
			Position: position,
			Status:   StatusReady,
		},
		subs: make(map[int]chan State),
	}
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetAuto enables autofocus.
func (c *Controller) SetAuto() *Dispatch {
	return c.dispatch(camera.Auto())
}

// SetManual fixes the lens at position. Out-of-range positions return a
// *camera.ValidationError and neither change state nor contact the device.
func (c *Controller) SetManual(position int) (*Dispatch, error) {
	mode, err := camera.Manual(position)
	if err != nil {
		c.mu.Lock()
		c.state.Status = statusInvalid(err)
		c.publishLocked()
		c.mu.Unlock()
		return nil, err
	}
	return c.dispatch(mode), nil
}

// DragPreview moves the slider label during a drag. It never contacts the
// device; out-of-range values are ignored.
func (c *Controller) DragPreview(position int) {
	if camera.ValidatePosition(position) != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Position == position {
		return
	}
	c.state.Position = position
	c.publishLocked()
}

// Commit ends a drag at position. It is the only point where a drag
// reaches the device.
func (c *Controller) Commit(position int) (*Dispatch, error) {
	return c.SetManual(position)
}

// Apply re-sends the current mode.
func (c *Controller) Apply() *Dispatch {
	c.mu.Lock()
	mode := c.state.Mode
	c.mu.Unlock()
	return c.dispatch(mode)
}

// Wait blocks until every dispatched session has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Subscribe returns a channel receiving every state change and a function
// to stop the subscription. Slow subscribers miss intermediate states but
// always see the latest one.
func (c *Controller) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.state
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			close(ch)
		})
	}
}

func (c *Controller) publishLocked() {
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- c.state
	}
}

func (c *Controller) dispatch(mode camera.FocusMode) *Dispatch {
	c.mu.Lock()
	c.state.Seq++
	d := &Dispatch{Seq: c.state.Seq, Mode: mode, done: make(chan struct{})}
	c.state.Mode = mode
	if p, ok := mode.Position(); ok {
		c.state.Position = p
	}
	c.state.InFlight++
	c.state.Status = statusApplying(mode)
	c.publishLocked()
	c.mu.Unlock()

	debug.Live("Dispatch #%d: %s", d.Seq, mode)
	c.wg.Add(1)
	go c.run(d)
	return d
}

func (c *Controller) run(d *Dispatch) {
	defer c.wg.Done()
	err := c.send(d.Mode)

	c.mu.Lock()
	c.state.InFlight--
	if err != nil {
		c.state.Status = statusError(err)
		c.state.LastError = err.Error()
	} else {
		c.state.Applied = d.Mode
		c.state.Status = statusApplied(d.Mode)
		c.state.LastError = ""
	}
	c.publishLocked()
	c.mu.Unlock()

	if err != nil {
		debug.Live("Dispatch #%d failed: %v", d.Seq, err)
	}
	d.err = err
	close(d.done)
}

// send runs the session, turning a panicking Sender into a ControlError.
func (c *Controller) send(mode camera.FocusMode) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &camera.ControlError{Op: "session", Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	err = c.sender.Send(context.Background(), mode)
	var ce *camera.ControlError
	if err != nil && !errors.As(err, &ce) {
		err = &camera.ControlError{Op: "send", Err: err}
	}
	return err
}
