package focus

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/OpalFocus/internal/hw/camera"
)

// countingSender records every session it is asked to run.
type countingSender struct {
	mu    sync.Mutex
	modes []camera.FocusMode
	err   error
	gate  chan struct{} // if set, Send blocks until it is closed
}

func (s *countingSender) Send(ctx context.Context, mode camera.FocusMode) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modes = append(s.modes, mode)
	return s.err
}

func (s *countingSender) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.modes)
}

func manual(t *testing.T, p int) camera.FocusMode {
	t.Helper()
	m, err := camera.Manual(p)
	require.NoError(t, err)
	return m
}

func TestSetManual_ValidRange(t *testing.T) {
	s := &countingSender{}
	c := NewController(s, 130)

	for p := camera.MinPosition; p <= camera.MaxPosition; p++ {
		d, err := c.SetManual(p)
		require.NoError(t, err, "position %d", p)
		require.NoError(t, d.Wait())
	}
	assert.Equal(t, 256, s.calls())
	assert.Equal(t, manual(t, 255), c.State().Mode)
}

func TestSetManual_OutOfRangeNoDeviceCall(t *testing.T) {
	cases := []int{-1, 256, -1000, 1 << 20}
	for _, p := range cases {
		s := &countingSender{}
		c := NewController(s, 130)
		before := c.State()

		d, err := c.SetManual(p)
		assert.Nil(t, d)
		var ve *camera.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, p, ve.Position)

		c.Wait()
		assert.Equal(t, 0, s.calls(), "position %d must not reach the device", p)
		after := c.State()
		assert.Equal(t, before.Mode, after.Mode)
		assert.Equal(t, before.Position, after.Position)
		assert.Equal(t, before.Seq, after.Seq)
		assert.Contains(t, after.Status, "Invalid focus position")
	}
}

func TestDragThenCommit_SingleSession(t *testing.T) {
	s := &countingSender{}
	c := NewController(s, 130)

	for p := 0; p <= 255; p += 5 {
		c.DragPreview(p)
		assert.Equal(t, p, c.State().Position)
	}
	c.DragPreview(-3)
	c.DragPreview(999)
	assert.Equal(t, 255, c.State().Position, "out-of-range drag values are ignored")
	c.Wait()
	assert.Equal(t, 0, s.calls())
	assert.True(t, c.State().Mode.IsAuto(), "dragging does not change the mode")

	d, err := c.Commit(77)
	require.NoError(t, err)
	require.NoError(t, d.Wait())
	assert.Equal(t, 1, s.calls())
	assert.Equal(t, manual(t, 77), c.State().Applied)
}

func TestCommit_Invalid(t *testing.T) {
	s := &countingSender{}
	c := NewController(s, 130)
	_, err := c.Commit(300)
	require.Error(t, err)
	c.Wait()
	assert.Equal(t, 0, s.calls())
}

func TestSetAuto_Twice(t *testing.T) {
	s := &countingSender{}
	c := NewController(s, 130)

	d1 := c.SetAuto()
	d2 := c.SetAuto()
	require.NoError(t, d1.Wait())
	require.NoError(t, d2.Wait())

	assert.Equal(t, 2, s.calls())
	assert.NotEqual(t, d1.Seq, d2.Seq)
	st := c.State()
	assert.True(t, st.Mode.IsAuto())
	assert.True(t, st.Applied.IsAuto())
	assert.Equal(t, 0, st.InFlight)
	assert.Equal(t, uint64(2), st.Seq)
}

func TestRoundTrip(t *testing.T) {
	s := &countingSender{}
	c := NewController(s, 130)

	d, err := c.SetManual(200)
	require.NoError(t, err)
	require.NoError(t, d.Wait())
	require.NoError(t, c.SetAuto().Wait())
	d, err = c.SetManual(50)
	require.NoError(t, err)
	require.NoError(t, d.Wait())

	assert.Equal(t, []camera.FocusMode{manual(t, 200), camera.Auto(), manual(t, 50)}, s.modes)
	st := c.State()
	assert.Equal(t, manual(t, 50), st.Mode)
	assert.Equal(t, manual(t, 50), st.Applied)
	assert.Equal(t, 50, st.Position)
	assert.Equal(t, "Manual focus set to 50", st.Status)
}

func TestDispatchSeqFollowsCallOrder(t *testing.T) {
	s := &countingSender{gate: make(chan struct{})}
	c := NewController(s, 130)

	d1, _ := c.SetManual(200)
	d2 := c.SetAuto()
	d3, _ := c.SetManual(50)
	assert.Equal(t, []uint64{1, 2, 3}, []uint64{d1.Seq, d2.Seq, d3.Seq})
	assert.Equal(t, 3, c.State().InFlight)

	close(s.gate)
	c.Wait()
	assert.Equal(t, 3, s.calls())
	assert.Equal(t, manual(t, 50), c.State().Mode, "recorded state is the last request")
	assert.Equal(t, 0, c.State().InFlight)
}

func TestDeviceAbsent_OptimisticState(t *testing.T) {
	cam := camera.NewMockCamera()
	cam.SetPresent(false)
	c := NewController(camera.NewSession(cam, camera.SessionConfig{}), 100)

	d, err := c.SetManual(130)
	require.NoError(t, err, "validation passes; the failure is reported by the dispatch")
	assert.Equal(t, manual(t, 130), c.State().Mode, "state updates before the session finishes")

	err = d.Wait()
	var ce *camera.ControlError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, camera.ErrDeviceNotFound)
	assert.Equal(t, err, d.Err())

	st := c.State()
	assert.Equal(t, manual(t, 130), st.Mode)
	assert.True(t, st.Applied.IsAuto(), "applied state keeps the last success")
	assert.Equal(t, 130, st.Position)
	assert.Contains(t, st.Status, "Error: ")
	assert.NotEmpty(t, st.LastError)
}

func TestFailureThenSuccessClearsError(t *testing.T) {
	s := &countingSender{err: errors.New("usb stall")}
	c := NewController(s, 130)

	err := c.SetAuto().Wait()
	var ce *camera.ControlError
	require.ErrorAs(t, err, &ce, "plain errors are wrapped as control errors")
	assert.Equal(t, "Error: control session send: usb stall", c.State().Status)

	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
	require.NoError(t, c.Apply().Wait())
	st := c.State()
	assert.Empty(t, st.LastError)
	assert.Equal(t, "Auto focus enabled", st.Status)
}

type panicSender struct{}

func (panicSender) Send(context.Context, camera.FocusMode) error { panic("boom") }

func TestSenderPanicBecomesControlError(t *testing.T) {
	c := NewController(panicSender{}, 130)
	var err error
	require.NotPanics(t, func() { err = c.SetAuto().Wait() })
	var ce *camera.ControlError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, c.State().Status, "boom")
}

func TestApply_ResendsCurrentMode(t *testing.T) {
	s := &countingSender{}
	c := NewController(s, 130)

	d, _ := c.SetManual(42)
	require.NoError(t, d.Wait())
	require.NoError(t, c.Apply().Wait())

	assert.Equal(t, []camera.FocusMode{manual(t, 42), manual(t, 42)}, s.modes)
}

func TestDispatch_ErrWhileRunning(t *testing.T) {
	s := &countingSender{gate: make(chan struct{})}
	c := NewController(s, 130)

	d := c.SetAuto()
	assert.NoError(t, d.Err())
	select {
	case <-d.Done():
		t.Fatal("dispatch finished before the sender returned")
	default:
	}
	assert.Equal(t, "Applying auto focus...", c.State().Status)
	close(s.gate)
	require.NoError(t, d.Wait())
}

func TestSubscribe(t *testing.T) {
	s := &countingSender{}
	c := NewController(s, 130)

	ch, cancel := c.Subscribe()
	first := <-ch
	assert.Equal(t, StatusReady, first.Status)

	require.NoError(t, c.SetAuto().Wait())
	var last State
	for last.Status != "Auto focus enabled" {
		last = <-ch
	}
	assert.Equal(t, uint64(1), last.Seq)

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open, "channel is closed after cancel")

	// Publishing after cancel must not panic.
	c.DragPreview(10)
}

func TestNewController_ClampsPosition(t *testing.T) {
	assert.Equal(t, 0, NewController(&countingSender{}, -5).State().Position)
	assert.Equal(t, 255, NewController(&countingSender{}, 900).State().Position)
}
