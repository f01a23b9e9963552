package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/OpalFocus/internal/debug"
)

// MockState is a snapshot of what the simulated camera has been told.
type MockState struct {
	AutoFocus    AutoFocusMode
	LensPosition uint8
	Pipelines    int // pipelines uploaded
	Controls     int // control messages applied
	Opens        int // successful claims
	Rejected     int // claims refused because the device was busy
}

// MockCamera is an in-process camera for development and tests. It decodes
// the same frames the USB device receives and enforces the single-claim
// rule of the real device.
type MockCamera struct {
	xfer       sync.Mutex // held by a transfer in progress
	mu         sync.Mutex
	present    bool
	claimed    bool
	writeDelay time.Duration
	closeErr   error
	ioTimeout  time.Duration
	state      MockState
}

// NewMockCamera returns a connected simulated camera with autofocus on.
func NewMockCamera() *MockCamera {
	return &MockCamera{
		present:   true,
		ioTimeout: 2 * time.Second,
		state:     MockState{AutoFocus: AutoFocusContinuousVideo},
	}
}

// SetPresent simulates plugging or unplugging the camera.
func (m *MockCamera) SetPresent(present bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.present = present
}

// SetWriteDelay makes every frame write take d.
func (m *MockCamera) SetWriteDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeDelay = d
}

// SetIOTimeout bounds simulated writes like USBOpener.IOTimeout.
func (m *MockCamera) SetIOTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ioTimeout = d
}

// SetCloseError makes releasing the device fail with err.
func (m *MockCamera) SetCloseError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeErr = err
}

// State returns a snapshot of the simulated device.
func (m *MockCamera) State() MockState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Claimed reports whether a session currently holds the device.
func (m *MockCamera) Claimed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.claimed
}

// Open claims the simulated device and uploads p.
func (m *MockCamera) Open(ctx context.Context, p *Pipeline) (Device, error) {
	m.mu.Lock()
	if !m.present {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w (simulated camera unplugged)", ErrDeviceNotFound)
	}
	if m.claimed {
		m.state.Rejected++
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: claimed by another session", ErrDeviceBusy)
	}
	m.claimed = true
	m.state.Opens++
	timeout := m.ioTimeout
	m.mu.Unlock()

	debug.Trace("Mock camera claimed")
	d, err := openLinkDevice(ctx, &mockLink{cam: m}, p, timeout)
	if err != nil {
		return nil, err
	}
	return d, nil
}

type mockLink struct {
	cam *MockCamera
}

// Write holds the transfer lock for its whole duration, like a libusb
// transfer, so Close waits for a slow write to finish.
func (l *mockLink) Write(b []byte) (int, error) {
	l.cam.xfer.Lock()
	defer l.cam.xfer.Unlock()

	l.cam.mu.Lock()
	delay := l.cam.writeDelay
	l.cam.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	cmds, err := decodeFrame(b)
	if err != nil {
		return 0, fmt.Errorf("mock camera: %w", err)
	}

	l.cam.mu.Lock()
	defer l.cam.mu.Unlock()
	for _, c := range cmds {
		switch c.ID {
		case cmdBuildPipeline:
			l.cam.state.Pipelines++
		case cmdControl:
			if err := l.cam.applyLocked(c.Data); err != nil {
				return 0, err
			}
			l.cam.state.Controls++
		default:
			return 0, fmt.Errorf("mock camera: unknown command 0x%02X", c.ID)
		}
	}
	return len(b), nil
}

// applyLocked applies [node, selector, value, ...] control data.
func (m *MockCamera) applyLocked(data []byte) error {
	if len(data) < 3 || (len(data)-1)%2 != 0 {
		return errors.New("mock camera: malformed control")
	}
	for i := 1; i < len(data); i += 2 {
		switch data[i] {
		case selectorFocusAuto:
			m.state.AutoFocus = AutoFocusMode(data[i+1])
		case selectorFocusAbsolute:
			m.state.LensPosition = data[i+1]
		default:
			return fmt.Errorf("mock camera: unknown selector 0x%02X", data[i])
		}
	}
	return nil
}

func (l *mockLink) Close() error {
	l.cam.xfer.Lock()
	defer l.cam.xfer.Unlock()

	l.cam.mu.Lock()
	err := l.cam.closeErr
	l.cam.claimed = false
	l.cam.mu.Unlock()
	debug.Trace("Mock camera released")
	return err
}
