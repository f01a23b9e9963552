// Package gpio drives output pins used as status LEDs.
package gpio

import (
	"sync"

	"github.com/cjeanneret/OpalFocus/internal/debug"
)

// Driver switches output pins. Implementations must be safe for
// concurrent use: control sessions run on their own goroutines.
type Driver interface {
	Output(pin int) error
	Set(pin int, on bool) error
	Close() error
}

// NewDriver returns a MockDriver when mock is true, else the Raspberry Pi driver.
func NewDriver(mock bool) (Driver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return &MockDriver{}, nil
	}
	return NewRPiDriver()
}

// MockDriver keeps pin states in memory.
type MockDriver struct {
	mu      sync.Mutex
	outputs map[int]bool // pin -> lit
	toggles int
}

func (m *MockDriver) Output(pin int) error {
	debug.GPIO("Output", pin, nil)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outputs == nil {
		m.outputs = make(map[int]bool)
	}
	m.outputs[pin] = false
	return nil
}

func (m *MockDriver) Set(pin int, on bool) error {
	debug.GPIO("Set", pin, on)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outputs == nil {
		m.outputs = make(map[int]bool)
	}
	if m.outputs[pin] != on {
		m.toggles++
	}
	m.outputs[pin] = on
	return nil
}

// Lit reports the last state set on pin.
func (m *MockDriver) Lit(pin int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outputs[pin]
}

// Toggles counts state changes across all pins.
func (m *MockDriver) Toggles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.toggles
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}
