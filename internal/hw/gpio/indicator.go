package gpio

import (
	"sync"

	"github.com/cjeanneret/OpalFocus/internal/debug"
)

// Indicator drives an LED that is lit while at least one control session
// holds the camera. Sessions may overlap, so it counts holders.
type Indicator struct {
	mu      sync.Mutex
	gpio    Driver
	pin     int
	holders int
}

// NewIndicator configures pin as an output and turns it off.
// A nil driver or pin 0 yields a disabled indicator whose methods are no-ops.
func NewIndicator(g Driver, pin int) *Indicator {
	ind := &Indicator{gpio: g, pin: pin}
	if !ind.enabled() {
		return ind
	}
	_ = g.Output(pin)
	_ = g.Set(pin, false)
	return ind
}

func (i *Indicator) enabled() bool {
	return i != nil && i.gpio != nil && i.pin > 0
}

// Acquire marks a session as holding the device and lights the LED.
func (i *Indicator) Acquire() error {
	if !i.enabled() {
		return nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.holders++
	if i.holders > 1 {
		return nil
	}
	debug.Trace("Indicator on (pin %d)", i.pin)
	return i.gpio.Set(i.pin, true)
}

// Release drops one holder and turns the LED off when none remain.
func (i *Indicator) Release() error {
	if !i.enabled() {
		return nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.holders == 0 {
		return nil
	}
	i.holders--
	if i.holders > 0 {
		return nil
	}
	debug.Trace("Indicator off (pin %d)", i.pin)
	return i.gpio.Set(i.pin, false)
}
