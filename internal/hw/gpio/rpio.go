package gpio

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"

	"github.com/cjeanneret/OpalFocus/internal/debug"
)

// RPiDriver drives BCM pins through go-rpio's memory-mapped registers.
type RPiDriver struct {
	mu   sync.Mutex
	pins map[int]rpio.Pin
}

// NewRPiDriver maps the GPIO registers. Requires /dev/gpiomem access or root.
func NewRPiDriver() (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}
	return &RPiDriver{pins: make(map[int]rpio.Pin)}, nil
}

// Output configures pin as a low output.
func (r *RPiDriver) Output(pin int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.output(pin)
	return nil
}

func (r *RPiDriver) output(pin int) rpio.Pin {
	debug.GPIO("Output", pin, nil)
	p := rpio.Pin(pin)
	p.Output()
	p.Low()
	r.pins[pin] = p
	return p
}

// Set drives pin high when on. Unconfigured pins become outputs first.
func (r *RPiDriver) Set(pin int, on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	debug.GPIO("Set", pin, on)

	p, ok := r.pins[pin]
	if !ok {
		p = r.output(pin)
	}
	if on {
		p.High()
	} else {
		p.Low()
	}
	return nil
}

// Close turns every used pin off, releases it as input and unmaps GPIO.
func (r *RPiDriver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	debug.Trace("GPIO Close (real driver)")
	for pin, p := range r.pins {
		debug.Verbose("Releasing pin %d", pin)
		p.Low()
		p.Input()
	}
	r.pins = map[int]rpio.Pin{}
	return rpio.Close()
}
