package preview

import (
	"errors"
	"fmt"

	"github.com/cjeanneret/OpalFocus/internal/debug"
)

// AutoDevice as the configured device means "search the candidates".
const AutoDevice = "auto"

// ErrNoDevice is returned when no candidate delivers the requested size.
var ErrNoDevice = errors.New("no preview device found")

// Capture is an opened device and the frame size it delivers.
type Capture struct {
	Source
	Device string
	Width  int
	Height int
}

// DeviceOpener opens one capture device near a requested size.
type DeviceOpener interface {
	OpenDevice(device string, width, height int) (*Capture, error)
}

// Candidates returns the search order: device first unless it is
// AutoDevice or empty, then the fallbacks without duplicates.
func Candidates(device string, fallbacks []string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(d string) {
		if d == "" || d == AutoDevice || seen[d] {
			return
		}
		seen[d] = true
		out = append(out, d)
	}
	add(device)
	for _, d := range fallbacks {
		add(d)
	}
	return out
}

// Discover opens the candidates in order and returns the first one that
// delivers exactly width x height. A device running at another size is a
// different camera: it is closed and the search goes on.
func Discover(o DeviceOpener, candidates []string, width, height int) (*Capture, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidate devices", ErrNoDevice)
	}

	var errs []error
	for _, dev := range candidates {
		debug.Verbose("Trying preview device %s", dev)
		c, err := o.OpenDevice(dev, width, height)
		if err != nil {
			debug.Live("Preview %s: %v", dev, err)
			errs = append(errs, err)
			continue
		}
		if c.Width != width || c.Height != height {
			debug.Info("Preview %s delivers %dx%d, different camera", dev, c.Width, c.Height)
			errs = append(errs, fmt.Errorf("%s: %dx%d, different camera", dev, c.Width, c.Height))
			if err := c.Close(); err != nil {
				debug.Error(err)
			}
			continue
		}
		debug.Info("Preview device %s (%dx%d)", dev, c.Width, c.Height)
		return c, nil
	}
	return nil, fmt.Errorf("%w at %dx%d: %w", ErrNoDevice, width, height, errors.Join(errs...))
}
