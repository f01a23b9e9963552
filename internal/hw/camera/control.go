package camera

import (
	"fmt"
)

// AutoFocusMode values understood by the camera firmware.
type AutoFocusMode uint8

const (
	AutoFocusOff             AutoFocusMode = 0
	AutoFocusAuto            AutoFocusMode = 1
	AutoFocusMacro           AutoFocusMode = 2
	AutoFocusContinuousVideo AutoFocusMode = 3
)

func (m AutoFocusMode) String() string {
	switch m {
	case AutoFocusOff:
		return "OFF"
	case AutoFocusAuto:
		return "AUTO"
	case AutoFocusMacro:
		return "MACRO"
	case AutoFocusContinuousVideo:
		return "CONTINUOUS_VIDEO"
	default:
		return fmt.Sprintf("AutoFocusMode(%d)", uint8(m))
	}
}

// Control selectors, numbered after the UVC camera terminal selectors.
const (
	selectorFocusAbsolute byte = 0x06
	selectorFocusAuto     byte = 0x08
)

// Control is a single camera control message. Setters may be combined;
// selectors are applied by the device in the order they were set.
type Control struct {
	selectors []byte
}

// NewControl builds the control message for mode: Auto enables autofocus,
// Manual(p) turns autofocus off and fixes the lens at p.
func NewControl(mode FocusMode) Control {
	var c Control
	if p, ok := mode.Position(); ok {
		c.SetManualFocus(uint8(p))
		return c
	}
	c.SetAutoFocusMode(AutoFocusAuto)
	return c
}

// SetAutoFocusMode selects the autofocus algorithm.
func (c *Control) SetAutoFocusMode(m AutoFocusMode) {
	c.selectors = append(c.selectors, selectorFocusAuto, byte(m))
}

// SetManualFocus disables autofocus and moves the lens to position.
func (c *Control) SetManualFocus(position uint8) {
	c.SetAutoFocusMode(AutoFocusOff)
	c.selectors = append(c.selectors, selectorFocusAbsolute, position)
}

// Bytes returns the selector/value pairs of c.
func (c Control) Bytes() []byte {
	out := make([]byte, len(c.selectors))
	copy(out, c.selectors)
	return out
}

// Empty reports whether no selector was set.
func (c Control) Empty() bool {
	return len(c.selectors) == 0
}

func (c Control) String() string {
	if c.Empty() {
		return "{}"
	}
	s := "{"
	for i := 0; i+1 < len(c.selectors); i += 2 {
		if i > 0 {
			s += " "
		}
		switch c.selectors[i] {
		case selectorFocusAuto:
			s += "af=" + AutoFocusMode(c.selectors[i+1]).String()
		case selectorFocusAbsolute:
			s += fmt.Sprintf("lens=%d", c.selectors[i+1])
		default:
			s += fmt.Sprintf("0x%02x=%d", c.selectors[i], c.selectors[i+1])
		}
	}
	return s + "}"
}
