package camera

import (
	"encoding/json"
	"fmt"
)

// Lens position bounds. Values near MinPosition focus close, values near
// MaxPosition focus far; the mapping to distance is device-defined.
const (
	MinPosition = 0
	MaxPosition = 255
)

// FocusMode is either Auto or Manual(position). The zero value is Auto.
// A Manual mode can only be built through Manual, so its position is
// always in range.
type FocusMode struct {
	manual   bool
	position uint8
}

// Auto returns the autofocus mode.
func Auto() FocusMode {
	return FocusMode{}
}

// Manual returns a fixed lens position mode.
func Manual(position int) (FocusMode, error) {
	if err := ValidatePosition(position); err != nil {
		return FocusMode{}, err
	}
	return FocusMode{manual: true, position: uint8(position)}, nil
}

// ValidatePosition reports a *ValidationError for positions outside [0, 255].
func ValidatePosition(position int) error {
	if position < MinPosition || position > MaxPosition {
		return &ValidationError{Position: position}
	}
	return nil
}

// IsAuto reports whether m enables autofocus.
func (m FocusMode) IsAuto() bool {
	return !m.manual
}

// Position returns the manual lens position; ok is false for Auto.
func (m FocusMode) Position() (position int, ok bool) {
	return int(m.position), m.manual
}

func (m FocusMode) String() string {
	if m.manual {
		return fmt.Sprintf("manual(%d)", m.position)
	}
	return "auto"
}

type modeJSON struct {
	Mode     string `json:"mode"`
	Position *int   `json:"position,omitempty"`
}

// MarshalJSON encodes {"mode":"auto"} or {"mode":"manual","position":N}.
func (m FocusMode) MarshalJSON() ([]byte, error) {
	v := modeJSON{Mode: "auto"}
	if p, ok := m.Position(); ok {
		v.Mode = "manual"
		v.Position = &p
	}
	return json.Marshal(v)
}

// UnmarshalJSON accepts the MarshalJSON encoding and validates the position.
func (m *FocusMode) UnmarshalJSON(data []byte) error {
	var v modeJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v.Mode {
	case "auto":
		*m = Auto()
		return nil
	case "manual":
		if v.Position == nil {
			return fmt.Errorf("manual focus mode requires a position")
		}
		mode, err := Manual(*v.Position)
		if err != nil {
			return err
		}
		*m = mode
		return nil
	default:
		return fmt.Errorf("unknown focus mode %q", v.Mode)
	}
}
