package camera

import (
	"errors"
	"fmt"
)

var (
	ErrDeviceNotFound  = errors.New("device not found")
	ErrMultipleDevices = errors.New("more than one compatible device connected")
	ErrDeviceBusy      = errors.New("device busy")
	ErrPipeline        = errors.New("pipeline construction failed")
	ErrUnknownStream   = errors.New("unknown stream")
	ErrTimeout         = errors.New("i/o timeout")
	ErrDeviceClosed    = errors.New("device closed")
	ErrUnsupportedHost = errors.New("usb access not supported on this platform")
)

// ValidationError is returned for a manual focus position outside [0, 255].
// It is raised before any device contact.
type ValidationError struct {
	Position int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("focus position must be between %d and %d, got %d", MinPosition, MaxPosition, e.Position)
}

// ControlError is the single failure category of a control session.
// Op names the session step that failed.
type ControlError struct {
	SessionID string
	Op        string
	Err       error
}

func (e *ControlError) Error() string {
	return fmt.Sprintf("control session %s: %v", e.Op, e.Err)
}

func (e *ControlError) Unwrap() error {
	return e.Err
}

// Hint returns a short suggestion for the user, or "" when there is none.
func (e *ControlError) Hint() string {
	switch {
	case errors.Is(e.Err, ErrDeviceNotFound), errors.Is(e.Err, ErrDeviceBusy):
		return "Make sure the camera is connected and not in use by another application"
	case errors.Is(e.Err, ErrMultipleDevices):
		return "Disconnect all but one camera"
	case errors.Is(e.Err, ErrTimeout):
		return "The camera did not accept the command in time; try again"
	}
	return ""
}
