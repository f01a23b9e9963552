// Package camera talks to the camera's control channel. Every command goes
// through a Session, which builds a command-only pipeline, claims the
// device, sends one control and releases the device again.
package camera

import (
	"context"
)

// Opener claims the physical device and uploads a pipeline to it.
// Implementations must fail with ErrDeviceBusy when another session
// already holds the device.
type Opener interface {
	Open(ctx context.Context, p *Pipeline) (Device, error)
}

// Device is an opened camera running a pipeline.
type Device interface {
	// InputQueue returns the host-to-device queue of an XLinkIn node.
	InputQueue(stream string) (Queue, error)
	// Close releases the device claim.
	Close() error
}

// Queue delivers control messages to a pipeline node.
type Queue interface {
	Send(ctx context.Context, c Control) error
}
