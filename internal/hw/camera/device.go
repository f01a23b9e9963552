package camera

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/OpalFocus/internal/debug"
)

// link is the raw byte channel to the device. karalabe/usb devices satisfy it.
type link interface {
	Write(b []byte) (int, error)
	Close() error
}

// linkDevice implements Device on top of a link: it uploads the pipeline
// on open and frames every control message.
type linkDevice struct {
	link      link
	pipeline  *Pipeline
	ioTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

// openLinkDevice uploads p over l. On failure l is closed, possibly after
// openLinkDevice returns if a transfer is still stuck in the driver.
func openLinkDevice(ctx context.Context, l link, p *Pipeline, ioTimeout time.Duration) (*linkDevice, error) {
	d := &linkDevice{link: l, pipeline: p, ioTimeout: ioTimeout}

	data := p.encode()
	cmd, err := longCommand(cmdBuildPipeline, data)
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("%w: %v", ErrPipeline, err)
	}
	debug.Verbose("Uploading pipeline: %d nodes, %d links", len(p.Nodes), len(p.Links))
	if err := d.write(ctx, encodeFrame(cmd)); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("upload pipeline: %w", err)
	}
	return d, nil
}

// write sends one frame, bounded by the I/O timeout and ctx.
func (d *linkDevice) write(ctx context.Context, frame []byte) error {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return ErrDeviceClosed
	}

	if debug.IsEnabled(debug.LevelTrace) {
		debug.Trace("frame %s", EncodeFrameToString(frame))
	}
	done := make(chan error, 1)
	go func() {
		n, err := d.link.Write(frame)
		debug.USB("write", n, frame)
		if err == nil && n != len(frame) {
			err = fmt.Errorf("short write: %d of %d bytes", n, len(frame))
		}
		done <- err
	}()

	timeout := d.ioTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("usb write: %w", err)
		}
		return nil
	case <-timer.C:
		d.abandon(done)
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	case <-ctx.Done():
		d.abandon(done)
		return ctx.Err()
	}
}

// abandon marks d closed while a write is still in flight and closes the
// link once that write returns. USB drivers serialize Close behind a
// pending transfer, so closing inline would block the caller.
func (d *linkDevice) abandon(done <-chan error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	debug.Live("Abandoning stalled transfer, link closes when it returns")
	go func() {
		<-done
		if err := d.link.Close(); err != nil {
			debug.Error(fmt.Errorf("deferred link close: %w", err))
		}
	}()
}

func (d *linkDevice) InputQueue(stream string) (Queue, error) {
	n, ok := d.pipeline.StreamNode(stream)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownStream, stream)
	}
	return &linkQueue{dev: d, node: n.ID}, nil
}

// Close releases the link. It is a no-op after a write was abandoned.
func (d *linkDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.link.Close()
}

type linkQueue struct {
	dev  *linkDevice
	node uint8
}

// Send frames c as a CONTROL command addressed to the queue's node.
func (q *linkQueue) Send(ctx context.Context, c Control) error {
	if c.Empty() {
		return fmt.Errorf("empty control message")
	}
	data := append([]byte{q.node}, c.Bytes()...)
	cmd, err := longCommand(cmdControl, data)
	if err != nil {
		return err
	}
	return q.dev.write(ctx, encodeFrame(cmd))
}
