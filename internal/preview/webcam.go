package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/blackjack/webcam"

	"github.com/cjeanneret/OpalFocus/internal/debug"
)

// fourcc 'MJPG'
const formatMJPEG webcam.PixelFormat = 'M' | 'J'<<8 | 'P'<<16 | 'G'<<24

// waitSeconds bounds a single WaitForFrame call.
const waitSeconds = 1

// stream is the part of *webcam.Webcam a WebcamSource uses once streaming.
type stream interface {
	WaitForFrame(timeout uint32) error
	ReadFrame() ([]byte, error)
	StopStreaming() error
	Close() error
}

// WebcamSource reads MJPEG frames from a V4L2 device.
type WebcamSource struct {
	cam    stream
	device string
}

// V4L2 opens capture devices through blackjack/webcam.
type V4L2 struct{}

// OpenDevice opens device as an MJPEG stream. The driver picks the closest
// supported size, which the returned Capture reports.
func (V4L2) OpenDevice(device string, width, height int) (*Capture, error) {
	src, w, h, err := OpenWebcam(device, width, height)
	if err != nil {
		return nil, err
	}
	return &Capture{Source: src, Device: device, Width: w, Height: h}, nil
}

// OpenWebcam opens device, selects MJPEG near the requested size and starts
// streaming. It returns the size the driver settled on.
func OpenWebcam(device string, width, height int) (*WebcamSource, int, int, error) {
	cam, err := webcam.Open(device)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("open %s: %w", device, err)
	}

	formats := cam.GetSupportedFormats()
	if _, ok := formats[formatMJPEG]; !ok {
		cam.Close()
		return nil, 0, 0, fmt.Errorf("%s does not support MJPEG", device)
	}

	_, w, h, err := cam.SetImageFormat(formatMJPEG, uint32(width), uint32(height))
	if err != nil {
		cam.Close()
		return nil, 0, 0, fmt.Errorf("set format on %s: %w", device, err)
	}
	debug.Verbose("Preview %s: requested %dx%d, got %dx%d MJPEG", device, width, height, w, h)

	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, 0, 0, fmt.Errorf("start streaming on %s: %w", device, err)
	}
	return &WebcamSource{cam: cam, device: device}, int(w), int(h), nil
}

// Frame waits for the next frame and decodes it.
func (s *WebcamSource) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	err := s.cam.WaitForFrame(waitSeconds)
	var timeout *webcam.Timeout
	if errors.As(err, &timeout) {
		return nil, ErrNoFrame
	}
	if err != nil {
		return nil, fmt.Errorf("wait for frame: %w", err)
	}

	data, err := s.cam.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrNoFrame
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame (%d bytes): %w", len(data), err)
	}
	return img, nil
}

// Close stops streaming and releases the device. The device is closed
// even when stopping the stream fails.
func (s *WebcamSource) Close() error {
	if s.cam == nil {
		return nil
	}
	stopErr := s.cam.StopStreaming()
	if stopErr != nil {
		stopErr = fmt.Errorf("stop streaming on %s: %w", s.device, stopErr)
	}
	closeErr := s.cam.Close()
	if closeErr != nil {
		closeErr = fmt.Errorf("close %s: %w", s.device, closeErr)
	}
	s.cam = nil
	return errors.Join(stopErr, closeErr)
}

var (
	_ Source       = (*WebcamSource)(nil)
	_ DeviceOpener = V4L2{}
)
