package preview

import (
	"context"
	"errors"
	"fmt"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource counts Close calls.
type fakeSource struct {
	closed int
}

func (s *fakeSource) Frame(context.Context) (image.Image, error) { return nil, ErrNoFrame }
func (s *fakeSource) Close() error {
	s.closed++
	return nil
}

// fakeOpener maps device paths to the size they deliver; absent paths fail.
type fakeOpener struct {
	sizes   map[string][2]int
	tried   []string
	sources map[string]*fakeSource
}

func (o *fakeOpener) OpenDevice(device string, width, height int) (*Capture, error) {
	o.tried = append(o.tried, device)
	size, ok := o.sizes[device]
	if !ok {
		return nil, fmt.Errorf("open %s: no such device", device)
	}
	if o.sources == nil {
		o.sources = make(map[string]*fakeSource)
	}
	src := &fakeSource{}
	o.sources[device] = src
	return &Capture{Source: src, Device: device, Width: size[0], Height: size[1]}, nil
}

func TestCandidates(t *testing.T) {
	fallbacks := []string{"/dev/video2", "/dev/video0", "/dev/video1", "/dev/video3"}
	cases := []struct {
		device string
		want   []string
	}{
		{"/dev/video2", fallbacks},
		{"/dev/video1", []string{"/dev/video1", "/dev/video2", "/dev/video0", "/dev/video3"}},
		{"/dev/video9", append([]string{"/dev/video9"}, fallbacks...)},
		{AutoDevice, fallbacks},
		{"", fallbacks},
	}
	for _, tc := range cases {
		t.Run(tc.device, func(t *testing.T) {
			assert.Equal(t, tc.want, Candidates(tc.device, fallbacks))
		})
	}
	assert.Empty(t, Candidates(AutoDevice, nil))
}

func TestDiscover_ConfiguredDeviceWins(t *testing.T) {
	o := &fakeOpener{sizes: map[string][2]int{"/dev/video2": {1280, 720}, "/dev/video0": {1280, 720}}}
	c, err := Discover(o, []string{"/dev/video2", "/dev/video0"}, 1280, 720)
	require.NoError(t, err)
	assert.Equal(t, "/dev/video2", c.Device)
	assert.Equal(t, []string{"/dev/video2"}, o.tried)
}

func TestDiscover_SkipsMissingAndDifferentCameras(t *testing.T) {
	o := &fakeOpener{sizes: map[string][2]int{
		"/dev/video0": {640, 480},
		"/dev/video3": {1280, 720},
	}}
	c, err := Discover(o, []string{"/dev/video2", "/dev/video0", "/dev/video1", "/dev/video3"}, 1280, 720)
	require.NoError(t, err)
	assert.Equal(t, "/dev/video3", c.Device)
	assert.Equal(t, []string{"/dev/video2", "/dev/video0", "/dev/video1", "/dev/video3"}, o.tried)
	assert.Equal(t, 1, o.sources["/dev/video0"].closed, "wrong-size device must be released")
	assert.Equal(t, 0, o.sources["/dev/video3"].closed)
}

func TestDiscover_NothingMatches(t *testing.T) {
	o := &fakeOpener{sizes: map[string][2]int{"/dev/video0": {640, 480}}}
	_, err := Discover(o, []string{"/dev/video2", "/dev/video0"}, 1280, 720)
	require.ErrorIs(t, err, ErrNoDevice)
	assert.Contains(t, err.Error(), "/dev/video2: no such device")
	assert.Contains(t, err.Error(), "/dev/video0: 640x480, different camera")

	_, err = Discover(o, nil, 1280, 720)
	assert.True(t, errors.Is(err, ErrNoDevice))
}

// fakeStream stands in for an open V4L2 device.
type fakeStream struct {
	stopErr  error
	closeErr error
	closed   int
}

func (f *fakeStream) WaitForFrame(uint32) error  { return nil }
func (f *fakeStream) ReadFrame() ([]byte, error) { return nil, nil }
func (f *fakeStream) StopStreaming() error       { return f.stopErr }
func (f *fakeStream) Close() error {
	f.closed++
	return f.closeErr
}

func TestWebcamSource_CloseAlwaysReleasesDevice(t *testing.T) {
	cam := &fakeStream{stopErr: errors.New("VIDIOC_STREAMOFF: no such device")}
	src := &WebcamSource{cam: cam, device: "/dev/video2"}

	err := src.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stop streaming on /dev/video2")
	assert.Equal(t, 1, cam.closed, "device must be closed even when stopping fails")

	require.NoError(t, src.Close(), "second Close is a no-op")
	assert.Equal(t, 1, cam.closed)
}

func TestWebcamSource_CloseJoinsErrors(t *testing.T) {
	stopErr := errors.New("stop failed")
	closeErr := errors.New("close failed")
	src := &WebcamSource{cam: &fakeStream{stopErr: stopErr, closeErr: closeErr}, device: "/dev/video0"}

	err := src.Close()
	assert.ErrorIs(t, err, stopErr)
	assert.ErrorIs(t, err, closeErr)
}

func TestWebcamSource_EmptyFrameIsNoFrame(t *testing.T) {
	src := &WebcamSource{cam: &fakeStream{}, device: "/dev/video0"}
	_, err := src.Frame(context.Background())
	assert.ErrorIs(t, err, ErrNoFrame)
}
