package preview

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/OpalFocus/internal/debug"
)

func grey(w, h int) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	return img
}

func rgba(c color.Color) color.RGBA {
	r, g, b, a := c.RGBA()
	return color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(a >> 8)}
}

func TestAnnotate_Layout(t *testing.T) {
	out := Annotate(grey(640, 480), 7)
	require.Equal(t, image.Rect(0, 0, 640, 480), out.Bounds())

	// banner border and fill
	assert.Equal(t, green, rgba(out.At(10, 10)))
	assert.Equal(t, green, rgba(out.At(629, 60)))
	assert.Equal(t, black, rgba(out.At(300, 100)))
	// outside the banner is untouched
	assert.Equal(t, color.RGBA{128, 128, 128, 255}, rgba(out.At(5, 5)))
	// crosshair arms
	assert.Equal(t, green, rgba(out.At(320, 240)))
	assert.Equal(t, green, rgba(out.At(300, 240)))
	assert.Equal(t, green, rgba(out.At(320, 260)))
	assert.Equal(t, color.RGBA{128, 128, 128, 255}, rgba(out.At(300, 220)))
}

func TestAnnotate_FrameCounterDrawn(t *testing.T) {
	a := Annotate(grey(320, 240), 1)
	b := Annotate(grey(320, 240), 2)
	region := image.Rect(320-150, 240-35, 320, 240)
	differs := false
	for y := region.Min.Y; y < region.Max.Y && !differs; y++ {
		for x := region.Min.X; x < region.Max.X; x++ {
			if a.RGBAAt(x, y) != b.RGBAAt(x, y) {
				differs = true
				break
			}
		}
	}
	assert.True(t, differs, "frame counter should change the bottom-right corner")
}

func TestAnnotate_SmallAndOffsetImages(t *testing.T) {
	src := image.NewRGBA(image.Rect(100, 100, 115, 115))
	var out *image.RGBA
	require.NotPanics(t, func() { out = Annotate(src, 0) })
	assert.Equal(t, image.Rect(0, 0, 15, 15), out.Bounds())
}

func TestPatternSource(t *testing.T) {
	p := NewPatternSource(160, 120, 0)
	first, err := p.Frame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 160, 120), first.Bounds())
	second, err := p.Frame(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.(*image.Gray).Pix, second.(*image.Gray).Pix, "pattern moves between frames")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewPatternSource(10, 10, time.Hour).Frame(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, p.Close())
}

type result struct {
	img image.Image
	err error
}

// chanSource returns whatever the test pushes into next.
type chanSource struct {
	next   chan result
	closed atomic.Bool
}

func newChanSource() *chanSource {
	return &chanSource{next: make(chan result)}
}

func (s *chanSource) Frame(ctx context.Context) (image.Image, error) {
	select {
	case r := <-s.next:
		return r.img, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *chanSource) Close() error {
	s.closed.Store(true)
	return nil
}

// readPart reads one multipart part using its Content-Length.
func readPart(t *testing.T, r *bufio.Reader) []byte {
	t.Helper()
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "--"+boundary+"\r\n", line)
	hdr, err := textproto.NewReader(r).ReadMIMEHeader()
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", hdr.Get("Content-Type"))
	n, err := strconv.Atoi(hdr.Get("Content-Length"))
	require.NoError(t, err)
	body := make([]byte, n+2)
	_, err = io.ReadFull(r, body)
	require.NoError(t, err)
	require.Equal(t, "\r\n", string(body[n:]))
	return body[:n]
}

func TestStreamer_ServesMJPEG(t *testing.T) {
	src := newChanSource()
	s := NewStreamer(src)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	src.next <- result{err: ErrNoFrame}
	src.next <- result{img: grey(64, 48)}
	require.Eventually(t, func() bool { return s.Latest() != nil }, time.Second, time.Millisecond)
	assert.Equal(t, 1, s.Frames(), "ErrNoFrame is not counted")

	srv := httptest.NewServer(s)
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "multipart/x-mixed-replace"))

	br := bufio.NewReader(resp.Body)
	first := readPart(t, br)
	img, err := jpeg.Decode(bytes.NewReader(first))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 48), img.Bounds())

	src.next <- result{img: grey(32, 24)}
	second := readPart(t, br)
	img, err = jpeg.Decode(bytes.NewReader(second))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 32, 24), img.Bounds())

	cancel()
	require.NoError(t, <-done)
	assert.True(t, src.closed.Load())
}

func TestStreamer_SourceError(t *testing.T) {
	var logs bytes.Buffer
	debug.SetOutput(&logs)
	debug.Init(debug.LevelInfo)
	t.Cleanup(func() { debug.Init(debug.LevelOff) })

	src := newChanSource()
	s := NewStreamer(src)
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	src.next <- result{img: grey(16, 16)}
	src.next <- result{err: errors.New("device unplugged")}
	err := <-done
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device unplugged")
	assert.True(t, src.closed.Load())
	assert.Contains(t, logs.String(), "Preview stopped after 1 frames")
}

func TestStreamer_UnsubscribeTwice(t *testing.T) {
	s := NewStreamer(newChanSource())
	_, unsub := s.Subscribe()
	unsub()
	assert.NotPanics(t, unsub)
	s.publish([]byte{1})
	assert.Equal(t, []byte{1}, s.Latest())
}
