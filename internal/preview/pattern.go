package preview

import (
	"context"
	"image"
	"image/color"
	"time"
)

// PatternSource generates a moving checkerboard, for development without
// a camera.
type PatternSource struct {
	width, height int
	interval      time.Duration
	n             int
}

// NewPatternSource returns a source producing width x height frames every
// interval. A zero interval produces frames as fast as they are read.
func NewPatternSource(width, height int, interval time.Duration) *PatternSource {
	return &PatternSource{width: width, height: height, interval: interval}
}

// Frame returns the next pattern frame.
func (p *PatternSource) Frame(ctx context.Context) (image.Image, error) {
	if p.interval > 0 {
		t := time.NewTimer(p.interval)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	const cell = 40
	img := image.NewGray(image.Rect(0, 0, p.width, p.height))
	off := p.n % (2 * cell)
	for y := 0; y < p.height; y++ {
		for x := 0; x < p.width; x++ {
			if ((x+off)/cell+y/cell)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 200})
			} else {
				img.SetGray(x, y, color.Gray{Y: 60})
			}
		}
	}
	p.n++
	return img, nil
}

// Close is a no-op.
func (p *PatternSource) Close() error {
	return nil
}

var _ Source = (*PatternSource)(nil)
