// Package preview serves camera frames annotated with a focus test overlay,
// so focus changes can be checked visually while they are applied.
package preview

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Overlay text lines, top to bottom.
var BannerLines = [3]string{
	"FOCUS TEST - Watch text sharpness",
	"Hold text at arm's length",
	"Use GUI to change focus",
}

var (
	green = color.RGBA{G: 255, A: 255}
	white = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	black = color.RGBA{A: 255}
)

const (
	bannerMargin  = 10
	bannerHeight  = 110
	borderWidth   = 2
	crosshairArm  = 20
	crosshairLine = 2
)

// Annotate returns a copy of img with the banner, a centre crosshair and
// the frame number drawn on it.
func Annotate(img image.Image, frame int) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)

	w, h := out.Bounds().Dx(), out.Bounds().Dy()

	if w > 2*bannerMargin && h > bannerMargin {
		banner := image.Rect(bannerMargin, bannerMargin, w-bannerMargin, bannerMargin+bannerHeight).Intersect(out.Bounds())
		draw.Draw(out, banner, image.NewUniform(black), image.Point{}, draw.Src)
		strokeRect(out, banner, borderWidth, green)

		colors := [3]color.Color{green, white, white}
		for i, line := range BannerLines {
			drawText(out, line, bannerMargin+10, bannerMargin+25+i*25, colors[i])
		}
	}

	cx, cy := w/2, h/2
	fill(out, image.Rect(cx-crosshairArm, cy-crosshairLine/2, cx+crosshairArm+1, cy+crosshairLine/2+1), green)
	fill(out, image.Rect(cx-crosshairLine/2, cy-crosshairArm, cx+crosshairLine/2+1, cy+crosshairArm+1), green)

	drawText(out, fmt.Sprintf("Frame: %d", frame), w-150, h-20, white)
	return out
}

func fill(dst *image.RGBA, r image.Rectangle, c color.Color) {
	draw.Draw(dst, r.Intersect(dst.Bounds()), image.NewUniform(c), image.Point{}, draw.Src)
}

func strokeRect(dst *image.RGBA, r image.Rectangle, width int, c color.Color) {
	fill(dst, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width), c)
	fill(dst, image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y), c)
	fill(dst, image.Rect(r.Min.X, r.Min.Y, r.Min.X+width, r.Max.Y), c)
	fill(dst, image.Rect(r.Max.X-width, r.Min.Y, r.Max.X, r.Max.Y), c)
}

// drawText draws s with its baseline at (x, y).
func drawText(dst *image.RGBA, s string, x, y int, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}
