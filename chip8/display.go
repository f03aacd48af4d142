package chip8

import (
	"image"
	"image/color"
	"strings"
)

// Logical dimensions of the framebuffer.
const (
	Width  = 64
	Height = 32
)

// Display is the monochrome framebuffer, stored row-major.
// Each cell is 0 or 1.
type Display [Width * Height]byte

// Pixel reports whether the pixel at x, y is set.
// Coordinates wrap around both axes.
func (d *Display) Pixel(x, y int) bool {
	return d[index(x, y)] != 0
}

// Clear turns every pixel off.
func (d *Display) Clear() {
	*d = Display{}
}

// flip toggles the pixel at x, y (wrapping) and reports whether it was set
// before.
func (d *Display) flip(x, y int) (was bool) {
	i := index(x, y)
	was = d[i] != 0
	d[i] ^= 1
	return was
}

func index(x, y int) int {
	x %= Width
	if x < 0 {
		x += Width
	}
	y %= Height
	if y < 0 {
		y += Height
	}
	return y*Width + x
}

// String renders the display as Height lines of '#' (on) and '.' (off).
func (d *Display) String() string {
	var b strings.Builder
	b.Grow((Width + 1) * Height)
	for y := 0; y < Height; y++ {
		for _, px := range d[y*Width : (y+1)*Width] {
			if px != 0 {
				b.WriteByte('#')
			} else {
				b.WriteByte('.')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Image returns the display as a Width×Height grayscale image.
func (d *Display) Image() *image.Gray {
	m := image.NewGray(image.Rect(0, 0, Width, Height))
	for i, px := range d {
		if px != 0 {
			m.SetGray(i%Width, i/Width, color.Gray{Y: 0xff})
		}
	}
	return m
}
