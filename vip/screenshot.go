package vip

import (
	"image"
	"image/png"
	"io"

	"golang.org/x/image/draw"

	"github.com/nf/ch8/chip8"
)

// WritePNG encodes d as a PNG image, each display pixel drawn as a square
// of scale×scale image pixels.
func WritePNG(w io.Writer, d *chip8.Display, scale int) error {
	if scale < 1 {
		scale = 1
	}
	src := d.Image()
	dst := image.NewGray(image.Rect(0, 0, chip8.Width*scale, chip8.Height*scale))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return png.Encode(w, dst)
}
