// Package raster loads region images into flat RGB grids and caches them per region.
package raster

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/couchcryptid/dark-sky-site-finder/internal/domain"
)

// Raster is an immutable RGB pixel grid, row-major, three bytes per pixel.
// Alpha is discarded on load.
type Raster struct {
	Width  int
	Height int
	Pix    []uint8
}

// New allocates a black raster.
func New(width, height int) *Raster {
	return &Raster{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*3),
	}
}

// At returns the color at (x, y). Coordinates must be inside the grid.
func (r *Raster) At(x, y int) domain.RGB {
	i := (y*r.Width + x) * 3
	return domain.RGB{R: r.Pix[i], G: r.Pix[i+1], B: r.Pix[i+2]}
}

// Set paints (x, y). Only used while building a raster.
func (r *Raster) Set(x, y int, c domain.RGB) {
	i := (y*r.Width + x) * 3
	r.Pix[i], r.Pix[i+1], r.Pix[i+2] = c.R, c.G, c.B
}

// Fill paints the whole raster with one color.
func (r *Raster) Fill(c domain.RGB) {
	for i := 0; i < len(r.Pix); i += 3 {
		r.Pix[i], r.Pix[i+1], r.Pix[i+2] = c.R, c.G, c.B
	}
}

// FromImage converts any decoded image to a Raster. Paletted and 8-bit RGBA
// images are copied directly; everything else goes through NRGBA so colors are
// not premultiplied by alpha.
func FromImage(img image.Image) *Raster {
	b := img.Bounds()
	r := New(b.Dx(), b.Dy())

	switch src := img.(type) {
	case *image.Paletted:
		palette := make([]domain.RGB, len(src.Palette))
		for i, c := range src.Palette {
			n := color.NRGBAModel.Convert(c).(color.NRGBA)
			palette[i] = domain.RGB{R: n.R, G: n.G, B: n.B}
		}
		for y := 0; y < r.Height; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+r.Width]
			for x, idx := range row {
				if int(idx) < len(palette) {
					r.Set(x, y, palette[idx])
				}
			}
		}
	case *image.NRGBA:
		copyRGBA(r, src.Pix, src.Stride)
	case *image.RGBA:
		if opaque(src) {
			copyRGBA(r, src.Pix, src.Stride)
			break
		}
		copyRGBA(r, toNRGBA(src).Pix, r.Width*4)
	default:
		n := toNRGBA(img)
		copyRGBA(r, n.Pix, n.Stride)
	}
	return r
}

func copyRGBA(r *Raster, pix []uint8, stride int) {
	for y := 0; y < r.Height; y++ {
		src := pix[y*stride : y*stride+r.Width*4]
		dst := r.Pix[y*r.Width*3 : (y+1)*r.Width*3]
		for x := 0; x < r.Width; x++ {
			dst[x*3] = src[x*4]
			dst[x*3+1] = src[x*4+1]
			dst[x*3+2] = src[x*4+2]
		}
	}
}

func toNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	n := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(n, n.Bounds(), img, b.Min, draw.Src)
	return n
}

func opaque(img *image.RGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0xff {
			return false
		}
	}
	return true
}
