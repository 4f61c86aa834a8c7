// Package surface provides the RGBA pixel buffers backing windows and the
// XOR frame diffing the display server uses to ship incremental updates.
package surface

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
)

// Rect is a pixel rectangle in window coordinates.
type Rect struct {
	X, Y          int32
	Width, Height int32
}

// Empty reports whether the rectangle covers no pixels.
func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Surface is a tightly packed pixel buffer holding straight, meaning
// non-premultiplied, RGBA bytes. Straight alpha matters here: XOR deltas
// produce arbitrary alpha bytes, and a premultiplied representation would
// not round-trip them through PNG.
type Surface struct {
	Width  int
	Height int
	Stride int // bytes per row, always Width*4
	Pix    []byte
}

// New returns a zeroed surface of the given size.
func New(width, height int) *Surface {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Surface{
		Width:  width,
		Height: height,
		Stride: width * 4,
		Pix:    make([]byte, width*4*height),
	}
}

// FromImage converts any image into a surface. *image.NRGBA sources copy
// byte for byte; everything else converts through the draw package.
func FromImage(img image.Image) *Surface {
	b := img.Bounds()
	s := New(b.Dx(), b.Dy())
	if src, ok := img.(*image.NRGBA); ok && src.Stride == s.Stride && b.Min == (image.Point{}) {
		copy(s.Pix, src.Pix[:len(s.Pix)])
		return s
	}
	dst := s.NRGBA()
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return s
}

// NRGBA returns an image view sharing the surface's pixels. The view
// satisfies draw.Image, so callers can rasterize onto a surface with the
// standard draw package.
func (s *Surface) NRGBA() *image.NRGBA {
	return &image.NRGBA{
		Pix:    s.Pix,
		Stride: s.Stride,
		Rect:   image.Rect(0, 0, s.Width, s.Height),
	}
}

// Bounds returns the surface rectangle.
func (s *Surface) Bounds() Rect {
	return Rect{Width: int32(s.Width), Height: int32(s.Height)}
}

// Clone returns a deep copy.
func (s *Surface) Clone() *Surface {
	c := New(s.Width, s.Height)
	copy(c.Pix, s.Pix)
	return c
}

// Equal reports whether two surfaces have identical size and pixels.
func (s *Surface) Equal(o *Surface) bool {
	return s.Width == o.Width && s.Height == o.Height && bytes.Equal(s.Pix, o.Pix)
}

// Fill sets every pixel to the given RGBA value.
func (s *Surface) Fill(r, g, b, a byte) {
	for i := 0; i < len(s.Pix); i += 4 {
		s.Pix[i] = r
		s.Pix[i+1] = g
		s.Pix[i+2] = b
		s.Pix[i+3] = a
	}
}

// SetPixel writes one pixel; out-of-bounds coordinates are ignored.
func (s *Surface) SetPixel(x, y int, r, g, b, a byte) {
	if x < 0 || y < 0 || x >= s.Width || y >= s.Height {
		return
	}
	i := y*s.Stride + x*4
	s.Pix[i] = r
	s.Pix[i+1] = g
	s.Pix[i+2] = b
	s.Pix[i+3] = a
}

// Pixel reads one pixel.
func (s *Surface) Pixel(x, y int) (r, g, b, a byte) {
	i := y*s.Stride + x*4
	return s.Pix[i], s.Pix[i+1], s.Pix[i+2], s.Pix[i+3]
}

// SubSurface copies the given rectangle out of s. The rectangle must lie
// within the surface.
func (s *Surface) SubSurface(r Rect) (*Surface, error) {
	if r.X < 0 || r.Y < 0 || r.Empty() ||
		int(r.X)+int(r.Width) > s.Width || int(r.Y)+int(r.Height) > s.Height {
		return nil, fmt.Errorf("surface: rect %+v outside %dx%d", r, s.Width, s.Height)
	}
	sub := New(int(r.Width), int(r.Height))
	for y := 0; y < sub.Height; y++ {
		srcOff := (int(r.Y)+y)*s.Stride + int(r.X)*4
		copy(sub.Pix[y*sub.Stride:(y+1)*sub.Stride], s.Pix[srcOff:srcOff+sub.Stride])
	}
	return sub, nil
}

// DrawRect copies src onto s with its top-left corner at (x, y), clipping to
// the surface bounds.
func (s *Surface) DrawRect(x, y int32, src *Surface) {
	s.combineRect(x, y, src, false)
}

// XorRect XORs src onto s with its top-left corner at (x, y), clipping to
// the surface bounds. XOR is self-inverse, so applying the same patch twice
// restores the original pixels.
func (s *Surface) XorRect(x, y int32, src *Surface) {
	s.combineRect(x, y, src, true)
}

func (s *Surface) combineRect(x, y int32, src *Surface, xor bool) {
	for sy := 0; sy < src.Height; sy++ {
		dy := int(y) + sy
		if dy < 0 || dy >= s.Height {
			continue
		}
		for sx := 0; sx < src.Width; sx++ {
			dx := int(x) + sx
			if dx < 0 || dx >= s.Width {
				continue
			}
			di := dy*s.Stride + dx*4
			si := sy*src.Stride + sx*4
			if xor {
				s.Pix[di] ^= src.Pix[si]
				s.Pix[di+1] ^= src.Pix[si+1]
				s.Pix[di+2] ^= src.Pix[si+2]
				s.Pix[di+3] ^= src.Pix[si+3]
			} else {
				s.Pix[di] = src.Pix[si]
				s.Pix[di+1] = src.Pix[si+1]
				s.Pix[di+2] = src.Pix[si+2]
				s.Pix[di+3] = src.Pix[si+3]
			}
		}
	}
}
