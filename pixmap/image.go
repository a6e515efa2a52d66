package pixmap

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
)

// Pixel is a non-premultiplied 8 bit per channel RGBA value.
type Pixel struct {
	R, G, B, A uint8
}

func (p Pixel) RGBA() (uint32, uint32, uint32, uint32) {
	return color.NRGBA(p).RGBA()
}

// SameRGB reports whether p and o only differ in alpha.
func (p Pixel) SameRGB(o Pixel) bool {
	return p.R == o.R && p.G == o.G && p.B == o.B
}

var PixelModel = color.ModelFunc(pixelConvert)

func pixelConvert(c color.Color) color.Color {
	if p, ok := c.(Pixel); ok {
		return p
	}
	return Pixel(color.NRGBAModel.Convert(c).(color.NRGBA))
}

type Image struct {
	// Pix holds the image's pixels, in R, G, B, A order. The pixel at
	// (x, y) starts at Pix[(y-Rect.Min.Y)*Stride + (x-Rect.Min.X)*4].
	Pix []uint8
	// Stride is the Pix stride (in bytes) between vertically adjacent pixels.
	Stride int
	// Rect is the image's bounds.
	Rect image.Rectangle
}

var (
	_ image.Image = &Image{}
	_ draw.Image  = &Image{}
)

func New(width, height int) *Image {
	r := image.Rect(0, 0, max(width, 0), max(height, 0))
	return &Image{
		Pix:    make([]uint8, r.Dx()*r.Dy()*4),
		Stride: 4 * r.Dx(),
		Rect:   r,
	}
}

// FromImage copies any image into a new buffer with its origin moved to (0, 0).
func FromImage(src image.Image) *Image {
	if m, ok := src.(*Image); ok {
		return m.Clone()
	}

	sr := src.Bounds()
	dst := New(sr.Dx(), sr.Dy())
	if n, ok := src.(*image.NRGBA); ok {
		for y := range sr.Dy() {
			i := n.PixOffset(sr.Min.X, sr.Min.Y+y)
			copy(dst.Pix[y*dst.Stride:(y+1)*dst.Stride], n.Pix[i:i+dst.Stride])
		}
		return dst
	}

	for y := range sr.Dy() {
		for x := range sr.Dx() {
			dst.SetPixel(x, y, PixelModel.Convert(src.At(sr.Min.X+x, sr.Min.Y+y)).(Pixel))
		}
	}
	return dst
}

// Filled returns a width x height image where every pixel is p.
func Filled(width, height int, p Pixel) *Image {
	m := New(width, height)
	for i := 0; i < len(m.Pix); i += 4 {
		m.Pix[i+0] = p.R
		m.Pix[i+1] = p.G
		m.Pix[i+2] = p.B
		m.Pix[i+3] = p.A
	}
	return m
}

func (m *Image) ColorModel() color.Model { return PixelModel }

func (m *Image) Bounds() image.Rectangle { return m.Rect }

func (m *Image) Width() int { return m.Rect.Dx() }

func (m *Image) Height() int { return m.Rect.Dy() }

func (m *Image) At(x, y int) color.Color {
	return m.PixelAt(x, y)
}

func (m *Image) Set(x, y int, c color.Color) {
	m.SetPixel(x, y, PixelModel.Convert(c).(Pixel))
}

// PixOffset returns the index of the first element of Pix that corresponds to
// the pixel at (x, y).
func (m *Image) PixOffset(x, y int) int {
	return (y-m.Rect.Min.Y)*m.Stride + (x-m.Rect.Min.X)*4
}

// PixelAt returns the zero Pixel outside of the bounds.
func (m *Image) PixelAt(x, y int) Pixel {
	if !(image.Point{x, y}.In(m.Rect)) {
		return Pixel{}
	}
	i := m.PixOffset(x, y)
	s := m.Pix[i : i+4 : i+4]
	return Pixel{s[0], s[1], s[2], s[3]}
}

// SetPixel is a no-op outside of the bounds.
func (m *Image) SetPixel(x, y int, p Pixel) {
	if !(image.Point{x, y}.In(m.Rect)) {
		return
	}
	i := m.PixOffset(x, y)
	s := m.Pix[i : i+4 : i+4]
	s[0], s[1], s[2], s[3] = p.R, p.G, p.B, p.A
}

// Opaque scans the entire image and reports whether it is fully opaque.
func (m *Image) Opaque() bool {
	for i := 3; i < len(m.Pix); i += 4 {
		if m.Pix[i] != 0xff {
			return false
		}
	}
	return true
}

// NRGBA returns an *image.NRGBA sharing m's pixels.
func (m *Image) NRGBA() *image.NRGBA {
	return &image.NRGBA{Pix: m.Pix, Stride: m.Stride, Rect: m.Rect}
}

func (m *Image) Clone() *Image {
	return &Image{
		Pix:    bytes.Clone(m.Pix),
		Stride: m.Stride,
		Rect:   m.Rect,
	}
}

// Equal reports whether both images have the same bounds and pixels.
func (m *Image) Equal(o *Image) bool {
	if m == nil || o == nil {
		return m == o
	}
	if !m.Rect.Eq(o.Rect) {
		return false
	}
	w := m.Rect.Dx() * 4
	for y := m.Rect.Min.Y; y < m.Rect.Max.Y; y++ {
		i, j := m.PixOffset(m.Rect.Min.X, y), o.PixOffset(o.Rect.Min.X, y)
		if !bytes.Equal(m.Pix[i:i+w], o.Pix[j:j+w]) {
			return false
		}
	}
	return true
}
