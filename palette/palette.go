package palette

import (
	"fmt"
	"io"
	"math"

	"convolve/pixmap"
)

// Palette is an ordered list of colours, unique on red, green and blue.
type Palette []pixmap.Pixel

// Add appends c unless an entry with the same red, green and blue is already
// present. Alpha is not compared. It reports whether c was added.
func (p *Palette) Add(c pixmap.Pixel) bool {
	if p.Contains(c) {
		return false
	}
	*p = append(*p, c)
	return true
}

func (p Palette) Contains(c pixmap.Pixel) bool {
	for _, v := range p {
		if v.SameRGB(c) {
			return true
		}
	}
	return false
}

// Convert returns the nearest entry, or c itself for an empty palette.
func (p Palette) Convert(c pixmap.Pixel) pixmap.Pixel {
	if len(p) == 0 {
		return c
	}
	return p[p.Index(c)]
}

// Index returns the index of the entry closest to c by Euclidean distance
// over red, green, blue and alpha. Ties go to the lowest index.
func (p Palette) Index(c pixmap.Pixel) int {
	ret, bestSum := 0, math.MaxInt
	for i, v := range p {
		dr := int(c.R) - int(v.R)
		dg := int(c.G) - int(v.G)
		db := int(c.B) - int(v.B)
		da := int(c.A) - int(v.A)
		sum := dr*dr + dg*dg + db*db + da*da
		if sum < bestSum {
			if sum == 0 {
				return i
			}
			ret, bestSum = i, sum
		}
	}
	return ret
}

// Distance is the Euclidean RGBA distance between two pixels.
func Distance(a, b pixmap.Pixel) float64 {
	dr := float64(a.R) - float64(b.R)
	dg := float64(a.G) - float64(b.G)
	db := float64(a.B) - float64(b.B)
	da := float64(a.A) - float64(b.A)
	return math.Sqrt(dr*dr + dg*dg + db*db + da*da)
}

// ReadRIFF adds the colours of every palette in a RIFF PAL stream, skipping
// duplicates, and returns how many were added.
func (p *Palette) ReadRIFF(r io.Reader) (int64, error) {
	pals, err := ReadFrom(r)
	if err != nil {
		return 0, fmt.Errorf("could not load palettes: %w", err)
	}

	var n int64
	for _, pal := range pals {
		for _, c := range pal {
			if p.Add(c) {
				n++
			}
		}
	}
	return n, nil
}

func (p Palette) WriteRIFF(w io.Writer) (int64, error) {
	n, err := WriteTo(w, p)
	if err != nil {
		return n, fmt.Errorf("could not save palette: %w", err)
	}
	return n, nil
}
