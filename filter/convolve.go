// Package filter applies prepared convolution kernels to images.
package filter

import (
	"fmt"
	"math"

	"convolve/kernel"
	"convolve/parallel"
	"convolve/pixmap"
)

// Edge selects how neighbours outside of the image are read.
type Edge int

const (
	// EdgeClamp reads the nearest edge pixel.
	EdgeClamp Edge = iota
	// EdgeZero reads black for the colour channels.
	EdgeZero
	// EdgeReflect mirrors about the edge pixel without repeating it, so -1
	// reads 1 and width reads width-2.
	EdgeReflect
)

var edgeNames = map[string]Edge{
	"clamp":   EdgeClamp,
	"zero":    EdgeZero,
	"reflect": EdgeReflect,
}

func ParseEdge(s string) (Edge, error) {
	e, ok := edgeNames[s]
	if !ok {
		return 0, fmt.Errorf("unknown edge policy %q", s)
	}
	return e, nil
}

func (e Edge) String() string {
	switch e {
	case EdgeZero:
		return "zero"
	case EdgeReflect:
		return "reflect"
	default:
		return "clamp"
	}
}

// index maps a possibly out of range coordinate into [0, n). It returns -1
// when the neighbour reads as zero.
func (e Edge) index(i, n int) int {
	if i >= 0 && i < n {
		return i
	}
	switch e {
	case EdgeZero:
		return -1
	case EdgeReflect:
		if n == 1 {
			return 0
		}
		period := 2 * (n - 1)
		i %= period
		if i < 0 {
			i += period
		}
		if i >= n {
			i = period - i
		}
		return i
	default:
		return min(max(i, 0), n-1)
	}
}

// Convolve applies a prepared (normalized and flipped) kernel to src and
// returns a new image of the same size. The kernel center is aligned with
// each output pixel and the weights are multiplied with the neighbourhood
// as-is. Alpha is copied from the source. Channel sums are rounded and
// clamped to [0, 255].
//
// Rows are processed in bands on pool; the result does not depend on the
// pool size. src is never written.
func Convolve(src *pixmap.Image, k *kernel.Kernel, edge Edge, pool *parallel.Pool) *pixmap.Image {
	width, height := src.Width(), src.Height()
	dst := pixmap.New(width, height)
	if width == 0 || height == 0 {
		return dst
	}

	rows, cols := k.Dims()
	cy, cx := k.Center()
	weights := k.Weights()

	// Column lookups are shared by every row.
	xs := make([][]int, width)
	for x := range width {
		xs[x] = make([]int, cols)
		for j := range cols {
			xs[x][j] = edge.index(x+j-cx, width)
		}
	}

	apply := func(lo, hi int) {
		ys := make([]int, rows)
		for y := lo; y < hi; y++ {
			for i := range rows {
				ys[i] = edge.index(y+i-cy, height)
			}

			out := dst.Pix[y*dst.Stride : (y+1)*dst.Stride]
			for x := range width {
				var sumR, sumG, sumB float64
				for i, sy := range ys {
					if sy < 0 {
						continue
					}
					row := src.Pix[src.PixOffset(src.Rect.Min.X, src.Rect.Min.Y+sy):]
					w := weights[i*cols : (i+1)*cols]
					for j, sx := range xs[x] {
						if sx < 0 {
							continue
						}
						p := row[sx*4 : sx*4+3 : sx*4+3]
						sumR += w[j] * float64(p[0])
						sumG += w[j] * float64(p[1])
						sumB += w[j] * float64(p[2])
					}
				}

				o := out[x*4 : x*4+4 : x*4+4]
				o[0] = clampUint8(sumR)
				o[1] = clampUint8(sumG)
				o[2] = clampUint8(sumB)
				o[3] = src.Pix[src.PixOffset(src.Rect.Min.X+x, src.Rect.Min.Y+y)+3]
			}
		}
	}

	if pool == nil {
		apply(0, height)
	} else {
		pool.Split(height, apply)
	}
	return dst
}

func clampUint8(v float64) uint8 {
	v = math.Round(v)
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
