// Package kernel loads convolution kernels and prepares them for the filter
// package: normalization so the weights sum to 1 and a 180 degree flip so
// that plain correlation over the neighbourhood yields a true convolution.
package kernel

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Epsilon is the magnitude below which a weight sum counts as zero.
const Epsilon = 1e-6

// Kernel is an immutable matrix of weights. Every transform returns a new
// Kernel.
type Kernel struct {
	m *mat.Dense
}

// New builds a rows x cols kernel from row-major weights.
func New(rows, cols int, weights []float64) (*Kernel, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("invalid kernel size %dx%d", rows, cols)
	}
	if !sizeMatches(rows, cols, len(weights)) {
		return nil, fmt.Errorf("kernel %dx%d does not match %d weights", rows, cols, len(weights))
	}
	data := make([]float64, len(weights))
	copy(data, weights)
	return &Kernel{m: mat.NewDense(rows, cols, data)}, nil
}

// sizeMatches reports whether n == rows*cols for positive rows and cols
// without computing a product that could overflow.
func sizeMatches(rows, cols, n int) bool {
	return n%rows == 0 && n/rows == cols
}

// MustNew is like New but panics on error. Meant for fixed kernels in code
// and tests.
func MustNew(rows, cols int, weights ...float64) *Kernel {
	k, err := New(rows, cols, weights)
	if err != nil {
		panic(err)
	}
	return k
}

// Identity returns a size x size kernel with a single 1 at the center.
func Identity(size int) (*Kernel, error) {
	if size <= 0 || size > math.MaxInt32 {
		return nil, fmt.Errorf("invalid kernel size %d", size)
	}
	w := make([]float64, size*size)
	w[(size/2)*size+size/2] = 1
	return New(size, size, w)
}

// Dims returns the kernel height and width.
func (k *Kernel) Dims() (rows, cols int) {
	return k.m.Dims()
}

// Center returns the row and column aligned with the output pixel.
func (k *Kernel) Center() (row, col int) {
	r, c := k.m.Dims()
	return r / 2, c / 2
}

func (k *Kernel) At(row, col int) float64 {
	return k.m.At(row, col)
}

// Weights returns a row-major copy of the weights.
func (k *Kernel) Weights() []float64 {
	raw := k.m.RawMatrix()
	out := make([]float64, 0, raw.Rows*raw.Cols)
	for r := range raw.Rows {
		out = append(out, raw.Data[r*raw.Stride:r*raw.Stride+raw.Cols]...)
	}
	return out
}

func (k *Kernel) Sum() float64 {
	return mat.Sum(k.m)
}

// Normalize scales the weights so they sum to 1. Kernels whose sum is within
// Epsilon of zero, such as edge detectors, are returned unchanged.
func (k *Kernel) Normalize() *Kernel {
	var out mat.Dense
	sum := k.Sum()
	if math.Abs(sum) > Epsilon {
		out.Scale(1/sum, k.m)
	} else {
		out.CloneFrom(k.m)
	}
	return &Kernel{m: &out}
}

// Flip rotates the kernel by 180 degrees, reversing both rows and columns.
func (k *Kernel) Flip() *Kernel {
	rows, cols := k.m.Dims()
	out := mat.NewDense(rows, cols, nil)
	for r := range rows {
		for c := range cols {
			out.Set(rows-1-r, cols-1-c, k.m.At(r, c))
		}
	}
	return &Kernel{m: out}
}

// Prepare normalizes then flips the kernel. Callers apply it exactly once
// per loaded kernel.
func (k *Kernel) Prepare() *Kernel {
	return k.Normalize().Flip()
}

// Equal reports whether both kernels have the same size and all weights are
// within tol of each other.
func (k *Kernel) Equal(o *Kernel, tol float64) bool {
	return mat.EqualApprox(k.m, o.m, tol)
}

func (k *Kernel) String() string {
	rows, cols := k.m.Dims()
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d %d\n", rows, cols)
	for r := range rows {
		for c := range cols {
			if c > 0 {
				sb.WriteByte(' ')
			}
			fmt.Fprintf(&sb, "%g", k.m.At(r, c))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
