// Package quantize maps every pixel of an image to the nearest colour of the
// palette assigned to its region of a 3x3 grid.
package quantize

import (
	"image"

	"convolve/palette"
)

const gridSize = 3

// Grid splits r into 3x3 regions, indexed row*3+col. Cells are
// floor(width/3) by floor(height/3); the last column and the last row extend
// to the edge of r so every pixel belongs to exactly one region.
func Grid(r image.Rectangle) [palette.Regions]image.Rectangle {
	var cells [palette.Regions]image.Rectangle
	cw, ch := r.Dx()/gridSize, r.Dy()/gridSize
	for row := range gridSize {
		for col := range gridSize {
			cell := image.Rect(
				r.Min.X+col*cw, r.Min.Y+row*ch,
				r.Min.X+(col+1)*cw, r.Min.Y+(row+1)*ch,
			)
			if col == gridSize-1 {
				cell.Max.X = r.Max.X
			}
			if row == gridSize-1 {
				cell.Max.Y = r.Max.Y
			}
			cells[row*gridSize+col] = cell
		}
	}
	return cells
}

// cellIndex returns the grid row or column of offset v for a cell size of
// size.
func cellIndex(v, size int) int {
	if size == 0 {
		return gridSize - 1
	}
	return min(v/size, gridSize-1)
}

// Region returns the index of the region holding (x, y) in r.
func Region(r image.Rectangle, x, y int) int {
	return cellIndex(y-r.Min.Y, r.Dy()/gridSize)*gridSize + cellIndex(x-r.Min.X, r.Dx()/gridSize)
}
