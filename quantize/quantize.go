package quantize

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"convolve/palette"
	"convolve/parallel"
	"convolve/pixmap"

	"github.com/disintegration/imaging"
	"github.com/makeworld-the-better-one/dither/v2"
)

var diffusionName = map[string]dither.ErrorDiffusionMatrix{
	"simple2d":            dither.Simple2D,
	"floydsteinberg":      dither.FloydSteinberg,
	"falsefloydsteinberg": dither.FalseFloydSteinberg,
	"jarvisjudiceninke":   dither.JarvisJudiceNinke,
	"atkinson":            dither.Atkinson,
	"stucki":              dither.Stucki,
	"burkes":              dither.Burkes,
	"sierra":              dither.Sierra,
	"sierra3":             dither.Sierra3,
	"tworowsierra":        dither.TwoRowSierra,
	"sierralite":          dither.SierraLite,
	"sierra2_4a":          dither.Sierra2_4A,
	"stevenpigeon":        dither.StevenPigeon,
}

// DiffusionNames lists the accepted Options.Diffusion values.
func DiffusionNames() []string {
	return slices.Sorted(maps.Keys(diffusionName))
}

type Options struct {
	// Diffusion names an error diffusion matrix. Empty or "none" maps each
	// pixel to its nearest palette colour independently.
	Diffusion string
	// Serpentine alternates the scan direction when diffusing.
	Serpentine bool
	// Strength scales the diffused error, 0 means 1.
	Strength float32
}

// Validate reports an unknown diffusion matrix.
func (o Options) Validate() error {
	_, err := o.matrix()
	return err
}

func (o Options) matrix() (dither.ErrorDiffusionMatrix, error) {
	name := strings.ReplaceAll(strings.ToLower(o.Diffusion), "-", "_")
	if name == "" || name == "none" {
		return nil, nil
	}
	m, ok := diffusionName[name]
	if !ok {
		return nil, fmt.Errorf("unknown error diffusion matrix %q", o.Diffusion)
	}
	strength := o.Strength
	if strength == 0 {
		strength = 1
	}
	return dither.ErrorDiffusionStrength(m, strength), nil
}

// Quantize returns a new image where every pixel of src is replaced by the
// palette entry of its region closest in Euclidean RGBA distance, ties going
// to the lowest index. Regions with an empty palette are copied unchanged.
// src is never written.
func Quantize(src *pixmap.Image, set *palette.Set, opts Options, pool *parallel.Pool) (*pixmap.Image, error) {
	matrix, err := opts.matrix()
	if err != nil {
		return nil, err
	}

	if pool == nil {
		pool = parallel.Start(1)
	}

	if matrix != nil {
		return diffuse(src, set, matrix, opts.Serpentine, pool)
	}

	dst := pixmap.New(src.Width(), src.Height())
	b := src.Bounds()
	pool.Split(b.Dy(), func(lo, hi int) {
		for y := lo; y < hi; y++ {
			for x := range b.Dx() {
				i := Region(b, b.Min.X+x, b.Min.Y+y)
				dst.SetPixel(x, y, set[i].Convert(src.PixelAt(b.Min.X+x, b.Min.Y+y)))
			}
		}
	})
	return dst, nil
}

// diffuse dithers each region on its own with its palette. Error never
// crosses a region border.
func diffuse(src *pixmap.Image, set *palette.Set, matrix dither.ErrorDiffusionMatrix, serpentine bool, pool *parallel.Pool) (*pixmap.Image, error) {
	dst := src.Clone()
	dst.Rect = image.Rect(0, 0, src.Width(), src.Height())
	cells := Grid(src.Bounds())

	var errs [palette.Regions]error
	pool.Split(palette.Regions, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			errs[i] = diffuseRegion(src, dst, cells[i], set[i], matrix, serpentine)
			if errs[i] != nil {
				errs[i] = fmt.Errorf("could not dither region %d: %w", i+1, errs[i])
			}
		}
	})
	if err := errors.Join(errs[:]...); err != nil {
		return nil, err
	}
	return dst, nil
}

func diffuseRegion(src, dst *pixmap.Image, cell image.Rectangle, pal palette.Palette, matrix dither.ErrorDiffusionMatrix, serpentine bool) error {
	if cell.Empty() || len(pal) == 0 {
		return nil
	}

	offset := cell.Min.Sub(src.Bounds().Min)
	if len(pal) == 1 {
		for y := range cell.Dy() {
			for x := range cell.Dx() {
				dst.SetPixel(offset.X+x, offset.Y+y, pal[0])
			}
		}
		return nil
	}

	colors := make([]color.Color, len(pal))
	for i, c := range pal {
		colors[i] = color.NRGBA{R: c.R, G: c.G, B: c.B, A: 0xff}
	}

	d := dither.NewDitherer(colors)
	if d == nil {
		return fmt.Errorf("invalid palette of %d colors", len(pal))
	}
	d.Matrix = matrix
	d.Serpentine = serpentine
	d.SingleThreaded = true

	out := d.DitherCopy(imaging.Crop(src, cell))

	ob := out.Bounds()
	for y := ob.Min.Y; y < ob.Max.Y; y++ {
		for x := ob.Min.X; x < ob.Max.X; x++ {
			c := out.RGBAAt(x, y)
			dst.SetPixel(offset.X+x-ob.Min.X, offset.Y+y-ob.Min.Y, paletteEntry(pal, pixmap.Pixel{R: c.R, G: c.G, B: c.B, A: 0xff}))
		}
	}

	slog.Debug("dithered region", "bounds", cell, "colors", len(pal))
	return nil
}

// paletteEntry returns the entry with the same red, green and blue as p, so
// that alpha comes from the palette, or the nearest one when the ditherer
// left p untouched.
func paletteEntry(pal palette.Palette, p pixmap.Pixel) pixmap.Pixel {
	for _, e := range pal {
		if e.SameRGB(p) {
			return e
		}
	}
	return pal.Convert(p)
}
