package palette

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"convolve/pixmap"
)

// Regions is the number of palettes in a Set, one per cell of a 3x3 grid.
const Regions = 9

// Set holds one palette per region, indexed row*3+col.
type Set [Regions]Palette

// DefaultNames are the palette sources looked up by LoadSet when no names
// are given.
var DefaultNames = func() []string {
	names := make([]string, Regions)
	for i := range names {
		names[i] = fmt.Sprintf("colorPalette%d.png", i+1)
	}
	return names
}()

// LoadError is returned when a palette source cannot be read.
type LoadError struct {
	Index int
	Path  string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("could not load palette %d from %q: %v", e.Index+1, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Load builds a palette from a source file. Images are scanned in row-major
// order and every pixel whose red, green and blue are not yet present is
// appended. Files ending in .pal are read as RIFF palettes.
func Load(path string) (Palette, error) {
	if isRIFF(path) {
		return loadRIFF(path)
	}

	img, err := pixmap.Decode(path, pixmap.DecodeOptions{NoAutoOrientation: true})
	if err != nil {
		return nil, err
	}
	return FromImage(img), nil
}

func isRIFF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pal")
}

// FromImage collects the distinct colours of img in scan order, first seen
// wins.
func FromImage(img *pixmap.Image) Palette {
	var pal Palette
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			pal.Add(img.PixelAt(x, y))
		}
	}
	return pal
}

func loadRIFF(path string) (Palette, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			slog.Error("could not close palette file", "name", path, "error", closeErr)
		}
	}()

	var pal Palette
	if _, err = pal.ReadRIFF(f); err != nil {
		return nil, err
	}
	return pal, nil
}

// LoadSet loads up to Regions palettes. Relative names are resolved against
// dir, and DefaultNames is used when names is empty. An empty name leaves the
// matching palette empty.
func LoadSet(dir string, names []string) (Set, error) {
	var set Set
	if len(names) == 0 {
		names = DefaultNames
	}
	if len(names) > Regions {
		return set, fmt.Errorf("too many palettes: %d, at most %d", len(names), Regions)
	}

	var errs []error
	for i, name := range names {
		if name == "" {
			continue
		}
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, name)
		}

		pal, err := Load(path)
		if err != nil {
			errs = append(errs, &LoadError{Index: i, Path: path, Err: err})
			continue
		}
		if len(pal) == 0 {
			errs = append(errs, &LoadError{Index: i, Path: path, Err: errors.New("palette has no colors")})
			continue
		}

		slog.Debug("loaded palette", "index", i+1, "file", path, "colors", len(pal))
		set[i] = pal
	}

	return set, errors.Join(errs...)
}
