// Package session keeps the state of an interactive run: the image as it was
// loaded, the image being worked on, the kernel and the region palettes.
package session

import (
	"errors"
	"fmt"
	"log/slog"

	"convolve/filter"
	"convolve/kernel"
	"convolve/palette"
	"convolve/parallel"
	"convolve/pixmap"
	"convolve/quantize"
)

var (
	ErrNoImage   = errors.New("no image loaded")
	ErrNoKernel  = errors.New("no kernel loaded")
	ErrNoPalette = errors.New("no palettes loaded")
)

type Session struct {
	Edge            filter.Edge
	QuantizeOptions quantize.Options
	DecodeOptions   pixmap.DecodeOptions

	pool     *parallel.Pool
	logger   *slog.Logger
	original *pixmap.Image
	current  *pixmap.Image
	kernel   *kernel.Kernel
	palettes *palette.Set
}

// New returns an empty session running its work on pool. A nil pool runs
// everything on the caller's goroutine.
func New(pool *parallel.Pool, logger *slog.Logger) *Session {
	if pool == nil {
		pool = parallel.Start(1)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{pool: pool, logger: logger}
}

// LoadImage replaces both the original and the current image.
func (s *Session) LoadImage(path string) error {
	img, err := pixmap.Decode(path, s.DecodeOptions)
	if err != nil {
		return err
	}
	s.original = img
	s.current = img.Clone()
	s.logger.Info("loaded image", "file", path, "width", img.Width(), "height", img.Height())
	return nil
}

// SetImage is LoadImage for an image already in memory. img is copied.
func (s *Session) SetImage(img *pixmap.Image) {
	s.original = img.Clone()
	s.current = img.Clone()
}

// LoadKernel reads, normalizes and flips a kernel once so later convolutions
// use it as is.
func (s *Session) LoadKernel(path string) error {
	k, err := kernel.Load(path)
	if err != nil {
		return err
	}
	s.SetKernel(k)
	rows, cols := k.Dims()
	s.logger.Info("loaded kernel", "file", path, "rows", rows, "cols", cols, "sum", k.Sum())
	return nil
}

// SetKernel prepares k and makes it the session kernel.
func (s *Session) SetKernel(k *kernel.Kernel) {
	s.kernel = k.Prepare()
}

// LoadPalettes loads the region palettes from dir, see palette.LoadSet.
func (s *Session) LoadPalettes(dir string, names ...string) error {
	set, err := palette.LoadSet(dir, names)
	if err != nil {
		return err
	}
	s.palettes = &set
	s.logger.Info("loaded palettes", "dir", dir)
	return nil
}

// SetPalettes makes a copy of set the session palettes.
func (s *Session) SetPalettes(set palette.Set) {
	s.palettes = &set
}

// Convolve filters the current image with the session kernel. The result
// becomes the current image.
func (s *Session) Convolve() error {
	if s.current == nil {
		return ErrNoImage
	}
	if s.kernel == nil {
		return ErrNoKernel
	}
	s.current = filter.Convolve(s.current, s.kernel, s.Edge, s.pool)
	s.logger.Debug("convolved", "edge", s.Edge)
	return nil
}

// Quantize maps the current image onto the region palettes. The result
// becomes the current image.
func (s *Session) Quantize() error {
	if s.current == nil {
		return ErrNoImage
	}
	if s.palettes == nil {
		return ErrNoPalette
	}
	out, err := quantize.Quantize(s.current, s.palettes, s.QuantizeOptions, s.pool)
	if err != nil {
		return fmt.Errorf("could not quantize image: %w", err)
	}
	s.current = out
	s.logger.Debug("quantized", "diffusion", s.QuantizeOptions.Diffusion)
	return nil
}

// Restore discards every change made to the current image since it was
// loaded.
func (s *Session) Restore() error {
	if s.original == nil {
		return ErrNoImage
	}
	s.current = s.original.Clone()
	s.logger.Debug("restored")
	return nil
}

// Save encodes the current image to path.
func (s *Session) Save(path string) error {
	if s.current == nil {
		return ErrNoImage
	}
	if err := pixmap.Encode(path, s.current); err != nil {
		return err
	}
	s.logger.Info("saved", "dest", path)
	return nil
}

// Current returns the image being worked on, nil before LoadImage. Callers
// must not modify it.
func (s *Session) Current() *pixmap.Image { return s.current }

// Original returns the image as loaded, nil before LoadImage.
func (s *Session) Original() *pixmap.Image { return s.original }

func (s *Session) Kernel() *kernel.Kernel { return s.kernel }

func (s *Session) Palettes() *palette.Set { return s.palettes }
