package quantize

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"convolve/palette"
	"convolve/parallel"
	"convolve/pixmap"

	"github.com/alecthomas/kong"
	"github.com/disintegration/imaging"
)

type CLICmd struct {
	Image      string   `arg:"" help:"Image to quantize" type:"existingfile"`
	Palettes   string   `help:"Folder holding the palette sources" default:"." type:"existingdir" group:"palette"`
	Names      []string `help:"Palette sources in region order, row by row. Relative to the palettes folder" group:"palette"`
	Out        string   `help:"Output image. Format is taken from the extension" short:"o" required:""`
	Diffusion  string   `help:"Error diffusion matrix applied inside each region, or none" default:"none" group:"dither"`
	Serpentine bool     `help:"Alternate the scan direction when diffusing" default:"false" group:"dither"`
	Strength   float32  `help:"Strength of the diffused error" default:"1" group:"dither"`
}

func (c *CLICmd) Validate(kctx *kong.Context) error {
	if err := c.options().Validate(); err != nil {
		return fmt.Errorf("%w, want none or one of %s", err, strings.Join(DiffusionNames(), ", "))
	}

	if len(c.Names) > palette.Regions {
		return fmt.Errorf("at most %d palettes, got %d", palette.Regions, len(c.Names))
	}

	if _, err := pixmap.FormatFromPath(c.Out); err != nil {
		return fmt.Errorf("invalid output path %q: %w", c.Out, err)
	}

	return nil
}

func (c *CLICmd) options() Options {
	return Options{
		Diffusion:  c.Diffusion,
		Serpentine: c.Serpentine,
		Strength:   c.Strength,
	}
}

func (c *CLICmd) Run(pool *parallel.Pool, decOpts pixmap.DecodeOptions) error {
	logger := slog.Default().With("file", c.Image)

	set, err := palette.LoadSet(c.Palettes, c.Names)
	if err != nil {
		return err
	}
	for i, pal := range set {
		logger.Debug("palette", "region", i+1, "colors", len(pal))
	}

	img, err := pixmap.Decode(c.Image, decOpts)
	if err != nil {
		return err
	}

	logger.Info("quantizing", "width", img.Width(), "height", img.Height(), "diffusion", c.Diffusion)
	out, err := Quantize(img, &set, c.options(), pool)
	if err != nil {
		return err
	}

	if err = pixmap.Encode(c.Out, out); err != nil {
		return err
	}
	logger.Info("saved", "dest", c.Out)
	return nil
}

// GenerateCmd writes one palette per grid region of a reference image, named
// so the quantize command finds them with its defaults.
type GenerateCmd struct {
	Image  string `arg:"" help:"Reference image" type:"existingfile"`
	Dest   string `help:"Destination folder for the palettes. Relative to the image folder if not absolute" default:"."`
	Colors int    `help:"Colors per palette" default:"8"`
	Method string `help:"Extraction method" enum:"dominant,kmeans,palettor" default:"dominant"`
	Format string `help:"Palette file format" enum:"png,pal" default:"png"`
	Tile   int    `help:"Tile size of png palettes" default:"16"`

	method palette.Method
}

func (c *GenerateCmd) Validate(kctx *kong.Context) error {
	var err error
	if c.method, err = palette.ParseMethod(c.Method); err != nil {
		return err
	}
	if c.Colors < 1 {
		return fmt.Errorf("invalid number of colors: %d", c.Colors)
	}

	if !filepath.IsAbs(c.Dest) {
		c.Dest = filepath.Join(filepath.Dir(c.Image), c.Dest)
	}
	return nil
}

func (c *GenerateCmd) Run(pool *parallel.Pool, decOpts pixmap.DecodeOptions) error {
	if err := os.MkdirAll(c.Dest, 0o755); err != nil {
		return fmt.Errorf("unable to create destination folder %q: %w", c.Dest, err)
	}

	img, err := pixmap.Decode(c.Image, decOpts)
	if err != nil {
		return err
	}

	cells := Grid(img.Bounds())
	var errCount atomic.Uint64
	pool.Split(palette.Regions, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			name := strings.TrimSuffix(palette.DefaultNames[i], filepath.Ext(palette.DefaultNames[i])) + "." + c.Format
			dest := filepath.Join(c.Dest, name)
			logger := slog.Default().With("region", i+1, "file", dest)

			if cells[i].Empty() {
				errCount.Add(1)
				logger.Error("region is empty, image is too small")
				continue
			}

			pal, err := palette.Extract(imaging.Crop(img, cells[i]), c.Colors, c.method)
			if err != nil {
				errCount.Add(1)
				logger.Error("could not extract palette", "error", err)
				continue
			}

			if err = pal.Save(dest, c.Tile); err != nil {
				errCount.Add(1)
				logger.Error("could not save palette", "error", err)
				continue
			}
			logger.Info("saved palette", "colors", len(pal))
		}
	})

	errors := errCount.Load()
	slog.Info("stats", "palettes", palette.Regions-int(errors), "errors", errors)
	if errors > 0 {
		return fmt.Errorf("error generating %d palettes", errors)
	}
	return nil
}
