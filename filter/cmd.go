package filter

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"convolve/kernel"
	"convolve/parallel"
	"convolve/pixmap"

	"github.com/alecthomas/kong"
)

type CLICmd struct {
	Image  string `arg:"" help:"Image to filter" type:"existingfile"`
	Kernel string `help:"Kernel description file" short:"k" type:"existingfile" required:""`
	Out    string `help:"Output image. Format is taken from the extension" short:"o" required:""`
	Edge   string `help:"How neighbours outside the image are read" enum:"clamp,zero,reflect" default:"clamp"`

	edge Edge
}

func (c *CLICmd) Validate(kctx *kong.Context) error {
	var err error
	if c.edge, err = ParseEdge(c.Edge); err != nil {
		return err
	}

	if _, err = pixmap.FormatFromPath(c.Out); err != nil {
		return fmt.Errorf("invalid output path %q: %w", c.Out, err)
	}
	if c.Out, err = filepath.Abs(c.Out); err != nil {
		return fmt.Errorf("invalid output path %q: %w", c.Out, err)
	}

	return nil
}

func (c *CLICmd) Run(pool *parallel.Pool, decOpts pixmap.DecodeOptions) error {
	logger := slog.Default().With("file", c.Image)

	k, err := kernel.Load(c.Kernel)
	if err != nil {
		return err
	}
	k = k.Prepare()

	img, err := pixmap.Decode(c.Image, decOpts)
	if err != nil {
		return err
	}

	rows, cols := k.Dims()
	logger.Info("convolving", "kernel", c.Kernel, "rows", rows, "cols", cols, "edge", c.edge,
		"width", img.Width(), "height", img.Height())
	start := time.Now()
	out := Convolve(img, k, c.edge, pool)
	logger.Info("convolved", "elapsed", time.Since(start))

	if err = pixmap.Encode(c.Out, out); err != nil {
		return err
	}
	logger.Info("saved", "dest", c.Out)
	return nil
}
