package main

import (
	"log/slog"
	"os"
	"strings"

	"convolve/filter"
	"convolve/parallel"
	"convolve/pixmap"
	"convolve/quantize"
	"convolve/session"

	"github.com/alecthomas/kong"
)

type cli struct {
	Workers        int    `help:"Number of workers, 0 uses every CPU" default:"0" env:"CONVOLVE_WORKERS"`
	LogLevel       string `help:"Log level" enum:"debug,info,warn,error" default:"info" env:"CONVOLVE_LOG_LEVEL"`
	LogFormat      string `help:"Log format" enum:"text,json" default:"text"`
	NoExifRotation bool   `help:"Do not rotate images according to their EXIF orientation" default:"false"`

	Filter   filter.CLICmd   `cmd:"" help:"Convolve an image with a kernel"`
	Quantize quantize.CLICmd `cmd:"" help:"Map an image onto nine region palettes"`
	Palette  struct {
		Generate quantize.GenerateCmd `cmd:"" help:"Extract the nine region palettes from a reference image"`
	} `cmd:"" help:"Palette tools"`
	Shell session.CLICmd `cmd:"" help:"Run commands from stdin against an image session"`
}

func (c *cli) logger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if c.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(h)
}

func main() {
	var c cli
	kctx := kong.Parse(&c,
		kong.Name("convolve"),
		kong.Description("Apply convolution kernels and region palettes to images."),
		kong.UsageOnError(),
	)

	slog.SetDefault(c.logger())

	pool := parallel.Start(c.Workers)
	slog.Debug("running", "command", kctx.Command(), "workers", pool.Size())

	err := kctx.Run(pool, pixmap.DecodeOptions{NoAutoOrientation: c.NoExifRotation})
	pool.Close()
	if err != nil {
		slog.Error("command failed", "command", kctx.Command(), "error", err)
		os.Exit(1)
	}
}
