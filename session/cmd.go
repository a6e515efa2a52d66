package session

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"

	"convolve/filter"
	"convolve/parallel"
	"convolve/pixmap"
	"convolve/quantize"

	"github.com/alecthomas/kong"
)

type CLICmd struct {
	Image     string `help:"Image to open on start" type:"existingfile"`
	Kernel    string `help:"Kernel to load on start" short:"k" type:"existingfile"`
	Palettes  string `help:"Folder to load the region palettes from on start" type:"existingdir"`
	Out       string `help:"Default destination of the save command" short:"o"`
	Edge      string `help:"How neighbours outside the image are read" enum:"clamp,zero,reflect" default:"clamp"`
	Diffusion string `help:"Error diffusion matrix used by quantize, or none" default:"none"`
	Script    string `help:"Read commands from this file instead of stdin" type:"existingfile"`

	edge filter.Edge
}

func (c *CLICmd) Validate(kctx *kong.Context) error {
	var err error
	if c.edge, err = filter.ParseEdge(c.Edge); err != nil {
		return err
	}
	if err = (quantize.Options{Diffusion: c.Diffusion}).Validate(); err != nil {
		return err
	}
	if c.Out != "" {
		if _, err = pixmap.FormatFromPath(c.Out); err != nil {
			return fmt.Errorf("invalid output path %q: %w", c.Out, err)
		}
	}
	return nil
}

func (c *CLICmd) Run(pool *parallel.Pool, decOpts pixmap.DecodeOptions) error {
	s := New(pool, slog.Default())
	s.Edge = c.edge
	s.QuantizeOptions.Diffusion = c.Diffusion
	s.DecodeOptions = decOpts

	if c.Image != "" {
		if err := s.LoadImage(c.Image); err != nil {
			return err
		}
	}
	if c.Kernel != "" {
		if err := s.LoadKernel(c.Kernel); err != nil {
			return err
		}
	}
	if c.Palettes != "" {
		if err := s.LoadPalettes(c.Palettes); err != nil {
			return err
		}
	}

	in := io.Reader(os.Stdin)
	if c.Script != "" {
		f, err := os.Open(c.Script)
		if err != nil {
			return fmt.Errorf("could not open script %q: %w", c.Script, err)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil {
				slog.Error("could not close script", "name", c.Script, "error", closeErr)
			}
		}()
		in = f
	}

	sh := &Shell{Session: s, Out: c.Out}
	return sh.Serve(in, os.Stdout)
}

// ErrQuit stops Serve without an error.
var ErrQuit = errors.New("quit")

type shellCommand struct {
	usage   string
	help    string
	minArgs int
	maxArgs int
	run     func(sh *Shell, args []string) error
}

var shellCommands map[string]shellCommand

func init() {
	shellCommands = map[string]shellCommand{
		"open": {"open IMAGE", "load an image, replacing the original and the current one", 1, 1,
			func(sh *Shell, args []string) error { return sh.Session.LoadImage(args[0]) }},
		"kernel": {"kernel FILE", "load, normalize and flip a kernel", 1, 1,
			func(sh *Shell, args []string) error { return sh.Session.LoadKernel(args[0]) }},
		"palettes": {"palettes DIR [NAME...]", "load the region palettes", 1, 10,
			func(sh *Shell, args []string) error { return sh.Session.LoadPalettes(args[0], args[1:]...) }},
		"edge": {"edge clamp|zero|reflect", "set the edge policy of convolve", 1, 1,
			func(sh *Shell, args []string) error {
				e, err := filter.ParseEdge(args[0])
				if err != nil {
					return err
				}
				sh.Session.Edge = e
				return nil
			}},
		"diffusion": {"diffusion NAME|none", "set the error diffusion matrix of quantize", 1, 1,
			func(sh *Shell, args []string) error {
				opts := sh.Session.QuantizeOptions
				opts.Diffusion = args[0]
				if err := opts.Validate(); err != nil {
					return err
				}
				sh.Session.QuantizeOptions = opts
				return nil
			}},
		"convolve": {"convolve", "apply the kernel to the current image", 0, 0,
			func(sh *Shell, _ []string) error { return sh.Session.Convolve() }},
		"quantize": {"quantize", "map the current image onto the region palettes", 0, 0,
			func(sh *Shell, _ []string) error { return sh.Session.Quantize() }},
		"restore": {"restore", "go back to the image as loaded", 0, 0,
			func(sh *Shell, _ []string) error { return sh.Session.Restore() }},
		"save": {"save [IMAGE]", "save the current image", 0, 1,
			func(sh *Shell, args []string) error {
				dest := sh.Out
				if len(args) > 0 {
					dest = args[0]
				}
				if dest == "" {
					return errors.New("no destination given")
				}
				return sh.Session.Save(dest)
			}},
		"help": {"help", "list the commands", 0, 0,
			func(sh *Shell, _ []string) error {
				for _, name := range slices.Sorted(maps.Keys(shellCommands)) {
					cmd := shellCommands[name]
					if _, err := fmt.Fprintf(sh.w, "  %-26s %s\n", cmd.usage, cmd.help); err != nil {
						return err
					}
				}
				return nil
			}},
		"quit": {"quit", "leave the shell", 0, 0,
			func(*Shell, []string) error { return ErrQuit }},
	}
	shellCommands["exit"] = shellCommands["quit"]
}

// Shell runs line based commands against a Session. Empty lines and lines
// starting with '#' are ignored. A failing command is reported and the shell
// carries on with the next one.
type Shell struct {
	Session *Session
	// Out is the destination of save when none is given.
	Out string

	w io.Writer
}

// Exec runs a single command line.
func (sh *Shell) Exec(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return nil
	}

	name, args := strings.ToLower(fields[0]), fields[1:]
	cmd, ok := shellCommands[name]
	if !ok {
		return fmt.Errorf("unknown command %q, try help", fields[0])
	}
	if len(args) < cmd.minArgs || len(args) > cmd.maxArgs {
		return fmt.Errorf("usage: %s", cmd.usage)
	}
	if sh.w == nil {
		sh.w = io.Discard
	}
	return cmd.run(sh, args)
}

// Serve reads commands from r until EOF or quit. Command errors are written
// to w and counted; Serve returns an error when any command failed.
func (sh *Shell) Serve(r io.Reader, w io.Writer) error {
	sh.w = w
	var errCount, lineNo int

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		err := sh.Exec(scanner.Text())
		if errors.Is(err, ErrQuit) {
			break
		}
		if err != nil {
			errCount++
			slog.Error("command failed", "line", lineNo, "error", err)
			if _, werr := fmt.Fprintf(w, "error: %v\n", err); werr != nil {
				return werr
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("could not read commands: %w", err)
	}

	slog.Info("stats", "commands", lineNo, "errors", errCount)
	if errCount > 0 {
		return fmt.Errorf("error running %d commands", errCount)
	}
	return nil
}
