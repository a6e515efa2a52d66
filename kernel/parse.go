package kernel

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
)

// ErrParse is wrapped by every ParseError.
var ErrParse = errors.New("malformed kernel")

// ParseError describes why a kernel description was rejected. Token is the
// 1-based index of the offending token, 0 when the error is not tied to one.
type ParseError struct {
	Path  string
	Token int
	Msg   string
	Err   error
}

func (e *ParseError) Error() string {
	var sb strings.Builder
	sb.WriteString("could not parse kernel")
	if e.Path != "" {
		fmt.Fprintf(&sb, " %q", e.Path)
	}
	if e.Token > 0 {
		fmt.Fprintf(&sb, " at token %d", e.Token)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Msg)
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrParse}
	}
	return []error{ErrParse, e.Err}
}

// Load reads and parses the kernel description at path.
func Load(path string) (*Kernel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ParseError{Path: path, Msg: "could not open kernel file", Err: err}
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			slog.Error("could not close kernel file", "name", path, "error", closeErr)
		}
	}()

	k, err := Parse(f)
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			perr.Path = path
		}
		return nil, err
	}

	rows, cols := k.Dims()
	slog.Debug("loaded kernel", "file", path, "rows", rows, "cols", cols, "sum", k.Sum())
	return k, nil
}

// Parse reads a whitespace delimited kernel description: the height and width
// as integers followed by height*width weights in row-major order. A '#'
// starts a comment that runs to the end of the line.
func Parse(r io.Reader) (*Kernel, error) {
	tokens, err := tokenize(r)
	if err != nil {
		return nil, &ParseError{Msg: "could not read kernel", Err: err}
	}

	if len(tokens) < 2 {
		return nil, &ParseError{Msg: fmt.Sprintf("missing kernel dimensions, got %d of 2 tokens", len(tokens))}
	}

	rows, err := parseDim(tokens[0], 1, "height")
	if err != nil {
		return nil, err
	}
	cols, err := parseDim(tokens[1], 2, "width")
	if err != nil {
		return nil, err
	}

	weights := tokens[2:]
	if !sizeMatches(rows, cols, len(weights)) {
		return nil, &ParseError{
			Msg: fmt.Sprintf("kernel %dx%d does not match the %d weights given", rows, cols, len(weights)),
		}
	}

	data := make([]float64, len(weights))
	for i, tok := range weights {
		v, err := strconv.ParseFloat(tok, 64)
		if err == nil && (math.IsNaN(v) || math.IsInf(v, 0)) {
			err = fmt.Errorf("non-finite value %q", tok)
		}
		if err != nil {
			return nil, &ParseError{Token: i + 3, Msg: fmt.Sprintf("invalid weight %q", tok), Err: err}
		}
		data[i] = v
	}

	return New(rows, cols, data)
}

func parseDim(tok string, pos int, name string) (int, error) {
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, &ParseError{Token: pos, Msg: fmt.Sprintf("invalid kernel %s %q", name, tok), Err: err}
	}
	if v <= 0 {
		return 0, &ParseError{Token: pos, Msg: fmt.Sprintf("kernel %s must be positive, got %d", name, v)}
	}
	return v, nil
}

func tokenize(r io.Reader) ([]string, error) {
	var tokens []string
	sc := bufio.NewScanner(r)
	sc.Buffer(nil, math.MaxInt32)
	for sc.Scan() {
		line, _, _ := strings.Cut(sc.Text(), "#")
		tokens = append(tokens, strings.Fields(line)...)
	}
	return tokens, sc.Err()
}
