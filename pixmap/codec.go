package pixmap

import (
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/vp8l"
	_ "golang.org/x/image/webp"
)

// DecodeError is returned when an image cannot be opened or decoded.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("could not decode image %q: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError is returned when an image cannot be encoded or written.
type EncodeError struct {
	Path   string
	Format string
	Err    error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("could not encode %s image %q: %v", e.Format, e.Path, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

type DecodeOptions struct {
	// NoAutoOrientation disables applying the EXIF orientation tag.
	NoAutoOrientation bool
}

// Decode reads the image at path into a new buffer. Grayscale and RGB sources
// get expanded to RGBA with opaque alpha.
func Decode(path string, opts DecodeOptions) (*Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(!opts.NoAutoOrientation))
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	m := FromImage(img)
	slog.Debug("decoded image", "file", path, "width", m.Width(), "height", m.Height())
	return m, nil
}

// Formats lists the encoders known to Encode.
var Formats = []string{"png", "jpeg", "gif", "bmp", "tiff"}

// FormatFromPath guesses the output format from the file extension.
func FormatFromPath(path string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch ext {
	case "png", "gif", "bmp":
		return ext, nil
	case "jpg", "jpeg":
		return "jpeg", nil
	case "tif", "tiff":
		return "tiff", nil
	case "":
		return "png", nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", ext)
	}
}

// Encode writes img to path. The format is taken from the path extension. The
// image is written to a temporary file in the same directory and renamed over
// path once fully flushed.
func Encode(path string, img image.Image) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return &EncodeError{Path: path, Format: "unknown", Err: err}
	}
	if m, ok := img.(*Image); ok {
		if format == "jpeg" && !m.Opaque() {
			slog.Warn("jpeg has no alpha channel, transparency is dropped", "file", path)
		}
		img = m.NRGBA()
	}
	if err = encode(path, format, img); err != nil {
		return &EncodeError{Path: path, Format: format, Err: err}
	}
	return nil
}

func encode(path, format string, img image.Image) (err error) {
	destDir, destName := filepath.Split(path)
	if destDir == "" {
		destDir = "."
	}

	outFile, err := os.CreateTemp(destDir, destName)
	if err != nil {
		return fmt.Errorf("could not create temporary destination %q: %w", destName, err)
	}
	canRename := false
	defer func() {
		if defErr := outFile.Sync(); defErr != nil && err == nil {
			err = fmt.Errorf("could not flush temporary destination %q: %w", destName, defErr)
		}
		if defErr := outFile.Close(); defErr != nil && err == nil {
			err = fmt.Errorf("could not close temporary destination %q: %w", destName, defErr)
		}

		if canRename && err == nil {
			if defErr := os.Rename(outFile.Name(), path); defErr != nil {
				err = fmt.Errorf("could not rename destination file %q: %w", destName, defErr)
			}
		}
		if err != nil {
			if rmErr := os.Remove(outFile.Name()); rmErr != nil {
				slog.Error("could not remove temporary file", "name", outFile.Name(), "error", rmErr)
			}
		}
	}()

	switch format {
	case "gif":
		err = gif.Encode(outFile, img, nil)
	case "jpeg":
		err = jpeg.Encode(outFile, img, &jpeg.Options{Quality: 100})
	case "png":
		enc := png.Encoder{
			CompressionLevel: png.BestCompression,
			BufferPool:       pngPool,
		}
		err = enc.Encode(outFile, img)
	case "bmp":
		err = bmp.Encode(outFile, img)
	case "tiff":
		err = tiff.Encode(outFile, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
	if err != nil {
		return err
	}

	canRename = true
	return nil
}

type pngEncoderBufferPool struct {
	pool sync.Pool
}

func (p *pngEncoderBufferPool) Get() *png.EncoderBuffer {
	return p.pool.Get().(*png.EncoderBuffer)
}

func (p *pngEncoderBufferPool) Put(buf *png.EncoderBuffer) {
	p.pool.Put(buf)
}

var pngPool = &pngEncoderBufferPool{
	pool: sync.Pool{
		New: func() any {
			return &png.EncoderBuffer{}
		},
	},
}
