package palette

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"convolve/pixmap"

	"golang.org/x/image/riff"
)

// A RIFF PAL file is a "PAL " form holding "data" chunks, each a Windows
// LOGPALETTE: a little endian version word (0x0300), an entry count and one
// PALETTEENTRY (red, green, blue, flags) per colour.

var (
	riffType = riff.FourCC{'R', 'I', 'F', 'F'}
	palType  = riff.FourCC{'P', 'A', 'L', ' '}
	dataType = riff.FourCC{'d', 'a', 't', 'a'}
)

const palVersion = 0x0300

type logPaletteHeader struct {
	Version uint16
	Count   uint16
}

// ReadFrom reads every palette chunk of a RIFF PAL stream, including chunks
// nested in "PAL " lists. Entries are opaque, the fourth byte only carries
// flags. Duplicates are kept.
func ReadFrom(r io.Reader) ([]Palette, error) {
	formType, rd, err := riff.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("could not open RIFF stream: %w", err)
	}
	if formType != palType {
		return nil, fmt.Errorf("unsupported RIFF form %q", formType[:])
	}

	var pals []Palette
	if err = readChunks(rd, &pals); err != nil {
		return pals, err
	}
	return pals, nil
}

func readChunks(rd *riff.Reader, pals *[]Palette) error {
	for {
		id, size, data, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("could not read chunk after palette %d: %w", len(*pals), err)
		}

		switch id {
		case dataType:
			pal, err := readLogPalette(data)
			if err != nil {
				return fmt.Errorf("could not read palette %d: %w", len(*pals), err)
			}
			*pals = append(*pals, pal)
		case riff.LIST:
			listType, list, err := riff.NewListReader(size, data)
			if err != nil {
				return fmt.Errorf("could not open list after palette %d: %w", len(*pals), err)
			}
			if listType != palType {
				return fmt.Errorf("unsupported list type %q", listType[:])
			}
			if err = readChunks(list, pals); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported chunk %q", id[:])
		}
	}
}

func readLogPalette(r io.Reader) (Palette, error) {
	var hdr logPaletteHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("could not read header: %w", err)
	}
	if hdr.Version != palVersion {
		return nil, fmt.Errorf("unsupported version %#04x", hdr.Version)
	}

	entries := make([]byte, 4*int(hdr.Count))
	if _, err := io.ReadFull(r, entries); err != nil {
		return nil, fmt.Errorf("could not read %d colors: %w", hdr.Count, err)
	}

	pal := make(Palette, hdr.Count)
	for i := range pal {
		e := entries[4*i : 4*i+4]
		pal[i] = pixmap.Pixel{R: e[0], G: e[1], B: e[2], A: 0xff}
	}
	return pal, nil
}

// WriteTo writes pals as a RIFF PAL stream, one data chunk per palette, and
// returns the number of bytes written. Alpha is dropped.
func WriteTo(w io.Writer, pals ...Palette) (int64, error) {
	var body bytes.Buffer
	body.Write(palType[:])
	for i, pal := range pals {
		if len(pal) > 0xffff {
			return 0, fmt.Errorf("palette %d has %d colors, at most 65535", i, len(pal))
		}
		body.Write(dataType[:])
		_ = binary.Write(&body, binary.LittleEndian, uint32(4+4*len(pal)))
		_ = binary.Write(&body, binary.LittleEndian, logPaletteHeader{Version: palVersion, Count: uint16(len(pal))})
		for _, c := range pal {
			body.Write([]byte{c.R, c.G, c.B, 0})
		}
	}

	var hdr [8]byte
	copy(hdr[:4], riffType[:])
	binary.LittleEndian.PutUint32(hdr[4:], uint32(body.Len()))

	n, err := w.Write(hdr[:])
	if err != nil {
		return int64(n), fmt.Errorf("could not write RIFF header: %w", err)
	}
	m, err := body.WriteTo(w)
	if err != nil {
		return int64(n) + m, fmt.Errorf("could not write palettes: %w", err)
	}
	return int64(n) + m, nil
}
