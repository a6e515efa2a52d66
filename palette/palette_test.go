package palette

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"convolve/pixmap"
)

var (
	black = pixmap.Pixel{A: 255}
	white = pixmap.Pixel{R: 255, G: 255, B: 255, A: 255}
	red   = pixmap.Pixel{R: 255, A: 255}
	green = pixmap.Pixel{G: 255, A: 255}
	blue  = pixmap.Pixel{B: 255, A: 255}
)

func writeImage(t *testing.T, path string, img *pixmap.Image) {
	t.Helper()
	if err := pixmap.Encode(path, img); err != nil {
		t.Fatalf("Encode %s: %v", path, err)
	}
}

func assertPalette(t *testing.T, name string, got, want Palette) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: got %d colors %v, want %d %v", name, len(got), got, len(want), want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("%s[%d]: got %v, want %v", name, i, got[i], want[i])
		}
	}
}

func TestAddDeduplicatesOnRGB(t *testing.T) {
	var p Palette
	if !p.Add(red) {
		t.Error("first color not added")
	}
	if p.Add(red) {
		t.Error("duplicate added")
	}
	if p.Add(pixmap.Pixel{R: 255, A: 10}) {
		t.Error("color differing only in alpha added")
	}
	if !p.Add(blue) {
		t.Error("new color not added")
	}
	assertPalette(t, "palette", p, Palette{red, blue})
}

func TestIndexNearest(t *testing.T) {
	p := Palette{black, white, red, green, blue}
	tests := []struct {
		c    pixmap.Pixel
		want int
	}{
		{pixmap.Pixel{R: 10, G: 10, B: 10, A: 255}, 0},
		{pixmap.Pixel{R: 240, G: 230, B: 250, A: 255}, 1},
		{pixmap.Pixel{R: 200, G: 40, B: 30, A: 255}, 2},
		{pixmap.Pixel{R: 20, G: 180, B: 60, A: 255}, 3},
		{blue, 4},
	}
	for _, tt := range tests {
		if got := p.Index(tt.c); got != tt.want {
			t.Errorf("Index(%v): got %d, want %d", tt.c, got, tt.want)
		}
	}
}

func TestIndexAlphaCounts(t *testing.T) {
	transparent := pixmap.Pixel{R: 255}
	p := Palette{red, {R: 250, G: 5, B: 5, A: 0}}
	if got := p.Index(transparent); got != 1 {
		t.Errorf("got %d, want the transparent entry", got)
	}
}

func TestIndexTiesGoToLowestIndex(t *testing.T) {
	p := Palette{{R: 10, A: 255}, {R: 30, A: 255}}
	if got := p.Index(pixmap.Pixel{R: 20, A: 255}); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
	p = Palette{{R: 30, A: 255}, {R: 10, A: 255}}
	if got := p.Index(pixmap.Pixel{R: 20, A: 255}); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
}

func TestIndexIsMinimal(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 5))
	randPixel := func() pixmap.Pixel {
		return pixmap.Pixel{R: uint8(r.IntN(256)), G: uint8(r.IntN(256)), B: uint8(r.IntN(256)), A: uint8(r.IntN(256))}
	}

	var p Palette
	for len(p) < 16 {
		p.Add(randPixel())
	}
	for range 2000 {
		c := randPixel()
		got := p[p.Index(c)]
		for _, e := range p {
			if Distance(c, e) < Distance(c, got) {
				t.Fatalf("Index(%v) chose %v but %v is closer", c, got, e)
			}
		}
	}
}

func TestConvertEmpty(t *testing.T) {
	var p Palette
	if got := p.Convert(red); got != red {
		t.Errorf("got %v, want %v", got, red)
	}
}

func TestLoadImage(t *testing.T) {
	dir := t.TempDir()

	img := pixmap.New(3, 2)
	for i, c := range []pixmap.Pixel{green, green, red, blue, red, green} {
		img.SetPixel(i%3, i/3, c)
	}
	path := filepath.Join(dir, "colorPalette1.png")
	writeImage(t, path, img)

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p[0] != green {
		t.Errorf("first entry: got %v, want %v", p[0], green)
	}
	assertPalette(t, "palette", p, Palette{green, red, blue})
}

func TestLoadSingleColor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "solid.png")
	writeImage(t, path, pixmap.Filled(4, 4, blue))

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertPalette(t, "palette", p, Palette{blue})
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.png"))
	var derr *pixmap.DecodeError
	if !errors.As(err, &derr) {
		t.Errorf("got %v, want *pixmap.DecodeError", err)
	}
}

func TestRIFFRoundTrip(t *testing.T) {
	want := Palette{black, red, green, {R: 12, G: 34, B: 56, A: 255}}

	var buf bytes.Buffer
	if _, err := want.WriteRIFF(&buf); err != nil {
		t.Fatalf("WriteRIFF: %v", err)
	}

	var got Palette
	n, err := got.ReadRIFF(&buf)
	if err != nil {
		t.Fatalf("ReadRIFF: %v", err)
	}
	if n != int64(len(want)) {
		t.Errorf("ReadRIFF count: got %d, want %d", n, len(want))
	}
	assertPalette(t, "palette", got, want)
}

func TestRIFFMultiplePalettes(t *testing.T) {
	a, b := Palette{red, green}, Palette{green, blue, white}

	var buf bytes.Buffer
	n, err := WriteTo(&buf, a, b)
	if err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if n != int64(buf.Len()) || n != 8+4+2*(8+4)+4*5 {
		t.Errorf("got %d bytes, buffer holds %d", n, buf.Len())
	}

	pals, err := ReadFrom(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if len(pals) != 2 {
		t.Fatalf("got %d palettes", len(pals))
	}
	assertPalette(t, "first", pals[0], a)
	assertPalette(t, "second", pals[1], b)

	var merged Palette
	if _, err = merged.ReadRIFF(bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatalf("ReadRIFF: %v", err)
	}
	assertPalette(t, "merged", merged, Palette{red, green, blue, white})
}

func TestReadRIFFTruncated(t *testing.T) {
	var buf bytes.Buffer
	if _, err := WriteTo(&buf, Palette{red, green, blue}); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	data := buf.Bytes()
	if _, err := ReadFrom(bytes.NewReader(data[:len(data)-3])); err == nil {
		t.Error("expected error for truncated stream")
	}
}

func TestReadRIFFRejectsOtherForms(t *testing.T) {
	data := []byte("RIFF\x04\x00\x00\x00WAVE")
	if _, err := ReadFrom(bytes.NewReader(data)); err == nil {
		t.Error("expected error for WAVE form")
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	want := Palette{black, red, white}

	for _, name := range []string{"strip.png", "strip.pal", "strip.bmp"} {
		path := filepath.Join(dir, name)
		if err := want.Save(path, 4); err != nil {
			t.Fatalf("Save %s: %v", name, err)
		}
		got, err := Load(path)
		if err != nil {
			t.Fatalf("Load %s: %v", name, err)
		}
		assertPalette(t, name, got, want)
	}

	var empty Palette
	if err := empty.Save(filepath.Join(dir, "empty.png"), 4); err == nil {
		t.Error("expected error saving an empty palette")
	}
}

func TestLoadSet(t *testing.T) {
	dir := t.TempDir()
	colors := []pixmap.Pixel{black, white, red, green, blue, {R: 1, A: 255}, {G: 2, A: 255}, {B: 3, A: 255}, {R: 4, G: 4, A: 255}}
	for i, name := range DefaultNames {
		writeImage(t, filepath.Join(dir, name), pixmap.Filled(2, 2, colors[i]))
	}

	set, err := LoadSet(dir, nil)
	if err != nil {
		t.Fatalf("LoadSet: %v", err)
	}
	for i := range set {
		assertPalette(t, DefaultNames[i], set[i], Palette{colors[i]})
	}
}

func TestLoadSetErrors(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "a.png"), pixmap.Filled(1, 1, red))

	_, err := LoadSet(dir, []string{"a.png", "missing.png"})
	var lerr *LoadError
	if !errors.As(err, &lerr) {
		t.Fatalf("got %v, want *LoadError", err)
	}
	if lerr.Index != 1 || lerr.Path != filepath.Join(dir, "missing.png") {
		t.Errorf("got index %d path %q", lerr.Index, lerr.Path)
	}

	if _, err = LoadSet(dir, make([]string, Regions+1)); err == nil {
		t.Error("expected error for too many palettes")
	}

	set, err := LoadSet(dir, []string{"", "a.png"})
	if err != nil {
		t.Fatalf("LoadSet with gap: %v", err)
	}
	if len(set[0]) != 0 || len(set[1]) != 1 {
		t.Errorf("got %v", set)
	}
}

func TestDefaultNames(t *testing.T) {
	if len(DefaultNames) != Regions || DefaultNames[0] != "colorPalette1.png" || DefaultNames[8] != "colorPalette9.png" {
		t.Errorf("got %v", DefaultNames)
	}
}

func TestExtract(t *testing.T) {
	img := pixmap.New(40, 40)
	for y := range 40 {
		for x := range 40 {
			switch {
			case x < 20:
				img.SetPixel(x, y, pixmap.Pixel{R: 20, G: 20, B: 20, A: 255})
			case y < 20:
				img.SetPixel(x, y, pixmap.Pixel{R: 230, G: 200, B: 40, A: 255})
			default:
				img.SetPixel(x, y, pixmap.Pixel{R: 40, G: 90, B: 220, A: 255})
			}
		}
	}

	for _, m := range []Method{MethodDominant, MethodKMeans, MethodPalettor} {
		t.Run(m.String(), func(t *testing.T) {
			p, err := Extract(img, 3, m)
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if len(p) == 0 || len(p) > 3 {
				t.Fatalf("got %d colors: %v", len(p), p)
			}
			for _, c := range p {
				if c.A != 255 {
					t.Errorf("color %v is not opaque", c)
				}
			}
		})
	}

	if _, err := Extract(img, 0, MethodDominant); err == nil {
		t.Error("expected error for zero colors")
	}
	if _, err := Extract(pixmap.New(0, 0), 3, MethodDominant); err == nil {
		t.Error("expected error for empty image")
	}
}

func TestParseMethod(t *testing.T) {
	for _, m := range []Method{MethodDominant, MethodKMeans, MethodPalettor} {
		got, err := ParseMethod(m.String())
		if err != nil || got != m {
			t.Errorf("ParseMethod(%q): got %v, %v", m.String(), got, err)
		}
	}
	if _, err := ParseMethod("median-cut"); err == nil {
		t.Error("expected error")
	}
}
