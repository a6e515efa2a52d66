package quantize

import (
	"image"
	"math/rand/v2"
	"testing"

	"convolve/palette"
	"convolve/parallel"
	"convolve/pixmap"
)

var (
	black = pixmap.Pixel{A: 255}
	white = pixmap.Pixel{R: 255, G: 255, B: 255, A: 255}
	red   = pixmap.Pixel{R: 255, A: 255}
	green = pixmap.Pixel{G: 255, A: 255}
	blue  = pixmap.Pixel{B: 255, A: 255}
)

func randomImage(r *rand.Rand, w, h int) *pixmap.Image {
	img := pixmap.New(w, h)
	for i := range img.Pix {
		img.Pix[i] = uint8(r.IntN(256))
	}
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	return img
}

func randomSet(r *rand.Rand) *palette.Set {
	var set palette.Set
	for i := range set {
		for len(set[i]) < 1+i%4 {
			set[i].Add(pixmap.Pixel{R: uint8(r.IntN(256)), G: uint8(r.IntN(256)), B: uint8(r.IntN(256)), A: 255})
		}
	}
	return &set
}

func TestGridCoversEveryPixelOnce(t *testing.T) {
	for _, size := range [][2]int{{0, 0}, {1, 1}, {2, 5}, {3, 3}, {4, 7}, {10, 10}, {11, 13}, {100, 1}} {
		r := image.Rect(0, 0, size[0], size[1])
		cells := Grid(r)

		area := 0
		for _, c := range cells {
			if !c.Empty() {
				area += c.Dx() * c.Dy()
			}
		}
		if area != r.Dx()*r.Dy() {
			t.Errorf("%v: cells cover %d pixels, want %d", size, area, r.Dx()*r.Dy())
		}

		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				n := 0
				for _, c := range cells {
					if (image.Point{x, y}).In(c) {
						n++
					}
				}
				if n != 1 {
					t.Fatalf("%v: (%d, %d) is in %d cells", size, x, y, n)
				}
			}
		}
	}
}

func TestRegionMatchesGrid(t *testing.T) {
	for _, r := range []image.Rectangle{
		image.Rect(0, 0, 1, 1),
		image.Rect(0, 0, 2, 8),
		image.Rect(0, 0, 9, 9),
		image.Rect(0, 0, 10, 11),
		image.Rect(5, -3, 22, 14),
	} {
		cells := Grid(r)
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				i := Region(r, x, y)
				if !(image.Point{x, y}).In(cells[i]) {
					t.Fatalf("%v: Region(%d, %d) = %d but cell is %v", r, x, y, i, cells[i])
				}
			}
		}
	}
}

func TestGridLayout(t *testing.T) {
	cells := Grid(image.Rect(0, 0, 10, 7))
	want := [palette.Regions]image.Rectangle{
		image.Rect(0, 0, 3, 2), image.Rect(3, 0, 6, 2), image.Rect(6, 0, 10, 2),
		image.Rect(0, 2, 3, 4), image.Rect(3, 2, 6, 4), image.Rect(6, 2, 10, 4),
		image.Rect(0, 4, 3, 7), image.Rect(3, 4, 6, 7), image.Rect(6, 4, 10, 7),
	}
	if cells != want {
		t.Errorf("got %v, want %v", cells, want)
	}
}

func TestQuantizeUsesRegionPalette(t *testing.T) {
	var set palette.Set
	colors := []pixmap.Pixel{black, white, red, green, blue, {R: 255, G: 255, A: 255}, {G: 255, B: 255, A: 255}, {R: 255, B: 255, A: 255}, {R: 128, G: 128, B: 128, A: 255}}
	for i := range set {
		set[i] = palette.Palette{colors[i]}
	}

	src := randomImage(rand.New(rand.NewPCG(1, 2)), 9, 9)
	out, err := Quantize(src, &set, Options{}, nil)
	if err != nil {
		t.Fatalf("Quantize: %v", err)
	}
	for y := range 9 {
		for x := range 9 {
			want := colors[(y/3)*3+x/3]
			if got := out.PixelAt(x, y); got != want {
				t.Fatalf("(%d, %d): got %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestQuantizeNearest(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	src := randomImage(r, 31, 17)
	set := randomSet(r)

	out, err := Quantize(src, set, Options{}, nil)
	if err != nil {
		t.Fatalf("Quantize: %v", err)
	}

	b := src.Bounds()
	for y := range b.Dy() {
		for x := range b.Dx() {
			pal := set[Region(b, x, y)]
			c, got := src.PixelAt(x, y), out.PixelAt(x, y)
			if !pal.Contains(got) {
				t.Fatalf("(%d, %d): %v not in region palette %v", x, y, got, pal)
			}
			for _, e := range pal {
				if palette.Distance(c, e) < palette.Distance(c, got) {
					t.Fatalf("(%d, %d): %v chosen for %v but %v is closer", x, y, got, c, e)
				}
			}
		}
	}
}

func TestQuantizeEmptyPalettePassesThrough(t *testing.T) {
	src := randomImage(rand.New(rand.NewPCG(2, 3)), 6, 6)
	var set palette.Set
	set[4] = palette.Palette{red}

	out, err := Quantize(src, &set, Options{}, nil)
	if err != nil {
		t.Fatalf("Quantize: %v", err)
	}
	for y := range 6 {
		for x := range 6 {
			want := src.PixelAt(x, y)
			if Region(src.Bounds(), x, y) == 4 {
				want = red
			}
			if got := out.PixelAt(x, y); got != want {
				t.Fatalf("(%d, %d): got %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestQuantizeSmallImages(t *testing.T) {
	set := randomSet(rand.New(rand.NewPCG(4, 4)))
	for _, size := range [][2]int{{0, 0}, {1, 1}, {2, 1}, {2, 2}} {
		src := pixmap.Filled(size[0], size[1], white)
		out, err := Quantize(src, set, Options{}, nil)
		if err != nil {
			t.Fatalf("%v: %v", size, err)
		}
		if !out.Bounds().Eq(src.Bounds()) {
			t.Errorf("%v: got bounds %v", size, out.Bounds())
		}
		for y := range size[1] {
			for x := range size[0] {
				if got := out.PixelAt(x, y); got != set[8].Convert(white) {
					t.Errorf("%v (%d, %d): got %v, want last region", size, x, y, got)
				}
			}
		}
	}
}

func TestQuantizeDeterministic(t *testing.T) {
	r := rand.New(rand.NewPCG(9, 9))
	src := randomImage(r, 50, 37)
	set := randomSet(r)
	orig := src.Clone()

	want, err := Quantize(src, set, Options{}, nil)
	if err != nil {
		t.Fatalf("Quantize: %v", err)
	}
	for _, n := range []int{2, 3, 8} {
		pool := parallel.Start(n)
		got, err := Quantize(src, set, Options{}, pool)
		pool.Close()
		if err != nil {
			t.Fatalf("Quantize with %d workers: %v", n, err)
		}
		if !got.Equal(want) {
			t.Errorf("%d workers: output differs", n)
		}
	}
	if !src.Equal(orig) {
		t.Error("source image modified")
	}
}

func TestQuantizeDiffusion(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 8))
	src := randomImage(r, 24, 18)
	set := randomSet(r)
	orig := src.Clone()

	pool := parallel.Start(4)
	defer pool.Close()

	for _, name := range []string{"floydsteinberg", "Atkinson", "sierra2-4a"} {
		out, err := Quantize(src, set, Options{Diffusion: name, Serpentine: true}, pool)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		b := src.Bounds()
		for y := range b.Dy() {
			for x := range b.Dx() {
				if pal := set[Region(b, x, y)]; !pal.Contains(out.PixelAt(x, y)) {
					t.Fatalf("%s (%d, %d): %v not in region palette", name, x, y, out.PixelAt(x, y))
				}
			}
		}
	}
	if !src.Equal(orig) {
		t.Error("source image modified")
	}
}

func TestQuantizeUnknownDiffusion(t *testing.T) {
	var set palette.Set
	if _, err := Quantize(pixmap.New(3, 3), &set, Options{Diffusion: "ordered"}, nil); err == nil {
		t.Error("expected error")
	}
	for _, name := range []string{"", "none", "NONE"} {
		if _, err := (Options{Diffusion: name}).matrix(); err != nil {
			t.Errorf("%q: %v", name, err)
		}
	}
}

func TestDiffusionNames(t *testing.T) {
	names := DiffusionNames()
	if len(names) != len(diffusionName) {
		t.Fatalf("got %d names", len(names))
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Errorf("names not sorted: %v", names)
		}
	}
}
