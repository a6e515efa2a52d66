package palette

import (
	"bytes"
	"fmt"
	"image"
	"log/slog"
	"math"
	"os"
	"slices"

	"convolve/pixmap"

	"github.com/cenkalti/dominantcolor"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/mccutchen/palettor"
	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
)

// Method selects how Extract reduces an image to a few colours.
type Method int

const (
	MethodDominant Method = iota
	MethodKMeans
	MethodPalettor
)

func ParseMethod(s string) (Method, error) {
	switch s {
	case "dominant":
		return MethodDominant, nil
	case "kmeans":
		return MethodKMeans, nil
	case "palettor":
		return MethodPalettor, nil
	default:
		return 0, fmt.Errorf("unknown palette method %q", s)
	}
}

func (m Method) String() string {
	switch m {
	case MethodKMeans:
		return "kmeans"
	case MethodPalettor:
		return "palettor"
	default:
		return "dominant"
	}
}

type weightedColor struct {
	col    colorful.Color
	weight float64
}

// Extract reduces img to at most k opaque colours, sorted dark to bright.
func Extract(img image.Image, k int, method Method) (Palette, error) {
	if k <= 0 {
		return nil, fmt.Errorf("invalid number of colors: %d", k)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("cannot extract colors from an empty image")
	}

	var cols []colorful.Color
	var err error
	switch method {
	case MethodKMeans:
		cols, err = extractKMeans(img, k)
	case MethodPalettor:
		cols, err = extractPalettor(img, k)
	default:
		cols = extractDominant(img, k)
	}
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		slog.Warn("palette extraction returned no colors, falling back to dominant", "method", method)
		cols = extractDominant(img, k)
	}

	sortByBrightness(cols)
	var pal Palette
	for _, c := range cols {
		r, g, b := c.Clamped().RGB255()
		pal.Add(pixmap.Pixel{R: r, G: g, B: b, A: 0xff})
	}
	return pal, nil
}

func sortByBrightness(cols []colorful.Color) {
	slices.SortStableFunc(cols, func(a, b colorful.Color) int {
		ri, gi, bi := a.LinearRgb()
		rj, gj, bj := b.LinearRgb()
		yi := 0.2126*ri + 0.7152*gi + 0.0722*bi
		yj := 0.2126*rj + 0.7152*gj + 0.0722*bj
		switch {
		case yi < yj:
			return -1
		case yi > yj:
			return 1
		default:
			return 0
		}
	})
}

func extractDominant(img image.Image, k int) []colorful.Color {
	candidates := dominantcolor.FindWeight(img, max(24, k*8))
	if len(candidates) == 0 {
		return nil
	}

	weighted := make([]weightedColor, 0, len(candidates))
	for _, c := range candidates {
		col, _ := colorful.MakeColor(c.RGBA)
		weighted = append(weighted, weightedColor{col: col.Clamped(), weight: max(c.Weight, 1e-6)})
	}
	return selectDiverse(weighted, k)
}

func extractKMeans(img image.Image, k int) ([]colorful.Color, error) {
	b := img.Bounds()

	// Subsample to keep kmeans tractable on large regions.
	const maxSamples = 12000
	step := 1
	if n := b.Dx() * b.Dy(); n > maxSamples {
		step = int(math.Sqrt(float64(n)/maxSamples)) + 1
	}

	var dataset clusters.Observations
	for y := b.Min.Y; y < b.Max.Y; y += step {
		for x := b.Min.X; x < b.Max.X; x += step {
			r, g, bl, a := img.At(x, y).RGBA()
			if a == 0 {
				continue
			}
			dataset = append(dataset, clusters.Coordinates{
				float64(r) / 0xffff,
				float64(g) / 0xffff,
				float64(bl) / 0xffff,
			})
		}
	}
	if len(dataset) == 0 {
		return nil, nil
	}

	workK := min(max(k*4, k+2), len(dataset))
	cc, err := kmeans.New().Partition(dataset, workK)
	if err != nil {
		return nil, fmt.Errorf("could not partition colors: %w", err)
	}

	// Most populated clusters first so ties favour dominant tones.
	slices.SortStableFunc(cc, func(a, b clusters.Cluster) int {
		return len(b.Observations) - len(a.Observations)
	})

	weighted := make([]weightedColor, 0, len(cc))
	for _, c := range cc {
		if len(c.Center) < 3 || len(c.Observations) == 0 {
			continue
		}
		col := colorful.Color{R: c.Center[0], G: c.Center[1], B: c.Center[2]}.Clamped()
		weighted = append(weighted, weightedColor{col: col, weight: float64(len(c.Observations))})
	}
	return selectDiverse(weighted, k), nil
}

func extractPalettor(img image.Image, k int) ([]colorful.Color, error) {
	// Keep palettor.Extract fast on large regions.
	thumbnail := imaging.Resize(img, min(img.Bounds().Dx(), 200), 0, imaging.NearestNeighbor)

	pal, err := palettor.Extract(k, 500, thumbnail)
	if err != nil {
		return nil, fmt.Errorf("could not extract palette: %w", err)
	}

	var cols []colorful.Color
	for _, c := range pal.Colors() {
		col, _ := colorful.MakeColor(c)
		cols = append(cols, col.Clamped())
	}
	return cols, nil
}

// selectDiverse greedily picks k colours, seeded with the heaviest one, that
// are far apart in Lab space while still favouring heavy candidates.
func selectDiverse(cands []weightedColor, k int) []colorful.Color {
	if len(cands) == 0 {
		return nil
	}
	k = min(k, len(cands))

	labs := make([][3]float64, len(cands))
	maxW, seed := 0.0, 0
	for i, c := range cands {
		l, a, b := c.col.Lab()
		labs[i] = [3]float64{l, a, b}
		if c.weight > maxW {
			maxW, seed = c.weight, i
		}
	}

	selected := make([]bool, len(cands))
	picked := []int{seed}
	selected[seed] = true
	for len(picked) < k {
		bestIdx, bestScore := -1, -1.0
		for i := range cands {
			if selected[i] {
				continue
			}
			minD2 := math.MaxFloat64
			for _, s := range picked {
				d0 := labs[i][0] - labs[s][0]
				d1 := labs[i][1] - labs[s][1]
				d2 := labs[i][2] - labs[s][2]
				minD2 = min(minD2, d0*d0+d1*d1+d2*d2)
			}
			score := math.Sqrt(minD2) * (0.55 + 0.45*math.Sqrt(cands[i].weight/maxW))
			if score > bestScore {
				bestIdx, bestScore = i, score
			}
		}
		if bestIdx < 0 {
			break
		}
		selected[bestIdx] = true
		picked = append(picked, bestIdx)
	}

	out := make([]colorful.Color, 0, len(picked))
	for _, i := range picked {
		out = append(out, cands[i].col)
	}
	return out
}

// Image renders the palette as a horizontal strip of tileSize squares, in
// palette order, so that Load on the result returns the same palette.
func (p Palette) Image(tileSize int) *pixmap.Image {
	if tileSize <= 0 {
		tileSize = 1
	}
	m := pixmap.New(tileSize*len(p), tileSize)
	for i, c := range p {
		for y := range tileSize {
			for x := i * tileSize; x < (i+1)*tileSize; x++ {
				m.SetPixel(x, y, c)
			}
		}
	}
	return m
}

// Save writes the palette to path, as a RIFF palette when the extension is
// .pal and as a tile strip image otherwise.
func (p Palette) Save(path string, tileSize int) error {
	if len(p) == 0 {
		return fmt.Errorf("empty palette")
	}

	if !isRIFF(path) {
		return pixmap.Encode(path, p.Image(tileSize))
	}

	var buf bytes.Buffer
	if _, err := p.WriteRIFF(&buf); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("could not write palette %q: %w", path, err)
	}
	return nil
}
