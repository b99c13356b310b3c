package segment

import (
	"context"
	"image"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/local/docshrink/internal/imageproc"
	"github.com/local/docshrink/internal/model"
)

const (
	// MaxInkThreshold caps the binarisation level: lighter pixels are background.
	MaxInkThreshold = 200
	// MinComponentPixels filters speckle noise.
	MinComponentPixels = 4
	// cellSize is the pictorial-region grid step in pixels.
	cellSize = 16
)

// ComponentDetector finds text lines and image blocks on a rendered page from
// connected components of dark pixels plus a coarse grid of mid-tone cells.
type ComponentDetector struct {
	Reducer model.NoiseReducer
}

// component is the bounding box of one 4-connected blob of ink.
type component struct {
	minX, minY, maxX, maxY int
	pixels                 int
}

func (c component) w() int { return c.maxX - c.minX + 1 }
func (c component) h() int { return c.maxY - c.minY + 1 }
func (c component) rect() model.Rect {
	return model.Rect{X: float64(c.minX), Y: float64(c.minY), W: float64(c.w()), H: float64(c.h())}
}

// Detect implements model.TextDetector.
func (d ComponentDetector) Detect(ctx context.Context, img image.Image) (model.Detection, error) {
	src := img
	if d.Reducer != nil {
		if r := d.Reducer.Reduce(img); r != nil && !r.Bounds().Empty() {
			src = r
		}
	}
	gray := imageproc.Grayscale(src)
	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	if w == 0 || h == 0 {
		return model.Detection{}, nil
	}
	t := imageproc.OtsuThreshold(gray)
	if t > MaxInkThreshold {
		t = MaxInkThreshold
	}

	comps := findComponents(gray, t, MinComponentPixels)
	if err := ctx.Err(); err != nil {
		return model.Detection{}, err
	}

	imageRects := pictorialRegions(imageproc.ToRGBA(src))
	glyphMax := max(8, h/20)
	minBlock := max(24, min(w, h)/12)
	var glyphs []component
	for _, c := range comps {
		switch {
		case c.w() >= minBlock && c.h() >= minBlock && c.h() > 3*glyphMax:
			imageRects = append(imageRects, c.rect())
		case c.h() <= 3*glyphMax:
			if !insideAny(c.rect(), imageRects) {
				glyphs = append(glyphs, c)
			}
		default:
			imageRects = append(imageRects, c.rect())
		}
	}
	lines := mergeLines(glyphs)
	var textRects []model.Rect
	for _, l := range lines {
		if l.count < 2 && l.box.W < l.box.H {
			continue
		}
		textRects = append(textRects, l.box)
	}
	log.Debug().Int("components", len(comps)).Int("lines", len(textRects)).Int("image_blocks", len(imageRects)).Uint8("threshold", t).Msg("page regions detected")
	return model.Detection{TextRects: textRects, ImageRects: imageRects}, nil
}

// findComponents flood-fills pixels darker than or equal to t.
func findComponents(g *image.Gray, t uint8, minPixels int) []component {
	w, h := g.Bounds().Dx(), g.Bounds().Dy()
	visited := make([]bool, w*h)
	ink := func(i int) bool { return g.Pix[(i/w)*g.Stride+i%w] <= t }
	var out []component
	stack := make([]int, 0, 256)
	for start := 0; start < w*h; start++ {
		if visited[start] || !ink(start) {
			continue
		}
		c := component{minX: start % w, minY: start / w, maxX: start % w, maxY: start / w}
		stack = append(stack[:0], start)
		visited[start] = true
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := i%w, i/w
			c.pixels++
			c.minX, c.maxX = min(c.minX, x), max(c.maxX, x)
			c.minY, c.maxY = min(c.minY, y), max(c.maxY, y)
			for _, n := range [4]int{i - 1, i + 1, i - w, i + w} {
				if n < 0 || n >= w*h || visited[n] {
					continue
				}
				if (n == i-1 && x == 0) || (n == i+1 && x == w-1) {
					continue
				}
				if ink(n) {
					visited[n] = true
					stack = append(stack, n)
				}
			}
		}
		if c.pixels >= minPixels {
			out = append(out, c)
		}
	}
	return out
}

type line struct {
	box   model.Rect
	count int
}

// mergeLines groups glyph boxes that share a baseline band and sit close
// together horizontally.
func mergeLines(glyphs []component) []line {
	sort.Slice(glyphs, func(a, b int) bool {
		if glyphs[a].minX != glyphs[b].minX {
			return glyphs[a].minX < glyphs[b].minX
		}
		return glyphs[a].minY < glyphs[b].minY
	})
	var lines []line
	for _, g := range glyphs {
		r := g.rect()
		joined := false
		for i := range lines {
			l := &lines[i]
			overlap := min(l.box.Bottom(), r.Bottom()) - max(l.box.Y, r.Y)
			if overlap < 0.5*min(l.box.H, r.H) {
				continue
			}
			gap := r.X - l.box.Right()
			if gap > 1.5*max(l.box.H, r.H) {
				continue
			}
			l.box = l.box.Union(r)
			l.count++
			joined = true
			break
		}
		if !joined {
			lines = append(lines, line{box: r, count: 1})
		}
	}
	return lines
}

// pictorialRegions marks grid cells dominated by mid-tone or saturated pixels
// and merges 8-connected runs of such cells into image rectangles.
func pictorialRegions(img *image.RGBA) []model.Rect {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	cols, rows := (w+cellSize-1)/cellSize, (h+cellSize-1)/cellSize
	if cols == 0 || rows == 0 {
		return nil
	}
	mark := make([]bool, cols*rows)
	for cy := 0; cy < rows; cy++ {
		for cx := 0; cx < cols; cx++ {
			r := image.Rect(cx*cellSize, cy*cellSize, min(w, (cx+1)*cellSize), min(h, (cy+1)*cellSize))
			mark[cy*cols+cx] = pictorialFraction(img, r, 64) > 0.6
		}
	}
	var out []model.Rect
	seen := make([]bool, len(mark))
	for i := range mark {
		if !mark[i] || seen[i] {
			continue
		}
		minX, minY, maxX, maxY, cells := i%cols, i/cols, i%cols, i/cols, 0
		stack := []int{i}
		seen[i] = true
		for len(stack) > 0 {
			j := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			cells++
			x, y := j%cols, j/cols
			minX, maxX, minY, maxY = min(minX, x), max(maxX, x), min(minY, y), max(maxY, y)
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= cols || ny >= rows {
						continue
					}
					n := ny*cols + nx
					if mark[n] && !seen[n] {
						seen[n] = true
						stack = append(stack, n)
					}
				}
			}
		}
		// a lone cell is more likely a bold glyph than a picture
		if cells < 4 {
			continue
		}
		out = append(out, model.Rect{
			X: float64(minX * cellSize), Y: float64(minY * cellSize),
			W: float64(min(w, (maxX+1)*cellSize) - minX*cellSize),
			H: float64(min(h, (maxY+1)*cellSize) - minY*cellSize),
		})
	}
	return out
}

// pictorialFraction samples up to limit pixels of r and returns the share
// that looks photographic: mid-tone luminance or strong saturation.
func pictorialFraction(img *image.RGBA, r image.Rectangle, limit int) float64 {
	r = r.Intersect(img.Bounds())
	area := r.Dx() * r.Dy()
	if area == 0 {
		return 0
	}
	step := 1
	for area/(step*step) > limit {
		step++
	}
	hits, total := 0, 0
	for y := r.Min.Y; y < r.Max.Y; y += step {
		for x := r.Min.X; x < r.Max.X; x += step {
			o := img.PixOffset(x, y)
			cr, cg, cb := int(img.Pix[o]), int(img.Pix[o+1]), int(img.Pix[o+2])
			luma := (299*cr + 587*cg + 114*cb) / 1000
			sat := max(cr, cg, cb) - min(cr, cg, cb)
			if (luma > 60 && luma < 200) || sat > 60 {
				hits++
			}
			total++
		}
	}
	return float64(hits) / float64(total)
}

func insideAny(r model.Rect, rects []model.Rect) bool {
	for _, o := range rects {
		if r.Intersect(o).Area() >= 0.8*r.Area() {
			return true
		}
	}
	return false
}
