package segment

import (
	"sort"

	"github.com/local/docshrink/internal/model"
)

// Classification thresholds.
const (
	MainlyTextMaxImage  = 0.3
	PhotographMinImage  = 0.5
	ScannedMinText      = 0.15
	DefaultVectorText   = 0.6
	DefaultVectorImage  = 0.05
	pictorialSampleSize = 4096
)

// Classify maps coverage figures to a page class. It is a pure function.
func Classify(vectorText bool, textCoverage, imageCoverage float64) model.PageContentType {
	switch {
	case vectorText && imageCoverage < MainlyTextMaxImage:
		return model.ContentMainlyText
	case imageCoverage >= PhotographMinImage:
		return model.ContentPhotograph
	case textCoverage >= ScannedMinText && !vectorText:
		return model.ContentScannedDocument
	default:
		return model.ContentMixed
	}
}

// byTop keeps rectangles sorted by Y so a tile row can skip everything that
// starts below it and cheaply reject what ends above it.
type byTop []model.Rect

func sortedByTop(rects []model.Rect) byTop {
	out := make(byTop, len(rects))
	copy(out, rects)
	sort.Slice(out, func(a, b int) bool { return out[a].Y < out[b].Y })
	return out
}

// band returns the rectangles whose vertical extent meets [y0, y1).
func (s byTop) band(y0, y1 float64) []model.Rect {
	end := sort.Search(len(s), func(i int) bool { return s[i].Y >= y1 })
	var out []model.Rect
	for _, r := range s[:end] {
		if r.Bottom() <= y0 {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Tiles partitions a w x h page into rows x cols cells and computes each
// cell's union coverage. Coverage is clamped to [0,1].
func Tiles(w, h, rows, cols int, textRects, imageRects []model.Rect) []model.SegmentationTile {
	if w <= 0 || h <= 0 || rows <= 0 || cols <= 0 {
		return nil
	}
	text, imgs := sortedByTop(textRects), sortedByTop(imageRects)
	tw, th := float64(w)/float64(cols), float64(h)/float64(rows)
	tiles := make([]model.SegmentationTile, 0, rows*cols)
	for r := 0; r < rows; r++ {
		y0 := float64(r) * th
		rowText, rowImgs := text.band(y0, y0+th), imgs.band(y0, y0+th)
		for c := 0; c < cols; c++ {
			cell := model.Rect{X: float64(c) * tw, Y: y0, W: tw, H: th}
			tiles = append(tiles, model.SegmentationTile{
				Rect:          cell,
				TextCoverage:  cellCoverage(cell, rowText),
				ImageCoverage: cellCoverage(cell, rowImgs),
			})
		}
	}
	return tiles
}

func cellCoverage(cell model.Rect, rects []model.Rect) float64 {
	var clipped []model.Rect
	for _, r := range rects {
		if r.X >= cell.Right() || r.Right() <= cell.X {
			continue
		}
		if i := r.Intersect(cell); !i.Empty() {
			clipped = append(clipped, i)
		}
	}
	if len(clipped) == 0 {
		return 0
	}
	return model.Clamp01(model.UnionArea(clipped) / cell.Area())
}

// uniformTiles fills the grid with fixed coverage values.
func uniformTiles(w, h, rows, cols int, text, image float64) []model.SegmentationTile {
	tiles := Tiles(w, h, rows, cols, nil, nil)
	for i := range tiles {
		tiles[i].TextCoverage = model.Clamp01(text)
		tiles[i].ImageCoverage = model.Clamp01(image)
	}
	return tiles
}
