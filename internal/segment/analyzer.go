// Package segment renders pages at a bounded size, finds text and image
// regions, and classifies each page for the rewrite stage.
package segment

import (
	"context"
	"fmt"
	"image"
	"math"
	"runtime"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/local/docshrink/internal/imageproc"
	"github.com/local/docshrink/internal/model"
)

// Options bound the analyzer's cost.
type Options struct {
	MaxPixel      int // longest side of the analysis render
	TextThreshold int // runes of embedded text that imply vector text
	BatchSize     int
	SampleCap     int
	TileRows      int
	TileCols      int
}

// DefaultOptions returns the stock analyzer settings.
func DefaultOptions() Options {
	return Options{MaxPixel: 1024, TextThreshold: 50, BatchSize: 4, SampleCap: 15, TileRows: 8, TileCols: 8}
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.MaxPixel <= 0 {
		o.MaxPixel = d.MaxPixel
	}
	if o.TextThreshold <= 0 {
		o.TextThreshold = d.TextThreshold
	}
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if o.SampleCap <= 0 {
		o.SampleCap = d.SampleCap
	}
	if o.TileRows <= 0 {
		o.TileRows = d.TileRows
	}
	if o.TileCols <= 0 {
		o.TileCols = d.TileCols
	}
	return o
}

// Analyzer produces page segmentations. It is safe for concurrent use when
// its detector is.
type Analyzer struct {
	opts     Options
	detector model.TextDetector
}

// New returns an analyzer; a nil detector selects ComponentDetector.
func New(opts Options, detector model.TextDetector) *Analyzer {
	if detector == nil {
		detector = ComponentDetector{Reducer: imageproc.BlurReducer{Sigma: 0.6}}
	}
	return &Analyzer{opts: opts.normalized(), detector: detector}
}

func (a *Analyzer) Options() Options { return a.opts }

// AnalyzePage renders page at the analysis size and segments it. Text
// elements are attached when the page carries embedded text.
func (a *Analyzer) AnalyzePage(ctx context.Context, r model.PageRasterizer, page, textLen int) (model.PageSegmentation, error) {
	w, h, err := r.Bounds(page)
	if err != nil {
		return model.PageSegmentation{}, model.PageError("bounds", page, err)
	}
	longest := math.Max(w, h)
	if longest <= 0 {
		return model.PageSegmentation{}, model.PageError("bounds", page, fmt.Errorf("%w: empty page", model.ErrPage))
	}
	img, err := r.Render(page, float64(a.opts.MaxPixel)*72/longest)
	if err != nil {
		return model.PageSegmentation{}, err
	}
	seg, err := a.AnalyzeBitmap(ctx, img, textLen)
	if err != nil {
		return model.PageSegmentation{}, model.PageError("detect", page, err)
	}
	seg.Index = page
	if textLen > 0 {
		els, err := r.TextElements(page, seg.PixelWidth, seg.PixelHeight)
		if err != nil {
			log.Debug().Err(err).Int("page", page).Msg("positioned text unavailable")
		} else {
			seg.TextElements = els
		}
	}
	return seg, nil
}

// AnalyzeBitmap segments an already rendered page. It is deterministic for
// identical input.
func (a *Analyzer) AnalyzeBitmap(ctx context.Context, img image.Image, textLen int) (model.PageSegmentation, error) {
	b := img.Bounds()
	seg := model.PageSegmentation{PixelWidth: b.Dx(), PixelHeight: b.Dy()}
	seg.HasVectorText = textLen > a.opts.TextThreshold

	if seg.HasVectorText {
		// detector skipped: default text estimate, image share from sampling
		seg.TextCoverage = DefaultVectorText
		seg.ImageCoverage = math.Max(DefaultVectorImage,
			pictorialFraction(imageproc.ToRGBA(img), image.Rect(0, 0, b.Dx(), b.Dy()), pictorialSampleSize))
		seg.Tiles = uniformTiles(b.Dx(), b.Dy(), a.opts.TileRows, a.opts.TileCols, seg.TextCoverage, seg.ImageCoverage)
	} else {
		det, err := a.detector.Detect(ctx, img)
		if err != nil {
			return model.PageSegmentation{}, err
		}
		w, h := float64(b.Dx()), float64(b.Dy())
		seg.TextRects, seg.ImageRects = det.TextRects, det.ImageRects
		seg.TextCoverage = model.Coverage(det.TextRects, w, h)
		seg.ImageCoverage = model.Coverage(det.ImageRects, w, h)
		seg.TextElements = det.Words
		seg.Tiles = Tiles(b.Dx(), b.Dy(), a.opts.TileRows, a.opts.TileCols, det.TextRects, det.ImageRects)
	}
	seg.Class = Classify(seg.HasVectorText, seg.TextCoverage, seg.ImageCoverage)
	seg.Intent = model.IntentFor(seg.Class)
	return seg, nil
}

// Progress receives the number of analyzed pages out of total.
type Progress func(done, total int)

// Analyze segments pages in bounded batches. Pages that fail are logged and
// left out of the result. Cancellation returns the partial map and the error.
func (a *Analyzer) Analyze(ctx context.Context, r model.PageRasterizer, pages []int, meta map[int]model.PageMetadata, progress Progress) (map[int]model.PageSegmentation, error) {
	out := make(map[int]model.PageSegmentation, len(pages))
	var mu sync.Mutex
	done := 0
	for start := 0; start < len(pages); start += a.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return out, model.ResourceError("analyze", err)
		}
		end := min(start+a.opts.BatchSize, len(pages))
		var wg sync.WaitGroup
		for _, page := range pages[start:end] {
			wg.Add(1)
			go func(page int) {
				defer wg.Done()
				if ctx.Err() != nil {
					return
				}
				seg, err := a.AnalyzePage(ctx, r, page, meta[page].TextLength)
				if err != nil {
					log.Warn().Err(err).Int("page", page).Msg("page analysis failed, page dropped")
					return
				}
				mu.Lock()
				out[page] = seg
				mu.Unlock()
			}(page)
		}
		wg.Wait()
		done = end
		if progress != nil {
			progress(done, len(pages))
		}
		runtime.Gosched()
	}
	if err := ctx.Err(); err != nil {
		return out, model.ResourceError("analyze", err)
	}
	log.Debug().Int("requested", len(pages)).Int("analyzed", len(out)).Msg("segmentation done")
	return out, nil
}
