package rewrite

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/local/docshrink/internal/imageproc"
	"github.com/local/docshrink/internal/model"
	"github.com/local/docshrink/internal/mrc"
)

// largeDocumentPages is the size above which batches force a GC cycle.
const largeDocumentPages = 50

// Rewriter turns pages into plans. It keeps no per-page state.
type Rewriter struct {
	Raster        model.PageRasterizer
	Processor     *imageproc.Processor
	TextThreshold int
}

func New(r model.PageRasterizer, proc *imageproc.Processor, textThreshold int) *Rewriter {
	if proc == nil {
		proc = imageproc.NewProcessor()
	}
	return &Rewriter{Raster: r, Processor: proc, TextThreshold: textThreshold}
}

// Input is everything the rewriter knows about a document.
type Input struct {
	Pages    int
	Meta     map[int]model.PageMetadata
	Segments map[int]model.PageSegmentation
	Profile  model.OptimizationProfile
	// Force, when set, routes every page the same way.
	Force string
	// Progress receives pages planned so far.
	Progress func(done, total int)
}

// PlanPage builds the plan for one page along its decided route.
func (rw *Rewriter) PlanPage(ctx context.Context, page int, in Input) (model.PagePlan, error) {
	if err := ctx.Err(); err != nil {
		return model.PagePlan{}, model.ResourceError("rewrite", err)
	}
	meta := in.Meta[page]
	seg, _ := SegmentationFor(in.Segments, page)
	route := in.Force
	if route == "" {
		route = Decide(meta, seg, in.Profile, rw.TextThreshold)
	}
	switch route {
	case RouteVector:
		return model.PagePlan{Index: page, Source: model.SourcePreservedOriginal, Route: RouteVector}, nil
	case RouteMRC:
		return rw.MRCPlan(page, meta, seg, in.Profile)
	default:
		return rw.RasterPlan(page, meta, seg, in.Profile)
	}
}

type render struct {
	img           *image.RGBA
	width, height float64
}

func (rw *Rewriter) render(page int, p model.OptimizationProfile) (render, error) {
	w, h, err := rw.Raster.Bounds(page)
	if err != nil {
		return render{}, model.PageError("bounds", page, err)
	}
	img, err := rw.Raster.Render(page, model.FitDPI(w, h, p.TargetDPI, p.MaxPixelDim))
	if err != nil {
		return render{}, err
	}
	return render{img: img, width: w, height: h}, nil
}

// RasterPlan renders page at the profile DPI and keeps the smallest encoding
// from the quality search as a single full-page asset.
func (rw *Rewriter) RasterPlan(page int, meta model.PageMetadata, seg *model.PageSegmentation, p model.OptimizationProfile) (model.PagePlan, error) {
	r, err := rw.render(page, p)
	if err != nil {
		return model.PagePlan{}, err
	}
	return rw.rasterFrom(page, r, meta, seg, p)
}

func (rw *Rewriter) rasterFrom(page int, r render, meta model.PageMetadata, seg *model.PageSegmentation, p model.OptimizationProfile) (model.PagePlan, error) {
	enc, err := rw.Processor.Shrink(r.img, 1, p)
	if err != nil {
		return model.PagePlan{}, model.PageError("encode", page, fmt.Errorf("%w: %v", model.ErrEncode, err))
	}
	plan := model.PagePlan{
		Index:       page,
		Source:      model.SourceAssetComposite,
		Width:       r.width,
		Height:      r.height,
		PixelWidth:  enc.Width,
		PixelHeight: enc.Height,
		Route:       RouteRaster,
		Assets: []model.ExtractedAsset{{
			Data:        enc.Data,
			Codec:       enc.Codec,
			PixelWidth:  enc.Width,
			PixelHeight: enc.Height,
			Rect:        model.Rect{W: float64(enc.Width), H: float64(enc.Height)},
			Layer:       model.LayerStandard,
			Intent:      intentOf(seg),
		}},
	}
	plan.Text = rw.textFor(page, meta, seg, enc.Width, enc.Height)
	return plan, nil
}

// MRCPlan separates page into background and mask layers. Pages where the
// split does not pay off are re-encoded as one raster from the same render.
func (rw *Rewriter) MRCPlan(page int, meta model.PageMetadata, seg *model.PageSegmentation, p model.OptimizationProfile) (model.PagePlan, error) {
	r, err := rw.render(page, p)
	if err != nil {
		return model.PagePlan{}, err
	}
	pw, ph := r.img.Bounds().Dx(), r.img.Bounds().Dy()
	var rects []model.Rect
	if seg != nil && seg.PixelWidth > 0 && seg.PixelHeight > 0 {
		sx, sy := float64(pw)/float64(seg.PixelWidth), float64(ph)/float64(seg.PixelHeight)
		for _, tr := range seg.TextRects {
			rects = append(rects, tr.Scale(sx, sy))
		}
	}
	layers, err := mrc.NewSeparator(mrc.OptionsFor(p)).Separate(r.img, rects)
	if errors.Is(err, mrc.ErrNotWorthwhile) {
		log.Debug().Int("page", page).Msg("mrc not worthwhile, using raster")
		return rw.rasterFrom(page, r, meta, seg, p)
	}
	if err != nil {
		return model.PagePlan{}, model.PageError("mrc", page, err)
	}
	return model.PagePlan{
		Index:       page,
		Source:      model.SourceAssetComposite,
		Assets:      layers.Assets(),
		Text:        rw.textFor(page, meta, seg, pw, ph),
		Width:       r.width,
		Height:      r.height,
		PixelWidth:  pw,
		PixelHeight: ph,
		Route:       RouteMRC,
	}, nil
}

// textFor returns text positioned in a pw x ph pixel space: the rasterizer's
// own text when the page has any, else words the detector recognised.
func (rw *Rewriter) textFor(page int, meta model.PageMetadata, seg *model.PageSegmentation, pw, ph int) []model.TextElement {
	if meta.TextLength > 0 {
		els, err := rw.Raster.TextElements(page, pw, ph)
		if err == nil {
			return els
		}
		log.Debug().Err(err).Int("page", page).Msg("text layer unavailable")
	}
	if seg == nil || len(seg.TextElements) == 0 || seg.PixelWidth == 0 || seg.PixelHeight == 0 {
		return nil
	}
	sx, sy := float64(pw)/float64(seg.PixelWidth), float64(ph)/float64(seg.PixelHeight)
	out := make([]model.TextElement, 0, len(seg.TextElements))
	for _, e := range seg.TextElements {
		out = append(out, model.TextElement{Text: e.Text, Box: e.Box.Scale(sx, sy)})
	}
	return out
}

func intentOf(seg *model.PageSegmentation) model.EncodingIntent {
	if seg == nil || seg.Intent == "" {
		return model.IntentJPEG2000
	}
	return seg.Intent
}

// RewriteStrict plans every page in order and stops at the first error.
func (rw *Rewriter) RewriteStrict(ctx context.Context, in Input) ([]model.PagePlan, error) {
	plans := make([]model.PagePlan, 0, in.Pages)
	for i := 0; i < in.Pages; i++ {
		plan, err := rw.PlanPage(ctx, i, in)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
		if in.Progress != nil {
			in.Progress(i+1, in.Pages)
		}
	}
	return plans, nil
}

// RewriteBatched plans pages in parallel batches. A page that fails falls
// back to its preserved original; only cancellation is returned as an error.
// Plans come back sorted by page index.
func (rw *Rewriter) RewriteBatched(ctx context.Context, in Input, batchSize int) ([]model.PagePlan, error) {
	if batchSize <= 0 {
		batchSize = 4
	}
	plans := make([]model.PagePlan, in.Pages)
	for start := 0; start < in.Pages; start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, model.ResourceError("rewrite", err)
		}
		end := min(start+batchSize, in.Pages)
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				plan, err := rw.PlanPage(ctx, i, in)
				if err != nil {
					if !model.IsCancelled(err) {
						log.Warn().Err(err).Int("page", i).Msg("page rewrite failed, keeping original")
					}
					plan = model.PagePlan{Index: i, Source: model.SourcePreservedOriginal, Route: RouteFallback}
				}
				plans[i] = plan
			}(i)
		}
		wg.Wait()
		if in.Progress != nil {
			in.Progress(end, in.Pages)
		}
		if in.Pages > largeDocumentPages {
			runtime.GC()
		} else {
			runtime.Gosched()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, model.ResourceError("rewrite", err)
	}
	return plans, nil
}
