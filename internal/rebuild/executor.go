package rebuild

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"

	"github.com/local/docshrink/internal/model"
	"github.com/local/docshrink/internal/pdfdoc"
	"github.com/local/docshrink/internal/reassemble"
	"github.com/local/docshrink/internal/rewrite"
)

// Report describes what one strategy run produced.
type Report struct {
	Mode     model.RebuildMode
	Pages    int
	Bytes    int64
	Routes   map[string]int
	PostPass bool
	Stats    reassemble.Stats
}

// Executor runs a strategy over one opened document. Meta and Segments come
// from the scanner and the analyzer; Segments is only used by hybrid.
type Executor struct {
	Source    *pdfdoc.Document
	Rewriter  *rewrite.Rewriter
	Meta      map[int]model.PageMetadata
	Segments  map[int]model.PageSegmentation
	BatchSize int
	// Strict makes ultra and hybrid fail on the first page that cannot be
	// rewritten instead of keeping that page's original.
	Strict bool
	// Progress receives pages planned so far.
	Progress func(done, total int)
}

// Run writes the document rebuilt with mode to out.
func (e *Executor) Run(ctx context.Context, mode model.RebuildMode, p model.OptimizationProfile, out string) (Report, error) {
	n := e.Source.PageCount()
	var (
		plans []model.PagePlan
		err   error
	)
	switch mode {
	case model.ModeSafe:
		plans = e.copyPlans(n)
	case model.ModeSmart:
		plans, err = e.smartPlans(ctx, n, p)
	case model.ModeUltra:
		plans, err = e.rewrite(ctx, e.input(n, p, rewrite.RouteRaster))
	case model.ModeHybrid:
		plans, err = e.rewrite(ctx, e.input(n, p, ""))
	default:
		return Report{}, fmt.Errorf("rebuild: unsupported mode %q", mode)
	}
	if err != nil {
		return Report{}, err
	}

	st, err := e.write(ctx, out, plans, p)
	if err != nil {
		return Report{}, err
	}
	rep := Report{Mode: mode, Pages: st.Pages, Bytes: st.Bytes, Routes: rewrite.CountRoutes(plans), Stats: st}
	if mode == model.ModeSafe {
		if size, ok := postPass(out); ok {
			rep.Bytes = size
			rep.PostPass = true
		}
	}
	log.Info().Str("mode", string(mode)).Int("pages", rep.Pages).Int64("bytes", rep.Bytes).
		Interface("routes", rep.Routes).Msg("rebuild finished")
	return rep, nil
}

func (e *Executor) rewrite(ctx context.Context, in rewrite.Input) ([]model.PagePlan, error) {
	if e.Strict {
		return e.Rewriter.RewriteStrict(ctx, in)
	}
	return e.Rewriter.RewriteBatched(ctx, in, e.BatchSize)
}

func (e *Executor) input(n int, p model.OptimizationProfile, force string) rewrite.Input {
	return rewrite.Input{
		Pages:    n,
		Meta:     e.Meta,
		Segments: e.Segments,
		Profile:  p,
		Force:    force,
		Progress: e.Progress,
	}
}

func (e *Executor) copyPlans(n int) []model.PagePlan {
	plans := make([]model.PagePlan, n)
	for i := range plans {
		plans[i] = model.PagePlan{Index: i, Source: model.SourcePreservedOriginal, Route: rewrite.RouteVector}
	}
	if e.Progress != nil {
		e.Progress(n, n)
	}
	return plans
}

// smartPlans copies every page, except text-less pages whose raster
// re-encode is smaller than the bytes the copy would carry.
func (e *Executor) smartPlans(ctx context.Context, n int, p model.OptimizationProfile) ([]model.PagePlan, error) {
	plans := make([]model.PagePlan, n)
	err := batches(ctx, n, e.BatchSize, func(i int) {
		plans[i] = e.smartPage(i, p)
	}, e.Progress)
	if err != nil {
		return nil, err
	}
	return plans, nil
}

func (e *Executor) smartPage(i int, p model.OptimizationProfile) model.PagePlan {
	keep := model.PagePlan{Index: i, Source: model.SourcePreservedOriginal, Route: rewrite.RouteVector}
	meta, ok := e.Meta[i]
	if !ok {
		meta = model.PageMetadata{Index: i}
		if t, err := e.Rewriter.Raster.Text(i); err == nil {
			meta.TextLength = len([]rune(t))
		}
	}
	if meta.TextLength > e.Rewriter.TextThreshold {
		return keep
	}
	weight, err := e.Source.PageWeight(i)
	if err != nil {
		// the copy will fail too; the reassembler falls back to a raster
		return keep
	}
	plan, err := e.Rewriter.RasterPlan(i, meta, nil, p)
	if err != nil {
		log.Debug().Err(err).Int("page", i).Msg("smart raster failed, keeping original")
		return keep
	}
	if size := assetBytes(plan); size < weight {
		log.Debug().Int("page", i).Int64("copy", weight).Int64("raster", size).Msg("page escalated to raster")
		return plan
	}
	return keep
}

func assetBytes(plan model.PagePlan) int64 {
	var n int64
	for _, a := range plan.Assets {
		n += int64(len(a.Data))
	}
	return n
}

func (e *Executor) write(ctx context.Context, out string, plans []model.PagePlan, p model.OptimizationProfile) (reassemble.Stats, error) {
	f, err := os.Create(out)
	if err != nil {
		return reassemble.Stats{}, model.ProcessingError("rebuild", fmt.Errorf("%w: %v", model.ErrWrite, err))
	}
	r := reassemble.New(e.Source)
	r.Fallback = func(ctx context.Context, i int) (model.PagePlan, error) {
		if err := ctx.Err(); err != nil {
			return model.PagePlan{}, err
		}
		meta := e.Meta[i]
		meta.Index = i
		plan, err := e.Rewriter.RasterPlan(i, meta, nil, p)
		if err == nil {
			plan.Route = rewrite.RouteFallback
		}
		return plan, err
	}
	st, err := r.Write(ctx, f, plans, e.Source.PageCount())
	if cerr := f.Close(); err == nil && cerr != nil {
		err = model.ProcessingError("rebuild", fmt.Errorf("%w: %v", model.ErrWrite, cerr))
	}
	return st, err
}

// postPass runs pdfcpu's optimizer over path and keeps its output when it
// is smaller. Failures leave path untouched.
func postPass(path string) (int64, bool) {
	tmp := path + ".opt"
	defer os.Remove(tmp)
	if err := api.OptimizeFile(path, tmp, pdfdoc.NewConfiguration()); err != nil {
		log.Debug().Err(err).Msg("optimize post-pass failed")
		return 0, false
	}
	before, err1 := os.Stat(path)
	after, err2 := os.Stat(tmp)
	if err1 != nil || err2 != nil || after.Size() >= before.Size() {
		return 0, false
	}
	if err := os.Rename(tmp, path); err != nil {
		return 0, false
	}
	return after.Size(), true
}

// batches calls fn for every index in parallel groups of size, checking ctx
// between groups.
func batches(ctx context.Context, n, size int, fn func(i int), progress func(done, total int)) error {
	if size <= 0 {
		size = 4
	}
	for start := 0; start < n; start += size {
		if err := ctx.Err(); err != nil {
			return model.ResourceError("rebuild", err)
		}
		end := min(start+size, n)
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				fn(i)
			}(i)
		}
		wg.Wait()
		if progress != nil {
			progress(end, n)
		}
		runtime.Gosched()
	}
	if err := ctx.Err(); err != nil {
		return model.ResourceError("rebuild", err)
	}
	return nil
}
