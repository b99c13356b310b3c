package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/local/docshrink/internal/imageproc"
	"github.com/local/docshrink/internal/metrics"
	"github.com/local/docshrink/internal/model"
	"github.com/local/docshrink/internal/pdfdoc"
	"github.com/local/docshrink/internal/rebuild"
	"github.com/local/docshrink/internal/rewrite"
	"github.com/local/docshrink/internal/scanner"
	"github.com/local/docshrink/internal/segment"
	"github.com/local/docshrink/internal/validate"
)

func (e *Engine) optimizeDocument(ctx context.Context, j *job) (validate.Result, error) {
	src, err := pdfdoc.Open(j.input)
	if err != nil {
		return validate.Result{}, err
	}
	raster, err := e.openRaster(j.input, e.cfg.RasterHandles)
	if err != nil {
		return validate.Result{}, err
	}
	defer raster.Close()

	stage := metrics.StageTimer("scan")
	meta, err := scanner.New(e.cfg.TextThreshold).Scan(ctx, src, raster)
	stage()
	if err != nil {
		return validate.Result{}, err
	}
	j.track.report(0.1, StageAnalyzing)

	signals := rebuild.Signals{EmbeddedFonts: src.HasEmbeddedFonts(), Pages: src.PageCount()}
	if st, err := pdfdoc.ScanStructureFile(j.input); err != nil {
		j.log.Warn().Err(err).Msg("structure scan failed, assuming a clean file")
	} else {
		signals.IncrementalUpdates = st.IncrementalUpdates
		if st.Linearized {
			j.log.Debug().Int("eof_markers", st.EOFMarkers).Msg("linearized file, first-page xref is not an update")
		}
	}

	j.to(rebuild.StateStrategizing)
	mode := rebuild.Resolve(j.mode, signals)
	if mode != j.mode {
		j.mode = mode
		j.retag()
	}
	j.log.Info().Str("mode", string(mode)).Int("updates", signals.IncrementalUpdates).
		Bool("fonts", signals.EmbeddedFonts).Int("pages", signals.Pages).Msg("rebuild strategy chosen")

	var segs map[int]model.PageSegmentation
	if mode == model.ModeHybrid {
		analyzer := segment.New(segment.Options{
			MaxPixel:      e.cfg.AnalysisMaxPixel,
			TextThreshold: e.cfg.TextThreshold,
			BatchSize:     e.cfg.PageBatchSize,
			SampleCap:     e.cfg.SampleCap,
			TileRows:      e.cfg.TileRows,
			TileCols:      e.cfg.TileCols,
		}, e.detector)
		opts := analyzer.Options()
		pages := segment.SamplePages(src.PageCount(), meta, opts.TextThreshold, opts.SampleCap, j.profile.FullScan)
		stage := metrics.StageTimer("segment")
		segs, err = analyzer.Analyze(ctx, raster, pages, meta, j.track.span(0.1, 0.3, StageAnalyzing))
		stage()
		if err != nil {
			return validate.Result{}, err
		}
	}
	j.track.report(0.3, StageAnalyzing)

	rw := rewrite.New(raster, &imageproc.Processor{Encoder: e.encoder}, e.cfg.TextThreshold)
	orch := validate.NewOrchestrator(e.cfg.DocumentMaxRetries)
	orch.OnRetry = func(next model.CompressionConfig, why validate.Outcome) {
		j.to(rebuild.StateRetrying)
		metrics.IncRetry("document")
	}
	dir := filepath.Dir(j.output)

	attempt := func(ctx context.Context, cfg model.CompressionConfig) (validate.Artifact, error) {
		if j.machine.State() == rebuild.StateRetrying {
			j.to(rebuild.StateStrategizing)
		}
		j.to(rebuild.StateExecuting)
		lo, hi := attemptSpan(cfg.Attempt)
		j.track.report(lo, StageRewriting)

		tmp, err := newTemp(dir, ".pdf")
		if err != nil {
			return validate.Artifact{}, model.ProcessingError("temp", fmt.Errorf("%w: %v", model.ErrWrite, err))
		}
		ex := &rebuild.Executor{
			Source:    src,
			Rewriter:  rw,
			Meta:      meta,
			Segments:  segs,
			BatchSize: e.cfg.PageBatchSize,
			Strict:    j.strict,
			Progress:  j.track.span(lo, hi, StageRewriting),
		}
		stage := metrics.StageTimer("rebuild_" + string(cfg.Mode))
		rep, err := ex.Run(ctx, cfg.Mode, cfg.Profile, tmp)
		stage()
		if err != nil {
			return validate.Artifact{Path: tmp}, err
		}
		fi, err := os.Stat(tmp)
		if err != nil {
			return validate.Artifact{Path: tmp}, model.ProcessingError("stat", fmt.Errorf("%w: %v", model.ErrWrite, err))
		}
		j.to(rebuild.StateValidating)
		j.track.report(hi, StageValidating)
		return validate.Artifact{
			Path:     tmp,
			Size:     fi.Size(),
			Codec:    "pdf",
			Pages:    rep.Pages,
			Routes:   rep.Routes,
			Strategy: string(rep.Mode),
		}, nil
	}

	return orch.Run(ctx, j.size, model.CompressionConfig{Profile: j.profile, Mode: mode, Attempt: 1}, attempt)
}
