package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/local/docshrink/internal/filetype"
	"github.com/local/docshrink/internal/imageproc"
	"github.com/local/docshrink/internal/metrics"
	"github.com/local/docshrink/internal/model"
	"github.com/local/docshrink/internal/rebuild"
	"github.com/local/docshrink/internal/validate"
)

// optimizeImage decodes once and re-encodes per attempt. PNG stays PNG at
// best compression; every other still image is written with the engine's
// lossy encoder.
func (e *Engine) optimizeImage(ctx context.Context, j *job) (validate.Result, error) {
	stage := metrics.StageTimer("decode")
	img, err := imageproc.DecodeFile(j.input)
	stage()
	if err != nil {
		return validate.Result{}, model.InputError("decode", err)
	}
	j.track.report(0.3, StageAnalyzing)
	j.to(rebuild.StateStrategizing)

	proc := &imageproc.Processor{Encoder: e.encoder}
	ext := ".jpg"
	lossless := j.kind == filetype.KindPNG
	if lossless {
		proc.Encoder = imageproc.PNGEncoder{}
		ext = ".png"
	}

	orch := validate.NewOrchestrator(e.cfg.ImageMaxRetries)
	orch.OnRetry = func(next model.CompressionConfig, why validate.Outcome) {
		j.to(rebuild.StateRetrying)
		metrics.IncRetry("image")
	}
	dir := filepath.Dir(j.output)

	attempt := func(ctx context.Context, cfg model.CompressionConfig) (validate.Artifact, error) {
		if err := ctx.Err(); err != nil {
			return validate.Artifact{}, model.ResourceError("encode", err)
		}
		if j.machine.State() == rebuild.StateRetrying {
			j.to(rebuild.StateStrategizing)
		}
		j.to(rebuild.StateExecuting)
		lo, hi := attemptSpan(cfg.Attempt)
		j.track.report(lo, StageEncoding)

		prof := cfg.Profile
		if lossless {
			prof.QualityFloor = prof.Quality
		}
		stage := metrics.StageTimer("encode")
		enc, err := proc.Shrink(img, 1, prof)
		stage()
		if err != nil {
			return validate.Artifact{}, model.ProcessingError("encode", fmt.Errorf("%w: %v", model.ErrEncode, err))
		}
		if err := ctx.Err(); err != nil {
			return validate.Artifact{}, model.ResourceError("encode", err)
		}

		tmp, err := newTemp(dir, ext)
		if err != nil {
			return validate.Artifact{}, model.ProcessingError("temp", fmt.Errorf("%w: %v", model.ErrWrite, err))
		}
		if err := os.WriteFile(tmp, enc.Data, 0o644); err != nil {
			return validate.Artifact{Path: tmp}, model.ProcessingError("write", fmt.Errorf("%w: %v", model.ErrWrite, err))
		}
		j.to(rebuild.StateValidating)
		j.track.report(hi, StageValidating)
		return validate.Artifact{
			Path:     tmp,
			Size:     int64(len(enc.Data)),
			Codec:    enc.Codec,
			Width:    enc.Width,
			Height:   enc.Height,
			Strategy: "image",
		}, nil
	}

	return orch.Run(ctx, j.size, model.CompressionConfig{Profile: j.profile, Attempt: 1}, attempt)
}
