// Package engine is the entry point for shrinking files: it analyses,
// picks a strategy, runs attempts under the retry orchestrator and commits
// the output atomically.
package engine

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/local/docshrink/internal/config"
	"github.com/local/docshrink/internal/filetype"
	"github.com/local/docshrink/internal/imageproc"
	"github.com/local/docshrink/internal/limiter"
	"github.com/local/docshrink/internal/model"
	"github.com/local/docshrink/internal/mupdf"
	"github.com/local/docshrink/internal/preflight"
	"github.com/local/docshrink/internal/storage"
	"github.com/local/docshrink/internal/store"
)

// Raster is a page rasterizer bound to one opened document.
type Raster interface {
	model.PageRasterizer
	Close() error
}

// RasterOpener opens path with up to handles concurrent native handles.
type RasterOpener func(path string, handles int) (Raster, error)

// StatusSink mirrors job status and answers cancel requests.
type StatusSink interface {
	Set(ctx context.Context, jobID string, st store.Status) error
	IsCancelled(ctx context.Context, jobID string) (bool, error)
}

// HistorySink persists finished jobs.
type HistorySink interface {
	Record(r model.JobResult) error
}

// Options wires an Engine. Only Config is required.
type Options struct {
	Config config.EngineConfig
	// Encoder is used for lossy image and page encodes; JPEG by default.
	Encoder    model.StillImageEncoder
	Detector   model.TextDetector
	OpenRaster RasterOpener
	Backup     storage.Backup
	Status     StatusSink
	History    HistorySink
	// PollInterval is how often Status is asked about cancellation.
	PollInterval time.Duration
}

// Engine is safe for concurrent use; it holds no per-job state.
type Engine struct {
	cfg        config.EngineConfig
	encoder    model.StillImageEncoder
	detector   model.TextDetector
	openRaster RasterOpener
	backup     storage.Backup
	status     StatusSink
	history    HistorySink
	poll       time.Duration
	types      *filetype.Detector
	preflight  *preflight.Estimator
	pools      *limiter.Limiter
}

func New(opts Options) *Engine {
	cfg := opts.Config
	if cfg.PageBatchSize <= 0 {
		cfg.PageBatchSize = 4
	}
	if cfg.TextThreshold <= 0 {
		cfg.TextThreshold = 50
	}
	if cfg.RasterHandles <= 0 {
		cfg.RasterHandles = 2
	}
	if cfg.Profile == "" {
		cfg.Profile = model.DefaultProfile
	}
	e := &Engine{
		cfg:        cfg,
		encoder:    opts.Encoder,
		detector:   opts.Detector,
		openRaster: opts.OpenRaster,
		backup:     opts.Backup,
		status:     opts.Status,
		history:    opts.History,
		poll:       opts.PollInterval,
		types:      filetype.New(),
		preflight:  preflight.New(),
		pools: limiter.New(map[string]int{
			"document": max(cfg.DocumentWorkers, 1),
			"image":    max(cfg.ImageWorkers, 1),
		}, 1),
	}
	if e.encoder == nil {
		e.encoder = imageproc.JPEGEncoder{}
	}
	if e.openRaster == nil {
		e.openRaster = func(path string, handles int) (Raster, error) {
			d, err := mupdf.Open(path, handles)
			if err != nil {
				return nil, err
			}
			return d, nil
		}
	}
	if e.backup == nil {
		dir := cfg.TempDir
		if dir == "" {
			dir = os.TempDir()
		}
		e.backup = storage.NewLocalBackup(filepath.Join(dir, "docshrink-backup"))
	}
	if e.poll <= 0 {
		e.poll = 500 * time.Millisecond
	}
	return e
}

// Analyze returns the preflight report for path without touching it.
func (e *Engine) Analyze(ctx context.Context, path string) (model.PreflightReport, error) {
	return e.preflight.Estimate(ctx, path)
}
