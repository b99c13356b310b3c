package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/local/docshrink/internal/filetype"
	"github.com/local/docshrink/internal/logger"
	"github.com/local/docshrink/internal/metrics"
	"github.com/local/docshrink/internal/model"
	"github.com/local/docshrink/internal/rebuild"
	"github.com/local/docshrink/internal/validate"
)

// Request describes one file to shrink.
type Request struct {
	Input string
	// Output defaults to Input, which rewrites the file in place after the
	// original has been backed up.
	Output  string
	Profile string
	// Mode forces a rebuild mode for documents; empty follows the profile.
	Mode model.RebuildMode
	// Strict fails a document job on the first page that cannot be rewritten
	// instead of keeping that page as it was.
	Strict   bool
	JobID    string
	Progress ProgressFunc
}

// job is the per-request state shared by the document and image paths.
type job struct {
	id      string
	input   string
	output  string
	inPlace bool
	kind    filetype.Kind
	size    int64
	profile model.OptimizationProfile
	mode    model.RebuildMode
	strict  bool
	machine *rebuild.Machine
	track   *tracker
	log     zerolog.Logger
}

// retag rebuilds the job logger once kind, profile and mode are known.
func (j *job) retag() {
	j.log = logger.ForJob(logger.Job{
		ID:      j.id,
		File:    j.input,
		Kind:    string(j.kind),
		Profile: j.profile.Name,
		Mode:    string(j.mode),
	})
}

// to moves the lifecycle forward; an illegal move is a bug, not a job error.
func (j *job) to(s rebuild.State) {
	if err := j.machine.To(s); err != nil {
		j.log.Warn().Err(err).Msg("lifecycle")
	}
}

// Optimize runs one job to a terminal state. It never returns a partial
// output: on anything but success no file is left at the output path that
// was not there before.
func (e *Engine) Optimize(ctx context.Context, req Request) model.JobResult {
	start := time.Now()
	if req.JobID == "" {
		req.JobID = uuid.NewString()
	}
	j := &job{
		id:      req.JobID,
		input:   req.Input,
		output:  req.Output,
		strict:  req.Strict,
		machine: rebuild.NewMachine(),
		track:   newTracker(req.Progress, e.status, req.JobID),
		log:     logger.ForJob(logger.Job{ID: req.JobID, File: req.Input}),
	}
	j.machine.OnChange = func(from, to rebuild.State) {
		j.log.Debug().Str("from", string(from)).Str("to", string(to)).Msg("job state")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if e.status != nil {
		go e.watchCancel(ctx, cancel, j.id)
	}

	res, err := e.run(ctx, j, req)
	return e.finish(j, res, err, time.Since(start))
}

func (e *Engine) run(ctx context.Context, j *job, req Request) (validate.Result, error) {
	j.to(rebuild.StateAnalyzing)
	j.track.report(0, StageAnalyzing)

	fi, err := os.Stat(j.input)
	if err != nil {
		return validate.Result{}, model.InputError("stat", fmt.Errorf("%w: %v", model.ErrUnreadable, err))
	}
	if fi.IsDir() {
		return validate.Result{}, model.InputError("stat", fmt.Errorf("%w: %s is a directory", model.ErrUnreadable, j.input))
	}
	j.size = fi.Size()

	info, err := e.types.Detect(j.input)
	if err != nil {
		return validate.Result{}, model.InputError("detect", fmt.Errorf("%w: %v", model.ErrUnreadable, err))
	}
	j.kind = info.Kind
	if !info.Supported {
		return validate.Result{}, model.InputError("detect", fmt.Errorf("%w: %s", model.ErrUnsupportedType, info.MIMEType))
	}

	name := req.Profile
	if name == "" {
		name = e.cfg.Profile
	}
	prof, err := model.Profile(name)
	if err != nil {
		return validate.Result{}, err
	}
	j.profile = prof.Normalize()
	j.mode = req.Mode
	if j.mode == "" {
		j.mode = j.profile.RebuildMode
	}

	if j.output == "" {
		j.output = j.input
	}
	j.inPlace = samePath(j.input, j.output)
	if j.kind == filetype.KindWebP {
		if err := j.retargetWebP(); err != nil {
			return validate.Result{}, err
		}
	}

	release, err := e.pools.Acquire(ctx, j.kind.Class())
	if err != nil {
		return validate.Result{}, model.ResourceError("queue", err)
	}
	defer release()
	defer metrics.TrackActive(j.kind.Class())()

	j.retag()
	j.log.Info().Int64("size", j.size).Str("output", j.output).Msg("job started")

	var res validate.Result
	if j.kind.IsImage() {
		res, err = e.optimizeImage(ctx, j)
	} else {
		res, err = e.optimizeDocument(ctx, j)
	}
	if err != nil || res.Status != model.StatusSuccess {
		return res, err
	}

	j.track.report(0.95, StageFinishing)
	if err := e.commit(ctx, j, res.Artifact); err != nil {
		discardTemp(res.Artifact.Path)
		return res, err
	}
	return res, nil
}

// commit backs the original up when it is about to be replaced, then moves
// the artifact into place.
func (e *Engine) commit(ctx context.Context, j *job, art validate.Artifact) error {
	if err := ctx.Err(); err != nil {
		return model.ResourceError("commit", err)
	}
	if j.inPlace && e.backup != nil {
		f, err := os.Open(j.input)
		if err != nil {
			return model.InputError("backup", fmt.Errorf("%w: %v", model.ErrUnreadable, err))
		}
		ref, err := e.backup.Save(ctx, j.id, filepath.Base(j.input), f)
		f.Close()
		if err != nil {
			return model.ProcessingError("backup", fmt.Errorf("%w: %v", model.ErrWrite, err))
		}
		j.log.Debug().Str("location", ref.Location).Int64("bytes", ref.Size).Msg("original backed up")
	}
	if err := os.Rename(art.Path, j.output); err != nil {
		return model.ProcessingError("commit", fmt.Errorf("%w: %v", model.ErrWrite, err))
	}
	if j.inPlace && !samePath(j.input, j.output) {
		// the replacement landed under a new extension
		if err := os.Remove(j.input); err != nil {
			j.log.Warn().Err(err).Msg("original left next to its replacement")
		}
	}
	return nil
}

// retargetWebP gives WebP output, which is written as JPEG, a .jpg name when
// it would otherwise keep a .webp one. An in-place run replaces name.webp with
// name.jpg and refuses to clobber an unrelated name.jpg.
func (j *job) retargetWebP() error {
	ext := filepath.Ext(j.output)
	if !strings.EqualFold(ext, ".webp") {
		return nil
	}
	target := strings.TrimSuffix(j.output, ext) + ".jpg"
	if j.inPlace {
		if _, err := os.Stat(target); err == nil {
			return model.ProcessingError("output", fmt.Errorf("%w: %s already exists", model.ErrWrite, target))
		}
	}
	j.log.Debug().Str("output", target).Msg("webp re-encoded as jpeg, output renamed")
	j.output = target
	return nil
}

// finish turns the orchestrator verdict or the error into the job result
// and publishes it to metrics, history and the status sink.
func (e *Engine) finish(j *job, res validate.Result, err error, took time.Duration) model.JobResult {
	out := model.JobResult{
		JobID:     j.id,
		Input:     j.input,
		Kind:      string(j.kind),
		InputSize: j.size,
		Duration:  took,
		Diagnostics: model.Diagnostics{
			RetryCount: res.RetryCount,
			Strategy:   res.Artifact.Strategy,
			Outcome:    string(res.Outcome.Kind),
		},
	}
	switch {
	case err != nil && model.IsCancelled(err):
		out.Status = model.StatusCancelled
		out.Err = err
		j.to(rebuild.StateCancelled)
	case err != nil:
		out.Status = model.StatusFailed
		out.Err = err
		out.Reason = model.KindOf(err).String()
		j.to(rebuild.StateFailed)
	case res.Status == model.StatusSuccess:
		out.Status = model.StatusSuccess
		out.Output = j.output
		out.OutputSize = res.Artifact.Size
		out.Diagnostics.Codec = res.Artifact.Codec
		out.Diagnostics.Width = res.Artifact.Width
		out.Diagnostics.Height = res.Artifact.Height
		out.Diagnostics.PageCount = res.Artifact.Pages
		out.Diagnostics.Routes = res.Artifact.Routes
		out.Diagnostics.Strategy = res.Artifact.Strategy
		j.to(rebuild.StateSuccess)
	default:
		out.Status = model.StatusSkipped
		out.Reason = res.Reason
		out.OutputSize = j.size
		out.Diagnostics.Strategy = string(res.Config.Mode)
		j.to(rebuild.StateSkipped)
	}
	out.Message = model.UserMessage(out.Status, err)

	class := "unknown"
	if j.kind != "" {
		class = j.kind.Class()
	}
	metrics.ObserveJob(class, string(out.Status), out.InputSize, out.OutputSize)
	for route, n := range out.Diagnostics.Routes {
		for i := 0; i < n; i++ {
			metrics.IncRoute(route)
		}
	}
	if e.history != nil {
		if herr := e.history.Record(out); herr != nil {
			j.log.Warn().Err(herr).Msg("history record failed")
		}
	}
	j.track.finish(string(out.Status), out.Message, map[string]any{
		"input_size":  out.InputSize,
		"output_size": out.OutputSize,
		"retry_count": out.Diagnostics.RetryCount,
		"strategy":    out.Diagnostics.Strategy,
	})

	ev := j.log.Info()
	if out.Status == model.StatusFailed {
		ev = j.log.Error().Err(err)
	}
	ev.Str("status", string(out.Status)).Str("reason", out.Reason).
		Int64("input_size", out.InputSize).Int64("output_size", out.OutputSize).
		Int("retries", out.Diagnostics.RetryCount).Dur("took", took).Msg("job finished")
	return out
}

func samePath(a, b string) bool {
	if a == b {
		return true
	}
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	if err1 != nil || err2 != nil {
		return false
	}
	if aa == bb {
		return true
	}
	fa, err1 := os.Stat(aa)
	fb, err2 := os.Stat(bb)
	return err1 == nil && err2 == nil && os.SameFile(fa, fb)
}

func discardTemp(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Get().Warn().Err(err).Str("file", path).Msg("failed to remove temp output")
	}
}
