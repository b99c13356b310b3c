package validate

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/local/docshrink/internal/model"
)

// Retry ceiling bounds.
const (
	MinRetries = 1
	MaxRetries = 2
)

// Artifact is what one attempt wrote.
type Artifact struct {
	Path   string
	Size   int64
	Codec  string
	Width  int
	Height int
	Pages  int
	Routes map[string]int
	// Strategy names the rebuild mode or image path used.
	Strategy string
}

// AttemptFunc executes one attempt with cfg and returns its artifact.
// Errors abort the run; they are never retried.
type AttemptFunc func(ctx context.Context, cfg model.CompressionConfig) (Artifact, error)

// Result is the orchestrator's verdict on the whole job.
type Result struct {
	Status     model.Status
	Reason     string
	Outcome    Outcome
	Artifact   Artifact
	RetryCount int
	Config     model.CompressionConfig
}

// Orchestrator runs attempts, escalating the configuration until one is
// worth keeping or the retry ceiling is reached.
type Orchestrator struct {
	Policy     Policy
	MaxRetries int
	// OnRetry, if set, is called before every escalated attempt.
	OnRetry func(next model.CompressionConfig, why Outcome)
}

func NewOrchestrator(maxRetries int) *Orchestrator {
	return &Orchestrator{Policy: DefaultPolicy(), MaxRetries: maxRetries}
}

func (o *Orchestrator) retries() int {
	return min(max(o.MaxRetries, MinRetries), MaxRetries)
}

// Run starts from cfg. Artifacts of rejected attempts are removed; on skip
// no artifact remains. Errors from attempt, including cancellation, are
// returned as is and leave no artifact behind.
func (o *Orchestrator) Run(ctx context.Context, original int64, cfg model.CompressionConfig, attempt AttemptFunc) (Result, error) {
	if o.Policy == (Policy{}) {
		o.Policy = DefaultPolicy()
	}
	if cfg.Attempt == 0 {
		cfg.Attempt = 1
	}
	limit := o.retries()
	var last Outcome
	for retry := 0; ; retry++ {
		if err := ctx.Err(); err != nil {
			return Result{RetryCount: retry, Config: cfg}, model.ResourceError("validate", err)
		}
		art, err := attempt(ctx, cfg)
		if err != nil {
			discard(art)
			return Result{RetryCount: retry, Config: cfg}, err
		}
		last = o.Policy.Validate(original, art.Size, cfg.Attempt)
		log.Debug().Int("attempt", cfg.Attempt).Str("outcome", string(last.Kind)).
			Int64("original", original).Int64("output", art.Size).Msg("attempt validated")
		if last.Success() {
			return Result{
				Status:     model.StatusSuccess,
				Outcome:    last,
				Artifact:   art,
				RetryCount: retry,
				Config:     cfg,
			}, nil
		}
		discard(art)
		if retry >= limit {
			return Result{
				Status:     model.StatusSkipped,
				Reason:     model.ReasonAlreadyOptimized,
				Outcome:    last,
				RetryCount: retry,
				Config:     cfg,
			}, nil
		}
		next := cfg.Escalate()
		if o.OnRetry != nil {
			o.OnRetry(next, last)
		}
		log.Info().Int("attempt", next.Attempt).Str("reason", last.Reason).
			Int("quality", next.Profile.Quality).Float64("dpi", next.Profile.TargetDPI).
			Str("mode", string(next.Mode)).Msg("retrying with escalated settings")
		cfg = next
	}
}

func discard(a Artifact) {
	if a.Path == "" {
		return
	}
	if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("file", a.Path).Msg("failed to remove rejected artifact")
	}
}
