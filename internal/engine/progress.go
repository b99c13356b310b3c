package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/docshrink/internal/store"
)

// ProgressFunc receives non-decreasing progress in [0,1] and a stage label.
// It may be called from worker goroutines, never concurrently.
type ProgressFunc func(fraction float64, stage string)

// Stage labels.
const (
	StageAnalyzing  = "analyzing"
	StageRewriting  = "rewriting"
	StageEncoding   = "encoding"
	StageValidating = "validating"
	StageFinishing  = "finishing"
	StageDone       = "done"
)

const statusPushEvery = 250 * time.Millisecond

// tracker clamps progress so it never goes backwards and mirrors it to the
// status sink at a bounded rate.
type tracker struct {
	mu       sync.Mutex
	last     float64
	stage    string
	fn       ProgressFunc
	sink     StatusSink
	jobID    string
	start    time.Time
	lastPush time.Time
}

func newTracker(fn ProgressFunc, sink StatusSink, jobID string) *tracker {
	return &tracker{fn: fn, sink: sink, jobID: jobID, start: time.Now()}
}

func (t *tracker) report(f float64, stage string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if f < t.last {
		f = t.last
	}
	if f > 1 {
		f = 1
	}
	changed := stage != t.stage
	t.last, t.stage = f, stage
	if t.fn != nil {
		t.fn(f, stage)
	}
	if t.sink != nil && (changed || time.Since(t.lastPush) >= statusPushEvery) {
		t.lastPush = time.Now()
		t.push("running", "", nil)
	}
}

// span maps done/total into [lo,hi].
func (t *tracker) span(lo, hi float64, stage string) func(done, total int) {
	return func(done, total int) {
		if total <= 0 {
			return
		}
		t.report(lo+(hi-lo)*float64(done)/float64(total), stage)
	}
}

// finish pushes the terminal status regardless of throttling.
func (t *tracker) finish(status, message string, meta map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if status == "success" || status == "skipped" {
		t.last, t.stage = 1, StageDone
		if t.fn != nil {
			t.fn(1, StageDone)
		}
	}
	if t.sink != nil {
		t.push(status, message, meta)
	}
}

func (t *tracker) push(status, message string, meta map[string]any) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st := store.Status{
		Status:   status,
		Stage:    t.stage,
		Progress: t.last,
		Message:  message,
		Start:    &t.start,
		Metadata: meta,
	}
	if status != "running" {
		end := time.Now()
		st.End = &end
	}
	if err := t.sink.Set(ctx, t.jobID, st); err != nil {
		log.Warn().Err(err).Str("job_id", t.jobID).Msg("status update failed")
	}
}

// attemptSpan is the progress window of a 1-based attempt; retries squeeze
// into what is left so progress never has to go back.
func attemptSpan(attempt int) (lo, hi float64) {
	switch attempt {
	case 1:
		return 0.3, 0.8
	case 2:
		return 0.8, 0.9
	default:
		return 0.9, 0.95
	}
}
