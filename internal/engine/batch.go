package engine

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/local/docshrink/internal/model"
)

// OptimizeBatch runs every request under the per-kind pools and returns the
// results in request order.
func (e *Engine) OptimizeBatch(ctx context.Context, reqs []Request) []model.JobResult {
	results := make([]model.JobResult, len(reqs))
	var wg sync.WaitGroup
	for i := range reqs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = e.Optimize(ctx, reqs[i])
		}(i)
	}
	wg.Wait()

	var stats model.CompressionStatistics
	for _, r := range results {
		stats.Add(r)
	}
	log.Info().Int("jobs", stats.Jobs).Int("succeeded", stats.Succeeded).Int("skipped", stats.Skipped).
		Int("failed", stats.Failed).Int("cancelled", stats.Cancelled).Int64("saved_bytes", stats.SavedBytes).
		Msg("batch finished")
	return results
}
