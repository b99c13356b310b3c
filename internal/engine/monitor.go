package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// watchCancel polls the status sink for an external cancel request and
// cancels the job context when one arrives.
func (e *Engine) watchCancel(ctx context.Context, cancel context.CancelFunc, jobID string) {
	ticker := time.NewTicker(e.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			qctx, qcancel := context.WithTimeout(ctx, time.Second)
			cancelled, err := e.status.IsCancelled(qctx, jobID)
			qcancel()
			if err != nil {
				log.Debug().Err(err).Str("job_id", jobID).Msg("cancel check failed")
				continue
			}
			if cancelled {
				log.Info().Str("job_id", jobID).Msg("job cancelled (detected via status store)")
				cancel()
				return
			}
		}
	}
}
