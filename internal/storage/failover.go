package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Breaker is an in-process circuit breaker. Each failure while closed opens
// it for an exponentially growing cooldown; after the cooldown one trial call is
// let through (half-open) and a success closes it again.
type Breaker struct {
	mu          sync.Mutex
	baseBackoff time.Duration
	maxBackoff  time.Duration
	failures    int
	retryAt     time.Time
	now         func() time.Time
}

func NewBreaker(baseBackoff, maxBackoff time.Duration) *Breaker {
	return &Breaker{baseBackoff: baseBackoff, maxBackoff: maxBackoff, now: time.Now}
}

// Open records a failure and starts the cooldown: base, 2x base, ... up to max.
func (b *Breaker) Open() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	backoff := b.baseBackoff
	for i := 1; i < b.failures; i++ {
		backoff *= 2
		if backoff > b.maxBackoff {
			backoff = b.maxBackoff
			break
		}
	}
	b.retryAt = b.now().Add(backoff)
	return backoff
}

// IsOpen reports whether calls should be skipped right now.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures > 0 && b.now().Before(b.retryAt)
}

// Close resets the breaker after a success.
func (b *Breaker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures > 0 {
		log.Info().Int("failures", b.failures).Msg("backup circuit breaker CLOSED (reset)")
	}
	b.failures = 0
	b.retryAt = time.Time{}
}

// FailoverBackup writes to Primary and falls back to Secondary when Primary
// fails or its breaker is open.
type FailoverBackup struct {
	Primary   Backup
	Secondary Backup
	breaker   *Breaker
}

func NewFailoverBackup(primary, secondary Backup) *FailoverBackup {
	return &FailoverBackup{
		Primary:   primary,
		Secondary: secondary,
		breaker:   NewBreaker(30*time.Second, 5*time.Minute),
	}
}

func (f *FailoverBackup) Save(ctx context.Context, jobID, name string, r io.Reader) (Ref, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Ref{}, fmt.Errorf("read original: %w", err)
	}
	if !f.breaker.IsOpen() {
		ref, err := f.Primary.Save(ctx, jobID, name, bytes.NewReader(data))
		if err == nil {
			f.breaker.Close()
			return ref, nil
		}
		if ctx.Err() != nil {
			return Ref{}, err
		}
		cooldown := f.breaker.Open()
		log.Warn().Err(err).Str("job_id", jobID).Dur("cooldown", cooldown).
			Msg("primary backup failed, circuit breaker OPENED")
	}
	return f.Secondary.Save(ctx, jobID, name, bytes.NewReader(data))
}

// Restore reads from whichever backend the ref points at.
func (f *FailoverBackup) Restore(ctx context.Context, ref Ref, w io.Writer) error {
	if strings.HasPrefix(ref.Location, "s3://") {
		return f.Primary.Restore(ctx, ref, w)
	}
	return f.Secondary.Restore(ctx, ref, w)
}
