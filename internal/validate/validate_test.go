package validate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/local/docshrink/internal/model"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name           string
		orig, out      int64
		want           OutcomeKind
		wantSavedBytes int64
	}{
		{"big saving", 1000, 500, Valid, 500},
		{"marginal", 1000, 970, Marginal, 30},
		{"below floor", 1000, 995, NeedsRetry, 0},
		{"grew", 1000, 1200, NeedsRetry, 0},
		{"equal", 1000, 1000, NeedsRetry, 0},
		{"tiny file one byte", 10, 9, Valid, 1},
		{"no output", 1000, 0, NeedsRetry, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Validate(tc.orig, tc.out, 1)
			if got.Kind != tc.want || got.SavedBytes != tc.wantSavedBytes {
				t.Fatalf("Validate(%d, %d) = %+v", tc.orig, tc.out, got)
			}
			if got.Kind == NeedsRetry && got.Reason == "" {
				t.Fatal("retry without reason")
			}
		})
	}
}

func TestFloor(t *testing.T) {
	p := DefaultPolicy()
	if p.Floor(10) != 1 || p.Floor(1_000_000) != 10_000 {
		t.Fatalf("floor(10)=%d floor(1e6)=%d", p.Floor(10), p.Floor(1_000_000))
	}
}

func writeArtifact(t *testing.T, dir string, n int, size int64) Artifact {
	t.Helper()
	path := filepath.Join(dir, "attempt"+string(rune('0'+n)))
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
	return Artifact{Path: path, Size: size}
}

func TestRunSucceedsAfterRetry(t *testing.T) {
	dir := t.TempDir()
	sizes := []int64{1000, 600}
	var cfgs []model.CompressionConfig
	var arts []Artifact
	o := NewOrchestrator(2)
	res, err := o.Run(context.Background(), 1000, model.CompressionConfig{Profile: model.OptimizationProfile{Quality: 80, QualityFloor: 30, TargetDPI: 150, MaxPixelDim: 2400}, Mode: model.ModeSafe},
		func(_ context.Context, cfg model.CompressionConfig) (Artifact, error) {
			cfgs = append(cfgs, cfg)
			a := writeArtifact(t, dir, len(arts), sizes[len(arts)])
			arts = append(arts, a)
			return a, nil
		})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != model.StatusSuccess || res.RetryCount != 1 || res.Outcome.SavedBytes != 400 {
		t.Fatalf("result = %+v", res)
	}
	if _, err := os.Stat(arts[0].Path); !os.IsNotExist(err) {
		t.Fatal("rejected artifact left behind")
	}
	if _, err := os.Stat(res.Artifact.Path); err != nil {
		t.Fatal("kept artifact missing")
	}
	if cfgs[1].Attempt != 2 || cfgs[1].Profile.Quality > cfgs[0].Profile.Quality ||
		cfgs[1].Profile.TargetDPI > cfgs[0].Profile.TargetDPI || cfgs[1].Mode != model.ModeSmart {
		t.Fatalf("escalation not monotonic: %+v -> %+v", cfgs[0], cfgs[1])
	}
}

func TestRunExhaustedIsSkipped(t *testing.T) {
	dir := t.TempDir()
	calls := 0
	o := NewOrchestrator(1)
	res, err := o.Run(context.Background(), 1000, model.CompressionConfig{}, func(context.Context, model.CompressionConfig) (Artifact, error) {
		calls++
		return writeArtifact(t, dir, calls, 1000), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != model.StatusSkipped || res.Reason != model.ReasonAlreadyOptimized || res.RetryCount != 1 || calls != 2 {
		t.Fatalf("result = %+v, calls = %d", res, calls)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("artifacts left: %d", len(entries))
	}
}

func TestRetryCeilingIsClamped(t *testing.T) {
	for _, tc := range []struct{ in, want int }{{0, 1}, {1, 1}, {2, 2}, {9, 2}} {
		calls := 0
		o := NewOrchestrator(tc.in)
		_, err := o.Run(context.Background(), 100, model.CompressionConfig{}, func(context.Context, model.CompressionConfig) (Artifact, error) {
			calls++
			return Artifact{Size: 100}, nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if calls != tc.want+1 {
			t.Errorf("MaxRetries %d: %d attempts, want %d", tc.in, calls, tc.want+1)
		}
	}
}

func TestAttemptErrorAborts(t *testing.T) {
	dir := t.TempDir()
	boom := errors.New("boom")
	o := NewOrchestrator(2)
	_, err := o.Run(context.Background(), 100, model.CompressionConfig{}, func(context.Context, model.CompressionConfig) (Artifact, error) {
		return writeArtifact(t, dir, 0, 10), boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Fatal("partial artifact left behind")
	}
}

func TestCancelledBeforeAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewOrchestrator(1).Run(ctx, 100, model.CompressionConfig{}, func(context.Context, model.CompressionConfig) (Artifact, error) {
		t.Fatal("attempt ran after cancel")
		return Artifact{}, nil
	})
	if !model.IsCancelled(err) {
		t.Fatalf("err = %v", err)
	}
}
