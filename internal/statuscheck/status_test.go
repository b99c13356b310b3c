package statuscheck

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

type fakeRedis struct{ err error }

func (f fakeRedis) Ping(context.Context) error { return f.err }

func TestSummaryLocalOnly(t *testing.T) {
	dir := t.TempDir()
	c := New(Options{HistoryPath: filepath.Join(dir, "h.db"), TempDir: dir})
	s := c.Summary(context.Background())
	if !s.MuPDF.OK || !s.TempDir.OK || !s.History.OK {
		t.Fatalf("summary = %+v", s)
	}
	if s.Redis.Configured || s.S3.Configured || !s.Healthy() {
		t.Fatalf("optional subsystems: %+v", s)
	}
}

func TestRedisFailureIsUnhealthy(t *testing.T) {
	c := New(Options{Redis: fakeRedis{err: errors.New("connection refused")}, TempDir: t.TempDir()})
	s := c.Summary(context.Background())
	if s.Redis.OK || !s.Redis.Configured || s.Redis.Message != "connection refused" || s.Healthy() {
		t.Fatalf("redis = %+v", s.Redis)
	}
}

func TestUnwritableTempDir(t *testing.T) {
	c := New(Options{TempDir: filepath.Join(t.TempDir(), "missing")})
	if st := c.checkTempDir(); st.OK {
		t.Fatalf("temp dir = %+v", st)
	}
}
