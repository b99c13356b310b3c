// Package statuscheck reports whether the engine's optional and native
// dependencies are usable on this machine.
package statuscheck

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gen2brain/go-fitz"

	"github.com/local/docshrink/internal/config"
	"github.com/local/docshrink/internal/history"
	"github.com/local/docshrink/internal/pdfwrite"
)

// RedisPinger models the minimal Redis capability we need for status checks.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// Checker aggregates health checks for the engine's dependencies.
type Checker struct {
	redis   RedisPinger
	backup  config.BackupConfig
	history string
	tempDir string
}

// Options configures the Checker.
type Options struct {
	Redis       RedisPinger
	Backup      config.BackupConfig
	HistoryPath string
	TempDir     string
}

// Status represents the readiness of a subsystem. Unconfigured optional
// subsystems are OK with Configured false.
type Status struct {
	OK         bool   `json:"ok"`
	Configured bool   `json:"configured"`
	Message    string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	MuPDF   Status `json:"mupdf"`
	TempDir Status `json:"temp_dir"`
	History Status `json:"history"`
	Redis   Status `json:"redis"`
	S3      Status `json:"s3"`
}

// Healthy reports whether every configured subsystem is OK.
func (s Summary) Healthy() bool {
	for _, st := range []Status{s.MuPDF, s.TempDir, s.History, s.Redis, s.S3} {
		if !st.OK {
			return false
		}
	}
	return true
}

func New(opts Options) *Checker {
	return &Checker{redis: opts.Redis, backup: opts.Backup, history: opts.HistoryPath, tempDir: opts.TempDir}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		MuPDF:   c.checkMuPDF(),
		TempDir: c.checkTempDir(),
		History: c.checkHistory(),
		Redis:   c.checkRedis(ctx),
		S3:      c.checkS3(ctx),
	}
}

// checkMuPDF renders a generated one-page document.
func (c *Checker) checkMuPDF() Status {
	w := pdfwrite.New()
	w.AddPage(pdfwrite.PageSpec{MediaBox: [4]float64{0, 0, 72, 72}})
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return Status{Configured: true, Message: trimError(err)}
	}
	doc, err := fitz.NewFromMemory(buf.Bytes())
	if err != nil {
		return Status{Configured: true, Message: trimError(err)}
	}
	defer doc.Close()
	if _, err := doc.Image(0); err != nil {
		return Status{Configured: true, Message: trimError(err)}
	}
	return Status{OK: true, Configured: true, Message: "Available"}
}

func (c *Checker) checkTempDir() Status {
	dir := c.tempDir
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, ".docshrink-check-*")
	if err != nil {
		return Status{Configured: true, Message: trimError(err)}
	}
	f.Close()
	os.Remove(f.Name())
	return Status{OK: true, Configured: true, Message: "Writable: " + dir}
}

func (c *Checker) checkHistory() Status {
	if c.history == "" {
		return Status{OK: true, Message: "Not configured"}
	}
	s, err := history.Open(c.history)
	if err != nil {
		return Status{Configured: true, Message: trimError(err)}
	}
	defer s.Close()
	st, err := s.Totals("")
	if err != nil {
		return Status{Configured: true, Message: trimError(err)}
	}
	return Status{OK: true, Configured: true, Message: fmt.Sprintf("%d jobs recorded", st.Jobs)}
}

func (c *Checker) checkRedis(ctx context.Context) Status {
	if c.redis == nil {
		return Status{OK: true, Message: "Not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.redis.Ping(ctx); err != nil {
		return Status{Configured: true, Message: trimError(err)}
	}
	return Status{OK: true, Configured: true, Message: "Connected"}
}

func (c *Checker) checkS3(ctx context.Context) Status {
	if c.backup.S3Bucket == "" {
		return Status{OK: true, Message: "Not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var loaders []func(*awscfg.LoadOptions) error
	if c.backup.S3Region != "" {
		loaders = append(loaders, awscfg.WithRegion(c.backup.S3Region))
	}
	if c.backup.S3AccessKey != "" && c.backup.S3SecretKey != "" {
		loaders = append(loaders, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.backup.S3AccessKey, c.backup.S3SecretKey, "")))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return Status{Configured: true, Message: trimError(err)}
	}
	cli := s3.NewFromConfig(cfg)
	if _, err := cli.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.backup.S3Bucket)}); err != nil {
		return Status{Configured: true, Message: trimError(err)}
	}
	if c.backup.Password == "" {
		return Status{Configured: true, Message: "Bucket reachable but BACKUP_PASSWORD is empty"}
	}
	return Status{OK: true, Configured: true, Message: "Connected"}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
