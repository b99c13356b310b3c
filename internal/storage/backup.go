// Package storage keeps a copy of an original before it is rewritten in
// place, on local disk or encrypted in S3.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Ref locates a stored original.
type Ref struct {
	Location string `json:"location"`
	Size     int64  `json:"size"`
}

// Backup stores originals and gives them back.
type Backup interface {
	Save(ctx context.Context, jobID, name string, r io.Reader) (Ref, error)
	Restore(ctx context.Context, ref Ref, w io.Writer) error
}

// LocalBackup writes owner-only copies under Dir/<jobID>/.
type LocalBackup struct {
	Dir string
}

func NewLocalBackup(dir string) *LocalBackup {
	return &LocalBackup{Dir: dir}
}

func (b *LocalBackup) Save(ctx context.Context, jobID, name string, r io.Reader) (Ref, error) {
	if err := ctx.Err(); err != nil {
		return Ref{}, err
	}
	dir := filepath.Join(b.Dir, safeName(jobID))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Ref{}, fmt.Errorf("backup dir: %w", err)
	}
	path := filepath.Join(dir, safeName(filepath.Base(name)))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return Ref{}, fmt.Errorf("create backup: %w", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return Ref{}, fmt.Errorf("write backup: %w", err)
	}
	log.Info().Str("job_id", jobID).Str("file", path).Int64("size", n).Msg("original backed up")
	return Ref{Location: path, Size: n}, nil
}

func (b *LocalBackup) Restore(ctx context.Context, ref Ref, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.Open(ref.Location)
	if err != nil {
		return fmt.Errorf("open backup: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	return nil
}

func safeName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, s)
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}
