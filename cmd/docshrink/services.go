package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/local/docshrink/internal/engine"
	"github.com/local/docshrink/internal/history"
	"github.com/local/docshrink/internal/storage"
	"github.com/local/docshrink/internal/store"
)

// services holds the optional backends the engine is wired to.
type services struct {
	status  *store.RedisStatus
	history *history.Store
	backup  storage.Backup
}

func openServices(ctx context.Context) (*services, error) {
	s := &services{}
	if cfg.Status.RedisURL != "" {
		rs, err := store.NewRedisStatus(cfg.Status.RedisURL, cfg.Status.Namespace)
		if err != nil {
			return nil, fmt.Errorf("status store: %w", err)
		}
		s.status = rs
	}
	if cfg.History.Path != "" {
		h, err := history.Open(cfg.History.Path)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.History.Path).Msg("history disabled")
		} else {
			s.history = h
		}
	}
	if cfg.Backup.S3Bucket != "" {
		b, err := storage.NewS3Backup(ctx, storage.S3Options{
			Bucket:    cfg.Backup.S3Bucket,
			Prefix:    cfg.Backup.S3Prefix,
			Region:    cfg.Backup.S3Region,
			AccessKey: cfg.Backup.S3AccessKey,
			SecretKey: cfg.Backup.S3SecretKey,
			Password:  cfg.Backup.Password,
		})
		if err != nil {
			s.close()
			return nil, fmt.Errorf("s3 backup: %w", err)
		}
		s.backup = storage.NewFailoverBackup(b, storage.NewLocalBackup(cfg.Backup.Dir))
	} else {
		s.backup = storage.NewLocalBackup(cfg.Backup.Dir)
	}
	return s, nil
}

// engine builds an Engine over the open services. Nil backends stay unset
// so the engine skips them.
func (s *services) engine() *engine.Engine {
	opts := engine.Options{
		Config:       cfg.Engine,
		Backup:       s.backup,
		PollInterval: cfg.Status.PollInterval,
	}
	if s.status != nil {
		opts.Status = s.status
	}
	if s.history != nil {
		opts.History = s.history
	}
	return engine.New(opts)
}

func (s *services) close() {
	if s.status != nil {
		_ = s.status.Close()
	}
	if s.history != nil {
		_ = s.history.Close()
	}
}
