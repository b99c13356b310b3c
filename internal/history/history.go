// Package history keeps one row per finished job in a local SQLite database.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/local/docshrink/internal/model"
)

// JobRecord is the persisted form of a JobResult.
type JobRecord struct {
	ID          uint   `gorm:"primaryKey"`
	JobID       string `gorm:"uniqueIndex;size:64"`
	Input       string
	Output      string
	Kind        string `gorm:"index;size:16"`
	Status      string `gorm:"index;size:16"`
	Reason      string
	InputSize   int64
	OutputSize  int64
	RetryCount  int
	Strategy    string `gorm:"size:32"`
	Diagnostics string `gorm:"type:text"`
	DurationMS  int64
	CreatedAt   time.Time `gorm:"index"`
}

// Store wraps the database.
type Store struct {
	db *gorm.DB
}

// Open creates the database file and its directory as needed.
// ":memory:" gives a throwaway store.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("history dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	if err := db.AutoMigrate(&JobRecord{}); err != nil {
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return &Store{db: db}, nil
}

// Record saves r, replacing any earlier row for the same job.
func (s *Store) Record(r model.JobResult) error {
	diag, err := json.Marshal(r.Diagnostics)
	if err != nil {
		return fmt.Errorf("encode diagnostics: %w", err)
	}
	rec := JobRecord{
		JobID:       r.JobID,
		Input:       r.Input,
		Output:      r.Output,
		Kind:        r.Kind,
		Status:      string(r.Status),
		Reason:      r.Reason,
		InputSize:   r.InputSize,
		OutputSize:  r.OutputSize,
		RetryCount:  r.Diagnostics.RetryCount,
		Strategy:    r.Diagnostics.Strategy,
		Diagnostics: string(diag),
		DurationMS:  r.Duration.Milliseconds(),
	}
	var existing JobRecord
	err = s.db.Where("job_id = ?", r.JobID).First(&existing).Error
	switch {
	case err == nil:
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
		return s.db.Save(&rec).Error
	case err == gorm.ErrRecordNotFound:
		return s.db.Create(&rec).Error
	default:
		return err
	}
}

// Result turns a row back into a JobResult.
func (rec JobRecord) Result() model.JobResult {
	r := model.JobResult{
		JobID:      rec.JobID,
		Input:      rec.Input,
		Output:     rec.Output,
		Kind:       rec.Kind,
		Status:     model.Status(rec.Status),
		Reason:     rec.Reason,
		InputSize:  rec.InputSize,
		OutputSize: rec.OutputSize,
		Duration:   time.Duration(rec.DurationMS) * time.Millisecond,
	}
	_ = json.Unmarshal([]byte(rec.Diagnostics), &r.Diagnostics)
	r.Message = model.UserMessage(r.Status, nil)
	return r
}

// Recent returns the newest n rows, newest first.
func (s *Store) Recent(n int) ([]JobRecord, error) {
	if n <= 0 {
		n = 20
	}
	var recs []JobRecord
	err := s.db.Order("created_at desc, id desc").Limit(n).Find(&recs).Error
	return recs, err
}

// Totals aggregates every recorded job, optionally only those of kind.
func (s *Store) Totals(kind string) (model.CompressionStatistics, error) {
	q := s.db.Model(&JobRecord{})
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	var recs []JobRecord
	if err := q.Select("status", "input_size", "output_size").Find(&recs).Error; err != nil {
		return model.CompressionStatistics{}, err
	}
	var st model.CompressionStatistics
	for _, rec := range recs {
		st.Add(model.JobResult{
			Status:     model.Status(rec.Status),
			InputSize:  rec.InputSize,
			OutputSize: rec.OutputSize,
		})
	}
	return st, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
