// Package store mirrors job status into Redis and carries cross-process
// cancel requests.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Status is the externally visible state of one job.
type Status struct {
	Status   string         `json:"status"`
	Stage    string         `json:"stage"`
	Progress float64        `json:"progress"`
	Message  string         `json:"message"`
	Start    *time.Time     `json:"start_time,omitempty"`
	End      *time.Time     `json:"end_time,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// DefaultTTL is how long a job's keys live after the last write.
const DefaultTTL = 7 * 24 * time.Hour

type RedisStatus struct {
	client *redis.Client
	keyNS  string
	ttl    time.Duration
}

// NewRedisStatus connects and pings; keys are prefixed with namespace.
func NewRedisStatus(redisURL, namespace string) (*RedisStatus, error) {
	if namespace == "" {
		namespace = "docshrink"
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opt)
	if err := c.Ping(context.Background()).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStatus{client: c, keyNS: namespace, ttl: DefaultTTL}, nil
}

func (s *RedisStatus) key(jobID string) string {
	return fmt.Sprintf("%s:job:%s:status", s.keyNS, jobID)
}
func (s *RedisStatus) cancelKey() string { return s.keyNS + ":cancelled" }

func (s *RedisStatus) Set(ctx context.Context, jobID string, st Status) error {
	m := map[string]any{
		"status":   st.Status,
		"stage":    st.Stage,
		"progress": strconv.FormatFloat(st.Progress, 'f', 4, 64),
		"message":  st.Message,
	}
	if st.Start != nil {
		m["start"] = st.Start.Format(time.RFC3339Nano)
	}
	if st.End != nil {
		m["end"] = st.End.Format(time.RFC3339Nano)
	}
	if st.Metadata != nil {
		b, err := json.Marshal(st.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		m["metadata"] = string(b)
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key(jobID), m)
	pipe.Expire(ctx, s.key(jobID), s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStatus) Get(ctx context.Context, jobID string) (Status, bool, error) {
	res, err := s.client.HGetAll(ctx, s.key(jobID)).Result()
	if err != nil {
		return Status{}, false, err
	}
	if len(res) == 0 {
		return Status{}, false, nil
	}
	st := Status{Status: res["status"], Stage: res["stage"], Message: res["message"]}
	if p := res["progress"]; p != "" {
		// unparsable progress reads as 0
		st.Progress, _ = strconv.ParseFloat(p, 64)
	}
	if v := res["start"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.Start = &t
		}
	}
	if v := res["end"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.End = &t
		}
	}
	if v := res["metadata"]; v != "" {
		_ = json.Unmarshal([]byte(v), &st.Metadata)
	}
	return st, true, nil
}

// Cancel flags jobID; a running engine notices on its next batch boundary.
func (s *RedisStatus) Cancel(ctx context.Context, jobID string) error {
	return s.client.SAdd(ctx, s.cancelKey(), jobID).Err()
}

func (s *RedisStatus) IsCancelled(ctx context.Context, jobID string) (bool, error) {
	return s.client.SIsMember(ctx, s.cancelKey(), jobID).Result()
}

// ClearCancel drops the flag once the job has reached a terminal state.
func (s *RedisStatus) ClearCancel(ctx context.Context, jobID string) error {
	return s.client.SRem(ctx, s.cancelKey(), jobID).Err()
}

func (s *RedisStatus) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *RedisStatus) Close() error { return s.client.Close() }
