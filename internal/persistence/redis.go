package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/hra-case-service/internal/config"
	"github.com/spec-kit/hra-case-service/internal/domain"
)

// Redis wraps the go-redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to Redis using the provided configuration.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.Error(err))
	} else {
		logger.Info("connected to redis")
	}

	return &Redis{Client: client}
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}

const (
	jobSnapshotKeyPrefix = "bulkjob:snapshot:"
	jobSnapshotTTL       = 24 * time.Hour
)

// JobSnapshot is the progress view of a bulk job that reporting dashboards
// poll without hitting Postgres.
type JobSnapshot struct {
	JobID          string               `json:"job_id"`
	Name           string               `json:"name"`
	Status         domain.BulkJobStatus `json:"status"`
	TotalCases     int                  `json:"total_cases"`
	ProcessedCases int                  `json:"processed_cases"`
	AutoCompleted  int                  `json:"auto_completed"`
	ManualReview   int                  `json:"manual_review"`
	ErrorCount     int                  `json:"error_count"`
	Paused         bool                 `json:"paused"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// JobProgressCache publishes bulk job progress snapshots to Redis.
type JobProgressCache struct {
	client *redis.Client
}

// NewJobProgressCache wraps the shared client.
func NewJobProgressCache(r *Redis) *JobProgressCache {
	if r == nil {
		return &JobProgressCache{}
	}
	return &JobProgressCache{client: r.Client}
}

// Store writes the latest snapshot for a job.
func (c *JobProgressCache) Store(ctx context.Context, snapshot JobSnapshot) error {
	if c == nil || c.client == nil {
		return nil
	}
	snapshot.UpdatedAt = time.Now()
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, jobSnapshotKeyPrefix+snapshot.JobID, payload, jobSnapshotTTL).Err()
}

// Fetch reads the latest snapshot for a job; ok is false when none exists.
func (c *JobProgressCache) Fetch(ctx context.Context, jobID string) (JobSnapshot, bool, error) {
	var snapshot JobSnapshot
	if c == nil || c.client == nil {
		return snapshot, false, nil
	}
	payload, err := c.client.Get(ctx, jobSnapshotKeyPrefix+jobID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return snapshot, false, nil
		}
		return snapshot, false, err
	}
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return snapshot, false, err
	}
	return snapshot, true, nil
}
