package remotegpu

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// LeaseStore records which remote-GPU job id a local export job is bound
// to, so a restarted orchestrator can at least recognize that a job's
// remote work is already in flight rather than resubmitting it blind.
// It is advisory only: Recovery (§4.5) still reconciles any job found in
// `processing` to `error` on restart, regardless of what the lease says —
// this service does not implement checkpoint-based resume.
type LeaseStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewLeaseStore(rdb *redis.Client, ttl time.Duration) *LeaseStore {
	return &LeaseStore{rdb: rdb, ttl: ttl}
}

func (l *LeaseStore) key(jobID uuid.UUID) string {
	return fmt.Sprintf("exportd:remotegpu:lease:%s", jobID)
}

func (l *LeaseStore) Set(ctx context.Context, jobID uuid.UUID, remoteJobID string) error {
	return l.rdb.Set(ctx, l.key(jobID), remoteJobID, l.ttl).Err()
}

func (l *LeaseStore) Get(ctx context.Context, jobID uuid.UUID) (string, bool, error) {
	v, err := l.rdb.Get(ctx, l.key(jobID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (l *LeaseStore) Delete(ctx context.Context, jobID uuid.UUID) error {
	return l.rdb.Del(ctx, l.key(jobID)).Err()
}
