package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "tubefront:progress:"
	latestKey = keyPrefix + "latest"
)

// redisStore is the subset of the go-redis client the tracker uses.
type redisStore interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Close() error
}

// Redis is a Tracker backed by Redis string keys with TTL.
type Redis struct {
	client redisStore
	ttl    time.Duration
}

// NewRedis connects to url (redis://...) and verifies the connection.
func NewRedis(ctx context.Context, url string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return newRedisWithStore(client, ttl), nil
}

func newRedisWithStore(store redisStore, ttl time.Duration) *Redis {
	if ttl < 0 {
		ttl = 0
	}
	return &Redis{client: store, ttl: ttl}
}

// Record writes the job key and the latest pointer.
func (r *Redis) Record(ctx context.Context, snap Snapshot) error {
	snap, err := stamp(snap, time.Now())
	if err != nil {
		return err
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := r.client.Set(ctx, keyPrefix+snap.JobID, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	if err := r.client.Set(ctx, latestKey, snap.JobID, r.ttl).Err(); err != nil {
		return fmt.Errorf("store latest pointer: %w", err)
	}
	return nil
}

// Get loads one job's snapshot.
func (r *Redis) Get(ctx context.Context, jobID string) (Snapshot, bool, error) {
	if jobID == "" {
		return Snapshot{}, false, nil
	}
	raw, err := r.client.Get(ctx, keyPrefix+jobID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("load snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, true, nil
}

// Latest follows the latest pointer.
func (r *Redis) Latest(ctx context.Context) (Snapshot, bool, error) {
	jobID, err := r.client.Get(ctx, latestKey).Result()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("load latest pointer: %w", err)
	}
	return r.Get(ctx, jobID)
}

// Close releases the client.
func (r *Redis) Close() error { return r.client.Close() }
