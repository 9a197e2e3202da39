package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"qde/internal/errors"
)

// Checkpoint is a restorable snapshot of the learned state.
type Checkpoint struct {
	RunID     string                        `json:"run_id"`
	SavedAt   time.Time                     `json:"saved_at"`
	Weights   map[string]float64            `json:"weights"`
	Params    map[string]map[string]float64 `json:"params"`
	LastTuned int                           `json:"last_tuned"` // ISO week marker
}

// CheckpointStore saves and restores checkpoints in Redis so a paced
// run can resume its learned weights after a restart.
type CheckpointStore struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisConfig holds the checkpoint store connection settings.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// NewCheckpointStore connects to Redis and verifies connectivity.
func NewCheckpointStore(ctx context.Context, cfg RedisConfig) (*CheckpointStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeCheckpoint, "failed to connect to redis")
	}
	return &CheckpointStore{client: client, ttl: cfg.TTL}, nil
}

func checkpointKey(runID string) string {
	return fmt.Sprintf("qde:checkpoint:%s", runID)
}

// Save persists the checkpoint under the run's key.
func (s *CheckpointStore) Save(ctx context.Context, cp *Checkpoint) error {
	payload, err := json.Marshal(cp)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeCheckpoint, "failed to marshal checkpoint")
	}
	if err := s.client.Set(ctx, checkpointKey(cp.RunID), payload, s.ttl).Err(); err != nil {
		return errors.WrapError(err, errors.ErrCodeCheckpoint, "failed to save checkpoint")
	}
	return nil
}

// Load fetches the checkpoint for runID. A missing key returns
// (nil, nil) so callers can distinguish "no checkpoint" from failure.
func (s *CheckpointStore) Load(ctx context.Context, runID string) (*Checkpoint, error) {
	payload, err := s.client.Get(ctx, checkpointKey(runID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeCheckpoint, "failed to load checkpoint")
	}

	var cp Checkpoint
	if err := json.Unmarshal(payload, &cp); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeCheckpoint, "failed to decode checkpoint")
	}
	return &cp, nil
}

// Close releases the Redis client.
func (s *CheckpointStore) Close() error {
	return s.client.Close()
}
