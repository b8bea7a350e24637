package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var ErrSnapshotNotFound = errors.New("session snapshot not found")

// Snapshot is the part of a session that outlives the process
type Snapshot struct {
	Selected []string  `json:"selected"`
	Runs     int       `json:"runs"`
	SavedAt  time.Time `json:"saved_at"`
}

// SnapshotStore persists session snapshots
type SnapshotStore interface {
	Save(ctx context.Context, id string, snap Snapshot, ttl time.Duration) error
	Load(ctx context.Context, id string) (*Snapshot, error)
	Delete(ctx context.Context, id string) error
}

const snapshotKeyPrefix = "tourney-dashboard:session"

// RedisSnapshots stores snapshots as JSON strings with a TTL
type RedisSnapshots struct {
	client *redis.Client
	logger *logrus.Logger
}

// NewRedisSnapshots creates a Redis-backed snapshot store
func NewRedisSnapshots(client *redis.Client, logger *logrus.Logger) *RedisSnapshots {
	return &RedisSnapshots{client: client, logger: logger}
}

// NewRedisClient parses url and verifies the server answers
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func snapshotKey(id string) string {
	return fmt.Sprintf("%s:%s", snapshotKeyPrefix, id)
}

// Save stores snap under id for ttl
func (r *RedisSnapshots) Save(ctx context.Context, id string, snap Snapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal session snapshot: %w", err)
	}
	key := snapshotKey(id)
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		r.logger.WithError(err).WithField("key", key).Error("Failed to save session snapshot")
		return err
	}
	r.logger.WithFields(logrus.Fields{
		"key": key,
		"ttl": ttl.String(),
	}).Debug("Saved session snapshot")
	return nil
}

// Load returns the snapshot for id or ErrSnapshotNotFound
func (r *RedisSnapshots) Load(ctx context.Context, id string) (*Snapshot, error) {
	key := snapshotKey(id)
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSnapshotNotFound
		}
		r.logger.WithError(err).WithField("key", key).Error("Failed to load session snapshot")
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session snapshot: %w", err)
	}
	return &snap, nil
}

// Delete removes the snapshot for id
func (r *RedisSnapshots) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, snapshotKey(id)).Err()
}
