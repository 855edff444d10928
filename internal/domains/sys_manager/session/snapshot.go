package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis"
	"github.com/xpanvictor/voxline/pkg/utils"
)

type Snapshot struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
	Config     Config    `json:"config"`
	History    []Turn    `json:"history"`
	Epoch      uint64    `json:"epoch"`
}

// Snapshotter stores session snapshots outside the process. Load returns a
// SessionNotFound error for unknown ids.
type Snapshotter interface {
	Save(ctx context.Context, snap Snapshot, ttl time.Duration) error
	Load(ctx context.Context, id string) (*Snapshot, error)
	Delete(ctx context.Context, id string) error
}

type RedisSnapshotter struct {
	client *redis.Client
	prefix string
}

func NewRedisSnapshotter(client *redis.Client) *RedisSnapshotter {
	return &RedisSnapshotter{client: client, prefix: "voxline:session:"}
}

func (r *RedisSnapshotter) key(id string) string { return r.prefix + id }

func (r *RedisSnapshotter) Save(ctx context.Context, snap Snapshot, ttl time.Duration) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return r.client.WithContext(ctx).Set(r.key(snap.ID), b, ttl).Err()
}

func (r *RedisSnapshotter) Load(ctx context.Context, id string) (*Snapshot, error) {
	b, err := r.client.WithContext(ctx).Get(r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, utils.Errorf(utils.KindSessionNotFound, "session %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

func (r *RedisSnapshotter) Delete(ctx context.Context, id string) error {
	return r.client.WithContext(ctx).Del(r.key(id)).Err()
}
