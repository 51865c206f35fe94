package activities

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kalambet/outing/internal/storage"
)

// Snapshot is the most recent scrape result.
type Snapshot struct {
	LastUpdated *time.Time `json:"last_updated"`
	Activities  []Activity `json:"activities"`
}

// Cache persists the latest snapshot. Load returns an empty snapshot
// before the first Save.
type Cache interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, acts []Activity, at time.Time) error
}

// SnapshotStore is implemented by storage.Store.
type SnapshotStore interface {
	SaveActivitySnapshot(ctx context.Context, payload []byte, at time.Time) error
	LoadActivitySnapshot(ctx context.Context) ([]byte, time.Time, error)
}

// SQLiteCache keeps the snapshot in the activity_snapshot table.
type SQLiteCache struct {
	store SnapshotStore
}

func NewSQLiteCache(store SnapshotStore) *SQLiteCache {
	return &SQLiteCache{store: store}
}

func (c *SQLiteCache) Load(ctx context.Context) (Snapshot, error) {
	payload, at, err := c.store.LoadActivitySnapshot(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return Snapshot{Activities: []Activity{}}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("loading activity snapshot: %w", err)
	}
	var acts []Activity
	if err := json.Unmarshal(payload, &acts); err != nil {
		return Snapshot{}, fmt.Errorf("decoding activity snapshot: %w", err)
	}
	if acts == nil {
		acts = []Activity{}
	}
	return Snapshot{LastUpdated: &at, Activities: acts}, nil
}

func (c *SQLiteCache) Save(ctx context.Context, acts []Activity, at time.Time) error {
	if acts == nil {
		acts = []Activity{}
	}
	payload, err := json.Marshal(acts)
	if err != nil {
		return fmt.Errorf("encoding activity snapshot: %w", err)
	}
	if err := c.store.SaveActivitySnapshot(ctx, payload, at); err != nil {
		return fmt.Errorf("saving activity snapshot: %w", err)
	}
	return nil
}

// RedisKey is where RedisCache stores the snapshot.
const RedisKey = "outing:activities"

// RedisCache keeps the snapshot as one JSON value, shared between
// server instances.
type RedisCache struct {
	rdb *redis.Client
	key string
}

// NewRedisCache connects to url (redis://...) and verifies the connection.
func NewRedisCache(ctx context.Context, url string) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return &RedisCache{rdb: rdb, key: RedisKey}, nil
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

func (c *RedisCache) Load(ctx context.Context) (Snapshot, error) {
	data, err := c.rdb.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{Activities: []Activity{}}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("loading activity snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decoding activity snapshot: %w", err)
	}
	if snap.Activities == nil {
		snap.Activities = []Activity{}
	}
	return snap, nil
}

func (c *RedisCache) Save(ctx context.Context, acts []Activity, at time.Time) error {
	if acts == nil {
		acts = []Activity{}
	}
	at = at.UTC()
	data, err := json.Marshal(Snapshot{LastUpdated: &at, Activities: acts})
	if err != nil {
		return fmt.Errorf("encoding activity snapshot: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key, data, 0).Err(); err != nil {
		return fmt.Errorf("saving activity snapshot: %w", err)
	}
	return nil
}
