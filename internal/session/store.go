// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store keeps session snapshots. All operations are safe for concurrent use.
type Store interface {
	// Create stores a new snapshot with Version set to 1.
	Create(ctx context.Context, snap *Snapshot) error
	// Get returns nil, nil when the id is unknown.
	Get(ctx context.Context, id string) (*Snapshot, error)
	// Update replaces a snapshot whose Version matches the stored one and
	// increments Version. It returns ErrVersionConflict or ErrNotFound.
	Update(ctx context.Context, snap *Snapshot) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// StoreType names a Store driver.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
)

const (
	// redisKeyPrefix namespaces snapshot keys.
	redisKeyPrefix = "chat:session:"
	// defaultStoreTTL bounds how long an idle snapshot survives in a store.
	defaultStoreTTL = 24 * time.Hour
)

// StoreOption configures NewStore.
type StoreOption func(*storeConfig)

type storeConfig struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// WithRedisClient sets the client used by the redis driver.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithTTL sets the expiry refreshed on every read and write.
func WithTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) {
		c.ttl = ttl
	}
}

// NewStore creates a Store for the given driver.
func NewStore(storeType StoreType, opts ...StoreOption) (Store, error) {
	cfg := &storeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	ttl := cfg.ttl
	if ttl <= 0 {
		ttl = defaultStoreTTL
	}

	switch storeType {
	case StoreTypeMemory, "":
		return newMemoryStore(ttl), nil
	case StoreTypeRedis:
		if cfg.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return &redisStore{client: cfg.redisClient, ttl: ttl}, nil
	default:
		return nil, ErrInvalidStoreType
	}
}

// NewRedisStoreFromURL parses a redis:// URL and returns a redis-backed Store.
func NewRedisStoreFromURL(rawURL string, ttl time.Duration) (Store, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}
	return NewStore(StoreTypeRedis, WithRedisClient(redis.NewClient(opts)), WithTTL(ttl))
}

// =============================================================================
// MEMORY DRIVER
// =============================================================================

type memoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]*memoryEntry
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

func newMemoryStore(ttl time.Duration) *memoryStore {
	return &memoryStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*memoryEntry),
	}
}

// lookup returns the live entry for id and refreshes its expiry. Expired
// entries are dropped. The caller holds s.mu.
func (s *memoryStore) lookup(id string) (*memoryEntry, bool) {
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	now := s.now()
	if !now.Before(e.expiresAt) {
		delete(s.entries, id)
		return nil, false
	}
	e.expiresAt = now.Add(s.ttl)
	return e, true
}

// Snapshots are held encoded so callers never share slices with the store.
func (s *memoryStore) Create(ctx context.Context, snap *Snapshot) error {
	snap.Version = 1
	snap.UpdatedAt = time.Now()
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[snap.ID] = &memoryEntry{data: data, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *memoryStore) Get(ctx context.Context, id string) (*Snapshot, error) {
	s.mu.Lock()
	e, ok := s.lookup(id)
	var data []byte
	if ok {
		data = e.data
	}
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *memoryStore) Update(ctx context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(snap.ID)
	if !ok {
		return ErrNotFound
	}
	var stored Snapshot
	if err := json.Unmarshal(e.data, &stored); err != nil {
		return err
	}
	if stored.Version != snap.Version {
		return ErrVersionConflict
	}

	snap.Version++
	snap.UpdatedAt = time.Now()
	next, err := json.Marshal(snap)
	if err != nil {
		snap.Version--
		return err
	}
	e.data = next
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

// PurgeExpired drops snapshots whose TTL ran out before now.
func (s *memoryStore) PurgeExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for id, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, id)
			purged++
		}
	}
	return purged
}

// Len returns the number of held snapshots, expired or not.
func (s *memoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*memoryEntry)
	return nil
}

// =============================================================================
// REDIS DRIVER
// =============================================================================

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func (s *redisStore) key(id string) string {
	return redisKeyPrefix + id
}

func (s *redisStore) Create(ctx context.Context, snap *Snapshot) error {
	snap.Version = 1
	snap.UpdatedAt = time.Now()
	val, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(snap.ID), val, s.ttl).Err()
}

// Get refreshes the TTL on every read.
func (s *redisStore) Get(ctx context.Context, id string) (*Snapshot, error) {
	key := s.key(id)
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return nil, err
	}
	_ = s.client.Expire(ctx, key, s.ttl).Err()
	return &snap, nil
}

// Update uses WATCH/MULTI/EXEC so concurrent writers see ErrVersionConflict.
func (s *redisStore) Update(ctx context.Context, snap *Snapshot) error {
	key := s.key(snap.ID)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var stored Snapshot
		if err := json.Unmarshal([]byte(val), &stored); err != nil {
			return err
		}
		if stored.Version != snap.Version {
			return ErrVersionConflict
		}

		next := *snap
		next.Version++
		next.UpdatedAt = time.Now()
		data, err := json.Marshal(&next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		if err == nil {
			snap.Version = next.Version
			snap.UpdatedAt = next.UpdatedAt
		}
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrVersionConflict
	}
	return err
}

func (s *redisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
