// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatstream/internal/model"
)

func sampleSnapshot(id string) *Snapshot {
	return &Snapshot{
		ID:           id,
		CreatedAt:    time.Now(),
		Params:       model.DefaultParams(),
		Persona:      "Default Assistant",
		SystemPrompt: "sys",
		History: []model.Message{
			model.NewSystemMessage("sys"),
			model.NewUserMessage("q"),
			model.NewAssistantMessage("r"),
		},
		Transcript: []model.Message{model.NewUserMessage("q"), model.NewAssistantMessage("r")},
	}
}

// exerciseStore runs the behaviour every driver must share.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	got, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got, "unknown ids return nil, nil")

	snap := sampleSnapshot("sess_a")
	require.NoError(t, store.Create(ctx, snap))
	assert.Equal(t, int64(1), snap.Version)

	got, err = store.Get(ctx, "sess_a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, snap.History, got.History)
	assert.Equal(t, snap.Transcript, got.Transcript)
	assert.Equal(t, snap.Params, got.Params)

	got.SystemPrompt = "changed"
	require.NoError(t, store.Update(ctx, got))
	assert.Equal(t, int64(2), got.Version)

	stale := sampleSnapshot("sess_a")
	stale.Version = 1
	assert.ErrorIs(t, store.Update(ctx, stale), ErrVersionConflict)

	assert.ErrorIs(t, store.Update(ctx, sampleSnapshot("sess_unknown")), ErrNotFound)

	require.NoError(t, store.Delete(ctx, "sess_a"))
	got, err = store.Get(ctx, "sess_a")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStore(t *testing.T) {
	store, err := NewStore(StoreTypeMemory)
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(StoreTypeMemory)
	require.NoError(t, err)

	require.NoError(t, store.Create(ctx, sampleSnapshot("sess_c")))
	first, err := store.Get(ctx, "sess_c")
	require.NoError(t, err)
	first.History[0].Content = "mutated"

	second, err := store.Get(ctx, "sess_c")
	require.NoError(t, err)
	assert.Equal(t, "sys", second.History[0].Content)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store := newMemoryStore(time.Minute)
	store.now = func() time.Time { return clock }

	require.NoError(t, store.Create(ctx, sampleSnapshot("sess_old")))
	clock = clock.Add(40 * time.Second)
	require.NoError(t, store.Create(ctx, sampleSnapshot("sess_new")))

	// Reading refreshes the expiry.
	clock = clock.Add(10 * time.Second)
	got, err := store.Get(ctx, "sess_old")
	require.NoError(t, err)
	require.NotNil(t, got)

	clock = clock.Add(55 * time.Second)
	assert.Equal(t, 1, store.PurgeExpired(clock), "sess_new was last touched 65s ago")
	assert.Equal(t, 1, store.Len())

	clock = clock.Add(time.Minute)
	got, err = store.Get(ctx, "sess_old")
	require.NoError(t, err)
	assert.Nil(t, got, "expired snapshots read as missing")
	assert.ErrorIs(t, store.Update(ctx, sampleSnapshot("sess_old")), ErrNotFound)
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, 0, store.PurgeExpired(clock))
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	store, err := NewStore(StoreTypeRedis, WithRedisClient(client), WithTTL(time.Hour))
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)
}

func TestRedisStore_KeyPrefixAndTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	store, err := NewStore(StoreTypeRedis, WithRedisClient(client), WithTTL(time.Hour))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Create(context.Background(), sampleSnapshot("sess_ttl")))
	assert.True(t, mr.Exists("chat:session:sess_ttl"))
	assert.Equal(t, time.Hour, mr.TTL("chat:session:sess_ttl"))

	mr.FastForward(2 * time.Hour)
	got, err := store.Get(context.Background(), "sess_ttl")
	require.NoError(t, err)
	assert.Nil(t, got, "expired snapshots disappear")
}

func TestRedisStoreFromURL(t *testing.T) {
	mr := miniredis.RunT(t)

	store, err := NewRedisStoreFromURL("redis://"+mr.Addr(), 0)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Create(context.Background(), sampleSnapshot("sess_url")))
	assert.Equal(t, defaultStoreTTL, mr.TTL("chat:session:sess_url"))

	_, err = NewRedisStoreFromURL("://bad", 0)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewStore_Errors(t *testing.T) {
	_, err := NewStore(StoreTypeRedis)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewStore("sqlite")
	assert.ErrorIs(t, err, ErrInvalidStoreType)
}
