package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err, "start miniredis")
	t.Cleanup(s.Close)

	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return s, rdb
}

func TestStores(t *testing.T) {
	_, rdb := newRedis(t)
	stores := map[string]Store{
		"memory": NewMemoryStore(time.Hour),
		"redis":  NewRedisStore(rdb, time.Hour),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			s, err := store.Get(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, MainMenu, s.State, "unknown user starts at main menu")

			s.State = AddingURL
			s.PendingOverrideURL = "https://auto.ru/cars/1/"
			require.NoError(t, store.Put(ctx, "u1", s))

			// Mutating the caller's copy does not touch the stored one.
			s.State = FilterMenu

			got, err := store.Get(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, AddingURL, got.State)
			assert.Equal(t, "https://auto.ru/cars/1/", got.PendingOverrideURL)

			other, err := store.Get(ctx, "u2")
			require.NoError(t, err)
			assert.Equal(t, MainMenu, other.State, "sessions are per user")
		})
	}
}

func TestSessionReset(t *testing.T) {
	s := &Session{State: AwaitingYearMax, PendingOverrideURL: "x"}
	s.Reset()
	assert.Equal(t, MainMenu, s.State)
	assert.Empty(t, s.PendingOverrideURL)
}

func TestMemoryStoreExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemoryStore(time.Hour)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "u1", &Session{State: ChoosingCity}))
	now = now.Add(59 * time.Minute)
	s, _ := m.Get(ctx, "u1")
	assert.Equal(t, ChoosingCity, s.State)

	now = now.Add(2 * time.Minute)
	s, _ = m.Get(ctx, "u1")
	assert.Equal(t, MainMenu, s.State, "idle session expired")
}

func TestRedisStoreExpiry(t *testing.T) {
	mr, rdb := newRedis(t)
	store := NewRedisStore(rdb, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "u1", &Session{State: AwaitingPriceMin}))
	mr.FastForward(2 * time.Minute)

	s, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, MainMenu, s.State)
}

func TestRedisStoreCorruptValue(t *testing.T) {
	mr, rdb := newRedis(t)
	require.NoError(t, mr.Set(sessionKeyPrefix+"u1", "{not json"))

	s, err := NewRedisStore(rdb, time.Minute).Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, MainMenu, s.State)
}

func TestLockers(t *testing.T) {
	_, rdb := newRedis(t)
	lockers := map[string]Locker{
		"memory": NewMemoryLocker(),
		"redis":  NewRedisLocker(rdb, time.Minute),
	}

	for name, locker := range lockers {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			unlock, err := locker.TryLock(ctx, "u1")
			require.NoError(t, err)

			_, err = locker.TryLock(ctx, "u1")
			assert.ErrorIs(t, err, ErrBusy, "second lock on the same user")

			unlockOther, err := locker.TryLock(ctx, "u2")
			require.NoError(t, err, "other users are independent")
			unlockOther()

			unlock()
			unlock() // idempotent

			unlock, err = locker.TryLock(ctx, "u1")
			require.NoError(t, err, "lock is free after unlock")
			unlock()
		})
	}
}

func TestRedisLockerStaleUnlock(t *testing.T) {
	mr, rdb := newRedis(t)
	locker := NewRedisLocker(rdb, time.Minute)
	ctx := context.Background()

	staleUnlock, err := locker.TryLock(ctx, "u1")
	require.NoError(t, err)

	// The first holder's lock expires and someone else takes it.
	mr.FastForward(2 * time.Minute)
	unlock, err := locker.TryLock(ctx, "u1")
	require.NoError(t, err)

	staleUnlock()
	_, err = locker.TryLock(ctx, "u1")
	assert.ErrorIs(t, err, ErrBusy, "stale holder must not release the new lock")
	unlock()
}
