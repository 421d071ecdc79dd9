package storage

import (
	"carwatch/pkg/tracker"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openLocal(t *testing.T, dir string) *Store {
	t.Helper()
	backend, err := NewLocalBackend(dir, testLogger())
	require.NoError(t, err)
	s, err := Open(context.Background(), backend, tracker.DefaultThresholdPercent, testLogger())
	require.NoError(t, err)
	return s
}

// flakyBackend wraps a backend and fails saves while failing is set.
type flakyBackend struct {
	Backend
	mu      sync.Mutex
	failing bool
	saves   int
}

func (f *flakyBackend) setFailing(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = v
}

func (f *flakyBackend) Save(ctx context.Context, p *tracker.Profile) error {
	f.mu.Lock()
	f.saves++
	failing := f.failing
	f.mu.Unlock()
	if failing {
		return errors.New("disk full")
	}
	return f.Backend.Save(ctx, p)
}

// listFailBackend fails List, as a bucket read that exhausted its retries would.
type listFailBackend struct {
	Backend
}

func (listFailBackend) List(context.Context) ([]*tracker.Profile, error) {
	return nil, fmt.Errorf("load profile user-abc.json: %w", errors.New("503 service unavailable"))
}

func snapshot(price int64) *tracker.Snapshot {
	return &tracker.Snapshot{Title: "Kia Rio", Price: price, Site: "auto.ru"}
}

func TestProfileCreatedWithDefaults(t *testing.T) {
	dir := t.TempDir()
	s := openLocal(t, dir)
	ctx := context.Background()

	p, err := s.Profile(ctx, "1001")
	require.NoError(t, err)
	assert.InDelta(t, 5, p.ThresholdPercent, 1e-9)
	assert.Empty(t, p.City)
	assert.True(t, p.Filters.IsZero())
	assert.Empty(t, p.Listings)
	assert.FileExists(t, filepath.Join(dir, RecordKey("1001")), "profile not persisted on creation")
}

func TestAddListingDuplicate(t *testing.T) {
	s := openLocal(t, t.TempDir())
	ctx := context.Background()
	url := "https://auto.ru/cars/used/sale/kia/rio/1/"

	_, err := s.AddListing(ctx, "u1", url, snapshot(1_000_000))
	require.NoError(t, err)
	_, err = s.AddListing(ctx, "u1", url, snapshot(900_000))
	require.ErrorIs(t, err, tracker.ErrDuplicateListing)

	listings, err := s.Listings(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, int64(1_000_000), listings[0].CurrentPrice, "duplicate add changed the price")
}

func TestListingsInsertionOrder(t *testing.T) {
	s := openLocal(t, t.TempDir())
	ctx := context.Background()

	var want []string
	for i := 0; i < 5; i++ {
		url := fmt.Sprintf("https://drom.ru/kia/rio/%d.html", 50-i)
		want = append(want, url)
		_, err := s.AddListing(ctx, "u1", url, snapshot(int64(100_000+i)))
		require.NoError(t, err, "AddListing(%s)", url)
	}

	listings, err := s.Listings(ctx, "u1")
	require.NoError(t, err)
	var got []string
	for _, l := range listings {
		got = append(got, l.URL)
	}
	assert.Equal(t, want, got)
}

func TestApplyPriceUpdate(t *testing.T) {
	dir := t.TempDir()
	s := openLocal(t, dir)
	ctx := context.Background()
	url := "https://auto.ru/cars/used/sale/kia/rio/1/"

	_, err := s.AddListing(ctx, "u1", url, snapshot(1_000_000))
	require.NoError(t, err)

	upd, err := s.ApplyPriceUpdate(ctx, "u1", url, snapshot(960_000))
	require.NoError(t, err)
	assert.Equal(t, tracker.Unchanged, upd.Outcome, "4% drop")

	upd, err = s.ApplyPriceUpdate(ctx, "u1", url, snapshot(900_000))
	require.NoError(t, err)
	require.Equal(t, tracker.Changed, upd.Outcome, "10% drop")
	assert.Equal(t, int64(100_000), upd.Change.Savings())

	upd, err = s.ApplyPriceUpdate(ctx, "u1", url, snapshot(900_000))
	require.NoError(t, err)
	assert.Equal(t, tracker.Unchanged, upd.Outcome, "repeat")

	// The accepted change survives a restart.
	reopened := openLocal(t, dir)
	listings, err := reopened.Listings(ctx, "u1")
	require.NoError(t, err)
	l := listings[0]
	assert.Equal(t, int64(900_000), l.CurrentPrice)
	assert.Len(t, l.History, 2)
	assert.Equal(t, int64(1_000_000), l.InitialPrice)
}

func TestApplyPriceUpdateNotFound(t *testing.T) {
	s := openLocal(t, t.TempDir())

	upd, err := s.ApplyPriceUpdate(context.Background(), "ghost", "https://auto.ru/x", snapshot(1))
	require.NoError(t, err)
	assert.Equal(t, tracker.NotFound, upd.Outcome)
	assert.Empty(t, s.Users(), "ApplyPriceUpdate created a profile for an unknown user")
}

func TestFailedSaveLeavesStateUntouched(t *testing.T) {
	local, err := NewLocalBackend(t.TempDir(), testLogger())
	require.NoError(t, err)
	backend := &flakyBackend{Backend: local}
	s, err := Open(context.Background(), backend, 5, testLogger())
	require.NoError(t, err)
	ctx := context.Background()
	url := "https://auto.ru/cars/1/"

	_, err = s.AddListing(ctx, "u1", url, snapshot(1_000_000))
	require.NoError(t, err)

	backend.setFailing(true)
	_, err = s.ApplyPriceUpdate(ctx, "u1", url, snapshot(500_000))
	require.Error(t, err, "ApplyPriceUpdate succeeded with a failing backend")
	_, err = s.SetCity(ctx, "u1", "Kazan")
	require.Error(t, err, "SetCity succeeded with a failing backend")

	backend.setFailing(false)
	p, err := s.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, p.City, "City changed by a failed save")
	l := p.Listing(url)
	assert.Equal(t, int64(1_000_000), l.CurrentPrice, "listing mutated by failed save")
	assert.Len(t, l.History, 1)

	// Retrying the same snapshot after recovery applies it once.
	upd, err := s.ApplyPriceUpdate(ctx, "u1", url, snapshot(500_000))
	require.NoError(t, err)
	assert.Equal(t, tracker.Changed, upd.Outcome)
}

func TestConcurrentMutationsSameUser(t *testing.T) {
	s := openLocal(t, t.TempDir())
	ctx := context.Background()
	base := "https://auto.ru/cars/base/"
	_, err := s.AddListing(ctx, "u1", base, snapshot(1_000_000))
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			url := fmt.Sprintf("https://drom.ru/cars/%d.html", i)
			_, err := s.AddListing(ctx, "u1", url, snapshot(200_000))
			assert.NoError(t, err, "AddListing(%d)", i)
		}(i)
		go func(i int) {
			defer wg.Done()
			price := int64(1_000_000 - (i+1)*100_000/2)
			_, err := s.ApplyPriceUpdate(ctx, "u1", base, snapshot(price))
			assert.NoError(t, err, "ApplyPriceUpdate(%d)", i)
		}(i)
	}
	wg.Wait()

	listings, err := s.Listings(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, listings, n+1, "lost update")
	l := listings[0]
	assert.Equal(t, l.CurrentPrice, l.History[len(l.History)-1].Price, "history tail != current")
}

func TestUpdateFiltersPartial(t *testing.T) {
	s := openLocal(t, t.TempDir())
	ctx := context.Background()

	minPrice := int64(500_000)
	_, err := s.UpdateFilters(ctx, "u1", func(f *tracker.Filters) { f.PriceMin = &minPrice })
	require.NoError(t, err)
	p, err := s.UpdateFilters(ctx, "u1", func(f *tracker.Filters) { f.Condition = tracker.ConditionUsed })
	require.NoError(t, err)
	require.NotNil(t, p.Filters.PriceMin, "PriceMin lost after partial update")
	assert.Equal(t, int64(500_000), *p.Filters.PriceMin)
	assert.Equal(t, tracker.ConditionUsed, p.Filters.Condition)

	// Returned profiles are copies.
	*p.Filters.PriceMin = 1
	again, err := s.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(500_000), *again.Filters.PriceMin, "caller mutation leaked into the store")
}

func TestOpenFailsWhenRecordsCannotBeRead(t *testing.T) {
	local, err := NewLocalBackend(t.TempDir(), testLogger())
	require.NoError(t, err)

	_, err = Open(context.Background(), listFailBackend{Backend: local}, 5, testLogger())
	assert.Error(t, err, "a store opened over unread records would recreate and overwrite them")
}

func TestCorruptRecordIsNotOverwritten(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s := openLocal(t, dir)
	_, err := s.AddListing(ctx, "u1", "https://auto.ru/cars/1/", snapshot(1_000_000))
	require.NoError(t, err)

	path := filepath.Join(dir, RecordKey("u1"))
	garbage := []byte(`{"user_id":"u1","listings":[`)
	require.NoError(t, os.WriteFile(path, garbage, 0o600))

	s = openLocal(t, dir)
	_, err = s.Profile(ctx, "u1")
	assert.ErrorIs(t, err, ErrUnreadable)
	_, err = s.AddListing(ctx, "u1", "https://auto.ru/cars/2/", snapshot(500_000))
	assert.ErrorIs(t, err, ErrUnreadable)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(garbage), string(data), "stored record was rewritten")

	_, err = s.Profile(ctx, "u2")
	assert.NoError(t, err, "other users are unaffected")
}

func TestLocalBackendLoadMissing(t *testing.T) {
	b, err := NewLocalBackend(t.TempDir(), testLogger())
	require.NoError(t, err)

	_, err = b.Load(context.Background(), "nobody")
	assert.True(t, IsNotFound(err), "Load missing: err = %v, want not found", err)
}

func TestLocalBackendReportsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	b, err := NewLocalBackend(dir, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, b.Save(ctx, tracker.NewProfile("u1", 5, time.Now())))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "user-broken.json"), []byte("{"), 0o600))

	profiles, err := b.List(ctx)
	var corrupt *CorruptRecordsError
	require.ErrorAs(t, err, &corrupt)
	assert.Equal(t, []string{"user-broken.json"}, corrupt.Keys)
	require.Len(t, profiles, 1)
	assert.Equal(t, "u1", profiles[0].UserID)
}

func TestRecordKeyIsPathSafe(t *testing.T) {
	key := RecordKey("../../etc/passwd")
	assert.Equal(t, key, filepath.Base(key), "RecordKey produced a path")
	assert.NotEqual(t, RecordKey("a"), RecordKey("b"))
}
