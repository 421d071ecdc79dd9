package tracker

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestListing(price int64, at time.Time) *Listing {
	return NewListing("https://auto.ru/cars/used/sale/kia/rio/1/", &Snapshot{
		Title: "Kia Rio",
		Price: price,
		Site:  "auto.ru",
	}, at)
}

func TestApplySnapshotThresholdScenario(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	l := newTestListing(1_000_000, t0)

	// 4% drop stays below the 5% threshold.
	t1 := t0.Add(30 * time.Minute)
	upd := l.ApplySnapshot(&Snapshot{Price: 960_000}, 5, t1)
	require.Equal(t, Unchanged, upd.Outcome, "4% drop")
	assert.Equal(t, int64(1_000_000), l.CurrentPrice)
	assert.Len(t, l.History, 1)
	assert.True(t, l.LastCheckedAt.Equal(t1), "LastCheckedAt = %v, want %v", l.LastCheckedAt, t1)

	// 10% drop is accepted.
	t2 := t1.Add(30 * time.Minute)
	upd = l.ApplySnapshot(&Snapshot{Price: 900_000}, 5, t2)
	require.Equal(t, Changed, upd.Outcome, "10% drop")
	require.NotNil(t, upd.Change)
	assert.Equal(t, Decrease, upd.Change.Direction())
	assert.Equal(t, int64(100_000), upd.Change.Savings())
	assert.InDelta(t, 10, upd.Change.Percent, 1e-9)

	last := l.History[len(l.History)-1]
	assert.Equal(t, int64(900_000), last.Price)
	assert.True(t, last.At.Equal(t2), "last history entry at %v, want %v", last.At, t2)
	assert.Equal(t, int64(900_000), l.CurrentPrice)
}

func TestApplySnapshotIdempotent(t *testing.T) {
	now := time.Now()
	l := newTestListing(500_000, now)

	snap := &Snapshot{Price: 600_000}
	require.Equal(t, Changed, l.ApplySnapshot(snap, 5, now.Add(time.Minute)).Outcome, "first apply")
	require.Equal(t, Unchanged, l.ApplySnapshot(snap, 5, now.Add(2*time.Minute)).Outcome, "second apply")
	assert.Len(t, l.History, 2)
}

func TestApplySnapshotExactThreshold(t *testing.T) {
	now := time.Now()
	l := newTestListing(100_000, now)

	upd := l.ApplySnapshot(&Snapshot{Price: 105_000}, 5, now)
	require.Equal(t, Changed, upd.Outcome, "exactly the threshold must be accepted")
	assert.Equal(t, Increase, upd.Change.Direction())
	assert.Zero(t, upd.Change.Savings(), "no savings on an increase")
}

func TestApplySnapshotNonDefaultThreshold(t *testing.T) {
	tests := []struct {
		name      string
		old, new  int64
		threshold float64
		want      Outcome
	}{
		{"29 percent drop on small price", 100, 71, 29, Changed},
		{"29 percent drop on large price", 1_000_000, 710_000, 29, Changed},
		{"just under 29 percent", 1_000_000, 710_001, 29, Unchanged},
		{"fractional threshold met", 1_000, 1_051, 5.1, Changed},
		{"fractional threshold missed", 1_000, 1_050, 5.1, Unchanged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.Now()
			l := newTestListing(tt.old, now)
			upd := l.ApplySnapshot(&Snapshot{Price: tt.new}, tt.threshold, now)
			require.Equal(t, tt.want, upd.Outcome)
			if tt.want == Changed {
				assert.GreaterOrEqual(t, upd.Change.Percent, tt.threshold, "reported percent below threshold")
			}
		})
	}
}

func TestHistoryInvariant(t *testing.T) {
	start := time.Now()
	l := newTestListing(1_000_000, start)
	prices := []int64{990_000, 800_000, 790_000, 1_200_000, 1_200_000, 600_000}

	for i, p := range prices {
		l.ApplySnapshot(&Snapshot{Price: p}, 5, start.Add(time.Duration(i+1)*time.Hour))

		last := l.History[len(l.History)-1]
		require.Equal(t, l.CurrentPrice, last.Price, "step %d: last history price", i)
		for j := 1; j < len(l.History); j++ {
			require.False(t, l.History[j].At.Before(l.History[j-1].At), "step %d: history out of order at %d", i, j)
		}
	}
	assert.Equal(t, int64(1_000_000), l.InitialPrice, "InitialPrice mutated")
}

func TestPercentDelta(t *testing.T) {
	tests := []struct {
		name     string
		old, new int64
		want     float64
	}{
		{"equal", 100, 100, 0},
		{"decrease", 200, 150, 25},
		{"increase", 200, 300, 50},
		{"from zero", 0, 10, math.Inf(1)},
		{"exact 29", 100, 71, 29},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PercentDelta(tt.old, tt.new))
		})
	}
}

func TestMeetsThreshold(t *testing.T) {
	assert.True(t, MeetsThreshold(100, 71, 29))
	assert.False(t, MeetsThreshold(100, 72, 29))
	assert.True(t, MeetsThreshold(0, 1, 5), "any move off a zero price counts")
	assert.False(t, MeetsThreshold(100, 100, 5))
}

func TestProfileAddListingDuplicate(t *testing.T) {
	now := time.Now()
	p := NewProfile("42", 0, now)
	assert.Equal(t, DefaultThresholdPercent, p.ThresholdPercent)

	l := newTestListing(1, now)
	require.NoError(t, p.AddListing(l))
	require.ErrorIs(t, p.AddListing(l.Clone()), ErrDuplicateListing)
	assert.Len(t, p.Listings, 1)
}

func TestSiteFor(t *testing.T) {
	tests := []struct {
		url  string
		site string
		ok   bool
	}{
		{"https://auto.ru/cars/used/sale/kia/rio/1234567890/", "auto.ru", true},
		{"https://moscow.drom.ru/kia/rio/12345.html", "drom.ru", true},
		{"  https://auto.ru/x  ", "auto.ru", true},
		{"https://example.com/auto.ru", "", false},
		{"auto.ru/cars/1", "", false},
		{"not a url", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			site, ok := SiteFor(tt.url)
			assert.Equal(t, tt.site, site)
			assert.Equal(t, tt.ok, ok)
		})
	}
}
