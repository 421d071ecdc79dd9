package tracker

import (
	"math"
	"time"
)

// Outcome is the result of applying a fresh snapshot to a tracked listing.
type Outcome int

const (
	Unchanged Outcome = iota
	Changed
	NotFound
)

func (o Outcome) String() string {
	switch o {
	case Changed:
		return "changed"
	case NotFound:
		return "not_found"
	default:
		return "unchanged"
	}
}

// Direction of an accepted price change.
type Direction string

const (
	Increase Direction = "increase"
	Decrease Direction = "decrease"
)

// PriceChange describes an accepted, notification-worthy price change.
type PriceChange struct {
	OldPrice int64
	NewPrice int64
	Percent  float64 // Absolute percentage, always >= 0
	At       time.Time
}

// Direction reports whether the price went up or down.
func (c PriceChange) Direction() Direction {
	if c.NewPrice < c.OldPrice {
		return Decrease
	}
	return Increase
}

// Delta is the signed price difference.
func (c PriceChange) Delta() int64 {
	return c.NewPrice - c.OldPrice
}

// Savings is the amount saved on a decrease, zero otherwise.
func (c PriceChange) Savings() int64 {
	if c.NewPrice < c.OldPrice {
		return c.OldPrice - c.NewPrice
	}
	return 0
}

// Update is what ApplySnapshot reports back to the caller.
type Update struct {
	Outcome Outcome
	Change  *PriceChange // Set only when Outcome == Changed
}

// PercentDelta returns |new-old|*100/old. A zero old price yields +Inf for any change.
func PercentDelta(oldPrice, newPrice int64) float64 {
	if oldPrice == newPrice {
		return 0
	}
	if oldPrice == 0 {
		return math.Inf(1)
	}
	return float64(absDelta(oldPrice, newPrice)*100) / float64(oldPrice)
}

// MeetsThreshold reports whether the move from oldPrice to newPrice is at least
// threshold percent. The integer side is scaled instead of divided so a change
// landing exactly on the threshold is never rounded below it.
func MeetsThreshold(oldPrice, newPrice int64, threshold float64) bool {
	if oldPrice == newPrice {
		return threshold <= 0
	}
	if oldPrice == 0 {
		return true
	}
	return float64(absDelta(oldPrice, newPrice)*100) >= threshold*float64(oldPrice)
}

func absDelta(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}

// ApplySnapshot runs change detection for one poll of the listing.
// LastCheckedAt is always refreshed. The price and history only move when the
// change reaches threshold percent; smaller drift is absorbed.
func (l *Listing) ApplySnapshot(snap *Snapshot, threshold float64, now time.Time) Update {
	l.LastCheckedAt = now

	if snap.Price == l.CurrentPrice {
		return Update{Outcome: Unchanged}
	}

	if !MeetsThreshold(l.CurrentPrice, snap.Price, threshold) {
		return Update{Outcome: Unchanged}
	}
	percent := PercentDelta(l.CurrentPrice, snap.Price)

	change := &PriceChange{
		OldPrice: l.CurrentPrice,
		NewPrice: snap.Price,
		Percent:  percent,
		At:       now,
	}
	l.CurrentPrice = snap.Price
	l.History = append(l.History, PricePoint{Price: snap.Price, At: now})

	return Update{Outcome: Changed, Change: change}
}

// ChangeSinceAdded is the signed difference between the current and initial price,
// and the matching signed percentage.
func (l *Listing) ChangeSinceAdded() (delta int64, percent float64) {
	delta = l.CurrentPrice - l.InitialPrice
	if delta == 0 || l.InitialPrice == 0 {
		return delta, 0
	}
	return delta, float64(delta) / float64(l.InitialPrice) * 100
}
