// Package tracker contains the core domain types for the listing price tracker.
package tracker

import (
	"errors"
	"time"
)

// DefaultThresholdPercent is the notification threshold given to new profiles.
const DefaultThresholdPercent = 5.0

// ErrDuplicateListing is returned when a URL is already tracked for the user.
var ErrDuplicateListing = errors.New("listing already tracked")

// Condition is the vehicle condition filter.
type Condition string

const (
	ConditionNew  Condition = "new"
	ConditionUsed Condition = "used"
	ConditionAny  Condition = "any"
)

// Documents is the paperwork filter.
type Documents string

const (
	DocumentsWith    Documents = "with_docs"
	DocumentsWithout Documents = "without_docs"
	DocumentsAny     Documents = "any"
)

// Filters are the acceptance constraints checked when a listing is added.
// A nil bound or empty enum means no constraint on that axis.
type Filters struct {
	PriceMin  *int64    `json:"price_min,omitempty"`
	PriceMax  *int64    `json:"price_max,omitempty"`
	YearMin   *int      `json:"year_min,omitempty"`
	YearMax   *int      `json:"year_max,omitempty"`
	Condition Condition `json:"condition,omitempty"`
	Documents Documents `json:"documents,omitempty"`
}

// IsZero reports whether no filter is set.
func (f Filters) IsZero() bool {
	return f.PriceMin == nil && f.PriceMax == nil && f.YearMin == nil && f.YearMax == nil &&
		f.Condition == "" && f.Documents == ""
}

// PricePoint is one entry of a listing's price history.
type PricePoint struct {
	Price int64     `json:"price"`
	At    time.Time `json:"at"`
}

// Listing is a tracked (user, URL) pair with its price ledger.
type Listing struct {
	URL           string       `json:"url"`
	Title         string       `json:"title"`
	Site          string       `json:"site"`
	Currency      string       `json:"currency,omitempty"`
	InitialPrice  int64        `json:"initial_price"`
	CurrentPrice  int64        `json:"current_price"`
	Year          *int         `json:"year,omitempty"`
	Mileage       *int         `json:"mileage,omitempty"`
	Location      string       `json:"location,omitempty"`
	AddedAt       time.Time    `json:"added_at"`
	LastCheckedAt time.Time    `json:"last_checked_at"`
	History       []PricePoint `json:"history"`
}

// Profile is the persisted per-user record.
type Profile struct {
	UserID           string     `json:"user_id"`
	City             string     `json:"city,omitempty"`
	ThresholdPercent float64    `json:"threshold_percent"`
	Filters          Filters    `json:"filters"`
	Listings         []*Listing `json:"listings"` // Insertion order, unique by URL
	CreatedAt        time.Time  `json:"created_at"`
}

// Snapshot is a normalized point-in-time read of a listing.
type Snapshot struct {
	Title    string
	Price    int64
	Currency string
	Site     string
	Year     *int
	Mileage  *int
	Location string

	// Optional attributes; nil or empty when the source cannot tell.
	Condition    Condition
	HasDocuments *bool
}

// NewProfile returns a profile with default settings.
func NewProfile(userID string, threshold float64, now time.Time) *Profile {
	if threshold <= 0 {
		threshold = DefaultThresholdPercent
	}
	return &Profile{
		UserID:           userID,
		ThresholdPercent: threshold,
		Listings:         []*Listing{},
		CreatedAt:        now,
	}
}

// NewListing creates a listing from its first snapshot, seeding the history.
func NewListing(url string, snap *Snapshot, now time.Time) *Listing {
	return &Listing{
		URL:           url,
		Title:         snap.Title,
		Site:          snap.Site,
		Currency:      snap.Currency,
		InitialPrice:  snap.Price,
		CurrentPrice:  snap.Price,
		Year:          copyInt(snap.Year),
		Mileage:       copyInt(snap.Mileage),
		Location:      snap.Location,
		AddedAt:       now,
		LastCheckedAt: now,
		History:       []PricePoint{{Price: snap.Price, At: now}},
	}
}

// Listing returns the tracked listing for url, or nil.
func (p *Profile) Listing(url string) *Listing {
	for _, l := range p.Listings {
		if l.URL == url {
			return l
		}
	}
	return nil
}

// AddListing appends a listing unless its URL is already tracked.
func (p *Profile) AddListing(l *Listing) error {
	if p.Listing(l.URL) != nil {
		return ErrDuplicateListing
	}
	p.Listings = append(p.Listings, l)
	return nil
}

// Clone returns a deep copy of the profile.
func (p *Profile) Clone() *Profile {
	c := *p
	c.Filters = p.Filters.Clone()
	c.Listings = make([]*Listing, len(p.Listings))
	for i, l := range p.Listings {
		c.Listings[i] = l.Clone()
	}
	return &c
}

// Clone returns a deep copy of the filters.
func (f Filters) Clone() Filters {
	c := f
	c.PriceMin = copyInt64(f.PriceMin)
	c.PriceMax = copyInt64(f.PriceMax)
	c.YearMin = copyInt(f.YearMin)
	c.YearMax = copyInt(f.YearMax)
	return c
}

// Clone returns a deep copy of the listing.
func (l *Listing) Clone() *Listing {
	c := *l
	c.Year = copyInt(l.Year)
	c.Mileage = copyInt(l.Mileage)
	c.History = append([]PricePoint(nil), l.History...)
	return &c
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

func copyInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
