// Package storage handles persistence of user profiles and their tracked listings.
package storage

import (
	"carwatch/pkg/tracker"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned by a Backend when no record exists for a user.
var ErrNotFound = errors.New("storage: object doesn't exist")

// IsNotFound checks if an error indicates a profile was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// ErrUnreadable is returned for a user whose stored record exists but could not be decoded.
// The record is left alone until an operator repairs or removes it.
var ErrUnreadable = errors.New("storage: stored profile is unreadable")

var errCorrupt = errors.New("corrupt profile record")

// CorruptRecordsError is returned by Backend.List together with the profiles it
// could decode. Keys are the record keys that were skipped.
type CorruptRecordsError struct {
	Keys []string
}

func (e *CorruptRecordsError) Error() string {
	return fmt.Sprintf("%d stored profiles could not be decoded", len(e.Keys))
}

func decodeProfile(data []byte) (*tracker.Profile, error) {
	var p tracker.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w: %w", errCorrupt, err)
	}
	return &p, nil
}

// Backend is the durable layer under the Store.
// List fails on any read error. Records that were read but do not decode are
// reported through a *CorruptRecordsError alongside the rest.
type Backend interface {
	Load(ctx context.Context, userID string) (*tracker.Profile, error)
	Save(ctx context.Context, p *tracker.Profile) error
	List(ctx context.Context) ([]*tracker.Profile, error)
}

// RecordKey generates a stable, path-safe object name for a user ID.
func RecordKey(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return fmt.Sprintf("user-%s.json", hex.EncodeToString(sum[:]))
}

// Store is the tracking store shared by the conversation engine and the poller.
//
// All records are held in memory and written through the backend on every
// mutation. Mutations run against a private copy of the record under a
// per-user lock; the copy only becomes visible after the backend accepted it.
type Store struct {
	backend   Backend
	logger    *slog.Logger
	threshold float64
	now       func() time.Time

	mu      sync.RWMutex
	records map[string]*tracker.Profile
	locks   map[string]*sync.Mutex

	unreadable map[string]bool // Record keys that exist but failed to decode; fixed after Open
}

// Open loads every stored profile and returns a ready Store.
func Open(ctx context.Context, backend Backend, threshold float64, logger *slog.Logger) (*Store, error) {
	profiles, err := backend.List(ctx)
	var corrupt *CorruptRecordsError
	if err != nil && !errors.As(err, &corrupt) {
		return nil, fmt.Errorf("list profiles: %w", err)
	}

	s := &Store{
		backend:   backend,
		logger:    logger,
		threshold: threshold,
		now:       time.Now,
		records:   make(map[string]*tracker.Profile, len(profiles)),
		locks:     make(map[string]*sync.Mutex, len(profiles)),

		unreadable: make(map[string]bool),
	}
	if corrupt != nil {
		for _, key := range corrupt.Keys {
			s.unreadable[key] = true
		}
		logger.Error("Stored profiles could not be decoded, their users are blocked until repaired",
			"count", len(corrupt.Keys), "keys", corrupt.Keys)
	}
	var listings int
	for _, p := range profiles {
		if p.Listings == nil {
			p.Listings = []*tracker.Listing{}
		}
		s.records[p.UserID] = p
		listings += len(p.Listings)
	}

	logger.Info("Profiles loaded", "users", len(profiles), "listings", listings)
	return s, nil
}

func (s *Store) lock(userID string) func() {
	s.mu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (s *Store) current(userID string) *tracker.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[userID]
}

// commit writes p through the backend and publishes it. Callers hold the user lock.
func (s *Store) commit(ctx context.Context, p *tracker.Profile) error {
	if err := s.backend.Save(ctx, p); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	s.mu.Lock()
	s.records[p.UserID] = p
	s.mu.Unlock()
	return nil
}

// mutate applies fn to a copy of the user's profile, creating it first if needed.
func (s *Store) mutate(ctx context.Context, userID string, fn func(p *tracker.Profile) error) (*tracker.Profile, error) {
	unlock := s.lock(userID)
	defer unlock()

	var next *tracker.Profile
	switch cur := s.current(userID); {
	case cur != nil:
		next = cur.Clone()
	case s.unreadable[RecordKey(userID)]:
		// A fresh profile would overwrite the stored one.
		return nil, fmt.Errorf("user %s: %w", userID, ErrUnreadable)
	default:
		next = tracker.NewProfile(userID, s.threshold, s.now())
	}

	if err := fn(next); err != nil {
		return nil, err
	}
	if err := s.commit(ctx, next); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

// Profile returns the user's profile, creating one with defaults on first access.
func (s *Store) Profile(ctx context.Context, userID string) (*tracker.Profile, error) {
	if p := s.current(userID); p != nil {
		unlock := s.lock(userID)
		defer unlock()
		return s.current(userID).Clone(), nil
	}

	p, err := s.mutate(ctx, userID, func(*tracker.Profile) error { return nil })
	if err != nil {
		return nil, err
	}
	s.logger.Info("Profile created", "user_id", userID)
	return p, nil
}

// UpdateFilters applies a partial filter update and persists it.
func (s *Store) UpdateFilters(ctx context.Context, userID string, fn func(f *tracker.Filters)) (*tracker.Profile, error) {
	return s.mutate(ctx, userID, func(p *tracker.Profile) error {
		fn(&p.Filters)
		return nil
	})
}

// SetCity records the user's city.
func (s *Store) SetCity(ctx context.Context, userID, city string) (*tracker.Profile, error) {
	return s.mutate(ctx, userID, func(p *tracker.Profile) error {
		p.City = city
		return nil
	})
}

// AddListing starts tracking url for the user.
// Returns tracker.ErrDuplicateListing if the URL is already tracked.
func (s *Store) AddListing(ctx context.Context, userID, url string, snap *tracker.Snapshot) (*tracker.Listing, error) {
	var added *tracker.Listing
	_, err := s.mutate(ctx, userID, func(p *tracker.Profile) error {
		added = tracker.NewListing(url, snap, s.now())
		return p.AddListing(added)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Listing added", "user_id", userID, "url", url, "price", added.CurrentPrice, "site", added.Site)
	return added.Clone(), nil
}

// Listings returns the user's tracked listings in insertion order.
func (s *Store) Listings(ctx context.Context, userID string) ([]*tracker.Listing, error) {
	p, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.Listings, nil
}

// ApplyPriceUpdate runs change detection for one tracked listing and persists the result.
// An unknown user or URL yields tracker.NotFound without touching storage.
func (s *Store) ApplyPriceUpdate(ctx context.Context, userID, url string, snap *tracker.Snapshot) (tracker.Update, error) {
	unlock := s.lock(userID)
	defer unlock()

	cur := s.current(userID)
	if cur == nil || cur.Listing(url) == nil {
		return tracker.Update{Outcome: tracker.NotFound}, nil
	}

	next := cur.Clone()
	upd := next.Listing(url).ApplySnapshot(snap, next.ThresholdPercent, s.now())
	if err := s.commit(ctx, next); err != nil {
		return tracker.Update{}, err
	}
	return upd, nil
}

// Users returns every known user ID, sorted.
func (s *Store) Users() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	return ids
}
