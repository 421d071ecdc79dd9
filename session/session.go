// Package session keeps the ephemeral per-user conversation state.
package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is a conversation state.
type State string

// Conversation states.
const (
	MainMenu          State = "main_menu"
	ChoosingCity      State = "choosing_city"
	AddingURL         State = "adding_url"
	FilterMenu        State = "filter_menu"
	AwaitingPriceMin  State = "awaiting_price_min"
	AwaitingPriceMax  State = "awaiting_price_max"
	AwaitingYearMin   State = "awaiting_year_min"
	AwaitingYearMax   State = "awaiting_year_max"
	ChoosingCondition State = "choosing_condition"
	ChoosingDocuments State = "choosing_documents"
)

// ErrBusy is returned when another transition for the same user holds the lock.
var ErrBusy = errors.New("session: transition in progress")

// Session is the conversation state of one user.
type Session struct {
	State State `json:"state"`
	// PendingOverrideURL is the URL that failed the filter check; resubmitting it adds it anyway.
	PendingOverrideURL string `json:"pending_override_url,omitempty"`
}

// New returns a session in the initial state.
func New() *Session {
	return &Session{State: MainMenu}
}

// Reset returns the session to the main menu and drops pending values.
func (s *Session) Reset() {
	*s = Session{State: MainMenu}
}

// Store loads and saves sessions. Get returns a fresh session for unknown users.
type Store interface {
	Get(ctx context.Context, userID string) (*Session, error)
	Put(ctx context.Context, userID string, s *Session) error
}

// Locker serializes transitions per user without blocking.
// TryLock returns ErrBusy when the user is already locked.
type Locker interface {
	TryLock(ctx context.Context, userID string) (unlock func(), err error)
}

type memoryEntry struct {
	session   Session
	expiresAt time.Time
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]memoryEntry
}

// NewMemoryStore returns an in-memory store. Sessions idle longer than ttl start over; ttl <= 0 keeps them forever.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]memoryEntry),
	}
}

// Get returns a copy of the user's session.
func (m *MemoryStore) Get(_ context.Context, userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[userID]
	if !ok || (m.ttl > 0 && m.now().After(e.expiresAt)) {
		delete(m.sessions, userID)
		return New(), nil
	}
	s := e.session
	return &s, nil
}

// Put stores a copy of s.
func (m *MemoryStore) Put(_ context.Context, userID string, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[userID] = memoryEntry{session: *s, expiresAt: m.now().Add(m.ttl)}
	return nil
}

// MemoryLocker is a per-user TryLock over in-process mutexes.
type MemoryLocker struct {
	mu     sync.Mutex
	locked map[string]bool
}

// NewMemoryLocker returns an empty locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locked: make(map[string]bool)}
}

// TryLock locks userID or returns ErrBusy.
func (l *MemoryLocker) TryLock(_ context.Context, userID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locked[userID] {
		return nil, ErrBusy
	}
	l.locked[userID] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.locked, userID)
			l.mu.Unlock()
		})
	}, nil
}
