package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "carwatch:session:"
	lockKeyPrefix    = "carwatch:lock:"
)

// RedisStore keeps sessions as JSON values with an idle TTL.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore creates a store on rdb. ttl <= 0 defaults to 24h.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

// Get loads the user's session, or a fresh one if none is stored.
func (r *RedisStore) Get(ctx context.Context, userID string) (*Session, error) {
	data, err := r.rdb.Get(ctx, sessionKeyPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("session get: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		slog.Warn("Discarding undecodable session", "user_id", userID, "error", err)
		return New(), nil
	}
	if s.State == "" {
		s.State = MainMenu
	}
	return &s, nil
}

// Put stores s and refreshes its TTL.
func (r *RedisStore) Put(ctx context.Context, userID string, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := r.rdb.Set(ctx, sessionKeyPrefix+userID, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("session set: %w", err)
	}
	return nil
}

// Deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker is a per-user lock shared by every replica, built on SETNX.
// The TTL bounds how long a crashed holder can block the user.
type RedisLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisLocker creates a locker on rdb. ttl <= 0 defaults to 2m.
func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisLocker{rdb: rdb, ttl: ttl}
}

// TryLock takes the user's lock or returns ErrBusy.
func (l *RedisLocker) TryLock(ctx context.Context, userID string) (func(), error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	key := lockKeyPrefix + userID
	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock setnx: %w", err)
	}
	if !ok {
		return nil, ErrBusy
	}

	return func() {
		// The caller's context may already be cancelled; release regardless.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.rdb, []string{key}, token).Err(); err != nil {
			slog.Warn("Failed to release session lock", "user_id", userID, "error", err)
		}
	}, nil
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
