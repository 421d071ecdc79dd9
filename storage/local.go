package storage

import (
	"carwatch/pkg/tracker"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LocalBackend keeps one JSON file per user in a directory.
type LocalBackend struct {
	path   string
	logger *slog.Logger
}

// NewLocalBackend creates the directory if needed and returns a backend rooted at it.
func NewLocalBackend(path string, logger *slog.Logger) (*LocalBackend, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create local storage directory: %w", err)
	}
	return &LocalBackend{path: path, logger: logger}, nil
}

// Save writes the profile atomically (temp file + rename).
func (b *LocalBackend) Save(ctx context.Context, p *tracker.Profile) error {
	key := RecordKey(p.UserID)
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	tmp, err := os.CreateTemp(b.path, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op once the rename succeeded.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write to local storage: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync local storage: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	filePath := filepath.Join(b.path, key)
	if err := os.Rename(tmpName, filePath); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}

	b.logger.Debug("Profile saved to local storage", "path", filePath, "user_id", p.UserID, "listing_count", len(p.Listings))
	return nil
}

// Load reads a profile by user ID.
func (b *LocalBackend) Load(ctx context.Context, userID string) (*tracker.Profile, error) {
	return b.loadFile(filepath.Join(b.path, RecordKey(userID)))
}

func (b *LocalBackend) loadFile(filePath string) (*tracker.Profile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read from local storage: %w", err)
	}

	return decodeProfile(data)
}

// List loads every profile in the directory.
func (b *LocalBackend) List(ctx context.Context) ([]*tracker.Profile, error) {
	entries, err := os.ReadDir(b.path)
	if err != nil {
		return nil, fmt.Errorf("read local storage directory: %w", err)
	}

	var (
		profiles []*tracker.Profile
		corrupt  []string
	)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "user-") || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		p, err := b.loadFile(filepath.Join(b.path, entry.Name()))
		switch {
		case IsNotFound(err):
			continue
		case errors.Is(err, errCorrupt):
			b.logger.Warn("Failed to decode profile", "file", entry.Name(), "error", err)
			corrupt = append(corrupt, entry.Name())
			continue
		case err != nil:
			return nil, fmt.Errorf("load profile %s: %w", entry.Name(), err)
		}
		profiles = append(profiles, p)
	}

	if len(corrupt) > 0 {
		return profiles, &CorruptRecordsError{Keys: corrupt}
	}
	return profiles, nil
}
