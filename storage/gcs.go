package storage

import (
	"carwatch/pkg/tracker"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
	"google.golang.org/api/iterator"
)

// GCSBackend keeps one JSON object per user in a Cloud Storage bucket.
type GCSBackend struct {
	client *gcs.Client
	bucket string
	logger *slog.Logger
}

// NewGCSBackend creates a backend for the given bucket.
func NewGCSBackend(client *gcs.Client, bucket string, logger *slog.Logger) *GCSBackend {
	return &GCSBackend{
		client: client,
		bucket: bucket,
		logger: logger,
	}
}

func retryOpts(ctx context.Context, logger *slog.Logger, op, key string) []retry.Option {
	return []retry.Option{
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2 * time.Minute),
		retry.MaxJitter(10 * time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			logger.Info("Retrying storage operation after error", "op", op, "attempt", n, "key", key, "error", err)
		}),
	}
}

// Save writes the profile object.
func (b *GCSBackend) Save(ctx context.Context, p *tracker.Profile) error {
	key := RecordKey(p.UserID)
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	err = retry.Do(
		func() error {
			w := b.client.Bucket(b.bucket).Object(key).NewWriter(ctx)
			w.ContentType = "application/json"
			if _, writeErr := w.Write(data); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					b.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write to storage: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close storage writer: %w", closeErr)
			}
			return nil
		},
		retryOpts(ctx, b.logger, "save", key)...,
	)
	if err != nil {
		return fmt.Errorf("save after retries: %w", err)
	}

	b.logger.Debug("Profile saved", "key", key, "user_id", p.UserID, "listing_count", len(p.Listings))
	return nil
}

// Load reads a profile by user ID.
func (b *GCSBackend) Load(ctx context.Context, userID string) (*tracker.Profile, error) {
	return b.load(ctx, RecordKey(userID))
}

func (b *GCSBackend) load(ctx context.Context, key string) (*tracker.Profile, error) {
	var (
		data     []byte
		notFound bool
	)
	err := retry.Do(
		func() error {
			r, openErr := b.client.Bucket(b.bucket).Object(key).NewReader(ctx)
			if openErr != nil {
				if errors.Is(openErr, gcs.ErrObjectNotExist) {
					notFound = true
					return retry.Unrecoverable(ErrNotFound)
				}
				return fmt.Errorf("open storage reader: %w", openErr)
			}
			defer func() {
				if closeErr := r.Close(); closeErr != nil {
					b.logger.Warn("Failed to close storage reader", "error", closeErr)
				}
			}()

			var readErr error
			data, readErr = io.ReadAll(r)
			if readErr != nil {
				return fmt.Errorf("read from storage: %w", readErr)
			}
			return nil
		},
		retryOpts(ctx, b.logger, "load", key)...,
	)
	if notFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load after retries: %w", err)
	}

	return decodeProfile(data)
}

// List loads every profile object in the bucket.
func (b *GCSBackend) List(ctx context.Context) ([]*tracker.Profile, error) {
	var (
		profiles []*tracker.Profile
		corrupt  []string
	)

	it := b.client.Bucket(b.bucket).Objects(ctx, &gcs.Query{Prefix: "user-"})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate storage: %w", err)
		}

		p, err := b.load(ctx, attrs.Name)
		switch {
		case IsNotFound(err):
			continue
		case errors.Is(err, errCorrupt):
			b.logger.Warn("Failed to decode profile", "key", attrs.Name, "error", err)
			corrupt = append(corrupt, attrs.Name)
			continue
		case err != nil:
			return nil, fmt.Errorf("load profile %s: %w", attrs.Name, err)
		}
		profiles = append(profiles, p)
	}

	if len(corrupt) > 0 {
		return profiles, &CorruptRecordsError{Keys: corrupt}
	}
	return profiles, nil
}
