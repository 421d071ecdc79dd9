// Package poll revisits every tracked listing and notifies users about price changes.
package poll

import (
	"carwatch/metrics"
	"carwatch/notify"
	"carwatch/pkg/tracker"
	"carwatch/scraper"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// ErrPassInProgress is returned by CheckAll when another pass is still running.
var ErrPassInProgress = errors.New("poll pass already in progress")

// Source fetches the current state of a listing.
type Source interface {
	Fetch(ctx context.Context, url string) (*tracker.Snapshot, error)
}

// Store is the part of the tracking store the scheduler needs.
type Store interface {
	Users() []string
	Listings(ctx context.Context, userID string) ([]*tracker.Listing, error)
	ApplyPriceUpdate(ctx context.Context, userID, url string, snap *tracker.Snapshot) (tracker.Update, error)
}

// Config controls the scheduler cadence.
type Config struct {
	Interval        time.Duration // Time between passes
	Pacing          time.Duration // Pause between consecutive fetches
	FetchTimeout    time.Duration
	PersistAttempts uint
	PollOnStart     bool
}

// PassStats summarizes one polling pass.
type PassStats struct {
	Users        int `json:"users"`
	Listings     int `json:"listings"`
	Changed      int `json:"changed"`
	Unchanged    int `json:"unchanged"`
	Failed       int `json:"failed"`
	Notified     int `json:"notified"`
	NotifyFailed int `json:"notify_failed"`
}

// Scheduler runs polling passes.
type Scheduler struct {
	source        Source
	store         Store
	dispatcher    notify.Dispatcher
	cfg           Config
	logger        *slog.Logger
	persistDelay  time.Duration
	notifyTimeout time.Duration

	passMu sync.Mutex // One pass at a time
}

// New creates a scheduler. Zero config values get defaults.
func New(source Source, store Store, dispatcher notify.Dispatcher, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Minute
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if cfg.PersistAttempts == 0 {
		cfg.PersistAttempts = 3
	}
	return &Scheduler{
		source:        source,
		store:         store,
		dispatcher:    dispatcher,
		cfg:           cfg,
		logger:        logger,
		persistDelay:  time.Second,
		notifyTimeout: 30 * time.Second,
	}
}

// Run performs a pass every Interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("Poll scheduler started",
		"interval", s.cfg.Interval.String(),
		"pacing", s.cfg.Pacing.String(),
		"fetch_timeout", s.cfg.FetchTimeout.String(),
		"poll_on_start", s.cfg.PollOnStart)

	if s.cfg.PollOnStart {
		s.runPass(ctx)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Poll scheduler stopped")
			return nil
		case <-ticker.C:
			s.runPass(ctx)
		}
	}
}

func (s *Scheduler) runPass(ctx context.Context) {
	_, err := s.CheckAll(ctx)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case errors.Is(err, ErrPassInProgress):
		s.logger.Info("Skipping scheduled pass, previous pass still running")
	default:
		s.logger.Error("Poll pass failed", "error", err)
	}
}

// CheckAll polls every tracked listing of every user once.
// Cancellation is observed between listings; the partial stats are returned with ctx.Err().
// If a pass is already running it returns ErrPassInProgress without waiting.
func (s *Scheduler) CheckAll(ctx context.Context) (PassStats, error) {
	if !s.passMu.TryLock() {
		return PassStats{}, ErrPassInProgress
	}
	defer s.passMu.Unlock()

	start := time.Now()
	var stats PassStats
	defer func() {
		metrics.PollPassDuration.Observe(time.Since(start).Seconds())
		metrics.TrackedListings.Set(float64(stats.Listings))
	}()

	users := s.store.Users()
	s.logger.Info("Poll pass started", "users", len(users))

	first := true
	for _, userID := range users {
		listings, err := s.store.Listings(ctx, userID)
		if err != nil {
			s.logger.Warn("Failed to load listings", "user_id", userID, "error", err)
			continue
		}
		stats.Users++

		for _, l := range listings {
			if err := ctx.Err(); err != nil {
				s.logger.Info("Context cancelled, stopping poll pass", "error", err)
				return stats, err
			}
			if !first && s.cfg.Pacing > 0 {
				select {
				case <-ctx.Done():
					s.logger.Info("Context cancelled, stopping poll pass", "error", ctx.Err())
					return stats, ctx.Err()
				case <-time.After(s.cfg.Pacing):
				}
			}
			first = false

			stats.Listings++
			s.checkListing(ctx, userID, l, &stats)
		}
	}

	s.logger.Info("Poll pass completed",
		"users", stats.Users,
		"listings", stats.Listings,
		"changed", stats.Changed,
		"unchanged", stats.Unchanged,
		"failed", stats.Failed,
		"notified", stats.Notified,
		"notify_failed", stats.NotifyFailed,
		"duration_ms", time.Since(start).Milliseconds())
	return stats, nil
}

func (s *Scheduler) checkListing(ctx context.Context, userID string, l *tracker.Listing, stats *PassStats) {
	snap, err := s.fetch(ctx, l)
	if err != nil {
		stats.Failed++
		s.logger.Warn("Listing fetch failed", "user_id", userID, "url", l.URL, "error", err)
		return
	}

	upd, err := s.persist(ctx, userID, l.URL, snap)
	if err != nil {
		stats.Failed++
		metrics.PersistFailuresTotal.Inc()
		s.logger.Error("Failed to save price update", "user_id", userID, "url", l.URL, "error", err)
		return
	}

	switch upd.Outcome {
	case tracker.NotFound:
		// Removed while the pass was running.
		s.logger.Debug("Listing no longer tracked", "user_id", userID, "url", l.URL)
		return
	case tracker.Unchanged:
		stats.Unchanged++
		return
	}

	stats.Changed++
	metrics.PriceChangesTotal.WithLabelValues(string(upd.Change.Direction())).Inc()
	s.logger.Info("Price change detected",
		"user_id", userID,
		"url", l.URL,
		"old_price", upd.Change.OldPrice,
		"new_price", upd.Change.NewPrice,
		"percent", upd.Change.Percent,
		"direction", upd.Change.Direction())

	// The change is already saved and will read as unchanged next pass,
	// so the alert must go out even when shutdown cancelled ctx.
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()

	text := notify.FormatPriceChange(l, upd.Change)
	if err := s.dispatcher.Notify(nctx, userID, text); err != nil {
		stats.NotifyFailed++
		metrics.NotificationsTotal.WithLabelValues("error").Inc()
		s.logger.Warn("Notification failed", "user_id", userID, "url", l.URL, "error", err)
		return
	}
	stats.Notified++
	metrics.NotificationsTotal.WithLabelValues("ok").Inc()
}

func (s *Scheduler) fetch(ctx context.Context, l *tracker.Listing) (*tracker.Snapshot, error) {
	fctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	snap, err := s.source.Fetch(fctx, l.URL)
	metrics.FetchDuration.WithLabelValues(l.Site).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.FetchesTotal.WithLabelValues(l.Site, "ok").Inc()
	case scraper.IsHTTP403Error(err):
		metrics.FetchesTotal.WithLabelValues(l.Site, "forbidden").Inc()
	default:
		metrics.FetchesTotal.WithLabelValues(l.Site, "error").Inc()
	}
	return snap, err
}

// persist applies the snapshot with retries. It runs detached from cancellation
// so a shutdown does not abandon an update halfway.
func (s *Scheduler) persist(ctx context.Context, userID, url string, snap *tracker.Snapshot) (tracker.Update, error) {
	pctx := context.WithoutCancel(ctx)

	var upd tracker.Update
	err := retry.Do(
		func() error {
			var err error
			upd, err = s.store.ApplyPriceUpdate(pctx, userID, url, snap)
			return err
		},
		retry.Attempts(s.cfg.PersistAttempts),
		retry.Delay(s.persistDelay),
		retry.MaxJitter(s.persistDelay),
		retry.Context(pctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Info("Retrying price update save after error", "user_id", userID, "url", url, "attempt", n, "error", err)
		}),
	)
	if err != nil {
		return tracker.Update{}, fmt.Errorf("apply price update: %w", err)
	}
	return upd, nil
}
