// Package scraper fetches listing pages and reads their price from site-independent markup.
package scraper

import (
	"bytes"
	"carwatch/pkg/tracker"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// ErrUnsupportedSite is returned for URLs outside the supported sites.
var ErrUnsupportedSite = errors.New("unsupported site")

// ErrNoPrice is returned when a page carries no recognizable price.
var ErrNoPrice = errors.New("no price found on page")

// HTTP403Error indicates a 403 Forbidden response (blocked or login required).
type HTTP403Error struct {
	URL string
}

func (e *HTTP403Error) Error() string {
	return fmt.Sprintf("HTTP 403 Forbidden: %s", e.URL)
}

// IsHTTP403Error checks if an error is an HTTP 403 error.
func IsHTTP403Error(err error) bool {
	var forbidden *HTTP403Error
	return errors.As(err, &forbidden)
}

// HTTPStatusError is a non-OK response other than 403.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.URL)
}

// FetchError wraps any failure to produce a snapshot for a URL.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsFetchError checks if an error came out of Fetch.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// Scraper fetches listing pages over HTTP.
type Scraper struct {
	client   *http.Client
	logger   *slog.Logger
	attempts uint
	delay    time.Duration
}

// New creates a new scraper.
func New(client *http.Client, logger *slog.Logger) *Scraper {
	return &Scraper{
		client:   client,
		logger:   logger,
		attempts: 3,
		delay:    time.Second,
	}
}

// Fetch downloads url and returns its current snapshot.
// The caller bounds the total time through ctx.
func (s *Scraper) Fetch(ctx context.Context, url string) (*tracker.Snapshot, error) {
	site, ok := tracker.SiteFor(url)
	if !ok {
		return nil, &FetchError{URL: url, Err: ErrUnsupportedSite}
	}

	var snap *tracker.Snapshot
	err := retry.Do(
		func() error {
			body, err := s.get(ctx, url)
			if err != nil {
				return err
			}

			snap, err = parseListing(body)
			if err != nil {
				s.logger.Warn("Failed to parse listing page", "url", url, "error", err)
				return retry.Unrecoverable(err)
			}
			return nil
		},
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.MaxDelay(10*time.Second),
		retry.MaxJitter(s.delay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Info("Retrying fetch after error", "url", url, "attempt", n, "error", err)
		}),
		retry.RetryIf(retryable),
	)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	snap.Site = site
	s.logger.Info("Listing fetched", "url", url, "title", snap.Title, "price", snap.Price, "currency", snap.Currency)
	return snap, nil
}

// retryable keeps 403s and client errors from being retried.
func retryable(err error) bool {
	if IsHTTP403Error(err) {
		return false
	}
	var status *HTTPStatusError
	if errors.As(err, &status) {
		return status.StatusCode == http.StatusTooManyRequests || status.StatusCode >= 500
	}
	return true
}

func (s *Scraper) get(ctx context.Context, url string) (io.Reader, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9,en;q=0.8")

	start := time.Now()
	resp, err := s.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		s.logger.Warn("HTTP request failed", "url", url, "duration_ms", duration.Milliseconds(), "error", err)
		return nil, err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			s.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	s.logger.Debug("HTTP request completed",
		"url", url,
		"status_code", resp.StatusCode,
		"duration_ms", duration.Milliseconds())

	if resp.StatusCode == http.StatusForbidden {
		return nil, &HTTP403Error{URL: url}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPStatusError{URL: url, StatusCode: resp.StatusCode}
	}

	// Cap the read at 8 MiB.
	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return bytes.NewReader(data), nil
}
