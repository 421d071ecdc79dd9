// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchesTotal counts listing fetches by site and status (ok, error, forbidden).
	FetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carwatch_fetches_total",
		Help: "Listing page fetches by site and status.",
	}, []string{"site", "status"})

	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "carwatch_fetch_duration_seconds",
		Help:    "Listing page fetch latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"site"})

	// PriceChangesTotal counts accepted price changes by direction.
	PriceChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carwatch_price_changes_total",
		Help: "Accepted price changes by direction.",
	}, []string{"direction"})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carwatch_notifications_total",
		Help: "Notification deliveries by status.",
	}, []string{"status"})

	PersistFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carwatch_persist_failures_total",
		Help: "Price updates that could not be saved after all attempts.",
	})

	PollPassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "carwatch_poll_pass_duration_seconds",
		Help:    "Duration of a full polling pass.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
	})

	TrackedListings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "carwatch_tracked_listings",
		Help: "Listings visited in the last polling pass.",
	})

	// MessagesTotal counts inbound chat messages by outcome (handled, busy, error).
	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carwatch_messages_total",
		Help: "Inbound chat messages by outcome.",
	}, []string{"outcome"})
)
