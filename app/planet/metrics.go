package planet

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	feedRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "planet_feed_refreshes_total",
		Help: "Feed refreshes by fetch status",
	}, []string{"status"})

	feedRefreshFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "planet_feed_refresh_failures_total",
		Help: "Feed refreshes that failed to persist or panicked",
	})

	itemsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "planet_items_new_total",
		Help: "Items seen for the first time",
	})

	itemsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "planet_items_expired_total",
		Help: "Items removed after falling off their feed",
	})

	feedRefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "planet_feed_refresh_duration_seconds",
		Help:    "Time spent fetching and reconciling one feed",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms up to ~25s
	})

	subscribedFeeds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "planet_subscribed_feeds",
		Help: "Number of subscribed feeds",
	})
)
