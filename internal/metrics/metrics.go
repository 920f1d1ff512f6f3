package metrics

import (
	"sync/atomic"
	"time"

	"github.com/maltedev/product-scraper/internal/models"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector tracks process-wide acquisition counters. Increments are atomic;
// Snapshot reads never block recording. The same counts are exported on a
// dedicated Prometheus registry.
type Collector struct {
	totalRequests    atomic.Int64
	successCount     atomic.Int64
	failureCount     atomic.Int64
	challengesSolved atomic.Int64
	proxyFailures    atomic.Int64
	activeSessions   atomic.Int64

	Registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration prometheus.Histogram
	challengesTotal prometheus.Counter
	proxyFailTotal  prometheus.Counter
	sessionsActive  prometheus.Gauge
	errorsTotal     *prometheus.CounterVec
}

// NewCollector constructs the collector and registers its Prometheus
// collectors on a fresh registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total acquisition requests by outcome.",
		},
		[]string{"outcome"},
	)
	duration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "Wall-clock duration of acquisition requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	challenges := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_challenges_solved_total",
			Help: "Total anti-bot challenges cleared.",
		},
	)
	proxyFailures := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_proxy_failures_total",
			Help: "Total proxy connection failures.",
		},
	)
	sessions := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scraper_sessions_active",
			Help: "Browser sessions currently open.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total acquisition errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, duration, challenges, proxyFailures, sessions, errorsTotal)

	return &Collector{
		Registry:        registry,
		requestsTotal:   requests,
		requestDuration: duration,
		challengesTotal: challenges,
		proxyFailTotal:  proxyFailures,
		sessionsActive:  sessions,
		errorsTotal:     errorsTotal,
	}
}

// RecordRequest counts one finished acquisition attempt.
func (c *Collector) RecordRequest(success bool, duration time.Duration) {
	if c == nil {
		return
	}
	c.totalRequests.Add(1)
	outcome := "failure"
	if success {
		c.successCount.Add(1)
		outcome = "success"
	} else {
		c.failureCount.Add(1)
	}
	c.requestsTotal.WithLabelValues(outcome).Inc()
	c.requestDuration.Observe(duration.Seconds())
}

// ChallengeSolved counts one cleared anti-bot challenge.
func (c *Collector) ChallengeSolved() {
	if c == nil {
		return
	}
	c.challengesSolved.Add(1)
	c.challengesTotal.Inc()
}

// ProxyFailure counts one proxy connection failure.
func (c *Collector) ProxyFailure() {
	if c == nil {
		return
	}
	c.proxyFailures.Add(1)
	c.proxyFailTotal.Inc()
}

// SessionOpened bumps the active-session gauge.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.activeSessions.Add(1)
	c.sessionsActive.Inc()
}

// SessionClosed drops the active-session gauge.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.activeSessions.Add(-1)
	c.sessionsActive.Dec()
}

// RecordError counts one error by its type label.
func (c *Collector) RecordError(errorType string) {
	if c == nil {
		return
	}
	c.errorsTotal.WithLabelValues(errorType).Inc()
}

// Snapshot returns a consistent point-in-time view of the counters. The
// success rate over zero requests is 0, not NaN.
func (c *Collector) Snapshot() models.MetricsSnapshot {
	total := c.totalRequests.Load()
	success := c.successCount.Load()

	var rate float64
	if total > 0 {
		rate = float64(success) / float64(total)
	}

	return models.MetricsSnapshot{
		TotalRequests:    total,
		SuccessCount:     success,
		FailureCount:     c.failureCount.Load(),
		ChallengesSolved: c.challengesSolved.Load(),
		ProxyFailures:    c.proxyFailures.Load(),
		ActiveSessions:   c.activeSessions.Load(),
		SuccessRate:      rate,
		Timestamp:        time.Now(),
	}
}
