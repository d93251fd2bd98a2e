package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics for campaign and session activity
var (
	WorkItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "work_items_total",
			Help: "Terminal work items by publish mode and state",
		},
		[]string{"mode", "state"},
	)

	CampaignsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "campaigns_running",
			Help: "Number of campaigns currently running",
		},
	)

	TokenExtractionAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_extraction_attempts_total",
			Help: "Token extraction attempts by result",
		},
		[]string{"result"},
	)

	SessionAcquireFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_acquire_failures_total",
			Help: "Failed session acquisitions by kind",
		},
		[]string{"kind"},
	)

	HistoryAppends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "history_appends_total",
			Help: "History entries appended per log",
		},
		[]string{"log"},
	)

	ScanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scan_duration_seconds",
			Help:    "Duration of one account scan",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	EventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "events_dropped_total",
			Help: "Progress events dropped because a subscriber was slow",
		},
	)
)

var registerOnce sync.Once

// Register registers all Prometheus metrics. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(WorkItemsTotal)
		prometheus.MustRegister(CampaignsRunning)
		prometheus.MustRegister(TokenExtractionAttempts)
		prometheus.MustRegister(SessionAcquireFailures)
		prometheus.MustRegister(HistoryAppends)
		prometheus.MustRegister(ScanDuration)
		prometheus.MustRegister(EventsDropped)
	})
}
