// Package observability provides metrics and tracing.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CounterAdjustments counts counter adjustments by counter and outcome.
	CounterAdjustments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loop_counter_adjustments_total",
		Help: "Total number of interaction counter adjustments",
	}, []string{"counter", "outcome"})

	// InteractionToggles counts interaction changes by type and resulting action.
	InteractionToggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loop_interaction_changes_total",
		Help: "Total number of interaction changes by type and action",
	}, []string{"type", "action"})

	// LoopsCreated counts created loops by kind (root or branch).
	LoopsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loop_loops_created_total",
		Help: "Total number of loops created",
	}, []string{"kind"})

	// FeedLatency records feed assembly latency by mode.
	FeedLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "loop_feed_assembly_seconds",
		Help:    "Feed assembly latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})

	// DispatchedEvents counts side-effect events by kind and outcome
	// (delivered, failed, outboxed, dropped).
	DispatchedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loop_dispatched_events_total",
		Help: "Total number of side-effect events by kind and outcome",
	}, []string{"kind", "outcome"})

	// DispatchQueueDepth is the number of events waiting for a worker.
	DispatchQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "loop_dispatch_queue_depth",
		Help: "Number of side-effect events waiting in the in-process queue",
	})

	// NotificationsInserted counts inserted notification rows by type.
	NotificationsInserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loop_notifications_inserted_total",
		Help: "Total number of notification rows inserted",
	}, []string{"type"})

	// MediaUploads counts media uploads by outcome.
	MediaUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loop_media_uploads_total",
		Help: "Total number of media uploads by outcome",
	}, []string{"outcome"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "loop_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}

// TrackFeed returns a function that records feed latency for mode when called.
func TrackFeed(mode string) func() {
	start := time.Now()
	return func() {
		FeedLatency.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	}
}
