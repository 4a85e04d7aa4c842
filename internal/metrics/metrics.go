// Package metrics holds the Prometheus collectors shared by the store, the
// planner and the ingest pipeline. They register on the default registry and
// are served by the HTTP API at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreQueryDuration measures store calls by operation.
	StoreQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "galos_store_query_duration_seconds",
		Help:    "Duration of system store operations in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	// StoreErrors counts store calls that failed with a storage fault.
	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "galos_store_errors_total",
		Help: "Total number of failed system store operations",
	}, []string{"op"})

	// UpsertOutcomes counts upserts by result: inserted, updated or stale.
	UpsertOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "galos_upserts_total",
		Help: "Total number of system upserts by outcome",
	}, []string{"outcome"})

	// PositionConflicts counts observations whose position disagreed with the stored one.
	PositionConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "galos_position_conflicts_total",
		Help: "Total number of observations with a conflicting position",
	})

	// RoutesPlanned counts route searches by result: found, none, capped or error.
	RoutesPlanned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "galos_routes_total",
		Help: "Total number of route searches by result",
	}, []string{"result"})

	// RouteExpanded records how many systems each route search expanded.
	RouteExpanded = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "galos_route_expanded_systems",
		Help:    "Systems expanded per route search",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})

	// IngestRecords counts records seen by the ingest sink by result.
	IngestRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "galos_ingest_records_total",
		Help: "Total number of ingested records by result",
	}, []string{"result"})

	// FeedMessages counts EDDN messages by result: accepted, skipped, invalid
	// or receive_error.
	FeedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "galos_eddn_messages_total",
		Help: "Total number of EDDN messages by result",
	}, []string{"result"})
)

// ObserveQuery records the duration of a store operation started at start.
func ObserveQuery(op string, start time.Time) {
	StoreQueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
