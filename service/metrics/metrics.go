package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Sui RPC Metrics
	suiRPCCallsTotal          *prometheus.CounterVec
	suiRPCCallDuration        *prometheus.HistogramVec
	suiRPCTransactionsPerCall *prometheus.HistogramVec
	suiRPCMalformedDigests    *prometheus.CounterVec

	// Source Metrics
	sourcePollsTotal           *prometheus.CounterVec
	sourceEventsEmittedTotal   *prometheus.CounterVec
	sourceTransactionsSkipped  *prometheus.CounterVec
	sourceLastCheckpoint       prometheus.Gauge
	sourceLifecycleTransitions *prometheus.CounterVec

	// Sink Metrics
	sinkWritesTotal   *prometheus.CounterVec
	sinkWriteDuration *prometheus.HistogramVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Sui RPC Metrics
		suiRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sui_rpc_calls_total",
				Help: "Total number of Sui RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		suiRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sui_rpc_call_duration_seconds",
				Help:    "Duration of Sui RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		suiRPCTransactionsPerCall: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sui_rpc_transactions_per_call",
				Help:    "Number of transaction blocks returned per suix_queryTransactionBlocks call",
				Buckets: []float64{0, 1, 5, 10, 25, 50},
			},
			[]string{"endpoint"},
		),
		suiRPCMalformedDigests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sui_rpc_malformed_digests_total",
				Help: "Total number of transaction digests that are not 32-byte base58 values",
			},
			[]string{"endpoint"},
		),

		// Source Metrics
		sourcePollsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "source_polls_total",
				Help: "Total number of source polls by outcome (event, duplicate, empty, queued, error)",
			},
			[]string{"outcome"},
		),
		sourceEventsEmittedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "source_events_emitted_total",
				Help: "Total number of events emitted by the source",
			},
			[]string{"transaction_kind"},
		),
		sourceTransactionsSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "source_transactions_skipped_total",
				Help: "Total number of newer transactions that were not emitted",
			},
			[]string{"reason"},
		),
		sourceLastCheckpoint: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "source_last_processed_checkpoint",
				Help: "Checkpoint sequence number of the most recently emitted transaction",
			},
		),
		sourceLifecycleTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "source_lifecycle_transitions_total",
				Help: "Total number of source lifecycle transitions by target state",
			},
			[]string{"state"},
		),

		// Sink Metrics
		sinkWritesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sink_writes_total",
				Help: "Total number of records written to sinks",
			},
			[]string{"sink", "status"},
		),
		sinkWriteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sink_write_duration_seconds",
				Help:    "Duration of sink writes in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"sink"},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Sui RPC metric helpers

// RecordRPCCall records a Sui RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.suiRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.suiRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRPCTransactionsPerCall records the number of transaction blocks fetched.
func (m *Metrics) RecordRPCTransactionsPerCall(endpoint string, count float64) {
	m.suiRPCTransactionsPerCall.WithLabelValues(endpoint).Observe(count)
}

// RecordMalformedDigest records a digest that failed base58 validation.
func (m *Metrics) RecordMalformedDigest(endpoint string) {
	m.suiRPCMalformedDigests.WithLabelValues(endpoint).Inc()
}

// Source metric helpers

// RecordPoll records the outcome of one source poll.
func (m *Metrics) RecordPoll(outcome string) {
	m.sourcePollsTotal.WithLabelValues(outcome).Inc()
}

// RecordEventEmitted records an event handed to the pipeline.
func (m *Metrics) RecordEventEmitted(kind string) {
	m.sourceEventsEmittedTotal.WithLabelValues(kind).Inc()
}

// RecordTransactionsSkipped records newer transactions that were not emitted.
func (m *Metrics) RecordTransactionsSkipped(reason string, count int) {
	m.sourceTransactionsSkipped.WithLabelValues(reason).Add(float64(count))
}

// SetLastCheckpoint records the checkpoint of the latest emitted transaction.
func (m *Metrics) SetLastCheckpoint(seq uint64) {
	m.sourceLastCheckpoint.Set(float64(seq))
}

// RecordLifecycle records a lifecycle transition.
func (m *Metrics) RecordLifecycle(state string) {
	m.sourceLifecycleTransitions.WithLabelValues(state).Inc()
}

// Sink metric helpers

// RecordSinkWrite records a sink write with duration.
func (m *Metrics) RecordSinkWrite(sink string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.sinkWritesTotal.WithLabelValues(sink, status).Inc()
	m.sinkWriteDuration.WithLabelValues(sink).Observe(duration)
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}
