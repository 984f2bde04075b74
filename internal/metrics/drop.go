package metrics

import "cryptoflow/internal/logger"

// DropMetric identifies the metric name emitted when a bounded queue drops a
// message rather than blocking its producer, per spec.md §4.8's "pipeline
// never blocks engines" requirement.
type DropMetric string

const (
	// DropMetricPersistenceQueue records opportunities dropped from the
	// Emitter's persistence sink queue on overflow.
	DropMetricPersistenceQueue DropMetric = "persistence_queue_dropped"
	// DropMetricNotifierQueue records opportunities dropped from the
	// Emitter's notifier sink queue on overflow.
	DropMetricNotifierQueue DropMetric = "notifier_queue_dropped"
	// DropMetricBookStore records book snapshots rejected by the Book
	// Store for violating the no-cross/monotonicity invariants.
	DropMetricBookStore DropMetric = "book_snapshot_rejected"
)

// EmitDropMetric logs and emits a metric representing one dropped/rejected
// message. The value is always 1 so callers invoke this once per occurrence.
// Optional metadata (venue, pair, stage) is attached when provided so
// downstream aggregation can break out drops per venue and stream.
func EmitDropMetric(log *logger.Log, metric DropMetric, venue, pair, stage string) {
	fields := logger.Fields{}
	if venue != "" {
		fields["venue"] = venue
	}
	if pair != "" {
		fields["pair"] = pair
	}
	if stage != "" {
		fields["stage"] = stage
	}

	EmitMetric(log, "queue_drops", string(metric), 1, "counter", fields)
}
