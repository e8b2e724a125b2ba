package replication

import "netsync/internal/telemetry"

const (
	metricEnvelopesSent     = "replication_envelopes_sent_total"
	metricSendFailures      = "replication_send_failures_total"
	metricEncodeFailures    = "replication_encode_failures_total"
	metricUpdatesApplied    = "replication_updates_applied_total"
	metricUpdatesSuperseded = "replication_updates_superseded_total"
	metricUpdatesFiltered   = "replication_updates_filtered_total"
	metricUpdatesUnmatched  = "replication_updates_unmatched_total"
	metricDecodeFailures    = "replication_decode_failures_total"
	metricOverlapHazards    = "replication_overlap_hazards_total"
	metricForcedResyncs     = "replication_forced_resyncs_total"
	metricTick              = "replication_tick"
)

type metricSink interface {
	Add(string, uint64)
	Store(string, uint64)
}

var _ metricSink = (telemetry.Metrics)(nil)
