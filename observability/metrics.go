package observability

import (
	gu "github.com/xraph/go-utils/metrics"
)

// Metrics holds metric instruments for Cascade, backed by any go-utils
// MetricFactory (e.g. metrics.NewMetricsCollector() for standalone usage).
type Metrics struct {
	EventsProcessedTotal gu.Counter
	ReactionsTotal       gu.Counter
	RetriesTotal         gu.Counter
	FailuresTotal        gu.Counter
	SchedulerEventsTotal gu.Counter
	ProcessingLatency    gu.Histogram
	PendingEvents        gu.Gauge
	ScheduledReactions   gu.Gauge
}

// NewMetrics creates Cascade metric instruments using the supplied factory.
func NewMetrics(factory gu.MetricFactory) *Metrics {
	return &Metrics{
		EventsProcessedTotal: factory.Counter("cascade_events_processed_total"),
		ReactionsTotal:       factory.Counter("cascade_reactions_total"),
		RetriesTotal:         factory.Counter("cascade_reaction_retries_total"),
		FailuresTotal:        factory.Counter("cascade_failure_records_total"),
		SchedulerEventsTotal: factory.Counter("cascade_scheduler_events_total"),
		ProcessingLatency:    factory.Histogram("cascade_event_processing_seconds"),
		PendingEvents:        factory.Gauge("cascade_pending_events"),
		ScheduledReactions:   factory.Gauge("cascade_scheduled_reactions"),
	}
}

// RecordEvent records a processed event with the given terminal status and
// wall-clock processing latency.
func (m *Metrics) RecordEvent(status string, latencySeconds float64) {
	m.EventsProcessedTotal.WithLabels(map[string]string{"status": status}).Inc()
	m.ProcessingLatency.Observe(latencySeconds)
}

// RecordReaction records a reaction execution outcome.
func (m *Metrics) RecordReaction(reactionType, status string) {
	m.ReactionsTotal.WithLabels(map[string]string{
		"reaction_type": reactionType,
		"status":        status,
	}).Inc()
}

// RecordSchedulerEvent records an event emitted by a scheduler poller.
func (m *Metrics) RecordSchedulerEvent(actionType string) {
	m.SchedulerEventsTotal.WithLabels(map[string]string{"action_type": actionType}).Inc()
}
