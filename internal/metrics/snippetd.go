package metrics

import "time"

// SnippetdMetrics holds the metrics the daemon exports.
type SnippetdMetrics struct {
	registry *Registry

	InputEvents     *Counter
	Expansions      *Counter
	Ignored         *Counter
	NoMatch         *Counter
	WriteFailures   *Counter
	Refreshes       *Counter
	RefreshFailures *Counter
	Panics          *Counter

	Triggers      *Gauge
	UptimeSeconds *Gauge

	HandleLatency   *Histogram
	RefreshDuration *Histogram

	started time.Time
}

// NewSnippetdMetrics registers the daemon metrics on registry.
func NewSnippetdMetrics(registry *Registry) *SnippetdMetrics {
	if registry == nil {
		registry = NewRegistry("snippetd", "")
	}

	return &SnippetdMetrics{
		registry: registry,

		InputEvents: registry.RegisterCounter("input_events_total",
			"Input notifications handed to the expansion engine", nil),
		Expansions: registry.RegisterCounter("expansions_total",
			"Triggers replaced by their expansion text", nil),
		Ignored: registry.RegisterCounter("ignored_events_total",
			"Input notifications from unsupported or synthetic targets", nil),
		NoMatch: registry.RegisterCounter("no_match_total",
			"Input notifications whose text ended in no known trigger", nil),
		WriteFailures: registry.RegisterCounter("write_failures_total",
			"Matched triggers whose replacement the target rejected", nil),
		Refreshes: registry.RegisterCounter("index_refreshes_total",
			"Successful trigger index rebuilds", nil),
		RefreshFailures: registry.RegisterCounter("index_refresh_failures_total",
			"Snippet loads that failed and left the index unchanged", nil),
		Panics: registry.RegisterCounter("recovered_panics_total",
			"Panics recovered on the event loop", nil),

		Triggers: registry.RegisterGauge("triggers",
			"Triggers currently in the index", nil),
		UptimeSeconds: registry.RegisterGauge("uptime_seconds",
			"Seconds since the daemon started", nil),

		HandleLatency: registry.RegisterHistogram("handle_seconds",
			"Time spent handling one input notification", nil, LatencyBuckets),
		RefreshDuration: registry.RegisterHistogram("refresh_seconds",
			"Time spent loading snippets and rebuilding the index", nil, DurationBuckets),

		started: time.Now(),
	}
}

// Registry returns the registry the metrics live in.
func (m *SnippetdMetrics) Registry() *Registry {
	return m.registry
}

// RecordOutcome counts one handled input notification.
func (m *SnippetdMetrics) RecordOutcome(outcome string, took time.Duration) {
	m.InputEvents.Inc()
	switch outcome {
	case "expanded":
		m.Expansions.Inc()
	case "ignored":
		m.Ignored.Inc()
	case "no-match":
		m.NoMatch.Inc()
	case "failed":
		m.WriteFailures.Inc()
	}
	m.HandleLatency.ObserveDuration(took)
}

// RecordRefresh counts one index refresh attempt.
func (m *SnippetdMetrics) RecordRefresh(err error, triggers int, took time.Duration) {
	m.RefreshDuration.ObserveDuration(took)
	if err != nil {
		m.RefreshFailures.Inc()
		return
	}
	m.Refreshes.Inc()
	m.Triggers.Set(int64(triggers))
}

// UpdateUptime refreshes the uptime gauge.
func (m *SnippetdMetrics) UpdateUptime() {
	m.UptimeSeconds.Set(int64(time.Since(m.started).Seconds()))
}
