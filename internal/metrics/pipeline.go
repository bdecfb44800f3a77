package metrics

import (
	"time"
)

// Pipeline holds the metrics recorded by the capture and tick loop.
type Pipeline struct {
	registry *Registry

	EventsTotal     *Counter
	EventsDropped   *Counter
	Ticks           *Counter
	ReloadsApplied  *Counter
	ReloadsRejected *Counter

	VisibleBars   *Gauge
	UptimeSeconds *Gauge

	TickDuration *Histogram

	started time.Time
}

// NewPipeline creates and registers the pipeline metrics. A nil registry
// uses Default().
func NewPipeline(registry *Registry) *Pipeline {
	if registry == nil {
		registry = Default()
	}

	return &Pipeline{
		registry: registry,

		EventsTotal: registry.RegisterCounter(
			"input_events_total",
			"Input events applied to the bar field",
			nil,
		),
		EventsDropped: registry.RegisterCounter(
			"input_events_dropped_total",
			"Input events for keys that are not monitored",
			nil,
		),
		Ticks: registry.RegisterCounter(
			"ticks_total",
			"Simulation ticks executed",
			nil,
		),
		ReloadsApplied: registry.RegisterCounter(
			"config_reloads_applied_total",
			"Configuration reloads that replaced the running config",
			nil,
		),
		ReloadsRejected: registry.RegisterCounter(
			"config_reloads_rejected_total",
			"Configuration reloads that failed to load or validate",
			nil,
		),

		VisibleBars: registry.RegisterGauge(
			"visible_bars",
			"Bars currently on screen",
			nil,
		),
		UptimeSeconds: registry.RegisterGauge(
			"uptime_seconds",
			"Seconds since the tick loop started",
			nil,
		),

		TickDuration: registry.RegisterHistogram(
			"tick_duration_seconds",
			"Wall time spent inside one tick",
			nil,
			TickBuckets,
		),

		started: time.Now(),
	}
}

// Registry returns the registry the metrics are registered in.
func (p *Pipeline) Registry() *Registry {
	return p.registry
}

// RecordTick records one completed tick.
func (p *Pipeline) RecordTick(d time.Duration, visible int) {
	p.Ticks.Inc()
	p.TickDuration.ObserveDuration(d)
	p.VisibleBars.Set(int64(visible))
	p.UptimeSeconds.Set(int64(time.Since(p.started).Seconds()))
}

// RecordEvent records an input event, split by whether a column used it.
func (p *Pipeline) RecordEvent(applied bool) {
	if applied {
		p.EventsTotal.Inc()
		return
	}
	p.EventsDropped.Inc()
}

// RecordReload records the outcome of a configuration reload.
func (p *Pipeline) RecordReload(applied bool) {
	if applied {
		p.ReloadsApplied.Inc()
		return
	}
	p.ReloadsRejected.Inc()
}
