package middleware

import (
	"sync"
	"time"

	"github.com/go-broadway/broadway/pkg/display"
	"github.com/go-broadway/broadway/pkg/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus instrumentation.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "broadway").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for event handler duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus instrumentation.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// defaultMetricsConfig returns the default metrics configuration.
func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace:   "broadway",
		Subsystem:   "",
		ConstLabels: nil,
		Buckets:     prometheus.DefBuckets,
		Registry:    prometheus.DefaultRegisterer,
	}
}

// metrics holds the Prometheus instruments fed by the event wrapper and the
// Record* helpers.
type metrics struct {
	eventsTotal   *prometheus.CounterVec
	eventDuration *prometheus.HistogramVec
	capturesTotal prometheus.Counter
	captureBytes  prometheus.Histogram
	captureErrors *prometheus.CounterVec
}

// globalMetrics is the singleton metrics instance.
// Created on first call to InstrumentEvents().
var (
	globalMetrics   *metrics
	globalMetricsMu sync.Mutex
)

// initMetrics initializes the Prometheus instruments.
func initMetrics(config MetricsConfig) *metrics {
	factory := promauto.With(config.Registry)

	return &metrics{
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "events_total",
			Help:        "Total number of input events delivered to the application",
			ConstLabels: config.ConstLabels,
		}, []string{"type", "status"}),

		eventDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "event_duration_seconds",
			Help:        "Event handler duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"type"}),

		capturesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "captures_total",
			Help:        "Total number of display captures stored",
			ConstLabels: config.ConstLabels,
		}),

		captureBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "capture_bytes",
			Help:        "Size of stored display captures in bytes",
			ConstLabels: config.ConstLabels,
			Buckets:     []float64{1024, 10240, 102400, 1048576, 10485760}, // 1KB to 10MB
		}),

		captureErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "capture_errors_total",
			Help:        "Total number of failed display captures by reason",
			ConstLabels: config.ConstLabels,
		}, []string{"reason"}),
	}
}

// InstrumentEvents wraps an input event handler so every delivered event is
// counted and timed.
//
// Metrics collected:
//   - broadway_events_total: Counter of events by type and status
//   - broadway_event_duration_seconds: Histogram of handler duration by type
//   - broadway_captures_total: Counter of captures (when RecordCapture is called)
//   - broadway_capture_bytes: Histogram of capture sizes
//   - broadway_capture_errors_total: Counter of capture failures by reason
//
// A handler panic is counted with status "panic" and re-raised; the display
// server's own recovery then contains it.
//
// Example:
//
//	srv := display.New(display.Config{
//	    OnEvent: middleware.InstrumentEvents(handleEvent,
//	        middleware.WithNamespace("myapp"),
//	    ),
//	})
//
//	// Expose metrics endpoint
//	http.Handle("/metrics", promhttp.Handler())
func InstrumentEvents(next func(*protocol.InputMsg), opts ...MetricsOption) func(*protocol.InputMsg) {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}

	// Initialize metrics once
	globalMetricsMu.Lock()
	if globalMetrics == nil {
		globalMetrics = initMetrics(config)
	}
	m := globalMetrics
	globalMetricsMu.Unlock()

	return func(msg *protocol.InputMsg) {
		eventType := msg.Type.String()
		start := time.Now()

		defer func() {
			m.eventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
			if r := recover(); r != nil {
				m.eventsTotal.WithLabelValues(eventType, "panic").Inc()
				panic(r)
			}
			m.eventsTotal.WithLabelValues(eventType, "success").Inc()
		}()

		next(msg)
	}
}

// =============================================================================
// Metrics Recording Functions
// =============================================================================

// RecordCapture records a stored display capture and its encoded size.
// Call this from the serving layer after a capture succeeds.
func RecordCapture(bytes int64) {
	if globalMetrics != nil {
		globalMetrics.capturesTotal.Inc()
		globalMetrics.captureBytes.Observe(float64(bytes))
	}
}

// RecordCaptureError records a failed display capture. The reason should be
// a small fixed set of values ("encode", "store", "empty") to keep label
// cardinality bounded.
func RecordCaptureError(reason string) {
	if globalMetrics != nil {
		globalMetrics.captureErrors.WithLabelValues(reason).Inc()
	}
}

// =============================================================================
// Metrics Collector
// =============================================================================

// Collector returns the instruments for use in custom registrations.
// This allows collecting Broadway metrics alongside other application metrics.
type Collector struct {
	eventsTotal   *prometheus.CounterVec
	eventDuration *prometheus.HistogramVec
	capturesTotal prometheus.Counter
	captureBytes  prometheus.Histogram
	captureErrors *prometheus.CounterVec
}

// GetMetrics returns the global metrics collector.
// Returns nil if InstrumentEvents has not been called yet.
func GetMetrics() *Collector {
	if globalMetrics == nil {
		return nil
	}
	return &Collector{
		eventsTotal:   globalMetrics.eventsTotal,
		eventDuration: globalMetrics.eventDuration,
		capturesTotal: globalMetrics.capturesTotal,
		captureBytes:  globalMetrics.captureBytes,
		captureErrors: globalMetrics.captureErrors,
	}
}

// =============================================================================
// Display Server Collector
// =============================================================================

// StatsSource provides a point-in-time sample of display server counters.
// *display.Server implements it.
type StatsSource interface {
	Stats() display.Stats
}

// DisplayCollector exposes a display server's internal counters as
// Prometheus metrics. The counters are sampled at scrape time, so the
// collector adds no work to the server's event loop.
//
// Register it on the same registry as the event instruments:
//
//	reg.MustRegister(middleware.NewDisplayCollector(srv))
type DisplayCollector struct {
	src StatsSource

	connects       *prometheus.Desc
	disconnects    *prometheus.Desc
	inputMessages  *prometheus.Desc
	droppedInputs  *prometheus.Desc
	commands       *prometheus.Desc
	flushes        *prometheus.Desc
	bytesSent      *prometheus.Desc
	bytesReceived  *prometheus.Desc
	syncRoundtrips *prometheus.Desc
	windows        *prometheus.Desc
	connected      *prometheus.Desc
}

// NewDisplayCollector creates a collector that samples src at scrape time.
// The caller registers it; the collector never touches the global registry
// on its own.
func NewDisplayCollector(src StatsSource, opts ...MetricsOption) *DisplayCollector {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}

	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(config.Namespace, config.Subsystem, name),
			help, nil, config.ConstLabels,
		)
	}

	return &DisplayCollector{
		src:            src,
		connects:       desc("connects_total", "Total number of client attachments"),
		disconnects:    desc("disconnects_total", "Total number of client detachments"),
		inputMessages:  desc("input_messages_total", "Total number of input messages accepted"),
		droppedInputs:  desc("dropped_inputs_total", "Total number of input messages dropped as malformed or stale"),
		commands:       desc("commands_total", "Total number of display commands queued"),
		flushes:        desc("flushes_total", "Total number of command batches flushed to the client"),
		bytesSent:      desc("sent_bytes_total", "Total bytes written to clients"),
		bytesReceived:  desc("received_bytes_total", "Total bytes read from clients"),
		syncRoundtrips: desc("sync_roundtrips_total", "Total number of completed sync roundtrips"),
		windows:        desc("windows", "Current number of windows on the display"),
		connected:      desc("client_connected", "Whether a client is currently attached (0 or 1)"),
	}
}

// Describe implements prometheus.Collector.
func (c *DisplayCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connects
	ch <- c.disconnects
	ch <- c.inputMessages
	ch <- c.droppedInputs
	ch <- c.commands
	ch <- c.flushes
	ch <- c.bytesSent
	ch <- c.bytesReceived
	ch <- c.syncRoundtrips
	ch <- c.windows
	ch <- c.connected
}

// Collect implements prometheus.Collector.
func (c *DisplayCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()

	ch <- prometheus.MustNewConstMetric(c.connects, prometheus.CounterValue, float64(s.Connects))
	ch <- prometheus.MustNewConstMetric(c.disconnects, prometheus.CounterValue, float64(s.Disconnects))
	ch <- prometheus.MustNewConstMetric(c.inputMessages, prometheus.CounterValue, float64(s.InputMessages))
	ch <- prometheus.MustNewConstMetric(c.droppedInputs, prometheus.CounterValue, float64(s.DroppedInputs))
	ch <- prometheus.MustNewConstMetric(c.commands, prometheus.CounterValue, float64(s.Commands))
	ch <- prometheus.MustNewConstMetric(c.flushes, prometheus.CounterValue, float64(s.Flushes))
	ch <- prometheus.MustNewConstMetric(c.bytesSent, prometheus.CounterValue, float64(s.BytesSent))
	ch <- prometheus.MustNewConstMetric(c.bytesReceived, prometheus.CounterValue, float64(s.BytesReceived))
	ch <- prometheus.MustNewConstMetric(c.syncRoundtrips, prometheus.CounterValue, float64(s.SyncRoundtrips))
	ch <- prometheus.MustNewConstMetric(c.windows, prometheus.GaugeValue, float64(s.Windows))

	connected := 0.0
	if s.Connected {
		connected = 1.0
	}
	ch <- prometheus.MustNewConstMetric(c.connected, prometheus.GaugeValue, connected)
}
