package middleware

import (
	"context"
	"time"

	"github.com/go-broadway/broadway/pkg/protocol"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Default tracer name for Broadway display servers.
const defaultTracerName = "broadway"

// OTelConfig configures the OpenTelemetry event tracing.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "broadway").
	TracerName string

	// Filter determines which events to trace.
	// Return true to trace the event, false to skip.
	// If nil, all events are traced.
	Filter func(msg *protocol.InputMsg) bool

	// AttributeExtractor extracts custom attributes from the event.
	// Called for each traced event.
	AttributeExtractor func(msg *protocol.InputMsg) []attribute.KeyValue

	// tracer is the resolved tracer instance.
	tracer trace.Tracer
}

// OTelOption configures the OpenTelemetry event tracing.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithEventFilter sets a filter function for events.
func WithEventFilter(filter func(msg *protocol.InputMsg) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(msg *protocol.InputMsg) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

// defaultOTelConfig returns the default OpenTelemetry configuration.
func defaultOTelConfig() OTelConfig {
	return OTelConfig{
		TracerName: defaultTracerName,
		Filter:     nil,
	}
}

// TraceEvents wraps an input event handler so every delivered event produces
// a span.
//
// The wrapper:
//   - Creates a span per event named "broadway.<EventType>"
//   - Records serial, timestamp, routing target and the payload window
//   - Records a panic as an error status before re-raising it
//
// Input events arrive on the display server's event loop rather than on an
// inbound request, so each span starts a new trace.
//
// Example:
//
//	srv := display.New(display.Config{
//	    OnEvent: middleware.TraceEvents(handleEvent,
//	        middleware.WithTracerName("my-app"),
//	    ),
//	})
//
// The tracer uses the global OpenTelemetry tracer provider. Configure it
// in your main() before starting the server:
//
//	tp := sdktrace.NewTracerProvider(
//	    sdktrace.WithBatcher(exporter),
//	    sdktrace.WithResource(resource.NewWithAttributes(
//	        semconv.SchemaURL,
//	        semconv.ServiceName("my-app"),
//	    )),
//	)
//	otel.SetTracerProvider(tp)
func TraceEvents(next func(*protocol.InputMsg), opts ...OTelOption) func(*protocol.InputMsg) {
	config := defaultOTelConfig()
	for _, opt := range opts {
		opt(&config)
	}

	// Resolve tracer from global provider
	config.tracer = otel.Tracer(config.TracerName)

	return func(msg *protocol.InputMsg) {
		// Apply filter if configured
		if config.Filter != nil && !config.Filter(msg) {
			next(msg)
			return
		}

		attrs := []attribute.KeyValue{
			attribute.String("broadway.event_type", msg.Type.String()),
			attribute.Int64("broadway.serial", int64(msg.Serial)),
			attribute.Int64("broadway.event_time_ms", int64(msg.Time)),
			attribute.Int("broadway.target_client", int(msg.TargetClient)),
		}

		// Add the payload window and the fields worth filtering on
		switch {
		case msg.Pointer != nil:
			attrs = append(attrs,
				attribute.Int("broadway.event_window", int(msg.Pointer.EventWindow)),
				attribute.Int("broadway.state", int(msg.Pointer.State)),
			)
		case msg.Key != nil:
			attrs = append(attrs, attribute.Int("broadway.keysym", int(msg.Key.Keysym)))
		case msg.Window != nil:
			attrs = append(attrs, attribute.Int("broadway.event_window", int(msg.Window.Window)))
		}

		// Add custom attributes
		if config.AttributeExtractor != nil {
			attrs = append(attrs, config.AttributeExtractor(msg)...)
		}

		// Start span
		_, span := config.tracer.Start(
			context.Background(),
			"broadway."+msg.Type.String(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
			trace.WithTimestamp(time.Now()),
		)

		defer func() {
			if r := recover(); r != nil {
				span.SetStatus(codes.Error, "event handler panicked")
				span.End()
				panic(r)
			}
			span.SetStatus(codes.Ok, "")
			span.End()
		}()

		next(msg)
	}
}
