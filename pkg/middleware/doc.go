// Package middleware provides production-grade observability for Broadway
// display servers.
//
// This package includes:
//   - OpenTelemetry tracing of input events
//   - Prometheus instrumentation of the event callback
//   - A collector exposing the display server's internal counters
//
// # OpenTelemetry Tracing
//
// TraceEvents wraps the display server's event callback so every input event
// produces a span carrying its type, serial, timestamp and routing target.
//
//	srv := display.New(display.Config{
//	    OnEvent: middleware.TraceEvents(handleEvent),
//	})
//
// Configure with options:
//
//	middleware.TraceEvents(handleEvent,
//	    middleware.WithTracerName("my-app"),
//	    middleware.WithEventFilter(func(msg *protocol.InputMsg) bool {
//	        return msg.Type != protocol.EventMotion
//	    }),
//	)
//
// # Prometheus Metrics
//
// InstrumentEvents counts and times delivered events:
//   - broadway_events_total: Total events by type and status
//   - broadway_event_duration_seconds: Event handler duration histogram
//   - broadway_captures_total: Display captures stored
//
// NewDisplayCollector exposes the server's own counters (connects, dropped
// inputs, bytes sent, windows on the display) by sampling Stats at scrape
// time.
//
//	reg := prometheus.NewRegistry()
//	srv := display.New(display.Config{
//	    OnEvent: middleware.InstrumentEvents(handleEvent,
//	        middleware.WithRegistry(reg),
//	    ),
//	})
//	reg.MustRegister(middleware.NewDisplayCollector(srv))
//
// Then expose metrics on a separate port:
//
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
//	go http.ListenAndServe(":9090", nil)
//
// # Composition
//
// Both wrappers take and return a plain event handler, so they compose in
// either order:
//
//	OnEvent: middleware.TraceEvents(middleware.InstrumentEvents(handleEvent))
package middleware
