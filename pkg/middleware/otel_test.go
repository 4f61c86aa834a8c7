package middleware

import (
	"testing"

	"github.com/go-broadway/broadway/pkg/protocol"
	"go.opentelemetry.io/otel/attribute"
)

func TestTraceEvents_DeliversMessage(t *testing.T) {
	var delivered *protocol.InputMsg
	h := TraceEvents(func(msg *protocol.InputMsg) { delivered = msg })

	msg := &protocol.InputMsg{
		Type:   protocol.EventKeyPress,
		Serial: 7,
		Time:   100,
		Key:    &protocol.KeyData{Keysym: 65},
	}
	h(msg)

	if delivered != msg {
		t.Fatal("expected wrapped handler to receive the original message")
	}
}

func TestTraceEvents_FilterSkipsTracingButDelivers(t *testing.T) {
	delivered := 0
	h := TraceEvents(
		func(*protocol.InputMsg) { delivered++ },
		WithEventFilter(func(msg *protocol.InputMsg) bool {
			return msg.Type != protocol.EventMotion
		}),
	)

	h(&protocol.InputMsg{Type: protocol.EventMotion, Pointer: &protocol.PointerData{}})
	h(&protocol.InputMsg{Type: protocol.EventKeyPress, Key: &protocol.KeyData{}})

	if delivered != 2 {
		t.Fatalf("delivered=%d, want 2 (the filter skips spans, never events)", delivered)
	}
}

func TestTraceEvents_AttributeExtractorSeesEvent(t *testing.T) {
	var extracted *protocol.InputMsg
	h := TraceEvents(
		func(*protocol.InputMsg) {},
		WithAttributeExtractor(func(msg *protocol.InputMsg) []attribute.KeyValue {
			extracted = msg
			return []attribute.KeyValue{attribute.String("test.attr", "ok")}
		}),
	)

	msg := &protocol.InputMsg{Type: protocol.EventConfigure, Window: &protocol.WindowData{Window: 3}}
	h(msg)

	if extracted != msg {
		t.Fatal("expected attribute extractor to be called with the event")
	}
}

func TestTraceEvents_PanicPropagates(t *testing.T) {
	h := TraceEvents(func(*protocol.InputMsg) { panic("boom") })

	defer func() {
		if r := recover(); r != "boom" {
			t.Fatalf("recovered %v, want original panic value", r)
		}
	}()
	h(&protocol.InputMsg{Type: protocol.EventDelete, Window: &protocol.WindowData{Window: 1}})
	t.Fatal("unreachable: wrapper swallowed the panic")
}
