package hybi

import (
	"bytes"
	"errors"
	"testing"
)

func TestFramerRoundTrip(t *testing.T) {
	key := [4]byte{0x12, 0x34, 0x56, 0x78}
	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty", []byte{}},
		{"short", []byte("m1,2,3,3,4,5,6,7,0")},
		{"boundary 125", bytes.Repeat([]byte{'x'}, 125)},
		{"boundary 126", bytes.Repeat([]byte{'x'}, 126)},
		{"extended 16bit", bytes.Repeat([]byte{'y'}, 65535)},
		{"extended 64bit", bytes.Repeat([]byte{'z'}, 65536)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire := AppendMaskedFrame(nil, true, OpcodeText, key, tt.payload)

			f := &Framer{RequireMask: true}
			f.Append(wire)
			frame, err := f.Next()
			if err != nil {
				t.Fatalf("Next() error: %v", err)
			}
			if frame == nil {
				t.Fatal("Next() = nil, want frame")
			}
			if !frame.Final || frame.Opcode != OpcodeText {
				t.Errorf("frame = final %v opcode %s", frame.Final, frame.Opcode)
			}
			if !bytes.Equal(frame.Payload, tt.payload) {
				t.Errorf("payload mismatch: got %d bytes, want %d", len(frame.Payload), len(tt.payload))
			}
			if f.Buffered() != 0 {
				t.Errorf("Buffered() = %d after full frame, want 0", f.Buffered())
			}
		})
	}
}

func TestFramerPartialFeed(t *testing.T) {
	// A frame delivered byte by byte must never error and must complete at
	// the final byte.
	key := [4]byte{0xA1, 0xB2, 0xC3, 0xD4}
	wire := AppendMaskedFrame(nil, true, OpcodeBinary, key, []byte("hello broadway"))

	f := &Framer{RequireMask: true}
	for i, b := range wire {
		f.Append([]byte{b})
		frame, err := f.Next()
		if err != nil {
			t.Fatalf("byte %d: unexpected error %v", i, err)
		}
		if i < len(wire)-1 {
			if frame != nil {
				t.Fatalf("byte %d: got frame early", i)
			}
			continue
		}
		if frame == nil {
			t.Fatal("no frame after final byte")
		}
		if string(frame.Payload) != "hello broadway" {
			t.Errorf("payload = %q", frame.Payload)
		}
	}
}

func TestFramerMultipleFramesOneFeed(t *testing.T) {
	key := [4]byte{1, 2, 3, 4}
	wire := AppendMaskedFrame(nil, true, OpcodeText, key, []byte("one"))
	wire = AppendMaskedFrame(wire, true, OpcodeText, key, []byte("two"))
	wire = AppendMaskedFrame(wire, true, OpcodePing, key, []byte("three"))

	f := &Framer{RequireMask: true}
	f.Append(wire)

	var got []string
	for {
		frame, err := f.Next()
		if err != nil {
			t.Fatalf("Next() error: %v", err)
		}
		if frame == nil {
			break
		}
		got = append(got, frame.Opcode.String()+":"+string(frame.Payload))
	}
	want := []string{"Text:one", "Text:two", "Ping:three"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFramerUnmaskedClientFrame(t *testing.T) {
	wire := AppendFrame(nil, true, OpcodeText, []byte("nope"))

	f := &Framer{RequireMask: true}
	f.Append(wire)
	_, err := f.Next()
	if !errors.Is(err, ErrUnmaskedFrame) {
		t.Errorf("Next() error = %v, want ErrUnmaskedFrame", err)
	}
}

func TestFramerServerFramesUnmasked(t *testing.T) {
	// A client-side framer accepts what servers send.
	wire := AppendFrame(nil, true, OpcodeText, []byte("s1,0,0,10,10,0"))

	f := &Framer{}
	f.Append(wire)
	frame, err := f.Next()
	if err != nil || frame == nil {
		t.Fatalf("Next() = %v, %v", frame, err)
	}
	if string(frame.Payload) != "s1,0,0,10,10,0" {
		t.Errorf("payload = %q", frame.Payload)
	}
}

func TestFramerBadControlFrames(t *testing.T) {
	key := [4]byte{9, 9, 9, 9}

	t.Run("fragmented ping", func(t *testing.T) {
		wire := AppendMaskedFrame(nil, false, OpcodePing, key, []byte("x"))
		f := &Framer{RequireMask: true}
		f.Append(wire)
		if _, err := f.Next(); !errors.Is(err, ErrBadControlFrame) {
			t.Errorf("error = %v, want ErrBadControlFrame", err)
		}
	})

	t.Run("oversized close", func(t *testing.T) {
		wire := AppendMaskedFrame(nil, true, OpcodeClose, key, bytes.Repeat([]byte{'x'}, 126))
		f := &Framer{RequireMask: true}
		f.Append(wire)
		if _, err := f.Next(); !errors.Is(err, ErrBadControlFrame) {
			t.Errorf("error = %v, want ErrBadControlFrame", err)
		}
	})
}

func TestFramerMaxPayload(t *testing.T) {
	key := [4]byte{1, 1, 1, 1}
	wire := AppendMaskedFrame(nil, true, OpcodeText, key, bytes.Repeat([]byte{'x'}, 600))

	f := &Framer{RequireMask: true, MaxPayload: 512}
	f.Append(wire)
	if _, err := f.Next(); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("error = %v, want ErrMessageTooLarge", err)
	}
}

func TestFramerRejectsHugeDeclaredLength(t *testing.T) {
	// A 64-bit length header must be rejected before any payload arrives,
	// not buffered toward it.
	header := []byte{0x81, 0xFF, 0x7F, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

	f := &Framer{RequireMask: true, MaxPayload: 1 << 20}
	f.Append(header)
	if _, err := f.Next(); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("error = %v, want ErrMessageTooLarge", err)
	}
}

func TestClosePayload(t *testing.T) {
	p := AppendClosePayload(nil, CloseGoingAway, "bye")
	code, reason := ClosePayload(p)
	if code != CloseGoingAway || reason != "bye" {
		t.Errorf("got (%d, %q), want (%d, %q)", code, reason, CloseGoingAway, "bye")
	}

	code, reason = ClosePayload(nil)
	if code != CloseNormal || reason != "" {
		t.Errorf("empty payload = (%d, %q), want (CloseNormal, \"\")", code, reason)
	}
}

func BenchmarkFramer_SmallMaskedFrame(b *testing.B) {
	key := [4]byte{0x12, 0x34, 0x56, 0x78}
	wire := AppendMaskedFrame(nil, true, OpcodeText, key, []byte("m17,4242,3,3,105,210,5,10,0"))
	f := &Framer{RequireMask: true}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Append(wire)
		if _, err := f.Next(); err != nil {
			b.Fatal(err)
		}
	}
}
