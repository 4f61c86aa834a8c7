package protocol

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestParseInput(t *testing.T) {
	tests := []struct {
		name string
		line string
		want *InputMsg
	}{
		{
			name: "motion",
			line: "m17,4242,3,3,105,210,5,10,0",
			want: &InputMsg{
				Type: EventMotion, Serial: 17, Time: 4242, TargetClient: -1,
				Pointer: &PointerData{
					MouseWindow: 3, EventWindow: 3,
					RootX: 105, RootY: 210, WinX: 5, WinY: 10,
				},
			},
		},
		{
			name: "enter with grab crossing mode",
			line: "e1,1000,2,2,50,60,10,20,4,1",
			want: &InputMsg{
				Type: EventEnter, Serial: 1, Time: 1000, TargetClient: -1,
				Pointer: &PointerData{
					MouseWindow: 2, EventWindow: 2,
					RootX: 50, RootY: 60, WinX: 10, WinY: 20,
					State: ModControl, Mode: CrossingGrab,
				},
			},
		},
		{
			name: "leave",
			line: "l2,1001,2,2,50,60,10,20,0,0",
			want: &InputMsg{
				Type: EventLeave, Serial: 2, Time: 1001, TargetClient: -1,
				Pointer: &PointerData{
					MouseWindow: 2, EventWindow: 2,
					RootX: 50, RootY: 60, WinX: 10, WinY: 20,
				},
			},
		},
		{
			name: "button press",
			line: "b5,2000,1,1,-7,30,3,4,256,1",
			want: &InputMsg{
				Type: EventButtonPress, Serial: 5, Time: 2000, TargetClient: -1,
				Pointer: &PointerData{
					MouseWindow: 1, EventWindow: 1,
					RootX: -7, RootY: 30, WinX: 3, WinY: 4,
					State: ModButton1, Button: 1,
				},
			},
		},
		{
			name: "button release",
			line: "B6,2001,1,1,0,0,0,0,0,3",
			want: &InputMsg{
				Type: EventButtonRelease, Serial: 6, Time: 2001, TargetClient: -1,
				Pointer: &PointerData{
					MouseWindow: 1, EventWindow: 1, Button: 3,
				},
			},
		},
		{
			name: "scroll down",
			line: "s7,2002,4,4,9,9,1,1,0,1",
			want: &InputMsg{
				Type: EventScroll, Serial: 7, Time: 2002, TargetClient: -1,
				Pointer: &PointerData{
					MouseWindow: 4, EventWindow: 4,
					RootX: 9, RootY: 9, WinX: 1, WinY: 1,
					Direction: ScrollDown,
				},
			},
		},
		{
			name: "key press",
			line: "k8,3000,65,1",
			want: &InputMsg{
				Type: EventKeyPress, Serial: 8, Time: 3000, TargetClient: -1,
				Key:  &KeyData{Keysym: 65, State: ModShift},
			},
		},
		{
			name: "key release",
			line: "K9,3001,65,0",
			want: &InputMsg{
				Type: EventKeyRelease, Serial: 9, Time: 3001, TargetClient: -1,
				Key:  &KeyData{Keysym: 65},
			},
		},
		{
			name: "grab notify",
			line: "g10,4000,5",
			want: &InputMsg{
				Type: EventGrabNotify, Serial: 10, Time: 4000, TargetClient: -1,
				Window: &WindowData{Window: 5},
			},
		},
		{
			name: "ungrab notify",
			line: "u11,4001,5",
			want: &InputMsg{
				Type: EventUngrabNotify, Serial: 11, Time: 4001, TargetClient: -1,
				Window: &WindowData{Window: 5},
			},
		},
		{
			name: "configure",
			line: "w12,5000,6,10,20,300,200",
			want: &InputMsg{
				Type: EventConfigure, Serial: 12, Time: 5000, TargetClient: -1,
				Window: &WindowData{Window: 6, X: 10, Y: 20, Width: 300, Height: 200},
			},
		},
		{
			name: "delete",
			line: "d13,5001,6",
			want: &InputMsg{
				Type: EventDelete, Serial: 13, Time: 5001, TargetClient: -1,
				Window: &WindowData{Window: 6},
			},
		},
		{
			name: "screen resize",
			line: "S14,6000,1920,1080",
			want: &InputMsg{
				Type: EventScreenResize, Serial: 14, Time: 6000, TargetClient: -1,
				Screen: &ScreenData{Width: 1920, Height: 1080},
			},
		},
		{
			name: "sync reply",
			line: "q15,6001,42",
			want: &InputMsg{
				Type: EventSyncReply, Serial: 15, Time: 6001, TargetClient: -1,
				Sync: &SyncData{Echo: 42},
			},
		},
		{
			name: "max uint32 serial and time",
			line: "q4294967295,4294967295,0",
			want: &InputMsg{
				Type: EventSyncReply, Serial: 4294967295, Time: 4294967295, TargetClient: -1,
				Sync: &SyncData{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInput([]byte(tt.line))
			if err != nil {
				t.Fatalf("ParseInput(%q) error: %v", tt.line, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseInput(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestParseInputErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
		want error
	}{
		{"empty", "", ErrEmptyMessage},
		{"unknown tag", "Z1,2", ErrUnknownEventType},
		{"tag only", "m", ErrMalformedMessage},
		{"missing fields", "m1,2,3", ErrMalformedMessage},
		{"trailing field", "k1,2,65,0,9", ErrMalformedMessage},
		{"trailing comma", "d1,2,6,", ErrMalformedMessage},
		{"non-numeric field", "d1,2,abc", ErrMalformedMessage},
		{"empty field", "d1,,6", ErrMalformedMessage},
		{"negative serial", "d-1,2,6", ErrMalformedMessage},
		{"serial overflow", "d4294967296,2,6", ErrMalformedMessage},
		{"bare minus", "d1,2,-", ErrMalformedMessage},
		{"coordinate overflow", "w1,2,6,2147483648,0,1,1", ErrMalformedMessage},
		{"too long", "m" + strings.Repeat("1", MaxMessageLen+1), ErrMessageTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseInput([]byte(tt.line))
			if !errors.Is(err, tt.want) {
				t.Errorf("ParseInput(%q) error = %v, want %v", tt.line, err, tt.want)
			}
		})
	}
}

func TestParseInputNegativeCoordinates(t *testing.T) {
	// Pointer coordinates go negative when a window hangs off-screen.
	got, err := ParseInput([]byte("m1,2,3,3,-100,-200,-5,-10,0"))
	if err != nil {
		t.Fatalf("ParseInput error: %v", err)
	}
	p := got.Pointer
	if p.RootX != -100 || p.RootY != -200 || p.WinX != -5 || p.WinY != -10 {
		t.Errorf("got coordinates (%d,%d) (%d,%d), want (-100,-200) (-5,-10)",
			p.RootX, p.RootY, p.WinX, p.WinY)
	}
}

func TestInputRoundTrip(t *testing.T) {
	msgs := []*InputMsg{
		{Type: EventEnter, Serial: 1, Time: 10, TargetClient: -1,
			Pointer: &PointerData{MouseWindow: 1, EventWindow: 2, RootX: -3, RootY: 4, WinX: 5, WinY: 6, State: ModShift | ModButton1, Mode: CrossingUngrab}},
		{Type: EventLeave, Serial: 2, Time: 11, TargetClient: -1,
			Pointer: &PointerData{MouseWindow: 1, EventWindow: 1}},
		{Type: EventMotion, Serial: 3, Time: 12, TargetClient: -1,
			Pointer: &PointerData{MouseWindow: 7, EventWindow: 7, RootX: 100, RootY: 200, WinX: 10, WinY: 20, State: ModControl}},
		{Type: EventButtonPress, Serial: 4, Time: 13, TargetClient: -1,
			Pointer: &PointerData{MouseWindow: 1, EventWindow: 1, Button: 2}},
		{Type: EventButtonRelease, Serial: 5, Time: 14, TargetClient: -1,
			Pointer: &PointerData{MouseWindow: 1, EventWindow: 1, Button: 2, State: ModButton2}},
		{Type: EventScroll, Serial: 6, Time: 15, TargetClient: -1,
			Pointer: &PointerData{MouseWindow: 1, EventWindow: 1, Direction: ScrollUp}},
		{Type: EventKeyPress, Serial: 7, Time: 16, TargetClient: -1, Key: &KeyData{Keysym: 0xFF0D, State: ModMod1}},
		{Type: EventKeyRelease, Serial: 8, Time: 17, TargetClient: -1, Key: &KeyData{Keysym: 32}},
		{Type: EventGrabNotify, Serial: 9, Time: 18, TargetClient: -1, Window: &WindowData{Window: 5}},
		{Type: EventUngrabNotify, Serial: 10, Time: 19, TargetClient: -1, Window: &WindowData{Window: 5}},
		{Type: EventConfigure, Serial: 11, Time: 20, TargetClient: -1, Window: &WindowData{Window: 6, X: -1, Y: -2, Width: 640, Height: 480}},
		{Type: EventDelete, Serial: 12, Time: 21, TargetClient: -1, Window: &WindowData{Window: 6}},
		{Type: EventScreenResize, Serial: 13, Time: 22, TargetClient: -1, Screen: &ScreenData{Width: 800, Height: 600}},
		{Type: EventSyncReply, Serial: 14, Time: 23, TargetClient: -1, Sync: &SyncData{Echo: 99}},
	}

	for _, msg := range msgs {
		t.Run(msg.Type.String(), func(t *testing.T) {
			line := msg.Append(nil)
			got, err := ParseInput(line)
			if err != nil {
				t.Fatalf("ParseInput(%q) error: %v", line, err)
			}
			if !reflect.DeepEqual(got, msg) {
				t.Errorf("round trip %q = %+v, want %+v", line, got, msg)
			}
		})
	}
}

func BenchmarkParseInput_Motion(b *testing.B) {
	line := []byte("m17,4242,3,3,105,210,5,10,0")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ParseInput(line); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkInputAppend_Motion(b *testing.B) {
	msg := &InputMsg{
		Type: EventMotion, Serial: 17, Time: 4242,
		Pointer: &PointerData{MouseWindow: 3, EventWindow: 3, RootX: 105, RootY: 210, WinX: 5, WinY: 10},
	}
	buf := make([]byte, 0, 64)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf = msg.Append(buf[:0])
	}
}
