package display

import (
	"github.com/go-broadway/broadway/pkg/protocol"
)

// PointerInfo is the last-seen pointer state, as returned by QueryPointer.
// It reflects the most recent pointer-class input message and keeps
// answering queries after the client disconnects.
type PointerInfo struct {
	Window int32 // window under the pointer, 0 when none
	RootX  int32
	RootY  int32
	WinX   int32
	WinY   int32
	Mask   protocol.Modifiers
}

// timeBase rebases one connection's client timestamps onto the server's
// time line. The first non-zero timestamp fixes an offset such that the
// adjusted stream continues strictly after the latest timestamp the server
// has ever seen; reconnecting clients therefore never move time backward.
// All arithmetic is uint32 and wraps, matching the client's millisecond
// counter.
type timeBase struct {
	offset uint32
	fixed  bool
}

// adjust maps a client timestamp to server time. Zero timestamps carry no
// timing information and map to the current high-water mark.
func (tb *timeBase) adjust(t, latest uint32) uint32 {
	if t == 0 {
		return latest
	}
	if !tb.fixed {
		tb.offset = latest + 1 - t
		tb.fixed = true
	}
	return t + tb.offset
}

// tracker maintains the last-seen event snapshot: pointer position,
// modifier and button mask, hovered window, screen size, and the adjusted
// time high-water mark. It is owned by the server loop.
type tracker struct {
	ptr      PointerInfo
	screenW  int32
	screenH  int32
	lastTime uint32
}

// observe folds one time-adjusted input message into the snapshot.
func (tr *tracker) observe(msg *protocol.InputMsg) {
	if msg.Time > tr.lastTime {
		tr.lastTime = msg.Time
	}
	switch msg.Type {
	case protocol.EventEnter, protocol.EventMotion, protocol.EventScroll:
		p := msg.Pointer
		tr.ptr = PointerInfo{
			Window: p.MouseWindow,
			RootX:  p.RootX, RootY: p.RootY,
			WinX: p.WinX, WinY: p.WinY,
			Mask: p.State,
		}
	case protocol.EventLeave:
		p := msg.Pointer
		tr.ptr = PointerInfo{
			RootX: p.RootX, RootY: p.RootY,
			WinX: p.WinX, WinY: p.WinY,
			Mask: p.State,
		}
	case protocol.EventButtonPress:
		p := msg.Pointer
		tr.ptr = PointerInfo{
			Window: p.MouseWindow,
			RootX:  p.RootX, RootY: p.RootY,
			WinX: p.WinX, WinY: p.WinY,
			// The wire state is the mask before the transition, X style.
			Mask: p.State | protocol.ButtonMask(p.Button),
		}
	case protocol.EventButtonRelease:
		p := msg.Pointer
		tr.ptr = PointerInfo{
			Window: p.MouseWindow,
			RootX:  p.RootX, RootY: p.RootY,
			WinX: p.WinX, WinY: p.WinY,
			Mask: p.State &^ protocol.ButtonMask(p.Button),
		}
	case protocol.EventKeyPress, protocol.EventKeyRelease:
		tr.ptr.Mask = msg.Key.State
	case protocol.EventScreenResize:
		tr.screenW = msg.Screen.Width
		tr.screenH = msg.Screen.Height
	}
}
