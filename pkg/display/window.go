package display

import (
	"github.com/go-broadway/broadway/pkg/surface"
)

// window is the server-side record for one toplevel. All fields are owned by
// the server loop.
type window struct {
	id           int32
	owner        int32 // owning client id
	x, y         int32
	width        int32
	height       int32
	visible      bool
	temp         bool  // pop-up style surface, no decorations client-side
	transientFor int32 // 0 means none

	// content holds the application's current frame; nil until the first
	// SetWindowContent.
	content *surface.Surface

	// shadow is the last frame shipped to the client, used as the XOR diff
	// base. nil while the client has no frame for this window.
	shadow *surface.Surface

	// synced reports whether the connected client holds a full frame.
	// Cleared on resize, disconnect, and resync.
	synced bool
}

func (w *window) rect() surface.Rect {
	return surface.Rect{X: w.x, Y: w.y, Width: w.width, Height: w.height}
}

func (w *window) info() WindowInfo {
	return WindowInfo{
		ID:           w.id,
		Owner:        w.owner,
		X:            w.x,
		Y:            w.y,
		Width:        w.width,
		Height:       w.height,
		Visible:      w.visible,
		Temp:         w.temp,
		TransientFor: w.transientFor,
	}
}

// WindowInfo is an immutable snapshot of one window, as returned by Windows.
type WindowInfo struct {
	ID           int32
	Owner        int32
	X, Y         int32
	Width        int32
	Height       int32
	Visible      bool
	Temp         bool
	TransientFor int32
}

// WindowFrame pairs a window snapshot with a copy of its current content, as
// returned by Frames. Content is nil for windows that never received a frame.
type WindowFrame struct {
	WindowInfo
	Content *surface.Surface
}

// windowTable holds the window set and its stacking order. The stack slice
// runs bottom to top; windows enter at the top and keep their position until
// destroyed.
type windowTable struct {
	byID  map[int32]*window
	stack []*window
}

func newWindowTable() *windowTable {
	return &windowTable{
		byID: make(map[int32]*window),
	}
}

func (t *windowTable) add(w *window) {
	t.byID[w.id] = w
	t.stack = append(t.stack, w)
}

func (t *windowTable) get(id int32) *window {
	return t.byID[id]
}

func (t *windowTable) remove(id int32) *window {
	w := t.byID[id]
	if w == nil {
		return nil
	}
	delete(t.byID, id)
	for i, sw := range t.stack {
		if sw == w {
			t.stack = append(t.stack[:i], t.stack[i+1:]...)
			break
		}
	}
	// Transient children of a destroyed window fall back to no parent.
	for _, other := range t.stack {
		if other.transientFor == id {
			other.transientFor = 0
		}
	}
	return w
}

func (t *windowTable) len() int {
	return len(t.stack)
}
