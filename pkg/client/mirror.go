package client

import (
	"github.com/go-broadway/broadway/pkg/surface"
)

// Window is the client's mirror of one server-side window.
type Window struct {
	ID           int32
	X, Y         int32
	Width        int32
	Height       int32
	Temp         bool
	Visible      bool
	TransientFor int32 // 0 means none

	// Surface holds the mirrored pixel content, allocated zeroed at
	// create-surface and replaced on resize. Accessors return a copy.
	Surface *surface.Surface
}

// Grab is the client-side view of the pointer grab.
type Grab struct {
	Held        bool
	Window      int32
	OwnerEvents bool
}

// Window returns a copy of the mirrored window, pixel content included.
func (c *Client) Window(id int32) (Window, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := c.windows[id]
	if w == nil {
		return Window{}, false
	}
	return w.copyOut(), true
}

// Windows returns the mirrored windows in stacking order, bottom first.
func (c *Client) Windows() []Window {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Window, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.windows[id].copyOut())
	}
	return out
}

// WindowCount returns the number of mirrored windows.
func (c *Client) WindowCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Pixel reads one mirrored pixel without copying the frame. ok is false
// for unknown windows and out-of-bounds coordinates.
func (c *Client) Pixel(id int32, x, y int) (r, g, b, a byte, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := c.windows[id]
	if w == nil || x < 0 || y < 0 || x >= w.Surface.Width || y >= w.Surface.Height {
		return 0, 0, 0, 0, false
	}
	r, g, b, a = w.Surface.Pixel(x, y)
	return r, g, b, a, true
}

// Grab returns the client-side pointer grab state.
func (c *Client) Grab() Grab {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.grab
}

func (w *Window) copyOut() Window {
	cp := *w
	cp.Surface = w.Surface.Clone()
	return cp
}
