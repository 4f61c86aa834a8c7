package display

import (
	"fmt"

	"github.com/go-broadway/broadway/pkg/protocol"
	"github.com/go-broadway/broadway/pkg/surface"
)

// serializer stages output commands for the current connection and applies
// the frame-shipping policy: the first frame for a window (and the first
// after a resize or resync) goes out as literal content, later frames as
// XOR deltas of the dirty rectangles only.
type serializer struct {
	out       protocol.OutputBuffer
	blockSize int
}

// syncContent ships whatever of w's content the client does not have yet.
func (sz *serializer) syncContent(w *window) error {
	if w.content == nil {
		return nil
	}
	if !w.synced || w.shadow == nil ||
		w.shadow.Width != w.content.Width || w.shadow.Height != w.content.Height {
		return sz.fullFrame(w)
	}
	delta := surface.Diff(w.shadow, w.content)
	if delta == nil {
		return nil
	}
	for _, r := range surface.DirtyRects(delta, sz.blockSize) {
		sub, err := delta.SubSurface(r)
		if err != nil {
			return fmt.Errorf("display: window %d: %w", w.id, err)
		}
		png, err := surface.EncodePNG(sub)
		if err != nil {
			return fmt.Errorf("display: window %d: %w", w.id, err)
		}
		sz.out.PatchImage(w.id, r.X, r.Y, r.Width, r.Height, png)
	}
	w.shadow = w.content.Clone()
	return nil
}

// fullFrame ships w's entire content as literal pixels and installs it as
// the new diff base.
func (sz *serializer) fullFrame(w *window) error {
	png, err := surface.EncodePNG(w.content)
	if err != nil {
		return fmt.Errorf("display: window %d: %w", w.id, err)
	}
	sz.out.PutImage(w.id, 0, 0, int32(w.content.Width), int32(w.content.Height), png)
	w.shadow = w.content.Clone()
	w.synced = true
	return nil
}

// resync emits the complete display state for a freshly attached connection:
// every window created in stacking order, transient relations reapplied,
// full frames for windows with content, shows for the visible ones, and the
// active grab replayed last.
func (sz *serializer) resync(t *windowTable, grab GrabInfo) error {
	for _, w := range t.stack {
		w.synced = false
		w.shadow = nil
	}
	for _, w := range t.stack {
		sz.out.CreateSurface(w.id, w.x, w.y, w.width, w.height, w.temp)
	}
	for _, w := range t.stack {
		if w.transientFor != 0 {
			sz.out.SetTransient(w.id, w.transientFor)
		}
	}
	for _, w := range t.stack {
		if w.content != nil {
			if err := sz.fullFrame(w); err != nil {
				return err
			}
		}
	}
	for _, w := range t.stack {
		if w.visible {
			sz.out.ShowSurface(w.id)
		}
	}
	if grab.Held() {
		sz.out.GrabPointer(grab.Window, grab.OwnerEvents)
	}
	return nil
}
