package display

// NoGrab is the sentinel for "no pointer grab held", used in GrabInfo
// window and client ids.
const NoGrab = -1

// GrabInfo describes the pointer grab state. Window and Client are NoGrab
// when no grab is held.
type GrabInfo struct {
	Window      int32
	Client      int32
	OwnerEvents bool
	Time        uint32
}

// Held reports whether a grab is active.
func (g GrabInfo) Held() bool { return g.Window != NoGrab }

// grabState implements the pointer grab rules. Timestamps are in the
// server's adjusted time base, which only moves forward, so plain ordering
// comparisons are safe.
type grabState struct {
	cur GrabInfo
}

func newGrabState() grabState {
	return grabState{cur: GrabInfo{Window: NoGrab, Client: NoGrab}}
}

// grab installs a pointer grab for (window, client) at time t. It fails with
// no state change when a grab is already held with a timestamp at or after
// t; a stale request never displaces a newer grab.
func (g *grabState) grab(window, client int32, ownerEvents bool, t uint32) bool {
	if g.cur.Held() && g.cur.Time >= t {
		return false
	}
	g.cur = GrabInfo{
		Window:      window,
		Client:      client,
		OwnerEvents: ownerEvents,
		Time:        t,
	}
	return true
}

// ungrab releases the grab at time t. A release older than the grab itself
// is ignored with no state change.
func (g *grabState) ungrab(t uint32) bool {
	if !g.cur.Held() {
		return false
	}
	if g.cur.Time > t {
		return false
	}
	g.cur = GrabInfo{Window: NoGrab, Client: NoGrab}
	return true
}

// dropWindow clears the grab if the given window holds it, regardless of
// timestamps. Destroying the grab window must not leave a dangling grab.
func (g *grabState) dropWindow(window int32) bool {
	if g.cur.Window != window {
		return false
	}
	g.cur = GrabInfo{Window: NoGrab, Client: NoGrab}
	return true
}
