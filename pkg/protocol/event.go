package protocol

// EventType identifies the kind of an input message. The values are the
// single-character tags used on the wire.
type EventType byte

const (
	EventEnter         EventType = 'e' // pointer entered a window
	EventLeave         EventType = 'l' // pointer left a window
	EventMotion        EventType = 'm' // pointer moved
	EventButtonPress   EventType = 'b' // mouse button pressed
	EventButtonRelease EventType = 'B' // mouse button released
	EventScroll        EventType = 's' // scroll wheel
	EventKeyPress      EventType = 'k' // key pressed
	EventKeyRelease    EventType = 'K' // key released
	EventGrabNotify    EventType = 'g' // client acknowledged a pointer grab
	EventUngrabNotify  EventType = 'u' // client-side grab break
	EventConfigure     EventType = 'w' // window moved/resized in the client
	EventDelete        EventType = 'd' // window closed in the client
	EventScreenResize  EventType = 'S' // browser viewport resized
	EventSyncReply     EventType = 'q' // reply to a sync command
)

// String returns the event name.
func (t EventType) String() string {
	switch t {
	case EventEnter:
		return "Enter"
	case EventLeave:
		return "Leave"
	case EventMotion:
		return "Motion"
	case EventButtonPress:
		return "ButtonPress"
	case EventButtonRelease:
		return "ButtonRelease"
	case EventScroll:
		return "Scroll"
	case EventKeyPress:
		return "KeyPress"
	case EventKeyRelease:
		return "KeyRelease"
	case EventGrabNotify:
		return "GrabNotify"
	case EventUngrabNotify:
		return "UngrabNotify"
	case EventConfigure:
		return "Configure"
	case EventDelete:
		return "Delete"
	case EventScreenResize:
		return "ScreenResize"
	case EventSyncReply:
		return "SyncReply"
	default:
		return "Unknown"
	}
}

// Valid reports whether t is a known event tag.
func (t EventType) Valid() bool {
	switch t {
	case EventEnter, EventLeave, EventMotion, EventButtonPress,
		EventButtonRelease, EventScroll, EventKeyPress, EventKeyRelease,
		EventGrabNotify, EventUngrabNotify, EventConfigure, EventDelete,
		EventScreenResize, EventSyncReply:
		return true
	}
	return false
}

// PointerClass reports whether t is routed through the pointer grab machinery.
func (t EventType) PointerClass() bool {
	switch t {
	case EventEnter, EventLeave, EventMotion, EventButtonPress,
		EventButtonRelease, EventScroll:
		return true
	}
	return false
}

// Modifiers is the modifier and button state bitmask carried by pointer and
// key events. The bit layout follows the X11 convention the browser client
// reproduces.
type Modifiers uint32

const (
	ModShift   Modifiers = 1 << 0
	ModLock    Modifiers = 1 << 1
	ModControl Modifiers = 1 << 2
	ModMod1    Modifiers = 1 << 3 // usually Alt
	ModButton1 Modifiers = 1 << 8
	ModButton2 Modifiers = 1 << 9
	ModButton3 Modifiers = 1 << 10
	ModButton4 Modifiers = 1 << 11
	ModButton5 Modifiers = 1 << 12
)

// Has reports whether all modifiers in mask are set.
func (m Modifiers) Has(mask Modifiers) bool {
	return m&mask == mask
}

// ButtonMask returns the state bit for a 1-based mouse button number, or 0
// for buttons outside 1..5.
func ButtonMask(button int32) Modifiers {
	if button < 1 || button > 5 {
		return 0
	}
	return ModButton1 << (button - 1)
}

// CrossingMode describes why an enter or leave event was generated.
type CrossingMode int32

const (
	CrossingNormal CrossingMode = 0
	CrossingGrab   CrossingMode = 1
	CrossingUngrab CrossingMode = 2
)

// String returns the crossing mode name.
func (c CrossingMode) String() string {
	switch c {
	case CrossingNormal:
		return "Normal"
	case CrossingGrab:
		return "Grab"
	case CrossingUngrab:
		return "Ungrab"
	default:
		return "Unknown"
	}
}

// ScrollDirection is the wheel direction of a scroll event.
type ScrollDirection int32

const (
	ScrollUp   ScrollDirection = 0
	ScrollDown ScrollDirection = 1
)

// String returns the scroll direction name.
func (d ScrollDirection) String() string {
	switch d {
	case ScrollUp:
		return "Up"
	case ScrollDown:
		return "Down"
	default:
		return "Unknown"
	}
}

// PointerData is the payload of pointer-class events (enter, leave, motion,
// button press/release, scroll). Mode is meaningful for enter/leave, Button
// for button press/release, Direction for scroll; the rest of the fields are
// shared by all pointer events.
type PointerData struct {
	MouseWindow int32 // window under the pointer
	EventWindow int32 // window the event is reported against
	RootX       int32 // position in screen coordinates
	RootY       int32
	WinX        int32 // position relative to the event window
	WinY        int32
	State       Modifiers
	Mode        CrossingMode
	Button      int32
	Direction   ScrollDirection
}

// KeyData is the payload of key press/release events.
type KeyData struct {
	Keysym int32
	State  Modifiers
}

// WindowData is the payload of grab-notify, ungrab-notify, configure and
// delete events. X/Y/Width/Height are meaningful for configure only.
type WindowData struct {
	Window int32
	X      int32
	Y      int32
	Width  int32
	Height int32
}

// ScreenData is the payload of screen-resize events.
type ScreenData struct {
	Width  int32
	Height int32
}

// SyncData is the payload of a sync reply.
type SyncData struct {
	Echo uint32 // sync serial being acknowledged
}

// InputMsg is one decoded input message. Exactly one of the payload pointers
// is set, according to Type.
type InputMsg struct {
	Type   EventType
	Serial uint32 // client message serial, strictly increasing per connection
	Time   uint32 // client timestamp in milliseconds (time-base adjusted by the server)

	// TargetClient is routing information attached by the display server
	// before the message reaches the embedding application: the grab owner
	// for pointer-class events while a grab is active, otherwise the owner
	// of the event window. -1 means unrouted.
	TargetClient int32

	Pointer *PointerData
	Key     *KeyData
	Window  *WindowData
	Screen  *ScreenData
	Sync    *SyncData
}
