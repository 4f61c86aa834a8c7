package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Sentinel errors returned by the input parser.
var (
	// ErrEmptyMessage is returned for a zero-length message.
	ErrEmptyMessage = errors.New("protocol: empty message")

	// ErrMessageTooLong is returned when a message exceeds MaxMessageLen.
	ErrMessageTooLong = errors.New("protocol: message too long")

	// ErrUnknownEventType is returned for an unrecognized event tag.
	ErrUnknownEventType = errors.New("protocol: unknown event type")

	// ErrMalformedMessage is returned when fields are missing, garbled,
	// out of range, or left over after the last expected field.
	ErrMalformedMessage = errors.New("protocol: malformed message")
)

// ParseInput decodes a single input message. line must not contain the '\n'
// message separator. The returned message does not retain line.
//
// Field counts are exact: missing or extra fields make the message malformed.
func ParseInput(line []byte) (*InputMsg, error) {
	if len(line) == 0 {
		return nil, ErrEmptyMessage
	}
	if len(line) > MaxMessageLen {
		return nil, ErrMessageTooLong
	}
	t := EventType(line[0])
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, line[0])
	}

	r := fieldReader{rest: line[1:]}
	msg := &InputMsg{
		Type:         t,
		TargetClient: -1,
	}
	msg.Serial = r.uint32()
	msg.Time = r.uint32()

	switch t {
	case EventEnter, EventLeave:
		p := &PointerData{}
		readMotion(&r, p)
		p.Mode = CrossingMode(r.int32())
		msg.Pointer = p

	case EventMotion:
		p := &PointerData{}
		readMotion(&r, p)
		msg.Pointer = p

	case EventButtonPress, EventButtonRelease:
		p := &PointerData{}
		readMotion(&r, p)
		p.Button = r.int32()
		msg.Pointer = p

	case EventScroll:
		p := &PointerData{}
		readMotion(&r, p)
		p.Direction = ScrollDirection(r.int32())
		msg.Pointer = p

	case EventKeyPress, EventKeyRelease:
		msg.Key = &KeyData{
			Keysym: r.int32(),
			State:  Modifiers(r.uint32()),
		}

	case EventGrabNotify, EventUngrabNotify, EventDelete:
		msg.Window = &WindowData{Window: r.int32()}

	case EventConfigure:
		msg.Window = &WindowData{
			Window: r.int32(),
			X:      r.int32(),
			Y:      r.int32(),
			Width:  r.int32(),
			Height: r.int32(),
		}

	case EventScreenResize:
		msg.Screen = &ScreenData{
			Width:  r.int32(),
			Height: r.int32(),
		}

	case EventSyncReply:
		msg.Sync = &SyncData{Echo: r.uint32()}
	}

	if err := r.finish(); err != nil {
		return nil, fmt.Errorf("%w: %s event", err, t)
	}
	return msg, nil
}

// readMotion reads the fields shared by all pointer-class events.
func readMotion(r *fieldReader, p *PointerData) {
	p.MouseWindow = r.int32()
	p.EventWindow = r.int32()
	p.RootX = r.int32()
	p.RootY = r.int32()
	p.WinX = r.int32()
	p.WinY = r.int32()
	p.State = Modifiers(r.uint32())
}

// Append encodes the message in wire form, appending to dst. It is the
// inverse of ParseInput and is used by clients and tests.
func (m *InputMsg) Append(dst []byte) []byte {
	dst = append(dst, byte(m.Type))
	dst = strconv.AppendUint(dst, uint64(m.Serial), 10)
	dst = appendField(dst, int64(m.Time))

	switch m.Type {
	case EventEnter, EventLeave:
		dst = appendMotion(dst, m.Pointer)
		dst = appendField(dst, int64(m.Pointer.Mode))
	case EventMotion:
		dst = appendMotion(dst, m.Pointer)
	case EventButtonPress, EventButtonRelease:
		dst = appendMotion(dst, m.Pointer)
		dst = appendField(dst, int64(m.Pointer.Button))
	case EventScroll:
		dst = appendMotion(dst, m.Pointer)
		dst = appendField(dst, int64(m.Pointer.Direction))
	case EventKeyPress, EventKeyRelease:
		dst = appendField(dst, int64(m.Key.Keysym))
		dst = appendField(dst, int64(m.Key.State))
	case EventGrabNotify, EventUngrabNotify, EventDelete:
		dst = appendField(dst, int64(m.Window.Window))
	case EventConfigure:
		dst = appendField(dst, int64(m.Window.Window))
		dst = appendField(dst, int64(m.Window.X))
		dst = appendField(dst, int64(m.Window.Y))
		dst = appendField(dst, int64(m.Window.Width))
		dst = appendField(dst, int64(m.Window.Height))
	case EventScreenResize:
		dst = appendField(dst, int64(m.Screen.Width))
		dst = appendField(dst, int64(m.Screen.Height))
	case EventSyncReply:
		dst = appendField(dst, int64(m.Sync.Echo))
	}
	return dst
}

func appendMotion(dst []byte, p *PointerData) []byte {
	dst = appendField(dst, int64(p.MouseWindow))
	dst = appendField(dst, int64(p.EventWindow))
	dst = appendField(dst, int64(p.RootX))
	dst = appendField(dst, int64(p.RootY))
	dst = appendField(dst, int64(p.WinX))
	dst = appendField(dst, int64(p.WinY))
	dst = appendField(dst, int64(p.State))
	return dst
}

func appendField(dst []byte, v int64) []byte {
	dst = append(dst, ',')
	return strconv.AppendInt(dst, v, 10)
}

// fieldReader walks comma-separated decimal fields, latching the first
// error so per-field checks don't clutter the parser.
type fieldReader struct {
	rest []byte // nil once the final field has been consumed
	err  error
}

func (r *fieldReader) next() []byte {
	if r.err != nil {
		return nil
	}
	if r.rest == nil {
		r.err = ErrMalformedMessage
		return nil
	}
	i := bytes.IndexByte(r.rest, ',')
	var f []byte
	if i < 0 {
		f, r.rest = r.rest, nil
	} else {
		f, r.rest = r.rest[:i], r.rest[i+1:]
	}
	return f
}

func (r *fieldReader) int32() int32 {
	f := r.next()
	if r.err != nil {
		return 0
	}
	v, ok := parseInt(f)
	if !ok || v < math.MinInt32 || v > math.MaxInt32 {
		r.err = ErrMalformedMessage
		return 0
	}
	return int32(v)
}

func (r *fieldReader) uint32() uint32 {
	f := r.next()
	if r.err != nil {
		return 0
	}
	v, ok := parseInt(f)
	if !ok || v < 0 || v > math.MaxUint32 {
		r.err = ErrMalformedMessage
		return 0
	}
	return uint32(v)
}

// finish returns the latched error, or ErrMalformedMessage if fields remain.
func (r *fieldReader) finish() error {
	if r.err != nil {
		return r.err
	}
	if r.rest != nil {
		return ErrMalformedMessage
	}
	return nil
}

// parseInt decodes a signed decimal integer without allocating. The range
// guard is far wider than any legal field; int32/uint32 range checks happen
// at the call sites.
func parseInt(b []byte) (int64, bool) {
	if len(b) == 0 {
		return 0, false
	}
	neg := false
	i := 0
	if b[0] == '-' {
		neg = true
		i++
		if len(b) == 1 {
			return 0, false
		}
	}
	var v int64
	for ; i < len(b); i++ {
		c := b[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + int64(c-'0')
		if v > math.MaxUint32+1 {
			return 0, false
		}
	}
	if neg {
		v = -v
	}
	return v, true
}
