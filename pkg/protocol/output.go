package protocol

import (
	"encoding/base64"
	"strconv"
)

// Op identifies an output command. The values are the op characters used on
// the wire.
type Op byte

const (
	OpDisconnected   Op = 'D' // connection replaced or server shutting down
	OpAuthRequest    Op = 'a' // password required
	OpCreateSurface  Op = 's'
	OpShowSurface    Op = 'S'
	OpHideSurface    Op = 'H'
	OpDestroySurface Op = 'd'
	OpMoveResize     Op = 'm'
	OpSetTransient   Op = 'p'
	OpPutImage       Op = 'i' // literal pixel content
	OpPatchImage     Op = 'I' // XOR delta against current content
	OpGrabPointer    Op = 'g'
	OpUngrabPointer  Op = 'u'
	OpSync           Op = 'q'
)

// String returns the command name.
func (op Op) String() string {
	switch op {
	case OpDisconnected:
		return "Disconnected"
	case OpAuthRequest:
		return "AuthRequest"
	case OpCreateSurface:
		return "CreateSurface"
	case OpShowSurface:
		return "ShowSurface"
	case OpHideSurface:
		return "HideSurface"
	case OpDestroySurface:
		return "DestroySurface"
	case OpMoveResize:
		return "MoveResize"
	case OpSetTransient:
		return "SetTransient"
	case OpPutImage:
		return "PutImage"
	case OpPatchImage:
		return "PatchImage"
	case OpGrabPointer:
		return "GrabPointer"
	case OpUngrabPointer:
		return "UngrabPointer"
	case OpSync:
		return "Sync"
	default:
		return "Unknown"
	}
}

// Valid reports whether op is a known command.
func (op Op) Valid() bool {
	switch op {
	case OpDisconnected, OpAuthRequest, OpCreateSurface, OpShowSurface,
		OpHideSurface, OpDestroySurface, OpMoveResize, OpSetTransient,
		OpPutImage, OpPatchImage, OpGrabPointer, OpUngrabPointer, OpSync:
		return true
	}
	return false
}

// OutputBuffer accumulates output commands for one flush. Commands are
// separated by '\n'; the whole buffer is sent as a single WebSocket message.
// The zero value is ready to use.
type OutputBuffer struct {
	buf []byte
	n   int
}

// Disconnected appends a disconnected command.
func (o *OutputBuffer) Disconnected() {
	o.cmd(OpDisconnected)
}

// AuthRequest appends an auth-request command.
func (o *OutputBuffer) AuthRequest() {
	o.cmd(OpAuthRequest)
}

// CreateSurface appends a create-surface command.
func (o *OutputBuffer) CreateSurface(id, x, y, width, height int32, temp bool) {
	o.cmd(OpCreateSurface, int64(id), int64(x), int64(y), int64(width), int64(height), b01(temp))
}

// ShowSurface appends a show-surface command.
func (o *OutputBuffer) ShowSurface(id int32) {
	o.cmd(OpShowSurface, int64(id))
}

// HideSurface appends a hide-surface command.
func (o *OutputBuffer) HideSurface(id int32) {
	o.cmd(OpHideSurface, int64(id))
}

// DestroySurface appends a destroy-surface command.
func (o *OutputBuffer) DestroySurface(id int32) {
	o.cmd(OpDestroySurface, int64(id))
}

// MoveResize appends a move-resize command with resolved geometry.
func (o *OutputBuffer) MoveResize(id, x, y, width, height int32) {
	o.cmd(OpMoveResize, int64(id), int64(x), int64(y), int64(width), int64(height))
}

// SetTransient appends a set-transient command. parent 0 clears the relation.
func (o *OutputBuffer) SetTransient(id, parent int32) {
	o.cmd(OpSetTransient, int64(id), int64(parent))
}

// PutImage appends a put-image command carrying literal PNG content for the
// given rectangle.
func (o *OutputBuffer) PutImage(id, x, y, width, height int32, png []byte) {
	o.cmd(OpPutImage, int64(id), int64(x), int64(y), int64(width), int64(height))
	o.image(png)
}

// PatchImage appends a patch-image command carrying a PNG-encoded XOR delta
// for the given rectangle.
func (o *OutputBuffer) PatchImage(id, x, y, width, height int32, png []byte) {
	o.cmd(OpPatchImage, int64(id), int64(x), int64(y), int64(width), int64(height))
	o.image(png)
}

// GrabPointer appends a grab-pointer command.
func (o *OutputBuffer) GrabPointer(id int32, ownerEvents bool) {
	o.cmd(OpGrabPointer, int64(id), b01(ownerEvents))
}

// UngrabPointer appends an ungrab-pointer command.
func (o *OutputBuffer) UngrabPointer() {
	o.cmd(OpUngrabPointer)
}

// Sync appends a sync command. The client replies with a sync-reply input
// message echoing serial.
func (o *OutputBuffer) Sync(serial uint32) {
	o.cmd(OpSync, int64(serial))
}

// Bytes returns the accumulated wire bytes. The slice is invalidated by the
// next append or Reset.
func (o *OutputBuffer) Bytes() []byte { return o.buf }

// Len returns the accumulated size in bytes.
func (o *OutputBuffer) Len() int { return len(o.buf) }

// Count returns the number of commands in the buffer.
func (o *OutputBuffer) Count() int { return o.n }

// Reset empties the buffer, retaining capacity.
func (o *OutputBuffer) Reset() {
	o.buf = o.buf[:0]
	o.n = 0
}

func (o *OutputBuffer) cmd(op Op, fields ...int64) {
	if len(o.buf) > 0 {
		o.buf = append(o.buf, '\n')
	}
	o.buf = append(o.buf, byte(op))
	for i, f := range fields {
		if i > 0 {
			o.buf = append(o.buf, ',')
		}
		o.buf = strconv.AppendInt(o.buf, f, 10)
	}
	o.n++
}

func (o *OutputBuffer) image(png []byte) {
	o.buf = append(o.buf, ',')
	// Expansion of base64.StdEncoding.AppendEncode, which requires Go 1.22.
	n := len(o.buf)
	o.buf = append(o.buf, make([]byte, base64.StdEncoding.EncodedLen(len(png)))...)
	base64.StdEncoding.Encode(o.buf[n:], png)
}

func b01(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
