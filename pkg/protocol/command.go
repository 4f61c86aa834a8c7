package protocol

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// Sentinel errors returned by the command parser.
var (
	// ErrUnknownCommand is returned for an unrecognized op character.
	ErrUnknownCommand = errors.New("protocol: unknown command")

	// ErrMalformedCommand is returned when command fields are missing,
	// garbled, out of range, or left over.
	ErrMalformedCommand = errors.New("protocol: malformed command")

	// ErrCommandTooLong is returned when a command exceeds MaxCommandLen.
	ErrCommandTooLong = errors.New("protocol: command too long")

	// ErrImageTooLarge is returned when an image payload exceeds MaxImageBytes.
	ErrImageTooLarge = errors.New("protocol: image payload too large")
)

// Command is one decoded output command. Field meaning depends on Op; Image
// holds the decoded PNG bytes of put-image and patch-image commands.
//
// Commands are parsed by protocol clients (the browser client has its own
// JavaScript parser; this one serves Go clients and tests).
type Command struct {
	Op          Op
	ID          int32
	X           int32
	Y           int32
	Width       int32
	Height      int32
	Parent      int32
	Temp        bool
	OwnerEvents bool
	Serial      uint32
	Image       []byte
}

// ParseCommand decodes a single output command. line must not contain the
// '\n' command separator. The returned command does not retain line.
func ParseCommand(line []byte) (*Command, error) {
	if len(line) == 0 {
		return nil, ErrEmptyMessage
	}
	if len(line) > MaxCommandLen {
		return nil, ErrCommandTooLong
	}
	op := Op(line[0])
	if !op.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, line[0])
	}

	r := fieldReader{rest: line[1:]}
	if len(line) == 1 {
		r.rest = nil // op with no fields at all
	}
	cmd := &Command{Op: op}

	switch op {
	case OpDisconnected, OpAuthRequest, OpUngrabPointer:
		// No fields.

	case OpCreateSurface:
		cmd.ID = r.int32()
		cmd.X = r.int32()
		cmd.Y = r.int32()
		cmd.Width = r.int32()
		cmd.Height = r.int32()
		cmd.Temp = r.int32() != 0

	case OpShowSurface, OpHideSurface, OpDestroySurface:
		cmd.ID = r.int32()

	case OpMoveResize:
		cmd.ID = r.int32()
		cmd.X = r.int32()
		cmd.Y = r.int32()
		cmd.Width = r.int32()
		cmd.Height = r.int32()

	case OpSetTransient:
		cmd.ID = r.int32()
		cmd.Parent = r.int32()

	case OpPutImage, OpPatchImage:
		cmd.ID = r.int32()
		cmd.X = r.int32()
		cmd.Y = r.int32()
		cmd.Width = r.int32()
		cmd.Height = r.int32()
		img, err := readImage(&r)
		if err != nil {
			return nil, err
		}
		cmd.Image = img

	case OpGrabPointer:
		cmd.ID = r.int32()
		cmd.OwnerEvents = r.int32() != 0

	case OpSync:
		cmd.Serial = r.uint32()
	}

	if r.finish() != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedCommand, op)
	}
	return cmd, nil
}

// readImage consumes the final base64 field and decodes it.
func readImage(r *fieldReader) ([]byte, error) {
	f := r.next()
	if r.err != nil {
		return nil, ErrMalformedCommand
	}
	if base64.StdEncoding.DecodedLen(len(f)) > MaxImageBytes {
		return nil, ErrImageTooLarge
	}
	img := make([]byte, base64.StdEncoding.DecodedLen(len(f)))
	n, err := base64.StdEncoding.Decode(img, f)
	if err != nil {
		return nil, fmt.Errorf("%w: bad image encoding", ErrMalformedCommand)
	}
	return img[:n], nil
}
