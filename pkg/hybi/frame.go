package hybi

import (
	"encoding/binary"
	"errors"
)

// Opcode is a hybi frame opcode.
type Opcode byte

const (
	OpcodeContinuation Opcode = 0x0
	OpcodeText         Opcode = 0x1
	OpcodeBinary       Opcode = 0x2
	OpcodeClose        Opcode = 0x8
	OpcodePing         Opcode = 0x9
	OpcodePong         Opcode = 0xA
)

// String returns the opcode name.
func (op Opcode) String() string {
	switch op {
	case OpcodeContinuation:
		return "Continuation"
	case OpcodeText:
		return "Text"
	case OpcodeBinary:
		return "Binary"
	case OpcodeClose:
		return "Close"
	case OpcodePing:
		return "Ping"
	case OpcodePong:
		return "Pong"
	default:
		return "Reserved"
	}
}

// Known reports whether op is defined by the protocol. Reserved opcodes are
// logged and dropped by the connection layer rather than failing it.
func (op Opcode) Known() bool {
	switch op {
	case OpcodeContinuation, OpcodeText, OpcodeBinary,
		OpcodeClose, OpcodePing, OpcodePong:
		return true
	}
	return false
}

// Control reports whether op is a control opcode.
func (op Opcode) Control() bool { return op&0x8 != 0 }

// Close status codes used by the server.
const (
	CloseNormal        uint16 = 1000
	CloseGoingAway     uint16 = 1001
	CloseProtocolError uint16 = 1002
	CloseTooLarge      uint16 = 1009
)

// Frame is one decoded hybi frame. Payload is unmasked and owned by the
// caller.
type Frame struct {
	Final   bool
	Opcode  Opcode
	Payload []byte
}

// Fatal framing errors. Any of these tears the connection down.
var (
	// ErrUnmaskedFrame is returned when a client data frame arrives without
	// the mask bit. Clients must mask everything they send.
	ErrUnmaskedFrame = errors.New("hybi: client frame not masked")

	// ErrBadControlFrame is returned for a fragmented control frame or one
	// with an extended payload length.
	ErrBadControlFrame = errors.New("hybi: malformed control frame")

	// ErrMessageTooLarge is returned when a frame or reassembled message
	// exceeds the configured maximum.
	ErrMessageTooLarge = errors.New("hybi: message too large")
)

// Framer decodes hybi frames from a byte stream fed in arbitrary chunks.
// Partial frames are not errors: Next returns (nil, nil) until the whole
// frame is buffered. The zero value is a client-side framer; servers set
// RequireMask.
type Framer struct {
	// RequireMask makes unmasked data frames a protocol violation. Servers
	// must set it; clients reading server frames leave it false.
	RequireMask bool

	// MaxPayload caps the declared payload length of a single frame.
	// Zero means no limit.
	MaxPayload int

	buf []byte
}

// Append adds bytes received from the peer to the framer's buffer.
func (f *Framer) Append(p []byte) {
	f.buf = append(f.buf, p...)
}

// Buffered returns the number of unconsumed bytes.
func (f *Framer) Buffered() int { return len(f.buf) }

// Next returns the next complete frame, (nil, nil) if more bytes are needed,
// or a fatal framing error.
func (f *Framer) Next() (*Frame, error) {
	if len(f.buf) < 2 {
		return nil, nil
	}
	b0, b1 := f.buf[0], f.buf[1]
	final := b0&0x80 != 0
	op := Opcode(b0 & 0x0F)
	masked := b1&0x80 != 0
	if f.RequireMask && !masked {
		return nil, ErrUnmaskedFrame
	}

	n := uint64(b1 & 0x7F)
	off := 2
	switch n {
	case 126:
		if len(f.buf) < off+2 {
			return nil, nil
		}
		n = uint64(binary.BigEndian.Uint16(f.buf[off:]))
		off += 2
	case 127:
		if len(f.buf) < off+8 {
			return nil, nil
		}
		n = binary.BigEndian.Uint64(f.buf[off:])
		off += 8
	}
	if op.Control() && (!final || n > 125) {
		return nil, ErrBadControlFrame
	}
	if f.MaxPayload > 0 && n > uint64(f.MaxPayload) {
		return nil, ErrMessageTooLarge
	}

	var key [4]byte
	if masked {
		if len(f.buf) < off+4 {
			return nil, nil
		}
		copy(key[:], f.buf[off:])
		off += 4
	}
	if uint64(len(f.buf)-off) < n {
		return nil, nil
	}

	payload := make([]byte, n)
	copy(payload, f.buf[off:off+int(n)])
	if masked {
		for i := range payload {
			payload[i] ^= key[i&3]
		}
	}
	f.buf = f.buf[:copy(f.buf, f.buf[off+int(n):])]
	return &Frame{Final: final, Opcode: op, Payload: payload}, nil
}

// AppendFrame appends an unmasked frame to dst, as a server sends them.
func AppendFrame(dst []byte, final bool, op Opcode, payload []byte) []byte {
	dst = appendHeader(dst, final, op, false, len(payload))
	return append(dst, payload...)
}

// AppendMaskedFrame appends a frame masked with key to dst, as a client
// sends them.
func AppendMaskedFrame(dst []byte, final bool, op Opcode, key [4]byte, payload []byte) []byte {
	dst = appendHeader(dst, final, op, true, len(payload))
	dst = append(dst, key[:]...)
	start := len(dst)
	dst = append(dst, payload...)
	for i := start; i < len(dst); i++ {
		dst[i] ^= key[(i-start)&3]
	}
	return dst
}

func appendHeader(dst []byte, final bool, op Opcode, masked bool, n int) []byte {
	b0 := byte(op)
	if final {
		b0 |= 0x80
	}
	dst = append(dst, b0)
	var b1 byte
	if masked {
		b1 = 0x80
	}
	switch {
	case n < 126:
		dst = append(dst, b1|byte(n))
	case n <= 0xFFFF:
		dst = append(dst, b1|126)
		dst = binary.BigEndian.AppendUint16(dst, uint16(n))
	default:
		dst = append(dst, b1|127)
		dst = binary.BigEndian.AppendUint64(dst, uint64(n))
	}
	return dst
}

// AppendClosePayload appends a close frame payload (status code plus reason)
// to dst.
func AppendClosePayload(dst []byte, code uint16, reason string) []byte {
	dst = binary.BigEndian.AppendUint16(dst, code)
	return append(dst, reason...)
}

// ClosePayload splits a close frame payload into status code and reason.
// An empty payload is valid and reported as CloseNormal.
func ClosePayload(p []byte) (code uint16, reason string) {
	if len(p) < 2 {
		return CloseNormal, ""
	}
	return binary.BigEndian.Uint16(p), string(p[2:])
}
