package hybi

import (
	"bytes"
	"errors"
)

// ErrLegacyFraming is returned when a legacy-framed stream breaks the
// 0x00/0xFF sentinel scheme. The framing has no resynchronization point, so
// the connection must be torn down; this includes the 0xFF,0x00 closing
// handshake some hixie clients send.
var ErrLegacyFraming = errors.New("hybi: legacy framing violation")

// LegacyFramer decodes hixie-76 framed messages: each message is 0x00,
// payload bytes, 0xFF. Like Framer it is a push parser and an incomplete
// message is not an error.
type LegacyFramer struct {
	// MaxPayload caps the size of a single message. Zero means no limit.
	MaxPayload int

	buf []byte
}

// Append adds bytes received from the peer to the framer's buffer.
func (f *LegacyFramer) Append(p []byte) {
	f.buf = append(f.buf, p...)
}

// Buffered returns the number of unconsumed bytes.
func (f *LegacyFramer) Buffered() int { return len(f.buf) }

// Next returns the next complete message payload, (nil, nil) if more bytes
// are needed, or ErrLegacyFraming/ErrMessageTooLarge. The payload is a copy.
func (f *LegacyFramer) Next() ([]byte, error) {
	if len(f.buf) == 0 {
		return nil, nil
	}
	if f.buf[0] != 0x00 {
		return nil, ErrLegacyFraming
	}
	i := bytes.IndexByte(f.buf[1:], 0xFF)
	if i < 0 {
		if f.MaxPayload > 0 && len(f.buf)-1 > f.MaxPayload {
			return nil, ErrMessageTooLarge
		}
		return nil, nil
	}
	if f.MaxPayload > 0 && i > f.MaxPayload {
		return nil, ErrMessageTooLarge
	}
	payload := make([]byte, i)
	copy(payload, f.buf[1:1+i])
	f.buf = f.buf[:copy(f.buf, f.buf[2+i:])]
	return payload, nil
}

// AppendLegacyFrame appends a hixie-76 framed message to dst.
func AppendLegacyFrame(dst []byte, payload []byte) []byte {
	dst = append(dst, 0x00)
	dst = append(dst, payload...)
	return append(dst, 0xFF)
}
