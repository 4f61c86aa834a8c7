package hybi

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

// ErrConnectionClosed is returned by ReadMessage after the peer sent a close
// frame (or the legacy stream ended cleanly).
var ErrConnectionClosed = errors.New("hybi: connection closed")

// DefaultMaxMessage caps reassembled message size when ConnConfig leaves
// MaxMessage zero. Input events are tiny; this is pure DoS headroom.
const DefaultMaxMessage = 1 << 20

// DefaultWriteTimeout bounds data writes when ConnConfig leaves WriteTimeout
// zero. A peer that stops reading must not wedge the writer.
const DefaultWriteTimeout = 30 * time.Second

// controlWriteTimeout bounds pong/close writes issued from the read path.
const controlWriteTimeout = 10 * time.Second

// ConnConfig configures a server-side connection taken over from an HTTP
// hijack.
type ConnConfig struct {
	// Legacy selects hixie-76 framing instead of hybi frames.
	Legacy bool

	// Binary makes WriteMessage send binary frames instead of text. Only
	// meaningful for hybi connections.
	Binary bool

	// MaxMessage caps a single inbound message (after reassembly).
	// Zero means DefaultMaxMessage.
	MaxMessage int

	// WriteTimeout bounds each outbound message write. Zero means
	// DefaultWriteTimeout.
	WriteTimeout time.Duration

	// Logger receives dropped-frame warnings. nil discards them.
	Logger *slog.Logger
}

// Conn is one WebSocket connection in either framing. Reads must come from a
// single goroutine; writes are internally serialized so the read path can
// answer pings while another goroutine flushes output.
type Conn struct {
	nc     net.Conn
	br     *bufio.Reader
	legacy bool
	binary bool
	logger *slog.Logger

	framer       Framer
	legacyFramer LegacyFramer
	maxMessage   int
	writeTimeout time.Duration

	// reassembly buffer for fragmented hybi messages
	msg []byte

	readTmp []byte

	writeMu   sync.Mutex
	wbuf      []byte
	closeSent bool
}

// NewServerConn wraps a hijacked connection. br is the buffered reader
// returned by the hijack; it may already hold frames the client sent on the
// heels of its handshake.
func NewServerConn(nc net.Conn, br *bufio.Reader, cfg ConnConfig) *Conn {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	maxMessage := cfg.MaxMessage
	if maxMessage <= 0 {
		maxMessage = DefaultMaxMessage
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	c := &Conn{
		nc:           nc,
		br:           br,
		legacy:       cfg.Legacy,
		binary:       cfg.Binary,
		logger:       logger,
		maxMessage:   maxMessage,
		writeTimeout: writeTimeout,
	}
	c.framer.RequireMask = true
	c.framer.MaxPayload = maxMessage
	c.legacyFramer.MaxPayload = maxMessage
	return c
}

// Legacy reports whether the connection uses hixie-76 framing.
func (c *Conn) Legacy() bool { return c.legacy }

// Binary reports whether outbound messages use binary frames.
func (c *Conn) Binary() bool { return c.binary }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

// SetReadDeadline sets the deadline for subsequent ReadMessage calls.
func (c *Conn) SetReadDeadline(t time.Time) error { return c.nc.SetReadDeadline(t) }

// SetWriteDeadline sets the deadline for subsequent writes.
func (c *Conn) SetWriteDeadline(t time.Time) error { return c.nc.SetWriteDeadline(t) }

// ReadMessage returns the next complete message payload. It answers pings,
// drops frames with reserved opcodes, and reassembles fragmented messages.
// It returns ErrConnectionClosed after a close frame, or the underlying read
// or framing error.
func (c *Conn) ReadMessage() ([]byte, error) {
	for {
		msg, err := c.nextMessage()
		if msg != nil || err != nil {
			return msg, err
		}
		if c.readTmp == nil {
			c.readTmp = make([]byte, 4096)
		}
		n, err := c.br.Read(c.readTmp)
		if n > 0 {
			if c.legacy {
				c.legacyFramer.Append(c.readTmp[:n])
			} else {
				c.framer.Append(c.readTmp[:n])
			}
		}
		if err != nil {
			return nil, err
		}
	}
}

// nextMessage drains whatever complete frames are buffered. It returns
// (nil, nil) when more bytes are needed.
func (c *Conn) nextMessage() ([]byte, error) {
	if c.legacy {
		return c.legacyFramer.Next()
	}
	for {
		frame, err := c.framer.Next()
		if err != nil || frame == nil {
			return nil, err
		}
		switch frame.Opcode {
		case OpcodePing:
			if err := c.writeControl(OpcodePong, frame.Payload); err != nil {
				return nil, err
			}
		case OpcodePong:
			// Nothing to do; any pong keeps the connection fresh.
		case OpcodeClose:
			code, _ := ClosePayload(frame.Payload)
			c.sendClose(code, "")
			return nil, fmt.Errorf("%w: close code %d", ErrConnectionClosed, code)
		case OpcodeText, OpcodeBinary:
			if c.msg != nil {
				c.logger.Warn("new message interrupts fragmented message, dropping partial",
					"opcode", frame.Opcode.String())
				c.msg = nil
			}
			if frame.Final {
				return frame.Payload, nil
			}
			// make keeps c.msg non-nil even for an empty first fragment
			c.msg = append(make([]byte, 0, len(frame.Payload)), frame.Payload...)
		case OpcodeContinuation:
			if c.msg == nil {
				c.logger.Warn("continuation frame without a message, dropping")
				continue
			}
			if len(c.msg)+len(frame.Payload) > c.maxMessage {
				return nil, ErrMessageTooLarge
			}
			c.msg = append(c.msg, frame.Payload...)
			if frame.Final {
				msg := c.msg
				c.msg = nil
				return msg, nil
			}
		default:
			c.logger.Warn("unsupported websocket opcode, dropping frame",
				"opcode", uint8(frame.Opcode), "len", len(frame.Payload))
		}
	}
}

// WriteMessage sends one message in the connection's framing.
func (c *Conn) WriteMessage(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.legacy {
		c.wbuf = AppendLegacyFrame(c.wbuf[:0], payload)
	} else {
		op := OpcodeText
		if c.binary {
			op = OpcodeBinary
		}
		c.wbuf = AppendFrame(c.wbuf[:0], true, op, payload)
	}
	c.nc.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	_, err := c.nc.Write(c.wbuf)
	return err
}

// WritePing sends a ping frame. It is a no-op on legacy connections, which
// have no control frames.
func (c *Conn) WritePing(payload []byte) error {
	if c.legacy {
		return nil
	}
	return c.writeControl(OpcodePing, payload)
}

func (c *Conn) writeControl(op Opcode, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.nc.SetWriteDeadline(time.Now().Add(controlWriteTimeout))
	c.wbuf = AppendFrame(c.wbuf[:0], true, op, payload)
	_, err := c.nc.Write(c.wbuf)
	return err
}

// sendClose sends a close frame once. Errors are ignored; the connection is
// going away regardless.
func (c *Conn) sendClose(code uint16, reason string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closeSent || c.legacy {
		return
	}
	c.closeSent = true
	c.nc.SetWriteDeadline(time.Now().Add(controlWriteTimeout))
	c.wbuf = AppendFrame(c.wbuf[:0], true, OpcodeClose, AppendClosePayload(nil, code, reason))
	c.nc.Write(c.wbuf)
}

// Close sends a close frame (hybi only) and closes the underlying
// connection.
func (c *Conn) Close(code uint16, reason string) error {
	c.sendClose(code, reason)
	return c.nc.Close()
}
