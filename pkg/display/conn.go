package display

import (
	"bytes"
	"log/slog"
	"net"

	"github.com/go-broadway/broadway/pkg/protocol"
)

// wsConn is the transport a client connection rides on. *hybi.Conn
// implements it; tests substitute their own.
type wsConn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(payload []byte) error
	Close(code uint16, reason string) error
	RemoteAddr() net.Addr
}

// clientConn is one attached browser connection. The reader goroutine only
// parses input and posts batches; tb is touched exclusively by the server
// loop.
type clientConn struct {
	id     uint64
	ws     wsConn
	srv    *Server
	logger *slog.Logger

	// lastSerial is the highest input serial accepted, owned by the reader
	// goroutine.
	lastSerial uint32

	// tb rebases this connection's timestamps, owned by the server loop.
	tb timeBase
}

// readLoop reads messages until the connection dies, parsing each into
// input messages and posting them to the server loop. It runs on its own
// goroutine.
func (c *clientConn) readLoop() {
	for {
		data, err := c.ws.ReadMessage()
		if err != nil {
			c.srv.connReadFailed(c, err)
			return
		}
		c.srv.metrics.bytesIn.Add(uint64(len(data)))
		if batch := c.parseBatch(data); len(batch) > 0 {
			if !c.srv.postInput(c, batch) {
				return
			}
		}
	}
}

// parseBatch splits one WebSocket message into newline-separated input
// messages. Malformed messages and serial regressions are logged and
// dropped; they never take the connection down.
func (c *clientConn) parseBatch(data []byte) []*protocol.InputMsg {
	var batch []*protocol.InputMsg
	for len(data) > 0 {
		line := data
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			line = data[:i]
			data = data[i+1:]
		} else {
			data = nil
		}
		if len(line) == 0 {
			continue
		}
		msg, err := protocol.ParseInput(line)
		if err != nil {
			c.logger.Warn("dropping malformed input message", "error", err)
			c.srv.metrics.droppedInputs.Add(1)
			continue
		}
		if msg.Serial <= c.lastSerial {
			c.logger.Warn("dropping input message with regressed serial",
				"serial", msg.Serial, "last", c.lastSerial, "type", msg.Type.String())
			c.srv.metrics.droppedInputs.Add(1)
			continue
		}
		c.lastSerial = msg.Serial
		batch = append(batch, msg)
	}
	return batch
}
