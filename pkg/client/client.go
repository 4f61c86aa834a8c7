package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/go-broadway/broadway/pkg/protocol"
	"github.com/go-broadway/broadway/pkg/surface"
)

// Sentinel errors reported through Err after the connection ends.
var (
	// ErrAuthRequired means the server sent an auth-request command: the
	// password was missing or wrong. Redial with the right password.
	ErrAuthRequired = errors.New("client: server requires a password")

	// ErrReplaced means the server sent a disconnected command because a
	// newer connection took ownership of the display.
	ErrReplaced = errors.New("client: connection replaced by the server")

	// ErrClosed means Close was called locally.
	ErrClosed = errors.New("client: closed")
)

const defaultHandshakeTimeout = 10 * time.Second

// Config holds client options. The zero value dials the text socket with
// no password.
type Config struct {
	// Logger receives structured logs. Default: slog.Default().
	Logger *slog.Logger

	// Password is sent as the ?password= query parameter.
	Password string

	// Binary dials /socket-bin (binary frames) instead of /socket.
	Binary bool

	// ScreenWidth and ScreenHeight, when both positive, are announced with
	// a screen-resize event right after connecting, the way the browser
	// client reports its viewport.
	ScreenWidth  int32
	ScreenHeight int32

	// HandshakeTimeout bounds the WebSocket handshake. Default: 10s.
	HandshakeTimeout time.Duration

	// MaxMessageSize caps one incoming message in bytes. 0 means no limit.
	MaxMessageSize int64

	// OnCommand, when set, observes every decoded server command after it
	// has been applied to the mirror. It runs on the read goroutine and
	// must not block.
	OnCommand func(*protocol.Command)
}

// Client is one protocol connection and the window state mirrored over it.
type Client struct {
	cfg     Config
	logger  *slog.Logger
	conn    *websocket.Conn
	msgType int
	epoch   time.Time

	// writeMu serializes writes and guards the serial counter, keeping
	// serials strictly increasing in send order.
	writeMu sync.Mutex
	serial  uint32
	buf     []byte

	// mu guards the mirrored state. changed is closed and replaced on
	// every applied command so waiters can block without polling.
	mu      sync.Mutex
	windows map[int32]*Window
	order   []int32
	grab    Grab
	err     error
	changed chan struct{}

	done     chan struct{}
	doneOnce sync.Once
}

// Dial connects to a display server. serverURL is the server base
// (http://host:port, optionally with a mount prefix) or a full socket URL;
// the scheme is switched to ws/wss and /socket or /socket-bin appended as
// needed.
//
// Dial returns once the WebSocket handshake completes. An authentication
// rejection arrives asynchronously: the server completes the handshake,
// sends one auth-request command and closes, which surfaces here as Done
// firing with Err() == ErrAuthRequired.
func Dial(ctx context.Context, serverURL string, cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	target, err := socketURL(serverURL, cfg.Binary, cfg.Password)
	if err != nil {
		return nil, err
	}

	timeout := cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", target, err)
	}
	if cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		cfg:     *cfg,
		logger:  logger.With("component", "client"),
		conn:    conn,
		msgType: websocket.TextMessage,
		epoch:   time.Now(),
		windows: make(map[int32]*Window),
		changed: make(chan struct{}),
		done:    make(chan struct{}),
	}
	if cfg.Binary {
		c.msgType = websocket.BinaryMessage
	}
	go c.readLoop()

	if cfg.ScreenWidth > 0 && cfg.ScreenHeight > 0 {
		if err := c.SendScreenResize(cfg.ScreenWidth, cfg.ScreenHeight); err != nil {
			c.fail(err)
			return nil, err
		}
	}
	return c, nil
}

// socketURL derives the WebSocket endpoint from the server base URL.
func socketURL(raw string, binary bool, password string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("client: parse url %q: %w", raw, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("client: unsupported scheme %q", u.Scheme)
	}
	endpoint := "/socket"
	if binary {
		endpoint = "/socket-bin"
	}
	if !strings.HasSuffix(u.Path, endpoint) {
		u.Path = strings.TrimSuffix(u.Path, "/") + endpoint
	}
	if password != "" {
		q := u.Query()
		q.Set("password", password)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Close sends a close frame and tears the connection down. Done fires with
// Err() == ErrClosed.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	c.fail(ErrClosed)
	return nil
}

// Done is closed when the connection ends for any reason.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns what ended the connection: ErrClosed, ErrReplaced,
// ErrAuthRequired, or the underlying read/parse error. It is nil while the
// connection is alive.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// WaitFor blocks until pred reports true, ctx ends, or the connection
// fails. pred runs on the calling goroutine and may use any accessor; it
// is re-evaluated after every applied server command.
func (c *Client) WaitFor(ctx context.Context, pred func() bool) error {
	for {
		c.mu.Lock()
		ch := c.changed
		c.mu.Unlock()
		if pred() {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			if pred() {
				return nil
			}
			return fmt.Errorf("client: connection down: %w", c.Err())
		}
	}
}

// fail records the first terminal error, wakes waiters, and closes the
// connection. Safe to call more than once; the first cause wins.
func (c *Client) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	close(c.changed)
	c.changed = make(chan struct{})
	c.mu.Unlock()
	c.conn.Close()
	c.doneOnce.Do(func() { close(c.done) })
}

// readLoop decodes server messages and applies each command to the mirror.
// A message is one or more '\n'-separated commands.
func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.fail(fmt.Errorf("client: read: %w", err))
			return
		}
		for len(data) > 0 {
			line := data
			if i := bytes.IndexByte(data, '\n'); i >= 0 {
				line, data = data[:i], data[i+1:]
			} else {
				data = nil
			}
			if len(line) == 0 {
				continue
			}
			cmd, err := protocol.ParseCommand(line)
			if err != nil {
				c.fail(fmt.Errorf("client: bad command from server: %w", err))
				return
			}
			if c.apply(cmd) {
				return
			}
		}
	}
}

// apply runs one command against the mirror and reports whether the
// connection is over.
func (c *Client) apply(cmd *protocol.Command) (stop bool) {
	var (
		failErr  error
		syncEcho = -1
		ackGrab  = int32(-1)
	)

	c.mu.Lock()
	switch cmd.Op {
	case protocol.OpDisconnected:
		failErr = ErrReplaced

	case protocol.OpAuthRequest:
		failErr = ErrAuthRequired

	case protocol.OpCreateSurface:
		w := &Window{
			ID:      cmd.ID,
			X:       cmd.X,
			Y:       cmd.Y,
			Width:   cmd.Width,
			Height:  cmd.Height,
			Temp:    cmd.Temp,
			Surface: surface.New(int(cmd.Width), int(cmd.Height)),
		}
		c.windows[cmd.ID] = w
		c.order = append(c.order, cmd.ID)

	case protocol.OpShowSurface:
		if w := c.windows[cmd.ID]; w != nil {
			w.Visible = true
		}

	case protocol.OpHideSurface:
		if w := c.windows[cmd.ID]; w != nil {
			w.Visible = false
		}

	case protocol.OpDestroySurface:
		if _, ok := c.windows[cmd.ID]; ok {
			delete(c.windows, cmd.ID)
			for i, id := range c.order {
				if id == cmd.ID {
					c.order = append(c.order[:i], c.order[i+1:]...)
					break
				}
			}
			for _, w := range c.windows {
				if w.TransientFor == cmd.ID {
					w.TransientFor = 0
				}
			}
		}

	case protocol.OpMoveResize:
		if w := c.windows[cmd.ID]; w != nil {
			resized := w.Width != cmd.Width || w.Height != cmd.Height
			w.X, w.Y = cmd.X, cmd.Y
			w.Width, w.Height = cmd.Width, cmd.Height
			if resized {
				// Content is stale after a resize; the server sends a
				// fresh full frame.
				w.Surface = surface.New(int(cmd.Width), int(cmd.Height))
			}
		}

	case protocol.OpSetTransient:
		if w := c.windows[cmd.ID]; w != nil {
			w.TransientFor = cmd.Parent
		}

	case protocol.OpPutImage, protocol.OpPatchImage:
		failErr = c.applyImage(cmd)

	case protocol.OpGrabPointer:
		c.grab = Grab{Held: true, Window: cmd.ID, OwnerEvents: cmd.OwnerEvents}
		ackGrab = cmd.ID

	case protocol.OpUngrabPointer:
		c.grab = Grab{}

	case protocol.OpSync:
		syncEcho = int(cmd.Serial)
	}
	close(c.changed)
	c.changed = make(chan struct{})
	c.mu.Unlock()

	if c.cfg.OnCommand != nil {
		c.cfg.OnCommand(cmd)
	}
	if ackGrab >= 0 {
		// The browser client acknowledges grabs the same way; a write
		// failure here surfaces through the read loop shortly after.
		_ = c.SendGrabNotify(ackGrab)
	}
	if syncEcho >= 0 {
		if err := c.Send(&protocol.InputMsg{
			Type: protocol.EventSyncReply,
			Sync: &protocol.SyncData{Echo: uint32(syncEcho)},
		}); err != nil && failErr == nil {
			failErr = err
		}
	}
	if failErr != nil {
		c.fail(failErr)
		return true
	}
	return false
}

// applyImage decodes the PNG payload and blits or XORs it onto the window
// mirror. Runs with mu held.
func (c *Client) applyImage(cmd *protocol.Command) error {
	w := c.windows[cmd.ID]
	if w == nil {
		return fmt.Errorf("client: image for unknown window %d", cmd.ID)
	}
	img, err := surface.DecodePNG(cmd.Image)
	if err != nil {
		return fmt.Errorf("client: window %d image: %w", cmd.ID, err)
	}
	if img.Width != int(cmd.Width) || img.Height != int(cmd.Height) {
		return fmt.Errorf("client: window %d image is %dx%d, header says %dx%d",
			cmd.ID, img.Width, img.Height, cmd.Width, cmd.Height)
	}
	if cmd.Op == protocol.OpPutImage {
		w.Surface.DrawRect(cmd.X, cmd.Y, img)
	} else {
		w.Surface.XorRect(cmd.X, cmd.Y, img)
	}
	return nil
}

// now returns the client timestamp in milliseconds since dial, never zero
// so the first event fixes the server's time base.
func (c *Client) now() uint32 {
	ms := uint32(time.Since(c.epoch).Milliseconds())
	if ms == 0 {
		ms = 1
	}
	return ms
}
