package display

import (
	"context"
	"image"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/go-broadway/broadway/pkg/hybi"
	"github.com/go-broadway/broadway/pkg/protocol"
	"github.com/go-broadway/broadway/pkg/surface"
)

// Server is a Broadway display server. It owns the window table, the input
// state tracker, and the pointer grab, and synchronizes them to at most one
// connected browser client.
//
// All state lives on a single loop goroutine; the exported operations post
// closures to it and are safe from any goroutine. Sync is the only blocking
// operation and must not be called from the OnEvent/OnConnect/OnDisconnect
// callbacks, which run on the loop itself.
type Server struct {
	config *Config
	logger *slog.Logger

	dispatchCh chan func()
	inputCh    chan inputBatch
	doneCh     chan struct{}
	closed     atomic.Bool

	nextWindowID atomic.Int32
	nextConnID   atomic.Uint64

	// Loop-owned state below.
	windows *windowTable
	tracker tracker
	grab    grabState
	sz      serializer
	conn    *clientConn
	pending []pendingInput

	nextSyncSerial uint32
	syncWaiters    map[uint32]chan error

	// snap mirrors the queryable slice of loop state for lock-free-ish reads
	// from other goroutines, and keeps answering after disconnect.
	snapMu sync.RWMutex
	snap   snapshot

	metrics metrics
}

type inputBatch struct {
	conn *clientConn
	msgs []*protocol.InputMsg
}

type pendingInput struct {
	conn *clientConn
	msg  *protocol.InputMsg
}

type snapshot struct {
	ptr         PointerInfo
	grab        GrabInfo
	screenW     int32
	screenH     int32
	windowCount int
	connected   bool
}

// New creates a display server and starts its loop. Close releases it.
func New(cfg *Config) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg = cfg.Clone()
	}
	cfg.fillDefaults()
	s := &Server{
		config:         cfg,
		logger:         cfg.Logger.With("component", "display"),
		dispatchCh:     make(chan func(), cfg.DispatchQueueSize),
		inputCh:        make(chan inputBatch, cfg.InputQueueSize),
		doneCh:         make(chan struct{}),
		windows:        newWindowTable(),
		grab:           newGrabState(),
		syncWaiters:    make(map[uint32]chan error),
		nextSyncSerial: 1,
	}
	s.sz.blockSize = cfg.DiffBlockSize
	s.snap.grab = s.grab.cur
	go s.loop()
	return s
}

// Close tears down the client connection and stops the loop. It is
// idempotent and safe from any goroutine.
func (s *Server) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.run(func() {
		if s.conn != nil {
			var out protocol.OutputBuffer
			out.Disconnected()
			s.conn.ws.WriteMessage(out.Bytes())
			s.detach(s.conn, nil)
		}
		s.failSyncWaiters(ErrServerClosed)
	})
	close(s.doneCh)
	return nil
}

// Post queues fn to run on the server loop. It is the correct way for
// application goroutines to touch state from timers or I/O completions.
// Post blocks only while the dispatch queue is full and reports whether fn
// was accepted; a closed server rejects it.
func (s *Server) Post(fn func()) bool {
	return s.post(fn)
}

func (s *Server) post(fn func()) bool {
	if s.closed.Load() {
		return false
	}
	select {
	case s.dispatchCh <- fn:
		return true
	case <-s.doneCh:
		return false
	}
}

// run posts fn and waits for the loop to finish it. Used by Close and by
// operations that need a result; never call it from the loop.
func (s *Server) run(fn func()) bool {
	done := make(chan struct{})
	select {
	case s.dispatchCh <- func() {
		fn()
		close(done)
	}:
	case <-s.doneCh:
		return false
	}
	select {
	case <-done:
		return true
	case <-s.doneCh:
		return false
	}
}

// loop is the single goroutine that owns all display state. Queued input
// drains in bounded slices per pass so a chatty client cannot starve posted
// work, and every pass ends with at most one flush to the client.
func (s *Server) loop() {
	for {
		if len(s.pending) > 0 {
			n := s.config.MaxEventsPerPass
			if n > len(s.pending) {
				n = len(s.pending)
			}
			for _, p := range s.pending[:n] {
				s.processInput(p.conn, p.msg)
			}
			s.pending = s.pending[n:]
			if len(s.pending) == 0 {
				s.pending = nil
			}
			s.flush()
			s.publishSnapshot()
			select {
			case fn := <-s.dispatchCh:
				s.runSafe(fn)
				s.flush()
				s.publishSnapshot()
			case <-s.doneCh:
				return
			default:
			}
			continue
		}
		select {
		case fn := <-s.dispatchCh:
			s.runSafe(fn)
		case batch := <-s.inputCh:
			for _, msg := range batch.msgs {
				s.pending = append(s.pending, pendingInput{conn: batch.conn, msg: msg})
			}
		case <-s.doneCh:
			return
		}
		s.flush()
		s.publishSnapshot()
	}
}

// runSafe executes a posted closure with panic recovery so one bad callback
// cannot take the whole display down.
func (s *Server) runSafe(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic on display loop",
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

// flush writes the staged command batch to the current connection.
func (s *Server) flush() {
	if s.sz.out.Count() == 0 {
		return
	}
	if s.conn == nil {
		s.sz.out.Reset()
		return
	}
	n := s.sz.out.Count()
	data := s.sz.out.Bytes()
	err := s.conn.ws.WriteMessage(data)
	if err != nil {
		s.logger.Warn("write failed, dropping connection",
			"conn_id", s.conn.id, "error", err)
		s.detach(s.conn, err)
	} else {
		s.metrics.commands.Add(uint64(n))
		s.metrics.flushes.Add(1)
		s.metrics.bytesOut.Add(uint64(len(data)))
	}
	s.sz.out.Reset()
}

// publishSnapshot mirrors queryable state for readers outside the loop.
func (s *Server) publishSnapshot() {
	s.snapMu.Lock()
	s.snap = snapshot{
		ptr:         s.tracker.ptr,
		grab:        s.grab.cur,
		screenW:     s.tracker.screenW,
		screenH:     s.tracker.screenH,
		windowCount: s.windows.len(),
		connected:   s.conn != nil,
	}
	s.snapMu.Unlock()
}

// ---------------------------------------------------------------------------
// Connection lifecycle (loop side)

// postInput hands a parsed batch to the loop. Called from reader goroutines.
func (s *Server) postInput(c *clientConn, msgs []*protocol.InputMsg) bool {
	select {
	case s.inputCh <- inputBatch{conn: c, msgs: msgs}:
		return true
	case <-s.doneCh:
		return false
	}
}

// connReadFailed is called from a reader goroutine when its connection
// dies. The loop decides whether the connection is still current.
func (s *Server) connReadFailed(c *clientConn, err error) {
	s.post(func() {
		if s.conn != c {
			return
		}
		s.logger.Info("client connection lost",
			"conn_id", c.id, "error", err)
		s.detach(c, err)
	})
}

// attach installs a fresh connection, displacing the current one, and
// resyncs the complete display state before the new reader starts. Runs on
// the loop.
func (s *Server) attach(c *clientConn) {
	if old := s.conn; old != nil {
		var out protocol.OutputBuffer
		out.Disconnected()
		old.ws.WriteMessage(out.Bytes())
		old.ws.Close(hybi.CloseGoingAway, "replaced")
		s.conn = nil
		s.failSyncWaiters(ErrSyncInterrupted)
		s.metrics.disconnects.Add(1)
		s.logger.Info("client connection replaced", "conn_id", old.id, "by", c.id)
	}
	s.conn = c
	if err := s.sz.resync(s.windows, s.grab.cur); err != nil {
		s.logger.Error("resync failed", "conn_id", c.id, "error", err)
		s.sz.out.Reset()
		s.conn = nil
		c.ws.Close(hybi.CloseProtocolError, "resync failed")
		return
	}
	s.metrics.connects.Add(1)
	s.logger.Info("client connected",
		"conn_id", c.id, "remote", c.ws.RemoteAddr().String(), "windows", s.windows.len())
	go c.readLoop()
	if s.config.OnConnect != nil {
		s.runSafe(s.config.OnConnect)
	}
}

// detach drops the current connection without sending anything. Runs on the
// loop.
func (s *Server) detach(c *clientConn, err error) {
	if s.conn != c {
		return
	}
	s.conn = nil
	c.ws.Close(hybi.CloseGoingAway, "")
	s.failSyncWaiters(ErrSyncInterrupted)
	s.metrics.disconnects.Add(1)
	if s.config.OnDisconnect != nil {
		s.runSafe(s.config.OnDisconnect)
	}
}

func (s *Server) failSyncWaiters(err error) {
	for serial, ch := range s.syncWaiters {
		delete(s.syncWaiters, serial)
		ch <- err
	}
}

// ---------------------------------------------------------------------------
// Input processing (loop side)

// processInput runs one accepted input message through time adjustment,
// state tracking, protocol-level handling, and grab routing, then hands it
// to the embedding callback.
func (s *Server) processInput(c *clientConn, msg *protocol.InputMsg) {
	if c != s.conn {
		return
	}
	msg.Time = c.tb.adjust(msg.Time, s.tracker.lastTime)
	s.tracker.observe(msg)
	s.metrics.inputMessages.Add(1)

	switch msg.Type {
	case protocol.EventSyncReply:
		if ch, ok := s.syncWaiters[msg.Sync.Echo]; ok {
			delete(s.syncWaiters, msg.Sync.Echo)
			ch <- nil
			s.metrics.syncRoundtrips.Add(1)
		} else {
			s.logger.Warn("sync reply without waiter", "echo", msg.Sync.Echo)
		}
		return
	case protocol.EventConfigure:
		if w := s.windows.get(msg.Window.Window); w != nil {
			w.x, w.y = msg.Window.X, msg.Window.Y
			w.width, w.height = msg.Window.Width, msg.Window.Height
		}
	case protocol.EventUngrabNotify:
		s.grab.ungrab(msg.Time)
	}

	if msg.Type.PointerClass() {
		if s.grab.cur.Held() {
			msg.TargetClient = s.grab.cur.Client
		} else if w := s.windows.get(msg.Pointer.EventWindow); w != nil {
			msg.TargetClient = w.owner
		}
	} else if msg.Window != nil {
		if w := s.windows.get(msg.Window.Window); w != nil {
			msg.TargetClient = w.owner
		}
	}

	if s.config.OnEvent != nil {
		s.runSafeEvent(msg)
	}
}

func (s *Server) runSafeEvent(msg *protocol.InputMsg) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in event callback",
				"panic", r,
				"type", msg.Type.String(),
				"stack", string(debug.Stack()))
		}
	}()
	s.config.OnEvent(msg)
}

// ---------------------------------------------------------------------------
// Application-facing operations

// CreateWindow adds a window owned by the given client id and returns its
// window id. The window starts hidden with no content.
func (s *Server) CreateWindow(client, x, y, width, height int32, temp bool) int32 {
	id := s.nextWindowID.Add(1)
	s.post(func() {
		w := &window{
			id:     id,
			owner:  client,
			x:      x,
			y:      y,
			width:  width,
			height: height,
			temp:   temp,
		}
		s.windows.add(w)
		if s.conn != nil {
			s.sz.out.CreateSurface(id, x, y, width, height, temp)
		}
	})
	return id
}

// DestroyWindow removes a window. A grab held by it is released regardless
// of timestamps.
func (s *Server) DestroyWindow(id int32) {
	s.post(func() {
		if s.windows.remove(id) == nil {
			s.logger.Warn("destroy of unknown window", "window", id)
			return
		}
		dropped := s.grab.dropWindow(id)
		if s.conn != nil {
			if dropped {
				s.sz.out.UngrabPointer()
			}
			s.sz.out.DestroySurface(id)
		}
	})
}

// ShowWindow makes a window visible.
func (s *Server) ShowWindow(id int32) {
	s.post(func() {
		w := s.windows.get(id)
		if w == nil || w.visible {
			return
		}
		w.visible = true
		if s.conn != nil {
			s.sz.out.ShowSurface(id)
		}
	})
}

// HideWindow makes a window invisible without destroying it.
func (s *Server) HideWindow(id int32) {
	s.post(func() {
		w := s.windows.get(id)
		if w == nil || !w.visible {
			return
		}
		w.visible = false
		if s.conn != nil {
			s.sz.out.HideSurface(id)
		}
	})
}

// MoveResizeWindow updates a window's geometry. A size change drops the
// cached content; the application is expected to push a fresh frame, which
// ships as literal content.
func (s *Server) MoveResizeWindow(id, x, y, width, height int32) {
	s.post(func() {
		w := s.windows.get(id)
		if w == nil {
			s.logger.Warn("move-resize of unknown window", "window", id)
			return
		}
		resized := w.width != width || w.height != height
		w.x, w.y, w.width, w.height = x, y, width, height
		if resized {
			w.content = nil
			w.shadow = nil
			w.synced = false
		}
		if s.conn != nil {
			s.sz.out.MoveResize(id, x, y, width, height)
		}
	})
}

// SetTransientFor records that window id is transient for parent (0 clears
// the relation).
func (s *Server) SetTransientFor(id, parent int32) {
	s.post(func() {
		w := s.windows.get(id)
		if w == nil {
			return
		}
		w.transientFor = parent
		if s.conn != nil {
			s.sz.out.SetTransient(id, parent)
		}
	})
}

// SetWindowContent replaces a window's pixel content. The image is copied;
// the caller may reuse it. What ships to the client is the XOR diff against
// the last synced frame, or the full frame when the client has none.
func (s *Server) SetWindowContent(id int32, img image.Image) {
	content := surface.FromImage(img)
	s.post(func() {
		w := s.windows.get(id)
		if w == nil {
			s.logger.Warn("content for unknown window", "window", id)
			return
		}
		w.content = content
		if s.conn == nil {
			w.synced = false
			return
		}
		if err := s.sz.syncContent(w); err != nil {
			s.logger.Error("content sync failed", "window", id, "error", err)
		}
	})
}

// GrabPointer requests a pointer grab for (window, client) at time t, in
// the server time base. The request loses against a grab with an equal or
// newer timestamp; QueryGrab reports the outcome.
func (s *Server) GrabPointer(client, window int32, ownerEvents bool, t uint32) {
	s.post(func() {
		w := s.windows.get(window)
		if w == nil {
			s.logger.Warn("grab on unknown window", "window", window)
			return
		}
		if !s.grab.grab(window, client, ownerEvents, t) {
			s.logger.Debug("pointer grab refused",
				"window", window, "client", client, "time", t,
				"holder", s.grab.cur.Window, "holder_time", s.grab.cur.Time)
			return
		}
		if s.conn != nil {
			s.sz.out.GrabPointer(window, ownerEvents)
		}
	})
}

// UngrabPointer releases the pointer grab at time t. A release older than
// the grab is ignored.
func (s *Server) UngrabPointer(t uint32) {
	s.post(func() {
		if !s.grab.ungrab(t) {
			return
		}
		if s.conn != nil {
			s.sz.out.UngrabPointer()
		}
	})
}

// Sync flushes pending commands, sends a sync command, and blocks until the
// client echoes it, ctx ends, or the connection goes away. It must not be
// called from the loop callbacks.
func (s *Server) Sync(ctx context.Context) error {
	if s.closed.Load() {
		return ErrServerClosed
	}
	ch := make(chan error, 1)
	posted := s.post(func() {
		if s.conn == nil {
			ch <- ErrNotConnected
			return
		}
		serial := s.nextSyncSerial
		s.nextSyncSerial++
		s.syncWaiters[serial] = ch
		s.sz.out.Sync(serial)
	})
	if !posted {
		return ErrServerClosed
	}
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.doneCh:
		return ErrServerClosed
	}
}

// ---------------------------------------------------------------------------
// Queries

// QueryPointer returns the last-seen pointer state. It keeps answering
// after the client disconnects.
func (s *Server) QueryPointer() PointerInfo {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snap.ptr
}

// QueryGrab returns the pointer grab state.
func (s *Server) QueryGrab() GrabInfo {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snap.grab
}

// ScreenSize returns the client viewport size from the latest screen-resize
// event, or zeros before one arrives.
func (s *Server) ScreenSize() (width, height int32) {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snap.screenW, s.snap.screenH
}

// Windows returns a snapshot of all windows in stacking order, bottom
// first.
func (s *Server) Windows() []WindowInfo {
	var infos []WindowInfo
	s.run(func() {
		infos = make([]WindowInfo, 0, len(s.windows.stack))
		for _, w := range s.windows.stack {
			infos = append(infos, w.info())
		}
	})
	return infos
}

// Frames returns a snapshot of all windows in stacking order together with
// copies of their current content. The pixel copies keep it off the hot
// path; it exists for capture and diagnostics.
func (s *Server) Frames() []WindowFrame {
	var frames []WindowFrame
	s.run(func() {
		frames = make([]WindowFrame, 0, len(s.windows.stack))
		for _, w := range s.windows.stack {
			f := WindowFrame{WindowInfo: w.info()}
			if w.content != nil {
				f.Content = w.content.Clone()
			}
			frames = append(frames, f)
		}
	})
	return frames
}
