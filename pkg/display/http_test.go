package display

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	clientdist "github.com/go-broadway/broadway/client/dist"
	"github.com/go-broadway/broadway/pkg/hybi"
	"github.com/go-broadway/broadway/pkg/protocol"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestAssetServing(t *testing.T) {
	s := newTestServer(t, nil)
	tests := []struct {
		path        string
		contentType string
		body        []byte
	}{
		{"/", "text/html; charset=utf-8", clientdist.ClientHTML},
		{"/client.html", "text/html; charset=utf-8", clientdist.ClientHTML},
		{"/broadway.js", "application/javascript; charset=utf-8", clientdist.BroadwayJS},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if got := rec.Header().Get("Content-Type"); got != tt.contentType {
				t.Fatalf("content type = %q, want %q", got, tt.contentType)
			}
			if rec.Header().Get("ETag") == "" {
				t.Fatal("missing ETag")
			}
			if !bytes.Equal(rec.Body.Bytes(), tt.body) {
				t.Fatal("body does not match the embedded asset")
			}
		})
	}
}

func TestAssetETagRevalidation(t *testing.T) {
	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	etag := rec.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}

	tests := []struct {
		name        string
		ifNoneMatch string
		status      int
	}{
		{"exact match", etag, http.StatusNotModified},
		{"weak match", "W/" + etag, http.StatusNotModified},
		{"list match", `"zzz", ` + etag, http.StatusNotModified},
		{"no match", `"different"`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("If-None-Match", tt.ifNoneMatch)
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.status == http.StatusNotModified && rec.Body.Len() != 0 {
				t.Fatal("304 with a body")
			}
		})
	}
}

func TestNonGetNotImplemented(t *testing.T) {
	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", rec.Code)
	}
	if got := rec.Header().Get("Allow"); got != http.MethodGet {
		t.Fatalf("Allow = %q, want GET", got)
	}
}

func TestUnknownPathNotFound(t *testing.T) {
	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nothing-here", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSocketRejectsPlainRequest(t *testing.T) {
	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/socket", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestBinarySocketRejectsLegacyHandshake(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/socket-bin", nil)
	req.Header.Set("Sec-WebSocket-Key1", "10 20 30")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSocketRequiresHijacker(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/socket", nil)
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Sec-WebSocket-Key", "MDEyMzQ1Njc4OWFiY2RlZg==")
	req.Header.Set("Sec-WebSocket-Version", "13")
	rec := httptest.NewRecorder() // no Hijack support, like HTTP/2
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

// hybiClient is a minimal WebSocket client speaking to a test server over raw
// TCP, enough to exercise the real handshake and framing paths.
type hybiClient struct {
	t   *testing.T
	nc  net.Conn
	br  *bufio.Reader
	fr  hybi.Framer
	tmp []byte
}

const testClientKey = "MDEyMzQ1Njc4OWFiY2RlZg=="

func dialHybi(t *testing.T, ts *httptest.Server, path string) *hybiClient {
	t.Helper()
	nc, err := net.Dial("tcp", ts.Listener.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { nc.Close() })
	nc.SetDeadline(time.Now().Add(10 * time.Second))

	fmt.Fprintf(nc, "GET %s HTTP/1.1\r\n", path)
	fmt.Fprintf(nc, "Host: %s\r\n", ts.Listener.Addr())
	io.WriteString(nc, "Upgrade: websocket\r\n")
	io.WriteString(nc, "Connection: Upgrade\r\n")
	fmt.Fprintf(nc, "Sec-WebSocket-Key: %s\r\n", testClientKey)
	io.WriteString(nc, "Sec-WebSocket-Version: 13\r\n")
	io.WriteString(nc, "Sec-WebSocket-Protocol: "+hybi.Subprotocol+"\r\n")
	io.WriteString(nc, "\r\n")

	br := bufio.NewReader(nc)
	head := readResponseHead(t, br)
	if !strings.Contains(head, " 101 ") {
		t.Fatalf("handshake response:\n%s", head)
	}
	if want := "Sec-WebSocket-Accept: " + hybi.AcceptKey(testClientKey); !strings.Contains(head, want) {
		t.Fatalf("missing %q in response:\n%s", want, head)
	}
	if !strings.Contains(head, "Sec-WebSocket-Protocol: "+hybi.Subprotocol) {
		t.Fatalf("subprotocol not echoed:\n%s", head)
	}
	return &hybiClient{t: t, nc: nc, br: br, tmp: make([]byte, 4096)}
}

func readResponseHead(t *testing.T, br *bufio.Reader) string {
	t.Helper()
	var head strings.Builder
	for {
		line, err := br.ReadString('\n')
		head.WriteString(line)
		if err != nil {
			t.Fatalf("reading response after %q: %v", head.String(), err)
		}
		if line == "\r\n" {
			return head.String()
		}
	}
}

func (c *hybiClient) nextFrame() *hybi.Frame {
	c.t.Helper()
	for {
		f, err := c.fr.Next()
		if err != nil {
			c.t.Fatalf("client framing: %v", err)
		}
		if f != nil {
			return f
		}
		n, err := c.br.Read(c.tmp)
		if n > 0 {
			c.fr.Append(c.tmp[:n])
		}
		if err != nil {
			c.t.Fatalf("read: %v", err)
		}
	}
}

func (c *hybiClient) nextMessage() []byte {
	c.t.Helper()
	for {
		f := c.nextFrame()
		switch f.Opcode {
		case hybi.OpcodeText, hybi.OpcodeBinary:
			return f.Payload
		case hybi.OpcodePing, hybi.OpcodePong:
		default:
			c.t.Fatalf("unexpected %s frame", f.Opcode)
		}
	}
}

func (c *hybiClient) send(payload []byte) {
	c.t.Helper()
	key := [4]byte{0x37, 0xFA, 0x21, 0x3D}
	frame := hybi.AppendMaskedFrame(nil, true, hybi.OpcodeText, key, payload)
	if _, err := c.nc.Write(frame); err != nil {
		c.t.Fatalf("send: %v", err)
	}
}

func (c *hybiClient) sendClose(code uint16) {
	c.t.Helper()
	key := [4]byte{0x37, 0xFA, 0x21, 0x3D}
	payload := hybi.AppendClosePayload(nil, code, "")
	frame := hybi.AppendMaskedFrame(nil, true, hybi.OpcodeClose, key, payload)
	if _, err := c.nc.Write(frame); err != nil {
		c.t.Fatalf("send close: %v", err)
	}
}

func TestHybiUpgradeEndToEnd(t *testing.T) {
	sink := newEventSink()
	s := newTestServer(t, DefaultConfig().WithOnEvent(sink.onEvent))
	id := s.CreateWindow(4, 10, 20, 8, 8, false)
	s.SetWindowContent(id, solidImage(8, 8, 5, 5, 5))
	s.ShowWindow(id)
	settle(s)

	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)

	c := dialHybi(t, ts, "/socket")
	cmds := parseCommands(t, c.nextMessage())
	if got := ops(cmds); got != "siS" {
		t.Fatalf("resync ops = %q, want \"siS\"", got)
	}
	if cmds[0].ID != id || cmds[0].X != 10 || cmds[0].Y != 20 {
		t.Fatalf("create = %+v", cmds[0])
	}

	c.send([]byte(fmt.Sprintf("m1,77,%d,%d,3,4,3,4,0", id, id)))
	ev := sink.next(t)
	if ev.Type != protocol.EventMotion || ev.TargetClient != 4 {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Pointer.RootX != 3 || ev.Pointer.RootY != 4 {
		t.Fatalf("pointer = %+v", ev.Pointer)
	}

	c.sendClose(hybi.CloseNormal)
	if f := c.nextFrame(); f.Opcode != hybi.OpcodeClose {
		t.Fatalf("opcode = %s, want a close echo", f.Opcode)
	}
	waitFor(t, "disconnect", func() bool { return !s.Stats().Connected })
}

func TestBinarySocketFraming(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.CreateWindow(1, 0, 0, 4, 4, false)
	settle(s)

	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)

	c := dialHybi(t, ts, "/socket-bin")
	f := c.nextFrame()
	if f.Opcode != hybi.OpcodeBinary {
		t.Fatalf("opcode = %s, want Binary", f.Opcode)
	}
	cmds := parseCommands(t, f.Payload)
	if got := ops(cmds); got != "s" || cmds[0].ID != id {
		t.Fatalf("resync = %q %+v", got, cmds)
	}
}

func TestHybiUpgradeBadVersion(t *testing.T) {
	s := newTestServer(t, nil)
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)

	nc, err := net.Dial("tcp", ts.Listener.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { nc.Close() })
	nc.SetDeadline(time.Now().Add(testTimeout))

	fmt.Fprintf(nc, "GET /socket HTTP/1.1\r\nHost: %s\r\n", ts.Listener.Addr())
	io.WriteString(nc, "Upgrade: websocket\r\nConnection: Upgrade\r\n")
	io.WriteString(nc, "Sec-WebSocket-Key: "+testClientKey+"\r\n")
	io.WriteString(nc, "Sec-WebSocket-Version: 12\r\n\r\n")

	head := readResponseHead(t, bufio.NewReader(nc))
	if !strings.Contains(head, "400 Bad Request") {
		t.Fatalf("response:\n%s", head)
	}
}

func TestLegacyUpgradeEndToEnd(t *testing.T) {
	sink := newEventSink()
	s := newTestServer(t, DefaultConfig().WithOnEvent(sink.onEvent))
	id := s.CreateWindow(9, 0, 0, 6, 6, false)
	s.ShowWindow(id)
	settle(s)

	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)

	nc, err := net.Dial("tcp", ts.Listener.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { nc.Close() })
	nc.SetDeadline(time.Now().Add(10 * time.Second))

	const (
		key1 = "10 20 30"
		key2 = "6 6 6 6"
	)
	key3 := []byte("12345678")
	fmt.Fprintf(nc, "GET /socket HTTP/1.1\r\nHost: %s\r\n", ts.Listener.Addr())
	io.WriteString(nc, "Upgrade: WebSocket\r\nConnection: Upgrade\r\n")
	io.WriteString(nc, "Origin: http://example.test\r\n")
	fmt.Fprintf(nc, "Sec-WebSocket-Key1: %s\r\n", key1)
	fmt.Fprintf(nc, "Sec-WebSocket-Key2: %s\r\n", key2)
	io.WriteString(nc, "\r\n")
	nc.Write(key3)

	br := bufio.NewReader(nc)
	head := readResponseHead(t, br)
	if !strings.Contains(head, "101 WebSocket Protocol Handshake") {
		t.Fatalf("handshake response:\n%s", head)
	}
	if !strings.Contains(head, "Sec-WebSocket-Location: ws://") {
		t.Fatalf("missing location:\n%s", head)
	}
	var challenge [16]byte
	if _, err := io.ReadFull(br, challenge[:]); err != nil {
		t.Fatalf("read challenge answer: %v", err)
	}
	want, err := hybi.LegacyChallenge(key1, key2, key3)
	if err != nil {
		t.Fatalf("LegacyChallenge: %v", err)
	}
	if !bytes.Equal(challenge[:], want) {
		t.Fatalf("challenge answer = %x, want %x", challenge, want)
	}

	var fr hybi.LegacyFramer
	tmp := make([]byte, 4096)
	next := func() []byte {
		t.Helper()
		for {
			msg, err := fr.Next()
			if err != nil {
				t.Fatalf("legacy framing: %v", err)
			}
			if msg != nil {
				return msg
			}
			n, err := br.Read(tmp)
			if n > 0 {
				fr.Append(tmp[:n])
			}
			if err != nil {
				t.Fatalf("read: %v", err)
			}
		}
	}

	cmds := parseCommands(t, next())
	if got := ops(cmds); got != "sS" || cmds[0].ID != id {
		t.Fatalf("resync = %q %+v", got, cmds)
	}

	nc.Write(hybi.AppendLegacyFrame(nil, []byte("k1,50,65,0")))
	ev := sink.next(t)
	if ev.Type != protocol.EventKeyPress || ev.Key.Keysym != 65 {
		t.Fatalf("event = %+v", ev)
	}

	// A non-zero lead byte is unrecoverable in 0x00/0xFF framing; the server
	// must drop the connection.
	nc.Write([]byte{0x7F})
	waitFor(t, "teardown after framing violation", func() bool { return !s.Stats().Connected })

	nc.SetReadDeadline(time.Now().Add(testTimeout))
	for {
		_, err := br.ReadByte()
		if err == nil {
			continue
		}
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			t.Fatal("connection left open after framing violation")
		}
		break
	}
}

func TestAuthRequiredFlow(t *testing.T) {
	hash, err := HashPassword("opensesame")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	s := newTestServer(t, DefaultConfig().WithAuth(NewAuthenticator(hash)))
	id := s.CreateWindow(1, 0, 0, 4, 4, false)
	settle(s)

	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)

	// No password: the handshake still completes so the browser client can
	// prompt, then a single auth request arrives and the connection closes.
	c := dialHybi(t, ts, "/socket")
	cmds := parseCommands(t, c.nextMessage())
	if len(cmds) != 1 || cmds[0].Op != protocol.OpAuthRequest {
		t.Fatalf("commands = %+v, want a single auth request", cmds)
	}
	if f := c.nextFrame(); f.Opcode != hybi.OpcodeClose {
		t.Fatalf("opcode = %s, want Close", f.Opcode)
	}

	c = dialHybi(t, ts, "/socket?password=wrong")
	cmds = parseCommands(t, c.nextMessage())
	if len(cmds) != 1 || cmds[0].Op != protocol.OpAuthRequest {
		t.Fatalf("commands = %+v, want a single auth request", cmds)
	}

	c = dialHybi(t, ts, "/socket?password=opensesame")
	cmds = parseCommands(t, c.nextMessage())
	if got := ops(cmds); got != "s" || cmds[0].ID != id {
		t.Fatalf("resync = %q %+v, want the display state", got, cmds)
	}
	waitFor(t, "attach", func() bool { return s.Stats().Connected })
}
