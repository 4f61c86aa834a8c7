package display

import (
	"bufio"
	"crypto/sha256"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	clientdist "github.com/go-broadway/broadway/client/dist"
	"github.com/go-broadway/broadway/pkg/hybi"
	"github.com/go-broadway/broadway/pkg/protocol"
)

// handshakeTimeout bounds the raw socket I/O of a WebSocket handshake.
const handshakeTimeout = 10 * time.Second

var (
	scriptETag = assetETag(clientdist.BroadwayJS)
	pageETag   = assetETag(clientdist.ClientHTML)
)

func assetETag(body []byte) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf("%q", fmt.Sprintf("%x", sum[:]))
}

// ServeHTTP serves the embedded browser client and upgrades the WebSocket
// endpoints:
//
//	GET /               client page
//	GET /client.html    client page
//	GET /broadway.js    protocol client script
//	GET /socket         text protocol (hybi or legacy handshake)
//	GET /socket-bin     binary-framed protocol (hybi only)
//
// Other methods answer 501 and other paths 404, so the handler can be
// mounted on any mux (use http.StripPrefix when nesting it under a prefix).
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "only GET is implemented", http.StatusNotImplemented)
		return
	}
	switch r.URL.Path {
	case "/", "/client.html":
		serveAsset(w, r, clientdist.ClientHTML, pageETag, "text/html; charset=utf-8")
	case "/broadway.js":
		serveAsset(w, r, clientdist.BroadwayJS, scriptETag, "application/javascript; charset=utf-8")
	case "/socket":
		s.upgrade(w, r, false)
	case "/socket-bin":
		s.upgrade(w, r, true)
	default:
		http.NotFound(w, r)
	}
}

func serveAsset(w http.ResponseWriter, r *http.Request, body []byte, etag, contentType string) {
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "public, max-age=0, must-revalidate")
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func etagMatches(ifNoneMatchHeader, etag string) bool {
	if ifNoneMatchHeader == "" || etag == "" {
		return false
	}
	for _, part := range strings.Split(ifNoneMatchHeader, ",") {
		candidate := strings.TrimSpace(part)
		if candidate == etag {
			return true
		}
		if strings.HasPrefix(candidate, "W/") && strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

// upgrade performs the WebSocket handshake and hands the connection to the
// server loop. A wrong or missing password still completes the handshake;
// the client then receives a single auth-request command and the connection
// closes, which lets the browser prompt and retry.
func (s *Server) upgrade(w http.ResponseWriter, r *http.Request, binary bool) {
	legacy := false
	switch {
	case hybi.IsLegacyHandshake(r):
		if binary {
			http.Error(w, "binary socket requires a hybi handshake", http.StatusBadRequest)
			return
		}
		legacy = true
	case hybi.IsWebSocketUpgrade(r):
	default:
		http.Error(w, "not a websocket handshake", http.StatusBadRequest)
		return
	}
	password := r.URL.Query().Get("password")

	hj, ok := w.(http.Hijacker)
	if !ok {
		s.logger.Error("websocket upgrade without hijack support", "proto", r.Proto)
		http.Error(w, "websocket requires HTTP/1.1", http.StatusBadRequest)
		return
	}
	nc, brw, err := hj.Hijack()
	if err != nil {
		s.logger.Error("hijack failed", "error", err)
		http.Error(w, "hijack failed", http.StatusInternalServerError)
		return
	}

	// The response now goes raw over nc.
	nc.SetDeadline(time.Now().Add(handshakeTimeout))
	if err := handshake(nc, brw.Reader, r, legacy); err != nil {
		s.logger.Warn("websocket handshake failed",
			"remote", r.RemoteAddr, "legacy", legacy, "error", err)
		io.WriteString(nc, "HTTP/1.1 400 Bad Request\r\nConnection: close\r\n\r\n")
		nc.Close()
		return
	}
	nc.SetDeadline(time.Time{})

	ws := hybi.NewServerConn(nc, brw.Reader, hybi.ConnConfig{
		Legacy:       legacy,
		Binary:       binary,
		MaxMessage:   s.config.MaxMessageSize,
		WriteTimeout: s.config.WriteTimeout,
		Logger:       s.logger,
	})
	id := s.nextConnID.Add(1)

	if s.config.Auth.Enabled() && !s.config.Auth.Verify(password) {
		s.logger.Info("rejecting unauthenticated connection",
			"conn_id", id, "remote", r.RemoteAddr)
		var out protocol.OutputBuffer
		out.AuthRequest()
		ws.WriteMessage(out.Bytes())
		ws.Close(hybi.CloseNormal, "authentication required")
		return
	}

	c := &clientConn{
		id:     id,
		ws:     ws,
		srv:    s,
		logger: s.logger.With("conn_id", id),
	}
	if !s.post(func() { s.attach(c) }) {
		ws.Close(hybi.CloseGoingAway, "server closed")
	}
}

func handshake(nc net.Conn, br *bufio.Reader, r *http.Request, legacy bool) error {
	if legacy {
		return hybi.UpgradeLegacy(nc, br, r)
	}
	return hybi.UpgradeHybi(nc, r)
}
