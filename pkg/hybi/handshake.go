package hybi

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// keyGUID is the fixed GUID the hybi drafts append to the client key before
// hashing.
const keyGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// Subprotocol is the WebSocket subprotocol the browser client offers.
const Subprotocol = "broadway"

// Handshake errors.
var (
	// ErrBadHandshake is returned when the upgrade request is not a valid
	// WebSocket handshake of either flavor.
	ErrBadHandshake = errors.New("hybi: bad handshake")

	// ErrUnsupportedVersion is returned for hybi versions other than 7, 8
	// and 13. The framing is identical across those three.
	ErrUnsupportedVersion = errors.New("hybi: unsupported websocket version")
)

// IsWebSocketUpgrade reports whether r asks for a WebSocket upgrade of
// either flavor.
func IsWebSocketUpgrade(r *http.Request) bool {
	return headerContainsToken(r.Header, "Connection", "upgrade") &&
		headerContainsToken(r.Header, "Upgrade", "websocket")
}

// IsLegacyHandshake reports whether r is a hixie-76 handshake. The hybi
// handshake carries Sec-WebSocket-Key instead.
func IsLegacyHandshake(r *http.Request) bool {
	return r.Header.Get("Sec-Websocket-Key1") != ""
}

// AcceptKey computes the Sec-WebSocket-Accept value for a client key.
func AcceptKey(key string) string {
	h := sha1.New()
	io.WriteString(h, key)
	io.WriteString(h, keyGUID)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// LegacyChallenge computes the 16-byte MD5 answer to a hixie-76 challenge:
// each key header yields a big-endian uint32 (its digits divided by its
// space count), concatenated with the 8 raw key bytes that follow the
// request headers.
func LegacyChallenge(key1, key2 string, key3 []byte) ([]byte, error) {
	if len(key3) != 8 {
		return nil, fmt.Errorf("%w: key3 must be 8 bytes", ErrBadHandshake)
	}
	n1, err := hixieKeyNumber(key1)
	if err != nil {
		return nil, err
	}
	n2, err := hixieKeyNumber(key2)
	if err != nil {
		return nil, err
	}
	var buf [16]byte
	binary.BigEndian.PutUint32(buf[0:], n1)
	binary.BigEndian.PutUint32(buf[4:], n2)
	copy(buf[8:], key3)
	sum := md5.Sum(buf[:])
	return sum[:], nil
}

// hixieKeyNumber extracts the challenge number from a Sec-WebSocket-Key1/2
// header: the concatenated digits divided by the number of spaces.
func hixieKeyNumber(key string) (uint32, error) {
	var digits uint64
	spaces := uint64(0)
	for i := 0; i < len(key); i++ {
		switch c := key[i]; {
		case c >= '0' && c <= '9':
			digits = digits*10 + uint64(c-'0')
			if digits > 0xFFFFFFFF*10 {
				return 0, fmt.Errorf("%w: key number overflow", ErrBadHandshake)
			}
		case c == ' ':
			spaces++
		}
	}
	if spaces == 0 {
		return 0, fmt.Errorf("%w: key has no spaces", ErrBadHandshake)
	}
	if digits%spaces != 0 {
		return 0, fmt.Errorf("%w: key digits not divisible by spaces", ErrBadHandshake)
	}
	n := digits / spaces
	if n > 0xFFFFFFFF {
		return 0, fmt.Errorf("%w: key number overflow", ErrBadHandshake)
	}
	return uint32(n), nil
}

// UpgradeHybi validates a hybi handshake request and writes the 101 response
// to w. The caller has already hijacked the connection.
func UpgradeHybi(w io.Writer, r *http.Request) error {
	key := r.Header.Get("Sec-Websocket-Key")
	if key == "" {
		return fmt.Errorf("%w: missing Sec-WebSocket-Key", ErrBadHandshake)
	}
	switch v := r.Header.Get("Sec-Websocket-Version"); v {
	case "7", "8", "13":
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedVersion, v)
	}

	var b strings.Builder
	b.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	b.WriteString("Sec-WebSocket-Accept: ")
	b.WriteString(AcceptKey(key))
	b.WriteString("\r\n")
	if headerContainsToken(r.Header, "Sec-Websocket-Protocol", Subprotocol) {
		b.WriteString("Sec-WebSocket-Protocol: " + Subprotocol + "\r\n")
	}
	b.WriteString("\r\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// UpgradeLegacy validates a hixie-76 handshake, reads the 8 challenge bytes
// from br (they follow the request headers and are sitting in the hijacked
// buffered reader), and writes the 101 response plus the 16-byte answer to w.
func UpgradeLegacy(w io.Writer, br io.Reader, r *http.Request) error {
	key1 := r.Header.Get("Sec-Websocket-Key1")
	key2 := r.Header.Get("Sec-Websocket-Key2")
	if key1 == "" || key2 == "" {
		return fmt.Errorf("%w: missing Sec-WebSocket-Key1/Key2", ErrBadHandshake)
	}
	var key3 [8]byte
	if _, err := io.ReadFull(br, key3[:]); err != nil {
		return fmt.Errorf("%w: short challenge body: %v", ErrBadHandshake, err)
	}
	challenge, err := LegacyChallenge(key1, key2, key3[:])
	if err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("HTTP/1.1 101 WebSocket Protocol Handshake\r\n")
	b.WriteString("Upgrade: WebSocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	if origin := r.Header.Get("Origin"); origin != "" {
		b.WriteString("Sec-WebSocket-Origin: " + origin + "\r\n")
	}
	b.WriteString("Sec-WebSocket-Location: ws://" + r.Host + r.URL.RequestURI() + "\r\n")
	if headerContainsToken(r.Header, "Sec-Websocket-Protocol", Subprotocol) {
		b.WriteString("Sec-WebSocket-Protocol: " + Subprotocol + "\r\n")
	}
	b.WriteString("\r\n")
	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}
	_, err = w.Write(challenge)
	return err
}

// headerContainsToken reports whether any comma-separated value of the named
// header equals token, case-insensitively.
func headerContainsToken(h http.Header, name, token string) bool {
	for _, v := range h.Values(name) {
		for _, t := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(t), token) {
				return true
			}
		}
	}
	return false
}
