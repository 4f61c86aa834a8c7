// Package protocol implements the Broadway wire grammar.
//
// The protocol is a line-oriented text format carried over WebSocket
// messages. Input events flow from the browser client to the display
// server; output commands flow from the server to the client. Several
// messages may be packed into one WebSocket message, separated by '\n'.
//
// # Input messages (client to server)
//
// Each message is a single-character event tag immediately followed by
// comma-separated signed decimal fields. The first two fields are always
// the client's message serial (strictly increasing per connection) and a
// millisecond timestamp:
//
//	<tag><serial>,<timestamp>[,<field>...]
//
// Event tags:
//
//	e  enter           mouse-window, event-window, root-x, root-y, win-x, win-y, state, mode
//	l  leave           same fields as enter
//	m  motion          mouse-window, event-window, root-x, root-y, win-x, win-y, state
//	b  button press    motion fields, button
//	B  button release  motion fields, button
//	s  scroll          motion fields, direction
//	k  key press       keysym, state
//	K  key release     keysym, state
//	g  grab notify     window
//	u  ungrab notify   window
//	w  configure       window, x, y, width, height
//	d  delete          window
//	S  screen resize   width, height
//	q  sync reply      echoed sync serial
//
// For example, a motion event over window 3 at root (105,210):
//
//	m17,4242,3,3,105,210,5,10,0
//
// # Output commands (server to client)
//
// Commands use the same shape: an op character followed by comma-separated
// fields. Image payloads are standard base64 and always the last field.
//
//	D  disconnected
//	a  auth request
//	s  create surface   id, x, y, width, height, temp
//	S  show surface     id
//	H  hide surface     id
//	d  destroy surface  id
//	m  move-resize      id, x, y, width, height
//	p  set transient    id, parent (0 clears)
//	i  put image        id, x, y, width, height, base64 PNG
//	I  patch image      id, x, y, width, height, base64 PNG of XOR delta
//	g  grab pointer     id, owner-events
//	u  ungrab pointer
//	q  sync             sync serial
//
// A put image carries literal new pixel content. A patch image carries the
// XOR of new content against what the client already has; the client XORs
// it onto its canvas, so unchanged pixels are zero and compress well.
//
// # Parsing rules
//
// Unknown tags and messages with missing or garbled fields are reported as
// errors; the caller is expected to log and drop them rather than tear the
// connection down. Parsing never retains the input slice.
package protocol
