// Package hybi implements the server side of the two WebSocket wire formats
// the Broadway display server speaks.
//
// # Framings
//
// The modern framing is the IETF hybi drafts 07 and later, which RFC 6455
// finalized: frames carry FIN/opcode and mask/length bytes, 16- or 64-bit
// extended lengths, and a 4-byte masking key on everything a client sends.
// Text, binary, continuation, ping, pong and close opcodes are handled.
//
// The legacy framing is the hixie-76 scheme that predates hybi: each message
// is the payload bytes wrapped in 0x00 and 0xFF sentinels. A sub-message that
// does not begin with 0x00 is a protocol violation and tears the connection
// down — there is no recovery path in that framing.
//
// # Handshakes
//
// AcceptKey computes the SHA-1/base64 Sec-WebSocket-Accept value for the
// hybi handshake. LegacyChallenge computes the MD5 answer to the hixie-76
// Sec-WebSocket-Key1/Key2 challenge. UpgradeHybi and UpgradeLegacy write the
// complete 101 responses over a hijacked connection.
//
// # Buffering model
//
// Framer and LegacyFramer are push parsers: the connection reader appends
// whatever bytes arrived and asks for complete frames. A partial frame is
// never an error; the bytes accumulate in a growable buffer until the rest
// shows up. Conn layers message reassembly, control-frame handling and
// writes on top of either framer.
package hybi
